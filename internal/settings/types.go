package settings

import "fmt"

// Type is the tag naming a setting's variant
type Type string

const (
	TypeBool     Type = "BOOL"
	TypeNumber   Type = "NUM"
	TypeOneOf    Type = "ONEOF"
	TypeText     Type = "TEXT"
	TypeTime     Type = "TIME"
	TypeDate     Type = "DATE"
	TypeDateTime Type = "DATETIME"
	TypeTimezone Type = "TIMEZONE"
	TypeColor    Type = "COLOR"
)

// Variant is the typed payload of a setting. It is implemented only by
// the pointer types in this package.
type Variant interface {
	Type() Type
	variant()
}

// Bool is an on/off setting
type Bool struct {
	Val bool
	Def bool
}

// Number is an integer bounded by [Min, Max]
type Number struct {
	Val int32
	Def int32
	Min int32
	Max int32
}

// OneOf is an index into an ordered list of option labels
type OneOf struct {
	Val     int
	Def     int
	Options []string
}

// Label returns the label of the selected option, or "" when the index is invalid.
func (o *OneOf) Label() string {
	if o.Val < 0 || o.Val >= len(o.Options) {
		return ""
	}
	return o.Options[o.Val]
}

// Text is a string bounded to MaxLen bytes
type Text struct {
	Val    string
	Def    string
	MaxLen int
}

// TimeOfDay holds hour and minute. Values are not range checked.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// CalendarDate holds day, month and year. Values are not range checked.
type CalendarDate struct {
	Day   int
	Month int
	Year  int
}

func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time is a time of day
type Time struct {
	Val TimeOfDay
	Def TimeOfDay
}

// Date is a calendar date
type Date struct {
	Val CalendarDate
	Def CalendarDate
}

// DateTime mirrors the system clock. It has no default and is never
// written to the store.
type DateTime struct {
	Time TimeOfDay
	Date CalendarDate

	// set by SetDateTime, cleared by Sync
	pending bool
}

// Timezone is a POSIX TZ string bounded to MaxLen bytes
type Timezone struct {
	Val    string
	Def    string
	MaxLen int
}

// RGBW is a color with a white channel
type RGBW struct {
	R uint8
	G uint8
	B uint8
	W uint8
}

// Combined packs the channels into one word: blue in the low byte,
// then green, red and white.
func (c RGBW) Combined() uint32 {
	return uint32(c.W)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Hex formats the color as #rrggbb, or #wwrrggbb when the white
// channel is set, so the result parses back to the same color.
func (c RGBW) Hex() string {
	if c.W != 0 {
		return fmt.Sprintf("#%08x", c.Combined())
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RGBWFromCombined unpacks a word produced by Combined.
func RGBWFromCombined(v uint32) RGBW {
	return RGBW{
		B: uint8(v),
		G: uint8(v >> 8),
		R: uint8(v >> 16),
		W: uint8(v >> 24),
	}
}

// Color is an RGBW color
type Color struct {
	Val RGBW
	Def RGBW
}

func (*Bool) Type() Type     { return TypeBool }
func (*Number) Type() Type   { return TypeNumber }
func (*OneOf) Type() Type    { return TypeOneOf }
func (*Text) Type() Type     { return TypeText }
func (*Time) Type() Type     { return TypeTime }
func (*Date) Type() Type     { return TypeDate }
func (*DateTime) Type() Type { return TypeDateTime }
func (*Timezone) Type() Type { return TypeTimezone }
func (*Color) Type() Type    { return TypeColor }

func (*Bool) variant()     {}
func (*Number) variant()   {}
func (*OneOf) variant()    {}
func (*Text) variant()     {}
func (*Time) variant()     {}
func (*Date) variant()     {}
func (*DateTime) variant() {}
func (*Timezone) variant() {}
func (*Color) variant()    {}

// Setting is one named, typed value of a Group
type Setting struct {
	ID       string
	Label    string
	Disabled bool
	Value    Variant

	// OnSet is called after every committed mutation through a setter.
	OnSet func(s *Setting)

	group *Group
}

// Type returns the tag of the setting's variant
func (s *Setting) Type() Type {
	return s.Value.Type()
}

// Group returns the group the setting belongs to, or nil before NewPack.
func (s *Setting) Group() *Group {
	return s.group
}

// Key returns the persistent key "<group>:<setting>".
func (s *Setting) Key() string {
	if s.group == nil {
		return s.ID
	}
	return s.group.ID + KeySeparator + s.ID
}

// Group is an ordered collection of related settings
type Group struct {
	ID       string
	Label    string
	Settings []*Setting
}
