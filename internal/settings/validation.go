package settings

import (
	"time"
	"unicode/utf8"
)

// ApplyDefaults copies every setting's default into its value.
// Callbacks are not fired.
func (p *Pack) ApplyDefaults() {
	now := p.now()
	p.ForEach(func(_ *Group, s *Setting) {
		s.applyDefault(now)
	})
}

func (s *Setting) applyDefault(now time.Time) {
	switch v := s.Value.(type) {
	case *Bool:
		v.Val = v.Def
	case *Number:
		v.Val = v.Def
	case *OneOf:
		v.Val = v.Def
	case *Text:
		v.Val = truncate(v.Def, v.MaxLen)
	case *Time:
		v.Val = v.Def
	case *Date:
		v.Val = v.Def
	case *DateTime:
		v.Sync(now)
	case *Timezone:
		v.Val = truncate(v.Def, v.MaxLen)
	case *Color:
		v.Val = v.Def
	}
}

// The setters below never return an error. An invalid candidate, or a
// setter called for another variant, leaves the value unchanged and
// reports false. A committed value fires OnSet before returning true.

// SetBool assigns a boolean unconditionally.
func (s *Setting) SetBool(val bool) bool {
	v, ok := s.Value.(*Bool)
	if !ok {
		return false
	}
	v.Val = val
	return s.committed()
}

// SetNumber assigns val if it lies within [Min, Max].
func (s *Setting) SetNumber(val int32) bool {
	v, ok := s.Value.(*Number)
	if !ok || val < v.Min || val > v.Max {
		return false
	}
	v.Val = val
	return s.committed()
}

// SetOneOf selects the option at index.
func (s *Setting) SetOneOf(index int) bool {
	v, ok := s.Value.(*OneOf)
	if !ok || index < 0 || index >= len(v.Options) {
		return false
	}
	v.Val = index
	return s.committed()
}

// SetText stores text truncated to MaxLen bytes.
func (s *Setting) SetText(text string) bool {
	v, ok := s.Value.(*Text)
	if !ok {
		return false
	}
	v.Val = truncate(text, v.MaxLen)
	return s.committed()
}

// SetTimezone stores tz truncated to MaxLen bytes.
func (s *Setting) SetTimezone(tz string) bool {
	v, ok := s.Value.(*Timezone)
	if !ok {
		return false
	}
	v.Val = truncate(tz, v.MaxLen)
	return s.committed()
}

// SetTime copies t without range checks.
func (s *Setting) SetTime(t TimeOfDay) bool {
	v, ok := s.Value.(*Time)
	if !ok {
		return false
	}
	v.Val = t
	return s.committed()
}

// SetDate copies d without range checks.
func (s *Setting) SetDate(d CalendarDate) bool {
	v, ok := s.Value.(*Date)
	if !ok {
		return false
	}
	v.Val = d
	return s.committed()
}

// SetDateTime copies the in-memory value. The system clock is only
// changed when the pack is saved.
func (s *Setting) SetDateTime(t TimeOfDay, d CalendarDate) bool {
	v, ok := s.Value.(*DateTime)
	if !ok {
		return false
	}
	v.Time = t
	v.Date = d
	v.pending = true
	return s.committed()
}

// SetColor replaces the color.
func (s *Setting) SetColor(c RGBW) bool {
	v, ok := s.Value.(*Color)
	if !ok {
		return false
	}
	v.Val = c
	return s.committed()
}

func (s *Setting) committed() bool {
	if s.OnSet != nil {
		s.OnSet(s)
	}
	return true
}

// truncate cuts text to at most max bytes without splitting a rune.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	if max <= 0 {
		return ""
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Sync sets the value from t in t's location and drops any pending
// assignment.
func (d *DateTime) Sync(t time.Time) {
	d.Time = TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
	d.Date = CalendarDate{Day: t.Day(), Month: int(t.Month()), Year: t.Year()}
	d.pending = false
}

// Pending reports whether SetDateTime assigned a value that has not
// reached the clock yet.
func (d *DateTime) Pending() bool {
	return d.pending
}

// In returns the value as a time in loc, seconds zeroed. Daylight
// saving is resolved by loc.
func (d *DateTime) In(loc *time.Location) time.Time {
	return time.Date(d.Date.Year, time.Month(d.Date.Month), d.Date.Day, d.Time.Hour, d.Time.Minute, 0, 0, loc)
}

// ValidTime reports whether t is a real time of day. The setters do
// not enforce it.
func ValidTime(t TimeOfDay) bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// ValidDate reports whether d names an existing day. The setters do
// not enforce it.
func ValidDate(d CalendarDate) bool {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Year < 0 || d.Year > 0xFFFF {
		return false
	}
	last := time.Date(d.Year, time.Month(d.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return d.Day <= last
}
