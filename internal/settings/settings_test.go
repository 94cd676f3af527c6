package settings

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPack(t *testing.T, opts ...Option) *Pack {
	t.Helper()
	groups := []*Group{
		{
			ID:    "net",
			Label: "Network",
			Settings: []*Setting{
				{ID: "hostname", Label: "Hostname", Value: &Text{Def: "device", MaxLen: 8}},
				{ID: "dhcp", Label: "DHCP", Value: &Bool{Def: true}},
				{ID: "port", Label: "Port", Value: &Number{Def: 80, Min: 1, Max: 1024}},
			},
		},
		{
			ID:    "disp",
			Label: "Display",
			Settings: []*Setting{
				{ID: "theme", Label: "Theme", Value: &OneOf{Def: 1, Options: []string{"light", "dark", "auto"}}},
				{ID: "accent", Label: "Accent", Value: &Color{Def: RGBW{R: 0x10, G: 0x20, B: 0x30}}},
				{ID: "alarm", Label: "Alarm", Value: &Time{Def: TimeOfDay{Hour: 7, Minute: 30}}},
				{ID: "holiday", Label: "Holiday", Value: &Date{Def: CalendarDate{Day: 24, Month: 12, Year: 2025}}},
				{ID: "now", Label: "Now", Value: &DateTime{}},
				{ID: "tz", Label: "Timezone", Value: &Timezone{Def: "CET-1CEST", MaxLen: 32}},
			},
		},
	}
	p, err := NewPack(groups, opts...)
	require.NoError(t, err)
	return p
}

func mustFind(t *testing.T, p *Pack, group, id string) *Setting {
	t.Helper()
	s, err := p.Find(group, id)
	require.NoError(t, err)
	return s
}

func TestNewPackValidation(t *testing.T) {
	tests := []struct {
		name   string
		groups []*Group
	}{
		{"group without id", []*Group{{Label: "x"}}},
		{"duplicate group", []*Group{{ID: "a"}, {ID: "a"}}},
		{"setting without id", []*Group{{ID: "a", Settings: []*Setting{{Value: &Bool{}}}}}},
		{"duplicate setting", []*Group{{ID: "a", Settings: []*Setting{
			{ID: "x", Value: &Bool{}},
			{ID: "x", Value: &Bool{}},
		}}}},
		{"nil value", []*Group{{ID: "a", Settings: []*Setting{{ID: "x"}}}}},
		{"empty range", []*Group{{ID: "a", Settings: []*Setting{{ID: "x", Value: &Number{Min: 5, Max: 1}}}}}},
		{"oneof without options", []*Group{{ID: "a", Settings: []*Setting{{ID: "x", Value: &OneOf{}}}}}},
		{"oneof default out of range", []*Group{{ID: "a", Settings: []*Setting{{ID: "x", Value: &OneOf{Def: 2, Options: []string{"a"}}}}}}},
		{"text without max length", []*Group{{ID: "a", Settings: []*Setting{{ID: "x", Value: &Text{}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPack(tt.groups)
			assert.ErrorIs(t, err, ErrInvalidPack)
		})
	}

	// the widest OneOf still fits the stored index
	_, err := NewPack([]*Group{{ID: "a", Settings: []*Setting{{ID: "x", Value: &OneOf{Options: make([]string, MaxOptions)}}}}})
	assert.NoError(t, err)
	_, err = NewPack([]*Group{{ID: "a", Settings: []*Setting{{ID: "x", Value: &OneOf{Options: make([]string, MaxOptions+1)}}}}})
	assert.ErrorIs(t, err, ErrInvalidPack)

	// Same setting id in different groups is allowed
	_, err = NewPack([]*Group{
		{ID: "a", Settings: []*Setting{{ID: "x", Value: &Bool{}}}},
		{ID: "b", Settings: []*Setting{{ID: "x", Value: &Bool{}}}},
	})
	assert.NoError(t, err)
}

func TestFind(t *testing.T) {
	p := newTestPack(t)

	s, err := p.Find("net", "hostname")
	require.NoError(t, err)
	assert.Equal(t, "Hostname", s.Label)
	assert.Equal(t, "net", s.Group().ID)
	assert.Equal(t, TypeText, s.Type())

	_, err = p.Find("net", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Find("missing", "hostname")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForEachOrder(t *testing.T) {
	p := newTestPack(t)

	var keys []string
	p.ForEach(func(g *Group, s *Setting) {
		keys = append(keys, s.Key())
	})

	assert.Equal(t, []string{
		"net:hostname", "net:dhcp", "net:port",
		"disp:theme", "disp:accent", "disp:alarm", "disp:holiday", "disp:now", "disp:tz",
	}, keys)
	assert.Equal(t, 9, p.Len())
}

func TestApplyDefaults(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	p := newTestPack(t, WithNow(func() time.Time { return fixed }))

	p.ApplyDefaults()

	assert.Equal(t, "device", mustFind(t, p, "net", "hostname").Value.(*Text).Val)
	assert.True(t, mustFind(t, p, "net", "dhcp").Value.(*Bool).Val)
	assert.Equal(t, int32(80), mustFind(t, p, "net", "port").Value.(*Number).Val)
	assert.Equal(t, 1, mustFind(t, p, "disp", "theme").Value.(*OneOf).Val)
	assert.Equal(t, RGBW{R: 0x10, G: 0x20, B: 0x30}, mustFind(t, p, "disp", "accent").Value.(*Color).Val)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 30}, mustFind(t, p, "disp", "alarm").Value.(*Time).Val)
	assert.Equal(t, CalendarDate{Day: 24, Month: 12, Year: 2025}, mustFind(t, p, "disp", "holiday").Value.(*Date).Val)
	assert.Equal(t, "CET-1CEST", mustFind(t, p, "disp", "tz").Value.(*Timezone).Val)

	dt := mustFind(t, p, "disp", "now").Value.(*DateTime)
	assert.Equal(t, TimeOfDay{Hour: 15, Minute: 9}, dt.Time)
	assert.Equal(t, CalendarDate{Day: 14, Month: 3, Year: 2025}, dt.Date)
}

func TestApplyDefaultsTruncatesText(t *testing.T) {
	p, err := NewPack([]*Group{{ID: "g", Settings: []*Setting{
		{ID: "t", Value: &Text{Def: "a-very-long-default", MaxLen: 6}},
	}}})
	require.NoError(t, err)

	p.ApplyDefaults()
	assert.Equal(t, "a-very", p.Groups[0].Settings[0].Value.(*Text).Val)
}

func TestSetNumber(t *testing.T) {
	p := newTestPack(t)
	p.ApplyDefaults()
	s := mustFind(t, p, "net", "port")
	num := s.Value.(*Number)

	for _, v := range []int32{1, 443, 1024} {
		assert.True(t, s.SetNumber(v))
		assert.Equal(t, v, num.Val)
	}

	assert.True(t, s.SetNumber(8))
	for _, v := range []int32{0, -1, 1025, 1 << 30} {
		assert.False(t, s.SetNumber(v))
		assert.Equal(t, int32(8), num.Val, "value must be unchanged after %d", v)
	}
}

func TestSetOneOf(t *testing.T) {
	p := newTestPack(t)
	p.ApplyDefaults()
	s := mustFind(t, p, "disp", "theme")
	oneof := s.Value.(*OneOf)

	assert.True(t, s.SetOneOf(0))
	assert.Equal(t, "light", oneof.Label())
	assert.True(t, s.SetOneOf(2))
	assert.Equal(t, 2, oneof.Val)

	assert.False(t, s.SetOneOf(3))
	assert.False(t, s.SetOneOf(-1))
	assert.Equal(t, 2, oneof.Val)
}

func TestSetTextTruncates(t *testing.T) {
	p := newTestPack(t)
	s := mustFind(t, p, "net", "hostname")

	assert.True(t, s.SetText("kitchen-sensor"))
	assert.Equal(t, "kitchen-", s.Value.(*Text).Val)

	// A multi-byte rune straddling the limit is dropped entirely
	assert.True(t, s.SetText("abcdefgé"))
	assert.Equal(t, "abcdefg", s.Value.(*Text).Val)

	assert.True(t, s.SetText(""))
	assert.Equal(t, "", s.Value.(*Text).Val)
}

func TestSetTimeAndDateAreNotRangeChecked(t *testing.T) {
	p := newTestPack(t)

	alarm := mustFind(t, p, "disp", "alarm")
	assert.True(t, alarm.SetTime(TimeOfDay{Hour: 25, Minute: 61}))
	assert.Equal(t, TimeOfDay{Hour: 25, Minute: 61}, alarm.Value.(*Time).Val)
	assert.False(t, ValidTime(alarm.Value.(*Time).Val))

	holiday := mustFind(t, p, "disp", "holiday")
	assert.True(t, holiday.SetDate(CalendarDate{Day: 31, Month: 2, Year: 2025}))
	assert.False(t, ValidDate(holiday.Value.(*Date).Val))
}

func TestSetterWrongVariant(t *testing.T) {
	p := newTestPack(t)
	p.ApplyDefaults()
	s := mustFind(t, p, "net", "dhcp")

	assert.False(t, s.SetNumber(1))
	assert.False(t, s.SetText("x"))
	assert.False(t, s.SetColor(RGBW{}))
	assert.True(t, s.Value.(*Bool).Val)
}

func TestOnSetCallback(t *testing.T) {
	p := newTestPack(t)
	p.ApplyDefaults()
	s := mustFind(t, p, "net", "port")

	var seen []int32
	s.OnSet = func(cb *Setting) {
		// the value is committed before the callback runs
		seen = append(seen, cb.Value.(*Number).Val)
	}

	s.SetNumber(22)
	s.SetNumber(5000)
	s.SetNumber(23)

	assert.Equal(t, []int32{22, 23}, seen)
}

func TestNotify(t *testing.T) {
	calls := 0
	var got *Pack
	p := newTestPack(t, WithHandler(HandlerFunc(func(p *Pack) {
		calls++
		got = p
	})))

	p.Notify()
	assert.Equal(t, 1, calls)
	assert.Same(t, p, got)

	// without a handler Notify is a no-op
	newTestPack(t).Notify()
}

func TestDeriveKeys(t *testing.T) {
	p := newTestPack(t)

	keys, err := DeriveKeys(p, 15)
	require.NoError(t, err)
	assert.Equal(t, p.Len(), keys.Len())
	assert.Equal(t, "net:hostname", keys.Of(mustFind(t, p, "net", "hostname")))
	assert.Equal(t, "disp:holiday", keys.Of(mustFind(t, p, "disp", "holiday")))
}

func TestDeriveKeysTooLong(t *testing.T) {
	p, err := NewPack([]*Group{
		{ID: "net", Settings: []*Setting{{ID: "ok", Value: &Bool{}}}},
		{ID: "network", Settings: []*Setting{{ID: "hostname_long", Value: &Bool{}}}},
	})
	require.NoError(t, err)

	keys, err := DeriveKeys(p, 15)
	assert.True(t, errors.Is(err, ErrKeyTooLong))
	assert.Contains(t, err.Error(), "network:hostname_long")
	assert.Equal(t, 0, keys.Len())

	// exactly at the limit is accepted
	p, err = NewPack([]*Group{{ID: "abcdefg", Settings: []*Setting{{ID: "1234567", Value: &Bool{}}}}})
	require.NoError(t, err)
	_, err = DeriveKeys(p, 15)
	assert.NoError(t, err)
}

func TestRGBWCombined(t *testing.T) {
	c := RGBW{R: 0xAA, G: 0xBB, B: 0xCC, W: 0xDD}
	assert.Equal(t, uint32(0xDDAABBCC), c.Combined())
	assert.Equal(t, c, RGBWFromCombined(c.Combined()))
	assert.Equal(t, "#ddaabbcc", c.Hex())

	c.W = 0
	assert.Equal(t, "#aabbcc", c.Hex())
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate(CalendarDate{Day: 29, Month: 2, Year: 2024}))
	assert.False(t, ValidDate(CalendarDate{Day: 29, Month: 2, Year: 2025}))
	assert.False(t, ValidDate(CalendarDate{Day: 1, Month: 13, Year: 2025}))
	assert.False(t, ValidDate(CalendarDate{}))
}

func TestDisplay(t *testing.T) {
	p := newTestPack(t, WithNow(func() time.Time {
		return time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)
	}))
	p.ApplyDefaults()

	var lines []string
	p.ForEach(func(_ *Group, s *Setting) {
		lines = append(lines, s.Label+"="+s.Display())
	})

	assert.Equal(t, strings.Join([]string{
		"Hostname=device",
		"DHCP=ENABLED",
		"Port=80",
		"Theme=dark",
		"Accent=#102030",
		"Alarm=07:30",
		"Holiday=24-12-2025",
		"Now=03:04 02-01-2025",
		"Timezone=CET-1CEST",
	}, "\n"), strings.Join(lines, "\n"))
}
