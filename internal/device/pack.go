// Package device declares the settings registry of this device.
package device

import (
	"github.com/nvsettings/nvsettings/internal/settings"
)

// Theme options, in form index order
var Themes = []string{"Light", "Dark", "Auto"}

// NewPack builds a fresh registry. h may be nil.
func NewPack(h settings.Handler, opts ...settings.Option) (*settings.Pack, error) {
	groups := []*settings.Group{
		{
			ID:    "net",
			Label: "Network",
			Settings: []*settings.Setting{
				{ID: "hostname", Label: "Hostname", Value: &settings.Text{Def: "nvsettings", MaxLen: 32}},
				{ID: "dhcp", Label: "Use DHCP", Value: &settings.Bool{Def: true}},
				{ID: "port", Label: "HTTP port", Value: &settings.Number{Def: 80, Min: 1, Max: 65535}},
			},
		},
		{
			ID:    "disp",
			Label: "Display",
			Settings: []*settings.Setting{
				{ID: "brightness", Label: "Brightness", Value: &settings.Number{Def: 70, Min: 0, Max: 100}},
				{ID: "theme", Label: "Theme", Value: &settings.OneOf{Def: 2, Options: Themes}},
				{ID: "accent", Label: "Accent color", Value: &settings.Color{Def: settings.RGBW{R: 0x00, G: 0x7a, B: 0xcc}}},
				// no standby hardware on this revision
				{ID: "standby", Label: "Standby", Disabled: true, Value: &settings.Bool{Def: false}},
			},
		},
		{
			ID:    "time",
			Label: "Time",
			Settings: []*settings.Setting{
				{ID: "tz", Label: "Timezone", Value: &settings.Timezone{Def: "UTC0", MaxLen: 64}},
				{ID: "now", Label: "Date and time", Value: &settings.DateTime{}},
				{ID: "alarm", Label: "Alarm", Value: &settings.Time{Def: settings.TimeOfDay{Hour: 7, Minute: 0}}},
				{ID: "holiday", Label: "Next holiday", Value: &settings.Date{Def: settings.CalendarDate{Day: 1, Month: 1, Year: 2026}}},
			},
		},
	}

	if h != nil {
		opts = append(opts, settings.WithHandler(h))
	}
	return settings.NewPack(groups, opts...)
}
