// Package webcodec converts a settings pack to and from its external
// representation: a JSON/CBOR/YAML document for reading and
// URL-encoded form fields for writing.
package webcodec

import (
	"github.com/nvsettings/nvsettings/internal/settings"
)

// Document is the projection of a whole pack
type Document struct {
	Groups []GroupDoc `json:"groups" cbor:"groups" yaml:"groups"`
}

// GroupDoc is the projection of one group
type GroupDoc struct {
	ID       string       `json:"id" cbor:"id" yaml:"id"`
	Label    string       `json:"label" cbor:"label" yaml:"label"`
	Settings []SettingDoc `json:"settings" cbor:"settings" yaml:"settings"`
}

// SettingDoc is the projection of one setting. Only the fields of the
// setting's type are present. TIME and DATE defaults are given in their
// form encoding, "hh:mm" and "yyyy-mm-dd".
type SettingDoc struct {
	ID       string        `json:"id" cbor:"id" yaml:"id"`
	Label    string        `json:"label" cbor:"label" yaml:"label"`
	Type     settings.Type `json:"type" cbor:"type" yaml:"type"`
	Disabled bool          `json:"disabled" cbor:"disabled" yaml:"disabled"`

	Val     interface{} `json:"val,omitempty" cbor:"val,omitempty" yaml:"val,omitempty"`
	Def     interface{} `json:"def,omitempty" cbor:"def,omitempty" yaml:"def,omitempty"`
	Min     *int32      `json:"min,omitempty" cbor:"min,omitempty" yaml:"min,omitempty"`
	Max     *int32      `json:"max,omitempty" cbor:"max,omitempty" yaml:"max,omitempty"`
	Options []string    `json:"options,omitempty" cbor:"options,omitempty" yaml:"options,omitempty"`
	Len     *int        `json:"len,omitempty" cbor:"len,omitempty" yaml:"len,omitempty"`

	Hour   *int `json:"hh,omitempty" cbor:"hh,omitempty" yaml:"hh,omitempty"`
	Minute *int `json:"mm,omitempty" cbor:"mm,omitempty" yaml:"mm,omitempty"`
	Day    *int `json:"day,omitempty" cbor:"day,omitempty" yaml:"day,omitempty"`
	Month  *int `json:"month,omitempty" cbor:"month,omitempty" yaml:"month,omitempty"`
	Year   *int `json:"year,omitempty" cbor:"year,omitempty" yaml:"year,omitempty"`
}

// Project builds the document for p. DateTime settings are resynced
// from the pack's clock first; nothing else is modified.
func Project(p *settings.Pack) *Document {
	p.SyncDateTimes()

	doc := &Document{Groups: make([]GroupDoc, 0, len(p.Groups))}
	for _, g := range p.Groups {
		gd := GroupDoc{
			ID:       g.ID,
			Label:    g.Label,
			Settings: make([]SettingDoc, 0, len(g.Settings)),
		}
		for _, s := range g.Settings {
			gd.Settings = append(gd.Settings, ProjectSetting(s))
		}
		doc.Groups = append(doc.Groups, gd)
	}
	return doc
}

// ProjectSetting builds the document for a single setting as it is,
// without resyncing DateTime values.
func ProjectSetting(s *settings.Setting) SettingDoc {
	doc := SettingDoc{
		ID:       s.ID,
		Label:    s.Label,
		Type:     s.Type(),
		Disabled: s.Disabled,
	}

	switch v := s.Value.(type) {
	case *settings.Bool:
		doc.Val, doc.Def = v.Val, v.Def
	case *settings.Number:
		doc.Val, doc.Def = v.Val, v.Def
		doc.Min, doc.Max = ptr(v.Min), ptr(v.Max)
	case *settings.OneOf:
		doc.Val, doc.Def = v.Val, v.Def
		doc.Options = v.Options
	case *settings.Text:
		doc.Val, doc.Def = v.Val, v.Def
		doc.Len = ptr(v.MaxLen)
	case *settings.Timezone:
		doc.Val, doc.Def = v.Val, v.Def
		doc.Len = ptr(v.MaxLen)
	case *settings.Time:
		doc.Hour, doc.Minute = ptr(v.Val.Hour), ptr(v.Val.Minute)
		doc.Def = v.Def.String()
	case *settings.Date:
		doc.Day, doc.Month, doc.Year = ptr(v.Val.Day), ptr(v.Val.Month), ptr(v.Val.Year)
		doc.Def = v.Def.String()
	case *settings.DateTime:
		doc.Hour, doc.Minute = ptr(v.Time.Hour), ptr(v.Time.Minute)
		doc.Day, doc.Month, doc.Year = ptr(v.Date.Day), ptr(v.Date.Month), ptr(v.Date.Year)
	case *settings.Color:
		doc.Val, doc.Def = v.Val.Hex(), v.Def.Hex()
	}
	return doc
}

func ptr[T any](v T) *T {
	return &v
}
