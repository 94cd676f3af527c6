package settings

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("setting not found")
	ErrInvalidPack = errors.New("invalid settings pack")
)

// Handler receives a notification after a bulk change of the pack:
// a form update, an erase or a single persisted write.
type Handler interface {
	SettingsChanged(p *Pack)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(p *Pack)

// SettingsChanged calls f(p)
func (f HandlerFunc) SettingsChanged(p *Pack) { f(p) }

// NowFunc returns the current wall clock time for DateTime settings
type NowFunc func() time.Time

// Pack is the whole registry: an ordered list of groups fixed at construction.
type Pack struct {
	Groups []*Group

	handler Handler
	now     NowFunc
}

// Option configures a Pack
type Option func(*Pack)

// WithHandler registers the change handler. Only one handler exists per pack.
func WithHandler(h Handler) Option {
	return func(p *Pack) { p.handler = h }
}

// WithNow sets the time source used to resync DateTime settings.
func WithNow(now NowFunc) Option {
	return func(p *Pack) { p.now = now }
}

// NewPack validates the groups and links every setting to its group.
// The returned pack must not be reshaped afterwards; only values change.
func NewPack(groups []*Group, opts ...Option) (*Pack, error) {
	p := &Pack{Groups: groups, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}

	groupIDs := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g == nil || g.ID == "" {
			return nil, fmt.Errorf("%w: group without id", ErrInvalidPack)
		}
		if _, dup := groupIDs[g.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate group %q", ErrInvalidPack, g.ID)
		}
		groupIDs[g.ID] = struct{}{}

		ids := make(map[string]struct{}, len(g.Settings))
		for _, s := range g.Settings {
			if s == nil || s.ID == "" {
				return nil, fmt.Errorf("%w: setting without id in group %q", ErrInvalidPack, g.ID)
			}
			if _, dup := ids[s.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate setting %q in group %q", ErrInvalidPack, s.ID, g.ID)
			}
			ids[s.ID] = struct{}{}
			if err := checkVariant(s); err != nil {
				return nil, fmt.Errorf("%w: %s:%s: %v", ErrInvalidPack, g.ID, s.ID, err)
			}
			s.group = g
		}
	}
	return p, nil
}

// MaxOptions bounds a OneOf; the selected index is stored as an i8
const MaxOptions = 128

func checkVariant(s *Setting) error {
	switch v := s.Value.(type) {
	case nil:
		return errors.New("no value")
	case *Number:
		if v.Min > v.Max {
			return fmt.Errorf("range [%d,%d] is empty", v.Min, v.Max)
		}
	case *OneOf:
		if len(v.Options) == 0 {
			return errors.New("no options")
		}
		if len(v.Options) > MaxOptions {
			return fmt.Errorf("%d options exceed %d", len(v.Options), MaxOptions)
		}
		if v.Def < 0 || v.Def >= len(v.Options) {
			return fmt.Errorf("default option %d out of range", v.Def)
		}
	case *Text:
		if v.MaxLen <= 0 {
			return errors.New("text without max length")
		}
	case *Timezone:
		if v.MaxLen <= 0 {
			return errors.New("timezone without max length")
		}
	}
	return nil
}

// Find returns the setting identified by group and setting id.
func (p *Pack) Find(groupID, settingID string) (*Setting, error) {
	for _, g := range p.Groups {
		if g.ID != groupID {
			continue
		}
		for _, s := range g.Settings {
			if s.ID == settingID {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s%s%s", ErrNotFound, groupID, KeySeparator, settingID)
}

// ForEach visits every setting in declaration order.
func (p *Pack) ForEach(fn func(g *Group, s *Setting)) {
	for _, g := range p.Groups {
		for _, s := range g.Settings {
			fn(g, s)
		}
	}
}

// Len returns the number of settings in the pack
func (p *Pack) Len() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Settings)
	}
	return n
}

// Notify calls the registered handler, if any.
func (p *Pack) Notify() {
	if p.handler != nil {
		p.handler.SettingsChanged(p)
	}
}

// Now returns the pack's current time
func (p *Pack) Now() time.Time {
	return p.now()
}

// SyncDateTimes refreshes every DateTime setting from the pack's time
// source without firing callbacks.
func (p *Pack) SyncDateTimes() {
	now := p.now()
	p.ForEach(func(_ *Group, s *Setting) {
		if dt, ok := s.Value.(*DateTime); ok {
			dt.Sync(now)
		}
	})
}
