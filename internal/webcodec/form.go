package webcodec

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nvsettings/nvsettings/internal/settings"
)

var (
	ErrMalformed   = errors.New("malformed value")
	ErrRejected    = errors.New("value rejected")
	ErrDisabled    = errors.New("setting is disabled")
	ErrUnsupported = errors.New("unsupported setting type")
)

// boolOn is the only form value that sets a boolean
const boolOn = "on"

// Result summarises one form batch. Changed counts assignments the
// setters accepted. Rejected counts values refused by a setter or aimed
// at a disabled setting. Malformed counts values that did not parse.
type Result struct {
	Changed   int `json:"changed"`
	Rejected  int `json:"rejected"`
	Malformed int `json:"malformed"`
}

func (r *Result) add(err error) {
	switch {
	case err == nil:
		r.Changed++
	case errors.Is(err, ErrRejected), errors.Is(err, ErrDisabled):
		r.Rejected++
	default:
		r.Malformed++
	}
}

// ParseForm applies a submitted form to every enabled setting of p.
// Fields are keyed "group:setting". A BOOL whose field is absent is
// set to false, as an unchecked checkbox is never submitted; any other
// absent field is left alone. DateTime settings are resynced from the
// clock first. The pack handler fires once afterwards.
func ParseForm(p *settings.Pack, values url.Values) Result {
	p.SyncDateTimes()

	var res Result
	p.ForEach(func(_ *settings.Group, s *settings.Setting) {
		if s.Disabled {
			return
		}
		raw, ok := values[s.Key()]
		if !ok || len(raw) == 0 {
			if _, isBool := s.Value.(*settings.Bool); isBool {
				res.add(Assign(s, ""))
			}
			return
		}
		res.add(Assign(s, raw[0]))
	})
	p.Notify()
	return res
}

// ParseQuery is ParseForm for a raw URL-encoded body
func ParseQuery(p *settings.Pack, raw string) (Result, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ParseForm(p, values), nil
}

// ApplyValues assigns only the named fields. Unlike ParseForm, absent
// booleans are left untouched. Unknown keys fail the call before any
// value is assigned. The pack handler fires once if anything changed.
func ApplyValues(p *settings.Pack, values url.Values) (Result, error) {
	targets := make(map[*settings.Setting]string, len(values))
	for key, raw := range values {
		groupID, settingID, ok := strings.Cut(key, settings.KeySeparator)
		if !ok {
			return Result{}, fmt.Errorf("%w: key %q is not group%ssetting", ErrMalformed, key, settings.KeySeparator)
		}
		s, err := p.Find(groupID, settingID)
		if err != nil {
			return Result{}, err
		}
		if len(raw) > 0 {
			targets[s] = raw[0]
		}
	}

	p.SyncDateTimes()

	var res Result
	p.ForEach(func(_ *settings.Group, s *settings.Setting) {
		raw, ok := targets[s]
		if !ok {
			return
		}
		if s.Disabled {
			res.add(fmt.Errorf("%w: %s", ErrDisabled, s.Key()))
			return
		}
		res.add(Assign(s, raw))
	})
	if res.Changed > 0 {
		p.Notify()
	}
	return res, nil
}

// Assign parses raw in the form encoding of s and hands it to the
// matching setter. It returns ErrMalformed when raw does not parse and
// ErrRejected when the setter refuses the value.
func Assign(s *settings.Setting, raw string) error {
	var accepted bool
	switch s.Value.(type) {
	case *settings.Bool:
		accepted = s.SetBool(raw == boolOn)
	case *settings.Number:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return malformed(s, raw)
		}
		accepted = s.SetNumber(int32(n))
	case *settings.OneOf:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return malformed(s, raw)
		}
		accepted = s.SetOneOf(n)
	case *settings.Text:
		accepted = s.SetText(raw)
	case *settings.Timezone:
		accepted = s.SetTimezone(raw)
	case *settings.Time:
		var t settings.TimeOfDay
		if _, err := fmt.Sscanf(raw, "%d:%d", &t.Hour, &t.Minute); err != nil {
			return malformed(s, raw)
		}
		accepted = s.SetTime(t)
	case *settings.Date:
		var d settings.CalendarDate
		if _, err := fmt.Sscanf(raw, "%d-%d-%d", &d.Year, &d.Month, &d.Day); err != nil {
			return malformed(s, raw)
		}
		accepted = s.SetDate(d)
	case *settings.DateTime:
		var (
			t settings.TimeOfDay
			d settings.CalendarDate
		)
		if _, err := fmt.Sscanf(raw, "%d-%d-%dT%d:%d", &d.Year, &d.Month, &d.Day, &t.Hour, &t.Minute); err != nil {
			return malformed(s, raw)
		}
		accepted = s.SetDateTime(t, d)
	case *settings.Color:
		// first character is the '#' prefix
		if len(raw) < 2 {
			return malformed(s, raw)
		}
		v, err := strconv.ParseUint(raw[1:], 16, 32)
		if err != nil {
			return malformed(s, raw)
		}
		accepted = s.SetColor(settings.RGBWFromCombined(uint32(v)))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, s.Key())
	}

	if !accepted {
		return fmt.Errorf("%w: %s=%q", ErrRejected, s.Key(), raw)
	}
	return nil
}

func malformed(s *settings.Setting, raw string) error {
	return fmt.Errorf("%w for %s %s: %q", ErrMalformed, s.Type(), s.Key(), raw)
}
