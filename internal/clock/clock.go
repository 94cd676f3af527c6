// Package clock reads and sets the device wall clock. DateTime
// settings are backed by it instead of the persistent store.
package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned by Set on platforms that cannot change
// the system clock.
var ErrUnsupported = errors.New("clock: setting the system time is not supported on this platform")

// Clock is the wall clock side-channel
type Clock interface {
	// Now returns the current local time.
	Now() time.Time

	// Set changes the current time. Seconds below the minute are kept
	// as given.
	Set(t time.Time) error
}

// System is the host clock. Writes are only attempted when AllowSet is
// true; otherwise Set logs the skipped write and succeeds, so hosts
// without the privilege to change time can still save settings.
type System struct {
	Location *time.Location
	AllowSet bool
	Logger   *logrus.Logger
}

// Now returns the current time in s.Location (local time when nil).
func (s *System) Now() time.Time {
	now := time.Now()
	if s.Location != nil {
		return now.In(s.Location)
	}
	return now.Local()
}

// Set changes the system clock.
func (s *System) Set(t time.Time) error {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if !s.AllowSet {
		logger.WithField("time", t.Format(time.RFC3339)).Debug("Clock write disabled, skipping")
		return nil
	}
	if err := setSystemTime(t); err != nil {
		return err
	}
	logger.WithField("time", t.Format(time.RFC3339)).Info("System time updated")
	return nil
}

// Fake is a settable clock for tests. The zero value reads as the zero
// time.
type Fake struct {
	mu  sync.Mutex
	now time.Time
	err error
	set []time.Time
}

// NewFake returns a Fake reading now
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set records t and makes it the current time, unless FailSet was called.
func (f *Fake) Set(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.now = t
	f.set = append(f.set, t)
	return nil
}

// Advance moves the fake time forward by d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// FailSet makes every following Set return err
func (f *Fake) FailSet(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Sets returns every time passed to a successful Set
func (f *Fake) Sets() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.set))
	copy(out, f.set)
	return out
}
