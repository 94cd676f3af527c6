// Package persist reads and writes a settings pack through an NVS
// store, packing every variant into the narrowest primitive that holds
// it. DateTime settings are routed to the clock instead of the store.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvsettings/nvsettings/internal/clock"
	"github.com/nvsettings/nvsettings/internal/metrics"
	"github.com/nvsettings/nvsettings/internal/nvs"
	"github.com/nvsettings/nvsettings/internal/settings"
	"github.com/sirupsen/logrus"
)

// DefaultNamespace is the NVS namespace holding the settings
const DefaultNamespace = "settings_nvs"

var (
	ErrStoreOpen   = errors.New("failed to open settings store")
	ErrStoreRead   = errors.New("failed to read setting")
	ErrStoreWrite  = errors.New("failed to write setting")
	ErrStoreCommit = errors.New("failed to commit settings")
	ErrStoreErase  = errors.New("failed to erase settings")
	ErrClockSet    = errors.New("failed to set system clock")
	ErrUnsupported = errors.New("unsupported setting type")
)

// Codec moves pack values between memory and the store
type Codec struct {
	store     nvs.Store
	clock     clock.Clock
	namespace string
	maxKeyLen int
	logger    *logrus.Logger
	metrics   metrics.Manager
}

// Option configures a Codec
type Option func(*Codec)

// WithNamespace overrides DefaultNamespace
func WithNamespace(ns string) Option {
	return func(c *Codec) { c.namespace = ns }
}

// WithMaxKeyLen overrides the key limit reported by the store
func WithMaxKeyLen(n int) Option {
	return func(c *Codec) { c.maxKeyLen = n }
}

// WithLogger sets the logger
func WithLogger(l *logrus.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m metrics.Manager) Option {
	return func(c *Codec) { c.metrics = m }
}

// New creates a codec over store. clk backs DateTime settings.
func New(store nvs.Store, clk clock.Clock, opts ...Option) *Codec {
	c := &Codec{
		store:     store,
		clock:     clk,
		namespace: DefaultNamespace,
		maxKeyLen: store.MaxKeyLen(),
		logger:    logrus.StandardLogger(),
		metrics:   metrics.NewManager(metrics.Config{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Namespace returns the NVS namespace used by the codec
func (c *Codec) Namespace() string {
	return c.namespace
}

// Load resets p to its defaults and overlays every value found in the
// store. Values are applied through the typed setters, so stored
// values that fail validation are dropped. Missing keys and unreadable
// values leave the default in place. A namespace that was never
// written is not an error.
func (c *Codec) Load(ctx context.Context, p *settings.Pack) (err error) {
	start := time.Now()
	defer func() { c.metrics.RecordStoreOperation("load", err == nil, time.Since(start)) }()

	p.ApplyDefaults()

	keys, err := settings.DeriveKeys(p, c.maxKeyLen)
	if err != nil {
		c.logger.WithError(err).Error("Settings key derivation failed")
		return err
	}

	h, err := c.store.Open(ctx, c.namespace, nvs.ReadOnly)
	if errors.Is(err, nvs.ErrNamespaceNotFound) {
		c.syncClock(p)
		c.logger.WithField("namespace", c.namespace).Info("No stored settings, using defaults")
		return nil
	}
	if err != nil {
		c.syncClock(p)
		c.logger.WithError(err).WithField("namespace", c.namespace).Warn("Settings store open failed, using defaults")
		return fmt.Errorf("%w: %w", ErrStoreOpen, err)
	}
	defer h.Close()

	loaded := 0
	p.ForEach(func(_ *settings.Group, s *settings.Setting) {
		key := keys.Of(s)
		found, rerr := c.read(h, key, s)
		switch {
		case rerr != nil:
			c.metrics.RecordKeyReadFailure(key)
			c.logger.WithError(rerr).WithField("key", key).Warn("Failed to read setting, keeping default")
		case found:
			loaded++
		}
	})

	c.logger.WithFields(logrus.Fields{
		"namespace": c.namespace,
		"loaded":    loaded,
		"settings":  p.Len(),
	}).Info("Settings loaded")
	return nil
}

// read loads one value. found is false when the key is absent.
func (c *Codec) read(h nvs.Handle, key string, s *settings.Setting) (found bool, err error) {
	var applied bool
	switch v := s.Value.(type) {
	case *settings.Bool:
		var raw int8
		if raw, err = h.GetI8(key); err == nil {
			applied = s.SetBool(raw != 0)
		}
	case *settings.Number:
		var raw int32
		if raw, err = h.GetI32(key); err == nil {
			applied = s.SetNumber(raw)
		}
	case *settings.OneOf:
		var raw int8
		if raw, err = h.GetI8(key); err == nil {
			applied = s.SetOneOf(int(raw))
		}
	case *settings.Text:
		var raw string
		if raw, err = h.GetStr(key, v.MaxLen); err == nil {
			applied = s.SetText(raw)
		}
	case *settings.Time:
		var raw uint16
		if raw, err = h.GetU16(key); err == nil {
			applied = s.SetTime(UnpackTime(raw))
		}
	case *settings.Date:
		var raw uint32
		if raw, err = h.GetU32(key); err == nil {
			applied = s.SetDate(UnpackDate(raw))
		}
	case *settings.DateTime:
		// current device time, never stored
		v.Sync(c.clock.Now())
		return false, nil
	case *settings.Timezone:
		var raw string
		if raw, err = h.GetStr(key, v.MaxLen); err == nil {
			applied = s.SetTimezone(raw)
		}
	case *settings.Color:
		var raw uint32
		if raw, err = h.GetU32(key); err == nil {
			applied = s.SetColor(settings.RGBWFromCombined(raw))
		}
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupported, s.Value)
	}

	if errors.Is(err, nvs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrStoreRead, key, err)
	}
	if !applied {
		c.metrics.RecordSetterRejection(string(s.Type()))
		c.logger.WithField("key", key).Debug("Stored value rejected by validation, keeping default")
	}
	return true, nil
}

// Save writes every setting in one transaction. Nothing is committed
// if any write fails. DateTime settings assigned since the last sync
// set the clock once the transaction is committed; the others are
// left alone so a stale copy never turns the clock back.
func (c *Codec) Save(ctx context.Context, p *settings.Pack) (err error) {
	start := time.Now()
	defer func() { c.metrics.RecordStoreOperation("save", err == nil, time.Since(start)) }()

	keys, err := settings.DeriveKeys(p, c.maxKeyLen)
	if err != nil {
		c.logger.WithError(err).Error("Settings key derivation failed")
		return err
	}

	h, err := c.store.Open(ctx, c.namespace, nvs.ReadWrite)
	if err != nil {
		c.logger.WithError(err).WithField("namespace", c.namespace).Error("Settings store open failed")
		return fmt.Errorf("%w: %w", ErrStoreOpen, err)
	}
	defer h.Close()

	var clockWrites []*settings.DateTime
	for _, g := range p.Groups {
		for _, s := range g.Settings {
			if dt, ok := s.Value.(*settings.DateTime); ok {
				if dt.Pending() {
					clockWrites = append(clockWrites, dt)
				}
				continue
			}
			key := keys.Of(s)
			if err := c.write(h, key, s); err != nil {
				c.logger.WithError(err).WithField("key", key).Error("Settings write failed, discarding batch")
				return err
			}
		}
	}

	if err := h.Commit(); err != nil {
		c.logger.WithError(err).Error("Settings commit failed")
		return fmt.Errorf("%w: %w", ErrStoreCommit, err)
	}

	for _, dt := range clockWrites {
		if err := c.setClock(dt); err != nil {
			return err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"namespace": c.namespace,
		"settings":  p.Len(),
	}).Info("Settings saved")
	return nil
}

// WriteSingle persists one setting in its own transaction and notifies
// the pack handler.
func (c *Codec) WriteSingle(ctx context.Context, p *settings.Pack, s *settings.Setting) (err error) {
	start := time.Now()
	defer func() { c.metrics.RecordStoreOperation("write", err == nil, time.Since(start)) }()

	key := s.Key()
	if len(key) > c.maxKeyLen {
		return fmt.Errorf("%w (%d > %d): %s", settings.ErrKeyTooLong, len(key), c.maxKeyLen, key)
	}

	if dt, ok := s.Value.(*settings.DateTime); ok {
		if err := c.setClock(dt); err != nil {
			return err
		}
		p.Notify()
		return nil
	}

	h, err := c.store.Open(ctx, c.namespace, nvs.ReadWrite)
	if err != nil {
		c.logger.WithError(err).WithField("namespace", c.namespace).Error("Settings store open failed")
		return fmt.Errorf("%w: %w", ErrStoreOpen, err)
	}
	defer h.Close()

	if err := c.write(h, key, s); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Setting write failed")
		return err
	}
	if err := h.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreCommit, err)
	}

	c.logger.WithField("key", key).Debug("Setting saved")
	p.Notify()
	return nil
}

func (c *Codec) write(h nvs.Handle, key string, s *settings.Setting) error {
	var err error
	switch v := s.Value.(type) {
	case *settings.Bool:
		var raw int8
		if v.Val {
			raw = 1
		}
		err = h.SetI8(key, raw)
	case *settings.Number:
		err = h.SetI32(key, v.Val)
	case *settings.OneOf:
		err = h.SetI8(key, int8(v.Val))
	case *settings.Text:
		err = h.SetStr(key, v.Val)
	case *settings.Time:
		err = h.SetU16(key, PackTime(v.Val))
	case *settings.Date:
		err = h.SetU32(key, PackDate(v.Val))
	case *settings.Timezone:
		err = h.SetStr(key, v.Val)
	case *settings.Color:
		err = h.SetU32(key, v.Val.Combined())
	default:
		return fmt.Errorf("%w %s: %T", ErrUnsupported, key, s.Value)
	}
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrStoreWrite, key, err)
	}
	return nil
}

// Erase removes every stored setting, resets p to its defaults and
// notifies the pack handler. The pack is left untouched if the store
// cannot be erased.
func (c *Codec) Erase(ctx context.Context, p *settings.Pack) (err error) {
	start := time.Now()
	defer func() { c.metrics.RecordStoreOperation("erase", err == nil, time.Since(start)) }()

	h, err := c.store.Open(ctx, c.namespace, nvs.ReadWrite)
	if err != nil {
		c.logger.WithError(err).WithField("namespace", c.namespace).Error("Settings store open failed")
		return fmt.Errorf("%w: %w", ErrStoreOpen, err)
	}
	defer h.Close()

	if err := h.EraseAll(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreErase, err)
	}
	if err := h.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreCommit, err)
	}

	p.ApplyDefaults()
	c.syncClock(p)
	c.logger.WithField("namespace", c.namespace).Warn("Settings store erased")
	p.Notify()
	return nil
}

// Sync refreshes every DateTime setting from the clock
func (c *Codec) Sync(p *settings.Pack) {
	c.syncClock(p)
}

func (c *Codec) syncClock(p *settings.Pack) {
	now := c.clock.Now()
	p.ForEach(func(_ *settings.Group, s *settings.Setting) {
		if dt, ok := s.Value.(*settings.DateTime); ok {
			dt.Sync(now)
		}
	})
}

func (c *Codec) setClock(dt *settings.DateTime) error {
	t := dt.In(c.clock.Now().Location())
	if err := c.clock.Set(t); err != nil {
		c.logger.WithError(err).WithField("time", t.Format(time.RFC3339)).Error("Failed to set system clock")
		return fmt.Errorf("%w: %w", ErrClockSet, err)
	}
	dt.Sync(c.clock.Now())
	return nil
}
