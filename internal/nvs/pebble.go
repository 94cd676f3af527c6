package nvs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"
)

// pebbleEngine stores entries in Pebble
type pebbleEngine struct {
	db     *pebble.DB
	logger *logrus.Logger
}

func openPebble(opts Options) (*pebbleEngine, error) {
	if opts.DataDir == "" {
		return nil, errors.New("nvs: pebble backend requires a data directory")
	}

	// A data dir written by the badger backend is converted in place
	if err := MigrateBadgerToPebble(opts.DataDir, opts.Logger); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(opts.DataDir, "nvs")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create nvs directory: %w", err)
	}

	db, err := openPebbleDB(dbPath, opts.Logger)
	if err != nil {
		return nil, err
	}

	opts.Logger.WithField("path", dbPath).Debug("Pebble nvs engine initialized")
	return &pebbleEngine{db: db, logger: opts.Logger}, nil
}

func openPebbleDB(dir string, logger *logrus.Logger) (*pebble.DB, error) {
	// settings are tiny; a small block cache is plenty
	cache := pebble.NewCache(8 << 20)
	defer cache.Unref()

	db, err := pebble.Open(dir, &pebble.Options{
		Cache:  cache,
		Levels: []pebble.LevelOptions{{Compression: pebble.SnappyCompression}},
		Logger: &pebbleLogger{logger: logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return db, nil
}

// prefixEnd returns the exclusive upper bound of a prefix range.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (e *pebbleEngine) name() string { return "pebble" }

func (e *pebbleEngine) get(namespace, key string) ([]byte, error) {
	val, closer, err := e.db.Get(entryKey(namespace, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	copy(out, val)
	_ = closer.Close()
	return out, nil
}

func (e *pebbleEngine) hasNamespace(namespace string) (bool, error) {
	_, closer, err := e.db.Get(namespaceKey(namespace))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

func (e *pebbleEngine) apply(namespace string, sets map[string][]byte, eraseAll bool) error {
	batch := e.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	if eraseAll {
		prefix := entryPrefix(namespace)
		if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
			return fmt.Errorf("erase %s: %w", namespace, err)
		}
	}
	for k, v := range sets {
		if err := batch.Set(entryKey(namespace, k), v, nil); err != nil {
			return fmt.Errorf("set %q: %w", k, err)
		}
	}
	if err := batch.Set(namespaceKey(namespace), []byte{1}, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (e *pebbleEngine) close() error {
	return e.db.Close()
}

// pebbleLogger adapts logrus to Pebble's logger interface
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}
