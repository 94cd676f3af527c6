package nvs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// On-disk key layout shared by the badger and pebble engines:
//
//	nvs/<namespace>/<key>  entry
//	ns/<namespace>         namespace marker

func entryKey(namespace, key string) []byte {
	return []byte(fmt.Sprintf("nvs/%s/%s", namespace, key))
}

func entryPrefix(namespace string) []byte {
	return []byte(fmt.Sprintf("nvs/%s/", namespace))
}

func namespaceKey(namespace string) []byte {
	return []byte(fmt.Sprintf("ns/%s", namespace))
}

// badgerEngine stores entries in BadgerDB
type badgerEngine struct {
	db     *badger.DB
	logger *logrus.Logger
}

func badgerDir(dataDir string) string {
	return filepath.Join(dataDir, "nvs")
}

func openBadger(opts Options) (*badgerEngine, error) {
	if opts.DataDir == "" {
		return nil, errors.New("nvs: badger backend requires a data directory")
	}
	dbPath := badgerDir(opts.DataDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create nvs directory: %w", err)
	}

	badgerOpts := badger.DefaultOptions(dbPath).
		WithLogger(newBadgerLogger(opts.Logger)).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	opts.Logger.WithField("path", dbPath).Debug("BadgerDB nvs engine initialized")
	return &badgerEngine{db: db, logger: opts.Logger}, nil
}

func (e *badgerEngine) name() string { return "badger" }

func (e *badgerEngine) get(namespace, key string) ([]byte, error) {
	var out []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(namespace, key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return out, err
}

func (e *badgerEngine) hasNamespace(namespace string) (bool, error) {
	err := e.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(namespaceKey(namespace))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (e *badgerEngine) apply(namespace string, sets map[string][]byte, eraseAll bool) error {
	return e.db.Update(func(txn *badger.Txn) error {
		if eraseAll {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = entryPrefix(namespace)
			it := txn.NewIterator(opts)
			var stale [][]byte
			for it.Rewind(); it.Valid(); it.Next() {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, k := range stale {
				if err := txn.Delete(k); err != nil {
					return fmt.Errorf("erase %q: %w", k, err)
				}
			}
		}
		for k, v := range sets {
			if err := txn.Set(entryKey(namespace, k), v); err != nil {
				return fmt.Errorf("set %q: %w", k, err)
			}
		}
		return txn.Set(namespaceKey(namespace), []byte{1})
	})
}

func (e *badgerEngine) close() error {
	return e.db.Close()
}

// badgerLogger adapts logrus to BadgerDB's logger interface
type badgerLogger struct {
	logger *logrus.Logger
}

func newBadgerLogger(logger *logrus.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}
