// Package nvs provides a namespaced key-value store with typed scalar
// and string values, modelled on the ESP-IDF non-volatile storage API.
// Writes made through a Handle are buffered and become visible only
// after Commit.
package nvs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Common errors
var (
	ErrNotFound          = errors.New("nvs: key not found")
	ErrNamespaceNotFound = errors.New("nvs: namespace not found")
	ErrTypeMismatch      = errors.New("nvs: type mismatch")
	ErrReadOnly          = errors.New("nvs: handle is read-only")
	ErrInvalidLength     = errors.New("nvs: invalid length")
	ErrKeyTooLong        = errors.New("nvs: key too long")
	ErrInvalidKey        = errors.New("nvs: invalid key")
	ErrClosed            = errors.New("nvs: handle closed")
	ErrUnknownBackend    = errors.New("nvs: unknown backend")
)

const (
	// DefaultMaxKeyLen is the NVS key limit without the terminating NUL
	DefaultMaxKeyLen = 15

	// MaxStrLen is the largest string value accepted by SetStr
	MaxStrLen = 4000
)

// Mode selects how a namespace is opened
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Store opens namespaces
type Store interface {
	// Open returns a handle on namespace. Opening a namespace that was
	// never committed read-only fails with ErrNamespaceNotFound.
	Open(ctx context.Context, namespace string, mode Mode) (Handle, error)

	// MaxKeyLen is the longest key accepted by handles
	MaxKeyLen() int

	// Close releases the underlying database
	Close() error
}

// Handle is a short-lived scope on one namespace
type Handle interface {
	GetI8(key string) (int8, error)
	GetI32(key string) (int32, error)
	GetU16(key string) (uint16, error)
	GetU32(key string) (uint32, error)

	// GetStr fails with ErrInvalidLength when the stored string is
	// longer than capacity bytes.
	GetStr(key string, capacity int) (string, error)

	SetI8(key string, v int8) error
	SetI32(key string, v int32) error
	SetU16(key string, v uint16) error
	SetU32(key string, v uint32) error
	SetStr(key string, v string) error

	// EraseAll removes every key of the namespace
	EraseAll() error

	// Commit applies buffered writes atomically
	Commit() error

	// Close ends the scope, discarding uncommitted writes
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend    string // memory, badger, pebble, sqlite
	DataDir    string
	MaxKeyLen  int
	SyncWrites bool
	Logger     *logrus.Logger
}

// Backends lists the names accepted by Open
var Backends = []string{"memory", "badger", "pebble", "sqlite"}

// Open creates the store selected by opts.Backend
func Open(opts Options) (Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxKeyLen <= 0 {
		opts.MaxKeyLen = DefaultMaxKeyLen
	}

	var (
		eng engine
		err error
	)
	switch strings.ToLower(opts.Backend) {
	case "", "memory":
		eng = newMemoryEngine()
	case "badger":
		eng, err = openBadger(opts)
	case "pebble":
		eng, err = openPebble(opts)
	case "sqlite":
		eng, err = openSQLite(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	opts.Logger.WithFields(logrus.Fields{
		"backend":     eng.name(),
		"max_key_len": opts.MaxKeyLen,
	}).Info("NVS store opened")

	return &kvStore{eng: eng, maxKeyLen: opts.MaxKeyLen, logger: opts.Logger}, nil
}

// NewMemory returns an in-memory store, mainly for tests
func NewMemory(maxKeyLen int) Store {
	if maxKeyLen <= 0 {
		maxKeyLen = DefaultMaxKeyLen
	}
	return &kvStore{eng: newMemoryEngine(), maxKeyLen: maxKeyLen, logger: logrus.StandardLogger()}
}

// engine is the storage primitive shared by all backends. Keys handed
// to an engine are already validated.
type engine interface {
	name() string
	get(namespace, key string) ([]byte, error)
	hasNamespace(namespace string) (bool, error)
	// apply erases the namespace first when eraseAll is set, then writes
	// sets, and marks the namespace as existing. It is atomic.
	apply(namespace string, sets map[string][]byte, eraseAll bool) error
	close() error
}

type kvStore struct {
	eng       engine
	maxKeyLen int
	logger    *logrus.Logger
}

func (s *kvStore) Open(ctx context.Context, namespace string, mode Mode) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if namespace == "" || len(namespace) > s.maxKeyLen {
		return nil, fmt.Errorf("%w: namespace %q", ErrInvalidKey, namespace)
	}
	if mode == ReadOnly {
		ok, err := s.eng.hasNamespace(namespace)
		if err != nil {
			return nil, fmt.Errorf("nvs: open %s: %w", namespace, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
		}
	}
	return &handle{
		store:     s,
		namespace: namespace,
		mode:      mode,
		pending:   make(map[string][]byte),
	}, nil
}

func (s *kvStore) MaxKeyLen() int {
	return s.maxKeyLen
}

func (s *kvStore) Close() error {
	return s.eng.close()
}
