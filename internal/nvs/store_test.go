package nvs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func openTestStore(t *testing.T, backend string) Store {
	t.Helper()
	store, err := Open(Options{
		Backend: backend,
		DataDir: t.TempDir(),
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store Store)) {
	for _, backend := range Backends {
		t.Run(backend, func(t *testing.T) {
			fn(t, openTestStore(t, backend))
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "flash", Logger: testLogger()})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestReadOnlyOpenOfMissingNamespace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		_, err := store.Open(context.Background(), "settings", ReadOnly)
		assert.ErrorIs(t, err, ErrNamespaceNotFound)

		h, err := store.Open(context.Background(), "settings", ReadWrite)
		require.NoError(t, err)
		require.NoError(t, h.Commit())
		require.NoError(t, h.Close())

		h, err = store.Open(context.Background(), "settings", ReadOnly)
		require.NoError(t, err)
		assert.NoError(t, h.Close())
	})
}

func TestTypedRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		h, err := store.Open(ctx, "settings", ReadWrite)
		require.NoError(t, err)
		require.NoError(t, h.SetI8("b", -3))
		require.NoError(t, h.SetI32("n", -123456))
		require.NoError(t, h.SetU16("t", 0x173B))
		require.NoError(t, h.SetU32("d", 0x1F0C07E9))
		require.NoError(t, h.SetStr("s", "hello"))
		require.NoError(t, h.Commit())
		require.NoError(t, h.Close())

		h, err = store.Open(ctx, "settings", ReadOnly)
		require.NoError(t, err)
		defer h.Close()

		i8, err := h.GetI8("b")
		require.NoError(t, err)
		assert.Equal(t, int8(-3), i8)

		i32, err := h.GetI32("n")
		require.NoError(t, err)
		assert.Equal(t, int32(-123456), i32)

		u16, err := h.GetU16("t")
		require.NoError(t, err)
		assert.Equal(t, uint16(0x173B), u16)

		u32, err := h.GetU32("d")
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1F0C07E9), u32)

		s, err := h.GetStr("s", 16)
		require.NoError(t, err)
		assert.Equal(t, "hello", s)

		_, err = h.GetStr("s", 3)
		assert.ErrorIs(t, err, ErrInvalidLength)

		_, err = h.GetI32("b")
		assert.ErrorIs(t, err, ErrTypeMismatch)

		_, err = h.GetI8("missing")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, h.SetI8("b", 1), ErrReadOnly)
		assert.ErrorIs(t, h.Commit(), ErrReadOnly)
	})
}

func TestCloseWithoutCommitDiscards(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		h, err := store.Open(ctx, "settings", ReadWrite)
		require.NoError(t, err)
		require.NoError(t, h.SetI32("kept", 1))
		require.NoError(t, h.Commit())
		require.NoError(t, h.SetI32("lost", 2))

		// uncommitted writes are visible through the same handle
		v, err := h.GetI32("lost")
		require.NoError(t, err)
		assert.Equal(t, int32(2), v)
		require.NoError(t, h.Close())

		h, err = store.Open(ctx, "settings", ReadOnly)
		require.NoError(t, err)
		defer h.Close()

		_, err = h.GetI32("kept")
		assert.NoError(t, err)
		_, err = h.GetI32("lost")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, h.Close())
		_, err = h.GetI32("kept")
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestEraseAll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		h, err := store.Open(ctx, "settings", ReadWrite)
		require.NoError(t, err)
		require.NoError(t, h.SetI32("a", 1))
		require.NoError(t, h.SetStr("b", "x"))
		require.NoError(t, h.Commit())

		other, err := store.Open(ctx, "other", ReadWrite)
		require.NoError(t, err)
		require.NoError(t, other.SetI32("a", 9))
		require.NoError(t, other.Commit())
		require.NoError(t, other.Close())

		require.NoError(t, h.EraseAll())
		_, err = h.GetI32("a")
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, h.Commit())
		require.NoError(t, h.Close())

		h, err = store.Open(ctx, "settings", ReadOnly)
		require.NoError(t, err, "namespace survives erase")
		_, err = h.GetI32("a")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = h.GetStr("b", 10)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, h.Close())

		// erase is scoped to one namespace
		other, err = store.Open(ctx, "other", ReadOnly)
		require.NoError(t, err)
		v, err := other.GetI32("a")
		require.NoError(t, err)
		assert.Equal(t, int32(9), v)
		require.NoError(t, other.Close())
	})
}

func TestKeyLimits(t *testing.T) {
	store := NewMemory(0)
	assert.Equal(t, DefaultMaxKeyLen, store.MaxKeyLen())

	h, err := store.Open(context.Background(), "settings", ReadWrite)
	require.NoError(t, err)
	defer h.Close()

	assert.NoError(t, h.SetI8(strings.Repeat("k", 15), 1))
	assert.ErrorIs(t, h.SetI8(strings.Repeat("k", 16), 1), ErrKeyTooLong)
	assert.ErrorIs(t, h.SetI8("", 1), ErrInvalidKey)
	assert.ErrorIs(t, h.SetStr("big", strings.Repeat("x", MaxStrLen+1)), ErrInvalidLength)

	_, err = store.Open(context.Background(), strings.Repeat("n", 16), ReadWrite)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestOpenHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory(0).Open(ctx, "settings", ReadWrite)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMigrateBadgerToPebble(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	store, err := Open(Options{Backend: "badger", DataDir: dataDir, Logger: testLogger()})
	require.NoError(t, err)
	h, err := store.Open(ctx, "settings", ReadWrite)
	require.NoError(t, err)
	require.NoError(t, h.SetI32("net:port", 8080))
	require.NoError(t, h.SetStr("net:hostname", "sensor"))
	require.NoError(t, h.Commit())
	require.NoError(t, h.Close())
	require.NoError(t, store.Close())

	store, err = Open(Options{Backend: "pebble", DataDir: dataDir, Logger: testLogger()})
	require.NoError(t, err)
	defer store.Close()

	h, err = store.Open(ctx, "settings", ReadOnly)
	require.NoError(t, err)
	defer h.Close()

	port, err := h.GetI32("net:port")
	require.NoError(t, err)
	assert.Equal(t, int32(8080), port)

	name, err := h.GetStr("net:hostname", 32)
	require.NoError(t, err)
	assert.Equal(t, "sensor", name)

	matches, err := filepath.Glob(filepath.Join(dataDir, "nvs_badger_backup_*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = os.Stat(filepath.Join(dataDir, "nvs", badgerKeyRegistry))
	assert.True(t, os.IsNotExist(err))
}

func TestMigrateNoopOnFreshDir(t *testing.T) {
	assert.NoError(t, MigrateBadgerToPebble(t.TempDir(), testLogger()))
}
