package device

import (
	"testing"

	"github.com/nvsettings/nvsettings/internal/nvs"
	"github.com/nvsettings/nvsettings/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPackKeysFitNVS(t *testing.T) {
	p, err := NewPack(nil)
	require.NoError(t, err)

	keys, err := settings.DeriveKeys(p, nvs.DefaultMaxKeyLen)
	require.NoError(t, err)
	assert.Equal(t, p.Len(), keys.Len())
	assert.Equal(t, 11, p.Len())
}

func TestNewPackIsFresh(t *testing.T) {
	a, err := NewPack(nil)
	require.NoError(t, err)
	b, err := NewPack(nil)
	require.NoError(t, err)

	a.ApplyDefaults()
	b.ApplyDefaults()
	s, err := a.Find("net", "port")
	require.NoError(t, err)
	require.True(t, s.SetNumber(8080))

	other, err := b.Find("net", "port")
	require.NoError(t, err)
	assert.Equal(t, int32(80), other.Value.(*settings.Number).Val)
}

func TestNewPackHandler(t *testing.T) {
	calls := 0
	p, err := NewPack(settings.HandlerFunc(func(*settings.Pack) { calls++ }))
	require.NoError(t, err)

	p.Notify()
	assert.Equal(t, 1, calls)
}

func TestStandbyDisabled(t *testing.T) {
	p, err := NewPack(nil)
	require.NoError(t, err)

	s, err := p.Find("disp", "standby")
	require.NoError(t, err)
	assert.True(t, s.Disabled)
}
