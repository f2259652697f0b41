package bitmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyfs/tfs/bitmap"
	"github.com/tinyfs/tfs/tfstest"
)

func TestFindFirstClearSkipsFullBytes(t *testing.T) {
	m := bitmap.New(32)
	for i := 0; i < 8; i++ {
		m.Set(i)
	}
	idx, ok := m.FindFirstClear()
	require.True(t, ok)
	require.Equal(t, 8, idx)
}

func TestFindFirstClearLowToHighWithinByte(t *testing.T) {
	m := bitmap.New(16)
	m.Set(0)
	m.Set(1)
	idx, ok := m.FindFirstClear()
	require.True(t, ok)
	require.Equal(t, 2, idx)
}

func TestFindFirstClearNoneLeft(t *testing.T) {
	m := bitmap.New(4)
	for i := 0; i < 4; i++ {
		m.Set(i)
	}
	_, ok := m.FindFirstClear()
	require.False(t, ok)
}

func TestLoadStoreRoundTrip(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	m := bitmap.New(128)
	m.Set(3)
	m.Set(100)
	require.NoError(t, bitmap.StoreToDevice(dev, 0, 128, m))

	reloaded, err := bitmap.LoadFromDevice(dev, 0, 128)
	require.NoError(t, err)
	require.True(t, reloaded.Get(3))
	require.True(t, reloaded.Get(100))
	require.False(t, reloaded.Get(4))
}
