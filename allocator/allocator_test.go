package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyfs/tfs/allocator"
	"github.com/tinyfs/tfs/tfstest"
)

func TestAllocateIsSequentialFromZero(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	a := allocator.New(dev, allocator.Region{StartBlock: 0, Count: 64})

	first, err := a.Allocate()
	require.Nil(t, err)
	require.EqualValues(t, 0, first)

	second, err := a.Allocate()
	require.Nil(t, err)
	require.EqualValues(t, 1, second)
}

func TestFreeMakesIndexAvailableAgain(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	a := allocator.New(dev, allocator.Region{StartBlock: 0, Count: 8})

	first, err := a.Allocate()
	require.Nil(t, err)
	_, err = a.Allocate()
	require.Nil(t, err)

	require.Nil(t, a.Free(first))

	reused, err := a.Allocate()
	require.Nil(t, err)
	require.Equal(t, first, reused)
}

func TestAllocateExhaustion(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	a := allocator.New(dev, allocator.Region{StartBlock: 0, Count: 2})

	_, err := a.Allocate()
	require.Nil(t, err)
	_, err = a.Allocate()
	require.Nil(t, err)

	_, err = a.Allocate()
	require.NotNil(t, err)
}

func TestMarkPreReservesIndices(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	a := allocator.New(dev, allocator.Region{StartBlock: 0, Count: 8})

	require.Nil(t, a.Mark(0, 1, 2))

	first, err := a.Allocate()
	require.Nil(t, err)
	require.EqualValues(t, 3, first)
}
