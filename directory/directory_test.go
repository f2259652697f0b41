package directory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyfs/tfs/allocator"
	"github.com/tinyfs/tfs/directory"
	"github.com/tinyfs/tfs/inode"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfstest"
)

func TestAddAllocatesFirstBlockThenFinds(t *testing.T) {
	dev := tfstest.NewMemDevice(4 << 20)
	sb := superblock.Layout(inode.RecordSize)
	blockAlloc := allocator.New(dev, allocator.Region{StartBlock: sb.DBitmapBlk, Count: superblock.MaxDnum})
	dir := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}

	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &dir, 7, "hello"))
	require.EqualValues(t, 4096, dir.Size)
	require.EqualValues(t, 1, dir.Link)

	found, ok, err := directory.Find(dev, &sb, 0, "hello")
	require.Nil(t, err)
	require.True(t, ok)
	require.EqualValues(t, 7, found.Ino)
}

func TestAddDuplicateNameFails(t *testing.T) {
	dev := tfstest.NewMemDevice(4 << 20)
	sb := superblock.Layout(inode.RecordSize)
	blockAlloc := allocator.New(dev, allocator.Region{StartBlock: sb.DBitmapBlk, Count: superblock.MaxDnum})
	dir := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}

	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &dir, 1, "x"))
	err := directory.Add(dev, &sb, blockAlloc, &dir, 2, "x")
	require.NotNil(t, err)
	require.Equal(t, "file exists", err.Error())
}

func TestRemoveThenFindMisses(t *testing.T) {
	dev := tfstest.NewMemDevice(4 << 20)
	sb := superblock.Layout(inode.RecordSize)
	blockAlloc := allocator.New(dev, allocator.Region{StartBlock: sb.DBitmapBlk, Count: superblock.MaxDnum})
	dir := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}

	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &dir, 9, "gone"))
	removed, err := directory.Remove(dev, &dir, "gone")
	require.Nil(t, err)
	require.EqualValues(t, 9, removed.Ino)

	_, ok, err := directory.Find(dev, &sb, 0, "gone")
	require.Nil(t, err)
	require.False(t, ok)
}

func TestListSkipsInvalidSlots(t *testing.T) {
	dev := tfstest.NewMemDevice(4 << 20)
	sb := superblock.Layout(inode.RecordSize)
	blockAlloc := allocator.New(dev, allocator.Region{StartBlock: sb.DBitmapBlk, Count: superblock.MaxDnum})
	dir := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}

	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &dir, 1, "a"))
	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &dir, 2, "b"))
	_, err := directory.Remove(dev, &dir, "a")
	require.Nil(t, err)

	entries, err := directory.List(dev, &dir)
	require.Nil(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Dirent.Name)
}
