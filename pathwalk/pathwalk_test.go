package pathwalk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyfs/tfs/allocator"
	"github.com/tinyfs/tfs/directory"
	"github.com/tinyfs/tfs/inode"
	"github.com/tinyfs/tfs/pathwalk"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfstest"
)

func TestSplitSkipsEmptyComponents(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, pathwalk.Split("//a//b/"))
	require.Empty(t, pathwalk.Split("/"))
	require.Empty(t, pathwalk.Split(""))
}

func TestResolveWalksNestedDirectories(t *testing.T) {
	dev := tfstest.NewMemDevice(4 << 20)
	sb := superblock.Layout(inode.RecordSize)
	blockAlloc := allocator.New(dev, allocator.Region{StartBlock: sb.DBitmapBlk, Count: superblock.MaxDnum})

	root := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}
	require.Nil(t, inode.Write(dev, &sb, 0, &root))

	a := inode.Inode{Ino: 1, Valid: true, Type: inode.TypeDir}
	require.Nil(t, inode.Write(dev, &sb, 1, &a))
	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &root, 1, "a"))

	b := inode.Inode{Ino: 2, Valid: true, Type: inode.TypeDir}
	require.Nil(t, inode.Write(dev, &sb, 2, &b))
	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &a, 2, "b"))

	ino, err := pathwalk.Resolve(dev, &sb, superblock.RootIno, "/a/b")
	require.Nil(t, err)
	require.EqualValues(t, 2, ino)

	rootIno, err := pathwalk.Resolve(dev, &sb, superblock.RootIno, "/")
	require.Nil(t, err)
	require.EqualValues(t, superblock.RootIno, rootIno)
}

func TestResolveMissingComponentFails(t *testing.T) {
	dev := tfstest.NewMemDevice(4 << 20)
	sb := superblock.Layout(inode.RecordSize)
	root := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}
	require.Nil(t, inode.Write(dev, &sb, 0, &root))

	_, err := pathwalk.Resolve(dev, &sb, superblock.RootIno, "/nope")
	require.NotNil(t, err)
}

func TestResolveParentAndName(t *testing.T) {
	dev := tfstest.NewMemDevice(4 << 20)
	sb := superblock.Layout(inode.RecordSize)
	blockAlloc := allocator.New(dev, allocator.Region{StartBlock: sb.DBitmapBlk, Count: superblock.MaxDnum})

	root := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}
	require.Nil(t, inode.Write(dev, &sb, 0, &root))
	a := inode.Inode{Ino: 1, Valid: true, Type: inode.TypeDir}
	require.Nil(t, inode.Write(dev, &sb, 1, &a))
	require.Nil(t, directory.Add(dev, &sb, blockAlloc, &root, 1, "a"))

	parent, name, err := pathwalk.ResolveParentAndName(dev, &sb, superblock.RootIno, "/a/f")
	require.Nil(t, err)
	require.EqualValues(t, 1, parent)
	require.Equal(t, "f", name)
}
