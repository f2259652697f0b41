package inode_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyfs/tfs/inode"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfstest"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	sb := superblock.Layout(inode.RecordSize)

	in := inode.Inode{
		Ino: 5, Valid: true, Size: 4096, Type: inode.TypeFile, Link: 1,
		Mode: 0100755, Mtime: 111, Atime: 222,
	}
	in.Direct[0] = 42

	require.Nil(t, inode.Write(dev, &sb, 5, &in))

	var out inode.Inode
	require.Nil(t, inode.Read(dev, &sb, 5, &out))
	require.Equal(t, in, out)
}

func TestWritePreservesOtherSlots(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	sb := superblock.Layout(inode.RecordSize)

	a := inode.Inode{Ino: 0, Valid: true, Type: inode.TypeDir}
	b := inode.Inode{Ino: 1, Valid: true, Type: inode.TypeFile, Size: 99}

	require.Nil(t, inode.Write(dev, &sb, 0, &a))
	require.Nil(t, inode.Write(dev, &sb, 1, &b))

	var outA inode.Inode
	require.Nil(t, inode.Read(dev, &sb, 0, &outA))
	require.Equal(t, a, outA)
}

func TestReadWriteRejectOutOfRangeIno(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	sb := superblock.Layout(inode.RecordSize)

	var out inode.Inode
	err := inode.Read(dev, &sb, uint32(superblock.MaxInum), &out)
	require.NotNil(t, err)

	err = inode.Write(dev, &sb, uint32(superblock.MaxInum), &out)
	require.NotNil(t, err)
}
