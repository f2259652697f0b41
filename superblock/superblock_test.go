package superblock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfstest"
)

func TestLayoutOrdersRegionsAscending(t *testing.T) {
	sb := superblock.Layout(132)
	require.Less(t, sb.IBitmapBlk, sb.DBitmapBlk)
	require.Less(t, sb.DBitmapBlk, sb.IStartBlk)
	require.Less(t, sb.IStartBlk, sb.DStartBlk)
	require.EqualValues(t, superblock.Magic, sb.Magic)
	require.EqualValues(t, superblock.MaxInum, sb.MaxInum)
	require.EqualValues(t, superblock.MaxDnum, sb.MaxDnum)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sb := superblock.Layout(132)
	decoded, err := superblock.Decode(sb.Encode())
	require.Nil(t, err)
	require.Equal(t, sb, *decoded)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	sb := superblock.Layout(132)
	raw := sb.Encode()
	raw[0] = 0

	_, err := superblock.Decode(raw)
	require.NotNil(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dev := tfstest.NewMemDevice(1 << 20)
	sb := superblock.Layout(132)

	require.Nil(t, superblock.Write(dev, &sb))

	reloaded, err := superblock.Read(dev)
	require.Nil(t, err)
	require.Equal(t, sb, *reloaded)
}
