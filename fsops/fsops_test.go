package fsops_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyfs/tfs/fsops"
)

func mountFresh(t *testing.T) *fsops.FileSystem {
	path := filepath.Join(t.TempDir(), "DISKFILE")
	fs := fsops.New()
	require.Nil(t, fs.Mount(path))
	t.Cleanup(func() { fs.Unmount() })
	return fs
}

func TestMkdirAndReaddir(t *testing.T) {
	fs := mountFresh(t)

	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Mkdir("/a/b"))

	names, err := fs.ReadDir("/a")
	require.Nil(t, err)
	require.Equal(t, []string{"b"}, names)

	st, err := fs.GetAttr("/a/b")
	require.Nil(t, err)
	require.EqualValues(t, 0, st.Nlink)
	require.True(t, st.IsDir)
}

func TestCreateWriteReadSmallFile(t *testing.T) {
	fs := mountFresh(t)

	require.Nil(t, fs.Create("/f"))
	n, err := fs.Write("/f", []byte("hello"), 0)
	require.Nil(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = fs.Read("/f", buf, 0)
	require.Nil(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))

	st, err := fs.GetAttr("/f")
	require.Nil(t, err)
	require.EqualValues(t, 4096, st.Size)
}

func TestWriteSpanningTwoDirectBlocks(t *testing.T) {
	fs := mountFresh(t)
	require.Nil(t, fs.Create("/f"))

	x := make([]byte, 4096)
	for i := range x {
		x[i] = 'X'
	}
	y := make([]byte, 4096)
	for i := range y {
		y[i] = 'Y'
	}

	n, err := fs.Write("/f", x, 0)
	require.Nil(t, err)
	require.Equal(t, 4096, n)

	n, err = fs.Write("/f", y, 4096)
	require.Nil(t, err)
	require.Equal(t, 4096, n)

	readBack := make([]byte, 4096)
	_, err = fs.Read("/f", readBack, 0)
	require.Nil(t, err)
	require.Equal(t, x, readBack)

	_, err = fs.Read("/f", readBack, 4096)
	require.Nil(t, err)
	require.Equal(t, y, readBack)
}

func TestWriteThroughIndirectBlock(t *testing.T) {
	fs := mountFresh(t)
	require.Nil(t, fs.Create("/f"))

	z := make([]byte, 4096)
	for i := range z {
		z[i] = 'Z'
	}

	offset := int64(16 * 4096)
	n, err := fs.Write("/f", z, offset)
	require.Nil(t, err)
	require.Equal(t, 4096, n)

	readBack := make([]byte, 4096)
	_, err = fs.Read("/f", readBack, offset)
	require.Nil(t, err)
	require.Equal(t, z, readBack)
}

func TestRmdirFreesSubtree(t *testing.T) {
	fs := mountFresh(t)

	require.Nil(t, fs.Mkdir("/a"))
	require.Nil(t, fs.Create("/a/f"))
	_, err := fs.Write("/a/f", []byte("x"), 0)
	require.Nil(t, err)

	require.Nil(t, fs.Rmdir("/a"))

	_, err = fs.GetAttr("/a")
	require.NotNil(t, err)
	require.Equal(t, "no such file or directory", err.Error())
}

func TestCreateDuplicateFailsSecondTime(t *testing.T) {
	fs := mountFresh(t)

	require.Nil(t, fs.Create("/x"))
	err := fs.Create("/x")
	require.NotNil(t, err)
}

func TestUnlinkRejectsDirectory(t *testing.T) {
	fs := mountFresh(t)
	require.Nil(t, fs.Mkdir("/a"))

	err := fs.Unlink("/a")
	require.NotNil(t, err)
	require.Equal(t, "is a directory", err.Error())
}

func TestRmdirRejectsRegularFile(t *testing.T) {
	fs := mountFresh(t)
	require.Nil(t, fs.Create("/f"))

	err := fs.Rmdir("/f")
	require.NotNil(t, err)
	require.Equal(t, "not a directory", err.Error())
}

func TestWriteAtOutOfRangeOffsetFails(t *testing.T) {
	fs := mountFresh(t)
	require.Nil(t, fs.Create("/f"))

	offset := int64(fsops.MaxBlocks) * 4096
	n, err := fs.Write("/f", []byte("x"), offset)
	require.Equal(t, 0, n)
	require.NotNil(t, err)
}

func TestRemountSeesPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DISKFILE")
	fs := fsops.New()
	require.Nil(t, fs.Mount(path))
	require.Nil(t, fs.Mkdir("/persisted"))
	require.Nil(t, fs.Unmount())

	fs2 := fsops.New()
	require.Nil(t, fs2.Mount(path))
	defer fs2.Unmount()

	names, err := fs2.ReadDir("/")
	require.Nil(t, err)
	require.Contains(t, names, "persisted")
}
