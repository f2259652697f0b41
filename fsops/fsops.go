// Package fsops implements the filesystem upcall surface: the operations a
// host upcall dispatcher (or a CLI harness) drives against a mounted TFS
// image. Every exported method acquires FileSystem's single lock on entry
// and releases it on every return path, matching the one-global-mutex
// design of the original rufs_* callbacks.
package fsops

import (
	"os"
	"sync"
	"time"

	"github.com/tinyfs/tfs/allocator"
	"github.com/tinyfs/tfs/bitmap"
	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/directory"
	"github.com/tinyfs/tfs/flags"
	"github.com/tinyfs/tfs/inode"
	"github.com/tinyfs/tfs/pathwalk"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfserr"
)

const entriesPerIndirectBlock = blockdev.BlockSize / 4

// MaxBlocks is the largest block index addressable via direct plus
// single-indirect pointers.
const MaxBlocks = inode.NDirect + inode.NIndirect*entriesPerIndirectBlock

// Stat is what GetAttr reports, trimmed to the fields this design actually
// tracks. It carries no uid/gid: none is persisted on disk, and fuseadapter
// does not fill in the owner fields of the attributes it reports.
type Stat struct {
	Ino    uint32
	Mode   uint32
	Nlink  uint32
	Size   uint32
	Blocks uint32
	Atime  int64
	Mtime  int64
	IsDir  bool
}

// FileSystem holds the live state of one mounted TFS image: the open
// diskfile, the in-memory superblock, and the two bitmap allocators. All
// of it lives behind mu.
type FileSystem struct {
	mu sync.Mutex

	dev        *blockdev.Device
	sb         *superblock.Superblock
	inodeAlloc *allocator.Allocator
	blockAlloc *allocator.Allocator
}

// New returns an unmounted FileSystem; call Mount before anything else.
func New() *FileSystem {
	return &FileSystem{}
}

func (fs *FileSystem) initAllocators() {
	fs.inodeAlloc = allocator.New(fs.dev, allocator.Region{StartBlock: fs.sb.IBitmapBlk, Count: superblock.MaxInum})
	fs.blockAlloc = allocator.New(fs.dev, allocator.Region{StartBlock: fs.sb.DBitmapBlk, Count: superblock.MaxDnum})
}

// Mkfs formats a fresh image at path, truncating (or creating) it to
// DiskSize and laying out every region from scratch.
func (fs *FileSystem) Mkfs(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mkfsLocked(path)
}

func (fs *FileSystem) mkfsLocked(path string) *tfserr.Error {
	dev, err := blockdev.Create(path)
	if err != nil {
		return tfserr.EIO.Wrap(err)
	}
	sb := superblock.Layout(inode.RecordSize)
	fs.dev = dev
	fs.sb = &sb
	fs.initAllocators()

	emptyInodeBitmap := bitmap.New(superblock.MaxInum)
	if err := bitmap.StoreToDevice(fs.dev, sb.IBitmapBlk, superblock.MaxInum, emptyInodeBitmap); err != nil {
		return asErr(err)
	}
	emptyDataBitmap := bitmap.New(superblock.MaxDnum)
	if err := bitmap.StoreToDevice(fs.dev, sb.DBitmapBlk, superblock.MaxDnum, emptyDataBitmap); err != nil {
		return asErr(err)
	}

	inodeRegionBlocks := sb.InodeRegionBlocks(inode.RecordSize)
	zeroRegion := make([]byte, inodeRegionBlocks*blockdev.BlockSize)
	if err := fs.dev.WriteRun(sb.IStartBlk, inodeRegionBlocks, zeroRegion); err != nil {
		return asErr(err)
	}

	if err := superblock.Write(fs.dev, &sb); err != nil {
		return err
	}

	prefix := make([]uint32, sb.DStartBlk)
	for i := range prefix {
		prefix[i] = uint32(i)
	}
	if err := fs.blockAlloc.Mark(prefix...); err != nil {
		return err
	}

	now := time.Now().Unix()
	root := inode.Inode{
		Ino: uint16(superblock.RootIno), Valid: true, Type: inode.TypeDir,
		Size: 0, Link: 0, Mode: flags.DefaultDirMode, Mtime: now, Atime: now,
	}
	if err := inode.Write(fs.dev, fs.sb, superblock.RootIno, &root); err != nil {
		return err
	}
	if err := fs.inodeAlloc.Mark(superblock.RootIno); err != nil {
		return err
	}

	if err := directory.AddSelfEntry(fs.dev, fs.sb, fs.blockAlloc, &root, superblock.RootIno, "."); err != nil {
		return err
	}
	if err := directory.AddSelfEntry(fs.dev, fs.sb, fs.blockAlloc, &root, superblock.RootIno, ".."); err != nil {
		return err
	}
	return nil
}

// Mount is init: format a fresh image if path doesn't exist yet, otherwise
// open the existing one and load its superblock.
func (fs *FileSystem) Mount(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return fs.mkfsLocked(path)
		}
		return tfserr.EIO.Wrap(statErr)
	}

	dev, err := blockdev.Open(path)
	if err != nil {
		return tfserr.EIO.Wrap(err)
	}
	fs.dev = dev
	sb, serr := superblock.Read(fs.dev)
	if serr != nil {
		return serr
	}
	fs.sb = sb
	fs.initAllocators()
	return nil
}

// Unmount is destroy: close the diskfile and drop the in-memory state.
func (fs *FileSystem) Unmount() *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dev == nil {
		return nil
	}
	err := fs.dev.Close()
	fs.dev, fs.sb, fs.inodeAlloc, fs.blockAlloc = nil, nil, nil, nil
	if err != nil {
		return tfserr.EIO.Wrap(err)
	}
	return nil
}

// GetAttr resolves path and reports its stat-shaped attributes, writing
// back a refreshed atime the way the original rufs_getattr does.
func (fs *FileSystem) GetAttr(path string) (Stat, *tfserr.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, rerr := pathwalk.Resolve(fs.dev, fs.sb, superblock.RootIno, path)
	if rerr != nil {
		return Stat{}, rerr
	}
	var in inode.Inode
	if err := inode.Read(fs.dev, fs.sb, ino, &in); err != nil {
		return Stat{}, err
	}

	now := time.Now().Unix()
	in.Atime = now
	if err := inode.Write(fs.dev, fs.sb, ino, &in); err != nil {
		return Stat{}, err
	}

	mode := flags.DefaultFileMode
	if in.Type == inode.TypeDir {
		mode = flags.DefaultDirMode
	}
	return Stat{
		Ino:    ino,
		Mode:   uint32(mode),
		Nlink:  in.Link,
		Size:   in.Size,
		Blocks: blockdev.BlocksForBytes(uint64(in.Size)),
		Atime:  now,
		Mtime:  in.Mtime,
		IsDir:  in.Type == inode.TypeDir,
	}, nil
}

// OpenDir resolves path and rejects anything that isn't a directory.
func (fs *FileSystem) OpenDir(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, rerr := pathwalk.Resolve(fs.dev, fs.sb, superblock.RootIno, path)
	if rerr != nil {
		return rerr
	}
	var in inode.Inode
	if err := inode.Read(fs.dev, fs.sb, ino, &in); err != nil {
		return err
	}
	if in.Type != inode.TypeDir {
		return tfserr.ENOTDIR.New()
	}
	return nil
}

// ReadDir lists every entry of the directory at path except "." and "..",
// refreshing atime.
func (fs *FileSystem) ReadDir(path string) ([]string, *tfserr.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, rerr := pathwalk.Resolve(fs.dev, fs.sb, superblock.RootIno, path)
	if rerr != nil {
		return nil, rerr
	}
	var dir inode.Inode
	if err := inode.Read(fs.dev, fs.sb, ino, &dir); err != nil {
		return nil, err
	}
	if dir.Type != inode.TypeDir {
		return nil, tfserr.ENOTDIR.New()
	}

	entries, err := directory.List(fs.dev, &dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Dirent.Name == "." || e.Dirent.Name == ".." {
			continue
		}
		names = append(names, e.Dirent.Name)
	}

	dir.Atime = time.Now().Unix()
	if err := inode.Write(fs.dev, fs.sb, ino, &dir); err != nil {
		return nil, err
	}
	return names, nil
}

// Mkdir splits path into its parent and final component, allocates a new
// directory inode, links it into the parent, and plants "." and "..".
func (fs *FileSystem) Mkdir(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentIno, name, perr := pathwalk.ResolveParentAndName(fs.dev, fs.sb, superblock.RootIno, path)
	if perr != nil {
		return perr
	}
	var parent inode.Inode
	if err := inode.Read(fs.dev, fs.sb, parentIno, &parent); err != nil {
		return err
	}
	if parent.Type != inode.TypeDir {
		return tfserr.ENOTDIR.New()
	}

	newIno, aerr := fs.inodeAlloc.Allocate()
	if aerr != nil {
		return aerr
	}

	now := time.Now().Unix()
	child := inode.Inode{
		Ino: uint16(newIno), Valid: true, Type: inode.TypeDir,
		Size: 0, Link: 0, Mode: flags.DefaultDirMode, Mtime: now, Atime: now,
	}
	if err := inode.Write(fs.dev, fs.sb, newIno, &child); err != nil {
		fs.inodeAlloc.Free(newIno)
		return err
	}

	if err := directory.Add(fs.dev, fs.sb, fs.blockAlloc, &parent, newIno, name); err != nil {
		fs.inodeAlloc.Free(newIno)
		return tfserr.ENOSPC.New()
	}

	if err := directory.AddSelfEntry(fs.dev, fs.sb, fs.blockAlloc, &child, newIno, "."); err != nil {
		return err
	}
	if err := directory.AddSelfEntry(fs.dev, fs.sb, fs.blockAlloc, &child, parentIno, ".."); err != nil {
		return err
	}
	return nil
}

// Create allocates a new, empty regular-file inode and links it into its
// parent directory. No data block is allocated until the first Write.
func (fs *FileSystem) Create(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentIno, name, perr := pathwalk.ResolveParentAndName(fs.dev, fs.sb, superblock.RootIno, path)
	if perr != nil {
		return perr
	}
	var parent inode.Inode
	if err := inode.Read(fs.dev, fs.sb, parentIno, &parent); err != nil {
		return err
	}
	if parent.Type != inode.TypeDir {
		return tfserr.ENOTDIR.New()
	}

	newIno, aerr := fs.inodeAlloc.Allocate()
	if aerr != nil {
		return aerr
	}

	now := time.Now().Unix()
	child := inode.Inode{
		Ino: uint16(newIno), Valid: true, Type: inode.TypeFile,
		Size: 0, Link: 1, Mode: flags.DefaultFileMode, Mtime: now, Atime: now,
	}
	if err := inode.Write(fs.dev, fs.sb, newIno, &child); err != nil {
		fs.inodeAlloc.Free(newIno)
		return err
	}

	if err := directory.Add(fs.dev, fs.sb, fs.blockAlloc, &parent, newIno, name); err != nil {
		fs.inodeAlloc.Free(newIno)
		return tfserr.ENOSPC.New()
	}
	return nil
}

// Open resolves path and rejects anything that isn't a regular file.
func (fs *FileSystem) Open(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, rerr := pathwalk.Resolve(fs.dev, fs.sb, superblock.RootIno, path)
	if rerr != nil {
		return rerr
	}
	var in inode.Inode
	if err := inode.Read(fs.dev, fs.sb, ino, &in); err != nil {
		return err
	}
	if in.Type != inode.TypeFile {
		return tfserr.EISDIR.New()
	}
	return nil
}

// Unlink removes a regular file: free its storage, then its directory
// entry. EISDIR if the target is a directory.
func (fs *FileSystem) Unlink(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.removeByName(path, inode.TypeFile)
}

// Rmdir removes a directory, recursively freeing its subtree. ENOTDIR if
// the target is a regular file.
func (fs *FileSystem) Rmdir(path string) *tfserr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.removeByName(path, inode.TypeDir)
}

func (fs *FileSystem) removeByName(path string, want inode.FileType) *tfserr.Error {
	parentIno, name, perr := pathwalk.ResolveParentAndName(fs.dev, fs.sb, superblock.RootIno, path)
	if perr != nil {
		return perr
	}
	var parent inode.Inode
	if err := inode.Read(fs.dev, fs.sb, parentIno, &parent); err != nil {
		return err
	}

	entry, loc, ok, ferr := directory.FindEntryAndLocation(fs.dev, &parent, name)
	if ferr != nil {
		return ferr
	}
	if !ok {
		return tfserr.ENOENT.New()
	}

	var target inode.Inode
	if err := inode.Read(fs.dev, fs.sb, uint32(entry.Ino), &target); err != nil {
		return err
	}
	if want == inode.TypeFile && target.Type == inode.TypeDir {
		return tfserr.EISDIR.New()
	}
	if want == inode.TypeDir && target.Type == inode.TypeFile {
		return tfserr.ENOTDIR.New()
	}

	var err *tfserr.Error
	if target.Type == inode.TypeDir {
		err = fs.removeDirectory(&target)
	} else {
		err = fs.removeFile(&target)
	}
	if err != nil {
		return err
	}
	return directory.RemoveEntry(fs.dev, &parent, loc)
}

// Truncate, Flush, Utimens, Release, and ReleaseDir are named no-ops: this
// design has no real truncate, no write-behind cache to flush, and no
// timestamps settable from outside getattr/readdir, matching the stub
// callbacks in the original fuse_operations table.
func (fs *FileSystem) Truncate(path string, size int64) *tfserr.Error { return nil }
func (fs *FileSystem) Flush(path string) *tfserr.Error                { return nil }
func (fs *FileSystem) Utimens(path string) *tfserr.Error              { return nil }
func (fs *FileSystem) Release(path string) *tfserr.Error              { return nil }
func (fs *FileSystem) ReleaseDir(path string) *tfserr.Error           { return nil }

func asErr(err error) *tfserr.Error {
	if e, ok := err.(*tfserr.Error); ok {
		return e
	}
	return tfserr.EIO.Wrap(err)
}
