// Package fuseadapter wires fsops.FileSystem into github.com/hanwen/go-fuse/v2's
// node-based FUSE server. Every method here does nothing but translate FUSE
// argument and return shapes to and from calls into fsops — none of
// the filesystem's own logic lives here, mirroring the thin inode_fuse.go
// adapter layer over squashfs's own tree-walking code.
package fuseadapter

import (
	"context"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/tinyfs/tfs/fsops"
	"github.com/tinyfs/tfs/tfserr"
)

// Node is one FUSE inode, identified by its absolute path in the TFS tree
// rather than by a cached handle — every call re-enters fsops with the full
// path, so Node itself holds no filesystem state of its own.
type Node struct {
	fs.Inode

	fsys *fsops.FileSystem
	path string
}

var (
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
)

// Root builds the FUSE root node for an already-mounted fsys.
func Root(fsys *fsops.FileSystem) *Node {
	return &Node{fsys: fsys, path: "/"}
}

func (n *Node) childPath(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return path.Join(n.path, name)
}

func (n *Node) fillAttr(st fsops.Stat, out *fuse.Attr) {
	out.Ino = uint64(st.Ino)
	out.Mode = st.Mode
	out.Nlink = st.Nlink
	out.Size = uint64(st.Size)
	out.Blocks = uint64(st.Blocks)
	out.Atime = uint64(st.Atime)
	out.Mtime = uint64(st.Mtime)
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return errnoFor(err)
	}
	n.fillAttr(st, &out.Attr)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	st, err := n.fsys.GetAttr(childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	n.fillAttr(st, &out.Attr)
	mode := uint32(fuse.S_IFREG)
	if st.IsDir {
		mode = fuse.S_IFDIR
	}
	child := &Node{fsys: n.fsys, path: childPath}
	stable := fs.StableAttr{Mode: mode, Ino: uint64(st.Ino)}
	return n.NewInode(ctx, child, stable), 0
}

type dirStream struct {
	names []string
	i     int
}

func (d *dirStream) HasNext() bool { return d.i < len(d.names) }
func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	name := d.names[d.i]
	d.i++
	return fuse.DirEntry{Name: name}, 0
}
func (d *dirStream) Close() {}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.fsys.ReadDir(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	return &dirStream{names: names}, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.fsys.Mkdir(childPath); err != nil {
		return nil, errnoFor(err)
	}
	st, err := n.fsys.GetAttr(childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	n.fillAttr(st, &out.Attr)
	child := &Node{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: uint64(st.Ino)}), 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	if err := n.fsys.Rmdir(n.childPath(name)); err != nil {
		return errnoFor(err)
	}
	return 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := n.fsys.Unlink(n.childPath(name)); err != nil {
		return errnoFor(err)
	}
	return 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.fsys.Create(childPath); err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	st, err := n.fsys.GetAttr(childPath)
	if err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	n.fillAttr(st, &out.Attr)
	child := &Node{fsys: n.fsys, path: childPath}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG, Ino: uint64(st.Ino)})
	return inode, nil, 0, 0
}

func (n *Node) Open(ctx context.Context, openFlags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if err := n.fsys.Open(n.path); err != nil {
		return nil, 0, errnoFor(err)
	}
	return nil, 0, 0
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	count, err := n.fsys.Read(n.path, dest, off)
	if err != nil {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(dest[:count]), 0
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	count, err := n.fsys.Write(n.path, data, off)
	if err != nil {
		return uint32(count), errnoFor(err)
	}
	return uint32(count), 0
}

// errnoFor maps a tfserr.Code to the syscall.Errno FUSE expects.
func errnoFor(err *tfserr.Error) syscall.Errno {
	switch err.Code {
	case tfserr.ENOENT:
		return syscall.ENOENT
	case tfserr.ENOTDIR:
		return syscall.ENOTDIR
	case tfserr.EISDIR:
		return syscall.EISDIR
	case tfserr.EEXIST:
		return syscall.EEXIST
	case tfserr.ENOSPC:
		return syscall.ENOSPC
	case tfserr.ENOMEM:
		return syscall.ENOMEM
	case tfserr.EINVAL:
		return syscall.EINVAL
	case tfserr.EALREADY:
		return syscall.EALREADY
	default:
		return syscall.EIO
	}
}
