// Package pathwalk resolves slash-separated paths to inode numbers by
// walking one directory component at a time.
//
// Grounded on rufs.c's get_node_by_path and split_string: the original
// splits a path into components with strtok and repeatedly calls dir_find
// from the current node; this does the same with strings.Split plus
// directory.Find.
package pathwalk

import (
	"strings"

	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/directory"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfserr"
)

// Split breaks path into its non-empty components, the equivalent of
// split_string against "/". "/" and "" split to no components; "." and
// ".." are kept as ordinary components, resolved through the directory
// entries of those names.
func Split(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve walks path starting at anchor (normally the root inode) and
// returns the inode number of the final component. This is
// get_node_by_path.
func Resolve(dev *blockdev.Device, sb *superblock.Superblock, anchor uint32, path string) (uint32, *tfserr.Error) {
	components := Split(path)
	cur := anchor
	for _, name := range components {
		d, ok, err := directory.Find(dev, sb, cur, name)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, tfserr.ENOENT.New()
		}
		cur = uint32(d.Ino)
	}
	return cur, nil
}

// ResolveParentAndName walks every component of path except the last,
// returning the parent directory's inode number and the final component's
// name unresolved — for callers (create, mkdir, unlink, rmdir) that need to
// insert or remove an entry in the parent rather than resolve through it.
func ResolveParentAndName(dev *blockdev.Device, sb *superblock.Superblock, anchor uint32, path string) (uint32, string, *tfserr.Error) {
	components := Split(path)
	if len(components) == 0 {
		return 0, "", tfserr.EINVAL.WithMessage("path has no final component")
	}
	parent, err := Resolve(dev, sb, anchor, strings.Join(components[:len(components)-1], "/"))
	if err != nil {
		return 0, "", err
	}
	return parent, components[len(components)-1], nil
}
