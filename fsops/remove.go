package fsops

import (
	"github.com/hashicorp/go-multierror"

	"github.com/tinyfs/tfs/directory"
	"github.com/tinyfs/tfs/inode"
	"github.com/tinyfs/tfs/tfserr"
)

// removeFile frees every block a regular file's inode references — its
// direct blocks, then every indirect table's referenced blocks followed
// by the table block itself — then zeroes and frees the inode. This is
// remove_this_file. A regular file is only ever referenced by one
// directory entry in this design, so there is no link-count check: it
// always frees.
func (fs *FileSystem) removeFile(in *inode.Inode) *tfserr.Error {
	var errs *multierror.Error

	for _, b := range in.Direct {
		if b == 0 {
			continue
		}
		if err := fs.freeDataBlock(b); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	for _, t := range in.Indirect {
		if t == 0 {
			continue
		}
		table, terr := readIndirectTable(fs.dev, t)
		if terr != nil {
			errs = multierror.Append(errs, terr)
			continue
		}
		for _, b := range table {
			if b == 0 {
				continue
			}
			if err := fs.freeDataBlock(b); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		if err := fs.freeDataBlock(t); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	zero := inode.Inode{Ino: in.Ino}
	if err := inode.Write(fs.dev, fs.sb, uint32(in.Ino), &zero); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := fs.inodeAlloc.Free(uint32(in.Ino)); err != nil {
		errs = multierror.Append(errs, err)
	}
	return wrapMultierror(errs)
}

// removeDirectory recurses into every entry other than "." and "..",
// freeing each child by type before invalidating its slot, then frees the
// directory's own blocks and inode via removeFile. This is
// remove_this_dir. Partial failures deep in the subtree are collected
// rather than aborting the walk, so one bad block doesn't leave siblings
// unreclaimed.
func (fs *FileSystem) removeDirectory(in *inode.Inode) *tfserr.Error {
	var errs *multierror.Error

	entries, lerr := directory.List(fs.dev, in)
	if lerr != nil {
		errs = multierror.Append(errs, lerr)
	}

	for _, e := range entries {
		if e.Dirent.Name == "." || e.Dirent.Name == ".." {
			continue
		}
		var child inode.Inode
		if err := inode.Read(fs.dev, fs.sb, uint32(e.Dirent.Ino), &child); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		var childErr *tfserr.Error
		if child.Type == inode.TypeDir {
			childErr = fs.removeDirectory(&child)
		} else {
			childErr = fs.removeFile(&child)
		}
		if childErr != nil {
			errs = multierror.Append(errs, childErr)
		}

		if err := directory.RemoveEntry(fs.dev, in, e.Location); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := fs.removeFile(in); err != nil {
		errs = multierror.Append(errs, err)
	}
	return wrapMultierror(errs)
}

func (fs *FileSystem) freeDataBlock(b uint32) *tfserr.Error {
	if err := fs.zeroBlock(b); err != nil {
		return err
	}
	return fs.blockAlloc.Free(b)
}

// wrapMultierror flattens an accumulated *multierror.Error back into the
// single *tfserr.Error every fsops method returns, reporting EIO with the
// aggregated text when anything went wrong and nil otherwise.
func wrapMultierror(errs *multierror.Error) *tfserr.Error {
	if errs == nil || errs.Len() == 0 {
		return nil
	}
	return tfserr.EIO.WithMessage(errs.Error())
}
