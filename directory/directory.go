// Package directory implements the packed directory-entry format: lookup,
// insert, and removal of a name inside a directory inode's data blocks.
//
// Grounded line-for-line on rufs.c's dir_find_entry_and_location, dir_find,
// dir_add, remove_entry_from_directory, and dir_remove. Dirent packing
// (fixed name buffer plus explicit length) follows the shape of
// dargueta-disko/drivers/unixv1/dirents.go's RawDirent.
package directory

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/tinyfs/tfs/allocator"
	"github.com/tinyfs/tfs/bitmap"
	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/inode"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfserr"
)

const NameMax = superblock.NameMax

// DirentSize is the fixed on-disk stride of one directory entry slot:
// ino(2) + valid(2) + name(208) + len(2).
const DirentSize = 2 + 2 + NameMax + 2

// SlotsPerBlock is how many dirent slots fit in one data block.
const SlotsPerBlock = blockdev.BlockSize / DirentSize

// Dirent is one directory entry slot.
type Dirent struct {
	Ino   uint16
	Valid bool
	Name  string
	Len   uint16
}

func encodeDirent(d Dirent) []byte {
	buf := make([]byte, DirentSize)
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, d.Ino)
	validFlag := uint16(0)
	if d.Valid {
		validFlag = 1
	}
	binary.Write(w, binary.LittleEndian, validFlag)
	nameBuf := make([]byte, NameMax)
	copy(nameBuf, d.Name)
	w.Write(nameBuf)
	binary.Write(w, binary.LittleEndian, d.Len)
	return buf
}

func decodeDirent(raw []byte) Dirent {
	var d Dirent
	r := bytes.NewReader(raw)
	binary.Read(r, binary.LittleEndian, &d.Ino)
	var validFlag uint16
	binary.Read(r, binary.LittleEndian, &validFlag)
	d.Valid = validFlag != 0
	nameBuf := make([]byte, NameMax)
	r.Read(nameBuf)
	if nul := bytes.IndexByte(nameBuf, 0); nul >= 0 {
		nameBuf = nameBuf[:nul]
	}
	d.Name = string(nameBuf)
	binary.Read(r, binary.LittleEndian, &d.Len)
	return d
}

// Location pinpoints a dirent slot inside a directory: which direct block
// (by index into Direct[]) and which slot within that block.
type Location struct {
	BlockIndex int
	SlotIndex  int
}

// FindEntryAndLocation scans every slot of every used direct block of dir
// looking for name, reporting both the matching entry and where it lives.
// This is dir_find_entry_and_location.
func FindEntryAndLocation(dev *blockdev.Device, dir *inode.Inode, name string) (Dirent, Location, bool, *tfserr.Error) {
	blockCount := int(blockdev.BlocksForBytes(uint64(dir.Size)))
	if blockCount > inode.NDirect || dir.Type != inode.TypeDir || !dir.Valid {
		return Dirent{}, Location{}, false, tfserr.EINVAL.New()
	}

	remaining := dir.Size
	buf := make([]byte, blockdev.BlockSize)
	for i := 0; i < blockCount; i++ {
		blockNum := dir.Direct[i]
		if err := dev.ReadBlock(blockNum, buf); err != nil {
			return Dirent{}, Location{}, false, asErr(err)
		}
		for j := 0; j < SlotsPerBlock; j++ {
			if remaining < DirentSize {
				return Dirent{}, Location{}, false, nil
			}
			d := decodeDirent(buf[j*DirentSize : (j+1)*DirentSize])
			if d.Valid && d.Name == name {
				return d, Location{BlockIndex: i, SlotIndex: j}, true, nil
			}
			remaining -= DirentSize
		}
	}
	return Dirent{}, Location{}, false, nil
}

// Find reads the directory inode for ino and looks up name in it.
func Find(dev *blockdev.Device, sb *superblock.Superblock, ino uint32, name string) (Dirent, bool, *tfserr.Error) {
	var dirInode inode.Inode
	if err := inode.Read(dev, sb, ino, &dirInode); err != nil {
		return Dirent{}, false, err
	}
	d, _, ok, err := FindEntryAndLocation(dev, &dirInode, name)
	return d, ok, err
}

// Add inserts a new directory entry named name, pointing at childIno, into
// dir (which must already be populated and persisted). It mutates dir's
// in-memory Size/Direct/Link fields to match what is written to disk. This
// is dir_add: dir.Link counts child entries, so this always bumps it.
func Add(dev *blockdev.Device, sb *superblock.Superblock, blockAlloc *allocator.Allocator, dir *inode.Inode, childIno uint32, name string) *tfserr.Error {
	return addEntry(dev, sb, blockAlloc, dir, childIno, name, true)
}

// AddSelfEntry inserts "." or ".." into dir — a self-reference, not a child
// of dir — so unlike Add it leaves dir.Link untouched. A freshly-created
// directory's own link count stays 0 until something else links into it.
func AddSelfEntry(dev *blockdev.Device, sb *superblock.Superblock, blockAlloc *allocator.Allocator, dir *inode.Inode, targetIno uint32, name string) *tfserr.Error {
	return addEntry(dev, sb, blockAlloc, dir, targetIno, name, false)
}

func addEntry(dev *blockdev.Device, sb *superblock.Superblock, blockAlloc *allocator.Allocator, dir *inode.Inode, childIno uint32, name string, bumpLink bool) *tfserr.Error {
	blockCount := int(blockdev.BlocksForBytes(uint64(dir.Size)))
	if blockCount > inode.NDirect || dir.Type != inode.TypeDir || !dir.Valid {
		return tfserr.EINVAL.New()
	}

	buf := make([]byte, blockdev.BlockSize)
	remaining := dir.Size
	targetBlockIdx, targetSlotIdx := -1, -1

scan:
	for i := 0; i < blockCount; i++ {
		if err := dev.ReadBlock(dir.Direct[i], buf); err != nil {
			return asErr(err)
		}
		for j := 0; j < SlotsPerBlock; j++ {
			if remaining < DirentSize {
				break scan
			}
			d := decodeDirent(buf[j*DirentSize : (j+1)*DirentSize])
			if d.Valid && d.Name == name {
				return tfserr.EEXIST.New()
			}
			if !d.Valid && targetBlockIdx == -1 {
				targetBlockIdx = i
				targetSlotIdx = j
			}
			remaining -= DirentSize
		}
	}

	var allocatedBlockNum uint32
	allocatedNewBlock := false
	var dataBitmap *bitmap.Map

	origLink := dir.Link
	origSize := dir.Size
	origDirect := dir.Direct

	if targetBlockIdx == -1 {
		if blockCount >= inode.NDirect {
			return tfserr.ENOSPC.New()
		}
		m, err := blockAlloc.LoadBitmap()
		if err != nil {
			return err
		}
		dataBitmap = m
		newBlockNum, aerr := blockAlloc.AllocateNoWrite(m)
		if aerr != nil {
			return aerr
		}
		allocatedBlockNum = newBlockNum
		allocatedNewBlock = true

		for i := range buf {
			buf[i] = 0
		}
		dir.Size += blockdev.BlockSize
		dir.Direct[blockCount] = allocatedBlockNum
		targetBlockIdx = blockCount
		targetSlotIdx = 0
	} else if err := dev.ReadBlock(dir.Direct[targetBlockIdx], buf); err != nil {
		return asErr(err)
	}

	if bumpLink {
		dir.Link++
	}
	if err := inode.Write(dev, sb, uint32(dir.Ino), dir); err != nil {
		dir.Link = origLink
		dir.Size = origSize
		dir.Direct = origDirect
		return err
	}

	slot := encodeDirent(Dirent{
		Ino:   uint16(childIno),
		Valid: true,
		Name:  name,
		Len:   uint16(len(name)),
	})
	copy(buf[targetSlotIdx*DirentSize:(targetSlotIdx+1)*DirentSize], slot)

	if err := dev.WriteBlock(dir.Direct[targetBlockIdx], buf); err != nil {
		dir.Link = origLink
		dir.Size = origSize
		dir.Direct = origDirect
		inode.Write(dev, sb, uint32(dir.Ino), dir)
		return asErr(err)
	}

	if allocatedNewBlock {
		if err := blockAlloc.PersistBitmap(dataBitmap); err != nil {
			dir.Link = origLink
			dir.Size = origSize
			dir.Direct = origDirect
			inode.Write(dev, sb, uint32(dir.Ino), dir)
			return err
		}
	}
	return nil
}

// Entry pairs a decoded dirent with the slot it lives in, for callers that
// need to remove exactly what they just listed.
type Entry struct {
	Dirent   Dirent
	Location Location
}

// List returns every valid entry in dir, in on-disk order, including "."
// and "..". Callers that present a listing to a user (readdir) filter
// those two out themselves; callers that walk a subtree for removal need
// them intact so they can skip them explicitly.
func List(dev *blockdev.Device, dir *inode.Inode) ([]Entry, *tfserr.Error) {
	blockCount := int(blockdev.BlocksForBytes(uint64(dir.Size)))
	if blockCount > inode.NDirect || dir.Type != inode.TypeDir || !dir.Valid {
		return nil, tfserr.EINVAL.New()
	}

	var out []Entry
	remaining := dir.Size
	buf := make([]byte, blockdev.BlockSize)
	for i := 0; i < blockCount; i++ {
		if err := dev.ReadBlock(dir.Direct[i], buf); err != nil {
			return nil, asErr(err)
		}
		for j := 0; j < SlotsPerBlock; j++ {
			if remaining < DirentSize {
				return out, nil
			}
			d := decodeDirent(buf[j*DirentSize : (j+1)*DirentSize])
			if d.Valid {
				out = append(out, Entry{Dirent: d, Location: Location{BlockIndex: i, SlotIndex: j}})
			}
			remaining -= DirentSize
		}
	}
	return out, nil
}

// RemoveEntry zeroes the slot at loc in place. The slot becomes reusable by
// a later Add. This is remove_entry_from_directory; it does not compact.
func RemoveEntry(dev *blockdev.Device, dir *inode.Inode, loc Location) *tfserr.Error {
	buf := make([]byte, blockdev.BlockSize)
	if err := dev.ReadBlock(dir.Direct[loc.BlockIndex], buf); err != nil {
		return asErr(err)
	}
	zero := make([]byte, DirentSize)
	copy(buf[loc.SlotIndex*DirentSize:(loc.SlotIndex+1)*DirentSize], zero)
	if err := dev.WriteBlock(dir.Direct[loc.BlockIndex], buf); err != nil {
		return asErr(err)
	}
	return nil
}

// Remove locates name inside dir and clears its slot, returning the
// removed entry so the caller can act on the inode it referenced. This is
// dir_remove's entry-invalidation half.
func Remove(dev *blockdev.Device, dir *inode.Inode, name string) (Dirent, *tfserr.Error) {
	d, loc, ok, err := FindEntryAndLocation(dev, dir, name)
	if err != nil {
		return Dirent{}, err
	}
	if !ok {
		return Dirent{}, tfserr.ENOENT.New()
	}
	if err := RemoveEntry(dev, dir, loc); err != nil {
		return Dirent{}, err
	}
	return d, nil
}

func asErr(err error) *tfserr.Error {
	if e, ok := err.(*tfserr.Error); ok {
		return e
	}
	return tfserr.EIO.Wrap(err)
}
