// Package inode implements the inode table: translating an inode number to
// a slot inside the single contiguous inode region and back.
//
// Grounded on rufs.c's readi/writei — the whole inode region is read (or
// rewritten) as one contiguous run, rather than computing per-inode block
// math, because the region is at most a handful of blocks. Field layout
// mirrors dargueta-disko/drivers/unixv1/inode.go's split between an
// on-disk record and the richer in-memory type.
package inode

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfserr"
)

type FileType uint32

const (
	TypeDir  FileType = 0
	TypeFile FileType = 1
)

const NDirect = superblock.NDirect
const NIndirect = superblock.NIndirect

// RecordSize is the fixed on-disk stride of one inode record.
const RecordSize = 2 + 2 + 4 + 4 + 4 + (NDirect * 4) + (NIndirect * 4) + 4 + 8 + 8

// Inode is the in-memory form of one file or directory descriptor.
type Inode struct {
	Ino      uint16
	Valid    bool
	Size     uint32
	Type     FileType
	Link     uint32
	Direct   [NDirect]uint32
	Indirect [NIndirect]uint32
	Mode     uint32
	Mtime    int64
	Atime    int64
}

func (in *Inode) encode() []byte {
	buf := make([]byte, RecordSize)
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, in.Ino)
	validFlag := uint16(0)
	if in.Valid {
		validFlag = 1
	}
	binary.Write(w, binary.LittleEndian, validFlag)
	binary.Write(w, binary.LittleEndian, in.Size)
	binary.Write(w, binary.LittleEndian, uint32(in.Type))
	binary.Write(w, binary.LittleEndian, in.Link)
	for _, d := range in.Direct {
		binary.Write(w, binary.LittleEndian, d)
	}
	for _, d := range in.Indirect {
		binary.Write(w, binary.LittleEndian, d)
	}
	binary.Write(w, binary.LittleEndian, in.Mode)
	binary.Write(w, binary.LittleEndian, in.Mtime)
	binary.Write(w, binary.LittleEndian, in.Atime)
	return buf
}

func decode(raw []byte) Inode {
	var in Inode
	r := bytes.NewReader(raw)
	binary.Read(r, binary.LittleEndian, &in.Ino)
	var validFlag uint16
	binary.Read(r, binary.LittleEndian, &validFlag)
	in.Valid = validFlag != 0
	binary.Read(r, binary.LittleEndian, &in.Size)
	var typ uint32
	binary.Read(r, binary.LittleEndian, &typ)
	in.Type = FileType(typ)
	binary.Read(r, binary.LittleEndian, &in.Link)
	for i := range in.Direct {
		binary.Read(r, binary.LittleEndian, &in.Direct[i])
	}
	for i := range in.Indirect {
		binary.Read(r, binary.LittleEndian, &in.Indirect[i])
	}
	binary.Read(r, binary.LittleEndian, &in.Mode)
	binary.Read(r, binary.LittleEndian, &in.Mtime)
	binary.Read(r, binary.LittleEndian, &in.Atime)
	return in
}

func regionBlocks(sb *superblock.Superblock) uint32 {
	return sb.InodeRegionBlocks(RecordSize)
}

func readRegion(dev *blockdev.Device, sb *superblock.Superblock) ([]byte, *tfserr.Error) {
	blocks := regionBlocks(sb)
	buf := make([]byte, blocks*blockdev.BlockSize)
	if err := dev.ReadRun(sb.IStartBlk, blocks, buf); err != nil {
		return nil, asErr(err)
	}
	return buf, nil
}

// Read copies the inode at ino out of the on-disk region into out.
func Read(dev *blockdev.Device, sb *superblock.Superblock, ino uint32, out *Inode) *tfserr.Error {
	if ino >= uint32(sb.MaxInum) {
		return tfserr.EINVAL.WithMessage("inode number out of range")
	}
	region, err := readRegion(dev, sb)
	if err != nil {
		return err
	}
	offset := int(ino) * RecordSize
	*out = decode(region[offset : offset+RecordSize])
	return nil
}

// Write rewrites the inode at ino in place, reading the whole region,
// patching the one slot, and writing the whole region back — exactly
// writei's contiguous read-modify-write.
func Write(dev *blockdev.Device, sb *superblock.Superblock, ino uint32, in *Inode) *tfserr.Error {
	if ino >= uint32(sb.MaxInum) {
		return tfserr.EINVAL.WithMessage("inode number out of range")
	}
	region, err := readRegion(dev, sb)
	if err != nil {
		return err
	}
	offset := int(ino) * RecordSize
	copy(region[offset:offset+RecordSize], in.encode())
	blocks := regionBlocks(sb)
	if werr := dev.WriteRun(sb.IStartBlk, blocks, region); werr != nil {
		return asErr(werr)
	}
	return nil
}

func asErr(err error) *tfserr.Error {
	if e, ok := err.(*tfserr.Error); ok {
		return e
	}
	return tfserr.EIO.Wrap(err)
}
