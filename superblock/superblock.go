// Package superblock implements the TFS superblock: the fixed-layout
// record that describes where every other region of the diskfile begins,
// written once at mkfs and read once at mount.
//
// Grounded on the region-accounting arithmetic in the original rufs_mkfs
// and the on-disk format table in spec.md §6; marshaled field-by-field with
// encoding/binary rather than an unsafe struct cast, the way the retrieval
// pack's ext4 superblock reader
// (other_examples/80b55384_trustelem-go-diskfs__filesystem-ext4-superblock.go.go)
// decodes its own fixed layout.
package superblock

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/tfserr"
)

const Magic = 0x5C3A
const MaxInum = 1024
const MaxDnum = 16384
const NDirect = 16
const NIndirect = 8
const NameMax = 208
const RootIno = 0

const OnDiskSize = 24 // 4+2+2+4+4+4+4 bytes, see spec.md §6

// Superblock describes the on-disk region layout. It is written once at
// mkfs and never mutated for the lifetime of the mount.
type Superblock struct {
	Magic       uint32
	MaxInum     uint16
	MaxDnum     uint16
	IBitmapBlk  uint32
	DBitmapBlk  uint32
	IStartBlk   uint32
	DStartBlk   uint32
}

// Layout computes the block-aligned region boundaries for a fresh
// filesystem with the fixed MaxInum/MaxDnum constants and the given inode
// record size, mirroring
// rufs_mkfs's running block_num accumulator.
func Layout(inodeRecordSize int) Superblock {
	sb := Superblock{
		Magic:   Magic,
		MaxInum: MaxInum,
		MaxDnum: MaxDnum,
	}

	blockNum := uint32(blockdev.BlocksForBytes(OnDiskSize))

	sb.IBitmapBlk = blockNum
	inodeBitmapBytes := uint64((MaxInum + 7) / 8)
	blockNum += blockdev.BlocksForBytes(inodeBitmapBytes)

	sb.DBitmapBlk = blockNum
	dataBitmapBytes := uint64((MaxDnum + 7) / 8)
	blockNum += blockdev.BlocksForBytes(dataBitmapBytes)

	sb.IStartBlk = blockNum
	inodesBytes := uint64(MaxInum) * uint64(inodeRecordSize)
	blockNum += blockdev.BlocksForBytes(inodesBytes)

	sb.DStartBlk = blockNum
	return sb
}

// InodeRegionBlocks returns how many blocks the inode table spans.
func (sb *Superblock) InodeRegionBlocks(inodeRecordSize int) uint32 {
	return blockdev.BlocksForBytes(uint64(sb.MaxInum) * uint64(inodeRecordSize))
}

// Encode marshals the superblock into its fixed 24-byte on-disk form,
// writing straight into a pre-sized buffer with bytewriter the way
// file_systems/unixv1/format.go marshals its own on-disk header fields.
func (sb *Superblock) Encode() []byte {
	out := make([]byte, OnDiskSize)
	w := bytewriter.New(out)
	binary.Write(w, binary.LittleEndian, sb.Magic)
	binary.Write(w, binary.LittleEndian, sb.MaxInum)
	binary.Write(w, binary.LittleEndian, sb.MaxDnum)
	binary.Write(w, binary.LittleEndian, sb.IBitmapBlk)
	binary.Write(w, binary.LittleEndian, sb.DBitmapBlk)
	binary.Write(w, binary.LittleEndian, sb.IStartBlk)
	binary.Write(w, binary.LittleEndian, sb.DStartBlk)
	return out
}

// Decode parses a superblock out of raw, returning EINVAL if the magic
// number doesn't match.
func Decode(raw []byte) (*Superblock, *tfserr.Error) {
	if len(raw) < OnDiskSize {
		return nil, tfserr.EINVAL.WithMessage("superblock buffer too short")
	}
	r := bytes.NewReader(raw)
	var sb Superblock
	binary.Read(r, binary.LittleEndian, &sb.Magic)
	binary.Read(r, binary.LittleEndian, &sb.MaxInum)
	binary.Read(r, binary.LittleEndian, &sb.MaxDnum)
	binary.Read(r, binary.LittleEndian, &sb.IBitmapBlk)
	binary.Read(r, binary.LittleEndian, &sb.DBitmapBlk)
	binary.Read(r, binary.LittleEndian, &sb.IStartBlk)
	binary.Read(r, binary.LittleEndian, &sb.DStartBlk)
	if sb.Magic != Magic {
		return nil, tfserr.EINVAL.WithMessage("bad superblock magic number")
	}
	return &sb, nil
}

// Read loads the superblock from block 0 of dev.
func Read(dev *blockdev.Device) (*Superblock, *tfserr.Error) {
	buf := make([]byte, blockdev.BlockSize)
	if err := dev.ReadBlock(0, buf); err != nil {
		return nil, asErr(err)
	}
	return Decode(buf)
}

// Write persists sb to block 0 of dev.
func Write(dev *blockdev.Device, sb *Superblock) *tfserr.Error {
	buf := make([]byte, blockdev.BlockSize)
	copy(buf, sb.Encode())
	if err := dev.WriteBlock(0, buf); err != nil {
		return asErr(err)
	}
	return nil
}

func asErr(err error) *tfserr.Error {
	if e, ok := err.(*tfserr.Error); ok {
		return e
	}
	return tfserr.EIO.Wrap(err)
}
