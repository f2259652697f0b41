// Package bitmap implements the in-use bit arrays backing the inode and
// data block allocators, plus the load/store round trip to a fixed block
// range on a blockdev.Device.
//
// Grounded on dargueta-disko/drivers/common/allocatormap.go's use of
// boljen/go-bitmap for the underlying bit storage, generalized with the
// byte-wise-0xFF-skip, low-to-high-bit scan order from the original rufs.h
// (get_bitmap/set_bitmap/get_avail_ino_no_wr) — the spec's determinism
// guarantees (first free inode after mkfs is 1, first free data block is
// the first past the reserved prefix) depend on that exact scan order,
// which dargueta-disko's own linear bit-by-bit Allocator.AllocateBlock does
// not reproduce.
package bitmap

import (
	gobitmap "github.com/boljen/go-bitmap"

	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/tfserr"
)

// Map is a fixed-size bit array, one bit per inode or data block.
type Map struct {
	bits gobitmap.Bitmap
	n    int
}

// New allocates a zeroed Map with room for n bits.
func New(n int) *Map {
	return &Map{bits: gobitmap.New(n), n: n}
}

func (m *Map) Get(i int) bool    { return m.bits.Get(i) }
func (m *Map) Set(i int)         { m.bits.Set(i, true) }
func (m *Map) Clear(i int)       { m.bits.Set(i, false) }
func (m *Map) Len() int          { return m.n }
func (m *Map) Bytes() []byte     { return []byte(m.bits) }

// FindFirstClear scans for the lowest-index clear bit, skipping whole
// 0xFF bytes as a fast path and otherwise scanning bits low-to-high within
// a byte — the exact order get_avail_ino_no_wr/get_avail_blkno_no_wr use,
// which is what makes allocation order deterministic and testable.
func (m *Map) FindFirstClear() (int, bool) {
	raw := m.Bytes()
	numBytes := (m.n + 7) / 8
	for i := 0; i < numBytes && i < len(raw); i++ {
		if raw[i] == 0xFF {
			continue
		}
		for j := 0; j < 8; j++ {
			idx := i*8 + j
			if idx >= m.n {
				break
			}
			if !m.Get(idx) {
				return idx, true
			}
		}
	}
	return -1, false
}

// byteSizeForBits returns how many bytes are needed to store n bits, the
// same rounding rufs.h's `(max_inum + 7) / 8` performs.
func byteSizeForBits(n uint32) uint32 {
	return (n + 7) / 8
}

// LoadFromDevice reads a bitmap of n bits from the block range starting at
// startBlock, the inverse of the original's get_inode_bitmap/
// get_data_bitmap.
func LoadFromDevice(dev *blockdev.Device, startBlock uint32, n uint32) (*Map, error) {
	byteSize := byteSizeForBits(n)
	blockCount := blockdev.BlocksForBytes(uint64(byteSize))
	buf := make([]byte, blockCount*blockdev.BlockSize)
	if err := dev.ReadRun(startBlock, blockCount, buf); err != nil {
		return nil, err
	}
	m := New(int(n))
	copy(m.Bytes(), buf[:byteSize])
	return m, nil
}

// StoreToDevice persists m back to the block range starting at startBlock,
// zero-padding the tail block the way update_inode_bitmap/
// update_data_bitmap do.
func StoreToDevice(dev *blockdev.Device, startBlock uint32, n uint32, m *Map) error {
	if uint32(m.Len()) != n {
		return tfserr.EINVAL.WithMessage("bitmap size does not match region size")
	}
	byteSize := byteSizeForBits(n)
	blockCount := blockdev.BlocksForBytes(uint64(byteSize))
	buf := make([]byte, blockCount*blockdev.BlockSize)
	copy(buf, m.Bytes())
	return dev.WriteRun(startBlock, blockCount, buf)
}
