// Package allocator implements the inode and data block allocators: find
// the first free index in a bitmap, flip it, persist (or, for batched
// callers, leave persistence to the caller).
//
// Grounded on dargueta-disko/drivers/common/allocatormap.go's Allocator
// type, split into write/no-write pairs the way rufs.c splits
// get_avail_ino/get_avail_ino_no_wr and get_avail_blkno/
// get_avail_blkno_no_wr.
package allocator

import (
	"github.com/tinyfs/tfs/bitmap"
	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/tfserr"
)

// Region describes where a bitmap lives on disk and how many bits it has.
type Region struct {
	StartBlock uint32
	Count      uint32
}

// Allocator is a bitmap-backed allocator over a fixed device region.
type Allocator struct {
	dev    *blockdev.Device
	region Region
}

func New(dev *blockdev.Device, region Region) *Allocator {
	return &Allocator{dev: dev, region: region}
}

// Allocate loads the bitmap, scans for the first clear bit, sets it,
// persists the bitmap, and returns the allocated index. This is
// get_avail_ino/get_avail_blkno.
func (a *Allocator) Allocate() (uint32, *tfserr.Error) {
	m, err := bitmap.LoadFromDevice(a.dev, a.region.StartBlock, a.region.Count)
	if err != nil {
		return 0, asErr(err)
	}
	idx, ok := m.FindFirstClear()
	if !ok {
		return 0, tfserr.ENOSPC.New()
	}
	m.Set(idx)
	if err := bitmap.StoreToDevice(a.dev, a.region.StartBlock, a.region.Count, m); err != nil {
		return 0, asErr(err)
	}
	return uint32(idx), nil
}

// AllocateNoWrite scans and flips bit in an already-loaded bitmap without
// persisting it, for callers (like directory.Add) that batch several
// allocations and persist once at the end. This is get_avail_*_no_wr.
func (a *Allocator) AllocateNoWrite(m *bitmap.Map) (uint32, *tfserr.Error) {
	idx, ok := m.FindFirstClear()
	if !ok {
		return 0, tfserr.ENOSPC.New()
	}
	m.Set(idx)
	return uint32(idx), nil
}

// LoadBitmap reads the region's bitmap into memory for a caller that wants
// to batch several AllocateNoWrite calls before persisting once.
func (a *Allocator) LoadBitmap() (*bitmap.Map, *tfserr.Error) {
	m, err := bitmap.LoadFromDevice(a.dev, a.region.StartBlock, a.region.Count)
	if err != nil {
		return nil, asErr(err)
	}
	return m, nil
}

// PersistBitmap writes m back to the region, the second half of a batched
// AllocateNoWrite sequence.
func (a *Allocator) PersistBitmap(m *bitmap.Map) *tfserr.Error {
	if err := bitmap.StoreToDevice(a.dev, a.region.StartBlock, a.region.Count, m); err != nil {
		return asErr(err)
	}
	return nil
}

// Free clears index n's bit and persists the bitmap.
func (a *Allocator) Free(n uint32) *tfserr.Error {
	if n >= a.region.Count {
		return tfserr.EINVAL.New()
	}
	m, err := bitmap.LoadFromDevice(a.dev, a.region.StartBlock, a.region.Count)
	if err != nil {
		return asErr(err)
	}
	m.Clear(int(n))
	if err := bitmap.StoreToDevice(a.dev, a.region.StartBlock, a.region.Count, m); err != nil {
		return asErr(err)
	}
	return nil
}

// Mark sets index n's bit and persists the bitmap, used by mkfs to
// pre-reserve the metadata prefix of the data bitmap.
func (a *Allocator) Mark(indices ...uint32) *tfserr.Error {
	m, err := bitmap.LoadFromDevice(a.dev, a.region.StartBlock, a.region.Count)
	if err != nil {
		return asErr(err)
	}
	for _, n := range indices {
		m.Set(int(n))
	}
	if err := bitmap.StoreToDevice(a.dev, a.region.StartBlock, a.region.Count, m); err != nil {
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
