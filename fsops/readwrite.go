package fsops

import (
	"encoding/binary"
	"time"

	"github.com/tinyfs/tfs/bitmap"
	"github.com/tinyfs/tfs/blockdev"
	"github.com/tinyfs/tfs/inode"
	"github.com/tinyfs/tfs/pathwalk"
	"github.com/tinyfs/tfs/superblock"
	"github.com/tinyfs/tfs/tfserr"
)

// Read copies up to len(buf) bytes of path's content starting at offset
// into buf, returning how many bytes were actually copied. Holes (an
// unallocated block within the addressed range) read back as zero.
func (fs *FileSystem) Read(path string, buf []byte, offset int64) (int, *tfserr.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	size := len(buf)
	if size == 0 {
		return 0, nil
	}

	ino, rerr := pathwalk.Resolve(fs.dev, fs.sb, superblock.RootIno, path)
	if rerr != nil {
		return 0, rerr
	}
	var in inode.Inode
	if err := inode.Read(fs.dev, fs.sb, ino, &in); err != nil {
		return 0, err
	}
	if in.Type != inode.TypeFile {
		return 0, tfserr.EISDIR.New()
	}

	startBlock := int(offset / blockdev.BlockSize)
	if startBlock >= MaxBlocks {
		return 0, nil
	}
	endBlock := int((offset + int64(size) - 1) / blockdev.BlockSize)
	if endBlock > MaxBlocks-1 {
		endBlock = MaxBlocks - 1
	}

	copied := 0
	blockBuf := make([]byte, blockdev.BlockSize)
	for k := startBlock; k <= endBlock; k++ {
		blockNum, berr := fs.readBlockPointer(&in, k)
		if berr != nil {
			return copied, berr
		}
		blockOffset := 0
		if k == startBlock {
			blockOffset = int(offset % blockdev.BlockSize)
		}
		length := size - copied
		if length > blockdev.BlockSize-blockOffset {
			length = blockdev.BlockSize - blockOffset
		}
		if blockNum == 0 {
			for i := 0; i < length; i++ {
				buf[copied+i] = 0
			}
		} else {
			if err := fs.dev.ReadBlock(blockNum, blockBuf); err != nil {
				return copied, asErr(err)
			}
			copy(buf[copied:copied+length], blockBuf[blockOffset:blockOffset+length])
		}
		copied += length
	}
	return copied, nil
}

// Write overwrites path's content starting at offset with data, allocating
// whatever direct, indirect-table, or indirect-table-entry blocks are
// missing along the way. Already-allocated blocks cover bytes that stay
// untouched elsewhere in the block; size only grows in whole-block
// increments, one per newly allocated data block, matching the original's
// block-granular inode->size bookkeeping.
func (fs *FileSystem) Write(path string, data []byte, offset int64) (int, *tfserr.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	size := len(data)
	if size == 0 {
		return 0, nil
	}

	ino, rerr := pathwalk.Resolve(fs.dev, fs.sb, superblock.RootIno, path)
	if rerr != nil {
		return 0, rerr
	}
	var in inode.Inode
	if err := inode.Read(fs.dev, fs.sb, ino, &in); err != nil {
		return 0, err
	}
	if in.Type != inode.TypeFile {
		return 0, tfserr.EISDIR.New()
	}

	startBlock := int(offset / blockdev.BlockSize)
	if startBlock >= MaxBlocks {
		return 0, tfserr.ENOSPC.New()
	}
	endBlock := int((offset + int64(size) - 1) / blockdev.BlockSize)
	if endBlock > MaxBlocks-1 {
		endBlock = MaxBlocks - 1
	}

	m, merr := fs.blockAlloc.LoadBitmap()
	if merr != nil {
		return 0, merr
	}
	bitmapDirty := false
	var newBlocks uint32

	persistPartial := func(copied int) {
		if bitmapDirty {
			fs.blockAlloc.PersistBitmap(m)
		}
		if newBlocks > 0 {
			in.Size += newBlocks * blockdev.BlockSize
		}
		in.Mtime = time.Now().Unix()
		inode.Write(fs.dev, fs.sb, ino, &in)
	}

	copied := 0
	blockBuf := make([]byte, blockdev.BlockSize)
	for k := startBlock; k <= endBlock; k++ {
		blockNum, isNew, mutated, aerr := fs.allocateBlockPointer(m, &in, k)
		if mutated {
			bitmapDirty = true
		}
		if aerr != nil {
			persistPartial(copied)
			return copied, aerr
		}
		if isNew {
			newBlocks++
		}

		blockOffset := 0
		if k == startBlock {
			blockOffset = int(offset % blockdev.BlockSize)
		}
		length := size - copied
		if length > blockdev.BlockSize-blockOffset {
			length = blockdev.BlockSize - blockOffset
		}

		if err := fs.dev.ReadBlock(blockNum, blockBuf); err != nil {
			persistPartial(copied)
			return copied, asErr(err)
		}
		copy(blockBuf[blockOffset:blockOffset+length], data[copied:copied+length])
		if err := fs.dev.WriteBlock(blockNum, blockBuf); err != nil {
			persistPartial(copied)
			return copied, asErr(err)
		}
		copied += length
	}

	if bitmapDirty {
		if err := fs.blockAlloc.PersistBitmap(m); err != nil {
			return copied, err
		}
	}
	in.Size += newBlocks * blockdev.BlockSize
	in.Mtime = time.Now().Unix()
	if err := inode.Write(fs.dev, fs.sb, ino, &in); err != nil {
		return copied, err
	}
	return copied, nil
}

// readBlockPointer resolves block index k of in to an on-disk block
// number without allocating, returning 0 for a hole.
func (fs *FileSystem) readBlockPointer(in *inode.Inode, k int) (uint32, *tfserr.Error) {
	if k < inode.NDirect {
		return in.Direct[k], nil
	}
	m := k - inode.NDirect
	ptr := m / entriesPerIndirectBlock
	slot := m % entriesPerIndirectBlock
	if ptr >= inode.NIndirect {
		return 0, tfserr.EINVAL.New()
	}
	tableBlk := in.Indirect[ptr]
	if tableBlk == 0 {
		return 0, nil
	}
	table, terr := readIndirectTable(fs.dev, tableBlk)
	if terr != nil {
		return 0, terr
	}
	return table[slot], nil
}

// allocateBlockPointer resolves block index k of in to an on-disk block
// number, allocating (and zeroing) whatever direct pointer, indirect
// table, or indirect table entry is missing, using m as the batched
// in-memory data bitmap. isNewData reports whether a fresh data block (not
// an indirect table block) was allocated, for the caller's size
// bookkeeping. mutated reports whether m was mutated at all — including an
// indirect table block allocated along the way — so the caller knows to
// persist the bitmap even when the call then fails before a data block is
// handed out; otherwise a table block the inode now points at would stay
// marked free and be handed out again.
func (fs *FileSystem) allocateBlockPointer(m *bitmap.Map, in *inode.Inode, k int) (blockNum uint32, isNewData bool, mutated bool, err *tfserr.Error) {
	if k < inode.NDirect {
		if in.Direct[k] != 0 {
			return in.Direct[k], false, false, nil
		}
		n, aerr := fs.blockAlloc.AllocateNoWrite(m)
		if aerr != nil {
			return 0, false, false, aerr
		}
		if zerr := fs.zeroBlock(n); zerr != nil {
			return 0, false, true, zerr
		}
		in.Direct[k] = n
		return n, true, true, nil
	}

	idx := k - inode.NDirect
	ptr := idx / entriesPerIndirectBlock
	slot := idx % entriesPerIndirectBlock
	if ptr >= inode.NIndirect {
		return 0, false, false, tfserr.EINVAL.New()
	}

	tableAllocated := false
	if in.Indirect[ptr] == 0 {
		tableBlk, aerr := fs.blockAlloc.AllocateNoWrite(m)
		if aerr != nil {
			return 0, false, false, aerr
		}
		tableAllocated = true
		if zerr := fs.zeroBlock(tableBlk); zerr != nil {
			return 0, false, true, zerr
		}
		in.Indirect[ptr] = tableBlk
	}

	table, terr := readIndirectTable(fs.dev, in.Indirect[ptr])
	if terr != nil {
		return 0, false, tableAllocated, terr
	}
	if table[slot] != 0 {
		return table[slot], false, tableAllocated, nil
	}
	n, aerr := fs.blockAlloc.AllocateNoWrite(m)
	if aerr != nil {
		return 0, false, tableAllocated, aerr
	}
	if zerr := fs.zeroBlock(n); zerr != nil {
		return 0, false, true, zerr
	}
	table[slot] = n
	if werr := writeIndirectTable(fs.dev, in.Indirect[ptr], table); werr != nil {
		return 0, false, true, werr
	}
	return n, true, true, nil
}

func (fs *FileSystem) zeroBlock(n uint32) *tfserr.Error {
	buf := make([]byte, blockdev.BlockSize)
	if err := fs.dev.WriteBlock(n, buf); err != nil {
		return asErr(err)
	}
	return nil
}

func readIndirectTable(dev *blockdev.Device, blockNum uint32) ([]uint32, *tfserr.Error) {
	buf := make([]byte, blockdev.BlockSize)
	if err := dev.ReadBlock(blockNum, buf); err != nil {
		return nil, asErr(err)
	}
	table := make([]uint32, entriesPerIndirectBlock)
	for i := range table {
		table[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return table, nil
}

func writeIndirectTable(dev *blockdev.Device, blockNum uint32, table []uint32) *tfserr.Error {
	buf := make([]byte, blockdev.BlockSize)
	for i, v := range table {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
	}
	if err := dev.WriteBlock(blockNum, buf); err != nil {
		return asErr(err)
	}
	return nil
}
