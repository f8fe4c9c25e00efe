package fatlog

import (
	"fmt"
	"math"

	"github.com/calsol/fatlog/checkpoint"
)

// fatBlock caches one block of the first FAT.
type fatBlock struct {
	data [BlockSize]byte
	lba  uint32
	// offset of the pointer of the last cluster of the range held by the block.
	offset int

	valid bool
	dirty bool
	// allocated marks a range that has been reserved but not switched to yet.
	allocated bool
}

func (b *fatBlock) entry(off int) uint32 {
	return Uint32(b.data[off:]) & clusterMask
}

func (b *fatBlock) setEntry(off int, value uint32) {
	PutUint32(b.data[off:], value)
}

// allocate reserves the next contiguous range of free clusters, at most up
// to the end of one FAT block, and links it behind the current range.
//
// The range starts right after the most recent cluster without consulting
// the FAT: the allocator relies on everything after it being free.
func (f *StreamFile) allocate() error {
	fs := f.fs
	begin := fs.mostRecent + 1
	if begin > fs.geo.MaxCluster || fs.freeCount == 0 {
		return checkpoint.From(fmt.Errorf("%w: after cluster %d", ErrVolumeFull, fs.mostRecent))
	}

	end := begin - begin%clustersPerBlock + clustersPerBlock - 1
	if end > fs.geo.MaxCluster {
		end = fs.geo.MaxCluster
	}
	if limit := f.cfg.clustersPerAllocation; limit > 0 && end-begin+1 > limit {
		end = begin + limit - 1
	}
	if end-begin+1 > fs.freeCount {
		end = begin + fs.freeCount - 1
	}
	clusterSize := uint64(fs.ClusterSize())
	if room := (math.MaxUint32 - uint64(f.size)) / clusterSize; uint64(end-begin+1) > room {
		if room == 0 {
			return checkpoint.From(ErrFileTooLarge)
		}
		end = begin + uint32(room) - 1
	}

	// Link the current range to the new one. The terminal pointer still
	// holds its provisional value unless the ranges happen to be adjacent.
	if prev := &f.prevFAT; prev.valid && prev.entry(prev.offset) != begin {
		prev.setEntry(prev.offset, begin)
		prev.dirty = true
	}

	cur := &f.curFAT
	lba := fs.ClusterToFATLBA(begin)
	offset := fs.ClusterToFATOffset(begin)
	switch {
	case f.prevFAT.valid && f.prevFAT.lba == lba:
		// Same block: continue from the cached copy, which now carries the link.
		cur.data = f.prevFAT.data
		f.prevFAT.dirty = false
	case offset != 0 || fs.ClusterToFATOffset(end) != BlockSize-pointerSize:
		// Only part of the block belongs to the new range.
		if err := fs.readBlock(lba, cur.data[:]); err != nil {
			return err
		}
	}

	for c := begin; c <= end; c++ {
		cur.setEntry(fs.ClusterToFATOffset(c), c+1)
	}
	if end == fs.geo.MaxCluster {
		cur.setEntry(fs.ClusterToFATOffset(end), ClusterEndOfChainW)
	}
	cur.lba = lba
	cur.offset = fs.ClusterToFATOffset(end)
	cur.valid = true
	cur.dirty = true
	cur.allocated = true

	n := end - begin + 1
	f.nextBegin, f.nextEnd = begin, end
	f.allocEnd = end
	f.size += n * fs.ClusterSize()
	PutUint32(f.dir.record()[offEntrySize:], f.size)
	f.dirDirty = true

	fs.mostRecent = end
	fs.freeCount -= n
	fs.infoDirty = true
	f.stats.Allocations++

	fs.log.Debug("Allocated clusters",
		"file", f.name, "begin", begin, "end", end, "fatLBA", lba, "free", fs.freeCount)
	return nil
}

// switchRange makes the allocated range current. Every metadata block
// describing it must be written by then.
func (f *StreamFile) switchRange() {
	f.prevFAT = f.curFAT
	f.prevFAT.allocated = false
	f.curFAT.allocated = false

	f.cluster, f.clusterEnd = f.nextBegin, f.nextEnd
	f.lba = f.fs.ClusterToDataLBA(f.cluster)
	f.blockInCluster = 0
}
