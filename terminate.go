package fatlog

import (
	"errors"
	"runtime"

	"github.com/calsol/fatlog/checkpoint"
)

// Terminate writes everything still buffered, pads the last block with
// zeros and finalizes the directory record, the FAT and the FS information
// sector: the recorded size becomes the number of bytes written, the chain
// ends at the last written cluster and clusters allocated beyond it are
// freed again.
//
// Terminate waits for the device, bounded by the engine timeout. A file
// degraded by a full volume is finalized with the data that fit. A file
// degraded by a device failure is not touched any further and the failure
// is returned. Either way the file is closed afterwards.
func (f *StreamFile) Terminate() error {
	if f.closed {
		return checkpoint.From(ErrClosed)
	}
	defer func() {
		f.closed = true
		f.fs.releaseWriter()
	}()

	f.finishing = true
	err := f.flush()
	if err == nil {
		err = f.err
	}
	if err != nil && !capacityError(err) {
		f.fs.log.Error("Terminated degraded file", "file", f.name, "position", f.position, "err", err)
		return checkpoint.Wrap(err, ErrDegraded)
	}
	if f.err != nil {
		f.discard()
		if !f.engine.Idle() {
			return checkpoint.Wrap(f.err, ErrEngineBusy)
		}
	}

	if err := f.finalize(); err != nil {
		f.fs.log.Error("Could not finalize file", "file", f.name, "err", err)
		return err
	}
	f.fs.log.Info("Terminated streaming file",
		"file", f.name, "size", f.size, "lastCluster", f.lastCluster, "free", f.fs.freeCount)
	return nil
}

// flush drives the pipeline until every buffered byte is on the device and
// no request is outstanding.
func (f *StreamFile) flush() error {
	for f.overflow.Len() > 0 || f.filled > 0 {
		f.moveOverflow()
		if f.overflow.Len() == 0 && f.filled < f.dataBuffers && f.fillPos > 0 {
			f.pad()
		}
		if err := f.wait(); err != nil {
			return err
		}
	}
	if f.fillPos > 0 {
		f.pad()
	}
	for f.filled > 0 || f.op != OpIdle {
		if err := f.wait(); err != nil {
			return err
		}
	}
	return nil
}

// capacityError reports whether err only means that no more data fits.
// The data written until then is still finalized.
func capacityError(err error) bool {
	return errors.Is(err, ErrVolumeFull) || errors.Is(err, ErrFileTooLarge)
}

// pad completes the partially filled block with zeros. The padding is not
// part of the file.
func (f *StreamFile) pad() {
	n := BlockSize - f.fillPos
	clear(f.engine.Buffer(f.fillIdx)[f.fillPos:])
	f.advance(n)
	f.padding = uint32(n)
}

// wait steps once and yields to the engine.
func (f *StreamFile) wait() error {
	f.Step()
	if f.err != nil {
		return f.err
	}
	runtime.Gosched()
	return nil
}

// discard drops whatever could not be written.
func (f *StreamFile) discard() {
	lost := f.filled*BlockSize + f.fillPos + f.overflow.Len()
	if f.padding > 0 && f.filled > 0 {
		lost -= int(f.padding)
	}
	f.stats.BytesDiscarded += uint64(lost)
	f.filled, f.fillPos, f.padding = 0, 0, 0
	f.overflow.Reset()
	f.fs.log.Warn("Discarded buffered data", "file", f.name, "bytes", lost, "err", f.err)
}

func (f *StreamFile) finalize() error {
	fs := f.fs
	if f.padding > 0 && f.position > 0 {
		f.position -= f.padding
	}
	f.padding = 0

	// Clusters from freeFrom to allocEnd go back to the free pool.
	freeFrom := f.lastCluster + 1
	if f.position == 0 {
		freeFrom = f.startCluster
	}

	rec := f.dir.record()
	f.size = f.position
	PutUint32(rec[offEntrySize:], f.size)
	if f.position == 0 {
		putEntryCluster(rec, 0)
	}
	if date, clock := fs.timestamp(); date != 0 {
		PutUint16(rec[0x12:], date)
		PutUint16(rec[0x16:], clock)
		PutUint16(rec[0x18:], date)
	}
	if err := fs.writeBlock(f.dir.lba, f.dir.block[:]); err != nil {
		return err
	}
	f.dirDirty = false

	patch := newFATPatch(fs, &f.prevFAT, &f.curFAT)
	if f.position > 0 {
		if err := patch.set(f.lastCluster, ClusterEndOfChainW); err != nil {
			return err
		}
	}
	freed := uint32(0)
	for c := freeFrom; c <= f.allocEnd; c++ {
		if err := patch.set(c, ClusterFree); err != nil {
			return err
		}
		freed++
	}
	if err := patch.flush(); err != nil {
		return err
	}

	fs.freeCount += freed
	if f.position > 0 {
		fs.mostRecent = f.lastCluster
	} else {
		fs.mostRecent = f.startCluster - 1
		f.startCluster = 0
	}
	return fs.flushInfo()
}

// fatPatch collects changes to FAT blocks, starting from the cached blocks
// of the stream where it has them.
type fatPatch struct {
	fs     *FS
	cached []*fatBlock
	blocks map[uint32]*[BlockSize]byte
	order  []uint32
}

func newFATPatch(fs *FS, cached ...*fatBlock) *fatPatch {
	return &fatPatch{fs: fs, cached: cached, blocks: make(map[uint32]*[BlockSize]byte)}
}

func (p *fatPatch) set(cluster, value uint32) error {
	lba := p.fs.ClusterToFATLBA(cluster)
	block, ok := p.blocks[lba]
	if !ok {
		block = new([BlockSize]byte)
		if err := p.load(lba, block); err != nil {
			return err
		}
		p.blocks[lba] = block
		p.order = append(p.order, lba)
	}
	PutUint32(block[p.fs.ClusterToFATOffset(cluster):], value)
	return nil
}

// load prefers the most recently allocated cached block: it supersedes an
// older cached copy of the same block.
func (p *fatPatch) load(lba uint32, dst *[BlockSize]byte) error {
	for i := len(p.cached) - 1; i >= 0; i-- {
		if c := p.cached[i]; c.valid && c.lba == lba {
			*dst = c.data
			return nil
		}
	}
	return p.fs.readBlock(lba, dst[:])
}

func (p *fatPatch) flush() error {
	for _, lba := range p.order {
		if err := p.fs.writeFATBlock(lba, p.blocks[lba][:]); err != nil {
			return err
		}
	}
	return nil
}
