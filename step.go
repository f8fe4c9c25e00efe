package fatlog

import (
	"fmt"

	"github.com/calsol/fatlog/blockdev"
	"github.com/calsol/fatlog/checkpoint"
)

// maxTransitions bounds the work done by a single Step.
const maxTransitions = 64

// Step advances the pipeline as far as it can without waiting for the
// device. It is safe to call at any time, as often as wanted.
//
// A device failure degrades the file: Step stops doing anything, Write
// returns ErrDegraded and Terminate returns the failure.
func (f *StreamFile) Step() {
	if f.closed || f.err != nil {
		return
	}
	for i := 0; i < maxTransitions; i++ {
		progressed, err := f.step()
		if err != nil {
			f.degrade(err)
			return
		}
		if !progressed {
			return
		}
	}
}

// step performs at most one transition and reports whether it did.
func (f *StreamFile) step() (bool, error) {
	switch f.op {
	case OpIdle:
		if f.cluster > f.clusterEnd {
			if f.finishing && f.filled == 0 {
				return false, nil
			}
			return f.crossBoundary()
		}
		if f.filled == 0 {
			return false, nil
		}
		if err := f.engine.StartMultiBlockWrite(f.lba); err != nil {
			return false, checkpoint.Wrap(err, ErrDeviceWrite)
		}
		f.op = OpWritingDataIdle
		return true, nil

	case OpWritingDataIdle:
		if !f.engine.MultiBlockIdle() {
			return false, nil
		}
		if f.cluster > f.clusterEnd || (f.finishing && f.filled == 0) {
			return f.endSession()
		}
		if f.filled == 0 {
			return false, nil
		}
		if err := f.engine.SendBlock(f.writeIdx); err != nil {
			return false, checkpoint.Wrap(err, ErrDeviceWrite)
		}
		f.op = OpWritingData
		return true, nil

	case OpWritingData:
		if done, err := f.poll(blockdev.TokenAccepted); !done {
			return false, err
		}
		f.completeData()
		f.op = OpWritingDataIdle
		return true, nil

	case OpWritingDirectoryTable, OpWritingFAT, OpWritingFSInformation:
		if done, err := f.poll(blockdev.TokenAccepted); !done {
			return false, err
		}
		f.completeMetadata()
		return f.endSession()

	case OpMultipleBlockWriteTerminate:
		if done, err := f.poll(blockdev.TokenSessionDone); !done {
			return false, err
		}
		f.op = OpIdle
		return true, nil
	}
	return false, checkpoint.From(fmt.Errorf("unknown operation %v", f.op))
}

// crossBoundary issues the metadata writes of an allocation boundary one at
// a time and switches to the allocated range once none is left.
func (f *StreamFile) crossBoundary() (bool, error) {
	if !f.curFAT.allocated {
		if err := f.allocate(); err != nil {
			return false, err
		}
	}

	switch {
	case f.prevFAT.dirty:
		return f.startFAT(&f.prevFAT)
	case f.curFAT.dirty:
		return f.startFAT(&f.curFAT)
	case f.dirDirty:
		return f.startMetadata(OpWritingDirectoryTable, f.dir.lba, func(b []byte) {
			copy(b, f.dir.block[:])
		})
	case f.fs.infoDirty:
		return f.startMetadata(OpWritingFSInformation, f.fs.geo.FSInfoLBA, f.fs.fillInfo)
	}

	f.switchRange()
	f.fs.log.Debug("Switched cluster range",
		"file", f.name, "cluster", f.cluster, "clusterEnd", f.clusterEnd, "lba", f.lba)
	return true, nil
}

// startFAT writes the next pending copy of block.
func (f *StreamFile) startFAT(block *fatBlock) (bool, error) {
	f.metaFAT = block
	return f.startMetadata(OpWritingFAT, f.fs.fatCopyLBA(block.lba, f.fatCopy), func(b []byte) {
		copy(b, block.data[:])
	})
}

// startMetadata opens a single block session at lba for the block rendered by fill.
func (f *StreamFile) startMetadata(op Operation, lba uint32, fill func(b []byte)) (bool, error) {
	fill(f.engine.Buffer(f.metaBuffer))
	if err := f.engine.StartMultiBlockWrite(lba); err != nil {
		return false, checkpoint.Wrap(err, ErrDeviceWrite)
	}
	if err := f.engine.SendBlock(f.metaBuffer); err != nil {
		return false, checkpoint.Wrap(err, ErrDeviceWrite)
	}
	f.fs.forget(lba)
	f.metaLBA = lba
	f.op = op
	return true, nil
}

func (f *StreamFile) endSession() (bool, error) {
	if err := f.engine.EndMultiBlockWrite(); err != nil {
		return false, checkpoint.Wrap(err, ErrDeviceWrite)
	}
	f.op = OpMultipleBlockWriteTerminate
	return true, nil
}

// poll reports whether the outstanding request completed with want.
func (f *StreamFile) poll(want byte) (bool, error) {
	token, err := f.engine.PollBlockStatus()
	switch {
	case err != nil:
		return false, checkpoint.Wrap(err, ErrDeviceWrite)
	case token == blockdev.TokenPending:
		return false, nil
	case token != want:
		return false, checkpoint.From(fmt.Errorf("%w: token 0x%02X in %v", ErrDeviceWrite, token, f.op))
	}
	return true, nil
}

func (f *StreamFile) completeData() {
	f.writeIdx = (f.writeIdx + 1) % f.dataBuffers
	f.filled--
	f.lastCluster = f.cluster
	f.position += BlockSize
	f.lba++
	f.blockInCluster++
	if f.blockInCluster == f.fs.geo.SectorsPerCluster {
		f.blockInCluster = 0
		f.cluster++
	}
	f.stats.DataBlocks++
}

func (f *StreamFile) completeMetadata() {
	// A read between issue and completion may have cached the old block.
	f.fs.forget(f.metaLBA)
	switch f.op {
	case OpWritingFAT:
		f.fatCopy++
		if f.fatCopy == f.fs.fatCopies() {
			f.fatCopy = 0
			f.metaFAT.dirty = false
			f.metaFAT = nil
		}
	case OpWritingDirectoryTable:
		f.dirDirty = false
	case OpWritingFSInformation:
		f.fs.infoDirty = false
	}
	f.stats.MetadataBlocks++
}

func (f *StreamFile) degrade(err error) {
	f.err = err
	f.fs.log.Error("Streaming file degraded",
		"file", f.name, "operation", f.op, "position", f.position, "err", err)
}
