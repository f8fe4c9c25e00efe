package fatlog

import (
	"errors"
	"fmt"

	"github.com/calsol/fatlog/checkpoint"
)

// DefaultOverflowSize is the default capacity of the overflow buffer.
const DefaultOverflowSize = 4096

// Engine is the asynchronous multi-block-write interface a streaming file
// drives. It has to write to the same device the FS was mounted from.
// blockdev.DMA implements it.
//
// Generated mock using mockgen:
//
//	mockgen -source=stream.go -destination=stream_mock.go -package fatlog
type Engine interface {
	Buffers() int
	Buffer(i int) []byte
	Idle() bool
	MultiBlockIdle() bool
	StartMultiBlockWrite(lba uint32) error
	SendBlock(i int) error
	PollBlockStatus() (byte, error)
	EndMultiBlockWrite() error
}

// StreamOption configures a streaming file.
type StreamOption func(*streamConfig)

type streamConfig struct {
	overflowSize          int
	clustersPerAllocation uint32
}

// WithOverflowSize sets the capacity of the overflow buffer in bytes.
func WithOverflowSize(size int) StreamOption {
	return func(c *streamConfig) {
		if size >= 0 {
			c.overflowSize = size
		}
	}
}

// WithClustersPerAllocation caps the size of an allocated range.
// Zero allocates up to the end of the FAT block.
func WithClustersPerAllocation(n uint32) StreamOption {
	return func(c *streamConfig) {
		c.clustersPerAllocation = n
	}
}

// Operation is the pipeline state of a streaming file.
type Operation int

const (
	OpIdle Operation = iota
	OpWritingDataIdle
	OpWritingData
	OpWritingDirectoryTable
	OpWritingFAT
	OpWritingFSInformation
	OpMultipleBlockWriteTerminate
)

func (o Operation) String() string {
	switch o {
	case OpIdle:
		return "Idle"
	case OpWritingDataIdle:
		return "WritingDataIdle"
	case OpWritingData:
		return "WritingData"
	case OpWritingDirectoryTable:
		return "WritingDirectoryTable"
	case OpWritingFAT:
		return "WritingFAT"
	case OpWritingFSInformation:
		return "WritingFSInformation"
	case OpMultipleBlockWriteTerminate:
		return "MultipleBlockWriteTerminate"
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// Stats counts what a streaming file did so far.
type Stats struct {
	BytesAccepted  uint64
	BytesRejected  uint64
	BytesDiscarded uint64
	ShortWrites    uint64
	DataBlocks     uint64
	MetadataBlocks uint64
	Allocations    uint64
	OverflowPeak   int
}

// StreamFile is a file being written sequentially through an Engine.
//
// Write never waits for the device: data goes into the engine buffers and,
// when those are all full, into the overflow buffer. Step moves the pipeline
// forward and has to be called regularly. Terminate flushes everything and
// finalizes the metadata.
//
// A StreamFile is not safe for concurrent use.
type StreamFile struct {
	fs     *FS
	engine Engine
	cfg    streamConfig
	name   string

	dir      *dirSlot
	dirDirty bool

	startCluster uint32
	size         uint32
	position     uint32

	// Data buffers are engine buffers 0 to dataBuffers-1; the last engine
	// buffer holds metadata blocks.
	dataBuffers int
	metaBuffer  int
	fillIdx     int
	fillPos     int
	writeIdx    int
	filled      int
	padding     uint32
	overflow    *ring

	op        Operation
	metaLBA   uint32
	metaFAT   *fatBlock
	fatCopy   int
	finishing bool

	// Current range.
	cluster        uint32
	clusterEnd     uint32
	lba            uint32
	blockInCluster uint32
	lastCluster    uint32

	// Allocated range, switched to at the boundary.
	nextBegin uint32
	nextEnd   uint32
	allocEnd  uint32

	prevFAT fatBlock
	curFAT  fatBlock

	stats  Stats
	err    error
	closed bool
}

// CreateStreamingFile creates name.ext in dir and prepares it for streaming
// through engine. The first FAT block, the FS information sector and the
// directory record are written synchronously before it returns. If one of
// them fails, the clusters are given back.
//
// Only one streaming file may exist per FS at a time.
func (fs *FS) CreateStreamingFile(dir *Directory, name, ext string, engine Engine, opts ...StreamOption) (*StreamFile, error) {
	if engine.Buffers() < 2 {
		return nil, checkpoint.From(fmt.Errorf("%w: got %d", ErrEngineSize, engine.Buffers()))
	}
	if !engine.Idle() {
		return nil, checkpoint.From(ErrEngineBusy)
	}
	if err := fs.acquireWriter(); err != nil {
		return nil, err
	}

	f, err := fs.createStreamingFile(dir, name, ext, engine, opts)
	if err != nil {
		fs.releaseWriter()
		fs.log.Error("Could not create streaming file", "name", name, "ext", ext, "err", err)
		return nil, err
	}
	fs.log.Info("Created streaming file",
		"file", f.name, "startCluster", f.startCluster, "entryLBA", f.dir.lba, "dataBuffers", f.dataBuffers)
	return f, nil
}

func (fs *FS) createStreamingFile(dir *Directory, name, ext string, engine Engine, opts []StreamOption) (*StreamFile, error) {
	if _, err := fs.FindEntry(dir.Cluster(), name, ext); err == nil {
		return nil, checkpoint.From(fmt.Errorf("%w: %s", ErrExists, joinName(name, ext)))
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	slot, err := fs.reserveEntry(dir, name, ext)
	if err != nil {
		return nil, err
	}

	cfg := streamConfig{overflowSize: DefaultOverflowSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &StreamFile{
		fs:          fs,
		engine:      engine,
		cfg:         cfg,
		name:        joinName(name, ext),
		dir:         slot,
		dataBuffers: engine.Buffers() - 1,
		metaBuffer:  engine.Buffers() - 1,
		overflow:    newRing(cfg.overflowSize),
	}

	mostRecent, freeCount := fs.mostRecent, fs.freeCount
	if err := f.allocate(); err != nil {
		return nil, err
	}
	f.switchRange()
	f.startCluster = f.cluster
	putEntryCluster(f.dir.record(), f.startCluster)

	if err := f.publish(); err != nil {
		// The FS information sector may hold the allocation already.
		fs.mostRecent, fs.freeCount, fs.infoDirty = mostRecent, freeCount, true
		return nil, err
	}
	return f, nil
}

// publish writes the metadata of a new streaming file. The directory
// record goes last so that a failure never leaves a record pointing at
// clusters that are free again.
func (f *StreamFile) publish() error {
	fs := f.fs
	if err := fs.writeFATBlock(f.prevFAT.lba, f.prevFAT.data[:]); err != nil {
		return err
	}
	f.prevFAT.dirty = false
	if err := fs.flushInfo(); err != nil {
		return err
	}
	if err := fs.writeBlock(f.dir.lba, f.dir.block[:]); err != nil {
		return err
	}
	f.dirDirty = false
	return nil
}

// Write buffers p without waiting for the device. If not all of p fits,
// the number of bytes taken is returned together with ErrBufferFull.
func (f *StreamFile) Write(p []byte) (int, error) {
	if err := f.writable(); err != nil {
		return 0, err
	}

	f.moveOverflow()
	f.Step()
	if err := f.writable(); err != nil {
		return 0, err
	}

	n := f.buffer(p)
	f.Step()

	f.stats.BytesAccepted += uint64(n)
	if n < len(p) {
		f.stats.ShortWrites++
		f.stats.BytesRejected += uint64(len(p) - n)
		return n, ErrBufferFull
	}
	return n, nil
}

// WriteString is Write for strings.
func (f *StreamFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *StreamFile) writable() error {
	switch {
	case f.closed:
		return checkpoint.From(ErrClosed)
	case f.err != nil:
		return checkpoint.Wrap(f.err, ErrDegraded)
	}
	return nil
}

// buffer takes as much of p as fits. Once bytes wait in the overflow
// buffer, new bytes queue behind them to keep the order.
func (f *StreamFile) buffer(p []byte) int {
	n := 0
	if f.overflow.Len() == 0 {
		for n < len(p) && f.filled < f.dataBuffers {
			n += f.advance(copy(f.engine.Buffer(f.fillIdx)[f.fillPos:], p[n:]))
		}
	}
	n += f.overflow.Write(p[n:])
	if l := f.overflow.Len(); l > f.stats.OverflowPeak {
		f.stats.OverflowPeak = l
	}
	return n
}

// moveOverflow moves bytes from the overflow buffer into free data buffers.
func (f *StreamFile) moveOverflow() {
	for f.overflow.Len() > 0 && f.filled < f.dataBuffers {
		f.advance(f.overflow.Read(f.engine.Buffer(f.fillIdx)[f.fillPos:]))
	}
}

// advance accounts n bytes copied into the buffer being filled.
func (f *StreamFile) advance(n int) int {
	f.fillPos += n
	if f.fillPos == BlockSize {
		f.filled++
		f.fillIdx = (f.fillIdx + 1) % f.dataBuffers
		f.fillPos = 0
	}
	return n
}

// Available returns how many bytes the next Write accepts at least.
func (f *StreamFile) Available() int {
	if f.closed || f.err != nil {
		return 0
	}
	return (f.dataBuffers-f.filled)*BlockSize - f.fillPos + f.overflow.Free()
}

// Name returns NAME.EXT.
func (f *StreamFile) Name() string {
	return f.name
}

// StartCluster returns the first cluster of the file, or zero for a
// terminated empty file.
func (f *StreamFile) StartCluster() uint32 {
	return f.startCluster
}

// Position returns the number of bytes written to the device so far.
func (f *StreamFile) Position() int64 {
	return int64(f.position)
}

// Size returns the size recorded in the directory entry: the allocated size
// while streaming, the written size after Terminate.
func (f *StreamFile) Size() int64 {
	return int64(f.size)
}

// Operation returns the current pipeline state.
func (f *StreamFile) Operation() Operation {
	return f.op
}

// Err returns the failure that degraded the file, if any.
func (f *StreamFile) Err() error {
	return f.err
}

// Stats returns a snapshot of the counters.
func (f *StreamFile) Stats() Stats {
	return f.stats
}
