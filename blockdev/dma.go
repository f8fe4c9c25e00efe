package blockdev

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/fclairamb/go-log"
	"github.com/fclairamb/go-log/noop"
)

// State is the state of a DMA engine.
//
// Every state is owned by one side. The foreground is the goroutine calling
// the DMA methods. The worker is the goroutine completing transfers, the part
// an SD card driver would do from its DMA interrupt. Only the owner of the
// current state moves the engine to the next one.
type State int32

const (
	StateIdle           State = iota // foreground
	StateMBWIdle                     // foreground: session open, nothing in flight
	StateMBWBlockSend                // worker: block handed over
	StateMBWBlockBusy                // worker: block transfer running
	StateMBWBlockDone                // foreground: response token ready
	StateMBWCommandBusy              // worker: stop transmission running
	StateMBWCommandDone              // foreground: session closed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateMBWIdle:
		return "MBW_Idle"
	case StateMBWBlockSend:
		return "MBW_BlockSend"
	case StateMBWBlockBusy:
		return "MBW_BlockBusy"
	case StateMBWBlockDone:
		return "MBW_BlockDone"
	case StateMBWCommandBusy:
		return "MBW_CommandBusy"
	case StateMBWCommandDone:
		return "MBW_CommandDone"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Response tokens returned by PollBlockStatus. The data response values are
// the ones an SD card answers a data block with.
const (
	TokenPending     byte = 0x00
	TokenSessionDone byte = 0x01
	TokenAccepted    byte = 0x05
	TokenCRCError    byte = 0x0B
	TokenWriteError  byte = 0x0D
)

const (
	DefaultDMABuffers = 3
	DefaultDMATimeout = 500 * time.Millisecond
)

type jobKind int

const (
	jobBlock jobKind = iota
	jobStop
)

type job struct {
	kind jobKind
	lba  uint32
	buf  int
}

// DMAOption configures a DMA engine.
type DMAOption func(*DMA)

// WithBuffers sets the number of DMA buffers. At least two are required.
func WithBuffers(n int) DMAOption {
	return func(d *DMA) {
		if n >= 2 {
			d.buffers = make([][]byte, n)
		}
	}
}

// WithTimeout bounds how long a single request may stay outstanding before
// PollBlockStatus reports ErrTimeout. Zero disables the bound.
func WithTimeout(timeout time.Duration) DMAOption {
	return func(d *DMA) {
		d.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) DMAOption {
	return func(d *DMA) {
		d.log = logger
	}
}

// DMA is an asynchronous multi-block-write engine on top of a Device.
//
// A session is opened with StartMultiBlockWrite, blocks are queued one at a
// time with SendBlock and their completion is polled with PollBlockStatus.
// EndMultiBlockWrite closes the session; its completion is polled the same way.
// All methods are non-blocking and must be called from a single goroutine.
type DMA struct {
	dev     Device
	buffers [][]byte
	timeout time.Duration
	log     log.Logger

	state  atomic.Int32
	token  atomic.Uint32
	closed atomic.Bool
	jobs   chan job
	stop   sync.Once
	done   chan struct{}

	// Written by the worker before it publishes a done state.
	err error

	// Foreground only.
	next   uint32
	issued time.Time
}

// NewDMA starts an engine on dev.
func NewDMA(dev Device, opts ...DMAOption) *DMA {
	d := &DMA{
		dev:     dev,
		buffers: make([][]byte, DefaultDMABuffers),
		timeout: DefaultDMATimeout,
		log:     noop.NewNoOpLogger(),
		jobs:    make(chan job, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.buffers {
		d.buffers[i] = make([]byte, BlockSize)
	}

	go d.run()
	return d
}

func (d *DMA) run() {
	defer close(d.done)
	for j := range d.jobs {
		switch j.kind {
		case jobBlock:
			d.state.Store(int32(StateMBWBlockBusy))
			token := TokenAccepted
			d.err = d.dev.WriteBlock(j.lba, d.buffers[j.buf])
			if d.err != nil {
				token = TokenWriteError
			}
			d.token.Store(uint32(token))
			d.state.Store(int32(StateMBWBlockDone))
		case jobStop:
			d.err = nil
			if s, ok := d.dev.(Syncer); ok {
				d.err = s.Sync()
			}
			d.state.Store(int32(StateMBWCommandDone))
		}
	}
}

// Device returns the underlying synchronous device.
func (d *DMA) Device() Device {
	return d.dev
}

// State returns the current engine state.
func (d *DMA) State() State {
	return State(d.state.Load())
}

// Buffers returns the number of DMA buffers.
func (d *DMA) Buffers() int {
	return len(d.buffers)
}

// Buffer returns DMA buffer i. The caller may only write to it while it is
// not handed to SendBlock.
func (d *DMA) Buffer(i int) []byte {
	return d.buffers[i]
}

// Idle reports whether no session is open.
func (d *DMA) Idle() bool {
	return d.State() == StateIdle
}

// MultiBlockIdle reports whether a session is open and ready for a block.
func (d *DMA) MultiBlockIdle() bool {
	return d.State() == StateMBWIdle
}

// StartMultiBlockWrite opens a session writing consecutive blocks from lba.
func (d *DMA) StartMultiBlockWrite(lba uint32) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if lba >= d.dev.BlockCount() {
		return fmt.Errorf("%w: lba %d", ErrOutOfRange, lba)
	}
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateMBWIdle)) {
		return fmt.Errorf("%w: start in state %v", ErrBusy, d.State())
	}
	d.next = lba
	return nil
}

// SendBlock queues DMA buffer i as the next block of the open session.
func (d *DMA) SendBlock(i int) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if i < 0 || i >= len(d.buffers) {
		return fmt.Errorf("%w: buffer %d", ErrOutOfRange, i)
	}
	if state := d.State(); state != StateMBWIdle {
		return fmt.Errorf("%w: send in state %v", ErrBusy, state)
	}
	if d.next >= d.dev.BlockCount() {
		return fmt.Errorf("%w: lba %d", ErrOutOfRange, d.next)
	}

	d.issued = time.Now()
	d.state.Store(int32(StateMBWBlockSend))
	d.jobs <- job{kind: jobBlock, lba: d.next, buf: i}
	d.next++
	return nil
}

// EndMultiBlockWrite closes the open session once no block is in flight.
func (d *DMA) EndMultiBlockWrite() error {
	if d.closed.Load() {
		return ErrClosed
	}
	if state := d.State(); state != StateMBWIdle {
		return fmt.Errorf("%w: end in state %v", ErrBusy, state)
	}

	d.issued = time.Now()
	d.state.Store(int32(StateMBWCommandBusy))
	d.jobs <- job{kind: jobStop}
	return nil
}

// PollBlockStatus returns TokenPending while a request is outstanding.
// Once a block completed it returns its response token and the session is
// ready for the next block. Once the session is closed it returns
// TokenSessionDone and the engine is idle again.
//
// A rejected block is reported as ErrWriteRejected, a request outstanding
// for longer than the configured timeout as ErrTimeout. A timed out engine
// stays busy: the device never answered.
func (d *DMA) PollBlockStatus() (byte, error) {
	switch state := d.State(); state {
	case StateMBWBlockDone:
		token := byte(d.token.Load())
		err := d.err
		d.state.Store(int32(StateMBWIdle))
		if token != TokenAccepted {
			d.log.Error("Block write rejected", "token", token, "err", err)
			if err == nil {
				return token, fmt.Errorf("%w: token 0x%02X", ErrWriteRejected, token)
			}
			return token, fmt.Errorf("%w: token 0x%02X: %w", ErrWriteRejected, token, err)
		}
		return token, nil

	case StateMBWCommandDone:
		err := d.err
		d.state.Store(int32(StateIdle))
		if err != nil {
			d.log.Error("Device sync failed", "err", err)
			return TokenSessionDone, fmt.Errorf("%w: sync: %w", ErrWriteRejected, err)
		}
		return TokenSessionDone, nil

	case StateMBWBlockSend, StateMBWBlockBusy, StateMBWCommandBusy:
		if d.timeout > 0 {
			if waited := time.Since(d.issued); waited > d.timeout {
				return TokenPending, fmt.Errorf("%w: %v for %v", ErrTimeout, state, waited)
			}
		}
	}
	return TokenPending, nil
}

// Close stops the worker. A request stuck in the device is abandoned.
func (d *DMA) Close() error {
	d.stop.Do(func() {
		d.closed.Store(true)
		close(d.jobs)
	})
	return nil
}
