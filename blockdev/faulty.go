package blockdev

import (
	"fmt"
	"sync"
)

var _ Device = (*Faulty)(nil)

// Faulty wraps a Device and injects stalls and failures.
// It exists to exercise the error paths of the writer.
type Faulty struct {
	dev Device

	mu          sync.Mutex
	cond        *sync.Cond
	stalled     bool
	failReads   bool
	writesLeft  int // < 0 means unlimited
	reads       int
	writes      int
	stallWaiter int
}

// NewFaulty wraps dev. Initially every call is passed through.
func NewFaulty(dev Device) *Faulty {
	f := &Faulty{dev: dev, writesLeft: -1}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Stall blocks every following WriteBlock until Resume is called.
func (f *Faulty) Stall() {
	f.mu.Lock()
	f.stalled = true
	f.mu.Unlock()
}

// Resume releases stalled writes.
func (f *Faulty) Resume() {
	f.mu.Lock()
	f.stalled = false
	f.mu.Unlock()
	f.cond.Broadcast()
}

// FailReads makes every following ReadBlock fail.
func (f *Faulty) FailReads(fail bool) {
	f.mu.Lock()
	f.failReads = fail
	f.mu.Unlock()
}

// FailWritesAfter lets n more writes succeed and fails all following ones.
// A negative n disables write failures.
func (f *Faulty) FailWritesAfter(n int) {
	f.mu.Lock()
	f.writesLeft = n
	f.mu.Unlock()
}

// Writes returns the number of successful writes.
func (f *Faulty) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Reads returns the number of successful reads.
func (f *Faulty) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Stalled reports how many writers are currently blocked.
func (f *Faulty) Stalled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stallWaiter
}

func (f *Faulty) ReadBlock(lba uint32, dst []byte) error {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: read block %d", ErrInjected, lba)
	}

	if err := f.dev.ReadBlock(lba, dst); err != nil {
		return err
	}
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	return nil
}

func (f *Faulty) WriteBlock(lba uint32, src []byte) error {
	f.mu.Lock()
	for f.stalled {
		f.stallWaiter++
		f.cond.Wait()
		f.stallWaiter--
	}
	if f.writesLeft == 0 {
		f.mu.Unlock()
		return fmt.Errorf("%w: write block %d", ErrInjected, lba)
	}
	if f.writesLeft > 0 {
		f.writesLeft--
	}
	f.mu.Unlock()

	if err := f.dev.WriteBlock(lba, src); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}

func (f *Faulty) BlockCount() uint32 {
	return f.dev.BlockCount()
}
