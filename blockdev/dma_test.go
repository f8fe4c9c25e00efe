package blockdev

import (
	"bytes"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
)

// waitStatus polls until the engine answers something else than pending.
func waitStatus(t *testing.T, d *DMA) (byte, error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		token, err := d.PollBlockStatus()
		if token != TokenPending || err != nil {
			return token, err
		}
		runtime.Gosched()
	}
	t.Fatalf("DMA.PollBlockStatus() still pending in state %v", d.State())
	return 0, nil
}

func TestDMA_Session(t *testing.T) {
	mem := NewMemory(16)
	d := NewDMA(mem)
	defer d.Close()

	if !d.Idle() {
		t.Fatalf("DMA.State() = %v, want %v", d.State(), StateIdle)
	}
	if err := d.StartMultiBlockWrite(4); err != nil {
		t.Fatalf("DMA.StartMultiBlockWrite() error = %v", err)
	}
	if err := d.StartMultiBlockWrite(4); !errors.Is(err, ErrBusy) {
		t.Errorf("DMA.StartMultiBlockWrite() twice error = %v, wantErr %v", err, ErrBusy)
	}

	for i := 0; i < 3; i++ {
		if !d.MultiBlockIdle() {
			t.Fatalf("DMA.State() = %v, want %v", d.State(), StateMBWIdle)
		}
		buf := i % 2
		copy(d.Buffer(buf), block(byte(0x10+i)))
		if err := d.SendBlock(buf); err != nil {
			t.Fatalf("DMA.SendBlock() error = %v", err)
		}
		if err := d.SendBlock(buf); !errors.Is(err, ErrBusy) {
			t.Errorf("DMA.SendBlock() while busy error = %v, wantErr %v", err, ErrBusy)
		}
		token, err := waitStatus(t, d)
		if err != nil || token != TokenAccepted {
			t.Fatalf("DMA.PollBlockStatus() = 0x%02X, %v, want 0x%02X", token, err, TokenAccepted)
		}
	}

	if err := d.EndMultiBlockWrite(); err != nil {
		t.Fatalf("DMA.EndMultiBlockWrite() error = %v", err)
	}
	token, err := waitStatus(t, d)
	if err != nil || token != TokenSessionDone {
		t.Fatalf("DMA.PollBlockStatus() = 0x%02X, %v, want 0x%02X", token, err, TokenSessionDone)
	}
	if !d.Idle() {
		t.Errorf("DMA.State() = %v, want %v", d.State(), StateIdle)
	}

	got := make([]byte, BlockSize)
	for i := 0; i < 3; i++ {
		if err := mem.ReadBlock(uint32(4+i), got); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, block(byte(0x10+i))) {
			t.Errorf("block %d = %x..., want %02x...", 4+i, got[:2], 0x10+i)
		}
	}
}

func TestDMA_StateErrors(t *testing.T) {
	d := NewDMA(NewMemory(4), WithBuffers(2))
	defer d.Close()

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name:    "send without session",
			call:    func() error { return d.SendBlock(0) },
			wantErr: ErrBusy,
		},
		{
			name:    "end without session",
			call:    d.EndMultiBlockWrite,
			wantErr: ErrBusy,
		},
		{
			name:    "start out of range",
			call:    func() error { return d.StartMultiBlockWrite(4) },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "invalid buffer",
			call:    func() error { return d.SendBlock(2) },
			wantErr: ErrOutOfRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDMA_WriteRejected(t *testing.T) {
	devErr := errors.New("card error")

	mockCtrl := gomock.NewController(t)
	dev := NewMockDevice(mockCtrl)
	dev.EXPECT().BlockCount().Return(uint32(8)).AnyTimes()
	dev.EXPECT().WriteBlock(uint32(2), gomock.Any()).Return(devErr)

	d := NewDMA(dev)
	defer d.Close()

	if err := d.StartMultiBlockWrite(2); err != nil {
		t.Fatal(err)
	}
	if err := d.SendBlock(0); err != nil {
		t.Fatal(err)
	}
	token, err := waitStatus(t, d)
	if token != TokenWriteError {
		t.Errorf("DMA.PollBlockStatus() token = 0x%02X, want 0x%02X", token, TokenWriteError)
	}
	if !errors.Is(err, ErrWriteRejected) || !errors.Is(err, devErr) {
		t.Errorf("DMA.PollBlockStatus() error = %v, want %v and %v", err, ErrWriteRejected, devErr)
	}
	if !d.MultiBlockIdle() {
		t.Errorf("DMA.State() = %v, want %v", d.State(), StateMBWIdle)
	}
}

func TestDMA_SyncOnEnd(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	syncer := NewMockSyncer(mockCtrl)
	syncer.EXPECT().Sync().Return(nil)

	dev := struct {
		*Memory
		Syncer
	}{NewMemory(4), syncer}

	d := NewDMA(dev)
	defer d.Close()

	if err := d.StartMultiBlockWrite(0); err != nil {
		t.Fatal(err)
	}
	if err := d.EndMultiBlockWrite(); err != nil {
		t.Fatal(err)
	}
	if token, err := waitStatus(t, d); token != TokenSessionDone || err != nil {
		t.Errorf("DMA.PollBlockStatus() = 0x%02X, %v, want 0x%02X", token, err, TokenSessionDone)
	}
}

func TestDMA_Timeout(t *testing.T) {
	faulty := NewFaulty(NewMemory(4))
	faulty.Stall()
	defer faulty.Resume()

	d := NewDMA(faulty, WithTimeout(20*time.Millisecond))
	defer d.Close()

	if err := d.StartMultiBlockWrite(0); err != nil {
		t.Fatal(err)
	}
	if err := d.SendBlock(0); err != nil {
		t.Fatal(err)
	}

	token, err := waitStatus(t, d)
	if token != TokenPending || !errors.Is(err, ErrTimeout) {
		t.Errorf("DMA.PollBlockStatus() = 0x%02X, %v, wantErr %v", token, err, ErrTimeout)
	}
	if d.MultiBlockIdle() {
		t.Errorf("DMA.MultiBlockIdle() = true after a timeout, want false")
	}
}

func TestDMA_Closed(t *testing.T) {
	d := NewDMA(NewMemory(4))
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("DMA.Close() twice error = %v", err)
	}
	if err := d.StartMultiBlockWrite(0); !errors.Is(err, ErrClosed) {
		t.Errorf("DMA.StartMultiBlockWrite() error = %v, wantErr %v", err, ErrClosed)
	}
}
