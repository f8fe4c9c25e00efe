package blockdev

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func block(b byte) []byte {
	return bytes.Repeat([]byte{b}, BlockSize)
}

func TestMemory_ReadWrite(t *testing.T) {
	tests := []struct {
		name    string
		blocks  uint32
		lba     uint32
		buf     []byte
		wantErr error
	}{
		{
			name:   "first block",
			blocks: 4,
			lba:    0,
			buf:    block(0xAB),
		},
		{
			name:   "last block",
			blocks: 4,
			lba:    3,
			buf:    block(0x11),
		},
		{
			name:    "past the end",
			blocks:  4,
			lba:     4,
			buf:     block(0x11),
			wantErr: ErrOutOfRange,
		},
		{
			name:    "short buffer",
			blocks:  4,
			lba:     1,
			buf:     make([]byte, 100),
			wantErr: ErrBufferSize,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory(tt.blocks)
			err := m.WriteBlock(tt.lba, tt.buf)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Memory.WriteBlock() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			got := make([]byte, BlockSize)
			if err := m.ReadBlock(tt.lba, got); err != nil {
				t.Fatalf("Memory.ReadBlock() error = %v", err)
			}
			if !bytes.Equal(got, tt.buf) {
				t.Errorf("Memory.ReadBlock() = %x..., want %x...", got[:4], tt.buf[:4])
			}
		})
	}
}

func TestNewMemoryFrom(t *testing.T) {
	m := NewMemoryFrom(make([]byte, 3*BlockSize+17))
	if got := m.BlockCount(); got != 3 {
		t.Errorf("Memory.BlockCount() = %v, want 3", got)
	}
}

func TestImageFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	img, err := CreateImage(fs, "/disk.img", 8)
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	if got := img.BlockCount(); got != 8 {
		t.Errorf("ImageFile.BlockCount() = %v, want 8", got)
	}
	if err := img.WriteBlock(5, block(0x5A)); err != nil {
		t.Fatalf("ImageFile.WriteBlock() error = %v", err)
	}
	if err := img.WriteBlock(8, block(0x5A)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ImageFile.WriteBlock() error = %v, wantErr %v", err, ErrOutOfRange)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("ImageFile.Close() error = %v", err)
	}
	if err := img.ReadBlock(0, make([]byte, BlockSize)); !errors.Is(err, ErrClosed) {
		t.Errorf("ImageFile.ReadBlock() after Close error = %v, wantErr %v", err, ErrClosed)
	}

	ro, err := OpenImageReadOnly(fs, "/disk.img")
	if err != nil {
		t.Fatalf("OpenImageReadOnly() error = %v", err)
	}
	defer ro.Close()

	got := make([]byte, BlockSize)
	if err := ro.ReadBlock(5, got); err != nil {
		t.Fatalf("ImageFile.ReadBlock() error = %v", err)
	}
	if !bytes.Equal(got, block(0x5A)) {
		t.Errorf("ImageFile.ReadBlock() = %x..., want 5a5a...", got[:4])
	}
	if err := ro.ReadBlock(4, got); err != nil {
		t.Fatalf("ImageFile.ReadBlock() error = %v", err)
	}
	if !bytes.Equal(got, block(0)) {
		t.Errorf("ImageFile.ReadBlock() of untouched block = %x..., want zeros", got[:4])
	}
}

func TestOpenImage_Missing(t *testing.T) {
	if _, err := OpenImage(afero.NewMemMapFs(), "/missing.img"); err == nil {
		t.Errorf("OpenImage() error = nil, want an error")
	}
}

func TestFaulty(t *testing.T) {
	f := NewFaulty(NewMemory(4))

	f.FailWritesAfter(1)
	if err := f.WriteBlock(0, block(1)); err != nil {
		t.Fatalf("Faulty.WriteBlock() error = %v", err)
	}
	if err := f.WriteBlock(1, block(1)); !errors.Is(err, ErrInjected) {
		t.Errorf("Faulty.WriteBlock() error = %v, wantErr %v", err, ErrInjected)
	}
	f.FailWritesAfter(-1)
	if err := f.WriteBlock(1, block(1)); err != nil {
		t.Errorf("Faulty.WriteBlock() error = %v", err)
	}
	if got := f.Writes(); got != 2 {
		t.Errorf("Faulty.Writes() = %v, want 2", got)
	}

	f.FailReads(true)
	if err := f.ReadBlock(0, make([]byte, BlockSize)); !errors.Is(err, ErrInjected) {
		t.Errorf("Faulty.ReadBlock() error = %v, wantErr %v", err, ErrInjected)
	}
	f.FailReads(false)
	if err := f.ReadBlock(0, make([]byte, BlockSize)); err != nil {
		t.Errorf("Faulty.ReadBlock() error = %v", err)
	}
}

func TestFaulty_Stall(t *testing.T) {
	f := NewFaulty(NewMemory(4))
	f.Stall()

	done := make(chan error)
	go func() {
		done <- f.WriteBlock(2, block(2))
	}()

	for f.Stalled() == 0 {
		select {
		case err := <-done:
			t.Fatalf("Faulty.WriteBlock() returned %v while stalled", err)
		default:
		}
	}

	f.Resume()
	if err := <-done; err != nil {
		t.Errorf("Faulty.WriteBlock() error = %v", err)
	}
}
