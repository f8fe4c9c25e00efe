// Package blockdev provides the block devices the FAT32 writer runs on:
// synchronous 512 byte block access and an asynchronous multi-block-write
// engine modelled after an SD card driven over SPI with DMA.
package blockdev

import (
	"errors"
	"fmt"
)

// BlockSize is the only block size supported.
const BlockSize = 512

// Errors returned by the devices of this package.
var (
	ErrOutOfRange    = errors.New("block address out of range")
	ErrBufferSize    = errors.New("buffer is not exactly one block")
	ErrClosed        = errors.New("device is closed")
	ErrInjected      = errors.New("injected device failure")
	ErrTimeout       = errors.New("device operation timed out")
	ErrBusy          = errors.New("device is busy")
	ErrWriteRejected = errors.New("block write rejected by device")
)

// Device is a synchronous block device with fixed 512 byte blocks addressed
// by a 32 bit logical block address.
// Generated mock using mockgen:
//
//	mockgen -source=device.go -destination=device_mock.go -package blockdev
type Device interface {
	// ReadBlock fills dst, which must be BlockSize long, with block lba.
	ReadBlock(lba uint32, dst []byte) error
	// WriteBlock writes src, which must be BlockSize long, to block lba.
	WriteBlock(lba uint32, src []byte) error
	// BlockCount returns the number of addressable blocks.
	BlockCount() uint32
}

// Syncer is implemented by devices which buffer writes.
// The DMA engine calls Sync when a multi-block write session is closed.
type Syncer interface {
	Sync() error
}

func checkAccess(lba uint32, buf []byte, count uint32) error {
	if len(buf) != BlockSize {
		return fmt.Errorf("%w: got %d bytes", ErrBufferSize, len(buf))
	}
	if lba >= count {
		return fmt.Errorf("%w: lba %d, block count %d", ErrOutOfRange, lba, count)
	}
	return nil
}
