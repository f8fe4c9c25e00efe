package fatlog

import (
	"errors"

	"github.com/calsol/fatlog/blockdev"
)

// Device errors. They are fatal to the operation which hit them.
var (
	ErrDeviceRead  = errors.New("could not read block from device")
	ErrDeviceWrite = errors.New("could not write block to device")
)

// Filesystem consistency errors. They are fatal to mount and create.
var (
	ErrBadSignature   = errors.New("no valid boot sector found")
	ErrSectorSize     = errors.New("bytes per sector must be 512")
	ErrGeometry       = errors.New("invalid volume geometry")
	ErrUnsupportedFS  = errors.New("filesystem is not FAT32")
	ErrBadFSInfo      = errors.New("invalid FS information sector")
	ErrInvalidCluster = errors.New("invalid cluster value")
	ErrEndOfChain     = errors.New("end of cluster chain")
	ErrDirectoryFull  = errors.New("no free directory entry")
	ErrNotFound       = errors.New("directory entry not found")
	ErrInvalidName    = errors.New("invalid 8.3 name")
	ErrVolumeFull     = errors.New("no free clusters left")
	ErrExists         = errors.New("directory entry already exists")
	ErrFileTooLarge   = errors.New("file size limit of 4 GiB reached")
)

// Capacity and state errors.
var (
	// ErrBufferFull is returned together with a short write count. It is
	// recoverable: step the file and retry, or drop the data.
	ErrBufferFull   = errors.New("overflow buffer is full")
	ErrDegraded     = errors.New("file stopped accepting writes after a failure")
	ErrClosed       = errors.New("file is already terminated")
	ErrWriterActive = errors.New("another streaming writer is active")
	ErrEngineBusy   = errors.New("DMA engine is not idle")
	ErrEngineSize   = errors.New("DMA engine needs at least two buffers")
	ErrReadOnly     = errors.New("volume view is read-only")
)

// IsDeviceError reports whether err was caused by the block device rather
// than by the filesystem contents.
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDeviceRead) ||
		errors.Is(err, ErrDeviceWrite) ||
		errors.Is(err, blockdev.ErrTimeout) ||
		errors.Is(err, blockdev.ErrWriteRejected)
}
