package fatlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"

	"github.com/calsol/fatlog/checkpoint"
)

// These errors may occur while reading back a file.
var (
	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
)

// fileReader provides what File needs from a volume. It exists to be able
// to mock the FS in tests:
//
//	mockgen -source=file.go -destination=file_mock.go -package fatlog
type fileReader interface {
	readFileAt(firstCluster uint32, fileSize int64, offset int64, readSize int64) ([]byte, error)
	readRoot() ([]Entry, error)
}

// File is a read-only handle on a file or on the root directory of a volume.
// It implements afero.File.
type File struct {
	fs fileReader

	isDirectory  bool
	firstCluster uint32
	stat         os.FileInfo
	offset       int64
}

var _ afero.File = (*File)(nil)

func (f *File) Close() error {
	f.fs = nil
	f.isDirectory = false
	f.firstCluster = 0
	f.stat = nil
	f.offset = 0
	return nil
}

func (f *File) Read(p []byte) (n int, err error) {
	if p == nil {
		return 0, nil
	}
	if f.stat.Size() <= f.offset {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.firstCluster, f.stat.Size(), f.offset, int64(len(p)))
	copy(p, data)

	// Seek even after an error; the read error wins over the seek error.
	_, seekErr := f.Seek(int64(len(data)), io.SeekCurrent)
	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}
	if seekErr != nil {
		return len(data), checkpoint.Wrap(seekErr, ErrReadFile)
	}
	return len(data), nil
}

func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if p == nil {
		return 0, nil
	}
	if f.stat.Size() <= off {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.firstCluster, f.stat.Size(), off, int64(len(p)))
	copy(p, data)
	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}
	if len(data) < len(p) {
		// ReadAt has to explain a short read.
		return len(data), io.EOF
	}
	return len(data), nil
}

// Seek sets the offset for the next Read. An invalid whence is reported as
// syscall.EINVAL, an offset outside of the file as afero.ErrOutOfRange.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.stat.Size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.stat.Size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (n int, err error) {
	return 0, readOnly("write", f.Name())
}

func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, readOnly("write", f.Name())
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}

func (f *File) Truncate(size int64) error {
	return readOnly("truncate", f.Name())
}

// Sync has nothing to do on a read-only file.
func (f *File) Sync() error {
	return nil
}

func (f *File) Name() string {
	return f.stat.Name()
}

func (f *File) Stat() (os.FileInfo, error) {
	return f.stat, nil
}

// Readdir lists the root directory. Only the root directory can be listed:
// any other File returns syscall.ENOTDIR.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	content, err := f.fs.readRoot()
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	if f.offset > int64(len(content)) {
		f.offset = int64(len(content))
	}
	content = content[f.offset:]
	if count > 0 {
		if len(content) == 0 {
			return nil, io.EOF
		}
		if count < len(content) {
			content = content[:count]
		}
	}
	f.offset += int64(len(content))

	result := make([]os.FileInfo, len(content))
	for i := range content {
		result[i] = content[i].FileInfo()
	}
	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}
	return names, nil
}

func readOnly(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: checkpoint.Wrap(syscall.EROFS, ErrReadOnly)}
}
