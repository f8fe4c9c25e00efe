package blockdev

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"
)

var (
	_ Device = (*ImageFile)(nil)
	_ Syncer = (*ImageFile)(nil)
)

// ImageFile is a Device backed by a disk image file.
// Any afero.Fs works, so tests can keep images in memory.
type ImageFile struct {
	mu     sync.Mutex
	file   afero.File
	blocks uint32
}

// OpenImage opens an existing image for reading and writing.
func OpenImage(fs afero.Fs, path string) (*ImageFile, error) {
	return openImage(fs, path, os.O_RDWR)
}

// OpenImageReadOnly opens an existing image which is never written to.
func OpenImageReadOnly(fs afero.Fs, path string) (*ImageFile, error) {
	return openImage(fs, path, os.O_RDONLY)
}

// CreateImage creates (or truncates) an image of the given number of blocks.
func CreateImage(fs afero.Fs, path string, blocks uint32) (*ImageFile, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create image: %w", err)
	}
	if err := f.Truncate(int64(blocks) * BlockSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size image: %w", err)
	}
	return &ImageFile{file: f, blocks: blocks}, nil
}

func openImage(fs afero.Fs, path string, flag int) (*ImageFile, error) {
	f, err := fs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	return &ImageFile{file: f, blocks: uint32(info.Size() / BlockSize)}, nil
}

func (img *ImageFile) ReadBlock(lba uint32, dst []byte) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.file == nil {
		return ErrClosed
	}
	if err := checkAccess(lba, dst, img.blocks); err != nil {
		return err
	}

	n, err := img.file.ReadAt(dst, int64(lba)*BlockSize)
	if err == io.EOF && n == BlockSize {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to read block %d: %w", lba, err)
	}
	return nil
}

func (img *ImageFile) WriteBlock(lba uint32, src []byte) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.file == nil {
		return ErrClosed
	}
	if err := checkAccess(lba, src, img.blocks); err != nil {
		return err
	}

	if _, err := img.file.WriteAt(src, int64(lba)*BlockSize); err != nil {
		return fmt.Errorf("failed to write block %d: %w", lba, err)
	}
	return nil
}

func (img *ImageFile) BlockCount() uint32 {
	return img.blocks
}

func (img *ImageFile) Sync() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.file == nil {
		return ErrClosed
	}
	return img.file.Sync()
}

// Close syncs and closes the image.
func (img *ImageFile) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.file == nil {
		return nil
	}
	err := img.file.Sync()
	if cerr := img.file.Close(); err == nil {
		err = cerr
	}
	img.file = nil
	return err
}
