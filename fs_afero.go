package fatlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/calsol/fatlog/checkpoint"
)

// The FS is a read-only afero.Fs of its root directory. It is what the
// read-back tools and the file servers use; logging goes through
// CreateStreamingFile.
var _ afero.Fs = (*FS)(nil)

func (fs *FS) Name() string {
	return "fatlog"
}

// Open opens the root directory ("", "." or "/") or a file in it.
// Lookups are case-sensitive first and fall back to upper case.
func (fs *FS) Open(name string) (afero.File, error) {
	if isRoot(name) {
		return &File{fs: fs, isDirectory: true, stat: rootFileInfo{label: fs.geo.Label}}, nil
	}

	entry, err := fs.lookup(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return &File{
		fs:           fs,
		isDirectory:  entry.Attribute&AttrDirectory != 0,
		firstCluster: entry.FirstCluster(),
		stat:         entry.FileInfo(),
	}, nil
}

// OpenFile opens name for reading. Any flag asking for write access fails
// with syscall.EROFS.
func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, readOnly("open", name)
	}
	return fs.Open(name)
}

func (fs *FS) Stat(name string) (os.FileInfo, error) {
	if isRoot(name) {
		return rootFileInfo{label: fs.geo.Label}, nil
	}
	entry, err := fs.lookup(name)
	if err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return entry.FileInfo(), nil
}

func (fs *FS) Create(name string) (afero.File, error) {
	return nil, readOnly("create", name)
}

func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	return readOnly("mkdir", name)
}

func (fs *FS) MkdirAll(path string, perm os.FileMode) error {
	return readOnly("mkdir", path)
}

func (fs *FS) Remove(name string) error {
	return readOnly("remove", name)
}

func (fs *FS) RemoveAll(path string) error {
	return readOnly("remove", path)
}

func (fs *FS) Rename(oldname, newname string) error {
	return readOnly("rename", oldname)
}

func (fs *FS) Chmod(name string, mode os.FileMode) error {
	return readOnly("chmod", name)
}

func (fs *FS) Chown(name string, uid, gid int) error {
	return readOnly("chown", name)
}

func (fs *FS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return readOnly("chtimes", name)
}

func isRoot(name string) bool {
	name = strings.Trim(name, "/")
	return name == "" || name == "."
}

// lookup finds a file of the root directory by its NAME.EXT path.
func (fs *FS) lookup(path string) (*Entry, error) {
	path = strings.TrimPrefix(path, "/")
	if strings.ContainsRune(path, '/') {
		return nil, checkpoint.Wrap(syscall.ENOENT, ErrNotFound)
	}

	for _, candidate := range []string{path, strings.ToUpper(path)} {
		name, ext := splitName(candidate)
		entry, err := fs.FindEntry(fs.geo.RootCluster, name, ext)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidName) {
			return nil, err
		}
	}
	return nil, checkpoint.Wrap(syscall.ENOENT, ErrNotFound)
}

func (fs *FS) readRoot() ([]Entry, error) {
	return fs.readDir(fs.geo.RootCluster)
}

// readFileAt reads up to readSize bytes at offset of the chain starting at
// firstCluster, never past fileSize. A short result comes with io.EOF or
// with the error that stopped the read.
func (fs *FS) readFileAt(firstCluster uint32, fileSize int64, offset int64, readSize int64) ([]byte, error) {
	if offset >= fileSize {
		return nil, io.EOF
	}
	if !fs.validCluster(firstCluster) {
		return nil, checkpoint.From(fmt.Errorf("%w: first cluster %d", ErrInvalidCluster, firstCluster))
	}

	var eof error
	if offset+readSize > fileSize {
		readSize = fileSize - offset
		eof = io.EOF
	}

	clusterSize := int64(fs.ClusterSize())
	cluster := firstCluster
	for i := int64(0); i < offset/clusterSize; i++ {
		next, err := fs.NextCluster(cluster)
		if err != nil {
			return nil, err
		}
		cluster = next
	}

	var buf [BlockSize]byte
	data := make([]byte, 0, readSize)
	pos := offset
	for int64(len(data)) < readSize {
		inCluster := pos % clusterSize
		lba := fs.ClusterToDataLBA(cluster) + uint32(inCluster/BlockSize)
		if err := fs.readBlock(lba, buf[:]); err != nil {
			return data, err
		}

		start := inCluster % BlockSize
		n := min(BlockSize-start, readSize-int64(len(data)))
		data = append(data, buf[start:start+n]...)
		pos += n

		if pos%clusterSize == 0 && int64(len(data)) < readSize {
			next, err := fs.NextCluster(cluster)
			if err != nil {
				return data, err
			}
			cluster = next
		}
	}
	return data, eof
}
