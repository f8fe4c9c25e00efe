package fatlog

import (
	"errors"
	"io"
	"io/fs"
	"sort"

	"github.com/spf13/afero"
)

var (
	_ fs.ReadDirFS   = (*GoFs)(nil)
	_ fs.ReadFileFS  = (*GoFs)(nil)
	_ fs.StatFS      = (*GoFs)(nil)
	_ fs.ReadDirFile = GoFile{}
	_ io.ReadSeeker  = GoFile{}
	_ io.ReaderAt    = GoFile{}
)

// GoDirEntry is a root directory record seen as fs.DirEntry.
type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile is an open File seen as fs.File. It keeps Seek and ReadAt so that
// http.FS can serve ranges of a log.
type GoFile struct {
	*File
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := g.File.Readdir(n)

	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = GoDirEntry{info}
	}
	return entries, err
}

// GoFs is the io/fs view of a volume, for example to serve it with http.FS
// or to walk it with fs.WalkDir. Like the afero view it is read-only and
// flat.
type GoFs struct {
	volume *FS
}

// NewGoFS returns the fs.FS view of a mounted volume.
func NewGoFS(volume *FS) *GoFs {
	return &GoFs{volume: volume}
}

func (g *GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	file, err := g.volume.Open(name)
	if err != nil {
		return nil, err
	}

	f, ok := file.(*File)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}
	return GoFile{f}, nil
}

func (g *GoFs) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	return g.volume.Stat(name)
}

// ReadDir lists a directory sorted by name.
func (g *GoFs) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not implemented")}
	}
	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

func (g *GoFs) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	return afero.ReadFile(g.volume, name)
}
