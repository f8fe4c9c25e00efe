package fatlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/calsol/fatlog/checkpoint"
)

// AnyExt matches every extension in FindEntry.
const AnyExt = "*"

// Characters which are not allowed in short names, on top of control characters.
const invalidNameChars = "\"*+,./:;<=>?[\\]| "

// Directory is a flat directory together with an insertion cursor pointing
// at the block holding the next available record.
type Directory struct {
	fs      *FS
	cluster uint32
	cursor  dirPos
}

type dirPos struct {
	cluster uint32
	block   uint32
}

// Root returns the root directory of the volume.
func (fs *FS) Root() *Directory {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.root == nil {
		fs.root = &Directory{fs: fs, cluster: fs.geo.RootCluster, cursor: dirPos{cluster: fs.geo.RootCluster}}
	}
	return fs.root
}

// Cluster returns the first cluster of the directory.
func (d *Directory) Cluster() uint32 {
	return d.cluster
}

// Cursor returns the cluster, block within the cluster and LBA the next
// entry search starts at.
func (d *Directory) Cursor() (cluster, block, lba uint32) {
	return d.cursor.cluster, d.cursor.block, d.fs.ClusterToDataLBA(d.cursor.cluster) + d.cursor.block
}

// Entry is a located directory record.
type Entry struct {
	// LBA and Offset address the 32 byte record on the device.
	LBA    uint32
	Offset int
	EntryHeader
}

// Name returns NAME.EXT, or just NAME without extension.
func (e *Entry) Name() string {
	return decodeName(e.EntryHeader.Name)
}

// Size returns the file size recorded in the entry.
func (e *Entry) Size() int64 {
	return int64(e.FileSize)
}

// dirSlot is a reserved record together with a copy of its block.
type dirSlot struct {
	lba   uint32
	off   int
	block [BlockSize]byte
}

func (s *dirSlot) record() []byte {
	return s.block[s.off : s.off+entrySize]
}

// CreateEntry claims the first available record at or after the directory
// cursor, fills in the padded name and writes the block.
// The directory is not extended: when the chain ends first, ErrDirectoryFull
// is returned.
func (fs *FS) CreateEntry(dir *Directory, name, ext string) (*Entry, error) {
	slot, err := fs.reserveEntry(dir, name, ext)
	if err != nil {
		return nil, err
	}
	if err := fs.writeBlock(slot.lba, slot.block[:]); err != nil {
		return nil, err
	}
	return decodeEntry(slot.lba, slot.off, slot.record())
}

// reserveEntry prepares a record for name.ext without writing it.
func (fs *FS) reserveEntry(dir *Directory, name, ext string) (*dirSlot, error) {
	raw, err := encodeName(name, ext)
	if err != nil {
		return nil, err
	}

	var slot *dirSlot
	err = fs.scanDir(dir.cursor, func(pos dirPos, lba uint32, b []byte) bool {
		for off := 0; off < BlockSize; off += entrySize {
			if b[off] == entryNeverUsed || b[off] == entryDeleted {
				dir.cursor = pos
				slot = &dirSlot{lba: lba, off: off}
				copy(slot.block[:], b)
				return true
			}
		}
		return false
	})
	if errors.Is(err, ErrEndOfChain) {
		return nil, checkpoint.Wrap(err, ErrDirectoryFull)
	}
	if err != nil {
		return nil, err
	}

	rec := slot.record()
	clear(rec)
	copy(rec[offEntryName:], raw[:])
	if date, clock := fs.timestamp(); date != 0 {
		PutUint16(rec[0x0E:], clock)
		PutUint16(rec[0x10:], date)
		PutUint16(rec[0x12:], date)
		PutUint16(rec[0x16:], clock)
		PutUint16(rec[0x18:], date)
	}
	fs.log.Debug("Reserved directory entry", "name", name, "ext", ext, "lba", slot.lba, "offset", slot.off)
	return slot, nil
}

// FindEntry searches the directory starting at cluster for name.ext.
// Names are compared case-sensitively; ext may be AnyExt.
// The search stops at the first never used record.
func (fs *FS) FindEntry(cluster uint32, name, ext string) (*Entry, error) {
	width := 11
	if ext == AnyExt {
		width = 8
		ext = ""
	}
	pattern, err := encodeName(name, ext)
	if err != nil {
		return nil, err
	}

	var found *Entry
	var decodeErr error
	err = fs.scanDir(dirPos{cluster: cluster}, func(_ dirPos, lba uint32, b []byte) bool {
		for off := 0; off < BlockSize; off += entrySize {
			rec := b[off : off+entrySize]
			switch {
			case rec[0] == entryNeverUsed:
				return true
			case rec[0] == entryDeleted, rec[offEntryAttribute]&AttrVolumeID != 0:
				continue
			case bytes.Equal(rec[:width], pattern[:width]):
				found, decodeErr = decodeEntry(lba, off, rec)
				return true
			}
		}
		return false
	})
	if err != nil && !errors.Is(err, ErrEndOfChain) {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if found == nil {
		return nil, checkpoint.From(fmt.Errorf("%w: %s", ErrNotFound, joinName(name, ext)))
	}
	return found, nil
}

// readDir returns every visible record of the directory starting at cluster.
func (fs *FS) readDir(cluster uint32) ([]Entry, error) {
	var entries []Entry
	var decodeErr error
	err := fs.scanDir(dirPos{cluster: cluster}, func(_ dirPos, lba uint32, b []byte) bool {
		for off := 0; off < BlockSize; off += entrySize {
			rec := b[off : off+entrySize]
			switch {
			case rec[0] == entryNeverUsed:
				return true
			case rec[0] == entryDeleted, rec[offEntryAttribute]&AttrVolumeID != 0:
				continue
			}
			e, err := decodeEntry(lba, off, rec)
			if err != nil {
				decodeErr = err
				return true
			}
			entries = append(entries, *e)
		}
		return false
	})
	if err != nil && !errors.Is(err, ErrEndOfChain) {
		return nil, err
	}
	return entries, decodeErr
}

// scanDir reads the directory chain block by block from pos until visit
// returns true. Running off the end of the chain returns ErrEndOfChain.
func (fs *FS) scanDir(pos dirPos, visit func(pos dirPos, lba uint32, block []byte) bool) error {
	var buf [BlockSize]byte
	limit := fs.geo.MaxCluster * fs.geo.SectorsPerCluster
	for steps := uint32(0); steps <= limit; steps++ {
		lba := fs.ClusterToDataLBA(pos.cluster) + pos.block
		if err := fs.readBlock(lba, buf[:]); err != nil {
			return err
		}
		if visit(pos, lba, buf[:]) {
			return nil
		}

		pos.block++
		if pos.block == fs.geo.SectorsPerCluster {
			next, err := fs.NextCluster(pos.cluster)
			if err != nil {
				return err
			}
			pos = dirPos{cluster: next}
		}
	}
	return checkpoint.From(fmt.Errorf("%w: directory chain loops", ErrInvalidCluster))
}

func decodeEntry(lba uint32, off int, rec []byte) (*Entry, error) {
	e := &Entry{LBA: lba, Offset: off}
	if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &e.EntryHeader); err != nil {
		return nil, checkpoint.From(err)
	}
	return e, nil
}

// encodeName converts name and ext to the space padded 11 byte form in code page 437.
func encodeName(name, ext string) ([11]byte, error) {
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}

	encoder := charmap.CodePage437.NewEncoder()
	n, err := encoder.String(name)
	if err != nil {
		return raw, checkpoint.Wrap(err, ErrInvalidName)
	}
	e, err := encoder.String(ext)
	if err != nil {
		return raw, checkpoint.Wrap(err, ErrInvalidName)
	}

	if len(n) == 0 || len(n) > 8 || len(e) > 3 {
		return raw, checkpoint.From(fmt.Errorf("%w: %q.%q does not fit 8.3", ErrInvalidName, name, ext))
	}
	for _, c := range []byte(n + e) {
		if c < 0x20 || strings.IndexByte(invalidNameChars, c) >= 0 {
			return raw, checkpoint.From(fmt.Errorf("%w: character 0x%02X", ErrInvalidName, c))
		}
	}
	if n[0] == entryDeleted {
		return raw, checkpoint.From(fmt.Errorf("%w: leading 0xE5", ErrInvalidName))
	}

	copy(raw[:8], n)
	copy(raw[8:], e)
	return raw, nil
}

// decodeName renders a raw 8.3 name as NAME.EXT.
func decodeName(raw [11]byte) string {
	decoder := charmap.CodePage437.NewDecoder()
	name, err := decoder.Bytes(bytes.TrimRight(raw[:8], " "))
	if err != nil {
		name = bytes.TrimRight(raw[:8], " ")
	}
	ext, err := decoder.Bytes(bytes.TrimRight(raw[8:], " "))
	if err != nil {
		ext = bytes.TrimRight(raw[8:], " ")
	}
	return joinName(string(name), string(ext))
}

func joinName(name, ext string) string {
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// splitName splits NAME.EXT at the last dot.
func splitName(full string) (name, ext string) {
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		return full[:i], full[i+1:]
	}
	return full, ""
}
