package fatlog

import (
	"os"
	"time"
)

// FileInfo describes the entry as os.FileInfo.
func (e *Entry) FileInfo() os.FileInfo {
	return entryFileInfo{*e}
}

type entryFileInfo struct {
	entry Entry
}

func (e entryFileInfo) Name() string {
	return e.entry.Name()
}

func (e entryFileInfo) Size() int64 {
	return e.entry.Size()
}

func (e entryFileInfo) Mode() os.FileMode {
	if e.IsDir() {
		return os.ModeDir | 0o555
	}
	if e.entry.Attribute&AttrReadOnly != 0 {
		return 0o444
	}
	return 0o644
}

func (e entryFileInfo) ModTime() time.Time {
	writeDate := ParseDate(e.entry.WriteDate)
	writeTime := ParseTime(e.entry.WriteTime)

	// An invalid date decodes as zero. A zero time on the other hand is
	// midnight and perfectly valid.
	if writeDate.IsZero() {
		return time.Time{}
	}

	return time.Date(writeDate.Year(), writeDate.Month(), writeDate.Day(), writeTime.Hour(), writeTime.Minute(), writeTime.Second(), 0, time.UTC)
}

func (e entryFileInfo) IsDir() bool {
	return e.entry.Attribute&AttrDirectory != 0
}

func (e entryFileInfo) Sys() interface{} {
	return e.entry.EntryHeader
}

// rootFileInfo describes the root directory, which has no entry of its own.
type rootFileInfo struct {
	label string
}

func (r rootFileInfo) Name() string       { return "/" }
func (r rootFileInfo) Size() int64        { return 0 }
func (r rootFileInfo) Mode() os.FileMode  { return os.ModeDir | 0o555 }
func (r rootFileInfo) ModTime() time.Time { return time.Time{} }
func (r rootFileInfo) IsDir() bool        { return true }
func (r rootFileInfo) Sys() interface{}   { return r.label }
