package canlog

import (
	"github.com/calsol/fatlog"
)

// Sink is the part of a fatlog.StreamFile the logger writes to. It exists to
// be able to mock the file in tests:
//
//	mockgen -source=canlog.go -destination=canlog_mock.go -package canlog
type Sink interface {
	Write(p []byte) (int, error)
	Available() int
	Step()
}

// Finder looks up directory entries, as fatlog.FS does.
type Finder interface {
	FindEntry(cluster uint32, name, ext string) (*fatlog.Entry, error)
}

// Source produces frames until it returns an error, io.EOF at the end.
type Source interface {
	Next() (Frame, error)
}

var (
	_ Sink   = (*fatlog.StreamFile)(nil)
	_ Finder = (*fatlog.FS)(nil)
)
