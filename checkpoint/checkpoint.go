// Package checkpoint decorates errors with the place they passed through.
// A chain of checkpoints reads like a short trace from the failing block
// device call up to the public API.
// Every error attached to a checkpoint stays visible to errors.Is and errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// Frame is the source position a checkpoint was created at.
type Frame struct {
	Func string
	File string
	Line int
}

func (f Frame) String() string {
	if f.File == "" {
		return "unknown"
	}
	if f.Func == "" {
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	return fmt.Sprintf("%s (%s:%d)", f.Func, f.File, f.Line)
}

// From attaches a checkpoint to err.
// It returns nil for a nil error and passes io.EOF and io.ErrUnexpectedEOF
// through unchanged, since callers compare those with ==.
func From(err error) error {
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}
	return &checkpoint{frame: caller(2), prev: err}
}

// Wrap attaches a checkpoint to prev that is additionally described by err,
// usually one of the package level sentinel errors:
//
//	var ErrDeviceRead = errors.New("could not read block from device")
//
//	func (fs *FS) readBlock(lba uint32, dst []byte) error {
//		return checkpoint.Wrap(fs.dev.ReadBlock(lba, dst), ErrDeviceRead)
//	}
//
// Both ErrDeviceRead and whatever the device returned can then be matched
// with errors.Is. Wrap returns nil if prev is nil and io.EOF if prev is io.EOF.
func Wrap(prev, err error) error {
	if prev == nil || prev == io.EOF {
		return prev
	}
	return &checkpoint{frame: caller(2), err: err, prev: prev}
}

// Frames returns the positions of all checkpoints in err, outermost first.
func Frames(err error) []Frame {
	var frames []Frame
	for err != nil {
		if c, ok := err.(*checkpoint); ok {
			frames = append(frames, c.frame)
		}
		err = errors.Unwrap(err)
	}
	return frames
}

func caller(skip int) Frame {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return Frame{}
	}
	var name string
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
	}
	return Frame{Func: name, File: filepath.Base(file), Line: line}
}

type checkpoint struct {
	frame Frame
	err   error
	prev  error
}

func (c *checkpoint) Error() string {
	var b strings.Builder
	b.WriteString(c.frame.String())
	if c.err != nil {
		b.WriteString(": ")
		b.WriteString(c.err.Error())
	}

	prev := c.prev.Error()
	if _, ok := c.prev.(*checkpoint); !ok {
		prev = strings.ReplaceAll(prev, "\n", "\n\t")
	}
	b.WriteString("\n\t")
	b.WriteString(prev)
	return b.String()
}

func (c *checkpoint) Unwrap() error {
	return c.prev
}

func (c *checkpoint) Is(target error) bool {
	return c.err != nil && errors.Is(c.err, target)
}

func (c *checkpoint) As(target interface{}) bool {
	return c.err != nil && errors.As(c.err, target)
}
