package canlog

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/fclairamb/go-log"
	"github.com/fclairamb/go-log/noop"

	"github.com/calsol/fatlog/checkpoint"
)

// ErrDropped is returned by Logger.Log when a record did not fit into the
// sink. The record is dropped as a whole; logging can continue.
var ErrDropped = errors.New("record dropped, log buffer full")

const DefaultStepInterval = time.Millisecond

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the logger for diagnostics.
func WithLogger(logger log.Logger) Option {
	return func(l *Logger) {
		l.log = logger
	}
}

// WithEcho writes every logged record to w as well, for example a
// serial console.
func WithEcho(w io.Writer) Option {
	return func(l *Logger) {
		l.echo = w
	}
}

// WithStepInterval sets how often Run steps the sink while no frames arrive.
func WithStepInterval(interval time.Duration) Option {
	return func(l *Logger) {
		if interval > 0 {
			l.interval = interval
		}
	}
}

// Stats counts what a Logger did.
type Stats struct {
	Frames  uint64
	Dropped uint64
	Invalid uint64
	Bytes   uint64
}

// Logger writes frames as records into a sink.
// It is not safe for concurrent use; Run owns it while it runs.
type Logger struct {
	sink     Sink
	log      log.Logger
	echo     io.Writer
	interval time.Duration

	record []byte
	stats  Stats
}

func NewLogger(sink Sink, opts ...Option) *Logger {
	l := &Logger{
		sink:     sink,
		log:      noop.NewNoOpLogger(),
		interval: DefaultStepInterval,
		record:   make([]byte, 0, 64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log appends the record of f to the sink. A record never gets split: if it
// does not fit completely, nothing is written and ErrDropped is returned.
func (l *Logger) Log(f Frame) error {
	l.record = AppendRecord(l.record[:0], f)
	if l.sink.Available() < len(l.record) {
		l.stats.Dropped++
		l.log.Debug("Dropped frame", "id", f.ID, "dropped", l.stats.Dropped)
		return checkpoint.From(ErrDropped)
	}

	n, err := l.sink.Write(l.record)
	l.stats.Bytes += uint64(n)
	if err != nil {
		return checkpoint.From(err)
	}
	l.stats.Frames++

	if l.echo != nil {
		if _, err := l.echo.Write(l.record); err != nil {
			l.log.Warn("Could not echo record", "err", err)
		}
	}
	return nil
}

// Run logs the frames of src until src ends, ctx is done or the sink
// fails. It steps the sink while waiting so that buffered data keeps
// flowing to the device. The end of src and a done ctx are no errors.
//
// When ctx is done, the frames already read from src are still logged. A
// source blocked in Next is abandoned.
func (l *Logger) Run(ctx context.Context, src Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan Frame, 64)
	done := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			f, err := src.Next()
			switch {
			case errors.Is(err, ErrFrame):
				l.log.Warn("Skipped invalid frame", "err", err)
				f = Frame{ID: invalidFrame}
			case err != nil:
				done <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain(frames)
			return nil

		case f, ok := <-frames:
			if !ok {
				err := <-done
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if f.ID == invalidFrame {
				l.stats.Invalid++
				continue
			}
			if err := l.Log(f); err != nil && !errors.Is(err, ErrDropped) {
				return err
			}

		case <-ticker.C:
			l.sink.Step()
		}
	}
}

// drain logs the frames waiting in frames without blocking. Frames the sink
// refuses are counted as dropped.
func (l *Logger) drain(frames <-chan Frame) {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			if f.ID == invalidFrame {
				l.stats.Invalid++
				continue
			}
			if err := l.Log(f); err != nil && !errors.Is(err, ErrDropped) {
				l.stats.Dropped++
			}
		default:
			return
		}
	}
}

// invalidFrame marks a line that could not be parsed. It is above every
// valid identifier.
const invalidFrame = 0xFFFFFFFF

func (l *Logger) Stats() Stats {
	return l.stats
}
