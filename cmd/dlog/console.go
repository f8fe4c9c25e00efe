package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	log "github.com/fclairamb/go-log"
	"github.com/mattn/go-tty"
	"github.com/spf13/cobra"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/canlog"
)

const consoleHelp = `n  log the test frame 0DE LOLDUCKS
k  write 1024 numbered test blocks
l  write "Duckies!" 1024 times
x  close the log file and quit
q  quit without closing the log file
`

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive a log file interactively with single keys",
	Long:  "Opens the next log file and reacts to keys like the datalogger bench firmware.\n\n" + consoleHelp,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		volume, img, err := openVolume(false)
		if err != nil {
			return err
		}
		defer img.Close()

		file, closeDMA, err := newStream(volume, img, "")
		if err != nil {
			return err
		}
		defer closeDMA()

		t, err := tty.Open()
		if err != nil {
			return err
		}
		defer t.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Logging to %s\n%s", file.Name(), consoleHelp)
		return newConsole(file, out, logger).run(t)
	},
}

var (
	testFrame   = canlog.Frame{ID: 0x0DE, Data: []byte("LOLDUCKS")}
	testLine    = []byte("Duckies!\n")
	errQuit     = errors.New("quit")
	blockFooter = "End of Sect\n"
)

const testBlocks = 1024

// console feeds a streaming file from key presses.
type console struct {
	file   *fatlog.StreamFile
	logger *canlog.Logger
	out    io.Writer
	log    log.Logger
}

func newConsole(file *fatlog.StreamFile, out io.Writer, logger log.Logger) *console {
	return &console{
		file:   file,
		logger: canlog.NewLogger(file, canlog.WithLogger(logger), canlog.WithEcho(out)),
		out:    out,
		log:    logger,
	}
}

type runeReader interface {
	ReadRune() (rune, error)
}

// run handles keys until x or q. The file is stepped while waiting.
func (c *console) run(keys runeReader) error {
	runes := make(chan rune)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			r, err := keys.ReadRune()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case runes <- r:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(canlog.DefaultStepInterval)
	defer ticker.Stop()
	for {
		select {
		case r := <-runes:
			if err := c.handle(r); errors.Is(err, errQuit) {
				return nil
			} else if err != nil {
				return err
			}
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-ticker.C:
			c.file.Step()
		}
	}
}

func (c *console) handle(key rune) error {
	switch key {
	case 'n':
		err := c.logger.Log(testFrame)
		if errors.Is(err, canlog.ErrDropped) {
			fmt.Fprintln(c.out, "Frame dropped, buffers full")
		} else if err != nil {
			return err
		}
	case 'k':
		block := make([]byte, 0, 512)
		for i := 0; i < testBlocks; i++ {
			block = appendTestBlock(block[:0], uint16(i))
			if err := c.write(block); err != nil {
				return err
			}
		}
		fmt.Fprintln(c.out, "Done")
	case 'l':
		for i := 0; i < testBlocks; i++ {
			if err := c.write(testLine); err != nil {
				return err
			}
		}
		fmt.Fprintln(c.out, "Done")
	case 'x':
		fmt.Fprintln(c.out, "Closing file ...")
		if err := c.file.Terminate(); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s closed, %d bytes\n", c.file.Name(), c.file.Size())
		return errQuit
	case 'q':
		return errQuit
	default:
		fmt.Fprintf(c.out, "Unrecognized key '%c'\n", key)
	}
	return nil
}

// write hands all of p to the file, stepping it while the buffers are full.
// The DMA worker needs the CPU to drain them, so the loop yields.
func (c *console) write(p []byte) error {
	for len(p) > 0 {
		n, err := c.file.Write(p)
		p = p[n:]
		if errors.Is(err, fatlog.ErrBufferFull) {
			c.file.Step()
			runtime.Gosched()
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// appendTestBlock appends one 512 byte test block: 100 lines with the
// block number as four hex digits and a footer line.
func appendTestBlock(dst []byte, n uint16) []byte {
	for i := 0; i < 100; i++ {
		dst = append(dst, fmt.Sprintf("%04X\n", n)...)
	}
	return append(dst, blockFooter...)
}
