package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/blockdev"
	"github.com/calsol/fatlog/canlog"
)

var (
	recordOpts = struct {
		input string
		name  string
		echo  bool
	}{}

	recordCmd = &cobra.Command{
		Use:   "record",
		Short: "Stream CAN frames into a new log file",
		Long: "Reads CAN frames in candump, cansend or record format from a file or stdin\n" +
			"and streams them into the next free log file of the volume.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if recordOpts.input != "" && recordOpts.input != "-" {
				f, err := hostFs.Open(recordOpts.input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			volume, img, err := openVolume(false)
			if err != nil {
				return err
			}
			defer img.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			echo := recordOpts.echo || cfg.Record.Echo
			stats, err := record(ctx, volume, img, canlog.NewScanner(in), recordOpts.name, echo, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d frames, %d dropped, %d invalid, %d bytes\n",
				stats.Frames, stats.Dropped, stats.Invalid, stats.Bytes)
			return nil
		},
	}
)

func init() {
	recordCmd.Flags().StringVarP(&recordOpts.input, "input", "f", "", "frame file, stdin if empty or -")
	recordCmd.Flags().StringVarP(&recordOpts.name, "name", "n", "", "8 character file name, next free one if empty")
	recordCmd.Flags().BoolVar(&recordOpts.echo, "echo", false, "echo every record to stdout")
}

// newStream creates a streaming file in the root directory through a new
// DMA engine on dev. The engine is closed when the returned close func runs.
func newStream(volume *fatlog.FS, dev blockdev.Device, name string) (*fatlog.StreamFile, func(), error) {
	root := volume.Root()
	if name == "" {
		next, err := canlog.NextName(volume, root.Cluster(), cfg.Record.Prefix, cfg.Record.Ext)
		if err != nil {
			return nil, nil, err
		}
		name = next
	}

	dma := blockdev.NewDMA(dev,
		blockdev.WithBuffers(cfg.Record.Buffers),
		blockdev.WithTimeout(cfg.Record.Timeout),
		blockdev.WithLogger(logger),
	)
	file, err := volume.CreateStreamingFile(root, name, cfg.Record.Ext, dma,
		fatlog.WithOverflowSize(cfg.Record.OverflowSize))
	if err != nil {
		_ = dma.Close()
		return nil, nil, err
	}
	return file, func() { _ = dma.Close() }, nil
}

func record(ctx context.Context, volume *fatlog.FS, dev blockdev.Device, src canlog.Source, name string, echo bool, out io.Writer) (canlog.Stats, error) {
	file, closeDMA, err := newStream(volume, dev, name)
	if err != nil {
		return canlog.Stats{}, err
	}
	defer closeDMA()

	opts := []canlog.Option{canlog.WithLogger(logger)}
	if echo {
		opts = append(opts, canlog.WithEcho(out))
	}
	l := canlog.NewLogger(file, opts...)

	runErr := l.Run(ctx, src)
	if err := file.Terminate(); err != nil {
		return l.Stats(), err
	}
	logger.Info("Recorded log file", "file", file.Name(), "size", file.Size(), "frames", l.Stats().Frames)
	return l.Stats(), runErr
}
