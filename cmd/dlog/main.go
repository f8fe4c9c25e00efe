// Command dlog formats, records to and reads back datalogger volumes.
package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/fclairamb/go-log"
	gologrus "github.com/fclairamb/go-log/logrus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/blockdev"
)

var (
	rootOpts = struct {
		config   string
		image    string
		logLevel string
	}{}

	// Set up by the root command before any sub command runs.
	cfg    = defaultConfig()
	logger log.Logger
	hostFs = afero.NewOsFs()

	rootCmd = &cobra.Command{
		Use:           "dlog",
		Short:         "FAT32 datalogger volume tool",
		Long:          "Format SD card images, stream CAN frames into log files and read them back.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.config != "" {
				loaded, err := loadConfig(hostFs, rootOpts.config)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			flags := cmd.Flags()
			if flags.Changed("image") {
				cfg.Image = rootOpts.image
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = rootOpts.logLevel
			}

			l, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.config, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&rootOpts.image, "image", "i", cfg.Image, "volume image file or block device")
	rootCmd.PersistentFlags().StringVar(&rootOpts.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	rootCmd.AddCommand(mkfsCmd, recordCmd, lsCmd, catCmd, infoCmd, serveCmd, consoleCmd)
}

// newLogger returns a logrus backed go-log logger writing to stderr.
func newLogger(level string) (log.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)
	return gologrus.NewWrap(l), nil
}

// openVolume mounts the configured image. Closing the image syncs it.
func openVolume(readOnly bool) (*fatlog.FS, *blockdev.ImageFile, error) {
	open := blockdev.OpenImage
	if readOnly {
		open = blockdev.OpenImageReadOnly
	}
	img, err := open(hostFs, cfg.Image)
	if err != nil {
		return nil, nil, err
	}

	volume, err := fatlog.Mount(img, fatlog.WithLogger(logger), fatlog.WithClock(time.Now))
	if err != nil {
		_ = img.Close()
		return nil, nil, err
	}
	return volume, img, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dlog:", err)
		os.Exit(1)
	}
}
