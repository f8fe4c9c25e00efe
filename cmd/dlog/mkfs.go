package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/blockdev"
)

var (
	mkfsOpts = struct {
		size        string
		clusterSize uint32
		label       string
	}{}

	mkfsCmd = &cobra.Command{
		Use:   "mkfs",
		Short: "Create and format a FAT32 image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseSize(mkfsOpts.size)
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", mkfsOpts.size, err)
			}

			img, err := blockdev.CreateImage(hostFs, cfg.Image, uint32(size/blockdev.BlockSize))
			if err != nil {
				return err
			}
			defer img.Close()

			err = fatlog.Format(img, fatlog.FormatOptions{
				SectorsPerCluster: mkfsOpts.clusterSize,
				Label:             mkfsOpts.label,
			})
			if err != nil {
				return err
			}

			volume, err := fatlog.Mount(img, fatlog.WithLogger(logger))
			if err != nil {
				return err
			}
			printGeometry(cmd.OutOrStdout(), volume)
			return nil
		},
	}
)

func init() {
	mkfsCmd.Flags().StringVarP(&mkfsOpts.size, "size", "s", "64M", "image size, with an optional K, M or G suffix")
	mkfsCmd.Flags().Uint32Var(&mkfsOpts.clusterSize, "cluster-size", 8, "sectors per cluster")
	mkfsCmd.Flags().StringVarP(&mkfsOpts.label, "label", "l", "DATALOGGER", "volume label")
}

// parseSize parses a byte count like "512", "64M" or "1.5g".
func parseSize(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1024
	case strings.HasSuffix(ss, "m"):
		mult = 1024 * 1024
	case strings.HasSuffix(ss, "g"):
		mult = 1024 * 1024 * 1024
	}
	ss = strings.TrimRight(ss, "kmgb")
	v, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return int64(v * float64(mult)), nil
}
