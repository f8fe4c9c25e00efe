package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/calsol/fatlog"
)

var (
	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "List the files in the root directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			volume, img, err := openVolume(true)
			if err != nil {
				return err
			}
			defer img.Close()

			infos, err := afero.ReadDir(volume, "/")
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			for _, info := range infos {
				fmt.Fprintf(w, "%d\t%s\t%s\t\n", info.Size(), info.ModTime().Format("2006-01-02 15:04:05"), info.Name())
			}
			return w.Flush()
		},
	}

	catCmd = &cobra.Command{
		Use:   "cat FILE...",
		Short: "Print log files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			volume, img, err := openVolume(true)
			if err != nil {
				return err
			}
			defer img.Close()

			for _, name := range args {
				f, err := volume.Open(name)
				if err != nil {
					return err
				}
				_, err = io.Copy(cmd.OutOrStdout(), f)
				f.Close()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Show the volume layout and free space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			volume, img, err := openVolume(true)
			if err != nil {
				return err
			}
			defer img.Close()

			printGeometry(cmd.OutOrStdout(), volume)
			return nil
		},
	}
)

func printGeometry(out io.Writer, volume *fatlog.FS) {
	geo := volume.Geometry()
	w := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "Label:\t%s\n", geo.Label)
	fmt.Fprintf(w, "Partition LBA:\t%d\n", geo.PartitionLBA)
	fmt.Fprintf(w, "Cluster size:\t%d bytes (%d sectors)\n", volume.ClusterSize(), geo.SectorsPerCluster)
	fmt.Fprintf(w, "FATs:\t%d x %d sectors at LBA %d\n", geo.NumFATs, geo.SectorsPerFAT, geo.FATLBA)
	fmt.Fprintf(w, "Data LBA:\t%d\n", geo.ClusterLBA)
	fmt.Fprintf(w, "Clusters:\t%d\n", geo.MaxCluster-1)
	fmt.Fprintf(w, "Free:\t%d clusters (%d bytes)\n", volume.FreeClusters(), uint64(volume.FreeClusters())*uint64(volume.ClusterSize()))
	fmt.Fprintf(w, "Next free hint:\t%d\n", volume.MostRecentCluster())
	w.Flush()
}
