package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/blockdev"
)

// main is just a example main to play with fatlog. It formats an in-memory
// volume, streams a small log into it and reads it back.
func main() {
	dev := blockdev.NewMemory(16384)
	if err := fatlog.Format(dev, fatlog.FormatOptions{SectorsPerCluster: 2, Label: "EXAMPLE"}); err != nil {
		fmt.Println("could not format", err)
		os.Exit(1)
	}

	fat, err := fatlog.Mount(dev)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Printf("Mounted volume '%v' with %v free clusters\n\n", fat.Geometry().Label, fat.FreeClusters())

	dma := blockdev.NewDMA(dev)
	defer dma.Close()

	file, err := fat.CreateStreamingFile(fat.Root(), "DUCKS", "TXT", dma)
	if err != nil {
		fmt.Println("could not create the log file", err)
		os.Exit(1)
	}

	data := strings.Repeat("Duckies!\n", 200)
	for rest := data; len(rest) > 0; {
		n, err := file.WriteString(rest)
		rest = rest[n:]
		if err != nil && !errors.Is(err, fatlog.ErrBufferFull) {
			fmt.Println("could not write", err)
			os.Exit(1)
		}
		file.Step()
	}
	if err := file.Terminate(); err != nil {
		fmt.Println("could not close the log file", err)
		os.Exit(1)
	}
	fmt.Printf("%+v\n\n", file.Stats())

	afero.Walk(fat, "", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			fmt.Println(err)
			return err
		}
		fmt.Println(path, info.IsDir(), info.Size(), info.ModTime())
		return nil
	})

	f, err := fat.Open("DUCKS.TXT")
	if err != nil {
		fmt.Println("could not open the log file", err)
		os.Exit(1)
	}
	defer f.Close()

	buffer := make([]byte, 18)
	offset, err := f.Seek(9*100, io.SeekStart)
	if err != nil {
		fmt.Println("could not seek", err)
		os.Exit(1)
	}
	n, err := f.Read(buffer)
	if err != nil {
		fmt.Println("could not read the file", err)
		os.Exit(1)
	}
	fmt.Printf("\n%v bytes at offset %v:\n%s", n, offset, buffer[:n])
	fmt.Printf("\n%v clusters free after logging\n", fat.FreeClusters())
}
