package fatlog

import (
	"fmt"
	"strings"

	"github.com/calsol/fatlog/blockdev"
	"github.com/calsol/fatlog/checkpoint"
)

// FormatOptions describes the volume Format creates. Zero values select the defaults.
type FormatOptions struct {
	// SectorsPerCluster must be a power of two up to 128. Default 8.
	SectorsPerCluster uint32
	// ReservedSectors must be at least 8 to hold the backup boot sector. Default 32.
	ReservedSectors uint32
	// NumFATs defaults to 2.
	NumFATs  uint32
	Label    string
	VolumeID uint32
}

const (
	defaultSectorsPerCluster = 8
	defaultReservedSectors   = 32
	defaultNumFATs           = 2

	formatFSInfoSector = 1
	formatBackupBoot   = 6
	formatRootCluster  = 2
)

// Format writes an empty FAT32 volume spanning the whole device: boot
// sector, FS information sector, their backups, zeroed FATs and an empty
// root directory in cluster 2.
//
// Format does not enforce the minimum cluster count of FAT32 so that small
// images can be used in tests. Such volumes are still mounted as FAT32.
func Format(dev blockdev.Device, opts FormatOptions) error {
	if opts.SectorsPerCluster == 0 {
		opts.SectorsPerCluster = defaultSectorsPerCluster
	}
	if opts.ReservedSectors == 0 {
		opts.ReservedSectors = defaultReservedSectors
	}
	if opts.NumFATs == 0 {
		opts.NumFATs = defaultNumFATs
	}

	spc := opts.SectorsPerCluster
	if spc&(spc-1) != 0 || spc > 128 {
		return checkpoint.From(fmt.Errorf("%w: %d sectors per cluster", ErrGeometry, spc))
	}
	if opts.ReservedSectors < formatBackupBoot+2 || opts.ReservedSectors > 0xFFFF || opts.NumFATs > 0xFF {
		return checkpoint.From(fmt.Errorf("%w: %d reserved sectors, %d FATs", ErrGeometry, opts.ReservedSectors, opts.NumFATs))
	}

	total := dev.BlockCount()
	fatSectors, clusters, err := formatLayout(total, spc, opts.ReservedSectors, opts.NumFATs)
	if err != nil {
		return err
	}

	var zero [BlockSize]byte
	clusterLBA := opts.ReservedSectors + opts.NumFATs*fatSectors
	for lba := uint32(0); lba < clusterLBA+spc; lba++ {
		if err := dev.WriteBlock(lba, zero[:]); err != nil {
			return checkpoint.Wrap(err, ErrDeviceWrite)
		}
	}

	boot := formatBootSector(opts, total, fatSectors)
	info := formatInfoSector(clusters - 1)
	for _, base := range []uint32{0, formatBackupBoot} {
		if err := dev.WriteBlock(base, boot[:]); err != nil {
			return checkpoint.Wrap(err, ErrDeviceWrite)
		}
		if err := dev.WriteBlock(base+formatFSInfoSector, info[:]); err != nil {
			return checkpoint.Wrap(err, ErrDeviceWrite)
		}
	}

	var fat [BlockSize]byte
	PutUint32(fat[0:], 0x0FFFFFF8)
	PutUint32(fat[4:], ClusterEndOfChainW)
	PutUint32(fat[formatRootCluster*pointerSize:], ClusterEndOfChainW)
	for n := uint32(0); n < opts.NumFATs; n++ {
		if err := dev.WriteBlock(opts.ReservedSectors+n*fatSectors, fat[:]); err != nil {
			return checkpoint.Wrap(err, ErrDeviceWrite)
		}
	}

	if opts.Label != "" {
		var root [BlockSize]byte
		copy(root[:11], formatLabel(opts.Label))
		root[offEntryAttribute] = AttrVolumeID
		if err := dev.WriteBlock(clusterLBA, root[:]); err != nil {
			return checkpoint.Wrap(err, ErrDeviceWrite)
		}
	}
	return nil
}

// formatLayout finds the FAT size which just covers the clusters left
// over next to it.
func formatLayout(total, spc, reserved, fats uint32) (fatSectors, clusters uint32, err error) {
	fatSectors = 1
	for i := 0; i < 8; i++ {
		meta := reserved + fats*fatSectors
		if total <= meta+spc {
			return 0, 0, checkpoint.From(fmt.Errorf("%w: %d blocks are too small", ErrGeometry, total))
		}
		clusters = (total - meta) / spc
		need := ((clusters+2)*pointerSize + BlockSize - 1) / BlockSize
		if need == fatSectors {
			break
		}
		fatSectors = need
	}
	// The loop can stop before it settles; recompute the clusters for the final size.
	meta := reserved + fats*fatSectors
	if total <= meta+spc {
		return 0, 0, checkpoint.From(fmt.Errorf("%w: %d blocks are too small", ErrGeometry, total))
	}
	clusters = (total - meta) / spc
	if limit := fatSectors*clustersPerBlock - 2; clusters > limit {
		clusters = limit
	}
	if clusters < 2 {
		return 0, 0, checkpoint.From(fmt.Errorf("%w: only %d clusters", ErrGeometry, clusters))
	}
	return fatSectors, clusters, nil
}

func formatBootSector(opts FormatOptions, total, fatSectors uint32) [BlockSize]byte {
	var b [BlockSize]byte
	b[0], b[1], b[2] = 0xEB, 0x58, 0x90
	copy(b[3:11], "FATLOG  ")
	PutUint16(b[11:], BlockSize)
	b[13] = byte(opts.SectorsPerCluster)
	PutUint16(b[14:], uint16(opts.ReservedSectors))
	b[16] = byte(opts.NumFATs)
	b[21] = 0xF8
	PutUint16(b[24:], 63)
	PutUint16(b[26:], 255)
	PutUint32(b[32:], total)
	PutUint32(b[36:], fatSectors)
	PutUint32(b[44:], formatRootCluster)
	PutUint16(b[48:], formatFSInfoSector)
	PutUint16(b[50:], formatBackupBoot)
	b[offFAT32DriveNum] = 0x80
	b[offFAT32BootSig] = extBootSignature
	PutUint32(b[67:], opts.VolumeID)
	label := "NO NAME"
	if opts.Label != "" {
		label = opts.Label
	}
	copy(b[71:82], formatLabel(label))
	copy(b[82:90], "FAT32   ")
	b[offSignature], b[offSignature+1] = 0x55, 0xAA
	return b
}

func formatInfoSector(free uint32) [BlockSize]byte {
	var b [BlockSize]byte
	copy(b[offInfoLeadSig:], infoLeadSig)
	copy(b[offInfoStructSig:], infoStructSig)
	PutUint32(b[offInfoFree:], free)
	PutUint32(b[offInfoNextFree:], formatRootCluster)
	b[offSignature], b[offSignature+1] = 0x55, 0xAA
	return b
}

// formatLabel pads label to 11 upper case characters.
func formatLabel(label string) []byte {
	out := []byte(strings.ToUpper(label) + strings.Repeat(" ", 11))
	return out[:11]
}
