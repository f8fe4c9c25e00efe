package fatlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/fclairamb/go-log"
	"github.com/fclairamb/go-log/noop"

	"github.com/calsol/fatlog/blockdev"
	"github.com/calsol/fatlog/checkpoint"
)

// Option configures an FS at mount time.
type Option func(*FS)

// WithLogger sets the logger used by the FS and every file created on it.
func WithLogger(logger log.Logger) Option {
	return func(fs *FS) {
		fs.log = logger
	}
}

// WithClock stamps created and terminated entries with the time returned by now.
// Without a clock the timestamp fields stay zero.
func WithClock(now func() time.Time) Option {
	return func(fs *FS) {
		fs.now = now
	}
}

// WithFATMirroring controls whether FAT blocks are written to every FAT copy
// (the default) or only to the first one.
func WithFATMirroring(mirror bool) Option {
	return func(fs *FS) {
		fs.mirrorFATs = mirror
	}
}

// Geometry describes a mounted volume.
type Geometry struct {
	PartitionLBA      uint32
	SectorsPerCluster uint32
	ReservedSectors   uint32
	NumFATs           uint32
	SectorsPerFAT     uint32
	RootCluster       uint32
	FSInfoLBA         uint32
	FATLBA            uint32
	ClusterLBA        uint32
	MaxCluster        uint32
	Label             string
}

// FS is a mounted FAT32 volume.
//
// The allocation state (most recent cluster, free count) is owned by the
// single streaming writer. Only the read side (NextCluster, FindEntry, Open)
// may be used from several goroutines.
type FS struct {
	dev        blockdev.Device
	log        log.Logger
	now        func() time.Time
	mirrorFATs bool

	geo Geometry

	mostRecent uint32
	freeCount  uint32
	infoDirty  bool

	writer atomic.Bool

	mu          sync.Mutex
	root        *Directory
	window      [BlockSize]byte
	windowLBA   uint32
	windowValid bool
}

// Mount reads the boot sector and FS information sector of dev.
// If block 0 is a master boot record, the first partition is mounted.
func Mount(dev blockdev.Device, opts ...Option) (*FS, error) {
	fs := &FS{
		dev:        dev,
		log:        noop.NewNoOpLogger(),
		mirrorFATs: true,
	}
	for _, opt := range opts {
		opt(fs)
	}

	if err := fs.initialize(); err != nil {
		fs.log.Error("Mount failed", "err", err)
		return nil, err
	}
	fs.log.Info("Mounted volume",
		"label", fs.geo.Label,
		"partitionLBA", fs.geo.PartitionLBA,
		"clusterSize", fs.ClusterSize(),
		"clusters", fs.geo.MaxCluster-1,
		"free", fs.freeCount,
		"mostRecent", fs.mostRecent)
	return fs, nil
}

func (fs *FS) initialize() error {
	var buf [BlockSize]byte
	if err := fs.readBlock(0, buf[:]); err != nil {
		return err
	}

	if !isBootSector(buf[:]) {
		if !hasSignature(buf[:]) {
			return checkpoint.From(ErrBadSignature)
		}
		fs.geo.PartitionLBA = Uint32(buf[offPartition0LBA:])
		fs.log.Debug("Found master boot record", "partitionLBA", fs.geo.PartitionLBA)
		if err := fs.readBlock(fs.geo.PartitionLBA, buf[:]); err != nil {
			return err
		}
		if !isBootSector(buf[:]) {
			return checkpoint.From(fmt.Errorf("%w: partition at %d", ErrBadSignature, fs.geo.PartitionLBA))
		}
	}

	var bpb BPB
	if err := binary.Read(bytes.NewReader(buf[:]), binary.LittleEndian, &bpb); err != nil {
		return checkpoint.Wrap(err, ErrBadSignature)
	}

	if bpb.BytesPerSector != BlockSize {
		return checkpoint.From(fmt.Errorf("%w: got %d", ErrSectorSize, bpb.BytesPerSector))
	}
	spc := uint32(bpb.SectorsPerCluster)
	if spc == 0 || spc&(spc-1) != 0 {
		return checkpoint.From(fmt.Errorf("%w: %d sectors per cluster", ErrGeometry, spc))
	}
	if bpb.NumFATs == 0 {
		return checkpoint.From(fmt.Errorf("%w: no FAT", ErrGeometry))
	}

	drive := buf[offFAT32DriveNum]
	if buf[offFAT32BootSig] != extBootSignature || (drive != 0x00 && drive != 0x80) {
		if buf[offFAT16BootSig] == extBootSignature {
			return checkpoint.From(fmt.Errorf("%w: FAT12/16 volume", ErrUnsupportedFS))
		}
		return checkpoint.From(ErrUnsupportedFS)
	}

	var ext FAT32SpecificData
	if err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &ext); err != nil {
		return checkpoint.Wrap(err, ErrUnsupportedFS)
	}
	if ext.FATSize == 0 {
		return checkpoint.From(fmt.Errorf("%w: zero sectors per FAT", ErrGeometry))
	}

	g := &fs.geo
	g.SectorsPerCluster = spc
	g.ReservedSectors = uint32(bpb.ReservedSectorCount)
	g.NumFATs = uint32(bpb.NumFATs)
	g.SectorsPerFAT = ext.FATSize
	g.RootCluster = ext.RootCluster
	g.FATLBA = g.PartitionLBA + g.ReservedSectors
	g.ClusterLBA = g.FATLBA + g.NumFATs*g.SectorsPerFAT
	g.Label = strings.TrimRight(string(ext.BSVolumeLabel[:]), " \x00")

	total := bpb.TotalSectors32
	if total == 0 {
		total = uint32(bpb.TotalSectors16)
	}
	meta := g.ReservedSectors + g.NumFATs*g.SectorsPerFAT
	if total <= meta {
		return checkpoint.From(fmt.Errorf("%w: %d sectors do not hold the FATs", ErrGeometry, total))
	}
	g.MaxCluster = (total-meta)/spc + 1
	if limit := g.SectorsPerFAT*clustersPerBlock - 1; g.MaxCluster > limit {
		g.MaxCluster = limit
	}
	if g.MaxCluster > ClusterLastValid {
		g.MaxCluster = ClusterLastValid
	}
	if g.MaxCluster < ClusterFirstValid {
		return checkpoint.From(fmt.Errorf("%w: no data clusters", ErrGeometry))
	}
	if !fs.validCluster(g.RootCluster) {
		return checkpoint.From(fmt.Errorf("%w: root cluster %d", ErrInvalidCluster, g.RootCluster))
	}

	if ext.FSInfo == 0 || ext.FSInfo == 0xFFFF {
		return checkpoint.From(fmt.Errorf("%w: no FS information sector", ErrBadFSInfo))
	}
	g.FSInfoLBA = g.PartitionLBA + uint32(ext.FSInfo)
	return fs.readInfo()
}

func (fs *FS) readInfo() error {
	var buf [BlockSize]byte
	if err := fs.readBlock(fs.geo.FSInfoLBA, buf[:]); err != nil {
		return err
	}

	if string(buf[offInfoLeadSig:offInfoLeadSig+4]) != infoLeadSig || !hasSignature(buf[:]) {
		return checkpoint.From(ErrBadFSInfo)
	}
	switch sig := string(buf[offInfoStructSig : offInfoStructSig+4]); sig {
	case infoStructSig:
	case infoStructSigLax:
		fs.log.Warn("FS information sector has a malformed struct signature", "signature", sig)
	default:
		return checkpoint.From(fmt.Errorf("%w: struct signature %q", ErrBadFSInfo, sig))
	}

	fs.freeCount = Uint32(buf[offInfoFree:])
	fs.mostRecent = Uint32(buf[offInfoNextFree:])

	validHints := fs.validCluster(fs.mostRecent) && fs.freeCount <= fs.geo.MaxCluster-1
	if validHints {
		// The allocator bumps past the most recent cluster without checking,
		// so at least the first candidate has to be free.
		free, err := fs.clusterFree(fs.mostRecent + 1)
		if err != nil {
			return err
		}
		validHints = free
	}
	if !validHints {
		fs.log.Warn("FS information hints are unusable, scanning FAT",
			"free", fs.freeCount, "mostRecent", fs.mostRecent)
		if err := fs.scanFAT(); err != nil {
			return err
		}
		fs.infoDirty = true
	}
	return nil
}

// clusterFree reports whether cluster is free. Clusters beyond the volume
// count as free so a full volume is detected by the allocator instead.
func (fs *FS) clusterFree(cluster uint32) (bool, error) {
	if cluster > fs.geo.MaxCluster {
		return true, nil
	}
	var value uint32
	err := fs.fetch(fs.ClusterToFATLBA(cluster), func(b []byte) {
		value = Uint32(b[fs.ClusterToFATOffset(cluster):]) & clusterMask
	})
	return value == ClusterFree, err
}

// scanFAT rebuilds the free count and the most recent cluster from the FAT.
func (fs *FS) scanFAT() error {
	var buf [BlockSize]byte
	free := uint32(0)
	last := fs.geo.RootCluster

	lba := uint32(0)
	for c := ClusterFirstValid; c <= fs.geo.MaxCluster; c++ {
		if l := fs.ClusterToFATLBA(c); l != lba || c == ClusterFirstValid {
			lba = l
			if err := fs.readBlock(lba, buf[:]); err != nil {
				return err
			}
		}
		if Uint32(buf[fs.ClusterToFATOffset(c):])&clusterMask == ClusterFree {
			free++
		} else {
			last = c
		}
	}

	fs.freeCount = free
	fs.mostRecent = last
	return nil
}

func isBootSector(b []byte) bool {
	jump := (b[offJump] == 0xEB && b[offJump+2] == 0x90) || b[offJump] == 0xE9
	return jump && hasSignature(b)
}

func hasSignature(b []byte) bool {
	return b[offSignature] == 0x55 && b[offSignature+1] == 0xAA
}

// Geometry returns the layout of the mounted volume.
func (fs *FS) Geometry() Geometry {
	return fs.geo
}

// ClusterSize returns the size of a cluster in bytes.
func (fs *FS) ClusterSize() uint32 {
	return fs.geo.SectorsPerCluster * BlockSize
}

// FreeClusters returns the number of free clusters as tracked in memory.
func (fs *FS) FreeClusters() uint32 {
	return fs.freeCount
}

// MostRecentCluster returns the cluster the next allocation starts after.
func (fs *FS) MostRecentCluster() uint32 {
	return fs.mostRecent
}

// ClusterToDataLBA returns the first block of cluster.
func (fs *FS) ClusterToDataLBA(cluster uint32) uint32 {
	return fs.geo.ClusterLBA + (cluster-2)*fs.geo.SectorsPerCluster
}

// ClusterToFATLBA returns the block of the first FAT holding the pointer of cluster.
func (fs *FS) ClusterToFATLBA(cluster uint32) uint32 {
	return fs.geo.FATLBA + cluster/clustersPerBlock
}

// ClusterToFATOffset returns the byte offset of the pointer of cluster within its FAT block.
func (fs *FS) ClusterToFATOffset(cluster uint32) int {
	return int(cluster%clustersPerBlock) * pointerSize
}

func (fs *FS) validCluster(cluster uint32) bool {
	return cluster >= ClusterFirstValid && cluster <= fs.geo.MaxCluster
}

// NextCluster returns the cluster following cluster in its chain.
// The end of a chain is reported as ErrEndOfChain, anything that is neither
// a chain end nor a usable cluster as ErrInvalidCluster, and a failed read
// as ErrDeviceRead.
func (fs *FS) NextCluster(cluster uint32) (uint32, error) {
	if !fs.validCluster(cluster) {
		return 0, checkpoint.From(fmt.Errorf("%w: cluster %d is out of range", ErrInvalidCluster, cluster))
	}

	var next uint32
	err := fs.fetch(fs.ClusterToFATLBA(cluster), func(b []byte) {
		next = Uint32(b[fs.ClusterToFATOffset(cluster):]) & clusterMask
	})
	if err != nil {
		return 0, err
	}

	switch {
	case next >= ClusterEndOfChain:
		return 0, ErrEndOfChain
	case next == ClusterBad:
		return 0, checkpoint.From(fmt.Errorf("%w: cluster %d links to a bad cluster", ErrInvalidCluster, cluster))
	case !fs.validCluster(next):
		return 0, checkpoint.From(fmt.Errorf("%w: cluster %d links to 0x%08X", ErrInvalidCluster, cluster, next))
	}
	return next, nil
}

// fetch runs fn on block lba through a one block read cache.
func (fs *FS) fetch(lba uint32, fn func(block []byte)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.windowValid || fs.windowLBA != lba {
		fs.windowValid = false
		if err := fs.readBlock(lba, fs.window[:]); err != nil {
			return err
		}
		fs.windowLBA = lba
		fs.windowValid = true
	}
	fn(fs.window[:])
	return nil
}

// forget drops lba from the read cache after it was written.
func (fs *FS) forget(lba uint32) {
	fs.mu.Lock()
	if fs.windowLBA == lba {
		fs.windowValid = false
	}
	fs.mu.Unlock()
}

func (fs *FS) readBlock(lba uint32, dst []byte) error {
	return checkpoint.Wrap(fs.dev.ReadBlock(lba, dst), ErrDeviceRead)
}

func (fs *FS) writeBlock(lba uint32, src []byte) error {
	err := fs.dev.WriteBlock(lba, src)
	fs.forget(lba)
	return checkpoint.Wrap(err, ErrDeviceWrite)
}

// fatCopies returns how many FAT copies a FAT block is written to.
func (fs *FS) fatCopies() int {
	if fs.mirrorFATs {
		return int(fs.geo.NumFATs)
	}
	return 1
}

// fatCopyLBA maps a block of the first FAT to the same block of copy n.
func (fs *FS) fatCopyLBA(lba uint32, n int) uint32 {
	return lba + uint32(n)*fs.geo.SectorsPerFAT
}

// writeFATBlock writes block lba of the first FAT to every FAT copy.
func (fs *FS) writeFATBlock(lba uint32, src []byte) error {
	for n := 0; n < fs.fatCopies(); n++ {
		if err := fs.writeBlock(fs.fatCopyLBA(lba, n), src); err != nil {
			return err
		}
	}
	return nil
}

// fillInfo renders the FS information sector into b.
func (fs *FS) fillInfo(b []byte) {
	clear(b)
	copy(b[offInfoLeadSig:], infoLeadSig)
	copy(b[offInfoStructSig:], infoStructSig)
	PutUint32(b[offInfoFree:], fs.freeCount)
	PutUint32(b[offInfoNextFree:], fs.mostRecent)
	b[offSignature] = 0x55
	b[offSignature+1] = 0xAA
}

// flushInfo writes the FS information sector synchronously.
func (fs *FS) flushInfo() error {
	var buf [BlockSize]byte
	fs.fillInfo(buf[:])
	if err := fs.writeBlock(fs.geo.FSInfoLBA, buf[:]); err != nil {
		return err
	}
	fs.infoDirty = false
	return nil
}

func (fs *FS) acquireWriter() error {
	if !fs.writer.CompareAndSwap(false, true) {
		return checkpoint.From(ErrWriterActive)
	}
	return nil
}

func (fs *FS) releaseWriter() {
	fs.writer.Store(false)
}

// timestamp returns the DOS date and time of now, or zeros without a clock.
func (fs *FS) timestamp() (date, clock uint16) {
	if fs.now == nil {
		return 0, 0
	}
	t := fs.now()
	return EncodeDate(t), EncodeTime(t)
}
