package fatlog

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/calsol/fatlog/blockdev"
)

// testBlocks is the size of the test volumes: 8 MiB.
const testBlocks = 16384

// fsTestsError is just an error returned by mocked devices.
var fsTestsError = errors.New("a device error")

// testingImage returns a freshly formatted in-memory volume.
func testingImage(t *testing.T, sectorsPerCluster uint32) *blockdev.Memory {
	t.Helper()
	dev := blockdev.NewMemory(testBlocks)
	if err := Format(dev, FormatOptions{SectorsPerCluster: sectorsPerCluster, Label: "DLOG"}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return dev
}

func testingMount(t *testing.T, dev blockdev.Device, opts ...Option) *FS {
	t.Helper()
	fs, err := Mount(dev, opts...)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	return fs
}

// setFAT writes value as the pointer of cluster into every FAT copy.
func setFAT(t *testing.T, fs *FS, cluster, value uint32) {
	t.Helper()
	var buf [BlockSize]byte
	lba := fs.ClusterToFATLBA(cluster)
	if err := fs.readBlock(lba, buf[:]); err != nil {
		t.Fatalf("readBlock() error = %v", err)
	}
	PutUint32(buf[fs.ClusterToFATOffset(cluster):], value)
	if err := fs.writeFATBlock(lba, buf[:]); err != nil {
		t.Fatalf("writeFATBlock() error = %v", err)
	}
}

// getFAT reads the pointer of cluster from FAT copy n.
func getFAT(t *testing.T, fs *FS, n int, cluster uint32) uint32 {
	t.Helper()
	var buf [BlockSize]byte
	if err := fs.readBlock(fs.fatCopyLBA(fs.ClusterToFATLBA(cluster), n), buf[:]); err != nil {
		t.Fatalf("readBlock() error = %v", err)
	}
	return Uint32(buf[fs.ClusterToFATOffset(cluster):])
}

func TestMount(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b []byte)
		wantErr error
	}{
		{
			name: "formatted volume",
		},
		{
			name:    "no boot sector",
			mutate:  func(b []byte) { clear(b[:BlockSize]) },
			wantErr: ErrBadSignature,
		},
		{
			name:    "bytes per sector",
			mutate:  func(b []byte) { PutUint16(b[11:], 1024) },
			wantErr: ErrSectorSize,
		},
		{
			name:    "sectors per cluster not a power of two",
			mutate:  func(b []byte) { b[13] = 3 },
			wantErr: ErrGeometry,
		},
		{
			name:    "no FAT",
			mutate:  func(b []byte) { b[16] = 0 },
			wantErr: ErrGeometry,
		},
		{
			name: "FAT16 volume",
			mutate: func(b []byte) {
				b[offFAT32BootSig] = 0
				b[offFAT16BootSig] = extBootSignature
			},
			wantErr: ErrUnsupportedFS,
		},
		{
			name:    "unknown drive number",
			mutate:  func(b []byte) { b[offFAT32DriveNum] = 0x42 },
			wantErr: ErrUnsupportedFS,
		},
		{
			name:    "root cluster out of range",
			mutate:  func(b []byte) { PutUint32(b[44:], 0x0FFFFFF0) },
			wantErr: ErrInvalidCluster,
		},
		{
			name:    "FS information lead signature",
			mutate:  func(b []byte) { b[BlockSize] = 'X' },
			wantErr: ErrBadFSInfo,
		},
		{
			name:    "FS information struct signature",
			mutate:  func(b []byte) { copy(b[BlockSize+offInfoStructSig:], "xxxx") },
			wantErr: ErrBadFSInfo,
		},
		{
			name:   "malformed but accepted FS information struct signature",
			mutate: func(b []byte) { copy(b[BlockSize+offInfoStructSig:], infoStructSigLax) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := testingImage(t, 2)
			if tt.mutate != nil {
				tt.mutate(dev.Bytes())
			}

			got, err := Mount(dev)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Mount() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if (got != nil) == (tt.wantErr != nil) {
				t.Errorf("Mount() = %v, wantErr %v", got, tt.wantErr)
			}
		})
	}
}

func TestMount_geometry(t *testing.T) {
	fs := testingMount(t, testingImage(t, 2))

	want := Geometry{
		PartitionLBA:      0,
		SectorsPerCluster: 2,
		ReservedSectors:   32,
		NumFATs:           2,
		SectorsPerFAT:     64,
		RootCluster:       2,
		FSInfoLBA:         1,
		FATLBA:            32,
		ClusterLBA:        160,
		MaxCluster:        8113,
		Label:             "DLOG",
	}
	if got := fs.Geometry(); got != want {
		t.Errorf("FS.Geometry() = %+v, want %+v", got, want)
	}
	if got := fs.ClusterSize(); got != 1024 {
		t.Errorf("FS.ClusterSize() = %v, want %v", got, 1024)
	}
	if got := fs.FreeClusters(); got != 8111 {
		t.Errorf("FS.FreeClusters() = %v, want %v", got, 8111)
	}
	if got := fs.MostRecentCluster(); got != 2 {
		t.Errorf("FS.MostRecentCluster() = %v, want %v", got, 2)
	}
}

func TestMount_partition(t *testing.T) {
	const partitionLBA = 64
	part := testingImage(t, 2)
	dev := blockdev.NewMemory(testBlocks + partitionLBA)
	img := dev.Bytes()
	copy(img[partitionLBA*BlockSize:], part.Bytes())
	PutUint32(img[offPartition0LBA:], partitionLBA)
	img[offSignature], img[offSignature+1] = 0x55, 0xAA

	fs := testingMount(t, dev)
	geo := fs.Geometry()
	if geo.PartitionLBA != partitionLBA || geo.FATLBA != partitionLBA+32 || geo.FSInfoLBA != partitionLBA+1 {
		t.Errorf("Mount() geometry = %+v, want partition at %v", geo, partitionLBA)
	}

	// The partition must not be a boot sector either.
	clear(img[partitionLBA*BlockSize : partitionLBA*BlockSize+3])
	if _, err := Mount(dev); !errors.Is(err, ErrBadSignature) {
		t.Errorf("Mount() error = %v, wantErr %v", err, ErrBadSignature)
	}
}

func TestMount_deviceError(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	dev := blockdev.NewMockDevice(mockCtrl)
	dev.EXPECT().ReadBlock(uint32(0), gomock.Any()).Return(fsTestsError)

	_, err := Mount(dev)
	if !errors.Is(err, ErrDeviceRead) || !errors.Is(err, fsTestsError) {
		t.Errorf("Mount() error = %v, wantErr %v", err, ErrDeviceRead)
	}
	if !IsDeviceError(err) {
		t.Errorf("IsDeviceError(%v) = false, want true", err)
	}
}

func TestMount_rebuildsHints(t *testing.T) {
	tests := []struct {
		name           string
		mutate         func(fs *FS, b []byte)
		wantFree       uint32
		wantMostRecent uint32
	}{
		{
			name: "unknown free count",
			mutate: func(fs *FS, b []byte) {
				PutUint32(b[BlockSize+offInfoFree:], infoUnknown)
			},
			wantFree:       8111,
			wantMostRecent: 2,
		},
		{
			name: "unknown most recent cluster",
			mutate: func(fs *FS, b []byte) {
				PutUint32(b[BlockSize+offInfoNextFree:], infoUnknown)
			},
			wantFree:       8111,
			wantMostRecent: 2,
		},
		{
			name: "cluster after the most recent one is in use",
			mutate: func(fs *FS, b []byte) {
				for n := 0; n < 2; n++ {
					lba := fs.fatCopyLBA(fs.ClusterToFATLBA(3), n)
					PutUint32(b[int(lba)*BlockSize+fs.ClusterToFATOffset(3):], ClusterEndOfChainW)
				}
			},
			wantFree:       8110,
			wantMostRecent: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := testingImage(t, 2)
			tt.mutate(testingMount(t, dev), dev.Bytes())

			fs := testingMount(t, dev)
			if got := fs.FreeClusters(); got != tt.wantFree {
				t.Errorf("FS.FreeClusters() = %v, want %v", got, tt.wantFree)
			}
			if got := fs.MostRecentCluster(); got != tt.wantMostRecent {
				t.Errorf("FS.MostRecentCluster() = %v, want %v", got, tt.wantMostRecent)
			}
			if !fs.infoDirty {
				t.Errorf("Mount() did not mark the rebuilt FS information as dirty")
			}
		})
	}
}

func TestFS_ClusterToLBA(t *testing.T) {
	fs := &FS{geo: Geometry{SectorsPerCluster: 2, FATLBA: 32, ClusterLBA: 160}}
	tests := []struct {
		cluster    uint32
		wantData   uint32
		wantFAT    uint32
		wantOffset int
	}{
		{cluster: 2, wantData: 160, wantFAT: 32, wantOffset: 8},
		{cluster: 3, wantData: 162, wantFAT: 32, wantOffset: 12},
		{cluster: 127, wantData: 410, wantFAT: 32, wantOffset: 508},
		{cluster: 128, wantData: 412, wantFAT: 33, wantOffset: 0},
		{cluster: 300, wantData: 756, wantFAT: 34, wantOffset: 176},
	}
	for _, tt := range tests {
		if got := fs.ClusterToDataLBA(tt.cluster); got != tt.wantData {
			t.Errorf("FS.ClusterToDataLBA(%v) = %v, want %v", tt.cluster, got, tt.wantData)
		}
		if got := fs.ClusterToFATLBA(tt.cluster); got != tt.wantFAT {
			t.Errorf("FS.ClusterToFATLBA(%v) = %v, want %v", tt.cluster, got, tt.wantFAT)
		}
		if got := fs.ClusterToFATOffset(tt.cluster); got != tt.wantOffset {
			t.Errorf("FS.ClusterToFATOffset(%v) = %v, want %v", tt.cluster, got, tt.wantOffset)
		}
	}
}

func TestFS_NextCluster(t *testing.T) {
	fs := testingMount(t, testingImage(t, 2))
	setFAT(t, fs, 3, 4)
	setFAT(t, fs, 4, ClusterEndOfChainW)
	setFAT(t, fs, 5, ClusterEndOfChain)
	setFAT(t, fs, 6, ClusterBad)
	setFAT(t, fs, 7, 1)
	setFAT(t, fs, 8, 0xF0000009) // upper bits are ignored
	setFAT(t, fs, 9, fs.geo.MaxCluster+1)

	tests := []struct {
		name    string
		cluster uint32
		want    uint32
		wantErr error
	}{
		{name: "link", cluster: 3, want: 4},
		{name: "written end of chain", cluster: 4, wantErr: ErrEndOfChain},
		{name: "lowest end of chain", cluster: 5, wantErr: ErrEndOfChain},
		{name: "bad cluster", cluster: 6, wantErr: ErrInvalidCluster},
		{name: "reserved cluster", cluster: 7, wantErr: ErrInvalidCluster},
		{name: "masked link", cluster: 8, want: 9},
		{name: "link out of range", cluster: 9, wantErr: ErrInvalidCluster},
		{name: "free cluster", cluster: 10, wantErr: ErrInvalidCluster},
		{name: "argument too small", cluster: 1, wantErr: ErrInvalidCluster},
		{name: "argument too large", cluster: fs.geo.MaxCluster + 1, wantErr: ErrInvalidCluster},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.NextCluster(tt.cluster)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FS.NextCluster() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("FS.NextCluster() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFS_NextCluster_readError(t *testing.T) {
	dev := blockdev.NewFaulty(testingImage(t, 2))
	fs := testingMount(t, dev)
	dev.FailReads(true)
	fs.forget(fs.ClusterToFATLBA(2))

	_, err := fs.NextCluster(2)
	if !errors.Is(err, ErrDeviceRead) || !errors.Is(err, blockdev.ErrInjected) {
		t.Errorf("FS.NextCluster() error = %v, wantErr %v", err, ErrDeviceRead)
	}
}

func TestFS_writeFATBlock(t *testing.T) {
	tests := []struct {
		name       string
		mirror     bool
		wantSecond uint32
	}{
		{name: "mirrored", mirror: true, wantSecond: 42},
		{name: "first FAT only", mirror: false, wantSecond: ClusterFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := testingMount(t, testingImage(t, 2), WithFATMirroring(tt.mirror))
			setFAT(t, fs, 100, 42)

			if got := getFAT(t, fs, 0, 100); got != 42 {
				t.Errorf("first FAT = %v, want %v", got, 42)
			}
			if got := getFAT(t, fs, 1, 100); got != tt.wantSecond {
				t.Errorf("second FAT = %v, want %v", got, tt.wantSecond)
			}
		})
	}
}
