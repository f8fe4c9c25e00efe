// File model contains the structs and offsets which match the on-disk structures of FAT32.

package fatlog

import "github.com/calsol/fatlog/blockdev"

const (
	// BlockSize is the only supported sector size.
	BlockSize = blockdev.BlockSize

	// pointerSize is the width of a FAT32 cluster pointer.
	pointerSize = 4
	// clustersPerBlock is the number of cluster pointers in one FAT block.
	clustersPerBlock = BlockSize / pointerSize

	entrySize       = 32
	entriesPerBlock = BlockSize / entrySize
)

// Cluster pointer values. Only the low 28 bits of a FAT32 pointer are used.
const (
	clusterMask        uint32 = 0x0FFFFFFF
	ClusterFree        uint32 = 0x00000000
	ClusterFirstValid  uint32 = 0x00000002
	ClusterLastValid   uint32 = 0x0FFFFFEF
	ClusterBad         uint32 = 0x0FFFFFF7
	ClusterEndOfChain  uint32 = 0x0FFFFFF8
	ClusterEndOfChainW uint32 = 0x0FFFFFFF // value written to terminate a chain
)

// Boot sector offsets which are checked before the BPB is decoded.
const (
	offJump          = 0x000
	offFAT16BootSig  = 0x026
	offFAT32DriveNum = 0x040
	offFAT32BootSig  = 0x042
	offSignature     = 0x1FE
	offPartition0LBA = 446 + 8

	extBootSignature = 0x29
)

// FS information sector offsets.
const (
	offInfoLeadSig   = 0x000
	offInfoStructSig = 0x1E4
	offInfoFree      = 0x1E8
	offInfoNextFree  = 0x1EC

	infoLeadSig   = "RRaA"
	infoStructSig = "rrAa"
	// Some formatters write the struct signature with a wrong case.
	infoStructSigLax = "rraA"
	infoUnknown      = 0xFFFFFFFF
)

// Directory entry layout.
const (
	offEntryName      = 0x00
	offEntryExt       = 0x08
	offEntryAttribute = 0x0B
	offEntryClusterHI = 0x14
	offEntryClusterLO = 0x1A
	offEntrySize      = 0x1C

	entryNeverUsed = 0x00
	entryDeleted   = 0xE5
)

// Directory entry attributes.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// BPB is the BIOS parameter block at the start of the boot sector.
type BPB struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

// FAT32SpecificData is the FAT32 extension of the BPB.
type FAT32SpecificData struct {
	FATSize          uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfo           uint16
	BkBootSector     uint16
	Reserved         [12]byte
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeID       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

// EntryHeader is a 32 byte short name directory record.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// FirstCluster joins the split start cluster.
func (h EntryHeader) FirstCluster() uint32 {
	return JoinCluster(h.FirstClusterHI, h.FirstClusterLO)
}
