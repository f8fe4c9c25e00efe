package fatlog

import "encoding/binary"

// Uint16 decodes a little-endian 16 bit value from b.
func Uint16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// PutUint16 encodes v little-endian into b.
func PutUint16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// Uint32 decodes a little-endian 32 bit value from b.
func Uint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// PutUint32 encodes v little-endian into b.
func PutUint32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// SplitCluster splits a cluster number into the high and low words a
// directory entry stores at offsets 0x14 and 0x1A.
func SplitCluster(cluster uint32) (hi, lo uint16) {
	return uint16(cluster >> 16), uint16(cluster)
}

// JoinCluster is the inverse of SplitCluster.
func JoinCluster(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// putEntryCluster stores cluster in the directory record at b.
func putEntryCluster(b []byte, cluster uint32) {
	hi, lo := SplitCluster(cluster)
	PutUint16(b[offEntryClusterHI:], hi)
	PutUint16(b[offEntryClusterLO:], lo)
}

func entryCluster(b []byte) uint32 {
	return JoinCluster(Uint16(b[offEntryClusterHI:]), Uint16(b[offEntryClusterLO:]))
}
