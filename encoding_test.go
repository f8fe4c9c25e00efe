package fatlog

import (
	"testing"
	"testing/quick"
)

func TestSplitCluster(t *testing.T) {
	tests := []struct {
		cluster uint32
		wantHi  uint16
		wantLo  uint16
	}{
		{cluster: 0, wantHi: 0, wantLo: 0},
		{cluster: 3, wantHi: 0, wantLo: 3},
		{cluster: 0x0001_0002, wantHi: 1, wantLo: 2},
		{cluster: 0x0FFF_FFF7, wantHi: 0x0FFF, wantLo: 0xFFF7},
	}
	for _, tt := range tests {
		hi, lo := SplitCluster(tt.cluster)
		if hi != tt.wantHi || lo != tt.wantLo {
			t.Errorf("SplitCluster(%v) = %v, %v, want %v, %v", tt.cluster, hi, lo, tt.wantHi, tt.wantLo)
		}
		if got := JoinCluster(hi, lo); got != tt.cluster {
			t.Errorf("JoinCluster(%v, %v) = %v, want %v", hi, lo, got, tt.cluster)
		}
	}
}

func Test_putEntryCluster(t *testing.T) {
	record := make([]byte, entrySize)
	putEntryCluster(record, 0x0012_3456)
	if record[offEntryClusterHI] != 0x12 || record[offEntryClusterLO] != 0x56 || record[offEntryClusterLO+1] != 0x34 {
		t.Errorf("putEntryCluster() = % X", record)
	}
	if got := entryCluster(record); got != 0x0012_3456 {
		t.Errorf("entryCluster() = %X, want %X", got, 0x0012_3456)
	}
}

func TestUint32_roundTrip(t *testing.T) {
	values := []uint32{0, 1, 0xFF, 0xFFFF, 0x10000, 0x0FFFFFF7, 0x0FFFFFF8, 0x0FFFFFFF, 0x12345678, 0x80000000, 0xFFFFFFFF}
	for _, v := range values {
		b := make([]byte, 6)
		PutUint32(b[1:], v)
		if b[0] != 0 || b[5] != 0 {
			t.Errorf("PutUint32(%X) wrote outside its 4 bytes: % X", v, b)
		}
		if b[1] != byte(v) || b[4] != byte(v>>24) {
			t.Errorf("PutUint32(%X) = % X, want little-endian", v, b[1:5])
		}
		if got := Uint32(b[1:]); got != v {
			t.Errorf("Uint32(PutUint32(%X)) = %X", v, got)
		}

		hi, lo := SplitCluster(v)
		if got := JoinCluster(hi, lo); got != v {
			t.Errorf("JoinCluster(SplitCluster(%X)) = %X", v, got)
		}

		record := make([]byte, entrySize)
		putEntryCluster(record, v)
		if got := entryCluster(record); got != v {
			t.Errorf("entryCluster(putEntryCluster(%X)) = %X", v, got)
		}
	}
}

func TestUint16_roundTrip(t *testing.T) {
	for v := 0; v <= 0xFFFF; v++ {
		b := make([]byte, 2)
		PutUint16(b, uint16(v))
		if b[0] != byte(v) || b[1] != byte(v>>8) {
			t.Fatalf("PutUint16(%X) = % X, want little-endian", v, b)
		}
		if got := Uint16(b); got != uint16(v) {
			t.Fatalf("Uint16(PutUint16(%X)) = %X", v, got)
		}
	}
}

func TestUint32_quick(t *testing.T) {
	roundTrip := func(v uint32) bool {
		var b [4]byte
		PutUint32(b[:], v)
		hi, lo := SplitCluster(v)
		return Uint32(b[:]) == v && JoinCluster(hi, lo) == v
	}
	if err := quick.Check(roundTrip, &quick.Config{MaxCount: 10000}); err != nil {
		t.Error(err)
	}
}
