package devio

import (
	"encoding/binary"
	"testing"
)

// buildMBR constructs a 512-byte sector with up to four primary entries.
// Each entry is {kind, relStartSectors, sizeSectors}; a zero kind marks an
// unused slot.
func buildMBR(entries [4][3]uint32) []byte {
	sector := make([]byte, mbrSectorSize)
	for i, e := range entries {
		off := mbrEntryTable + i*mbrEntrySize
		sector[off] = 0x00 // status: bootable flag unset, high bit clear
		sector[off+4] = byte(e[0])
		binary.LittleEndian.PutUint32(sector[off+8:off+12], e[1])
		binary.LittleEndian.PutUint32(sector[off+12:off+16], e[2])
	}
	sector[mbrSignatureLo] = 0x55
	sector[mbrSignatureLo+1] = 0xAA
	return sector
}

func TestResolvePartitionPrimary(t *testing.T) {
	// partition 1: 100 MiB starting at sector 2048 (1 MiB)
	// partition 2: 200 MiB starting at sector 206848 (101 MiB)
	const sectorsPerMiB = (1 << 20) / mbrSectorSize
	mbr := buildMBR([4][3]uint32{
		{0x83, 2048, 100 * sectorsPerMiB},
		{0x83, 2048 + 100*sectorsPerMiB, 200 * sectorsPerMiB},
		{0, 0, 0},
		{0, 0, 0},
	})

	backing := make([]byte, 512*1024*1024)
	copy(backing, mbr)
	h := newMemHandle(backing)

	off, size, err := ResolvePartition(h, 2, int64(len(backing)))
	if err != nil {
		t.Fatalf("ResolvePartition: %v", err)
	}
	wantOff := int64(101 * 1024 * 1024)
	wantSize := int64(200 * 1024 * 1024)
	if off != wantOff || size != wantSize {
		t.Errorf("ResolvePartition(2) = (%d, %d), want (%d, %d)", off, size, wantOff, wantSize)
	}
}

func TestResolvePartitionNotFound(t *testing.T) {
	mbr := buildMBR([4][3]uint32{{0x83, 2048, 2048}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}})
	backing := make([]byte, 8*1024*1024)
	copy(backing, mbr)
	h := newMemHandle(backing)

	if _, _, err := ResolvePartition(h, 2, int64(len(backing))); err == nil {
		t.Fatal("expected an error resolving a partition index past the table, got nil")
	}
}

func TestResolvePartitionNoMBR(t *testing.T) {
	backing := make([]byte, 1024)
	h := newMemHandle(backing)
	if _, _, err := ResolvePartition(h, 1, int64(len(backing))); err == nil {
		t.Fatal("expected an error for a missing MBR signature, got nil")
	}
}

func TestResolvePartitionZeroLength(t *testing.T) {
	mbr := buildMBR([4][3]uint32{{0x83, 2048, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}})
	backing := make([]byte, 8*1024*1024)
	copy(backing, mbr)
	h := newMemHandle(backing)
	if _, _, err := ResolvePartition(h, 1, int64(len(backing))); err == nil {
		t.Fatal("expected an error for a zero-length partition, got nil")
	}
}
