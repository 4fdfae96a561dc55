package devio

import (
	"encoding/binary"
	"fmt"

	"github.com/mridentity/ImDisk/backend"
)

const (
	mbrSectorSize   = 512
	mbrEntryTable   = 0x1BE // offset of the four-entry partition table
	mbrEntrySize    = 16
	mbrSignatureLo  = 0x1FE
	mbrTypeExtended = 0x05
	mbrTypeExtLBA   = 0x0F
)

// partitionEntry is one 16-byte MBR/EBR partition table entry.
type partitionEntry struct {
	status    byte
	kind      byte
	relStart  uint32 // sectors, relative to whatever base this entry's table is anchored at
	numSectors uint32
}

func parseEntry(b []byte) partitionEntry {
	return partitionEntry{
		status:     b[0],
		kind:       b[4],
		relStart:   binary.LittleEndian.Uint32(b[8:12]),
		numSectors: binary.LittleEndian.Uint32(b[12:16]),
	}
}

// validSignature checks the 0x55 0xAA trailer and that none of the four
// status bytes has any bit set other than 0x80 (the bootable flag), per
// spec.md §4.2 step 1.
func validSignature(sector []byte) bool {
	if len(sector) < mbrSectorSize {
		return false
	}
	if sector[mbrSignatureLo] != 0x55 || sector[mbrSignatureLo+1] != 0xAA {
		return false
	}
	for i := 0; i < 4; i++ {
		status := sector[mbrEntryTable+i*mbrEntrySize]
		if status&0x7F != 0 {
			return false
		}
	}
	return true
}

func readEntries(sector []byte) [4]partitionEntry {
	var entries [4]partitionEntry
	for i := 0; i < 4; i++ {
		off := mbrEntryTable + i*mbrEntrySize
		entries[i] = parseEntry(sector[off : off+mbrEntrySize])
	}
	return entries
}

// ResolvePartition walks the MBR and, if present, the extended partition
// chain to find the n-th non-extended entry (n is 1-based), returning its
// byte offset and length within h. If no MBR is present (bad signature or
// any status byte with a bit other than 0x80 set), a BadFormat error is
// returned.
func ResolvePartition(h backend.Handle, n int, currentSize int64) (offset, length int64, err error) {
	if n < 1 || n > 511 {
		return 0, 0, fmt.Errorf("devio: partition index %d out of range [1,511]", n)
	}

	mbr := make([]byte, mbrSectorSize)
	if _, err := h.ReadAt(mbr, 0); err != nil {
		return 0, 0, Wrap(BackingIO, fmt.Errorf("reading MBR: %w", err))
	}

	if !validSignature(mbr) {
		return 0, 0, Wrap(BadFormat, fmt.Errorf("no valid MBR present"))
	}

	entries := readEntries(mbr)
	count := 0

	for i := 0; i < 4; i++ {
		e := entries[i]
		switch {
		case e.kind == 0x00:
			continue
		case e.kind == mbrTypeExtended || e.kind == mbrTypeExtLBA:
			firstEBR := int64(e.relStart) * mbrSectorSize
			off, size, found, walkErr := walkExtended(h, firstEBR, n, &count)
			if walkErr != nil {
				return 0, 0, walkErr
			}
			if found {
				return validatePartition(off, size, currentSize)
			}
		default:
			count++
			if count == n {
				off := int64(e.relStart) * mbrSectorSize
				size := int64(e.numSectors) * mbrSectorSize
				return validatePartition(off, size, currentSize)
			}
		}
	}

	return 0, 0, Wrap(BadFormat, fmt.Errorf("partition %d not found", n))
}

// walkExtended walks the EBR chain anchored at firstEBR, counting logical
// partitions toward n via count. Returns found=true once the n-th entry is
// located.
func walkExtended(h backend.Handle, firstEBR int64, n int, count *int) (offset, size int64, found bool, err error) {
	ebrOffset := firstEBR

	for {
		ebr := make([]byte, mbrSectorSize)
		if _, rerr := h.ReadAt(ebr, ebrOffset); rerr != nil {
			return 0, 0, false, Wrap(BackingIO, fmt.Errorf("reading EBR at %d: %w", ebrOffset, rerr))
		}
		if !validSignature(ebr) {
			// A malformed or terminating EBR chain link is not itself an
			// error: spec.md only requires stopping when the chain
			// terminates (no extended entry in this EBR's table).
			return 0, 0, false, nil
		}

		entries := readEntries(ebr)
		nextEBR := int64(-1)

		for i := 0; i < 4; i++ {
			e := entries[i]
			if e.kind == 0x00 {
				continue
			}
			if e.kind == mbrTypeExtended || e.kind == mbrTypeExtLBA {
				nextEBR = firstEBR + int64(e.relStart)*mbrSectorSize
				continue
			}
			*count++
			if *count == n {
				offset = ebrOffset + int64(e.relStart)*mbrSectorSize
				size = int64(e.numSectors) * mbrSectorSize
				return offset, size, true, nil
			}
		}

		if nextEBR < 0 {
			return 0, 0, false, nil
		}
		ebrOffset = nextEBR
	}
}

func validatePartition(offset, size, currentSize int64) (int64, int64, error) {
	if size == 0 {
		return 0, 0, Wrap(BadFormat, fmt.Errorf("target partition has zero length"))
	}
	if currentSize > 0 && offset+size > currentSize {
		return 0, 0, Wrap(BadFormat, fmt.Errorf("partition extends beyond backing store: offset=%d size=%d currentSize=%d", offset, size, currentSize))
	}
	return offset, size, nil
}
