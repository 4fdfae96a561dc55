package devio

import (
	"encoding/binary"
	"testing"
)

const (
	testBlockSize   = 2 * 1024 * 1024
	testVirtualSize = 10 * 1024 * 1024
	testTableOffset = 1536
)

// buildDynamicVHD constructs a minimal freshly-formatted dynamic VHD image
// in memory: footer, header, an all-unallocated BAT, and the footer mirror
// at EOF, sized exactly as a real devio-compatible image would be before
// any block is allocated.
func buildDynamicVHD() []byte {
	maxEntries := (testVirtualSize + testBlockSize - 1) / testBlockSize
	batBytes := maxEntries * 4
	batRounded := ((batBytes + vhdSectorSize - 1) / vhdSectorSize) * vhdSectorSize

	dataStart := testTableOffset + batRounded
	total := dataStart + vhdFooterSize

	buf := make([]byte, total)

	footer := make([]byte, vhdFooterSize)
	copy(footer[0:8], vhdCookieFoot)
	binary.BigEndian.PutUint64(footer[48:56], uint64(testVirtualSize))
	binary.BigEndian.PutUint32(footer[60:64], vhdDiskTypeDyn)
	copy(buf[0:vhdFooterSize], footer)
	copy(buf[dataStart:dataStart+vhdFooterSize], footer)

	header := make([]byte, 48)
	copy(header[0:8], vhdCookieHead)
	binary.BigEndian.PutUint64(header[16:24], uint64(testTableOffset))
	binary.BigEndian.PutUint32(header[28:32], uint32(maxEntries))
	binary.BigEndian.PutUint32(header[32:36], uint32(testBlockSize))
	copy(buf[vhdFooterSize:vhdFooterSize+len(header)], header)

	for i := 0; i < maxEntries; i++ {
		off := testTableOffset + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], vhdUnallocated)
	}

	return buf
}

func probeTestVHD(t *testing.T, data []byte) (*memHandle, *Context) {
	t.Helper()
	h := newMemHandle(data)
	ctx, ok, err := Probe(h)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !ok {
		t.Fatal("Probe: expected VHD to be recognized")
	}
	return h, ctx
}

func TestFreshVHDReadsZero(t *testing.T) {
	h, ctx := probeTestVHD(t, buildDynamicVHD())

	out := make([]byte, 16)
	for i := range out {
		out[i] = 0xAA
	}
	n, err := ctx.Read(h, out, 0, int64(len(out)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != int64(len(out)) {
		t.Fatalf("Read returned %d bytes, want %d", n, len(out))
	}
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestVHDSparseGrowth(t *testing.T) {
	data := buildDynamicVHD()
	before := int64(len(data))
	h, ctx := probeTestVHD(t, data)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	writeOffset := int64(testBlockSize) // block 1

	n, err := ctx.Write(h, payload, writeOffset, int64(len(payload)))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("Write returned %d bytes, want %d", n, len(payload))
	}

	after := int64(len(h.data))
	wantGrowth := int64(vhdSectorSize + testBlockSize)
	if after-before != wantGrowth {
		t.Fatalf("backing grew by %d bytes, want %d", after-before, wantGrowth)
	}

	footerMirror := h.data[after-vhdFooterSize:]
	if string(footerMirror[0:8]) != vhdCookieFoot {
		t.Fatalf("footer mirror missing at new EOF")
	}

	entry, err := ctx.readBatEntry(h, 1)
	if err != nil {
		t.Fatalf("readBatEntry: %v", err)
	}
	wantSector := uint32((before - vhdFooterSize) / vhdSectorSize)
	if entry != wantSector {
		t.Fatalf("BAT entry for block 1 = %d, want %d", entry, wantSector)
	}

	readBack := make([]byte, len(payload))
	if _, err := ctx.Read(h, readBack, writeOffset, int64(len(readBack))); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range payload {
		if readBack[i] != payload[i] {
			t.Fatalf("read-back byte %d = %#x, want %#x", i, readBack[i], payload[i])
		}
	}

	zeros := make([]byte, 16)
	if _, err := ctx.Read(h, zeros, writeOffset+16, int64(len(zeros))); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, b := range zeros {
		if b != 0 {
			t.Fatalf("byte %d beyond payload = %#x, want 0", i, b)
		}
	}
}

func TestVHDZeroWriteSuppression(t *testing.T) {
	data := buildDynamicVHD()
	before := int64(len(data))
	h, ctx := probeTestVHD(t, data)

	zeros := make([]byte, 4096)
	writeOffset := int64(2 * testBlockSize) // block 2

	n, err := ctx.Write(h, zeros, writeOffset, int64(len(zeros)))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != int64(len(zeros)) {
		t.Fatalf("Write returned %d bytes, want %d", n, len(zeros))
	}

	if int64(len(h.data)) != before {
		t.Fatalf("backing size changed: before=%d after=%d", before, len(h.data))
	}

	entry, err := ctx.readBatEntry(h, 2)
	if err != nil {
		t.Fatalf("readBatEntry: %v", err)
	}
	if entry != vhdUnallocated {
		t.Fatalf("BAT entry for block 2 = %#x, want unallocated", entry)
	}
}
