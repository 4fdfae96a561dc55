package devio

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/mridentity/ImDisk/backend"
)

const (
	vhdSectorSize  = 512
	vhdFooterSize  = 512
	vhdHeaderSize  = 1024
	vhdCookieFoot  = "conectix"
	vhdCookieHead  = "cxsparse"
	vhdDiskTypeDyn = 3
	vhdUnallocated = 0xFFFFFFFF
)

// Footer is the 512-byte VHD footer record. Only the fields the translator
// needs to inspect or preserve are kept; the remaining bytes of the raw
// record are carried in Raw so the mirror can be written back byte-exact.
type Footer struct {
	Cookie   [8]byte
	DiskType uint32
	UniqueID uuid.UUID
	Raw      [vhdFooterSize]byte
}

// Header is the 1024-byte VHD dynamic-disk header record.
type Header struct {
	Cookie          [8]byte
	TableOffset     uint64
	BlockSize       uint32
	MaxTableEntries uint32
	Raw             [vhdHeaderSize]byte
}

// Context carries the state of an open dynamic VHD image: the footer, the
// header, the derived shifts, and the BAT location. It is passed explicitly
// to every read/write call; there is no package-level mutable state.
type Context struct {
	Footer Footer
	Header Header

	CurrentSize int64 // decoded virtual size, big-endian field of Footer
	BlockSize   int64
	BlockShift  uint
	SectorShift uint

	TableOffset int64

	scratch []byte // reused per-call sector-bitmap/zero-fill buffer
}

func parseFooter(b []byte) (Footer, error) {
	var f Footer
	if len(b) < vhdFooterSize {
		return f, fmt.Errorf("devio: short footer record")
	}
	copy(f.Cookie[:], b[0:8])
	copy(f.Raw[:], b[0:vhdFooterSize])
	f.DiskType = binary.BigEndian.Uint32(b[60:64])
	copy(f.UniqueID[:], b[68:84])
	return f, nil
}

// parseHeader decodes the leading fields of a VHD dynamic-disk header. b
// need only cover the first 36 bytes (cookie through block_size); the
// header's full 1024-byte extent (BAT parent locators, etc.) is not
// consulted by this translator.
func parseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < 36 {
		return h, fmt.Errorf("devio: short header record")
	}
	copy(h.Cookie[:], b[0:8])
	n := min(len(b), vhdHeaderSize)
	copy(h.Raw[:n], b[:n])
	h.TableOffset = binary.BigEndian.Uint64(b[16:24])
	h.MaxTableEntries = binary.BigEndian.Uint32(b[28:32])
	h.BlockSize = binary.BigEndian.Uint32(b[32:36])
	return h, nil
}

// blockShiftOf validates that size is a power of two no smaller than
// vhdSectorSize and returns lg2(size). Per Design Notes §9, the source's
// linear search silently caps at 64 when size is not a power of two; this
// validates explicitly and fails loudly instead.
func blockShiftOf(size int64) (uint, error) {
	if size < vhdSectorSize {
		return 0, fmt.Errorf("devio: VHD block size %d smaller than sector size", size)
	}
	if size&(size-1) != 0 {
		return 0, fmt.Errorf("devio: VHD block size %d is not a power of two", size)
	}
	var shift uint
	for v := size; v > 1; v >>= 1 {
		shift++
	}
	return shift, nil
}

// Probe reads the first 1024 bytes of h and reports whether they describe a
// dynamic VHD image. The leading footer copy occupies bytes [0,512); the
// dynamic header begins at byte 512 and runs to byte 1536, but every field
// this translator needs (table_offset, block_size, max_table_entries) lies
// within the header's first 48 bytes, so the 1024-byte probe read is
// sufficient without a second round trip.
func Probe(h backend.Handle) (*Context, bool, error) {
	buf := make([]byte, vhdHeaderSize)
	n, err := h.ReadAt(buf, 0)
	if err != nil || n < vhdHeaderSize {
		return nil, false, nil
	}

	footer, err := parseFooter(buf[:vhdFooterSize])
	if err != nil || string(footer.Cookie[:]) != vhdCookieFoot {
		return nil, false, nil
	}
	if footer.DiskType != vhdDiskTypeDyn {
		return nil, false, nil
	}

	header, err := parseHeader(buf[vhdFooterSize:])
	if err != nil || string(header.Cookie[:]) != vhdCookieHead {
		return nil, false, nil
	}

	blockShift, err := blockShiftOf(int64(header.BlockSize))
	if err != nil {
		return nil, false, Wrap(BadFormat, err)
	}
	sectorShift, err := blockShiftOf(vhdSectorSize)
	if err != nil {
		return nil, false, Wrap(BadFormat, err)
	}

	virtualSize := int64(binary.BigEndian.Uint64(buf[48:56]))

	ctx := &Context{
		Footer:      footer,
		Header:      header,
		CurrentSize: virtualSize,
		BlockSize:   int64(header.BlockSize),
		BlockShift:  blockShift,
		SectorShift: sectorShift,
		TableOffset: int64(header.TableOffset),
		scratch:     make([]byte, vhdSectorSize+int(header.BlockSize)+vhdFooterSize),
	}
	return ctx, true, nil
}

// batEntryOffset returns the byte offset of the BAT entry for blockNo.
func (c *Context) batEntryOffset(blockNo int64) int64 {
	return c.TableOffset + blockNo*4
}

func (c *Context) readBatEntry(h backend.Handle, blockNo int64) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := h.ReadAt(buf, c.batEntryOffset(blockNo)); err != nil {
		return 0, Wrap(BackingIO, err)
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (c *Context) writeBatEntry(h backend.Handle, blockNo int64, sector uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, sector)
	if _, err := h.WriteAt(buf, c.batEntryOffset(blockNo)); err != nil {
		return Wrap(BackingIO, err)
	}
	return nil
}

// chunk is one block-aligned slice of a logical read or write request.
type chunk struct {
	blockNo   int64
	inBlock   int64
	length    int64
	bufOffset int64 // offset within the caller's buffer
}

// splitChunks decomposes [offset, offset+size) into block-aligned pieces,
// replacing the source's recursive vhd_read/vhd_write with an iterative
// loop per Design Notes §9 (bounds stack depth for large requests).
func (c *Context) splitChunks(offset, size int64) []chunk {
	var chunks []chunk
	var done int64
	for done < size {
		cur := offset + done
		blockNo := cur >> c.BlockShift
		inBlock := cur & (c.BlockSize - 1)
		length := c.BlockSize - inBlock
		if remain := size - done; length > remain {
			length = remain
		}
		chunks = append(chunks, chunk{
			blockNo:   blockNo,
			inBlock:   inBlock,
			length:    length,
			bufOffset: done,
		})
		done += length
	}
	return chunks
}

// Read fills out[:size] from the VHD image at logical offset off. Returns
// the number of bytes actually transferred, which is 0 if the request lies
// beyond CurrentSize.
func (c *Context) Read(h backend.Handle, out []byte, offset, size int64) (int64, error) {
	if offset+size > c.CurrentSize {
		return 0, nil
	}

	var total int64
	for _, ch := range c.splitChunks(offset, size) {
		entry, err := c.readBatEntry(h, ch.blockNo)
		if err != nil {
			return total, err
		}
		dst := out[ch.bufOffset : ch.bufOffset+ch.length]
		if entry == vhdUnallocated {
			for i := range dst {
				dst[i] = 0
			}
			total += ch.length
			continue
		}
		dataOffset := (int64(entry) << c.SectorShift) + vhdSectorSize + ch.inBlock
		n, err := h.ReadAt(dst, dataOffset)
		if err != nil {
			return total, Wrap(BackingIO, err)
		}
		total += int64(n)
		if int64(n) < ch.length {
			break
		}
	}
	return total, nil
}

// Write stores in[:size] into the VHD image at logical offset off,
// allocating new blocks as needed. Returns the number of bytes actually
// transferred.
func (c *Context) Write(h backend.Handle, in []byte, offset, size int64) (int64, error) {
	var total int64
	for _, ch := range c.splitChunks(offset, size) {
		src := in[ch.bufOffset : ch.bufOffset+ch.length]

		entry, err := c.readBatEntry(h, ch.blockNo)
		if err != nil {
			return total, err
		}

		if entry == vhdUnallocated {
			if isAllZero(src) {
				total += ch.length
				continue
			}
			newSector, err := c.allocateBlock(h)
			if err != nil {
				return total, err
			}
			if err := c.writeBatEntry(h, ch.blockNo, newSector); err != nil {
				return total, err
			}
			entry = newSector
		}

		dataOffset := (int64(entry) << c.SectorShift) + vhdSectorSize + ch.inBlock
		n, err := h.WriteAt(src, dataOffset)
		if err != nil {
			return total, Wrap(BackingIO, err)
		}
		total += int64(n)

		if err := c.markBitmap(h, entry, ch.inBlock, int64(n)); err != nil {
			return total, err
		}

		if int64(n) < ch.length {
			break
		}
	}
	return total, nil
}

// isAllZero implements the "test-and-bail" intent of Design Notes §9:
// return false as soon as any lane is nonzero, true if every lane is zero.
func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// allocateBlock places a new block at the byte offset currently occupied by
// the footer mirror, writes a zeroed bitmap-plus-block region followed by
// the footer copy, and returns the new block's start sector.
func (c *Context) allocateBlock(h backend.Handle) (uint32, error) {
	size, ok := h.Size()
	if !ok {
		return 0, Wrap(AllocFailure, fmt.Errorf("backing store does not report size"))
	}
	newStart := size - vhdFooterSize
	if newStart%vhdSectorSize != 0 {
		return 0, Wrap(BadFormat, fmt.Errorf("devio: backing store footer misaligned to sector size"))
	}
	newSector := uint32(newStart / vhdSectorSize)

	region := c.scratch
	need := vhdSectorSize + c.BlockSize + vhdFooterSize
	if int64(len(region)) < need {
		region = make([]byte, need)
	}
	for i := int64(0); i < need-vhdFooterSize; i++ {
		region[i] = 0
	}
	copy(region[need-vhdFooterSize:], c.Footer.Raw[:])

	if _, err := h.WriteAt(region[:need], newStart); err != nil {
		return 0, Wrap(BackingIO, err)
	}
	return newSector, nil
}

// markBitmap marks the sectors covered by [inBlock, inBlock+length) as
// allocated in block's sector bitmap. Marking is done at byte granularity:
// a partial-sector write may over-mark neighbouring sectors sharing the
// same bitmap byte, which is harmless since those sectors physically exist
// within the already-allocated block.
func (c *Context) markBitmap(h backend.Handle, blockSector uint32, inBlock, length int64) error {
	if length <= 0 {
		return nil
	}
	bitmapOffset := (int64(blockSector) << c.SectorShift) + (inBlock >> c.SectorShift >> 3)
	sectorsTouched := (length + vhdSectorSize - 1) / vhdSectorSize
	bitmapBytes := (sectorsTouched + 7) / 8
	if bitmapBytes == 0 {
		bitmapBytes = 1
	}

	fill := c.scratch
	if int64(len(fill)) < bitmapBytes {
		fill = make([]byte, bitmapBytes)
	}
	for i := int64(0); i < bitmapBytes; i++ {
		fill[i] = 0xFF
	}

	if _, err := h.WriteAt(fill[:bitmapBytes], bitmapOffset); err != nil {
		return Wrap(BackingIO, err)
	}
	return nil
}
