// Package devio implements the proxy protocol engine (C6), the VHD
// translator (C3), the partition resolver (C2), logical I/O (C4), and
// bootstrap/diagnostics (C7/C8/C9) of the devio proxy server.
package devio

/* --- START OF PROXY PROTOCOL SECTION --- */

// this section is a transcription of the wire protocol from spec.md §4.6 and
// §6, which is itself the IMDPROXY proxy protocol spoken by ImDisk's devio.

// Request codes. All three share the family prefix 0x8474495900000000 with
// the low byte distinguishing the operation, matching spec.md §4.6's INFO
// code 0x8474495900000001.
const (
	ReqInfo  = uint64(0x8474495900000001)
	ReqRead  = uint64(0x8474495900000002)
	ReqWrite = uint64(0x8474495900000003)
)

// ImageFlag bits, carried in the INFO response.
const (
	FlagReadOnly = uint64(1 << 0)
)

// Errno values used in READ/WRITE responses and for the unknown-code reply.
// These mirror the platform errno values devio.c surfaces verbatim.
const (
	ErrnoNone   = uint64(0)
	ErrnoEBADF  = uint64(9)
	ErrnoEIO    = uint64(5)
	ErrnoENODEV = uint64(19)
	ErrnoE2BIG  = uint64(7)
)

// InfoResponse is the INFO reply: { file_size, req_alignment, flags }.
type InfoResponse struct {
	FileSize     uint64
	ReqAlignment uint64
	Flags        uint64
}

// ReadRequest is the fixed part of a READ request after the 8-byte code.
type ReadRequest struct {
	Offset uint64
	Length uint64
}

// ReadResponseHeader is the READ reply header; Length bytes of payload
// follow iff Errno == ErrnoNone.
type ReadResponseHeader struct {
	Errno  uint64
	Length uint64
}

// WriteRequest is the fixed part of a WRITE request after the 8-byte code;
// Length bytes of payload follow it on the wire.
type WriteRequest struct {
	Offset uint64
	Length uint64
}

// WriteResponse is the WRITE reply: { errorno, length }.
type WriteResponse struct {
	Errno  uint64
	Length uint64
}

/* --- END OF PROXY PROTOCOL SECTION --- */
