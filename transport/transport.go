// Package transport implements the C5 transport abstraction: a uniform
// read/write/flush/grow contract over the stream socket, shared-memory, and
// kernel-driver comm endpoints devio can be attached to.
package transport

// Transport is the uniform contract every comm endpoint implements. read
// and write perform full-length loops over the underlying medium, retrying
// short transfers until satisfied or the medium signals EOF/error. flush
// delivers any buffered output and, for the rendezvous-style transports,
// blocks until the peer has posted its next request.
type Transport interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Flush() error

	// Grow renegotiates the working buffer to at least n bytes, returning
	// the (possibly reallocated) buffer. Most transports simply grow a
	// heap slice; the kernel-driver transport performs the unmap/remap/
	// re-lock dance described in spec.md §4.5.
	Grow(n int) ([]byte, error)

	Close() error
}

// Dial resolves a comm endpoint string to a concrete Transport, per
// spec.md §6's <comm> grammar: a decimal TCP port, "-" for stdio, "shm:"
// and "drv:" prefixes, or else a local device path.
func Dial(comm string, bufferSize int) (Transport, error) {
	return dial(comm, bufferSize)
}
