// Package aio implements a backend.Handle backed by Linux AIO via
// github.com/traetox/goaio, for callers that want overlapped reads and
// writes against the image file instead of synchronous pread/pwrite.
package aio

import (
	"os"

	"github.com/traetox/goaio"

	"github.com/mridentity/ImDisk/backend"
)

const queueDepth = 32

// Backend is an AIO-queue-backed Handle.
type Backend struct {
	file *os.File
	aio  *goaio.AIO
}

// ReadAt implements backend.Handle: submits an async read and blocks for
// its completion, so from the caller's point of view it behaves like a
// synchronous positional read but goes through the kernel AIO queue.
func (b *Backend) ReadAt(p []byte, off int64) (int, error) {
	id, err := b.aio.ReadAt(p, off)
	if err != nil {
		return 0, err
	}
	return b.aio.WaitFor(id)
}

// WriteAt implements backend.Handle.
func (b *Backend) WriteAt(p []byte, off int64) (int, error) {
	id, err := b.aio.WriteAt(p, off)
	if err != nil {
		return 0, err
	}
	return b.aio.WaitFor(id)
}

// Close implements backend.Handle.
func (b *Backend) Close() error {
	aioErr := b.aio.Close()
	fileErr := b.file.Close()
	if aioErr != nil {
		return aioErr
	}
	return fileErr
}

// Size implements backend.Handle.
func (b *Backend) Size() (int64, bool) {
	stat, err := b.file.Stat()
	if err != nil || stat.Size() == 0 {
		return 0, false
	}
	return stat.Size(), true
}

// Open opens name through the AIO queue. Falls back to an error rather
// than silently degrading to synchronous I/O - a caller that explicitly
// asked for the aio provider should learn immediately if the platform or
// file type doesn't support it, instead of getting quietly-worse behavior.
// opts.ForceSync ORs in os.O_SYNC, same as the file provider.
func Open(name string, opts backend.OpenOptions) (backend.Handle, error) {
	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	if opts.ForceSync {
		flags |= os.O_SYNC
	}
	f, err := os.OpenFile(name, flags, 0666)
	if err != nil {
		return nil, err
	}
	a, err := goaio.New(f, goaio.AIOExtConfig{QueueDepth: queueDepth})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Backend{file: f, aio: a}, nil
}

func init() {
	backend.Register("aio", Open)
}
