//go:build windows

package transport

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// Device-specific ioctl codes for the devio kernel-mode counterpart. The
// kernel-mode driver itself is out of scope (spec.md §1); only its ioctl
// contract is implemented here.
const (
	ioctlLockMemory = 0x80002010
	ioctlExchangeIO = 0x80002014
)

var errInsufficientBuffer = errors.New("transport: kernel driver rejected undersized buffer")
var errDeviceGone = errors.New("transport: kernel driver reports peer detached")

// kerneldrvTransport is the kernel-driver C5 variant. The mapped region is
// a private mapping registered with the kernel via a "lock memory" ioctl;
// the "exchange I/O" ioctl is the rendezvous primitive, completing when the
// client has posted a new request or detached.
type kerneldrvTransport struct {
	dev windows.Handle

	buf         []byte
	readCursor  int
	writeCursor int

	lockOutstanding bool

	mu sync.Mutex
}

func newKerneldrv(name string, bufferSize int) (Transport, error) {
	path, err := windows.UTF16PtrFromString(`\\.\` + name)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding device path: %w", err)
	}
	dev, err := windows.CreateFile(path, windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: opening kernel device %s: %w", name, err)
	}

	t := &kerneldrvTransport{dev: dev, buf: make([]byte, bufferSize)}
	if err := t.lockMemory(); err != nil {
		windows.CloseHandle(dev)
		return nil, err
	}
	return t, nil
}

func (t *kerneldrvTransport) lockMemory() error {
	var bytesReturned uint32
	err := windows.DeviceIoControl(t.dev, ioctlLockMemory, &t.buf[0], uint32(len(t.buf)), nil, 0, &bytesReturned, nil)
	if err != nil {
		return fmt.Errorf("transport: lock memory ioctl: %w", err)
	}
	t.lockOutstanding = true
	return nil
}

func (t *kerneldrvTransport) exchange() error {
	var bytesReturned uint32
	err := windows.DeviceIoControl(t.dev, ioctlExchangeIO, nil, 0, nil, 0, &bytesReturned, nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
		return errInsufficientBuffer
	}
	if errors.Is(err, windows.ERROR_DEV_NOT_EXIST) {
		return errDeviceGone
	}
	return fmt.Errorf("transport: exchange io ioctl: %w", err)
}

func (t *kerneldrvTransport) Read(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := copy(buf, t.buf[t.readCursor:])
	t.readCursor += n
	return n, nil
}

func (t *kerneldrvTransport) Write(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := copy(t.buf[t.writeCursor:], buf)
	t.writeCursor += n
	return n, nil
}

// Flush performs the exchange-io rendezvous, growing the mapping and
// retrying when the driver reports the buffer was too small.
func (t *kerneldrvTransport) Flush() error {
	t.mu.Lock()
	t.readCursor = 0
	t.writeCursor = 0
	t.mu.Unlock()

	for {
		err := t.exchange()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errDeviceGone):
			return nil
		case errors.Is(err, errInsufficientBuffer):
			if _, growErr := t.Grow(len(t.buf) * 2); growErr != nil {
				return growErr
			}
			continue
		default:
			return err
		}
	}
}

// Grow implements the buffer-grow dance of spec.md §4.5: wait for the
// outstanding lock to drain, unmap, double the buffer, reallocate the
// mapping, reissue the lock ioctl, and let the caller retry the exchange.
func (t *kerneldrvTransport) Grow(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= len(t.buf) {
		return t.buf, nil
	}

	t.lockOutstanding = false // the lock drains implicitly once unmapped
	t.buf = make([]byte, n)
	if err := t.lockMemory(); err != nil {
		return nil, err
	}
	return t.buf, nil
}

func (t *kerneldrvTransport) Close() error {
	return windows.CloseHandle(t.dev)
}
