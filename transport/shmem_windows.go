//go:build windows

package transport

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// shmemTransport is the shared-memory C5 variant: a named file mapping
// sized header+bufferSize bytes, guarded by a server-held mutex, with a
// request/response event pair used as the wake signal between peers.
type shmemTransport struct {
	name string

	mutex    windows.Handle
	reqEvent windows.Handle
	rspEvent windows.Handle
	mapping  windows.Handle
	view     uintptr

	bufferSize  int
	readCursor  int
	writeCursor int

	mu sync.Mutex
}

const shmemHeaderSize = 16 // cursor bookkeeping ahead of the payload slot

func namespacePrefix() string {
	// Always the global namespace prefix ("Global\\"). There is no fallback
	// to the empty (session-local) prefix: if the named objects cannot be
	// created under it, newShmem returns that error.
	return `Global\`
}

func newShmem(name string, bufferSize int) (Transport, error) {
	prefix := namespacePrefix()
	base := prefix + name

	mutexName, _ := windows.UTF16PtrFromString(base + "_Server")
	mutex, err := windows.CreateMutex(nil, true, mutexName)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		windows.CloseHandle(mutex)
		return nil, fmt.Errorf("transport: another instance already owns %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: creating server mutex: %w", err)
	}

	reqName, _ := windows.UTF16PtrFromString(base + "_Request")
	reqEvent, err := windows.CreateEvent(nil, 0, 0, reqName)
	if err != nil {
		return nil, fmt.Errorf("transport: creating request event: %w", err)
	}

	rspName, _ := windows.UTF16PtrFromString(base + "_Response")
	rspEvent, err := windows.CreateEvent(nil, 0, 0, rspName)
	if err != nil {
		return nil, fmt.Errorf("transport: creating response event: %w", err)
	}

	mapName, _ := windows.UTF16PtrFromString(base)
	size := uint32(shmemHeaderSize + bufferSize)
	mapping, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, size, mapName)
	if err != nil {
		return nil, fmt.Errorf("transport: creating file mapping: %w", err)
	}

	view, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, fmt.Errorf("transport: mapping view: %w", err)
	}

	return &shmemTransport{
		name:       name,
		mutex:      mutex,
		reqEvent:   reqEvent,
		rspEvent:   rspEvent,
		mapping:    mapping,
		view:       view,
		bufferSize: bufferSize,
	}, nil
}

func (t *shmemTransport) mappedSlice() []byte {
	return unsafeSliceFromView(t.view, shmemHeaderSize+t.bufferSize)
}

func (t *shmemTransport) Read(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	region := t.mappedSlice()[shmemHeaderSize:]
	n := copy(buf, region[t.readCursor:])
	t.readCursor += n
	return n, nil
}

func (t *shmemTransport) Write(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	region := t.mappedSlice()[shmemHeaderSize:]
	n := copy(region[t.writeCursor:], buf)
	t.writeCursor += n
	return n, nil
}

// Flush resets both cursors, signals the response event, and waits on the
// request event, matching spec.md §4.5's round-trip baton handoff.
func (t *shmemTransport) Flush() error {
	t.mu.Lock()
	t.readCursor = 0
	t.writeCursor = 0
	t.mu.Unlock()

	if err := windows.SetEvent(t.rspEvent); err != nil {
		return fmt.Errorf("transport: signalling response event: %w", err)
	}
	ev, err := windows.WaitForSingleObject(t.reqEvent, windows.INFINITE)
	if err != nil || ev != windows.WAIT_OBJECT_0 {
		return fmt.Errorf("transport: waiting on request event: %w", err)
	}
	return nil
}

// Grow is a no-op on the mapping header; it resizes the logical view the
// caller operates on by remapping a larger region.
func (t *shmemTransport) Grow(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= t.bufferSize {
		return t.mappedSlice()[shmemHeaderSize:], nil
	}
	windows.UnmapViewOfFile(t.view)
	windows.CloseHandle(t.mapping)

	mapName, _ := windows.UTF16PtrFromString(namespacePrefix() + t.name)
	size := uint32(shmemHeaderSize + n)
	mapping, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, size, mapName)
	if err != nil {
		return nil, fmt.Errorf("transport: regrowing mapping: %w", err)
	}
	view, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, fmt.Errorf("transport: remapping grown view: %w", err)
	}
	t.mapping = mapping
	t.view = view
	t.bufferSize = n
	return t.mappedSlice()[shmemHeaderSize:], nil
}

func (t *shmemTransport) Close() error {
	windows.UnmapViewOfFile(t.view)
	windows.CloseHandle(t.mapping)
	windows.CloseHandle(t.rspEvent)
	windows.CloseHandle(t.reqEvent)
	windows.CloseHandle(t.mutex)
	return nil
}
