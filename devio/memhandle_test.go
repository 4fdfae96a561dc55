package devio

import "io"

// memHandle is an in-memory backend.Handle used to exercise the partition
// resolver, the VHD translator, and the session loop without touching the
// filesystem.
type memHandle struct {
	data []byte
}

func newMemHandle(data []byte) *memHandle {
	return &memHandle{data: data}
}

func (m *memHandle) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (m *memHandle) WriteAt(p []byte, off int64) (int, error) {
	need := off + int64(len(p))
	if need > int64(len(m.data)) {
		grown := make([]byte, need)
		copy(grown, m.data)
		m.data = grown
	}
	n := copy(m.data[off:], p)
	return n, nil
}

func (m *memHandle) Close() error { return nil }

func (m *memHandle) Size() (int64, bool) { return int64(len(m.data)), true }
