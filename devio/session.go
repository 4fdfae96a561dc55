package devio

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/mridentity/ImDisk/transport"
)

// Session runs the C6 protocol engine: a single request at a time over one
// Transport, dispatching INFO/READ/WRITE against one Image. There is no
// request pipelining; the next request is not read until the previous
// response has been flushed, per spec.md §5.
type Session struct {
	T        transport.Transport
	Img      *Image
	ReadOnly bool
	Align    uint64
	Sink     *Sink

	buf []byte
}

// NewSession wires a Transport and Image together with an initial working
// buffer of bufSize bytes.
func NewSession(t transport.Transport, img *Image, readOnly bool, align uint64, sink *Sink, bufSize int) *Session {
	return &Session{T: t, Img: img, ReadOnly: readOnly, Align: align, Sink: sink, buf: make([]byte, bufSize)}
}

// Run drives the request loop until the transport reports clean EOF or a
// session-ending transport error occurs.
func (s *Session) Run() error {
	for {
		code, err := s.readCode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.Sink.Info("session: client disconnected")
				return nil
			}
			return Wrap(TransportClosed, err)
		}

		switch code {
		case ReqInfo:
			err = s.handleInfo()
		case ReqRead:
			err = s.handleRead()
		case ReqWrite:
			err = s.handleWrite()
		default:
			err = s.handleUnknown()
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) readCode() (uint64, error) {
	var hdr [8]byte
	if _, err := s.T.Read(hdr[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(hdr[:]), nil
}

func (s *Session) readUint64() (uint64, error) {
	var b [8]byte
	if _, err := s.T.Read(b[:]); err != nil {
		return 0, Wrap(TransportClosed, err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (s *Session) writeUint64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	if _, err := s.T.Write(b[:]); err != nil {
		return Wrap(TransportClosed, err)
	}
	return nil
}

func (s *Session) flush() error {
	if err := s.T.Flush(); err != nil {
		return Wrap(TransportClosed, err)
	}
	return nil
}

func (s *Session) handleInfo() error {
	flags := uint64(0)
	if s.ReadOnly {
		flags |= FlagReadOnly
	}
	if err := s.writeUint64(uint64(s.Img.FileSize)); err != nil {
		return err
	}
	if err := s.writeUint64(s.Align); err != nil {
		return err
	}
	if err := s.writeUint64(flags); err != nil {
		return err
	}
	return s.flush()
}

func (s *Session) handleRead() error {
	offset, err := s.readUint64()
	if err != nil {
		return err
	}
	length, err := s.readUint64()
	if err != nil {
		return err
	}

	if int(length) > len(s.buf) {
		grown, err := s.T.Grow(int(length))
		if err != nil {
			return Wrap(AllocFailure, err)
		}
		s.buf = grown
	}

	want := length
	if want > uint64(len(s.buf)) {
		want = uint64(len(s.buf))
	}

	n, ioErr := s.Img.ReadAt(s.buf[:want], int64(offset))
	if ioErr != nil {
		s.Sink.Errno("read at offset=%d length=%d failed", ioErr, offset, length)
		if err := s.writeUint64(errnoOf(ioErr)); err != nil {
			return err
		}
		if err := s.writeUint64(0); err != nil {
			return err
		}
		return s.flush()
	}

	if err := s.writeUint64(ErrnoNone); err != nil {
		return err
	}
	if err := s.writeUint64(uint64(n)); err != nil {
		return err
	}
	if n > 0 {
		if _, err := s.T.Write(s.buf[:n]); err != nil {
			return Wrap(TransportClosed, err)
		}
	}
	return s.flush()
}

func (s *Session) handleWrite() error {
	offset, err := s.readUint64()
	if err != nil {
		return err
	}
	length, err := s.readUint64()
	if err != nil {
		return err
	}

	if int(length) > len(s.buf) {
		grown, err := s.T.Grow(int(length))
		if err != nil {
			return Wrap(AllocFailure, err)
		}
		s.buf = grown
	}

	if length > 0 {
		if _, err := s.T.Read(s.buf[:length]); err != nil {
			return Wrap(TransportClosed, err)
		}
	}

	if s.ReadOnly {
		if err := s.writeUint64(ErrnoEBADF); err != nil {
			return err
		}
		if err := s.writeUint64(0); err != nil {
			return err
		}
		return s.flush()
	}

	n, ioErr := s.Img.WriteAt(s.buf[:length], int64(offset))
	if ioErr != nil {
		s.Sink.Errno("write at offset=%d length=%d failed", ioErr, offset, length)
		if err := s.writeUint64(errnoOf(ioErr)); err != nil {
			return err
		}
		if err := s.writeUint64(0); err != nil {
			return err
		}
		return s.flush()
	}

	if err := s.writeUint64(ErrnoNone); err != nil {
		return err
	}
	if err := s.writeUint64(uint64(n)); err != nil {
		return err
	}
	return s.flush()
}

func (s *Session) handleUnknown() error {
	if err := s.writeUint64(ErrnoENODEV); err != nil {
		return err
	}
	return s.flush()
}
