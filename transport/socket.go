package transport

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

// socketTransport is the stream-socket C5 variant: a single TCP connection,
// a named local byte stream, or the process's stdin/stdout pair. read and
// write are full-length loops, retrying short I/O until satisfied or
// EOF/error; flush is a no-op since the underlying stream has no separate
// buffering stage to drain.
type socketTransport struct {
	r    io.Reader
	w    io.Writer
	c    io.Closer
	conn net.Conn // non-nil only for the TCP variant, to allow TCP_NODELAY
}

func dial(comm string, bufferSize int) (Transport, error) {
	switch {
	case comm == "-":
		return &socketTransport{r: os.Stdin, w: os.Stdout, c: nil}, nil
	case strings.HasPrefix(comm, "shm:"):
		return newShmem(strings.TrimPrefix(comm, "shm:"), bufferSize)
	case strings.HasPrefix(comm, "drv:"):
		return newKerneldrv(strings.TrimPrefix(comm, "drv:"), bufferSize)
	}

	if port, err := strconv.Atoi(comm); err == nil {
		return listenTCP(port)
	}

	f, err := os.OpenFile(comm, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: opening comm device %s: %w", comm, err)
	}
	return &socketTransport{r: f, w: f, c: f}, nil
}

// listenTCP accepts exactly one client on port, matching spec.md §4.5's
// "a listener that accepts exactly one client" contract.
func listenTCP(port int) (Transport, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("transport: listening on port %d: %w", port, err)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accepting connection: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return &socketTransport{r: conn, w: conn, c: conn, conn: conn}, nil
}

func (t *socketTransport) Read(buf []byte) (int, error) {
	return io.ReadFull(t.r, buf)
}

func (t *socketTransport) Write(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := t.w.Write(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (t *socketTransport) Flush() error { return nil }

func (t *socketTransport) Grow(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (t *socketTransport) Close() error {
	if t.c == nil {
		return nil
	}
	return t.c.Close()
}
