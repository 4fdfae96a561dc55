//go:build !windows

package transport

import "fmt"

func newShmem(name string, bufferSize int) (Transport, error) {
	return nil, fmt.Errorf("transport: shared-memory comm endpoint %q is only supported on windows", name)
}
