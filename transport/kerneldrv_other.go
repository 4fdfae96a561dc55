//go:build !windows

package transport

import "fmt"

func newKerneldrv(name string, bufferSize int) (Transport, error) {
	return nil, fmt.Errorf("transport: kernel-driver comm endpoint %q is only supported on windows", name)
}
