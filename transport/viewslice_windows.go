//go:build windows

package transport

import "unsafe"

// unsafeSliceFromView turns a mapped-view base address into a byte slice of
// the given length. The mapping's lifetime is owned by the caller; this
// performs no copy.
func unsafeSliceFromView(addr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}
