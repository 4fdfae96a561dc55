// Package backend defines the Backing Provider contract and the registry
// that lets devio pick a concrete provider (file, aio, plugin) by name.
package backend

import "fmt"

// Handle is a positional-I/O backing store: an open file, a loaded plugin
// session, or an async-io queue. Implementations are exclusively owned by
// whoever opened them and must tolerate systems where direct/sync flags
// passed at open time are silent no-ops.
type Handle interface {
	// ReadAt reads len(p) bytes starting at off. Short reads are returned
	// verbatim, not retried - the caller (the VHD translator or the
	// logical I/O dispatcher) decides whether a short read is an error.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes len(p) bytes starting at off.
	WriteAt(p []byte, off int64) (int, error)

	// Close releases the handle. Safe to call once.
	Close() error

	// Size reports the backing store's byte size if known at open time.
	// ok is false when the provider has no cheap way to know (the caller
	// falls back to an OS-level size probe).
	Size() (size int64, ok bool)
}

// OpenOptions carries the mode flags a provider's Open needs. ForceSync
// requests direct/force-unit-access semantics (spec.md §4.1); a provider
// that has no way to honor it (a dynamically-loaded plugin, whose ABI has
// no sync knob) is expected to silently tolerate it rather than fail.
type OpenOptions struct {
	ReadOnly  bool
	ForceSync bool
}

// OpenFunc opens a named backing store in the given mode.
type OpenFunc func(name string, opts OpenOptions) (Handle, error)

// Registry maps a provider name to its OpenFunc, mirroring the way the
// teacher's nbd.BackendMap lets each driver register itself via init().
var Registry = make(map[string]OpenFunc)

// Register should be called from a provider package's init().
func Register(name string, open OpenFunc) {
	Registry[name] = open
}

// Open looks up a registered provider by name and opens it.
func Open(name, provider string, opts OpenOptions) (Handle, error) {
	open, ok := Registry[provider]
	if !ok {
		return nil, fmt.Errorf("backend: no such provider %q", provider)
	}
	return open(name, opts)
}
