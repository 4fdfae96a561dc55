// Package plugin implements the dynamically-loaded provider described in
// spec.md §6's plugin ABI, backed by Go's standard plugin package - the one
// place this module reaches for stdlib by necessity: no third-party
// library in the retrieved corpus, nor a portable one in the broader
// ecosystem, implements a cross-platform dlopen-style loader. Plugins are
// Linux .so files built with `go build -buildmode=plugin`.
package plugin

import (
	"errors"
	"fmt"
	stdplugin "plugin"

	"github.com/mridentity/ImDisk/backend"
)

// OpenSymbol is the exported symbol name a plugin must provide. Its type
// must be func(name string, readOnly bool) (backend.Handle, error); unlike
// backend.OpenFunc it takes a plain read-only bool, not backend.OpenOptions.
//
// This is the Go-native rendering of devio.c's four-callback ABI
// (open/read/write/close function pointers plus an out-parameter size):
// a Handle already bundles read/write/close/size behind one value, so the
// plugin only needs to hand back one thing instead of four.
const OpenSymbol = "Open"

// errSentinel is returned by Load when a plugin's Open signals failure
// without an error value, mirroring the all-ones sentinel handle in
// spec.md's ABI.
// Go plugins should simply return a non-nil error instead; this exists so
// a plugin returning (nil, nil) is still treated as a failure rather than
// a nil-handle success.
var errSentinel = errors.New("plugin: open returned no handle and no error")

// Load opens libPath, resolves its OpenSymbol, and invokes it against name.
// The plugin ABI itself is fixed at func(string, bool) (backend.Handle,
// error) - it has no sync knob, so opts.ForceSync is not and cannot be
// passed through; a plugin provider silently tolerates it, same as any
// other provider asked for a mode it has no way to honor.
func Load(libPath, entry, name string, opts backend.OpenOptions) (backend.Handle, error) {
	p, err := stdplugin.Open(libPath)
	if err != nil {
		return nil, fmt.Errorf("plugin: loading %s: %w", libPath, err)
	}
	symName := OpenSymbol
	if entry != "" {
		symName = entry
	}
	sym, err := p.Lookup(symName)
	if err != nil {
		return nil, fmt.Errorf("plugin: resolving %s in %s: %w", symName, libPath, err)
	}
	open, ok := sym.(func(string, bool) (backend.Handle, error))
	if !ok {
		return nil, fmt.Errorf("plugin: %s in %s has the wrong signature", symName, libPath)
	}
	h, err := open(name, opts.ReadOnly)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errSentinel
	}
	return h, nil
}
