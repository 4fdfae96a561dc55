package devio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mridentity/ImDisk/backend"
	_ "github.com/mridentity/ImDisk/backend/aio"
	_ "github.com/mridentity/ImDisk/backend/file"
	"github.com/mridentity/ImDisk/backend/plugin"
	"github.com/mridentity/ImDisk/transport"
)

// Options captures the C7 bootstrap inputs, mirroring the CLI surface of
// spec.md §6: [--dll=lib;entry] [--drv] [--novhd] [-r] <comm> <image>
// [size|partno] [offset] [align] [bufsize].
type Options struct {
	DllPath  string // non-empty selects the plugin-backed provider
	DllEntry string
	NoVhd    bool
	ReadOnly bool

	// ForceSync requests O_SYNC/force-unit-access semantics from the
	// backing provider (spec.md §4.1). Ignored by providers with no way
	// to honor it (the plugin provider's ABI has no sync knob).
	ForceSync bool

	Comm  string
	Image string

	// SizeOrPartNo is either an explicit size string or a bare small
	// integer read as a 1-based partition index; zero value means
	// "unspecified, auto-detect."
	SizeOrPartNo string
	Offset       string
	Align        string
	BufSize      string

	// DefaultsFile, if set, is a YAML file supplying fallback values for
	// SizeOrPartNo, Offset, Align and BufSize (keys size, offset, align,
	// bufsize) when they are left unspecified on the command line.
	DefaultsFile string
}

// defaultsDoc is the shape of an optional YAML defaults file: a flat map of
// flag name to string value, applied before CLI-supplied values override it.
type defaultsDoc map[string]string

func loadDefaults(path string) (defaultsDoc, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devio: reading defaults file %s: %w", path, err)
	}
	var doc defaultsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("devio: parsing defaults file %s: %w", path, err)
	}
	return doc, nil
}

func applyDefaults(opts *Options, doc defaultsDoc) {
	if doc == nil {
		return
	}
	if opts.SizeOrPartNo == "" {
		opts.SizeOrPartNo = doc["size"]
	}
	if opts.Offset == "" {
		opts.Offset = doc["offset"]
	}
	if opts.Align == "" {
		opts.Align = doc["align"]
	}
	if opts.BufSize == "" {
		opts.BufSize = doc["bufsize"]
	}
}

const defaultBufferSize = 1 << 20 // 1 MiB, a reasonable initial working buffer

// Bootstrap performs the C7 startup sequence: resolve defaults, open the
// backing provider, probe for VHD, determine the geometry, resolve a
// partition if requested, open the transport, and return a ready-to-run
// Session.
func Bootstrap(opts Options, sink *Sink) (*Session, error) {
	if doc, err := loadDefaults(opts.DefaultsFile); err != nil {
		return nil, err
	} else {
		applyDefaults(&opts, doc)
	}

	h, err := openBacking(opts)
	if err != nil {
		return nil, Wrap(BackingIO, err)
	}

	var vhdCtx *Context
	if !opts.NoVhd {
		ctx, ok, err := Probe(h)
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		if ok {
			vhdCtx = ctx
			sink.Info("vhd mode engaged: virtual size=%d block size=%d unique id=%s", ctx.CurrentSize, ctx.BlockSize, ctx.Footer.UniqueID)
		}
	}

	physicalSize, err := physicalSizeOf(h, opts.Image)
	if err != nil {
		_ = h.Close()
		return nil, Wrap(BadFormat, err)
	}

	currentSize := physicalSize
	if vhdCtx != nil {
		currentSize = vhdCtx.CurrentSize
	}

	imageOffset := int64(0)
	fileSize := currentSize

	if opts.SizeOrPartNo != "" {
		if n, err := parsePartNo(opts.SizeOrPartNo); err == nil {
			off, size, perr := ResolvePartition(h, n, currentSize)
			if perr != nil {
				_ = h.Close()
				return nil, perr
			}
			imageOffset, fileSize = off, size
		} else if size, serr := ParseSizeOrSectorCount(opts.SizeOrPartNo); serr == nil {
			fileSize = size
		} else {
			_ = h.Close()
			return nil, fmt.Errorf("devio: could not interpret %q as a partition index or a size", opts.SizeOrPartNo)
		}
	}

	// Per Design Notes §9, an explicit offset argument is only consulted
	// when the partition-derived offset left image_offset at zero: a
	// partition selection and an explicit offset cannot coexist.
	if imageOffset == 0 && opts.Offset != "" {
		off, err := ParseSize(opts.Offset)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("devio: bad offset argument: %w", err)
		}
		imageOffset = off
	}

	if imageOffset+fileSize > currentSize {
		_ = h.Close()
		return nil, fmt.Errorf("devio: image_offset(%d)+file_size(%d) exceeds backing size(%d)", imageOffset, fileSize, currentSize)
	}

	align := uint64(1)
	if opts.Align != "" {
		a, err := ParseSize(opts.Align)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("devio: bad align argument: %w", err)
		}
		align = uint64(a)
	}

	bufSize := defaultBufferSize
	if opts.BufSize != "" {
		b, err := ParseSize(opts.BufSize)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("devio: bad bufsize argument: %w", err)
		}
		bufSize = int(b)
	}

	t, err := transport.Dial(opts.Comm, bufSize)
	if err != nil {
		_ = h.Close()
		return nil, Wrap(AllocFailure, err)
	}

	sink.Info("serving image_offset=%d file_size=%d read_only=%v align=%d", imageOffset, fileSize, opts.ReadOnly, align)

	img := &Image{Backing: h, Vhd: vhdCtx, ImageOffset: imageOffset, FileSize: fileSize}
	return NewSession(t, img, opts.ReadOnly, align, sink, bufSize), nil
}

func openBacking(opts Options) (backend.Handle, error) {
	openOpts := backend.OpenOptions{ReadOnly: opts.ReadOnly, ForceSync: opts.ForceSync}
	if opts.DllPath != "" {
		return plugin.Load(opts.DllPath, opts.DllEntry, opts.Image, openOpts)
	}
	return backend.Open(opts.Image, "file", openOpts)
}

// physicalSizeOf determines the backing store's physical size: the
// provider's own report takes priority, falling back to stat'ing the
// backing path directly (covers raw devices where Handle.Size is unknown).
func physicalSizeOf(h backend.Handle, path string) (int64, error) {
	if size, ok := h.Size(); ok {
		return size, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("devio: could not determine backing size for %s: %w", path, err)
	}
	return info.Size(), nil
}

func parsePartNo(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 || n > 511 || fmt.Sprintf("%d", n) != s {
		return 0, fmt.Errorf("devio: %q is not a bare partition index", s)
	}
	return n, nil
}
