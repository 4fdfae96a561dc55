package devio

import "github.com/mridentity/ImDisk/backend"

// Image is the C4 logical I/O dispatcher: it applies the image base offset
// and routes each request either through the VHD translator or directly to
// the backing provider.
type Image struct {
	Backing     backend.Handle
	Vhd         *Context // nil unless VHD mode is engaged
	ImageOffset int64
	FileSize    int64
}

// ReadAt reads up to len(p) bytes at logical offset off, returning the
// number of bytes actually transferred.
func (img *Image) ReadAt(p []byte, off int64) (int64, error) {
	if off+int64(len(p)) > img.FileSize {
		return 0, nil
	}
	abs := img.ImageOffset + off
	if img.Vhd != nil {
		return img.Vhd.Read(img.Backing, p, abs, int64(len(p)))
	}
	n, err := img.Backing.ReadAt(p, abs)
	if err != nil {
		return int64(n), Wrap(BackingIO, err)
	}
	return int64(n), nil
}

// WriteAt writes p at logical offset off, returning the number of bytes
// actually transferred.
func (img *Image) WriteAt(p []byte, off int64) (int64, error) {
	abs := img.ImageOffset + off
	if img.Vhd != nil {
		return img.Vhd.Write(img.Backing, p, abs, int64(len(p)))
	}
	n, err := img.Backing.WriteAt(p, abs)
	if err != nil {
		return int64(n), Wrap(BackingIO, err)
	}
	return int64(n), nil
}
