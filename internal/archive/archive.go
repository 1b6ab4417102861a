// Package archive exposes a completed download as an opaque package handle.
// The archive's internal structure is not interpreted beyond opening it and
// listing its entry names.
package archive

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
)

// Package is an opaque handle over a downloaded package archive. It owns the
// underlying file until Close (or Discard) is called.
type Package struct {
	path string
	size int64
	zr   *zip.ReadCloser
}

// Open opens the archive at path as a package handle.
func Open(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening package archive: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		zr.Close()

		return nil, fmt.Errorf("inspecting package archive: %w", err)
	}

	return &Package{
		path: path,
		size: info.Size(),
		zr:   zr,
	}, nil
}

// Name returns the base name of the backing file.
func (p *Package) Name() string {
	return filepath.Base(p.path)
}

// Path returns the current location of the backing file.
func (p *Package) Path() string {
	return p.path
}

// Size returns the archive size in bytes.
func (p *Package) Size() int64 {
	return p.size
}

// Entries lists the archive entry names in archive order.
func (p *Package) Entries() []string {
	names := make([]string, 0, len(p.zr.File))
	for _, f := range p.zr.File {
		names = append(names, f.Name)
	}

	return names
}

// Promote moves the backing file to dest and reopens the handle there. The
// temporary download location is consumed in the process.
func (p *Package) Promote(dest string) error {
	if err := os.Rename(p.path, dest); err != nil {
		return fmt.Errorf("promoting package archive: %w", err)
	}

	p.path = dest

	zr, err := zip.OpenReader(dest)
	if err != nil {
		return fmt.Errorf("reopening promoted archive: %w", err)
	}

	p.zr.Close()
	p.zr = zr

	return nil
}

// Close releases the handle, leaving the backing file in place.
func (p *Package) Close() error {
	return p.zr.Close()
}

// Discard releases the handle and removes the backing file.
func (p *Package) Discard() error {
	p.zr.Close()

	return os.Remove(p.path)
}
