package cartridge

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Cartridge is an open Common Cartridge: either an .imscc/.zip archive or a
// directory it was extracted to. Member names are slash-separated paths
// relative to the cartridge root.
type Cartridge struct {
	Name string

	fsys   fs.FS
	closer io.Closer
}

// Open opens a cartridge archive or an extracted cartridge directory.
func Open(p string) (*Cartridge, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("open cartridge: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	if info.IsDir() {
		return &Cartridge{Name: name, fsys: os.DirFS(p)}, nil
	}
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open cartridge %s: %w", p, err)
	}
	return &Cartridge{Name: name, fsys: zr, closer: zr}, nil
}

// FromFS wraps an existing filesystem as a cartridge. Used by tests and by
// callers that already hold extracted content.
func FromFS(name string, fsys fs.FS) *Cartridge {
	return &Cartridge{Name: name, fsys: fsys}
}

func (c *Cartridge) Open(name string) (fs.File, error) {
	return c.fsys.Open(path.Clean(name))
}

func (c *Cartridge) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(c.fsys, path.Clean(name))
}

// Exists reports whether name is a regular file in the cartridge.
func (c *Cartridge) Exists(name string) bool {
	info, err := fs.Stat(c.fsys, path.Clean(name))
	return err == nil && info.Mode().IsRegular()
}

func (c *Cartridge) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
