package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var _ PhotoStore = (*Disk)(nil)

// Disk stores photos as files in a single directory.
type Disk struct {
	dir string
}

// NewDisk creates dir if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &Disk{dir: dir}, nil
}

// Dir is the directory photos are written to.
func (d *Disk) Dir() string {
	return d.dir
}

// Files is the read-only view served under /img/posts. It opens stored
// photos only: directories (whose listing would name every photo,
// drafts' included) and in-progress ".upload-" temp files are not found.
func (d *Disk) Files() http.FileSystem {
	return photoFiles{root: http.Dir(d.dir)}
}

type photoFiles struct {
	root http.FileSystem
}

func (f photoFiles) Open(name string) (http.File, error) {
	if base := path.Base(name); base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return nil, fs.ErrNotExist
	}

	file, err := f.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

func (d *Disk) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("storage: invalid photo name %q", name)
	}
	return filepath.Join(d.dir, name), nil
}

// Save writes the photo to a temp file and renames it into place, so a
// reader never sees a partial file.
func (d *Disk) Save(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error) {
	dst, err := d.path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(r, size)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: closing %s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("storage: moving %s into place: %w", name, err)
	}
	return name, nil
}

func (d *Disk) Remove(ctx context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: removing %s: %w", name, err)
	}
	return nil
}
