// Package billy adapts any go-billy filesystem to filehandle.FileSystem.
//
// It brings go-billy's in-memory (memfs) and chrooted OS (osfs) backends, as
// well as any third-party billy implementation, under the same handle API.
// Billy does not emit change events, so handles on this driver watch by
// polling.
package billy

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gobeaver/filehandle"
)

// Adapter implements filehandle.FileSystem on top of a billy.Filesystem.
type Adapter struct {
	fs billy.Filesystem
}

// New wraps the given billy filesystem.
func New(fsys billy.Filesystem) *Adapter {
	return &Adapter{fs: fsys}
}

// NewInMemory creates an adapter over a fresh memfs.
func NewInMemory() *Adapter {
	return New(memfs.New())
}

// NewOS creates an adapter over an osfs rooted at root.
func NewOS(root string) *Adapter {
	return New(osfs.New(root))
}

// Raw returns the underlying go-billy filesystem.
func (a *Adapter) Raw() billy.Filesystem {
	return a.fs
}

// mapError wraps a billy failure, translating the os sentinels.
func mapError(op, name string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		err = fmt.Errorf("%w: billy: %s %q: %w", filehandle.ErrNotExist, op, name, err)
	case errors.Is(err, iofs.ErrPermission):
		err = fmt.Errorf("%w: billy: %s %q: %w", filehandle.ErrPermission, op, name, err)
	default:
		err = fmt.Errorf("billy: %s %q: %w", op, name, err)
	}
	return &filehandle.PathError{Op: op, Path: name, Err: err}
}

// Stat implements filehandle.FileReader
func (a *Adapter) Stat(ctx context.Context, name string) (*filehandle.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	info, err := a.fs.Stat(name)
	if err != nil {
		return nil, mapError("stat", name, err)
	}

	fi := &filehandle.FileInfo{
		Name:    info.Name(),
		Path:    name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !fi.IsDir {
		fi.ContentType = filehandle.GuessContentType(name, nil)
	}
	return fi, nil
}

// Read implements filehandle.FileReader
func (a *Adapter) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	info, err := a.fs.Stat(name)
	if err != nil {
		return nil, mapError("read", name, err)
	}
	if info.IsDir() {
		return nil, &filehandle.PathError{Op: "read", Path: name, Err: filehandle.ErrIsDir}
	}

	f, err := a.fs.Open(name)
	if err != nil {
		return nil, mapError("read", name, err)
	}
	return f, nil
}

// OpenWrite implements filehandle.FileWriter. Billy backends create parent
// directories on their own, so the parent is checked first.
func (a *Adapter) OpenWrite(ctx context.Context, name string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if dir := parent(name); dir != "" {
		info, err := a.fs.Stat(dir)
		if err != nil {
			return nil, mapError("openwrite", name, err)
		}
		if !info.IsDir() {
			return nil, mapError("openwrite", name, fmt.Errorf("parent %q is not a directory", dir))
		}
	}

	if info, err := a.fs.Stat(name); err == nil && info.IsDir() {
		return nil, &filehandle.PathError{Op: "openwrite", Path: name, Err: filehandle.ErrIsDir}
	}

	f, err := a.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, mapError("openwrite", name, err)
	}
	return f, nil
}

// RemoveAll implements filehandle.FileWriter
func (a *Adapter) RemoveAll(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := util.RemoveAll(a.fs, name); err != nil {
		return mapError("removeall", name, err)
	}
	return nil
}

// MkdirAll creates a directory and any missing parents.
func (a *Adapter) MkdirAll(ctx context.Context, dir string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := a.fs.MkdirAll(dir, 0755); err != nil {
		return mapError("mkdirall", dir, err)
	}
	return nil
}

// parent returns the parent directory of name, or "" at the top level.
func parent(name string) string {
	dir := path.Dir(strings.ReplaceAll(name, "\\", "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

var _ filehandle.FileSystem = (*Adapter)(nil)
