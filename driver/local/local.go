package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gobeaver/filehandle"
)

// Adapter provides a local filesystem implementation of filehandle.FileSystem
type Adapter struct {
	// root confines every path below it. Empty means paths are used as
	// given, relative ones resolving against the working directory.
	root string
}

// New creates a new local filesystem adapter. A non-empty root is made
// absolute and created if missing; every path is then resolved below it.
func New(root string) (*Adapter, error) {
	if root == "" {
		return &Adapter{}, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	return &Adapter{
		root: absRoot,
	}, nil
}

// Root returns the directory paths are confined to, or "" when unconfined.
func (a *Adapter) Root() string {
	return a.root
}

// resolve maps a handle path onto the host filesystem.
func (a *Adapter) resolve(op, path string) (string, error) {
	if a.root == "" {
		return filepath.Clean(path), nil
	}

	fullPath := filepath.Join(a.root, filepath.Clean(path))

	// Check if the path is under the root
	if !isPathUnderRoot(a.root, fullPath) {
		return "", &filehandle.PathError{
			Op:   op,
			Path: path,
			Err:  filehandle.ErrNotAllowed,
		}
	}
	return fullPath, nil
}

// mapError translates os errors into the filehandle sentinels, keeping the
// original error in the chain.
func mapError(op, path string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		err = fmt.Errorf("%w: %w", filehandle.ErrNotExist, err)
	case errors.Is(err, iofs.ErrPermission):
		err = fmt.Errorf("%w: %w", filehandle.ErrPermission, err)
	case errors.Is(err, syscall.EISDIR):
		err = fmt.Errorf("%w: %w", filehandle.ErrIsDir, err)
	}
	return &filehandle.PathError{Op: op, Path: path, Err: err}
}

// Stat implements filehandle.FileReader
func (a *Adapter) Stat(ctx context.Context, path string) (*filehandle.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("stat", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("stat", path, err)
	}

	// Get content type
	contentType := ""
	if !info.IsDir() {
		contentType = getContentType(fullPath)
	}

	fi := &filehandle.FileInfo{
		Name:        filepath.Base(path),
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		ContentType: contentType,
	}

	owner, createdAt := extractPlatformInfo(info)
	if owner != "" || createdAt != nil {
		fi.Metadata = make(map[string]string, 2)
		if owner != "" {
			fi.Metadata[MetadataOwner] = owner
		}
		if createdAt != nil {
			fi.Metadata[MetadataCreated] = createdAt.UTC().Format(time.RFC3339Nano)
		}
	}

	return fi, nil
}

// Metadata keys set by Stat where the platform exposes them.
const (
	MetadataOwner   = "owner"
	MetadataCreated = "created"
)

// Read implements filehandle.FileReader
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("read", path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, mapError("read", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapError("read", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, &filehandle.PathError{Op: "read", Path: path, Err: filehandle.ErrIsDir}
	}

	return f, nil
}

// OpenWrite implements filehandle.FileWriter. The file is created or
// truncated immediately; a missing parent directory is an error.
func (a *Adapter) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("openwrite", path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, mapError("openwrite", path, err)
	}
	return f, nil
}

// RemoveAll implements filehandle.FileWriter
func (a *Adapter) RemoveAll(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("removeall", path)
	if err != nil {
		return err
	}

	// Refuse to delete the root directory itself
	if a.root != "" && fullPath == a.root {
		return &filehandle.PathError{
			Op:   "removeall",
			Path: path,
			Err:  filehandle.ErrNotAllowed,
		}
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return mapError("removeall", path, err)
	}
	return nil
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// getContentType guesses from the name first and sniffs the file header
// only when the extension is not conclusive.
func getContentType(path string) string {
	if contentType := filehandle.GuessContentType(path, nil); contentType != filehandle.DefaultContentType {
		return contentType
	}

	file, err := os.Open(path)
	if err != nil {
		return filehandle.DefaultContentType
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := io.ReadFull(file, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return filehandle.DefaultContentType
	}
	return filehandle.GuessContentType(path, buffer[:n])
}

// Ensure Adapter implements filehandle.FileSystem and optional interfaces
var (
	_ filehandle.FileSystem = (*Adapter)(nil)
	_ filehandle.CanWatch   = (*Adapter)(nil)
)
