package filehandle

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrFileTooLarge is returned when a write stream exceeds MaxFileSize.
	ErrFileTooLarge = fmt.Errorf("%w: file size exceeds limit", ErrNotAllowed)
	// ErrExtensionNotAllowed is returned when a path's extension is rejected.
	ErrExtensionNotAllowed = fmt.Errorf("%w: file extension not allowed", ErrNotAllowed)
)

// WriteConstraints limits what may be written through a ValidatedFileSystem.
type WriteConstraints struct {
	// MaxFileSize is the largest content accepted, in bytes. Zero means no limit.
	MaxFileSize int64

	// AllowedExtensions, when non-empty, is the only set of extensions
	// that may be written (".txt", "csv", ...). Matching ignores case.
	AllowedExtensions []string

	// BlockedExtensions are never written, even when allowed.
	BlockedExtensions []string
}

// ValidatedFileSystem wraps a FileSystem and enforces WriteConstraints on
// every write stream. Reads, stats and removals pass through untouched.
//
// A stream that grows past MaxFileSize fails the write with ErrFileTooLarge
// and the partial file is removed.
type ValidatedFileSystem struct {
	fs          FileSystem
	constraints WriteConstraints
}

// NewValidatedFileSystem creates a new FileSystem with write validation.
func NewValidatedFileSystem(fs FileSystem, constraints WriteConstraints) *ValidatedFileSystem {
	return &ValidatedFileSystem{
		fs:          fs,
		constraints: constraints,
	}
}

// Unwrap returns the underlying FileSystem.
func (v *ValidatedFileSystem) Unwrap() FileSystem {
	return v.fs
}

// Constraints returns the constraints in force.
func (v *ValidatedFileSystem) Constraints() WriteConstraints {
	return v.constraints
}

// checkExtension applies the allow and block lists to path.
func (v *ValidatedFileSystem) checkExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))

	for _, blocked := range v.constraints.BlockedExtensions {
		if ext == normalizeExt(blocked) {
			return ErrExtensionNotAllowed
		}
	}

	if len(v.constraints.AllowedExtensions) == 0 {
		return nil
	}
	for _, allowed := range v.constraints.AllowedExtensions {
		if ext == normalizeExt(allowed) {
			return nil
		}
	}
	return ErrExtensionNotAllowed
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Stat delegates to the underlying filesystem.
func (v *ValidatedFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return v.fs.Stat(ctx, path)
}

// Read delegates to the underlying filesystem.
func (v *ValidatedFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return v.fs.Read(ctx, path)
}

// OpenWrite rejects disallowed extensions before touching the backend and
// caps the returned stream at MaxFileSize.
func (v *ValidatedFileSystem) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := v.checkExtension(path); err != nil {
		return nil, NewPathError("openwrite", path, err)
	}

	w, err := v.fs.OpenWrite(ctx, path)
	if err != nil {
		return nil, err
	}
	if v.constraints.MaxFileSize <= 0 {
		return w, nil
	}

	return &sizeLimitWriter{
		w:     w,
		limit: v.constraints.MaxFileSize,
		discard: func() error {
			return v.fs.RemoveAll(context.WithoutCancel(ctx), path)
		},
	}, nil
}

// RemoveAll delegates to the underlying filesystem.
func (v *ValidatedFileSystem) RemoveAll(ctx context.Context, path string) error {
	return v.fs.RemoveAll(ctx, path)
}

// Watch delegates to the underlying filesystem if supported.
func (v *ValidatedFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := v.fs.(CanWatch); ok {
		return watcher.Watch(ctx, pattern)
	}
	return nil, NewPathError("watch", pattern, ErrNotSupported)
}

var (
	_ FileSystem = (*ValidatedFileSystem)(nil)
	_ CanWatch   = (*ValidatedFileSystem)(nil)
)

// sizeLimitWriter fails once more than limit bytes have been written.
type sizeLimitWriter struct {
	w       io.WriteCloser
	limit   int64
	n       int64
	err     error
	discard func() error
}

func (l *sizeLimitWriter) Write(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.n+int64(len(p)) > l.limit {
		l.err = fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.limit)
		return 0, l.err
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}

// Close commits the underlying stream, or discards it if the limit was hit.
func (l *sizeLimitWriter) Close() error {
	if l.err != nil {
		return l.CloseWithError(l.err)
	}
	return l.w.Close()
}

// CloseWithError abandons the write and removes the partial file when the
// failure was the size limit.
func (l *sizeLimitWriter) CloseWithError(cause error) error {
	var err error
	if cw, ok := l.w.(closeWithError); ok {
		err = cw.CloseWithError(cause)
	} else {
		err = l.w.Close()
	}

	if l.err == nil {
		return err
	}
	if rmErr := l.discard(); rmErr != nil && err == nil {
		err = rmErr
	}
	if err == nil {
		err = l.err
	}
	return err
}
