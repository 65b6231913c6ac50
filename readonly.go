package filehandle

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrReadOnly is returned when a write operation is attempted on a read-only filesystem.
var ErrReadOnly = fmt.Errorf("%w: filesystem is read-only", ErrNotAllowed)

// ============================================================================
// ReadOnlyFileSystem Decorator
// ============================================================================

// ReadOnlyFileSystem wraps a FileSystem to prevent all write operations.
// Handles bound to it can still read, stat, hash and watch, while Write,
// Ensure on a missing path, Empty, Remove and Move fail with ErrReadOnly.
//
// Example:
//
//	fs, _ := local.New("/data")
//	h := filehandle.New(filehandle.NewReadOnlyFileSystem(fs), "report.md")
//
//	text, _ := h.Text(ctx)          // works
//	_, err := h.WriteString(ctx, "") // err wraps ErrReadOnly
type ReadOnlyFileSystem struct {
	fs   FileSystem
	opts ReadOnlyOptions
}

// ReadOnlyOptions configures the ReadOnlyFileSystem behavior.
type ReadOnlyOptions struct {
	// AllowRemove permits RemoveAll in read-only mode.
	// Default: false
	AllowRemove bool

	// OnWriteAttempt is called when a write operation is attempted.
	// If this function returns nil, the write is allowed (use carefully).
	OnWriteAttempt func(op, path string) error
}

// ReadOnlyOption is a functional option for configuring ReadOnlyFileSystem.
type ReadOnlyOption func(*ReadOnlyOptions)

// WithAllowRemove allows removal in read-only mode.
func WithAllowRemove(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowRemove = allow
	}
}

// WithWriteAttemptHandler sets a custom handler for write attempts.
func WithWriteAttemptHandler(handler func(op, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.OnWriteAttempt = handler
	}
}

// NewReadOnlyFileSystem creates a read-only wrapper around a FileSystem.
func NewReadOnlyFileSystem(fs FileSystem, opts ...ReadOnlyOption) *ReadOnlyFileSystem {
	options := ReadOnlyOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &ReadOnlyFileSystem{
		fs:   fs,
		opts: options,
	}
}

// Unwrap returns the underlying FileSystem.
func (r *ReadOnlyFileSystem) Unwrap() FileSystem {
	return r.fs
}

// readOnlyError creates an appropriate error for write operations.
// A nil result means the operation may proceed.
func (r *ReadOnlyFileSystem) readOnlyError(op, path string) error {
	if r.opts.OnWriteAttempt != nil {
		if err := r.opts.OnWriteAttempt(op, path); err != nil {
			return &PathError{Op: op, Path: path, Err: err}
		}
		return nil
	}
	return &PathError{Op: op, Path: path, Err: ErrReadOnly}
}

// Stat delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return r.fs.Stat(ctx, path)
}

// Read delegates to the underlying filesystem.
func (r *ReadOnlyFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.fs.Read(ctx, path)
}

// OpenWrite is blocked.
func (r *ReadOnlyFileSystem) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := r.readOnlyError("openwrite", path); err != nil {
		return nil, err
	}
	return r.fs.OpenWrite(ctx, path)
}

// RemoveAll is blocked unless AllowRemove is set.
func (r *ReadOnlyFileSystem) RemoveAll(ctx context.Context, path string) error {
	if !r.opts.AllowRemove {
		if err := r.readOnlyError("removeall", path); err != nil {
			return err
		}
	}
	return r.fs.RemoveAll(ctx, path)
}

// Watch delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := r.fs.(CanWatch); ok {
		return watcher.Watch(ctx, pattern)
	}
	return nil, &PathError{Op: "watch", Path: pattern, Err: ErrNotSupported}
}

// Ensure ReadOnlyFileSystem implements FileSystem and optional interfaces
var (
	_ FileSystem = (*ReadOnlyFileSystem)(nil)
	_ CanWatch   = (*ReadOnlyFileSystem)(nil)
)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
