package filehandle

import (
	"errors"
	"fmt"
)

// Common filesystem errors
var (
	ErrNotExist        = errors.New("file does not exist")
	ErrPermission      = errors.New("permission denied")
	ErrIsDir           = errors.New("is a directory")
	ErrIO              = errors.New("i/o error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
	ErrNotAllowed      = errors.New("operation not allowed")
	ErrOrphanedCopy    = errors.New("copied but source not removed")
)

// PathError records an error and the operation and file path that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError creates a PathError for op on path.
func NewPathError(op, path string, err error) *PathError {
	return &PathError{Op: op, Path: path, Err: err}
}

// WrapPathErr wraps err in a PathError, leaving nil untouched.
func WrapPathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewPathError(op, path, err)
}

// ioError classifies a stream-level failure as ErrIO while keeping the
// cause matchable through errors.Is/As.
func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIO) {
		return NewPathError(op, path, err)
	}
	return NewPathError(op, path, fmt.Errorf("%w: %w", ErrIO, err))
}

// MoveError reports a move whose copy succeeded but whose source could not
// be removed. The destination holds a complete copy and the source is still
// in place.
type MoveError struct {
	Src string
	Dst string
	Err error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s -> %s: %v: %v", e.Src, e.Dst, ErrOrphanedCopy, e.Err)
}

// Unwrap exposes both the orphan marker and the removal failure.
func (e *MoveError) Unwrap() []error {
	return []error{ErrOrphanedCopy, e.Err}
}

// IsNotExist reports whether an error indicates that a file or directory
// does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsPermission reports whether an error indicates that permission is denied
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsIOError reports whether an error is a stream-level failure.
func IsIOError(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsOrphanedCopy reports whether a move left a copy behind.
func IsOrphanedCopy(err error) bool {
	return errors.Is(err, ErrOrphanedCopy)
}
