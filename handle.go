package filehandle

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Handle is bound to one path on one FileSystem.
//
// A Handle is a locator, not a cache: it holds no content, no open streams
// and no metadata. Every method queries or opens the underlying file anew,
// so successive observations always reflect the current state. Operations
// on the same path are not serialized; callers that issue overlapping
// writes must order them themselves.
type Handle struct {
	fs   FileSystem
	path string
	opts Options
}

// New binds a handle to path. No I/O is performed and construction never
// fails; the path may be relative, absolute or point at nothing at all.
func New(fsys FileSystem, path string, options ...Option) *Handle {
	return &Handle{
		fs:   fsys,
		path: path,
		opts: processOptions(options...),
	}
}

// sibling returns a handle on the same filesystem with the same options.
func (h *Handle) sibling(path string) *Handle {
	return &Handle{fs: h.fs, path: path, opts: h.opts}
}

// Path returns the path the handle is bound to.
func (h *Handle) Path() string {
	return h.path
}

func (h *Handle) String() string {
	return h.path
}

// FileSystem returns the filesystem the handle operates on.
func (h *Handle) FileSystem() FileSystem {
	return h.fs
}

// Name returns the base name of the path without its extension.
// For "a/b/report.final.md" it is "report.final".
func (h *Handle) Name() string {
	name, _ := splitName(h.path)
	return name
}

// Ext returns the extension of the path including the leading dot, or ""
// if there is none. Leading dots of hidden files do not start an extension.
func (h *Handle) Ext() string {
	_, ext := splitName(h.path)
	return ext
}

// IsAbsolute reports whether the path is absolute.
func (h *Handle) IsAbsolute() bool {
	return filepath.IsAbs(h.path)
}

func splitName(p string) (name, ext string) {
	if p == "" {
		return "", ""
	}
	base := filepath.Base(p)
	if base == string(filepath.Separator) {
		return "", ""
	}
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || base == ".." {
		return base, ""
	}
	return base[:idx], base[idx:]
}

// samePath reports whether other names the same file on the same filesystem.
func (h *Handle) samePath(other *Handle) bool {
	return sameFileSystem(h.fs, other.fs) && filepath.Clean(h.path) == filepath.Clean(other.path)
}

// sameFileSystem compares a and b without panicking on filesystems of a
// non-comparable type. Two values of such a type cannot be told apart and
// count as the same filesystem.
func sameFileSystem(a, b FileSystem) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil || !ta.Comparable() {
		return true
	}
	return a == b
}

// ============================================================================
// Metadata
// ============================================================================

// Stat queries the filesystem for the file's metadata. The result is never
// cached. Fails with ErrNotExist when nothing is at the path.
func (h *Handle) Stat(ctx context.Context) (*FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return h.fs.Stat(ctx, h.path)
}

// IsFile reports whether the path currently names a regular file.
// Any failure to query the filesystem yields false.
func (h *Handle) IsFile(ctx context.Context) bool {
	info, err := h.Stat(ctx)
	if err != nil {
		return false
	}
	return info.IsFile()
}

// Exists reports whether anything is currently at the path.
// Any failure to query the filesystem yields false.
func (h *Handle) Exists(ctx context.Context) bool {
	_, err := h.Stat(ctx)
	return err == nil
}

// Size returns the current size in bytes. Unlike Exists and IsFile it
// reports query failures as errors.
func (h *Handle) Size(ctx context.Context) (int64, error) {
	info, err := h.Stat(ctx)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// ============================================================================
// Logging
// ============================================================================

func (h *Handle) logOp(op string, start time.Time, err error, fields logrus.Fields) {
	entry := h.opts.Logger.WithFields(logrus.Fields{
		"op":       op,
		"path":     h.path,
		"duration": time.Since(start),
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	if err != nil {
		entry.WithError(err).Debug("filehandle: operation failed")
		return
	}
	entry.Debug("filehandle: operation completed")
}
