package filehandle

import (
	"context"
	"io"
	"time"
)

// FileInfo represents file/directory metadata
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	ModTime     time.Time
	IsDir       bool
	ContentType string
	Metadata    map[string]string
}

// IsFile reports whether the entry is a regular file.
func (fi *FileInfo) IsFile() bool {
	return fi != nil && !fi.IsDir
}

// ============================================================================
// Core Interfaces (Interface Segregation)
// ============================================================================

// FileReader provides the read-side primitives a Handle is built on.
type FileReader interface {
	// Stat returns file/directory metadata.
	// Fails with ErrNotExist when nothing is at path.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// Read opens a fresh stream over the file content.
	// The caller owns the returned stream and must close it.
	Read(ctx context.Context, path string) (io.ReadCloser, error)
}

// FileWriter provides the write-side primitives a Handle is built on.
type FileWriter interface {
	// OpenWrite opens a fresh stream that replaces the file content.
	// The file is created or truncated when the stream is opened; parent
	// directories are never created. Content is only guaranteed to be
	// visible to a subsequent Read once Close has returned.
	OpenWrite(ctx context.Context, path string) (io.WriteCloser, error)

	// RemoveAll deletes path and anything below it.
	// Removing a path that does not exist is not an error.
	RemoveAll(ctx context.Context, path string) error
}

// FileSystem provides full read-write access for handles.
type FileSystem interface {
	FileReader
	FileWriter
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// Use type assertion to check if a driver supports a capability:
//
//	if watcher, ok := fs.(CanWatch); ok {
//	    token, err := watcher.Watch(ctx, "logs/*.log")
//	}

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	// ChecksumMD5 is the MD5 hash algorithm (128-bit, fast but not cryptographically secure)
	ChecksumMD5 ChecksumAlgorithm = "md5"
	// ChecksumSHA1 is the SHA-1 hash algorithm (160-bit, legacy)
	ChecksumSHA1 ChecksumAlgorithm = "sha1"
	// ChecksumSHA256 is the SHA-256 hash algorithm (256-bit, recommended)
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	// ChecksumSHA512 is the SHA-512 hash algorithm (512-bit, most secure)
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
	// ChecksumCRC32 is the CRC32 checksum (32-bit, fastest, for integrity only)
	ChecksumCRC32 ChecksumAlgorithm = "crc32"
	// ChecksumXXHash is the xxHash algorithm (64-bit, extremely fast)
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
	// ChecksumBLAKE3 is the BLAKE3 hash algorithm (256-bit, fast and secure)
	ChecksumBLAKE3 ChecksumAlgorithm = "blake3"
)

// ============================================================================
// File Watching Interface (ChangeToken Pattern)
// ============================================================================

// ChangeToken represents a change notification token.
//
// Consumers can either:
// 1. Poll HasChanged() periodically
// 2. Register a callback via RegisterChangeCallback()
type ChangeToken interface {
	// HasChanged returns true if a change has occurred.
	// Once true, it remains true (tokens are single-use).
	HasChanged() bool

	// ActiveChangeCallbacks indicates if the token proactively raises callbacks.
	// If false, consumers should poll HasChanged instead.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback to be invoked when change occurs.
	// Returns a function to unregister the callback.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CanWatch indicates the filesystem supports file change notifications.
type CanWatch interface {
	// Watch creates a change token for the specified glob pattern.
	// The token signals when any matching file is created, modified, or deleted.
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}
