package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/filehandle"
	"github.com/gobwas/glob"
)

// ErrNoSpace is returned when committing a write would exceed Config.MaxSize.
var ErrNoSpace = errors.New("memory: storage limit exceeded")

// memoryFile represents a file stored in memory
type memoryFile struct {
	content     []byte
	contentType string
	modTime     time.Time
}

// memoryDir represents a directory in memory
type memoryDir struct {
	modTime time.Time
}

// watchEntry represents a single watch subscription
type watchEntry struct {
	matcher glob.Glob
	token   *filehandle.CallbackChangeToken
}

// Adapter provides an in-memory implementation of filehandle.FileSystem.
// Paths are slash-separated; a leading slash or "./" is ignored, so "/a.txt",
// "./a.txt" and "a.txt" name the same file. Directories exist only once
// created with CreateDir and are never created implicitly by writes.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size

	// Watch support
	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory filesystem adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	a := &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    make(map[string]*memoryDir),
		maxSize: maxSize,
	}

	// Create root directory
	a.dirs[""] = &memoryDir{modTime: time.Now()}

	return a
}

// Stat implements filehandle.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*filehandle.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	// Check if it's a file
	if file, exists := a.files[p]; exists {
		return &filehandle.FileInfo{
			Name:        path.Base(p),
			Path:        p,
			Size:        int64(len(file.content)),
			ModTime:     file.modTime,
			IsDir:       false,
			ContentType: file.contentType,
		}, nil
	}

	// Check if it's a directory
	if dir, exists := a.dirs[p]; exists {
		return &filehandle.FileInfo{
			Name:    path.Base(p),
			Path:    p,
			ModTime: dir.modTime,
			IsDir:   true,
		}, nil
	}

	return nil, &filehandle.PathError{
		Op:   "stat",
		Path: p,
		Err:  filehandle.ErrNotExist,
	}
}

// Read implements filehandle.FileReader. The stream reads a snapshot of
// the content taken when it is opened.
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[p]
	if !exists {
		if _, isDir := a.dirs[p]; isDir {
			return nil, &filehandle.PathError{Op: "read", Path: p, Err: filehandle.ErrIsDir}
		}
		return nil, &filehandle.PathError{
			Op:   "read",
			Path: p,
			Err:  filehandle.ErrNotExist,
		}
	}

	// Content slices are replaced, never mutated, so sharing is safe
	return io.NopCloser(bytes.NewReader(file.content)), nil
}

// OpenWrite implements filehandle.FileWriter. The file is truncated when
// the stream opens and the written content becomes visible on Close.
func (a *Adapter) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	if !isValidPath(p) {
		return nil, &filehandle.PathError{
			Op:   "openwrite",
			Path: p,
			Err:  filehandle.ErrNotAllowed,
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[p]; isDir {
		return nil, &filehandle.PathError{Op: "openwrite", Path: p, Err: filehandle.ErrIsDir}
	}
	if _, exists := a.dirs[parentDir(p)]; !exists {
		return nil, &filehandle.PathError{
			Op:   "openwrite",
			Path: p,
			Err:  fmt.Errorf("%w: parent directory %q", filehandle.ErrNotExist, parentDir(p)),
		}
	}

	// Truncate
	if existing, exists := a.files[p]; exists {
		a.size -= int64(len(existing.content))
	}
	a.files[p] = &memoryFile{
		contentType: filehandle.GuessContentType(p, nil),
		modTime:     time.Now(),
	}

	go a.notifyWatchers(p)

	return &writer{adapter: a, path: p}, nil
}

// RemoveAll implements filehandle.FileWriter
func (a *Adapter) RemoveAll(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)

	if p == "" {
		return &filehandle.PathError{
			Op:   "removeall",
			Path: p,
			Err:  filehandle.ErrNotAllowed,
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Collect deleted file paths for notification
	var deletedPaths []string

	if file, exists := a.files[p]; exists {
		a.size -= int64(len(file.content))
		delete(a.files, p)
		deletedPaths = append(deletedPaths, p)
	}

	if _, exists := a.dirs[p]; exists {
		prefixWithSlash := p + "/"

		// Delete all files under this directory
		for filePath, file := range a.files {
			if strings.HasPrefix(filePath, prefixWithSlash) {
				a.size -= int64(len(file.content))
				deletedPaths = append(deletedPaths, filePath)
				delete(a.files, filePath)
			}
		}

		// Delete all subdirectories
		for dirPath := range a.dirs {
			if strings.HasPrefix(dirPath, prefixWithSlash) || dirPath == p {
				delete(a.dirs, dirPath)
			}
		}
		deletedPaths = append(deletedPaths, p)
	}

	// Notify watchers of all deleted files
	if len(deletedPaths) > 0 {
		go func() {
			for _, deleted := range deletedPaths {
				a.notifyWatchers(deleted)
			}
		}()
	}

	return nil
}

// CreateDir creates a directory and any missing parents.
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)

	if !isValidPath(p) {
		return &filehandle.PathError{
			Op:   "createdir",
			Path: p,
			Err:  filehandle.ErrNotAllowed,
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for dir := p; dir != ""; dir = parentDir(dir) {
		if _, exists := a.files[dir]; exists {
			return &filehandle.PathError{
				Op:   "createdir",
				Path: p,
				Err:  fmt.Errorf("%q is a file", dir),
			}
		}
	}

	for dir := p; dir != ""; dir = parentDir(dir) {
		if _, exists := a.dirs[dir]; !exists {
			a.dirs[dir] = &memoryDir{modTime: time.Now()}
		}
	}

	return nil
}

// Clear removes all files and directories from the memory filesystem
// Useful for testing cleanup
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = make(map[string]*memoryDir)
	a.size = 0

	// Recreate root directory
	a.dirs[""] = &memoryDir{modTime: time.Now()}
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// commit replaces the content of p with data.
func (a *Adapter) commit(p string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var oldSize int64
	if existing, exists := a.files[p]; exists {
		oldSize = int64(len(existing.content))
	}

	// Check max size limit
	newSize := a.size - oldSize + int64(len(data))
	if a.maxSize > 0 && newSize > a.maxSize {
		return &filehandle.PathError{
			Op:   "write",
			Path: p,
			Err:  ErrNoSpace,
		}
	}

	a.files[p] = &memoryFile{
		content:     data,
		contentType: filehandle.GuessContentType(p, data),
		modTime:     time.Now(),
	}
	a.size = newSize

	// Notify watchers of the change
	go a.notifyWatchers(p)

	return nil
}

// writer buffers a write stream until Close.
type writer struct {
	adapter *Adapter
	path    string
	buf     bytes.Buffer
	closed  bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, &filehandle.PathError{Op: "write", Path: w.path, Err: io.ErrClosedPipe}
	}
	return w.buf.Write(p)
}

// Close commits the buffered content.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.adapter.commit(w.path, bytes.Clone(w.buf.Bytes()))
}

// CloseWithError discards the buffered content; the file stays truncated.
func (w *writer) CloseWithError(error) error {
	w.closed = true
	w.buf.Reset()
	return nil
}

// parentDir returns the normalized parent of a normalized path.
func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// normalizePath normalizes a file path
func normalizePath(p string) string {
	p = strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// isValidPath checks if a path is valid (no directory traversal)
func isValidPath(p string) bool {
	return p != ".." && !strings.HasPrefix(p, "../")
}

// Ensure Adapter implements interfaces
var (
	_ filehandle.FileSystem = (*Adapter)(nil)
	_ filehandle.CanWatch   = (*Adapter)(nil)
)
