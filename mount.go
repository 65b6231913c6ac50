package filehandle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrMountNotFound is returned when no mount point matches the path
	ErrMountNotFound = fmt.Errorf("%w: no mount point found for path", ErrNotExist)
	// ErrMountExists is returned when trying to mount at an existing path
	ErrMountExists = errors.New("mount point already exists")
	// ErrEmptyMountPath is returned when the mount path is empty
	ErrEmptyMountPath = fmt.Errorf("%w: mount path cannot be empty", ErrInvalidArgument)
	// ErrNilDriver is returned when trying to mount a nil driver
	ErrNilDriver = fmt.Errorf("%w: driver cannot be nil", ErrInvalidArgument)
)

// MountManager routes paths to several filesystems mounted under virtual
// prefixes. It is itself a FileSystem, so handles bound to it can copy or
// move content between backends:
//
//	mounts := filehandle.NewMountManager()
//	mounts.Mount("/local", localFS)
//	mounts.Mount("/cloud", s3FS)
//
//	h := filehandle.New(mounts, "/local/report.pdf")
//	_, err := h.Copy(ctx, "/cloud/archive/report.pdf")
//
// Nested mounts are resolved by longest prefix.
type MountManager struct {
	mu     sync.RWMutex
	mounts map[string]FileSystem
	// sorted mount paths for longest-prefix matching
	sortedPaths []string
}

// NewMountManager creates a new mount manager instance.
func NewMountManager() *MountManager {
	return &MountManager{
		mounts: make(map[string]FileSystem),
	}
}

// Mount attaches a filesystem at the specified virtual path.
func (m *MountManager) Mount(mountPath string, fs FileSystem) error {
	if fs == nil {
		return ErrNilDriver
	}

	mountPath = normalizeMountPath(mountPath)
	if mountPath == "" {
		return ErrEmptyMountPath
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; exists {
		return fmt.Errorf("%w: %s", ErrMountExists, mountPath)
	}

	m.mounts[mountPath] = fs
	m.updateSortedPaths()

	return nil
}

// Unmount removes the filesystem at the specified path. Handles already
// bound to paths below it fail with ErrMountNotFound from then on.
func (m *MountManager) Unmount(mountPath string) error {
	mountPath = normalizeMountPath(mountPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; !exists {
		return fmt.Errorf("%w: %s", ErrMountNotFound, mountPath)
	}

	delete(m.mounts, mountPath)
	m.updateSortedPaths()

	return nil
}

// MountPaths returns all mount paths, longest first.
func (m *MountManager) MountPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, len(m.sortedPaths))
	copy(result, m.sortedPaths)
	return result
}

// GetMount returns the filesystem mounted at exactly mountPath.
func (m *MountManager) GetMount(mountPath string) (FileSystem, error) {
	mountPath = normalizeMountPath(mountPath)

	m.mu.RLock()
	defer m.mu.RUnlock()

	fs, exists := m.mounts[mountPath]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMountNotFound, mountPath)
	}
	return fs, nil
}

// resolve finds the mount and the mount-relative path for a virtual path.
func (m *MountManager) resolve(op, virtualPath string) (FileSystem, string, error) {
	absPath := normalizeMountPath(virtualPath)
	if absPath == "" {
		return nil, "", NewPathError(op, virtualPath, ErrEmptyMountPath)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mountPath := range m.sortedPaths {
		if mountPath == "/" || absPath == mountPath || strings.HasPrefix(absPath, mountPath+"/") {
			relativePath := strings.TrimPrefix(absPath, mountPath)
			relativePath = strings.TrimPrefix(relativePath, "/")
			return m.mounts[mountPath], relativePath, nil
		}
	}

	return nil, "", NewPathError(op, virtualPath, ErrMountNotFound)
}

// updateSortedPaths must be called with the lock held.
func (m *MountManager) updateSortedPaths() {
	paths := make([]string, 0, len(m.mounts))
	for p := range m.mounts {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
	m.sortedPaths = paths
}

// normalizeMountPath ensures the path starts with "/" and has no trailing slash.
func normalizeMountPath(p string) string {
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// ============================================================================
// FileSystem Interface Implementation
// ============================================================================

// Stat routes to the mount owning filePath.
func (m *MountManager) Stat(ctx context.Context, filePath string) (*FileInfo, error) {
	fs, relativePath, err := m.resolve("stat", filePath)
	if err != nil {
		return nil, err
	}
	info, err := fs.Stat(ctx, relativePath)
	if err != nil {
		return nil, err
	}

	// Report the virtual path, not the backend one
	virtual := *info
	virtual.Path = filePath
	return &virtual, nil
}

// Read routes to the mount owning filePath.
func (m *MountManager) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	fs, relativePath, err := m.resolve("read", filePath)
	if err != nil {
		return nil, err
	}
	return fs.Read(ctx, relativePath)
}

// OpenWrite routes to the mount owning filePath.
func (m *MountManager) OpenWrite(ctx context.Context, filePath string) (io.WriteCloser, error) {
	fs, relativePath, err := m.resolve("openwrite", filePath)
	if err != nil {
		return nil, err
	}
	return fs.OpenWrite(ctx, relativePath)
}

// RemoveAll routes to the mount owning filePath. Removing a mount point
// itself is refused by the backend like any root removal.
func (m *MountManager) RemoveAll(ctx context.Context, filePath string) error {
	fs, relativePath, err := m.resolve("removeall", filePath)
	if err != nil {
		if errors.Is(err, ErrMountNotFound) {
			return nil
		}
		return err
	}
	return fs.RemoveAll(ctx, relativePath)
}

// Watch routes the pattern to the owning mount when that backend supports
// watching. The mount prefix of pattern must be literal.
func (m *MountManager) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	fs, relativePattern, err := m.resolve("watch", pattern)
	if err != nil {
		return nil, err
	}
	watcher, ok := fs.(CanWatch)
	if !ok {
		return nil, NewPathError("watch", pattern, ErrNotSupported)
	}
	return watcher.Watch(ctx, relativePattern)
}

var (
	_ FileSystem = (*MountManager)(nil)
	_ CanWatch   = (*MountManager)(nil)
)
