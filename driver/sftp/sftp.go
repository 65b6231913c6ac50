// Package sftp provides an SFTP implementation of filehandle.FileSystem.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/gobeaver/filehandle"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Adapter provides an SFTP implementation of filehandle.FileSystem.
//
// Write streams go straight to the remote file, which is truncated when the
// stream opens. Lost connections are re-established on the next call when
// the adapter dialed them itself.
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key
	// KnownHostsFile verifies the server key. Empty accepts any host key.
	KnownHostsFile string
	BasePath       string
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the base path for SFTP operations
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// New dials the server and creates a new SFTP filesystem adapter
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		config:   cfg,
		basePath: cfg.BasePath,
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	// Establish connection
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if err := adapter.connect(); err != nil {
		return nil, err
	}

	return adapter, nil
}

// NewWithClient wraps an already connected client. The adapter never
// reconnects it.
func NewWithClient(client *sftp.Client, options ...AdapterOption) *Adapter {
	adapter := &Adapter{client: client}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

// connect establishes SSH and SFTP connections. Must be called with the
// lock held.
func (a *Adapter) connect() error {
	// Build SSH config
	sshConfig := &ssh.ClientConfig{
		User:            a.config.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	if a.config.KnownHostsFile != "" {
		callback, err := knownhosts.New(a.config.KnownHostsFile)
		if err != nil {
			return fmt.Errorf("failed to load known hosts: %w", err)
		}
		sshConfig.HostKeyCallback = callback
	}

	// Add authentication method
	if len(a.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.config.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	if a.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(a.config.Password))
	}

	if len(sshConfig.Auth) == 0 {
		return fmt.Errorf("no authentication method provided")
	}

	// Connect to SSH
	port := a.config.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", a.config.Host, port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	// Create SFTP client
	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = sftpClient

	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}

	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}

	return errors.Join(errs...)
}

// conn returns a live client, reconnecting dialed connections that dropped.
func (a *Adapter) conn(op, filePath string) (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil && a.sshConn != nil {
		// Test connection with a simple operation
		if _, err := a.client.Getwd(); err != nil {
			a.client.Close()
			a.sshConn.Close()
			a.client, a.sshConn = nil, nil
		}
	}

	if a.client == nil {
		if a.config.Host == "" {
			return nil, filehandle.WrapPathErr(op, filePath, errors.New("sftp: client is closed"))
		}
		if err := a.connect(); err != nil {
			return nil, filehandle.WrapPathErr(op, filePath, err)
		}
	}
	return a.client, nil
}

// fullPath returns the full path combining base path and relative path
func (a *Adapter) fullPath(relativePath string) string {
	cleanPath := path.Clean(strings.ReplaceAll(relativePath, "\\", "/"))
	if a.basePath == "" {
		return cleanPath
	}
	return path.Join(a.basePath, cleanPath)
}

// isPathSafe checks if the path is safe (doesn't escape base path)
func (a *Adapter) isPathSafe(relativePath string) bool {
	full := a.fullPath(relativePath)
	if a.basePath == "" {
		return full != ".." && !strings.HasPrefix(full, "../")
	}
	base := path.Clean(a.basePath)
	return full == base || strings.HasPrefix(full, strings.TrimSuffix(base, "/")+"/")
}

// isRoot reports whether the path names the adapter root.
func (a *Adapter) isRoot(relativePath string) bool {
	full := a.fullPath(relativePath)
	if a.basePath == "" {
		return full == "." || full == "/"
	}
	return full == path.Clean(a.basePath)
}

// Stat implements filehandle.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*filehandle.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !a.isPathSafe(filePath) {
		return nil, filehandle.WrapPathErr("stat", filePath, filehandle.ErrNotAllowed)
	}

	client, err := a.conn("stat", filePath)
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(a.fullPath(filePath))
	if err != nil {
		return nil, mapSFTPError("stat", filePath, err)
	}

	fi := &filehandle.FileInfo{
		Name:    path.Base(a.fullPath(filePath)),
		Path:    filePath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !fi.IsDir {
		fi.ContentType = filehandle.GuessContentType(filePath, nil)
	}
	return fi, nil
}

// Read implements filehandle.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !a.isPathSafe(filePath) {
		return nil, filehandle.WrapPathErr("read", filePath, filehandle.ErrNotAllowed)
	}

	client, err := a.conn("read", filePath)
	if err != nil {
		return nil, err
	}

	fullPath := a.fullPath(filePath)
	info, err := client.Stat(fullPath)
	if err != nil {
		return nil, mapSFTPError("read", filePath, err)
	}
	if info.IsDir() {
		return nil, filehandle.WrapPathErr("read", filePath, filehandle.ErrIsDir)
	}

	file, err := client.Open(fullPath)
	if err != nil {
		return nil, mapSFTPError("read", filePath, err)
	}

	return file, nil
}

// OpenWrite implements filehandle.FileWriter. The remote file is created or
// truncated right away; the parent directory must already exist.
func (a *Adapter) OpenWrite(ctx context.Context, filePath string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !a.isPathSafe(filePath) || a.isRoot(filePath) {
		return nil, filehandle.WrapPathErr("openwrite", filePath, filehandle.ErrNotAllowed)
	}

	client, err := a.conn("openwrite", filePath)
	if err != nil {
		return nil, err
	}

	fullPath := a.fullPath(filePath)

	dir, err := client.Stat(path.Dir(fullPath))
	if err != nil {
		return nil, mapSFTPError("openwrite", filePath, err)
	}
	if !dir.IsDir() {
		return nil, filehandle.WrapPathErr("openwrite", filePath,
			fmt.Errorf("%w: parent %q is not a directory", filehandle.ErrNotExist, path.Dir(filePath)))
	}

	if info, err := client.Stat(fullPath); err == nil && info.IsDir() {
		return nil, filehandle.WrapPathErr("openwrite", filePath, filehandle.ErrIsDir)
	}

	file, err := client.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, mapSFTPError("openwrite", filePath, err)
	}
	return file, nil
}

// RemoveAll implements filehandle.FileWriter. Removing the adapter root is
// refused.
func (a *Adapter) RemoveAll(ctx context.Context, filePath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !a.isPathSafe(filePath) || a.isRoot(filePath) {
		return filehandle.WrapPathErr("removeall", filePath, filehandle.ErrNotAllowed)
	}

	client, err := a.conn("removeall", filePath)
	if err != nil {
		return err
	}

	fullPath := a.fullPath(filePath)
	info, err := client.Lstat(fullPath)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return mapSFTPError("removeall", filePath, err)
	}

	if !info.IsDir() {
		err = client.Remove(fullPath)
	} else {
		err = removeTree(client, fullPath)
	}
	if err != nil && !isNotExist(err) {
		return mapSFTPError("removeall", filePath, err)
	}
	return nil
}

// CreateDir creates a directory and any missing parents.
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !a.isPathSafe(dirPath) {
		return filehandle.WrapPathErr("createdir", dirPath, filehandle.ErrNotAllowed)
	}

	client, err := a.conn("createdir", dirPath)
	if err != nil {
		return err
	}

	if err := client.MkdirAll(a.fullPath(dirPath)); err != nil {
		return mapSFTPError("createdir", dirPath, err)
	}
	return nil
}

// removeTree recursively removes a directory and its contents
func removeTree(client *sftp.Client, dirPath string) error {
	entries, err := client.ReadDir(dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryPath := path.Join(dirPath, entry.Name())
		if entry.IsDir() {
			if err := removeTree(client, entryPath); err != nil {
				return err
			}
		} else {
			if err := client.Remove(entryPath); err != nil {
				return err
			}
		}
	}

	return client.RemoveDirectory(dirPath)
}

func isNotExist(err error) bool {
	var status *sftp.StatusError
	if errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxNoSuchFile {
		return true
	}
	return errors.Is(err, iofs.ErrNotExist)
}

// mapSFTPError maps SFTP errors to filehandle errors
func mapSFTPError(op, filePath string, err error) error {
	switch {
	case isNotExist(err):
		return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrNotExist, err))
	case errors.Is(err, iofs.ErrPermission):
		return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrPermission, err))
	}
	return filehandle.WrapPathErr(op, filePath, err)
}

var _ filehandle.FileSystem = (*Adapter)(nil)
