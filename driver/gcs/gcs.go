// Package gcs provides a Google Cloud Storage implementation of
// filehandle.FileSystem.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gobeaver/filehandle"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Adapter provides a Google Cloud Storage implementation of
// filehandle.FileSystem.
//
// GCS has no directories: a path is a directory when objects exist below
// "path/". A write stream uploads as it goes and the new object replaces the
// old one atomically when the stream closes.
type Adapter struct {
	client *storage.Client
	bucket string
	prefix string
}

// AdapterOption is a function that configures GCS Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for GCS objects
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		// Ensure prefix ends with a slash if it's not empty
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates a new GCS filesystem adapter
func New(client *storage.Client, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// key combines the prefix and a handle path into an object name.
func (a *Adapter) key(filePath string) string {
	p := path.Clean("/" + strings.ReplaceAll(filePath, "\\", "/"))
	return strings.TrimPrefix(a.prefix+strings.TrimPrefix(p, "/"), "/")
}

func (a *Adapter) object(key string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(key)
}

// Stat implements filehandle.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*filehandle.FileInfo, error) {
	key := a.key(filePath)

	if key != "" && !strings.HasSuffix(key, "/") {
		attrs, err := a.object(key).Attrs(ctx)
		if err == nil {
			return &filehandle.FileInfo{
				Name:        path.Base(key),
				Path:        filePath,
				Size:        attrs.Size,
				ModTime:     attrs.Updated,
				ContentType: attrs.ContentType,
				Metadata:    attrs.Metadata,
			}, nil
		}
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return nil, mapGCSError("stat", filePath, err)
		}
	}

	// Not an object; it may still be a directory
	isDir, err := a.hasChildren(ctx, key)
	if err != nil {
		return nil, mapGCSError("stat", filePath, err)
	}
	if !isDir {
		return nil, filehandle.WrapPathErr("stat", filePath, filehandle.ErrNotExist)
	}

	return &filehandle.FileInfo{
		Name:  path.Base("/" + strings.TrimSuffix(key, "/")),
		Path:  filePath,
		IsDir: true,
	}, nil
}

// hasChildren reports whether any object lives below key.
func (a *Adapter) hasChildren(ctx context.Context, key string) (bool, error) {
	dirKey := key
	if dirKey == "" {
		return true, nil
	}
	if !strings.HasSuffix(dirKey, "/") {
		dirKey += "/"
	}

	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: dirKey})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Read implements filehandle.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	reader, err := a.object(a.key(filePath)).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError("read", filePath, err)
	}
	return reader, nil
}

// OpenWrite implements filehandle.FileWriter. The object is replaced when
// the returned stream closes; Close blocks until the upload has finished.
func (a *Adapter) OpenWrite(ctx context.Context, filePath string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	key := a.key(filePath)
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, filehandle.WrapPathErr("openwrite", filePath, filehandle.ErrIsDir)
	}

	// Cancelling the writer's context is how an upload is abandoned
	wctx, cancel := context.WithCancel(ctx)
	w := a.object(key).NewWriter(wctx)
	w.ContentType = filehandle.GuessContentType(key, nil)

	return &objectWriter{w: w, cancel: cancel, path: filePath}, nil
}

// RemoveAll implements filehandle.FileWriter. It deletes the object at
// the path and every object below "path/".
func (a *Adapter) RemoveAll(ctx context.Context, filePath string) error {
	key := a.key(filePath)
	if key == "" || key == a.prefix {
		return filehandle.WrapPathErr("removeall", filePath, filehandle.ErrNotAllowed)
	}

	if err := a.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return mapGCSError("removeall", filePath, err)
	}

	query := &storage.Query{Prefix: strings.TrimSuffix(key, "/") + "/"}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return mapGCSError("removeall", filePath, err)
	}

	it := a.client.Bucket(a.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return mapGCSError("removeall", filePath, err)
		}
		if err := a.object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return mapGCSError("removeall", filePath, err)
		}
	}

	return nil
}

// objectWriter streams content into a resumable upload.
type objectWriter struct {
	w      *storage.Writer
	cancel context.CancelFunc
	path   string
}

func (o *objectWriter) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

// Close finishes the upload and publishes the object.
func (o *objectWriter) Close() error {
	defer o.cancel()
	if err := o.w.Close(); err != nil {
		return mapGCSError("write", o.path, err)
	}
	return nil
}

// CloseWithError abandons the upload; the existing object is left as it was.
func (o *objectWriter) CloseWithError(error) error {
	o.cancel()
	_ = o.w.Close()
	return nil
}

// mapGCSError maps GCS errors to filehandle errors
func mapGCSError(op, filePath string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrNotExist, err))
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrNotExist, err))
		case http.StatusForbidden, http.StatusUnauthorized:
			return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrPermission, err))
		}
	}

	return filehandle.WrapPathErr(op, filePath, err)
}

var _ filehandle.FileSystem = (*Adapter)(nil)
