// Package azure provides an Azure Blob Storage implementation of
// filehandle.FileSystem.
package azure

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/gobeaver/filehandle"
)

// DefaultBlockSize is the amount of content staged per block.
const DefaultBlockSize = 4 * 1024 * 1024

// Adapter provides an Azure Blob Storage implementation of
// filehandle.FileSystem.
//
// Write streams stage blocks as content arrives and commit the block list
// on Close, so readers see either the old blob or the complete new one.
type Adapter struct {
	client        *azblob.Client
	containerName string
	prefix        string
	blockSize     int
}

// AdapterOption is a function that configures Azure Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for Azure blobs
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		// Ensure prefix ends with a slash if it's not empty
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithBlockSize sets how much content each staged block carries.
func WithBlockSize(size int) AdapterOption {
	return func(a *Adapter) {
		if size > 0 {
			a.blockSize = size
		}
	}
}

// New creates a new Azure Blob Storage filesystem adapter
func New(client *azblob.Client, containerName string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client:        client,
		containerName: containerName,
		blockSize:     DefaultBlockSize,
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// blobName combines the prefix and a handle path.
func (a *Adapter) blobName(filePath string) string {
	p := path.Clean("/" + strings.ReplaceAll(filePath, "\\", "/"))
	return strings.TrimPrefix(a.prefix+strings.TrimPrefix(p, "/"), "/")
}

// Stat implements filehandle.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*filehandle.FileInfo, error) {
	name := a.blobName(filePath)

	if name != "" && !strings.HasSuffix(name, "/") {
		blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlobClient(name)
		props, err := blobClient.GetProperties(ctx, nil)
		if err == nil {
			info := &filehandle.FileInfo{
				Name: path.Base(name),
				Path: filePath,
			}
			if props.ContentLength != nil {
				info.Size = *props.ContentLength
			}
			if props.LastModified != nil {
				info.ModTime = *props.LastModified
			}
			if props.ContentType != nil {
				info.ContentType = *props.ContentType
			}
			if len(props.Metadata) > 0 {
				info.Metadata = make(map[string]string, len(props.Metadata))
				for k, v := range props.Metadata {
					if v != nil {
						info.Metadata[k] = *v
					}
				}
			}
			return info, nil
		}
		if !isNotFound(err) {
			return nil, mapAzureError("stat", filePath, err)
		}
	}

	// Not a blob; it may still be a directory
	isDir, err := a.hasChildren(ctx, name)
	if err != nil {
		return nil, mapAzureError("stat", filePath, err)
	}
	if !isDir {
		return nil, filehandle.WrapPathErr("stat", filePath, filehandle.ErrNotExist)
	}

	return &filehandle.FileInfo{
		Name:  path.Base("/" + strings.TrimSuffix(name, "/")),
		Path:  filePath,
		IsDir: true,
	}, nil
}

// hasChildren reports whether any blob lives below name.
func (a *Adapter) hasChildren(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return true, nil
	}
	dirPrefix := strings.TrimSuffix(name, "/") + "/"

	pager := a.client.NewListBlobsFlatPager(a.containerName, &azblob.ListBlobsFlatOptions{
		Prefix:     &dirPrefix,
		MaxResults: ptr(int32(1)),
	})
	if !pager.More() {
		return false, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return false, err
	}
	return len(resp.Segment.BlobItems) > 0, nil
}

// ptr is a helper function to create a pointer to a value
func ptr[T any](v T) *T {
	return &v
}

// Read implements filehandle.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.containerName, a.blobName(filePath), nil)
	if err != nil {
		return nil, mapAzureError("read", filePath, err)
	}
	return resp.Body, nil
}

// OpenWrite implements filehandle.FileWriter. The blob is replaced when the
// returned stream closes.
func (a *Adapter) OpenWrite(ctx context.Context, filePath string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	name := a.blobName(filePath)
	if name == "" || strings.HasSuffix(name, "/") {
		return nil, filehandle.WrapPathErr("openwrite", filePath, filehandle.ErrIsDir)
	}

	uploadID, err := newUploadID()
	if err != nil {
		return nil, filehandle.WrapPathErr("openwrite", filePath, err)
	}

	blocks := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(name)
	return &blockWriter{
		ctx:         ctx,
		blocks:      blocks,
		path:        filePath,
		uploadID:    uploadID,
		contentType: filehandle.GuessContentType(name, nil),
		buf:         make([]byte, 0, a.blockSize),
	}, nil
}

// RemoveAll implements filehandle.FileWriter. It deletes the blob at the
// path and every blob below "path/".
func (a *Adapter) RemoveAll(ctx context.Context, filePath string) error {
	name := a.blobName(filePath)
	if name == "" || name == a.prefix {
		return filehandle.WrapPathErr("removeall", filePath, filehandle.ErrNotAllowed)
	}

	if _, err := a.client.DeleteBlob(ctx, a.containerName, name, nil); err != nil && !isNotFound(err) {
		return mapAzureError("removeall", filePath, err)
	}

	dirPrefix := strings.TrimSuffix(name, "/") + "/"
	pager := a.client.NewListBlobsFlatPager(a.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &dirPrefix,
	})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return mapAzureError("removeall", filePath, err)
		}

		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if _, err := a.client.DeleteBlob(ctx, a.containerName, *item.Name, nil); err != nil && !isNotFound(err) {
				return mapAzureError("removeall", filePath, err)
			}
		}
	}

	return nil
}

// blockStager is the part of *blockblob.Client a write stream uses.
type blockStager interface {
	StageBlock(ctx context.Context, base64BlockID string, body io.ReadSeekCloser, options *blockblob.StageBlockOptions) (blockblob.StageBlockResponse, error)
	CommitBlockList(ctx context.Context, base64BlockIDs []string, options *blockblob.CommitBlockListOptions) (blockblob.CommitBlockListResponse, error)
}

// blockWriter stages one block each time its buffer fills.
type blockWriter struct {
	ctx         context.Context
	blocks      blockStager
	path        string
	uploadID    string
	contentType string
	buf         []byte
	blockIDs    []string
	err         error
	closed      bool
}

func (w *blockWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, filehandle.WrapPathErr("write", w.path, io.ErrClosedPipe)
	}
	if w.err != nil {
		return 0, w.err
	}

	written := 0
	for len(p) > 0 {
		n := copy(w.buf[len(w.buf):cap(w.buf)], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		written += n

		if len(w.buf) == cap(w.buf) {
			if err := w.stage(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// stage uploads the buffered content as the next block.
func (w *blockWriter) stage() error {
	id := blockID(w.uploadID, len(w.blockIDs))
	body := streaming.NopCloser(bytes.NewReader(w.buf))
	if _, err := w.blocks.StageBlock(w.ctx, id, body, nil); err != nil {
		w.err = mapAzureError("write", w.path, err)
		return w.err
	}
	w.blockIDs = append(w.blockIDs, id)
	w.buf = make([]byte, 0, cap(w.buf))
	return nil
}

// Close stages what is left and commits the block list. An empty stream
// commits an empty list, which stores a zero-length blob.
func (w *blockWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}

	if len(w.buf) > 0 {
		if err := w.stage(); err != nil {
			return err
		}
	}

	_, err := w.blocks.CommitBlockList(w.ctx, w.blockIDs, &blockblob.CommitBlockListOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &w.contentType},
	})
	if err != nil {
		return mapAzureError("write", w.path, err)
	}
	return nil
}

// CloseWithError drops the upload without committing. Azure discards
// uncommitted blocks on its own.
func (w *blockWriter) CloseWithError(error) error {
	w.closed = true
	w.buf = nil
	return nil
}

// newUploadID returns a random hex identifier shared by one stream's blocks.
func newUploadID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// blockID creates a base64-encoded block ID. Azure requires every block ID
// of a blob to have the same length.
func blockID(uploadID string, n int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s-%010d", uploadID, n)))
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// mapAzureError maps Azure errors to filehandle errors
func mapAzureError(op, filePath string, err error) error {
	if isNotFound(err) {
		return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrNotExist, err))
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusForbidden || respErr.StatusCode == http.StatusUnauthorized {
			return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrPermission, err))
		}
	}

	return filehandle.WrapPathErr(op, filePath, err)
}

var (
	_ filehandle.FileSystem = (*Adapter)(nil)
	_ blockStager           = (*blockblob.Client)(nil)
)
