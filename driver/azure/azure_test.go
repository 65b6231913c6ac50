package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/gobeaver/filehandle"
	"github.com/gobeaver/filehandle/filehandletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStager records staged blocks and the committed list.
type fakeStager struct {
	staged      map[string][]byte
	committed   []byte
	commits     int
	contentType string
	stageErr    error
}

func (f *fakeStager) StageBlock(_ context.Context, id string, body io.ReadSeekCloser, _ *blockblob.StageBlockOptions) (blockblob.StageBlockResponse, error) {
	if f.stageErr != nil {
		return blockblob.StageBlockResponse{}, f.stageErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return blockblob.StageBlockResponse{}, err
	}
	if f.staged == nil {
		f.staged = make(map[string][]byte)
	}
	f.staged[id] = data
	return blockblob.StageBlockResponse{}, nil
}

func (f *fakeStager) CommitBlockList(_ context.Context, ids []string, opts *blockblob.CommitBlockListOptions) (blockblob.CommitBlockListResponse, error) {
	f.commits++
	f.committed = []byte{}
	for _, id := range ids {
		data, ok := f.staged[id]
		if !ok {
			return blockblob.CommitBlockListResponse{}, fmt.Errorf("unknown block %q", id)
		}
		f.committed = append(f.committed, data...)
	}
	if opts != nil && opts.HTTPHeaders != nil && opts.HTTPHeaders.BlobContentType != nil {
		f.contentType = *opts.HTTPHeaders.BlobContentType
	}
	return blockblob.CommitBlockListResponse{}, nil
}

// responseError builds a service error the way the SDK reports one.
func responseError(status int, code string) *azcore.ResponseError {
	req, _ := http.NewRequest(http.MethodGet, "https://account.blob.core.windows.net/container/a.txt", nil)
	return &azcore.ResponseError{
		ErrorCode:  code,
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{},
			Body:       http.NoBody,
			Request:    req,
		},
	}
}

func newBlockWriter(stager *fakeStager, blockSize int) *blockWriter {
	return &blockWriter{
		ctx:         context.Background(),
		blocks:      stager,
		path:        "a.txt",
		uploadID:    "0123456789abcdef",
		contentType: "text/plain; charset=utf-8",
		buf:         make([]byte, 0, blockSize),
	}
}

func TestBlockWriter(t *testing.T) {
	t.Run("stages full blocks and commits on close", func(t *testing.T) {
		stager := &fakeStager{}
		w := newBlockWriter(stager, 4)

		n, err := w.Write([]byte("hello "))
		require.NoError(t, err)
		assert.Equal(t, 6, n)
		_, err = w.Write([]byte("world"))
		require.NoError(t, err)
		assert.Len(t, stager.staged, 2)
		assert.Zero(t, stager.commits)

		require.NoError(t, w.Close())
		assert.Equal(t, "hello world", string(stager.committed))
		assert.Equal(t, "text/plain; charset=utf-8", stager.contentType)
		assert.Len(t, stager.staged, 3)

		// A second Close is a no-op
		require.NoError(t, w.Close())
		assert.Equal(t, 1, stager.commits)

		_, err = w.Write([]byte("x"))
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	})

	t.Run("empty stream commits an empty blob", func(t *testing.T) {
		stager := &fakeStager{}
		w := newBlockWriter(stager, 4)
		require.NoError(t, w.Close())
		assert.Equal(t, 1, stager.commits)
		assert.Empty(t, stager.committed)
	})

	t.Run("abandoned stream never commits", func(t *testing.T) {
		stager := &fakeStager{}
		w := newBlockWriter(stager, 4)
		_, err := w.Write([]byte("partial content"))
		require.NoError(t, err)

		require.NoError(t, w.CloseWithError(errors.New("source failed")))
		require.NoError(t, w.Close())
		assert.Zero(t, stager.commits)
	})

	t.Run("stage failure sticks", func(t *testing.T) {
		stager := &fakeStager{stageErr: responseError(http.StatusForbidden, "AuthorizationFailure")}
		w := newBlockWriter(stager, 2)

		_, err := w.Write([]byte("abc"))
		assert.ErrorIs(t, err, filehandle.ErrPermission)
		_, err = w.Write([]byte("d"))
		assert.ErrorIs(t, err, filehandle.ErrPermission)
		assert.ErrorIs(t, w.Close(), filehandle.ErrPermission)
		assert.Zero(t, stager.commits)
	})
}

func TestBlockID(t *testing.T) {
	first := blockID("0123456789abcdef", 0)
	last := blockID("0123456789abcdef", 49999)
	assert.Len(t, last, len(first))
	assert.NotEqual(t, first, last)
	assert.NotEqual(t, first, blockID("fedcba9876543210", 0))

	id, err := newUploadID()
	require.NoError(t, err)
	assert.Len(t, id, 16)
}

func TestBlobName(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "a.txt", "a.txt"},
		{"", "/dir/a.txt", "dir/a.txt"},
		{"tenant", "a.txt", "tenant/a.txt"},
		{"tenant/", "../a.txt", "tenant/a.txt"},
		{"tenant", ".", "tenant/"},
	}

	for _, tt := range tests {
		a := New(nil, "container", WithPrefix(tt.prefix))
		assert.Equal(t, tt.want, a.blobName(tt.path), "prefix %q path %q", tt.prefix, tt.path)
	}
}

func TestMapAzureError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"blob not found", responseError(http.StatusNotFound, "BlobNotFound"), filehandle.ErrNotExist},
		{"container not found", responseError(http.StatusNotFound, "ContainerNotFound"), filehandle.ErrNotExist},
		{"forbidden", responseError(http.StatusForbidden, "AuthorizationPermissionMismatch"), filehandle.ErrPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapAzureError("stat", "a.txt", tt.err)
			assert.ErrorIs(t, err, tt.want)
			var respErr *azcore.ResponseError
			assert.True(t, errors.As(err, &respErr))
		})
	}

	err := mapAzureError("read", "a.txt", responseError(http.StatusServiceUnavailable, "ServerBusy"))
	assert.False(t, filehandle.IsNotExist(err))
	assert.False(t, filehandle.IsPermission(err))
}

// TestConformance runs against Azurite when AZURITE_CONNECTION_STRING is set.
func TestConformance(t *testing.T) {
	connStr := os.Getenv("AZURITE_CONNECTION_STRING")
	if connStr == "" {
		t.Skip("AZURITE_CONNECTION_STRING not set")
	}

	ctx := context.Background()
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	require.NoError(t, err)

	containerName := fmt.Sprintf("filehandle-%d", time.Now().UnixNano())
	_, err = client.CreateContainer(ctx, containerName, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = client.DeleteContainer(context.Background(), containerName, nil) })

	var n int
	filehandletest.TestSuite(t,
		func(t *testing.T) filehandle.FileSystem {
			n++
			return New(client, containerName, WithPrefix(fmt.Sprintf("run-%d", n)), WithBlockSize(1024))
		},
		filehandletest.WithMkdir(func(context.Context, filehandle.FileSystem, string) error { return nil }),
		filehandletest.WithSkip("Primitives/OpenWriteMissingParent", "Handle/EnsureMissingParent"),
	)
}
