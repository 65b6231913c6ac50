package sftp

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/gobeaver/filehandle"
	"github.com/gobeaver/filehandle/filehandletest"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAdapter connects an adapter to an in-process in-memory SFTP server.
func newTestAdapter(t *testing.T, options ...AdapterOption) *Adapter {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	return NewWithClient(client, options...)
}

func mkdir(ctx context.Context, fsys filehandle.FileSystem, dir string) error {
	return fsys.(*Adapter).CreateDir(ctx, dir)
}

func TestConformance(t *testing.T) {
	filehandletest.TestSuite(t,
		func(t *testing.T) filehandle.FileSystem { return newTestAdapter(t) },
		filehandletest.WithMkdir(mkdir),
	)
}

func TestConformanceBasePath(t *testing.T) {
	filehandletest.TestSuite(t,
		func(t *testing.T) filehandle.FileSystem {
			a := newTestAdapter(t, WithBasePath("/srv/data"))
			require.NoError(t, a.client.MkdirAll("/srv/data"))
			return a
		},
		filehandletest.WithMkdir(mkdir),
	)
}

func TestPathSafety(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, WithBasePath("/srv/data"))
	require.NoError(t, a.client.MkdirAll("/srv/data"))

	_, err := a.OpenWrite(ctx, "../escape.txt")
	assert.ErrorIs(t, err, filehandle.ErrNotAllowed)

	_, err = a.Stat(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, filehandle.ErrNotAllowed)

	err = a.RemoveAll(ctx, ".")
	assert.ErrorIs(t, err, filehandle.ErrNotAllowed)
}

func TestReadDirectory(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	require.NoError(t, a.CreateDir(ctx, "dir"))

	_, err := a.Read(ctx, "dir")
	assert.True(t, errors.Is(err, filehandle.ErrIsDir), "got %v", err)

	_, err = a.OpenWrite(ctx, "dir")
	assert.True(t, errors.Is(err, filehandle.ErrIsDir), "got %v", err)
}

func TestHandleOverSFTP(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	h, err := filehandle.New(a, "report.csv").WriteString(ctx, "a,b\n1,2\n")
	require.NoError(t, err)

	info, err := h.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "report.csv", info.Name)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "text/csv; charset=utf-8", info.ContentType)

	moved, err := h.Move(ctx, "archived.csv")
	require.NoError(t, err)
	assert.False(t, h.Exists(ctx))

	sum, err := moved.MD5(ctx)
	require.NoError(t, err)
	assert.Len(t, sum, 32)
}

func TestClosedClient(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	require.NoError(t, a.Close())

	_, err := a.Stat(ctx, "x.txt")
	assert.Error(t, err)
	assert.False(t, filehandle.IsNotExist(err))
}

func TestNewWithoutCredentials(t *testing.T) {
	_, err := New(Config{Host: "localhost", Username: "nobody"})
	assert.ErrorContains(t, err, "no authentication method provided")
}
