package billy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gobeaver/filehandle"
	"github.com/gobeaver/filehandle/filehandletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdir(ctx context.Context, fsys filehandle.FileSystem, dir string) error {
	return fsys.(*Adapter).MkdirAll(ctx, dir)
}

func TestConformanceMemfs(t *testing.T) {
	filehandletest.TestSuite(t,
		func(*testing.T) filehandle.FileSystem { return NewInMemory() },
		filehandletest.WithMkdir(mkdir),
	)
}

func TestConformanceOsfs(t *testing.T) {
	filehandletest.TestSuite(t,
		func(t *testing.T) filehandle.FileSystem { return NewOS(t.TempDir()) },
		filehandletest.WithMkdir(mkdir),
	)
}

func TestOpenWriteParentIsFile(t *testing.T) {
	ctx := context.Background()
	a := NewInMemory()

	w, err := a.OpenWrite(ctx, "file")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = a.OpenWrite(ctx, "file/child")
	assert.Error(t, err)
}

func TestReadDirectory(t *testing.T) {
	ctx := context.Background()
	a := NewInMemory()
	require.NoError(t, a.MkdirAll(ctx, "dir"))

	_, err := a.Read(ctx, "dir")
	assert.True(t, errors.Is(err, filehandle.ErrIsDir), "got %v", err)

	_, err = a.OpenWrite(ctx, "dir")
	assert.True(t, errors.Is(err, filehandle.ErrIsDir), "got %v", err)
}

func TestStatMapsNotExist(t *testing.T) {
	_, err := NewInMemory().Stat(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, filehandle.IsNotExist(err))
	assert.Contains(t, err.Error(), "billy: stat")
}

func TestStatContentType(t *testing.T) {
	ctx := context.Background()
	a := NewInMemory()
	_, err := filehandle.New(a, "data.json").WriteString(ctx, "{}")
	require.NoError(t, err)

	info, err := a.Stat(ctx, "data.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", info.ContentType)
}

func TestRaw(t *testing.T) {
	a := NewInMemory()
	assert.NotNil(t, a.Raw())
}

func TestRegisteredDriver(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend", func(t *testing.T) {
		kit, err := filehandle.NewKit(&filehandle.Config{Driver: "billy", BillyBackend: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &Adapter{}, kit.FileSystem())

		_, err = kit.File("notes.txt").WriteString(ctx, "hello")
		require.NoError(t, err)
		text, err := kit.File("notes.txt").Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
	})

	t.Run("os backend", func(t *testing.T) {
		dir := t.TempDir()
		kit, err := filehandle.NewKit(&filehandle.Config{Driver: "billy", BillyBackend: "os", BillyBasePath: dir})
		require.NoError(t, err)

		_, err = kit.File("notes.txt").WriteString(ctx, "on disk")
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
		require.NoError(t, err)
		assert.Equal(t, "on disk", string(data))
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := filehandle.NewKit(&filehandle.Config{Driver: "billy", BillyBackend: "ftp"})
		assert.ErrorContains(t, err, "unknown billy backend: ftp")
	})
}
