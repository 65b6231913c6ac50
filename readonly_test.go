package filehandle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gobeaver/filehandle"
	"github.com/gobeaver/filehandle/driver/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupReadOnly(t *testing.T, opts ...filehandle.ReadOnlyOption) (*memory.Adapter, *filehandle.ReadOnlyFileSystem) {
	t.Helper()
	inner := memory.New()
	_, err := filehandle.New(inner, "existing.txt").WriteString(context.Background(), "content")
	require.NoError(t, err)
	return inner, filehandle.NewReadOnlyFileSystem(inner, opts...)
}

func TestReadOnlyFileSystem(t *testing.T) {
	ctx := context.Background()
	inner, ro := setupReadOnly(t)
	assert.Same(t, inner, ro.Unwrap())

	t.Run("reads pass through", func(t *testing.T) {
		h := filehandle.New(ro, "existing.txt")
		text, err := h.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "content", text)

		sum, err := h.MD5(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, sum)

		// Ensure on an existing file does not write
		_, err = h.Ensure(ctx)
		assert.NoError(t, err)
	})

	t.Run("writes are rejected", func(t *testing.T) {
		h := filehandle.New(ro, "existing.txt")

		_, err := h.WriteString(ctx, "changed")
		assert.True(t, filehandle.IsReadOnlyError(err), "got %v", err)
		assert.ErrorIs(t, err, filehandle.ErrNotAllowed)

		_, err = h.Empty(ctx)
		assert.True(t, filehandle.IsReadOnlyError(err), "got %v", err)

		_, err = h.Remove(ctx)
		assert.True(t, filehandle.IsReadOnlyError(err), "got %v", err)

		_, err = filehandle.New(ro, "new.txt").Ensure(ctx)
		assert.True(t, filehandle.IsReadOnlyError(err), "got %v", err)

		_, err = h.Copy(ctx, "copy.txt")
		assert.True(t, filehandle.IsReadOnlyError(err), "got %v", err)

		text, err := h.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "content", text)
	})

	t.Run("move leaves source", func(t *testing.T) {
		_, err := filehandle.New(ro, "existing.txt").Move(ctx, "moved.txt")
		assert.True(t, filehandle.IsReadOnlyError(err), "got %v", err)
		assert.True(t, filehandle.New(inner, "existing.txt").Exists(ctx))
		assert.False(t, filehandle.New(inner, "moved.txt").Exists(ctx))
	})

	t.Run("primitive errors carry the operation", func(t *testing.T) {
		_, err := ro.OpenWrite(ctx, "x.txt")
		var pe *filehandle.PathError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "openwrite", pe.Op)
		assert.Equal(t, "x.txt", pe.Path)

		err = ro.RemoveAll(ctx, "x.txt")
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "removeall", pe.Op)
	})
}

func TestReadOnlyAllowRemove(t *testing.T) {
	ctx := context.Background()
	inner, ro := setupReadOnly(t, filehandle.WithAllowRemove(true))

	_, err := filehandle.New(ro, "existing.txt").Remove(ctx)
	require.NoError(t, err)
	assert.False(t, filehandle.New(inner, "existing.txt").Exists(ctx))

	_, err = filehandle.New(ro, "x.txt").WriteString(ctx, "x")
	assert.True(t, filehandle.IsReadOnlyError(err))
}

func TestReadOnlyWriteAttemptHandler(t *testing.T) {
	ctx := context.Background()
	var attempts []string
	denied := errors.New("denied by policy")

	inner, ro := setupReadOnly(t, filehandle.WithWriteAttemptHandler(func(op, path string) error {
		attempts = append(attempts, op+":"+path)
		if path == "allowed.txt" {
			return nil
		}
		return denied
	}))

	_, err := filehandle.New(ro, "allowed.txt").WriteString(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, filehandle.New(inner, "allowed.txt").Exists(ctx))

	_, err = filehandle.New(ro, "blocked.txt").WriteString(ctx, "no")
	assert.ErrorIs(t, err, denied)
	assert.False(t, filehandle.IsReadOnlyError(err))

	assert.Equal(t, []string{"openwrite:allowed.txt", "openwrite:blocked.txt"}, attempts)
}

func TestReadOnlyWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("delegates to a watching driver", func(t *testing.T) {
		inner, ro := setupReadOnly(t)
		token, err := filehandle.New(ro, "existing.txt").Watch(ctx)
		require.NoError(t, err)

		_, err = filehandle.New(inner, "existing.txt").WriteString(ctx, "changed")
		require.NoError(t, err)
		require.Eventually(t, token.HasChanged, time.Second, 5*time.Millisecond)
	})

	t.Run("reports unsupported otherwise", func(t *testing.T) {
		ro := filehandle.NewReadOnlyFileSystem(pollOnlyFS{memory.New()})
		_, err := ro.Watch(ctx, "*.txt")
		assert.ErrorIs(t, err, filehandle.ErrNotSupported)

		// Handles fall back to polling
		token, err := filehandle.New(ro, "x.txt").Watch(ctx)
		require.NoError(t, err)
		assert.IsType(t, &filehandle.PollingChangeToken{}, token)
	})
}
