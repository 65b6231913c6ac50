// Package filehandletest provides a conformance suite for filehandle.FileSystem
// drivers.
//
// A driver package runs the suite from its own tests:
//
//	func TestConformance(t *testing.T) {
//	    filehandletest.TestSuite(t, func(t *testing.T) filehandle.FileSystem {
//	        return memory.New()
//	    }, filehandletest.WithMkdir(mkdir))
//	}
//
// The suite checks the primitive contract (Stat, Read, OpenWrite, RemoveAll)
// and then drives a Handle over the driver, so every backend is held to the
// same handle semantics.
package filehandletest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gobeaver/filehandle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EmptyMD5 is the hex MD5 digest of zero bytes.
const EmptyMD5 = "d41d8cd98f00b204e9800998ecf8427e"

// Option configures the suite.
type Option func(*suite)

// WithMkdir supplies a way to create a directory on the driver. Without it
// the tests that need nested paths are skipped.
func WithMkdir(mkdir func(ctx context.Context, fsys filehandle.FileSystem, dir string) error) Option {
	return func(s *suite) {
		s.mkdir = mkdir
	}
}

// WithSkip skips the named subtests, e.g. "Primitives/OpenWriteMissingParent",
// for drivers with a documented difference.
func WithSkip(names ...string) Option {
	return func(s *suite) {
		s.skip = append(s.skip, names...)
	}
}

// WithWatchTimeout bounds how long the watch tests wait for a change.
func WithWatchTimeout(d time.Duration) Option {
	return func(s *suite) {
		s.watchTimeout = d
	}
}

type suite struct {
	newFS        func(t *testing.T) filehandle.FileSystem
	mkdir        func(ctx context.Context, fsys filehandle.FileSystem, dir string) error
	skip         []string
	watchTimeout time.Duration
}

type testCase struct {
	name string
	fn   func(t *testing.T, s *suite, fsys filehandle.FileSystem)
}

// TestSuite runs every conformance test. newFS must return a fresh, empty
// filesystem on each call.
func TestSuite(t *testing.T, newFS func(t *testing.T) filehandle.FileSystem, opts ...Option) {
	s := &suite{newFS: newFS, watchTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}

	groups := []struct {
		name  string
		cases []testCase
	}{
		{"Primitives", primitiveCases},
		{"Handle", handleCases},
		{"Watch", watchCases},
	}

	for _, group := range groups {
		t.Run(group.name, func(t *testing.T) {
			if slices.Contains(s.skip, group.name) {
				t.Skip("skipped by driver configuration")
			}
			for _, tc := range group.cases {
				t.Run(tc.name, func(t *testing.T) {
					if slices.Contains(s.skip, group.name+"/"+tc.name) {
						t.Skip("skipped by driver configuration")
					}
					tc.fn(t, s, s.newFS(t))
				})
			}
		})
	}
}

func (s *suite) requireMkdir(t *testing.T, fsys filehandle.FileSystem, dir string) {
	t.Helper()
	if s.mkdir == nil {
		t.Skip("driver has no mkdir")
	}
	require.NoError(t, s.mkdir(context.Background(), fsys, dir))
}

// ============================================================================
// Primitive contract
// ============================================================================

var primitiveCases = []testCase{
	{"StatMissing", testStatMissing},
	{"WriteThenRead", testWriteThenRead},
	{"OpenWriteTruncates", testOpenWriteTruncates},
	{"OpenWriteMissingParent", testOpenWriteMissingParent},
	{"ReadMissing", testReadMissing},
	{"IndependentReads", testIndependentReads},
	{"RemoveAllMissing", testRemoveAllMissing},
	{"RemoveAllFile", testRemoveAllFile},
	{"RemoveAllTree", testRemoveAllTree},
}

func writeAll(t *testing.T, fsys filehandle.FileSystem, path string, data []byte) {
	t.Helper()
	w, err := fsys.OpenWrite(context.Background(), path)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, fsys filehandle.FileSystem, path string) []byte {
	t.Helper()
	r, err := fsys.Read(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func testStatMissing(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	_, err := fsys.Stat(context.Background(), "missing.txt")
	require.Error(t, err)
	assert.True(t, filehandle.IsNotExist(err), "expected ErrNotExist, got %v", err)
}

func testWriteThenRead(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	data := []byte("hello world")
	writeAll(t, fsys, "data.txt", data)

	assert.Equal(t, data, readAll(t, fsys, "data.txt"))

	info, err := fsys.Stat(context.Background(), "data.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.True(t, info.IsFile())
	assert.Equal(t, "data.txt", info.Name)
}

func testOpenWriteTruncates(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	writeAll(t, fsys, "data.txt", []byte("a much longer first version"))
	writeAll(t, fsys, "data.txt", []byte("short"))

	assert.Equal(t, []byte("short"), readAll(t, fsys, "data.txt"))

	w, err := fsys.OpenWrite(context.Background(), "data.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := fsys.Stat(context.Background(), "data.txt")
	require.NoError(t, err)
	assert.Zero(t, info.Size)
}

func testOpenWriteMissingParent(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	w, err := fsys.OpenWrite(context.Background(), "no/such/dir/file.txt")
	if err == nil {
		err = w.Close()
	}
	require.Error(t, err, "parent directories must not be created")

	_, err = fsys.Stat(context.Background(), "no")
	assert.True(t, filehandle.IsNotExist(err), "expected parent to stay absent, got %v", err)
}

func testReadMissing(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	r, err := fsys.Read(context.Background(), "missing.txt")
	if err == nil {
		// Lazy backends may only fail on first read
		_, err = io.ReadAll(r)
		r.Close()
	}
	require.Error(t, err)
	assert.True(t, filehandle.IsNotExist(err), "expected ErrNotExist, got %v", err)
}

func testIndependentReads(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	writeAll(t, fsys, "data.txt", []byte("0123456789"))

	first, err := fsys.Read(context.Background(), "data.txt")
	require.NoError(t, err)
	defer first.Close()

	buf := make([]byte, 4)
	_, err = io.ReadFull(first, buf)
	require.NoError(t, err)

	// A second stream starts from the beginning
	assert.Equal(t, []byte("0123456789"), readAll(t, fsys, "data.txt"))
}

func testRemoveAllMissing(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	assert.NoError(t, fsys.RemoveAll(context.Background(), "missing.txt"))
}

func testRemoveAllFile(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	writeAll(t, fsys, "data.txt", []byte("x"))
	require.NoError(t, fsys.RemoveAll(context.Background(), "data.txt"))

	_, err := fsys.Stat(context.Background(), "data.txt")
	assert.True(t, filehandle.IsNotExist(err), "expected ErrNotExist, got %v", err)

	// Second removal is a no-op
	assert.NoError(t, fsys.RemoveAll(context.Background(), "data.txt"))
}

func testRemoveAllTree(t *testing.T, s *suite, fsys filehandle.FileSystem) {
	s.requireMkdir(t, fsys, "tree/sub")
	writeAll(t, fsys, "tree/a.txt", []byte("a"))
	writeAll(t, fsys, "tree/sub/b.txt", []byte("b"))
	writeAll(t, fsys, "treehouse.txt", []byte("keep"))

	require.NoError(t, fsys.RemoveAll(context.Background(), "tree"))

	for _, p := range []string{"tree", "tree/a.txt", "tree/sub", "tree/sub/b.txt"} {
		_, err := fsys.Stat(context.Background(), p)
		assert.True(t, filehandle.IsNotExist(err), "%s: expected ErrNotExist, got %v", p, err)
	}
	assert.Equal(t, []byte("keep"), readAll(t, fsys, "treehouse.txt"))
}

// ============================================================================
// Handle semantics
// ============================================================================

var handleCases = []testCase{
	{"Lifecycle", testHandleLifecycle},
	{"EnsureKeepsContent", testEnsureKeepsContent},
	{"EnsureMissingParent", testEnsureMissingParent},
	{"TextRoundTrip", testTextRoundTrip},
	{"WriteFromHandle", testWriteFromHandle},
	{"CopyLeavesSource", testCopyLeavesSource},
	{"CopyMissingSource", testCopyMissingSource},
	{"MoveRemovesSource", testMoveRemovesSource},
	{"EmptyTruncates", testEmptyTruncates},
	{"EmptyMissing", testEmptyMissing},
	{"LargeContent", testLargeContent},
}

func testHandleLifecycle(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	h := filehandle.New(fsys, "x.md")

	assert.False(t, h.Exists(ctx))

	_, err := h.Ensure(ctx)
	require.NoError(t, err)
	assert.True(t, h.Exists(ctx))
	assert.True(t, h.IsFile(ctx))

	emptySum, err := h.MD5(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmptyMD5, emptySum)

	_, err = h.WriteString(ctx, "hello world")
	require.NoError(t, err)

	sum, err := h.MD5(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", sum)
	assert.NotEqual(t, emptySum, sum)

	size, err := h.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	removed, err := h.Remove(ctx)
	require.NoError(t, err)
	assert.Same(t, h, removed)
	assert.False(t, h.Exists(ctx))

	_, err = h.Remove(ctx)
	assert.NoError(t, err, "remove must be idempotent")
}

func testEnsureKeepsContent(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	h := filehandle.New(fsys, "keep.txt")

	_, err := h.WriteString(ctx, "precious")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = h.Ensure(ctx)
		require.NoError(t, err)
	}

	text, err := h.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "precious", text)
}

func testEnsureMissingParent(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	_, err := filehandle.New(fsys, "absent/dir/file.txt").Ensure(ctx)
	require.Error(t, err)
	assert.True(t, filehandle.IsIOError(err), "expected ErrIO, got %v", err)
}

func testTextRoundTrip(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	h := filehandle.New(fsys, "unicode.txt")

	const s = "grüße, 世界"
	_, err := h.WriteString(ctx, s)
	require.NoError(t, err)

	text, err := h.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, text)

	data, err := h.Bytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(s), data)
}

func testWriteFromHandle(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	src := filehandle.New(fsys, "src.txt")
	dst := filehandle.New(fsys, "dst.txt")

	_, err := src.WriteString(ctx, "payload")
	require.NoError(t, err)

	_, err = dst.Put(ctx, src)
	require.NoError(t, err)

	text, err := dst.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", text)
}

func testCopyLeavesSource(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	src := filehandle.New(fsys, "a.txt")
	_, err := src.WriteString(ctx, "copy me")
	require.NoError(t, err)

	dst, err := src.Copy(ctx, "b.txt")
	require.NoError(t, err)
	assert.NotSame(t, src, dst)
	assert.Equal(t, "b.txt", dst.Path())

	for _, h := range []*filehandle.Handle{src, dst} {
		text, err := h.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "copy me", text)
	}
}

func testCopyMissingSource(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	_, err := filehandle.New(fsys, "missing.txt").Copy(ctx, "b.txt")
	require.Error(t, err)
	assert.True(t, filehandle.IsIOError(err), "expected ErrIO, got %v", err)
	assert.True(t, filehandle.IsNotExist(err), "expected ErrNotExist in chain, got %v", err)
}

func testMoveRemovesSource(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	src := filehandle.New(fsys, "a.txt")
	_, err := src.WriteString(ctx, "move me")
	require.NoError(t, err)

	dst, err := src.Move(ctx, "b.txt")
	require.NoError(t, err)

	assert.False(t, src.Exists(ctx))
	text, err := dst.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "move me", text)
}

func testEmptyTruncates(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	h := filehandle.New(fsys, "full.txt")
	_, err := h.WriteString(ctx, "content")
	require.NoError(t, err)

	_, err = h.Empty(ctx)
	require.NoError(t, err)

	size, err := h.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.True(t, h.Exists(ctx))
}

func testEmptyMissing(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	h := filehandle.New(fsys, "absent.txt")

	_, err := h.Empty(ctx)
	require.NoError(t, err)
	assert.False(t, h.Exists(ctx), "empty must not create the file")
}

func testLargeContent(t *testing.T, _ *suite, fsys filehandle.FileSystem) {
	ctx := context.Background()
	// Several chunks with a ragged tail
	data := bytes.Repeat([]byte("0123456789abcdef"), 3*filehandle.DefaultBufferSize/16+7)
	h := filehandle.New(fsys, "large.bin", filehandle.WithBufferSize(4096))

	_, err := h.Write(ctx, data)
	require.NoError(t, err)

	got, err := h.Bytes(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got), "content mismatch: got %d bytes, want %d", len(got), len(data))

	var sb strings.Builder
	n, err := h.PipeTo(ctx, &sb)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
}

// ============================================================================
// Watching
// ============================================================================

var watchCases = []testCase{
	{"FiresOnWrite", testWatchFiresOnWrite},
	{"FiresOnRemove", testWatchFiresOnRemove},
}

func waitChanged(t *testing.T, s *suite, token filehandle.ChangeToken) {
	t.Helper()
	fired := make(chan struct{})
	unregister := token.RegisterChangeCallback(func() { close(fired) })
	defer unregister()

	select {
	case <-fired:
	case <-time.After(s.watchTimeout):
		t.Fatal("change token did not fire")
	}
	assert.True(t, token.HasChanged())
}

func testWatchFiresOnWrite(t *testing.T, s *suite, fsys filehandle.FileSystem) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := filehandle.New(fsys, "watched.txt", filehandle.WithPollInterval(20*time.Millisecond))
	token, err := h.Watch(ctx)
	if errors.Is(err, filehandle.ErrNotSupported) {
		t.Skip("watch not supported")
	}
	require.NoError(t, err)
	assert.False(t, token.HasChanged())

	_, err = h.WriteString(ctx, "changed")
	require.NoError(t, err)

	waitChanged(t, s, token)
}

func testWatchFiresOnRemove(t *testing.T, s *suite, fsys filehandle.FileSystem) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := filehandle.New(fsys, "watched.txt", filehandle.WithPollInterval(20*time.Millisecond))
	_, err := h.WriteString(ctx, "present")
	require.NoError(t, err)

	token, err := h.Watch(ctx)
	if errors.Is(err, filehandle.ErrNotSupported) {
		t.Skip("watch not supported")
	}
	require.NoError(t, err)

	_, err = h.Remove(ctx)
	require.NoError(t, err)

	waitChanged(t, s, token)
}
