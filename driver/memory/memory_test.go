package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gobeaver/filehandle"
	"github.com/gobeaver/filehandle/filehandletest"
)

func TestConformance(t *testing.T) {
	filehandletest.TestSuite(t,
		func(*testing.T) filehandle.FileSystem { return New() },
		filehandletest.WithMkdir(func(ctx context.Context, fsys filehandle.FileSystem, dir string) error {
			return fsys.(*Adapter).CreateDir(ctx, dir)
		}),
	)
}

func writeFile(t *testing.T, a *Adapter, path, content string) {
	t.Helper()
	w, err := a.OpenWrite(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew(t *testing.T) {
	t.Run("creates adapter with default config", func(t *testing.T) {
		a := New()
		if a == nil {
			t.Fatal("expected adapter to be created")
		}
		if a.maxSize != 0 {
			t.Errorf("expected maxSize=0, got %d", a.maxSize)
		}
	})

	t.Run("creates adapter with max size", func(t *testing.T) {
		a := New(Config{MaxSize: 1024})
		if a.maxSize != 1024 {
			t.Errorf("expected maxSize=1024, got %d", a.maxSize)
		}
	})
}

func TestOpenWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("content visible after close", func(t *testing.T) {
		a := New()
		w, err := a.OpenWrite(ctx, "test.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := io.WriteString(w, "hello world"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Truncated but not yet committed
		info, err := a.Stat(ctx, "test.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("expected size 0 before close, got %d", info.Size)
		}

		if err := w.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Size() != 11 {
			t.Errorf("expected size=11, got %d", a.Size())
		}
	})

	t.Run("fails on path traversal", func(t *testing.T) {
		a := New()
		_, err := a.OpenWrite(ctx, "../etc/passwd")
		if !errors.Is(err, filehandle.ErrNotAllowed) {
			t.Errorf("expected ErrNotAllowed, got: %v", err)
		}
	})

	t.Run("respects max size limit", func(t *testing.T) {
		a := New(Config{MaxSize: 10})
		w, err := a.OpenWrite(ctx, "large.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		io.WriteString(w, "this is too large")
		if err := w.Close(); !errors.Is(err, ErrNoSpace) {
			t.Errorf("expected ErrNoSpace, got: %v", err)
		}
	})

	t.Run("close with error discards content", func(t *testing.T) {
		a := New()
		writeFile(t, a, "keep.txt", "original")

		w, err := a.OpenWrite(ctx, "keep.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		io.WriteString(w, "partial")
		cw := w.(interface{ CloseWithError(error) error })
		if err := cw.CloseWithError(errors.New("boom")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		info, err := a.Stat(ctx, "keep.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("expected truncated file, got size %d", info.Size)
		}
	})

	t.Run("rejects directory", func(t *testing.T) {
		a := New()
		if err := a.CreateDir(ctx, "dir"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := a.OpenWrite(ctx, "dir")
		if !errors.Is(err, filehandle.ErrIsDir) {
			t.Errorf("expected ErrIsDir, got: %v", err)
		}
	})
}

func TestPathNormalization(t *testing.T) {
	ctx := context.Background()
	a := New()
	writeFile(t, a, "/a.txt", "x")

	for _, p := range []string{"a.txt", "./a.txt", "/a.txt", "//a.txt"} {
		if _, err := a.Stat(ctx, p); err != nil {
			t.Errorf("Stat(%q): unexpected error: %v", p, err)
		}
	}
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses root", func(t *testing.T) {
		a := New()
		if err := a.RemoveAll(ctx, "/"); !errors.Is(err, filehandle.ErrNotAllowed) {
			t.Errorf("expected ErrNotAllowed, got: %v", err)
		}
	})

	t.Run("updates size", func(t *testing.T) {
		a := New()
		if err := a.CreateDir(ctx, "d"); err != nil {
			t.Fatal(err)
		}
		writeFile(t, a, "d/a.txt", "12345")
		writeFile(t, a, "b.txt", "123")

		if err := a.RemoveAll(ctx, "d"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Size() != 3 {
			t.Errorf("expected size=3, got %d", a.Size())
		}
		if a.FileCount() != 1 {
			t.Errorf("expected 1 file, got %d", a.FileCount())
		}
	})
}

func TestCreateDir(t *testing.T) {
	ctx := context.Background()
	a := New()

	if err := a.CreateDir(ctx, "a/b/c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []string{"a", "a/b", "a/b/c"} {
		info, err := a.Stat(ctx, p)
		if err != nil || !info.IsDir {
			t.Errorf("expected %s to be a directory, got %v", p, err)
		}
	}

	writeFile(t, a, "a/file", "x")
	if err := a.CreateDir(ctx, "a/file/sub"); err == nil {
		t.Error("expected error creating a directory below a file")
	}
}

func TestClear(t *testing.T) {
	a := New()
	writeFile(t, a, "a.txt", "x")
	a.Clear()

	if a.FileCount() != 0 || a.Size() != 0 {
		t.Errorf("expected empty adapter, got %d files, %d bytes", a.FileCount(), a.Size())
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New()
	token, err := a.Watch(ctx, "logs/*.log")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.CreateDir(ctx, "logs"); err != nil {
		t.Fatal(err)
	}

	writeFile(t, a, "logs/app.txt", "no match")
	time.Sleep(20 * time.Millisecond)
	if token.HasChanged() {
		t.Fatal("token fired for a non-matching path")
	}

	writeFile(t, a, "logs/app.log", "match")
	deadline := time.Now().Add(time.Second)
	for !token.HasChanged() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !token.HasChanged() {
		t.Fatal("expected token to fire")
	}

	// Fired tokens are released
	deadline = time.Now().Add(time.Second)
	for a.WatchCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if a.WatchCount() != 0 {
		t.Errorf("expected watch to be removed, %d left", a.WatchCount())
	}
}

func TestWatchInvalidPattern(t *testing.T) {
	_, err := New().Watch(context.Background(), "[")
	if !errors.Is(err, filehandle.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got: %v", err)
	}
}

func TestConcurrency(t *testing.T) {
	ctx := context.Background()
	a := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("file-%d.txt", i)
			w, err := a.OpenWrite(ctx, name)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			w.Write(bytes.Repeat([]byte{'x'}, i))
			w.Close()

			r, err := a.Read(ctx, name)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			data, _ := io.ReadAll(r)
			if len(data) != i {
				t.Errorf("%s: expected %d bytes, got %d", name, i, len(data))
			}
		}(i)
	}
	wg.Wait()

	if a.FileCount() != 20 {
		t.Errorf("expected 20 files, got %d", a.FileCount())
	}
}
