package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gobeaver/filehandle"
	"github.com/gobeaver/filehandle/filehandletest"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	return a
}

func TestConformance(t *testing.T) {
	filehandletest.TestSuite(t,
		func(t *testing.T) filehandle.FileSystem { return newAdapter(t) },
		filehandletest.WithMkdir(func(_ context.Context, fsys filehandle.FileSystem, dir string) error {
			return os.MkdirAll(filepath.Join(fsys.(*Adapter).Root(), dir), 0755)
		}),
	)
}

func TestNew(t *testing.T) {
	t.Run("creates missing root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "root")
		a, err := New(root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			t.Fatalf("expected root directory to exist, got %v", err)
		}
		if a.Root() != root {
			t.Errorf("expected root %q, got %q", root, a.Root())
		}
	})

	t.Run("empty root is unconfined", func(t *testing.T) {
		a, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		abs := filepath.Join(t.TempDir(), "abs.txt")
		if err := os.WriteFile(abs, []byte("abs"), 0644); err != nil {
			t.Fatal(err)
		}

		info, err := a.Stat(context.Background(), abs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Size != 3 {
			t.Errorf("expected size 3, got %d", info.Size)
		}
	})
}

func TestPathTraversal(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	_, err := a.OpenWrite(ctx, "../escape.txt")
	if !errors.Is(err, filehandle.ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got: %v", err)
	}

	_, err = a.Read(ctx, "../../etc/passwd")
	if !errors.Is(err, filehandle.ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got: %v", err)
	}

	if err := a.RemoveAll(ctx, "."); !errors.Is(err, filehandle.ErrNotAllowed) {
		t.Errorf("expected removing the root to be refused, got: %v", err)
	}
}

func TestReadDirectory(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	if err := os.Mkdir(filepath.Join(a.Root(), "dir"), 0755); err != nil {
		t.Fatal(err)
	}

	_, err := a.Read(ctx, "dir")
	if !errors.Is(err, filehandle.ErrIsDir) {
		t.Errorf("expected ErrIsDir, got: %v", err)
	}

	info, err := a.Stat(ctx, "dir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.IsDir || info.IsFile() {
		t.Error("expected a directory")
	}
}

func TestStatContentType(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	if err := os.WriteFile(filepath.Join(a.Root(), "page.html"), []byte("<html></html>"), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := a.Stat(ctx, "page.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ContentType == "" {
		t.Error("expected a content type")
	}
}

func TestContextCancellation(t *testing.T) {
	a := newAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Stat(ctx, "x"); err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if _, err := a.OpenWrite(ctx, "x"); err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if err := a.RemoveAll(ctx, "x"); err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestWatchRoot(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"a.txt", "."},
		{"dir/a.txt", "dir"},
		{"dir/*.txt", "dir"},
		{"dir/sub/**", filepath.FromSlash("dir/sub")},
		{"*.txt", "."},
		{`dir/a\*b.txt`, "dir"},
		{"/abs/x.md", filepath.FromSlash("/abs")},
	}

	for _, tt := range tests {
		if got := watchRoot(tt.pattern); got != tt.want {
			t.Errorf("watchRoot(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
