package local

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobeaver/filehandle"
	"github.com/gobwas/glob"
)

// Watch implements filehandle.CanWatch using fsnotify for native file system
// events. The pattern is a slash-separated glob relative to the adapter root
// (or to the working directory when unconfined); "**" matches across
// directories. The returned token fires on the first matching create,
// write, remove or rename and the watcher is released once it fires or ctx
// is done.
func (a *Adapter) Watch(ctx context.Context, pattern string) (filehandle.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	pattern = strings.TrimPrefix(pattern, "./")
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &filehandle.PathError{Op: "watch", Path: pattern, Err: filehandle.ErrInvalidArgument}
	}

	watchDir, err := a.resolve("watch", watchRoot(pattern))
	if err != nil {
		return nil, err
	}

	watcher, err := newFSWatcher()
	if err != nil {
		return nil, &filehandle.PathError{Op: "watch", Path: pattern, Err: err}
	}

	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, mapError("watch", pattern, err)
	}

	// For recursive patterns (**), add all subdirectories
	if strings.Contains(pattern, "**") {
		_ = filepath.WalkDir(watchDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && path != watchDir {
				_ = watcher.Add(path)
			}
			return nil
		})
	}

	token := filehandle.NewCallbackChangeToken()

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events():
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				if matcher.Match(a.relative(event.Name)) {
					token.SignalChange()
					return // Token is spent after first change
				}
			case _, ok := <-watcher.Errors():
				if !ok {
					return
				}
			}
		}
	}()

	return token, nil
}

// relative turns an event path back into the slash form patterns use.
func (a *Adapter) relative(name string) string {
	if a.root != "" {
		if rel, err := filepath.Rel(a.root, name); err == nil {
			name = rel
		}
	}
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "./")
}

// watchRoot returns the deepest directory that contains every path the
// pattern can match, with glob escapes removed.
func watchRoot(pattern string) string {
	var literal strings.Builder
	static := true
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			i++
			literal.WriteByte(pattern[i])
			continue
		}
		if strings.IndexByte("*?[{", c) >= 0 {
			static = false
			break
		}
		literal.WriteByte(c)
	}

	prefix := literal.String()
	if static {
		return filepath.Dir(filepath.FromSlash(prefix))
	}
	idx := strings.LastIndexByte(prefix, '/')
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return filepath.FromSlash(prefix[:idx])
}

// fsWatcher wraps fsnotify.Watcher with a simpler interface
type fsWatcher interface {
	Add(path string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWatcher wraps fsnotify.Watcher to implement fsWatcher interface
type fsnotifyWatcher struct {
	watcher *fsnotify.Watcher
}

// newFSWatcher creates a new file system watcher using fsnotify
func newFSWatcher() (fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsnotifyWatcher{watcher: w}, nil
}

func (w *fsnotifyWatcher) Add(path string) error {
	return w.watcher.Add(path)
}

func (w *fsnotifyWatcher) Close() error {
	return w.watcher.Close()
}

func (w *fsnotifyWatcher) Events() <-chan fsnotify.Event {
	return w.watcher.Events
}

func (w *fsnotifyWatcher) Errors() <-chan error {
	return w.watcher.Errors
}
