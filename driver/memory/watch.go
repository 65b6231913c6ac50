package memory

import (
	"context"
	"strings"

	"github.com/gobeaver/filehandle"
	"github.com/gobwas/glob"
)

// Watch implements filehandle.CanWatch for in-memory file change detection.
// Supports glob patterns like "**/*.txt", "*.json", "config/*"
func (a *Adapter) Watch(ctx context.Context, pattern string) (filehandle.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Patterns use the same normalized form as stored paths
	pattern = strings.TrimPrefix(strings.TrimLeft(pattern, "/"), "./")

	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &filehandle.PathError{
			Op:   "watch",
			Path: pattern,
			Err:  filehandle.ErrInvalidArgument,
		}
	}

	token := filehandle.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{
		matcher: matcher,
		token:   token,
	})
	a.watchMu.Unlock()

	// Clean up when context is cancelled or the token fires
	go func() {
		fired := make(chan struct{})
		unregister := token.RegisterChangeCallback(func() { close(fired) })
		defer unregister()

		select {
		case <-ctx.Done():
		case <-fired:
		}
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals all watchers whose pattern matches the given path
func (a *Adapter) notifyWatchers(path string) {
	a.watchMu.RLock()
	defer a.watchMu.RUnlock()

	for _, entry := range a.watches {
		if entry.matcher.Match(path) {
			entry.token.SignalChange()
		}
	}
}

// removeWatch removes a watch entry by token
func (a *Adapter) removeWatch(token *filehandle.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			// Remove by swapping with last element
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
}

// WatchCount returns the number of live watch subscriptions.
func (a *Adapter) WatchCount() int {
	a.watchMu.RLock()
	defer a.watchMu.RUnlock()
	return len(a.watches)
}
