package filehandle

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Watch returns a token that fires once the file at the path is created,
// modified or deleted. Drivers implementing CanWatch report native events;
// on other drivers the token polls Stat at the handle's poll interval until
// ctx is cancelled or the token fires.
func (h *Handle) Watch(ctx context.Context) (ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if watcher, ok := h.fs.(CanWatch); ok {
		token, err := watcher.Watch(ctx, glob.QuoteMeta(filepath.ToSlash(h.path)))
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNotSupported) {
			return nil, WrapPathErr("watch", h.path, err)
		}
	}

	return h.pollingToken(ctx), nil
}

func (h *Handle) pollingToken(ctx context.Context) ChangeToken {
	return NewPollingChangeToken(ctx, PollingConfig{
		Interval: h.opts.PollInterval,
		Snapshot: func(ctx context.Context) *FileInfo {
			info, err := h.fs.Stat(ctx, h.path)
			if err != nil {
				return nil
			}
			return info
		},
	})
}

// OnChange runs action every time the file changes until the returned
// cancel function is called.
func (h *Handle) OnChange(ctx context.Context, action func()) (cancel func()) {
	ctx, cancelWatch := context.WithCancel(ctx)
	stop := OnChange(func() (ChangeToken, error) {
		return h.Watch(ctx)
	}, action)
	return func() {
		stop()
		cancelWatch()
	}
}
