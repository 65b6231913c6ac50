package filehandle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// ChangeToken Implementations
// ============================================================================

// callbacks is the shared fire-once callback list behind every token.
type callbacks struct {
	mu      sync.RWMutex
	changed atomic.Bool
	funcs   []func()
}

func (c *callbacks) register(callback func()) (unregister func()) {
	// a callback racing with fire must still run only once
	callback = sync.OnceFunc(callback)

	c.mu.Lock()
	c.funcs = append(c.funcs, callback)
	index := len(c.funcs) - 1
	c.mu.Unlock()

	if c.changed.Load() {
		// registered after the change fired
		callback()
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if index < len(c.funcs) {
			// Set to nil instead of removing to avoid index shifting
			c.funcs[index] = nil
		}
	}
}

func (c *callbacks) fire() bool {
	if c.changed.Swap(true) {
		return false
	}

	c.mu.RLock()
	funcs := make([]func(), len(c.funcs))
	copy(funcs, c.funcs)
	c.mu.RUnlock()

	for _, cb := range funcs {
		if cb != nil {
			cb()
		}
	}
	return true
}

// CallbackChangeToken is a ChangeToken that supports active callbacks.
// Used by drivers that have native file system events (local, memory).
type CallbackChangeToken struct {
	cbs callbacks
}

// NewCallbackChangeToken creates a new ChangeToken that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) HasChanged() bool {
	return t.cbs.changed.Load()
}

func (t *CallbackChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *CallbackChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	return t.cbs.register(callback)
}

// SignalChange marks the token as changed and invokes all callbacks.
// Only the first call has an effect.
func (t *CallbackChangeToken) SignalChange() {
	t.cbs.fire()
}

// ============================================================================
// Polling ChangeToken
// ============================================================================

// PollingChangeToken is a ChangeToken for backends without native events.
// It compares successive snapshots of a file's metadata.
//
// The polling goroutine stops when the token fires, when the context passed
// to NewPollingChangeToken is cancelled, or when Stop is called.
type PollingChangeToken struct {
	cbs     callbacks
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// PollingConfig configures a polling change token.
type PollingConfig struct {
	// Interval between polls (default: 1 second)
	Interval time.Duration
	// Snapshot returns the state to compare; a nil snapshot means the file is absent
	Snapshot func(ctx context.Context) *FileInfo
}

// NewPollingChangeToken takes an initial snapshot and starts polling.
func NewPollingChangeToken(ctx context.Context, config PollingConfig) *PollingChangeToken {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &PollingChangeToken{cancel: cancel}

	var initial *FileInfo
	if config.Snapshot != nil {
		initial = config.Snapshot(ctx)
	}

	go t.poll(ctx, config, initial)

	return t
}

func (t *PollingChangeToken) poll(ctx context.Context, config PollingConfig, last *FileInfo) {
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()
	defer t.cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if config.Snapshot == nil {
				continue
			}
			current := config.Snapshot(ctx)
			if ctx.Err() != nil {
				return
			}
			if !sameSnapshot(last, current) {
				t.cbs.fire()
				return // Token is now "spent"
			}
		}
	}
}

func sameSnapshot(a, b *FileInfo) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Size == b.Size && a.ModTime.Equal(b.ModTime) && a.IsDir == b.IsDir
}

func (t *PollingChangeToken) HasChanged() bool {
	return t.cbs.changed.Load()
}

func (t *PollingChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *PollingChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	return t.cbs.register(callback)
}

// Stop stops the polling goroutine.
// It is safe to call Stop multiple times.
func (t *PollingChangeToken) Stop() {
	t.stopped.Store(true)
	t.cancel()
}

// Stopped reports whether Stop has been called.
func (t *PollingChangeToken) Stopped() bool {
	return t.stopped.Load()
}

// ============================================================================
// Helper: OnChange
// ============================================================================

// OnChange continuously watches for changes, asking tokenProducer for a
// fresh token each time the previous one fires, and runs changeAction on
// every change. Watching ends when tokenProducer fails or cancel is called.
func OnChange(tokenProducer func() (ChangeToken, error), changeAction func()) (cancel func()) {
	ctx, cancelFunc := context.WithCancel(context.Background())

	go func() {
		for {
			token, err := tokenProducer()
			if err != nil {
				return
			}

			done := make(chan struct{})
			var once sync.Once
			unregister := token.RegisterChangeCallback(func() {
				once.Do(func() { close(done) })
			})

			select {
			case <-ctx.Done():
				unregister()
				return
			case <-done:
				unregister()
				changeAction()
			}
		}
	}()

	return cancelFunc
}
