package filehandle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestCallbackChangeToken(t *testing.T) {
	t.Run("fires callbacks once", func(t *testing.T) {
		token := NewCallbackChangeToken()
		assert.False(t, token.HasChanged())
		assert.True(t, token.ActiveChangeCallbacks())

		var calls atomic.Int32
		token.RegisterChangeCallback(func() { calls.Add(1) })
		token.RegisterChangeCallback(func() { calls.Add(1) })

		token.SignalChange()
		token.SignalChange()

		assert.True(t, token.HasChanged())
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("late registration runs immediately", func(t *testing.T) {
		token := NewCallbackChangeToken()
		token.SignalChange()

		var called bool
		token.RegisterChangeCallback(func() { called = true })
		assert.True(t, called)
	})

	t.Run("unregistered callbacks are skipped", func(t *testing.T) {
		token := NewCallbackChangeToken()
		var calls atomic.Int32
		unregister := token.RegisterChangeCallback(func() { calls.Add(1) })
		unregister()
		unregister()

		token.SignalChange()
		assert.Zero(t, calls.Load())
	})

	t.Run("concurrent signal and register", func(t *testing.T) {
		token := NewCallbackChangeToken()
		var calls atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				token.RegisterChangeCallback(func() { calls.Add(1) })
			}()
			go func() {
				defer wg.Done()
				token.SignalChange()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(20), calls.Load())
	})
}

func TestPollingChangeToken(t *testing.T) {
	t.Run("fires when snapshot changes", func(t *testing.T) {
		var mu sync.Mutex
		info := &FileInfo{Size: 1, ModTime: time.Unix(100, 0)}
		snapshot := func(context.Context) *FileInfo {
			mu.Lock()
			defer mu.Unlock()
			if info == nil {
				return nil
			}
			c := *info
			return &c
		}

		token := NewPollingChangeToken(context.Background(), PollingConfig{
			Interval: 5 * time.Millisecond,
			Snapshot: snapshot,
		})
		defer token.Stop()

		time.Sleep(30 * time.Millisecond)
		assert.False(t, token.HasChanged())

		fired := make(chan struct{})
		token.RegisterChangeCallback(func() { close(fired) })

		mu.Lock()
		info.Size = 2
		mu.Unlock()

		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatal("token did not fire")
		}
		assert.True(t, token.HasChanged())
	})

	t.Run("fires when file disappears", func(t *testing.T) {
		var gone atomic.Bool
		token := NewPollingChangeToken(context.Background(), PollingConfig{
			Interval: 5 * time.Millisecond,
			Snapshot: func(context.Context) *FileInfo {
				if gone.Load() {
					return nil
				}
				return &FileInfo{Size: 1}
			},
		})
		defer token.Stop()

		gone.Store(true)
		waitFor(t, token.HasChanged)
	})

	t.Run("stop ends polling", func(t *testing.T) {
		var polls atomic.Int32
		token := NewPollingChangeToken(context.Background(), PollingConfig{
			Interval: 5 * time.Millisecond,
			Snapshot: func(context.Context) *FileInfo {
				polls.Add(1)
				return nil
			},
		})
		token.Stop()
		token.Stop()
		assert.True(t, token.Stopped())

		time.Sleep(20 * time.Millisecond)
		settled := polls.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, settled, polls.Load())
		assert.False(t, token.HasChanged())
	})

	t.Run("cancelled context ends polling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		token := NewPollingChangeToken(ctx, PollingConfig{Interval: 5 * time.Millisecond})
		cancel()
		time.Sleep(20 * time.Millisecond)
		assert.False(t, token.HasChanged())
		assert.False(t, token.Stopped())
	})
}

func TestSameSnapshot(t *testing.T) {
	ts := time.Unix(100, 0)
	a := &FileInfo{Size: 1, ModTime: ts}

	assert.True(t, sameSnapshot(nil, nil))
	assert.False(t, sameSnapshot(a, nil))
	assert.False(t, sameSnapshot(nil, a))
	assert.True(t, sameSnapshot(a, &FileInfo{Size: 1, ModTime: ts, Name: "other"}))
	assert.False(t, sameSnapshot(a, &FileInfo{Size: 2, ModTime: ts}))
	assert.False(t, sameSnapshot(a, &FileInfo{Size: 1, ModTime: ts.Add(time.Nanosecond)}))
	assert.False(t, sameSnapshot(a, &FileInfo{Size: 1, ModTime: ts, IsDir: true}))
}

func TestOnChange(t *testing.T) {
	t.Run("renews the token after every change", func(t *testing.T) {
		tokens := make(chan *CallbackChangeToken, 10)
		var changes atomic.Int32

		cancel := OnChange(func() (ChangeToken, error) {
			token := NewCallbackChangeToken()
			tokens <- token
			return token, nil
		}, func() { changes.Add(1) })
		defer cancel()

		for i := 0; i < 3; i++ {
			select {
			case token := <-tokens:
				token.SignalChange()
			case <-time.After(2 * time.Second):
				t.Fatal("no token produced")
			}
		}
		waitFor(t, func() bool { return changes.Load() == 3 })
	})

	t.Run("stops when the producer fails", func(t *testing.T) {
		var calls atomic.Int32
		cancel := OnChange(func() (ChangeToken, error) {
			calls.Add(1)
			return nil, errors.New("unavailable")
		}, func() { t.Error("action must not run") })
		defer cancel()

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancel stops watching", func(t *testing.T) {
		token := NewCallbackChangeToken()
		var changes atomic.Int32
		cancel := OnChange(func() (ChangeToken, error) {
			return token, nil
		}, func() { changes.Add(1) })

		cancel()
		time.Sleep(10 * time.Millisecond)
		token.SignalChange()
		time.Sleep(10 * time.Millisecond)
		assert.Zero(t, changes.Load())
	})
}
