package filehandle

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// DefaultBufferSize is the chunk size used when pumping a stream.
const DefaultBufferSize = 32 * 1024

// ============================================================================
// Settlement
// ============================================================================

// settler holds the outcome of one stream operation. The first call to
// resolve or reject wins; every later call is ignored and reports false.
type settler[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newSettler[T any]() *settler[T] {
	return &settler[T]{done: make(chan struct{})}
}

func (s *settler[T]) settle(value T, err error) (first bool) {
	s.once.Do(func() {
		s.value, s.err = value, err
		close(s.done)
		first = true
	})
	return first
}

func (s *settler[T]) resolve(value T) bool {
	return s.settle(value, nil)
}

func (s *settler[T]) reject(err error) bool {
	var zero T
	return s.settle(zero, err)
}

func (s *settler[T]) settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// result blocks until the settler has been settled.
func (s *settler[T]) result() (T, error) {
	<-s.done
	return s.value, s.err
}

// ============================================================================
// Source events
// ============================================================================

type eventKind int

const (
	eventData eventKind = iota
	eventError
	eventEnd
)

type streamEvent struct {
	kind  eventKind
	chunk []byte
	err   error
}

// emit reads src until EOF or failure and reports what it saw on events.
// It stops as soon as quit is closed and always closes events on return.
func emit(src io.Reader, bufSize int, events chan<- streamEvent, quit <-chan struct{}) {
	defer close(events)

	send := func(ev streamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-quit:
			return false
		}
	}

	for {
		buf := make([]byte, bufSize)
		n, err := src.Read(buf)
		if n > 0 {
			if !send(streamEvent{kind: eventData, chunk: buf[:n]}) {
				return
			}
		}
		switch {
		case err == io.EOF:
			send(streamEvent{kind: eventEnd})
			return
		case err != nil:
			send(streamEvent{kind: eventError, err: err})
			return
		}
	}
}

// ============================================================================
// Transfer
// ============================================================================

// closeWithError is implemented by sinks that can discard a partial write,
// such as *io.PipeWriter.
type closeWithError interface {
	CloseWithError(err error) error
}

// transfer pumps one source into one sink and settles exactly once.
type transfer struct {
	op      string
	srcPath string
	dstPath string
	bufSize int
}

// run copies src into dst. Both streams are closed on every path.
//
// The first failure wins: a source error, a sink write error or context
// cancellation. Close errors only count when nothing failed before them.
// Success is reported once dst.Close has returned.
//
// src.Close is only called after the reader goroutine has exited, except
// on cancellation: closing the source is then the only way to interrupt a
// blocked Read, and run returns without waiting for a source that cannot be
// interrupted. No chunk reaches dst after run has stopped consuming.
func (t transfer) run(ctx context.Context, src io.ReadCloser, dst io.WriteCloser) (int64, error) {
	bufSize := t.bufSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	result := newSettler[int64]()
	var (
		written int64
		srcErr  error
	)
	if err := ctx.Err(); err != nil {
		result.reject(err)
		srcErr = src.Close()
	} else {
		written, srcErr = t.pump(ctx, src, dst, bufSize, result)
	}

	var dstErr error
	if cw, ok := dst.(closeWithError); ok && result.settled() {
		_, cause := result.result()
		dstErr = cw.CloseWithError(cause)
	} else {
		dstErr = dst.Close()
	}

	if srcErr != nil {
		result.reject(ioError(t.op, t.srcPath, srcErr))
	}
	if dstErr != nil {
		result.reject(ioError(t.op, t.dstPath, dstErr))
	}
	result.resolve(written)

	return result.result()
}

// pump feeds chunks from a reader goroutine into dst until the source ends
// or something fails, then closes src.
func (t transfer) pump(ctx context.Context, src io.ReadCloser, dst io.Writer, bufSize int, result *settler[int64]) (int64, error) {
	events := make(chan streamEvent)
	quit := make(chan struct{})
	go emit(src, bufSize, events, quit)

	var (
		written   int64
		cancelled bool
	)
pump:
	for {
		select {
		case <-ctx.Done():
			result.reject(ctx.Err())
			cancelled = true
			break pump
		case ev, ok := <-events:
			if !ok {
				break pump
			}
			switch ev.kind {
			case eventData:
				n, err := dst.Write(ev.chunk)
				written += int64(n)
				if err == nil && n < len(ev.chunk) {
					err = io.ErrShortWrite
				}
				if err != nil {
					result.reject(ioError(t.op, t.dstPath, err))
					break pump
				}
			case eventError:
				result.reject(ioError(t.op, t.srcPath, ev.err))
				break pump
			case eventEnd:
				break pump
			}
		}
	}

	close(quit)
	if !cancelled {
		cancelled = !join(ctx, events)
		if cancelled {
			result.reject(ctx.Err())
		}
	}
	return written, src.Close()
}

// join discards late events until the reader goroutine has exited. It
// gives up and reports false when ctx is cancelled first.
func join(ctx context.Context, events <-chan streamEvent) bool {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

// touch opens a write stream on path and closes it straight away,
// leaving an empty file behind.
func touch(ctx context.Context, fsys FileWriter, op, path string) error {
	w, err := fsys.OpenWrite(ctx, path)
	if err != nil {
		return ioError(op, path, err)
	}
	if err := w.Close(); err != nil {
		return ioError(op, path, err)
	}
	return nil
}

// ============================================================================
// Stream adapters
// ============================================================================

// readCloser pairs a (possibly transformed) reader with the closer of the
// stream it reads from.
type readCloser struct {
	io.Reader
	io.Closer
}

// bufferSink accumulates chunks in arrival order.
type bufferSink struct {
	bytes.Buffer
}

func (*bufferSink) Close() error { return nil }

// writerSink forwards chunks to an arbitrary writer and closes it when it
// is also an io.Closer.
type writerSink struct {
	io.Writer
}

func (w writerSink) Close() error {
	if c, ok := w.Writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// asReadCloser returns r as an io.ReadCloser, closing it only if it
// already was one.
func asReadCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}
