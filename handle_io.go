package filehandle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// ReadStream opens a fresh stream over the file content. The caller must
// close it.
func (h *Handle) ReadStream(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return h.fs.Read(ctx, h.path)
}

// WriteStream opens a fresh stream that replaces the file content. The
// caller must close it; the new content is visible once Close returns.
func (h *Handle) WriteStream(ctx context.Context) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return h.fs.OpenWrite(ctx, h.path)
}

func (h *Handle) openRead(ctx context.Context, op string) (io.ReadCloser, error) {
	rc, err := h.ReadStream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, ioError(op, h.path, err)
	}
	return rc, nil
}

func (h *Handle) textEncoding(op string) (encoding.Encoding, error) {
	enc, err := LookupEncoding(h.opts.Encoding)
	if err != nil {
		return nil, NewPathError(op, h.path, fmt.Errorf("%w: %w", ErrInvalidArgument, err))
	}
	return enc, nil
}

// ============================================================================
// Existence
// ============================================================================

// Ensure makes sure something exists at the path. If the path already
// exists the handle is returned untouched and existing content is kept.
// Otherwise an empty file is created. Parent directories are not created;
// a missing parent fails with ErrIO.
func (h *Handle) Ensure(ctx context.Context) (*Handle, error) {
	start := time.Now()
	if _, err := h.Stat(ctx); err == nil {
		return h, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := touch(ctx, h.fs, "ensure", h.path)
	h.logOp("ensure", start, err, nil)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Empty truncates an existing file to zero length. On a path where nothing
// exists it does nothing and does not create the file.
func (h *Handle) Empty(ctx context.Context) (*Handle, error) {
	start := time.Now()
	if _, err := h.Stat(ctx); err != nil {
		if IsNotExist(err) {
			return h, nil
		}
		return nil, err
	}

	err := touch(ctx, h.fs, "empty", h.path)
	h.logOp("empty", start, err, nil)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Remove deletes the path and anything below it. Removing a path that does
// not exist succeeds. The returned handle is h, now naming nothing.
func (h *Handle) Remove(ctx context.Context) (*Handle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	start := time.Now()
	err := h.fs.RemoveAll(ctx, h.path)
	if err != nil && ctx.Err() == nil {
		err = ioError("remove", h.path, err)
	}
	h.logOp("remove", start, err, nil)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ============================================================================
// Reading
// ============================================================================

// Text reads the whole file and decodes it with the handle's encoding.
func (h *Handle) Text(ctx context.Context) (string, error) {
	enc, err := h.textEncoding("text")
	if err != nil {
		return "", err
	}

	sink, err := h.readInto(ctx, "text", func(rc io.ReadCloser) io.ReadCloser {
		return &readCloser{Reader: transform.NewReader(rc, enc.NewDecoder()), Closer: rc}
	})
	if err != nil {
		return "", err
	}
	return sink.String(), nil
}

// Bytes reads the whole file as raw bytes, chunks concatenated in the
// order they arrived.
func (h *Handle) Bytes(ctx context.Context) ([]byte, error) {
	sink, err := h.readInto(ctx, "bytes", nil)
	if err != nil {
		return nil, err
	}
	return sink.Bytes(), nil
}

func (h *Handle) readInto(ctx context.Context, op string, wrap func(io.ReadCloser) io.ReadCloser) (*bufferSink, error) {
	start := time.Now()
	src, err := h.openRead(ctx, op)
	if err != nil {
		return nil, err
	}
	if wrap != nil {
		src = wrap(src)
	}

	sink := &bufferSink{}
	n, err := transfer{op: op, srcPath: h.path, dstPath: h.path, bufSize: h.opts.BufferSize}.run(ctx, src, sink)
	h.logOp(op, start, err, logrus.Fields{"bytes": n})
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// PipeTo streams the file content into w and returns the number of bytes
// written. If w is also an io.Closer it is closed once the content has been
// transferred or the transfer failed.
func (h *Handle) PipeTo(ctx context.Context, w io.Writer) (int64, error) {
	if w == nil {
		return 0, NewPathError("pipe", h.path, fmt.Errorf("%w: nil writer", ErrInvalidArgument))
	}

	start := time.Now()
	src, err := h.openRead(ctx, "pipe")
	if err != nil {
		return 0, err
	}

	n, err := transfer{op: "pipe", srcPath: h.path, dstPath: h.path, bufSize: h.opts.BufferSize}.run(ctx, src, writerSink{w})
	h.logOp("pipe", start, err, logrus.Fields{"bytes": n})
	return n, err
}

// ============================================================================
// Writing
// ============================================================================

// Write replaces the file content with p. The handle is returned once the
// write stream has fully closed, so a Read issued right after observes p.
func (h *Handle) Write(ctx context.Context, p []byte) (*Handle, error) {
	return h.writeFrom(ctx, "write", h.path, io.NopCloser(bytes.NewReader(p)))
}

// WriteString replaces the file content with s encoded with the handle's
// encoding. Characters the encoding cannot represent are replaced.
func (h *Handle) WriteString(ctx context.Context, s string) (*Handle, error) {
	enc, err := h.textEncoding("write")
	if err != nil {
		return nil, err
	}
	encoded := transform.NewReader(strings.NewReader(s), encoding.ReplaceUnsupported(enc.NewEncoder()))
	return h.writeFrom(ctx, "write", h.path, io.NopCloser(encoded))
}

// WriteFrom replaces the file content with everything read from r. If r is
// an io.ReadCloser it is closed once it has been drained or the transfer
// failed.
func (h *Handle) WriteFrom(ctx context.Context, r io.Reader) (*Handle, error) {
	if r == nil {
		return nil, NewPathError("write", h.path, fmt.Errorf("%w: nil reader", ErrInvalidArgument))
	}
	return h.writeFrom(ctx, "write", "(reader)", asReadCloser(r))
}

// WriteFromHandle replaces the file content with the content of src. The
// source is opened first, so a missing source leaves this file untouched.
func (h *Handle) WriteFromHandle(ctx context.Context, src *Handle) (*Handle, error) {
	return h.copyFrom(ctx, "write", src)
}

// Put dispatches on the shape of input, in this order:
//
//   - string: WriteString
//   - []byte: Write
//   - *Handle: WriteFromHandle
//   - io.Reader: WriteFrom
//
// Anything else, nil included, fails with ErrInvalidArgument.
func (h *Handle) Put(ctx context.Context, input any) (*Handle, error) {
	switch v := input.(type) {
	case string:
		return h.WriteString(ctx, v)
	case []byte:
		return h.Write(ctx, v)
	case *Handle:
		return h.WriteFromHandle(ctx, v)
	case io.Reader:
		return h.WriteFrom(ctx, v)
	default:
		return nil, NewPathError("put", h.path, fmt.Errorf("%w: unsupported input %T", ErrInvalidArgument, input))
	}
}

func (h *Handle) copyFrom(ctx context.Context, op string, src *Handle) (*Handle, error) {
	if src == nil {
		return nil, NewPathError(op, h.path, fmt.Errorf("%w: nil source handle", ErrInvalidArgument))
	}
	if h.samePath(src) {
		return nil, NewPathError(op, h.path, fmt.Errorf("%w: source and destination are the same file", ErrInvalidArgument))
	}

	rc, err := src.openRead(ctx, op)
	if err != nil {
		return nil, err
	}
	return h.writeFrom(ctx, op, src.path, rc)
}

func (h *Handle) writeFrom(ctx context.Context, op, srcPath string, src io.ReadCloser) (*Handle, error) {
	select {
	case <-ctx.Done():
		src.Close()
		return nil, ctx.Err()
	default:
	}

	start := time.Now()
	dst, err := h.fs.OpenWrite(ctx, h.path)
	if err != nil {
		src.Close()
		err = ioError(op, h.path, err)
		h.logOp(op, start, err, nil)
		return nil, err
	}

	n, err := transfer{op: op, srcPath: srcPath, dstPath: h.path, bufSize: h.opts.BufferSize}.run(ctx, src, dst)
	h.logOp(op, start, err, logrus.Fields{"bytes": n, "from": srcPath})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ============================================================================
// Copy and move
// ============================================================================

// Copy streams the content into dst and returns a new handle bound to dst.
// The source is left untouched. When Copy fails the state of dst is
// undefined and must not be relied on.
func (h *Handle) Copy(ctx context.Context, dst string) (*Handle, error) {
	return h.sibling(dst).copyFrom(ctx, "copy", h)
}

// Move copies the content into dst and then removes the source, returning
// a handle bound to dst. If the copy fails the source is left untouched.
// If the copy succeeds but the source cannot be removed, Move returns the
// destination handle together with a *MoveError; both files then exist.
func (h *Handle) Move(ctx context.Context, dst string) (*Handle, error) {
	dest, err := h.sibling(dst).copyFrom(ctx, "move", h)
	if err != nil {
		return nil, err
	}

	if _, err := h.Remove(ctx); err != nil {
		h.opts.Logger.WithFields(logrus.Fields{
			"op":   "move",
			"path": h.path,
			"dst":  dest.path,
		}).WithError(err).Warn("filehandle: source not removed after copy")
		return dest, &MoveError{Src: h.path, Dst: dest.path, Err: err}
	}
	return dest, nil
}

// ============================================================================
// Hashing
// ============================================================================

// Hash streams the content through the given algorithm and returns the
// digest rendered with enc.
func (h *Handle) Hash(ctx context.Context, algorithm ChecksumAlgorithm, enc DigestEncoding) (string, error) {
	hasher, err := NewHasher(algorithm)
	if err != nil {
		return "", NewPathError("hash", h.path, err)
	}
	if _, err := EncodeDigest(nil, enc); err != nil {
		return "", NewPathError("hash", h.path, err)
	}

	start := time.Now()
	src, err := h.openRead(ctx, "hash")
	if err != nil {
		return "", err
	}

	n, err := transfer{op: "hash", srcPath: h.path, dstPath: h.path, bufSize: h.opts.BufferSize}.run(ctx, src, hashSink{hasher})
	h.logOp("hash", start, err, logrus.Fields{"bytes": n, "algorithm": algorithm})
	if err != nil {
		return "", err
	}
	return EncodeDigest(hasher.Sum(nil), enc)
}

// MD5 returns the hex-encoded MD5 digest of the content.
func (h *Handle) MD5(ctx context.Context) (string, error) {
	return h.Hash(ctx, ChecksumMD5, DigestHex)
}

// Checksums computes several hex-encoded digests in a single read pass.
func (h *Handle) Checksums(ctx context.Context, algorithms ...ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	sink, err := newMultiHashSink(algorithms)
	if err != nil {
		return nil, NewPathError("checksums", h.path, err)
	}

	start := time.Now()
	src, err := h.openRead(ctx, "checksums")
	if err != nil {
		return nil, err
	}

	n, err := transfer{op: "checksums", srcPath: h.path, dstPath: h.path, bufSize: h.opts.BufferSize}.run(ctx, src, sink)
	h.logOp("checksums", start, err, logrus.Fields{"bytes": n})
	if err != nil {
		return nil, err
	}
	return sink.sums(), nil
}
