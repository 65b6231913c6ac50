package filehandle

import (
	"bufio"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// encryptChunkSize is the plaintext size of every sealed chunk but the last.
const encryptChunkSize = 64 * 1024

// ErrDecryptionFailed is returned when stored content cannot be
// authenticated with the key, including truncated content.
var ErrDecryptionFailed = fmt.Errorf("%w: decryption failed", ErrIO)

// EncryptedFileSystem wraps a FileSystem and encrypts content at rest with
// AES-GCM. Content is stored as a random base nonce followed by sealed
// chunks of encryptChunkSize plaintext bytes. The last chunk is sealed with
// a distinct marker, so dropping trailing chunks fails authentication.
//
// Stat reports the plaintext size.
type EncryptedFileSystem struct {
	fs   FileSystem
	aead cipher.AEAD
}

// NewEncryptedFileSystem creates an encrypting wrapper. The key must be 16,
// 24 or 32 bytes long.
func NewEncryptedFileSystem(fs FileSystem, key []byte) (*EncryptedFileSystem, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &EncryptedFileSystem{fs: fs, aead: aead}, nil
}

// Unwrap returns the underlying FileSystem.
func (e *EncryptedFileSystem) Unwrap() FileSystem {
	return e.fs
}

// Stat delegates to the underlying filesystem and converts the stored size
// back to the plaintext size.
func (e *EncryptedFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	info, err := e.fs.Stat(ctx, path)
	if err != nil || info.IsDir {
		return info, err
	}
	plain := *info
	plain.Size = e.plaintextSize(info.Size)
	return &plain, nil
}

func (e *EncryptedFileSystem) plaintextSize(stored int64) int64 {
	overhead := int64(e.aead.Overhead())
	sealed := int64(encryptChunkSize) + overhead

	body := stored - int64(e.aead.NonceSize())
	if body < overhead {
		return 0
	}
	full, rest := body/sealed, body%sealed
	if rest == 0 {
		return full * encryptChunkSize
	}
	if rest < overhead {
		return full * encryptChunkSize
	}
	return full*encryptChunkSize + rest - overhead
}

// Read opens the stored stream and decrypts it chunk by chunk.
func (e *EncryptedFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := e.fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rc, nonce); err != nil {
		rc.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, NewPathError("read", path, ErrDecryptionFailed)
		}
		return nil, NewPathError("read", path, err)
	}

	return &decryptReader{
		aead:   e.aead,
		src:    bufio.NewReader(rc),
		closer: rc,
		nonce:  nonce,
		sealed: make([]byte, encryptChunkSize+e.aead.Overhead()),
	}, nil
}

// OpenWrite opens a stream that seals content before passing it on.
func (e *EncryptedFileSystem) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, NewPathError("openwrite", path, err)
	}

	w, err := e.fs.OpenWrite(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(nonce); err != nil {
		abort(w, err)
		return nil, NewPathError("openwrite", path, err)
	}

	return &encryptWriter{
		aead:  e.aead,
		dst:   w,
		nonce: nonce,
		buf:   make([]byte, 0, encryptChunkSize),
	}, nil
}

// RemoveAll delegates to the underlying filesystem.
func (e *EncryptedFileSystem) RemoveAll(ctx context.Context, path string) error {
	return e.fs.RemoveAll(ctx, path)
}

// Watch delegates to the underlying filesystem if supported.
func (e *EncryptedFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := e.fs.(CanWatch); ok {
		return watcher.Watch(ctx, pattern)
	}
	return nil, NewPathError("watch", pattern, ErrNotSupported)
}

var (
	_ FileSystem = (*EncryptedFileSystem)(nil)
	_ CanWatch   = (*EncryptedFileSystem)(nil)
)

// chunkNonce derives the nonce of chunk counter from the stream's base nonce.
func chunkNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	tail := nonce[len(nonce)-8:]
	binary.BigEndian.PutUint64(tail, binary.BigEndian.Uint64(tail)^counter)
	return nonce
}

// chunkAD marks whether a chunk is the last one of its stream.
func chunkAD(final bool) []byte {
	if final {
		return []byte{1}
	}
	return []byte{0}
}

// abort discards a partially written stream.
func abort(w io.WriteCloser, cause error) error {
	if cw, ok := w.(closeWithError); ok {
		return cw.CloseWithError(cause)
	}
	return w.Close()
}

type encryptWriter struct {
	aead    cipher.AEAD
	dst     io.WriteCloser
	nonce   []byte
	counter uint64
	buf     []byte
	err     error
}

// Write buffers plaintext and seals a chunk only once more data follows it,
// so the final chunk is always sealed by Close.
func (w *encryptWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	written := 0
	for len(p) > 0 {
		if len(w.buf) == encryptChunkSize {
			if err := w.seal(false); err != nil {
				return written, err
			}
		}
		n := copy(w.buf[len(w.buf):encryptChunkSize], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		written += n
	}
	return written, nil
}

func (w *encryptWriter) seal(final bool) error {
	sealed := w.aead.Seal(nil, chunkNonce(w.nonce, w.counter), w.buf, chunkAD(final))
	w.counter++
	w.buf = w.buf[:0]
	if _, err := w.dst.Write(sealed); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Close seals the last chunk and closes the underlying stream.
func (w *encryptWriter) Close() error {
	if w.err != nil {
		return abort(w.dst, w.err)
	}
	if err := w.seal(true); err != nil {
		abort(w.dst, err)
		return err
	}
	return w.dst.Close()
}

// CloseWithError abandons the stream without sealing a final chunk.
func (w *encryptWriter) CloseWithError(cause error) error {
	return abort(w.dst, cause)
}

type decryptReader struct {
	aead    cipher.AEAD
	src     *bufio.Reader
	closer  io.Closer
	nonce   []byte
	counter uint64
	sealed  []byte
	plain   []byte
	done    bool
	err     error
}

func (r *decryptReader) Read(p []byte) (int, error) {
	for len(r.plain) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.done {
			return 0, io.EOF
		}
		r.err = r.next()
	}
	n := copy(p, r.plain)
	r.plain = r.plain[n:]
	return n, nil
}

// next opens the following chunk into r.plain.
func (r *decryptReader) next() error {
	n, err := io.ReadFull(r.src, r.sealed)
	final := false
	switch {
	case err == nil:
		if _, peekErr := r.src.Peek(1); peekErr == io.EOF {
			final = true
		} else if peekErr != nil {
			return peekErr
		}
	case errors.Is(err, io.ErrUnexpectedEOF):
		final = true
	case errors.Is(err, io.EOF):
		// the final chunk is missing
		return ErrDecryptionFailed
	default:
		return err
	}

	plain, err := r.aead.Open(nil, chunkNonce(r.nonce, r.counter), r.sealed[:n], chunkAD(final))
	if err != nil {
		return ErrDecryptionFailed
	}
	r.counter++
	r.plain = plain
	r.done = final
	return nil
}

func (r *decryptReader) Close() error {
	return r.closer.Close()
}
