// Package filehandle provides lightweight handles bound to a single file path
// on a pluggable storage backend.
//
// A [Handle] is a locator, not a cache. It carries a path, a [FileSystem] and
// a few options, and every method goes back to the backend. Nothing is opened
// when a handle is created and nothing is remembered between calls. Reads
// and writes are streamed in chunks and a write returns only after the backend stream has fully closed, so a
// read issued right after a write observes the new content.
//
// # Storage Backends
//
// Backends implement four primitives (Stat, Read, OpenWrite, RemoveAll) and
// register themselves by name when their package is imported:
//
//   - Local filesystem (github.com/gobeaver/filehandle/driver/local)
//   - In-memory (github.com/gobeaver/filehandle/driver/memory)
//   - go-billy filesystems (github.com/gobeaver/filehandle/driver/billy)
//   - Amazon S3 (github.com/gobeaver/filehandle/driver/s3)
//   - Google Cloud Storage (github.com/gobeaver/filehandle/driver/gcs)
//   - Azure Blob Storage (github.com/gobeaver/filehandle/driver/azure)
//   - SFTP (github.com/gobeaver/filehandle/driver/sftp)
//
// Backends that also implement [CanWatch] deliver native change events;
// on the others [Handle.Watch] polls Stat.
//
// # Basic Usage
//
//	import "github.com/gobeaver/filehandle/driver/local"
//
//	fs, err := local.New("./storage")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	h := filehandle.New(fs, "notes/x.md")
//
//	// Create the file if needed
//	_, err = h.Ensure(ctx)
//
//	// Replace the content
//	_, err = h.WriteString(ctx, "hello world")
//
//	// Read it back
//	text, err := h.Text(ctx)
//
//	// Digest it
//	sum, err := h.MD5(ctx)
//
//	// Move it
//	moved, err := h.Move(ctx, "archive/x.md")
//
// # Configuration
//
// A [Kit] hands out handles sharing one backend and one set of defaults. It
// is usually built from environment variables:
//
//	BEAVER_FILEHANDLE_DRIVER=local
//	BEAVER_FILEHANDLE_LOCAL_BASE_PATH=/srv/files
//	BEAVER_FILEHANDLE_ENCODING=utf-8
//	BEAVER_FILEHANDLE_HASH_ALGORITHM=sha256
//
//	kit, err := filehandle.NewFromEnv()
//	h := kit.File("reports/q1.csv")
//
// The package-level [File] function uses a lazily initialized global kit.
//
// # Errors
//
// Failures are reported as [*PathError] values wrapping one of the sentinel
// errors, so they can be classified with [errors.Is]:
//
//	if filehandle.IsNotExist(err) { ... }
//	if filehandle.IsIOError(err) { ... }
//
// A [Handle.Move] whose copy succeeded but whose source could not be removed
// returns the destination handle together with a [*MoveError].
package filehandle
