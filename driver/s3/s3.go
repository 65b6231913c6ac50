package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gobeaver/filehandle"
)

// maxDeleteBatch is the most keys DeleteObjects accepts per request.
const maxDeleteBatch = 1000

// API is the subset of the S3 client the adapter uses. *s3.Client
// satisfies it.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Adapter provides an S3 implementation of filehandle.FileSystem.
//
// S3 has no directories: a path is a directory when objects exist below
// "path/". Writes are buffered and uploaded with a single PutObject when the
// write stream closes, so the previous object stays readable until then.
// Parent "directories" never need to exist.
type Adapter struct {
	client API
	bucket string
	prefix string
}

// AdapterOption is a function that configures Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for S3 objects
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		// Ensure prefix ends with a slash if it's not empty
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates a new S3 filesystem adapter
func New(client API, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// key combines the prefix and a handle path into an object key.
func (a *Adapter) key(filePath string) string {
	p := path.Clean("/" + strings.ReplaceAll(filePath, "\\", "/"))
	return strings.TrimPrefix(a.prefix+strings.TrimPrefix(p, "/"), "/")
}

// Stat implements filehandle.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*filehandle.FileInfo, error) {
	key := a.key(filePath)

	if key != "" && !strings.HasSuffix(key, "/") {
		resp, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			// Extract metadata
			var metadata map[string]string
			if len(resp.Metadata) > 0 {
				metadata = make(map[string]string, len(resp.Metadata))
				for k, v := range resp.Metadata {
					metadata[k] = v
				}
			}

			return &filehandle.FileInfo{
				Name:        path.Base(key),
				Path:        filePath,
				Size:        aws.ToInt64(resp.ContentLength),
				ModTime:     aws.ToTime(resp.LastModified),
				ContentType: aws.ToString(resp.ContentType),
				Metadata:    metadata,
			}, nil
		}
		if !isNotFound(err) {
			return nil, mapS3Error("stat", filePath, err)
		}
	}

	// Not an object; it may still be a directory
	isDir, err := a.hasChildren(ctx, key)
	if err != nil {
		return nil, mapS3Error("stat", filePath, err)
	}
	if !isDir {
		return nil, filehandle.WrapPathErr("stat", filePath, filehandle.ErrNotExist)
	}

	return &filehandle.FileInfo{
		Name:  path.Base("/" + strings.TrimSuffix(key, "/")),
		Path:  filePath,
		IsDir: true,
	}, nil
}

// hasChildren reports whether any object lives below key.
func (a *Adapter) hasChildren(ctx context.Context, key string) (bool, error) {
	dirKey := key
	if dirKey != "" && !strings.HasSuffix(dirKey, "/") {
		dirKey += "/"
	}

	resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(dirKey),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0 || dirKey == "", nil
}

// Read implements filehandle.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	key := a.key(filePath)

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error("read", filePath, err)
	}

	return resp.Body, nil
}

// OpenWrite implements filehandle.FileWriter. The object is replaced when
// the returned stream closes; Close blocks until the upload has finished.
func (a *Adapter) OpenWrite(ctx context.Context, filePath string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	key := a.key(filePath)
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, filehandle.WrapPathErr("openwrite", filePath, filehandle.ErrIsDir)
	}

	return &objectWriter{ctx: ctx, adapter: a, path: filePath, key: key}, nil
}

// RemoveAll implements filehandle.FileWriter. It deletes the object at
// the path and every object below "path/".
func (a *Adapter) RemoveAll(ctx context.Context, filePath string) error {
	key := a.key(filePath)
	if key == "" || key == a.prefix {
		return filehandle.WrapPathErr("removeall", filePath, filehandle.ErrNotAllowed)
	}

	// Deleting a missing key succeeds in S3
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return mapS3Error("removeall", filePath, err)
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(strings.TrimSuffix(key, "/") + "/"),
	})

	var batch []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapS3Error("removeall", filePath, err)
		}
		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == maxDeleteBatch {
				if err := a.deleteBatch(ctx, batch); err != nil {
					return mapS3Error("removeall", filePath, err)
				}
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		if err := a.deleteBatch(ctx, batch); err != nil {
			return mapS3Error("removeall", filePath, err)
		}
	}

	return nil
}

func (a *Adapter) deleteBatch(ctx context.Context, objects []types.ObjectIdentifier) error {
	resp, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(a.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		return fmt.Errorf("delete %s: %s: %s", aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
	}
	return nil
}

// objectWriter buffers content until Close uploads it.
type objectWriter struct {
	ctx     context.Context
	adapter *Adapter
	path    string
	key     string
	buf     bytes.Buffer
	closed  bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, filehandle.WrapPathErr("write", w.path, io.ErrClosedPipe)
	}
	return w.buf.Write(p)
}

// Close uploads the buffered content as the new object.
func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	input := &s3.PutObjectInput{
		Bucket:        aws.String(w.adapter.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
	}
	input.ContentType = aws.String(filehandle.GuessContentType(w.key, w.buf.Bytes()))

	if _, err := w.adapter.client.PutObject(w.ctx, input); err != nil {
		return mapS3Error("write", w.path, err)
	}
	return nil
}

// CloseWithError abandons the write; the existing object is left as it was.
func (w *objectWriter) CloseWithError(error) error {
	w.closed = true
	w.buf.Reset()
	return nil
}

// isNotFound reports whether err is a missing key or bucket entry.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// mapS3Error maps S3 errors to filehandle errors
func mapS3Error(op, filePath string, err error) error {
	if isNotFound(err) {
		return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrNotExist, err))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			return filehandle.WrapPathErr(op, filePath, fmt.Errorf("%w: %w", filehandle.ErrPermission, err))
		}
	}

	return filehandle.WrapPathErr(op, filePath, err)
}

var _ filehandle.FileSystem = (*Adapter)(nil)
