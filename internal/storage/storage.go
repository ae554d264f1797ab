// Package storage stores partition archives in object storage.
package storage

import (
	"context"
	"io"

	relerr "github.com/relmap/relmap/internal/errors"
)

// Sentinels matched with errors.Is.
var (
	ErrObjectNotFound = relerr.New(relerr.ErrCategoryStorage, relerr.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = relerr.New(relerr.ErrCategoryStorage, relerr.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = relerr.New(relerr.ErrCategoryStorage, relerr.CodeDownloadFailed, "download failed")
)

// ObjectStorage abstracts the object store archives are written to.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Put stores the content of body under objectPath and returns its ETag.
	// body may be read more than once when the upload is retried.
	Put(ctx context.Context, objectPath string, body io.ReadSeeker) (string, error)

	// Get opens the object at objectPath. The caller closes the reader.
	// A missing object is ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns the object paths under prefix in lexical order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

func uploadFailed(objectPath string, cause error) error {
	return relerr.Wrap(relerr.ErrCategoryStorage, relerr.CodeUploadFailed, "upload "+objectPath, cause)
}

func downloadFailed(objectPath string, cause error) error {
	return relerr.Wrap(relerr.ErrCategoryStorage, relerr.CodeDownloadFailed, "download "+objectPath, cause)
}

func notFound(objectPath string) error {
	return relerr.Newf(relerr.ErrCategoryStorage, relerr.CodeObjectNotFound, "object %q not found", objectPath)
}
