package port

import (
	"context"
	"io"
)

// ObjectStorage is the narrow storage surface the pipeline needs: existence
// checks, input download, archive upload, input deletion and a stream read
// for artifact download.
type ObjectStorage interface {
	Exists(ctx context.Context, objectKey string) (bool, error)
	Download(ctx context.Context, objectKey, destPath string) error
	UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	Delete(ctx context.Context, objectKey string) error
	OpenRead(ctx context.Context, objectKey string) (io.ReadCloser, error)
}
