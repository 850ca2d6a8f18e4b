package ports

import (
	"context"
	"io"
	"time"
)

// Low-level object storage client.
type S3Client interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// File helpers for the ffmpeg stages, which work on local paths.
	UploadFile(ctx context.Context, key, localPath, contentType string) error
	DownloadFile(ctx context.Context, key, localPath string) error

	PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
