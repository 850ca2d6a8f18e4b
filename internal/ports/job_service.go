package ports

import (
	"context"
	"io"
	"time"
)

type SubmitRequest struct {
	Filename   string
	TargetLang string // empty means the configured default
	Source     io.Reader
}

type JobService interface {
	// Submit stores the source video and queues a job for it.
	Submit(ctx context.Context, req SubmitRequest) (*Job, error)

	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)

	// Retry requeues a failed job at the stage it failed in.
	Retry(ctx context.Context, id string) (*Job, error)

	// ArtifactURL returns a presigned download link for a stored artifact key.
	ArtifactURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// OpenArtifact streams a stored artifact.
	OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error)
}
