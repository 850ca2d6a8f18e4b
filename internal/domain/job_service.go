package domain

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

type jobService struct {
	repo        ports.JobRepo
	storage     ports.S3Client
	sourceLang  string
	defaultLang string
}

func NewJobService(repo ports.JobRepo, storage ports.S3Client, sourceLang, defaultTargetLang string) ports.JobService {
	return &jobService{
		repo:        repo,
		storage:     storage,
		sourceLang:  sourceLang,
		defaultLang: defaultTargetLang,
	}
}

// Submit spools the upload to disk while hashing it, stores the source
// object and queues the job. The content hash lets later stages reuse
// artifacts produced for identical videos.
func (s *jobService) Submit(ctx context.Context, req ports.SubmitRequest) (*ports.Job, error) {
	name := filepath.Base(req.Filename)
	if name == "" || name == "." {
		return nil, fmt.Errorf("filename required")
	}

	target := req.TargetLang
	if target == "" {
		target = s.defaultLang
	}
	if target == s.sourceLang {
		return nil, fmt.Errorf("target language %q equals source language", target)
	}

	tmp, err := os.CreateTemp("", "dubflow-upload-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	hasher := blake3.New(32, nil)
	size, err := io.Copy(io.MultiWriter(tmp, hasher), req.Source)
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if size == 0 {
		return nil, fmt.Errorf("empty upload")
	}

	job := &ports.Job{
		ID:          uuid.NewString(),
		SourceName:  name,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		SourceLang:  s.sourceLang,
		TargetLang:  target,
		State:       ports.JobPending,
	}
	job.SourceKey = fmt.Sprintf("sources/%s/%s", job.ID, name)

	if err := s.storage.UploadFile(ctx, job.SourceKey, tmp.Name(), contentTypeFor(name)); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	return job, nil
}

func (s *jobService) Get(ctx context.Context, id string) (*ports.Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *jobService) List(ctx context.Context, limit int) ([]ports.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, limit)
}

func (s *jobService) Retry(ctx context.Context, id string) (*ports.Job, error) {
	return s.repo.Requeue(ctx, id)
}

func (s *jobService) ArtifactURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s.storage.PresignedGet(ctx, key, expiry)
}

func (s *jobService) OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.storage.GetObject(ctx, key)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
