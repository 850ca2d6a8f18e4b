package ports

import (
	"context"
	"time"
)

// Job states. State names a stage in progress; a freshly claimed job moves
// pending -> transcribing and walks the chain until done or failed.
const (
	JobPending      = "pending"
	JobTranscribing = "transcribing"
	JobTranslating  = "translating"
	JobSynthesizing = "synthesizing"
	JobComposing    = "composing"
	JobDone         = "done"
	JobFailed       = "failed"
)

type Job struct {
	ID          string     `json:"id"`
	SourceKey   string     `json:"source_key"`
	SourceName  string     `json:"source_name"`
	ContentHash string     `json:"content_hash"`
	SourceLang  string     `json:"source_lang"`
	TargetLang  string     `json:"target_lang"`
	State       string     `json:"state"`
	FailedStage *string    `json:"failed_stage,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	Transcript  *string    `json:"transcript_key,omitempty"`
	Subtitles   *string    `json:"subtitles_key,omitempty"`
	DubAudio    *string    `json:"dub_audio_key,omitempty"`
	FinalVideo  *string    `json:"final_video_key,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job will never run again.
func (j *Job) Terminal() bool {
	return j.State == JobDone || j.State == JobFailed
}

type JobRepo interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)

	// ClaimPending atomically moves one pending job to transcribing and
	// returns it. Returns nil when nothing is pending.
	ClaimPending(ctx context.Context) (*Job, error)

	// ListRunning returns jobs left in a non-terminal, non-pending state,
	// used to resume work after a restart.
	ListRunning(ctx context.Context) ([]Job, error)

	// Advance moves a job from one state to the next. It fails with
	// ErrStaleState when the stored state no longer matches from, so two
	// workers cannot drive the same job.
	Advance(ctx context.Context, id, from, to string) error

	SetArtifact(ctx context.Context, id, column, key string) error

	// BumpAttempts counts one more run of the current stage and returns the
	// new total, so a crash-looping job can be cut off.
	BumpAttempts(ctx context.Context, id string) (int, error)
	MarkFailed(ctx context.Context, id, stage, msg string) error
	MarkDone(ctx context.Context, id string) error

	// Requeue puts a failed job back into the stage it failed at.
	Requeue(ctx context.Context, id string) (*Job, error)
}

// Artifact cache rows let identical content skip paid provider calls.
type Artifact struct {
	ContentHash string
	Stage       string
	TargetLang  string
	ObjectKey   string
	CreatedAt   time.Time
}

type ArtifactRepo interface {
	Lookup(ctx context.Context, contentHash, stage, targetLang string) (string, error)
	Save(ctx context.Context, a Artifact) error
}
