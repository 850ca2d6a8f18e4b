package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Vovarama1992/dubflow/internal/media"
	"github.com/Vovarama1992/dubflow/internal/notify"
	"github.com/Vovarama1992/dubflow/internal/ports"
	"github.com/Vovarama1992/dubflow/internal/speech"
	"github.com/Vovarama1992/dubflow/internal/transcribe"
	"github.com/Vovarama1992/dubflow/internal/translate"
)

const pollInterval = 2 * time.Second

// errPermanent marks stage failures that retrying cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// Permanent wraps an error so the pipeline fails the job immediately
// instead of burning the remaining stage attempts.
func Permanent(err error) error { return errPermanent{err: err} }

type Pipeline struct {
	repo      ports.JobRepo
	artifacts ports.ArtifactRepo
	storage   ports.S3Client

	transcriber transcribe.Transcriber
	translator  *translate.Service
	synthesizer speech.Synthesizer
	ffmpeg      *media.FFmpeg
	notifier    notify.Notifier

	workers             int
	maxStageAttempts    int
	confidenceThreshold float64

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(
	repo ports.JobRepo,
	artifacts ports.ArtifactRepo,
	storage ports.S3Client,
	transcriber transcribe.Transcriber,
	translator *translate.Service,
	synthesizer speech.Synthesizer,
	ffmpeg *media.FFmpeg,
	notifier notify.Notifier,
	workers int,
	maxStageAttempts int,
	confidenceThreshold float64,
) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if maxStageAttempts < 1 {
		maxStageAttempts = 1
	}
	return &Pipeline{
		repo:                repo,
		artifacts:           artifacts,
		storage:             storage,
		transcriber:         transcriber,
		translator:          translator,
		synthesizer:         synthesizer,
		ffmpeg:              ffmpeg,
		notifier:            notifier,
		workers:             workers,
		maxStageAttempts:    maxStageAttempts,
		confidenceThreshold: confidenceThreshold,
		inflight:            make(map[string]struct{}),
	}
}

// Run drives the pipeline until ctx is cancelled. Every poll interval the
// pending queue is drained, then jobs sitting in a running state with no
// worker attached are picked up. That covers jobs stranded by a previous
// process and jobs a retry put back into their failed stage. Blocks; start
// it in its own goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	sem := make(chan struct{}, p.workers)

	p.resumeRunning(ctx, sem)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			job, err := p.repo.ClaimPending(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[pipeline] claim pending: %v", err)
				}
				break
			}
			if job == nil {
				break
			}
			p.dispatch(ctx, sem, job)
		}

		p.resumeRunning(ctx, sem)
	}
}

// resumeRunning dispatches running-state jobs no worker is holding.
func (p *Pipeline) resumeRunning(ctx context.Context, sem chan struct{}) {
	running, err := p.repo.ListRunning(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[pipeline] list running jobs: %v", err)
		}
		return
	}
	for i := range running {
		p.dispatch(ctx, sem, &running[i])
	}
}

// dispatch hands a job to a worker goroutine unless one already holds it.
func (p *Pipeline) dispatch(ctx context.Context, sem chan struct{}, job *ports.Job) {
	p.mu.Lock()
	if _, busy := p.inflight[job.ID]; busy {
		p.mu.Unlock()
		return
	}
	p.inflight[job.ID] = struct{}{}
	p.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		p.release(job.ID)
		return
	}

	go func() {
		defer func() {
			<-sem
			p.release(job.ID)
		}()
		p.runJob(ctx, job.ID)
	}()
}

func (p *Pipeline) release(id string) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

// runJob walks a job through its stages until it reaches a terminal state
// or the context dies. Each pass re-reads the job so the loop always acts
// on the persisted state, never a stale copy.
func (p *Pipeline) runJob(ctx context.Context, id string) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.repo.Get(ctx, id)
		if err != nil {
			log.Printf("[pipeline] job %s: reload failed: %v", id, err)
			return
		}
		if job.Terminal() {
			return
		}

		stage := job.State
		attempts, err := p.repo.BumpAttempts(ctx, id)
		if err != nil {
			log.Printf("[pipeline] job %s: bump attempts: %v", id, err)
			return
		}
		if attempts > p.maxStageAttempts {
			p.fail(ctx, job, stage, fmt.Errorf("stage %s gave up after %d attempts", stage, attempts-1))
			return
		}

		start := time.Now()
		log.Printf("[pipeline] job %s: %s (attempt %d)", id, stage, attempts)

		switch stage {
		case ports.JobTranscribing:
			err = p.stageTranscribe(ctx, job)
		case ports.JobTranslating:
			err = p.stageTranslate(ctx, job)
		case ports.JobSynthesizing:
			err = p.stageSynthesize(ctx, job)
		case ports.JobComposing:
			err = p.stageCompose(ctx, job)
		default:
			p.fail(ctx, job, stage, fmt.Errorf("unknown state %q", stage))
			return
		}

		if err != nil {
			if ctx.Err() != nil {
				// shutdown, not a job failure; the job resumes next run
				return
			}
			var perm errPermanent
			if errors.As(err, &perm) {
				p.fail(ctx, job, stage, err)
				return
			}
			log.Printf("[pipeline] job %s: %s failed: %v", id, stage, err)
			// back off a little before the next attempt of the same stage
			select {
			case <-time.After(time.Duration(attempts) * 2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		log.Printf("[pipeline] job %s: %s done in %s", id, stage, time.Since(start).Round(time.Millisecond))
	}
}

func (p *Pipeline) fail(ctx context.Context, job *ports.Job, stage string, err error) {
	log.Printf("[pipeline] job %s: failing at %s: %v", job.ID, stage, err)
	if dberr := p.repo.MarkFailed(ctx, job.ID, stage, err.Error()); dberr != nil {
		log.Printf("[pipeline] job %s: mark failed: %v", job.ID, dberr)
	}
	p.notifier.JobFailed(ctx, job, stage, err)
}

// advance moves the job to the next state. A stale-state error means some
// other worker already advanced it; the caller's loop will pick up the
// fresh state, so it is not a failure.
func (p *Pipeline) advance(ctx context.Context, job *ports.Job, from, to string) error {
	err := p.repo.Advance(ctx, job.ID, from, to)
	if errors.Is(err, ports.ErrStaleState) {
		log.Printf("[pipeline] job %s: state moved underneath %s -> %s", job.ID, from, to)
		return nil
	}
	return err
}
