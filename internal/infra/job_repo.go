package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

type jobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) ports.JobRepo {
	return &jobRepo{db: db}
}

const jobColumns = `
	id, source_key, source_name, content_hash, source_lang, target_lang,
	state, failed_stage, last_error, attempts,
	transcript_key, subtitles_key, dub_audio_key, final_video_key,
	created_at, updated_at, finished_at
`

func scanJob(row interface{ Scan(...any) error }) (*ports.Job, error) {
	var j ports.Job
	err := row.Scan(
		&j.ID, &j.SourceKey, &j.SourceName, &j.ContentHash, &j.SourceLang, &j.TargetLang,
		&j.State, &j.FailedStage, &j.Error, &j.Attempts,
		&j.Transcript, &j.Subtitles, &j.DubAudio, &j.FinalVideo,
		&j.CreatedAt, &j.UpdatedAt, &j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, job *ports.Job) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_key, source_name, content_hash, source_lang, target_lang, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, job.ID, job.SourceKey, job.SourceName, job.ContentHash, job.SourceLang, job.TargetLang, job.State, now)
	return err
}

func (r *jobRepo) Get(ctx context.Context, id string) (*ports.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return j, err
}

func (r *jobRepo) List(ctx context.Context, limit int) ([]ports.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ports.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) ClaimPending(ctx context.Context) (*ports.Job, error) {
	// SKIP LOCKED keeps concurrent workers off the same row
	row := r.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET state = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns+`
	`, ports.JobTranscribing, ports.JobPending)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *jobRepo) ListRunning(ctx context.Context) ([]ports.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE state NOT IN ($1, $2, $3)
		ORDER BY created_at
	`, ports.JobPending, ports.JobDone, ports.JobFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ports.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) Advance(ctx context.Context, id, from, to string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = $1, attempts = 0, updated_at = NOW()
		WHERE id = $2 AND state = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrStaleState
	}
	return nil
}

var artifactColumns = map[string]string{
	"transcript":  "transcript_key",
	"subtitles":   "subtitles_key",
	"dub_audio":   "dub_audio_key",
	"final_video": "final_video_key",
}

func (r *jobRepo) SetArtifact(ctx context.Context, id, column, key string) error {
	col, ok := artifactColumns[column]
	if !ok {
		return fmt.Errorf("unknown artifact column %q", column)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET `+col+` = $1, updated_at = NOW() WHERE id = $2`,
		key, id)
	return err
}

func (r *jobRepo) BumpAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING attempts
	`, id).Scan(&n)
	return n, err
}

func (r *jobRepo) MarkFailed(ctx context.Context, id, stage, msg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = $1, failed_stage = $2, last_error = $3,
		    updated_at = NOW(), finished_at = NOW()
		WHERE id = $4
	`, ports.JobFailed, stage, msg, id)
	return err
}

func (r *jobRepo) MarkDone(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = $1, failed_stage = NULL, last_error = NULL,
		    updated_at = NOW(), finished_at = NOW()
		WHERE id = $2
	`, ports.JobDone, id)
	return err
}

func (r *jobRepo) Requeue(ctx context.Context, id string) (*ports.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET state = failed_stage, failed_stage = NULL, last_error = NULL,
		    attempts = 0, finished_at = NULL, updated_at = NOW()
		WHERE id = $1 AND state = $2 AND failed_stage IS NOT NULL
		RETURNING `+jobColumns+`
	`, id, ports.JobFailed)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return j, err
}
