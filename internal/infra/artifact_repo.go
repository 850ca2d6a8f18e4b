package infra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

type artifactRepo struct {
	db *sql.DB
}

func NewArtifactRepo(db *sql.DB) ports.ArtifactRepo {
	return &artifactRepo{db: db}
}

func (r *artifactRepo) Lookup(ctx context.Context, contentHash, stage, targetLang string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `
		SELECT object_key
		FROM artifacts
		WHERE content_hash = $1 AND stage = $2 AND target_lang = $3
	`, contentHash, stage, targetLang).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ports.ErrNotFound
	}
	return key, err
}

func (r *artifactRepo) Save(ctx context.Context, a ports.Artifact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (content_hash, stage, target_lang, object_key, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (content_hash, stage, target_lang)
		DO UPDATE SET object_key = $4, created_at = NOW()
	`, a.ContentHash, a.Stage, a.TargetLang, a.ObjectKey)
	return err
}
