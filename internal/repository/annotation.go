package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/penshort/penshort/internal/model"
)

// ErrAnnotationNotFound is returned when no annotation exists for a
// given URL hash.
var ErrAnnotationNotFound = errors.New("annotation not found")

// AnnotationStore persists AI-generated link annotations, keyed by the
// content hash of the destination URL so identical destinations share
// one analysis regardless of how many mappings point at them.
type AnnotationStore struct {
	repo *Repository
}

// NewAnnotationStore returns an AnnotationStore.
func NewAnnotationStore(repo *Repository) *AnnotationStore {
	return &AnnotationStore{repo: repo}
}

// Upsert inserts or replaces the annotation for a.URLHash.
func (s *AnnotationStore) Upsert(ctx context.Context, a *model.Annotation) error {
	query := `
		INSERT INTO annotations (
			url_hash, original_url, summary, category, tags,
			safety_score, is_safe, safety_reasons, alias_suggestions,
			analyzed_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url_hash) DO UPDATE SET
			summary = EXCLUDED.summary,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			safety_score = EXCLUDED.safety_score,
			is_safe = EXCLUDED.is_safe,
			safety_reasons = EXCLUDED.safety_reasons,
			alias_suggestions = EXCLUDED.alias_suggestions,
			analyzed_at = EXCLUDED.analyzed_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.repo.pool.Exec(ctx, query,
		a.URLHash, a.OriginalURL, a.Summary, a.Category, a.Tags,
		a.SafetyScore, a.IsSafe, a.SafetyReasons, a.AliasSuggestions,
		a.AnalyzedAt, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert annotation: %w", err)
	}
	return nil
}

// FindByURLHash returns the annotation for the given hash, regardless
// of whether it has expired — callers decide whether a stale
// annotation is still usable via Annotation.IsExpired.
func (s *AnnotationStore) FindByURLHash(ctx context.Context, urlHash string) (*model.Annotation, error) {
	query := `
		SELECT url_hash, original_url, summary, category, tags,
			safety_score, is_safe, safety_reasons, alias_suggestions,
			analyzed_at, expires_at
		FROM annotations
		WHERE url_hash = $1
	`
	var a model.Annotation
	err := s.repo.pool.QueryRow(ctx, query, urlHash).Scan(
		&a.URLHash, &a.OriginalURL, &a.Summary, &a.Category, &a.Tags,
		&a.SafetyScore, &a.IsSafe, &a.SafetyReasons, &a.AliasSuggestions,
		&a.AnalyzedAt, &a.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnnotationNotFound
		}
		return nil, fmt.Errorf("find annotation by url hash: %w", err)
	}
	return &a, nil
}

// DeleteExpired removes annotations past their expiry, returning the
// number of rows removed. Intended for the periodic sweep alongside
// MappingStore.MarkExpired.
func (s *AnnotationStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.repo.pool.Exec(ctx, `DELETE FROM annotations WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired annotations: %w", err)
	}
	return tag.RowsAffected(), nil
}
