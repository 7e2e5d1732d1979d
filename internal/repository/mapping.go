package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/penshort/penshort/internal/model"
)

// Sentinel errors surfaced by MappingStore.
var (
	ErrMappingNotFound = errors.New("mapping not found")
	ErrKeyExists        = errors.New("short key or alias already exists")
	ErrInvalidCursor    = errors.New("invalid pagination cursor")
)

// MappingFilter narrows List queries.
type MappingFilter struct {
	ActiveOnly    bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// PaginationCursor encodes the last-seen (created_at, id) tuple for
// keyset pagination.
type PaginationCursor struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func encodeCursor(c PaginationCursor) string {
	data, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c PaginationCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// MappingStore provides durable access to Mapping records, indexed on
// (short_key), (alias), (is_active, created_at DESC), (ai_category).
type MappingStore struct {
	repo *Repository
}

// NewMappingStore creates a new MappingStore.
func NewMappingStore(repo *Repository) *MappingStore {
	return &MappingStore{repo: repo}
}

// Insert persists mapping and assigns its ID. Enforces the short_key/
// alias uniqueness invariant via a unique index on each column.
func (s *MappingStore) Insert(ctx context.Context, m *model.Mapping) error {
	query := `
		INSERT INTO mappings (
			short_key, alias, destination, redirect_type, password_hash,
			is_active, expires_at, click_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := s.repo.pool.QueryRow(ctx, query,
		m.ShortKey, nullableString(m.Alias), m.Destination, int(m.RedirectType),
		nullableString(m.PasswordHash), m.IsActive, m.ExpiresAt,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrKeyExists
		}
		return fmt.Errorf("insert mapping: %w", err)
	}
	return nil
}

// FindByEffectiveKey returns at most one mapping where short_key = k
// OR alias = k.
func (s *MappingStore) FindByEffectiveKey(ctx context.Context, k string) (*model.Mapping, error) {
	query := selectMappingColumns + ` WHERE short_key = $1 OR alias = $1`
	row := s.repo.pool.QueryRow(ctx, query, k)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("find by effective key: %w", err)
	}
	return m, nil
}

// ExistsShortKey reports whether k is already in use as a short key.
func (s *MappingStore) ExistsShortKey(ctx context.Context, k string) (bool, error) {
	var exists bool
	err := s.repo.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM mappings WHERE short_key = $1)`, k).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists short key: %w", err)
	}
	return exists, nil
}

// ExistsAlias reports whether k is already in use as an alias or a
// short key (the two namespaces are coordinated, so a candidate alias
// must not collide with either).
func (s *MappingStore) ExistsAlias(ctx context.Context, k string) (bool, error) {
	var exists bool
	err := s.repo.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM mappings WHERE alias = $1 OR short_key = $1)`, k).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists alias: %w", err)
	}
	return exists, nil
}

// IncrementClicks atomically increments click_count for short_key.
func (s *MappingStore) IncrementClicks(ctx context.Context, shortKey string) error {
	_, err := s.repo.pool.Exec(ctx, `UPDATE mappings SET click_count = click_count + 1 WHERE short_key = $1`, shortKey)
	if err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}
	return nil
}

// MarkExpired sets is_active=false for every row whose expires_at has
// passed, returning the number of rows affected.
func (s *MappingStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.repo.pool.Exec(ctx,
		`UPDATE mappings SET is_active = false, updated_at = NOW() WHERE expires_at < $1 AND is_active = true`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List performs keyset pagination over mappings. Called with
// MappingFilter{ActiveOnly: true}, an empty cursor, and limit 20 it
// reproduces the "20 most recent active mappings" contract of
// GET /api/urls; cursor/limit beyond that are additive.
func (s *MappingStore) List(ctx context.Context, filter MappingFilter, cursor string, limit int) ([]*model.Mapping, string, bool, error) {
	args := []any{limit + 1}
	query := selectMappingColumns + ` WHERE 1=1`

	if filter.ActiveOnly {
		query += ` AND is_active = true`
	}
	if filter.CreatedAfter != nil {
		args = append(args, *filter.CreatedAfter)
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		query += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", false, err
		}
		args = append(args, c.CreatedAt, c.ID)
		query += fmt.Sprintf(` AND (created_at, id) < ($%d, $%d)`, len(args)-1, len(args))
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := s.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", false, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []*model.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, "", false, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	var nextCursor string
	if hasMore && len(out) > 0 {
		last := out[len(out)-1]
		nextCursor = encodeCursor(PaginationCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return out, nextCursor, hasMore, nil
}

// Update persists mutable fields and decorations set post-creation.
func (s *MappingStore) Update(ctx context.Context, m *model.Mapping) error {
	query := `
		UPDATE mappings SET
			destination = $2, redirect_type = $3, password_hash = $4,
			is_active = $5, expires_at = $6,
			meta_title = $7, meta_description = $8, meta_image_url = $9,
			meta_favicon_url = $10, meta_fetched_at = $11,
			ai_summary = $12, ai_category = $13, ai_tags = $14,
			ai_safety_score = $15, ai_analyzed_at = $16,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := s.repo.pool.Exec(ctx, query,
		m.ID, m.Destination, int(m.RedirectType), nullableString(m.PasswordHash),
		m.IsActive, m.ExpiresAt,
		nullableString(m.MetaTitle), nullableString(m.MetaDescription), nullableString(m.MetaImageURL),
		nullableString(m.MetaFaviconURL), m.MetaFetchedAt,
		nullableString(m.AISummary), nullableString(m.AICategory), nullableString(m.AITags),
		m.AISafetyScore, m.AIAnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("update mapping: %w", err)
	}
	return nil
}

const selectMappingColumns = `
	SELECT id, short_key, COALESCE(alias, ''), destination, redirect_type,
		COALESCE(password_hash, ''), is_active, expires_at, click_count,
		COALESCE(meta_title, ''), COALESCE(meta_description, ''), COALESCE(meta_image_url, ''),
		COALESCE(meta_favicon_url, ''), meta_fetched_at,
		COALESCE(ai_summary, ''), COALESCE(ai_category, ''), COALESCE(ai_tags, ''),
		COALESCE(ai_safety_score, 0), ai_analyzed_at,
		created_at, updated_at
	FROM mappings
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*model.Mapping, error) {
	var m model.Mapping
	var redirectType int
	err := row.Scan(
		&m.ID, &m.ShortKey, &m.Alias, &m.Destination, &redirectType,
		&m.PasswordHash, &m.IsActive, &m.ExpiresAt, &m.ClickCount,
		&m.MetaTitle, &m.MetaDescription, &m.MetaImageURL, &m.MetaFaviconURL, &m.MetaFetchedAt,
		&m.AISummary, &m.AICategory, &m.AITags, &m.AISafetyScore, &m.AIAnalyzedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.RedirectType = model.RedirectType(redirectType)
	return &m, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether err is a Postgres unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
