package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/penshort/penshort/internal/cache"
	"github.com/penshort/penshort/internal/config"
	"github.com/penshort/penshort/internal/llm"
	"github.com/penshort/penshort/internal/metadata"
	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/middleware"
	"github.com/penshort/penshort/internal/model"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/security"
)

// Errors surfaced by Create/CreateBulk.
var (
	ErrInvalidURL   = security.ErrInvalidURL
	ErrInvalidAlias = security.ErrInvalidAlias
	ErrAliasExists  = errors.New("alias already exists")
	ErrWeakPassword = security.ErrPasswordLength
)

// CreateInput is the caller-facing request for a single mapping.
type CreateInput struct {
	Destination      string
	Alias            string
	RedirectType     int
	Password         string
	ExpiresAt        *time.Time
	FetchMetadata    bool
	RequestAIAnalyze bool
}

// CreateResult is the response for a single successful creation.
type CreateResult struct {
	Mapping  *model.Mapping
	ShortURL string
}

// BulkFailure records one failed item from CreateBulk, indexed by its
// position in the input list.
type BulkFailure struct {
	Index        int
	OriginalURL  string
	ErrorMessage string
}

// BulkResult is the aggregate response of CreateBulk.
type BulkResult struct {
	Successes []CreateResult
	Failures  []BulkFailure
}

// Shortener orchestrates mapping creation: validation, key minting,
// persistence, best-effort metadata/AI enrichment, and hot-cache
// population.
type Shortener struct {
	mappings  *repository.MappingStore
	hotcache  *cache.Cache
	minter    *security.KeyMinter
	validator *security.URLValidator
	guard     *security.PasswordGuard
	metadata  *metadata.Fetcher
	llm       *llm.Client
	cfg       *config.Config
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewShortener returns a Shortener.
func NewShortener(mappings *repository.MappingStore, hotcache *cache.Cache, metadataFetcher *metadata.Fetcher, llmClient *llm.Client, cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder) *Shortener {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Shortener{
		mappings:  mappings,
		hotcache:  hotcache,
		minter:    security.NewKeyMinter(),
		validator: security.NewURLValidator(),
		guard:     security.NewPasswordGuard(),
		metadata:  metadataFetcher,
		llm:       llmClient,
		cfg:       cfg,
		logger:    logger.With("component", "service.shortener"),
		metrics:   recorder,
	}
}

// Create runs the full creation sequence from §4.9: validate, mint,
// persist, enrich, cache.
func (s *Shortener) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	dest, err := s.validator.Validate(in.Destination)
	if err != nil {
		return nil, err
	}
	if err := middleware.ValidateDestinationURL(dest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	alias := strings.TrimSpace(in.Alias)
	if alias != "" {
		if err := s.validator.ValidateAlias(alias); err != nil {
			return nil, err
		}
		// ValidateAlias already bounds aliases at 50 chars, so the short
		// code's 32-char cap is not applied here.
		if err := middleware.ValidateShortCode(alias); err != nil && !errors.Is(err, middleware.ErrShortCodeTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAlias, err)
		}
		if err := middleware.ValidateAlias(alias); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAlias, err)
		}
		exists, err := s.mappings.ExistsAlias(ctx, alias)
		if err != nil {
			return nil, fmt.Errorf("check alias collision: %w", err)
		}
		if exists {
			return nil, ErrAliasExists
		}
	}

	redirectType := model.RedirectTemporary
	if in.RedirectType != 0 {
		redirectType = model.RedirectType(in.RedirectType)
		if !redirectType.IsValid() {
			return nil, fmt.Errorf("invalid redirect type %d", in.RedirectType)
		}
	}

	var passwordHash string
	if in.Password != "" {
		passwordHash, err = s.guard.Hash(in.Password)
		if err != nil {
			return nil, err
		}
	}

	mapping := &model.Mapping{
		Alias:        alias,
		Destination:  dest,
		RedirectType: redirectType,
		PasswordHash: passwordHash,
		IsActive:     true,
		ExpiresAt:    in.ExpiresAt,
	}
	shortKey, err := s.mintAndInsert(ctx, mapping)
	if err != nil {
		return nil, err
	}
	s.metrics.IncLinkCreated()

	var title, description string
	if in.FetchMetadata && s.metadata != nil {
		md, err := s.metadata.Fetch(ctx, dest)
		if err != nil {
			s.metrics.IncMetadataFetch("failed")
			s.logger.Warn("metadata fetch failed, proceeding with bare URL", "short_key", shortKey, "error", err)
		} else {
			s.metrics.IncMetadataFetch("success")
		}
		if md != nil {
			mapping.MetaTitle = md.Title
			mapping.MetaDescription = md.Description
			mapping.MetaImageURL = md.ImageURL
			mapping.MetaFaviconURL = md.FaviconURL
			now := time.Now().UTC()
			mapping.MetaFetchedAt = &now
			title, description = md.Title, md.Description
		}
	}

	if in.RequestAIAnalyze && s.llm != nil {
		result, err := s.llm.Analyze(ctx, dest, title, description)
		if err != nil {
			s.logger.Warn("synchronous AI analysis failed, creation proceeds without it", "short_key", shortKey, "error", err)
		} else if result != nil && !result.FromCache {
			s.decorateWithAnnotation(mapping, result.Annotation)
		}
		s.dispatchBackgroundReanalysis(mapping.ShortKey, dest, title, description)
	}

	if err := s.mappings.Update(ctx, mapping); err != nil {
		return nil, fmt.Errorf("persist decorations: %w", err)
	}

	if !mapping.IsPasswordProtected() {
		if err := s.hotcache.SetMapping(ctx, shortKey, s.cfg.HotCacheTTL(), mapping); err != nil {
			s.logger.Warn("failed to populate hotcache after creation", "short_key", shortKey, "error", err)
		}
	}

	return &CreateResult{
		Mapping:  mapping,
		ShortURL: s.shortURL(mapping),
	}, nil
}

// CreateBulk iterates Create over items, never aborting on a single
// failure. Bulk-level defaults override per-item FetchMetadata/
// RequestAIAnalyze flags when set.
func (s *Shortener) CreateBulk(ctx context.Context, items []CreateInput, defaultFetchMetadata, defaultRequestAI *bool) *BulkResult {
	result := &BulkResult{}
	for i, item := range items {
		if defaultFetchMetadata != nil {
			item.FetchMetadata = *defaultFetchMetadata
		}
		if defaultRequestAI != nil {
			item.RequestAIAnalyze = *defaultRequestAI
		}

		created, err := s.Create(ctx, item)
		if err != nil {
			result.Failures = append(result.Failures, BulkFailure{
				Index:        i,
				OriginalURL:  item.Destination,
				ErrorMessage: err.Error(),
			})
			continue
		}
		result.Successes = append(result.Successes, *created)
	}
	return result
}

// mintAndInsert implements §4.1's collision-retry algorithm: up to
// MaxMintAttempts at the default length, escalating to EscalatedLen
// until a free key is found. The pre-probe against both indexes
// narrows the common case to one round trip; the final authority is
// still the unique index, so a losing race on Insert re-mints rather
// than erroring, per §5's "KeyMinter re-attempting on rejection."
func (s *Shortener) mintAndInsert(ctx context.Context, mapping *model.Mapping) (string, error) {
	for attempt := 0; attempt < security.MaxMintAttempts; attempt++ {
		key, err := s.minter.Mint()
		if err != nil {
			return "", fmt.Errorf("mint key: %w", err)
		}
		if done, err := s.tryInsertWithKey(ctx, mapping, key); err != nil {
			return "", err
		} else if done {
			return key, nil
		}
	}

	for {
		key, err := s.minter.MintOfLength(security.EscalatedLen)
		if err != nil {
			return "", fmt.Errorf("mint escalated key: %w", err)
		}
		if done, err := s.tryInsertWithKey(ctx, mapping, key); err != nil {
			return "", err
		} else if done {
			return key, nil
		}
	}
}

// tryInsertWithKey probes both indexes for key, then attempts the
// insert. A reported-free key that still loses the race on short_key
// surfaces as repository.ErrKeyExists and is treated identically to a
// failed probe (re-mint). A race lost on the user-chosen alias
// instead is not retryable by re-minting — the alias never changes
// between attempts — so it surfaces as ErrAliasExists.
func (s *Shortener) tryInsertWithKey(ctx context.Context, mapping *model.Mapping, key string) (bool, error) {
	free, err := s.keyIsFree(ctx, key)
	if err != nil {
		return false, err
	}
	if !free {
		return false, nil
	}

	mapping.ShortKey = key
	err = s.mappings.Insert(ctx, mapping)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, repository.ErrKeyExists) {
		return false, fmt.Errorf("insert mapping: %w", err)
	}

	if mapping.Alias != "" {
		aliasTaken, checkErr := s.mappings.ExistsAlias(ctx, mapping.Alias)
		if checkErr == nil && aliasTaken {
			return false, ErrAliasExists
		}
	}
	return false, nil
}

func (s *Shortener) keyIsFree(ctx context.Context, key string) (bool, error) {
	existsShort, err := s.mappings.ExistsShortKey(ctx, key)
	if err != nil {
		return false, fmt.Errorf("probe short key: %w", err)
	}
	if existsShort {
		return false, nil
	}
	existsAlias, err := s.mappings.ExistsAlias(ctx, key)
	if err != nil {
		return false, fmt.Errorf("probe alias collision: %w", err)
	}
	return !existsAlias, nil
}

func (s *Shortener) decorateWithAnnotation(mapping *model.Mapping, a *model.Annotation) {
	if a == nil {
		return
	}
	mapping.AISummary = a.Summary
	mapping.AICategory = a.Category
	mapping.AITags = a.Tags
	mapping.AISafetyScore = a.SafetyScore
	analyzedAt := a.AnalyzedAt
	mapping.AIAnalyzedAt = &analyzedAt
}

// dispatchBackgroundReanalysis re-runs AI analysis for shortKey on a
// detached context, overwriting decorations only if the mapping still
// has no ai_analyzed_at by the time the analysis completes — it must
// never clobber a result the synchronous call (or a racing prior
// dispatch) already persisted.
func (s *Shortener) dispatchBackgroundReanalysis(shortKey, dest, title, description string) {
	if s.llm == nil {
		return
	}
	go func() {
		ctx := context.Background()
		result, err := s.llm.Analyze(ctx, dest, title, description)
		if err != nil {
			s.logger.Warn("background AI re-analysis failed", "short_key", shortKey, "error", err)
			return
		}
		if result == nil || result.FromCache {
			return
		}

		current, err := s.mappings.FindByEffectiveKey(ctx, shortKey)
		if err != nil {
			s.logger.Warn("background AI re-analysis: reload failed", "short_key", shortKey, "error", err)
			return
		}
		if current.AIAnalyzedAt != nil {
			return
		}

		s.decorateWithAnnotation(current, result.Annotation)
		if err := s.mappings.Update(ctx, current); err != nil {
			s.logger.Warn("background AI re-analysis: persist failed", "short_key", shortKey, "error", err)
		}
	}()
}

func (s *Shortener) shortURL(m *model.Mapping) string {
	base := strings.TrimSuffix(s.cfg.AppBaseURL, "/")
	return base + "/" + m.EffectiveKey()
}
