// Package service implements the redirect resolution and link
// creation business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/penshort/penshort/internal/cache"
	"github.com/penshort/penshort/internal/config"
	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/model"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/security"
)

// Terminal outcomes of resolution, one per non-Open state of the
// mapping's ResolveState union.
var (
	ErrNotFound      = errors.New("mapping not found")
	ErrInactive      = errors.New("mapping is inactive")
	ErrExpired       = errors.New("mapping has expired")
	ErrNeedsPassword = errors.New("mapping requires a password")
	ErrBadPassword   = errors.New("incorrect password")
)

// Resolver implements the redirect state machine: resolve an effective
// key (and optional password) to a mapping's destination, consulting
// HotCache only for the Open path.
type Resolver struct {
	mappings *repository.MappingStore
	hotcache *cache.Cache
	guard    *security.PasswordGuard
	minter   *security.KeyMinter
	cfg      *config.Config
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewResolver returns a Resolver.
func NewResolver(mappings *repository.MappingStore, hotcache *cache.Cache, guard *security.PasswordGuard, cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Resolver{
		mappings: mappings,
		hotcache: hotcache,
		guard:    guard,
		minter:   security.NewKeyMinter(),
		cfg:      cfg,
		logger:   logger.With("component", "service.resolver"),
		metrics:  recorder,
	}
}

// Resolve runs the five-state resolution algorithm for effectiveKey.
// password is the caller-supplied password for a gated mapping, empty
// if none was supplied. It returns the resolved Mapping's destination
// and redirect type, along with whether the hit was served from
// HotCache.
func (r *Resolver) Resolve(ctx context.Context, effectiveKey, password string) (*model.Mapping, bool, error) {
	if !r.minter.IsWellFormed(effectiveKey) {
		return nil, false, ErrNotFound
	}

	negCached, err := r.hotcache.IsNegativelyCached(ctx, effectiveKey)
	if err != nil {
		r.logger.Warn("negative cache lookup failed", "key", effectiveKey, "error", err)
	} else if negCached {
		return nil, false, ErrNotFound
	}

	mapping, err := r.mappings.FindByEffectiveKey(ctx, effectiveKey)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			if setErr := r.hotcache.SetNegativeCache(ctx, effectiveKey); setErr != nil {
				r.logger.Warn("negative cache set failed", "key", effectiveKey, "error", setErr)
			}
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("resolve %q: %w", effectiveKey, err)
	}

	state := mapping.State()

	if state == model.StateGated {
		if password == "" {
			return mapping, false, ErrNeedsPassword
		}
		ok, verifyErr := r.guard.Verify(password, mapping.PasswordHash)
		if verifyErr != nil || !ok {
			return mapping, false, ErrBadPassword
		}
		// Password verifies: fall through to the Open-equivalent path,
		// but per §4.7 a gated mapping never touches the cache.
		return mapping, false, nil
	}

	if state == model.StateInactive {
		return mapping, false, ErrInactive
	}

	if state == model.StateExpired {
		if err := r.hotcache.DeleteMapping(ctx, mapping.ShortKey); err != nil {
			r.logger.Warn("failed to invalidate expired mapping in hotcache",
				"short_key", mapping.ShortKey, "error", err)
		}
		return mapping, false, ErrExpired
	}

	// Open.
	cached, err := r.hotcache.GetMapping(ctx, mapping.ShortKey)
	if err == nil {
		r.metrics.IncRedirectCacheHit()
		return cached.ToMapping(mapping.ShortKey), true, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("hotcache get failed, falling back to store",
			"short_key", mapping.ShortKey, "error", err)
	}

	r.metrics.IncRedirectCacheMiss()
	if err := r.hotcache.SetMapping(ctx, mapping.ShortKey, r.cfg.HotCacheTTL(), mapping); err != nil {
		r.logger.Warn("failed to populate hotcache",
			"short_key", mapping.ShortKey, "error", err)
	}

	return mapping, false, nil
}
