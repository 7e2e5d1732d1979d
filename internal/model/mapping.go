// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// RedirectType represents the HTTP redirect status code used for a Mapping.
type RedirectType int

const (
	RedirectPermanent RedirectType = 301
	RedirectTemporary RedirectType = 302
)

// IsValid checks if the redirect type is valid.
func (r RedirectType) IsValid() bool {
	return r == RedirectPermanent || r == RedirectTemporary
}

// ResolveState is the closed, tagged union of resolver outcomes.
// The HTTP layer maps each state to a status code; nothing below this
// layer dispatches on error kinds.
type ResolveState string

const (
	StateOpen     ResolveState = "open"
	StateGated    ResolveState = "gated"
	StateExpired  ResolveState = "expired"
	StateInactive ResolveState = "inactive"
	StateMissing  ResolveState = "missing"
)

// Mapping is the primary short-key/alias → original-URL record.
type Mapping struct {
	ID           int64
	ShortKey     string
	Alias        string // empty when no alias was requested
	Destination  string
	RedirectType RedirectType
	PasswordHash string // empty when not password-protected
	IsActive     bool
	ExpiresAt    *time.Time
	ClickCount   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Decorations, all set post-creation by enrichment.
	MetaTitle       string
	MetaDescription string
	MetaImageURL    string
	MetaFaviconURL  string
	MetaFetchedAt   *time.Time
	AITags          string // comma-joined
	AISummary       string
	AICategory      string
	AISafetyScore   float64
	AIAnalyzedAt    *time.Time
}

// EffectiveKey is the alias if present, else the short key.
func (m *Mapping) EffectiveKey() string {
	if m.Alias != "" {
		return m.Alias
	}
	return m.ShortKey
}

// IsPasswordProtected reports whether a password is required to resolve this mapping.
func (m *Mapping) IsPasswordProtected() bool {
	return m.PasswordHash != ""
}

// IsExpired reports whether expires_at has passed. expires_at exactly
// equal to now counts as expired.
func (m *Mapping) IsExpired() bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(time.Now().UTC())
}

// State computes the resolver state, ignoring any supplied password
// (password verification is layered on top by the Resolver).
func (m *Mapping) State() ResolveState {
	if !m.IsActive {
		return StateInactive
	}
	if m.IsExpired() {
		return StateExpired
	}
	if m.IsPasswordProtected() {
		return StateGated
	}
	return StateOpen
}

// CachedMapping is the HotCache's wire representation: every field is
// a string for Redis hash compatibility.
type CachedMapping struct {
	Destination  string `redis:"destination"`
	RedirectType string `redis:"redirect_type"`
	ExpiresAt    string `redis:"expires_at"` // unix seconds, or empty
	IsActive     string `redis:"is_active"`  // "1" or "0"
	UpdatedAt    string `redis:"updated_at"` // unix seconds
}

// ToMapping reconstructs a Mapping from cached fields, for the
// HotCache hit path. Decorations and password state are not carried
// in the cache — password-protected mappings are never cached.
func (c *CachedMapping) ToMapping(shortKey string) *Mapping {
	m := &Mapping{
		ShortKey:    shortKey,
		Destination: c.Destination,
		IsActive:    c.IsActive == "1",
	}

	if c.RedirectType == "301" {
		m.RedirectType = RedirectPermanent
	} else {
		m.RedirectType = RedirectTemporary
	}

	if c.ExpiresAt != "" {
		if ts, err := strconv.ParseInt(c.ExpiresAt, 10, 64); err == nil {
			t := time.Unix(ts, 0).UTC()
			m.ExpiresAt = &t
		}
	}

	if c.UpdatedAt != "" {
		if ts, err := strconv.ParseInt(c.UpdatedAt, 10, 64); err == nil {
			m.UpdatedAt = time.Unix(ts, 0).UTC()
		}
	}

	return m
}

// ToCachedMapping converts a Mapping to its cache wire form.
func (m *Mapping) ToCachedMapping() *CachedMapping {
	cached := &CachedMapping{
		Destination:  m.Destination,
		RedirectType: strconv.Itoa(int(m.RedirectType)),
		IsActive:     boolToString(m.IsActive),
		UpdatedAt:    strconv.FormatInt(m.UpdatedAt.Unix(), 10),
	}
	if m.ExpiresAt != nil {
		cached.ExpiresAt = strconv.FormatInt(m.ExpiresAt.Unix(), 10)
	}
	return cached
}

func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
