// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"strings"
	"time"

	"github.com/penshort/penshort/internal/model"
)

// CreateRequest is the request body for POST /api/urls and each item of
// a bulk create request.
type CreateRequest struct {
	OriginalURL      string     `json:"originalUrl"`
	CustomAlias      string     `json:"customAlias,omitempty"`
	Password         string     `json:"password,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	FetchMetadata    *bool      `json:"fetchMetadata,omitempty"`
	EnableAiAnalysis *bool      `json:"enableAiAnalysis,omitempty"`
	GenerateQrCode   bool       `json:"generateQrCode,omitempty"`
}

// BulkCreateRequest is the request body for POST /api/urls/bulk.
// FetchMetadata/EnableAiAnalysis, when set, override every item's flag.
type BulkCreateRequest struct {
	Items            []CreateRequest `json:"items"`
	FetchMetadata    *bool           `json:"fetchMetadata,omitempty"`
	EnableAiAnalysis *bool           `json:"enableAiAnalysis,omitempty"`
}

// UnlockRequest is the request body for POST /{key}/unlock.
type UnlockRequest struct {
	Password string `json:"password"`
}

// MappingResponse represents a mapping in API responses, including
// whatever decorations have been attached by enrichment.
type MappingResponse struct {
	ShortKey            string     `json:"shortKey"`
	Alias               string     `json:"alias,omitempty"`
	ShortURL            string     `json:"shortUrl"`
	OriginalURL         string     `json:"originalUrl"`
	RedirectType        int        `json:"redirectType"`
	IsActive            bool       `json:"isActive"`
	IsPasswordProtected bool       `json:"isPasswordProtected"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty"`
	ClickCount          int64      `json:"clickCount"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`

	MetaTitle       string   `json:"metaTitle,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
	MetaImageURL    string   `json:"metaImageUrl,omitempty"`
	MetaFaviconURL  string   `json:"metaFaviconUrl,omitempty"`
	AISummary       string   `json:"aiSummary,omitempty"`
	AICategory      string   `json:"aiCategory,omitempty"`
	AITags          []string `json:"aiTags,omitempty"`
	AISafetyScore   float64  `json:"aiSafetyScore,omitempty"`
}

// BulkFailure records one failed item of a bulk create, by its index
// in the original request.
type BulkFailure struct {
	Index        int    `json:"index"`
	OriginalURL  string `json:"originalUrl"`
	ErrorMessage string `json:"errorMessage"`
}

// BulkCreateResponse is the response body for POST /api/urls/bulk.
type BulkCreateResponse struct {
	Successes []MappingResponse `json:"successes"`
	Failures  []BulkFailure     `json:"failures"`
}

// ListResponse is the response body for GET /api/urls. NextCursor is
// set only when HasMore is true; the caller replays it as ?cursor=
// to fetch the next page.
type ListResponse struct {
	Data       []MappingResponse `json:"data"`
	NextCursor string             `json:"nextCursor,omitempty"`
	HasMore    bool               `json:"hasMore"`
}

// StatsResponse is the response body for GET /api/urls/{key}/stats.
type StatsResponse struct {
	ShortKey   string    `json:"shortKey"`
	Alias      string    `json:"alias,omitempty"`
	ClickCount int64     `json:"clickCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AnalyticsResponse is the response body for GET /api/urls/{key}/analytics.
type AnalyticsResponse = model.AnalyticsResponse

// ProtectedResponse is the response body for GET /api/urls/{key}/protected.
type ProtectedResponse struct {
	PasswordRequired bool `json:"passwordRequired"`
}

// PreviewResponse is the response body for GET /api/urls/{key}/preview:
// the decorations available for a mapping without revealing its
// destination when gated.
type PreviewResponse struct {
	MetaTitle        string `json:"metaTitle,omitempty"`
	MetaDescription  string `json:"metaDescription,omitempty"`
	MetaImageURL     string `json:"metaImageUrl,omitempty"`
	MetaFaviconURL   string `json:"metaFaviconUrl,omitempty"`
	PasswordRequired bool   `json:"passwordRequired"`
}

// ErrorResponse represents an API error. RequestID lets a caller
// correlate a failure with server-side logs without exposing any
// internal detail beyond the correlation token itself.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// ToMappingResponse converts a Mapping model to a MappingResponse, given
// the already-built short URL (the effective-key-based URL the caller
// minted the mapping under).
func ToMappingResponse(m *model.Mapping, shortURL string) MappingResponse {
	return MappingResponse{
		ShortKey:            m.ShortKey,
		Alias:               m.Alias,
		ShortURL:            shortURL,
		OriginalURL:         m.Destination,
		RedirectType:        int(m.RedirectType),
		IsActive:            m.IsActive,
		IsPasswordProtected: m.IsPasswordProtected(),
		ExpiresAt:           m.ExpiresAt,
		ClickCount:          m.ClickCount,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		MetaTitle:           m.MetaTitle,
		MetaDescription:     m.MetaDescription,
		MetaImageURL:        m.MetaImageURL,
		MetaFaviconURL:      m.MetaFaviconURL,
		AISummary:           m.AISummary,
		AICategory:          m.AICategory,
		AITags:              splitTags(m.AITags),
		AISafetyScore:       m.AISafetyScore,
	}
}

// ToListResponse converts a slice of Mappings to a ListResponse, using
// baseURL to build each short URL. nextCursor/hasMore carry the
// keyset-pagination state MappingStore.List returns.
func ToListResponse(mappings []*model.Mapping, baseURL, nextCursor string, hasMore bool) ListResponse {
	data := make([]MappingResponse, len(mappings))
	for i, m := range mappings {
		data[i] = ToMappingResponse(m, shortURLFor(baseURL, m))
	}
	return ListResponse{Data: data, NextCursor: nextCursor, HasMore: hasMore}
}

func shortURLFor(baseURL string, m *model.Mapping) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + m.EffectiveKey()
}

func splitTags(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
