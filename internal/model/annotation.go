// Package model defines domain entities for the application.
package model

import "time"

// AnnotationTTL is the default lifetime of an Annotation after analysis.
const AnnotationTTL = 7 * 24 * time.Hour

// AICategories is the fixed taxonomy the LLM pipeline classifies into.
var AICategories = []string{
	"Technology", "News", "Entertainment", "Education", "Business",
	"Social", "Shopping", "Health", "Travel", "Finance", "Sports", "Other",
}

// Annotation is a content-addressed cache of LLM output keyed by
// SHA-256(original_url).
type Annotation struct {
	URLHash        string // unique key
	OriginalURL    string
	Summary        string
	Category       string
	Tags           string // comma-joined
	SafetyScore    float64
	IsSafe         bool
	SafetyReasons  string // comma-joined
	AliasSuggestions string // comma-joined
	AnalyzedAt     time.Time
	ExpiresAt      time.Time
}

// IsExpired is the only predicate callers consult.
func (a *Annotation) IsExpired() bool {
	return !a.ExpiresAt.After(time.Now().UTC())
}
