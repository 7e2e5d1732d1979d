package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/penshort/penshort/internal/model"
)

// parsedAnnotation is the loosely-typed intermediate shape produced by
// the parsing staircase, before category/length/charset sanitization.
type parsedAnnotation struct {
	Summary          string
	Category         string
	Tags             []string
	SafetyScore      float64
	IsSafe           bool
	SafetyReasons    []string
	AliasSuggestions []string
}

var (
	braceBlockRe  = regexp.MustCompile(`(?s)\{.*\}`)
	fencedCodeRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// parseStaircase recovers a parsedAnnotation from raw model output that
// may be valid JSON, JSON wrapped in markdown fences, JSON missing
// closing brackets, or not JSON at all.
func parseStaircase(raw string) parsedAnnotation {
	candidate := stageExtractBraces(raw)
	candidate = stageStripFences(candidate)
	candidate = stageRepair(candidate)

	if p, ok := stageParse(candidate); ok {
		return p
	}

	return stageRegexFallback(raw)
}

// stageExtractBraces pulls the first-to-last brace span out of raw, if
// any. Models routinely prose-wrap their JSON ("Here is the
// analysis:\n{...}\nLet me know if...").
func stageExtractBraces(raw string) string {
	if m := braceBlockRe.FindString(raw); m != "" {
		return m
	}
	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first >= 0 && last > first {
		return raw[first : last+1]
	}
	return raw
}

// stageStripFences removes a surrounding markdown code fence when the
// braces stage found nothing brace-shaped to work with.
func stageStripFences(s string) string {
	if strings.Contains(s, "{") {
		return s
	}
	if m := fencedCodeRe.FindStringSubmatch(s); len(m) == 2 {
		return m[1]
	}
	return s
}

// stageRepair balances unterminated braces/brackets and drops trailing
// commas and dangling punctuation left by truncated generations.
func stageRepair(s string) string {
	s = strings.TrimSpace(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	s = strings.TrimRight(s, " \t\n\r")
	s = strings.TrimSuffix(s, ",")
	s = strings.TrimSuffix(s, `"`)

	opens := strings.Count(s, "{") - strings.Count(s, "}")
	for i := 0; i < opens; i++ {
		s += "}"
	}
	arrOpens := strings.Count(s, "[") - strings.Count(s, "]")
	for i := 0; i < arrOpens; i++ {
		s += "]"
	}
	return s
}

// rawJSON is the tolerant on-the-wire shape; SafetyScore and IsSafe
// arrive as interface{} because small models emit "0.8" as a string
// or is_safe as "true" as often as the native types.
type rawJSON struct {
	Summary          interface{} `json:"summary"`
	Category         interface{} `json:"category"`
	Tags             interface{} `json:"tags"`
	SafetyScore      interface{} `json:"safety_score"`
	IsSafe           interface{} `json:"is_safe"`
	SafetyReasons    interface{} `json:"safety_reasons"`
	AliasSuggestions interface{} `json:"alias_suggestions"`
}

func stageParse(s string) (parsedAnnotation, bool) {
	var raw rawJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return parsedAnnotation{}, false
	}

	return parsedAnnotation{
		Summary:          coerceString(raw.Summary),
		Category:         coerceString(raw.Category),
		Tags:             coerceStringSlice(raw.Tags),
		SafetyScore:      coerceFloat(raw.SafetyScore),
		IsSafe:           coerceBool(raw.IsSafe),
		SafetyReasons:    coerceStringSlice(raw.SafetyReasons),
		AliasSuggestions: coerceStringSlice(raw.AliasSuggestions),
	}, true
}

func coerceString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func coerceFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0.8
		}
		return f
	default:
		return 0.8
	}
}

func coerceBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return true
	}
}

func coerceStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var (
	summaryFieldRe  = regexp.MustCompile(`(?i)"?summary"?\s*:\s*"([^"]*)"`)
	categoryFieldRe = regexp.MustCompile(`(?i)"?category"?\s*:\s*"([^"]*)"`)
	scoreFieldRe    = regexp.MustCompile(`(?i)"?safety_score"?\s*:\s*"?([0-9.]+)"?`)
	isSafeFieldRe   = regexp.MustCompile(`(?i)"?is_safe"?\s*:\s*"?(true|false)"?`)
	tagsFieldRe     = regexp.MustCompile(`(?is)"?tags"?\s*:\s*\[(.*?)\]`)
	reasonsFieldRe  = regexp.MustCompile(`(?is)"?safety_reasons"?\s*:\s*\[(.*?)\]`)
	aliasFieldRe    = regexp.MustCompile(`(?is)"?alias_suggestions"?\s*:\s*\[(.*?)\]`)
	quotedItemRe    = regexp.MustCompile(`"([^"]*)"`)
)

// stageRegexFallback extracts individual fields by regex when the
// payload never parses as JSON at all, salvaging whatever structure
// the model preserved.
func stageRegexFallback(raw string) parsedAnnotation {
	p := parsedAnnotation{SafetyScore: 0.8, IsSafe: true}

	if m := summaryFieldRe.FindStringSubmatch(raw); len(m) == 2 {
		p.Summary = m[1]
	}
	if m := categoryFieldRe.FindStringSubmatch(raw); len(m) == 2 {
		p.Category = m[1]
	}
	if m := scoreFieldRe.FindStringSubmatch(raw); len(m) == 2 {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.SafetyScore = f
		}
	}
	if m := isSafeFieldRe.FindStringSubmatch(raw); len(m) == 2 {
		p.IsSafe = strings.EqualFold(m[1], "true")
	}
	if m := tagsFieldRe.FindStringSubmatch(raw); len(m) == 2 {
		p.Tags = extractQuotedItems(m[1])
	}
	if m := reasonsFieldRe.FindStringSubmatch(raw); len(m) == 2 {
		p.SafetyReasons = extractQuotedItems(m[1])
	}
	if m := aliasFieldRe.FindStringSubmatch(raw); len(m) == 2 {
		p.AliasSuggestions = extractQuotedItems(m[1])
	}

	return p
}

func extractQuotedItems(s string) []string {
	matches := quotedItemRe.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	aliasInvalidRe = regexp.MustCompile(`[^a-z0-9-]+`)
	aliasDashRunRe = regexp.MustCompile(`-+`)
)

var placeholderSummaries = map[string]bool{
	"n/a": true, "na": true, "none": true, "unknown": true, "todo": true, "tbd": true,
	"brief description": true, "no summary available": true,
}

// sanitize converts a parsedAnnotation into a well-formed Annotation,
// applying the validation rules for each field independently so a bad
// value in one field never discards the others.
func sanitize(url string, p parsedAnnotation) *model.Annotation {
	a := &model.Annotation{
		OriginalURL: url,
		Category:    sanitizeCategory(p.Category),
		Summary:     sanitizeSummary(p.Summary),
		SafetyScore: clamp01(p.SafetyScore),
		IsSafe:      p.IsSafe,
	}

	a.Tags = strings.Join(capStrings(dedupe(trimAll(p.Tags)), 10), ",")
	a.SafetyReasons = strings.Join(capStrings(dedupe(trimAll(p.SafetyReasons)), 5), ",")
	a.AliasSuggestions = strings.Join(capStrings(sanitizeAliases(p.AliasSuggestions), 5), ",")

	return a
}

func sanitizeCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Other"
	}
	for _, c := range model.AICategories {
		if strings.EqualFold(c, raw) {
			return c
		}
	}
	lower := strings.ToLower(raw)
	for _, c := range model.AICategories {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c
		}
	}
	// Fuzzy pass: a category's first four letters ("tech", "news", ...)
	// anywhere in raw map to that category.
	for _, c := range model.AICategories {
		stem := strings.ToLower(c)
		if len(stem) > 4 {
			stem = stem[:4]
		}
		if strings.Contains(lower, stem) {
			return c
		}
	}
	return "Other"
}

func sanitizeSummary(raw string) string {
	s := controlCharsRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	if len(s) < 10 || placeholderSummaries[strings.ToLower(s)] {
		return ""
	}
	if len(s) > 500 {
		return s[:500]
	}
	return s
}

func clamp01(f float64) float64 {
	if f < 0 || f > 1 {
		return 0.8
	}
	return f
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if t := strings.TrimSpace(item); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func capStrings(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// sanitizeAliases slugifies each alias suggestion, filtering out
// anything that doesn't reduce to a plausible short-key alias.
func sanitizeAliases(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		slug := strings.ToLower(strings.TrimSpace(item))
		slug = strings.ReplaceAll(slug, " ", "-")
		slug = aliasInvalidRe.ReplaceAllString(slug, "")
		slug = aliasDashRunRe.ReplaceAllString(slug, "-")
		slug = strings.Trim(slug, "-")

		if len(slug) < 3 || len(slug) > 20 || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, slug)
	}
	return out
}
