package llm

import "testing"

func TestParseStaircase_CleanJSON(t *testing.T) {
	raw := `{"summary": "A helpful reference site about Go programming.", "category": "Technology", "tags": ["go", "programming"], "safety_score": 0.95, "is_safe": true, "safety_reasons": [], "alias_suggestions": ["go-docs"]}`

	p := parseStaircase(raw)
	if p.Category != "Technology" {
		t.Errorf("Category = %q, want Technology", p.Category)
	}
	if p.SafetyScore != 0.95 {
		t.Errorf("SafetyScore = %v, want 0.95", p.SafetyScore)
	}
	if !p.IsSafe {
		t.Error("IsSafe = false, want true")
	}
	if len(p.Tags) != 2 || p.Tags[0] != "go" {
		t.Errorf("Tags = %v", p.Tags)
	}
}

func TestParseStaircase_ProseWrapped(t *testing.T) {
	raw := "Here is the analysis:\n{\"summary\": \"A news aggregation platform.\", \"category\": \"News\", \"tags\": [], \"safety_score\": 0.9, \"is_safe\": true, \"safety_reasons\": [], \"alias_suggestions\": []}\nLet me know if you need anything else."

	p := parseStaircase(raw)
	if p.Category != "News" {
		t.Errorf("Category = %q, want News", p.Category)
	}
}

func TestParseStaircase_MarkdownFenced(t *testing.T) {
	raw := "```json\n{\"summary\": \"An online shopping destination.\", \"category\": \"Shopping\", \"tags\": [\"retail\"], \"safety_score\": 0.85, \"is_safe\": true, \"safety_reasons\": [], \"alias_suggestions\": []}\n```"

	p := parseStaircase(raw)
	if p.Category != "Shopping" {
		t.Errorf("Category = %q, want Shopping", p.Category)
	}
	if len(p.Tags) != 1 || p.Tags[0] != "retail" {
		t.Errorf("Tags = %v", p.Tags)
	}
}

func TestParseStaircase_TruncatedJSON(t *testing.T) {
	raw := `{"summary": "A truncated generation missing its closing braces.", "category": "Business", "tags": ["finance", "startups"],`

	p := parseStaircase(raw)
	if p.Category != "Business" {
		t.Errorf("Category = %q, want Business", p.Category)
	}
}

func TestParseStaircase_TrailingComma(t *testing.T) {
	raw := `{"summary": "A social network for developers.", "category": "Social", "tags": ["dev", "community",], "safety_score": 0.7, "is_safe": true, "safety_reasons": [], "alias_suggestions": [],}`

	p := parseStaircase(raw)
	if p.Category != "Social" {
		t.Errorf("Category = %q, want Social", p.Category)
	}
	if len(p.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 items", p.Tags)
	}
}

func TestParseStaircase_NoJSONAtAll_RegexFallback(t *testing.T) {
	raw := `Sure! summary: "An educational resource for students." category: "Education" safety_score: 0.92 is_safe: true tags: ["learning", "courses"] alias_suggestions: ["learn-hub"]`

	p := parseStaircase(raw)
	if p.Summary != "An educational resource for students." {
		t.Errorf("Summary = %q", p.Summary)
	}
	if p.Category != "Education" {
		t.Errorf("Category = %q, want Education", p.Category)
	}
	if p.SafetyScore != 0.92 {
		t.Errorf("SafetyScore = %v, want 0.92", p.SafetyScore)
	}
	if len(p.Tags) != 2 {
		t.Errorf("Tags = %v", p.Tags)
	}
	if len(p.AliasSuggestions) != 1 || p.AliasSuggestions[0] != "learn-hub" {
		t.Errorf("AliasSuggestions = %v", p.AliasSuggestions)
	}
}

func TestParseStaircase_CompletelyUnparseable(t *testing.T) {
	p := parseStaircase("I cannot analyze this link.")
	if p.Category != "" {
		t.Errorf("Category = %q, want empty", p.Category)
	}
	if p.SafetyScore != 0.8 {
		t.Errorf("SafetyScore = %v, want default 0.8", p.SafetyScore)
	}
	if !p.IsSafe {
		t.Error("IsSafe should default true")
	}
}

func TestSanitizeCategory(t *testing.T) {
	tests := map[string]string{
		"Technology":        "Technology",
		"technology":        "Technology",
		"  News  ":          "News",
		"software and tech": "Technology",
		"":                  "Other",
		"Gibberish":         "Other",
	}
	for in, want := range tests {
		if got := sanitizeCategory(in); got != want {
			t.Errorf("sanitizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeSummary(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A perfectly reasonable summary of the page.", "A perfectly reasonable summary of the page."},
		{"short", ""},
		{"n/a", ""},
		{"None", ""},
		{"Brief description", ""},
		{"No summary available", ""},
		{"BRIEF DESCRIPTION", ""},
	}
	for _, tt := range tests {
		if got := sanitizeSummary(tt.in); got != tt.want {
			t.Errorf("sanitizeSummary(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeSummary_CapsLength(t *testing.T) {
	long := ""
	for i := 0; i < 600; i++ {
		long += "a"
	}
	got := sanitizeSummary(long)
	if len(got) != 500 {
		t.Errorf("len(sanitizeSummary(long)) = %d, want 500", len(got))
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{0, 0},
		{1, 1},
		{-0.1, 0.8},
		{1.5, 0.8},
	}
	for _, tt := range tests {
		if got := clamp01(tt.in); got != tt.want {
			t.Errorf("clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeAliases(t *testing.T) {
	in := []string{"Go Docs!", "go docs", "a", "valid-alias", "THIS IS WAY TOO LONG TO BE A VALID ALIAS SUGGESTION"}
	got := sanitizeAliases(in)

	want := map[string]bool{"go-docs": true, "valid-alias": true}
	if len(got) != len(want) {
		t.Fatalf("sanitizeAliases(%v) = %v, want 2 items", in, got)
	}
	for _, g := range got {
		if !want[g] {
			t.Errorf("unexpected alias %q in %v", g, got)
		}
	}
}

func TestSanitize_NeverPanicsOnEmptyInput(t *testing.T) {
	a := sanitize("https://example.com", parsedAnnotation{})
	if a.Category != "Other" {
		t.Errorf("Category = %q, want Other", a.Category)
	}
	// A zero score is in range and kept; the 0.8 default is applied while
	// parsing, not by sanitize.
	if a.SafetyScore != 0 {
		t.Errorf("SafetyScore = %v, want 0", a.SafetyScore)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"go", "Go", "python", "go"})
	if len(got) != 2 {
		t.Errorf("dedupe = %v, want 2 items", got)
	}
}
