package clicktracker

import (
	"strings"
	"testing"
)

func TestSanitizeReferrer_StripQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strip utm params",
			input:    "https://example.com/page?utm_source=test&utm_medium=email",
			expected: "https://example.com/page",
		},
		{
			name:     "strip all query params",
			input:    "https://google.com/search?q=test&hl=en",
			expected: "https://google.com/search",
		},
		{
			name:     "strip fragment",
			input:    "https://example.com/page#section",
			expected: "https://example.com/page",
		},
		{
			name:     "strip both query and fragment",
			input:    "https://example.com/path?query=1#section",
			expected: "https://example.com/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := SanitizeReferrer(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeReferrer(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeReferrer_Empty(t *testing.T) {
	t.Parallel()

	result := SanitizeReferrer("")
	if result != "" {
		t.Errorf("SanitizeReferrer(\"\") = %q, want empty string", result)
	}
}

func TestSanitizeReferrer_Truncate(t *testing.T) {
	t.Parallel()

	longPath := strings.Repeat("a", 600)
	longURL := "https://example.com/" + longPath

	result := SanitizeReferrer(longURL)

	if len(result) > maxMetaLength {
		t.Errorf("Sanitized referrer length = %d, want <= %d", len(result), maxMetaLength)
	}
}

func TestExtractReferrerDomain_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"https://google.com/search?q=test", "google.com"},
		{"https://www.example.com/path/to/page", "www.example.com"},
		{"http://subdomain.domain.com:8080/path", "subdomain.domain.com:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()

			result := ExtractReferrerDomain(tt.input)
			if result != tt.expected {
				t.Errorf("ExtractReferrerDomain(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestExtractReferrerDomain_EmptyIsDirect(t *testing.T) {
	t.Parallel()

	result := ExtractReferrerDomain("")
	if result != "" {
		t.Errorf("ExtractReferrerDomain(\"\") = %q, want empty (store treats empty as direct)", result)
	}
}

func TestExtractReferrerDomain_NoHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"no host", "https:///path"},
		{"relative path", "/path/to/page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := ExtractReferrerDomain(tt.input)
			if result != "" {
				t.Errorf("ExtractReferrerDomain(%q) = %q, want empty", tt.input, result)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{"short string", "Mozilla/5.0", 11},
		{"exact limit", strings.Repeat("x", maxMetaLength), maxMetaLength},
		{"over limit", strings.Repeat("x", maxMetaLength+100), maxMetaLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := truncate(tt.input, maxMetaLength)
			if len(result) != tt.wantLen {
				t.Errorf("truncate length = %d, want %d", len(result), tt.wantLen)
			}
		})
	}
}
