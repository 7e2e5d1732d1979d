package model

import "testing"

func TestExtractRefererDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://news.example.com/front-page", "news.example.com"},
		{"https://news.example.com/world", "news.example.com"},
		{"", ""},
		{"not-a-url", ""},
	}
	for _, tt := range tests {
		if got := ExtractRefererDomain(tt.in); got != tt.want {
			t.Errorf("ExtractRefererDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
