package clicktracker

import (
	"testing"
	"time"
)

func TestValidateClickPayload(t *testing.T) {
	valid := clickPayload{
		EffectiveKey: "abc123",
		Referer:      "https://example.com/path",
		UserAgent:    "TestAgent/1.0",
		ClickedAt:    time.Now().UnixMilli(),
	}

	if err := validateClickPayload(valid); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	cases := []struct {
		name    string
		payload clickPayload
	}{
		{"missing_effective_key", clickPayload{ClickedAt: 1}},
		{"effective_key_too_short", clickPayload{EffectiveKey: "ab", ClickedAt: 1}},
		{"missing_clicked_at", clickPayload{EffectiveKey: "abc"}},
	}

	for _, tc := range cases {
		if err := validateClickPayload(tc.payload); err == nil {
			t.Fatalf("expected error for %s", tc.name)
		}
	}
}
