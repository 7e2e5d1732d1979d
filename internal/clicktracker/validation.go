package clicktracker

import "fmt"

const (
	minEffectiveKeyLength = 3
	maxEffectiveKeyLength = 50
	maxMetaLength         = 500
)

// validateClickPayload rejects malformed stream payloads before they
// reach enrichment, so a poison message is dead-lettered rather than
// panicking the worker.
func validateClickPayload(p clickPayload) error {
	if p.EffectiveKey == "" {
		return fmt.Errorf("effective key is required")
	}
	if len(p.EffectiveKey) < minEffectiveKeyLength || len(p.EffectiveKey) > maxEffectiveKeyLength {
		return fmt.Errorf("effective key length out of bounds")
	}
	if p.ClickedAt <= 0 {
		return fmt.Errorf("clicked_at must be set")
	}
	if len(p.Referer) > maxMetaLength {
		return fmt.Errorf("referer too long")
	}
	if len(p.UserAgent) > maxMetaLength {
		return fmt.Errorf("user_agent too long")
	}
	return nil
}
