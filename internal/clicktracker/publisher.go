package clicktracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/model"
)

const (
	// StreamKey is the Redis stream clicks are queued on.
	StreamKey = "stream:click_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:click_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout bounds the async publish so a slow Redis never
	// holds up the goroutine the redirect handler fired.
	PublishTimeout = 100 * time.Millisecond
)

// clickPayload is the wire format queued on the stream.
type clickPayload struct {
	EffectiveKey string `json:"k"`
	ClientIP     string `json:"ip,omitempty"`
	UserAgent    string `json:"ua,omitempty"`
	Referer      string `json:"r,omitempty"`
	ClickedAt    int64  `json:"t"` // unix milliseconds
}

// Tracker queues click Snapshots for asynchronous enrichment and
// persistence. Track never blocks the redirect response: it dispatches
// a goroutine that publishes to the stream with its own short timeout.
type Tracker struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewTracker returns a Tracker publishing onto client's default stream.
func NewTracker(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Tracker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Tracker{
		redis:   client,
		logger:  logger.With("component", "clicktracker.tracker"),
		metrics: recorder,
	}
}

// Track fire-and-forgets snapshot onto the stream. It must be called
// with a Snapshot captured before the 302 response is written, and
// must never be allowed to delay that response.
func (t *Tracker) Track(snapshot Snapshot) {
	payload := clickPayload{
		EffectiveKey: snapshot.EffectiveKey,
		ClientIP:     snapshot.ClientIP,
		UserAgent:    truncate(snapshot.UserAgent, maxMetaLength),
		Referer:      SanitizeReferrer(snapshot.Referer),
		ClickedAt:    snapshot.ClickedAt.UnixMilli(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := t.publish(ctx, payload)
		if err != nil {
			t.logger.Warn("failed to publish click event",
				"effective_key", payload.EffectiveKey,
				"error", err,
			)
			t.metrics.IncAnalyticsEventPublished("dropped")
			return
		}

		t.logger.Debug("click event published",
			"effective_key", payload.EffectiveKey,
			"stream_id", streamID,
		)
		t.metrics.IncAnalyticsEventPublished("success")
	}()
}

func (t *Tracker) publish(ctx context.Context, payload clickPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := t.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return result, nil
}

// SanitizeReferrer strips query parameters and fragments from a
// referer header, keeping only scheme+host+path.
func SanitizeReferrer(ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return truncate(parsed.String(), maxMetaLength)
}

// ExtractReferrerDomain reduces a referer to its bare host. Kept here
// as a thin re-export of model.ExtractRefererDomain so callers that
// only ever see clicktracker payloads don't need the model import.
func ExtractReferrerDomain(ref string) string {
	return model.ExtractRefererDomain(ref)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
