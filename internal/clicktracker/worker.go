package clicktracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/penshort/penshort/internal/geoip"
	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/model"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/uaparser"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "clicktracker_workers"

	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 500

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the max retries for batch processing.
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	// geoLookupTimeout bounds each individual GeoIP call within a batch.
	geoLookupTimeout = 5 * time.Second
)

// MappingLookup resolves the effective key captured in a Snapshot to
// its mapping row and records the click.
type MappingLookup interface {
	FindByEffectiveKey(ctx context.Context, key string) (*model.Mapping, error)
	IncrementClicks(ctx context.Context, shortKey string) error
}

// GeoLocator resolves a client IP to a coarse location, skipping
// private/loopback ranges itself.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (*geoip.Location, error)
}

// Worker drains the click stream, enriches each event with device and
// geo data, and persists it durably.
type Worker struct {
	redis       *redis.Client
	mappings    MappingLookup
	clicks      *repository.ClickStore
	geo         GeoLocator
	logger      *slog.Logger
	metrics     metrics.Recorder
	consumerID  string

	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a Worker for the given consumer ID.
func NewWorker(client *redis.Client, mappings MappingLookup, clicks *repository.ClickStore, geo GeoLocator, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		mappings:        mappings,
		clicks:          clicks,
		geo:             geo,
		logger:          logger.With("component", "clicktracker.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("clicktracker worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()

		if draining {
			w.logger.Info("clicktracker worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("clicktracker worker stopping")
			return ctx.Err()
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, completing any in-flight batch.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("clicktracker worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("clicktracker worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("clicktracker worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	claimed, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}

	messages := claimed
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}

	if len(messages) == 0 {
		return nil
	}

	payloads, messageIDs := w.parseMessages(ctx, messages)
	if len(payloads) == 0 {
		return w.ackMessages(ctx, messageIDs)
	}

	events := w.enrich(ctx, payloads)
	if len(events) == 0 {
		return w.ackMessages(ctx, messageIDs)
	}

	if err := w.processBatchWithRetry(ctx, events); err != nil {
		w.logger.Error("batch processing failed after retries",
			"batch_size", len(events),
			"error", err,
		)
		return err
	}

	return w.ackMessages(ctx, messageIDs)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}

	w.lastClaim = time.Now()
	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && err != redis.Nil {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			w.metrics.SetAnalyticsQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetClaimInterval overrides the default pending-claim interval.
func (w *Worker) SetClaimInterval(interval time.Duration) {
	if interval > 0 {
		w.claimInterval = interval
	}
}

// SetClaimIdle overrides the default pending idle threshold.
func (w *Worker) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		w.claimIdle = idle
	}
}

// SetMetricsInterval overrides the default metrics refresh interval.
func (w *Worker) SetMetricsInterval(interval time.Duration) {
	if interval > 0 {
		w.metricsInterval = interval
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()

	if err == redis.Nil || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	return streams[0].Messages, nil
}

type parsedMessage struct {
	payload   clickPayload
	messageID string
}

func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) ([]parsedMessage, []string) {
	parsed := make([]parsedMessage, 0, len(messages))
	messageIDs := make([]string, 0, len(messages))

	for _, msg := range messages {
		messageIDs = append(messageIDs, msg.ID)

		raw, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetterMessage(ctx, msg, "invalid_format", "payload field missing or not a string")
			continue
		}

		var p clickPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			w.deadLetterMessage(ctx, msg, "unmarshal_error", err.Error())
			continue
		}
		if err := validateClickPayload(p); err != nil {
			w.deadLetterMessage(ctx, msg, "validation_error", err.Error())
			continue
		}

		parsed = append(parsed, parsedMessage{payload: p, messageID: msg.ID})
	}

	return parsed, messageIDs
}

// enrich resolves each parsed payload against the mapping table, and
// decorates it with device classification and geo location. A mapping
// that can no longer be found is tolerated: the click is dropped
// rather than failing the batch.
func (w *Worker) enrich(ctx context.Context, payloads []parsedMessage) []*model.ClickEvent {
	events := make([]*model.ClickEvent, 0, len(payloads))

	for _, pm := range payloads {
		mapping, err := w.mappings.FindByEffectiveKey(ctx, pm.payload.EffectiveKey)
		if err != nil {
			if !errors.Is(err, repository.ErrMappingNotFound) {
				w.logger.Warn("failed to resolve mapping for click",
					"effective_key", pm.payload.EffectiveKey,
					"error", err,
				)
			}
			continue
		}

		if err := w.mappings.IncrementClicks(ctx, mapping.ShortKey); err != nil {
			w.logger.Warn("failed to increment click count",
				"short_key", mapping.ShortKey,
				"error", err,
			)
		}

		classification := uaparser.Parse(pm.payload.UserAgent)

		event := &model.ClickEvent{
			ID:          ulid.Make().String(),
			EventID:     pm.messageID,
			MappingID:   mapping.ID,
			ShortKey:    mapping.ShortKey,
			ClientIP:    pm.payload.ClientIP,
			UserAgent:   pm.payload.UserAgent,
			Referer:     pm.payload.Referer,
			BrowserName: classification.BrowserName,
			BrowserVer:  classification.BrowserVer,
			OSName:      classification.OSName,
			OSVersion:   classification.OSVersion,
			DeviceType:  classification.DeviceType,
			ClickedAt:   time.UnixMilli(pm.payload.ClickedAt),
			CreatedAt:   time.Now().UTC(),
		}

		w.applyGeo(ctx, event)

		events = append(events, event)
	}

	return events
}

// applyGeo looks up the client's coarse location. Any failure —
// timeout, lookup error, private IP — leaves the event's geo fields
// empty rather than failing the click.
func (w *Worker) applyGeo(ctx context.Context, event *model.ClickEvent) {
	if event.ClientIP == "" || w.geo == nil {
		return
	}

	geoCtx, cancel := context.WithTimeout(ctx, geoLookupTimeout)
	defer cancel()

	loc, err := w.geo.Lookup(geoCtx, event.ClientIP)
	if err != nil {
		w.metrics.IncGeoIPLookup("failed")
		return
	}
	if loc == nil {
		w.metrics.IncGeoIPLookup("skipped")
		return
	}

	event.CountryCode = loc.CountryCode
	event.CountryName = loc.CountryName
	event.City = loc.City
	event.Region = loc.Region
	event.Timezone = loc.Timezone
	w.metrics.IncGeoIPLookup("success")
}

func (w *Worker) deadLetterMessage(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	_, err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"original_stream":  StreamKey,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()

	if err != nil {
		w.logger.Error("failed to write to dead-letter queue",
			"message_id", msg.ID,
			"error", err,
		)
	}

	w.metrics.IncAnalyticsEventProcessed("dead_lettered")
}

func (w *Worker) processBatchWithRetry(ctx context.Context, events []*model.ClickEvent) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if err := w.processBatch(ctx, events); err != nil {
			lastErr = err
			backoff := time.Duration(1<<attempt) * time.Second
			w.logger.Warn("batch processing failed, retrying",
				"attempt", attempt,
				"backoff_seconds", backoff.Seconds(),
				"error", err,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		return nil
	}

	for range events {
		w.metrics.IncAnalyticsEventProcessed("failed")
	}
	return lastErr
}

func (w *Worker) processBatch(ctx context.Context, events []*model.ClickEvent) error {
	start := time.Now()

	if err := w.clicks.BulkInsert(ctx, events); err != nil {
		w.logger.Error("bulk insert failed",
			"batch_size", len(events),
			"first_event_id", events[0].EventID,
			"error", err,
		)
		return fmt.Errorf("bulk insert: %w", err)
	}

	w.logger.Info("batch processed",
		"events_count", len(events),
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)

	w.metrics.ObserveAnalyticsBatchSize(len(events))
	w.metrics.ObserveAnalyticsBatchDuration(time.Since(start))
	for _, event := range events {
		w.metrics.IncAnalyticsEventProcessed("success")
		w.metrics.ObserveAnalyticsIngestLag(time.Since(event.ClickedAt))
	}

	return nil
}

func (w *Worker) ackMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	_, err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageIDs...).Result()
	if err != nil {
		return fmt.Errorf("xack: %w", err)
	}

	return nil
}

func isConsumerGroupExistsError(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" ||
		err.Error() == "BUSYGROUP")
}
