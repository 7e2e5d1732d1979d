package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/penshort/penshort/internal/handler/dto"
	"github.com/penshort/penshort/internal/middleware"
	"github.com/penshort/penshort/internal/model"
	"github.com/penshort/penshort/internal/repository"
)

const (
	defaultAnalyticsWindowDays = 7
	maxAnalyticsWindowDays     = 90
	breakdownLimit             = 10
)

// AnalyticsHandler serves GET /api/urls/{key}/stats and /analytics.
type AnalyticsHandler struct {
	mappings *repository.MappingStore
	clicks   *repository.ClickStore
	logger   *slog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(mappings *repository.MappingStore, clicks *repository.ClickStore, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		mappings: mappings,
		clicks:   clicks,
		logger:   logger.With("component", "handler.analytics"),
	}
}

// Stats handles GET /api/urls/{key}/stats: basic counters only.
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	mapping, err := h.mappings.FindByEffectiveKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			h.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "mapping not found")
			return
		}
		h.logger.Error("lookup mapping for stats failed", "key", key, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch stats")
		return
	}

	writeJSON(w, http.StatusOK, dto.StatsResponse{
		ShortKey:   mapping.ShortKey,
		Alias:      mapping.Alias,
		ClickCount: mapping.ClickCount,
		CreatedAt:  mapping.CreatedAt,
	})
}

// Analytics handles GET /api/urls/{key}/analytics: aggregated breakdowns
// over a trailing window (default 7 days, capped at 90).
func (h *AnalyticsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	mapping, err := h.mappings.FindByEffectiveKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			h.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "mapping not found")
			return
		}
		h.logger.Error("lookup mapping for analytics failed", "key", key, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch analytics")
		return
	}

	days := parseWindowDays(r.URL.Query().Get("days"))
	ctx := r.Context()

	summary, err := h.clicks.GetAnalyticsSummary(ctx, mapping.ShortKey, days)
	if err != nil {
		h.logger.Error("get analytics summary failed", "short_key", mapping.ShortKey, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch analytics")
		return
	}

	devices, err := h.clicks.GetDeviceBreakdown(ctx, mapping.ShortKey, days)
	if err != nil {
		h.logger.Error("get device breakdown failed", "short_key", mapping.ShortKey, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch analytics")
		return
	}

	referrers, err := h.clicks.GetReferrerBreakdown(ctx, mapping.ShortKey, days, breakdownLimit)
	if err != nil {
		h.logger.Error("get referrer breakdown failed", "short_key", mapping.ShortKey, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch analytics")
		return
	}

	countries, err := h.clicks.GetCountryBreakdown(ctx, mapping.ShortKey, days, breakdownLimit)
	if err != nil {
		h.logger.Error("get country breakdown failed", "short_key", mapping.ShortKey, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch analytics")
		return
	}

	now := time.Now().UTC()
	response := model.AnalyticsResponse{
		ShortKey:    mapping.ShortKey,
		Summary:     *summary,
		GeneratedAt: now,
	}
	response.Period.From = now.AddDate(0, 0, -days).Format("2006-01-02")
	response.Period.To = now.Format("2006-01-02")
	response.Breakdown.Devices = devices
	response.Breakdown.Referrers = referrers
	response.Breakdown.Countries = countries

	writeJSON(w, http.StatusOK, response)
}

func parseWindowDays(raw string) int {
	if raw == "" {
		return defaultAnalyticsWindowDays
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultAnalyticsWindowDays
	}
	if n > maxAnalyticsWindowDays {
		return maxAnalyticsWindowDays
	}
	return n
}

func (h *AnalyticsHandler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
