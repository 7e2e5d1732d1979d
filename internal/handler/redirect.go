package handler

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/penshort/penshort/internal/clicktracker"
	"github.com/penshort/penshort/internal/handler/dto"
	"github.com/penshort/penshort/internal/middleware"
	"github.com/penshort/penshort/internal/service"
)

// RedirectHandler serves the public redirect surface: GET /{key} and
// POST /{key}/unlock.
type RedirectHandler struct {
	resolver *service.Resolver
	tracker  *clicktracker.Tracker
	logger   *slog.Logger
}

// NewRedirectHandler creates a new RedirectHandler.
func NewRedirectHandler(resolver *service.Resolver, tracker *clicktracker.Tracker, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{
		resolver: resolver,
		tracker:  tracker,
		logger:   logger.With("component", "handler.redirect"),
	}
}

// Redirect handles GET /{key}[?password=...].
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	password := r.URL.Query().Get("password")

	h.resolve(w, r, key, password)
}

// Unlock handles POST /{key}/unlock with a JSON {"password": "..."} body.
func (h *RedirectHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req dto.UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	h.resolve(w, r, key, req.Password)
}

func (h *RedirectHandler) resolve(w http.ResponseWriter, r *http.Request, key, password string) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	// Captured before any response is written, per §4.7/§9: the
	// request object is not safe to read from the tracker's goroutine.
	snapshot := clicktracker.Snapshot{
		EffectiveKey: key,
		ClientIP:     middleware.ClientIP(r),
		UserAgent:    r.Header.Get("User-Agent"),
		Referer:      r.Header.Get("Referer"),
		ClickedAt:    time.Now().UTC(),
	}

	start := time.Now()
	mapping, cacheHit, err := h.resolver.Resolve(r.Context(), key, password)
	duration := time.Since(start)

	if err != nil {
		h.handleResolveError(w, r, key, err, duration)
		return
	}

	h.tracker.Track(snapshot)

	h.logger.Info("redirect",
		"effective_key", key,
		"cache_hit", cacheHit,
		"duration_ms", float64(duration.Microseconds())/1000,
	)

	http.Redirect(w, r, mapping.Destination, int(mapping.RedirectType))
}

func (h *RedirectHandler) handleResolveError(w http.ResponseWriter, r *http.Request, key string, err error, duration time.Duration) {
	fields := []any{"effective_key", key, "duration_ms", float64(duration.Microseconds()) / 1000}

	switch {
	case errors.Is(err, service.ErrNotFound):
		h.logger.Info("redirect_not_found", fields...)
		h.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "link not found")

	case errors.Is(err, service.ErrInactive):
		h.logger.Info("redirect_inactive", fields...)
		h.writeError(w, r, http.StatusForbidden, "INACTIVE", "link is disabled")

	case errors.Is(err, service.ErrExpired):
		h.logger.Info("redirect_expired", fields...)
		h.writeError(w, r, http.StatusGone, "EXPIRED", "link has expired")

	case errors.Is(err, service.ErrNeedsPassword):
		h.logger.Info("redirect_needs_password", fields...)
		h.writePasswordChallenge(w, r, key, "")

	case errors.Is(err, service.ErrBadPassword):
		h.logger.Info("redirect_bad_password", fields...)
		h.writePasswordChallenge(w, r, key, "Incorrect password")

	default:
		h.logger.Error("redirect_error", append(fields, "error", err)...)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}

// writePasswordChallenge writes a 401. If the client accepts HTML, a
// minimal password-entry form is rendered instead of a bare JSON body.
func (h *RedirectHandler) writePasswordChallenge(w http.ResponseWriter, r *http.Request, key, formError string) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(passwordFormHTML(key, formError)))
		return
	}
	h.writeError(w, r, http.StatusUnauthorized, "NEEDS_PASSWORD", "password required")
}

func passwordFormHTML(key, formError string) string {
	var errLine string
	if formError != "" {
		errLine = fmt.Sprintf("<p class=\"error\">%s</p>", html.EscapeString(formError))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Password required</title></head>
<body>
<h1>This link is password protected</h1>
%s
<form method="GET" action="/%s">
  <input type="password" name="password" placeholder="Enter password" autofocus>
  <button type="submit">Continue</button>
</form>
</body>
</html>`, errLine, html.EscapeString(key))
}

func (h *RedirectHandler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
