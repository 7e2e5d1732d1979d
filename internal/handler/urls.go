package handler

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/penshort/penshort/internal/handler/dto"
	"github.com/penshort/penshort/internal/middleware"
	"github.com/penshort/penshort/internal/model"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/security"
	"github.com/penshort/penshort/internal/service"
)

const (
	maxBulkItems     = 100
	maxCSVBodyBytes  = 1 << 20 // 1MB
	defaultQRSize    = 256
	defaultListLimit = 20
	maxListLimit     = 100
)

// URLHandler serves the mapping management API: create, list, stats,
// analytics companions, QR codes, and gated-link introspection.
type URLHandler struct {
	shortener *service.Shortener
	mappings  *repository.MappingStore
	baseURL   string
	logger    *slog.Logger
}

// NewURLHandler creates a new URLHandler.
func NewURLHandler(shortener *service.Shortener, mappings *repository.MappingStore, baseURL string, logger *slog.Logger) *URLHandler {
	return &URLHandler{
		shortener: shortener,
		mappings:  mappings,
		baseURL:   baseURL,
		logger:    logger.With("component", "handler.urls"),
	}
}

// Create handles POST /api/urls.
func (h *URLHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	result, err := h.shortener.Create(r.Context(), toCreateInput(req))
	if err != nil {
		h.writeCreateError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToMappingResponse(result.Mapping, result.ShortURL))
}

// CreateBulk handles POST /api/urls/bulk.
func (h *URLHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if len(req.Items) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "NO_VALID_URLS", "no items supplied")
		return
	}
	if len(req.Items) > maxBulkItems {
		h.writeError(w, r, http.StatusBadRequest, "TOO_MANY_ITEMS", "at most 100 items per bulk request")
		return
	}

	inputs := make([]service.CreateInput, len(req.Items))
	for i, item := range req.Items {
		inputs[i] = toCreateInput(item)
	}

	result := h.shortener.CreateBulk(r.Context(), inputs, req.FetchMetadata, req.EnableAiAnalysis)
	writeJSON(w, http.StatusCreated, toBulkResponse(result, h.baseURL))
}

// CreateBulkCSV handles POST /api/urls/bulk/csv: multipart upload, ≤1MB,
// ≤100 rows, first column is the URL; an optional header row naming
// "url" or "originalUrl" is skipped.
func (h *URLHandler) CreateBulkCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVBodyBytes)
	if err := r.ParseMultipartForm(maxCSVBodyBytes); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "file too large or malformed upload")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "missing file field")
		return
	}
	defer closeMultipartFile(file)

	urls, err := parseCSVURLs(file)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "could not parse CSV")
		return
	}
	if len(urls) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "NO_VALID_URLS", "no valid URLs found in upload")
		return
	}
	if len(urls) > maxBulkItems {
		urls = urls[:maxBulkItems]
	}

	inputs := make([]service.CreateInput, len(urls))
	for i, u := range urls {
		inputs[i] = service.CreateInput{Destination: u, FetchMetadata: true, RequestAIAnalyze: true}
	}

	result := h.shortener.CreateBulk(r.Context(), inputs, nil, nil)
	writeJSON(w, http.StatusCreated, toBulkResponse(result, h.baseURL))
}

// List handles GET /api/urls: the most recent active mappings,
// defaulting to 20 and keyset-paginated via ?cursor=&limit=.
func (h *URLHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= maxListLimit {
			limit = parsed
		}
	}
	cursor := r.URL.Query().Get("cursor")

	mappings, nextCursor, hasMore, err := h.mappings.List(r.Context(), repository.MappingFilter{ActiveOnly: true}, cursor, limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			h.writeError(w, r, http.StatusBadRequest, "INVALID_CURSOR", "invalid pagination cursor")
			return
		}
		h.logger.Error("list mappings failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list mappings")
		return
	}
	writeJSON(w, http.StatusOK, dto.ToListResponse(mappings, h.baseURL, nextCursor, hasMore))
}

// Protected handles GET /api/urls/{key}/protected.
func (h *URLHandler) Protected(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.lookup(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, dto.ProtectedResponse{PasswordRequired: mapping.IsPasswordProtected()})
}

// Preview handles GET /api/urls/{key}/preview: decorations only, safe
// to expose even when the mapping is gated.
func (h *URLHandler) Preview(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.lookup(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, dto.PreviewResponse{
		MetaTitle:        mapping.MetaTitle,
		MetaDescription:  mapping.MetaDescription,
		MetaImageURL:     mapping.MetaImageURL,
		MetaFaviconURL:   mapping.MetaFaviconURL,
		PasswordRequired: mapping.IsPasswordProtected(),
	})
}

// QRCode handles GET /api/urls/{key}/qrcode?size=&fgColor=&bgColor=.
// Colors are accepted for API compatibility but go-qrcode's PNG encoder
// only supports the default black-on-white palette; size is honored.
func (h *URLHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.lookup(w, r)
	if err != nil {
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 2048 {
			size = parsed
		}
	}

	shortURL := strings.TrimSuffix(h.baseURL, "/") + "/" + mapping.EffectiveKey()
	png, err := qrcode.Encode(shortURL, qrcode.Medium, size)
	if err != nil {
		h.logger.Error("qrcode encode failed", "short_key", mapping.ShortKey, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *URLHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Mapping, error) {
	key := chi.URLParam(r, "key")
	mapping, err := h.mappings.FindByEffectiveKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			h.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "mapping not found")
			return nil, err
		}
		h.logger.Error("lookup mapping failed", "key", key, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch mapping")
		return nil, err
	}
	return mapping, nil
}

func (h *URLHandler) writeCreateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		h.writeError(w, r, http.StatusBadRequest, "INVALID_URL", err.Error())
	case errors.Is(err, service.ErrInvalidAlias):
		h.writeError(w, r, http.StatusBadRequest, "INVALID_ALIAS", err.Error())
	case errors.Is(err, service.ErrAliasExists):
		h.writeError(w, r, http.StatusBadRequest, "ALIAS_EXISTS", "alias already exists")
	case errors.Is(err, service.ErrWeakPassword):
		h.writeError(w, r, http.StatusBadRequest, "WEAK_PASSWORD", err.Error())
	default:
		h.logger.Error("create mapping failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create mapping")
	}
}

func (h *URLHandler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

func toCreateInput(req dto.CreateRequest) service.CreateInput {
	in := service.CreateInput{
		Destination:      req.OriginalURL,
		Alias:            req.CustomAlias,
		Password:         req.Password,
		ExpiresAt:        req.ExpiresAt,
		FetchMetadata:    true,
		RequestAIAnalyze: true,
	}
	if req.FetchMetadata != nil {
		in.FetchMetadata = *req.FetchMetadata
	}
	if req.EnableAiAnalysis != nil {
		in.RequestAIAnalyze = *req.EnableAiAnalysis
	}
	return in
}

func toBulkResponse(result *service.BulkResult, baseURL string) dto.BulkCreateResponse {
	resp := dto.BulkCreateResponse{
		Successes: make([]dto.MappingResponse, len(result.Successes)),
		Failures:  make([]dto.BulkFailure, len(result.Failures)),
	}
	for i, s := range result.Successes {
		resp.Successes[i] = dto.ToMappingResponse(s.Mapping, s.ShortURL)
	}
	for i, f := range result.Failures {
		resp.Failures[i] = dto.BulkFailure{
			Index:        f.Index,
			OriginalURL:  f.OriginalURL,
			ErrorMessage: f.ErrorMessage,
		}
	}
	return resp
}

// parseCSVURLs reads the first column of every row as a URL, skipping
// a header row whose first cell is "url" or "originalUrl".
func parseCSVURLs(r io.Reader) ([]string, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	var urls []string
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		cell := strings.TrimSpace(record[0])
		if first {
			first = false
			lower := strings.ToLower(cell)
			if lower == "url" || lower == "originalurl" {
				continue
			}
		}
		if cell == "" {
			continue
		}
		if _, err := security.NewURLValidator().Validate(cell); err != nil {
			continue
		}
		urls = append(urls, cell)
		if len(urls) >= maxBulkItems {
			break
		}
	}
	return urls, nil
}

func closeMultipartFile(f multipart.File) {
	_ = f.Close()
}
