// Package main is the entrypoint for the Penshort API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/penshort/penshort/internal/cache"
	"github.com/penshort/penshort/internal/clicktracker"
	"github.com/penshort/penshort/internal/config"
	"github.com/penshort/penshort/internal/geoip"
	"github.com/penshort/penshort/internal/handler"
	"github.com/penshort/penshort/internal/llm"
	"github.com/penshort/penshort/internal/metadata"
	"github.com/penshort/penshort/internal/metrics"
	"github.com/penshort/penshort/internal/middleware"
	"github.com/penshort/penshort/internal/repository"
	"github.com/penshort/penshort/internal/security"
	"github.com/penshort/penshort/internal/server"
	"github.com/penshort/penshort/internal/service"
)

const expirySweepInterval = 1 * time.Hour

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cfg.RedisPoolSize, cfg.RedisMinIdleConns)
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	metricsRecorder := metrics.NewInMemory()

	mappings := repository.NewMappingStore(repo)
	clicks := repository.NewClickStore(repo)
	annotations := repository.NewAnnotationStore(repo)

	metadataFetcher := metadata.New(cfg.MetadataFetchTimeout(), cfg.MetadataMaxBodyBytes)
	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMModel, annotations, metricsRecorder, cfg.AnnotationTTL())
	geoClient := geoip.New(cfg.GeoIPBaseURL)
	passwordGuard := security.NewPasswordGuard()

	resolver := service.NewResolver(mappings, cacheClient, passwordGuard, cfg, logger, metricsRecorder)
	shortener := service.NewShortener(mappings, cacheClient, metadataFetcher, llmClient, cfg, logger, metricsRecorder)
	tracker := clicktracker.NewTracker(cacheClient.Client(), logger, metricsRecorder)

	worker := clicktracker.NewWorker(cacheClient.Client(), mappings, clicks, geoClient, logger, clicktracker.NewConsumerID(), metricsRecorder)
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("click tracker worker stopped", "error", err)
		}
	}()

	go runExpirySweep(workerCtx, mappings, annotations, logger)

	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient, llmClient)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)
	urlHandler := handler.NewURLHandler(shortener, mappings, cfg.AppBaseURL, logger)
	analyticsHandler := handler.NewAnalyticsHandler(mappings, clicks, logger)
	redirectHandler := handler.NewRedirectHandler(resolver, tracker, logger)

	r := setupRouter(h, healthHandler, metricsHandler, urlHandler, analyticsHandler, redirectHandler, cacheClient, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	healthHandler.SetDrainChecker(srv)

	srv.OnShutdown("click-tracker-worker", func(shutdownCtx context.Context) error {
		err := worker.Shutdown(shutdownCtx)
		cancelWorker()
		return err
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.AppBaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runExpirySweep periodically marks overdue mappings inactive and
// prunes expired LLM annotations, since neither is self-cleaning.
func runExpirySweep(ctx context.Context, mappings *repository.MappingStore, annotations *repository.AnnotationStore, logger *slog.Logger) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := mappings.MarkExpired(ctx, time.Now().UTC()); err != nil {
				logger.Error("expiry sweep: mark expired mappings failed", "error", err)
			} else if n > 0 {
				logger.Info("expiry sweep: marked mappings inactive", "count", n)
			}

			if n, err := annotations.DeleteExpired(ctx); err != nil {
				logger.Error("expiry sweep: delete expired annotations failed", "error", err)
			} else if n > 0 {
				logger.Info("expiry sweep: deleted expired annotations", "count", n)
			}
		}
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	metricsHandler *handler.MetricsHandler,
	urlHandler *handler.URLHandler,
	analyticsHandler *handler.AnalyticsHandler,
	redirectHandler *handler.RedirectHandler,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		AllowedOrigins:     cfg.GetCORSAllowedOrigins(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.GetCORSAllowedOrigins(),
	}))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)
	r.Get("/", h.Hello)

	r.Route("/api/urls", func(r chi.Router) {
		r.Post("/", urlHandler.Create)
		r.Post("/bulk", urlHandler.CreateBulk)
		r.Post("/bulk/csv", urlHandler.CreateBulkCSV)
		r.Get("/", urlHandler.List)
		r.Get("/{key}/stats", analyticsHandler.Stats)
		r.Get("/{key}/analytics", analyticsHandler.Analytics)
		r.Get("/{key}/qrcode", urlHandler.QRCode)
		r.Get("/{key}/preview", urlHandler.Preview)
		r.Get("/{key}/protected", urlHandler.Protected)
	})

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Cache:   cacheClient,
		Enabled: cfg.RateLimitEnabled,
		Limit:   cfg.RateLimitMaxRequests,
		Window:  cfg.RateLimitWindow(),
	}

	r.With(middleware.RateLimitIP(rateLimitCfg)).Get("/{key}", redirectHandler.Redirect)
	r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/{key}/unlock", redirectHandler.Unlock)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
