// Package main is the entrypoint for the QuickAI API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/quickai/quickai/internal/cache"
	"github.com/quickai/quickai/internal/config"
	"github.com/quickai/quickai/internal/delegate"
	"github.com/quickai/quickai/internal/handler"
	"github.com/quickai/quickai/internal/identity"
	"github.com/quickai/quickai/internal/metrics"
	"github.com/quickai/quickai/internal/middleware"
	"github.com/quickai/quickai/internal/repository"
	"github.com/quickai/quickai/internal/server"
	"github.com/quickai/quickai/internal/service"
	"github.com/quickai/quickai/internal/usagesync"
)

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
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Identity provider
	verifier := identity.NewVerifier(cfg.IdentityJWTSecret)
	identityClient := identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityAPISecret)

	// Vendor delegates share one tuned HTTP client.
	vendorHTTP := delegate.NewHTTPClient()
	textClient := delegate.NewTextClient(cfg.CompletionAPIURL, cfg.CompletionAPIKey, cfg.CompletionModel, vendorHTTP)
	imageClient := delegate.NewImageClient(cfg.ImageAPIURL, cfg.ImageAPIKey, vendorHTTP)
	mediaClient := delegate.NewMediaClient(cfg.MediaBaseURL, cfg.MediaCloudName, cfg.MediaAPIKey, cfg.MediaAPISecret, vendorHTTP)
	resumeExtractor := delegate.NewResumeExtractor(cfg.MaxResumeSize)

	metricsRecorder := metrics.NewInMemory()

	// Usage write-behind: the publisher enqueues counter changes, the
	// worker syncs them to the identity provider.
	usagePublisher := usagesync.NewPublisher(cacheClient.Client(), logger, metricsRecorder)

	hostname, _ := os.Hostname()
	usageWorker := usagesync.NewWorker(cacheClient.Client(), identityClient, cacheClient, logger, hostname, metricsRecorder)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		if err := usageWorker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("usage sync worker stopped", "error", err)
		}
	}()

	generationService := service.NewGenerationService(service.Config{
		Store:     repo,
		Usage:     cacheClient,
		UsagePub:  usagePublisher,
		Text:      textClient,
		Image:     imageClient,
		Media:     mediaClient,
		Resume:    resumeExtractor,
		FreeLimit: cfg.FreeUsageLimit,
		Logger:    logger,
		Metrics:   metricsRecorder,
	})

	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)
	generationHandler := handler.NewGenerationHandler(generationService, logger, cfg.MaxUploadSize, cfg.MaxResumeSize)
	communityHandler := handler.NewCommunityHandler(generationService, logger)

	r := setupRouter(routerDeps{
		cfg:        cfg,
		logger:     logger,
		verifier:   verifier,
		identity:   identityClient,
		cache:      cacheClient,
		health:     healthHandler,
		metrics:    metricsHandler,
		generation: generationHandler,
		community:  communityHandler,
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	srv.OnShutdown("usage sync worker", func(ctx context.Context) error {
		cancelWorker()
		return usageWorker.Shutdown(ctx)
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
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

type routerDeps struct {
	cfg        *config.Config
	logger     *slog.Logger
	verifier   *identity.Verifier
	identity   *identity.Client
	cache      *cache.Cache
	health     *handler.HealthHandler
	metrics    *handler.MetricsHandler
	generation *handler.GenerationHandler
	community  *handler.CommunityHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: deps.cfg.IsDevelopment()}))
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = deps.cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Probes and metrics skip auth.
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Get("/metrics", deps.metrics.Metrics)

	authCfg := middleware.AuthConfig{
		Logger:   deps.logger,
		Verifier: deps.verifier,
		Resolver: deps.identity,
		Cache:    deps.cache,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))

		r.Route("/ai", func(r chi.Router) {
			// JSON endpoints get the small body cap; uploads enforce
			// their own multipart limits.
			jsonLimit := middleware.MaxBodySize(deps.cfg.MaxRequestBodySize)
			r.With(jsonLimit).Post("/generate-article", deps.generation.GenerateArticle)
			r.With(jsonLimit).Post("/generate-blog-title", deps.generation.GenerateBlogTitle)
			r.With(jsonLimit).Post("/generate-image", deps.generation.GenerateImage)
			r.Post("/remove-image-background", deps.generation.RemoveBackground)
			r.Post("/remove-image-object", deps.generation.RemoveObject)
			r.Post("/resume-review", deps.generation.ReviewResume)
		})

		r.Route("/community", func(r chi.Router) {
			r.Get("/creations", deps.community.ListPublished)
			r.Post("/creations/{id}/like", deps.community.ToggleLike)
		})

		r.Get("/user/creations", deps.community.ListMine)
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

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
