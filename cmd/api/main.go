// Package main is the entrypoint for the tollgate API server.
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

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/cache"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/handler"
	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/middleware"
	"github.com/tollgate/tollgate/internal/repository"
	"github.com/tollgate/tollgate/internal/server"
	"github.com/tollgate/tollgate/internal/service"
	"github.com/tollgate/tollgate/internal/upstream"
	"github.com/tollgate/tollgate/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
	})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	identity := auth.NewIdentityClient(
		cfg.IdentityURL,
		cfg.IdentityAPIKey,
		cfg.IdentityTimeout,
		logger,
		auth.WithIdentityCache(cacheClient, cfg.IdentityCacheTTL),
	)
	completer := upstream.New(
		cfg.UpstreamBaseURL,
		cfg.UpstreamAPIKey,
		cfg.UpstreamTimeout,
		upstream.WithAttribution(cfg.UpstreamReferer, cfg.UpstreamTitle),
	)

	billingCfg := service.BillingConfig{
		ProAllowance:  cfg.ProAllowance,
		FreeAllowance: cfg.FreeAllowance,
		DedupTTL:      cfg.BillingDedupTTL,
	}
	ledger := service.NewQuotaLedger(repo, logger, recorder)
	usage := service.NewUsageRecorder(repo)
	metering := service.NewMeteringService(ledger, usage, completer, service.MeteringConfig{
		DefaultModel:     cfg.DefaultModel,
		DefaultMaxTokens: cfg.DefaultMaxTokens,
		FallbackUsage:    cfg.FallbackUsageTokens,
		UpstreamTimeout:  cfg.UpstreamTimeout,
	}, logger, recorder)
	reconciler := service.NewBillingReconciler(repo, cacheClient, billingCfg, logger, recorder)
	profiles := service.NewProfileService(ledger, usage, billingCfg)

	handlers := routes{
		root:     handler.New(),
		health:   handler.NewHealthHandler(repo, cacheClient),
		metrics:  handler.NewMetricsHandler(recorder),
		metering: handler.NewMeteringHandler(metering, logger),
		billing:  handler.NewBillingHandler(webhook.NewVerifier(cfg.BillingWebhookSecret, cfg.BillingReplayWindow), reconciler, logger),
		profile:  handler.NewProfileHandler(profiles, logger),
		admin:    handler.NewAdminHandler(profiles, logger),
	}

	r := setupRouter(handlers, identity, repo, cacheClient, cfg, logger)

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"upstream", redactURL(cfg.UpstreamBaseURL),
		"default_model", cfg.DefaultModel,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
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
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routes struct {
	root     *handler.Handler
	health   *handler.HealthHandler
	metrics  *handler.MetricsHandler
	metering *handler.MeteringHandler
	billing  *handler.BillingHandler
	profile  *handler.ProfileHandler
	admin    *handler.AdminHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h routes,
	identity middleware.IdentityResolver,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/", h.root.Index)
	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Get("/metrics", h.metrics.Metrics)

	// Signature verification happens in the handler over the raw body.
	r.Post("/webhooks/billing", h.billing.Receive)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Identity(identity, logger))
		r.Post("/chat/completions", h.metering.Complete)
		r.Get("/profile", h.profile.Get)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.OperatorAuth(middleware.OperatorAuthConfig{
			Logger: logger,
			Keys:   repo,
			Cache:  cacheClient,
		}))
		r.With(middleware.RequireRead()).Get("/stats", h.admin.Stats)
		r.With(middleware.RequireRead()).Get("/accounts/{id}", h.admin.GetAccount)
		r.With(middleware.RequireRead()).Get("/accounts/{id}/usage", h.admin.ListUsage)
	})

	r.NotFound(h.root.NotFound)
	r.MethodNotAllowed(h.root.MethodNotAllowed)

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
