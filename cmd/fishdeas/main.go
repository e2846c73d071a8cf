package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fishdeas/fishdeas/pkg/api"
	"github.com/fishdeas/fishdeas/pkg/auth"
	"github.com/fishdeas/fishdeas/pkg/config"
	"github.com/fishdeas/fishdeas/pkg/httputil"
	"github.com/fishdeas/fishdeas/pkg/identity"
	"github.com/fishdeas/fishdeas/pkg/inference"
	"github.com/fishdeas/fishdeas/pkg/middleware"
	"github.com/fishdeas/fishdeas/pkg/notify"
	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
	"github.com/fishdeas/fishdeas/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("storage", cfg.Storage.Type).Info("starting fishdeas")

	// Handler groups log through logrus at the same level.
	handlerLogger := logrus.New()
	handlerLogger.SetFormatter(&logrus.JSONFormatter{})
	handlerLogger.SetLevel(logrusLevel(cfg.Observability.LogLevel))

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Storage backends
	var (
		db          *sql.DB
		redisClient *redis.Client
		users       storage.CredentialStore
		codes       storage.ResetCodeStore
		articles    storage.ArticleStore
		detections  storage.DetectionStore
		objects     storage.ObjectStore
	)

	switch cfg.Storage.Type {
	case "postgres":
		db, err = postgres.Connect(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			log.Fatalf("Failed to ensure database schema: %v", err)
		}

		users = postgres.NewUserStore(db, metrics)
		codes = postgres.NewResetCodeStore(db, metrics)
		detections = postgres.NewDetectionStore(db, metrics)

		articleStore := storage.ArticleStore(postgres.NewArticleStore(db, metrics))
		if cfg.Storage.CacheEnabled && cfg.Storage.RedisURL != "" {
			redisClient, err = postgres.NewRedisClient(cfg.Storage)
			if err != nil {
				// The cache is an optimization; run uncached rather
				// than refuse to start.
				logger.WithError(err).Warn("redis unavailable, article cache disabled")
			} else {
				articleStore = postgres.NewCachedArticleStore(articleStore, redisClient, cfg.Storage.CacheTTL, metrics)
				logger.Info("article cache enabled")
			}
		}
		articles = articleStore

		s3, err := postgres.NewS3Client(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		objects = s3

	case "memory":
		logger.Warn("using in-memory storage, data will not survive a restart")
		store := storage.NewMemoryStore()
		users = store
		codes = store
		articles = store
		detections = store
		objects = storage.NewMemoryObjectStore("")
	}

	// Identity provider mirroring credentials and owning verification
	var provider identity.Provider
	if cfg.Identity.BaseURL != "" {
		provider = identity.NewHTTPProvider(cfg.Identity.BaseURL, cfg.Identity.APIKey)
	} else {
		logger.Warn("no identity provider configured, using in-process accounts")
		provider = identity.NewMemoryProvider()
	}

	// Outbound email
	var notifier notify.Notifier
	smtpHost := ""
	if cfg.SMTP.Host != "" {
		smtpHost = fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	}
	smtp, err := notify.NewSMTPNotifier(
		smtpHost,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
		fmt.Sprintf("%s <%s>", cfg.SMTP.FromName, cfg.SMTP.FromAddress),
		cfg.SMTP.SkipVerify,
	)
	if err != nil {
		log.Fatalf("Failed to initialize SMTP: %v", err)
	}
	if smtp.IsEnabled() {
		notifier = smtp
	} else {
		logger.Warn("SMTP not configured, emails will be logged instead of sent")
		notifier = notify.NewLogNotifier(logger)
	}

	// Session and reset-code machinery
	tokens := auth.NewTokenManager([]byte(cfg.Auth.BearerSecret), []byte(cfg.Auth.SessionSecret))
	issuer := auth.NewSessionIssuer(users, tokens)
	resets := auth.NewResetCodeManager(users, codes, provider, notifier, auth.NewPasswordHasher(), logger)
	gate := middleware.NewVerificationGate(tokens, users, provider, logger, metrics)

	// Model runner
	runner := inference.NewRunner(inference.Config{
		PythonBin:  cfg.Inference.PythonBin,
		ScriptPath: cfg.Inference.ScriptPath,
		WorkDir:    cfg.Inference.WorkDir,
		Timeout:    cfg.Inference.Timeout,
	}, logger, metrics)
	if err := runner.Available(); err != nil {
		logger.WithError(err).Warn("inference runner unavailable, detection uploads will fail")
	}

	server := api.NewServer(api.Dependencies{
		Users:      users,
		Codes:      codes,
		Articles:   articles,
		Detections: detections,
		Objects:    objects,
		Provider:   provider,
		Notifier:   notifier,
		Tokens:     tokens,
		Issuer:     issuer,
		Resets:     resets,
		Gate:       gate,
		Runner:     runner,
		Logger:     handlerLogger,
		Metrics:    metrics,
	})

	// Middleware chain, outermost first
	chain := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	}
	if metrics != nil {
		chain = append(chain, observability.HTTPMetricsMiddleware(metrics))
	}
	handler := httputil.Chain(chain...)(server)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	health := observability.NewHealthChecker(db, redisClient)
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	// Sweep expired reset codes hourly
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		// A panicking store must not take down the scheduler goroutine.
		defer observability.RecoverPanic(logger, "reset code purge")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		purged, err := codes.PurgeExpired(ctx, time.Now())
		if err != nil {
			logger.WithError(err).Error("failed to purge expired reset codes")
			return
		}
		if purged > 0 {
			logger.WithField("purged", purged).Info("purged expired reset codes")
		}
	}); err != nil {
		log.Fatalf("Failed to schedule reset code purge: %v", err)
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if db != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return db.Close()
		})
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("fishdeas API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// logrusLevel maps the shared log level onto logrus
func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
