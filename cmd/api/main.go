// Package main is the entrypoint for the tierhost API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/tierhost/tierhost/internal/cache"
	"github.com/tierhost/tierhost/internal/config"
	"github.com/tierhost/tierhost/internal/events"
	"github.com/tierhost/tierhost/internal/handler"
	"github.com/tierhost/tierhost/internal/imaging"
	"github.com/tierhost/tierhost/internal/metrics"
	"github.com/tierhost/tierhost/internal/middleware"
	"github.com/tierhost/tierhost/internal/repository"
	"github.com/tierhost/tierhost/internal/server"
	"github.com/tierhost/tierhost/internal/service"
	"github.com/tierhost/tierhost/internal/storage"
	"github.com/tierhost/tierhost/internal/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			os.Exit(1)
		}
	}

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.Pool{
		Size:    cfg.RedisPoolSize,
		MinIdle: cfg.RedisMinIdleConns,
	})
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// Initialize blob storage
	blobs, media, err := initStorage(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize storage",
			slog.String("backend", cfg.StorageBackend),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Initialize services
	recorder := metrics.NewPrometheus()
	publisher := events.NewPublisher(cacheClient.Client(), logger, recorder)
	derived := service.NewDerivedImages(blobs, imaging.NewProcessor(cfg.MaxImagePixels), logger, recorder)
	fileService := service.NewFileService(repo, cacheClient, blobs, derived, logger, recorder)
	linkService := service.NewTempLinkService(repo, repo, cacheClient, publisher, service.LinkPolicy{
		MinSeconds:     cfg.LinkMinSeconds,
		MaxSeconds:     cfg.LinkMaxSeconds,
		DefaultSeconds: cfg.LinkDefaultSeconds,
		TokenLength:    token.DefaultLength,
	}, logger, recorder)
	userService := service.NewUserService(repo)

	// Initialize handlers
	h := server.Handlers{
		Base:      handler.New(),
		Health:    handler.NewHealthHandler(repo, cacheClient),
		Metrics:   handler.NewMetricsHandler(recorder.Handler()),
		Files:     handler.NewFileHandler(fileService, cfg.PublicBaseURL, cfg.MaxUploadSize, logger),
		TempLinks: handler.NewTempLinkHandler(linkService, cfg.PublicBaseURL, logger),
		Users:     handler.NewUserHandler(userService, logger),
		Media:     media,
	}

	router := server.NewRouter(h, server.RouterConfig{
		Logger:   logger,
		Recorder: recorder,
		Auth: middleware.AuthConfig{
			Logger:             logger,
			Keys:               repo,
			Cache:              cacheClient,
			MinFailureDuration: middleware.DefaultMinAuthFailure,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:      logger,
			Limiter:     cacheClient,
			UserEnabled: cfg.RateLimitUserEnabled,
			IPEnabled:   cfg.RateLimitRedeemEnabled,
			IPRPS:       cfg.RateLimitRedeemRPS,
			IPBurst:     cfg.RateLimitRedeemBurst,
		},
		Security:    middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()},
		CORSOrigins: cfg.GetCORSAllowedOrigins(),
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, closed last.
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
		"storage", cfg.StorageBackend,
		"public_base_url", cfg.PublicBaseURL,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initStorage builds the configured blob store. The media handler is only
// returned for the local backend; S3 objects are served by S3.
func initStorage(ctx context.Context, cfg *config.Config) (storage.BlobStore, *handler.MediaHandler, error) {
	if cfg.StorageBackend == config.StorageS3 {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Endpoint:      cfg.S3.Endpoint,
			PresignExpiry: cfg.S3.PresignExpiry,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3Store, nil, nil
	}

	local, err := storage.NewLocalStore(cfg.MediaRoot, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return local, handler.NewMediaHandler(local.Fs()), nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "tierhost")
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
