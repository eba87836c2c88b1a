package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/convertx/internal/artifact"
	"github.com/JonMunkholm/convertx/internal/config"
	"github.com/JonMunkholm/convertx/internal/core"
	"github.com/JonMunkholm/convertx/internal/logging"
	"github.com/JonMunkholm/convertx/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"api_prefix", cfg.Server.APIPrefix,
		"max_upload_mb", cfg.Upload.MaxSizeMB,
		"encryption_enabled", cfg.Artifact.EncryptionKey != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Conversion index (audit trail + download counters)
	index := artifact.NewPgIndex(pool)
	if err := index.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure index schema", "error", err)
		os.Exit(1)
	}

	// Artifact store with at-rest encryption
	store, err := artifact.New(artifact.Options{
		Dir:                 cfg.Artifact.Dir,
		Key:                 cfg.Artifact.EncryptionKeyBytes(),
		RetainAfterDownload: cfg.Artifact.RetainAfterDownload,
		Retention:           cfg.Artifact.Retention,
	})
	if err != nil {
		slog.Error("failed to create artifact store", "error", err)
		os.Exit(1)
	}

	// Conversion pipeline
	converter, err := core.NewConverter(core.ConverterOptions{
		Store:       store,
		Audit:       index,
		UploadDir:   cfg.Upload.Dir,
		MaxBytes:    cfg.Upload.MaxSizeBytes(),
		Extensions:  cfg.Upload.AllowedExtensions,
		RootElement: cfg.Document.RootElement,
		Encoding:    cfg.Document.Encoding,
	})
	if err != nil {
		slog.Error("failed to create converter", "error", err)
		os.Exit(1)
	}

	validator := core.NewValidator(cfg.Upload.MaxSizeBytes(), cfg.Upload.AllowedExtensions)

	// Create server with config
	server := web.NewServer(cfg, converter, validator, store, index, slog.Default())

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Start retention sweeper
	go store.StartSweeper(jobCtx, cfg.Artifact.SweepInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
