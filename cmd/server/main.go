package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tindahan/backend/internal/cache"
	"tindahan/backend/internal/config"
	"tindahan/backend/internal/events"
	"tindahan/backend/internal/httpapi"
	"tindahan/backend/internal/imagestore"
	"tindahan/backend/internal/lock"
	"tindahan/backend/internal/logger"
	"tindahan/backend/internal/service"
	"tindahan/backend/internal/store"
	"tindahan/backend/internal/store/memory"
	pgstore "tindahan/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Development()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalw("invalid security configuration", "error", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalw("invalid BUSINESS_TIMEZONE", "timezone", cfg.BusinessTimezone, "error", err)
	}

	// Long-lived clients get the background context; startup checks are bounded.
	rootCtx := context.Background()
	ctx, cancel := context.WithTimeout(rootCtx, 20*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalw("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "error", err)
		}
		if cfg.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalw("migration failed", "error", err)
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Infow("repository ready", "backend", "postgres")
	} else {
		seeded, err := memory.NewSeeded(ctx)
		if err != nil {
			log.Fatalw("memory store seeding failed", "error", err)
		}
		repo = seeded
		log.Infow("repository ready", "backend", "memory")
	}

	opts := service.Options{
		Location:    loc,
		SummaryTTL:  cfg.SummaryCacheTTL(),
		SeedLockTTL: cfg.SeedLockTTL(),
	}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			log.Warnw("redis unavailable, using in-process cache and locks", "addr", cfg.RedisAddr, "error", err)
		} else {
			opts.Cache = cache.NewRedisSummaryCache(client)
			opts.Locker = lock.NewRedisLocker(client)
			closers = append(closers, client.Close)
			log.Infow("redis ready", "addr", cfg.RedisAddr)
		}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemorySummaryCache()
	}

	uploadDir := ""
	if cfg.GCSBucket != "" {
		gcs, err := imagestore.NewGCSStore(rootCtx, cfg.GCSBucket, cfg.GCSCredentialsJSON)
		if err != nil {
			log.Fatalw("image bucket unavailable", "bucket", cfg.GCSBucket, "error", err)
		}
		opts.Images = gcs
		closers = append(closers, gcs.Close)
		log.Infow("image store ready", "backend", "gcs", "bucket", cfg.GCSBucket)
	} else {
		local := imagestore.NewLocalStore(cfg.ImageDir)
		opts.Images = local
		uploadDir = local.Dir()
		log.Infow("image store ready", "backend", "local", "dir", uploadDir)
	}

	if cfg.PubSubProjectID != "" && cfg.ReceiptTopic != "" {
		publisher, err := events.NewPubSubPublisher(rootCtx, cfg.PubSubProjectID, cfg.ReceiptTopic, cfg.PubSubCredentialsJSON)
		if err != nil {
			log.Warnw("receipt publisher unavailable, receipts will not be pushed", "topic", cfg.ReceiptTopic, "error", err)
		} else {
			opts.Publisher = publisher
			closers = append(closers, publisher.Close)
			log.Infow("receipt publisher ready", "project", cfg.PubSubProjectID, "topic", cfg.ReceiptTopic)
		}
	}

	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, httpapi.Config{
		AllowedOrigin:  cfg.AllowedOrigin,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		UploadDir:      uploadDir,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Duration(cfg.RequestTimeoutSeconds+5) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("listening", "addr", cfg.Address(), "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server error", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warnw("close error", "error", err)
		}
	}

	log.Infow("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && !cfg.Development() {
		return fmt.Errorf("ALLOWED_ORIGIN=* is only allowed with APP_ENV=development")
	}
	if cfg.DatabaseURL == "" && !cfg.Development() {
		return fmt.Errorf("DATABASE_URL is required outside APP_ENV=development")
	}
	return nil
}
