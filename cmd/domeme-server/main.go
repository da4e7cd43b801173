package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/domeme-scraper/internal/api"
	"github.com/maltedev/domeme-scraper/internal/auth"
	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/config"
	"github.com/maltedev/domeme-scraper/internal/database"
	"github.com/maltedev/domeme-scraper/internal/events"
	"github.com/maltedev/domeme-scraper/internal/jobs"
	"github.com/maltedev/domeme-scraper/internal/logger"
	"github.com/maltedev/domeme-scraper/internal/metrics"
	"github.com/maltedev/domeme-scraper/internal/queue"
	"github.com/maltedev/domeme-scraper/internal/ratelimit"
	"github.com/maltedev/domeme-scraper/internal/scraper"
	"github.com/maltedev/domeme-scraper/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profile, err := cfg.Site.Profile()
	if err != nil {
		logger.Error("failed to resolve marketplace", "error", err)
		os.Exit(1)
	}

	var creds auth.Credentials
	if profile.RequiresLogin {
		// No prompter: the server cannot ask anyone.
		src := auth.NewSource(cfg.Auth.UsernameEnv, cfg.Auth.PasswordEnv, nil)
		if creds, err = src.Resolve(auth.Credentials{}); err != nil {
			logger.Error("credentials unavailable", "error", err)
			os.Exit(1)
		}
	}

	m := metrics.New()

	var (
		recorder jobs.Recorder
		health   api.OutboxHealth
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.Connection())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		recorder = events.New(db, cfg.Redis.Stream, logger)

		if cfg.Redis.Enabled {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}

			relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
				PollInterval: cfg.Redis.PollInterval,
				BatchSize:    cfg.Redis.BatchSize,
			})
			health = relay
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		}
	}

	b, err := browser.New(cfg.Browser.Options(), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	driver, err := b.NewSession()
	if err != nil {
		logger.Error("failed to open browser page", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	session := scraper.NewSession(driver, profile, scraper.Config{
		Waits: cfg.Waits,
		Search: search.Options{
			Snapshot: cfg.Search.Snapshot,
			Pacer:    ratelimit.NewAdaptiveRateLimiter(cfg.Search.RateLimitMin, cfg.Search.RateLimitMax),
		},
		Auth:        auth.Options{Ambiguous: auth.AmbiguousPolicy(cfg.Auth.Ambiguous)},
		Credentials: creds,
	}, m, logger)

	q := queue.NewInMemoryQueue(cfg.Queue.MaxSize)
	jobManager, err := jobs.NewManager(q, session, recorder, jobs.Config{
		CacheSize: cfg.Queue.CacheSize,
		Defaults: jobs.SearchParams{
			MaxResults: cfg.Search.MaxResults,
			MaxPages:   cfg.Search.MaxPages,
			MinPrice:   &cfg.Search.MinPrice,
			MaxPrice:   cfg.Search.MaxPrice,
			Mode:       cfg.Search.Mode,
		},
	}, m, logger)
	if err != nil {
		logger.Error("failed to create job manager", "error", err)
		os.Exit(1)
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		jobManager.StartWorker(ctx)
	}()

	handlers := api.NewHandlers(jobManager, health, logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Timeout:        cfg.Server.WriteTimeout,
		Gatherer:       m.Registry,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		q.Close()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"marketplace", profile.Source,
		"database", cfg.Database.Enabled,
		"redis", cfg.Redis.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-workerDone
	logger.Info("server stopped")
}
