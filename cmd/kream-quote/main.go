package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/api"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/cache"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/config"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/database"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/journal"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
	"github.com/meaningyoung99-cmyk/my-kream-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := browser.New(cfg.BrowserOptions(), log)
	if err != nil {
		log.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	var quoter kream.Quoter = kream.NewFetcher(b, cfg.FetcherOptions(), log)

	var redisClient *redis.Client
	if cfg.Cache.Backend == config.CacheRedis || cfg.Journal.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
	}

	var journalReader api.Journal
	if cfg.Journal.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		j := journal.New(db, cfg.Journal.Stream, log)
		journalReader = j
		quoter = journal.NewRecorder(quoter, j, log)

		relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, log, database.RelayConfig{
			PollInterval: cfg.Journal.RelayInterval,
			BatchSize:    cfg.Journal.RelayBatch,
		})
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "error", err)
			}
		}()
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		store = cache.NewRedis(redisClient, cfg.Cache.KeyPrefix)
	default:
		store = cache.NewMemory(cfg.Cache.MaxEntries)
	}

	memo := cache.NewMemoizer(quoter, store, cache.MemoizerConfig{
		TTL:           cfg.Cache.TTL,
		CacheFailures: cfg.Cache.CacheFailures,
	}, log)

	handlers := api.NewHandlers(memo, cfg.Settings(), memo.Backend(), journalReader, log)

	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * 2,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"cache", memo.Backend(),
		"journal", cfg.Journal.Enabled)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
