package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"portfolioOptimizer/internal/config"
	"portfolioOptimizer/internal/finance"
	"portfolioOptimizer/internal/logging"
	"portfolioOptimizer/internal/openai"
	"portfolioOptimizer/internal/portfolio"
	"portfolioOptimizer/internal/server"
	"portfolioOptimizer/internal/storage"
	"portfolioOptimizer/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", false)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure parent directory for the DB exists
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := storage.OpenSQLite("file:" + cfg.DBPath + "?_fk=1&_busy_timeout=5000")
	if err != nil {
		log.Fatal().Err(err).Msg("db: open")
	}
	defer db.Close()
	log.Info().Str("path", cfg.DBPath).Msg("db: opened sqlite")
	if err := storage.InitSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("db: schema")
	}
	log.Info().Msg("db: schema ensured (prices, runs tables)")
	store := storage.NewStore(db, cfg.PriceCacheTTL)

	caches := []finance.PriceCache{}
	if cfg.RedisURL != "" {
		rdb, err := storage.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis: unavailable, continuing with sqlite cache only")
		} else {
			defer rdb.Close()
			caches = append(caches, storage.NewRedisCache(rdb, cfg.PriceCacheTTL))
			log.Info().Msg("redis: connected")
		}
	}
	caches = append(caches, store)

	yahoo := finance.NewYahooProvider(finance.WithLogger(log))
	provider := finance.NewCachedProvider(yahoo, log, caches...)
	svc := portfolio.NewService(provider, store, log)

	var explain telegram.Explainer
	if cfg.OpenAIKey != "" {
		explain = openai.NewCommentator(cfg.OpenAIKey)
	}

	tg, err := telegram.NewBot(cfg.TelegramToken, cfg.WebhookPublicURL, svc, explain, cfg.Defaults, log)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram: init")
	}
	log.Info().Str("webhook", cfg.WebhookPublicURL).Msg("telegram: bot initialized")

	router := server.NewRouter(server.Deps{
		Webhook:   tg.WebhookHandler, // registers /telegram/webhook
		Optimizer: svc,
		Defaults:  cfg.Defaults,
		Log:       log,
	})
	if err := server.ListenAndServe(ctx, ":"+cfg.Port, router, log); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
