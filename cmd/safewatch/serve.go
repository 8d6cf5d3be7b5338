package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"safewatch/internal/api"
	"safewatch/internal/cache"
	"safewatch/internal/config"
	"safewatch/internal/dashboard"
	"safewatch/internal/engine"
	"safewatch/internal/ingest"
	"safewatch/internal/logging"
	"safewatch/internal/metrics"
	"safewatch/internal/model"
	"safewatch/internal/push"
	"safewatch/internal/rollup"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API, push channel and device ingest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg.Get()
	logger := a.logger
	logger.Info("starting safewatch",
		zap.String("version", version),
		zap.String("config", a.cfg.Path()),
		zap.String("storage", cfg.Storage.Driver),
	)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	history, closeCache := historyCache(cfg.Cache, logger)
	defer closeCache()

	svc := dashboard.New(store, history, logger.Named("dashboard"))
	hub := push.NewHub(svc, cfg.Push.Interval, logger.Named("push"))
	defer hub.Close()

	stats := metrics.NewStore(cfg.Ingest.MetricsLimit)
	eng := engine.NewEngine(cfg, logger.Named("engine"), store, stats, hub)
	readings := make(chan model.Reading, cfg.Ingest.ChannelBuffer)
	processed := eng.Start(ctx, readings)

	ingestLog := logger.Named("ingest")
	ingest.StartKafka(ctx, a.cfg, readings, ingestLog)
	if err := ingest.StartMQTT(ctx, a.cfg, readings, ingestLog); err != nil {
		logger.Error("mqtt ingest unavailable", zap.Error(err))
	}
	if _, err := ingest.StartTCPStream(ctx, a.cfg, readings, ingestLog); err != nil {
		logger.Error("tcp stream ingest unavailable", zap.Error(err))
	}

	if cfg.Rollup.Enabled {
		rollup.NewRunner(store, cfg.Rollup.Interval, logger.Named("rollup")).Start(ctx)
	}

	stop := make(chan struct{})
	defer close(stop)
	go a.cfg.Watch(3*time.Second, func(next *config.Config) {
		a.level.SetLevel(logging.ParseLevel(next.LogLevel))
		eng.UpdateConfig(next)
		logger.Info("config reloaded", zap.String("log_level", next.LogLevel))
	}, func(err error) {
		logger.Warn("config reload failed", zap.Error(err))
	}, stop)

	srv := api.New(a.cfg, svc, hub, stats, readings, logger.Named("api"), version)
	api.Start(ctx, srv)

	<-ctx.Done()
	logger.Info("shutting down")
	<-processed
	return nil
}

// historyCache picks the configured backend. A Redis backend that cannot be
// reached at startup falls back to the in-process cache.
func historyCache(cfg config.CacheConfig, logger *zap.Logger) (cache.Cache[dashboard.HistoryResult], func()) {
	if cfg.Backend != "redis" {
		return cache.NewTTL[dashboard.HistoryResult](cfg.TTL, cfg.Capacity), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process history cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return cache.NewTTL[dashboard.HistoryResult](cfg.TTL, cfg.Capacity), func() {}
	}
	logger.Info("history cache on redis", zap.String("addr", cfg.Redis.Addr))
	return cache.NewRedis[dashboard.HistoryResult](client, cfg.Redis.Prefix, cfg.TTL, logger.Named("cache")),
		func() { _ = client.Close() }
}
