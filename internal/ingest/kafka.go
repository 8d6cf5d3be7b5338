package ingest

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/model"
)

func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *zap.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		logger.Info("kafka ingest disabled")
		return
	}
	logger.Info("kafka ingest enabled",
		zap.Strings("brokers", current.Brokers),
		zap.String("topic", current.Topic),
		zap.String("group_id", current.GroupID),
	)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("kafka read error", zap.Error(err))
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			decodeAndSend(ctx, m.Value, "kafka", cfg.Get(), out, logger)
		}
	}()
}
