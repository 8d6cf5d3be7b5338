// Package ingest receives wearable readings from Kafka, MQTT, TCP gateways
// and HTTP, and feeds them to a single processing channel.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/model"
	"safewatch/internal/normalize"
)

// SendNonBlocking drops the reading when the channel is full.
func SendNonBlocking(ctx context.Context, out chan<- model.Reading, r model.Reading, logger *zap.Logger) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("reading channel full, dropping reading",
				zap.Int64("worker_id", r.WorkerID),
				zap.String("source", r.Source),
				zap.Time("timestamp", r.Timestamp),
			)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func location(cfg *config.Config) *time.Location {
	if cfg.Ingest.Timezone == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(cfg.Ingest.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// decodeAndSend parses one payload, which may carry a single reading or an
// array of them, and queues each reading. It reports how many were queued and
// how many failed to parse or queue.
func decodeAndSend(ctx context.Context, payload []byte, source string, cfg *config.Config, out chan<- model.Reading, logger *zap.Logger) (int, int) {
	list, err := ParseJSONPayload(payload)
	if err != nil {
		p := NewParser()
		f, perr := p.ParseLine(string(payload))
		if perr != nil || f == nil {
			if logger != nil {
				logger.Warn("unparseable reading", zap.String("source", source), zap.Error(err))
			}
			return 0, 1
		}
		list = []*normalize.Fields{f}
	}
	loc := location(cfg)
	accepted, failed := 0, 0
	for _, f := range list {
		r, err := normalize.Normalize(*f, loc)
		if err != nil {
			if logger != nil {
				logger.Warn("normalize reading", zap.String("source", source), zap.Error(err))
			}
			failed++
			continue
		}
		r.Source = source
		if SendNonBlocking(ctx, out, r, logger) {
			accepted++
		} else {
			failed++
		}
	}
	return accepted, failed
}
