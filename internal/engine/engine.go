// Package engine turns queued readings into stored measurements and alerts.
package engine

import (
	"context"
	"crypto/sha256"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/classify"
	"safewatch/internal/config"
	"safewatch/internal/metrics"
	"safewatch/internal/model"
	"safewatch/internal/storage"
)

// Broadcaster pushes a fresh snapshot to every connected client.
type Broadcaster interface {
	Broadcast(ctx context.Context)
}

type Engine struct {
	logger *zap.Logger
	store  storage.Store
	stats  *metrics.Store
	notify Broadcaster
	cfg    atomic.Value
	gate   *broadcastGate
	recent *recentReadings
	now    func() time.Time
}

// Outcome describes what one reading produced.
type Outcome struct {
	Duplicate     bool
	MeasurementID int64
	Alerts        []model.Alert
	Broadcast     bool
}

func NewEngine(cfg *config.Config, logger *zap.Logger, store storage.Store, stats *metrics.Store, notify Broadcaster) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger: logger,
		store:  store,
		stats:  stats,
		notify: notify,
		gate:   newBroadcastGate(),
		recent: newRecentReadings(),
		now:    time.Now,
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes readings until ctx ends. Readings are processed one at a
// time so per-worker order is kept.
func (e *Engine) Start(ctx context.Context, in <-chan model.Reading) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case r := <-in:
				if _, err := e.ProcessReading(ctx, r); err != nil && ctx.Err() == nil {
					e.logger.Error("process reading",
						zap.Int64("worker_id", r.WorkerID),
						zap.String("source", r.Source),
						zap.Error(err),
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// ProcessReading stores what a reading implies. An SOS or impact event becomes
// a critical alert and no measurement; anything else is stored as a
// measurement, plus a health alert when the prediction flags risk. Critical
// alerts trigger a broadcast, at most once per worker per cooldown.
func (e *Engine) ProcessReading(ctx context.Context, r model.Reading) (Outcome, error) {
	cfg := e.config()
	now := e.now().UTC()
	var out Outcome

	// a reading without a device time is fingerprinted before arrival time is stamped
	if cfg.Ingest.DedupeWindow > 0 && e.recent.duplicate(hashReading(r), now, cfg.Ingest.DedupeWindow) {
		out.Duplicate = true
		e.record(r, func(s *metrics.Counters) { s.Duplicates++ })
		return out, nil
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}

	if r.IsSOS() || r.IsImpact() {
		kind, msg := model.AlertFall, "Impact detected"
		if r.IsSOS() {
			kind, msg = model.AlertSOS, "SOS button pressed"
		}
		a, err := e.saveAlert(ctx, r, kind, msg)
		if err != nil {
			e.record(r, func(s *metrics.Counters) { s.Failed++ })
			return out, err
		}
		out.Alerts = append(out.Alerts, a)
		e.logger.Warn("urgent alert",
			zap.Int64("worker_id", r.WorkerID),
			zap.String("type", string(kind)),
			zap.Int64("alert_id", a.ID),
		)
		e.record(r, func(s *metrics.Counters) { s.Alerts++ })
		out.Broadcast = e.maybeBroadcast(ctx, r.WorkerID, now, cfg.Ingest.BroadcastCooldown)
		return out, nil
	}

	id, err := e.store.InsertMeasurement(ctx, r.Measurement())
	if err != nil {
		e.record(r, func(s *metrics.Counters) { s.Failed++ })
		return out, err
	}
	out.MeasurementID = id
	e.record(r, func(s *metrics.Counters) { s.Measurements++ })

	if classify.IsRiskPrediction(r.Prediction) {
		a, err := e.saveAlert(ctx, r, model.AlertHealth, "Health risk predicted")
		if err != nil {
			return out, err
		}
		out.Alerts = append(out.Alerts, a)
		e.record(r, func(s *metrics.Counters) { s.Alerts++ })
		e.logger.Info("health alert", zap.Int64("worker_id", r.WorkerID), zap.Int64("alert_id", a.ID))
	}
	return out, nil
}

func (e *Engine) saveAlert(ctx context.Context, r model.Reading, kind model.AlertKind, msg string) (model.Alert, error) {
	a := model.Alert{
		WorkerID:  r.WorkerID,
		Kind:      kind,
		Message:   msg,
		Severity:  kind.DefaultSeverity(),
		CreatedAt: r.Timestamp,
	}
	id, err := e.store.InsertAlert(ctx, a)
	if err != nil {
		return model.Alert{}, err
	}
	a.ID = id
	return a, nil
}

func (e *Engine) maybeBroadcast(ctx context.Context, workerID int64, now time.Time, cooldown time.Duration) bool {
	if e.notify == nil || !e.gate.admit(workerID, now, cooldown) {
		return false
	}
	e.notify.Broadcast(ctx)
	return true
}

func (e *Engine) record(r model.Reading, fn func(*metrics.Counters)) {
	if e.stats != nil {
		e.stats.Record(r.Source, r.WorkerID, e.now(), fn)
	}
}

func hashReading(r model.Reading) readingKey {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	parts := []string{
		strconv.FormatInt(r.WorkerID, 10),
		f(r.HeartRate), f(r.BodyTemp), f(r.SpO2), f(r.HRV), f(r.Probability),
		r.SOSStatus,
		r.MPUStatus,
		r.Prediction,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	return sha256.Sum256([]byte(strings.Join(parts, "|")))
}
