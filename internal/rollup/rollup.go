// Package rollup condenses a day of measurements and alerts into
// health_history records.
package rollup

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/classify"
	"safewatch/internal/model"
	"safewatch/internal/storage"
)

type stat struct {
	min, max, sum float64
	n             int
}

func (s *stat) add(v float64) {
	if s.n == 0 {
		s.min, s.max = v, v
	} else {
		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
	}
	s.sum += v
	s.n++
}

func (s stat) avg() float64 {
	if s.n == 0 {
		return 0
	}
	return model.Round(s.sum/float64(s.n), 2)
}

type counts struct {
	sos, fall, risk int
}

// DayBounds returns [midnight, next midnight) of day in day's location.
func DayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return from, from.AddDate(0, 0, 1)
}

// Build computes one record per worker that has measurements on day. Alert
// counts of workers without measurements are ignored.
func Build(day time.Time, measurements []model.Measurement, alerts []model.Alert) []model.HealthHistoryRecord {
	date := day.Format(model.DateLayout)

	order := make([]int64, 0)
	temp := map[int64]*stat{}
	pulse := map[int64]*stat{}
	spo2 := map[int64]*stat{}
	for _, m := range measurements {
		if _, ok := temp[m.WorkerID]; !ok {
			order = append(order, m.WorkerID)
			temp[m.WorkerID] = &stat{}
			pulse[m.WorkerID] = &stat{}
			spo2[m.WorkerID] = &stat{}
		}
		temp[m.WorkerID].add(m.BodyTemp)
		pulse[m.WorkerID].add(m.PulseRate)
		spo2[m.WorkerID].add(m.SpO2)
	}

	byWorker := map[int64]*counts{}
	for _, a := range alerts {
		c, ok := byWorker[a.WorkerID]
		if !ok {
			c = &counts{}
			byWorker[a.WorkerID] = c
		}
		switch a.Kind {
		case model.AlertSOS:
			c.sos++
		case model.AlertFall:
			c.fall++
		case model.AlertHealth:
			c.risk++
		}
	}

	out := make([]model.HealthHistoryRecord, 0, len(order))
	for _, id := range order {
		t, p, o := temp[id], pulse[id], spo2[id]
		rec := model.HealthHistoryRecord{
			WorkerID: id,
			Date:     date,
			MinTemp:  t.min,
			MaxTemp:  t.max,
			AvgTemp:  t.avg(),
			MinPulse: p.min,
			MaxPulse: p.max,
			AvgPulse: p.avg(),
			MinSpO2:  o.min,
			MaxSpO2:  o.max,
			AvgSpO2:  o.avg(),
		}
		if c, ok := byWorker[id]; ok {
			rec.SOSCount, rec.FallCount, rec.RiskCount = c.sos, c.fall, c.risk
		}
		rec.HealthStatus = classify.DailyHealthStatus(rec.RiskCount)
		out = append(out, rec)
	}
	return out
}

// Rollup rebuilds the health_history records of day and upserts them.
func Rollup(ctx context.Context, store storage.Store, day time.Time) ([]model.HealthHistoryRecord, error) {
	from, to := DayBounds(day)
	measurements, err := store.MeasurementsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load measurements: %w", err)
	}
	alerts, err := store.AlertsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	records := Build(from, measurements, alerts)
	if err := store.UpsertHealthHistory(ctx, records); err != nil {
		return nil, fmt.Errorf("upsert health history: %w", err)
	}
	return records, nil
}

// Runner rolls up the current day on a fixed interval.
type Runner struct {
	store    storage.Store
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewRunner(store storage.Store, interval time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Runner{store: store, interval: interval, logger: logger, now: time.Now}
}

// RunOnce rolls up today and logs the outcome.
func (r *Runner) RunOnce(ctx context.Context) {
	day := r.now()
	records, err := Rollup(ctx, r.store, day)
	if err != nil {
		r.logger.Error("health history rollup failed", zap.String("date", day.Format(model.DateLayout)), zap.Error(err))
		return
	}
	r.logger.Info("health history rollup",
		zap.String("date", day.Format(model.DateLayout)),
		zap.Int("workers", len(records)),
	)
}

// Start runs once immediately and then every interval until ctx ends.
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunOnce(ctx)
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.RunOnce(ctx)
			}
		}
	}()
	return done
}
