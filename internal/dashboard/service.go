// Package dashboard turns store rows into the views pushed to dashboard clients.
//
// Aggregations fail open: on a store error they return the empty view in
// Result.Data and the cause in Result.Err, after logging it.
package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/cache"
	"safewatch/internal/model"
	"safewatch/internal/storage"
)

const (
	DefaultHistoryDays = 7
	historyRowLimit    = 100
	alertStatsRecent   = 5
	recentAlertsLimit  = 3
)

type Result[T any] struct {
	Data T
	Err  error
}

func (r Result[T]) OK() bool { return r.Err == nil }

type Service struct {
	store   storage.Store
	history cache.Cache[HistoryResult]
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service. A nil history cache disables caching.
func New(store storage.Store, history cache.Cache[HistoryResult], log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{store: store, history: history, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is the full set of views sent to a client on connect and on every tick.
type Snapshot struct {
	Workers      WorkerStats
	Alerts       AlertStats
	Measurements []MeasurementView
	AllAlerts    []UnackAlertView
	RecentAlerts []RecentAlertView
}

func (s *Service) Snapshot(ctx context.Context) Snapshot {
	return Snapshot{
		Workers:      s.WorkerStats(ctx).Data,
		Alerts:       s.AlertStats(ctx).Data,
		Measurements: s.LatestMeasurements(ctx).Data,
		AllAlerts:    s.UnacknowledgedAlerts(ctx).Data,
		RecentAlerts: s.RecentAlerts(ctx).Data,
	}
}

// workerLookup memoizes GetWorker for the duration of one aggregation.
type workerLookup struct {
	store storage.Store
	log   *zap.Logger
	seen  map[int64]*model.Worker
}

func (s *Service) newLookup() *workerLookup {
	return &workerLookup{store: s.store, log: s.log, seen: make(map[int64]*model.Worker)}
}

// find returns nil when the worker is missing or the lookup failed.
func (l *workerLookup) find(ctx context.Context, id int64) *model.Worker {
	if w, ok := l.seen[id]; ok {
		return w
	}
	w, err := l.store.GetWorker(ctx, id)
	if err != nil {
		l.log.Debug("worker lookup failed", zap.Int64("worker_id", id), zap.Error(err))
		l.seen[id] = nil
		return nil
	}
	l.seen[id] = &w
	return &w
}
