// Package push fans dashboard views out to connected clients, one refresh
// timer per connection.
package push

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/dashboard"
)

const (
	EventWorkers           = "workers"
	EventAlerts            = "alerts"
	EventMeasurements      = "measurements"
	EventAllAlerts         = "allAlerts"
	EventRecentAlerts      = "recentAlerts"
	EventAcknowledgeResult = "acknowledgeResult"

	// EventAcknowledgeAlert is the only event clients send.
	EventAcknowledgeAlert = "acknowledgeAlert"

	DefaultInterval = 10 * time.Second
)

var (
	ErrAlreadyConnected = errors.New("connection already registered")
	ErrNotConnected     = errors.New("connection not registered")
	ErrClosed           = errors.New("hub closed")
)

// Emitter delivers one named event to a single client.
type Emitter interface {
	Emit(ctx context.Context, event string, data any) error
}

// Source computes the views the hub pushes.
type Source interface {
	Snapshot(ctx context.Context) dashboard.Snapshot
	UnacknowledgedAlerts(ctx context.Context) dashboard.Result[[]dashboard.UnackAlertView]
	AcknowledgeAlert(ctx context.Context, id int64) dashboard.AckResult
}

type Hub struct {
	src      Source
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

type subscription struct {
	id      string
	emitter Emitter
	cancel  context.CancelFunc
	done    chan struct{}

	// emits from the ticker and from acknowledgements never interleave
	emitMu sync.Mutex
}

func NewHub(src Source, interval time.Duration, log *zap.Logger) *Hub {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{src: src, interval: interval, log: log, subs: make(map[string]*subscription)}
}

// Connect registers a client, sends it a snapshot and arms its refresh timer.
// The returned release is idempotent and stops the timer; it must be called
// when the client goes away. A second Connect with a live id fails with
// ErrAlreadyConnected and arms nothing.
func (h *Hub) Connect(ctx context.Context, id string, em Emitter) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{id: id, emitter: em, cancel: cancel, done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	if _, ok := h.subs[id]; ok {
		h.mu.Unlock()
		cancel()
		return nil, ErrAlreadyConnected
	}
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			h.drop(sub)
			<-sub.done
			h.log.Info("client disconnected", zap.String("conn_id", id))
		})
	}

	if err := h.emitSnapshot(subCtx, sub, h.src.Snapshot(subCtx)); err != nil {
		close(sub.done)
		release()
		return nil, err
	}
	go h.loop(subCtx, sub)
	h.log.Info("client connected", zap.String("conn_id", id))
	return release, nil
}

func (h *Hub) loop(ctx context.Context, sub *subscription) {
	defer close(sub.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.emitSnapshot(ctx, sub, h.src.Snapshot(ctx)); err != nil {
				if ctx.Err() == nil {
					h.log.Warn("push failed, dropping client", zap.String("conn_id", sub.id), zap.Error(err))
				}
				h.drop(sub)
				return
			}
		}
	}
}

// drop cancels sub and unregisters it if it is still the live entry for its id.
func (h *Hub) drop(sub *subscription) {
	sub.cancel()
	h.mu.Lock()
	if cur, ok := h.subs[sub.id]; ok && cur == sub {
		delete(h.subs, sub.id)
	}
	h.mu.Unlock()
}

func (h *Hub) lookup(id string) (*subscription, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	return sub, ok
}

// Acknowledge writes the acknowledgement through, answers the requesting
// client with the result and then with a fresh unacknowledged-alerts view.
// Other clients catch up on their next tick.
func (h *Hub) Acknowledge(ctx context.Context, id string, alertID int64) (dashboard.AckResult, error) {
	sub, ok := h.lookup(id)
	if !ok {
		return dashboard.AckResult{}, ErrNotConnected
	}
	res := h.src.AcknowledgeAlert(ctx, alertID)
	if err := sub.emit(ctx, EventAcknowledgeResult, res); err != nil {
		h.drop(sub)
		return res, err
	}
	if err := sub.emit(ctx, EventAllAlerts, h.src.UnacknowledgedAlerts(ctx).Data); err != nil {
		h.drop(sub)
		return res, err
	}
	return res, nil
}

// Reply sends a single event to one client.
func (h *Hub) Reply(ctx context.Context, id, event string, data any) error {
	sub, ok := h.lookup(id)
	if !ok {
		return ErrNotConnected
	}
	return sub.emit(ctx, event, data)
}

// Broadcast computes one snapshot and sends it to every client.
func (h *Hub) Broadcast(ctx context.Context) {
	subs := h.snapshotSubs()
	if len(subs) == 0 {
		return
	}
	snap := h.src.Snapshot(ctx)
	for _, sub := range subs {
		if err := h.emitSnapshot(ctx, sub, snap); err != nil {
			h.log.Warn("broadcast failed, dropping client", zap.String("conn_id", sub.id), zap.Error(err))
			h.drop(sub)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every subscription and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	for _, sub := range subs {
		<-sub.done
	}
}

func (h *Hub) snapshotSubs() []*subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		out = append(out, sub)
	}
	return out
}

func (h *Hub) emitSnapshot(ctx context.Context, sub *subscription, snap dashboard.Snapshot) error {
	sub.emitMu.Lock()
	defer sub.emitMu.Unlock()
	for _, ev := range snapshotEvents(snap) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sub.emitter.Emit(ctx, ev.name, ev.data); err != nil {
			return err
		}
	}
	return nil
}

func (s *subscription) emit(ctx context.Context, event string, data any) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	return s.emitter.Emit(ctx, event, data)
}

type event struct {
	name string
	data any
}

func snapshotEvents(s dashboard.Snapshot) []event {
	return []event{
		{EventWorkers, s.Workers},
		{EventAlerts, s.Alerts},
		{EventMeasurements, s.Measurements},
		{EventAllAlerts, s.AllAlerts},
		{EventRecentAlerts, s.RecentAlerts},
	}
}
