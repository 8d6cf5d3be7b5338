// Package metrics keeps in-process ingest counters for the status endpoint.
package metrics

import (
	"sync"
	"time"
)

type Counters struct {
	Measurements int64 `json:"measurements"`
	Alerts       int64 `json:"alerts"`
	Duplicates   int64 `json:"duplicates"`
	Failed       int64 `json:"failed"`
}

type Snapshot struct {
	Sources     map[string]Counters `json:"sources"`
	WorkersSeen int                 `json:"workers_seen"`
	LastReading *time.Time          `json:"last_reading,omitempty"`
}

// Store counts processed readings per source and remembers when each worker
// last reported, keeping at most limit workers.
type Store struct {
	mu       sync.RWMutex
	bySource map[string]*Counters
	lastSeen map[int64]time.Time
	latest   time.Time
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		bySource: make(map[string]*Counters),
		lastSeen: make(map[int64]time.Time),
		limit:    limit,
	}
}

func (s *Store) Record(source string, workerID int64, at time.Time, fn func(*Counters)) {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.bySource[source]
	if !ok {
		c = &Counters{}
		s.bySource[source] = c
	}
	fn(c)
	if workerID > 0 {
		s.lastSeen[workerID] = at
		if len(s.lastSeen) > s.limit {
			s.evictOldest()
		}
	}
	if at.After(s.latest) {
		s.latest = at
	}
}

func (s *Store) LastSeen(workerID int64) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.lastSeen[workerID]
	return ts, ok
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Sources: make(map[string]Counters, len(s.bySource)), WorkersSeen: len(s.lastSeen)}
	for src, c := range s.bySource {
		out.Sources[src] = *c
	}
	if !s.latest.IsZero() {
		t := s.latest
		out.LastReading = &t
	}
	return out
}

func (s *Store) evictOldest() {
	var (
		oldestWorker int64
		oldest       time.Time
		found        bool
	)
	for id, ts := range s.lastSeen {
		if !found || ts.Before(oldest) {
			oldestWorker, oldest, found = id, ts, true
		}
	}
	if found {
		delete(s.lastSeen, oldestWorker)
	}
}
