package engine

import (
	"crypto/sha256"
	"sync"
	"time"
)

const maxRememberedReadings = 10000

type readingKey [sha256.Size]byte

// recentReadings remembers reading fingerprints so a gateway retry or a
// reading relayed by two sources is stored once.
type recentReadings struct {
	mu   sync.Mutex
	seen map[readingKey]time.Time
}

func newRecentReadings() *recentReadings {
	return &recentReadings{seen: make(map[readingKey]time.Time)}
}

// duplicate reports whether k arrived within window before now. A fresh key
// is remembered from now on.
func (r *recentReadings) duplicate(k readingKey, now time.Time, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at, ok := r.seen[k]; ok && now.Sub(at) <= window {
		return true
	}
	if len(r.seen) >= maxRememberedReadings {
		for key, at := range r.seen {
			if now.Sub(at) > window {
				delete(r.seen, key)
			}
		}
	}
	r.seen[k] = now
	return false
}

// broadcastGate admits each worker at most once per interval.
type broadcastGate struct {
	mu   sync.Mutex
	last map[int64]time.Time
}

func newBroadcastGate() *broadcastGate {
	return &broadcastGate{last: make(map[int64]time.Time)}
}

func (g *broadcastGate) admit(workerID int64, now time.Time, every time.Duration) bool {
	if every <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if at, ok := g.last[workerID]; ok && now.Sub(at) < every {
		return false
	}
	g.last[workerID] = now
	return true
}
