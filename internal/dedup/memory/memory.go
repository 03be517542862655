// Package memory is an in-process SeenMarker, used in tests and when no
// persistent backend is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Marker keeps SeenJob rows in a map guarded by a mutex; the lock makes
// check-and-insert atomic.
type Marker struct {
	mu   sync.Mutex
	seen map[string]scraper.SeenJob
}

// New returns an empty Marker.
func New() *Marker {
	return &Marker{seen: make(map[string]scraper.SeenJob)}
}

// MarkSeen records job if its fingerprint is absent.
func (m *Marker) MarkSeen(_ context.Context, job scraper.SeenJob) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[job.Fingerprint]; ok {
		return false, nil
	}
	m.seen[job.Fingerprint] = job
	return true, nil
}

// Prune drops rows first seen before olderThan.
func (m *Marker) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for fp, job := range m.seen {
		if job.FirstSeen.Before(olderThan) {
			delete(m.seen, fp)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored fingerprints.
func (m *Marker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
