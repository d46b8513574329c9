package executor

import (
	"sync"
	"time"
)

// Dedup rejects a trade request id seen again within ttl, so a double
// submit from the operator does not fire two orders.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given window.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether id was seen within the window, recording it
// when it was not. An empty id is never a duplicate.
func (d *Dedup) IsDuplicate(id string) bool {
	if id == "" || d.ttl <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[id]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[id] = now
	if len(d.seen) > 256 {
		d.cleanupLocked(now)
	}
	return false
}

// Forget drops id so a request that failed before reaching the exchange
// can be retried under the same id.
func (d *Dedup) Forget(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *Dedup) cleanupLocked(now time.Time) {
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
