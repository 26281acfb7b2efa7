package keeper

import (
	"sync"
	"time"
)

// Dedup tracks in-flight requests by key so that a duplicate submitted
// while the first is still running (or shortly after it succeeded) can be
// rejected. Entries expire after ttl. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // key -> time it was claimed
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup whose entries live for ttl.
func NewDedup(ttl time.Duration, now func() time.Time) *Dedup {
	if now == nil {
		now = time.Now
	}
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  now,
	}
}

// Begin claims key. It returns false if key is already claimed and has not
// expired.
func (d *Dedup) Begin(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = now
	return true
}

// Release drops key so that it can be claimed again immediately.
func (d *Dedup) Release(key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}
