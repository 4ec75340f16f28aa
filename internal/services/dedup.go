package services

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DedupCache remembers recently processed message fingerprints so that
// gateway retries are dropped before touching the store. It is per process
// and best effort; the session lock is what guarantees exclusivity across
// instances.
type DedupCache struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	window     time.Duration
	maxEntries int
	now        func() time.Time
}

// NewDedupCache creates a cache remembering fingerprints for window
func NewDedupCache(window time.Duration, maxEntries int) *DedupCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &DedupCache{
		entries:    make(map[string]time.Time),
		window:     window,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// CheckAndMark returns true when the same contact, tenant and text were seen
// less than window ago. A duplicate leaves the map untouched.
func (d *DedupCache) CheckAndMark(contactID, tenantID, text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evictLocked(now)

	fp := fingerprint(contactID, tenantID, text)
	if seen, ok := d.entries[fp]; ok && now.Sub(seen) < d.window {
		return true
	}
	if len(d.entries) >= d.maxEntries {
		d.evictOldestLocked()
	}
	d.entries[fp] = now
	return false
}

// Sweep drops expired fingerprints and returns how many remain.
func (d *DedupCache) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictLocked(d.now())
	return len(d.entries)
}

// Len returns the number of fingerprints held.
func (d *DedupCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func fingerprint(contactID, tenantID, text string) string {
	h := sha256.New()
	h.Write([]byte(contactID))
	h.Write([]byte{0})
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (d *DedupCache) evictLocked(now time.Time) {
	for fp, seen := range d.entries {
		if now.Sub(seen) >= d.window {
			delete(d.entries, fp)
		}
	}
}

func (d *DedupCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for fp, seen := range d.entries {
		if oldestKey == "" || seen.Before(oldest) {
			oldestKey, oldest = fp, seen
		}
	}
	delete(d.entries, oldestKey)
}
