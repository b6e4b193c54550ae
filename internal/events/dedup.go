package events

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// pruneAt is the entry count above which expired fingerprints are purged.
const pruneAt = 1024

// Deduplicator suppresses error events identical in component, category and
// message to one seen within the TTL.
type Deduplicator struct {
	seen *cache.Cache
}

// NewDeduplicator creates a deduplicator. Expired entries are purged
// inline rather than by a janitor goroutine.
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{seen: cache.New(ttl, 0)}
}

// Allow reports whether e should be processed. A nil deduplicator allows all.
func (d *Deduplicator) Allow(e ErrorEvent) bool {
	if d == nil || e.Err == nil {
		return true
	}
	if d.seen.ItemCount() > pruneAt {
		d.seen.DeleteExpired()
	}
	// Add fails while an unexpired entry exists
	return d.seen.Add(fingerprint(e), struct{}{}, cache.DefaultExpiration) == nil
}

func fingerprint(e ErrorEvent) string {
	h := sha256.New()
	h.Write([]byte(e.Err.GetComponent()))
	h.Write([]byte{0})
	h.Write([]byte(e.Err.GetCategory()))
	h.Write([]byte{0})
	h.Write([]byte(e.Err.Error()))
	return hex.EncodeToString(h.Sum(nil)[:12])
}
