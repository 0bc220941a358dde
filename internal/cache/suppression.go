package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/flagkit/flagkit-go/internal/telemetry"
)

// SuppressionCache implements the $feature_flag_called suppression
// described in spec 4.J: a bounded, sliding-TTL set keyed by
// (flagKey, distinctId, decisionFingerprint). ShouldEmit reports
// whether the caller should emit the event; it is the act of insertion
// succeeding (no living entry) that gates emission, not a separate
// lookup, so callers call it exactly once per observation.
type SuppressionCache struct {
	mu sync.Mutex

	sizeLimit     int
	ttl           time.Duration
	compactionPct float64
	now           func() time.Time

	touched map[string]time.Time
	order   []string // first-insertion order, oldest first; refreshes do not reorder
}

// NewSuppressionCache constructs a SuppressionCache. Zero values fall
// back to the spec defaults (50000 entries, 10 minute TTL, 20%
// compaction).
func NewSuppressionCache(sizeLimit int, ttl time.Duration, compactionPct float64, now func() time.Time) *SuppressionCache {
	if sizeLimit <= 0 {
		sizeLimit = 50_000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if compactionPct <= 0 {
		compactionPct = 0.2
	}
	if now == nil {
		now = time.Now
	}
	return &SuppressionCache{
		sizeLimit:     sizeLimit,
		ttl:           ttl,
		compactionPct: compactionPct,
		now:           now,
		touched:       make(map[string]time.Time),
	}
}

func suppressionKey(flagKey, distinctID string, fingerprint uint64) string {
	return fmt.Sprintf("%s\x00%s\x00%d", flagKey, distinctID, fingerprint)
}

// ShouldEmit returns true the first time (flagKey, distinctId,
// fingerprint) is observed, and on every subsequent observation once
// the entry's TTL has elapsed or it has been compacted out.
func (c *SuppressionCache) ShouldEmit(flagKey, distinctID string, fingerprint uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := suppressionKey(flagKey, distinctID, fingerprint)
	now := c.now()

	if last, ok := c.touched[key]; ok && now.Sub(last) < c.ttl {
		c.touched[key] = now // sliding window: each observation extends the entry
		return false
	}

	if _, existed := c.touched[key]; !existed {
		c.order = append(c.order, key)
	}
	c.touched[key] = now

	if len(c.touched) > c.sizeLimit {
		c.compact()
	}
	telemetry.SuppressionCacheSize.Set(float64(len(c.touched)))
	return true
}

// compact drops the oldest compactionPct fraction of live entries.
func (c *SuppressionCache) compact() {
	target := int(float64(len(c.touched)) * c.compactionPct)
	if target < 1 {
		target = 1
	}

	dropped := 0
	consumed := 0
	for consumed < len(c.order) && dropped < target {
		key := c.order[consumed]
		consumed++
		if _, ok := c.touched[key]; ok {
			delete(c.touched, key)
			dropped++
		}
	}
	c.order = c.order[consumed:]
}

// Len reports the number of live suppression entries.
func (c *SuppressionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.touched)
}
