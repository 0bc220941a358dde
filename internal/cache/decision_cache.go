package cache

import (
	"container/list"
	"sync"

	"github.com/flagkit/flagkit-go/internal/evaluate"
	"github.com/flagkit/flagkit-go/internal/telemetry"
)

// DecisionCache is a fingerprint-keyed, size-bounded, LRU-evicted cache
// of per-request flag decisions. It is process-wide and never
// persisted, matching spec 4.I.
type DecisionCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	order    *list.List // front = most recently used
}

type decisionEntry struct {
	key       uint64
	decisions map[string]evaluate.Decision
}

// NewDecisionCache constructs a DecisionCache bounded to capacity
// entries. A non-positive capacity disables bounding: entries are
// never evicted.
func NewDecisionCache(capacity int) *DecisionCache {
	return &DecisionCache{
		capacity: capacity,
		entries:  make(map[uint64]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached decisions for a fingerprint, if present, and
// marks the entry most-recently-used.
func (c *DecisionCache) Get(fingerprint uint64) (map[string]evaluate.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*decisionEntry).decisions, true
}

// Put stores decisions under fingerprint, evicting the least-recently-
// used entry if the cache is at capacity.
func (c *DecisionCache) Put(fingerprint uint64, decisions map[string]evaluate.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		el.Value.(*decisionEntry).decisions = decisions
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&decisionEntry{key: fingerprint, decisions: decisions})
	c.entries[fingerprint] = el

	if c.capacity > 0 {
		for c.order.Len() > c.capacity {
			c.evictOldest()
		}
	}
	telemetry.DecisionCacheSize.Set(float64(c.order.Len()))
}

func (c *DecisionCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.entries, oldest.Value.(*decisionEntry).key)
}

// Len reports the number of cached request fingerprints.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
