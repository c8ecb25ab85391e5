package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wbrown/janus-live/datalog/query"
)

// DefaultCacheSize is the number of compiled plans kept by default
const DefaultCacheSize = 1000

type cachedPlan struct {
	plan     *Plan
	compiled bool
}

// PlanCache caches compiled plans to avoid re-lowering unchanged rules.
// Plans are keyed by context and rule text, so a rule that only moved in
// its document is still a hit.
type PlanCache struct {
	cache *lru.Cache[string, cachedPlan]

	// Statistics
	hits   atomic.Int64
	misses atomic.Int64
}

// NewPlanCache creates a cache holding up to maxSize plans
func NewPlanCache(maxSize int) (*PlanCache, error) {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedPlan](maxSize)
	if err != nil {
		return nil, fmt.Errorf("plan cache: %w", err)
	}
	return &PlanCache{cache: cache}, nil
}

// Compile returns the cached plan for item in context, compiling it on a
// miss. A nil cache compiles every time.
func (c *PlanCache) Compile(context string, item query.Item) (*Plan, bool) {
	if c == nil {
		return Compile(context, item)
	}

	key := computeKey(context, item)
	if cached, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return cached.plan, cached.compiled
	}
	c.misses.Add(1)

	plan, compiled := Compile(context, item)
	c.cache.Add(key, cachedPlan{plan: plan, compiled: compiled})
	return plan, compiled
}

// Clear removes all cached plans
func (c *PlanCache) Clear() {
	if c == nil {
		return
	}
	c.cache.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns cache statistics
func (c *PlanCache) Stats() (hits, misses int64, size int) {
	if c == nil {
		return 0, 0, 0
	}
	return c.hits.Load(), c.misses.Load(), c.cache.Len()
}

// computeKey identifies an item by its context and text, not its position
func computeKey(context string, item query.Item) string {
	h := sha256.New()
	fmt.Fprintf(h, "CONTEXT:%s;", context)
	fmt.Fprintf(h, "%T:%s", item, item)
	return hex.EncodeToString(h.Sum(nil))
}
