package dedup

// Cache is a bounded best-effort duplicate suppressor: a membership set plus
// an insertion-order queue kept in sync. Once size exceeds capacity, the
// oldest evictBatch entries are dropped in one go to amortize removal cost.
// An evicted id can be re-admitted if it shows up again; that is acceptable,
// the cache suppresses duplicates over its horizon, not over all history.
type Cache struct {
	capacity   int
	evictBatch int

	m     map[string]struct{}
	order []string // insertion order
	head  int      // pop index
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 10000
	}
	evictBatch := capacity / 20
	if evictBatch < 1 {
		evictBatch = 1
	}
	return &Cache{
		capacity:   capacity,
		evictBatch: evictBatch,
		m:          make(map[string]struct{}, capacity),
		order:      make([]string, 0, capacity),
	}
}

func (c *Cache) Seen(id string) bool {
	_, ok := c.m[id]
	return ok
}

// Record inserts id, evicting the oldest batch when over capacity.
// Recording an already-seen id is a no-op.
func (c *Cache) Record(id string) {
	if _, ok := c.m[id]; ok {
		return
	}
	c.m[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.m) > c.capacity {
		c.evict(c.evictBatch)
	}
}

func (c *Cache) Len() int { return len(c.m) }

// Cap returns the configured capacity bound.
func (c *Cache) Cap() int { return c.capacity }

func (c *Cache) evict(n int) {
	for i := 0; i < n && c.head < len(c.order); i++ {
		delete(c.m, c.order[c.head])
		c.head++
	}

	// Compact so the backing slice doesn't grow forever.
	if c.head > 4096 && c.head*2 > len(c.order) {
		newOrder := make([]string, 0, len(c.order)-c.head)
		newOrder = append(newOrder, c.order[c.head:]...)
		c.order = newOrder
		c.head = 0
	}
}
