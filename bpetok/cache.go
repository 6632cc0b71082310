package bpetok

import (
	"strings"
	"sync"
)

// mergeCache maps a piece to its merged token ids. Entries are never
// evicted: the mapping is a pure function of an immutable rank table.
type mergeCache struct {
	mu      sync.RWMutex
	entries map[string][]int
}

func newMergeCache() *mergeCache {
	return &mergeCache{entries: make(map[string][]int)}
}

func (c *mergeCache) Get(piece string) ([]int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, ok := c.entries[piece]
	return ids, ok
}

// Put stores ids unless piece is already present. Two goroutines racing on
// the same piece computed the same ids, so the first write wins.
func (c *mergeCache) Put(piece string, ids []int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[piece]; ok {
		return
	}
	// piece usually aliases the caller's whole text
	c.entries[strings.Clone(piece)] = ids
}

func (c *mergeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
