package ledger

import (
	"context"
	"sync"
)

// MemoryRowCache is a process-local RowCache.
type MemoryRowCache struct {
	mu   sync.Mutex
	rows map[string]int
}

func NewMemoryRowCache() *MemoryRowCache {
	return &MemoryRowCache{rows: map[string]int{}}
}

func (c *MemoryRowCache) CachedAppendRow(_ context.Context, entity, column string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[entity+"!"+column]
	return row, ok, nil
}

func (c *MemoryRowCache) StoreAppendRow(_ context.Context, entity, column string, row int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[entity+"!"+column] = row
	return nil
}
