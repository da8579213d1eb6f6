// Package cache keeps the raw cell values of editing sessions so they survive a restart.
package cache

import (
	"context"
	"sync"

	"github.com/oscillometry-report-server/internal/domain"
)

// MemoryCache is a process-local RawValueCache.
type MemoryCache struct {
	mu     sync.RWMutex
	scopes map[string]map[domain.CellKey]string
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{scopes: make(map[string]map[domain.CellKey]string)}
}

// Load returns a copy of the values cached under scope.
func (c *MemoryCache) Load(ctx context.Context, scope string) (map[domain.CellKey]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyValues(c.scopes[scope]), nil
}

// Put records one raw value.
func (c *MemoryCache) Put(ctx context.Context, scope string, key domain.CellKey, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	values, ok := c.scopes[scope]
	if !ok {
		values = make(map[domain.CellKey]string)
		c.scopes[scope] = values
	}
	values[key] = value
	return nil
}

// Clear drops everything cached under scope.
func (c *MemoryCache) Clear(ctx context.Context, scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scopes, scope)
	return nil
}

func copyValues(in map[domain.CellKey]string) map[domain.CellKey]string {
	out := make(map[domain.CellKey]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
