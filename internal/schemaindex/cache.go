package schemaindex

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds the current Index per form. Entries are replaced whole, so a
// reader observes either the previous or the rebuilt index, never a mix.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Index
	group   singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Index)}
}

// Get returns the cached index for a form.
func (c *Cache) Get(formUID string) (*Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	x, ok := c.entries[formUID]
	return x, ok
}

// Swap publishes a fully built index, replacing any previous one.
func (c *Cache) Swap(x *Index) {
	c.mu.Lock()
	c.entries[x.FormUID] = x
	c.mu.Unlock()
}

// Invalidate drops the cached index for a form.
func (c *Cache) Invalidate(formUID string) {
	c.mu.Lock()
	delete(c.entries, formUID)
	c.mu.Unlock()
}

// Load returns the cached index when its version matches (an empty version
// matches anything). Otherwise it calls build once, even when many callers
// miss at the same time, and publishes the result.
func (c *Cache) Load(ctx context.Context, formUID, version string, build func(context.Context) (*Index, error)) (*Index, error) {
	if x, ok := c.Get(formUID); ok && (version == "" || x.Version == version) {
		return x, nil
	}
	v, err, _ := c.group.Do(formUID+"@"+version, func() (any, error) {
		if x, ok := c.Get(formUID); ok && (version == "" || x.Version == version) {
			return x, nil
		}
		x, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.Swap(x)
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}
