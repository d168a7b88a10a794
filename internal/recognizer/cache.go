package recognizer

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/livecaptions/livecaptions/internal/logger"
)

// ModelCache shares loaded models by path and frees them after an idle
// period. Switching languages back and forth does not reload the model.
type ModelCache struct {
	cache *cache.Cache
	ttl   time.Duration
	load  func(path, language string) (*Model, error)

	// loadMu serialises loads so a model is never loaded twice
	loadMu sync.Mutex
}

// NewModelCache returns a cache expiring models idle for ttl.
func NewModelCache(ttl time.Duration) *ModelCache {
	c := &ModelCache{
		cache: cache.New(ttl, ttl/2),
		ttl:   ttl,
		load:  LoadModel,
	}
	c.cache.OnEvicted(func(path string, v any) {
		if m, ok := v.(*Model); ok {
			GetLogger().Debug("model evicted from cache", logger.String("path", path))
			m.Close()
		}
	})
	return c
}

// Get returns a retained model for path, loading it on a miss. The caller
// owns the returned reference and must Close it.
func (c *ModelCache) Get(path, language string) (*Model, error) {
	if m, ok := c.lookup(path); ok {
		return m, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if m, ok := c.lookup(path); ok {
		return m, nil
	}

	m, err := c.load(path, language)
	if err != nil {
		return nil, err
	}
	// one reference for the cache, one for the caller
	if err := m.Retain(); err != nil {
		return nil, err
	}
	c.cache.SetDefault(path, m)
	return m, nil
}

func (c *ModelCache) lookup(path string) (*Model, bool) {
	v, ok := c.cache.Get(path)
	if !ok {
		return nil, false
	}
	m := v.(*Model)
	if err := m.Retain(); err != nil {
		return nil, false
	}
	// sliding expiry
	c.cache.SetDefault(path, m)
	return m, true
}

// Len returns the number of cached models.
func (c *ModelCache) Len() int {
	return c.cache.ItemCount()
}

// Close drops the cache's reference to every model.
func (c *ModelCache) Close() {
	for path := range c.cache.Items() {
		c.cache.Delete(path)
	}
}
