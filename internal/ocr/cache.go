package ocr

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory builds a primary engine. Loading language models is slow, so it
// runs at most once per successful Cache.
type Factory func() (LineRecognizer, error)

// Cache holds the process-wide primary engine. The engine is built on the
// first Get; concurrent first callers share one construction. A failed
// construction is not remembered, so the next Get tries again.
type Cache struct {
	factory Factory
	group   singleflight.Group

	mu     sync.RWMutex
	engine LineRecognizer
}

// NewCache returns an empty cache that builds its engine with factory.
func NewCache(factory Factory) *Cache {
	return &Cache{factory: factory}
}

// Get returns the cached engine, building it if needed.
func (c *Cache) Get() (LineRecognizer, error) {
	if engine := c.loaded(); engine != nil {
		return engine, nil
	}

	v, err, _ := c.group.Do("engine", func() (any, error) {
		if engine := c.loaded(); engine != nil {
			return engine, nil
		}

		slog.Info("Loading text recognition engine...")
		engine, err := c.factory()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.engine = engine
		c.mu.Unlock()
		return engine, nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading recognition engine: %w", err)
	}
	return v.(LineRecognizer), nil
}

func (c *Cache) loaded() LineRecognizer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// Close releases the engine if it holds resources. The cache may be reused
// afterwards; the next Get builds a new engine.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	engine := c.engine
	c.engine = nil
	if closer, ok := engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
