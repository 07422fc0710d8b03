package llm

import (
	"context"
	"log"
	"sync"
)

// ModelLister is the slice of the backend API the catalog needs.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Catalog caches the backend's model listing. Refresh is single-flight: a
// refresh requested while one is already running returns the cached list
// instead of stacking requests.
type Catalog struct {
	mu         sync.Mutex
	models     []string
	refreshing bool
	lister     ModelLister
}

func NewCatalog(lister ModelLister) *Catalog {
	return &Catalog{lister: lister}
}

// Models returns the cached listing, possibly empty before the first
// successful refresh.
func (c *Catalog) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// Refresh fetches the listing from the backend. On failure the previous
// cache is kept.
func (c *Catalog) Refresh(ctx context.Context) []string {
	c.mu.Lock()
	if c.refreshing {
		cached := make([]string, len(c.models))
		copy(cached, c.models)
		c.mu.Unlock()
		return cached
	}
	c.refreshing = true
	c.mu.Unlock()

	models, err := c.lister.ListModels(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false
	if err != nil {
		log.Printf("[llm] model refresh failed: %v", err)
		cached := make([]string, len(c.models))
		copy(cached, c.models)
		return cached
	}
	c.models = models
	out := make([]string, len(models))
	copy(out, models)
	return out
}
