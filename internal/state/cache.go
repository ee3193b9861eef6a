// Package state holds the process-wide canonical snapshot.
package state

import (
	"sync/atomic"
	"time"

	"github.com/ashita-ai/menusync/internal/model"
)

// Cache is an atomic-swap container for the canonical State. Readers get the
// current snapshot without locking; writers build a complete new snapshot and
// swap it in, so a reader never observes a half-applied change.
type Cache struct {
	cur atomic.Pointer[model.State]
	now func() time.Time
}

// NewCache creates a cache holding an empty state.
func NewCache() *Cache {
	c := &Cache{now: func() time.Time { return time.Now().UTC() }}
	c.cur.Store(&model.State{
		Items:       []model.CatalogItem{},
		Wallet:      model.Wallet{},
		Tasks:       model.Tasks{},
		Selection:   model.Selection{},
		LastUpdated: c.now(),
	})
	return c
}

// Get returns the current snapshot. The returned value shares maps with the
// cache and must be treated as read-only; use Clone before modifying.
func (c *Cache) Get() model.State {
	return *c.cur.Load()
}

// Replace swaps in s, stamping LastUpdated, and returns the stored snapshot.
func (c *Cache) Replace(s model.State) model.State {
	next := s.Clone()
	if next.Items == nil {
		next.Items = []model.CatalogItem{}
	}
	if next.Wallet == nil {
		next.Wallet = model.Wallet{}
	}
	if next.Tasks == nil {
		next.Tasks = model.Tasks{}
	}
	if next.Selection == nil {
		next.Selection = model.Selection{}
	}
	next.LastUpdated = c.now()
	c.cur.Store(&next)
	return next
}
