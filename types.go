package menusync

import (
	"maps"
	"time"

	"github.com/ashita-ai/menusync/internal/model"
)

// Item is the public representation of a catalog entry.
// No internal package imports; safe to use from outside the module.
type Item struct {
	ID          string
	Name        string
	Description string
	Image       string
	Category    string
	// Prices maps a canonical currency to its price.
	Prices map[string]float64
	// Extra holds attributes the server does not interpret.
	Extra map[string]any
}

// State is a published snapshot of the shared menu, wallet and task counters.
type State struct {
	Items       []Item
	Wallet      map[string]int64
	Tasks       map[string]int64
	Selection   []string
	LastUpdated time.Time
}

func toPublicState(s model.State) State {
	out := State{
		Items:       make([]Item, len(s.Items)),
		Wallet:      maps.Clone(map[string]int64(s.Wallet)),
		Tasks:       maps.Clone(map[string]int64(s.Tasks)),
		Selection:   make([]string, len(s.Selection)),
		LastUpdated: s.LastUpdated,
	}
	for i, it := range s.Items {
		out.Items[i] = Item{
			ID:          string(it.ID),
			Name:        it.Name,
			Description: it.Description,
			Image:       it.Image,
			Category:    it.Category,
			Prices:      maps.Clone(it.Prices),
			Extra:       maps.Clone(it.Extra),
		}
	}
	for i, id := range s.Selection {
		out.Selection[i] = string(id)
	}
	return out
}
