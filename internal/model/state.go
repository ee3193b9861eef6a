package model

import (
	"maps"
	"slices"
	"time"
)

// Wallet maps a currency kind to a non-negative balance.
type Wallet map[string]int64

// Clone returns a copy of the wallet.
func (w Wallet) Clone() Wallet {
	if w == nil {
		return nil
	}
	return maps.Clone(w)
}

// Tasks maps a task kind to its completion count.
type Tasks map[string]int64

// Clone returns a copy of the counters.
func (t Tasks) Clone() Tasks {
	if t == nil {
		return nil
	}
	return maps.Clone(t)
}

// Selection is the ordered set of items a client has picked for an order.
type Selection []ItemID

// Contains reports whether id is selected.
func (s Selection) Contains(id ItemID) bool {
	return slices.Contains(s, id)
}

// With returns a selection that includes id, appended if absent.
func (s Selection) With(id ItemID) Selection {
	if s.Contains(id) {
		return slices.Clone(s)
	}
	return append(slices.Clone(s), id)
}

// Without returns a selection with id removed.
func (s Selection) Without(id ItemID) Selection {
	return slices.DeleteFunc(slices.Clone(s), func(x ItemID) bool { return x == id })
}

// State is the canonical snapshot served to readers and pushed to subscribers.
// A State that has been handed to the cache is never mutated again; callers
// build a new one with Clone and the With* helpers.
type State struct {
	Items       []CatalogItem `json:"items"`
	Wallet      Wallet        `json:"wallet"`
	Tasks       Tasks         `json:"tasks"`
	Selection   Selection     `json:"selection"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Items:       make([]CatalogItem, len(s.Items)),
		Wallet:      s.Wallet.Clone(),
		Tasks:       s.Tasks.Clone(),
		Selection:   slices.Clone(s.Selection),
		LastUpdated: s.LastUpdated,
	}
	for i, it := range s.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

// Item looks up an item by ID.
func (s State) Item(id ItemID) (CatalogItem, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return CatalogItem{}, false
}

// Content is the part of a State that is persisted. LastUpdated and the
// per-process selection are excluded so that two reloads of the same store
// contents compare equal.
type Content struct {
	Items  []CatalogItem `json:"items"`
	Wallet Wallet        `json:"wallet"`
	Tasks  Tasks         `json:"tasks"`
}

// Content returns the persisted portion of s.
func (s State) Content() Content {
	return Content{Items: s.Items, Wallet: s.Wallet, Tasks: s.Tasks}
}

// EnvelopeType discriminates realtime messages.
type EnvelopeType string

// Envelope types sent over the realtime channel.
const (
	EnvelopeInit      EnvelopeType = "init"
	EnvelopeUpdate    EnvelopeType = "update"
	EnvelopeHeartbeat EnvelopeType = "heartbeat"
	EnvelopeShutdown  EnvelopeType = "shutdown"
)

// Envelope is a realtime message.
type Envelope struct {
	Type EnvelopeType `json:"type"`
	Data any          `json:"data,omitempty"`
}
