// Package reconcile computes the store operations that turn the current item
// set into a proposed full replacement.
package reconcile

import "github.com/ashita-ai/menusync/internal/model"

// Plan is the result of Diff. ToInsert and ToUpdate partition the proposed
// items; ToDelete lists current IDs that are absent from the proposal.
type Plan struct {
	ToInsert []model.CatalogItem
	ToUpdate []model.CatalogItem
	ToDelete []model.ItemID
}

// Empty reports whether the plan has no operations.
func (p Plan) Empty() bool {
	return len(p.ToInsert) == 0 && len(p.ToUpdate) == 0 && len(p.ToDelete) == 0
}

// Ops returns the number of per-item operations plus one for a non-empty delete batch.
func (p Plan) Ops() int {
	n := len(p.ToInsert) + len(p.ToUpdate)
	if len(p.ToDelete) > 0 {
		n++
	}
	return n
}

// Diff classifies proposed items against current ones by ID. Proposed items
// are expected to be normalized and to have unique IDs. Order is preserved:
// inserts and updates follow the proposal, deletions follow current.
func Diff(current, proposed []model.CatalogItem) Plan {
	currentIDs := make(map[model.ItemID]struct{}, len(current))
	for _, it := range current {
		currentIDs[it.ID] = struct{}{}
	}
	proposedIDs := make(map[model.ItemID]struct{}, len(proposed))

	var plan Plan
	for _, it := range proposed {
		proposedIDs[it.ID] = struct{}{}
		if _, ok := currentIDs[it.ID]; ok {
			plan.ToUpdate = append(plan.ToUpdate, it)
		} else {
			plan.ToInsert = append(plan.ToInsert, it)
		}
	}
	for _, it := range current {
		if _, ok := proposedIDs[it.ID]; !ok {
			plan.ToDelete = append(plan.ToDelete, it.ID)
		}
	}
	return plan
}
