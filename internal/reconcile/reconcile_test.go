package reconcile

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/menusync/internal/model"
)

func itemsOf(ids ...string) []model.CatalogItem {
	out := make([]model.CatalogItem, len(ids))
	for i, id := range ids {
		out[i] = model.CatalogItem{ID: model.ItemID(id), Name: "item " + id}
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		current    []model.CatalogItem
		proposed   []model.CatalogItem
		wantInsert []model.ItemID
		wantUpdate []model.ItemID
		wantDelete []model.ItemID
	}{
		{
			name:       "insert update delete",
			current:    itemsOf("2", "3"),
			proposed:   itemsOf("1", "2"),
			wantInsert: []model.ItemID{"1"},
			wantUpdate: []model.ItemID{"2"},
			wantDelete: []model.ItemID{"3"},
		},
		{
			name:       "empty current",
			current:    nil,
			proposed:   itemsOf("a", "b"),
			wantInsert: []model.ItemID{"a", "b"},
		},
		{
			name:       "empty proposal deletes all",
			current:    itemsOf("a", "b"),
			proposed:   nil,
			wantDelete: []model.ItemID{"a", "b"},
		},
		{
			name:       "same set is all updates in proposed order",
			current:    itemsOf("a", "b", "c"),
			proposed:   itemsOf("c", "a", "b"),
			wantUpdate: []model.ItemID{"c", "a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Diff(tt.current, tt.proposed)
			assert.Equal(t, tt.wantInsert, idsOrNil(plan.ToInsert))
			assert.Equal(t, tt.wantUpdate, idsOrNil(plan.ToUpdate))
			assert.Equal(t, tt.wantDelete, plan.ToDelete)
		})
	}
}

func TestPlan_Ops(t *testing.T) {
	assert.True(t, Plan{}.Empty())
	assert.Equal(t, 0, Plan{}.Ops())

	plan := Diff(itemsOf("a", "b", "c"), itemsOf("b", "d"))
	assert.False(t, plan.Empty())
	assert.Equal(t, 3, plan.Ops(), "two upserts and one delete batch")
}

func idsOrNil(items []model.CatalogItem) []model.ItemID {
	if len(items) == 0 {
		return nil
	}
	return model.ItemIDs(items)
}

// uniqueIDs generates a duplicate-free ID list drawn from a small alphabet so
// that current and proposed lists overlap often.
func uniqueIDs() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, 20)).Map(func(ns []int) []string {
		seen := make(map[int]bool)
		var out []string
		for _, n := range ns {
			if !seen[n] {
				seen[n] = true
				out = append(out, string(rune('a'+n)))
			}
		}
		return out
	})
}

func TestDiff_Partition(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("inserts, updates and deletes partition the ids", prop.ForAll(
		func(cur, next []string) bool {
			plan := Diff(itemsOf(cur...), itemsOf(next...))

			inCur := make(map[model.ItemID]bool)
			for _, id := range cur {
				inCur[model.ItemID(id)] = true
			}
			inProp := make(map[model.ItemID]bool)
			for _, id := range next {
				inProp[model.ItemID(id)] = true
			}

			if len(plan.ToInsert)+len(plan.ToUpdate) != len(next) {
				return false
			}
			for _, it := range plan.ToInsert {
				if inCur[it.ID] || !inProp[it.ID] {
					return false
				}
			}
			for _, it := range plan.ToUpdate {
				if !inCur[it.ID] || !inProp[it.ID] {
					return false
				}
			}
			deleted := 0
			for _, id := range cur {
				if !inProp[model.ItemID(id)] {
					deleted++
				}
			}
			if len(plan.ToDelete) != deleted {
				return false
			}
			for _, id := range plan.ToDelete {
				if !inCur[id] || inProp[id] {
					return false
				}
			}
			return true
		},
		uniqueIDs(), uniqueIDs(),
	))

	properties.TestingRun(t)
}
