package menu

import (
	"context"
	"fmt"
	"math"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/reconcile"
)

// ReplaceInput is a full replacement of the catalog. A nil Wallet or Tasks
// keeps the current value.
type ReplaceInput struct {
	Items  []map[string]any
	Wallet map[string]any
	Tasks  map[string]any
}

// Replace reconciles the store and cache with a full proposed item list.
//
// Deletions go to the store as one batch, then every proposed item is
// upserted in order. The first failing store call aborts the request with a
// *model.StoreError carrying the number of operations already applied; the
// cache is not touched in that case. A failure to save the wallet or task
// counters does not fail the request: items and wallet are persisted
// independently, and the cache takes the new values either way.
func (s *Service) Replace(ctx context.Context, in ReplaceInput) (model.ReplaceStateResponse, error) {
	proposed, err := s.prepareItems(in.Items)
	if err != nil {
		return model.ReplaceStateResponse{}, err
	}

	if err := s.lock(ctx); err != nil {
		return model.ReplaceStateResponse{}, err
	}
	defer s.unlock()

	cur := s.cache.Get()
	plan := reconcile.Diff(cur.Items, proposed)

	applied := 0
	if len(plan.ToDelete) > 0 {
		err := s.call(ctx, func(ctx context.Context) error { return s.store.DeleteItems(ctx, plan.ToDelete) })
		if err != nil {
			return model.ReplaceStateResponse{}, s.storeError(ctx, "delete items", applied, err)
		}
		applied++
	}
	for i, it := range proposed {
		err := s.call(ctx, func(ctx context.Context) error { return s.store.UpsertItem(ctx, i, it) })
		if err != nil {
			return model.ReplaceStateResponse{}, s.storeError(ctx, fmt.Sprintf("upsert item %s", it.ID), applied, err)
		}
		applied++
	}

	next := model.State{
		Items:     proposed,
		Wallet:    cur.Wallet,
		Tasks:     cur.Tasks,
		Selection: retainSelection(cur.Selection, proposed),
	}
	if in.Wallet != nil || in.Tasks != nil {
		if in.Wallet != nil {
			next.Wallet = s.norm.Wallet(in.Wallet)
		}
		if in.Tasks != nil {
			next.Tasks = s.norm.Tasks(in.Tasks)
		}
		err := s.call(ctx, func(ctx context.Context) error { return s.store.SaveAux(ctx, next.Wallet, next.Tasks) })
		if err != nil {
			s.storeErrors.Add(ctx, 1)
			s.logger.Warn("menu: wallet save failed, items were saved", "error", err, "applied", applied)
		}
	}

	s.commit(ctx, "replace", next)
	s.logger.Debug("menu: state replaced",
		"inserted", len(plan.ToInsert),
		"updated", len(plan.ToUpdate),
		"deleted", len(plan.ToDelete),
	)
	return model.ReplaceStateResponse{
		Inserted: len(plan.ToInsert),
		Updated:  len(plan.ToUpdate),
		Deleted:  len(plan.ToDelete),
	}, nil
}

// prepareItems normalizes and validates a proposed item list, assigning IDs
// to items that have none.
func (s *Service) prepareItems(raws []map[string]any) ([]model.CatalogItem, error) {
	if len(raws) > model.MaxItems {
		return nil, model.Invalid("too many items: %d (max %d)", len(raws), model.MaxItems)
	}
	items := make([]model.CatalogItem, 0, len(raws))
	seen := make(map[model.ItemID]int, len(raws))
	for i, raw := range raws {
		if raw == nil {
			return nil, model.Invalid("item %d: must be an object", i)
		}
		if v, ok := raw[model.FieldID]; ok {
			if _, ok := model.IDFromAny(v); !ok {
				return nil, model.Invalid("item %d: id must be a string or a number", i)
			}
		}
		it := s.norm.Item(raw)
		if it.ID == "" {
			it.ID = s.newID()
		}
		if err := validateItem(i, it); err != nil {
			return nil, err
		}
		if first, dup := seen[it.ID]; dup {
			return nil, model.Invalid("item %d: duplicate id %q (also item %d)", i, it.ID, first)
		}
		seen[it.ID] = i
		items = append(items, it)
	}
	return items, nil
}

func validateItem(i int, it model.CatalogItem) error {
	if len(it.ID) > model.MaxIDLen {
		return model.Invalid("item %d: id exceeds %d bytes", i, model.MaxIDLen)
	}
	if len(it.Name) > model.MaxNameLen {
		return model.Invalid("item %d: name exceeds %d bytes", i, model.MaxNameLen)
	}
	if len(it.Image) > model.MaxImageBytes {
		return model.Invalid("item %d: image exceeds %d bytes", i, model.MaxImageBytes)
	}
	for kind, amount := range it.Prices {
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
			return model.Invalid("item %d: price for %q must be a non-negative number", i, kind)
		}
	}
	return nil
}
