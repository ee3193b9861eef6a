package menu

import (
	"context"
	"math"

	"github.com/ashita-ai/menusync/internal/model"
)

// Order applies an order action. add and remove edit the in-memory selection
// and are idempotent. checkout charges the wallet for every selected item
// and clears the selection, or fails with a *model.PreconditionError naming
// the first currency that cannot be covered without deducting anything.
func (s *Service) Order(ctx context.Context, action model.OrderAction, id model.ItemID) (model.Selection, model.Wallet, error) {
	switch action {
	case model.OrderAdd, model.OrderRemove:
		if id == "" {
			return nil, nil, model.Invalid("itemId is required for %s", action)
		}
	case model.OrderCheckout:
	default:
		return nil, nil, model.Invalid("unknown order action %q", action)
	}

	if err := s.lock(ctx); err != nil {
		return nil, nil, err
	}
	defer s.unlock()

	cur := s.cache.Get()
	switch action {
	case model.OrderAdd:
		if _, ok := cur.Item(id); !ok {
			return nil, nil, model.NotFound("item %q not found", id)
		}
		return s.setSelection(ctx, cur, cur.Selection.With(id))
	case model.OrderRemove:
		return s.setSelection(ctx, cur, cur.Selection.Without(id))
	default:
		return s.checkout(ctx, cur)
	}
}

func (s *Service) setSelection(ctx context.Context, cur model.State, sel model.Selection) (model.Selection, model.Wallet, error) {
	if len(sel) == len(cur.Selection) {
		return sel, cur.Wallet.Clone(), nil
	}
	next := cur.Clone()
	next.Selection = sel
	stored := s.commit(ctx, "order", next)
	return stored.Selection, stored.Wallet.Clone(), nil
}

func (s *Service) checkout(ctx context.Context, cur model.State) (model.Selection, model.Wallet, error) {
	if len(cur.Selection) == 0 {
		return nil, nil, model.Invalid("selection is empty")
	}
	currencies := s.norm.Catalog().Currencies
	totals := OrderTotals(cur, currencies)

	for _, kind := range currencies {
		if need, have := totals[kind], cur.Wallet[kind]; need > have {
			return nil, nil, &model.PreconditionError{Currency: kind, Needed: need, Available: have}
		}
	}

	wallet := cur.Wallet.Clone()
	if wallet == nil {
		wallet = model.Wallet{}
	}
	for kind, need := range totals {
		if need > 0 {
			wallet[kind] = clampedSub(wallet[kind], need)
		}
	}
	if err := s.call(ctx, func(ctx context.Context) error { return s.store.SaveAux(ctx, wallet, cur.Tasks) }); err != nil {
		return nil, nil, s.storeError(ctx, "save wallet", 0, err)
	}

	next := cur.Clone()
	next.Wallet = wallet
	next.Selection = model.Selection{}
	stored := s.commit(ctx, "checkout", next)
	return stored.Selection, stored.Wallet.Clone(), nil
}

// OrderTotals sums the prices of the selected items per currency, rounding
// each total up to a whole unit. Prices in currencies outside the list are
// ignored.
func OrderTotals(st model.State, currencies []string) map[string]int64 {
	sums := make(map[string]float64, len(currencies))
	for _, id := range st.Selection {
		it, ok := st.Item(id)
		if !ok {
			continue
		}
		for _, kind := range currencies {
			sums[kind] += it.Prices[kind]
		}
	}
	totals := make(map[string]int64, len(currencies))
	for _, kind := range currencies {
		sum := math.Ceil(sums[kind])
		if sum >= math.MaxInt64 {
			totals[kind] = math.MaxInt64
		} else {
			totals[kind] = int64(sum)
		}
	}
	return totals
}
