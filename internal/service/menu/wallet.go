package menu

import (
	"context"
	"math"

	"github.com/ashita-ai/menusync/internal/model"
)

// AdjustWallet adds amount to one currency balance. A negative amount is a
// spend and floors at zero; a positive amount saturates at math.MaxInt64.
// A store failure leaves the cache unchanged.
func (s *Service) AdjustWallet(ctx context.Context, currency string, amount int64) (model.Wallet, error) {
	kind, ok := s.norm.Catalog().Currency(currency)
	if !ok {
		return nil, model.UnknownKind("currency", currency)
	}

	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	cur := s.cache.Get()
	wallet := cur.Wallet.Clone()
	if wallet == nil {
		wallet = model.Wallet{}
	}
	switch {
	case amount > 0:
		wallet[kind] = saturatingAdd(wallet[kind], amount)
	case amount == math.MinInt64:
		wallet[kind] = 0
	default:
		wallet[kind] = clampedSub(wallet[kind], -amount)
	}

	if err := s.call(ctx, func(ctx context.Context) error { return s.store.SaveAux(ctx, wallet, cur.Tasks) }); err != nil {
		return nil, s.storeError(ctx, "save wallet", 0, err)
	}

	next := cur.Clone()
	next.Wallet = wallet
	stored := s.commit(ctx, "wallet_adjust", next)
	return stored.Wallet.Clone(), nil
}

// CompleteTask increments a task counter and credits the task's currency by
// its unit. Both additions saturate.
func (s *Service) CompleteTask(ctx context.Context, task string) (model.Tasks, model.Wallet, error) {
	kind, def, ok := s.norm.Catalog().Task(task)
	if !ok {
		return nil, nil, model.UnknownKind("task", task)
	}

	if err := s.lock(ctx); err != nil {
		return nil, nil, err
	}
	defer s.unlock()

	cur := s.cache.Get()
	tasks := cur.Tasks.Clone()
	if tasks == nil {
		tasks = model.Tasks{}
	}
	wallet := cur.Wallet.Clone()
	if wallet == nil {
		wallet = model.Wallet{}
	}
	tasks[kind] = saturatingAdd(tasks[kind], 1)
	wallet[def.Currency] = saturatingAdd(wallet[def.Currency], def.Unit)

	if err := s.call(ctx, func(ctx context.Context) error { return s.store.SaveAux(ctx, wallet, tasks) }); err != nil {
		return nil, nil, s.storeError(ctx, "save tasks", 0, err)
	}

	next := cur.Clone()
	next.Tasks = tasks
	next.Wallet = wallet
	stored := s.commit(ctx, "task_complete", next)
	return stored.Tasks.Clone(), stored.Wallet.Clone(), nil
}
