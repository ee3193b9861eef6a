// Package menu provides the business logic for catalog and wallet mutations.
//
// Every mutation follows the same shape: read the cached snapshot, compute a
// new one, persist the difference, swap the cache and publish. Mutations are
// serialized through a single-slot writer lock so cache replacements happen
// in the same order as their store writes. Reads go straight to the cache.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/normalize"
	"github.com/ashita-ai/menusync/internal/state"
	"github.com/ashita-ai/menusync/internal/storage"
	"github.com/ashita-ai/menusync/internal/telemetry"
)

// DefaultStoreTimeout bounds each external store call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// Store is the external store. Both the PostgreSQL and SQLite stores implement it.
type Store interface {
	Kind() string
	Ping(ctx context.Context) error
	ListItems(ctx context.Context) ([]map[string]any, error)
	UpsertItem(ctx context.Context, position int, item model.CatalogItem) error
	DeleteItems(ctx context.Context, ids []model.ItemID) error
	LoadAux(ctx context.Context) (wallet, tasks map[string]any, err error)
	SaveAux(ctx context.Context, wallet model.Wallet, tasks model.Tasks) error
}

// Publisher receives every new snapshot after it has been stored in the cache.
type Publisher interface {
	Publish(s model.State)
}

// Options configures a Service.
type Options struct {
	// StoreTimeout bounds each store call. Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration
	// NewID generates IDs for items submitted without one. Nil means UUIDv4.
	NewID func() model.ItemID
}

// Service owns all writes to the state cache.
type Service struct {
	store        Store
	cache        *state.Cache
	norm         *normalize.Normalizer
	publisher    Publisher
	logger       *slog.Logger
	storeTimeout time.Duration
	newID        func() model.ItemID

	// writer is a single-slot semaphore held for the whole
	// read-compute-persist-replace-publish sequence of a mutation.
	writer chan struct{}

	mutations   metric.Int64Counter
	storeErrors metric.Int64Counter
}

// New creates a Service. publisher may be nil, in which case snapshots are
// cached but not published.
func New(store Store, cache *state.Cache, norm *normalize.Normalizer, publisher Publisher, logger *slog.Logger, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.NewID == nil {
		opts.NewID = func() model.ItemID { return model.ItemID(uuid.NewString()) }
	}
	meter := telemetry.Meter("menusync/menu")
	mutations, _ := meter.Int64Counter("menusync.mutations",
		metric.WithDescription("Completed state mutations by operation"),
	)
	storeErrors, _ := meter.Int64Counter("menusync.store.errors",
		metric.WithDescription("Failed external store calls by operation"),
	)
	return &Service{
		store:        store,
		cache:        cache,
		norm:         norm,
		publisher:    publisher,
		logger:       logger,
		storeTimeout: opts.StoreTimeout,
		newID:        opts.NewID,
		writer:       make(chan struct{}, 1),
		mutations:    mutations,
		storeErrors:  storeErrors,
	}
}

// Snapshot returns the current cached state.
func (s *Service) Snapshot() model.State {
	return s.cache.Get()
}

// Catalog returns the deployment catalog in use.
func (s *Service) Catalog() model.Catalog {
	return s.norm.Catalog()
}

// StoreKind names the backing store.
func (s *Service) StoreKind() string {
	return s.store.Kind()
}

// Ping checks store connectivity within the store timeout.
func (s *Service) Ping(ctx context.Context) error {
	return s.call(ctx, func(ctx context.Context) error { return s.store.Ping(ctx) })
}

// lock acquires the writer slot or gives up when ctx ends.
func (s *Service) lock(ctx context.Context) error {
	select {
	case s.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) unlock() {
	<-s.writer
}

// call runs one store operation under the store timeout.
func (s *Service) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) storeError(ctx context.Context, op string, applied int, err error) error {
	s.storeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	return &model.StoreError{Op: op, Applied: applied, Err: err}
}

// commit swaps next into the cache and publishes it. Callers hold the writer lock.
func (s *Service) commit(ctx context.Context, op string, next model.State) model.State {
	stored := s.cache.Replace(next)
	if s.publisher != nil {
		s.publisher.Publish(stored)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	return stored
}

// Init loads the initial state. It never fails: an unreachable store yields
// an empty catalog and the default wallet, and a missing wallet row is
// seeded with the default.
func (s *Service) Init(ctx context.Context) model.State {
	if err := s.lock(ctx); err != nil {
		return s.cache.Get()
	}
	defer s.unlock()

	next := model.State{Selection: model.Selection{}}
	items, err := s.loadItems(ctx)
	if err != nil {
		s.logger.Warn("menu: initial item load failed, starting empty", "error", err)
		items = []model.CatalogItem{}
	}
	next.Items = items

	wallet, tasks, err := s.loadAux(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		wallet, tasks = s.defaultAux()
		if err := s.call(ctx, func(ctx context.Context) error { return s.store.SaveAux(ctx, wallet, tasks) }); err != nil {
			s.logger.Warn("menu: seed default wallet failed", "error", err)
		}
	case err != nil:
		s.logger.Warn("menu: initial wallet load failed, using defaults", "error", err)
		wallet, tasks = s.defaultAux()
	}
	next.Wallet, next.Tasks = wallet, tasks

	stored := s.cache.Replace(next)
	s.logger.Info("menu: state initialized",
		"items", len(stored.Items),
		"store", s.store.Kind(),
	)
	return stored
}

// Reload re-reads the full state from the store, as at startup, and swaps it
// in. It reports whether the persisted content changed; an unchanged reload
// is not published. On error the cache is left as it was.
func (s *Service) Reload(ctx context.Context) (bool, error) {
	if err := s.lock(ctx); err != nil {
		return false, err
	}
	defer s.unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return false, fmt.Errorf("menu: reload items: %w", err)
	}
	wallet, tasks, err := s.loadAux(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		wallet, tasks = s.defaultAux()
	} else if err != nil {
		return false, fmt.Errorf("menu: reload wallet: %w", err)
	}

	cur := s.cache.Get()
	next := model.State{
		Items:     items,
		Wallet:    wallet,
		Tasks:     tasks,
		Selection: retainSelection(cur.Selection, items),
	}

	before, err := state.Digest(cur)
	if err != nil {
		return false, err
	}
	after, err := state.Digest(next)
	if err != nil {
		return false, err
	}
	if before == after && len(next.Selection) == len(cur.Selection) {
		return false, nil
	}
	s.commit(ctx, "reload", next)
	return true, nil
}

func (s *Service) loadItems(ctx context.Context) ([]model.CatalogItem, error) {
	var raws []map[string]any
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		raws, err = s.store.ListItems(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]model.CatalogItem, 0, len(raws))
	seen := make(map[model.ItemID]struct{}, len(raws))
	for _, raw := range raws {
		it := s.norm.Item(raw)
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		items = append(items, it)
	}
	return items, nil
}

func (s *Service) loadAux(ctx context.Context) (model.Wallet, model.Tasks, error) {
	var rawWallet, rawTasks map[string]any
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		rawWallet, rawTasks, err = s.store.LoadAux(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return s.norm.Wallet(rawWallet), s.norm.Tasks(rawTasks), nil
}

func (s *Service) defaultAux() (model.Wallet, model.Tasks) {
	c := s.norm.Catalog()
	wallet := c.DefaultWallet.Clone()
	if wallet == nil {
		wallet = model.Wallet{}
	}
	tasks := make(model.Tasks, len(c.Tasks))
	for _, kind := range c.TaskKinds() {
		tasks[kind] = 0
	}
	return wallet, tasks
}

// retainSelection drops selected IDs that are no longer in items.
func retainSelection(sel model.Selection, items []model.CatalogItem) model.Selection {
	ids := make(map[model.ItemID]struct{}, len(items))
	for _, it := range items {
		ids[it.ID] = struct{}{}
	}
	out := make(model.Selection, 0, len(sel))
	for _, id := range sel {
		if _, ok := ids[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// saturatingAdd adds a non-negative delta without overflowing.
func saturatingAdd(a, delta int64) int64 {
	if delta > 0 && a > math.MaxInt64-delta {
		return math.MaxInt64
	}
	return a + delta
}

// clampedSub subtracts a non-negative delta, flooring at zero.
func clampedSub(a, delta int64) int64 {
	if delta >= a {
		return 0
	}
	return a - delta
}
