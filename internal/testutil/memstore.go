package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/storage"
)

// Operation names used by MemStore.FailOn and MemStore.Calls.
const (
	OpList     = "list"
	OpUpsert   = "upsert"
	OpDelete   = "delete"
	OpLoadAux  = "load_aux"
	OpSaveAux  = "save_aux"
	OpPing     = "ping"
	failAlways = -1
)

type memItem struct {
	doc      []byte
	position int
	seq      int
}

type failure struct {
	err   error
	after int
}

// MemStore is an in-memory store that round-trips documents through JSON the
// way the real stores do. Failures can be injected per operation.
type MemStore struct {
	mu      sync.Mutex
	items   map[model.ItemID]memItem
	seq     int
	wallet  []byte
	tasks   []byte
	hasAux  bool
	fail    map[string]failure
	calls   []string
	changed chan struct{}
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		items:   make(map[model.ItemID]memItem),
		fail:    make(map[string]failure),
		changed: make(chan struct{}, 1),
	}
}

// FailOn makes op fail with err on every call from now on.
func (m *MemStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = failure{err: err, after: failAlways}
}

// FailAfter lets op succeed n more times and then fail with err.
func (m *MemStore) FailAfter(op string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = failure{err: err, after: n}
}

// Heal clears every injected failure.
func (m *MemStore) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = make(map[string]failure)
}

// Calls returns the operations performed so far, in order. Upserts are
// recorded as "upsert:<id>".
func (m *MemStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// ResetCalls clears the call log.
func (m *MemStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// check records a call and returns the injected failure, if any. Callers hold mu.
func (m *MemStore) check(op, label string) error {
	m.calls = append(m.calls, label)
	f, ok := m.fail[op]
	if !ok {
		return nil
	}
	if f.after == failAlways || f.after == 0 {
		return f.err
	}
	f.after--
	m.fail[op] = f
	return nil
}

func (m *MemStore) signal() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Kind identifies the store.
func (m *MemStore) Kind() string { return "memory" }

// Ping reports an injected failure or nil.
func (m *MemStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(OpPing, OpPing)
}

// ListItems returns stored documents in position order.
func (m *MemStore) ListItems(ctx context.Context) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpList, OpList); err != nil {
		return nil, err
	}
	return m.listLocked()
}

func (m *MemStore) sortedIDs() []model.ItemID {
	ids := make([]model.ItemID, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.items[ids[i]], m.items[ids[j]]
		if a.position != b.position {
			return a.position < b.position
		}
		return a.seq > b.seq
	})
	return ids
}

func (m *MemStore) listLocked() ([]map[string]any, error) {
	ids := m.sortedIDs()
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		raw, err := model.DecodeObject(m.items[id].doc)
		if err != nil {
			return nil, err
		}
		raw[model.FieldID] = string(id)
		out = append(out, raw)
	}
	return out, nil
}

// UpsertItem stores the item document.
func (m *MemStore) UpsertItem(ctx context.Context, position int, item model.CatalogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpUpsert, OpUpsert+":"+string(item.ID)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := item.Raw()
	delete(raw, model.FieldID)
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("memstore: encode %s: %w", item.ID, err)
	}
	m.seq++
	m.items[item.ID] = memItem{doc: doc, position: position, seq: m.seq}
	m.signal()
	return nil
}

// PutRaw stores a raw document directly, bypassing normalization, as an
// out-of-band writer would.
func (m *MemStore) PutRaw(position int, raw map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := model.IDFromAny(raw[model.FieldID])
	doc := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != model.FieldID {
			doc[k] = v
		}
	}
	b, _ := json.Marshal(doc)
	m.seq++
	m.items[id] = memItem{doc: b, position: position, seq: m.seq}
	m.signal()
}

// DeleteItems removes the ids.
func (m *MemStore) DeleteItems(ctx context.Context, ids []model.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpDelete, OpDelete); err != nil {
		return err
	}
	for _, id := range ids {
		delete(m.items, id)
	}
	m.signal()
	return nil
}

// LoadAux returns the stored wallet and tasks, or storage.ErrNotFound.
func (m *MemStore) LoadAux(ctx context.Context) (wallet, tasks map[string]any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpLoadAux, OpLoadAux); err != nil {
		return nil, nil, err
	}
	if !m.hasAux {
		return nil, nil, storage.ErrNotFound
	}
	if wallet, err = model.DecodeObject(m.wallet); err != nil {
		return nil, nil, err
	}
	if tasks, err = model.DecodeObject(m.tasks); err != nil {
		return nil, nil, err
	}
	return wallet, tasks, nil
}

// SaveAux stores the wallet and tasks.
func (m *MemStore) SaveAux(ctx context.Context, wallet model.Wallet, tasks model.Tasks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpSaveAux, OpSaveAux); err != nil {
		return err
	}
	if wallet == nil {
		wallet = model.Wallet{}
	}
	if tasks == nil {
		tasks = model.Tasks{}
	}
	m.wallet, _ = json.Marshal(wallet)
	m.tasks, _ = json.Marshal(tasks)
	m.hasAux = true
	m.signal()
	return nil
}

// PutRawAux stores raw wallet and task documents directly.
func (m *MemStore) PutRawAux(wallet, tasks map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wallet == nil {
		wallet = map[string]any{}
	}
	if tasks == nil {
		tasks = map[string]any{}
	}
	m.wallet, _ = json.Marshal(wallet)
	m.tasks, _ = json.Marshal(tasks)
	m.hasAux = true
	m.signal()
}

// ItemIDs returns the stored ids in position order without recording a call.
func (m *MemStore) ItemIDs() []model.ItemID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedIDs()
}

// Wallet returns the stored wallet document, or nil when none was saved.
func (m *MemStore) Wallet() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasAux {
		return nil
	}
	raw, _ := model.DecodeObject(m.wallet)
	return raw
}

// WaitForChange blocks until any write reaches the store. It lets MemStore
// act as a change source for listener tests.
func (m *MemStore) WaitForChange(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.changed:
		return nil
	}
}
