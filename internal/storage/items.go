package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashita-ai/menusync/internal/model"
)

const (
	upsertRetries   = 3
	upsertBaseDelay = 10 * time.Millisecond
)

// ListItems returns every item document with its id merged in, ordered by
// position and then newest first. Documents are returned as stored; callers
// normalize them.
func (db *DB) ListItems(ctx context.Context) ([]map[string]any, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, doc FROM items ORDER BY position ASC, created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list items: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("storage: scan item: %w", err)
		}
		raw, err := decodeDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("storage: decode item %s: %w", id, err)
		}
		raw[model.FieldID] = id
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list items: %w", err)
	}
	return out, nil
}

// UpsertItem inserts the item or replaces the stored document for its id.
func (db *DB) UpsertItem(ctx context.Context, position int, item model.CatalogItem) error {
	doc, err := encodeDoc(item)
	if err != nil {
		return fmt.Errorf("storage: encode item %s: %w", item.ID, err)
	}
	err = WithRetry(ctx, upsertRetries, upsertBaseDelay, func() error {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO items (id, doc, position)
			VALUES ($1, $2::jsonb, $3)
			ON CONFLICT (id) DO UPDATE
			SET doc = EXCLUDED.doc, position = EXCLUDED.position, updated_at = now()`,
			string(item.ID), string(doc), position,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: upsert item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteItems removes the given ids in one statement. Missing ids are ignored.
func (db *DB) DeleteItems(ctx context.Context, ids []model.ItemID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	if _, err := db.pool.Exec(ctx, `DELETE FROM items WHERE id = ANY($1)`, keys); err != nil {
		return fmt.Errorf("storage: delete %d items: %w", len(ids), err)
	}
	return nil
}

// encodeDoc serializes an item without its id, which lives in its own column.
func encodeDoc(item model.CatalogItem) ([]byte, error) {
	raw := item.Raw()
	delete(raw, model.FieldID)
	return json.Marshal(raw)
}

func decodeDoc(doc []byte) (map[string]any, error) {
	if len(doc) == 0 || string(doc) == "null" {
		return map[string]any{}, nil
	}
	return model.DecodeObject(doc)
}
