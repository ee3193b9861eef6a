// Package sqlite is a single-file store for local development and small
// deployments. It implements the same operations as the PostgreSQL store;
// change notifications come from watching the database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL DEFAULT '{}',
	position   INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS items_position_idx ON items (position, created_at);
CREATE TABLE IF NOT EXISTS wallet (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	balances   TEXT NOT NULL DEFAULT '{}',
	tasks      TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// Store is a SQLite-backed item and wallet store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One connection keeps pragmas in effect and avoids SQLITE_BUSY between
	// our own goroutines; other processes are handled by busy_timeout.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	s := NewWithDB(db, logger)
	s.path = path
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already opened database. The schema is not applied.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Kind identifies the store in logs and health output.
func (s *Store) Kind() string {
	return "sqlite"
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListItems returns every item document with its id merged in, in position order.
func (s *Store) ListItems(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc FROM items ORDER BY position ASC, created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list items: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("sqlite: scan item: %w", err)
		}
		raw, err := decodeDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode item %s: %w", id, err)
		}
		raw[model.FieldID] = id
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list items: %w", err)
	}
	return out, nil
}

// UpsertItem inserts the item or replaces the stored document for its id.
func (s *Store) UpsertItem(ctx context.Context, position int, item model.CatalogItem) error {
	raw := item.Raw()
	delete(raw, model.FieldID)
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("sqlite: encode item %s: %w", item.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, doc, position) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc = excluded.doc,
			position = excluded.position,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		string(item.ID), string(doc), position)
	if err != nil {
		return fmt.Errorf("sqlite: upsert item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteItems removes the given ids in a single transaction.
func (s *Store) DeleteItems(ctx context.Context, ids []model.ItemID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM items WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, string(id)); err != nil {
			return fmt.Errorf("sqlite: delete item %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit delete: %w", err)
	}
	return nil
}

// LoadAux returns the raw wallet balances and task counters, or
// storage.ErrNotFound when the wallet row does not exist.
func (s *Store) LoadAux(ctx context.Context) (wallet, tasks map[string]any, err error) {
	var balancesDoc, tasksDoc string
	err = s.db.QueryRowContext(ctx,
		`SELECT balances, tasks FROM wallet WHERE id = 1`).Scan(&balancesDoc, &tasksDoc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: load wallet: %w", err)
	}
	if wallet, err = decodeDoc(balancesDoc); err != nil {
		return nil, nil, fmt.Errorf("sqlite: decode wallet: %w", err)
	}
	if tasks, err = decodeDoc(tasksDoc); err != nil {
		return nil, nil, fmt.Errorf("sqlite: decode tasks: %w", err)
	}
	return wallet, tasks, nil
}

// SaveAux upserts the singleton wallet row.
func (s *Store) SaveAux(ctx context.Context, wallet model.Wallet, tasks model.Tasks) error {
	if wallet == nil {
		wallet = model.Wallet{}
	}
	if tasks == nil {
		tasks = model.Tasks{}
	}
	balancesDoc, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("sqlite: encode wallet: %w", err)
	}
	tasksDoc, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("sqlite: encode tasks: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet (id, balances, tasks) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balances = excluded.balances,
			tasks = excluded.tasks,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		string(balancesDoc), string(tasksDoc))
	if err != nil {
		return fmt.Errorf("sqlite: save wallet: %w", err)
	}
	return nil
}

func decodeDoc(doc string) (map[string]any, error) {
	if doc == "" || doc == "null" {
		return map[string]any{}, nil
	}
	return model.DecodeObject([]byte(doc))
}
