package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/menusync/internal/model"
)

// walletRowID is the fixed key of the singleton wallet row.
const walletRowID = 1

// LoadAux returns the raw wallet balances and task counters.
// Returns ErrNotFound when the wallet row has never been written.
func (db *DB) LoadAux(ctx context.Context) (wallet, tasks map[string]any, err error) {
	var balancesDoc, tasksDoc []byte
	err = db.pool.QueryRow(ctx,
		`SELECT balances, tasks FROM wallet WHERE id = $1`, walletRowID,
	).Scan(&balancesDoc, &tasksDoc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("storage: load wallet: %w", err)
	}
	if wallet, err = decodeDoc(balancesDoc); err != nil {
		return nil, nil, fmt.Errorf("storage: decode wallet: %w", err)
	}
	if tasks, err = decodeDoc(tasksDoc); err != nil {
		return nil, nil, fmt.Errorf("storage: decode tasks: %w", err)
	}
	return wallet, tasks, nil
}

// SaveAux upserts the singleton wallet row.
func (db *DB) SaveAux(ctx context.Context, wallet model.Wallet, tasks model.Tasks) error {
	if wallet == nil {
		wallet = model.Wallet{}
	}
	if tasks == nil {
		tasks = model.Tasks{}
	}
	balancesDoc, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("storage: encode wallet: %w", err)
	}
	tasksDoc, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("storage: encode tasks: %w", err)
	}
	err = WithRetry(ctx, upsertRetries, upsertBaseDelay, func() error {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO wallet (id, balances, tasks)
			VALUES ($1, $2::jsonb, $3::jsonb)
			ON CONFLICT (id) DO UPDATE
			SET balances = EXCLUDED.balances, tasks = EXCLUDED.tasks, updated_at = now()`,
			walletRowID, string(balancesDoc), string(tasksDoc),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: save wallet: %w", err)
	}
	return nil
}
