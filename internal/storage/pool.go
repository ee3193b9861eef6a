// Package storage provides the PostgreSQL store for menusync.
//
// It manages a connection pool for item and wallet queries and a dedicated
// connection for LISTEN/NOTIFY, which delivers change signals for writes made
// by other processes (admin tools, SQL consoles, other replicas).
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool for normal queries and a dedicated pgx.Conn for
// LISTEN/NOTIFY.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	notifyDSN string
	notifyMu  sync.Mutex
	// notifyConn is owned by the goroutine calling WaitForChange; notifyMu
	// only guards reconnect against Close.
	notifyConn *pgx.Conn
	listening  bool
}

// New creates a new DB with a connection pool.
// notifyDSN should point directly at Postgres (not a transaction-pooling
// proxy) so LISTEN works; empty disables change notifications.
func New(ctx context.Context, poolDSN, notifyDSN string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(poolDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	db := &DB{
		pool:      pool,
		logger:    logger,
		notifyDSN: notifyDSN,
	}
	if notifyDSN != "" {
		if err := db.connectNotify(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return db, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// HasNotifyConn reports whether change notifications are configured.
func (db *DB) HasNotifyConn() bool {
	return db.notifyDSN != ""
}

// Kind identifies the store in logs and health output.
func (db *DB) Kind() string {
	return "postgres"
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool and notify connection.
func (db *DB) Close(ctx context.Context) {
	db.pool.Close()
	db.notifyMu.Lock()
	defer db.notifyMu.Unlock()
	if db.notifyConn != nil {
		if err := db.notifyConn.Close(ctx); err != nil {
			db.logger.Warn("storage: close notify connection", "error", err)
		}
		db.notifyConn = nil
	}
}

func (db *DB) connectNotify(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, db.notifyDSN)
	if err != nil {
		return fmt.Errorf("storage: connect notify: %w", err)
	}
	db.notifyMu.Lock()
	old := db.notifyConn
	db.notifyConn = conn
	db.listening = false
	db.notifyMu.Unlock()
	if old != nil {
		_ = old.Close(ctx)
	}
	return nil
}
