package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ChannelChanges is the LISTEN/NOTIFY channel the items and wallet triggers
// publish on (see migrations/001_initial.sql).
const ChannelChanges = "menusync_changes"

// Listen starts listening on the specified channel using the dedicated notify connection.
// Returns an error if no notify connection is configured.
func (db *DB) Listen(ctx context.Context, channel string) error {
	conn := db.currentNotifyConn()
	if conn == nil {
		return fmt.Errorf("storage: notify connection not configured")
	}
	_, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	if err != nil {
		return fmt.Errorf("storage: listen %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives on any listened channel.
// Returns the channel name and payload.
func (db *DB) WaitForNotification(ctx context.Context) (channel, payload string, err error) {
	conn := db.currentNotifyConn()
	if conn == nil {
		return "", "", fmt.Errorf("storage: notify connection not configured")
	}
	notification, err := conn.WaitForNotification(ctx)
	if err != nil {
		return "", "", fmt.Errorf("storage: wait for notification: %w", err)
	}
	return notification.Channel, notification.Payload, nil
}

// WaitForChange blocks until the items or wallet table changes. It LISTENs
// lazily and, after a connection failure, reconnects before the next wait;
// the failed wait itself is returned so the caller can back off.
func (db *DB) WaitForChange(ctx context.Context) error {
	if !db.HasNotifyConn() {
		return fmt.Errorf("storage: notify connection not configured")
	}
	if conn := db.currentNotifyConn(); conn == nil || conn.IsClosed() {
		if err := db.connectNotify(ctx); err != nil {
			return err
		}
	}
	if !db.listening {
		if err := db.Listen(ctx, ChannelChanges); err != nil {
			return err
		}
		db.listening = true
	}
	channel, payload, err := db.WaitForNotification(ctx)
	if err != nil {
		return err
	}
	db.logger.Debug("storage: change notification", "channel", channel, "payload", payload)
	return nil
}

func (db *DB) currentNotifyConn() *pgx.Conn {
	db.notifyMu.Lock()
	defer db.notifyMu.Unlock()
	return db.notifyConn
}
