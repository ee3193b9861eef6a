package menusync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashita-ai/menusync/internal/config"
	"github.com/ashita-ai/menusync/internal/listener"
	"github.com/ashita-ai/menusync/internal/service/menu"
	"github.com/ashita-ai/menusync/internal/storage"
	"github.com/ashita-ai/menusync/internal/storage/sqlite"
	"github.com/ashita-ai/menusync/migrations"
)

// openedStore is a migrated store together with the source of its
// out-of-band change signals.
type openedStore struct {
	store  menu.Store
	source listener.Source
	close  func()
}

// openStore connects to the configured store and brings its schema up to date.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*openedStore, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		w, err := sqlite.NewWatcher(st.Path())
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		return &openedStore{
			store:  st,
			source: w,
			close: func() {
				_ = w.Close()
				if err := st.Close(); err != nil {
					logger.Warn("sqlite close failed", "error", err)
				}
			},
		}, nil

	case config.StorePostgres:
		// LISTEN needs a session-level connection; without a separate notify
		// URL the query URL is assumed to be direct.
		notifyDSN := cfg.NotifyURL
		if notifyDSN == "" {
			notifyDSN = cfg.DatabaseURL
		}
		db, err := storage.New(ctx, cfg.DatabaseURL, notifyDSN, logger)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close(context.Background())
			return nil, err
		}
		return &openedStore{
			store:  db,
			source: db,
			close:  func() { db.Close(context.Background()) },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
