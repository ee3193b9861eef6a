package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/storage"
	"github.com/ashita-ai/menusync/internal/testutil"
	"github.com/ashita-ai/menusync/migrations"
)

// testDB holds a shared test database connection for all tests in this
// package. It is nil when no container runtime is available.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc, err := testutil.StartPostgres()
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres tests disabled: %v\n", err)
		os.Exit(m.Run())
	}

	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

// requireDB skips the test without a database and clears both tables.
func requireDB(t *testing.T) *storage.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("no container runtime")
	}
	_, err := testDB.Pool().Exec(context.Background(), `TRUNCATE items, wallet`)
	require.NoError(t, err)
	return testDB
}

func TestItemsRoundTrip(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	items, err := db.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, db.UpsertItem(ctx, 1, model.CatalogItem{
		ID:     "tea",
		Name:   "Tea",
		Prices: map[string]float64{"kisses": 1.5},
		Extra:  map[string]any{"spicy": true},
	}))
	require.NoError(t, db.UpsertItem(ctx, 0, model.CatalogItem{ID: "soup", Name: "Soup"}))

	items, err = db.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "soup", items[0]["id"])
	assert.Equal(t, "tea", items[1]["id"])
	assert.Equal(t, true, items[1]["spicy"])
	assert.Equal(t, map[string]any{"kisses": 1.5}, items[1]["prices"])
}

func TestUpsertItemReplacesDocument(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertItem(ctx, 0, model.CatalogItem{
		ID: "a", Name: "A", Extra: map[string]any{"legacy": 1},
	}))
	require.NoError(t, db.UpsertItem(ctx, 3, model.CatalogItem{ID: "a", Name: "A2"}))

	items, err := db.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A2", items[0]["name"])
	assert.NotContains(t, items[0], "legacy")
}

func TestListItemsOrdersNewestFirstWithinPosition(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `
		INSERT INTO items (id, doc, position, created_at) VALUES
			('old', '{"name":"Old"}', 0, now() - interval '1 hour'),
			('new', '{"name":"New"}', 0, now()),
			('later', 'null', 1, now())`)
	require.NoError(t, err)

	items, err := db.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []any{"new", "old", "later"}, []any{items[0]["id"], items[1]["id"], items[2]["id"]})
	assert.Equal(t, map[string]any{"id": "later"}, items[2])
}

func TestDeleteItems(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	for i, id := range []model.ItemID{"a", "b", "c"} {
		require.NoError(t, db.UpsertItem(ctx, i, model.CatalogItem{ID: id, Name: string(id)}))
	}
	require.NoError(t, db.DeleteItems(ctx, []model.ItemID{"a", "c", "missing"}))
	require.NoError(t, db.DeleteItems(ctx, nil))

	items, err := db.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0]["id"])
}

func TestAuxRoundTrip(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	_, _, err := db.LoadAux(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, db.SaveAux(ctx, model.Wallet{"kisses": 10, "dishes": 1}, nil))
	wallet, tasks, err := db.LoadAux(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"kisses": 10.0, "dishes": 1.0}, wallet)
	assert.Empty(t, tasks)

	require.NoError(t, db.SaveAux(ctx, model.Wallet{"kisses": 9}, model.Tasks{"dishes": 2}))
	wallet, tasks, err = db.LoadAux(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"kisses": 9.0}, wallet)
	assert.Equal(t, map[string]any{"dishes": 2.0}, tasks)
}

func TestTriggersPublishChanges(t *testing.T) {
	db := requireDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, db.Listen(ctx, storage.ChannelChanges))
	require.NoError(t, db.UpsertItem(ctx, 0, model.CatalogItem{ID: "x", Name: "X"}))

	// Earlier tests may have queued notifications; read until ours arrives.
	for {
		channel, payload, err := db.WaitForNotification(ctx)
		require.NoError(t, err)
		assert.Equal(t, storage.ChannelChanges, channel)
		if payload == "items:INSERT" {
			break
		}
	}
}

func TestWaitForChange(t *testing.T) {
	db := requireDB(t)
	require.True(t, db.HasNotifyConn())

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errCh <- db.WaitForChange(ctx)
	}()

	// Keep writing until the waiter has subscribed and seen one.
	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			assert.NoError(t, err)
			return
		case <-ticker.C:
			require.NoError(t, db.SaveAux(context.Background(), model.Wallet{"kisses": 1}, nil))
		case <-deadline:
			t.Fatal("no change observed")
		}
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := requireDB(t)
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))
}
