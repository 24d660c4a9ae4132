package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/remote"
)

// setupTestStore connects to the database named by POSTGRES_TEST_CONNECTION,
// skipping the suite when none is available.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	connStr := os.Getenv("POSTGRES_TEST_CONNECTION")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_CONNECTION not set, skipping postgres tests")
	}

	store, err := New(&Config{
		ConnectionString: connStr,
		MaxOpenConns:     5,
		MaxIdleConns:     2,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = store.db.Exec("DELETE FROM booth_leads WHERE show_id LIKE 'test-%'")
		_, _ = store.db.Exec("DELETE FROM booth_users WHERE show_id LIKE 'test-%'")
		_ = store.Close()
	})
	return store
}

func TestCreateAndQuery(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, remote.TableLeads, remote.Record{
		"show_id":      "test-show-1",
		"contact_name": "Ana Flores",
		"temperature":  "hot",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID())
	assert.NotEmpty(t, created["created_at"])

	recs, err := store.Query(ctx, remote.TableLeads, remote.Filter{ShowID: "test-show-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, created.ID(), recs[0].ID())
	assert.Equal(t, "Ana Flores", recs[0]["contact_name"])
}

func TestUpdateMergesPartial(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, remote.TableLeads, remote.Record{
		"show_id":      "test-show-1",
		"contact_name": "Ana",
		"notes":        "old",
	})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, remote.TableLeads, created.ID(), remote.Record{"notes": "new"}))

	recs, err := store.Query(ctx, remote.TableLeads, remote.Filter{ShowID: "test-show-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0]["notes"])
	assert.Equal(t, "Ana", recs[0]["contact_name"])
	assert.NotEmpty(t, recs[0]["updated_at"])
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, remote.TableLeads, "missing", remote.Record{"notes": "x"})
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindNotFound))

	err = store.Delete(ctx, remote.TableLeads, "missing")
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindNotFound))
}

func TestUnknownTableIsRejected(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Query(context.Background(), "secrets", remote.Filter{})
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindValidation))
}

func TestSubscribeReceivesTriggeredChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping notification test in short mode")
	}
	store := setupTestStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, remote.TableLeads, remote.Filter{ShowID: "test-show-sub"})
	require.NoError(t, err)
	defer sub.Close()

	// The LISTEN connection needs a moment to be established.
	time.Sleep(500 * time.Millisecond)

	created, err := store.Create(ctx, remote.TableLeads, remote.Record{
		"show_id":      "test-show-sub",
		"contact_name": "Ana",
	})
	require.NoError(t, err)

	select {
	case change := <-sub.Changes():
		assert.Equal(t, remote.TableLeads, change.Table)
		assert.Equal(t, created.ID(), change.ID)
		assert.Equal(t, remote.ActionCreate, change.Action)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	// Other shows are filtered out.
	_, err = store.Create(ctx, remote.TableLeads, remote.Record{"show_id": "test-show-other", "contact_name": "Ben"})
	require.NoError(t, err)

	select {
	case change := <-sub.Changes():
		t.Fatalf("unexpected change: %+v", change)
	case <-time.After(time.Second):
	}
}
