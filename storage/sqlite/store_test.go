package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boothkit/boothkit"
	"github.com/boothkit/boothkit/lead"
	"github.com/boothkit/boothkit/remote"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booth.db")
	store, err := NewWithDataSource(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleLead(id, showID string) lead.Lead {
	return lead.Lead{
		ID:          id,
		ShowID:      showID,
		ContactName: "J. Smith",
		StoreName:   "Acme",
		Temperature: lead.Hot,
		CreatedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewRequiresDataSource(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestLeadsEmptyPartition(t *testing.T) {
	store := newTestStore(t)

	leads, err := store.Leads(context.Background(), "no-such-show")
	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.NotNil(t, leads)
}

func TestSaveLeadsReplacesPartition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveLeads(ctx, "show-a", []lead.Lead{
		sampleLead("a1", "show-a"),
		sampleLead("a2", "show-a"),
	}))
	require.NoError(t, store.SaveLeads(ctx, "show-b", []lead.Lead{
		sampleLead("b1", "show-b"),
	}))

	// Full reload of show-a must drop stale rows but leave show-b alone.
	require.NoError(t, store.SaveLeads(ctx, "show-a", []lead.Lead{
		sampleLead("a3", "show-a"),
	}))

	leadsA, err := store.Leads(ctx, "show-a")
	require.NoError(t, err)
	require.Len(t, leadsA, 1)
	assert.Equal(t, "a3", leadsA[0].ID)

	leadsB, err := store.Leads(ctx, "show-b")
	require.NoError(t, err)
	require.Len(t, leadsB, 1)
	assert.Equal(t, "b1", leadsB[0].ID)
}

func TestPutLeadUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := sampleLead("x1", "show-a")
	require.NoError(t, store.PutLead(ctx, l))

	l.Temperature = lead.Warm
	require.NoError(t, store.PutLead(ctx, l))

	leads, err := store.Leads(ctx, "show-a")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.Warm, leads[0].Temperature)
}

func TestDeleteLeadAcrossPartitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutLead(ctx, sampleLead("x1", "show-a")))
	require.NoError(t, store.DeleteLead(ctx, "x1"))

	leads, err := store.Leads(ctx, "show-a")
	require.NoError(t, err)
	assert.Empty(t, leads)

	// Deleting a missing id is not an error.
	assert.NoError(t, store.DeleteLead(ctx, "x1"))
}

func TestLeadsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booth.db")
	ctx := context.Background()

	store, err := NewWithDataSource(path)
	require.NoError(t, err)
	require.NoError(t, store.PutLead(ctx, sampleLead("x1", "show-a")))
	require.NoError(t, store.Close())

	reopened, err := NewWithDataSource(path)
	require.NoError(t, err)
	defer reopened.Close()

	leads, err := reopened.Leads(ctx, "show-a")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "x1", leads[0].ID)
}

func TestUsersRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	users := []lead.User{
		{ID: "u1", ShowID: "show-a", Name: "Dana", Passcode: "4242"},
		{ID: "u2", ShowID: "show-a", Name: "Sam", Passcode: "1111"},
	}
	require.NoError(t, store.SaveUsers(ctx, "show-a", users))

	got, err := store.Users(ctx, "show-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, users, got)

	require.NoError(t, store.SaveUsers(ctx, "show-a", users[:1]))
	got, err = store.Users(ctx, "show-a")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLastSync(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.LastSync(ctx, "show-a")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SetLastSync(ctx, "show-a", now))

	got, err = store.LastSync(ctx, "show-a")
	require.NoError(t, err)
	assert.True(t, got.Equal(now))
}

func TestClosedStore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close()) // idempotent

	_, err := store.Leads(context.Background(), "show-a")
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.Pending(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestQueueFIFOAndRereadStability(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"l1", "l2", "l3"} {
		_, err := store.Enqueue(ctx, boothkit.Mutation{
			Kind:    boothkit.MutationCreate,
			LeadID:  id,
			ShowID:  "show-a",
			Payload: remote.Record{"contact_name": "n", "seq": i},
		})
		require.NoError(t, err)
	}

	first, err := store.Pending(ctx)
	require.NoError(t, err)
	second, err := store.Pending(ctx)
	require.NoError(t, err)

	require.Len(t, first, 3)
	assert.Equal(t, first, second, "re-reads must yield the same order")
	assert.Equal(t, "l1", first[0].LeadID)
	assert.Equal(t, "l2", first[1].LeadID)
	assert.Equal(t, "l3", first[2].LeadID)
	assert.True(t, first[0].QueueID < first[1].QueueID)
}

func TestQueueRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.Enqueue(ctx, boothkit.Mutation{Kind: boothkit.MutationDelete, LeadID: "l1", ShowID: "s"})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, boothkit.Mutation{Kind: boothkit.MutationDelete, LeadID: "l2", ShowID: "s"})
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, id1))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "l2", pending[0].LeadID)

	n, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueueRemoveForLead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tempID := lead.NewTempID()
	_, err := store.Enqueue(ctx, boothkit.Mutation{Kind: boothkit.MutationCreate, LeadID: tempID, ShowID: "s", Payload: remote.Record{"contact_name": "x"}})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, boothkit.Mutation{Kind: boothkit.MutationUpdate, LeadID: tempID, ShowID: "s", Payload: remote.Record{"temperature": "warm"}})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, boothkit.Mutation{Kind: boothkit.MutationUpdate, LeadID: "other", ShowID: "s", Payload: remote.Record{"notes": "keep"}})
	require.NoError(t, err)

	n, err := store.RemoveForLead(ctx, tempID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "other", pending[0].LeadID)
}

func TestQueueRewriteLeadID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tempID := lead.NewTempID()
	_, err := store.Enqueue(ctx, boothkit.Mutation{Kind: boothkit.MutationUpdate, LeadID: tempID, ShowID: "s", Payload: remote.Record{"temperature": "warm"}})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, boothkit.Mutation{Kind: boothkit.MutationDelete, LeadID: tempID, ShowID: "s"})
	require.NoError(t, err)

	require.NoError(t, store.RewriteLeadID(ctx, tempID, "perm-1"))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, m := range pending {
		assert.Equal(t, "perm-1", m.LeadID)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booth.db")
	ctx := context.Background()

	store, err := NewWithDataSource(path)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, boothkit.Mutation{
		Kind:    boothkit.MutationCreate,
		LeadID:  lead.NewTempID(),
		ShowID:  "s",
		Payload: remote.Record{"contact_name": "J. Smith"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewWithDataSource(path)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, boothkit.MutationCreate, pending[0].Kind)
	assert.Equal(t, "J. Smith", pending[0].Payload["contact_name"])
	assert.False(t, pending[0].EnqueuedAt.IsZero())
}
