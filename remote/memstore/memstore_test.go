package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/remote"
)

func TestCreateAssignsServerFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.Create(ctx, remote.TableLeads, remote.Record{"show_id": "show-1", "contact_name": "Ana"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID())
	assert.NotEmpty(t, rec["created_at"])

	got, ok := s.Get(remote.TableLeads, rec.ID())
	require.True(t, ok)
	assert.Equal(t, "Ana", got["contact_name"])
}

func TestUpdateMergesPartial(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed(remote.TableLeads, remote.Record{"id": "l1", "show_id": "show-1", "contact_name": "Ana", "notes": "old"})

	require.NoError(t, s.Update(ctx, remote.TableLeads, "l1", remote.Record{"notes": "new"}))

	got, _ := s.Get(remote.TableLeads, "l1")
	assert.Equal(t, "new", got["notes"])
	assert.Equal(t, "Ana", got["contact_name"], "unset fields are untouched")
	assert.NotEmpty(t, got["updated_at"])
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), remote.TableLeads, "nope", remote.Record{"notes": "x"})
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindNotFound))
}

func TestQueryFiltersByShow(t *testing.T) {
	s := New()
	s.Seed(remote.TableLeads, remote.Record{"id": "a", "show_id": "show-1"})
	s.Seed(remote.TableLeads, remote.Record{"id": "b", "show_id": "show-2"})

	recs, err := s.Query(context.Background(), remote.TableLeads, remote.Filter{ShowID: "show-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID())
}

func TestOfflineAndInjectedFailures(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.SetOffline(true)
	_, err := s.Create(ctx, remote.TableLeads, remote.Record{"show_id": "show-1"})
	assert.True(t, syncErrors.IsUnavailable(err))
	s.SetOffline(false)

	s.FailAfter(1, 1)
	_, err = s.Create(ctx, remote.TableLeads, remote.Record{"show_id": "show-1"})
	assert.NoError(t, err, "skipped call passes")
	_, err = s.Create(ctx, remote.TableLeads, remote.Record{"show_id": "show-1"})
	assert.True(t, syncErrors.IsUnavailable(err), "next call fails")
	_, err = s.Create(ctx, remote.TableLeads, remote.Record{"show_id": "show-1"})
	assert.NoError(t, err, "failure budget exhausted")
}

func TestSubscribeScopesToTableAndShow(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, remote.TableLeads, remote.Filter{ShowID: "show-1"})
	require.NoError(t, err)
	defer sub.Close()

	_, err = s.Create(ctx, remote.TableLeads, remote.Record{"show_id": "show-2", "contact_name": "other"})
	require.NoError(t, err)
	created, err := s.Create(ctx, remote.TableLeads, remote.Record{"show_id": "show-1", "contact_name": "mine"})
	require.NoError(t, err)
	_, err = s.Create(ctx, remote.TableUsers, remote.Record{"show_id": "show-1", "name": "staff"})
	require.NoError(t, err)

	select {
	case change := <-sub.Changes():
		assert.Equal(t, remote.TableLeads, change.Table)
		assert.Equal(t, created.ID(), change.ID)
		assert.Equal(t, remote.ActionCreate, change.Action)
	case <-time.After(time.Second):
		t.Fatal("expected a change")
	}
	select {
	case change := <-sub.Changes():
		t.Fatalf("unexpected extra change: %+v", change)
	default:
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := New()
	sub, err := s.Subscribe(context.Background(), remote.TableLeads, remote.Filter{})
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, open := <-sub.Changes()
	assert.False(t, open)
}
