// Package boothkit is an offline-first data layer for trade-show lead
// capture. Booth staff keep recording leads without connectivity; writes are
// applied optimistically to a durable local cache, queued while offline, and
// reconciled against a remote store when connectivity returns, while a
// push-based change feed keeps every connected client fresh.
package boothkit

import (
	"context"
	"time"

	"github.com/boothkit/boothkit/lead"
	"github.com/boothkit/boothkit/remote"
)

// MutationKind tags a queued write operation.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Mutation is one pending write not yet acknowledged by the remote store.
// The payload carries the operation's effect in remote vocabulary; deletes
// carry none. LeadID may be temporary (for operations queued before the
// lead's create was acknowledged) or permanent.
type Mutation struct {
	QueueID    int64
	Kind       MutationKind
	ShowID     string
	LeadID     string
	Payload    remote.Record
	EnqueuedAt time.Time
}

// LocalStore is the durable, show-partitioned entity cache. It survives
// process restarts and hydrates the UI before any network round-trip.
type LocalStore interface {
	// SaveLeads atomically replaces one show's lead partition.
	SaveLeads(ctx context.Context, showID string, leads []lead.Lead) error

	// Leads returns all cached leads for a show; an absent partition
	// yields an empty slice, not an error.
	Leads(ctx context.Context, showID string) ([]lead.Lead, error)

	// PutLead upserts a single lead by id.
	PutLead(ctx context.Context, l lead.Lead) error

	// DeleteLead removes a lead across all partitions.
	DeleteLead(ctx context.Context, id string) error

	// SaveUsers atomically replaces one show's staff partition.
	SaveUsers(ctx context.Context, showID string, users []lead.User) error

	// Users returns all cached staff for a show.
	Users(ctx context.Context, showID string) ([]lead.User, error)

	// SetLastSync records the last successful sync time for a show.
	SetLastSync(ctx context.Context, showID string, t time.Time) error

	// LastSync returns the last successful sync time, zero when unknown.
	LastSync(ctx context.Context, showID string) (time.Time, error)

	Close() error
}

// MutationQueue is the ordered, persistent log of pending writes. Items are
// removed only after remote acknowledgment; a crash mid-drain leaves them in
// place for retry.
type MutationQueue interface {
	// Enqueue appends a mutation and returns its queue-local id.
	Enqueue(ctx context.Context, m Mutation) (int64, error)

	// Pending returns outstanding mutations in enqueue order. Re-reading
	// without intervening mutation yields the same sequence.
	Pending(ctx context.Context) ([]Mutation, error)

	// Remove deletes a single acknowledged item.
	Remove(ctx context.Context, queueID int64) error

	// RemoveForLead discards every queued mutation targeting a lead.
	// Used when a never-synced lead is deleted locally.
	RemoveForLead(ctx context.Context, leadID string) (int, error)

	// RewriteLeadID re-points queued mutations from a temporary id to the
	// permanent id assigned by the remote, keeping the rewrite durable
	// across a crash mid-drain.
	RewriteLeadID(ctx context.Context, oldID, newID string) error

	// Size counts outstanding items, shown as the pending-changes badge.
	Size(ctx context.Context) (int, error)
}

// MetricsCollector provides hooks for observability.
type MetricsCollector interface {
	// RecordDrain records the outcome of one queue drain.
	RecordDrain(dispatched, remaining int, d time.Duration)

	// RecordReload records a full refresh from the remote store.
	RecordReload(records int, d time.Duration)

	// RecordQueueDepth records the pending-mutation count.
	RecordQueueDepth(n int)

	// RecordSyncErrors records sync operation errors.
	RecordSyncErrors(op, reason string)
}

// NoOpMetricsCollector is a stub implementation that discards metrics.
type NoOpMetricsCollector struct{}

func (*NoOpMetricsCollector) RecordDrain(dispatched, remaining int, d time.Duration) {}
func (*NoOpMetricsCollector) RecordReload(records int, d time.Duration)              {}
func (*NoOpMetricsCollector) RecordQueueDepth(n int)                                 {}
func (*NoOpMetricsCollector) RecordSyncErrors(op, reason string)                     {}
