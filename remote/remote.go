// Package remote defines the contract boothkit expects from a remote store.
// The store is a black box: a flat-record CRUD interface plus per-show change
// subscriptions. Implementations can sit on HTTP, Postgres, or memory.
package remote

import "context"

// Table names used by the lead-capture domain.
const (
	TableLeads = "leads"
	TableUsers = "users"
)

// Change actions reported by subscriptions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Record is a flat remote-vocabulary record. Field names follow the remote
// store's snake_case convention; translation to domain types happens at the
// boundary, not here.
type Record map[string]any

// ID returns the record's id field, if present.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter restricts queries and subscriptions to one show's partition.
type Filter struct {
	ShowID string
}

// Change is a single push notification from the remote store.
type Change struct {
	Table  string
	ShowID string
	ID     string
	Action string
}

// Subscription yields change events until closed. Consumers own the
// lifecycle explicitly; closing tears down the underlying channel.
type Subscription interface {
	// Changes returns the event channel. It is closed when the
	// subscription ends, after which Err reports why.
	Changes() <-chan Change

	// Err returns the terminal error, if any, once Changes is closed.
	Err() error

	// Close tears down the subscription.
	Close() error
}

// Store is the remote CRUD+subscribe interface consumed by the sync core.
type Store interface {
	// Create inserts a record and returns it with the server-assigned id
	// and timestamps filled in.
	Create(ctx context.Context, table string, rec Record) (Record, error)

	// Update applies a partial record to an existing row.
	Update(ctx context.Context, table, id string, partial Record) error

	// Delete removes a row.
	Delete(ctx context.Context, table, id string) error

	// Query returns all records matching the filter.
	Query(ctx context.Context, table string, f Filter) ([]Record, error)

	// Subscribe starts a change feed for one table scoped to the filter.
	Subscribe(ctx context.Context, table string, f Filter) (Subscription, error)

	// Close releases the store's resources.
	Close() error
}
