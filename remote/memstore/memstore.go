// Package memstore provides an in-memory remote.Store. It backs the demo
// CLI and the sync test suites, with toggles for simulating connectivity
// loss and one-shot dispatch failures.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/remote"
)

const component = "remote/memstore"

// Store is a mutex-guarded in-memory remote store.
type Store struct {
	mu      sync.Mutex
	tables  map[string]map[string]remote.Record // table -> id -> record
	subs    []*subscription
	calls   []string
	offline bool
	skipN   int
	failN   int
	closed  bool
}

var _ remote.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string]map[string]remote.Record),
	}
}

// SetOffline makes every subsequent operation fail with an unavailable
// error until switched back.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// FailNext makes the next n write/query operations fail with an
// unavailable error, then recover.
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipN = 0
	s.failN = n
}

// FailAfter lets the next skip operations through, then fails the n after
// them. Used to break a drain partway.
func (s *Store) FailAfter(skip, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipN = skip
	s.failN = n
}

// Calls returns the operations dispatched so far, formatted as
// "op table id". Tests assert on it to prove a path never hit the remote.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Seed inserts a record directly, bypassing call tracking and
// notifications. Test setup only.
func (s *Store) Seed(table string, rec remote.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]remote.Record)
	}
	s.tables[table][rec.ID()] = rec.Clone()
}

// Get returns one record directly. Test assertions only.
func (s *Store) Get(table, id string) (remote.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tables[table][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (s *Store) gate(op syncErrors.Operation, table, id string) error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	s.calls = append(s.calls, fmt.Sprintf("%s %s %s", op, table, id))
	if s.offline {
		return syncErrors.NewUnavailable(op, component, fmt.Errorf("offline"))
	}
	if s.skipN > 0 {
		s.skipN--
	} else if s.failN > 0 {
		s.failN--
		return syncErrors.NewUnavailable(op, component, fmt.Errorf("injected failure"))
	}
	return nil
}

// Create inserts a record and returns it with a server-assigned id and
// created_at timestamp.
func (s *Store) Create(ctx context.Context, table string, rec remote.Record) (remote.Record, error) {
	s.mu.Lock()
	if err := s.gate(syncErrors.OpCreate, table, ""); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	stored := rec.Clone()
	stored["id"] = uuid.NewString()
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]remote.Record)
	}
	s.tables[table][stored.ID()] = stored

	change := remote.Change{
		Table:  table,
		ShowID: showID(stored),
		ID:     stored.ID(),
		Action: remote.ActionCreate,
	}
	s.mu.Unlock()

	s.broadcast(change)
	return stored.Clone(), nil
}

// Update applies a partial record to an existing row.
func (s *Store) Update(ctx context.Context, table, id string, partial remote.Record) error {
	s.mu.Lock()
	if err := s.gate(syncErrors.OpUpdate, table, id); err != nil {
		s.mu.Unlock()
		return err
	}

	existing, ok := s.tables[table][id]
	if !ok {
		s.mu.Unlock()
		return syncErrors.NewNotFound(syncErrors.OpUpdate, component, fmt.Errorf("%s/%s", table, id))
	}
	for k, v := range partial {
		existing[k] = v
	}
	existing["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	change := remote.Change{
		Table:  table,
		ShowID: showID(existing),
		ID:     id,
		Action: remote.ActionUpdate,
	}
	s.mu.Unlock()

	s.broadcast(change)
	return nil
}

// Delete removes a row.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	s.mu.Lock()
	if err := s.gate(syncErrors.OpDelete, table, id); err != nil {
		s.mu.Unlock()
		return err
	}

	existing, ok := s.tables[table][id]
	if !ok {
		s.mu.Unlock()
		return syncErrors.NewNotFound(syncErrors.OpDelete, component, fmt.Errorf("%s/%s", table, id))
	}
	delete(s.tables[table], id)

	change := remote.Change{
		Table:  table,
		ShowID: showID(existing),
		ID:     id,
		Action: remote.ActionDelete,
	}
	s.mu.Unlock()

	s.broadcast(change)
	return nil
}

// Query returns all records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, table string, f remote.Filter) ([]remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate(syncErrors.OpQuery, table, ""); err != nil {
		return nil, err
	}

	var out []remote.Record
	for _, rec := range s.tables[table] {
		if f.ShowID != "" && showID(rec) != f.ShowID {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Subscribe starts a change feed for one table scoped to the filter.
func (s *Store) Subscribe(ctx context.Context, table string, f remote.Filter) (remote.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.offline {
		return nil, syncErrors.NewUnavailable(syncErrors.OpSubscribe, component, fmt.Errorf("offline"))
	}

	sub := &subscription{
		store:  s,
		table:  table,
		filter: f,
		ch:     make(chan remote.Change, 16),
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Close releases the store's resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, sub := range s.subs {
		sub.closeLocked()
	}
	s.subs = nil
	return nil
}

func (s *Store) broadcast(change remote.Change) {
	s.mu.Lock()
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(change)
	}
}

func (s *Store) dropSub(target *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == target {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

func showID(rec remote.Record) string {
	v, _ := rec["show_id"].(string)
	return v
}

type subscription struct {
	store  *Store
	table  string
	filter remote.Filter

	mu     sync.Mutex
	ch     chan remote.Change
	err    error
	closed bool
}

var _ remote.Subscription = (*subscription)(nil)

func (s *subscription) Changes() <-chan remote.Change { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.store.dropSub(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeInner()
	return nil
}

func (s *subscription) closeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeInner()
}

func (s *subscription) closeInner() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *subscription) deliver(change remote.Change) {
	if change.Table != s.table {
		return
	}
	if s.filter.ShowID != "" && change.ShowID != s.filter.ShowID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- change:
	default:
		// Slow consumer: drop rather than block a writer. The periodic
		// reload is the freshness backstop.
	}
}
