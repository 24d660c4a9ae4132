package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boothkit/boothkit"
	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/remote"
)

// Mutation queue operations. Ordering is FIFO by the autoincrementing
// queue_id, which preserves insertion order even when two mutations share an
// enqueue timestamp. An item stays queued until Remove is called after
// remote acknowledgment; a crash mid-drain leaves it in place for retry.

// Enqueue appends a mutation and returns its queue-local id.
func (s *Store) Enqueue(ctx context.Context, m boothkit.Mutation) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var payload any
	if m.Payload != nil {
		data, err := json.Marshal(m.Payload)
		if err != nil {
			return 0, syncErrors.WrapOpComponentKind(err, syncErrors.OpEnqueue, component, syncErrors.KindStorage)
		}
		payload = string(data)
	}

	enqueuedAt := m.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue (kind, lead_id, show_id, payload, enqueued_at) VALUES (?, ?, ?, ?, ?)`,
		string(m.Kind), m.LeadID, m.ShowID, payload, enqueuedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, syncErrors.WrapOpComponentKind(err, syncErrors.OpEnqueue, component, syncErrors.KindStorage)
	}

	queueID, err := res.LastInsertId()
	if err != nil {
		return 0, syncErrors.WrapOpComponentKind(err, syncErrors.OpEnqueue, component, syncErrors.KindStorage)
	}
	return queueID, nil
}

// Pending returns outstanding mutations in enqueue order.
func (s *Store) Pending(ctx context.Context) ([]boothkit.Mutation, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT queue_id, kind, lead_id, show_id, payload, enqueued_at
		 FROM sync_queue ORDER BY queue_id ASC`)
	if err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	defer rows.Close()

	var mutations []boothkit.Mutation
	for rows.Next() {
		var (
			m          boothkit.Mutation
			kind       string
			payload    *string
			enqueuedAt string
		)
		if err := rows.Scan(&m.QueueID, &kind, &m.LeadID, &m.ShowID, &payload, &enqueuedAt); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
		}
		m.Kind = boothkit.MutationKind(kind)
		if payload != nil {
			var rec remote.Record
			if err := json.Unmarshal([]byte(*payload), &rec); err != nil {
				return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
			}
			m.Payload = rec
		}
		if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
			m.EnqueuedAt = t
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	return mutations, nil
}

// Remove deletes a single acknowledged item.
func (s *Store) Remove(ctx context.Context, queueID int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE queue_id = ?`, queueID)
	return syncErrors.WrapOpComponentKind(err, syncErrors.OpDelete, component, syncErrors.KindStorage)
}

// RemoveForLead discards every queued mutation targeting a lead and reports
// how many were dropped.
func (s *Store) RemoveForLead(ctx context.Context, leadID string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE lead_id = ?`, leadID)
	if err != nil {
		return 0, syncErrors.WrapOpComponentKind(err, syncErrors.OpDelete, component, syncErrors.KindStorage)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, syncErrors.WrapOpComponentKind(err, syncErrors.OpDelete, component, syncErrors.KindStorage)
	}
	return int(n), nil
}

// RewriteLeadID re-points queued mutations from a temporary id to the
// permanent id assigned by the remote. Doing this in storage keeps the
// rewrite durable if the process dies between two drain steps.
func (s *Store) RewriteLeadID(ctx context.Context, oldID, newID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET lead_id = ? WHERE lead_id = ?`, newID, oldID)
	return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
}

// Size counts outstanding items.
func (s *Store) Size(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	return n, nil
}
