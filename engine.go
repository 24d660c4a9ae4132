package boothkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/lead"
	"github.com/boothkit/boothkit/logging"
	"github.com/boothkit/boothkit/remote"
)

// Engine drains the mutation queue against the remote store and reconciles
// server-assigned identifiers back into the local entity store.
type Engine struct {
	local   LocalStore
	queue   MutationQueue
	remote  remote.Store
	logger  *logging.Logger
	metrics MetricsCollector

	draining atomic.Bool
}

// DrainResult describes the outcome of one drain.
type DrainResult struct {
	// Skipped is true when another drain was already in progress and
	// this trigger became a no-op.
	Skipped bool

	// Dispatched counts mutations acknowledged and removed.
	Dispatched int

	// Remaining counts mutations left queued, either behind a failed
	// item or enqueued after the drain snapshot.
	Remaining int

	// Rewrites maps temporary ids to the permanent ids the remote
	// assigned during this drain.
	Rewrites map[string]string

	StartTime time.Time
	Duration  time.Duration
}

// NewEngine creates a sync engine. Metrics may be nil.
func NewEngine(local LocalStore, queue MutationQueue, store remote.Store, metrics MetricsCollector) *Engine {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Engine{
		local:   local,
		queue:   queue,
		remote:  store,
		logger:  logging.WithComponent(logging.Component("engine")),
		metrics: metrics,
	}
}

// Drain processes the pending mutation queue in FIFO order, strictly
// sequentially. Only one drain runs per process; concurrent triggers are
// no-ops. The first network-layer dispatch failure aborts the remainder so
// retries happen in the original order. Already-acknowledged items stay
// removed; at-least-once delivery is the contract, not exactly-once.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	result := &DrainResult{
		StartTime: time.Now(),
		Rewrites:  map[string]string{},
	}

	if !e.draining.CompareAndSwap(false, true) {
		result.Skipped = true
		return result, nil
	}
	defer e.draining.Store(false)
	defer func() {
		result.Duration = time.Since(result.StartTime)
		e.metrics.RecordDrain(result.Dispatched, result.Remaining, result.Duration)
	}()

	pending, err := e.queue.Pending(ctx)
	if err != nil {
		e.metrics.RecordSyncErrors("drain", "queue_read")
		return result, syncErrors.WrapOpComponent(err, syncErrors.OpDrain, "engine")
	}
	result.Remaining = len(pending)
	if len(pending) == 0 {
		return result, nil
	}

	e.logger.InfoContext(ctx, "draining mutation queue", slog.Int("pending", len(pending)))

	for _, m := range pending {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		// Earlier creates in this same drain may have re-keyed the
		// target lead; the durable rewrite in the queue covers a crash,
		// this covers the snapshot already in hand.
		if perm, ok := result.Rewrites[m.LeadID]; ok {
			m.LeadID = perm
		}

		if err := e.dispatch(ctx, m, result); err != nil {
			if syncErrors.IsKind(err, syncErrors.KindNotFound) {
				// The target is gone remotely; retrying can never
				// succeed. Last-writer-wins says drop it.
				e.logger.WarnContext(ctx, "dropping mutation for missing remote record",
					slog.String("kind", string(m.Kind)),
					slog.String("lead_id", m.LeadID),
				)
				if rmErr := e.queue.Remove(ctx, m.QueueID); rmErr != nil {
					return result, syncErrors.WrapOpComponent(rmErr, syncErrors.OpDrain, "engine")
				}
				result.Dispatched++
				result.Remaining--
				continue
			}

			// Conservative retry-in-order: leave this item and
			// everything behind it queued for the next drain.
			e.metrics.RecordSyncErrors("drain", "dispatch_failure")
			e.logger.LogError(ctx, err, "drain aborted",
				slog.String("kind", string(m.Kind)),
				slog.String("lead_id", m.LeadID),
				slog.Int("dispatched", result.Dispatched),
			)
			return result, err
		}

		if err := e.queue.Remove(ctx, m.QueueID); err != nil {
			return result, syncErrors.WrapOpComponent(err, syncErrors.OpDrain, "engine")
		}
		result.Dispatched++
		result.Remaining--
	}

	return result, nil
}

// dispatch sends one mutation to the remote store and applies its local
// side effects.
func (e *Engine) dispatch(ctx context.Context, m Mutation, result *DrainResult) error {
	switch m.Kind {
	case MutationCreate:
		created, err := e.remote.Create(ctx, remote.TableLeads, m.Payload)
		if err != nil {
			return err
		}
		permID := created.ID()
		if permID == "" {
			return syncErrors.New(syncErrors.OpCreate, fmt.Errorf("remote create returned no id"))
		}
		if err := e.rewriteID(ctx, m.LeadID, permID, created); err != nil {
			return err
		}
		result.Rewrites[m.LeadID] = permID
		return nil

	case MutationUpdate:
		return e.remote.Update(ctx, remote.TableLeads, m.LeadID, m.Payload)

	case MutationDelete:
		return e.remote.Delete(ctx, remote.TableLeads, m.LeadID)

	default:
		return syncErrors.New(syncErrors.OpDrain, fmt.Errorf("unknown mutation kind %q", m.Kind))
	}
}

// rewriteID replaces the temporary-id record with the permanent-id record
// the remote returned, preserving all other fields, and re-points any queued
// mutations still referencing the temporary id.
func (e *Engine) rewriteID(ctx context.Context, tempID, permID string, created remote.Record) error {
	if err := e.queue.RewriteLeadID(ctx, tempID, permID); err != nil {
		return err
	}

	if err := e.local.DeleteLead(ctx, tempID); err != nil {
		// Cache-level failure: log and keep going, the post-drain
		// reload restores consistency.
		e.logger.LogError(ctx, err, "failed to drop temporary record", slog.String("lead_id", tempID))
	}
	if err := e.local.PutLead(ctx, lead.FromRecord(created)); err != nil {
		e.logger.LogError(ctx, err, "failed to store reconciled record", slog.String("lead_id", permID))
	}
	return nil
}
