package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/remote"
)

// notifyPayload is the JSON the row triggers publish.
type notifyPayload struct {
	Table  string `json:"table"`
	ShowID string `json:"show_id"`
	ID     string `json:"id"`
	Action string `json:"action"`
}

// Subscribe opens a LISTEN connection and streams matching row changes.
// The pq.Listener reconnects on its own; notifications raised while the
// connection is down are lost, which the client's periodic reload covers.
func (s *Store) Subscribe(ctx context.Context, table string, f remote.Filter) (remote.Subscription, error) {
	if _, err := tableName(table); err != nil {
		return nil, syncErrors.NewValidation(syncErrors.OpSubscribe, err)
	}
	if err := s.checkOpen(); err != nil {
		return nil, syncErrors.NewStorage(syncErrors.OpSubscribe, component, err)
	}

	sub := &subscription{
		store:  s,
		table:  table,
		filter: f,
		ch:     make(chan remote.Change, 16),
		done:   make(chan struct{}),
	}

	sub.listener = pq.NewListener(
		s.config.ConnectionString,
		s.config.MinReconnectInterval,
		s.config.MaxReconnectInterval,
		sub.listenerEvent,
	)
	if err := sub.listener.Listen(notifyChannel); err != nil {
		sub.listener.Close()
		return nil, syncErrors.NewUnavailable(syncErrors.OpSubscribe, component, err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go sub.loop(ctx)
	return sub, nil
}

type subscription struct {
	store    *Store
	table    string
	filter   remote.Filter
	listener *pq.Listener
	ch       chan remote.Change

	mu     sync.Mutex
	err    error
	done   chan struct{}
	closed bool
}

func (sub *subscription) listenerEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		sub.store.logger.Info("listening for row changes", slog.String("channel", notifyChannel))
	case pq.ListenerEventDisconnected:
		sub.store.logger.Warn("notification connection lost", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		sub.store.logger.Info("notification connection restored")
	case pq.ListenerEventConnectionAttemptFailed:
		sub.store.logger.Warn("notification reconnect failed", slog.Any("error", err))
	}
}

func (sub *subscription) loop(ctx context.Context) {
	defer close(sub.ch)
	defer sub.listener.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return

		case n := <-sub.listener.Notify:
			if n == nil {
				// pq delivers nil after a reconnect.
				continue
			}
			sub.dispatch(n.Extra)

		case <-time.After(90 * time.Second):
			// Keepalive ping; failures surface through listener events.
			go func() { _ = sub.listener.Ping() }()
		}
	}
}

func (sub *subscription) dispatch(payload string) {
	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		sub.store.logger.Warn("dropping malformed notification", slog.Any("error", err))
		return
	}
	if p.Table != sub.table {
		return
	}
	if sub.filter.ShowID != "" && p.ShowID != sub.filter.ShowID {
		return
	}

	change := remote.Change{
		Table:  p.Table,
		ShowID: p.ShowID,
		ID:     p.ID,
		Action: p.Action,
	}
	select {
	case sub.ch <- change:
	default:
		// Slow consumer; the periodic reload is the freshness backstop.
		sub.store.logger.Warn("dropping change for slow subscriber", slog.String("id", p.ID))
	}
}

func (sub *subscription) Changes() <-chan remote.Change { return sub.ch }

func (sub *subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

func (sub *subscription) Close() error {
	sub.store.dropSub(sub)
	sub.shutdown(nil)
	return nil
}

func (sub *subscription) shutdown(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	sub.err = err
	close(sub.done)
}
