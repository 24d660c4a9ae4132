package boothkit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/logging"
	"github.com/boothkit/boothkit/remote"
)

// ReloadTarget receives the reload side of change notifications.
type ReloadTarget interface {
	Reload(ctx context.Context) error
	ReloadUsers(ctx context.Context) error
}

// Listener subscribes to remote change notifications for the active show
// and turns them into reloads. Notifications carry no payload; the reload
// re-queries authoritative remote state.
type Listener struct {
	store  remote.Store
	target ReloadTarget
	logger *logging.Logger

	// suppress is a one-shot token. Armed right before a mutation whose
	// echo notification should not trigger a redundant reload; the first
	// notification after arming consumes it.
	suppress atomic.Bool

	mu       sync.Mutex
	showID   string
	cancel   context.CancelFunc
	leadsSub remote.Subscription
	usersSub remote.Subscription
	wg       sync.WaitGroup
}

func NewListener(store remote.Store, target ReloadTarget) *Listener {
	return &Listener{
		store:  store,
		target: target,
		logger: logging.WithComponent(logging.Component("listener")),
	}
}

// Subscribe tears down any previous subscriptions and subscribes to lead
// and user changes for the given show.
func (l *Listener) Subscribe(ctx context.Context, showID string) error {
	l.Close()

	l.mu.Lock()
	defer l.mu.Unlock()

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	leadsSub, err := l.store.Subscribe(subCtx, remote.TableLeads, remote.Filter{ShowID: showID})
	if err != nil {
		cancel()
		return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, "listener")
	}
	usersSub, err := l.store.Subscribe(subCtx, remote.TableUsers, remote.Filter{ShowID: showID})
	if err != nil {
		_ = leadsSub.Close()
		cancel()
		return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, "listener")
	}

	l.showID = showID
	l.cancel = cancel
	l.leadsSub = leadsSub
	l.usersSub = usersSub

	l.wg.Add(2)
	go l.pump(subCtx, leadsSub, remote.TableLeads)
	go l.pump(subCtx, usersSub, remote.TableUsers)

	l.logger.InfoContext(ctx, "subscribed to remote changes", slog.String("show_id", showID))
	return nil
}

// SuppressNext arms the one-shot echo suppression token.
func (l *Listener) SuppressNext() { l.suppress.Store(true) }

// Active returns the show currently subscribed to, or "".
func (l *Listener) Active() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.showID
}

// Close tears down the current subscriptions, if any, and waits for the
// pump goroutines to drain.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	leadsSub, usersSub := l.leadsSub, l.usersSub
	l.cancel = nil
	l.leadsSub = nil
	l.usersSub = nil
	l.showID = ""
	l.mu.Unlock()

	cancel()
	if leadsSub != nil {
		_ = leadsSub.Close()
	}
	if usersSub != nil {
		_ = usersSub.Close()
	}
	l.wg.Wait()
}

func (l *Listener) pump(ctx context.Context, sub remote.Subscription, table string) {
	defer l.wg.Done()

	for change := range sub.Changes() {
		if l.suppress.CompareAndSwap(true, false) {
			l.logger.DebugContext(ctx, "suppressed echo notification",
				slog.String("table", change.Table),
				slog.String("id", change.ID),
			)
			continue
		}
		l.handle(ctx, table)
	}

	if err := sub.Err(); err != nil && ctx.Err() == nil {
		// Subscription died underneath us. The periodic reload keeps
		// data fresh until the next Subscribe.
		l.logger.LogError(ctx, err, "subscription closed", slog.String("table", table))
	}
}

func (l *Listener) handle(ctx context.Context, table string) {
	reloadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var err error
	switch table {
	case remote.TableUsers:
		err = l.target.ReloadUsers(reloadCtx)
	default:
		err = l.target.Reload(reloadCtx)
	}
	if err != nil && ctx.Err() == nil {
		l.logger.LogError(ctx, err, "change-triggered reload failed", slog.String("table", table))
	}
}
