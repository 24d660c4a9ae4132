package boothkit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boothkit/boothkit/logging"
)

// Reachability reports remote connectivity. Implementations push
// transitions on Events; Online answers the current state.
type Reachability interface {
	Events() <-chan bool
	Online() bool
}

// ManualReachability is a Reachability driven by explicit Set calls. The
// command-line client and the tests use it; an embedded deployment would
// wire a platform probe instead.
type ManualReachability struct {
	mu     sync.Mutex
	online bool
	events chan bool
}

func NewManualReachability(online bool) *ManualReachability {
	return &ManualReachability{
		online: online,
		events: make(chan bool, 8),
	}
}

// Set records the new state and emits an event on actual transitions.
func (r *ManualReachability) Set(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.online == online {
		return
	}
	r.online = online
	select {
	case r.events <- online:
	default:
	}
}

func (r *ManualReachability) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

func (r *ManualReachability) Events() <-chan bool { return r.events }

// SyncTarget is what the monitor drives: a full drain-and-reload on
// reconnect and a freshness reload on the periodic backstop.
type SyncTarget interface {
	Sync(ctx context.Context) error
	Reload(ctx context.Context) error
}

const defaultReloadInterval = 30 * time.Second

// Monitor watches reachability transitions and keeps the sync target
// fresh. An offline-to-online transition triggers a drain; a ticker fires
// periodic reloads while online so missed change notifications cannot leave
// the client stale forever.
type Monitor struct {
	reach    Reachability
	target   SyncTarget
	interval time.Duration
	logger   *logging.Logger

	online atomic.Bool

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

func NewMonitor(reach Reachability, target SyncTarget, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultReloadInterval
	}
	return &Monitor{
		reach:    reach,
		target:   target,
		interval: interval,
		logger:   logging.WithComponent(logging.Component("monitor")),
	}
}

// Start begins watching. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.online.Store(m.reach.Online())

	go m.loop(ctx, m.stop, m.done)
}

// Stop halts the monitor and waits for its loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool { return m.online.Load() }

func (m *Monitor) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return

		case online, ok := <-m.reach.Events():
			if !ok {
				return
			}
			was := m.online.Swap(online)
			if online && !was {
				m.logger.InfoContext(ctx, "connectivity restored, draining queue")
				m.runSync(ctx)
			} else if !online && was {
				m.logger.InfoContext(ctx, "connectivity lost, queuing mutations locally")
			}

		case <-ticker.C:
			if !m.online.Load() {
				continue
			}
			m.runReload(ctx)
		}
	}
}

func (m *Monitor) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := m.target.Sync(syncCtx); err != nil {
		m.logger.LogError(ctx, err, "reconnect sync failed")
	}
}

func (m *Monitor) runReload(ctx context.Context) {
	reloadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := m.target.Reload(reloadCtx); err != nil {
		m.logger.LogError(ctx, err, "periodic reload failed", slog.Duration("interval", m.interval))
	}
}
