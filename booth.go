package boothkit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/lead"
	"github.com/boothkit/boothkit/logging"
	"github.com/boothkit/boothkit/remote"
)

// Options configures a Booth.
type Options struct {
	Local  LocalStore
	Queue  MutationQueue
	Remote remote.Store

	// Reachability drives connectivity transitions. Defaults to a manual
	// switch starting online.
	Reachability Reachability

	// ReloadInterval is the periodic freshness backstop. Zero means the
	// 30s default.
	ReloadInterval time.Duration

	Metrics MetricsCollector
	Logger  *logging.Logger
}

// Booth is the capture client facade: one active show, an authenticated
// staff session, optimistic lead writes, and the sync machinery behind
// them. All methods are safe for concurrent use.
type Booth struct {
	local   LocalStore
	queue   MutationQueue
	remote  remote.Store
	reach   Reachability
	metrics MetricsCollector
	logger  *logging.Logger

	engine   *Engine
	monitor  *Monitor
	listener *Listener

	mu      sync.RWMutex
	showID  string
	current *lead.User
	leads   []lead.Lead
	users   []lead.User
}

var (
	_ SyncTarget   = (*Booth)(nil)
	_ ReloadTarget = (*Booth)(nil)
)

// New wires a Booth from its parts. Local, Queue and Remote are required.
func New(opts Options) (*Booth, error) {
	if opts.Local == nil || opts.Queue == nil || opts.Remote == nil {
		return nil, fmt.Errorf("boothkit: Local, Queue and Remote are required")
	}
	if opts.Reachability == nil {
		opts.Reachability = NewManualReachability(true)
	}
	if opts.Metrics == nil {
		opts.Metrics = &NoOpMetricsCollector{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent(logging.Component("booth"))
	}

	b := &Booth{
		local:   opts.Local,
		queue:   opts.Queue,
		remote:  opts.Remote,
		reach:   opts.Reachability,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	b.engine = NewEngine(opts.Local, opts.Queue, opts.Remote, opts.Metrics)
	b.monitor = NewMonitor(opts.Reachability, b, opts.ReloadInterval)
	b.listener = NewListener(opts.Remote, b)
	return b, nil
}

// Start begins connectivity monitoring and periodic reloads.
func (b *Booth) Start(ctx context.Context) {
	b.monitor.Start(ctx)
}

// Close stops the background machinery and closes the stores the Booth
// owns.
func (b *Booth) Close() error {
	b.monitor.Stop()
	b.listener.Close()

	var firstErr error
	if err := b.remote.Close(); err != nil {
		firstErr = err
	}
	if err := b.local.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Online reports the last observed connectivity state.
func (b *Booth) Online() bool { return b.monitor.Online() }

// ActiveShow returns the currently selected show id, or "".
func (b *Booth) ActiveShow() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.showID
}

// SelectShow makes showID the active show: hydrate from the local cache
// first, then sync and refresh from the remote when reachable, then
// subscribe to its change feed. Cache-first means a dead network never
// blocks entering a show.
func (b *Booth) SelectShow(ctx context.Context, showID string) error {
	if strings.TrimSpace(showID) == "" {
		return syncErrors.NewValidation(syncErrors.OpLoad, fmt.Errorf("show id is required"))
	}

	b.mu.Lock()
	b.showID = showID
	b.current = nil
	b.leads = nil
	b.users = nil
	b.mu.Unlock()

	if cached, err := b.local.Leads(ctx, showID); err != nil {
		b.logger.LogError(ctx, err, "failed to hydrate leads from cache", slog.String("show_id", showID))
	} else {
		sortLeads(cached)
		b.mu.Lock()
		b.leads = cached
		b.mu.Unlock()
	}
	if cached, err := b.local.Users(ctx, showID); err != nil {
		b.logger.LogError(ctx, err, "failed to hydrate users from cache", slog.String("show_id", showID))
	} else {
		b.mu.Lock()
		b.users = cached
		b.mu.Unlock()
	}

	if b.Online() {
		if err := b.Sync(ctx); err != nil {
			b.logger.LogError(ctx, err, "initial sync failed, serving cached data", slog.String("show_id", showID))
		}
		if err := b.ReloadUsers(ctx); err != nil {
			b.logger.LogError(ctx, err, "initial user refresh failed", slog.String("show_id", showID))
		}
	}

	if err := b.listener.Subscribe(ctx, showID); err != nil {
		// Periodic reload still keeps us fresh without the feed.
		b.logger.LogError(ctx, err, "change feed unavailable", slog.String("show_id", showID))
	}
	return nil
}

// ExitShow leaves the active show and ends any staff session.
func (b *Booth) ExitShow() {
	b.listener.Close()

	b.mu.Lock()
	b.showID = ""
	b.current = nil
	b.leads = nil
	b.users = nil
	b.mu.Unlock()
}

// AddLead validates and records a new lead. The write lands in the local
// cache immediately under a temporary id; when online it is sent straight
// to the remote and reconciled to the server-assigned id, otherwise it is
// queued. The returned lead reflects whichever happened.
func (b *Booth) AddLead(ctx context.Context, l lead.Lead) (lead.Lead, error) {
	b.mu.RLock()
	showID := b.showID
	current := b.current
	b.mu.RUnlock()
	if showID == "" {
		return lead.Lead{}, syncErrors.NewValidation(syncErrors.OpCreate, fmt.Errorf("no active show"))
	}

	now := time.Now().UTC()
	l.ID = lead.NewTempID()
	l.ShowID = showID
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.CreatedBy == "" && current != nil {
		l.CreatedBy = current.Name
	}
	if err := lead.Validate(l); err != nil {
		return lead.Lead{}, syncErrors.NewValidation(syncErrors.OpCreate, err)
	}

	if err := b.local.PutLead(ctx, l); err != nil {
		b.logger.LogError(ctx, err, "failed to cache new lead", slog.String("lead_id", l.ID))
	}
	b.mu.Lock()
	b.leads = append([]lead.Lead{l}, b.leads...)
	b.mu.Unlock()

	if b.Online() {
		// Armed before the write: if the write fails, the token stays
		// armed and swallows the next foreign change until the periodic
		// reload catches it up.
		b.listener.SuppressNext()
		created, err := b.remote.Create(ctx, remote.TableLeads, l.ToRecord())
		if err == nil {
			perm := lead.FromRecord(created)
			b.reconcileCreate(ctx, l.ID, perm)
			return perm, nil
		}
		b.logger.LogError(ctx, err, "direct create failed, queuing", slog.String("lead_id", l.ID))
	}

	m := Mutation{Kind: MutationCreate, ShowID: showID, LeadID: l.ID, Payload: l.ToRecord()}
	if _, err := b.queue.Enqueue(ctx, m); err != nil {
		return lead.Lead{}, syncErrors.WrapOpComponentKind(err, syncErrors.OpEnqueue, "booth", syncErrors.KindStorage)
	}
	b.recordQueueDepth(ctx)
	return l, nil
}

// UpdateLead applies a partial update to a lead in the active show.
func (b *Booth) UpdateLead(ctx context.Context, id string, u lead.Update) (lead.Lead, error) {
	if u.Empty() {
		return lead.Lead{}, syncErrors.NewValidation(syncErrors.OpUpdate, fmt.Errorf("empty update"))
	}
	if err := u.Validate(); err != nil {
		return lead.Lead{}, syncErrors.NewValidation(syncErrors.OpUpdate, err)
	}

	b.mu.Lock()
	idx := indexOfLead(b.leads, id)
	if idx < 0 {
		showID := b.showID
		b.mu.Unlock()
		return lead.Lead{}, syncErrors.NewNotFound(syncErrors.OpUpdate, "booth",
			fmt.Errorf("lead %q not found in show %q", id, showID))
	}
	u.Apply(&b.leads[idx], time.Now().UTC())
	updated := b.leads[idx]
	showID := b.showID
	b.mu.Unlock()

	if err := b.local.PutLead(ctx, updated); err != nil {
		b.logger.LogError(ctx, err, "failed to cache updated lead", slog.String("lead_id", id))
	}

	// A temporary id is meaningless to the remote; the update must wait
	// in line behind its create.
	if b.Online() && !lead.IsTempID(id) {
		b.listener.SuppressNext()
		if err := b.remote.Update(ctx, remote.TableLeads, id, u.Record()); err == nil {
			return updated, nil
		} else {
			b.logger.LogError(ctx, err, "direct update failed, queuing", slog.String("lead_id", id))
		}
	}

	m := Mutation{Kind: MutationUpdate, ShowID: showID, LeadID: id, Payload: u.Record()}
	if _, err := b.queue.Enqueue(ctx, m); err != nil {
		return lead.Lead{}, syncErrors.WrapOpComponentKind(err, syncErrors.OpEnqueue, "booth", syncErrors.KindStorage)
	}
	b.recordQueueDepth(ctx)
	return updated, nil
}

// RemoveLead deletes a lead. A lead the remote has never seen is settled
// entirely locally: its cached row and any queued mutations are discarded
// and no remote call is ever made.
func (b *Booth) RemoveLead(ctx context.Context, id string) error {
	b.mu.Lock()
	idx := indexOfLead(b.leads, id)
	if idx < 0 {
		b.mu.Unlock()
		return syncErrors.NewNotFound(syncErrors.OpDelete, "booth", fmt.Errorf("lead %q not found", id))
	}
	b.leads = append(b.leads[:idx], b.leads[idx+1:]...)
	showID := b.showID
	b.mu.Unlock()

	if err := b.local.DeleteLead(ctx, id); err != nil {
		b.logger.LogError(ctx, err, "failed to evict deleted lead", slog.String("lead_id", id))
	}

	if lead.IsTempID(id) {
		n, err := b.queue.RemoveForLead(ctx, id)
		if err != nil {
			return syncErrors.WrapOpComponentKind(err, syncErrors.OpDelete, "booth", syncErrors.KindStorage)
		}
		if n > 0 {
			b.logger.InfoContext(ctx, "discarded queued mutations for unsynced lead",
				slog.String("lead_id", id), slog.Int("discarded", n))
		}
		b.recordQueueDepth(ctx)
		return nil
	}

	if b.Online() {
		b.listener.SuppressNext()
		err := b.remote.Delete(ctx, remote.TableLeads, id)
		if err == nil || syncErrors.IsKind(err, syncErrors.KindNotFound) {
			return nil
		}
		b.logger.LogError(ctx, err, "direct delete failed, queuing", slog.String("lead_id", id))
	}

	m := Mutation{Kind: MutationDelete, ShowID: showID, LeadID: id}
	if _, err := b.queue.Enqueue(ctx, m); err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpEnqueue, "booth", syncErrors.KindStorage)
	}
	b.recordQueueDepth(ctx)
	return nil
}

// Leads returns a snapshot of the active show's leads, newest first.
func (b *Booth) Leads() []lead.Lead {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]lead.Lead, len(b.leads))
	copy(out, b.leads)
	return out
}

// Lead returns a single lead by id from the in-memory snapshot.
func (b *Booth) Lead(id string) (lead.Lead, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if idx := indexOfLead(b.leads, id); idx >= 0 {
		return b.leads[idx], true
	}
	return lead.Lead{}, false
}

// FilteredLeads returns leads matching a temperature; the zero value
// matches everything.
func (b *Booth) FilteredLeads(t lead.Temperature) []lead.Lead {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]lead.Lead, 0, len(b.leads))
	for _, l := range b.leads {
		if t == "" || l.Temperature == t {
			out = append(out, l)
		}
	}
	return out
}

// SearchLeads returns leads whose contact, store, email or phone contains
// the query, case-insensitively.
func (b *Booth) SearchLeads(query string) []lead.Lead {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return b.Leads()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]lead.Lead, 0, len(b.leads))
	for _, l := range b.leads {
		if strings.Contains(strings.ToLower(l.ContactName), q) ||
			strings.Contains(strings.ToLower(l.StoreName), q) ||
			strings.Contains(strings.ToLower(l.Email), q) ||
			strings.Contains(l.Phone, q) {
			out = append(out, l)
		}
	}
	return out
}

// Stats returns the temperature breakdown for the active show.
func (b *Booth) Stats() Stats {
	return ComputeStats(b.Leads())
}

// DetailedStats returns the full breakdown for the active show.
func (b *Booth) DetailedStats() DetailedStats {
	return ComputeDetailedStats(b.Leads())
}

// PendingCount reports how many mutations await dispatch.
func (b *Booth) PendingCount(ctx context.Context) (int, error) {
	n, err := b.queue.Size(ctx)
	if err != nil {
		return 0, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, "booth", syncErrors.KindStorage)
	}
	b.metrics.RecordQueueDepth(n)
	return n, nil
}

// LastSync returns the last successful sync time for the active show,
// zero when it has never synced.
func (b *Booth) LastSync(ctx context.Context) (time.Time, error) {
	showID := b.ActiveShow()
	if showID == "" {
		return time.Time{}, nil
	}
	return b.local.LastSync(ctx, showID)
}

// Sync drains the mutation queue and refreshes from the remote. A partial
// drain still refreshes; last-writer-wins takes it from there.
func (b *Booth) Sync(ctx context.Context) error {
	res, drainErr := b.engine.Drain(ctx)
	b.recordQueueDepth(ctx)
	if res.Skipped {
		return drainErr
	}
	b.applyRewrites(res.Rewrites)

	if err := b.Reload(ctx); err != nil {
		if drainErr != nil {
			return drainErr
		}
		return err
	}
	if drainErr != nil {
		return drainErr
	}

	if showID := b.ActiveShow(); showID != "" {
		if err := b.local.SetLastSync(ctx, showID, time.Now().UTC()); err != nil {
			b.logger.LogError(ctx, err, "failed to record sync time", slog.String("show_id", showID))
		}
	}
	return nil
}

// Reload re-queries the active show's leads from the remote and replaces
// the cache partition and in-memory list. Queued-but-undrained mutations
// are overlaid on the fetched snapshot so a reload can never silently
// discard work that has not been dispatched yet.
func (b *Booth) Reload(ctx context.Context) error {
	showID := b.ActiveShow()
	if showID == "" {
		return nil
	}
	start := time.Now()

	recs, err := b.remote.Query(ctx, remote.TableLeads, remote.Filter{ShowID: showID})
	if err != nil {
		b.metrics.RecordSyncErrors("reload", "query")
		return syncErrors.WrapOpComponent(err, syncErrors.OpReload, "booth")
	}
	fetched := make([]lead.Lead, 0, len(recs))
	for _, rec := range recs {
		fetched = append(fetched, lead.FromRecord(rec))
	}

	merged, err := b.overlayPending(ctx, showID, fetched)
	if err != nil {
		return err
	}
	sortLeads(merged)

	if err := b.local.SaveLeads(ctx, showID, merged); err != nil {
		b.logger.LogError(ctx, err, "failed to refresh lead cache", slog.String("show_id", showID))
	}

	b.mu.Lock()
	if b.showID == showID {
		b.leads = merged
	}
	b.mu.Unlock()

	b.metrics.RecordReload(len(merged), time.Since(start))
	return nil
}

// ReloadUsers re-queries the active show's staff list.
func (b *Booth) ReloadUsers(ctx context.Context) error {
	showID := b.ActiveShow()
	if showID == "" {
		return nil
	}

	recs, err := b.remote.Query(ctx, remote.TableUsers, remote.Filter{ShowID: showID})
	if err != nil {
		b.metrics.RecordSyncErrors("reload", "users_query")
		return syncErrors.WrapOpComponent(err, syncErrors.OpReload, "booth")
	}
	users := make([]lead.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, lead.UserFromRecord(rec))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })

	if err := b.local.SaveUsers(ctx, showID, users); err != nil {
		b.logger.LogError(ctx, err, "failed to refresh user cache", slog.String("show_id", showID))
	}

	b.mu.Lock()
	if b.showID == showID {
		b.users = users
		if b.current != nil && indexOfUser(users, b.current.ID) < 0 {
			// The session's user was removed on another client.
			b.current = nil
		}
	}
	b.mu.Unlock()
	return nil
}

// Users returns a snapshot of the active show's staff.
func (b *Booth) Users() []lead.User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]lead.User, len(b.users))
	copy(out, b.users)
	return out
}

// CurrentUser returns the logged-in staff member, if any.
func (b *Booth) CurrentUser() (lead.User, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return lead.User{}, false
	}
	return *b.current, true
}

// Login starts a staff session after verifying the passcode.
func (b *Booth) Login(userID, passcode string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := indexOfUser(b.users, userID)
	if idx < 0 {
		return syncErrors.NewNotFound(syncErrors.OpLoad, "booth", fmt.Errorf("user %q not found", userID))
	}
	if b.users[idx].Passcode != passcode {
		return syncErrors.NewValidation(syncErrors.OpLoad, fmt.Errorf("incorrect passcode"))
	}
	u := b.users[idx]
	b.current = &u
	return nil
}

// VerifyPasscode checks a passcode without starting a session.
func (b *Booth) VerifyPasscode(userID, passcode string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx := indexOfUser(b.users, userID)
	return idx >= 0 && b.users[idx].Passcode == passcode
}

// Logout ends the staff session.
func (b *Booth) Logout() {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
}

// AddUser creates a staff member. User management writes straight through
// to the remote and therefore requires connectivity.
func (b *Booth) AddUser(ctx context.Context, name, passcode string) (lead.User, error) {
	showID := b.ActiveShow()
	if showID == "" {
		return lead.User{}, syncErrors.NewValidation(syncErrors.OpCreate, fmt.Errorf("no active show"))
	}
	if err := validateUserInput(name, passcode); err != nil {
		return lead.User{}, err
	}
	if !b.Online() {
		return lead.User{}, syncErrors.NewUnavailable(syncErrors.OpCreate, "booth",
			fmt.Errorf("user management requires connectivity"))
	}

	u := lead.User{ShowID: showID, Name: strings.TrimSpace(name), Passcode: passcode}
	b.listener.SuppressNext()
	rec, err := b.remote.Create(ctx, remote.TableUsers, u.ToRecord())
	if err != nil {
		return lead.User{}, syncErrors.WrapOpComponent(err, syncErrors.OpCreate, "booth")
	}
	created := lead.UserFromRecord(rec)

	b.mu.Lock()
	b.users = append(b.users, created)
	users := append([]lead.User(nil), b.users...)
	b.mu.Unlock()
	if err := b.local.SaveUsers(ctx, showID, users); err != nil {
		b.logger.LogError(ctx, err, "failed to cache new user", slog.String("user_id", created.ID))
	}
	return created, nil
}

// UpdateUser renames a staff member or changes their passcode. Empty
// arguments leave the corresponding field alone.
func (b *Booth) UpdateUser(ctx context.Context, id, name, passcode string) (lead.User, error) {
	if !b.Online() {
		return lead.User{}, syncErrors.NewUnavailable(syncErrors.OpUpdate, "booth",
			fmt.Errorf("user management requires connectivity"))
	}

	b.mu.RLock()
	idx := indexOfUser(b.users, id)
	if idx < 0 {
		b.mu.RUnlock()
		return lead.User{}, syncErrors.NewNotFound(syncErrors.OpUpdate, "booth", fmt.Errorf("user %q not found", id))
	}
	updated := b.users[idx]
	showID := b.showID
	b.mu.RUnlock()

	rec := remote.Record{}
	if name != "" {
		updated.Name = strings.TrimSpace(name)
		rec["name"] = updated.Name
	}
	if passcode != "" {
		if err := validateUserInput(updated.Name, passcode); err != nil {
			return lead.User{}, err
		}
		updated.Passcode = passcode
		rec["passcode"] = passcode
	}
	if len(rec) == 0 {
		return updated, nil
	}

	b.listener.SuppressNext()
	if err := b.remote.Update(ctx, remote.TableUsers, id, rec); err != nil {
		return lead.User{}, syncErrors.WrapOpComponent(err, syncErrors.OpUpdate, "booth")
	}

	b.mu.Lock()
	if idx := indexOfUser(b.users, id); idx >= 0 {
		b.users[idx] = updated
	}
	if b.current != nil && b.current.ID == id {
		b.current = &updated
	}
	users := append([]lead.User(nil), b.users...)
	b.mu.Unlock()
	if err := b.local.SaveUsers(ctx, showID, users); err != nil {
		b.logger.LogError(ctx, err, "failed to cache user update", slog.String("user_id", id))
	}
	return updated, nil
}

// DeleteUser removes a staff member. The last remaining user and the
// session's own user cannot be removed.
func (b *Booth) DeleteUser(ctx context.Context, id string) error {
	if !b.Online() {
		return syncErrors.NewUnavailable(syncErrors.OpDelete, "booth",
			fmt.Errorf("user management requires connectivity"))
	}

	b.mu.RLock()
	idx := indexOfUser(b.users, id)
	total := len(b.users)
	isSelf := b.current != nil && b.current.ID == id
	showID := b.showID
	b.mu.RUnlock()

	if idx < 0 {
		return syncErrors.NewNotFound(syncErrors.OpDelete, "booth", fmt.Errorf("user %q not found", id))
	}
	if total <= 1 {
		return syncErrors.NewValidation(syncErrors.OpDelete, fmt.Errorf("cannot remove the last user"))
	}
	if isSelf {
		return syncErrors.NewValidation(syncErrors.OpDelete, fmt.Errorf("cannot remove the logged-in user"))
	}

	b.listener.SuppressNext()
	if err := b.remote.Delete(ctx, remote.TableUsers, id); err != nil {
		return syncErrors.WrapOpComponent(err, syncErrors.OpDelete, "booth")
	}

	b.mu.Lock()
	if idx := indexOfUser(b.users, id); idx >= 0 {
		b.users = append(b.users[:idx], b.users[idx+1:]...)
	}
	users := append([]lead.User(nil), b.users...)
	b.mu.Unlock()
	if err := b.local.SaveUsers(ctx, showID, users); err != nil {
		b.logger.LogError(ctx, err, "failed to cache user removal", slog.String("user_id", id))
	}
	return nil
}

// reconcileCreate swaps a temporary lead for the remote's reconciled
// record in the cache and the in-memory list.
func (b *Booth) reconcileCreate(ctx context.Context, tempID string, perm lead.Lead) {
	if err := b.local.DeleteLead(ctx, tempID); err != nil {
		b.logger.LogError(ctx, err, "failed to drop temporary record", slog.String("lead_id", tempID))
	}
	if err := b.local.PutLead(ctx, perm); err != nil {
		b.logger.LogError(ctx, err, "failed to cache reconciled record", slog.String("lead_id", perm.ID))
	}

	b.mu.Lock()
	if idx := indexOfLead(b.leads, tempID); idx >= 0 {
		b.leads[idx] = perm
	}
	b.mu.Unlock()
}

// applyRewrites re-keys in-memory leads whose creates were acknowledged
// during a drain. The follow-up reload replaces the full records.
func (b *Booth) applyRewrites(rewrites map[string]string) {
	if len(rewrites) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.leads {
		if perm, ok := rewrites[b.leads[i].ID]; ok {
			b.leads[i].ID = perm
		}
	}
}

// overlayPending replays the active show's queued mutations over a fetched
// snapshot. The remote has not seen these writes, so the snapshot alone
// would roll them back.
func (b *Booth) overlayPending(ctx context.Context, showID string, fetched []lead.Lead) ([]lead.Lead, error) {
	pending, err := b.queue.Pending(ctx)
	if err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpReload, "booth", syncErrors.KindStorage)
	}
	if len(pending) == 0 {
		return fetched, nil
	}

	index := make(map[string]int, len(fetched))
	for i, l := range fetched {
		index[l.ID] = i
	}
	deleted := map[string]bool{}

	b.mu.RLock()
	inMemory := make(map[string]lead.Lead, len(b.leads))
	for _, l := range b.leads {
		inMemory[l.ID] = l
	}
	b.mu.RUnlock()

	for _, m := range pending {
		if m.ShowID != showID {
			continue
		}
		switch m.Kind {
		case MutationCreate:
			if _, ok := index[m.LeadID]; ok {
				continue
			}
			l, ok := inMemory[m.LeadID]
			if !ok {
				// Not in memory (fresh restart): rebuild from the
				// queued payload. Create payloads omit the temp id.
				l = lead.FromRecord(m.Payload)
				l.ID = m.LeadID
				l.ShowID = showID
			}
			index[l.ID] = len(fetched)
			fetched = append(fetched, l)

		case MutationUpdate:
			if i, ok := index[m.LeadID]; ok {
				u := lead.UpdateFromRecord(m.Payload)
				u.Apply(&fetched[i], m.EnqueuedAt)
			}

		case MutationDelete:
			deleted[m.LeadID] = true
		}
	}

	if len(deleted) == 0 {
		return fetched, nil
	}
	out := fetched[:0]
	for _, l := range fetched {
		if !deleted[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (b *Booth) recordQueueDepth(ctx context.Context) {
	if n, err := b.queue.Size(ctx); err == nil {
		b.metrics.RecordQueueDepth(n)
	}
}

// sortLeads orders newest first, ties broken by id for a stable list.
func sortLeads(leads []lead.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		if !leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].CreatedAt.After(leads[j].CreatedAt)
		}
		return leads[i].ID < leads[j].ID
	})
}

func indexOfLead(leads []lead.Lead, id string) int {
	for i, l := range leads {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func indexOfUser(users []lead.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// validateUserInput enforces a non-empty name and a 4-digit passcode.
func validateUserInput(name, passcode string) error {
	if strings.TrimSpace(name) == "" {
		return syncErrors.NewValidation(syncErrors.OpCreate, fmt.Errorf("name is required"))
	}
	if len(passcode) != 4 {
		return syncErrors.NewValidation(syncErrors.OpCreate, fmt.Errorf("passcode must be 4 digits"))
	}
	for _, r := range passcode {
		if !unicode.IsDigit(r) {
			return syncErrors.NewValidation(syncErrors.OpCreate, fmt.Errorf("passcode must be 4 digits"))
		}
	}
	return nil
}
