// Package sqlite provides the SQLite implementation of boothkit's local
// entity store, mutation queue, and sync metadata.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	"github.com/boothkit/boothkit"
	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/lead"
	"github.com/boothkit/boothkit/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const component = "storage/sqlite"

// Custom errors for better error handling
var (
	ErrStoreClosed = errors.New("store is closed")
)

// Config holds configuration options for the Store.
//
// Production-ready defaults are applied by DefaultConfig() including WAL
// mode and a connection pool sized for a single-client workload.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:booth.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to
	// DataSourceName. Enabled by default.
	EnableWAL bool

	// Connection pool settings.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// NewWithDataSource is a convenience constructor.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// Store implements boothkit.LocalStore and boothkit.MutationQueue over a
// single SQLite database.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *logging.Logger
}

// Compile-time checks
var (
	_ boothkit.LocalStore    = (*Store)(nil)
	_ boothkit.MutationQueue = (*Store)(nil)
)

// New creates a new Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component(component))
	logger.InfoContext(context.Background(), "opening local database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

// setupSchema creates the tables if they don't exist: entity snapshots
// partitioned by show, the pending-mutation queue, and sync metadata.
func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS leads (
        id       TEXT PRIMARY KEY,
        show_id  TEXT NOT NULL,
        data     TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_leads_show_id ON leads (show_id);

    CREATE TABLE IF NOT EXISTS users (
        id       TEXT PRIMARY KEY,
        show_id  TEXT NOT NULL,
        data     TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_users_show_id ON users (show_id);

    CREATE TABLE IF NOT EXISTS sync_queue (
        queue_id     INTEGER PRIMARY KEY AUTOINCREMENT,
        kind         TEXT NOT NULL,
        lead_id      TEXT NOT NULL,
        show_id      TEXT NOT NULL,
        payload      TEXT,
        enqueued_at  TIMESTAMP NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_sync_queue_lead_id ON sync_queue (lead_id);

    CREATE TABLE IF NOT EXISTS sync_meta (
        key    TEXT PRIMARY KEY,
        value  TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveLeads atomically replaces one show's lead partition. Delete-then-insert
// in a single transaction guarantees stale records from a previous sync are
// not retained after a full reload.
func (s *Store) SaveLeads(ctx context.Context, showID string, leads []lead.Lead) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM leads WHERE show_id = ?`, showID); err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leads (id, show_id, data) VALUES (?, ?, ?)`)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}
	defer stmt.Close()

	for _, l := range leads {
		var data []byte
		data, err = json.Marshal(l)
		if err != nil {
			return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
		}
		if _, err = stmt.ExecContext(ctx, l.ID, showID, string(data)); err != nil {
			return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
		}
	}

	if err = tx.Commit(); err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}
	return nil
}

// Leads returns all cached leads for a show. An absent partition yields an
// empty slice.
func (s *Store) Leads(ctx context.Context, showID string) ([]lead.Lead, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM leads WHERE show_id = ?`, showID)
	if err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	defer rows.Close()

	leads := []lead.Lead{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
		}
		var l lead.Lead
		if err := json.Unmarshal([]byte(data), &l); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	return leads, nil
}

// PutLead upserts a single lead by id. Used for optimistic writes and
// post-sync id rewrites.
func (s *Store) PutLead(ctx context.Context, l lead.Lead) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(l)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, show_id, data) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET show_id = excluded.show_id, data = excluded.data`,
		l.ID, l.ShowID, string(data))
	return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
}

// DeleteLead removes a single lead across all partitions. Identifier
// uniqueness across shows is relied on implicitly.
func (s *Store) DeleteLead(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	return syncErrors.WrapOpComponentKind(err, syncErrors.OpDelete, component, syncErrors.KindStorage)
}

// SaveUsers atomically replaces one show's staff partition.
func (s *Store) SaveUsers(ctx context.Context, showID string, users []lead.User) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM users WHERE show_id = ?`, showID); err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}

	for _, u := range users {
		var data []byte
		data, err = json.Marshal(u)
		if err != nil {
			return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, show_id, data) VALUES (?, ?, ?)`,
			u.ID, showID, string(data)); err != nil {
			return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
		}
	}

	if err = tx.Commit(); err != nil {
		return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
	}
	return nil
}

// Users returns all cached staff for a show.
func (s *Store) Users(ctx context.Context, showID string) ([]lead.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM users WHERE show_id = ?`, showID)
	if err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	defer rows.Close()

	users := []lead.User{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
		}
		var u lead.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	return users, nil
}

// SetLastSync records the last successful sync time for a show.
func (s *Store) SetLastSync(ctx context.Context, showID string, t time.Time) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		"last_sync_"+showID, t.UTC().Format(time.RFC3339Nano))
	return syncErrors.WrapOpComponentKind(err, syncErrors.OpSave, component, syncErrors.KindStorage)
}

// LastSync returns the last successful sync time for a show, or the zero
// time when no sync has completed yet.
func (s *Store) LastSync(ctx context.Context, showID string) (time.Time, error) {
	if err := s.checkOpen(); err != nil {
		return time.Time{}, err
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, "last_sync_"+showID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, syncErrors.WrapOpComponentKind(err, syncErrors.OpLoad, component, syncErrors.KindStorage)
	}
	return t, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
