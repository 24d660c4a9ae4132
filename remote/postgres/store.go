// Package postgres provides a PostgreSQL-backed remote.Store with
// LISTEN/NOTIFY change feeds. Row triggers publish every write, so changes
// made by any client, not just this process, reach subscribers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/logging"
	"github.com/boothkit/boothkit/remote"
)

const (
	component = "remote/postgres"

	// notifyChannel is the LISTEN/NOTIFY channel all row triggers
	// publish to.
	notifyChannel = "boothkit_changes"
)

var (
	ErrStoreClosed = errors.New("store is closed")
)

// Config holds configuration options for the store.
type Config struct {
	// ConnectionString is the lib/pq connection string.
	ConnectionString string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// MinReconnectInterval and MaxReconnectInterval bound the
	// pq.Listener backoff for the notification connection.
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
}

// DefaultConfig returns a Config with production defaults applied.
func DefaultConfig(connectionString string) *Config {
	cfg := &Config{ConnectionString: connectionString}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 15 * time.Minute
	}
	if c.MinReconnectInterval == 0 {
		c.MinReconnectInterval = 5 * time.Second
	}
	if c.MaxReconnectInterval == 0 {
		c.MaxReconnectInterval = time.Minute
	}
}

// Store implements remote.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	config *Config
	logger *logging.Logger

	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

var _ remote.Store = (*Store)(nil)

// NewWithConnectionString creates a store with default configuration.
func NewWithConnectionString(connectionString string) (*Store, error) {
	return New(DefaultConfig(connectionString))
}

// New creates a store, verifies connectivity and installs the schema and
// notification triggers.
func New(config *Config) (*Store, error) {
	if config == nil || config.ConnectionString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}
	config.setDefaults()

	db, err := sql.Open("postgres", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	s := &Store{
		db:     db,
		config: config,
		logger: logging.WithComponent(logging.Component(component)),
	}
	if err := s.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: setting up schema: %w", err)
	}
	return s, nil
}

func (s *Store) setupSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS booth_leads (
		id TEXT PRIMARY KEY,
		show_id TEXT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_booth_leads_show ON booth_leads(show_id);

	CREATE TABLE IF NOT EXISTS booth_users (
		id TEXT PRIMARY KEY,
		show_id TEXT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_booth_users_show ON booth_users(show_id);

	CREATE OR REPLACE FUNCTION boothkit_notify() RETURNS trigger AS $$
	DECLARE
		rec RECORD;
		tbl TEXT;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			rec := OLD;
		ELSE
			rec := NEW;
		END IF;
		tbl := CASE TG_TABLE_NAME WHEN 'booth_leads' THEN 'leads' ELSE 'users' END;
		PERFORM pg_notify('` + notifyChannel + `', json_build_object(
			'table', tbl,
			'show_id', rec.show_id,
			'id', rec.id,
			'action', lower(CASE TG_OP WHEN 'INSERT' THEN 'create' ELSE TG_OP END)
		)::text);
		RETURN rec;
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS booth_leads_notify ON booth_leads;
	CREATE TRIGGER booth_leads_notify
		AFTER INSERT OR UPDATE OR DELETE ON booth_leads
		FOR EACH ROW EXECUTE FUNCTION boothkit_notify();

	DROP TRIGGER IF EXISTS booth_users_notify ON booth_users;
	CREATE TRIGGER booth_users_notify
		AFTER INSERT OR UPDATE OR DELETE ON booth_users
		FOR EACH ROW EXECUTE FUNCTION boothkit_notify();
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// tableName maps the wire table vocabulary onto SQL tables, rejecting
// anything else before it reaches a query.
func tableName(table string) (string, error) {
	switch table {
	case remote.TableLeads:
		return "booth_leads", nil
	case remote.TableUsers:
		return "booth_users", nil
	default:
		return "", fmt.Errorf("unknown table %q", table)
	}
}

func (s *Store) Create(ctx context.Context, table string, rec remote.Record) (remote.Record, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, syncErrors.NewValidation(syncErrors.OpCreate, err)
	}
	if err := s.checkOpen(); err != nil {
		return nil, syncErrors.NewStorage(syncErrors.OpCreate, component, err)
	}

	stored := rec.Clone()
	stored["id"] = uuid.NewString()
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpCreate, component, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, show_id, data) VALUES ($1, $2, $3)`, tbl)
	if _, err := s.db.ExecContext(ctx, query, stored.ID(), showIDOf(stored), doc); err != nil {
		return nil, wrapDBError(syncErrors.OpCreate, err)
	}
	return stored, nil
}

func (s *Store) Update(ctx context.Context, table, id string, partial remote.Record) error {
	tbl, err := tableName(table)
	if err != nil {
		return syncErrors.NewValidation(syncErrors.OpUpdate, err)
	}
	if err := s.checkOpen(); err != nil {
		return syncErrors.NewStorage(syncErrors.OpUpdate, component, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError(syncErrors.OpUpdate, err)
	}
	defer tx.Rollback()

	var doc []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1 FOR UPDATE`, tbl)
	if err := tx.QueryRowContext(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return syncErrors.NewNotFound(syncErrors.OpUpdate, component, fmt.Errorf("%s/%s", table, id))
		}
		return wrapDBError(syncErrors.OpUpdate, err)
	}

	var stored remote.Record
	if err := json.Unmarshal(doc, &stored); err != nil {
		return syncErrors.NewStorage(syncErrors.OpUpdate, component, err)
	}
	for k, v := range partial {
		stored[k] = v
	}
	stored["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	merged, err := json.Marshal(stored)
	if err != nil {
		return syncErrors.NewStorage(syncErrors.OpUpdate, component, err)
	}

	query = fmt.Sprintf(`UPDATE %s SET data = $1, show_id = $2, updated_at = now() WHERE id = $3`, tbl)
	if _, err := tx.ExecContext(ctx, query, merged, showIDOf(stored), id); err != nil {
		return wrapDBError(syncErrors.OpUpdate, err)
	}
	if err := tx.Commit(); err != nil {
		return wrapDBError(syncErrors.OpUpdate, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	tbl, err := tableName(table)
	if err != nil {
		return syncErrors.NewValidation(syncErrors.OpDelete, err)
	}
	if err := s.checkOpen(); err != nil {
		return syncErrors.NewStorage(syncErrors.OpDelete, component, err)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return wrapDBError(syncErrors.OpDelete, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return syncErrors.NewNotFound(syncErrors.OpDelete, component, fmt.Errorf("%s/%s", table, id))
	}
	return nil
}

func (s *Store) Query(ctx context.Context, table string, f remote.Filter) ([]remote.Record, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, syncErrors.NewValidation(syncErrors.OpQuery, err)
	}
	if err := s.checkOpen(); err != nil {
		return nil, syncErrors.NewStorage(syncErrors.OpQuery, component, err)
	}

	var rows *sql.Rows
	if f.ShowID != "" {
		query := fmt.Sprintf(`SELECT data FROM %s WHERE show_id = $1 ORDER BY created_at DESC`, tbl)
		rows, err = s.db.QueryContext(ctx, query, f.ShowID)
	} else {
		query := fmt.Sprintf(`SELECT data FROM %s ORDER BY created_at DESC`, tbl)
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, wrapDBError(syncErrors.OpQuery, err)
	}
	defer rows.Close()

	var out []remote.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, syncErrors.NewStorage(syncErrors.OpQuery, component, err)
		}
		var rec remote.Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, syncErrors.NewStorage(syncErrors.OpQuery, component, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(syncErrors.OpQuery, err)
	}
	return out, nil
}

// Close closes the database and ends all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown(nil)
	}
	return s.db.Close()
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

func showIDOf(rec remote.Record) string {
	if v, ok := rec["show_id"].(string); ok {
		return v
	}
	return ""
}

// wrapDBError classifies driver errors as retryable unavailability; the
// caller cannot tell a dead network from a dead server anyway.
func wrapDBError(op syncErrors.Operation, err error) error {
	return syncErrors.NewUnavailable(op, component, err)
}
