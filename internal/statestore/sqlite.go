package statestore

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/daimoniac/scorecard/internal/errors"
)

// SQLiteStore implements StateStore using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite state store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// _foreign_keys=1: findings cascade with their scan
	// _journal_mode=WAL: concurrent readers and a single writer
	// _busy_timeout=3000: wait up to 3 seconds for locks so metrics scrapes succeed
	connStr := dbPath + "?_foreign_keys=1&mode=rwc&_journal_mode=WAL&_busy_timeout=3000"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.NewTransientf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		db.Close()
		return nil, errors.NewTransientf("failed to check foreign keys status: %w", err)
	}
	if fkEnabled != 1 {
		db.Close()
		return nil, errors.NewTransientf("foreign keys are not enabled (got %d, expected 1)", fkEnabled)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewPermanentf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.NewTransientf("sqlite ping: %w", err)
	}
	return nil
}

// initSchema creates the database schema with all tables and indexes
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exclusions (
		account_id TEXT NOT NULL,
		sort_key TEXT NOT NULL, -- requirementId#resourceId
		requirement_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		status TEXT,
		expiration_date TEXT,
		data TEXT NOT NULL, -- JSON exclusion record
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (account_id, sort_key)
	);

	CREATE TABLE IF NOT EXISTS scans (
		scan_id TEXT PRIMARY KEY,
		process_state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		exclusions_applied_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS findings (
		scan_id TEXT NOT NULL,
		sort_key TEXT NOT NULL, -- accountId#resourceId#requirementId
		account_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		requirement_id TEXT NOT NULL,
		exclusion_applied BOOLEAN NOT NULL DEFAULT 0,
		is_hidden BOOLEAN NOT NULL DEFAULT 0,
		remediation_status TEXT,
		data TEXT NOT NULL, -- JSON finding without remediation status
		PRIMARY KEY (scan_id, sort_key),
		FOREIGN KEY (scan_id) REFERENCES scans(scan_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		occurred_at INTEGER NOT NULL,
		user_email TEXT NOT NULL,
		action TEXT NOT NULL,
		parameters TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_exclusions_requirement ON exclusions(requirement_id);
	CREATE INDEX IF NOT EXISTS idx_scans_state_created ON scans(process_state, created_at);
	CREATE INDEX IF NOT EXISTS idx_findings_account ON findings(scan_id, account_id);
	CREATE INDEX IF NOT EXISTS idx_findings_requirement ON findings(scan_id, requirement_id);
	CREATE INDEX IF NOT EXISTS idx_audit_occurred ON audit_records(occurred_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// executeTx runs operation inside a transaction and commits it
func (s *SQLiteStore) executeTx(ctx context.Context, operation func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransientf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := operation(tx); err != nil {
		return err // Error already classified by operation
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransientf("failed to commit transaction: %w", err)
	}

	return nil
}
