package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("not found")
)

// timeLayout keeps stored timestamps fixed-width so they sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed persistence layer. A Store obtained inside Tx
// routes every query through the open transaction.
type Store struct {
	db *sql.DB
	q  querier
}

// Open creates and opens the SQLite database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serialises anyway and this keeps Tx simple.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Tx runs fn inside a single transaction. Either every write fn makes is
// committed or none is. Nested calls reuse the outer transaction.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunMigrations creates all necessary tables
func RunMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state_backups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outreach_entries (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		company_key TEXT NOT NULL,
		recipient_email TEXT,
		status TEXT NOT NULL,
		response_category TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sent_at TEXT,
		replied_at TEXT,
		last_contact_at TEXT,
		data TEXT NOT NULL,
		CHECK(status IN ('draft', 'scheduled', 'sent', 'replied', 'followup-sent', 'converted', 'dead'))
	);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		log_date TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		event TEXT NOT NULL,
		status TEXT NOT NULL,
		category TEXT,
		snapshot TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (entry_id) REFERENCES outreach_entries(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS company_flags (
		company_key TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		do_not_contact BOOLEAN DEFAULT 0,
		reason TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS no_contact (
		email TEXT PRIMARY KEY,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		stage TEXT NOT NULL,
		is_active BOOLEAN DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_company_key ON outreach_entries(company_key);
	CREATE INDEX IF NOT EXISTS idx_entries_status ON outreach_entries(status);
	CREATE INDEX IF NOT EXISTS idx_entries_recipient ON outreach_entries(recipient_email);
	CREATE INDEX IF NOT EXISTS idx_activity_date ON activity_log(log_date);
	CREATE INDEX IF NOT EXISTS idx_activity_entry ON activity_log(entry_id);
	CREATE INDEX IF NOT EXISTS idx_opportunities_stage ON opportunities(stage);
	`

	_, err := db.Exec(schema)
	return err
}

// CompanyKey normalises a company name for indexing and comparison
func CompanyKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// EmailKey normalises an email address for comparison
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
