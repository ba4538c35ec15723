// Package storage provides database access and repositories
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("sqlite3", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases shared across repositories.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &DB{db}, nil
}

// WithTx runs fn inside a transaction, committing only if fn returns nil
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// conflictOr maps unique violations onto apperr.ErrConflict and wraps anything else
func conflictOr(err error, message, op string) error {
	if isUniqueViolation(err) {
		return apperr.Wrap(apperr.ErrConflict, message, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		createUsersTable,
		createAdminProfilesTable,
		createCustomersTable,
		createVehiclesTable,
		createLeasesTable,
		createPaymentSchedulesTable,
		createLateFeesTable,
		createSmsMessagesTable,
		createCustomerEventsTable,
		createRevokedTokensTable,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('admin', 'customer')),
	must_reset_password INTEGER NOT NULL DEFAULT 0,
	temp_password_issued_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const createAdminProfilesTable = `
CREATE TABLE IF NOT EXISTS admin_profiles (
	id TEXT PRIMARY KEY,
	user_id TEXT UNIQUE NOT NULL,
	full_name TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);
`

const createCustomersTable = `
CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	user_id TEXT UNIQUE NOT NULL,
	company_name TEXT,
	full_name TEXT NOT NULL,
	date_of_birth TEXT NOT NULL,
	address_line1 TEXT NOT NULL,
	address_line2 TEXT,
	suburb TEXT NOT NULL,
	state TEXT NOT NULL,
	postcode TEXT NOT NULL,
	phone_e164 TEXT UNIQUE NOT NULL,
	email TEXT NOT NULL,
	drivers_licence_number TEXT NOT NULL,
	drivers_licence_state TEXT NOT NULL,
	drivers_licence_expiry TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email);
`

const createVehiclesTable = `
CREATE TABLE IF NOT EXISTS vehicles (
	id TEXT PRIMARY KEY,
	rego_number TEXT UNIQUE NOT NULL,
	state TEXT,
	category TEXT,
	current_kms INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	slug TEXT UNIQUE NOT NULL,
	make TEXT,
	model TEXT,
	year INTEGER,
	colour TEXT,
	body_type TEXT,
	fuel_type TEXT,
	vin TEXT,
	regcheck_raw TEXT,
	regcheck_verified_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const createLeasesTable = `
CREATE TABLE IF NOT EXISTS leases (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	vehicle_id TEXT NOT NULL,
	plan_name TEXT NOT NULL,
	weekly_amount INTEGER NOT NULL,
	kms_per_week INTEGER,
	bond_amount INTEGER,
	start_date TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE,
	FOREIGN KEY (vehicle_id) REFERENCES vehicles(id)
);

CREATE INDEX IF NOT EXISTS idx_leases_customer_id ON leases(customer_id);
CREATE INDEX IF NOT EXISTS idx_leases_vehicle_status ON leases(vehicle_id, status);
`

const createPaymentSchedulesTable = `
CREATE TABLE IF NOT EXISTS payment_schedules (
	id TEXT PRIMARY KEY,
	lease_id TEXT NOT NULL,
	due_date TEXT NOT NULL,
	amount INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'paid', 'failed', 'overdue', 'waived')),
	paid_at DATETIME,
	FOREIGN KEY (lease_id) REFERENCES leases(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_payment_schedules_lease_id ON payment_schedules(lease_id);
CREATE INDEX IF NOT EXISTS idx_payment_schedules_status ON payment_schedules(status, paid_at);
`

// The unique index is the idempotency key of the late-fee job.
const createLateFeesTable = `
CREATE TABLE IF NOT EXISTS late_fees (
	id TEXT PRIMARY KEY,
	lease_id TEXT NOT NULL,
	payment_id TEXT NOT NULL,
	date_applied TEXT NOT NULL,
	amount INTEGER NOT NULL,
	waived INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (lease_id) REFERENCES leases(id) ON DELETE CASCADE,
	FOREIGN KEY (payment_id) REFERENCES payment_schedules(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_late_fees_daily
	ON late_fees(lease_id, payment_id, date_applied);
`

const createSmsMessagesTable = `
CREATE TABLE IF NOT EXISTS sms_messages (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	direction TEXT NOT NULL CHECK (direction IN ('inbound', 'outbound')),
	from_e164 TEXT NOT NULL,
	to_e164 TEXT NOT NULL,
	body TEXT NOT NULL,
	provider TEXT NOT NULL,
	provider_sid TEXT,
	sent_at DATETIME NOT NULL,
	FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sms_messages_customer_id ON sms_messages(customer_id);
`

const createCustomerEventsTable = `
CREATE TABLE IF NOT EXISTS customer_events (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_customer_events_customer_id ON customer_events(customer_id);
`

const createRevokedTokensTable = `
CREATE TABLE IF NOT EXISTS revoked_tokens (
	token_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	revoked_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires_at ON revoked_tokens(expires_at);
`
