package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// textTimeLayout is fixed width so timestamps stored as text sort chronologically
const textTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Dialect captures the differences between the SQL backends the event log runs on.
type Dialect struct {
	// Name is the database/sql driver name
	Name string

	numbered    bool   // $1, $2 placeholders instead of ?
	insertEvent string // conditional insert, see SQLEventStore.Append
	insertSnap  string
	schema      []string
	encodeTime  func(time.Time) any
	isUnique    func(error) bool
}

var (
	// Postgres is the production dialect (github.com/lib/pq)
	Postgres = Dialect{
		Name:     "postgres",
		numbered: true,
		insertEvent: `INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		 SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS JSONB), CAST(? AS INTEGER), CAST(? AS TIMESTAMPTZ)
		 WHERE (SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?) = ?`,
		insertSnap: `INSERT INTO snapshots (id, aggregate_id, snapshot_type, version, state, created_at)
		 VALUES (?, ?, ?, ?, CAST(? AS JSONB), ?)`,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				aggregate_id TEXT NOT NULL,
				aggregate_type TEXT NOT NULL,
				event_type TEXT NOT NULL,
				data JSONB NOT NULL,
				version INTEGER NOT NULL CHECK (version > 0),
				created_at TIMESTAMPTZ NOT NULL,
				CONSTRAINT events_aggregate_version_key UNIQUE (aggregate_id, version)
			)`,
			`CREATE INDEX IF NOT EXISTS events_created_at_idx ON events (created_at)`,
			`CREATE INDEX IF NOT EXISTS events_event_type_idx ON events (event_type)`,
			`CREATE TABLE IF NOT EXISTS snapshots (
				id TEXT PRIMARY KEY,
				aggregate_id TEXT NOT NULL,
				snapshot_type TEXT NOT NULL,
				version INTEGER NOT NULL,
				state JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				CONSTRAINT snapshots_aggregate_version_key UNIQUE (aggregate_id, version)
			)`,
			`CREATE INDEX IF NOT EXISTS snapshots_lookup_idx ON snapshots (aggregate_id, snapshot_type, created_at)`,
		},
		encodeTime: func(t time.Time) any { return t.UTC() },
		isUnique:   isPostgresUniqueViolation,
	}

	// SQLite is used for local development and tests (modernc.org/sqlite)
	SQLite = Dialect{
		Name: "sqlite",
		insertEvent: `INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?
		 WHERE (SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?) = ?`,
		insertSnap: `INSERT INTO snapshots (id, aggregate_id, snapshot_type, version, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				aggregate_id TEXT NOT NULL,
				aggregate_type TEXT NOT NULL,
				event_type TEXT NOT NULL,
				data TEXT NOT NULL,
				version INTEGER NOT NULL CHECK (version > 0),
				created_at TEXT NOT NULL,
				UNIQUE (aggregate_id, version)
			)`,
			`CREATE INDEX IF NOT EXISTS events_created_at_idx ON events (created_at)`,
			`CREATE INDEX IF NOT EXISTS events_event_type_idx ON events (event_type)`,
			`CREATE TABLE IF NOT EXISTS snapshots (
				id TEXT PRIMARY KEY,
				aggregate_id TEXT NOT NULL,
				snapshot_type TEXT NOT NULL,
				version INTEGER NOT NULL,
				state TEXT NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE (aggregate_id, version)
			)`,
			`CREATE INDEX IF NOT EXISTS snapshots_lookup_idx ON snapshots (aggregate_id, snapshot_type, created_at)`,
		},
		encodeTime: func(t time.Time) any { return t.UTC().Format(textTimeLayout) },
		isUnique:   isSQLiteUniqueViolation,
	}
)

// DialectFor returns the dialect registered for a driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Name, "pgx", "postgresql":
		return Postgres, nil
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

// rebind rewrites ? placeholders into the dialect's form
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the events and snapshots tables if they do not exist
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, stmt := range dialect.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Connect opens a connection pool for the given dialect
func Connect(dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.Name, dsn)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Configure connection pool
	if dialect.Name == SQLite.Name {
		// one writer at a time; avoids SQLITE_BUSY under concurrent appends
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	return false
}

func isSQLiteUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// sqlTime scans timestamps stored either natively or as RFC 3339 text
type sqlTime struct {
	t time.Time
}

func (s *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		s.t = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		return errors.New("timestamp is null")
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (s *sqlTime) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	s.t = t.UTC()
	return nil
}
