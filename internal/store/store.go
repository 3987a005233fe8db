// Package store is the persistence boundary for captured attendance events.
//
// The store runs on database/sql with one of two drivers: mattn/go-sqlite3
// for the default device-local file, or pgx for kiosk deployments that share
// a central queue. Queries are written with ? placeholders and rebound to $n
// for postgres.
//
// Writes are serialized: sqlite is opened with a single connection (one
// writer, no SQLITE_BUSY churn) and every mutation is a single statement, so
// insert-with-dedup and state updates cannot interleave partially.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Lifecycle states of a stored event. The only legal transition is
// pending -> synchronized.
const (
	StatePending      = "pending"
	StateSynchronized = "synchronized"
)

// DriverSQLite and DriverPostgres are the accepted driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Event is a durably queued attendance submission.
type Event struct {
	ID            int64
	URL           string // canonical request string, replayed verbatim
	DedupKey      string // structured idempotency key (teacher|type|date)
	ScannedAt     time.Time
	State         string
	Diagnostic    string
	TeacherID     int
	DeviceID      string
	Latitude      string
	Longitude     string
	Type          string
	Attempts      int
	NextAttemptAt time.Time
}

// Store wraps the SQL connection and the driver dialect.
type Store struct {
	db     *sql.DB
	driver string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS attendance_events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	url             TEXT NOT NULL,
	dedup_key       TEXT NOT NULL UNIQUE,
	scanned_at      DATETIME NOT NULL,
	state           TEXT NOT NULL DEFAULT 'pending',
	diagnostic      TEXT NOT NULL DEFAULT '',
	teacher_id      INTEGER NOT NULL,
	device_id       TEXT NOT NULL DEFAULT '',
	latitude        TEXT NOT NULL DEFAULT '0',
	longitude       TEXT NOT NULL DEFAULT '0',
	type            TEXT NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL DEFAULT 0,
	next_attempt_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_state ON attendance_events(state, next_attempt_at);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS attendance_events (
	id              BIGSERIAL PRIMARY KEY,
	url             TEXT NOT NULL,
	dedup_key       TEXT NOT NULL UNIQUE,
	scanned_at      TIMESTAMPTZ NOT NULL,
	state           TEXT NOT NULL DEFAULT 'pending',
	diagnostic      TEXT NOT NULL DEFAULT '',
	teacher_id      INTEGER NOT NULL,
	device_id       TEXT NOT NULL DEFAULT '',
	latitude        TEXT NOT NULL DEFAULT '0',
	longitude       TEXT NOT NULL DEFAULT '0',
	type            TEXT NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_state ON attendance_events(state, next_attempt_at);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Open creates or opens the event store. For sqlite the DSN is a file path
// (":memory:" works for tests); for pgx it is a connection URL.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if driver == DriverSQLite {
		// Single writer: sqlite permits one writer at a time and the
		// orchestrator and reconciler mutate concurrently.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("apply %q: %w", pragma, err)
			}
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect store: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) applySchema() error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Healthy verifies the store is reachable.
func (s *Store) Healthy(ctx context.Context) bool {
	if s == nil || s.db == nil {
		return false
	}
	return s.db.PingContext(ctx) == nil
}

// rebind converts ? placeholders to $n for postgres. Queries in this package
// are written in the sqlite dialect shared by both engines.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exists reports whether an event with the given dedup key is stored.
func (s *Store) Exists(ctx context.Context, dedupKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT 1 FROM attendance_events WHERE dedup_key = ?`), dedupKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

// InsertPending queues a new event. A duplicate dedup key is a silent no-op:
// the second return value is false and no row is written. The insert and the
// dedup check are one statement, so concurrent inserts of the same logical
// event cannot both land.
func (s *Store) InsertPending(ctx context.Context, evt Event) (int64, bool, error) {
	if evt.State == "" {
		evt.State = StatePending
	}
	if evt.NextAttemptAt.IsZero() {
		evt.NextAttemptAt = evt.ScannedAt
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO attendance_events
			(url, dedup_key, scanned_at, state, diagnostic, teacher_id, device_id, latitude, longitude, type, attempts, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(dedup_key) DO NOTHING
		RETURNING id
	`), evt.URL, evt.DedupKey, evt.ScannedAt, evt.State, evt.Diagnostic,
		evt.TeacherID, evt.DeviceID, evt.Latitude, evt.Longitude, evt.Type, evt.NextAttemptAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert pending: %w", err)
	}
	return id, true, nil
}

const eventColumns = `id, url, dedup_key, scanned_at, state, diagnostic, teacher_id, device_id, latitude, longitude, type, attempts, next_attempt_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var evt Event
	err := row.Scan(&evt.ID, &evt.URL, &evt.DedupKey, &evt.ScannedAt, &evt.State,
		&evt.Diagnostic, &evt.TeacherID, &evt.DeviceID, &evt.Latitude, &evt.Longitude,
		&evt.Type, &evt.Attempts, &evt.NextAttemptAt)
	return evt, err
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// ListPending returns queued events, most recent scan first.
func (s *Store) ListPending(ctx context.Context) ([]Event, error) {
	return s.list(ctx, `
		SELECT `+eventColumns+` FROM attendance_events
		WHERE state = ? ORDER BY scanned_at DESC, id DESC`, StatePending)
}

// ListAll returns every stored event, most recent scan first.
func (s *Store) ListAll(ctx context.Context) ([]Event, error) {
	return s.list(ctx, `
		SELECT `+eventColumns+` FROM attendance_events
		ORDER BY scanned_at DESC, id DESC`)
}

// ListDue returns pending events whose backoff has elapsed and whose retry
// budget is not exhausted. Order is unspecified for reconciliation; insertion
// order keeps runs predictable.
func (s *Store) ListDue(ctx context.Context, now time.Time, maxAttempts int) ([]Event, error) {
	return s.list(ctx, `
		SELECT `+eventColumns+` FROM attendance_events
		WHERE state = ? AND next_attempt_at <= ? AND attempts < ?
		ORDER BY id ASC`, StatePending, now, maxAttempts)
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(ctx context.Context, id int64) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+eventColumns+` FROM attendance_events WHERE id = ?`), id)
	evt, err := scanEvent(row)
	if err != nil {
		return Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	return evt, nil
}

// MarkSynchronized flips an event to the synchronized state. Idempotent:
// marking an already synchronized event changes nothing.
func (s *Store) MarkSynchronized(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE attendance_events SET state = ? WHERE id = ?`), StateSynchronized, id)
	if err != nil {
		return fmt.Errorf("mark synchronized: %w", err)
	}
	return nil
}

// UpdateDiagnostic replaces the free-form sync-status text of an event.
func (s *Store) UpdateDiagnostic(ctx context.Context, id int64, text string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE attendance_events SET diagnostic = ? WHERE id = ?`), text, id)
	if err != nil {
		return fmt.Errorf("update diagnostic: %w", err)
	}
	return nil
}

// RecordAttempt stores the result of a failed submission attempt: new
// diagnostic text, the bumped attempt count, and when the event is next due.
func (s *Store) RecordAttempt(ctx context.Context, id int64, diagnostic string, attempts int, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE attendance_events SET diagnostic = ?, attempts = ?, next_attempt_at = ?
		WHERE id = ?`), diagnostic, attempts, nextAttemptAt, id)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Delete removes one event.
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM attendance_events WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	return nil
}

// DeleteAll removes every stored event.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attendance_events`); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}

// DeletePending removes only still-queued events.
func (s *Store) DeletePending(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM attendance_events WHERE state = ?`), StatePending)
	if err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	return nil
}

// LastURL returns the request string of the most recently scanned event, or
// "" when the store is empty.
func (s *Store) LastURL(ctx context.Context) (string, error) {
	var u string
	err := s.db.QueryRowContext(ctx, `
		SELECT url FROM attendance_events
		ORDER BY scanned_at DESC, id DESC LIMIT 1`).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last url: %w", err)
	}
	return u, nil
}

// CountPendingByTeacher counts queued events for one teacher.
func (s *Store) CountPendingByTeacher(ctx context.Context, teacherID int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM attendance_events
		WHERE state = ? AND teacher_id = ?`), StatePending, teacherID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}
