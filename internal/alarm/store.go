// Package alarm persists user alarms and fires them on time.
//
// Alarms survive restarts in a SQLite file. The [Scheduler] polls the store
// once a second and claims at most one due alarm per tick; the claim
// deactivates the row in the same transaction, so a crash between claim and
// playback never double-fires an alarm.
package alarm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an alarm id does not exist.
var ErrNotFound = errors.New("alarm: not found")

// Alarm is one scheduled wake-up or reminder. IDs are the table's
// autoincrement rowids, so they stay short enough to speak or type.
type Alarm struct {
	ID       int64
	FireTime time.Time
	Message  string

	// Theme steers cheerword generation ("gentle", "energetic", ...).
	Theme string

	// Cheerword is the pre-generated announcement line, filled at creation
	// so firing never waits on a language model.
	Cheerword string

	Active    bool
	CreatedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS alarms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	fire_time  INTEGER NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	theme      TEXT NOT NULL DEFAULT '',
	cheerword  TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alarms_due ON alarms(active, fire_time);
`

// Store is the SQLite-backed alarm table.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the alarm database at path. Use
// ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("alarm: open database: %w", err)
	}
	// The scheduler and conversation goroutines share one connection;
	// modernc's driver serializes per connection, and a single connection
	// sidesteps SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("alarm: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new active alarm and returns it with ID and CreatedAt
// filled.
func (s *Store) Create(ctx context.Context, a Alarm) (Alarm, error) {
	if a.FireTime.IsZero() {
		return Alarm{}, errors.New("alarm: fire time is required")
	}
	a.Active = true
	a.CreatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alarms (fire_time, message, theme, cheerword, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		a.FireTime.Unix(), a.Message, a.Theme, a.Cheerword, a.CreatedAt.Unix())
	if err != nil {
		return Alarm{}, fmt.Errorf("alarm: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Alarm{}, fmt.Errorf("alarm: insert id: %w", err)
	}
	a.ID = id
	return a, nil
}

// Get returns the alarm with the given id.
func (s *Store) Get(ctx context.Context, id int64) (Alarm, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fire_time, message, theme, cheerword, active, created_at
		FROM alarms WHERE id = ?`, id)
	return scanAlarm(row)
}

// ListActive returns all active alarms ordered by fire time.
func (s *Store) ListActive(ctx context.Context) ([]Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fire_time, message, theme, cheerword, active, created_at
		FROM alarms WHERE active = 1 ORDER BY fire_time`)
	if err != nil {
		return nil, fmt.Errorf("alarm: list: %w", err)
	}
	defer rows.Close()

	var out []Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Deactivate marks an alarm inactive without deleting its history.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alarms SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("alarm: deactivate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an alarm entirely.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("alarm: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDue atomically claims the earliest active alarm with fire_time <= now
// and deactivates it in the same statement. Returns (nil, nil) when nothing
// is due. At most one alarm is claimed per call.
func (s *Store) ClaimDue(ctx context.Context, now time.Time) (*Alarm, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE alarms SET active = 0
		WHERE id = (
			SELECT id FROM alarms
			WHERE active = 1 AND fire_time <= ?
			ORDER BY fire_time LIMIT 1
		)
		RETURNING id, fire_time, message, theme, cheerword, active, created_at`,
		now.Unix())
	a, err := scanAlarm(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row rowScanner) (Alarm, error) {
	var (
		a        Alarm
		fire     int64
		created  int64
		activeIn int
	)
	err := row.Scan(&a.ID, &fire, &a.Message, &a.Theme, &a.Cheerword, &activeIn, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Alarm{}, ErrNotFound
	}
	if err != nil {
		return Alarm{}, fmt.Errorf("alarm: scan: %w", err)
	}
	a.FireTime = time.Unix(fire, 0)
	a.CreatedAt = time.Unix(created, 0)
	a.Active = activeIn != 0
	return a, nil
}
