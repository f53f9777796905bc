package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rexliu/geckowire/pkg/session"
)

// Store owns the SQLite session journal for a profile.
type Store struct {
	db   *sql.DB
	path string
}

// Options tunes the connection pragmas. Empty values keep the defaults
// (WAL, NORMAL).
type Options struct {
	JournalMode string
	Synchronous string
}

// Record is one journaled session.
type Record struct {
	ID              string     `json:"id"`
	Addr            string     `json:"addr"`
	ApplicationType string     `json:"applicationType"`
	OpenedAt        time.Time  `json:"openedAt"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	CloseReason     string     `json:"closeReason,omitempty"`
}

var _ session.Journal = (*Store)(nil)

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Open initializes a SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: path}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init ensures pragmas and schema are configured.
func (s *Store) Init(ctx context.Context, opts Options) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	journal := strings.ToUpper(opts.JournalMode)
	if journal == "" {
		journal = "WAL"
	}
	sync := strings.ToUpper(opts.Synchronous)
	if sync == "" {
		sync = "NORMAL"
	}
	pragmas := []string{
		"PRAGMA journal_mode = " + journal + ";",
		"PRAGMA synchronous = " + sync + ";",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return s.applySchema(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			addr TEXT NOT NULL,
			application TEXT NOT NULL DEFAULT '',
			opened_at INTEGER NOT NULL,
			closed_at INTEGER,
			close_reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_opened ON sessions(opened_at);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// RecordOpened journals a newly bound session.
func (s *Store) RecordOpened(ctx context.Context, info session.Info) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, addr, application, opened_at)
		VALUES (?, ?, ?, ?);
	`, info.ID, info.Addr, info.ApplicationType, info.Created.UnixMilli())
	if err != nil {
		return fmt.Errorf("record opened %s: %w", info.ID, err)
	}
	return nil
}

// RecordClosed marks a session closed. Closing twice keeps the first
// timestamp and reason.
func (s *Store) RecordClosed(ctx context.Context, id, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET closed_at = ?, close_reason = ?
		WHERE id = ? AND closed_at IS NULL;
	`, at.UnixMilli(), reason, id)
	if err != nil {
		return fmt.Errorf("record closed %s: %w", id, err)
	}
	return nil
}

// CloseDangling closes sessions left open by a previous run and returns
// how many were updated.
func (s *Store) CloseDangling(ctx context.Context, reason string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET closed_at = ?, close_reason = ?
		WHERE closed_at IS NULL;
	`, at.UnixMilli(), reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Get returns one session record.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, addr, application, opened_at, closed_at, close_reason
		FROM sessions WHERE id = ?;
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("session %s: %w", id, err)
	}
	return rec, err
}

// List returns the most recently opened sessions, newest first. A
// non-positive limit returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, addr, application, opened_at, closed_at, close_reason
		FROM sessions
		ORDER BY opened_at DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec    Record
		opened int64
		closed sql.NullInt64
		reason sql.NullString
	)
	if err := sc.Scan(&rec.ID, &rec.Addr, &rec.ApplicationType, &opened, &closed, &reason); err != nil {
		return Record{}, err
	}
	rec.OpenedAt = time.UnixMilli(opened)
	if closed.Valid {
		t := time.UnixMilli(closed.Int64)
		rec.ClosedAt = &t
	}
	rec.CloseReason = reason.String
	return rec, nil
}
