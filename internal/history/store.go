package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
)

const defaultMaxEntries = 500

// Entry is one executed request. History is diagnostic only; the volatile
// chaining cache lives elsewhere and is never written here.
type Entry struct {
	ID          int64
	ExecutedAt  time.Time
	Environment string
	RequestName string
	Method      string
	URL         string
	Status      string
	StatusCode  int
	Duration    time.Duration
	BodySnippet string
}

type Store struct {
	db         *sql.DB
	maxEntries int
}

func Open(path string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "create history dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "open history db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeHistory, err, "connect history db")
	}

	s := &Store{db: db, maxEntries: maxEntries}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	executed_at TEXT NOT NULL,
	environment TEXT NOT NULL DEFAULT '',
	request_name TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	body_snippet TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_entries_request ON entries(request_name);
CREATE INDEX IF NOT EXISTS idx_entries_executed_at ON entries(executed_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "init history schema")
	}
	return nil
}

func (s *Store) Append(entry Entry) error {
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	_, err := s.db.Exec(`
INSERT INTO entries
	(executed_at, environment, request_name, method, url, status, status_code, duration_ms, body_snippet)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ExecutedAt.UTC().Format(time.RFC3339Nano),
		entry.Environment,
		entry.RequestName,
		entry.Method,
		entry.URL,
		entry.Status,
		entry.StatusCode,
		entry.Duration.Milliseconds(),
		entry.BodySnippet,
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "append history entry")
	}
	return s.prune()
}

// prune keeps the newest maxEntries rows.
func (s *Store) prune() error {
	_, err := s.db.Exec(`
DELETE FROM entries WHERE id NOT IN (
	SELECT id FROM entries ORDER BY executed_at DESC, id DESC LIMIT ?
)`, s.maxEntries)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "prune history")
	}
	return nil
}

func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	rows, err := s.db.Query(`
SELECT id, executed_at, environment, request_name, method, url, status, status_code, duration_ms, body_snippet
FROM entries ORDER BY executed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "read history")
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ByRequest(name string, limit int) ([]Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.Recent(limit)
	}
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	rows, err := s.db.Query(`
SELECT id, executed_at, environment, request_name, method, url, status, status_code, duration_ms, body_snippet
FROM entries WHERE request_name = ? OR url = ?
ORDER BY executed_at DESC, id DESC LIMIT ?`, name, name, limit)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "read history for %s", name)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			executedAt string
			durationMS int64
		)
		if err := rows.Scan(
			&entry.ID,
			&executedAt,
			&entry.Environment,
			&entry.RequestName,
			&entry.Method,
			&entry.URL,
			&entry.Status,
			&entry.StatusCode,
			&durationMS,
			&entry.BodySnippet,
		); err != nil {
			return nil, errdef.Wrap(errdef.CodeHistory, err, "scan history entry")
		}
		if ts, err := time.Parse(time.RFC3339Nano, executedAt); err == nil {
			entry.ExecutedAt = ts
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "iterate history")
	}
	return entries, nil
}
