// Package history keeps a local SQLite log of snippet firings: which
// snippet fired, when, and how many characters were deleted and inserted.
// Expanded text is never stored.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Firing is one recorded expansion.
type Firing struct {
	ID       int64     `json:"id"`
	Snippet  string    `json:"snippet"`
	FiredAt  time.Time `json:"fired_at"`
	Deleted  int       `json:"deleted"`
	Inserted int       `json:"inserted"`
}

// Usage is a per-snippet firing count.
type Usage struct {
	Snippet   string    `json:"snippet"`
	Count     int64     `json:"count"`
	LastFired time.Time `json:"last_fired"`
}

// Store is the SQLite firing log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts a firing and returns its ID.
func (s *Store) Record(ctx context.Context, f Firing) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO firings (snippet, fired_at_ns, deleted_chars, inserted_chars)
		VALUES (?, ?, ?, ?)`,
		f.Snippet, f.FiredAt.UnixNano(), f.Deleted, f.Inserted,
	)
	if err != nil {
		return 0, fmt.Errorf("insert firing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// RecordFiring records a firing from the engine.
func (s *Store) RecordFiring(snippet string, at time.Time, deleted, inserted int) error {
	_, err := s.Record(context.Background(), Firing{
		Snippet:  snippet,
		FiredAt:  at,
		Deleted:  deleted,
		Inserted: inserted,
	})
	return err
}

// Recent returns up to limit firings, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, snippet, fired_at_ns, deleted_chars, inserted_chars
		FROM firings ORDER BY fired_at_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	var out []Firing
	for rows.Next() {
		var f Firing
		var ns int64
		if err := rows.Scan(&f.ID, &f.Snippet, &ns, &f.Deleted, &f.Inserted); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		f.FiredAt = time.Unix(0, ns)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Top returns the most used snippets since the given time.
func (s *Store) Top(ctx context.Context, since time.Time, limit int) ([]Usage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snippet, COUNT(*) AS n, MAX(fired_at_ns)
		FROM firings WHERE fired_at_ns >= ?
		GROUP BY snippet ORDER BY n DESC, snippet ASC LIMIT ?`,
		since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []Usage
	for rows.Next() {
		var u Usage
		var ns int64
		if err := rows.Scan(&u.Snippet, &u.Count, &ns); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.LastFired = time.Unix(0, ns)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count returns the number of recorded firings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM firings").Scan(&n); err != nil {
		return 0, fmt.Errorf("count firings: %w", err)
	}
	return n, nil
}

// Prune deletes firings older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM firings WHERE fired_at_ns < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune firings: %w", err)
	}
	return res.RowsAffected()
}
