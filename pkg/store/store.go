// Package store persists discovered artists and search completion records
// in Postgres.
//
// Both writes are insert-or-ignore: the first writer wins on artists, and a
// conflicting completion insert is absorbed as success so duplicate workers
// on the same prefix stay harmless.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/soundlattice/artistcrawl/pkg/spotify"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is the narrow database surface the store needs. *sqlx.DB satisfies it;
// tests substitute a sqlmock-backed instance.
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// SearchProgress is one completion record.
type SearchProgress struct {
	Query     string    `db:"query" json:"query"`
	Artists   int       `db:"artists" json:"artists_found"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store wraps the database handle.
type Store struct {
	db DB
}

// New creates a store over an existing handle.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres via the pgx stdlib driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*Store, *sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db), db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Ping reports database reachability. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertArtists inserts artists, ignoring ones already present. The first
// writer wins; mutable fields are not refreshed.
func (s *Store) UpsertArtists(ctx context.Context, artists []spotify.Artist) error {
	if len(artists) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]interface{}, 0, len(artists)*4)
	)
	sb.WriteString("INSERT INTO artists (id, name, genres, popularity) VALUES ")
	for i, a := range artists {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, a.ID, a.Name, pq.StringArray(a.Genres), a.Popularity)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert %d artists: %w", len(artists), err)
	}
	return nil
}

// RecordCompletion durably marks query as fully walked. A conflicting
// insert means another worker finished first and is treated as success.
func (s *Store) RecordCompletion(ctx context.Context, query string, artistsFound int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_progress (query, artists) VALUES ($1, $2)
		 ON CONFLICT (query) DO NOTHING`,
		query, artistsFound,
	)
	if err != nil {
		return fmt.Errorf("record completion for %q: %w", query, err)
	}
	return nil
}

// CompletionExists reports whether query already has a completion record.
func (s *Store) CompletionExists(ctx context.Context, query string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one,
		`SELECT 1 FROM search_progress WHERE query = $1`, query)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check completion for %q: %w", query, err)
	}
	return true, nil
}

// LastCompletedQuery returns the highest completed query, or "" when the
// table is empty. Seeds the prefix cursor on cold start.
func (s *Store) LastCompletedQuery(ctx context.Context) (string, error) {
	var query string
	err := s.db.GetContext(ctx, &query,
		`SELECT query FROM search_progress ORDER BY query DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read last completed query: %w", err)
	}
	return query, nil
}

// CountArtists returns the number of stored artists.
func (s *Store) CountArtists(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM artists`); err != nil {
		return 0, fmt.Errorf("count artists: %w", err)
	}
	return n, nil
}

// CountCompletions returns the number of completed searches.
func (s *Store) CountCompletions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM search_progress`); err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return n, nil
}

// EarliestCompletion returns the timestamp of the first completion, or nil
// when none exist.
func (s *Store) EarliestCompletion(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := s.db.GetContext(ctx, &t,
		`SELECT min(created_at) FROM search_progress`)
	if err != nil {
		return nil, fmt.Errorf("read earliest completion: %w", err)
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// RecentCompletions returns the latest completion records, newest first.
func (s *Store) RecentCompletions(ctx context.Context, limit int) ([]SearchProgress, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []SearchProgress
	err := s.db.SelectContext(ctx, &out,
		`SELECT query, artists, created_at FROM search_progress
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("read recent completions: %w", err)
	}
	return out, nil
}
