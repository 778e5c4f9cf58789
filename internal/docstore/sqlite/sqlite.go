package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/swupdate/internal/docstore"
)

// DB implements docstore.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS issues(
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			body TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY(repo, number)
		);`,
		`CREATE TABLE IF NOT EXISTS issue_comments(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_issue_comments_issue ON issue_comments(repo, number);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Get(ctx context.Context, k docstore.Key) (docstore.Issue, error) {
	is := docstore.Issue{Key: k}
	err := s.db.QueryRowContext(ctx,
		`SELECT body, updated_at FROM issues WHERE repo=? AND number=?;`, k.Repo, k.Number).
		Scan(&is.Body, &is.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Issue{}, docstore.ErrNotFound
	}
	return is, err
}

func (s *DB) Put(ctx context.Context, k docstore.Key, body string) (docstore.Issue, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues(repo, number, body, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(repo, number) DO UPDATE SET
			body=excluded.body,
			updated_at=excluded.updated_at;`,
		k.Repo, k.Number, body, now)
	if err != nil {
		return docstore.Issue{}, err
	}
	return docstore.Issue{Key: k, Body: body, UpdatedAt: now}, nil
}

func (s *DB) Update(ctx context.Context, k docstore.Key, body string) (docstore.Issue, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET body=?, updated_at=? WHERE repo=? AND number=?;`, body, now, k.Repo, k.Number)
	if err != nil {
		return docstore.Issue{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return docstore.Issue{}, err
	} else if n == 0 {
		return docstore.Issue{}, docstore.ErrNotFound
	}
	return docstore.Issue{Key: k, Body: body, UpdatedAt: now}, nil
}

func (s *DB) AddComment(ctx context.Context, k docstore.Key, body string) (docstore.Comment, error) {
	if _, err := s.Get(ctx, k); err != nil {
		return docstore.Comment{}, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO issue_comments(repo, number, body, created_at) VALUES(?, ?, ?, ?);`,
		k.Repo, k.Number, body, now)
	if err != nil {
		return docstore.Comment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return docstore.Comment{}, err
	}
	return docstore.Comment{ID: id, Key: k, Body: body, CreatedAt: now}, nil
}

func (s *DB) Comments(ctx context.Context, k docstore.Key) ([]docstore.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, created_at FROM issue_comments
		WHERE repo=? AND number=?
		ORDER BY id;`, k.Repo, k.Number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows, k)
}

func scanComments(rows *sql.Rows, k docstore.Key) ([]docstore.Comment, error) {
	out := make([]docstore.Comment, 0)
	for rows.Next() {
		c := docstore.Comment{Key: k}
		if err := rows.Scan(&c.ID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
