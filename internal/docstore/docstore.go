// Package docstore persists issue bodies and their comments for the
// self-hosted issue server.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for an issue that was never stored.
var ErrNotFound = errors.New("issue not found")

// Key addresses one issue. Repo is "owner/name".
type Key struct {
	Repo   string
	Number int
}

func (k Key) String() string { return fmt.Sprintf("%s#%d", k.Repo, k.Number) }

// Issue is the stored body of an issue. UpdatedAt is in UTC.
type Issue struct {
	Key       Key
	Body      string
	UpdatedAt time.Time
}

type Comment struct {
	ID        int64
	Key       Key
	Body      string
	CreatedAt time.Time
}

// Store keeps the latest body of each issue and an append-only comment log.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, k Key) (Issue, error)
	// Put creates the issue or replaces its body.
	Put(ctx context.Context, k Key, body string) (Issue, error)
	// Update replaces the body of an existing issue and fails with
	// ErrNotFound otherwise.
	Update(ctx context.Context, k Key, body string) (Issue, error)
	AddComment(ctx context.Context, k Key, body string) (Comment, error)
	// Comments lists comments oldest first.
	Comments(ctx context.Context, k Key) ([]Comment, error)
	Close() error
}
