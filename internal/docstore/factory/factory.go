package factory

import (
	"context"
	"errors"
	"strings"

	"github.com/loykin/swupdate/internal/docstore"
	pg "github.com/loykin/swupdate/internal/docstore/postgres"
	sq "github.com/loykin/swupdate/internal/docstore/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite:///<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (docstore.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):])
	}
	// default to sqlite path
	return sq.New(d)
}

// Open builds the store for dsn and ensures its schema.
func Open(ctx context.Context, dsn string) (docstore.Store, error) {
	s, err := NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
