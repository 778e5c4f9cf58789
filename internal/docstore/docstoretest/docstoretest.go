// Package docstoretest holds behaviour checks shared by every docstore
// implementation.
package docstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/swupdate/internal/docstore"
)

// Run exercises s, which must have its schema in place and hold no data.
func Run(t *testing.T, s docstore.Store) {
	t.Helper()
	ctx := context.Background()
	k := docstore.Key{Repo: "acme/fleet", Number: 7}
	other := docstore.Key{Repo: "acme/fleet", Number: 8}

	_, err := s.Get(ctx, k)
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = s.Update(ctx, k, "body")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = s.AddComment(ctx, k, "hello")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	created, err := s.Put(ctx, k, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", created.Body)

	got, err := s.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Body)
	assert.Equal(t, k, got.Key)

	_, err = s.Update(ctx, k, "v2\n| row |")
	require.NoError(t, err)
	got, err = s.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "v2\n| row |", got.Body)

	_, err = s.Put(ctx, k, "v3")
	require.NoError(t, err)
	got, _ = s.Get(ctx, k)
	assert.Equal(t, "v3", got.Body)

	_, err = s.Get(ctx, other)
	require.ErrorIs(t, err, docstore.ErrNotFound)

	c1, err := s.AddComment(ctx, k, "first")
	require.NoError(t, err)
	c2, err := s.AddComment(ctx, k, "second")
	require.NoError(t, err)
	assert.Greater(t, c2.ID, c1.ID)

	cs, err := s.Comments(ctx, k)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "first", cs[0].Body)
	assert.Equal(t, "second", cs[1].Body)

	cs, err = s.Comments(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, cs)
}
