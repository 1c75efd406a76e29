package kv

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, ProjectKey("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, ProjectKey("beta"), []byte(`{"slug":"beta"}`)))
	require.NoError(t, s.Put(ctx, ProjectKey("alpha"), []byte(`{"slug":"alpha"}`)))
	require.NoError(t, s.Put(ctx, PanelistKey("42"), []byte(`{"id":"42"}`)))

	value, found, err := s.Get(ctx, ProjectKey("alpha"))
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"slug":"alpha"}`, string(value))

	projects, err := s.List(ctx, ProjectsPrefix)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "projects:alpha", projects[0].Key)
	assert.Equal(t, "projects:beta", projects[1].Key)

	require.NoError(t, s.Put(ctx, ProjectKey("alpha"), []byte(`{"slug":"alpha","score":3}`)))
	value, _, err = s.Get(ctx, ProjectKey("alpha"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"slug":"alpha","score":3}`, string(value))

	require.NoError(t, s.Delete(ctx, PanelistKey("42")))
	require.NoError(t, s.Delete(ctx, PanelistKey("42")), "deleting a missing key is not an error")

	panelists, err := s.List(ctx, PanelistsPrefix)
	require.NoError(t, err)
	assert.Empty(t, panelists)

	assert.NoError(t, s.Health(ctx))
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value := []byte(`{"a":1}`)
	require.NoError(t, m.Put(ctx, "k", value))
	value[2] = 'X'

	got, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
	assert.Equal(t, 1, m.Len())
}

func TestMemory_PrefixIsExact(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "projects:a", []byte(`{}`)))
	require.NoError(t, m.Put(ctx, "projectsx:b", []byte(`{}`)))

	entries, err := m.List(ctx, ProjectsPrefix)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "projects:a", entries[0].Key)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `round\*1:projects:`, escapeGlob("round*1:projects:"))
	assert.Equal(t, `a\?b\[c\]`, escapeGlob("a?b[c]"))
}

func TestRedis_Contract(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Requires redis - set REDIS_URL to run")
	}

	s, err := NewRedis(url, "panel-vote-test:")
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, ProjectKey("alpha")))
	require.NoError(t, s.Delete(ctx, ProjectKey("beta")))
}

func TestPostgres_Contract(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Requires database - set DATABASE_URL to run (kv_entries must be migrated)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `DELETE FROM kv_entries`)
	require.NoError(t, err)

	exerciseStore(t, NewPostgres(pool))
}
