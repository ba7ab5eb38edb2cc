package directory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fritter/backend/pkg/errors"
)

// These tests require a running Postgres instance reachable through DB_URL
func newTestDirectory(t *testing.T) *PostgresDirectory {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	url := os.Getenv("DB_URL")
	if url == "" {
		t.Skip("DB_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	dir := NewPostgresDirectory(pool)
	require.NoError(t, dir.EnsureSchema(ctx))
	return dir
}

func TestPostgresDirectory_RoundTrip(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()
	username := "test-user-" + time.Now().Format("20060102150405.000")

	id, err := dir.CreateUser(ctx, username)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = dir.db.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, string(id))
	})

	resolved, err := dir.ResolveID(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	name, err := dir.ResolveUsername(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, username, name)

	_, err = dir.CreateUser(ctx, username)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDuplicate))
}

func TestPostgresDirectory_Unknown(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.ResolveID(ctx, "nobody-"+time.Now().Format("150405.000"))
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))

	_, err = dir.ResolveUsername(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
}
