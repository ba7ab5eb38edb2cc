package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fritter/backend/pkg/config"
)

func TestOpenStores_Memory(t *testing.T) {
	st, err := openStores(context.Background(), &config.Config{Storage: config.StorageMemory})
	require.NoError(t, err)
	defer st.Close()

	assert.NotNil(t, st.edges)
	assert.NotNil(t, st.groups)
	assert.NotNil(t, st.feeds)
	assert.NotNil(t, st.users)
}

func TestSeedUsers(t *testing.T) {
	ctx := context.Background()
	st, err := openStores(ctx, &config.Config{Storage: config.StorageMemory})
	require.NoError(t, err)

	require.NoError(t, seedUsers(ctx, st.users, []string{"alice", "bob"}))
	alice, err := st.users.ResolveID(ctx, "alice")
	require.NoError(t, err)

	// seeding again keeps the existing ids
	require.NoError(t, seedUsers(ctx, st.users, []string{"alice"}))
	again, err := st.users.ResolveID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, again)

	name, err := st.users.ResolveUsername(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestSeedUsers_RejectsBlank(t *testing.T) {
	ctx := context.Background()
	st, err := openStores(ctx, &config.Config{Storage: config.StorageMemory})
	require.NoError(t, err)

	assert.Error(t, seedUsers(ctx, st.users, []string{" "}))
}
