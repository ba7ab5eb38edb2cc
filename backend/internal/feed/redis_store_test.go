package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	key := model.FeedKey{UserID: "bob", Group: "news"}

	created, err := store.Create(ctx, key, []model.UserID{"carol", "alice", "carol"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []model.UserID{"alice", "carol"}, created.Accounts)
	assert.Equal(t, model.SortDate, created.Sort)

	found, err := store.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "news", found.Name)
	assert.Equal(t, model.UserID("bob"), found.UserID)
	assert.Equal(t, []model.UserID{"alice", "carol"}, found.Accounts)
	assert.False(t, found.ShowViewedPosts)
	assert.Empty(t, found.Posts)
}

func TestRedisStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	key := model.FeedKey{UserID: "bob", Group: "news"}

	_, err := store.Create(ctx, key, nil, 1)
	require.NoError(t, err)

	_, err = store.Create(ctx, key, []model.UserID{"alice"}, 2)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDuplicate))

	found, err := store.Find(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, found.Accounts, "duplicate create must not touch the existing feed")
}

func TestRedisStore_FindMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Find(context.Background(), model.FeedKey{UserID: "nobody", Group: "news"})
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
}

func TestRedisStore_AccountDeltas(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	key := model.FeedKey{UserID: "bob", Group: "news"}

	_, err := store.Create(ctx, key, []model.UserID{"alice"}, 5)
	require.NoError(t, err)

	t.Run("delta at or below seed version is ignored", func(t *testing.T) {
		applied, err := store.AddAccountToFeed(ctx, key, "carol", 5)
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = store.RemoveAccountFromFeed(ctx, key, "alice", 4)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("newer delta applies once", func(t *testing.T) {
		applied, err := store.AddAccountToFeed(ctx, key, "carol", 6)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = store.AddAccountToFeed(ctx, key, "carol", 6)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("out of order removal loses to later add", func(t *testing.T) {
		applied, err := store.AddAccountToFeed(ctx, key, "dave", 9)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = store.RemoveAccountFromFeed(ctx, key, "dave", 8)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("newer removal applies", func(t *testing.T) {
		applied, err := store.RemoveAccountFromFeed(ctx, key, "alice", 10)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	found, err := store.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []model.UserID{"carol", "dave"}, found.Accounts)
}

func TestRedisStore_DeltaOnMissingFeed(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.AddAccountToFeed(context.Background(), model.FeedKey{UserID: "bob", Group: "gone"}, "alice", 2)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
}

func TestRedisStore_Settings(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	key := model.FeedKey{UserID: "bob", Group: "news"}
	_, err := store.Create(ctx, key, nil, 1)
	require.NoError(t, err)

	require.NoError(t, store.SetSort(ctx, key, model.SortReactCount))
	require.NoError(t, store.SetShowViewedPosts(ctx, key, true))

	found, err := store.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.SortReactCount, found.Sort)
	assert.True(t, found.ShowViewedPosts)

	missing := model.FeedKey{UserID: "bob", Group: "other"}
	assert.True(t, errors.IsErrorType(store.SetSort(ctx, missing, model.SortDate), errors.ErrorTypeNotFound))
	assert.True(t, errors.IsErrorType(store.SetShowViewedPosts(ctx, missing, true), errors.ErrorTypeNotFound))
}

func TestRedisStore_AppendPostOrdering(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	store.maxPosts = 3
	key := model.FeedKey{UserID: "bob", Group: "news"}
	_, err := store.Create(ctx, key, []model.UserID{"alice"}, 1)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ref := range []model.PostRef{"p1", "p2", "p3", "p4"} {
		require.NoError(t, store.AppendPost(ctx, key, model.FeedPost{
			Ref:      ref,
			AuthorID: "alice",
			PostedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	found, err := store.Find(ctx, key)
	require.NoError(t, err)
	require.Len(t, found.Posts, 3, "oldest post is trimmed past the cap")
	assert.Equal(t, model.PostRef("p4"), found.Posts[0].Ref)
	assert.Equal(t, model.PostRef("p2"), found.Posts[2].Ref)
	assert.Equal(t, model.UserID("alice"), found.Posts[0].AuthorID)
	assert.True(t, found.Posts[0].PostedAt.Equal(base.Add(3*time.Minute)))

	require.NoError(t, store.SetSort(ctx, key, model.SortDateReversed))
	found, err = store.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.PostRef("p2"), found.Posts[0].Ref)

	err = store.AppendPost(ctx, model.FeedKey{UserID: "x", Group: "news"}, model.FeedPost{Ref: "p5", AuthorID: "alice", PostedAt: base})
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
}

func TestRedisStore_DeleteAndIndex(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	group := "sports & news"

	for _, u := range []model.UserID{"bob", "alice"} {
		_, err := store.Create(ctx, model.FeedKey{UserID: u, Group: group}, nil, 1)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, model.FeedKey{UserID: "bob", Group: "other"}, nil, 1)
	require.NoError(t, err)

	users, err := store.ListFeedUsers(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []model.UserID{"alice", "bob"}, users)

	require.NoError(t, store.Delete(ctx, model.FeedKey{UserID: "bob", Group: group}))
	require.NoError(t, store.Delete(ctx, model.FeedKey{UserID: "bob", Group: group}), "deleting twice is a no-op")

	users, err = store.ListFeedUsers(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []model.UserID{"alice"}, users)

	_, err = store.Find(ctx, model.FeedKey{UserID: "bob", Group: "other"})
	assert.NoError(t, err, "feeds of other groups are untouched")
	assert.False(t, mr.Exists("feed:sports+%26+news:bob"))
	assert.True(t, mr.Exists("feed:sports+%26+news:alice"))
}

func TestRedisStore_RemovedAccountTakesPosts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	key := model.FeedKey{UserID: "bob", Group: "news"}
	_, err := store.Create(ctx, key, []model.UserID{"alice", "al"}, 1)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendPost(ctx, key, model.FeedPost{Ref: "p1", AuthorID: "alice", PostedAt: base}))
	require.NoError(t, store.AppendPost(ctx, key, model.FeedPost{Ref: "x:1", AuthorID: "al", PostedAt: base.Add(time.Minute)}))
	require.NoError(t, store.AppendPost(ctx, key, model.FeedPost{Ref: "p2", AuthorID: "mallory", PostedAt: base}), "outsider posts are skipped, not rejected")

	found, err := store.Find(ctx, key)
	require.NoError(t, err)
	require.Len(t, found.Posts, 2)

	applied, err := store.RemoveAccountFromFeed(ctx, key, "al", 2)
	require.NoError(t, err)
	require.True(t, applied)

	found, err = store.Find(ctx, key)
	require.NoError(t, err)
	require.Len(t, found.Posts, 1, "only the removed account's posts go")
	assert.Equal(t, model.UserID("alice"), found.Posts[0].AuthorID)

	// a stale removal must not purge anything
	applied, err = store.RemoveAccountFromFeed(ctx, key, "alice", 1)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, store.AppendPost(ctx, key, model.FeedPost{Ref: "p3", AuthorID: "al", PostedAt: base.Add(time.Hour)}))
	found, err = store.Find(ctx, key)
	require.NoError(t, err)
	assert.Len(t, found.Posts, 1, "a removed account cannot post into the feed")
}

func TestRedisStore_KeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	first := model.FeedKey{UserID: "c", Group: "a:b"}
	second := model.FeedKey{UserID: "b:c", Group: "a"}

	_, err := store.Create(ctx, first, []model.UserID{"x"}, 1)
	require.NoError(t, err)
	_, err = store.Create(ctx, second, []model.UserID{"y"}, 1)
	require.NoError(t, err, "distinct feeds must not share keys")

	found, err := store.Find(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []model.UserID{"x"}, found.Accounts)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendPost(ctx, second, model.FeedPost{Ref: "r1", AuthorID: "y", PostedAt: base}))
	found, err = store.Find(ctx, second)
	require.NoError(t, err)
	require.Len(t, found.Posts, 1)
	assert.Equal(t, model.UserID("y"), found.Posts[0].AuthorID)
}
