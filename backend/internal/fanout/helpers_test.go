package fanout

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"fritter/backend/internal/feed"
	"fritter/backend/internal/memory"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

// flakyFeeds fails selected feed operations for selected users
type flakyFeeds struct {
	*memory.FeedStore
	mu       sync.Mutex
	failures map[string]int // "op/user" -> remaining failures
}

func newFlakyFeeds() *flakyFeeds {
	return &flakyFeeds{FeedStore: memory.NewFeedStore(), failures: map[string]int{}}
}

func (f *flakyFeeds) failNext(op string, user model.UserID, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"/"+string(user)] = times
}

func (f *flakyFeeds) check(op string, user model.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := op + "/" + string(user)
	if f.failures[k] > 0 {
		f.failures[k]--
		return errors.NewStoreFailed(errors.ErrorTypeFeed, op, fmt.Errorf("injected failure"))
	}
	return nil
}

func (f *flakyFeeds) AddAccountToFeed(ctx context.Context, key model.FeedKey, account model.UserID, version int64) (bool, error) {
	if err := f.check("add", key.UserID); err != nil {
		return false, err
	}
	return f.FeedStore.AddAccountToFeed(ctx, key, account, version)
}

func (f *flakyFeeds) Delete(ctx context.Context, key model.FeedKey) error {
	if err := f.check("delete", key.UserID); err != nil {
		return err
	}
	return f.FeedStore.Delete(ctx, key)
}

// recordingPublisher captures published cascade failures
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishCascadeFailed(_ context.Context, group, operation string, _ []model.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, group+"/"+operation)
	return nil
}

// feedBackends builds each feed store implementation the engine runs on
var feedBackends = []struct {
	name string
	open func(t *testing.T) FeedStore
}{
	{"memory", func(t *testing.T) FeedStore { return memory.NewFeedStore() }},
	{"redis", func(t *testing.T) FeedStore {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return feed.NewRedisStore(client)
	}},
}

type harness struct {
	graph     *memory.Graph
	feeds     FeedStore
	users     *memory.Directory
	registry  *Registry
	coord     *Coordinator
	publisher *recordingPublisher
}

func newHarness(t *testing.T, feeds FeedStore) *harness {
	t.Helper()
	if feeds == nil {
		feeds = memory.NewFeedStore()
	}
	h := &harness{
		graph:     memory.NewGraph(),
		feeds:     feeds,
		users:     memory.NewDirectory(),
		publisher: &recordingPublisher{},
	}
	h.registry = NewRegistry(h.graph, feeds, Options{Concurrency: 4, BatchSize: 3})
	relations := NewRelationshipGraph(h.graph, h.users)
	h.coord = NewCoordinator(h.registry, relations, h.users, feeds, h.publisher)
	return h
}

// user registers id under the username "name-<id>"
func (h *harness) user(t *testing.T, id model.UserID) model.UserID {
	t.Helper()
	require.NoError(t, h.users.Register(id, username(id)))
	return id
}

func username(id model.UserID) string {
	return "name-" + string(id)
}

func (h *harness) command(t *testing.T, build func(string, string) (GroupCommand, error), group string, target model.UserID) GroupCommand {
	t.Helper()
	cmd, err := build(group, username(target))
	require.NoError(t, err)
	return cmd
}

// assertFeedInvariant checks that feeds exist exactly for followers and
// that each feed lists exactly the group's accounts
func (h *harness) assertFeedInvariant(t *testing.T, group string) {
	t.Helper()
	ctx := context.Background()
	g, err := h.graph.FindGroup(ctx, group)
	require.NoError(t, err)

	feedUsers, err := h.feeds.ListFeedUsers(ctx, group)
	require.NoError(t, err)
	require.Equal(t, g.Followers, feedUsers, "feeds must exist exactly for followers")

	for _, f := range g.Followers {
		got, err := h.feeds.Find(ctx, model.FeedKey{UserID: f, Group: group})
		require.NoError(t, err)
		require.Equal(t, g.Accounts, got.Accounts, "feed of %s", f)
	}
}
