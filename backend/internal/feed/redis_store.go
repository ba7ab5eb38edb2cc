package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

// RedisStore keeps one materialized feed per (user, group) in Redis:
//
//	feed:<group>:<user>           hash   user_id, name, sort, show_viewed, seed_version
//	feed:<group>:<user>:accounts  set    accounts feeding the view
//	feed:<group>:<user>:versions  hash   account -> last applied group version
//	feed:<group>:<user>:posts     zset   <author>:ref scored by post time
//	feeds:<group>                 set    users holding a feed for the group
//
// Group, user and author segments are query-escaped, so they never contain ':'.
type RedisStore struct {
	client   redis.UniversalClient
	maxPosts int
	logger   *zap.Logger
}

// NewRedisStore creates a feed store on top of an existing client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:   client,
		maxPosts: constants.MaxFeedPosts,
		logger:   logger.Named("feed"),
	}
}

type feedKeys struct {
	meta, accounts, versions, posts, index string
}

func keysFor(key model.FeedKey) feedKeys {
	base := fmt.Sprintf("feed:%s:%s", url.QueryEscape(key.Group), url.QueryEscape(string(key.UserID)))
	return feedKeys{
		meta:     base,
		accounts: base + ":accounts",
		versions: base + ":versions",
		posts:    base + ":posts",
		index:    indexKey(key.Group),
	}
}

func indexKey(group string) string {
	return "feeds:" + url.QueryEscape(group)
}

// postPrefix is the member prefix shared by every post of author
func postPrefix(author model.UserID) string {
	return url.QueryEscape(string(author)) + ":"
}

// Create stores a new feed seeded with a point-in-time copy of accounts.
// version is the group version the copy was read at.
func (s *RedisStore) Create(ctx context.Context, key model.FeedKey, accounts []model.UserID, version int64) (*model.Feed, error) {
	k := keysFor(key)
	args := []interface{}{
		string(key.UserID),
		key.Group,
		string(model.SortDate),
		time.Now().UTC().Format(time.RFC3339),
		version,
	}
	seed := model.SortedIDs(accounts)
	for _, a := range seed {
		args = append(args, string(a))
	}

	created, err := createScript.Run(ctx, s.client, []string{k.meta, k.accounts, k.versions, k.index}, args...).Int()
	if err != nil {
		return nil, errors.NewStoreFailed(errors.ErrorTypeFeed, "create feed", err)
	}
	if created == 0 {
		return nil, errors.NewDuplicate(constants.ResourceFeed, key.String())
	}

	s.logger.Debug("Feed created",
		zap.String("feed", key.String()),
		zap.Int("accounts", len(seed)),
		zap.Int64("version", version),
	)
	return &model.Feed{
		UserID:   key.UserID,
		Name:     key.Group,
		Accounts: seed,
		Posts:    []model.FeedPost{},
		Sort:     model.SortDate,
	}, nil
}

// Find loads a feed with its accounts and posts in sort order
func (s *RedisStore) Find(ctx context.Context, key model.FeedKey) (*model.Feed, error) {
	k := keysFor(key)

	var meta *redis.MapStringStringCmd
	var accounts *redis.StringSliceCmd
	var posts *redis.ZSliceCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, k.meta)
		accounts = pipe.SMembers(ctx, k.accounts)
		posts = pipe.ZRangeWithScores(ctx, k.posts, 0, -1)
		return nil
	})
	if err != nil {
		return nil, errors.NewStoreFailed(errors.ErrorTypeFeed, "find feed", err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, errors.NewNotFound(constants.ResourceFeed, key.String())
	}

	feed := &model.Feed{
		UserID:          key.UserID,
		Name:            key.Group,
		Accounts:        toUserIDs(accounts.Val()),
		Posts:           parsePosts(posts.Val()),
		Sort:            model.SortMode(fields["sort"]),
		ShowViewedPosts: fields["show_viewed"] == "1",
	}
	if feed.Sort != model.SortDateReversed {
		// newest first for every mode but date_reversed; ranking is applied by readers
		for i, j := 0, len(feed.Posts)-1; i < j; i, j = i+1, j-1 {
			feed.Posts[i], feed.Posts[j] = feed.Posts[j], feed.Posts[i]
		}
	}
	return feed, nil
}

// Delete removes the feed; deleting a missing feed is a no-op
func (s *RedisStore) Delete(ctx context.Context, key model.FeedKey) error {
	k := keysFor(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k.meta, k.accounts, k.versions, k.posts)
		pipe.SRem(ctx, k.index, string(key.UserID))
		return nil
	})
	if err != nil {
		return errors.NewStoreFailed(errors.ErrorTypeFeed, "delete feed", err)
	}
	return nil
}

// AddAccountToFeed inserts account if version is newer than the last change
// applied for it. It reports whether the delta changed anything.
func (s *RedisStore) AddAccountToFeed(ctx context.Context, key model.FeedKey, account model.UserID, version int64) (bool, error) {
	return s.applyDelta(ctx, key, model.FeedAccountDelta{Account: account, Present: true, Version: version})
}

// RemoveAccountFromFeed removes account under the same version rule
func (s *RedisStore) RemoveAccountFromFeed(ctx context.Context, key model.FeedKey, account model.UserID, version int64) (bool, error) {
	return s.applyDelta(ctx, key, model.FeedAccountDelta{Account: account, Present: false, Version: version})
}

func (s *RedisStore) applyDelta(ctx context.Context, key model.FeedKey, delta model.FeedAccountDelta) (bool, error) {
	k := keysFor(key)
	present := "0"
	if delta.Present {
		present = "1"
	}

	res, err := deltaScript.Run(ctx, s.client,
		[]string{k.meta, k.accounts, k.versions, k.posts},
		string(delta.Account), present, delta.Version, postPrefix(delta.Account),
	).Int()
	if err != nil {
		return false, errors.NewStoreFailed(errors.ErrorTypeFeed, "apply feed delta", err)
	}
	switch res {
	case -1:
		return false, errors.NewNotFound(constants.ResourceFeed, key.String())
	case 0:
		s.logger.Debug("Stale feed delta skipped",
			zap.String("feed", key.String()),
			zap.String("account", string(delta.Account)),
			zap.Int64("version", delta.Version),
		)
		return false, nil
	}
	return true, nil
}

// SetSort stores the sort tag
func (s *RedisStore) SetSort(ctx context.Context, key model.FeedKey, sort model.SortMode) error {
	return s.setField(ctx, key, "sort", string(sort))
}

// SetShowViewedPosts stores the viewed-posts display flag
func (s *RedisStore) SetShowViewedPosts(ctx context.Context, key model.FeedKey, show bool) error {
	value := "0"
	if show {
		value = "1"
	}
	return s.setField(ctx, key, "show_viewed", value)
}

func (s *RedisStore) setField(ctx context.Context, key model.FeedKey, field, value string) error {
	k := keysFor(key)
	ok, err := setFieldScript.Run(ctx, s.client, []string{k.meta}, field, value).Int()
	if err != nil {
		return errors.NewStoreFailed(errors.ErrorTypeFeed, "update feed", err)
	}
	if ok == 0 {
		return errors.NewNotFound(constants.ResourceFeed, key.String())
	}
	return nil
}

// AppendPost adds a post to the feed's ordered sequence. Re-appending the
// same post only refreshes its score. Posts by an author the feed does not
// carry are dropped.
func (s *RedisStore) AppendPost(ctx context.Context, key model.FeedKey, post model.FeedPost) error {
	k := keysFor(key)
	member := postPrefix(post.AuthorID) + string(post.Ref)
	score := float64(post.PostedAt.UnixMilli())

	res, err := appendPostScript.Run(ctx, s.client,
		[]string{k.meta, k.posts, k.accounts},
		score, member, s.maxPosts, string(post.AuthorID),
	).Int()
	if err != nil {
		return errors.NewStoreFailed(errors.ErrorTypeFeed, "append post", err)
	}
	switch res {
	case 0:
		return errors.NewNotFound(constants.ResourceFeed, key.String())
	case 2:
		s.logger.Debug("Post from account outside feed skipped",
			zap.String("feed", key.String()),
			zap.String("author_id", string(post.AuthorID)),
		)
	}
	return nil
}

// ListFeedUsers returns every user holding a feed for group
func (s *RedisStore) ListFeedUsers(ctx context.Context, group string) ([]model.UserID, error) {
	members, err := s.client.SMembers(ctx, indexKey(group)).Result()
	if err != nil {
		return nil, errors.NewStoreFailed(errors.ErrorTypeFeed, "list feed users", err)
	}
	return toUserIDs(members), nil
}

func toUserIDs(raw []string) []model.UserID {
	ids := make([]model.UserID, len(raw))
	for i, s := range raw {
		ids[i] = model.UserID(s)
	}
	return model.SortedIDs(ids)
}

// parsePosts decodes "<author>:ref" members; refs may contain ':'
func parsePosts(zs []redis.Z) []model.FeedPost {
	posts := make([]model.FeedPost, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		parts := strings.SplitN(member, ":", 2)
		if len(parts) != 2 {
			continue
		}
		author, err := url.QueryUnescape(parts[0])
		if err != nil {
			continue
		}
		posts = append(posts, model.FeedPost{
			AuthorID: model.UserID(author),
			Ref:      model.PostRef(parts[1]),
			PostedAt: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return posts
}
