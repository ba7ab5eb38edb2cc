package memory

import (
	"context"
	"sort"
	"sync"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

type feedRecord struct {
	accounts    idSet
	versions    map[model.UserID]int64
	seedVersion int64
	posts       []model.FeedPost // oldest first
	sort        model.SortMode
	showViewed  bool
}

// FeedStore is the in-process feed store. Deltas follow the same version
// rule as the Redis store.
type FeedStore struct {
	mu       sync.Mutex
	feeds    map[model.FeedKey]*feedRecord
	maxPosts int
}

// NewFeedStore creates an empty feed store
func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds:    make(map[model.FeedKey]*feedRecord),
		maxPosts: constants.MaxFeedPosts,
	}
}

func (s *FeedStore) Create(_ context.Context, key model.FeedKey, accounts []model.UserID, version int64) (*model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feeds[key]; ok {
		return nil, errors.NewDuplicate(constants.ResourceFeed, key.String())
	}
	rec := &feedRecord{
		accounts:    idSet{},
		versions:    make(map[model.UserID]int64, len(accounts)),
		seedVersion: version,
		sort:        model.SortDate,
	}
	for _, a := range accounts {
		rec.accounts[a] = struct{}{}
		rec.versions[a] = version
	}
	s.feeds[key] = rec
	return rec.view(key), nil
}

func (s *FeedStore) Find(_ context.Context, key model.FeedKey) (*model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.feeds[key]
	if !ok {
		return nil, errors.NewNotFound(constants.ResourceFeed, key.String())
	}
	return rec.view(key), nil
}

func (s *FeedStore) Delete(_ context.Context, key model.FeedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.feeds, key)
	return nil
}

func (s *FeedStore) AddAccountToFeed(_ context.Context, key model.FeedKey, account model.UserID, version int64) (bool, error) {
	return s.apply(key, model.FeedAccountDelta{Account: account, Present: true, Version: version})
}

func (s *FeedStore) RemoveAccountFromFeed(_ context.Context, key model.FeedKey, account model.UserID, version int64) (bool, error) {
	return s.apply(key, model.FeedAccountDelta{Account: account, Present: false, Version: version})
}

func (s *FeedStore) apply(key model.FeedKey, delta model.FeedAccountDelta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.feeds[key]
	if !ok {
		return false, errors.NewNotFound(constants.ResourceFeed, key.String())
	}
	current := rec.versions[delta.Account]
	if current < rec.seedVersion {
		current = rec.seedVersion
	}
	if delta.Version <= current {
		return false, nil
	}
	rec.versions[delta.Account] = delta.Version
	if delta.Present {
		rec.accounts[delta.Account] = struct{}{}
		return true, nil
	}
	delete(rec.accounts, delta.Account)
	kept := rec.posts[:0]
	for _, p := range rec.posts {
		if p.AuthorID != delta.Account {
			kept = append(kept, p)
		}
	}
	rec.posts = kept
	return true, nil
}

func (s *FeedStore) SetSort(_ context.Context, key model.FeedKey, mode model.SortMode) error {
	return s.update(key, func(rec *feedRecord) { rec.sort = mode })
}

func (s *FeedStore) SetShowViewedPosts(_ context.Context, key model.FeedKey, show bool) error {
	return s.update(key, func(rec *feedRecord) { rec.showViewed = show })
}

// AppendPost inserts post in time order, replacing an earlier copy of it.
// Posts by an author the feed does not carry are dropped.
func (s *FeedStore) AppendPost(_ context.Context, key model.FeedKey, post model.FeedPost) error {
	return s.update(key, func(rec *feedRecord) {
		if _, ok := rec.accounts[post.AuthorID]; !ok {
			return
		}
		kept := rec.posts[:0]
		for _, p := range rec.posts {
			if p.Ref != post.Ref || p.AuthorID != post.AuthorID {
				kept = append(kept, p)
			}
		}
		kept = append(kept, post)
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].PostedAt.Before(kept[j].PostedAt) })
		if s.maxPosts > 0 && len(kept) > s.maxPosts {
			kept = kept[len(kept)-s.maxPosts:]
		}
		rec.posts = kept
	})
}

func (s *FeedStore) ListFeedUsers(_ context.Context, group string) ([]model.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := idSet{}
	for key := range s.feeds {
		if key.Group == group {
			users[key.UserID] = struct{}{}
		}
	}
	return users.list(), nil
}

func (s *FeedStore) update(key model.FeedKey, fn func(rec *feedRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.feeds[key]
	if !ok {
		return errors.NewNotFound(constants.ResourceFeed, key.String())
	}
	fn(rec)
	return nil
}

func (r *feedRecord) view(key model.FeedKey) *model.Feed {
	posts := make([]model.FeedPost, len(r.posts))
	copy(posts, r.posts)
	if r.sort != model.SortDateReversed {
		for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
			posts[i], posts[j] = posts[j], posts[i]
		}
	}
	return &model.Feed{
		UserID:          key.UserID,
		Name:            key.Group,
		Accounts:        r.accounts.list(),
		Posts:           posts,
		Sort:            r.sort,
		ShowViewedPosts: r.showViewed,
	}
}
