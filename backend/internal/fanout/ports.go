package fanout

import (
	"context"

	"fritter/backend/internal/model"
)

// UserDirectory resolves usernames and user ids
type UserDirectory interface {
	ResolveID(ctx context.Context, username string) (model.UserID, error)
	ResolveUsername(ctx context.Context, id model.UserID) (string, error)
}

// EdgeStore persists relationship edges. Follow-group edges are readable
// here but only written through GroupRepository follower operations.
type EdgeStore interface {
	AddEdge(ctx context.Context, kind model.EdgeKind, from model.UserID, to string) error
	RemoveEdge(ctx context.Context, kind model.EdgeKind, from model.UserID, to string) error
	HasEdge(ctx context.Context, kind model.EdgeKind, from model.UserID, to string) (bool, error)
	EdgesFrom(ctx context.Context, kind model.EdgeKind, user model.UserID) ([]string, error)
	EdgesTo(ctx context.Context, kind model.EdgeKind, target string) ([]model.UserID, error)
	RelationStatus(ctx context.Context, a, b model.UserID) (*model.RelationStatus, error)
}

// GroupRepository is the source of truth for content groups. Every
// membership mutation returns the group version it produced.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group *model.ContentGroup) error
	FindGroup(ctx context.Context, name string) (*model.ContentGroup, error)
	DeleteGroup(ctx context.Context, name string) error

	AddModerator(ctx context.Context, name string, user model.UserID) (int64, error)
	RemoveModerator(ctx context.Context, name string, user model.UserID) (int64, error)
	AddAccount(ctx context.Context, name string, user model.UserID) (int64, error)
	RemoveAccount(ctx context.Context, name string, user model.UserID) (int64, error)
	AddFollower(ctx context.Context, name string, user model.UserID) (int64, error)
	RemoveFollower(ctx context.Context, name string, user model.UserID) (int64, error)

	StreamFollowers(ctx context.Context, name string, batchSize int, yield func([]model.UserID) error) error
	GroupsWithAccount(ctx context.Context, user model.UserID) ([]string, error)
}

// FeedStore holds the materialized feeds. Account deltas carry the group
// version that produced them and are applied only when newer than the last
// change applied for the same account.
type FeedStore interface {
	Create(ctx context.Context, key model.FeedKey, accounts []model.UserID, version int64) (*model.Feed, error)
	Find(ctx context.Context, key model.FeedKey) (*model.Feed, error)
	Delete(ctx context.Context, key model.FeedKey) error
	AddAccountToFeed(ctx context.Context, key model.FeedKey, account model.UserID, version int64) (bool, error)
	RemoveAccountFromFeed(ctx context.Context, key model.FeedKey, account model.UserID, version int64) (bool, error)
	SetSort(ctx context.Context, key model.FeedKey, sort model.SortMode) error
	SetShowViewedPosts(ctx context.Context, key model.FeedKey, show bool) error
	AppendPost(ctx context.Context, key model.FeedKey, post model.FeedPost) error
	ListFeedUsers(ctx context.Context, group string) ([]model.UserID, error)
}

// CascadePublisher announces fan-outs that need a retry
type CascadePublisher interface {
	PublishCascadeFailed(ctx context.Context, group, operation string, failed []model.UserID) error
}
