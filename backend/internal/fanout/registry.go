package fanout

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

// Operation names carried by cascade failures
const (
	OpAddAccount     = "add_account"
	OpRemoveAccount  = "remove_account"
	OpAddFollower    = "add_follower"
	OpRemoveFollower = "remove_follower"
	OpDeleteGroup    = "delete_group"
	OpReconcile      = "reconcile"
	OpDistributePost = "distribute_post"
)

// Options tunes the fan-out
type Options struct {
	Concurrency int
	BatchSize   int
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = constants.DefaultFanoutConcurrency
	}
	if o.BatchSize < 1 {
		o.BatchSize = constants.DefaultFanoutBatchSize
	}
	return o
}

// Registry owns content groups and keeps follower feeds in step with them.
// Group writes always happen before the follower or account set they race
// with is read, and every feed delta carries the group version it came from.
type Registry struct {
	groups GroupRepository
	feeds  FeedStore
	opts   Options
	logger *zap.Logger
}

// NewRegistry creates a content group registry
func NewRegistry(groups GroupRepository, feeds FeedStore, opts Options) *Registry {
	return &Registry{
		groups: groups,
		feeds:  feeds,
		opts:   opts.withDefaults(),
		logger: logger.Named("registry"),
	}
}

// Create stores a group whose owner is its first moderator and follower,
// and materializes the owner's feed.
func (r *Registry) Create(ctx context.Context, name string, owner model.UserID, isPublic bool, description string) (*model.ContentGroup, error) {
	group := &model.ContentGroup{
		Name:        strings.TrimSpace(name),
		Owner:       owner,
		Moderators:  []model.UserID{owner},
		Accounts:    []model.UserID{},
		Followers:   []model.UserID{owner},
		IsPublic:    isPublic,
		Description: description,
		// Starting from the clock keeps a re-created name ahead of any feed
		// its predecessor left behind.
		Version: time.Now().UnixMicro(),
	}
	if err := r.groups.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	if err := r.syncFeed(ctx, group.Name, owner); err != nil {
		return nil, errors.NewCascadeFailure(group.Name, OpAddFollower, []string{string(owner)}, err)
	}
	return group, nil
}

// Find loads a group
func (r *Registry) Find(ctx context.Context, name string) (*model.ContentGroup, error) {
	return r.groups.FindGroup(ctx, name)
}

// IsOwner reports whether user owns the group
func (r *Registry) IsOwner(ctx context.Context, name string, user model.UserID) (bool, error) {
	group, err := r.groups.FindGroup(ctx, name)
	if err != nil {
		return false, err
	}
	return group.Owner == user, nil
}

// IsModerator reports whether user moderates the group
func (r *Registry) IsModerator(ctx context.Context, name string, user model.UserID) (bool, error) {
	group, err := r.groups.FindGroup(ctx, name)
	if err != nil {
		return false, err
	}
	return group.IsModerator(user), nil
}

// Authorize returns nil when user holds the privilege on the group
func (r *Registry) Authorize(ctx context.Context, name string, user model.UserID, privilege Privilege) error {
	if privilege == RequireOwner {
		owner, err := r.IsOwner(ctx, name, user)
		if err != nil {
			return err
		}
		if !owner {
			return errors.NewNotOwner(name, string(user))
		}
		return nil
	}
	moderator, err := r.IsModerator(ctx, name, user)
	if err != nil {
		return err
	}
	if !moderator {
		return errors.NewNotAuthorized(name, string(user))
	}
	return nil
}

func (r *Registry) AddModerator(ctx context.Context, name string, user model.UserID) error {
	_, err := r.groups.AddModerator(ctx, name, user)
	return err
}

// RemoveModerator fails with an invariant violation for the owner
func (r *Registry) RemoveModerator(ctx context.Context, name string, user model.UserID) error {
	_, err := r.groups.RemoveModerator(ctx, name, user)
	return err
}

// AddAccount adds a contributor and pushes it into every follower feed
func (r *Registry) AddAccount(ctx context.Context, name string, account model.UserID) error {
	version, err := r.groups.AddAccount(ctx, name, account)
	if err != nil {
		return err
	}
	return r.fanOut(ctx, name, OpAddAccount, func(ctx context.Context, key model.FeedKey) error {
		return r.applyDelta(ctx, key, model.FeedAccountDelta{Account: account, Present: true, Version: version})
	})
}

// RemoveAccount removes a contributor from the group and every follower feed
func (r *Registry) RemoveAccount(ctx context.Context, name string, account model.UserID) error {
	version, err := r.groups.RemoveAccount(ctx, name, account)
	if err != nil {
		return err
	}
	return r.fanOut(ctx, name, OpRemoveAccount, func(ctx context.Context, key model.FeedKey) error {
		return r.applyDelta(ctx, key, model.FeedAccountDelta{Account: account, Present: false, Version: version})
	})
}

// AddFollower subscribes user and seeds the feed from the accounts read
// after the follower write.
func (r *Registry) AddFollower(ctx context.Context, name string, user model.UserID) error {
	version, err := r.groups.AddFollower(ctx, name, user)
	if err != nil {
		return err
	}
	r.logger.Debug("Follower added",
		zap.String("group", name),
		zap.String("user_id", string(user)),
		zap.Int64("version", version),
	)
	if err := r.syncFeed(ctx, name, user); err != nil {
		return errors.NewCascadeFailure(name, OpAddFollower, []string{string(user)}, err)
	}
	return nil
}

// RemoveFollower unsubscribes user and destroys the feed
func (r *Registry) RemoveFollower(ctx context.Context, name string, user model.UserID) error {
	if _, err := r.groups.RemoveFollower(ctx, name, user); err != nil {
		return err
	}
	if err := r.feeds.Delete(ctx, model.FeedKey{UserID: user, Group: name}); err != nil {
		return errors.NewCascadeFailure(name, OpRemoveFollower, []string{string(user)}, err)
	}
	return nil
}

// Delete destroys every feed of the group and only then the group record.
// Feeds are also collected from the feed store index so stragglers from
// earlier failures go too.
func (r *Registry) Delete(ctx context.Context, name string) error {
	if _, err := r.groups.FindGroup(ctx, name); err != nil {
		return err
	}

	if err := r.fanOut(ctx, name, OpDeleteGroup, r.deleteFeed); err != nil {
		return err
	}
	if err := r.sweepFeeds(ctx, name, OpDeleteGroup, nil); err != nil {
		return err
	}

	if err := r.groups.DeleteGroup(ctx, name); err != nil {
		return err
	}

	// feeds seeded between the sweep and the group removal
	if err := r.sweepFeeds(ctx, name, OpDeleteGroup, nil); err != nil {
		r.logger.Warn("Feed sweep after group delete failed", zap.String("group", name), zap.Error(err))
	}
	r.logger.Info("Content group deleted with feeds", zap.String("group", name))
	return nil
}

// Reconcile makes every follower feed match the group's current accounts,
// creates missing feeds and removes feeds of users who no longer follow.
// It is the retry path for cascade failures and safe to run at any time.
func (r *Registry) Reconcile(ctx context.Context, name string) error {
	group, err := r.groups.FindGroup(ctx, name)
	if err != nil {
		if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
			return r.sweepFeeds(ctx, name, OpReconcile, nil)
		}
		return err
	}

	if err := r.fanOut(ctx, name, OpReconcile, func(ctx context.Context, key model.FeedKey) error {
		return r.materialize(ctx, key, group)
	}); err != nil {
		return err
	}

	// feeds written above for users who unfollowed meanwhile
	after, err := r.groups.FindGroup(ctx, name)
	if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
		return r.sweepFeeds(ctx, name, OpReconcile, nil)
	}
	if err != nil {
		return err
	}
	if err := r.sweepFeeds(ctx, name, OpReconcile, after); err != nil {
		return err
	}
	r.logger.Info("Group reconciled",
		zap.String("group", name),
		zap.Int("followers", len(group.Followers)),
		zap.Int64("version", group.Version),
	)
	return nil
}

// DistributePost appends post to every feed fed by one of the author's groups
func (r *Registry) DistributePost(ctx context.Context, post model.FeedPost) error {
	groups, err := r.groups.GroupsWithAccount(ctx, post.AuthorID)
	if err != nil {
		return err
	}
	// one failing group does not hold back the others
	var firstErr error
	for _, name := range groups {
		err := r.fanOut(ctx, name, OpDistributePost, func(ctx context.Context, key model.FeedKey) error {
			return ignoreNotFound(r.feeds.AppendPost(ctx, key, post))
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.logger.Debug("Post distributed",
		zap.String("post", string(post.Ref)),
		zap.String("author_id", string(post.AuthorID)),
		zap.Int("groups", len(groups)),
	)
	return firstErr
}

// fanOut runs step for every current follower of the group in parallel.
// Failed followers are collected instead of stopping the others.
func (r *Registry) fanOut(ctx context.Context, name, operation string, step func(ctx context.Context, key model.FeedKey) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	var mu sync.Mutex
	var failed []string
	var firstErr error
	total := 0

	streamErr := r.groups.StreamFollowers(ctx, name, r.opts.BatchSize, func(batch []model.UserID) error {
		for _, follower := range batch {
			total++
			follower := follower
			g.Go(func() error {
				key := model.FeedKey{UserID: follower, Group: name}
				if err := step(gctx, key); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					if len(failed) < constants.MaxFailedFeedsReported {
						failed = append(failed, string(follower))
					}
					mu.Unlock()
				}
				return nil
			})
		}
		return nil
	})
	_ = g.Wait()

	if streamErr != nil && firstErr == nil {
		firstErr = streamErr
	}
	if firstErr != nil {
		r.logger.Error("Fan-out incomplete",
			zap.String("group", name),
			zap.String("operation", operation),
			zap.Int("followers", total),
			zap.Int("failed", len(failed)),
			zap.Error(firstErr),
		)
		return errors.NewCascadeFailure(name, operation, failed, firstErr)
	}

	r.logger.Debug("Fan-out complete",
		zap.String("group", name),
		zap.String("operation", operation),
		zap.Int("followers", total),
	)
	return nil
}

// applyDelta applies one account delta. A follower without a feed gets one
// seeded from a fresh group read, which already reflects the delta.
func (r *Registry) applyDelta(ctx context.Context, key model.FeedKey, delta model.FeedAccountDelta) error {
	var err error
	if delta.Present {
		_, err = r.feeds.AddAccountToFeed(ctx, key, delta.Account, delta.Version)
	} else {
		_, err = r.feeds.RemoveAccountFromFeed(ctx, key, delta.Account, delta.Version)
	}
	if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
		return r.syncFeed(ctx, key.Group, key.UserID)
	}
	return err
}

// syncFeed brings the feed of one user in line with a fresh group read.
// Membership is checked again after writing so a concurrent unfollow or
// group delete never leaves a feed behind.
func (r *Registry) syncFeed(ctx context.Context, name string, user model.UserID) error {
	key := model.FeedKey{UserID: user, Group: name}

	group, err := r.groups.FindGroup(ctx, name)
	if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
		return r.feeds.Delete(ctx, key)
	}
	if err != nil {
		return err
	}
	if !group.HasFollower(user) {
		return r.feeds.Delete(ctx, key)
	}

	if err := r.materialize(ctx, key, group); err != nil {
		return err
	}

	after, err := r.groups.FindGroup(ctx, name)
	if errors.IsErrorType(err, errors.ErrorTypeNotFound) || (err == nil && !after.HasFollower(user)) {
		return r.feeds.Delete(ctx, key)
	}
	return err
}

// materialize creates the feed from group, or diffs an existing feed against
// it at the group's version.
func (r *Registry) materialize(ctx context.Context, key model.FeedKey, group *model.ContentGroup) error {
	_, err := r.feeds.Create(ctx, key, group.Accounts, group.Version)
	if err == nil {
		return nil
	}
	if !errors.IsErrorType(err, errors.ErrorTypeDuplicate) {
		return err
	}

	feed, err := r.feeds.Find(ctx, key)
	if err != nil {
		if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
			return nil
		}
		return err
	}
	for _, account := range group.Accounts {
		if !model.Contains(feed.Accounts, account) {
			if _, err := r.feeds.AddAccountToFeed(ctx, key, account, group.Version); err != nil {
				return ignoreNotFound(err)
			}
		}
	}
	for _, account := range feed.Accounts {
		if !group.HasAccount(account) {
			if _, err := r.feeds.RemoveAccountFromFeed(ctx, key, account, group.Version); err != nil {
				return ignoreNotFound(err)
			}
		}
	}
	return nil
}

func (r *Registry) deleteFeed(ctx context.Context, key model.FeedKey) error {
	return r.feeds.Delete(ctx, key)
}

// sweepFeeds removes indexed feeds of the group that have no follower behind
// them. With a nil group every indexed feed goes; otherwise users outside
// the follower snapshot are re-checked against a fresh read first.
func (r *Registry) sweepFeeds(ctx context.Context, name, operation string, group *model.ContentGroup) error {
	users, err := r.feeds.ListFeedUsers(ctx, name)
	if err != nil {
		return errors.NewCascadeFailure(name, operation, nil, err)
	}

	var failed []string
	var firstErr error
	for _, user := range users {
		var err error
		switch {
		case group == nil:
			err = r.feeds.Delete(ctx, model.FeedKey{UserID: user, Group: name})
		case group.HasFollower(user):
			continue
		default:
			err = r.syncFeed(ctx, name, user)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed = append(failed, string(user))
		}
	}
	if firstErr != nil {
		return errors.NewCascadeFailure(name, operation, failed, firstErr)
	}
	return nil
}

func ignoreNotFound(err error) error {
	if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
		return nil
	}
	return err
}
