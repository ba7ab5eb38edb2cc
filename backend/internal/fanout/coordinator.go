package fanout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

// Coordinator is the entry point for every mutation that spans the graph,
// the group registry and the feed store. Preconditions and username lookups
// run before any write.
type Coordinator struct {
	registry  *Registry
	relations *RelationshipGraph
	users     UserDirectory
	feeds     FeedStore
	publisher CascadePublisher
	logger    *zap.Logger
}

// NewCoordinator wires the coordinator. publisher may be nil.
func NewCoordinator(registry *Registry, relations *RelationshipGraph, users UserDirectory, feeds FeedStore, publisher CascadePublisher) *Coordinator {
	return &Coordinator{
		registry:  registry,
		relations: relations,
		users:     users,
		feeds:     feeds,
		publisher: publisher,
		logger:    logger.Named("coordinator"),
	}
}

// ============================================================================
// Content groups
// ============================================================================

func (c *Coordinator) CreateGroup(ctx context.Context, owner model.UserID, name string, isPublic bool, description string) (*model.ContentGroup, error) {
	if _, err := c.users.ResolveUsername(ctx, owner); err != nil {
		return nil, err
	}
	group, err := c.registry.Create(ctx, name, owner, isPublic, description)
	if err != nil {
		return nil, c.reportCascade(ctx, err)
	}
	c.logger.Info("Content group created",
		zap.String("group", group.Name),
		zap.String("user_id", string(owner)),
	)
	return group, nil
}

func (c *Coordinator) GetGroup(ctx context.Context, name string) (*model.ContentGroup, error) {
	return c.registry.Find(ctx, name)
}

// DeleteGroup removes a group and every follower feed. Owner only.
func (c *Coordinator) DeleteGroup(ctx context.Context, actor model.UserID, name string) error {
	if err := c.registry.Authorize(ctx, name, actor, RequireOwner); err != nil {
		return err
	}
	return c.reportCascade(ctx, c.registry.Delete(ctx, name))
}

// Apply checks the actor's privilege and the target user, then runs cmd
func (c *Coordinator) Apply(ctx context.Context, actor model.UserID, cmd GroupCommand) error {
	if err := c.registry.Authorize(ctx, cmd.Group(), actor, cmd.Requires()); err != nil {
		return err
	}

	target, err := c.users.ResolveID(ctx, cmd.Target())
	if err != nil {
		return err
	}

	if err := cmd.apply(ctx, c.registry, target); err != nil {
		return c.reportCascade(ctx, err)
	}
	c.logger.Info("Group command applied",
		zap.String("group", cmd.Group()),
		zap.String("command", cmd.Name()),
		zap.String("user_id", string(actor)),
		zap.String("target", string(target)),
	)
	return nil
}

// FollowGroup subscribes user and seeds the feed
func (c *Coordinator) FollowGroup(ctx context.Context, user model.UserID, name string) error {
	if _, err := c.users.ResolveUsername(ctx, user); err != nil {
		return err
	}
	group, err := c.registry.Find(ctx, name)
	if err != nil {
		return err
	}
	if group.HasFollower(user) {
		return errors.NewAlreadyFollowing(name)
	}
	return c.reportCascade(ctx, c.registry.AddFollower(ctx, name, user))
}

// UnfollowGroup unsubscribes user and destroys the feed
func (c *Coordinator) UnfollowGroup(ctx context.Context, user model.UserID, name string) error {
	group, err := c.registry.Find(ctx, name)
	if err != nil {
		return err
	}
	if !group.HasFollower(user) {
		return errors.NewNotFollowing(name)
	}
	return c.reportCascade(ctx, c.registry.RemoveFollower(ctx, name, user))
}

// ListFollowedGroups lists the groups user follows
func (c *Coordinator) ListFollowedGroups(ctx context.Context, user model.UserID) ([]string, error) {
	return c.relations.EdgesFrom(ctx, model.EdgeFollowGroup, user)
}

// ============================================================================
// Relationship edges
// ============================================================================

// AddEdge relates actor to the user named targetUsername
func (c *Coordinator) AddEdge(ctx context.Context, kind model.EdgeKind, actor model.UserID, targetUsername string) error {
	target, err := c.users.ResolveID(ctx, targetUsername)
	if err != nil {
		return err
	}
	return c.relations.AddEdge(ctx, kind, actor, target)
}

func (c *Coordinator) RemoveEdge(ctx context.Context, kind model.EdgeKind, actor model.UserID, targetUsername string) error {
	target, err := c.users.ResolveID(ctx, targetUsername)
	if err != nil {
		return err
	}
	return c.relations.RemoveEdge(ctx, kind, actor, target)
}

// Relation describes how actor and the named user relate
func (c *Coordinator) Relation(ctx context.Context, actor model.UserID, targetUsername string) (*model.RelationStatus, error) {
	target, err := c.users.ResolveID(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	return c.relations.Relation(ctx, actor, target)
}

// Friends lists the users with a mutual friend edge to the named user
func (c *Coordinator) Friends(ctx context.Context, username string) ([]model.UserID, error) {
	user, err := c.users.ResolveID(ctx, username)
	if err != nil {
		return nil, err
	}
	return c.relations.Friends(ctx, user)
}

// ============================================================================
// Feeds
// ============================================================================

func (c *Coordinator) GetFeed(ctx context.Context, user model.UserID, name string) (*model.Feed, error) {
	return c.feeds.Find(ctx, model.FeedKey{UserID: user, Group: name})
}

func (c *Coordinator) SetFeedSort(ctx context.Context, user model.UserID, name string, sort model.SortMode) error {
	if _, err := model.ParseSortMode(string(sort)); err != nil {
		return errors.NewInvalidArgument("sort", err.Error())
	}
	return c.feeds.SetSort(ctx, model.FeedKey{UserID: user, Group: name}, sort)
}

func (c *Coordinator) SetShowViewedPosts(ctx context.Context, user model.UserID, name string, show bool) error {
	return c.feeds.SetShowViewedPosts(ctx, model.FeedKey{UserID: user, Group: name}, show)
}

// DistributePost pushes a new post into the feeds of every group the author
// contributes to. Re-delivering the same post is harmless.
func (c *Coordinator) DistributePost(ctx context.Context, author model.UserID, ref model.PostRef, postedAt time.Time) error {
	if postedAt.IsZero() {
		postedAt = time.Now()
	}
	return c.registry.DistributePost(ctx, model.FeedPost{Ref: ref, AuthorID: author, PostedAt: postedAt.UTC()})
}

// RetryCascade repairs the group named by a cascade failure. A failed group
// delete is run again; everything else is reconciled.
func (c *Coordinator) RetryCascade(ctx context.Context, group, operation string) error {
	c.logger.Info("Retrying cascade", zap.String("group", group), zap.String("operation", operation))
	if operation == OpDeleteGroup {
		err := c.registry.Delete(ctx, group)
		if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
			return c.registry.Reconcile(ctx, group)
		}
		return err
	}
	return c.registry.Reconcile(ctx, group)
}

// reportCascade announces cascade failures so a consumer can retry them.
// err is returned unchanged.
func (c *Coordinator) reportCascade(ctx context.Context, err error) error {
	cf, ok := errors.AsCascadeFailure(err)
	if !ok || c.publisher == nil {
		return err
	}
	failed := make([]model.UserID, len(cf.Failed))
	for i, id := range cf.Failed {
		failed[i] = model.UserID(id)
	}
	if pubErr := c.publisher.PublishCascadeFailed(ctx, cf.Group, cf.Operation, failed); pubErr != nil {
		c.logger.Error("Failed to publish cascade failure",
			zap.String("group", cf.Group),
			zap.String("operation", cf.Operation),
			zap.Error(pubErr),
		)
	}
	return err
}
