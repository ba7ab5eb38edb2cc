package fanout

import (
	"context"

	"go.uber.org/zap"

	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

// RelationshipGraph validates and records user-to-user edges. Friend edges
// are requests: a friendship holds only when both directions exist.
type RelationshipGraph struct {
	edges  EdgeStore
	users  UserDirectory
	logger *zap.Logger
}

// NewRelationshipGraph creates the edge service
func NewRelationshipGraph(edges EdgeStore, users UserDirectory) *RelationshipGraph {
	return &RelationshipGraph{
		edges:  edges,
		users:  users,
		logger: logger.Named("relationships"),
	}
}

func checkUserEdge(kind model.EdgeKind, from, to model.UserID) error {
	if !kind.UserToUser() {
		return errors.NewInvalidArgument("kind", "only follow, friend and favorite edges can be set directly")
	}
	if from == to {
		return errors.NewInvalidArgument("to", "users cannot relate to themselves")
	}
	return nil
}

// AddEdge records from -> to. Both users must be known to the directory.
func (g *RelationshipGraph) AddEdge(ctx context.Context, kind model.EdgeKind, from, to model.UserID) error {
	if err := checkUserEdge(kind, from, to); err != nil {
		return err
	}
	for _, id := range []model.UserID{from, to} {
		if _, err := g.users.ResolveUsername(ctx, id); err != nil {
			return err
		}
	}
	if err := g.edges.AddEdge(ctx, kind, from, string(to)); err != nil {
		return err
	}
	g.logger.Debug("Edge added",
		zap.String("kind", string(kind)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// RemoveEdge deletes from -> to if present
func (g *RelationshipGraph) RemoveEdge(ctx context.Context, kind model.EdgeKind, from, to model.UserID) error {
	if err := checkUserEdge(kind, from, to); err != nil {
		return err
	}
	return g.edges.RemoveEdge(ctx, kind, from, string(to))
}

// HasEdge checks one directed edge. For follow-group edges to is a group name.
func (g *RelationshipGraph) HasEdge(ctx context.Context, kind model.EdgeKind, from model.UserID, to string) (bool, error) {
	return g.edges.HasEdge(ctx, kind, from, to)
}

// IsFriendship is true only when both friend edges exist
func (g *RelationshipGraph) IsFriendship(ctx context.Context, a, b model.UserID) (bool, error) {
	ab, err := g.edges.HasEdge(ctx, model.EdgeFriend, a, string(b))
	if err != nil || !ab {
		return false, err
	}
	return g.edges.HasEdge(ctx, model.EdgeFriend, b, string(a))
}

func (g *RelationshipGraph) EdgesFrom(ctx context.Context, kind model.EdgeKind, user model.UserID) ([]string, error) {
	return g.edges.EdgesFrom(ctx, kind, user)
}

func (g *RelationshipGraph) EdgesTo(ctx context.Context, kind model.EdgeKind, target string) ([]model.UserID, error) {
	return g.edges.EdgesTo(ctx, kind, target)
}

// Relation reports every user-to-user edge between a and b in both directions
func (g *RelationshipGraph) Relation(ctx context.Context, a, b model.UserID) (*model.RelationStatus, error) {
	return g.edges.RelationStatus(ctx, a, b)
}

// Friends lists the users with a mutual friend edge to user
func (g *RelationshipGraph) Friends(ctx context.Context, user model.UserID) ([]model.UserID, error) {
	outgoing, err := g.edges.EdgesFrom(ctx, model.EdgeFriend, user)
	if err != nil {
		return nil, err
	}
	incoming, err := g.edges.EdgesTo(ctx, model.EdgeFriend, string(user))
	if err != nil {
		return nil, err
	}

	friends := []model.UserID{}
	for _, id := range outgoing {
		if model.Contains(incoming, model.UserID(id)) {
			friends = append(friends, model.UserID(id))
		}
	}
	return model.SortedIDs(friends), nil
}
