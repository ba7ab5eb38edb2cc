package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

// ============================================================================
// Relationship Edge Operations
// ============================================================================

// edgeShape maps an edge kind onto its relationship type and target node
type edgeShape struct {
	rel         string
	targetLabel string
	targetKey   string
}

func shapeOf(kind model.EdgeKind) (edgeShape, error) {
	switch kind {
	case model.EdgeFollow:
		return edgeShape{constants.RelFollows, constants.LabelUser, "id"}, nil
	case model.EdgeFriend:
		return edgeShape{constants.RelFriends, constants.LabelUser, "id"}, nil
	case model.EdgeFavorite:
		return edgeShape{constants.RelFavorites, constants.LabelUser, "id"}, nil
	case model.EdgeFollowGroup:
		return edgeShape{constants.RelFollowsGroup, constants.LabelGroup, "name"}, nil
	}
	return edgeShape{}, errors.NewInvalidArgument("kind", fmt.Sprintf("unknown edge kind %q", kind))
}

// AddEdge creates a user-to-user edge. MERGE makes repeated calls no-ops.
func (r *Repository) AddEdge(ctx context.Context, kind model.EdgeKind, from model.UserID, to string) error {
	shape, err := shapeOf(kind)
	if err != nil {
		return err
	}
	if !kind.UserToUser() {
		return errors.NewInvalidArgument("kind", "follow-group edges are written by group membership")
	}

	query := fmt.Sprintf(`
		MERGE (a:User {id: $from})
		MERGE (b:User {id: $to})
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r.created_at = datetime()
	`, shape.rel)

	_, err = r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"from": string(from),
			"to":   to,
		})
		return nil, err
	})
	if err != nil {
		return storeError("add edge", fmt.Errorf("failed to add %s edge: %w", kind, err))
	}
	return nil
}

// RemoveEdge deletes a user-to-user edge if present
func (r *Repository) RemoveEdge(ctx context.Context, kind model.EdgeKind, from model.UserID, to string) error {
	shape, err := shapeOf(kind)
	if err != nil {
		return err
	}
	if !kind.UserToUser() {
		return errors.NewInvalidArgument("kind", "follow-group edges are written by group membership")
	}

	query := fmt.Sprintf(`
		MATCH (a:User {id: $from})-[r:%s]->(b:User {id: $to})
		DELETE r
	`, shape.rel)

	_, err = r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"from": string(from),
			"to":   to,
		})
		return nil, err
	})
	if err != nil {
		return storeError("remove edge", fmt.Errorf("failed to remove %s edge: %w", kind, err))
	}
	return nil
}

// HasEdge checks a single directed edge
func (r *Repository) HasEdge(ctx context.Context, kind model.EdgeKind, from model.UserID, to string) (bool, error) {
	shape, err := shapeOf(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		MATCH (a:User {id: $from})-[:%s]->(b:%s {%s: $to})
		RETURN count(*) > 0 AS present
	`, shape.rel, shape.targetLabel, shape.targetKey)

	result, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{
			"from": string(from),
			"to":   to,
		})
		if err != nil {
			return false, err
		}
		if res.Next(ctx) {
			return getBoolFromRecord(res.Record(), "present"), nil
		}
		return false, res.Err()
	})
	if err != nil {
		return false, storeError("has edge", err)
	}
	return result.(bool), nil
}

// EdgesFrom lists the targets of every edge of kind leaving user.
// Follow-group targets are group names.
func (r *Repository) EdgesFrom(ctx context.Context, kind model.EdgeKind, user model.UserID) ([]string, error) {
	shape, err := shapeOf(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		MATCH (a:User {id: $user})-[:%s]->(b:%s)
		RETURN b.%s AS target
		ORDER BY target
	`, shape.rel, shape.targetLabel, shape.targetKey)

	return r.collectStrings(ctx, query, map[string]interface{}{"user": string(user)}, "target")
}

// EdgesTo lists the sources of every edge of kind arriving at target
func (r *Repository) EdgesTo(ctx context.Context, kind model.EdgeKind, target string) ([]model.UserID, error) {
	shape, err := shapeOf(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		MATCH (a:User)-[:%s]->(b:%s {%s: $target})
		RETURN a.id AS source
		ORDER BY source
	`, shape.rel, shape.targetLabel, shape.targetKey)

	raw, err := r.collectStrings(ctx, query, map[string]interface{}{"target": target}, "source")
	if err != nil {
		return nil, err
	}
	ids := make([]model.UserID, len(raw))
	for i, s := range raw {
		ids[i] = model.UserID(s)
	}
	return ids, nil
}

// RelationStatus reads every user-to-user edge between a and b in one query
func (r *Repository) RelationStatus(ctx context.Context, a, b model.UserID) (*model.RelationStatus, error) {
	query := `
		MATCH (x:User)-[r:FOLLOWS|FRIENDS_WITH|FAVORITES]->(y:User)
		WHERE (x.id = $a AND y.id = $b) OR (x.id = $b AND y.id = $a)
		RETURN type(r) AS rel, x.id = $a AS outgoing
	`

	result, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"a": string(a), "b": string(b)})
		if err != nil {
			return nil, err
		}
		status := &model.RelationStatus{}
		for res.Next(ctx) {
			rec := res.Record()
			outgoing := getBoolFromRecord(rec, "outgoing")
			switch getStringFromRecord(rec, "rel") {
			case constants.RelFollows:
				if outgoing {
					status.Following = true
				} else {
					status.FollowedBy = true
				}
			case constants.RelFriends:
				if outgoing {
					status.Friending = true
				} else {
					status.FriendedBy = true
				}
			case constants.RelFavorites:
				if outgoing {
					status.Favoriting = true
				} else {
					status.FavoritedBy = true
				}
			}
		}
		status.IsFriendship = status.Friending && status.FriendedBy
		return status, res.Err()
	})
	if err != nil {
		return nil, storeError("relation status", err)
	}
	return result.(*model.RelationStatus), nil
}

func (r *Repository) collectStrings(ctx context.Context, query string, params map[string]interface{}, key string) ([]string, error) {
	result, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		out := []string{}
		for res.Next(ctx) {
			if v := getStringFromRecord(res.Record(), key); v != "" {
				out = append(out, v)
			}
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, storeError("list edges", err)
	}
	return result.([]string), nil
}
