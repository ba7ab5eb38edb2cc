package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

// ============================================================================
// Content Group Operations
// ============================================================================

// Every membership write bumps g.version in the same statement, so the
// returned version orders all mutations of one group.

// CreateGroup stores a new group with owner as moderator and follower
func (r *Repository) CreateGroup(ctx context.Context, group *model.ContentGroup) error {
	if err := group.Validate(); err != nil {
		return errors.NewInvalidArgument("group", err.Error())
	}

	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (g:ContentGroup {name: $name})
			RETURN count(g) AS existing
		`, map[string]interface{}{"name": group.Name})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if getInt64FromRecord(rec, "existing") > 0 {
			return nil, errors.NewDuplicate(constants.ResourceGroup, group.Name)
		}

		_, err = tx.Run(ctx, `
			MERGE (o:User {id: $owner})
			CREATE (g:ContentGroup {
				name: $name,
				is_public: $isPublic,
				description: $description,
				version: $version,
				created_at: datetime()
			})
			CREATE (o)-[:OWNS]->(g)
			CREATE (o)-[:MODERATES]->(g)
			CREATE (o)-[:FOLLOWS_GROUP]->(g)
		`, map[string]interface{}{
			"owner":       string(group.Owner),
			"name":        group.Name,
			"isPublic":    group.IsPublic,
			"description": group.Description,
			"version":     group.Version,
		})
		return nil, err
	})
	if err != nil {
		if isConstraintViolation(err) {
			return errors.NewDuplicate(constants.ResourceGroup, group.Name)
		}
		return storeError("create group", err)
	}

	r.logger.Info("Content group created",
		zap.String("group", group.Name),
		zap.String("owner", string(group.Owner)),
	)
	return nil
}

// FindGroup loads a group with its member sets materialized as id lists
func (r *Repository) FindGroup(ctx context.Context, name string) (*model.ContentGroup, error) {
	query := `
		MATCH (g:ContentGroup {name: $name})
		OPTIONAL MATCH (o:User)-[:OWNS]->(g)
		OPTIONAL MATCH (m:User)-[:MODERATES]->(g)
		WITH g, o, collect(DISTINCT m.id) AS moderators
		OPTIONAL MATCH (a:User)-[:CONTRIBUTES_TO]->(g)
		WITH g, o, moderators, collect(DISTINCT a.id) AS accounts
		OPTIONAL MATCH (f:User)-[:FOLLOWS_GROUP]->(g)
		RETURN
			g.name AS name,
			g.is_public AS is_public,
			g.description AS description,
			g.version AS version,
			o.id AS owner,
			moderators,
			accounts,
			collect(DISTINCT f.id) AS followers
	`

	result, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"name": name})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, errors.NewNotFound(constants.ResourceGroup, name)
		}
		rec := res.Record()
		return &model.ContentGroup{
			Name:        getStringFromRecord(rec, "name"),
			Owner:       model.UserID(getStringFromRecord(rec, "owner")),
			IsPublic:    getBoolFromRecord(rec, "is_public"),
			Description: getStringFromRecord(rec, "description"),
			Version:     getInt64FromRecord(rec, "version"),
			Moderators:  getUserIDsFromRecord(rec, "moderators"),
			Accounts:    getUserIDsFromRecord(rec, "accounts"),
			Followers:   getUserIDsFromRecord(rec, "followers"),
		}, nil
	})
	if err != nil {
		return nil, storeError("find group", err)
	}
	return result.(*model.ContentGroup), nil
}

// DeleteGroup removes the group node and every membership edge
func (r *Repository) DeleteGroup(ctx context.Context, name string) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (g:ContentGroup {name: $name})
			DETACH DELETE g
		`, map[string]interface{}{"name": name})
		return nil, err
	})
	if err != nil {
		return storeError("delete group", err)
	}
	r.logger.Info("Content group deleted", zap.String("group", name))
	return nil
}

// AddModerator inserts into the moderator set
func (r *Repository) AddModerator(ctx context.Context, name string, user model.UserID) (int64, error) {
	return r.addMember(ctx, constants.RelModerates, name, user)
}

// RemoveModerator removes from the moderator set; the owner cannot be removed
func (r *Repository) RemoveModerator(ctx context.Context, name string, user model.UserID) (int64, error) {
	return r.removeMember(ctx, constants.RelModerates, name, user)
}

// AddAccount inserts into the account (contributor) set
func (r *Repository) AddAccount(ctx context.Context, name string, user model.UserID) (int64, error) {
	return r.addMember(ctx, constants.RelContributes, name, user)
}

// RemoveAccount removes from the account set
func (r *Repository) RemoveAccount(ctx context.Context, name string, user model.UserID) (int64, error) {
	return r.removeMember(ctx, constants.RelContributes, name, user)
}

// AddFollower inserts into the follower set
func (r *Repository) AddFollower(ctx context.Context, name string, user model.UserID) (int64, error) {
	return r.addMember(ctx, constants.RelFollowsGroup, name, user)
}

// RemoveFollower removes from the follower set
func (r *Repository) RemoveFollower(ctx context.Context, name string, user model.UserID) (int64, error) {
	return r.removeMember(ctx, constants.RelFollowsGroup, name, user)
}

func (r *Repository) addMember(ctx context.Context, rel, name string, user model.UserID) (int64, error) {
	query := fmt.Sprintf(`
		MATCH (g:ContentGroup {name: $name})
		MERGE (u:User {id: $userID})
		MERGE (u)-[m:%s]->(g)
		ON CREATE SET m.created_at = datetime()
		SET g.version = g.version + 1
		RETURN g.version AS version
	`, rel)

	return r.mutateMembership(ctx, "add "+rel, name, func(tx neo4j.ManagedTransaction) (neo4j.ResultWithContext, error) {
		return tx.Run(ctx, query, map[string]interface{}{"name": name, "userID": string(user)})
	})
}

func (r *Repository) removeMember(ctx context.Context, rel, name string, user model.UserID) (int64, error) {
	query := fmt.Sprintf(`
		MATCH (g:ContentGroup {name: $name})
		OPTIONAL MATCH (:User {id: $userID})-[m:%s]->(g)
		DELETE m
		SET g.version = g.version + 1
		RETURN g.version AS version
	`, rel)

	return r.mutateMembership(ctx, "remove "+rel, name, func(tx neo4j.ManagedTransaction) (neo4j.ResultWithContext, error) {
		if rel == constants.RelModerates {
			owner, err := ownerOf(ctx, tx, name)
			if err != nil {
				return nil, err
			}
			if owner == string(user) {
				return nil, errors.NewInvariantViolation("the owner cannot be removed from moderators")
			}
		}
		return tx.Run(ctx, query, map[string]interface{}{"name": name, "userID": string(user)})
	})
}

func (r *Repository) mutateMembership(ctx context.Context, operation, name string, run func(tx neo4j.ManagedTransaction) (neo4j.ResultWithContext, error)) (int64, error) {
	result, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := run(tx)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, errors.NewNotFound(constants.ResourceGroup, name)
		}
		return getInt64FromRecord(res.Record(), "version"), nil
	})
	if err != nil {
		return 0, storeError(operation, err)
	}

	version := result.(int64)
	r.logger.Debug("Group membership changed",
		zap.String("group", name),
		zap.String("operation", operation),
		zap.Int64("version", version),
	)
	return version, nil
}

func ownerOf(ctx context.Context, tx neo4j.ManagedTransaction, name string) (string, error) {
	res, err := tx.Run(ctx, `
		MATCH (g:ContentGroup {name: $name})
		OPTIONAL MATCH (o:User)-[:OWNS]->(g)
		RETURN o.id AS owner
	`, map[string]interface{}{"name": name})
	if err != nil {
		return "", err
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return "", err
		}
		return "", errors.NewNotFound(constants.ResourceGroup, name)
	}
	return getStringFromRecord(res.Record(), "owner"), nil
}

// StreamFollowers yields the group's current follower ids in batches. The
// query runs on an auto-commit session so the result is consumed as a cursor.
func (r *Repository) StreamFollowers(ctx context.Context, name string, batchSize int, yield func([]model.UserID) error) error {
	if batchSize < 1 {
		batchSize = constants.DefaultFanoutBatchSize
	}
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
		MATCH (f:User)-[:FOLLOWS_GROUP]->(g:ContentGroup {name: $name})
		RETURN f.id AS follower_id
	`, map[string]interface{}{"name": name})
	if err != nil {
		return storeError("stream followers", err)
	}

	batch := make([]model.UserID, 0, batchSize)
	for res.Next(ctx) {
		id := getStringFromRecord(res.Record(), "follower_id")
		if id == "" {
			continue
		}
		batch = append(batch, model.UserID(id))
		if len(batch) >= batchSize {
			if err := yield(batch); err != nil {
				return err
			}
			batch = make([]model.UserID, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		if err := yield(batch); err != nil {
			return err
		}
	}
	return storeError("stream followers", res.Err())
}

// GroupsWithAccount lists the groups user contributes to
func (r *Repository) GroupsWithAccount(ctx context.Context, user model.UserID) ([]string, error) {
	return r.collectStrings(ctx, `
		MATCH (:User {id: $user})-[:CONTRIBUTES_TO]->(g:ContentGroup)
		RETURN g.name AS name
		ORDER BY name
	`, map[string]interface{}{"user": string(user)}, "name")
}
