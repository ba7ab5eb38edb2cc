package memory

import (
	"context"
	"sort"
	"sync"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

type idSet map[model.UserID]struct{}

func (s idSet) list() []model.UserID {
	out := make([]model.UserID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type groupRecord struct {
	name        string
	owner       model.UserID
	isPublic    bool
	description string
	version     int64
	moderators  idSet
	accounts    idSet
	followers   idSet
}

func (g *groupRecord) snapshot() *model.ContentGroup {
	return &model.ContentGroup{
		Name:        g.name,
		Owner:       g.owner,
		Moderators:  g.moderators.list(),
		Accounts:    g.accounts.list(),
		Followers:   g.followers.list(),
		IsPublic:    g.isPublic,
		Description: g.description,
		Version:     g.version,
	}
}

type edgeKey struct {
	kind model.EdgeKind
	from model.UserID
	to   model.UserID
}

// Graph keeps user edges and content groups in process. Follow-group edges
// are the groups' follower sets, so both views stay in step.
type Graph struct {
	mu     sync.RWMutex
	edges  map[edgeKey]struct{}
	groups map[string]*groupRecord
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		edges:  make(map[edgeKey]struct{}),
		groups: make(map[string]*groupRecord),
	}
}

func userEdgeKind(kind model.EdgeKind) error {
	switch kind {
	case model.EdgeFollow, model.EdgeFriend, model.EdgeFavorite:
		return nil
	case model.EdgeFollowGroup:
		return errors.NewInvalidArgument("kind", "follow-group edges are written by group membership")
	}
	return errors.NewInvalidArgument("kind", "unknown edge kind "+string(kind))
}

func (g *Graph) AddEdge(_ context.Context, kind model.EdgeKind, from model.UserID, to string) error {
	if err := userEdgeKind(kind); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[edgeKey{kind, from, model.UserID(to)}] = struct{}{}
	return nil
}

func (g *Graph) RemoveEdge(_ context.Context, kind model.EdgeKind, from model.UserID, to string) error {
	if err := userEdgeKind(kind); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, edgeKey{kind, from, model.UserID(to)})
	return nil
}

func (g *Graph) HasEdge(_ context.Context, kind model.EdgeKind, from model.UserID, to string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if kind == model.EdgeFollowGroup {
		rec, ok := g.groups[to]
		if !ok {
			return false, nil
		}
		_, ok = rec.followers[from]
		return ok, nil
	}
	_, ok := g.edges[edgeKey{kind, from, model.UserID(to)}]
	return ok, nil
}

func (g *Graph) EdgesFrom(_ context.Context, kind model.EdgeKind, user model.UserID) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []string{}
	if kind == model.EdgeFollowGroup {
		for name, rec := range g.groups {
			if _, ok := rec.followers[user]; ok {
				out = append(out, name)
			}
		}
	} else {
		for k := range g.edges {
			if k.kind == kind && k.from == user {
				out = append(out, string(k.to))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (g *Graph) EdgesTo(_ context.Context, kind model.EdgeKind, target string) ([]model.UserID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if kind == model.EdgeFollowGroup {
		rec, ok := g.groups[target]
		if !ok {
			return []model.UserID{}, nil
		}
		return rec.followers.list(), nil
	}
	sources := idSet{}
	for k := range g.edges {
		if k.kind == kind && k.to == model.UserID(target) {
			sources[k.from] = struct{}{}
		}
	}
	return sources.list(), nil
}

func (g *Graph) RelationStatus(_ context.Context, a, b model.UserID) (*model.RelationStatus, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	has := func(kind model.EdgeKind, from, to model.UserID) bool {
		_, ok := g.edges[edgeKey{kind, from, to}]
		return ok
	}
	status := &model.RelationStatus{
		Following:   has(model.EdgeFollow, a, b),
		FollowedBy:  has(model.EdgeFollow, b, a),
		Friending:   has(model.EdgeFriend, a, b),
		FriendedBy:  has(model.EdgeFriend, b, a),
		Favoriting:  has(model.EdgeFavorite, a, b),
		FavoritedBy: has(model.EdgeFavorite, b, a),
	}
	status.IsFriendship = status.Friending && status.FriendedBy
	return status, nil
}

// Content groups

func (g *Graph) CreateGroup(_ context.Context, group *model.ContentGroup) error {
	if err := group.Validate(); err != nil {
		return errors.NewInvalidArgument("group", err.Error())
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[group.Name]; ok {
		return errors.NewDuplicate(constants.ResourceGroup, group.Name)
	}
	g.groups[group.Name] = &groupRecord{
		name:        group.Name,
		owner:       group.Owner,
		isPublic:    group.IsPublic,
		description: group.Description,
		version:     group.Version,
		moderators:  idSet{group.Owner: {}},
		accounts:    idSet{},
		followers:   idSet{group.Owner: {}},
	}
	return nil
}

func (g *Graph) FindGroup(_ context.Context, name string) (*model.ContentGroup, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.groups[name]
	if !ok {
		return nil, errors.NewNotFound(constants.ResourceGroup, name)
	}
	return rec.snapshot(), nil
}

func (g *Graph) DeleteGroup(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, name)
	return nil
}

func (g *Graph) AddModerator(_ context.Context, name string, user model.UserID) (int64, error) {
	return g.mutate(name, func(rec *groupRecord) error {
		rec.moderators[user] = struct{}{}
		return nil
	})
}

func (g *Graph) RemoveModerator(_ context.Context, name string, user model.UserID) (int64, error) {
	return g.mutate(name, func(rec *groupRecord) error {
		if rec.owner == user {
			return errors.NewInvariantViolation("the owner cannot be removed from moderators")
		}
		delete(rec.moderators, user)
		return nil
	})
}

func (g *Graph) AddAccount(_ context.Context, name string, user model.UserID) (int64, error) {
	return g.mutate(name, func(rec *groupRecord) error {
		rec.accounts[user] = struct{}{}
		return nil
	})
}

func (g *Graph) RemoveAccount(_ context.Context, name string, user model.UserID) (int64, error) {
	return g.mutate(name, func(rec *groupRecord) error {
		delete(rec.accounts, user)
		return nil
	})
}

func (g *Graph) AddFollower(_ context.Context, name string, user model.UserID) (int64, error) {
	return g.mutate(name, func(rec *groupRecord) error {
		rec.followers[user] = struct{}{}
		return nil
	})
}

func (g *Graph) RemoveFollower(_ context.Context, name string, user model.UserID) (int64, error) {
	return g.mutate(name, func(rec *groupRecord) error {
		delete(rec.followers, user)
		return nil
	})
}

// mutate applies fn and bumps the group version under one lock
func (g *Graph) mutate(name string, fn func(rec *groupRecord) error) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.groups[name]
	if !ok {
		return 0, errors.NewNotFound(constants.ResourceGroup, name)
	}
	if err := fn(rec); err != nil {
		return 0, err
	}
	rec.version++
	return rec.version, nil
}

// StreamFollowers yields a snapshot of the follower set taken at call time.
// The lock is not held while yielding.
func (g *Graph) StreamFollowers(ctx context.Context, name string, batchSize int, yield func([]model.UserID) error) error {
	if batchSize < 1 {
		batchSize = constants.DefaultFanoutBatchSize
	}
	g.mu.RLock()
	rec, ok := g.groups[name]
	var followers []model.UserID
	if ok {
		followers = rec.followers.list()
	}
	g.mu.RUnlock()

	for start := 0; start < len(followers); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(followers) {
			end = len(followers)
		}
		if err := yield(followers[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) GroupsWithAccount(_ context.Context, user model.UserID) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []string{}
	for name, rec := range g.groups {
		if _, ok := rec.accounts[user]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
