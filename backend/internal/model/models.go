package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// UserID identifies a user as resolved by the user directory
type UserID string

// PostRef is an opaque reference to a post owned by the post store
type PostRef string

// EdgeKind is the kind of a relationship edge
type EdgeKind string

const (
	EdgeFollow      EdgeKind = "follow"
	EdgeFriend      EdgeKind = "friend"
	EdgeFavorite    EdgeKind = "favorite"
	EdgeFollowGroup EdgeKind = "follow_group"
)

// ParseEdgeKind validates a kind coming from the transport layer
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch k := EdgeKind(strings.ToLower(strings.TrimSpace(s))); k {
	case EdgeFollow, EdgeFriend, EdgeFavorite, EdgeFollowGroup:
		return k, nil
	}
	return "", ErrInvalidField{Field: "kind", Reason: fmt.Sprintf("unknown edge kind %q", s)}
}

// UserToUser reports whether edges of this kind connect two users
// (follow-group edges point at a content group instead).
func (k EdgeKind) UserToUser() bool {
	return k == EdgeFollow || k == EdgeFriend || k == EdgeFavorite
}

// RelationStatus describes both directions between two users
type RelationStatus struct {
	Following    bool `json:"following"`
	FollowedBy   bool `json:"followed_by"`
	Friending    bool `json:"friending"`
	FriendedBy   bool `json:"friended_by"`
	Favoriting   bool `json:"favoriting"`
	FavoritedBy  bool `json:"favorited_by"`
	IsFriendship bool `json:"is_friendship"`
}

// ContentGroup is a named, owned collection of contributing accounts
type ContentGroup struct {
	Name        string   `json:"name"`
	Owner       UserID   `json:"owner"`
	Moderators  []UserID `json:"moderators"`
	Accounts    []UserID `json:"accounts"`
	Followers   []UserID `json:"followers"`
	IsPublic    bool     `json:"is_public"`
	Description string   `json:"description"`
	Version     int64    `json:"version"`
}

// IsModerator reports membership in the moderator set
func (g *ContentGroup) IsModerator(id UserID) bool {
	return Contains(g.Moderators, id)
}

// HasFollower reports membership in the follower set
func (g *ContentGroup) HasFollower(id UserID) bool {
	return Contains(g.Followers, id)
}

// HasAccount reports membership in the account set
func (g *ContentGroup) HasAccount(id UserID) bool {
	return Contains(g.Accounts, id)
}

// Validate checks the creation-time invariants of a group
func (g *ContentGroup) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrInvalidField{Field: "name", Reason: "cannot be empty"}
	}
	if g.Owner == "" {
		return ErrInvalidField{Field: "owner", Reason: "cannot be empty"}
	}
	if !g.IsModerator(g.Owner) {
		return ErrInvalidField{Field: "moderators", Reason: "owner must be a moderator"}
	}
	return nil
}

// SortMode is the stored ordering tag of a feed
type SortMode string

const (
	SortDate          SortMode = "date"
	SortDateReversed  SortMode = "date_reversed"
	SortReactCount    SortMode = "react_count"
	SortViewCount     SortMode = "view_count"
	SortReactsPerView SortMode = "reacts_per_view"
)

var sortModes = map[SortMode]bool{
	SortDate:          true,
	SortDateReversed:  true,
	SortReactCount:    true,
	SortViewCount:     true,
	SortReactsPerView: true,
}

// ParseSortMode rejects anything outside the closed set of sort modes
func ParseSortMode(s string) (SortMode, error) {
	m := SortMode(strings.TrimSpace(s))
	if !sortModes[m] {
		return "", ErrInvalidField{Field: "sort", Reason: fmt.Sprintf("unknown sort mode %q", s)}
	}
	return m, nil
}

// FeedKey addresses one materialized feed
type FeedKey struct {
	UserID UserID `json:"user_id"`
	Group  string `json:"name"`
}

func (k FeedKey) String() string {
	return fmt.Sprintf("%s/%s", k.UserID, k.Group)
}

// FeedPost is one entry in a feed's ordered post sequence
type FeedPost struct {
	Ref      PostRef   `json:"ref"`
	AuthorID UserID    `json:"author_id"`
	PostedAt time.Time `json:"posted_at"`
}

// Feed is the per-user, per-group materialized view
type Feed struct {
	UserID          UserID     `json:"user_id"`
	Name            string     `json:"name"`
	Accounts        []UserID   `json:"accounts"`
	Posts           []FeedPost `json:"posts"`
	Sort            SortMode   `json:"sort"`
	ShowViewedPosts bool       `json:"show_viewed_posts"`
}

// FeedAccountDelta is one fan-out step. Version is the group version that
// produced the change; stores apply a delta only when it is newer than the
// last one they applied for the same account.
type FeedAccountDelta struct {
	Account UserID
	Present bool
	Version int64
}

// Contains reports whether id is in ids
func Contains(ids []UserID, id UserID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// SortedIDs returns a sorted copy with duplicates removed
func SortedIDs(ids []UserID) []UserID {
	seen := make(map[UserID]struct{}, len(ids))
	out := make([]UserID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Errors

type ErrInvalidField struct {
	Field  string
	Reason string
}

func (e ErrInvalidField) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
