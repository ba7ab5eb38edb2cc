package fanout

import (
	"context"
	"fmt"
	"strings"

	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

// Privilege is what an actor needs to run a group command
type Privilege int

const (
	RequireModerator Privilege = iota
	RequireOwner
)

// GroupCommand is one of the closed set of group membership mutations.
// Each command targets a user by username.
type GroupCommand interface {
	Name() string
	Group() string
	Target() string
	Requires() Privilege
	apply(ctx context.Context, r *Registry, target model.UserID) error
}

type commandBase struct {
	GroupName string
	Username  string
}

func (c commandBase) Group() string  { return c.GroupName }
func (c commandBase) Target() string { return c.Username }

// AddModerator grants moderation of the group. Owner only.
type AddModerator struct{ commandBase }

func (AddModerator) Name() string        { return "add_moderator" }
func (AddModerator) Requires() Privilege { return RequireOwner }
func (c AddModerator) apply(ctx context.Context, r *Registry, target model.UserID) error {
	return r.AddModerator(ctx, c.GroupName, target)
}

// RemoveModerator revokes moderation. Owner only; the owner stays a moderator.
type RemoveModerator struct{ commandBase }

func (RemoveModerator) Name() string        { return "remove_moderator" }
func (RemoveModerator) Requires() Privilege { return RequireOwner }
func (c RemoveModerator) apply(ctx context.Context, r *Registry, target model.UserID) error {
	return r.RemoveModerator(ctx, c.GroupName, target)
}

// AddAccount adds a contributing account and fans it out to follower feeds
type AddAccount struct{ commandBase }

func (AddAccount) Name() string        { return "add_account" }
func (AddAccount) Requires() Privilege { return RequireModerator }
func (c AddAccount) apply(ctx context.Context, r *Registry, target model.UserID) error {
	return r.AddAccount(ctx, c.GroupName, target)
}

// RemoveAccount removes a contributing account from the group and its feeds
type RemoveAccount struct{ commandBase }

func (RemoveAccount) Name() string        { return "remove_account" }
func (RemoveAccount) Requires() Privilege { return RequireModerator }
func (c RemoveAccount) apply(ctx context.Context, r *Registry, target model.UserID) error {
	return r.RemoveAccount(ctx, c.GroupName, target)
}

func NewAddModerator(group, username string) (GroupCommand, error) {
	return newCommand(group, username, func(b commandBase) GroupCommand { return AddModerator{b} })
}

func NewRemoveModerator(group, username string) (GroupCommand, error) {
	return newCommand(group, username, func(b commandBase) GroupCommand { return RemoveModerator{b} })
}

func NewAddAccount(group, username string) (GroupCommand, error) {
	return newCommand(group, username, func(b commandBase) GroupCommand { return AddAccount{b} })
}

func NewRemoveAccount(group, username string) (GroupCommand, error) {
	return newCommand(group, username, func(b commandBase) GroupCommand { return RemoveAccount{b} })
}

// ParseGroupCommand maps a transport command tag onto its command
func ParseGroupCommand(name, group, username string) (GroupCommand, error) {
	var build func(string, string) (GroupCommand, error)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "add_moderator":
		build = NewAddModerator
	case "remove_moderator":
		build = NewRemoveModerator
	case "add_account":
		build = NewAddAccount
	case "remove_account":
		build = NewRemoveAccount
	default:
		return nil, errors.NewInvalidArgument("command", fmt.Sprintf("unknown command %q", name))
	}
	return build(group, username)
}

func newCommand(group, username string, wrap func(commandBase) GroupCommand) (GroupCommand, error) {
	base := commandBase{
		GroupName: strings.TrimSpace(group),
		Username:  strings.TrimSpace(username),
	}
	if base.GroupName == "" {
		return nil, errors.NewInvalidArgument("group", "cannot be empty")
	}
	if base.Username == "" {
		return nil, errors.NewInvalidArgument("username", "cannot be empty")
	}
	return wrap(base), nil
}
