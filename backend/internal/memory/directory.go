package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

// Directory is an in-process user directory
type Directory struct {
	mu     sync.RWMutex
	byName map[string]model.UserID
	byID   map[model.UserID]string
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]model.UserID),
		byID:   make(map[model.UserID]string),
	}
}

// CreateUser registers username under a fresh id
func (d *Directory) CreateUser(_ context.Context, username string) (model.UserID, error) {
	id := model.UserID(uuid.NewString())
	if err := d.Register(id, username); err != nil {
		return "", err
	}
	return id, nil
}

// Register adds a user with a caller-chosen id
func (d *Directory) Register(id model.UserID, username string) error {
	username = strings.TrimSpace(username)
	if username == "" || id == "" {
		return errors.NewInvalidArgument("username", "cannot be empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byName[username]; ok {
		return errors.NewDuplicate(constants.ResourceUser, username)
	}
	if _, ok := d.byID[id]; ok {
		return errors.NewDuplicate(constants.ResourceUser, string(id))
	}
	d.byName[username] = id
	d.byID[id] = username
	return nil
}

func (d *Directory) ResolveID(_ context.Context, username string) (model.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[username]
	if !ok {
		return "", errors.NewNotFound(constants.ResourceUser, username)
	}
	return id, nil
}

func (d *Directory) ResolveUsername(_ context.Context, id model.UserID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.byID[id]
	if !ok {
		return "", errors.NewNotFound(constants.ResourceUser, string(id))
	}
	return name, nil
}
