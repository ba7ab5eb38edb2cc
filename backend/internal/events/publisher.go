package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
	"fritter/backend/pkg/logger"
)

// CascadeFailedEvent asks a consumer to repair one group's feeds
type CascadeFailedEvent struct {
	ID        string    `json:"id"`
	Group     string    `json:"group"`
	Operation string    `json:"operation"`
	Failed    []string  `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

// PostCreatedEvent announces a new post owned by the post store
type PostCreatedEvent struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// msgPublisher is the part of *nats.Conn the publisher needs
type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Publisher writes fan-out events to NATS
type Publisher struct {
	nc     msgPublisher
	logger *zap.Logger
}

// NewPublisher creates a publisher on top of a connection
func NewPublisher(nc msgPublisher) *Publisher {
	return &Publisher{nc: nc, logger: logger.Named("events")}
}

// PublishCascadeFailed records a fan-out that needs a retry
func (p *Publisher) PublishCascadeFailed(_ context.Context, group, operation string, failed []model.UserID) error {
	ids := make([]string, len(failed))
	for i, id := range failed {
		ids[i] = string(id)
	}
	event := CascadeFailedEvent{
		ID:        uuid.NewString(),
		Group:     group,
		Operation: operation,
		Failed:    ids,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.publish(constants.SubjectCascadeFailed, event); err != nil {
		return err
	}
	p.logger.Info("Cascade failure published",
		zap.String("event_id", event.ID),
		zap.String("group", group),
		zap.String("operation", operation),
		zap.Int("failed", len(ids)),
	)
	return nil
}

// PublishPostCreated is used by tooling that injects posts without the post store
func (p *Publisher) PublishPostCreated(_ context.Context, author model.UserID, ref model.PostRef, createdAt time.Time) error {
	return p.publish(constants.SubjectPostCreated, PostCreatedEvent{
		ID:        string(ref),
		AuthorID:  string(author),
		CreatedAt: createdAt.UTC(),
	})
}

func (p *Publisher) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}
	if err := p.nc.PublishMsg(&nats.Msg{Subject: subject, Data: data}); err != nil {
		return errors.NewStoreFailed(errors.ErrorTypeBroker, "publish "+subject, err)
	}
	return nil
}
