package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fritter/backend/internal/constants"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/logger"
)

// Service is what the handler drives
type Service interface {
	RetryCascade(ctx context.Context, group, operation string) error
	DistributePost(ctx context.Context, author model.UserID, ref model.PostRef, postedAt time.Time) error
}

// Handler consumes fan-out events. Work runs in the background with its own
// timeout so the NATS dispatch goroutine is never blocked.
type Handler struct {
	service Service
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewHandler(service Service, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		service: service,
		timeout: timeout,
		logger:  logger.Named("events"),
	}
}

// Subscribe registers both handlers on nc
func (h *Handler) Subscribe(nc *nats.Conn) ([]*nats.Subscription, error) {
	handlers := map[string]nats.MsgHandler{
		constants.SubjectCascadeFailed: h.HandleCascadeFailed,
		constants.SubjectPostCreated:   h.HandlePostCreated,
	}
	subs := make([]*nats.Subscription, 0, len(handlers))
	for subject, handler := range handlers {
		sub, err := nc.Subscribe(subject, handler)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (h *Handler) HandleCascadeFailed(msg *nats.Msg) {
	var event CascadeFailedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		h.logger.Error("Invalid cascade event", zap.Error(err))
		return
	}
	if event.Group == "" {
		h.logger.Warn("Cascade event without group", zap.String("event_id", event.ID))
		return
	}

	h.logger.Info("Cascade retry received",
		zap.String("event_id", event.ID),
		zap.String("group", event.Group),
		zap.String("operation", event.Operation),
	)
	h.background(func(ctx context.Context) error {
		return h.service.RetryCascade(ctx, event.Group, event.Operation)
	}, zap.String("event_id", event.ID), zap.String("group", event.Group))
}

func (h *Handler) HandlePostCreated(msg *nats.Msg) {
	var event PostCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		h.logger.Error("Invalid post event", zap.Error(err))
		return
	}
	if event.ID == "" || event.AuthorID == "" {
		h.logger.Warn("Post event missing id or author", zap.String("post", event.ID))
		return
	}

	h.background(func(ctx context.Context) error {
		return h.service.DistributePost(ctx, model.UserID(event.AuthorID), model.PostRef(event.ID), event.CreatedAt)
	}, zap.String("post", event.ID), zap.String("author_id", event.AuthorID))
}

// Wait blocks until every background job has finished
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) background(job func(ctx context.Context) error, fields ...zap.Field) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		if err := job(ctx); err != nil {
			h.logger.Error("Event processing failed", append(fields, zap.Error(err))...)
			return
		}
		h.logger.Debug("Event processed", fields...)
	}()
}
