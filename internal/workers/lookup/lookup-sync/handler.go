// internal/workers/lookup/lookup-sync/handler.go
package lookupsync

import (
	"context"
	"errors"

	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/inbox"
	"portal-service/internal/models"
)

const (
	TaskType = "lookup-sync"

	EventCreated = "lookup.created"
	EventUpdated = "lookup.updated"
	EventDeleted = "lookup.deleted"
)

var EventTypes = []string{EventCreated, EventUpdated, EventDeleted}

// LookupStore is satisfied by *lookup.Service.
type LookupStore interface {
	Get(ctx context.Context, id string) (*models.Lookup, error)
	Upsert(ctx context.Context, l models.Lookup) error
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	config  *Config
	lookups LookupStore
	logger  logger.Logger
}

func NewHandler(config *Config, lookups LookupStore, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		lookups: lookups,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, env models.Envelope) error {
	var input Input
	if err := inbox.DecodePayload(env, &input, "lookupId"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, env.EventType, &input)
	if err != nil {
		return err
	}
	h.logger.Info("lookup synced", map[string]interface{}{
		"eventId":  env.EventID,
		"lookupId": output.LookupID,
		"action":   output.Action,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, eventType string, input *Input) (*Output, error) {
	switch eventType {
	case EventCreated:
		l := models.Lookup{ID: input.LookupID, IsActive: true}
		input.Values.ApplyTo(&l)
		if err := h.lookups.Upsert(ctx, l); err != nil {
			return nil, err
		}
		return &Output{LookupID: input.LookupID, Action: "created"}, nil

	case EventUpdated:
		if input.NewValues == nil {
			return nil, apperrors.NewInvalidPayloadError(eventType, "newValues is required")
		}
		existing, err := h.lookups.Get(ctx, input.LookupID)
		switch {
		case errors.Is(err, apperrors.ErrRecordNotFound):
			// Updates can overtake the create; start from an active record.
			existing = &models.Lookup{ID: input.LookupID, IsActive: true}
		case err != nil:
			return nil, err
		}
		input.NewValues.ApplyTo(existing)
		if err := h.lookups.Upsert(ctx, *existing); err != nil {
			return nil, err
		}
		return &Output{LookupID: input.LookupID, Action: "updated"}, nil

	case EventDeleted:
		if err := h.lookups.Delete(ctx, input.LookupID); err != nil {
			return nil, err
		}
		return &Output{LookupID: input.LookupID, Action: "deleted"}, nil
	}
	return nil, apperrors.NewUnknownEventError(eventType)
}

func (h *Handler) Execute(ctx context.Context, eventType string, input *Input) (*Output, error) {
	return h.execute(ctx, eventType, input)
}
