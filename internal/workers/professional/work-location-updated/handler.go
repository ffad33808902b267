// internal/workers/professional/work-location-updated/handler.go
package worklocationupdated

import (
	"context"

	"portal-service/internal/common/logger"
	"portal-service/internal/inbox"
	"portal-service/internal/models"
	"portal-service/internal/store"
)

const (
	TaskType  = "work-location-updated"
	EventType = "members.professionaldetails.worklocation.updated.v1"
)

type Handler struct {
	config  *Config
	records store.Records
	logger  logger.Logger
}

func NewHandler(config *Config, records store.Records, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		records: records,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, env models.Envelope) error {
	var input Input
	if err := inbox.DecodePayload(env, &input); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		return err
	}
	h.logger.Info("work location sync processed", map[string]interface{}{
		"eventId":       env.EventID,
		"userId":        input.UserID,
		"applicationId": input.ApplicationID,
		"matched":       output.Matched,
		"modified":      output.Modified,
		"skipped":       output.Skipped,
	})
	return nil
}

// execute patches the one professional record identified by both userId and
// applicationId. Either key missing skips the event; the user's other
// applications are never touched.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" || input.ApplicationID == "" {
		h.logger.Warn("work location sync needs userId and applicationId, skipping", map[string]interface{}{
			"userId":        input.UserID,
			"applicationId": input.ApplicationID,
		})
		return &Output{Skipped: true}, nil
	}

	patch := input.Patch()
	if patch.IsEmpty() {
		h.logger.Warn("work location sync carries no fields, skipping", map[string]interface{}{
			"userId":        input.UserID,
			"applicationId": input.ApplicationID,
		})
		return &Output{Skipped: true}, nil
	}

	result, err := h.records.PatchProfessionalWorkLocation(ctx, input.UserID, input.ApplicationID, patch)
	if err != nil {
		return nil, err
	}
	if !result.Matched {
		h.logger.Warn("no professional record for work location sync", map[string]interface{}{
			"userId":        input.UserID,
			"applicationId": input.ApplicationID,
		})
	}
	return &Output{Matched: result.Matched, Modified: result.Modified}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
