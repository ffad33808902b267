// internal/workers/review/review-rejected/handler.go
package reviewrejected

import (
	"context"
	"time"

	"portal-service/internal/common/logger"
	"portal-service/internal/inbox"
	"portal-service/internal/models"
	"portal-service/internal/outbox"
	"portal-service/internal/reconcile"
	"portal-service/internal/store"
	"portal-service/internal/workflow"
)

const (
	TaskType  = "review-rejected"
	EventType = "applications.review.rejected.v1"
)

type Handler struct {
	config    *Config
	records   store.Records
	applier   *reconcile.Applier
	publisher outbox.Publisher
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(config *Config, records store.Records, publisher outbox.Publisher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		records:   records,
		applier:   reconcile.NewApplier(records, log),
		publisher: publisher,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Handle(ctx context.Context, env models.Envelope) error {
	var input Input
	if err := inbox.DecodePayload(env, &input, "applicationId"); err != nil {
		return err
	}
	input.CorrelationID = env.MetadataString("correlationId")
	if input.TenantID == "" {
		input.TenantID = env.MetadataString("tenantId")
	}

	h.logger.Info("processing rejection", map[string]interface{}{
		"eventId":       env.EventID,
		"applicationId": input.ApplicationID,
		"reviewerId":    input.ReviewerID,
	})

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	_, err := h.execute(ctx, &input)
	return err
}

// execute rejects the application. Professional and subscription records
// are kept as entered so the applicant can resubmit.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	app, err := h.records.GetByApplicationID(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	trigger := workflow.CRMRejected{
		ReviewerID: input.ReviewerID,
		Reason:     input.Reason,
		Notes:      input.Notes,
	}
	decision, err := h.applier.Apply(ctx, app, trigger, h.now(), input.ReviewerID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		ApplicationID: input.ApplicationID,
		Status:        app.Status(),
		Outcome:       decision.Outcome.String(),
	}

	if decision.Changed() {
		h.publisher.PublishApplicationUpdated(ctx, app, outbox.Meta{
			TenantID:      input.TenantID,
			CorrelationID: input.CorrelationID,
			Trigger:       string(workflow.KindCRMRejected),
		})
	}

	h.logger.Info("rejection reconciled", map[string]interface{}{
		"applicationId": output.ApplicationID,
		"outcome":       output.Outcome,
		"reason":        input.Reason,
	})
	return output, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
