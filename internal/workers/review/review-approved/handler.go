// internal/workers/review/review-approved/handler.go
package reviewapproved

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
	TaskType  = "review-approved"
	EventType = "applications.review.approved.v1"
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

	h.logger.Info("processing approval", map[string]interface{}{
		"eventId":       env.EventID,
		"applicationId": input.ApplicationID,
		"reviewerId":    input.ReviewerID,
		"profileId":     input.ProfileID,
	})

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	_, err := h.execute(ctx, &input)
	return err
}

// execute approves the application and merges the reviewer's effective
// fields. Missing child records are reported, not fatal. An application
// that was already approved gets the merge again so a redelivered event
// converges; a rejected one is left alone.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	app, err := h.records.GetByApplicationID(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	// Overrides are checked before the status moves; a malformed block is
	// skipped so it cannot strand a committed approval.
	var skipped []string
	for _, bad := range store.InvalidOverrides(input.Effective) {
		h.logger.Warn("override block does not fit record, skipping", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"block":         bad.Block,
			"error":         bad.Err.Error(),
		})
		skipped = append(skipped, bad.Block)
	}
	input.Effective = input.Effective.Without(skipped...)

	decision, err := h.applier.Apply(ctx, app, workflow.CRMApproved{ReviewerID: input.ReviewerID}, h.now(), input.ReviewerID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		ApplicationID:    input.ApplicationID,
		Outcome:          decision.Outcome.String(),
		Status:           app.Status(),
		SkippedOverrides: skipped,
	}
	if decision.Outcome == workflow.Refused {
		return output, nil
	}

	result, err := h.records.MergeApprovedFields(ctx, input.ApplicationID, input.Effective, input.SubscriptionAttributes)
	if err != nil {
		return nil, err
	}
	output.Merged = !input.Effective.IsEmpty() || len(input.SubscriptionAttributes) > 0
	output.ProfessionalMissing = result.ProfessionalMissing
	output.SubscriptionMissing = result.SubscriptionMissing

	if result.ProfessionalMissing {
		h.logger.Warn("professional details not found for approved application", map[string]interface{}{
			"applicationId":    input.ApplicationID,
			"overridesSkipped": len(input.Effective.ProfessionalDetails) > 0,
		})
	}
	if result.SubscriptionMissing {
		h.logger.Warn("subscription details not found for approved application", map[string]interface{}{
			"applicationId":    input.ApplicationID,
			"overridesSkipped": len(input.Effective.SubscriptionDetails) > 0 || len(input.SubscriptionAttributes) > 0,
		})
	}

	if output.Merged {
		if app, err = h.records.GetByApplicationID(ctx, input.ApplicationID); err != nil {
			return nil, err
		}
	}

	if decision.Changed() || output.Merged {
		h.publisher.PublishApplicationUpdated(ctx, app, outbox.Meta{
			TenantID:      input.TenantID,
			CorrelationID: input.CorrelationID,
			Trigger:       string(workflow.KindCRMApproved),
		})
	}

	h.logger.Info("approval reconciled", map[string]interface{}{
		"applicationId":       output.ApplicationID,
		"outcome":             output.Outcome,
		"merged":              output.Merged,
		"professionalMissing": output.ProfessionalMissing,
		"subscriptionMissing": output.SubscriptionMissing,
		"skippedOverrides":    output.SkippedOverrides,
	})
	return output, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
