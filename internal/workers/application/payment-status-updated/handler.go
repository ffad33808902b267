// internal/workers/application/payment-status-updated/handler.go
package paymentstatusupdated

import (
	"context"
	"errors"
	"time"

	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/inbox"
	"portal-service/internal/models"
	"portal-service/internal/outbox"
	"portal-service/internal/reconcile"
	"portal-service/internal/store"
	"portal-service/internal/workflow"
)

const (
	TaskType = "payment-status-updated"

	EventStatusUpdated   = "application.status.updated"
	EventStatusSubmitted = "application.status.submitted"
)

// EventTypes are the payment signals this handler is registered for.
var EventTypes = []string{EventStatusUpdated, EventStatusSubmitted}

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
	if err := inbox.DecodePayload(env, &input, "applicationId", "status"); err != nil {
		return err
	}
	input.ReceivedAt = env.Timestamp
	input.CorrelationID = env.MetadataString("correlationId")
	if input.TenantID == "" {
		input.TenantID = env.MetadataString("tenantId")
	}

	h.logger.Info("processing payment event", map[string]interface{}{
		"eventId":       env.EventID,
		"applicationId": input.ApplicationID,
		"paymentStatus": input.Status,
	})

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	_, err := h.execute(ctx, &input)
	return err
}

// execute finds the personal record, runs the guard, patches payment and
// publishes, in that order. A missing application is returned as not-found
// and dropped by the inbox; a missing subscription is a precondition failure
// and redelivered.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	app, err := h.records.GetByApplicationID(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		ApplicationID:  input.ApplicationID,
		PreviousStatus: app.Status(),
	}

	decision, err := h.applier.Apply(ctx, app, workflow.PaymentCaptured{PaymentStatus: input.Status}, h.now(), h.config.UpdatedBy)
	if err != nil {
		return nil, err
	}
	output.Outcome = decision.Outcome.String()

	if input.HasPayment() {
		if app.Subscription == nil {
			return nil, apperrors.NewPreconditionFailedError("payment received before subscription for applicationId: " + input.ApplicationID)
		}
		sub, err := h.records.PatchSubscriptionPayment(ctx, input.ApplicationID, input.Payment())
		if err != nil {
			if errors.Is(err, apperrors.ErrRecordNotFound) {
				return nil, apperrors.NewPreconditionFailedError("subscription disappeared for applicationId: " + input.ApplicationID)
			}
			return nil, err
		}
		app.Subscription = sub
		output.PaymentPatched = true
	}

	output.Status = app.Status()

	h.publisher.PublishApplicationUpdated(ctx, app, outbox.Meta{
		TenantID:      input.TenantID,
		CorrelationID: input.CorrelationID,
		Trigger:       string(workflow.KindPaymentCaptured),
	})

	h.logger.Info("payment event reconciled", map[string]interface{}{
		"applicationId":  output.ApplicationID,
		"previousStatus": string(output.PreviousStatus),
		"status":         string(output.Status),
		"outcome":        output.Outcome,
		"paymentPatched": output.PaymentPatched,
	})
	return output, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
