// Package reconcile applies status transition decisions to the record store.
// The event workers and the HTTP services both go through Applier so a
// trigger is handled the same way regardless of where it came from.
package reconcile

import (
	"context"
	"time"

	"portal-service/internal/common/logger"
	"portal-service/internal/common/metrics"
	"portal-service/internal/models"
	"portal-service/internal/store"
	"portal-service/internal/workflow"
)

type Applier struct {
	records store.Records
	logger  logger.Logger
}

func NewApplier(records store.Records, log logger.Logger) *Applier {
	return &Applier{
		records: records,
		logger:  log.WithFields(map[string]interface{}{"component": "reconcile"}),
	}
}

// Apply runs the guard for trigger against app and, when it decides on a
// transition, writes the new status with a compare-and-set on the status the
// decision was made from. app.Personal is replaced with the stored record on
// success. Refusals are logged and returned as decisions, not errors.
func (a *Applier) Apply(ctx context.Context, app *models.Application, trigger workflow.Trigger, now time.Time, updatedBy string) (workflow.Decision, error) {
	current := app.Status()
	d := workflow.Decide(current, trigger, now)

	fields := map[string]interface{}{
		"applicationId": app.ApplicationID(),
		"trigger":       string(trigger.Kind()),
		"from":          string(d.From),
		"to":            string(d.To),
		"outcome":       d.Outcome.String(),
	}

	switch d.Outcome {
	case workflow.Refused:
		metrics.StatusTransitionsTotal.WithLabelValues(string(trigger.Kind()), d.Outcome.String(), string(d.To)).Inc()
		fields["reason"] = d.Reason
		a.logger.Warn("status transition refused", fields)
		return d, nil
	case workflow.NoChange, workflow.Ignored:
		metrics.StatusTransitionsTotal.WithLabelValues(string(trigger.Kind()), d.Outcome.String(), string(d.To)).Inc()
		fields["reason"] = d.Reason
		a.logger.Debug("status left unchanged", fields)
		return d, nil
	}

	updated, err := a.records.UpdateApplicationStatus(ctx, models.StatusChange{
		ApplicationID: app.ApplicationID(),
		From:          d.From,
		To:            d.To,
		Approval:      d.Approval,
		UpdatedBy:     updatedBy,
	})
	if err != nil {
		metrics.StatusTransitionsTotal.WithLabelValues(string(trigger.Kind()), "error", string(d.To)).Inc()
		return d, err
	}

	metrics.StatusTransitionsTotal.WithLabelValues(string(trigger.Kind()), d.Outcome.String(), string(d.To)).Inc()
	app.Personal = updated
	a.logger.Info("application status changed", fields)
	return d, nil
}
