package service

import (
	"context"
	"strings"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"
	"portal-service/internal/outbox"
	"portal-service/internal/workflow"
)

const maxListLimit = 200

func (s *Service) GetApplication(ctx context.Context, actor auth.User, applicationID string) (*models.Application, error) {
	if err := requireCRM(actor); err != nil {
		return nil, err
	}
	return s.records.GetByApplicationID(ctx, applicationID)
}

func (s *Service) ListApplications(ctx context.Context, actor auth.User, filter models.ListFilter) ([]*models.Application, error) {
	if err := requireCRM(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("unknown status: " + string(filter.Status))
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.records.ListApplications(ctx, filter)
}

// UpdateStatus is the manual CRM decision. It goes through the same guard
// and outbox as the review events; a decision against a terminal
// application is refused.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.User, applicationID string, in StatusInput) (*models.Application, error) {
	if err := requireCRM(actor); err != nil {
		return nil, err
	}

	var trigger workflow.Trigger
	switch in.Status {
	case models.StatusApproved:
		trigger = workflow.CRMApproved{ReviewerID: actor.ID}
	case models.StatusRejected:
		if strings.TrimSpace(in.Reason) == "" {
			return nil, apperrors.NewValidationError("reason is required when rejecting")
		}
		trigger = workflow.CRMRejected{ReviewerID: actor.ID, Reason: in.Reason, Notes: in.Comments}
	default:
		return nil, apperrors.NewValidationError("status must be approved or rejected")
	}

	app, err := s.records.GetByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	decision, err := s.applier.Apply(ctx, app, trigger, s.now(), actor.ID)
	if err != nil {
		return nil, err
	}
	if decision.Outcome == workflow.Refused {
		return nil, apperrors.NewTransitionRefusedError(string(decision.From), string(in.Status))
	}

	if decision.Changed() {
		s.publisher.PublishApplicationUpdated(ctx, app, outbox.Meta{
			TenantID: actor.TenantID,
			Trigger:  string(trigger.Kind()),
		})
	}
	return app, nil
}
