package service

import (
	"context"
	"strings"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"
	"portal-service/internal/outbox"
	"portal-service/internal/store"
	"portal-service/internal/workflow"
)

// CreateSubscription writes the subscription and runs the guard with the
// subscription-created trigger. An undergraduate category moves the
// application to submitted without waiting for a payment and publishes the
// snapshot.
func (s *Service) CreateSubscription(ctx context.Context, actor auth.User, applicationID string, in SubscriptionInput) (*models.SubscriptionRecord, error) {
	app, err := s.load(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	s.warnProtected(applicationID, actor, &in)

	details := in.SubscriptionDetails
	if details.MembershipCategory == "" && app.Professional != nil {
		details.MembershipCategory = app.Professional.Details.MembershipCategory
	}

	created, err := s.records.CreateSubscription(ctx, &models.SubscriptionRecord{
		ApplicationID:          applicationID,
		UserID:                 recordOwner(actor),
		Details:                details,
		SubscriptionAttributes: in.SubscriptionAttributes,
		Meta:                   recordMeta(actor),
	})
	if err != nil {
		return nil, err
	}
	app.Subscription = created

	categoryName := strings.TrimSpace(details.MembershipCategory)
	if s.resolver != nil && categoryName != "" {
		categoryName = s.resolver.ResolveName(ctx, categoryName)
	}

	trigger := workflow.SubscriptionCreated{Undergraduate: workflow.IsUndergraduate(categoryName)}
	decision, err := s.applier.Apply(ctx, app, trigger, s.now(), actor.ID)
	if err != nil {
		// The subscription is stored; a payment event can still submit it.
		s.logger.Error("status update after subscription create failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		return created, nil
	}

	if decision.Changed() {
		s.publisher.PublishApplicationUpdated(ctx, app, outbox.Meta{
			TenantID: actor.TenantID,
			Trigger:  string(workflow.KindSubscriptionCreated),
		})
	}

	s.logger.Info("subscription created", map[string]interface{}{
		"applicationId":      applicationID,
		"membershipCategory": categoryName,
		"paymentType":        created.Details.PaymentType,
		"paymentFrequency":   created.Details.PaymentFrequency,
		"status":             string(app.Status()),
	})
	return created, nil
}

func (s *Service) GetSubscription(ctx context.Context, actor auth.User, applicationID string) (*models.SubscriptionRecord, error) {
	app, err := s.load(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Subscription == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindSubscription, applicationID)
	}
	return app.Subscription, nil
}

// UpdateSubscription replaces the subscription terms. Payment details and the
// membership number in the body are ignored.
func (s *Service) UpdateSubscription(ctx context.Context, actor auth.User, applicationID string, in SubscriptionInput) (*models.SubscriptionRecord, error) {
	app, err := s.load(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Subscription == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindSubscription, applicationID)
	}
	s.warnProtected(applicationID, actor, &in)

	details := in.SubscriptionDetails
	if details.MembershipCategory == "" {
		details.MembershipCategory = app.Subscription.Details.MembershipCategory
	}
	return s.records.UpdateSubscription(ctx, applicationID, details, actor.ID)
}

func (s *Service) DeleteSubscription(ctx context.Context, actor auth.User, applicationID string) error {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return err
	}
	return s.records.SoftDeleteSubscription(ctx, applicationID, actor.ID)
}

func (s *Service) RestoreSubscription(ctx context.Context, actor auth.User, applicationID string) (*models.SubscriptionRecord, error) {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	return s.records.RestoreSubscription(ctx, applicationID, actor.ID)
}

func (s *Service) warnProtected(applicationID string, actor auth.User, in *SubscriptionInput) {
	if fields := in.ProtectedFields(); len(fields) > 0 {
		s.logger.Warn("protected subscription fields ignored", map[string]interface{}{
			"applicationId": applicationID,
			"userId":        actor.ID,
			"fields":        fields,
		})
	}
}
