// Package outbox emits integration events after a local state change has
// been committed. Delivery is best effort: failures are logged and counted,
// never returned.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"portal-service/internal/common/logger"
	"portal-service/internal/common/metrics"
	"portal-service/internal/lookup"
	"portal-service/internal/models"

	"github.com/google/uuid"
)

const (
	EventApplicationUpdated = "profile.service.application.updated"

	serviceName    = "portal-service"
	serviceVersion = "1.0"
)

// Producer is satisfied by *messaging.Producer.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Meta carries envelope context that is not part of the aggregate.
type Meta struct {
	TenantID      string
	CorrelationID string
	Trigger       string
}

// Publisher is what reconciling code depends on.
type Publisher interface {
	PublishApplicationUpdated(ctx context.Context, app *models.Application, meta Meta)
}

type Outbox struct {
	producer Producer
	topic    string
	resolver lookup.Resolver
	logger   logger.Logger
	now      func() time.Time
	newID    func() string
}

var _ Publisher = (*Outbox)(nil)

func New(producer Producer, topic string, resolver lookup.Resolver, log logger.Logger) *Outbox {
	if topic == "" {
		topic = EventApplicationUpdated
	}
	return &Outbox{
		producer: producer,
		topic:    topic,
		resolver: resolver,
		logger:   log.WithFields(map[string]interface{}{"component": "outbox"}),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Snapshot builds the outbound view, resolving the membership category id to
// its name.
func (o *Outbox) Snapshot(ctx context.Context, app *models.Application, meta Meta) models.ApplicationSnapshot {
	snap := models.ApplicationSnapshot{
		ApplicationID:       app.ApplicationID(),
		TenantID:            meta.TenantID,
		Status:              app.Status(),
		Trigger:             meta.Trigger,
		PersonalDetails:     app.Personal,
		ProfessionalDetails: app.Professional,
		SubscriptionDetails: app.Subscription,
	}
	if category := app.MembershipCategory(); category != "" {
		snap.MembershipCategoryName = category
		if o.resolver != nil {
			snap.MembershipCategoryName = o.resolver.ResolveName(ctx, category)
		}
	}
	return snap
}

func (o *Outbox) PublishApplicationUpdated(ctx context.Context, app *models.Application, meta Meta) {
	if app == nil || app.Personal == nil {
		return
	}
	snap := o.Snapshot(ctx, app, meta)

	data, err := json.Marshal(snap)
	if err != nil {
		o.fail(snap.ApplicationID, "", err)
		return
	}

	metadata := map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
	}
	if meta.TenantID != "" {
		metadata["tenantId"] = meta.TenantID
	}
	if meta.CorrelationID != "" {
		metadata["correlationId"] = meta.CorrelationID
	}

	env := models.Envelope{
		EventID:   o.newID(),
		EventType: EventApplicationUpdated,
		Timestamp: o.now(),
		Data:      data,
		Metadata:  metadata,
	}

	if err := o.producer.Publish(ctx, o.topic, snap.ApplicationID, env); err != nil {
		o.fail(snap.ApplicationID, env.EventID, err)
		return
	}

	metrics.OutboxPublishTotal.WithLabelValues(EventApplicationUpdated, "success").Inc()
	o.logger.Info("application update published", map[string]interface{}{
		"eventId":       env.EventID,
		"applicationId": snap.ApplicationID,
		"status":        string(snap.Status),
		"trigger":       meta.Trigger,
	})
}

func (o *Outbox) fail(applicationID, eventID string, err error) {
	metrics.OutboxPublishTotal.WithLabelValues(EventApplicationUpdated, "failure").Inc()
	o.logger.Error("application update publish failed", map[string]interface{}{
		"eventId":       eventID,
		"applicationId": applicationID,
		"error":         err.Error(),
	})
}
