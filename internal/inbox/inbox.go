// Package inbox decodes consumed event envelopes, deduplicates them and
// dispatches each to the worker registered for its event type.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/common/messaging"
	"portal-service/internal/common/metrics"
	"portal-service/internal/common/observability"
	"portal-service/internal/common/validation"
	"portal-service/internal/models"

	"go.opentelemetry.io/otel/codes"
)

// Handler reconciles one event. Returned errors are classified by
// apperrors.Classify: retryable errors are redelivered, the rest dropped.
type Handler interface {
	Handle(ctx context.Context, env models.Envelope) error
}

type HandlerFunc func(ctx context.Context, env models.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env models.Envelope) error {
	return f(ctx, env)
}

// Outcome labels for portal_inbox_events_total.
const (
	OutcomeProcessed   = "processed"
	OutcomeDuplicate   = "duplicate"
	OutcomeInFlight    = "in_flight"
	OutcomeDropped     = "dropped"
	OutcomeRetry       = "retry"
	OutcomeUnknownType = "unknown_type"
	OutcomeInvalid     = "invalid"
)

type Inbox struct {
	handlers map[string]Handler
	dedup    *Deduplicator
	errs     *apperrors.ErrorHandler
	obs      *observability.Observability
	logger   logger.Logger
	now      func() time.Time
}

func New(dedup *Deduplicator, obs *observability.Observability, log logger.Logger) *Inbox {
	if obs == nil {
		obs = observability.NewNoop()
	}
	log = log.WithFields(map[string]interface{}{"component": "inbox"})
	return &Inbox{
		handlers: make(map[string]Handler),
		dedup:    dedup,
		errs:     apperrors.NewErrorHandler(log),
		obs:      obs,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register binds a handler to an event type. Registering a type twice
// replaces the earlier handler.
func (i *Inbox) Register(eventType string, h Handler) {
	i.handlers[eventType] = h
}

// EventTypes lists the registered event types, sorted. Topics are named
// after event types, so this is also the subscription list.
func (i *Inbox) EventTypes() []string {
	types := make([]string, 0, len(i.handlers))
	for t := range i.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Decode parses a broker message into an envelope. A missing event type
// falls back to the topic and a missing event id to the message position.
func (i *Inbox) Decode(msg messaging.Message) (models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return env, apperrors.NewInvalidPayloadError(msg.Topic, "envelope: "+err.Error())
	}
	if env.EventType == "" {
		env.EventType = msg.Topic
	}
	if env.EventID == "" {
		env.EventID = fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return env, apperrors.NewInvalidPayloadError(env.EventType, "envelope has no data")
	}
	if env.Timestamp.IsZero() {
		if !msg.Time.IsZero() {
			env.Timestamp = msg.Time.UTC()
		} else {
			env.Timestamp = i.now()
		}
	}
	return env, nil
}

// HandleMessage is the messaging.HandlerFunc for the consumer loop.
func (i *Inbox) HandleMessage(ctx context.Context, msg messaging.Message) apperrors.Disposition {
	env, err := i.Decode(msg)
	if err != nil {
		metrics.InboxEventsTotal.WithLabelValues(msg.Topic, OutcomeInvalid).Inc()
		return i.errs.HandleEventError(msg.Topic, env.EventID, err)
	}
	return i.Dispatch(ctx, env)
}

// Dispatch runs the registered handler for env exactly once per event id
// while the dedup record lives. An event still held by another delivery is
// deferred, never acked.
func (i *Inbox) Dispatch(ctx context.Context, env models.Envelope) apperrors.Disposition {
	h, ok := i.handlers[env.EventType]
	if !ok {
		metrics.InboxEventsTotal.WithLabelValues(env.EventType, OutcomeUnknownType).Inc()
		i.logger.Warn("no handler for event type, dropping", map[string]interface{}{
			"eventType": env.EventType,
			"eventId":   env.EventID,
		})
		return apperrors.Drop
	}

	switch i.dedup.Claim(ctx, env.EventType, env.EventID) {
	case AlreadyDone:
		metrics.InboxEventsTotal.WithLabelValues(env.EventType, OutcomeDuplicate).Inc()
		i.logger.Info("duplicate event skipped", map[string]interface{}{
			"eventType": env.EventType,
			"eventId":   env.EventID,
		})
		return apperrors.Ack
	case InFlight:
		metrics.InboxEventsTotal.WithLabelValues(env.EventType, OutcomeInFlight).Inc()
		i.logger.Info("event claimed elsewhere, deferring", map[string]interface{}{
			"eventType": env.EventType,
			"eventId":   env.EventID,
		})
		return apperrors.Defer
	}

	ctx, span := i.obs.StartSpan(ctx, "inbox."+env.EventType, map[string]string{
		"event.id":   env.EventID,
		"event.type": env.EventType,
	})
	defer span.End()

	inFlight := metrics.InboxEventsInFlight.WithLabelValues(env.EventType)
	inFlight.Inc()
	defer inFlight.Dec()

	start := time.Now()
	err := h.Handle(ctx, env)
	i.obs.RecordEventDuration(ctx, env.EventType, time.Since(start))

	if err != nil {
		i.dedup.Release(ctx, env.EventType, env.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		disposition := i.errs.HandleEventError(env.EventType, env.EventID, err)
		outcome := OutcomeDropped
		if disposition == apperrors.Retry {
			outcome = OutcomeRetry
		}
		metrics.InboxEventsTotal.WithLabelValues(env.EventType, outcome).Inc()
		i.obs.RecordEventProcessed(ctx, env.EventType, outcome)
		return disposition
	}

	i.dedup.Complete(ctx, env.EventType, env.EventID)
	metrics.InboxEventsTotal.WithLabelValues(env.EventType, OutcomeProcessed).Inc()
	i.obs.RecordEventProcessed(ctx, env.EventType, OutcomeProcessed)
	return apperrors.Ack
}

// ==========================
// Payload helpers
// ==========================

// DecodePayload checks required top-level keys in env.Data and unmarshals it
// into dest. Keys are compared with their first letter lower-cased, so a
// producer sending ApplicationId satisfies applicationId.
func DecodePayload(env models.Envelope, dest interface{}, required ...string) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return apperrors.NewInvalidPayloadError(env.EventType, err.Error())
	}
	canonical := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		canonical[lowerFirst(k)] = v
	}
	if vr := validation.RequireKeys(canonical, required...); !vr.Valid {
		return apperrors.NewInvalidPayloadError(env.EventType, strings.Join(vr.GetErrorMessages(), "; "))
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return apperrors.NewInvalidPayloadError(env.EventType, err.Error())
	}
	return nil
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
