package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"portal-service/internal/common/database"
	"portal-service/internal/common/logger"
)

const (
	stateProcessing = "processing"
	stateDone       = "done"
)

// Deduplicator remembers processed event ids in Redis. An event is claimed
// with a short lease while its handler runs and marked done for the full
// TTL afterwards. Only a done event counts as a duplicate; a lease left by a
// crashed consumer holds redelivery back until it expires.
type Deduplicator struct {
	redis  *database.RedisClient
	ttl    time.Duration
	lease  time.Duration
	logger logger.Logger
}

func NewDeduplicator(redis *database.RedisClient, ttl, lease time.Duration, log logger.Logger) *Deduplicator {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &Deduplicator{
		redis:  redis,
		ttl:    ttl,
		lease:  lease,
		logger: log.WithFields(map[string]interface{}{"component": "inbox-dedup"}),
	}
}

func Key(eventType, eventID string) string {
	return "inbox:" + eventType + ":" + eventID
}

// ClaimState is the outcome of claiming an event id.
type ClaimState int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed ClaimState = iota
	// AlreadyDone means a previous delivery finished the event.
	AlreadyDone
	// InFlight means another delivery holds the lease. The event is not done
	// yet and must be redelivered once the lease is released or expires.
	InFlight
)

func (s ClaimState) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case AlreadyDone:
		return "done"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

// Claim takes the processing lease for an event. Redis failures on the
// claim itself degrade to Claimed; handlers are idempotent.
func (d *Deduplicator) Claim(ctx context.Context, eventType, eventID string) ClaimState {
	if d == nil || d.redis == nil {
		return Claimed
	}
	key := Key(eventType, eventID)
	ok, err := d.redis.SetNX(ctx, key, stateProcessing, d.lease)
	if err != nil {
		d.logger.Warn("dedup claim failed, processing anyway", map[string]interface{}{
			"eventType": eventType,
			"eventId":   eventID,
			"error":     err.Error(),
		})
		return Claimed
	}
	if ok {
		return Claimed
	}

	state, err := d.redis.Get(ctx, key)
	switch {
	case err == nil && state == stateDone:
		return AlreadyDone
	case err == nil || errors.Is(err, redis.Nil):
		// Held by another delivery, or released between the two calls.
		return InFlight
	default:
		d.logger.Warn("dedup state read failed", map[string]interface{}{
			"eventType": eventType,
			"eventId":   eventID,
			"error":     err.Error(),
		})
		return InFlight
	}
}

func (d *Deduplicator) Complete(ctx context.Context, eventType, eventID string) {
	if d == nil || d.redis == nil {
		return
	}
	if err := d.redis.Set(ctx, Key(eventType, eventID), stateDone, d.ttl); err != nil {
		d.logger.Warn("dedup complete failed", map[string]interface{}{
			"eventType": eventType,
			"eventId":   eventID,
			"error":     err.Error(),
		})
	}
}

// Release forgets a claim so a redelivered copy is processed.
func (d *Deduplicator) Release(ctx context.Context, eventType, eventID string) {
	if d == nil || d.redis == nil {
		return
	}
	if err := d.redis.Del(ctx, Key(eventType, eventID)); err != nil {
		d.logger.Warn("dedup release failed", map[string]interface{}{
			"eventType": eventType,
			"eventId":   eventID,
			"error":     err.Error(),
		})
	}
}
