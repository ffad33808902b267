package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"portal-service/internal/common/database"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/common/messaging"
	"portal-service/internal/common/metrics"
	"portal-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newRedis(t *testing.T) (*database.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return database.NewRedisFromClient(client), mr
}

func newInbox(t *testing.T, rc *database.RedisClient) *Inbox {
	t.Helper()
	log := logger.NewTestLogger(t)
	return New(NewDeduplicator(rc, time.Hour, time.Minute, log), nil, log)
}

func message(t *testing.T, topic string, env map[string]interface{}) messaging.Message {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return messaging.Message{Topic: topic, Partition: 2, Offset: 41, Value: raw}
}

type countingHandler struct {
	calls int
	err   error
	last  models.Envelope
}

func (h *countingHandler) Handle(_ context.Context, env models.Envelope) error {
	h.calls++
	h.last = env
	return h.err
}

// ==========================
// Decode
// ==========================

func TestDecode_FallsBackToTopicAndPosition(t *testing.T) {
	in := newInbox(t, nil)
	msg := message(t, "application.status.updated", map[string]interface{}{
		"data": map[string]interface{}{"applicationId": "A1"},
	})
	msg.Time = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	env, err := in.Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, "application.status.updated", env.EventType)
	assert.Equal(t, "application.status.updated:2:41", env.EventID)
	assert.Equal(t, msg.Time, env.Timestamp)
}

func TestDecode_Rejects(t *testing.T) {
	in := newInbox(t, nil)

	_, err := in.Decode(messaging.Message{Topic: "t", Value: []byte("{not json")})
	assert.True(t, errors.Is(err, &apperrors.StandardError{Code: apperrors.ErrCodeInvalidPayload}))

	_, err = in.Decode(message(t, "t", map[string]interface{}{"eventId": "e1", "eventType": "x"}))
	assert.Error(t, err)
}

func TestDecodePayload_LegacyCasingAndRequiredKeys(t *testing.T) {
	env := models.Envelope{EventType: "application.status.updated", Data: json.RawMessage(`{"ApplicationId":"A1","status":"paid"}`)}

	var dest struct {
		ApplicationID string `json:"applicationId"`
		Status        string `json:"status"`
	}
	require.NoError(t, DecodePayload(env, &dest, "applicationId", "status"))
	assert.Equal(t, "A1", dest.ApplicationID)
	assert.Equal(t, "paid", dest.Status)

	err := DecodePayload(env, &dest, "applicationId", "reviewerId")
	require.Error(t, err)
	assert.Equal(t, apperrors.Drop, apperrors.Classify(err))
	assert.Contains(t, apperrors.Normalize(err).Details, "reviewerId")
}

// ==========================
// Dispatch
// ==========================

func TestHandleMessage_UnknownTypeDropped(t *testing.T) {
	in := newInbox(t, nil)
	before := testutil.ToFloat64(metrics.InboxEventsTotal.WithLabelValues("nobody.listens", OutcomeUnknownType))

	d := in.HandleMessage(context.Background(), message(t, "nobody.listens", map[string]interface{}{
		"eventId": "e1", "data": map[string]interface{}{"a": 1},
	}))
	assert.Equal(t, apperrors.Drop, d)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.InboxEventsTotal.WithLabelValues("nobody.listens", OutcomeUnknownType)))
}

func TestHandleMessage_InvalidEnvelopeDropped(t *testing.T) {
	in := newInbox(t, nil)
	d := in.HandleMessage(context.Background(), messaging.Message{Topic: "application.status.updated", Value: []byte("[]")})
	assert.Equal(t, apperrors.Drop, d)
}

func TestDispatch_DuplicateDeliveryHandledOnce(t *testing.T) {
	rc, mr := newRedis(t)
	in := newInbox(t, rc)
	h := &countingHandler{}
	in.Register("application.status.updated", h)

	msg := message(t, "application.status.updated", map[string]interface{}{
		"eventId": "evt-9", "eventType": "application.status.updated",
		"data": map[string]interface{}{"applicationId": "A1"},
	})

	assert.Equal(t, apperrors.Ack, in.HandleMessage(context.Background(), msg))
	assert.Equal(t, apperrors.Ack, in.HandleMessage(context.Background(), msg))
	assert.Equal(t, 1, h.calls)

	state, err := mr.Get(Key("application.status.updated", "evt-9"))
	require.NoError(t, err)
	assert.Equal(t, stateDone, state)
	assert.Equal(t, time.Hour, mr.TTL(Key("application.status.updated", "evt-9")))
}

func TestDispatch_RetryableFailureReleasesClaim(t *testing.T) {
	rc, mr := newRedis(t)
	in := newInbox(t, rc)
	h := &countingHandler{err: apperrors.NewPreconditionFailedError("subscription missing")}
	in.Register("application.status.updated", h)

	env := models.Envelope{EventID: "evt-1", EventType: "application.status.updated", Data: json.RawMessage(`{}`)}

	assert.Equal(t, apperrors.Retry, in.Dispatch(context.Background(), env))
	assert.False(t, mr.Exists(Key(env.EventType, env.EventID)))

	h.err = nil
	assert.Equal(t, apperrors.Ack, in.Dispatch(context.Background(), env))
	assert.Equal(t, 2, h.calls)
}

func TestDispatch_LeaseLeftByCrashedConsumerIsDeferred(t *testing.T) {
	rc, mr := newRedis(t)
	in := newInbox(t, rc)
	h := &countingHandler{}
	in.Register("application.status.updated", h)

	env := models.Envelope{EventID: "evt-1", EventType: "application.status.updated", Data: json.RawMessage(`{}`)}
	key := Key(env.EventType, env.EventID)
	require.NoError(t, mr.Set(key, stateProcessing))
	mr.SetTTL(key, time.Minute)

	before := testutil.ToFloat64(metrics.InboxEventsTotal.WithLabelValues(env.EventType, OutcomeInFlight))
	assert.Equal(t, apperrors.Defer, in.Dispatch(context.Background(), env))
	assert.Equal(t, 0, h.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.InboxEventsTotal.WithLabelValues(env.EventType, OutcomeInFlight)))

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, apperrors.Ack, in.Dispatch(context.Background(), env))
	assert.Equal(t, 1, h.calls)

	state, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, stateDone, state)
}

func TestDispatch_NotFoundDropped(t *testing.T) {
	in := newInbox(t, nil)
	in.Register("applications.review.approved.v1", &countingHandler{err: apperrors.NewApplicationNotFoundError("A9")})

	env := models.Envelope{EventID: "evt-2", EventType: "applications.review.approved.v1", Data: json.RawMessage(`{}`)}
	assert.Equal(t, apperrors.Drop, in.Dispatch(context.Background(), env))
}

func TestDispatch_UnexpectedErrorRetried(t *testing.T) {
	in := newInbox(t, nil)
	in.Register("applications.review.rejected.v1", &countingHandler{err: errors.New("connection refused")})

	env := models.Envelope{EventID: "evt-3", EventType: "applications.review.rejected.v1", Data: json.RawMessage(`{}`)}
	assert.Equal(t, apperrors.Retry, in.Dispatch(context.Background(), env))
}

func TestEventTypes_Sorted(t *testing.T) {
	in := newInbox(t, nil)
	in.Register("b.event", &countingHandler{})
	in.Register("a.event", HandlerFunc(func(context.Context, models.Envelope) error { return nil }))
	assert.Equal(t, []string{"a.event", "b.event"}, in.EventTypes())
}

// ==========================
// Deduplicator
// ==========================

func TestDeduplicator_RedisOutageProcesses(t *testing.T) {
	client, mock := redismock.NewClientMock()
	d := NewDeduplicator(database.NewRedisFromClient(client), time.Hour, time.Minute, logger.NewTestLogger(t))

	mock.ExpectSetNX(Key("t", "e1"), stateProcessing, time.Minute).SetErr(errors.New("connection reset"))
	assert.Equal(t, Claimed, d.Claim(context.Background(), "t", "e1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduplicator_UnreadableStateIsInFlight(t *testing.T) {
	client, mock := redismock.NewClientMock()
	d := NewDeduplicator(database.NewRedisFromClient(client), time.Hour, time.Minute, logger.NewTestLogger(t))

	mock.ExpectSetNX(Key("t", "e1"), stateProcessing, time.Minute).SetVal(false)
	mock.ExpectGet(Key("t", "e1")).SetErr(errors.New("connection reset"))
	assert.Equal(t, InFlight, d.Claim(context.Background(), "t", "e1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduplicator_InFlightClaimBlocksSecondCopy(t *testing.T) {
	rc, mr := newRedis(t)
	d := NewDeduplicator(rc, time.Hour, time.Minute, logger.NewTestLogger(t))

	require.Equal(t, Claimed, d.Claim(context.Background(), "t", "e1"))
	assert.Equal(t, InFlight, d.Claim(context.Background(), "t", "e1"))

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, Claimed, d.Claim(context.Background(), "t", "e1"))
}

func TestDeduplicator_CompletedIsDone(t *testing.T) {
	rc, _ := newRedis(t)
	d := NewDeduplicator(rc, time.Hour, time.Minute, logger.NewTestLogger(t))

	require.Equal(t, Claimed, d.Claim(context.Background(), "t", "e1"))
	d.Complete(context.Background(), "t", "e1")
	assert.Equal(t, AlreadyDone, d.Claim(context.Background(), "t", "e1"))
}

func TestDeduplicator_NilAlwaysClaims(t *testing.T) {
	var d *Deduplicator
	assert.Equal(t, Claimed, d.Claim(context.Background(), "t", "e1"))
	d.Complete(context.Background(), "t", "e1")
	d.Release(context.Background(), "t", "e1")
}
