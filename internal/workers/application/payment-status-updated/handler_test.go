// internal/workers/application/payment-status-updated/handler_test.go
package paymentstatusupdated

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/models"
	"portal-service/internal/outbox/outboxtest"
	"portal-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var eventTime = time.Date(2025, 5, 10, 14, 0, 0, 0, time.UTC)

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second, UpdatedBy: "payment-service"}
}

func createTestInput() *Input {
	amount := 500.0
	return &Input{
		ApplicationID:   "A1",
		Status:          "paid",
		PaymentIntentID: "pi_1",
		Amount:          &amount,
		Currency:        "EUR",
		TenantID:        "tenant-1",
		ReceivedAt:      eventTime,
	}
}

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl.WithFields(map[string]interface{}{"error": err})
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

type fixture struct {
	mem     *storetest.Memory
	rec     *outboxtest.Recorder
	handler *Handler
}

func newFixture(t *testing.T, withSubscription bool) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := storetest.NewMemory()
	mem.Now = func() time.Time { return eventTime }

	_, err := mem.CreatePersonal(ctx, &models.PersonalRecord{ApplicationID: "A1", UserID: "u1"})
	require.NoError(t, err)
	_, err = mem.CreateProfessional(ctx, &models.ProfessionalRecord{ApplicationID: "A1", UserID: "u1"})
	require.NoError(t, err)
	if withSubscription {
		_, err = mem.CreateSubscription(ctx, &models.SubscriptionRecord{
			ApplicationID: "A1",
			UserID:        "u1",
			Details:       models.SubscriptionDetails{PaymentType: models.PaymentTypeDebit, MembershipCategory: "General Nurse"},
		})
		require.NoError(t, err)
	}

	rec := &outboxtest.Recorder{}
	h := NewHandler(createTestConfig(), mem, rec, newTestLogger(t))
	h.now = func() time.Time { return eventTime }
	return &fixture{mem: mem, rec: rec, handler: h}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_CapturedPaymentSubmits(t *testing.T) {
	f := newFixture(t, true)

	output, err := f.handler.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, output.PreviousStatus)
	assert.Equal(t, models.StatusSubmitted, output.Status)
	assert.Equal(t, "transition", output.Outcome)
	assert.True(t, output.PaymentPatched)

	app, err := f.mem.GetByApplicationID(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, app.Status())
	require.NotNil(t, app.Subscription.PaymentDetails)
	assert.Equal(t, "pi_1", app.Subscription.PaymentDetails.PaymentIntentID)
	assert.Equal(t, 500.0, app.Subscription.PaymentDetails.Amount)
	assert.Equal(t, "EUR", app.Subscription.PaymentDetails.Currency)

	last, ok := f.rec.Last()
	require.True(t, ok)
	assert.Equal(t, models.StatusSubmitted, last.Status)
	assert.Equal(t, "tenant-1", last.Meta.TenantID)
	assert.Equal(t, "pi_1", last.App.Subscription.PaymentDetails.PaymentIntentID)
}

func TestHandler_Execute_SamePaymentTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.handler.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	first, _ := f.mem.GetByApplicationID(context.Background(), "A1")

	output, err := f.handler.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, "no_change", output.Outcome)

	second, _ := f.mem.GetByApplicationID(context.Background(), "A1")
	assert.Equal(t, first.Subscription.PaymentDetails, second.Subscription.PaymentDetails)
	assert.Equal(t, first.Status(), second.Status())
}

func TestHandler_Execute_UncapturedStatusIgnored(t *testing.T) {
	f := newFixture(t, true)
	input := createTestInput()
	input.Status = "requires_payment_method"

	output, err := f.handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "ignored", output.Outcome)
	assert.Equal(t, models.StatusInProgress, output.Status)
}

func TestHandler_Execute_LatePaymentOnApprovedApplication(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.mem.UpdateApplicationStatus(context.Background(), models.StatusChange{
		ApplicationID: "A1", From: models.StatusInProgress, To: models.StatusApproved,
	})
	require.NoError(t, err)

	output, err := f.handler.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, "refused", output.Outcome)
	assert.Equal(t, models.StatusApproved, output.Status)
	assert.True(t, output.PaymentPatched)

	app, _ := f.mem.GetByApplicationID(context.Background(), "A1")
	assert.Equal(t, models.StatusApproved, app.Status())
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_UnknownApplication(t *testing.T) {
	f := newFixture(t, true)
	input := createTestInput()
	input.ApplicationID = "missing"

	_, err := f.handler.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrApplicationNotFound))
	assert.Equal(t, apperrors.Drop, apperrors.Classify(err))
	assert.Equal(t, 0, f.rec.Count())
}

func TestHandler_Execute_PaymentBeforeSubscriptionRetries(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.handler.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPrecondition))
	assert.Equal(t, apperrors.Retry, apperrors.Classify(err))
	assert.Equal(t, 0, f.rec.Count())

	_, err = f.mem.CreateSubscription(context.Background(), &models.SubscriptionRecord{
		ApplicationID: "A1",
		Details:       models.SubscriptionDetails{PaymentType: models.PaymentTypeCard},
	})
	require.NoError(t, err)

	output, err := f.handler.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.True(t, output.PaymentPatched)
	assert.Equal(t, models.StatusSubmitted, output.Status)
}

func TestHandler_Execute_StatusOnlyEventWithoutSubscription(t *testing.T) {
	f := newFixture(t, false)
	input := &Input{ApplicationID: "A1", Status: "succeeded", ReceivedAt: eventTime}

	output, err := f.handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, output.PaymentPatched)
	assert.Equal(t, models.StatusSubmitted, output.Status)
}

// ==========================
// Envelope Tests
// ==========================

func TestHandler_Handle_UsesEnvelopeTimestampAndMetadata(t *testing.T) {
	f := newFixture(t, true)
	env := models.Envelope{
		EventID:   "evt-1",
		EventType: EventStatusUpdated,
		Timestamp: eventTime,
		Data:      json.RawMessage(`{"ApplicationId":"A1","status":"PAID","paymentIntentId":"pi_9","amount":120.5,"currency":"EUR"}`),
		Metadata:  map[string]interface{}{"tenantId": "tenant-7", "correlationId": "corr-1"},
	}

	require.NoError(t, f.handler.Handle(context.Background(), env))

	app, _ := f.mem.GetByApplicationID(context.Background(), "A1")
	assert.Equal(t, eventTime, app.Subscription.PaymentDetails.UpdatedAt)
	assert.Equal(t, "PAID", app.Subscription.PaymentDetails.Status)

	last, _ := f.rec.Last()
	assert.Equal(t, "tenant-7", last.Meta.TenantID)
	assert.Equal(t, "corr-1", last.Meta.CorrelationID)
}

func TestHandler_Handle_MissingStatusDropped(t *testing.T) {
	f := newFixture(t, true)
	env := models.Envelope{EventType: EventStatusUpdated, Data: json.RawMessage(`{"applicationId":"A1"}`)}

	err := f.handler.Handle(context.Background(), env)
	require.Error(t, err)
	assert.Equal(t, apperrors.Drop, apperrors.Classify(err))
}
