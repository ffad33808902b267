package inbox_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"portal-service/internal/common/auth"
	"portal-service/internal/common/database"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/common/messaging"
	"portal-service/internal/inbox"
	"portal-service/internal/lookup"
	"portal-service/internal/models"
	"portal-service/internal/outbox/outboxtest"
	"portal-service/internal/service"
	"portal-service/internal/store/storetest"
	paymentstatusupdated "portal-service/internal/workers/application/payment-status-updated"
	worklocationupdated "portal-service/internal/workers/professional/work-location-updated"
	reviewapproved "portal-service/internal/workers/review/review-approved"
	reviewrejected "portal-service/internal/workers/review/review-rejected"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Scenario harness
// ==========================

type harness struct {
	mem   *storetest.Memory
	rec   *outboxtest.Recorder
	svc   *service.Service
	inbox *inbox.Inbox
	seq   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	dedup := inbox.NewDeduplicator(database.NewRedisFromClient(client), time.Hour, time.Minute, log)

	mem := storetest.NewMemory()
	rec := &outboxtest.Recorder{}
	in := inbox.New(dedup, nil, log)

	payment := paymentstatusupdated.NewHandler(paymentstatusupdated.LoadConfig(), mem, rec, log)
	for _, eventType := range paymentstatusupdated.EventTypes {
		in.Register(eventType, payment)
	}
	in.Register(reviewapproved.EventType, reviewapproved.NewHandler(reviewapproved.LoadConfig(), mem, rec, log))
	in.Register(reviewrejected.EventType, reviewrejected.NewHandler(reviewrejected.LoadConfig(), mem, rec, log))
	in.Register(worklocationupdated.EventType, worklocationupdated.NewHandler(worklocationupdated.LoadConfig(), mem, log))

	return &harness{
		mem:   mem,
		rec:   rec,
		svc:   service.New(mem, rec, lookup.Static{}, log),
		inbox: in,
	}
}

func (h *harness) deliver(t *testing.T, eventType, eventID string, data map[string]interface{}) apperrors.Disposition {
	t.Helper()
	if eventID == "" {
		h.seq++
		eventID = fmt.Sprintf("%s-%d", eventType, h.seq)
	}
	raw, err := json.Marshal(map[string]interface{}{
		"eventId":   eventID,
		"eventType": eventType,
		"timestamp": time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC),
		"data":      data,
	})
	require.NoError(t, err)
	return h.inbox.HandleMessage(context.Background(), messaging.Message{Topic: eventType, Value: raw})
}

func (h *harness) application(t *testing.T, applicationID string) *models.Application {
	t.Helper()
	app, err := h.mem.GetByApplicationID(context.Background(), applicationID)
	require.NoError(t, err)
	return app
}

var member = auth.User{ID: "u1", UserType: models.UserTypePortal, TenantID: "tenant-1"}

// submitForms creates the three records as the member and returns the
// generated application id.
func (h *harness) submitForms(t *testing.T, category, paymentType string) string {
	t.Helper()
	ctx := context.Background()
	personal, err := h.svc.CreatePersonal(ctx, member, service.PersonalInput{
		PersonalInfo: models.PersonalInfo{Surname: "Byrne", Forename: "Aoife"},
	})
	require.NoError(t, err)
	applicationID := personal.ApplicationID
	_, err = h.svc.CreateProfessional(ctx, member, applicationID, service.ProfessionalInput{
		ProfessionalDetails: models.ProfessionalDetails{MembershipCategory: category, WorkLocation: "Beaumont"},
	})
	require.NoError(t, err)
	_, err = h.svc.CreateSubscription(ctx, member, applicationID, service.SubscriptionInput{
		SubscriptionDetails: models.SubscriptionDetails{PaymentType: paymentType},
	})
	require.NoError(t, err)
	return applicationID
}

// ==========================
// Scenarios
// ==========================

func TestScenario_PaidApplicationIsSubmitted(t *testing.T) {
	h := newHarness(t)
	id := h.submitForms(t, "General Nurse", models.PaymentTypeCard)
	assert.Equal(t, models.StatusInProgress, h.application(t, id).Status())

	disp := h.deliver(t, paymentstatusupdated.EventStatusUpdated, "evt-pay-1", map[string]interface{}{
		"applicationId":   id,
		"status":          "paid",
		"paymentIntentId": "pi_1",
		"amount":          500,
		"currency":        "EUR",
	})
	assert.Equal(t, apperrors.Ack, disp)

	app := h.application(t, id)
	assert.Equal(t, models.StatusSubmitted, app.Status())
	require.NotNil(t, app.Subscription.PaymentDetails)
	assert.Equal(t, "pi_1", app.Subscription.PaymentDetails.PaymentIntentID)
	assert.Equal(t, 500.0, app.Subscription.PaymentDetails.Amount)
	assert.Equal(t, "EUR", app.Subscription.PaymentDetails.Currency)
	assert.Equal(t, models.FrequencyAnnually, app.Subscription.Details.PaymentFrequency)

	last, ok := h.rec.Last()
	require.True(t, ok)
	assert.Equal(t, models.StatusSubmitted, last.Status)
}

func TestScenario_RedeliveredPaymentAppliedOnce(t *testing.T) {
	h := newHarness(t)
	id := h.submitForms(t, "General Nurse", models.PaymentTypeCard)
	data := map[string]interface{}{"applicationId": id, "status": "succeeded", "paymentIntentId": "pi_1"}

	assert.Equal(t, apperrors.Ack, h.deliver(t, paymentstatusupdated.EventStatusUpdated, "evt-1", data))
	assert.Equal(t, apperrors.Ack, h.deliver(t, paymentstatusupdated.EventStatusUpdated, "evt-1", data))

	assert.Equal(t, 1, h.rec.Count())
	assert.Equal(t, models.StatusSubmitted, h.application(t, id).Status())
}

func TestScenario_LatePaymentNeverReopensDecision(t *testing.T) {
	h := newHarness(t)
	id := h.submitForms(t, "General Nurse", models.PaymentTypeDebit)

	h.deliver(t, paymentstatusupdated.EventStatusUpdated, "", map[string]interface{}{"applicationId": id, "status": "paid"})
	h.deliver(t, reviewapproved.EventType, "", map[string]interface{}{"applicationId": id, "reviewerId": "crm-7"})
	require.Equal(t, models.StatusApproved, h.application(t, id).Status())

	disp := h.deliver(t, paymentstatusupdated.EventStatusUpdated, "", map[string]interface{}{
		"applicationId":   id,
		"status":          "paid",
		"paymentIntentId": "pi_late",
	})
	assert.Equal(t, apperrors.Ack, disp)

	app := h.application(t, id)
	assert.Equal(t, models.StatusApproved, app.Status())
	assert.Equal(t, "crm-7", app.Personal.ApprovalDetails.ApprovedBy)
	assert.Equal(t, "pi_late", app.Subscription.PaymentDetails.PaymentIntentID)
}

func TestScenario_StatusOnlyMovesForward(t *testing.T) {
	h := newHarness(t)
	id := h.submitForms(t, "General Nurse", models.PaymentTypeDebit)

	h.deliver(t, reviewrejected.EventType, "", map[string]interface{}{
		"applicationId": id, "reviewerId": "crm-2", "reason": "not eligible",
	})
	require.Equal(t, models.StatusRejected, h.application(t, id).Status())

	h.deliver(t, reviewapproved.EventType, "", map[string]interface{}{"applicationId": id, "reviewerId": "crm-3"})
	h.deliver(t, paymentstatusupdated.EventStatusSubmitted, "", map[string]interface{}{"applicationId": id, "status": "paid"})

	app := h.application(t, id)
	assert.Equal(t, models.StatusRejected, app.Status())
	assert.Equal(t, "not eligible", app.Personal.ApprovalDetails.RejectionReason)
	assert.NotNil(t, app.Professional)
	assert.NotNil(t, app.Subscription)
}

func TestScenario_ApprovalMergesOverrides(t *testing.T) {
	h := newHarness(t)
	id := h.submitForms(t, "General Nurse", models.PaymentTypeDebit)

	disp := h.deliver(t, reviewapproved.EventType, "", map[string]interface{}{
		"ApplicationId": id,
		"reviewerId":    "bypass-user",
		"effective": map[string]interface{}{
			"professionalDetails": map[string]interface{}{"grade": "CNM2"},
			"subscriptionDetails": map[string]interface{}{"paymentType": models.PaymentTypeCard},
		},
	})
	assert.Equal(t, apperrors.Ack, disp)

	app := h.application(t, id)
	assert.Equal(t, models.StatusApproved, app.Status())
	assert.Empty(t, app.Personal.ApprovalDetails.ApprovedBy)
	assert.Equal(t, "CNM2", app.Professional.Details.Grade)
	assert.Equal(t, models.FrequencyAnnually, app.Subscription.Details.PaymentFrequency)
}

func TestScenario_EventsForUnknownApplicationsAreDropped(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, apperrors.Drop, h.deliver(t, paymentstatusupdated.EventStatusUpdated, "", map[string]interface{}{
		"applicationId": "missing", "status": "paid",
	}))
	assert.Equal(t, apperrors.Drop, h.deliver(t, reviewapproved.EventType, "", map[string]interface{}{
		"applicationId": "missing",
	}))
	assert.Equal(t, 0, h.rec.Count())
}

func TestScenario_WorkLocationSyncTargetsOneApplication(t *testing.T) {
	h := newHarness(t)
	id := h.submitForms(t, "General Nurse", models.PaymentTypeDebit)

	disp := h.deliver(t, worklocationupdated.EventType, "", map[string]interface{}{
		"userId": "u1", "applicationId": id, "workLocation": "Tallaght", "region": "Dublin",
	})
	assert.Equal(t, apperrors.Ack, disp)

	app := h.application(t, id)
	assert.Equal(t, "Tallaght", app.Professional.Details.WorkLocation)
	assert.Equal(t, "Dublin", app.Professional.Details.Region)
	assert.Equal(t, 0, h.rec.Count())
}
