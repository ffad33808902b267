package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"portal-service/internal/common/database"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

// ==========================================
// Helpers
// ==========================================

func newTestStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgres(database.NewPostgresFromDB(db), logger.NewTestLogger(t))
	s.now = func() time.Time { return testNow }
	return s, mock
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func personalRows(t *testing.T, applicationID string, status models.ApplicationStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "application_id", "user_id", "personal_info", "contact_info", "status",
		"approval_details", "meta", "deleted", "version", "created_at", "updated_at",
	}).AddRow(
		"p-1", applicationID, "user-1",
		mustJSON(t, models.PersonalInfo{Forename: "Aoife", DateOfBirth: "01/01/1990"}),
		mustJSON(t, models.ContactInfo{StreetOrRoad: "Main St"}),
		string(status), []byte(`{}`), []byte(`{"userType":"PORTAL"}`), false, 3, testNow, testNow,
	)
}

func professionalRows(t *testing.T, applicationID string, details models.ProfessionalDetails) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "application_id", "user_id", "details", "meta", "deleted", "created_at", "updated_at",
	}).AddRow("pr-1", applicationID, "user-1", mustJSON(t, details), []byte(`{}`), false, testNow, testNow)
}

func subscriptionRows(t *testing.T, applicationID string, details models.SubscriptionDetails, payment []byte) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "application_id", "user_id", "details", "payment_details", "membership_number",
		"subscription_attributes", "meta", "deleted", "created_at", "updated_at",
	}).AddRow("s-1", applicationID, "user-1", mustJSON(t, details), payment, nil,
		[]byte(`{}`), []byte(`{}`), false, testNow, testNow)
}

// ==========================================
// Reads
// ==========================================

func TestGetByApplicationID_OptionalChildren(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("FROM personal_details WHERE application_id = \\$1 AND NOT deleted").
		WithArgs("A1").WillReturnRows(personalRows(t, "A1", models.StatusInProgress))
	mock.ExpectQuery("FROM professional_details WHERE application_id = \\$1").
		WithArgs("A1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM subscription_details WHERE application_id = \\$1").
		WithArgs("A1").WillReturnRows(subscriptionRows(t, "A1", models.SubscriptionDetails{PaymentType: models.PaymentTypeDebit}, nil))

	app, err := s.GetByApplicationID(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "A1", app.ApplicationID())
	assert.Equal(t, models.StatusInProgress, app.Status())
	assert.Equal(t, "Aoife", app.Personal.PersonalInfo.Forename)
	assert.True(t, app.Personal.Meta.IsActive)
	assert.Nil(t, app.Professional)
	require.NotNil(t, app.Subscription)
	assert.Nil(t, app.Subscription.PaymentDetails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByApplicationID_NotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("FROM personal_details").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := s.GetByApplicationID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrApplicationNotFound))
}

func TestListApplications_BatchesChildren(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("FROM personal_details WHERE NOT deleted AND status = \\$1 ORDER BY created_at DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs("submitted", 100, 0).
		WillReturnRows(personalRows(t, "A1", models.StatusSubmitted))
	mock.ExpectQuery("FROM professional_details WHERE application_id = ANY\\(\\$1\\)").
		WithArgs(pq.Array([]string{"A1"})).
		WillReturnRows(professionalRows(t, "A1", models.ProfessionalDetails{Grade: "Staff Nurse"}))
	mock.ExpectQuery("FROM subscription_details WHERE application_id = ANY\\(\\$1\\)").
		WithArgs(pq.Array([]string{"A1"})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	apps, err := s.ListApplications(context.Background(), models.ListFilter{Status: models.StatusSubmitted})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.NotNil(t, apps[0].Professional)
	assert.Equal(t, "Staff Nurse", apps[0].Professional.Details.Grade)
	assert.Nil(t, apps[0].Subscription)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================================
// Creates
// ==========================================

func TestCreatePersonal_DerivesFields(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM personal_details").
		WithArgs("A1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO personal_details").
		WithArgs(sqlmock.AnyArg(), "A1", sql.NullString{String: "user-1", Valid: true},
			sqlmock.AnyArg(), sqlmock.AnyArg(), "in-progress", sqlmock.AnyArg(), sqlmock.AnyArg(), testNow).
		WillReturnRows(personalRows(t, "A1", models.StatusInProgress))

	rec := &models.PersonalRecord{
		ApplicationID: "A1",
		UserID:        "user-1",
		Status:        models.StatusApproved,
		PersonalInfo:  models.PersonalInfo{DateOfBirth: "01/01/1990"},
	}
	created, err := s.CreatePersonal(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "A1", created.ApplicationID)
	assert.Equal(t, models.StatusApproved, rec.Status, "caller's record is not mutated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePersonal_Duplicate(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := s.CreatePersonal(context.Background(), &models.PersonalRecord{ApplicationID: "A1"})
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
}

func TestCreatePersonal_IDCheckCoversDeletedAndChildRows(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`(?s)personal_details WHERE application_id = \$1\)\s+OR EXISTS\(SELECT 1 FROM professional_details WHERE application_id = \$1\)\s+OR EXISTS\(SELECT 1 FROM subscription_details WHERE application_id = \$1\)$`).
		WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := s.CreatePersonal(context.Background(), &models.PersonalRecord{ApplicationID: "A1"})
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePersonal_UniqueViolationIsDuplicate(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO personal_details").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.CreatePersonal(context.Background(), &models.PersonalRecord{ApplicationID: "A1"})
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
}

func TestCreateProfessional_RequiresPersonal(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM personal_details").WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := s.CreateProfessional(context.Background(), &models.ProfessionalRecord{ApplicationID: "A1"})
	assert.True(t, errors.Is(err, apperrors.ErrApplicationNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubscription_EnforcesFrequencyAndStampsSubmission(t *testing.T) {
	s, mock := newTestStore(t)

	expected := models.SubscriptionDetails{
		PaymentType:        models.PaymentTypeCard,
		PaymentFrequency:   models.FrequencyAnnually,
		MembershipCategory: "General",
		SubmissionDate:     &testNow,
	}

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM personal_details").WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM subscription_details").WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO subscription_details").
		WithArgs(sqlmock.AnyArg(), "A1", sql.NullString{}, mustJSON(t, expected), []byte(`{}`), sqlmock.AnyArg(), testNow).
		WillReturnRows(subscriptionRows(t, "A1", expected, nil))

	created, err := s.CreateSubscription(context.Background(), &models.SubscriptionRecord{
		ApplicationID:    "A1",
		MembershipNumber: "FORGED",
		PaymentDetails:   &models.PaymentDetails{PaymentIntentID: "pi_forged"},
		Details: models.SubscriptionDetails{
			PaymentType:        models.PaymentTypeCard,
			PaymentFrequency:   models.FrequencyMonthly,
			MembershipCategory: "General",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyAnnually, created.Details.PaymentFrequency)
	assert.Empty(t, created.MembershipNumber)
	assert.Nil(t, created.PaymentDetails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================================
// Status compare-and-set
// ==========================================

func TestUpdateApplicationStatus(t *testing.T) {
	t.Run("applies when status matches", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("UPDATE personal_details\\s+SET status = \\$3").
			WithArgs("A1", "in-progress", "submitted", nil, "", testNow).
			WillReturnRows(personalRows(t, "A1", models.StatusSubmitted))

		p, err := s.UpdateApplicationStatus(context.Background(), models.StatusChange{
			ApplicationID: "A1", From: models.StatusInProgress, To: models.StatusSubmitted,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusSubmitted, p.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict when another writer won", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("UPDATE personal_details").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("A1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := s.UpdateApplicationStatus(context.Background(), models.StatusChange{
			ApplicationID: "A1", From: models.StatusInProgress, To: models.StatusSubmitted,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrStatusConflict))
		assert.Equal(t, apperrors.Retry, apperrors.Classify(err))
	})

	t.Run("not found when application is gone", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("UPDATE personal_details").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("A1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := s.UpdateApplicationStatus(context.Background(), models.StatusChange{
			ApplicationID: "A1", From: models.StatusInProgress, To: models.StatusSubmitted,
		})
		assert.True(t, errors.Is(err, apperrors.ErrApplicationNotFound))
	})
}

// ==========================================
// Payment patch
// ==========================================

func TestPatchSubscriptionPayment(t *testing.T) {
	payment := models.PaymentDetails{PaymentIntentID: "pi_1", Amount: 500, Currency: "EUR", Status: "paid", UpdatedAt: testNow}

	t.Run("writes payment details", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("UPDATE subscription_details\\s+SET payment_details = \\$2").
			WithArgs("A1", mustJSON(t, payment), testNow).
			WillReturnRows(subscriptionRows(t, "A1", models.SubscriptionDetails{}, mustJSON(t, payment)))

		sub, err := s.PatchSubscriptionPayment(context.Background(), "A1", payment)
		require.NoError(t, err)
		require.NotNil(t, sub.PaymentDetails)
		assert.Equal(t, "pi_1", sub.PaymentDetails.PaymentIntentID)
	})

	t.Run("missing subscription", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("UPDATE subscription_details").WillReturnError(sql.ErrNoRows)

		_, err := s.PatchSubscriptionPayment(context.Background(), "A1", payment)
		assert.True(t, errors.Is(err, apperrors.ErrRecordNotFound))
	})
}

// ==========================================
// Approval merge
// ==========================================

func TestMergeApprovedFields_MissingChildren(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM professional_details WHERE application_id = \\$1 AND NOT deleted FOR UPDATE").
		WithArgs("A1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM subscription_details WHERE application_id = \\$1 AND NOT deleted FOR UPDATE").
		WithArgs("A1").WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	res, err := s.MergeApprovedFields(context.Background(), "A1", models.EffectiveFields{}, nil)
	require.NoError(t, err)
	assert.True(t, res.ProfessionalMissing)
	assert.True(t, res.SubscriptionMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeApprovedFields_MergesOverrides(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM personal_details WHERE application_id = \\$1 AND NOT deleted FOR UPDATE").
		WithArgs("A1").WillReturnRows(personalRows(t, "A1", models.StatusApproved))
	mock.ExpectExec("UPDATE personal_details SET personal_info = \\$2").
		WithArgs("p-1", sqlmock.AnyArg(), sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM professional_details WHERE application_id = \\$1 AND NOT deleted FOR UPDATE").
		WithArgs("A1").WillReturnRows(professionalRows(t, "A1", models.ProfessionalDetails{Grade: "Staff Nurse", Branch: "Cork"}))
	mock.ExpectExec("UPDATE professional_details SET details = \\$2").
		WithArgs("pr-1", mustJSON(t, models.ProfessionalDetails{Grade: "Staff Nurse", Branch: "Dublin"}), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM subscription_details WHERE application_id = \\$1 AND NOT deleted FOR UPDATE").
		WithArgs("A1").WillReturnRows(subscriptionRows(t, "A1", models.SubscriptionDetails{PaymentType: models.PaymentTypeDebit}, nil))
	mock.ExpectExec("UPDATE subscription_details SET details = \\$2, subscription_attributes = \\$3").
		WithArgs("s-1", sqlmock.AnyArg(), []byte(`{"tier":"gold"}`), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := s.MergeApprovedFields(context.Background(), "A1", models.EffectiveFields{
		PersonalInfo:        map[string]interface{}{"surname": "Byrne"},
		ProfessionalDetails: map[string]interface{}{"branch": "Dublin"},
	}, map[string]interface{}{"tier": "gold"})
	require.NoError(t, err)
	assert.False(t, res.ProfessionalMissing)
	assert.False(t, res.SubscriptionMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================================
// Work location patch
// ==========================================

func TestPatchProfessionalWorkLocation(t *testing.T) {
	t.Run("requires both keys", func(t *testing.T) {
		s, mock := newTestStore(t)
		_, err := s.PatchProfessionalWorkLocation(context.Background(), "user-1", "", models.WorkLocationPatch{WorkLocation: "X"})
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no match", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("WHERE user_id = \\$1 AND application_id = \\$2").
			WithArgs("user-1", "A1").WillReturnError(sql.ErrNoRows)
		mock.ExpectCommit()

		res, err := s.PatchProfessionalWorkLocation(context.Background(), "user-1", "A1", models.WorkLocationPatch{WorkLocation: "X"})
		require.NoError(t, err)
		assert.Equal(t, models.PatchResult{}, res)
	})

	t.Run("matched and modified", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("WHERE user_id = \\$1 AND application_id = \\$2").
			WithArgs("user-1", "A1").
			WillReturnRows(professionalRows(t, "A1", models.ProfessionalDetails{WorkLocation: "Old"}))
		mock.ExpectExec("UPDATE professional_details SET details = \\$2").
			WithArgs("pr-1", mustJSON(t, models.ProfessionalDetails{WorkLocation: "New", Region: "South"}), testNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := s.PatchProfessionalWorkLocation(context.Background(), "user-1", "A1",
			models.WorkLocationPatch{WorkLocation: "New", Region: "South"})
		require.NoError(t, err)
		assert.Equal(t, models.PatchResult{Matched: true, Modified: true}, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("matched but unchanged", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("WHERE user_id = \\$1 AND application_id = \\$2").
			WithArgs("user-1", "A1").
			WillReturnRows(professionalRows(t, "A1", models.ProfessionalDetails{WorkLocation: "Same"}))
		mock.ExpectCommit()

		res, err := s.PatchProfessionalWorkLocation(context.Background(), "user-1", "A1", models.WorkLocationPatch{WorkLocation: "Same"})
		require.NoError(t, err)
		assert.Equal(t, models.PatchResult{Matched: true, Modified: false}, res)
	})
}

// ==========================================
// Soft delete / restore
// ==========================================

func TestSoftDeleteAndRestore(t *testing.T) {
	t.Run("soft delete not found", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectExec("UPDATE professional_details\\s+SET deleted = TRUE").
			WithArgs("A1", "crm-1", testNow).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.SoftDeleteProfessional(context.Background(), "A1", "crm-1")
		assert.True(t, errors.Is(err, apperrors.ErrRecordNotFound))
	})

	t.Run("restore refuses when live record exists", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM personal_details").WithArgs("A1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := s.RestorePersonal(context.Background(), "A1", "crm-1")
		assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
	})

	t.Run("restore revives latest deleted", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM personal_details").WithArgs("A1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("UPDATE personal_details\\s+SET deleted = FALSE").
			WithArgs("A1", "crm-1", testNow).
			WillReturnRows(personalRows(t, "A1", models.StatusInProgress))

		p, err := s.RestorePersonal(context.Background(), "A1", "crm-1")
		require.NoError(t, err)
		assert.False(t, p.Meta.Deleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOwnerOf(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT user_id FROM personal_details").WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	owner, err := s.OwnerOf(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	mock.ExpectQuery("SELECT user_id FROM personal_details").WithArgs("A2").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(nil))
	owner, err = s.OwnerOf(context.Background(), "A2")
	require.NoError(t, err)
	assert.Empty(t, owner)

	mock.ExpectQuery("SELECT user_id FROM personal_details").WithArgs("A3").WillReturnError(sql.ErrNoRows)
	_, err = s.OwnerOf(context.Background(), "A3")
	assert.True(t, errors.Is(err, apperrors.ErrApplicationNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
