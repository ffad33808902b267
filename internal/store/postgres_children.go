package store

import (
	"context"
	"database/sql"
	"errors"

	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"

	"github.com/google/uuid"
)

// ==========================
// Professional details
// ==========================

func (s *Postgres) CreateProfessional(ctx context.Context, rec *models.ProfessionalRecord) (*models.ProfessionalRecord, error) {
	if err := s.requirePersonal(ctx, rec.ApplicationID); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.client.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM professional_details WHERE application_id = $1 AND NOT deleted)`,
		rec.ApplicationID).Scan(&exists); err != nil {
		return nil, apperrors.NewDatabaseQueryError("professional duplicate check", err)
	}
	if exists {
		return nil, apperrors.NewDuplicateRecordError(KindProfessional, rec.ApplicationID)
	}

	details, err := encode(rec.Details)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	now := s.now()
	created, err := scanProfessional(s.client.DB.QueryRowContext(ctx, `
		INSERT INTO professional_details (id, application_id, user_id, details, meta, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
		RETURNING `+professionalColumns,
		uuid.NewString(), rec.ApplicationID, nullable(rec.UserID), details, meta, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewDuplicateRecordError(KindProfessional, rec.ApplicationID)
		}
		return nil, apperrors.NewDatabaseWriteError("insert professional details", err)
	}
	return created, nil
}

func (s *Postgres) UpdateProfessional(ctx context.Context, applicationID string, details models.ProfessionalDetails, updatedBy string) (*models.ProfessionalRecord, error) {
	detailsJSON, err := encode(details)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	updated, err := scanProfessional(s.client.DB.QueryRowContext(ctx, `
		UPDATE professional_details
		SET details = $2, meta = meta || jsonb_build_object('updatedBy', $3::text), updated_at = $4
		WHERE application_id = $1 AND NOT deleted
		RETURNING `+professionalColumns,
		applicationID, detailsJSON, updatedBy, s.now(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(KindProfessional, applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseWriteError("update professional details", err)
	}
	return updated, nil
}

func (s *Postgres) SoftDeleteProfessional(ctx context.Context, applicationID, deletedBy string) error {
	return s.softDelete(ctx, "professional_details", KindProfessional, applicationID, deletedBy)
}

func (s *Postgres) RestoreProfessional(ctx context.Context, applicationID, restoredBy string) (*models.ProfessionalRecord, error) {
	if err := s.requirePersonal(ctx, applicationID); err != nil {
		return nil, err
	}
	var restored *models.ProfessionalRecord
	err := s.restore(ctx, "professional_details", KindProfessional, professionalColumns, applicationID, restoredBy, func(row rowScanner) error {
		var err error
		restored, err = scanProfessional(row)
		return err
	})
	return restored, err
}

// ==========================
// Subscription details
// ==========================

// CreateSubscription forces the payment frequency from the payment type and
// stamps submissionDate when missing. Client-supplied payment details and
// membership numbers are never persisted.
func (s *Postgres) CreateSubscription(ctx context.Context, rec *models.SubscriptionRecord) (*models.SubscriptionRecord, error) {
	if err := s.requirePersonal(ctx, rec.ApplicationID); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.client.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscription_details WHERE application_id = $1 AND NOT deleted)`,
		rec.ApplicationID).Scan(&exists); err != nil {
		return nil, apperrors.NewDatabaseQueryError("subscription duplicate check", err)
	}
	if exists {
		return nil, apperrors.NewDuplicateRecordError(KindSubscription, rec.ApplicationID)
	}

	now := s.now()
	d := rec.Details
	models.EnforcePaymentFrequency(&d)
	if d.SubmissionDate == nil {
		d.SubmissionDate = &now
	}

	details, err := encode(d)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	attrs, err := encode(MergeAttributes(map[string]interface{}{}, rec.SubscriptionAttributes))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	created, err := scanSubscription(s.client.DB.QueryRowContext(ctx, `
		INSERT INTO subscription_details (
			id, application_id, user_id, details, payment_details, membership_number,
			subscription_attributes, meta, deleted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULL, NULL, $5, $6, FALSE, $7, $7)
		RETURNING `+subscriptionColumns,
		uuid.NewString(), rec.ApplicationID, nullable(rec.UserID), details, attrs, meta, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewDuplicateRecordError(KindSubscription, rec.ApplicationID)
		}
		return nil, apperrors.NewDatabaseWriteError("insert subscription details", err)
	}
	return created, nil
}

// UpdateSubscription replaces the subscription terms. Payment details and the
// membership number are not columns of this statement.
func (s *Postgres) UpdateSubscription(ctx context.Context, applicationID string, details models.SubscriptionDetails, updatedBy string) (*models.SubscriptionRecord, error) {
	models.EnforcePaymentFrequency(&details)
	detailsJSON, err := encode(details)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	// submissionDate survives updates that omit it.
	updated, err := scanSubscription(s.client.DB.QueryRowContext(ctx, `
		UPDATE subscription_details
		SET details = CASE
		        WHEN $2::jsonb ? 'submissionDate' THEN $2::jsonb
		        ELSE $2::jsonb || jsonb_strip_nulls(jsonb_build_object('submissionDate', details->'submissionDate'))
		    END,
		    meta = meta || jsonb_build_object('updatedBy', $3::text),
		    updated_at = $4
		WHERE application_id = $1 AND NOT deleted
		RETURNING `+subscriptionColumns,
		applicationID, detailsJSON, updatedBy, s.now(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(KindSubscription, applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseWriteError("update subscription details", err)
	}
	return updated, nil
}

func (s *Postgres) SoftDeleteSubscription(ctx context.Context, applicationID, deletedBy string) error {
	return s.softDelete(ctx, "subscription_details", KindSubscription, applicationID, deletedBy)
}

func (s *Postgres) RestoreSubscription(ctx context.Context, applicationID, restoredBy string) (*models.SubscriptionRecord, error) {
	if err := s.requirePersonal(ctx, applicationID); err != nil {
		return nil, err
	}
	var restored *models.SubscriptionRecord
	err := s.restore(ctx, "subscription_details", KindSubscription, subscriptionColumns, applicationID, restoredBy, func(row rowScanner) error {
		var err error
		restored, err = scanSubscription(row)
		return err
	})
	return restored, err
}
