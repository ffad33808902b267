package store

import (
	"context"
	"database/sql"
	"errors"

	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"
)

// UpdateApplicationStatus is a compare-and-set on (status, NOT deleted). The
// version column is bumped on every successful change.
func (s *Postgres) UpdateApplicationStatus(ctx context.Context, change models.StatusChange) (*models.PersonalRecord, error) {
	var approval interface{}
	if change.Approval != nil {
		b, err := encode(change.Approval)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		approval = b
	}

	updated, err := scanPersonal(s.client.DB.QueryRowContext(ctx, `
		UPDATE personal_details
		SET status = $3,
		    approval_details = COALESCE($4::jsonb, approval_details),
		    meta = CASE WHEN $5::text = '' THEN meta ELSE meta || jsonb_build_object('updatedBy', $5::text) END,
		    version = version + 1,
		    updated_at = $6
		WHERE application_id = $1 AND NOT deleted AND status = $2
		RETURNING `+personalColumns,
		change.ApplicationID, string(change.From), string(change.To), approval, change.UpdatedBy, s.now(),
	))
	if err == nil {
		s.logger.Info("application status updated", map[string]interface{}{
			"applicationId": change.ApplicationID,
			"from":          string(change.From),
			"to":            string(change.To),
			"version":       updated.Version,
		})
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDatabaseWriteError("update application status", err)
	}

	// Nothing matched: either the application is gone or another writer
	// moved the status first.
	if err := s.requirePersonal(ctx, change.ApplicationID); err != nil {
		return nil, err
	}
	return nil, apperrors.NewStatusConflictError(change.ApplicationID, string(change.From))
}

func (s *Postgres) PatchSubscriptionPayment(ctx context.Context, applicationID string, payment models.PaymentDetails) (*models.SubscriptionRecord, error) {
	paymentJSON, err := encode(payment)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	updated, err := scanSubscription(s.client.DB.QueryRowContext(ctx, `
		UPDATE subscription_details
		SET payment_details = $2, updated_at = $3
		WHERE application_id = $1 AND NOT deleted
		RETURNING `+subscriptionColumns,
		applicationID, paymentJSON, s.now(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(KindSubscription, applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseWriteError("patch subscription payment", err)
	}
	return updated, nil
}

// MergeApprovedFields applies CRM overrides to every present record inside one
// transaction. Absent children are reported, not treated as failures.
func (s *Postgres) MergeApprovedFields(ctx context.Context, applicationID string, effective models.EffectiveFields, attributes map[string]interface{}) (models.MergeResult, error) {
	var result models.MergeResult
	now := s.now()

	err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
		if len(effective.PersonalInfo) > 0 || len(effective.ContactInfo) > 0 {
			p, err := s.getPersonal(ctx, tx, applicationID, true)
			if err != nil {
				return err
			}
			if err := MergeJSON(&p.PersonalInfo, effective.PersonalInfo); err != nil {
				return apperrors.NewInvalidPayloadError("personalInfo", err.Error())
			}
			if err := MergeJSON(&p.ContactInfo, effective.ContactInfo); err != nil {
				return apperrors.NewInvalidPayloadError("contactInfo", err.Error())
			}
			p.Derive(now)
			info, err := encode(p.PersonalInfo)
			if err != nil {
				return apperrors.NewInternalError(err)
			}
			contact, err := encode(p.ContactInfo)
			if err != nil {
				return apperrors.NewInternalError(err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE personal_details SET personal_info = $2, contact_info = $3, updated_at = $4
				WHERE id = $1`, p.ID, info, contact, now); err != nil {
				return apperrors.NewDatabaseWriteError("merge personal details", err)
			}
		}

		prof, err := s.getProfessional(ctx, tx, applicationID, true)
		switch {
		case errors.Is(err, apperrors.ErrRecordNotFound):
			result.ProfessionalMissing = true
		case err != nil:
			return err
		case len(effective.ProfessionalDetails) > 0:
			if err := MergeJSON(&prof.Details, effective.ProfessionalDetails); err != nil {
				return apperrors.NewInvalidPayloadError("professionalDetails", err.Error())
			}
			details, err := encode(prof.Details)
			if err != nil {
				return apperrors.NewInternalError(err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE professional_details SET details = $2, updated_at = $3
				WHERE id = $1`, prof.ID, details, now); err != nil {
				return apperrors.NewDatabaseWriteError("merge professional details", err)
			}
		}

		sub, err := s.getSubscription(ctx, tx, applicationID, true)
		switch {
		case errors.Is(err, apperrors.ErrRecordNotFound):
			result.SubscriptionMissing = true
		case err != nil:
			return err
		case len(effective.SubscriptionDetails) > 0 || len(attributes) > 0:
			if err := MergeJSON(&sub.Details, effective.SubscriptionDetails); err != nil {
				return apperrors.NewInvalidPayloadError("subscriptionDetails", err.Error())
			}
			models.EnforcePaymentFrequency(&sub.Details)
			details, err := encode(sub.Details)
			if err != nil {
				return apperrors.NewInternalError(err)
			}
			attrs, err := encode(MergeAttributes(sub.SubscriptionAttributes, attributes))
			if err != nil {
				return apperrors.NewInternalError(err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE subscription_details SET details = $2, subscription_attributes = $3, updated_at = $4
				WHERE id = $1`, sub.ID, details, attrs, now); err != nil {
				return apperrors.NewDatabaseWriteError("merge subscription details", err)
			}
		}
		return nil
	})
	if err != nil {
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			return result, stdErr
		}
		return result, apperrors.NewDatabaseWriteError("merge approved fields", err)
	}
	return result, nil
}

// PatchProfessionalWorkLocation matches on userId and applicationId together;
// a user may hold more than one application.
func (s *Postgres) PatchProfessionalWorkLocation(ctx context.Context, userID, applicationID string, patch models.WorkLocationPatch) (models.PatchResult, error) {
	if userID == "" || applicationID == "" {
		return models.PatchResult{}, apperrors.NewValidationError("userId and applicationId are both required")
	}

	var result models.PatchResult
	err := s.client.WithTx(ctx, func(tx *sql.Tx) error {
		prof, err := scanProfessional(tx.QueryRowContext(ctx, `
			SELECT `+professionalColumns+` FROM professional_details
			WHERE user_id = $1 AND application_id = $2 AND NOT deleted
			FOR UPDATE`, userID, applicationID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return apperrors.NewDatabaseQueryError("find professional details", err)
		}
		result.Matched = true

		if !prof.Details.ApplyWorkLocation(patch) {
			return nil
		}
		details, err := encode(prof.Details)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE professional_details SET details = $2, updated_at = $3
			WHERE id = $1`, prof.ID, details, s.now()); err != nil {
			return apperrors.NewDatabaseWriteError("patch work location", err)
		}
		result.Modified = true
		return nil
	})
	if err != nil {
		return models.PatchResult{}, apperrors.Normalize(err)
	}
	return result, nil
}
