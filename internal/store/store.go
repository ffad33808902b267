// Package store persists the three records that make up a membership
// application, keyed by applicationId.
package store

import (
	"context"

	"portal-service/internal/models"
)

// Records is the application record store used by the API services and
// the inbox workers.
type Records interface {
	GetByApplicationID(ctx context.Context, applicationID string) (*models.Application, error)
	ListApplications(ctx context.Context, filter models.ListFilter) ([]*models.Application, error)
	GetOpenPersonalByUser(ctx context.Context, userID string) (*models.PersonalRecord, error)
	// OwnerOf returns the user id on the latest personal record for the
	// application, deleted or not. CRM-created applications have no owner.
	OwnerOf(ctx context.Context, applicationID string) (string, error)

	CreatePersonal(ctx context.Context, rec *models.PersonalRecord) (*models.PersonalRecord, error)
	UpdatePersonal(ctx context.Context, applicationID string, info models.PersonalInfo, contact models.ContactInfo, updatedBy string) (*models.PersonalRecord, error)
	SoftDeletePersonal(ctx context.Context, applicationID, deletedBy string) error
	RestorePersonal(ctx context.Context, applicationID, restoredBy string) (*models.PersonalRecord, error)

	CreateProfessional(ctx context.Context, rec *models.ProfessionalRecord) (*models.ProfessionalRecord, error)
	UpdateProfessional(ctx context.Context, applicationID string, details models.ProfessionalDetails, updatedBy string) (*models.ProfessionalRecord, error)
	SoftDeleteProfessional(ctx context.Context, applicationID, deletedBy string) error
	RestoreProfessional(ctx context.Context, applicationID, restoredBy string) (*models.ProfessionalRecord, error)

	CreateSubscription(ctx context.Context, rec *models.SubscriptionRecord) (*models.SubscriptionRecord, error)
	UpdateSubscription(ctx context.Context, applicationID string, details models.SubscriptionDetails, updatedBy string) (*models.SubscriptionRecord, error)
	SoftDeleteSubscription(ctx context.Context, applicationID, deletedBy string) error
	RestoreSubscription(ctx context.Context, applicationID, restoredBy string) (*models.SubscriptionRecord, error)

	// UpdateApplicationStatus moves status from change.From to change.To and
	// fails with a status conflict when the stored status is no longer From.
	UpdateApplicationStatus(ctx context.Context, change models.StatusChange) (*models.PersonalRecord, error)
	// PatchSubscriptionPayment is the only writer of payment details.
	PatchSubscriptionPayment(ctx context.Context, applicationID string, payment models.PaymentDetails) (*models.SubscriptionRecord, error)
	MergeApprovedFields(ctx context.Context, applicationID string, effective models.EffectiveFields, attributes map[string]interface{}) (models.MergeResult, error)
	// PatchProfessionalWorkLocation requires both keys.
	PatchProfessionalWorkLocation(ctx context.Context, userID, applicationID string, patch models.WorkLocationPatch) (models.PatchResult, error)
}

const (
	KindPersonal     = "Personal details"
	KindProfessional = "Professional details"
	KindSubscription = "Subscription details"
)
