// Package service implements the record operations behind the HTTP API:
// ownership checks, protected-field handling and the subscription fast path.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/lookup"
	"portal-service/internal/models"
	"portal-service/internal/outbox"
	"portal-service/internal/reconcile"
	"portal-service/internal/store"
)

// ==========================
// Request payloads
// ==========================

// PersonalInput is the create/update body for Personal records.
// ApplicationID is honoured only for CRM callers importing an existing
// application; PORTAL applications always get a generated id.
type PersonalInput struct {
	ApplicationID string              `json:"applicationId,omitempty"`
	PersonalInfo  models.PersonalInfo `json:"personalInfo"`
	ContactInfo   models.ContactInfo  `json:"contactInfo"`
}

type ProfessionalInput struct {
	ProfessionalDetails models.ProfessionalDetails `json:"professionalDetails"`
}

// SubscriptionInput keeps the protected fields raw so their presence can be
// detected; they are never written from here.
type SubscriptionInput struct {
	SubscriptionDetails    models.SubscriptionDetails `json:"subscriptionDetails"`
	SubscriptionAttributes map[string]interface{}     `json:"subscriptionAttributes,omitempty"`
	PaymentDetails         json.RawMessage            `json:"paymentDetails,omitempty"`
	MembershipNumber       json.RawMessage            `json:"membershipNumber,omitempty"`
}

func (in *SubscriptionInput) ProtectedFields() []string {
	var fields []string
	if len(in.PaymentDetails) > 0 && string(in.PaymentDetails) != "null" {
		fields = append(fields, "paymentDetails")
	}
	if len(in.MembershipNumber) > 0 && string(in.MembershipNumber) != "null" {
		fields = append(fields, "membershipNumber")
	}
	return fields
}

type StatusInput struct {
	Status   models.ApplicationStatus `json:"status"`
	Reason   string                   `json:"reason,omitempty"`
	Comments string                   `json:"comments,omitempty"`
}

// ==========================
// Service
// ==========================

type Service struct {
	records   store.Records
	applier   *reconcile.Applier
	publisher outbox.Publisher
	resolver  lookup.Resolver
	logger    logger.Logger
	now       func() time.Time
}

func New(records store.Records, publisher outbox.Publisher, resolver lookup.Resolver, log logger.Logger) *Service {
	log = log.WithFields(map[string]interface{}{"component": "service"})
	return &Service{
		records:   records,
		applier:   reconcile.NewApplier(records, log),
		publisher: publisher,
		resolver:  resolver,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// authorize lets CRM users act on any application and PORTAL users only on
// applications bound to their own user id.
func authorize(actor auth.User, owner, applicationID string) error {
	if actor.IsCRM() {
		return nil
	}
	if owner == "" || owner != actor.ID {
		return apperrors.NewForbiddenError("application " + applicationID + " belongs to another user")
	}
	return nil
}

func requireCRM(actor auth.User) error {
	if !actor.IsCRM() {
		return apperrors.NewForbiddenError("CRM access required")
	}
	return nil
}

// load fetches the application and checks the actor may touch it. A PORTAL
// user asking for someone else's soft-deleted application is forbidden, not
// told it is missing.
func (s *Service) load(ctx context.Context, actor auth.User, applicationID string) (*models.Application, error) {
	app, err := s.records.GetByApplicationID(ctx, applicationID)
	if err != nil {
		if !actor.IsCRM() && errors.Is(err, apperrors.ErrApplicationNotFound) {
			if owner, ownerErr := s.records.OwnerOf(ctx, applicationID); ownerErr == nil {
				if err := authorize(actor, owner, applicationID); err != nil {
					return nil, err
				}
			}
		}
		return nil, err
	}
	if err := authorize(actor, app.Personal.UserID, applicationID); err != nil {
		return nil, err
	}
	return app, nil
}

// recordOwner is the user id stamped on new records: the token's user for
// PORTAL callers, none for CRM.
func recordOwner(actor auth.User) string {
	if actor.IsCRM() {
		return ""
	}
	return actor.ID
}

func recordMeta(actor auth.User) models.RecordMeta {
	userType := models.UserTypePortal
	if actor.IsCRM() {
		userType = models.UserTypeCRM
	}
	return models.RecordMeta{
		CreatedBy: actor.ID,
		UpdatedBy: actor.ID,
		UserType:  userType,
		IsActive:  true,
	}
}
