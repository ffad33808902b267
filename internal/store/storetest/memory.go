// Package storetest provides an in-memory store.Records for handler and
// service tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"
	"portal-service/internal/store"

	"github.com/google/uuid"
)

// Memory mirrors the Postgres store's semantics without a database.
type Memory struct {
	mu            sync.Mutex
	personal      []*models.PersonalRecord
	professional  []*models.ProfessionalRecord
	subscriptions []*models.SubscriptionRecord
	Now           func() time.Time

	// FailNext, when set, is returned by the next write and then cleared.
	FailNext error
}

var _ store.Records = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{Now: func() time.Time { return time.Now().UTC() }}
}

func (m *Memory) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *Memory) livePersonal(applicationID string) *models.PersonalRecord {
	for _, p := range m.personal {
		if p.ApplicationID == applicationID && !p.Meta.Deleted {
			return p
		}
	}
	return nil
}

// idUsed reports whether any record, deleted or not, carries applicationID.
func (m *Memory) idUsed(applicationID string) bool {
	for _, p := range m.personal {
		if p.ApplicationID == applicationID {
			return true
		}
	}
	for _, p := range m.professional {
		if p.ApplicationID == applicationID {
			return true
		}
	}
	for _, sub := range m.subscriptions {
		if sub.ApplicationID == applicationID {
			return true
		}
	}
	return false
}

func (m *Memory) liveProfessional(applicationID string) *models.ProfessionalRecord {
	for _, p := range m.professional {
		if p.ApplicationID == applicationID && !p.Meta.Deleted {
			return p
		}
	}
	return nil
}

func (m *Memory) liveSubscription(applicationID string) *models.SubscriptionRecord {
	for _, s := range m.subscriptions {
		if s.ApplicationID == applicationID && !s.Meta.Deleted {
			return s
		}
	}
	return nil
}

func copyPersonal(p *models.PersonalRecord) *models.PersonalRecord {
	if p == nil {
		return nil
	}
	c := *p
	if p.PersonalInfo.Age != nil {
		age := *p.PersonalInfo.Age
		c.PersonalInfo.Age = &age
	}
	return &c
}

func copyProfessional(p *models.ProfessionalRecord) *models.ProfessionalRecord {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copySubscription(s *models.SubscriptionRecord) *models.SubscriptionRecord {
	if s == nil {
		return nil
	}
	c := *s
	if s.PaymentDetails != nil {
		pd := *s.PaymentDetails
		c.PaymentDetails = &pd
	}
	c.SubscriptionAttributes = store.MergeAttributes(nil, s.SubscriptionAttributes)
	return &c
}

// ==========================
// Reads
// ==========================

func (m *Memory) GetByApplicationID(ctx context.Context, applicationID string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.livePersonal(applicationID)
	if p == nil {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	return &models.Application{
		Personal:     copyPersonal(p),
		Professional: copyProfessional(m.liveProfessional(applicationID)),
		Subscription: copySubscription(m.liveSubscription(applicationID)),
	}, nil
}

func (m *Memory) ListApplications(ctx context.Context, filter models.ListFilter) ([]*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Application
	for _, p := range m.personal {
		if p.Meta.Deleted {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		out = append(out, &models.Application{
			Personal:     copyPersonal(p),
			Professional: copyProfessional(m.liveProfessional(p.ApplicationID)),
			Subscription: copySubscription(m.liveSubscription(p.ApplicationID)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Personal.CreatedAt.After(out[j].Personal.CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) GetOpenPersonalByUser(ctx context.Context, userID string) (*models.PersonalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.personal {
		if p.UserID == userID && !p.Meta.Deleted && !p.Status.IsTerminal() {
			return copyPersonal(p), nil
		}
	}
	return nil, nil
}

func (m *Memory) OwnerOf(ctx context.Context, applicationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.livePersonal(applicationID); p != nil {
		return p.UserID, nil
	}
	for i := len(m.personal) - 1; i >= 0; i-- {
		if m.personal[i].ApplicationID == applicationID {
			return m.personal[i].UserID, nil
		}
	}
	return "", apperrors.NewApplicationNotFoundError(applicationID)
}

// ==========================
// Personal details
// ==========================

func (m *Memory) CreatePersonal(ctx context.Context, rec *models.PersonalRecord) (*models.PersonalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	p := copyPersonal(rec)
	if p.ApplicationID == "" {
		p.ApplicationID = uuid.NewString()
	}
	if m.idUsed(p.ApplicationID) {
		return nil, apperrors.NewDuplicateRecordError(store.KindPersonal, p.ApplicationID)
	}
	now := m.Now()
	p.ID = uuid.NewString()
	p.Status = models.StatusInProgress
	p.ApprovalDetails = models.ApprovalDetails{}
	p.Meta.Deleted = false
	p.Meta.IsActive = true
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now
	p.Derive(now)
	m.personal = append(m.personal, p)
	return copyPersonal(p), nil
}

func (m *Memory) UpdatePersonal(ctx context.Context, applicationID string, info models.PersonalInfo, contact models.ContactInfo, updatedBy string) (*models.PersonalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	p := m.livePersonal(applicationID)
	if p == nil {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	now := m.Now()
	p.PersonalInfo, p.ContactInfo = info, contact
	p.Derive(now)
	p.Meta.UpdatedBy = updatedBy
	p.Version++
	p.UpdatedAt = now
	return copyPersonal(p), nil
}

func (m *Memory) SoftDeletePersonal(ctx context.Context, applicationID, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.livePersonal(applicationID)
	if p == nil {
		return apperrors.NewApplicationNotFoundError(applicationID)
	}
	markDeleted(&p.Meta, deletedBy, true)
	p.UpdatedAt = m.Now()
	return nil
}

func (m *Memory) RestorePersonal(ctx context.Context, applicationID, restoredBy string) (*models.PersonalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.livePersonal(applicationID) != nil {
		return nil, apperrors.NewDuplicateRecordError(store.KindPersonal, applicationID)
	}
	var latest *models.PersonalRecord
	for _, p := range m.personal {
		if p.ApplicationID == applicationID && p.Meta.Deleted && (latest == nil || !p.UpdatedAt.Before(latest.UpdatedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	markDeleted(&latest.Meta, restoredBy, false)
	latest.UpdatedAt = m.Now()
	return copyPersonal(latest), nil
}

func markDeleted(meta *models.RecordMeta, by string, deleted bool) {
	meta.Deleted = deleted
	meta.IsActive = !deleted
	if by != "" {
		meta.UpdatedBy = by
	}
}

// ==========================
// Professional details
// ==========================

func (m *Memory) CreateProfessional(ctx context.Context, rec *models.ProfessionalRecord) (*models.ProfessionalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if m.livePersonal(rec.ApplicationID) == nil {
		return nil, apperrors.NewApplicationNotFoundError(rec.ApplicationID)
	}
	if m.liveProfessional(rec.ApplicationID) != nil {
		return nil, apperrors.NewDuplicateRecordError(store.KindProfessional, rec.ApplicationID)
	}
	now := m.Now()
	p := copyProfessional(rec)
	p.ID = uuid.NewString()
	p.Meta.Deleted = false
	p.Meta.IsActive = true
	p.CreatedAt, p.UpdatedAt = now, now
	m.professional = append(m.professional, p)
	return copyProfessional(p), nil
}

func (m *Memory) UpdateProfessional(ctx context.Context, applicationID string, details models.ProfessionalDetails, updatedBy string) (*models.ProfessionalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	p := m.liveProfessional(applicationID)
	if p == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindProfessional, applicationID)
	}
	p.Details = details
	p.Meta.UpdatedBy = updatedBy
	p.UpdatedAt = m.Now()
	return copyProfessional(p), nil
}

func (m *Memory) SoftDeleteProfessional(ctx context.Context, applicationID, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.liveProfessional(applicationID)
	if p == nil {
		return apperrors.NewRecordNotFoundError(store.KindProfessional, applicationID)
	}
	markDeleted(&p.Meta, deletedBy, true)
	p.UpdatedAt = m.Now()
	return nil
}

func (m *Memory) RestoreProfessional(ctx context.Context, applicationID, restoredBy string) (*models.ProfessionalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.livePersonal(applicationID) == nil {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if m.liveProfessional(applicationID) != nil {
		return nil, apperrors.NewDuplicateRecordError(store.KindProfessional, applicationID)
	}
	var latest *models.ProfessionalRecord
	for _, p := range m.professional {
		if p.ApplicationID == applicationID && p.Meta.Deleted && (latest == nil || !p.UpdatedAt.Before(latest.UpdatedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindProfessional, applicationID)
	}
	markDeleted(&latest.Meta, restoredBy, false)
	latest.UpdatedAt = m.Now()
	return copyProfessional(latest), nil
}

// ==========================
// Subscription details
// ==========================

func (m *Memory) CreateSubscription(ctx context.Context, rec *models.SubscriptionRecord) (*models.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if m.livePersonal(rec.ApplicationID) == nil {
		return nil, apperrors.NewApplicationNotFoundError(rec.ApplicationID)
	}
	if m.liveSubscription(rec.ApplicationID) != nil {
		return nil, apperrors.NewDuplicateRecordError(store.KindSubscription, rec.ApplicationID)
	}
	now := m.Now()
	s := copySubscription(rec)
	s.ID = uuid.NewString()
	s.PaymentDetails = nil
	s.MembershipNumber = ""
	models.EnforcePaymentFrequency(&s.Details)
	if s.Details.SubmissionDate == nil {
		s.Details.SubmissionDate = &now
	}
	s.Meta.Deleted = false
	s.Meta.IsActive = true
	s.CreatedAt, s.UpdatedAt = now, now
	m.subscriptions = append(m.subscriptions, s)
	return copySubscription(s), nil
}

func (m *Memory) UpdateSubscription(ctx context.Context, applicationID string, details models.SubscriptionDetails, updatedBy string) (*models.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	s := m.liveSubscription(applicationID)
	if s == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindSubscription, applicationID)
	}
	models.EnforcePaymentFrequency(&details)
	if details.SubmissionDate == nil {
		details.SubmissionDate = s.Details.SubmissionDate
	}
	s.Details = details
	s.Meta.UpdatedBy = updatedBy
	s.UpdatedAt = m.Now()
	return copySubscription(s), nil
}

func (m *Memory) SoftDeleteSubscription(ctx context.Context, applicationID, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveSubscription(applicationID)
	if s == nil {
		return apperrors.NewRecordNotFoundError(store.KindSubscription, applicationID)
	}
	markDeleted(&s.Meta, deletedBy, true)
	s.UpdatedAt = m.Now()
	return nil
}

func (m *Memory) RestoreSubscription(ctx context.Context, applicationID, restoredBy string) (*models.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.livePersonal(applicationID) == nil {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if m.liveSubscription(applicationID) != nil {
		return nil, apperrors.NewDuplicateRecordError(store.KindSubscription, applicationID)
	}
	var latest *models.SubscriptionRecord
	for _, s := range m.subscriptions {
		if s.ApplicationID == applicationID && s.Meta.Deleted && (latest == nil || !s.UpdatedAt.Before(latest.UpdatedAt)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindSubscription, applicationID)
	}
	markDeleted(&latest.Meta, restoredBy, false)
	latest.UpdatedAt = m.Now()
	return copySubscription(latest), nil
}

// ==========================
// Workflow writes
// ==========================

func (m *Memory) UpdateApplicationStatus(ctx context.Context, change models.StatusChange) (*models.PersonalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	p := m.livePersonal(change.ApplicationID)
	if p == nil {
		return nil, apperrors.NewApplicationNotFoundError(change.ApplicationID)
	}
	if p.Status != change.From {
		return nil, apperrors.NewStatusConflictError(change.ApplicationID, string(change.From))
	}
	p.Status = change.To
	if change.Approval != nil {
		p.ApprovalDetails = *change.Approval
	}
	if change.UpdatedBy != "" {
		p.Meta.UpdatedBy = change.UpdatedBy
	}
	p.Version++
	p.UpdatedAt = m.Now()
	return copyPersonal(p), nil
}

func (m *Memory) PatchSubscriptionPayment(ctx context.Context, applicationID string, payment models.PaymentDetails) (*models.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	s := m.liveSubscription(applicationID)
	if s == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindSubscription, applicationID)
	}
	pd := payment
	s.PaymentDetails = &pd
	s.UpdatedAt = m.Now()
	return copySubscription(s), nil
}

func (m *Memory) MergeApprovedFields(ctx context.Context, applicationID string, effective models.EffectiveFields, attributes map[string]interface{}) (models.MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return models.MergeResult{}, err
	}

	var result models.MergeResult
	now := m.Now()

	if len(effective.PersonalInfo) > 0 || len(effective.ContactInfo) > 0 {
		p := m.livePersonal(applicationID)
		if p == nil {
			return result, apperrors.NewApplicationNotFoundError(applicationID)
		}
		next := copyPersonal(p)
		if err := store.MergeJSON(&next.PersonalInfo, effective.PersonalInfo); err != nil {
			return result, apperrors.NewInvalidPayloadError("personalInfo", err.Error())
		}
		if err := store.MergeJSON(&next.ContactInfo, effective.ContactInfo); err != nil {
			return result, apperrors.NewInvalidPayloadError("contactInfo", err.Error())
		}
		next.Derive(now)
		p.PersonalInfo, p.ContactInfo, p.UpdatedAt = next.PersonalInfo, next.ContactInfo, now
	}

	if prof := m.liveProfessional(applicationID); prof == nil {
		result.ProfessionalMissing = true
	} else if len(effective.ProfessionalDetails) > 0 {
		details := prof.Details
		if err := store.MergeJSON(&details, effective.ProfessionalDetails); err != nil {
			return result, apperrors.NewInvalidPayloadError("professionalDetails", err.Error())
		}
		prof.Details, prof.UpdatedAt = details, now
	}

	if sub := m.liveSubscription(applicationID); sub == nil {
		result.SubscriptionMissing = true
	} else if len(effective.SubscriptionDetails) > 0 || len(attributes) > 0 {
		details := sub.Details
		if err := store.MergeJSON(&details, effective.SubscriptionDetails); err != nil {
			return result, apperrors.NewInvalidPayloadError("subscriptionDetails", err.Error())
		}
		models.EnforcePaymentFrequency(&details)
		sub.Details = details
		sub.SubscriptionAttributes = store.MergeAttributes(sub.SubscriptionAttributes, attributes)
		sub.UpdatedAt = now
	}
	return result, nil
}

func (m *Memory) PatchProfessionalWorkLocation(ctx context.Context, userID, applicationID string, patch models.WorkLocationPatch) (models.PatchResult, error) {
	if userID == "" || applicationID == "" {
		return models.PatchResult{}, apperrors.NewValidationError("userId and applicationId are both required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return models.PatchResult{}, err
	}
	for _, p := range m.professional {
		if p.UserID != userID || p.ApplicationID != applicationID || p.Meta.Deleted {
			continue
		}
		modified := p.Details.ApplyWorkLocation(patch)
		if modified {
			p.UpdatedAt = m.Now()
		}
		return models.PatchResult{Matched: true, Modified: modified}, nil
	}
	return models.PatchResult{}, nil
}

// ==========================
// Test helpers
// ==========================

// ProfessionalsForUser returns copies of every live professional record owned
// by userID.
func (m *Memory) ProfessionalsForUser(userID string) []*models.ProfessionalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProfessionalRecord
	for _, p := range m.professional {
		if p.UserID == userID && !p.Meta.Deleted {
			out = append(out, copyProfessional(p))
		}
	}
	return out
}
