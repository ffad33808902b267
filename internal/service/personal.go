package service

import (
	"context"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"
)

// CreatePersonal starts an application under a new application id. A PORTAL
// user may hold one open application at a time.
func (s *Service) CreatePersonal(ctx context.Context, actor auth.User, in PersonalInput) (*models.PersonalRecord, error) {
	if !actor.IsCRM() {
		open, err := s.records.GetOpenPersonalByUser(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if open != nil {
			return nil, apperrors.NewDuplicateApplicationError(open.ApplicationID)
		}
	}

	applicationID := in.ApplicationID
	if !actor.IsCRM() {
		if applicationID != "" {
			s.logger.Warn("client applicationId ignored", map[string]interface{}{
				"userId":        actor.ID,
				"applicationId": applicationID,
			})
		}
		applicationID = ""
	}

	created, err := s.records.CreatePersonal(ctx, &models.PersonalRecord{
		ApplicationID: applicationID,
		UserID:        recordOwner(actor),
		PersonalInfo:  in.PersonalInfo,
		ContactInfo:   in.ContactInfo,
		Meta:          recordMeta(actor),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("application started", map[string]interface{}{
		"applicationId": created.ApplicationID,
		"userId":        actor.ID,
		"userType":      string(actor.UserType),
	})
	return created, nil
}

func (s *Service) GetPersonal(ctx context.Context, actor auth.User, applicationID string) (*models.PersonalRecord, error) {
	app, err := s.load(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	return app.Personal, nil
}

// UpdatePersonal replaces the personal and contact blocks. Status and
// approval details are not writable here.
func (s *Service) UpdatePersonal(ctx context.Context, actor auth.User, applicationID string, in PersonalInput) (*models.PersonalRecord, error) {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	return s.records.UpdatePersonal(ctx, applicationID, in.PersonalInfo, in.ContactInfo, actor.ID)
}

func (s *Service) DeletePersonal(ctx context.Context, actor auth.User, applicationID string) error {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return err
	}
	return s.records.SoftDeletePersonal(ctx, applicationID, actor.ID)
}

func (s *Service) RestorePersonal(ctx context.Context, actor auth.User, applicationID string) (*models.PersonalRecord, error) {
	owner, err := s.records.OwnerOf(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, owner, applicationID); err != nil {
		return nil, err
	}
	return s.records.RestorePersonal(ctx, applicationID, actor.ID)
}
