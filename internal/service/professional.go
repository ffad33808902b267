package service

import (
	"context"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"
	"portal-service/internal/store"
)

func (s *Service) CreateProfessional(ctx context.Context, actor auth.User, applicationID string, in ProfessionalInput) (*models.ProfessionalRecord, error) {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	return s.records.CreateProfessional(ctx, &models.ProfessionalRecord{
		ApplicationID: applicationID,
		UserID:        recordOwner(actor),
		Details:       in.ProfessionalDetails,
		Meta:          recordMeta(actor),
	})
}

func (s *Service) GetProfessional(ctx context.Context, actor auth.User, applicationID string) (*models.ProfessionalRecord, error) {
	app, err := s.load(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Professional == nil {
		return nil, apperrors.NewRecordNotFoundError(store.KindProfessional, applicationID)
	}
	return app.Professional, nil
}

func (s *Service) UpdateProfessional(ctx context.Context, actor auth.User, applicationID string, in ProfessionalInput) (*models.ProfessionalRecord, error) {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	return s.records.UpdateProfessional(ctx, applicationID, in.ProfessionalDetails, actor.ID)
}

func (s *Service) DeleteProfessional(ctx context.Context, actor auth.User, applicationID string) error {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return err
	}
	return s.records.SoftDeleteProfessional(ctx, applicationID, actor.ID)
}

func (s *Service) RestoreProfessional(ctx context.Context, actor auth.User, applicationID string) (*models.ProfessionalRecord, error) {
	if _, err := s.load(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	return s.records.RestoreProfessional(ctx, applicationID, actor.ID)
}
