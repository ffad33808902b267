// internal/workers/review/review-approved/models.go
package reviewapproved

import "portal-service/internal/models"

type Input struct {
	ApplicationID          string                 `json:"applicationId"`
	ReviewerID             string                 `json:"reviewerId"`
	ProfileID              string                 `json:"profileId,omitempty"`
	IsExistingProfile      bool                   `json:"isExistingProfile"`
	Effective              models.EffectiveFields `json:"effective"`
	SubscriptionAttributes map[string]interface{} `json:"subscriptionAttributes,omitempty"`
	TenantID               string                 `json:"tenantId,omitempty"`

	CorrelationID string `json:"-"`
}

type Output struct {
	ApplicationID       string                   `json:"applicationId"`
	Status              models.ApplicationStatus `json:"status"`
	Outcome             string                   `json:"outcome"`
	Merged              bool                     `json:"merged"`
	ProfessionalMissing bool                     `json:"professionalMissing"`
	SubscriptionMissing bool                     `json:"subscriptionMissing"`
	SkippedOverrides    []string                 `json:"skippedOverrides,omitempty"`
}
