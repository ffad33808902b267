// internal/workers/review/review-rejected/models.go
package reviewrejected

import "portal-service/internal/models"

type Input struct {
	ApplicationID string `json:"applicationId"`
	ReviewerID    string `json:"reviewerId"`
	Reason        string `json:"reason"`
	Notes         string `json:"notes,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`

	CorrelationID string `json:"-"`
}

type Output struct {
	ApplicationID string                   `json:"applicationId"`
	Status        models.ApplicationStatus `json:"status"`
	Outcome       string                   `json:"outcome"`
}
