// internal/workers/professional/work-location-updated/models.go
package worklocationupdated

import "portal-service/internal/models"

type Input struct {
	UserID        string `json:"userId"`
	ApplicationID string `json:"applicationId"`
	WorkLocation  string `json:"workLocation,omitempty"`
	Branch        string `json:"branch,omitempty"`
	Region        string `json:"region,omitempty"`
}

func (i *Input) Patch() models.WorkLocationPatch {
	return models.WorkLocationPatch{
		WorkLocation: i.WorkLocation,
		Branch:       i.Branch,
		Region:       i.Region,
	}
}

// Output is logged for monitoring: Matched says a professional record was
// found for the key pair, Modified that a field actually changed.
type Output struct {
	Matched  bool `json:"matched"`
	Modified bool `json:"modified"`
	Skipped  bool `json:"skipped"`
}
