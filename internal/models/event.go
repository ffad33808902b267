// internal/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// Envelope wraps every event on the bus, inbound and outbound.
type Envelope struct {
	EventID   string                 `json:"eventId"`
	EventType string                 `json:"eventType"`
	Timestamp time.Time              `json:"timestamp"`
	Data      json.RawMessage        `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MetadataString returns a string metadata value or "".
func (e Envelope) MetadataString(key string) string {
	v, _ := e.Metadata[key].(string)
	return v
}

// ApplicationSnapshot is the outbound view of a reconciled application.
type ApplicationSnapshot struct {
	ApplicationID          string              `json:"applicationId"`
	TenantID               string              `json:"tenantId,omitempty"`
	Status                 ApplicationStatus   `json:"status"`
	MembershipCategoryName string              `json:"membershipCategoryName,omitempty"`
	Trigger                string              `json:"trigger,omitempty"`
	PersonalDetails        *PersonalRecord     `json:"personalDetails"`
	ProfessionalDetails    *ProfessionalRecord `json:"professionalDetails"`
	SubscriptionDetails    *SubscriptionRecord `json:"subscriptionDetails"`
}
