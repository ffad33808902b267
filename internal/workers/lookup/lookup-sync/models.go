// internal/workers/lookup/lookup-sync/models.go
package lookupsync

import "portal-service/internal/models"

// Values are the lookup fields sent by the config service. Nil means the
// field was not sent.
type Values struct {
	Code         *string `json:"code,omitempty"`
	LookupName   *string `json:"lookupname,omitempty"`
	DisplayName  *string `json:"DisplayName,omitempty"`
	LookupTypeID *string `json:"lookuptypeId,omitempty"`
	IsDeleted    *bool   `json:"isdeleted,omitempty"`
	IsActive     *bool   `json:"isactive,omitempty"`
}

// ApplyTo copies every sent field onto l.
func (v Values) ApplyTo(l *models.Lookup) {
	if v.Code != nil {
		l.Code = *v.Code
	}
	if v.LookupName != nil {
		l.Name = *v.LookupName
	}
	if v.DisplayName != nil {
		l.DisplayName = *v.DisplayName
	}
	if v.LookupTypeID != nil {
		l.LookupTypeID = *v.LookupTypeID
	}
	if v.IsDeleted != nil {
		l.IsDeleted = *v.IsDeleted
	}
	if v.IsActive != nil {
		l.IsActive = *v.IsActive
	}
}

// Input covers all three lookup events: created sends the values at the top
// level, updated sends them under newValues, deleted sends only the id.
type Input struct {
	LookupID string `json:"lookupId"`
	Values
	NewValues *Values `json:"newValues,omitempty"`
}

type Output struct {
	LookupID string `json:"lookupId"`
	Action   string `json:"action"`
}
