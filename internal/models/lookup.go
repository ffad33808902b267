// internal/models/lookup.go
package models

import "time"

type Lookup struct {
	ID           string    `json:"_id"`
	Code         string    `json:"code,omitempty"`
	Name         string    `json:"lookupname"`
	DisplayName  string    `json:"DisplayName,omitempty"`
	LookupTypeID string    `json:"lookuptypeId,omitempty"`
	IsActive     bool      `json:"isactive"`
	IsDeleted    bool      `json:"isdeleted"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
