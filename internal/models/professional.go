// internal/models/professional.go
package models

import "time"

type ProfessionalDetails struct {
	MembershipCategory         string `json:"membershipCategory,omitempty"`
	WorkLocation               string `json:"workLocation,omitempty"`
	OtherWorkLocation          string `json:"otherWorkLocation,omitempty"`
	Grade                      string `json:"grade,omitempty"`
	OtherGrade                 string `json:"otherGrade,omitempty"`
	PrimarySection             string `json:"primarySection,omitempty"`
	SecondarySection           string `json:"secondarySection,omitempty"`
	OtherSection               string `json:"otherSection,omitempty"`
	NursingAdaptationProgramme bool   `json:"nursingAdaptationProgramme"`
	Region                     string `json:"region,omitempty"`
	Branch                     string `json:"branch,omitempty"`
	PensionNo                  string `json:"pensionNo,omitempty"`
	IsRetired                  bool   `json:"isRetired"`
	RetiredDate                string `json:"retiredDate,omitempty"`
	StudyLocation              string `json:"studyLocation,omitempty"`
	GraduationDate             string `json:"graduationDate,omitempty"`
	OtherGraduationDate        string `json:"otherGraduationDate,omitempty"`
}

type ProfessionalRecord struct {
	ID            string              `json:"id"`
	ApplicationID string              `json:"applicationId"`
	UserID        string              `json:"userId,omitempty"`
	Details       ProfessionalDetails `json:"professionalDetails"`
	Meta          RecordMeta          `json:"meta"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// ApplyWorkLocation sets the non-empty fields of p and reports whether
// anything changed.
func (d *ProfessionalDetails) ApplyWorkLocation(p WorkLocationPatch) bool {
	changed := false
	if p.WorkLocation != "" && p.WorkLocation != d.WorkLocation {
		d.WorkLocation = p.WorkLocation
		changed = true
	}
	if p.Branch != "" && p.Branch != d.Branch {
		d.Branch = p.Branch
		changed = true
	}
	if p.Region != "" && p.Region != d.Region {
		d.Region = p.Region
		changed = true
	}
	return changed
}
