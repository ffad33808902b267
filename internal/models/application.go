// internal/models/application.go
package models

import "time"

// ApplicationStatus is the lifecycle state held on the personal record.
type ApplicationStatus string

const (
	StatusInProgress ApplicationStatus = "in-progress"
	StatusSubmitted  ApplicationStatus = "submitted"
	StatusApproved   ApplicationStatus = "approved"
	StatusRejected   ApplicationStatus = "rejected"
)

// Rank orders statuses along the forward-only lifecycle. Approved and
// rejected share the terminal rank.
func (s ApplicationStatus) Rank() int {
	switch s {
	case StatusSubmitted:
		return 1
	case StatusApproved, StatusRejected:
		return 2
	}
	return 0
}

func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// UserType distinguishes end users from back-office staff.
type UserType string

const (
	UserTypePortal UserType = "PORTAL"
	UserTypeCRM    UserType = "CRM"
)

// RecordMeta is carried by all three record kinds.
type RecordMeta struct {
	CreatedBy string   `json:"createdBy,omitempty"`
	UpdatedBy string   `json:"updatedBy,omitempty"`
	UserType  UserType `json:"userType,omitempty"`
	Deleted   bool     `json:"deleted"`
	IsActive  bool     `json:"isActive"`
}

// ApprovalDetails is written only by approval and rejection.
type ApprovalDetails struct {
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	Comments        string     `json:"comments,omitempty"`
}

// Application is the aggregate snapshot of one membership application.
// Professional and Subscription are nil until created.
type Application struct {
	Personal     *PersonalRecord     `json:"personalDetails"`
	Professional *ProfessionalRecord `json:"professionalDetails"`
	Subscription *SubscriptionRecord `json:"subscriptionDetails"`
}

func (a *Application) ApplicationID() string {
	if a == nil || a.Personal == nil {
		return ""
	}
	return a.Personal.ApplicationID
}

func (a *Application) Status() ApplicationStatus {
	if a == nil || a.Personal == nil {
		return ""
	}
	return a.Personal.Status
}

// MembershipCategory prefers the subscription's category and falls back to
// the professional record's.
func (a *Application) MembershipCategory() string {
	if a == nil {
		return ""
	}
	if a.Subscription != nil && a.Subscription.Details.MembershipCategory != "" {
		return a.Subscription.Details.MembershipCategory
	}
	if a.Professional != nil {
		return a.Professional.Details.MembershipCategory
	}
	return ""
}

// StatusChange is a compare-and-set request against the stored status.
type StatusChange struct {
	ApplicationID string
	From          ApplicationStatus
	To            ApplicationStatus
	Approval      *ApprovalDetails
	UpdatedBy     string
}

// EffectiveFields are CRM overrides merged into the records on approval.
type EffectiveFields struct {
	PersonalInfo        map[string]interface{} `json:"personalInfo,omitempty"`
	ContactInfo         map[string]interface{} `json:"contactInfo,omitempty"`
	ProfessionalDetails map[string]interface{} `json:"professionalDetails,omitempty"`
	SubscriptionDetails map[string]interface{} `json:"subscriptionDetails,omitempty"`
}

func (e EffectiveFields) IsEmpty() bool {
	return len(e.PersonalInfo) == 0 && len(e.ContactInfo) == 0 &&
		len(e.ProfessionalDetails) == 0 && len(e.SubscriptionDetails) == 0
}

// Override block names, as they appear in the approval event.
const (
	BlockPersonalInfo        = "personalInfo"
	BlockContactInfo         = "contactInfo"
	BlockProfessionalDetails = "professionalDetails"
	BlockSubscriptionDetails = "subscriptionDetails"
)

// Without returns a copy of e with the named blocks cleared.
func (e EffectiveFields) Without(blocks ...string) EffectiveFields {
	for _, b := range blocks {
		switch b {
		case BlockPersonalInfo:
			e.PersonalInfo = nil
		case BlockContactInfo:
			e.ContactInfo = nil
		case BlockProfessionalDetails:
			e.ProfessionalDetails = nil
		case BlockSubscriptionDetails:
			e.SubscriptionDetails = nil
		}
	}
	return e
}

// MergeResult reports which child records were absent during a merge.
type MergeResult struct {
	ProfessionalMissing bool
	SubscriptionMissing bool
}

// WorkLocationPatch carries the fields synced from the profile service.
// Empty fields are left untouched.
type WorkLocationPatch struct {
	WorkLocation string `json:"workLocation,omitempty"`
	Branch       string `json:"branch,omitempty"`
	Region       string `json:"region,omitempty"`
}

func (p WorkLocationPatch) IsEmpty() bool {
	return p.WorkLocation == "" && p.Branch == "" && p.Region == ""
}

// PatchResult reports whether a targeted patch found a record and whether it
// changed anything.
type PatchResult struct {
	Matched  bool `json:"matched"`
	Modified bool `json:"modified"`
}

// ListFilter narrows the CRM aggregate listing.
type ListFilter struct {
	Status ApplicationStatus
	UserID string
	Limit  int
	Offset int
}
