package workflow

import "strings"

// TriggerKind names the four inputs that can move an application's status.
type TriggerKind string

const (
	KindSubscriptionCreated TriggerKind = "subscription-created"
	KindPaymentCaptured     TriggerKind = "payment-captured"
	KindCRMApproved         TriggerKind = "crm-approved"
	KindCRMRejected         TriggerKind = "crm-rejected"
)

// Trigger is implemented only by the types in this file.
type Trigger interface {
	Kind() TriggerKind
	trigger()
}

// SubscriptionCreated fires when a subscription record is first written.
type SubscriptionCreated struct {
	Undergraduate bool
}

// PaymentCaptured carries the raw status string from the payment service.
type PaymentCaptured struct {
	PaymentStatus string
}

type CRMApproved struct {
	ReviewerID string
}

type CRMRejected struct {
	ReviewerID string
	Reason     string
	Notes      string
}

func (SubscriptionCreated) Kind() TriggerKind { return KindSubscriptionCreated }
func (PaymentCaptured) Kind() TriggerKind     { return KindPaymentCaptured }
func (CRMApproved) Kind() TriggerKind         { return KindCRMApproved }
func (CRMRejected) Kind() TriggerKind         { return KindCRMRejected }

func (SubscriptionCreated) trigger() {}
func (PaymentCaptured) trigger()     {}
func (CRMApproved) trigger()         {}
func (CRMRejected) trigger()         {}

var capturedStatuses = map[string]struct{}{
	"submitted": {},
	"paid":      {},
	"succeeded": {},
	"completed": {},
}

// IsPaymentCaptured reports whether a payment status means money was taken.
func IsPaymentCaptured(status string) bool {
	_, ok := capturedStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

const undergraduateCategory = "undergraduate student"

// IsUndergraduate matches the resolved membership category name.
func IsUndergraduate(categoryName string) bool {
	return strings.EqualFold(strings.TrimSpace(categoryName), undergraduateCategory)
}

// bypassReviewer is the placeholder id used by automated approvals.
const bypassReviewer = "bypass-user"

func reviewerForRecord(id string) string {
	if id == bypassReviewer {
		return ""
	}
	return id
}
