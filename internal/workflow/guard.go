// Package workflow decides application status transitions. It performs no
// I/O; callers apply the returned Decision.
package workflow

import (
	"fmt"
	"time"

	"portal-service/internal/models"
)

// Outcome classifies a Decision.
type Outcome int

const (
	// Transition means the status should move to Decision.To.
	Transition Outcome = iota
	// NoChange means the application is already where the trigger leads.
	NoChange
	// Refused means the trigger would leave a terminal state.
	Refused
	// Ignored means the trigger does not apply, e.g. an uncaptured payment.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Transition:
		return "transition"
	case NoChange:
		return "no_change"
	case Refused:
		return "refused"
	case Ignored:
		return "ignored"
	}
	return "unknown"
}

// Decision is the guard's verdict for one trigger.
type Decision struct {
	Outcome  Outcome
	From     models.ApplicationStatus
	To       models.ApplicationStatus
	Approval *models.ApprovalDetails
	Reason   string
}

func (d Decision) Changed() bool {
	return d.Outcome == Transition
}

// transitions is the full state machine: current status × trigger kind →
// target status. Missing entries are refused.
var transitions = map[models.ApplicationStatus]map[TriggerKind]models.ApplicationStatus{
	models.StatusInProgress: {
		KindSubscriptionCreated: models.StatusSubmitted,
		KindPaymentCaptured:     models.StatusSubmitted,
		KindCRMApproved:         models.StatusApproved,
		KindCRMRejected:         models.StatusRejected,
	},
	models.StatusSubmitted: {
		KindSubscriptionCreated: models.StatusSubmitted,
		KindPaymentCaptured:     models.StatusSubmitted,
		KindCRMApproved:         models.StatusApproved,
		KindCRMRejected:         models.StatusRejected,
	},
	models.StatusApproved: {
		KindCRMApproved: models.StatusApproved,
	},
	models.StatusRejected: {
		KindCRMRejected: models.StatusRejected,
	},
}

// targets gives the status each trigger kind leads to regardless of the
// current state.
var targets = map[TriggerKind]models.ApplicationStatus{
	KindSubscriptionCreated: models.StatusSubmitted,
	KindPaymentCaptured:     models.StatusSubmitted,
	KindCRMApproved:         models.StatusApproved,
	KindCRMRejected:         models.StatusRejected,
}

// Decide returns what should happen to an application in status current
// when trigger arrives at now.
func Decide(current models.ApplicationStatus, trigger Trigger, now time.Time) Decision {
	d := Decision{From: current, To: current}

	switch t := trigger.(type) {
	case SubscriptionCreated:
		if !t.Undergraduate {
			d.Outcome = NoChange
			d.Reason = "awaiting payment"
			return d
		}
	case PaymentCaptured:
		if !IsPaymentCaptured(t.PaymentStatus) {
			d.Outcome = Ignored
			d.Reason = fmt.Sprintf("payment status %q is not captured", t.PaymentStatus)
			return d
		}
	case nil:
		d.Outcome = Ignored
		d.Reason = "no trigger"
		return d
	}

	target := targets[trigger.Kind()]
	if current == target {
		d.Outcome = NoChange
		d.Reason = "already " + string(current)
		return d
	}

	next, ok := transitions[current][trigger.Kind()]
	if !ok || next != target {
		d.Outcome = Refused
		d.Reason = fmt.Sprintf("%s cannot move %s to %s", trigger.Kind(), describe(current), target)
		return d
	}

	d.Outcome = Transition
	d.To = next
	d.Approval = approvalFor(trigger, now)
	return d
}

func describe(s models.ApplicationStatus) string {
	if s == "" {
		return "unknown status"
	}
	if s.IsTerminal() {
		return "terminal status " + string(s)
	}
	return string(s)
}

func approvalFor(trigger Trigger, now time.Time) *models.ApprovalDetails {
	at := now.UTC()
	switch t := trigger.(type) {
	case CRMApproved:
		return &models.ApprovalDetails{
			ApprovedBy: reviewerForRecord(t.ReviewerID),
			ApprovedAt: &at,
		}
	case CRMRejected:
		return &models.ApprovalDetails{
			ApprovedBy:      reviewerForRecord(t.ReviewerID),
			ApprovedAt:      &at,
			RejectionReason: t.Reason,
			Comments:        t.Notes,
		}
	}
	return nil
}
