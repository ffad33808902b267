// internal/workers/application/payment-status-updated/models.go
package paymentstatusupdated

import (
	"time"

	"portal-service/internal/models"
)

type Input struct {
	ApplicationID   string   `json:"applicationId"`
	Status          string   `json:"status"`
	PaymentIntentID string   `json:"paymentIntentId,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	TenantID        string   `json:"tenantId,omitempty"`

	// Filled from the envelope, not the payload.
	ReceivedAt    time.Time `json:"-"`
	CorrelationID string    `json:"-"`
}

// HasPayment reports whether the event carries any payment fields.
func (i *Input) HasPayment() bool {
	return i.PaymentIntentID != "" || i.Amount != nil || i.Currency != ""
}

// Payment is stamped with the event time so a redelivered copy writes the
// same value.
func (i *Input) Payment() models.PaymentDetails {
	p := models.PaymentDetails{
		PaymentIntentID: i.PaymentIntentID,
		Currency:        i.Currency,
		Status:          i.Status,
		UpdatedAt:       i.ReceivedAt.UTC(),
	}
	if i.Amount != nil {
		p.Amount = *i.Amount
	}
	return p
}

type Output struct {
	ApplicationID  string                   `json:"applicationId"`
	PreviousStatus models.ApplicationStatus `json:"previousStatus"`
	Status         models.ApplicationStatus `json:"status"`
	Outcome        string                   `json:"outcome"`
	PaymentPatched bool                     `json:"paymentPatched"`
}
