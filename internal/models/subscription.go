// internal/models/subscription.go
package models

import (
	"strings"
	"time"
)

const (
	PaymentTypeCard    = "Card Payment"
	PaymentTypeDebit   = "Direct Debit"
	PaymentTypePayroll = "Payroll Deduction"

	FrequencyAnnually = "Annually"
	FrequencyMonthly  = "Monthly"
)

type SubscriptionDetails struct {
	PaymentType             string     `json:"paymentType,omitempty"`
	PayrollNo               string     `json:"payrollNo,omitempty"`
	MembershipStatus        string     `json:"membershipStatus,omitempty"`
	OtherIrishTradeUnion    bool       `json:"otherIrishTradeUnion"`
	OtherScheme             bool       `json:"otherScheme"`
	RecruitedBy             string     `json:"recuritedBy,omitempty"`
	RecruitedByMembershipNo string     `json:"recuritedByMembershipNo,omitempty"`
	PrimarySection          string     `json:"primarySection,omitempty"`
	OtherPrimarySection     string     `json:"otherPrimarySection,omitempty"`
	SecondarySection        string     `json:"secondarySection,omitempty"`
	OtherSecondarySection   string     `json:"otherSecondarySection,omitempty"`
	IncomeProtectionScheme  bool       `json:"incomeProtectionScheme"`
	InmoRewards             bool       `json:"inmoRewards"`
	PaymentFrequency        string     `json:"paymentFrequency,omitempty"`
	ValueAddedServices      bool       `json:"valueAddedServices"`
	TermsAndConditions      bool       `json:"termsAndConditions"`
	MembershipCategory      string     `json:"membershipCategory,omitempty"`
	DateJoined              string     `json:"dateJoined,omitempty"`
	DateLeft                string     `json:"dateLeft,omitempty"`
	ReasonLeft              string     `json:"reasonLeft,omitempty"`
	SubmissionDate          *time.Time `json:"submissionDate,omitempty"`
}

// PaymentDetails is written only by the payment event handler.
type PaymentDetails struct {
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	Amount          float64   `json:"amount,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Status          string    `json:"status,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type SubscriptionRecord struct {
	ID                     string                 `json:"id"`
	ApplicationID          string                 `json:"applicationId"`
	UserID                 string                 `json:"userId,omitempty"`
	Details                SubscriptionDetails    `json:"subscriptionDetails"`
	PaymentDetails         *PaymentDetails        `json:"paymentDetails,omitempty"`
	MembershipNumber       string                 `json:"membershipNumber,omitempty"`
	SubscriptionAttributes map[string]interface{} `json:"subscriptionAttributes,omitempty"`
	Meta                   RecordMeta             `json:"meta"`
	CreatedAt              time.Time              `json:"createdAt"`
	UpdatedAt              time.Time              `json:"updatedAt"`
}

// IsCardPayment matches "Card Payment" and the credit-card spellings.
func IsCardPayment(paymentType string) bool {
	switch strings.ToLower(strings.TrimSpace(paymentType)) {
	case "card payment", "credit card", "credit-card", "creditcard", "card":
		return true
	}
	return false
}

// EnforcePaymentFrequency overwrites the frequency from the payment type:
// card payments are annual, everything else monthly.
func EnforcePaymentFrequency(d *SubscriptionDetails) {
	if IsCardPayment(d.PaymentType) {
		d.PaymentFrequency = FrequencyAnnually
		return
	}
	d.PaymentFrequency = FrequencyMonthly
}
