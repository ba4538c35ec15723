package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultLateFee is applied once per overdue obligation per calendar day
const DefaultLateFee Cents = 6000

// PaymentStatus tracks a scheduled payment through collection
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
	PaymentOverdue PaymentStatus = "overdue"
	PaymentWaived  PaymentStatus = "waived"
)

// ParsePaymentStatus validates a status value
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentOverdue, PaymentWaived:
		return PaymentStatus(s), true
	default:
		return "", false
	}
}

// IsTerminal reports whether fee accrual is finished for this status
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentWaived
}

// PaymentObligation is one scheduled payment instance tied to a lease
type PaymentObligation struct {
	ID      uuid.UUID     `json:"id"`
	LeaseID uuid.UUID     `json:"leaseId"`
	DueDate time.Time     `json:"dueDate"`
	Amount  Cents         `json:"amount"`
	Status  PaymentStatus `json:"status"`
	PaidAt  *time.Time    `json:"paidAt,omitempty"`
}

// AccruesLateFees reports whether the obligation is failed or overdue and unpaid
func (p *PaymentObligation) AccruesLateFees() bool {
	if p.PaidAt != nil {
		return false
	}
	return p.Status == PaymentFailed || p.Status == PaymentOverdue
}

// IsPastDue reports whether a pending obligation's due day is before today
func (p *PaymentObligation) IsPastDue(now time.Time) bool {
	return p.Status == PaymentPending && p.PaidAt == nil && DayUTC(p.DueDate).Before(DayUTC(now))
}

// LateFee is a fixed charge applied against an overdue obligation
type LateFee struct {
	ID          uuid.UUID `json:"id"`
	LeaseID     uuid.UUID `json:"leaseId"`
	PaymentID   uuid.UUID `json:"paymentId"`
	DateApplied time.Time `json:"dateApplied"`
	Amount      Cents     `json:"amount"`
	Waived      bool      `json:"waived"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewLateFee creates a fee for the obligation on the calendar day of now
func NewLateFee(p *PaymentObligation, amount Cents, now time.Time) *LateFee {
	return &LateFee{
		ID:          uuid.New(),
		LeaseID:     p.LeaseID,
		PaymentID:   p.ID,
		DateApplied: DayUTC(now),
		Amount:      amount,
		CreatedAt:   now.UTC(),
	}
}

// DateLayout is the storage and wire format for calendar days
const DateLayout = "2006-01-02"

// DayUTC truncates t to midnight UTC of its UTC calendar day
func DayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
