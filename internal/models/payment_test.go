package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDayUTC(t *testing.T) {
	perth := time.FixedZone("AWST", 8*3600)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"midday UTC", time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"last nanosecond", time.Date(2024, 1, 10, 23, 59, 59, 999999999, time.UTC), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		// 07:00 in Perth on the 11th is still the 10th in UTC
		{"ahead of UTC", time.Date(2024, 1, 11, 7, 0, 0, 0, perth), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DayUTC(tt.in)
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("DayUTC(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestPaymentObligation_AccruesLateFees(t *testing.T) {
	paidAt := time.Now()

	tests := []struct {
		status PaymentStatus
		paidAt *time.Time
		want   bool
	}{
		{PaymentPending, nil, false},
		{PaymentFailed, nil, true},
		{PaymentOverdue, nil, true},
		{PaymentOverdue, &paidAt, false},
		{PaymentPaid, nil, false},
		{PaymentWaived, nil, false},
	}

	for _, tt := range tests {
		p := PaymentObligation{Status: tt.status, PaidAt: tt.paidAt}
		if got := p.AccruesLateFees(); got != tt.want {
			t.Errorf("AccruesLateFees(status=%s, paid=%v) = %v, want %v", tt.status, tt.paidAt != nil, got, tt.want)
		}
	}
}

func TestPaymentObligation_IsPastDue(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := PaymentObligation{Status: PaymentPending, DueDate: due}

	if p.IsPastDue(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)) {
		t.Error("obligation should not be past due on its due day")
	}
	if !p.IsPastDue(time.Date(2024, 1, 2, 0, 0, 1, 0, time.UTC)) {
		t.Error("obligation should be past due the day after")
	}

	p.Status = PaymentFailed
	if p.IsPastDue(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("only pending obligations are derived as past due")
	}
}

func TestNewLateFee(t *testing.T) {
	p := &PaymentObligation{ID: uuid.New(), LeaseID: uuid.New()}
	now := time.Date(2024, 1, 10, 15, 4, 5, 0, time.UTC)

	fee := NewLateFee(p, DefaultLateFee, now)

	if fee.PaymentID != p.ID || fee.LeaseID != p.LeaseID {
		t.Error("fee should reference the obligation and its lease")
	}
	if fee.Amount != 6000 {
		t.Errorf("Amount = %d, want 6000", fee.Amount)
	}
	if want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC); !fee.DateApplied.Equal(want) {
		t.Errorf("DateApplied = %s, want %s", fee.DateApplied, want)
	}
	if fee.Waived {
		t.Error("new fee should not be waived")
	}
}

func TestParsePaymentStatus(t *testing.T) {
	for _, s := range []string{"pending", "paid", "failed", "overdue", "waived"} {
		if _, ok := ParsePaymentStatus(s); !ok {
			t.Errorf("ParsePaymentStatus(%q) rejected a known status", s)
		}
	}
	if _, ok := ParsePaymentStatus("refunded"); ok {
		t.Error("ParsePaymentStatus accepted an unknown status")
	}
}
