package models

import (
	"time"

	"github.com/google/uuid"
)

// LeaseStatus is the lifecycle state of a lease
type LeaseStatus string

const (
	LeaseActive    LeaseStatus = "active"
	LeasePaused    LeaseStatus = "paused"
	LeaseCancelled LeaseStatus = "cancelled"
	LeaseCompleted LeaseStatus = "completed"
)

// DefaultTermWeeks is the schedule length when none is given
const DefaultTermWeeks = 52

// Lease binds a customer to a vehicle on a weekly plan
type Lease struct {
	ID           uuid.UUID   `json:"id"`
	CustomerID   uuid.UUID   `json:"customerId"`
	VehicleID    uuid.UUID   `json:"vehicleId"`
	PlanName     string      `json:"planName"`
	WeeklyAmount Cents       `json:"weeklyAmount"`
	KmsPerWeek   *int        `json:"kmsPerWeek,omitempty"`
	BondAmount   *Cents      `json:"bondAmount,omitempty"`
	StartDate    time.Time   `json:"startDate"`
	Status       LeaseStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// NewLease creates an active lease starting on the given day
func NewLease(customerID, vehicleID uuid.UUID, planName string, weekly Cents, start time.Time) *Lease {
	return &Lease{
		ID:           uuid.New(),
		CustomerID:   customerID,
		VehicleID:    vehicleID,
		PlanName:     planName,
		WeeklyAmount: weekly,
		StartDate:    DayUTC(start),
		Status:       LeaseActive,
		CreatedAt:    time.Now().UTC(),
	}
}

// PaymentSchedule returns weekly pending obligations, the first due on the start date
func (l *Lease) PaymentSchedule(weeks int) []PaymentObligation {
	if weeks <= 0 {
		weeks = DefaultTermWeeks
	}
	schedule := make([]PaymentObligation, 0, weeks)
	for i := 0; i < weeks; i++ {
		schedule = append(schedule, PaymentObligation{
			ID:      uuid.New(),
			LeaseID: l.ID,
			DueDate: l.StartDate.AddDate(0, 0, 7*i),
			Amount:  l.WeeklyAmount,
			Status:  PaymentPending,
		})
	}
	return schedule
}
