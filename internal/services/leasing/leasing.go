// Package leasing manages the fleet, leases and their payment schedules
package leasing

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/storage"
)

var (
	ErrVehicleExists      = apperr.Validation("A vehicle with this registration already exists.")
	ErrVehicleLeased      = apperr.Validation("That vehicle already has an active lease. Pause/cancel it first.")
	ErrVehicleNotFound    = apperr.NotFound("Vehicle not found.")
	ErrLeaseNotFound      = apperr.NotFound("Lease not found.")
	ErrPaymentNotFound    = apperr.NotFound("Payment not found.")
	ErrCustomerNotFound   = apperr.NotFound("Customer not found.")
	ErrPaymentAlreadyPaid = apperr.Conflict("Payment has already been settled.")
)

// Service handles vehicles, leases and obligations
type Service struct {
	db        *storage.DB
	vehicles  *storage.VehicleRepository
	customers *storage.CustomerRepository
	leases    *storage.LeaseRepository
	payments  *storage.PaymentRepository
	fees      *storage.LateFeeRepository
	now       func() time.Time
}

// NewService creates a leasing service
func NewService(db *storage.DB) *Service {
	return &Service{
		db:        db,
		vehicles:  storage.NewVehicleRepository(db),
		customers: storage.NewCustomerRepository(db),
		leases:    storage.NewLeaseRepository(db),
		payments:  storage.NewPaymentRepository(db),
		fees:      storage.NewLateFeeRepository(db),
		now:       time.Now,
	}
}

// VehicleInput is the admin vehicle form
type VehicleInput struct {
	RegoNumber  string          `json:"regoNumber"`
	State       string          `json:"state"`
	Category    string          `json:"category"`
	CurrentKms  int             `json:"currentKms"`
	Title       string          `json:"title"`
	Make        string          `json:"make"`
	Model       string          `json:"model"`
	Year        *int            `json:"year"`
	Colour      string          `json:"colour"`
	BodyType    string          `json:"bodyType"`
	FuelType    string          `json:"fuelType"`
	VIN         string          `json:"vin"`
	RegcheckRaw json.RawMessage `json:"regcheckRaw"`
}

// vehicleTitle falls back to "year make model"
func vehicleTitle(in VehicleInput) string {
	if t := strings.TrimSpace(in.Title); t != "" {
		return t
	}
	var parts []string
	if in.Year != nil {
		parts = append(parts, strconv.Itoa(*in.Year))
	}
	for _, p := range []string{in.Make, in.Model} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// CreateVehicle adds a vehicle to the fleet
func (s *Service) CreateVehicle(ctx context.Context, in VehicleInput) (*models.Vehicle, error) {
	rego := strings.ToUpper(strings.TrimSpace(in.RegoNumber))
	if rego == "" {
		return nil, apperr.Validation("Registration number is required.")
	}
	existing, err := s.vehicles.GetByRego(ctx, rego)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrVehicleExists
	}

	title := vehicleTitle(in)
	if title == "" {
		return nil, apperr.Validation("Vehicle title is required.")
	}

	now := s.now().UTC()
	v := &models.Vehicle{
		ID:         uuid.New(),
		RegoNumber: rego,
		State:      strings.ToUpper(strings.TrimSpace(in.State)),
		Category:   strings.TrimSpace(in.Category),
		CurrentKms: max(in.CurrentKms, 0),
		Title:      title,
		Slug:       models.Slugify(title + "-" + rego),
		Make:       strings.TrimSpace(in.Make),
		Model:      strings.TrimSpace(in.Model),
		Year:       in.Year,
		Colour:     strings.TrimSpace(in.Colour),
		BodyType:   strings.TrimSpace(in.BodyType),
		FuelType:   strings.TrimSpace(in.FuelType),
		VIN:        strings.TrimSpace(in.VIN),
		CreatedAt:  now,
	}
	if len(in.RegcheckRaw) > 0 && string(in.RegcheckRaw) != "null" {
		v.RegcheckRaw = in.RegcheckRaw
		v.RegcheckVerifiedAt = &now
	}

	if err := s.vehicles.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// GetVehicle returns a vehicle by slug
func (s *Service) GetVehicle(ctx context.Context, slug string) (*models.Vehicle, error) {
	v, err := s.vehicles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVehicleNotFound
	}
	return v, nil
}

// ListVehicles returns the fleet
func (s *Service) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	return s.vehicles.List(ctx)
}

// LeaseInput is the admin lease form
type LeaseInput struct {
	CustomerID        string `json:"customerId"`
	VehicleID         string `json:"vehicleId"`
	PlanName          string `json:"planName"`
	StartDate         string `json:"startDate"`
	WeeklyAmountCents int64  `json:"weeklyAmountCents"`
	KmsPerWeek        *int   `json:"kmsPerWeek"`
	BondAmountCents   *int64 `json:"bondAmountCents"`
	TermWeeks         int    `json:"termWeeks"`
}

// CreateLease opens an active lease and its weekly payment schedule
func (s *Service) CreateLease(ctx context.Context, in LeaseInput) (*models.Lease, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, apperr.Validation("Customer is required")
	}
	if strings.TrimSpace(in.VehicleID) == "" {
		return nil, apperr.Validation("Vehicle is required")
	}
	planName := strings.TrimSpace(in.PlanName)
	if planName == "" {
		return nil, apperr.Validation("Plan is required")
	}
	if strings.TrimSpace(in.StartDate) == "" {
		return nil, apperr.Validation("Start date is required")
	}
	if in.WeeklyAmountCents <= 0 {
		return nil, apperr.Validation("Weekly amount must be greater than 0")
	}
	if in.TermWeeks < 0 {
		return nil, apperr.Validation("Term must be a positive number of weeks")
	}

	customerID, err := uuid.Parse(in.CustomerID)
	if err != nil {
		return nil, ErrCustomerNotFound
	}
	vehicleID, err := uuid.Parse(in.VehicleID)
	if err != nil {
		return nil, ErrVehicleNotFound
	}
	start, err := time.Parse(models.DateLayout, strings.TrimSpace(in.StartDate))
	if err != nil {
		return nil, apperr.Validation("Start date must be a date (YYYY-MM-DD)")
	}

	if c, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, err
	} else if c == nil {
		return nil, ErrCustomerNotFound
	}
	if v, err := s.vehicles.GetByID(ctx, vehicleID); err != nil {
		return nil, err
	} else if v == nil {
		return nil, ErrVehicleNotFound
	}

	lease := models.NewLease(customerID, vehicleID, planName, models.Cents(in.WeeklyAmountCents), start)
	lease.KmsPerWeek = in.KmsPerWeek
	if in.BondAmountCents != nil {
		bond := models.Cents(*in.BondAmountCents)
		lease.BondAmount = &bond
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		leases := s.leases.WithTx(tx)
		active, err := leases.HasActiveForVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if active {
			return ErrVehicleLeased
		}
		if err := leases.Create(ctx, lease); err != nil {
			return err
		}
		payments := s.payments.WithTx(tx)
		for _, p := range lease.PaymentSchedule(in.TermWeeks) {
			if err := payments.Create(ctx, &p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// ListLeases returns every lease, newest first
func (s *Service) ListLeases(ctx context.Context) ([]*models.Lease, error) {
	return s.leases.List(ctx)
}

// LeaseDetail is a lease with its schedule and fees
type LeaseDetail struct {
	Lease    *models.Lease              `json:"lease"`
	Vehicle  *models.Vehicle            `json:"vehicle,omitempty"`
	Payments []models.PaymentObligation `json:"payments"`
	LateFees []models.LateFee           `json:"lateFees"`
	Balance  LeaseBalance               `json:"balance"`
}

// LeaseBalance totals what is outstanding on a lease
type LeaseBalance struct {
	OverduePayments models.Cents `json:"overduePayments"`
	LateFees        models.Cents `json:"lateFees"`
	Total           models.Cents `json:"total"`
}

func balance(payments []models.PaymentObligation, fees []models.LateFee) LeaseBalance {
	var b LeaseBalance
	for _, p := range payments {
		if p.AccruesLateFees() {
			b.OverduePayments += p.Amount
		}
	}
	for _, f := range fees {
		if !f.Waived {
			b.LateFees += f.Amount
		}
	}
	b.Total = b.OverduePayments + b.LateFees
	return b
}

// GetLease loads a lease with its schedule, fees and vehicle
func (s *Service) GetLease(ctx context.Context, id uuid.UUID) (*LeaseDetail, error) {
	lease, err := s.leases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}
	return s.leaseDetail(ctx, lease)
}

func (s *Service) leaseDetail(ctx context.Context, lease *models.Lease) (*LeaseDetail, error) {
	payments, err := s.payments.ListByLease(ctx, lease.ID)
	if err != nil {
		return nil, err
	}
	fees, err := s.fees.ListByLease(ctx, lease.ID)
	if err != nil {
		return nil, err
	}
	vehicle, err := s.vehicles.GetByID(ctx, lease.VehicleID)
	if err != nil {
		return nil, err
	}
	return &LeaseDetail{
		Lease:    lease,
		Vehicle:  vehicle,
		Payments: payments,
		LateFees: fees,
		Balance:  balance(payments, fees),
	}, nil
}

// CustomerLeases returns every lease of a customer with schedules and fees
func (s *Service) CustomerLeases(ctx context.Context, customerID uuid.UUID) ([]*LeaseDetail, error) {
	leases, err := s.leases.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	details := make([]*LeaseDetail, 0, len(leases))
	for _, l := range leases {
		d, err := s.leaseDetail(ctx, l)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

// MarkPaid settles an obligation. Settled obligations stop accruing fees.
func (s *Service) MarkPaid(ctx context.Context, paymentID uuid.UUID) (*models.PaymentObligation, error) {
	return s.setStatus(ctx, paymentID, models.PaymentPaid)
}

// Waive writes off an obligation
func (s *Service) Waive(ctx context.Context, paymentID uuid.UUID) (*models.PaymentObligation, error) {
	return s.setStatus(ctx, paymentID, models.PaymentWaived)
}

// MarkFailed records a failed collection attempt
func (s *Service) MarkFailed(ctx context.Context, paymentID uuid.UUID) (*models.PaymentObligation, error) {
	return s.setStatus(ctx, paymentID, models.PaymentFailed)
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) (*models.PaymentObligation, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.Status.IsTerminal() {
		return nil, ErrPaymentAlreadyPaid
	}
	if err := s.payments.SetStatus(ctx, id, status, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.payments.GetByID(ctx, id)
}

// WaiveLateFee marks a late fee as waived
func (s *Service) WaiveLateFee(ctx context.Context, feeID uuid.UUID) error {
	return s.fees.Waive(ctx, feeID)
}
