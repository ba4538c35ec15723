package leasing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return NewService(db), db
}

func seedCustomer(t *testing.T, db *storage.DB) *models.Customer {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	user := models.NewUser("hirer@example.com", "hash", models.RoleCustomer)
	require.NoError(t, storage.NewUserRepository(db).Create(ctx, user))
	c := &models.Customer{
		ID: uuid.New(), UserID: user.ID, FullName: "Sam Hirer",
		DateOfBirth: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), AddressLine1: "1 Hay St",
		Suburb: "Perth", State: "WA", Postcode: "6000", PhoneE164: "+61400000001", Email: user.Email,
		DriversLicenceNumber: "123", DriversLicenceState: "WA",
		DriversLicenceExpiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:            now, UpdatedAt: now,
	}
	require.NoError(t, storage.NewCustomerRepository(db).Create(ctx, c))
	return c
}

func intPtr(n int) *int { return &n }

func TestCreateVehicle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateVehicle(ctx, VehicleInput{
		RegoNumber:  " 1abc234 ",
		Make:        "Toyota",
		Model:       "Corolla",
		Year:        intPtr(2019),
		RegcheckRaw: json.RawMessage(`{"Description":"2019 Toyota Corolla"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1ABC234", v.RegoNumber)
	assert.Equal(t, "2019 Toyota Corolla", v.Title)
	assert.Equal(t, "2019-toyota-corolla-1abc234", v.Slug)
	assert.NotNil(t, v.RegcheckVerifiedAt)

	got, err := svc.GetVehicle(ctx, v.Slug)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = svc.CreateVehicle(ctx, VehicleInput{RegoNumber: "1ABC234", Title: "Again"})
	assert.ErrorIs(t, err, ErrVehicleExists)
	assert.Equal(t, 400, apperr.HTTPStatus(err))

	_, err = svc.CreateVehicle(ctx, VehicleInput{RegoNumber: "2XYZ999"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreateVehicle(ctx, VehicleInput{Title: "No rego"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.GetVehicle(ctx, "missing")
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func TestCreateLease_Schedule(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	customer := seedCustomer(t, db)
	vehicle, err := svc.CreateVehicle(ctx, VehicleInput{RegoNumber: "1ABC234", Title: "Corolla"})
	require.NoError(t, err)

	lease, err := svc.CreateLease(ctx, LeaseInput{
		CustomerID:        customer.ID.String(),
		VehicleID:         vehicle.ID.String(),
		PlanName:          "Standard",
		StartDate:         "2024-01-01",
		WeeklyAmountCents: 35000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LeaseActive, lease.Status)

	detail, err := svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	require.Len(t, detail.Payments, models.DefaultTermWeeks)
	assert.Equal(t, "2024-01-01", detail.Payments[0].DueDate.Format(models.DateLayout))
	assert.Equal(t, "2024-01-08", detail.Payments[1].DueDate.Format(models.DateLayout))
	for _, p := range detail.Payments {
		assert.Equal(t, models.PaymentPending, p.Status)
		assert.Equal(t, models.Cents(35000), p.Amount)
	}

	_, err = svc.CreateLease(ctx, LeaseInput{
		CustomerID:        customer.ID.String(),
		VehicleID:         vehicle.ID.String(),
		PlanName:          "Second",
		StartDate:         "2024-02-01",
		WeeklyAmountCents: 30000,
		TermWeeks:         4,
	})
	assert.ErrorIs(t, err, ErrVehicleLeased)

	leases, err := svc.CustomerLeases(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, leases, 1)
}

func TestCreateLease_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	base := LeaseInput{
		CustomerID:        uuid.NewString(),
		VehicleID:         uuid.NewString(),
		PlanName:          "Standard",
		StartDate:         "2024-01-01",
		WeeklyAmountCents: 35000,
	}

	tests := []struct {
		name   string
		modify func(*LeaseInput)
		kind   error
	}{
		{"missing customer", func(in *LeaseInput) { in.CustomerID = "" }, apperr.ErrValidation},
		{"missing plan", func(in *LeaseInput) { in.PlanName = " " }, apperr.ErrValidation},
		{"zero amount", func(in *LeaseInput) { in.WeeklyAmountCents = 0 }, apperr.ErrValidation},
		{"bad date", func(in *LeaseInput) { in.StartDate = "soon" }, apperr.ErrValidation},
		{"unknown customer", func(in *LeaseInput) {}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.modify(&in)
			_, err := svc.CreateLease(context.Background(), in)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestPaymentTransitions(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	customer := seedCustomer(t, db)
	vehicle, err := svc.CreateVehicle(ctx, VehicleInput{RegoNumber: "1ABC234", Title: "Corolla"})
	require.NoError(t, err)
	lease, err := svc.CreateLease(ctx, LeaseInput{
		CustomerID: customer.ID.String(), VehicleID: vehicle.ID.String(),
		PlanName: "Standard", StartDate: "2024-01-01", WeeklyAmountCents: 35000, TermWeeks: 3,
	})
	require.NoError(t, err)

	detail, err := svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	first, second, third := detail.Payments[0], detail.Payments[1], detail.Payments[2]

	failed, err := svc.MarkFailed(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, failed.Status)

	paid, err := svc.MarkPaid(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	_, err = svc.MarkFailed(ctx, first.ID)
	assert.ErrorIs(t, err, ErrPaymentAlreadyPaid)

	waived, err := svc.Waive(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentWaived, waived.Status)
	assert.Nil(t, waived.PaidAt)

	_, err = svc.MarkFailed(ctx, third.ID)
	require.NoError(t, err)
	fee := models.NewLateFee(&third, models.DefaultLateFee, time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC))
	require.NoError(t, storage.NewLateFeeRepository(db).Create(ctx, fee))

	detail, err = svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(35000), detail.Balance.OverduePayments)
	assert.Equal(t, models.Cents(6000), detail.Balance.LateFees)
	assert.Equal(t, models.Cents(41000), detail.Balance.Total)

	require.NoError(t, svc.WaiveLateFee(ctx, fee.ID))
	detail, err = svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(0), detail.Balance.LateFees)

	assert.ErrorIs(t, svc.WaiveLateFee(ctx, uuid.New()), apperr.ErrNotFound)
	_, err = svc.MarkPaid(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}
