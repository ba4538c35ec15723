package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func day(s string) time.Time {
	t, err := time.ParseInLocation(models.DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

// fixture creates a customer, vehicle and active lease and returns the lease
func fixture(t *testing.T, db *DB) *models.Lease {
	t.Helper()
	ctx := context.Background()

	user := models.NewUser("hirer@example.com", "hash", models.RoleCustomer)
	require.NoError(t, NewUserRepository(db).Create(ctx, user))

	now := time.Now().UTC()
	customer := &models.Customer{
		ID:                   uuid.New(),
		UserID:               user.ID,
		FullName:             "Sam Hirer",
		DateOfBirth:          day("1990-05-01"),
		AddressLine1:         "1 Hay St",
		Suburb:               "Perth",
		State:                "WA",
		Postcode:             "6000",
		PhoneE164:            "+61400000001",
		Email:                user.Email,
		DriversLicenceNumber: "1234567",
		DriversLicenceState:  "WA",
		DriversLicenceExpiry: day("2030-01-01"),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, NewCustomerRepository(db).Create(ctx, customer))

	vehicle := &models.Vehicle{
		ID:         uuid.New(),
		RegoNumber: "1ABC234",
		Title:      "2020 Toyota Corolla",
		Slug:       "2020-toyota-corolla-1abc234",
		CreatedAt:  now,
	}
	require.NoError(t, NewVehicleRepository(db).Create(ctx, vehicle))

	lease := models.NewLease(customer.ID, vehicle.ID, "Standard", 35000, day("2024-01-01"))
	require.NoError(t, NewLeaseRepository(db).Create(ctx, lease))
	return lease
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := models.NewUser("admin@example.com", "hash", models.RoleAdmin)
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.False(t, got.MustResetPassword)
	assert.Nil(t, got.TempPasswordIssuedAt)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Create(ctx, models.NewUser("admin@example.com", "hash", models.RoleAdmin))
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestUserRepository_SetPassword(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := models.NewUser("c@example.com", "old", models.RoleCustomer)
	require.NoError(t, repo.Create(ctx, user))

	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetPassword(ctx, user.ID, "temp", true, &issued))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "temp", got.PasswordHash)
	assert.True(t, got.MustResetPassword)
	require.NotNil(t, got.TempPasswordIssuedAt)
	assert.True(t, issued.Equal(*got.TempPasswordIssuedAt))

	require.NoError(t, repo.SetPassword(ctx, user.ID, "new", false, nil))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
	assert.False(t, got.MustResetPassword)
	assert.Nil(t, got.TempPasswordIssuedAt)

	err = repo.SetPassword(ctx, uuid.New(), "x", false, nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRevocationRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewRevocationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	revoked, err := repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "jti-1", uuid.New(), now.Add(time.Hour)))
	require.NoError(t, repo.Revoke(ctx, "jti-1", uuid.New(), now.Add(time.Hour)), "revoking twice is a no-op")
	require.NoError(t, repo.Revoke(ctx, "jti-2", uuid.New(), now.Add(-time.Hour)))

	revoked, err = repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCustomerRepository_DuplicatePhone(t *testing.T) {
	db := newTestDB(t)
	lease := fixture(t, db)
	ctx := context.Background()
	customers := NewCustomerRepository(db)

	existing, err := customers.GetByID(ctx, lease.CustomerID)
	require.NoError(t, err)
	require.NotNil(t, existing)

	byPhone, err := customers.GetByPhone(ctx, "+61400000001")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.Equal(t, existing.ID, byPhone.ID)

	other := models.NewUser("other@example.com", "hash", models.RoleCustomer)
	require.NoError(t, NewUserRepository(db).Create(ctx, other))

	dup := *existing
	dup.ID = uuid.New()
	dup.UserID = other.ID
	err = customers.Create(ctx, &dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, "Phone already exists.", apperr.Message(err))
}

func TestVehicleRepository_DuplicateRego(t *testing.T) {
	db := newTestDB(t)
	fixture(t, db)
	ctx := context.Background()
	vehicles := NewVehicleRepository(db)

	v, err := vehicles.GetByRego(ctx, "1ABC234")
	require.NoError(t, err)
	require.NotNil(t, v)

	bySlug, err := vehicles.GetBySlug(ctx, v.Slug)
	require.NoError(t, err)
	require.NotNil(t, bySlug)
	assert.Equal(t, v.ID, bySlug.ID)

	dup := *v
	dup.ID = uuid.New()
	dup.Slug = "another"
	err = vehicles.Create(ctx, &dup)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestLeaseRepository(t *testing.T) {
	db := newTestDB(t)
	lease := fixture(t, db)
	ctx := context.Background()
	leases := NewLeaseRepository(db)

	got, err := leases.GetByID(ctx, lease.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.Cents(35000), got.WeeklyAmount)
	assert.True(t, day("2024-01-01").Equal(got.StartDate))
	assert.Nil(t, got.BondAmount)

	active, err := leases.HasActiveForVehicle(ctx, lease.VehicleID)
	require.NoError(t, err)
	assert.True(t, active)

	byCustomer, err := leases.ListByCustomer(ctx, lease.CustomerID)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 1)
}

func TestPaymentRepository_StatusQueries(t *testing.T) {
	db := newTestDB(t)
	lease := fixture(t, db)
	ctx := context.Background()
	payments := NewPaymentRepository(db)

	schedule := lease.PaymentSchedule(4) // due 01-01, 01-08, 01-15, 01-22
	for i := range schedule {
		require.NoError(t, payments.Create(ctx, &schedule[i]))
	}
	paidAt := day("2024-01-02")
	require.NoError(t, payments.SetStatus(ctx, schedule[0].ID, models.PaymentPaid, paidAt))
	require.NoError(t, payments.SetStatus(ctx, schedule[1].ID, models.PaymentFailed, paidAt))

	pending, err := payments.ListPendingDueBefore(ctx, day("2024-01-16"))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, schedule[2].ID, pending[0].ID)

	accruing, err := payments.ListAccruing(ctx)
	require.NoError(t, err)
	require.Len(t, accruing, 1)
	assert.Equal(t, schedule[1].ID, accruing[0].ID)

	// marking overdue never touches a paid obligation
	require.NoError(t, payments.MarkOverdue(ctx, schedule[0].ID))
	require.NoError(t, payments.MarkOverdue(ctx, schedule[2].ID))

	paid, err := payments.GetByID(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	overdue, err := payments.GetByID(ctx, schedule[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOverdue, overdue.Status)

	err = payments.SetStatus(ctx, uuid.New(), models.PaymentWaived, paidAt)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestLateFeeRepository_UniquePerDay(t *testing.T) {
	db := newTestDB(t)
	lease := fixture(t, db)
	ctx := context.Background()
	payments := NewPaymentRepository(db)
	fees := NewLateFeeRepository(db)

	p := lease.PaymentSchedule(1)[0]
	require.NoError(t, payments.Create(ctx, &p))

	now := time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)
	require.NoError(t, fees.Create(ctx, models.NewLateFee(&p, models.DefaultLateFee, now)))

	exists, err := fees.Exists(ctx, lease.ID, p.ID, now)
	require.NoError(t, err)
	assert.True(t, exists)

	err = fees.Create(ctx, models.NewLateFee(&p, models.DefaultLateFee, now.Add(time.Hour)))
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	require.NoError(t, fees.Create(ctx, models.NewLateFee(&p, models.DefaultLateFee, now.AddDate(0, 0, 1))))

	list, err := fees.ListByPayment(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, day("2024-01-10").Equal(list[0].DateApplied))
	assert.Equal(t, models.Cents(6000), list[0].Amount)

	require.NoError(t, fees.Waive(ctx, list[0].ID))
	list, err = fees.ListByLease(ctx, lease.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[1].Waived)
	assert.False(t, list[0].Waived)
}

func TestWithTx_RollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := users.WithTx(tx).Create(ctx, models.NewUser("tx@example.com", "hash", models.RoleCustomer)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := users.EmailExists(ctx, "tx@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessageRepository(t *testing.T) {
	db := newTestDB(t)
	lease := fixture(t, db)
	ctx := context.Background()
	messages := NewMessageRepository(db)

	sms := &models.SmsMessage{
		ID:         uuid.New(),
		CustomerID: lease.CustomerID,
		Direction:  models.SmsInbound,
		FromE164:   "+61400000001",
		ToE164:     "+61427526002",
		Body:       "running late",
		Provider:   "clicksend",
		SentAt:     time.Now().UTC(),
	}
	require.NoError(t, messages.CreateSms(ctx, sms))
	require.NoError(t, messages.CreateEvent(ctx, models.NewCustomerEvent(lease.CustomerID, models.EventSmsReceived, map[string]string{"body": "running late"})))

	list, err := messages.ListSmsByCustomer(ctx, lease.CustomerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "running late", list[0].Body)
	assert.Empty(t, list[0].ProviderSID)

	events, err := messages.ListEventsByCustomer(ctx, lease.CustomerID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"body":"running late"}`, string(events[0].Payload))
}
