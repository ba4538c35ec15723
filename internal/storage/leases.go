package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
)

// LeaseRepository provides lease data access
type LeaseRepository struct {
	db querier
}

// NewLeaseRepository creates a new lease repository
func NewLeaseRepository(db *DB) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *LeaseRepository) WithTx(tx *sql.Tx) *LeaseRepository {
	return &LeaseRepository{db: tx}
}

const leaseColumns = `id, customer_id, vehicle_id, plan_name, weekly_amount, kms_per_week, bond_amount, start_date, status, created_at`

// Create inserts a new lease
func (r *LeaseRepository) Create(ctx context.Context, l *models.Lease) error {
	query := `
		INSERT INTO leases (` + leaseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var kms, bond sql.NullInt64
	if l.KmsPerWeek != nil {
		kms = sql.NullInt64{Int64: int64(*l.KmsPerWeek), Valid: true}
	}
	if l.BondAmount != nil {
		bond = sql.NullInt64{Int64: int64(*l.BondAmount), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		l.ID.String(),
		l.CustomerID.String(),
		l.VehicleID.String(),
		l.PlanName,
		int64(l.WeeklyAmount),
		kms,
		bond,
		formatDate(l.StartDate),
		string(l.Status),
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	return nil
}

// GetByID retrieves a lease by ID
func (r *LeaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE id = ?`
	return r.scanLease(r.db.QueryRowContext(ctx, query, id.String()))
}

// ListByCustomer returns a customer's leases, newest first
func (r *LeaseRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE customer_id = ? ORDER BY created_at DESC`
	return r.list(ctx, query, customerID.String())
}

// List returns all leases, newest first
func (r *LeaseRepository) List(ctx context.Context) ([]*models.Lease, error) {
	return r.list(ctx, `SELECT `+leaseColumns+` FROM leases ORDER BY created_at DESC`)
}

// HasActiveForVehicle reports whether the vehicle is already on an active lease
func (r *LeaseRepository) HasActiveForVehicle(ctx context.Context, vehicleID uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM leases WHERE vehicle_id = ? AND status = ?",
		vehicleID.String(), string(models.LeaseActive),
	).Scan(&count)
	return count > 0, err
}

func (r *LeaseRepository) list(ctx context.Context, query string, args ...any) ([]*models.Lease, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	defer rows.Close()

	var leases []*models.Lease
	for rows.Next() {
		l, err := r.scanLease(rows)
		if err != nil {
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

func (r *LeaseRepository) scanLease(row scanner) (*models.Lease, error) {
	var l models.Lease
	var id, customerID, vehicleID, start, status string
	var weekly int64
	var kms, bond sql.NullInt64

	err := row.Scan(&id, &customerID, &vehicleID, &l.PlanName, &weekly, &kms, &bond, &start, &status, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lease: %w", err)
	}

	if l.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if l.CustomerID, err = parseID(customerID); err != nil {
		return nil, err
	}
	if l.VehicleID, err = parseID(vehicleID); err != nil {
		return nil, err
	}
	if l.StartDate, err = parseDate(start); err != nil {
		return nil, err
	}
	l.WeeklyAmount = models.Cents(weekly)
	l.Status = models.LeaseStatus(status)
	if kms.Valid {
		k := int(kms.Int64)
		l.KmsPerWeek = &k
	}
	if bond.Valid {
		b := models.Cents(bond.Int64)
		l.BondAmount = &b
	}

	return &l, nil
}

// PaymentRepository provides payment schedule data access
type PaymentRepository struct {
	db querier
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *PaymentRepository) WithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

const paymentColumns = `id, lease_id, due_date, amount, status, paid_at`

// Create inserts one obligation
func (r *PaymentRepository) Create(ctx context.Context, p *models.PaymentObligation) error {
	query := `INSERT INTO payment_schedules (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID.String(),
		p.LeaseID.String(),
		formatDate(p.DueDate),
		int64(p.Amount),
		string(p.Status),
		nullTime(p.PaidAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID retrieves an obligation by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentObligation, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_schedules WHERE id = ?`
	return r.scanPayment(r.db.QueryRowContext(ctx, query, id.String()))
}

// ListByLease returns a lease's schedule ordered by due date
func (r *PaymentRepository) ListByLease(ctx context.Context, leaseID uuid.UUID) ([]models.PaymentObligation, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_schedules WHERE lease_id = ? ORDER BY due_date`
	return r.list(ctx, query, leaseID.String())
}

// ListAccruing returns failed or overdue obligations that have not been paid
func (r *PaymentRepository) ListAccruing(ctx context.Context) ([]models.PaymentObligation, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM payment_schedules
		WHERE status IN (?, ?) AND paid_at IS NULL
		ORDER BY due_date
	`
	return r.list(ctx, query, string(models.PaymentFailed), string(models.PaymentOverdue))
}

// ListPendingDueBefore returns unpaid pending obligations due strictly before day
func (r *PaymentRepository) ListPendingDueBefore(ctx context.Context, day time.Time) ([]models.PaymentObligation, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM payment_schedules
		WHERE status = ? AND paid_at IS NULL AND due_date < ?
		ORDER BY due_date
	`
	return r.list(ctx, query, string(models.PaymentPending), formatDate(day))
}

// MarkOverdue moves an unpaid pending or failed obligation to overdue.
// Paid and waived obligations are left untouched.
func (r *PaymentRepository) MarkOverdue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE payment_schedules SET status = ?
		WHERE id = ? AND paid_at IS NULL AND status IN (?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		string(models.PaymentOverdue),
		id.String(),
		string(models.PaymentPending), string(models.PaymentFailed), string(models.PaymentOverdue),
	)
	if err != nil {
		return fmt.Errorf("failed to mark payment overdue: %w", err)
	}
	return nil
}

// SetStatus records an admin status change; marking paid stamps paid_at
func (r *PaymentRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, at time.Time) error {
	var paidAt sql.NullTime
	if status == models.PaymentPaid {
		paidAt = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_schedules SET status = ?, paid_at = ? WHERE id = ?`,
		string(status), paidAt, id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("Payment not found.")
	}
	return nil
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]models.PaymentObligation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.PaymentObligation
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) scanPayment(row scanner) (*models.PaymentObligation, error) {
	var p models.PaymentObligation
	var id, leaseID, due, status string
	var amount int64
	var paidAt sql.NullTime

	err := row.Scan(&id, &leaseID, &due, &amount, &status, &paidAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	if p.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if p.LeaseID, err = parseID(leaseID); err != nil {
		return nil, err
	}
	if p.DueDate, err = parseDate(due); err != nil {
		return nil, err
	}
	p.Amount = models.Cents(amount)
	p.Status = models.PaymentStatus(status)
	p.PaidAt = timePtr(paidAt)

	return &p, nil
}

// LateFeeRepository provides late fee data access
type LateFeeRepository struct {
	db querier
}

// NewLateFeeRepository creates a new late fee repository
func NewLateFeeRepository(db *DB) *LateFeeRepository {
	return &LateFeeRepository{db: db}
}

const lateFeeColumns = `id, lease_id, payment_id, date_applied, amount, waived, created_at`

// Exists reports whether a fee was already applied for the obligation on day
func (r *LateFeeRepository) Exists(ctx context.Context, leaseID, paymentID uuid.UUID, day time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM late_fees WHERE lease_id = ? AND payment_id = ? AND date_applied = ?`,
		leaseID.String(), paymentID.String(), formatDate(day),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check late fee: %w", err)
	}
	return count > 0, nil
}

// Create inserts a fee. A second fee for the same (lease, payment, day)
// fails with apperr.ErrConflict.
func (r *LateFeeRepository) Create(ctx context.Context, fee *models.LateFee) error {
	query := `INSERT INTO late_fees (` + lateFeeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		fee.ID.String(),
		fee.LeaseID.String(),
		fee.PaymentID.String(),
		formatDate(fee.DateApplied),
		int64(fee.Amount),
		fee.Waived,
		fee.CreatedAt,
	)
	if err != nil {
		return conflictOr(err, "Late fee already applied for this day.", "create late fee")
	}
	return nil
}

// ListByLease returns a lease's fees, most recent day first
func (r *LateFeeRepository) ListByLease(ctx context.Context, leaseID uuid.UUID) ([]models.LateFee, error) {
	query := `SELECT ` + lateFeeColumns + ` FROM late_fees WHERE lease_id = ? ORDER BY date_applied DESC`
	return r.list(ctx, query, leaseID.String())
}

// ListByPayment returns the fees applied against one obligation, oldest first
func (r *LateFeeRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.LateFee, error) {
	query := `SELECT ` + lateFeeColumns + ` FROM late_fees WHERE payment_id = ? ORDER BY date_applied`
	return r.list(ctx, query, paymentID.String())
}

// Waive marks a fee as waived
func (r *LateFeeRepository) Waive(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE late_fees SET waived = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to waive late fee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to waive late fee: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("Late fee not found.")
	}
	return nil
}

func (r *LateFeeRepository) list(ctx context.Context, query string, args ...any) ([]models.LateFee, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list late fees: %w", err)
	}
	defer rows.Close()

	var fees []models.LateFee
	for rows.Next() {
		var f models.LateFee
		var id, leaseID, paymentID, day string
		var amount int64
		if err := rows.Scan(&id, &leaseID, &paymentID, &day, &amount, &f.Waived, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan late fee: %w", err)
		}
		if f.ID, err = parseID(id); err != nil {
			return nil, err
		}
		if f.LeaseID, err = parseID(leaseID); err != nil {
			return nil, err
		}
		if f.PaymentID, err = parseID(paymentID); err != nil {
			return nil, err
		}
		if f.DateApplied, err = parseDate(day); err != nil {
			return nil, err
		}
		f.Amount = models.Cents(amount)
		fees = append(fees, f)
	}
	return fees, rows.Err()
}
