package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/models"
)

// CustomerRepository provides customer data access
type CustomerRepository struct {
	db querier
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *CustomerRepository) WithTx(tx *sql.Tx) *CustomerRepository {
	return &CustomerRepository{db: tx}
}

const customerColumns = `id, user_id, company_name, full_name, date_of_birth, address_line1, address_line2,
	suburb, state, postcode, phone_e164, email, drivers_licence_number, drivers_licence_state,
	drivers_licence_expiry, created_at, updated_at`

// Create inserts a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID.String(),
		c.UserID.String(),
		nullString(c.CompanyName),
		c.FullName,
		formatDate(c.DateOfBirth),
		c.AddressLine1,
		nullString(c.AddressLine2),
		c.Suburb,
		c.State,
		c.Postcode,
		c.PhoneE164,
		c.Email,
		c.DriversLicenceNumber,
		c.DriversLicenceState,
		formatDate(c.DriversLicenceExpiry),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "Phone already exists.", "create customer")
	}
	return nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = ?`
	return r.scanCustomer(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByUserID retrieves the customer attached to a user
func (r *CustomerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE user_id = ?`
	return r.scanCustomer(r.db.QueryRowContext(ctx, query, userID.String()))
}

// GetByPhone retrieves a customer by normalized phone number
func (r *CustomerRepository) GetByPhone(ctx context.Context, phoneE164 string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE phone_e164 = ?`
	return r.scanCustomer(r.db.QueryRowContext(ctx, query, phoneE164))
}

// PhoneExists checks if a phone number is already in use
func (r *CustomerRepository) PhoneExists(ctx context.Context, phoneE164 string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers WHERE phone_e164 = ?", phoneE164).Scan(&count)
	return count > 0, err
}

// List returns all customers, newest first
func (r *CustomerRepository) List(ctx context.Context) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := r.scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *CustomerRepository) scanCustomer(row scanner) (*models.Customer, error) {
	var c models.Customer
	var id, userID, dob, licenceExpiry string
	var company, line2 sql.NullString

	err := row.Scan(
		&id, &userID, &company, &c.FullName, &dob, &c.AddressLine1, &line2,
		&c.Suburb, &c.State, &c.Postcode, &c.PhoneE164, &c.Email,
		&c.DriversLicenceNumber, &c.DriversLicenceState, &licenceExpiry,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}

	if c.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if c.UserID, err = parseID(userID); err != nil {
		return nil, err
	}
	if c.DateOfBirth, err = parseDate(dob); err != nil {
		return nil, err
	}
	if c.DriversLicenceExpiry, err = parseDate(licenceExpiry); err != nil {
		return nil, err
	}
	c.CompanyName = company.String
	c.AddressLine2 = line2.String

	return &c, nil
}

// VehicleRepository provides vehicle data access
type VehicleRepository struct {
	db querier
}

// NewVehicleRepository creates a new vehicle repository
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, rego_number, state, category, current_kms, title, slug, make, model, year,
	colour, body_type, fuel_type, vin, regcheck_raw, regcheck_verified_at, created_at`

// Create inserts a new vehicle
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (` + vehicleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var year sql.NullInt64
	if v.Year != nil {
		year = sql.NullInt64{Int64: int64(*v.Year), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		v.ID.String(),
		v.RegoNumber,
		nullString(v.State),
		nullString(v.Category),
		v.CurrentKms,
		v.Title,
		v.Slug,
		nullString(v.Make),
		nullString(v.Model),
		year,
		nullString(v.Colour),
		nullString(v.BodyType),
		nullString(v.FuelType),
		nullString(v.VIN),
		nullString(string(v.RegcheckRaw)),
		nullTime(v.RegcheckVerifiedAt),
		v.CreatedAt,
	)
	if err != nil {
		return conflictOr(err, "A vehicle with this registration already exists.", "create vehicle")
	}
	return nil
}

// GetByID retrieves a vehicle by ID
func (r *VehicleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = ?`
	return r.scanVehicle(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetBySlug retrieves a vehicle by its URL slug
func (r *VehicleRepository) GetBySlug(ctx context.Context, slug string) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE slug = ?`
	return r.scanVehicle(r.db.QueryRowContext(ctx, query, slug))
}

// GetByRego retrieves a vehicle by registration number
func (r *VehicleRepository) GetByRego(ctx context.Context, rego string) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE rego_number = ?`
	return r.scanVehicle(r.db.QueryRowContext(ctx, query, rego))
}

// List returns all vehicles, newest first
func (r *VehicleRepository) List(ctx context.Context) ([]*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := r.scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (r *VehicleRepository) scanVehicle(row scanner) (*models.Vehicle, error) {
	var v models.Vehicle
	var id string
	var state, category, carMake, model, colour, bodyType, fuelType, vin, raw sql.NullString
	var year sql.NullInt64
	var verifiedAt sql.NullTime

	err := row.Scan(
		&id, &v.RegoNumber, &state, &category, &v.CurrentKms, &v.Title, &v.Slug,
		&carMake, &model, &year, &colour, &bodyType, &fuelType, &vin, &raw, &verifiedAt, &v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan vehicle: %w", err)
	}

	if v.ID, err = parseID(id); err != nil {
		return nil, err
	}
	v.State = state.String
	v.Category = category.String
	v.Make = carMake.String
	v.Model = model.String
	v.Colour = colour.String
	v.BodyType = bodyType.String
	v.FuelType = fuelType.String
	v.VIN = vin.String
	if year.Valid {
		y := int(year.Int64)
		v.Year = &y
	}
	if raw.Valid {
		v.RegcheckRaw = []byte(raw.String)
	}
	v.RegcheckVerifiedAt = timePtr(verifiedAt)

	return &v, nil
}
