// Package customers manages hirer records and their portal accounts
package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
	"github.com/asjpl/pcl-portal/internal/services/email"
	"github.com/asjpl/pcl-portal/internal/services/sms"
	"github.com/asjpl/pcl-portal/internal/storage"
)

var (
	ErrEmailExists      = apperr.Conflict("Email already exists.")
	ErrPhoneExists      = apperr.Conflict("Phone already exists.")
	ErrCustomerNotFound = apperr.NotFound("Customer not found.")
)

// Service handles customer onboarding and lookups
type Service struct {
	db        *storage.DB
	users     *storage.UserRepository
	customers *storage.CustomerRepository
	leases    *storage.LeaseRepository
	messages  *storage.MessageRepository
	auth      *auth.Service
	mailer    email.Sender
	brand     email.Brand
}

// NewService creates a customer service. mailer may be nil, in which case
// account emails are reported as not sent.
func NewService(db *storage.DB, authService *auth.Service, mailer email.Sender, brand email.Brand) *Service {
	return &Service{
		db:        db,
		users:     storage.NewUserRepository(db),
		customers: storage.NewCustomerRepository(db),
		leases:    storage.NewLeaseRepository(db),
		messages:  storage.NewMessageRepository(db),
		auth:      authService,
		mailer:    mailer,
		brand:     brand,
	}
}

// CreateInput is the admin onboarding form
type CreateInput struct {
	CompanyName          string `json:"companyName"`
	FullName             string `json:"fullName"`
	DriversLicenceNumber string `json:"driversLicenceNumber"`
	DriversLicenceExpiry string `json:"driversLicenceExpiry"`
	DriversLicenceState  string `json:"driversLicenceState"`
	DateOfBirth          string `json:"dateOfBirth"`
	AddressLine1         string `json:"addressLine1"`
	AddressLine2         string `json:"addressLine2"`
	Suburb               string `json:"suburb"`
	State                string `json:"state"`
	Postcode             string `json:"postcode"`
	Phone                string `json:"phone"`
	Email                string `json:"email"`
}

// CreateResult reports the created account and whether the welcome email went out
type CreateResult struct {
	User         *models.User     `json:"user"`
	Customer     *models.Customer `json:"customer"`
	TempPassword string           `json:"-"`
	EmailSent    bool             `json:"emailSent"`
	EmailError   string           `json:"emailError,omitempty"`
}

type requiredField struct {
	label string
	value string
}

func (in CreateInput) validate(phoneE164, emailAddr string) error {
	fields := []requiredField{
		{"Customer / Hirer Name", in.FullName},
		{"Drivers Licence Number", in.DriversLicenceNumber},
		{"Drivers Licence expiry", in.DriversLicenceExpiry},
		{"Drivers Licence state", in.DriversLicenceState},
		{"Date of Birth", in.DateOfBirth},
		{"Address Line 1", in.AddressLine1},
		{"Suburb", in.Suburb},
		{"State", in.State},
		{"Postcode", in.Postcode},
		{"Phone Number", phoneE164},
		{"Email Address", emailAddr},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Validation(f.label + " is required.")
		}
	}
	return nil
}

func parseDay(label, value string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperr.Validation(label + " must be a date (YYYY-MM-DD).")
	}
	return t, nil
}

// Create registers a customer with a portal login. The user and customer
// records are written in one transaction; the welcome email is sent after
// commit and its failure is reported rather than returned.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	emailAddr := auth.NormalizeEmail(in.Email)
	phone := sms.NormalizeAUPhone(in.Phone)
	if err := in.validate(phone, emailAddr); err != nil {
		return nil, err
	}
	dob, err := parseDay("Date of Birth", in.DateOfBirth)
	if err != nil {
		return nil, err
	}
	licenceExpiry, err := parseDay("Drivers Licence expiry", in.DriversLicenceExpiry)
	if err != nil {
		return nil, err
	}

	if exists, err := s.users.EmailExists(ctx, emailAddr); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrEmailExists
	}
	if exists, err := s.customers.PhoneExists(ctx, phone); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrPhoneExists
	}

	tempPassword, err := auth.GenerateTempPassword()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(emailAddr, hash, models.RoleCustomer)
	issuedAt := user.CreatedAt
	user.MustResetPassword = true
	user.TempPasswordIssuedAt = &issuedAt

	customer := &models.Customer{
		ID:                   uuid.New(),
		UserID:               user.ID,
		CompanyName:          strings.TrimSpace(in.CompanyName),
		FullName:             strings.TrimSpace(in.FullName),
		DateOfBirth:          dob,
		AddressLine1:         strings.TrimSpace(in.AddressLine1),
		AddressLine2:         strings.TrimSpace(in.AddressLine2),
		Suburb:               strings.TrimSpace(in.Suburb),
		State:                strings.TrimSpace(in.State),
		Postcode:             strings.TrimSpace(in.Postcode),
		PhoneE164:            phone,
		Email:                emailAddr,
		DriversLicenceNumber: strings.TrimSpace(in.DriversLicenceNumber),
		DriversLicenceState:  strings.TrimSpace(in.DriversLicenceState),
		DriversLicenceExpiry: licenceExpiry,
		CreatedAt:            user.CreatedAt,
		UpdatedAt:            user.CreatedAt,
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return ErrEmailExists
			}
			return err
		}
		if err := s.customers.WithTx(tx).Create(ctx, customer); err != nil {
			return err
		}
		return s.messages.WithTx(tx).CreateEvent(ctx, models.NewCustomerEvent(customer.ID, models.EventCustomerCreated, map[string]any{
			"userId": user.ID,
			"email":  emailAddr,
		}))
	})
	if err != nil {
		return nil, err
	}

	result := &CreateResult{User: user, Customer: customer, TempPassword: tempPassword}
	result.EmailSent, result.EmailError = s.deliver(ctx, emailAddr, email.Welcome(s.brand, emailAddr, tempPassword))
	return result, nil
}

// TempPasswordResult reports a re-issued temporary password
type TempPasswordResult struct {
	CustomerID   uuid.UUID `json:"customerId"`
	Email        string    `json:"email"`
	TempPassword string    `json:"-"`
	EmailSent    bool      `json:"emailSent"`
	EmailError   string    `json:"emailError,omitempty"`
}

// IssueTemporaryPassword re-issues a temporary password for a customer and
// emails it. The account is forced back through the reset flow.
func (s *Service) IssueTemporaryPassword(ctx context.Context, customerID uuid.UUID) (*TempPasswordResult, error) {
	customer, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	user, err := s.auth.GetUser(ctx, customer.UserID)
	if err != nil {
		return nil, err
	}

	var tempPassword string
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		tempPassword, err = s.auth.IssueTemporaryPasswordTx(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		return s.messages.WithTx(tx).CreateEvent(ctx, models.NewCustomerEvent(customer.ID, models.EventTempPasswordIssued, map[string]any{
			"userId": user.ID,
		}))
	})
	if err != nil {
		return nil, err
	}

	result := &TempPasswordResult{CustomerID: customer.ID, Email: user.Email, TempPassword: tempPassword}
	result.EmailSent, result.EmailError = s.deliver(ctx, user.Email, email.TemporaryPassword(s.brand, user.Email, tempPassword))
	return result, nil
}

func (s *Service) deliver(ctx context.Context, to string, content email.Content) (bool, string) {
	if s.mailer == nil {
		return false, "Email is not configured."
	}
	msg, err := email.Compose(s.brand, to, content)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		slog.Error("account email failed", "to", to, "subject", content.Subject, "error", err)
		return false, apperr.Message(err)
	}
	return true, ""
}

// Get returns a customer or ErrCustomerNotFound
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c, err := s.customers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

// GetByUser returns the customer record behind a customer login
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	c, err := s.customers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

// List returns all customers, newest first
func (s *Service) List(ctx context.Context) ([]*models.Customer, error) {
	return s.customers.List(ctx)
}

// Detail is a customer with leases and message history
type Detail struct {
	Customer *models.Customer       `json:"customer"`
	Leases   []*models.Lease        `json:"leases"`
	Sms      []models.SmsMessage    `json:"sms"`
	Events   []models.CustomerEvent `json:"events"`
}

// GetDetail loads a customer with leases, SMS history and events
func (s *Service) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	leases, err := s.leases.ListByCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load leases: %w", err)
	}
	messages, err := s.messages.ListSmsByCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.messages.ListEventsByCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Customer: c, Leases: leases, Sms: messages, Events: events}, nil
}
