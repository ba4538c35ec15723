package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Customer is the hirer record attached to a customer user
type Customer struct {
	ID                   uuid.UUID `json:"id"`
	UserID               uuid.UUID `json:"userId"`
	CompanyName          string    `json:"companyName,omitempty"`
	FullName             string    `json:"fullName"`
	DateOfBirth          time.Time `json:"dateOfBirth"`
	AddressLine1         string    `json:"addressLine1"`
	AddressLine2         string    `json:"addressLine2,omitempty"`
	Suburb               string    `json:"suburb"`
	State                string    `json:"state"`
	Postcode             string    `json:"postcode"`
	PhoneE164            string    `json:"phoneE164"`
	Email                string    `json:"email"`
	DriversLicenceNumber string    `json:"driversLicenceNumber"`
	DriversLicenceState  string    `json:"driversLicenceState"`
	DriversLicenceExpiry time.Time `json:"driversLicenceExpiry"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// DisplayName is the full name, with the company in brackets when present
func (c *Customer) DisplayName() string {
	if c.CompanyName != "" {
		return c.FullName + " (" + c.CompanyName + ")"
	}
	return c.FullName
}

// Vehicle is a car in the leasing fleet
type Vehicle struct {
	ID                 uuid.UUID       `json:"id"`
	RegoNumber         string          `json:"regoNumber"`
	State              string          `json:"state,omitempty"`
	Category           string          `json:"category,omitempty"`
	CurrentKms         int             `json:"currentKms"`
	Title              string          `json:"title"`
	Slug               string          `json:"slug"`
	Make               string          `json:"make,omitempty"`
	Model              string          `json:"model,omitempty"`
	Year               *int            `json:"year,omitempty"`
	Colour             string          `json:"colour,omitempty"`
	BodyType           string          `json:"bodyType,omitempty"`
	FuelType           string          `json:"fuelType,omitempty"`
	VIN                string          `json:"vin,omitempty"`
	RegcheckRaw        json.RawMessage `json:"regcheckRaw,omitempty"`
	RegcheckVerifiedAt *time.Time      `json:"regcheckVerifiedAt,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of non-alphanumerics to one dash
func Slugify(s string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(slug, "-")
}

// SmsDirection distinguishes sent from received messages
type SmsDirection string

const (
	SmsInbound  SmsDirection = "inbound"
	SmsOutbound SmsDirection = "outbound"
)

// SmsMessage is one text message exchanged with a customer
type SmsMessage struct {
	ID          uuid.UUID    `json:"id"`
	CustomerID  uuid.UUID    `json:"customerId"`
	Direction   SmsDirection `json:"direction"`
	FromE164    string       `json:"fromE164"`
	ToE164      string       `json:"toE164"`
	Body        string       `json:"body"`
	Provider    string       `json:"provider"`
	ProviderSID string       `json:"providerSid,omitempty"`
	SentAt      time.Time    `json:"sentAt"`
}

// EventType names an entry in a customer's activity log
type EventType string

const (
	EventCustomerCreated    EventType = "customer_created"
	EventTempPasswordIssued EventType = "temp_password_issued"
	EventSmsSent            EventType = "sms_sent"
	EventSmsReceived        EventType = "sms_received"
	EventEmailSent          EventType = "email_sent"
)

// CustomerEvent is an audit-style record of something that happened to a customer
type CustomerEvent struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID uuid.UUID       `json:"customerId"`
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// NewCustomerEvent marshals payload into a new event. A payload that cannot
// be marshalled is recorded as null.
func NewCustomerEvent(customerID uuid.UUID, eventType EventType, payload any) *CustomerEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return &CustomerEvent{
		ID:         uuid.New(),
		CustomerID: customerID,
		Type:       eventType,
		Payload:    raw,
		CreatedAt:  time.Now().UTC(),
	}
}
