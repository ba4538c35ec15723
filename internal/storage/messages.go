package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/models"
)

// MessageRepository stores SMS history and the customer activity log
type MessageRepository struct {
	db querier
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *MessageRepository) WithTx(tx *sql.Tx) *MessageRepository {
	return &MessageRepository{db: tx}
}

// CreateSms inserts an SMS record
func (r *MessageRepository) CreateSms(ctx context.Context, m *models.SmsMessage) error {
	query := `
		INSERT INTO sms_messages (id, customer_id, direction, from_e164, to_e164, body, provider, provider_sid, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(),
		m.CustomerID.String(),
		string(m.Direction),
		m.FromE164,
		m.ToE164,
		m.Body,
		m.Provider,
		nullString(m.ProviderSID),
		m.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sms: %w", err)
	}
	return nil
}

// ListSmsByCustomer returns a customer's messages, newest first
func (r *MessageRepository) ListSmsByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.SmsMessage, error) {
	query := `
		SELECT id, customer_id, direction, from_e164, to_e164, body, provider, provider_sid, sent_at
		FROM sms_messages WHERE customer_id = ? ORDER BY sent_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, customerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list sms: %w", err)
	}
	defer rows.Close()

	var messages []models.SmsMessage
	for rows.Next() {
		var m models.SmsMessage
		var id, cid, direction string
		var sid sql.NullString
		if err := rows.Scan(&id, &cid, &direction, &m.FromE164, &m.ToE164, &m.Body, &m.Provider, &sid, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan sms: %w", err)
		}
		if m.ID, err = parseID(id); err != nil {
			return nil, err
		}
		m.CustomerID = customerID
		m.Direction = models.SmsDirection(direction)
		m.ProviderSID = sid.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateEvent inserts an activity log entry
func (r *MessageRepository) CreateEvent(ctx context.Context, e *models.CustomerEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO customer_events (id, customer_id, type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), e.CustomerID.String(), string(e.Type), nullString(string(e.Payload)), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer event: %w", err)
	}
	return nil
}

// ListEventsByCustomer returns a customer's activity, newest first
func (r *MessageRepository) ListEventsByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CustomerEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, payload, created_at FROM customer_events WHERE customer_id = ? ORDER BY created_at DESC`,
		customerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer events: %w", err)
	}
	defer rows.Close()

	var events []models.CustomerEvent
	for rows.Next() {
		var e models.CustomerEvent
		var id, eventType string
		var payload sql.NullString
		if err := rows.Scan(&id, &eventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer event: %w", err)
		}
		if e.ID, err = parseID(id); err != nil {
			return nil, err
		}
		e.CustomerID = customerID
		e.Type = models.EventType(eventType)
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
