// Package messaging sends SMS and email to customers and records replies
package messaging

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/email"
	"github.com/asjpl/pcl-portal/internal/services/sms"
	"github.com/asjpl/pcl-portal/internal/storage"
)

// Channel selects how an outbound message is delivered
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

var (
	ErrCustomerNotFound = apperr.NotFound("Customer not found.")
	ErrWebhookToken     = apperr.New(apperr.ErrAuthentication, "Unauthorized")
)

// SmsSender delivers a text message
type SmsSender interface {
	Send(ctx context.Context, to, body string) (*sms.SendResult, error)
}

// Service delivers outbound messages and stores inbound ones
type Service struct {
	customers    *storage.CustomerRepository
	messages     *storage.MessageRepository
	sms          SmsSender
	mailer       email.Sender
	brand        email.Brand
	webhookToken string
	now          func() time.Time
}

// NewService creates a messaging service. mailer may be nil; an empty
// webhookToken accepts every inbound delivery.
func NewService(db *storage.DB, smsSender SmsSender, mailer email.Sender, brand email.Brand, webhookToken string) *Service {
	return &Service{
		customers:    storage.NewCustomerRepository(db),
		messages:     storage.NewMessageRepository(db),
		sms:          smsSender,
		mailer:       mailer,
		brand:        brand,
		webhookToken: webhookToken,
		now:          time.Now,
	}
}

// SendInput is an admin's outbound message
type SendInput struct {
	Channel    Channel      `json:"channel"`
	CustomerID string       `json:"customerId"`
	Body       string       `json:"body"`
	Subject    string       `json:"subject"`
	Title      string       `json:"title"`
	Subtitle   string       `json:"subtitle"`
	CTAHref    string       `json:"ctaHref"`
	CTALabel   string       `json:"ctaLabel"`
	QuickLinks []email.Link `json:"quickLinks"`
}

// SendResult identifies the stored record of an outbound message
type SendResult struct {
	SmsID *uuid.UUID `json:"smsId,omitempty"`
}

// Send delivers a message to a customer. Nothing is recorded when the
// provider rejects it.
func (s *Service) Send(ctx context.Context, adminID uuid.UUID, in SendInput) (*SendResult, error) {
	body := strings.TrimSpace(in.Body)
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, apperr.Validation("customerId is required.")
	}
	if body == "" {
		return nil, apperr.Validation("Message body is required.")
	}
	if in.Channel != ChannelSMS && in.Channel != ChannelEmail {
		return nil, apperr.Validation("channel must be 'sms' or 'email'.")
	}

	customerID, err := uuid.Parse(in.CustomerID)
	if err != nil {
		return nil, ErrCustomerNotFound
	}
	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	if in.Channel == ChannelSMS {
		return s.sendSMS(ctx, adminID, customer, body)
	}
	return &SendResult{}, s.sendEmail(ctx, adminID, customer, body, in)
}

func (s *Service) sendSMS(ctx context.Context, adminID uuid.UUID, c *models.Customer, body string) (*SendResult, error) {
	if s.sms == nil {
		return nil, apperr.Integration("SMS is not configured.", nil)
	}
	sent, err := s.sms.Send(ctx, c.PhoneE164, body)
	if err != nil {
		slog.Warn("sms send failed", "customer_id", c.ID, "error", err)
		return nil, err
	}

	msg := &models.SmsMessage{
		ID:          uuid.New(),
		CustomerID:  c.ID,
		Direction:   models.SmsOutbound,
		FromE164:    sent.From,
		ToE164:      sent.To,
		Body:        body,
		Provider:    sms.Provider,
		ProviderSID: sent.ProviderSID,
		SentAt:      s.now().UTC(),
	}
	if err := s.messages.CreateSms(ctx, msg); err != nil {
		return nil, err
	}
	err = s.messages.CreateEvent(ctx, models.NewCustomerEvent(c.ID, models.EventSmsSent, map[string]any{
		"byAdminUserId": adminID,
		"provider":      sms.Provider,
		"smsId":         msg.ID,
		"to":            sent.To,
		"body":          body,
	}))
	if err != nil {
		return nil, err
	}
	return &SendResult{SmsID: &msg.ID}, nil
}

func (s *Service) sendEmail(ctx context.Context, adminID uuid.UUID, c *models.Customer, body string, in SendInput) error {
	if s.mailer == nil {
		return apperr.Integration("Email is not configured.", nil)
	}

	productName := s.brand.ProductName
	subtitle := strings.TrimSpace(in.Subtitle)
	if subtitle == "" {
		subtitle = "Regarding: " + c.DisplayName()
	}
	content := email.Content{
		Subject:    firstNonEmpty(strings.TrimSpace(in.Subject), "Message from "+productName),
		Title:      firstNonEmpty(strings.TrimSpace(in.Title), "Message from "+productName),
		Subtitle:   subtitle,
		Body:       body,
		QuickLinks: in.QuickLinks,
		FooterNote: "This message was sent via the " + productName + " portal by an authorised administrator.",
	}
	if len(content.QuickLinks) == 0 {
		content.QuickLinks = email.DefaultQuickLinks(s.brand)
	}
	href, label := strings.TrimSpace(in.CTAHref), strings.TrimSpace(in.CTALabel)
	if href != "" && label != "" {
		content.CTA = &email.Link{Label: label, Href: href}
	}

	msg, err := email.Compose(s.brand, c.Email, content)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.Warn("email send failed", "customer_id", c.ID, "error", err)
		return err
	}

	return s.messages.CreateEvent(ctx, models.NewCustomerEvent(c.ID, models.EventEmailSent, map[string]any{
		"byAdminUserId": adminID,
		"to":            c.Email,
		"subject":       content.Subject,
		"title":         content.Title,
		"subtitle":      content.Subtitle,
		"body":          body,
		"cta":           content.CTA,
	}))
}

// CheckWebhookToken verifies the shared token on inbound deliveries
func (s *Service) CheckWebhookToken(token string) error {
	if s.webhookToken == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookToken)) != 1 {
		return ErrWebhookToken
	}
	return nil
}

// InboundResult reports where a received message was filed
type InboundResult struct {
	Unmatched bool       `json:"unmatched,omitempty"`
	SmsID     *uuid.UUID `json:"smsId,omitempty"`
}

// ReceiveInbound files a received SMS against the customer whose phone
// matches the sender. Unknown senders are acknowledged but not stored.
func (s *Service) ReceiveInbound(ctx context.Context, in *sms.Inbound) (*InboundResult, error) {
	if in.From == "" || in.Body == "" {
		return nil, apperr.Validation("Missing from/body")
	}

	customer, err := s.customers.GetByPhone(ctx, in.From)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		slog.Info("inbound sms from unknown number", "from", in.From)
		return &InboundResult{Unmatched: true}, nil
	}

	msg := &models.SmsMessage{
		ID:          uuid.New(),
		CustomerID:  customer.ID,
		Direction:   models.SmsInbound,
		FromE164:    in.From,
		ToE164:      in.To,
		Body:        in.Body,
		Provider:    sms.Provider,
		ProviderSID: in.ProviderSID,
		SentAt:      s.now().UTC(),
	}
	if err := s.messages.CreateSms(ctx, msg); err != nil {
		return nil, err
	}
	err = s.messages.CreateEvent(ctx, models.NewCustomerEvent(customer.ID, models.EventSmsReceived, map[string]any{
		"provider": sms.Provider,
		"smsId":    msg.ID,
		"from":     in.From,
		"body":     in.Body,
	}))
	if err != nil {
		return nil, err
	}
	return &InboundResult{SmsID: &msg.ID}, nil
}

// CustomerMessages returns a customer's SMS history, newest first
func (s *Service) CustomerMessages(ctx context.Context, customerID uuid.UUID) ([]models.SmsMessage, error) {
	return s.messages.ListSmsByCustomer(ctx, customerID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
