// Package email renders branded emails and delivers them over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

// EncryptionMode selects how the SMTP connection is secured
type EncryptionMode string

const (
	EncNone     EncryptionMode = "NONE"
	EncStartTLS EncryptionMode = "STARTTLS"
	EncSSLTLS   EncryptionMode = "SSL/TLS"
)

// Message is a rendered email ready to send
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string // empty sends HTML only
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTP sends mail through an SMTP relay
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	FromAddr string
	FromName string
	ReplyTo  string
	Enc      EncryptionMode
}

// NewSMTP creates an SMTP sender. It returns nil when host is empty, which
// callers treat as email being disabled.
func NewSMTP(host string, port int, user, pass, fromAddr, fromName, replyTo, enc string) *SMTP {
	if host == "" {
		return nil
	}
	mode := EncryptionMode(strings.ToUpper(strings.TrimSpace(enc)))
	if mode != EncNone && mode != EncStartTLS && mode != EncSSLTLS {
		mode = EncStartTLS
	}
	return &SMTP{
		Host:     host,
		Port:     port,
		Username: user,
		Password: pass,
		FromAddr: fromAddr,
		FromName: fromName,
		ReplyTo:  replyTo,
		Enc:      mode,
	}
}

// Send delivers msg. Every failure is an IntegrationError.
func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	if s == nil {
		return apperr.Integration("Email is not configured.", nil)
	}
	if len(msg.To) == 0 {
		return apperr.Integration("Email recipient is missing.", nil)
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = s.ReplyTo
	}

	body, err := buildMIMEMessage(s.FromName, s.FromAddr, msg)
	if err != nil {
		return apperr.Integration("Email could not be built.", err)
	}
	if err := s.deliver(ctx, msg.To, body); err != nil {
		return apperr.Integration("Email send failed.", err)
	}
	return nil
}

func (s *SMTP) deliver(ctx context.Context, recipients []string, body []byte) error {
	d := net.Dialer{Timeout: 15 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			d.Timeout = remaining
		}
	}

	address := net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)

	var conn net.Conn
	var err error
	if s.Enc == EncSSLTLS {
		conn, err = tls.DialWithDialer(&d, "tcp", address, &tls.Config{ServerName: s.Host})
	} else {
		conn, err = d.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("new client: %w", err)
	}
	defer c.Close()

	if s.Enc == EncStartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.Username != "" {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(s.FromAddr); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return c.Quit()
}

// buildMIMEMessage produces a UTF-8 message; with a text part it is
// multipart/alternative, otherwise a single HTML part.
func buildMIMEMessage(fromName, fromAddr string, msg *Message) ([]byte, error) {
	from := fromAddr
	if strings.TrimSpace(fromName) != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), fromAddr)
	}

	var buf bytes.Buffer
	writeHeader := func(k, v string) {
		buf.WriteString(k + ": " + v + "\r\n")
	}
	writeHeader("From", from)
	writeHeader("To", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		writeHeader("Reply-To", msg.ReplyTo)
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", time.Now().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")

	if msg.Text == "" {
		writeHeader("Content-Type", "text/html; charset=UTF-8")
		writeHeader("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQP(&buf, msg.HTML); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	} {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", part.contentType)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if err := writeQP(pw, part.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeQP(w interface{ Write([]byte) (int, error) }, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(s)); err != nil {
		return err
	}
	return qp.Close()
}
