// Package sms sends and parses text messages through ClickSend.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

const (
	// Provider is the name recorded against stored messages
	Provider = "clicksend"
	// DefaultFrom is the business number messages are sent from
	DefaultFrom = "+61427526002"

	defaultBaseURL = "https://rest.clicksend.com"
)

// Client sends SMS through the ClickSend REST API
type Client struct {
	username   string
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a ClickSend client
func NewClient(username, apiKey, from string) *Client {
	if from == "" {
		from = DefaultFrom
	}
	return &Client{
		username:   username,
		apiKey:     apiKey,
		from:       from,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL points the client at another endpoint, e.g. a test server
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// From returns the normalized sender number
func (c *Client) From() string { return NormalizeAUPhone(c.from) }

// Configured reports whether credentials are present
func (c *Client) Configured() bool {
	return c != nil && c.username != "" && c.apiKey != ""
}

// SendResult is the outcome of a successful send
type SendResult struct {
	ProviderSID string
	To          string
	From        string
}

type sendRequest struct {
	Messages []sendMessage `json:"messages"`
}

type sendMessage struct {
	Source string `json:"source"`
	Body   string `json:"body"`
	To     string `json:"to"`
	From   string `json:"from"`
}

type sendResponse struct {
	ResponseMsg string `json:"response_msg"`
	Error       string `json:"error"`
	Response    struct {
		Error string `json:"error"`
	} `json:"response"`
	MessageID string `json:"message_id"`
	Data      struct {
		Messages []struct {
			MessageID string `json:"message_id"`
			ID        string `json:"id"`
		} `json:"messages"`
	} `json:"data"`
}

// Send delivers body to the number to. All failures are IntegrationErrors.
func (c *Client) Send(ctx context.Context, to, body string) (*SendResult, error) {
	if !c.Configured() {
		return nil, apperr.Integration("Missing ClickSend credentials (CLICKSEND_USERNAME / CLICKSEND_API_KEY).", nil)
	}

	toE164 := NormalizeAUPhone(to)
	body = strings.TrimSpace(body)
	if toE164 == "" || body == "" {
		return nil, apperr.Integration("Missing to/body.", nil)
	}
	from := c.From()

	payload, err := json.Marshal(sendRequest{Messages: []sendMessage{{
		Source: "pcl-portal",
		Body:   body,
		To:     toE164,
		From:   from,
	}}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/sms/send", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create sms request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Integration("ClickSend send failed.", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed sendResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := firstNonEmpty(parsed.Response.Error, parsed.Error, parsed.ResponseMsg, "ClickSend send failed.")
		return nil, apperr.Integration(msg, fmt.Errorf("clicksend status %d", resp.StatusCode))
	}

	sid := parsed.MessageID
	if len(parsed.Data.Messages) > 0 {
		sid = firstNonEmpty(parsed.Data.Messages[0].MessageID, parsed.Data.Messages[0].ID, sid)
	}

	return &SendResult{ProviderSID: sid, To: toE164, From: from}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
