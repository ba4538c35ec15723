package sms

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeAUPhone converts Australian number formats to E.164. Numbers that
// already start with + are kept; anything with no digits becomes "".
func NormalizeAUPhone(input string) string {
	raw := strings.TrimSpace(input)

	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	switch {
	case strings.Trim(s, "+") == "":
		return ""
	case strings.HasPrefix(s, "+"):
		return s
	case strings.HasPrefix(s, "04") && len(s) == 10:
		return "+61" + s[1:]
	case strings.HasPrefix(s, "61") && len(s) >= 11:
		return "+" + s
	case strings.HasPrefix(s, "4") && len(s) == 9:
		return "+61" + s
	default:
		return "+" + s
	}
}

// Inbound is a received message as delivered by the provider webhook
type Inbound struct {
	From        string
	To          string
	Body        string
	ProviderSID string
}

var (
	fromKeys = []string{"from", "From", "source", "sender", "origin", "phone"}
	toKeys   = []string{"to", "To", "destination", "recipient"}
	bodyKeys = []string{"body", "Body", "message", "Message", "content"}
	sidKeys  = []string{"message_id", "messageId", "sms_id", "smsId", "id"}
)

// ParseInbound reads a webhook payload in JSON or form encoding. The
// provider's field names vary, so several aliases are accepted for each
// field. Numbers are normalized; a missing recipient defaults to defaultTo.
func ParseInbound(contentType string, body []byte, defaultTo string) (*Inbound, error) {
	fields, err := decodePayload(contentType, body)
	if err != nil {
		return nil, err
	}

	to := pick(fields, toKeys)
	if to == "" {
		to = defaultTo
	}
	return &Inbound{
		From:        NormalizeAUPhone(pick(fields, fromKeys)),
		To:          NormalizeAUPhone(to),
		Body:        strings.TrimSpace(pick(fields, bodyKeys)),
		ProviderSID: pick(fields, sidKeys),
	}, nil
}

func decodePayload(contentType string, body []byte) (map[string]string, error) {
	isJSON := strings.Contains(contentType, "application/json")
	isForm := strings.Contains(contentType, "application/x-www-form-urlencoded")

	if isJSON || !isForm {
		if fields, err := decodeJSON(body); err == nil {
			return fields, nil
		} else if isJSON {
			return nil, err
		}
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields, nil
}

func decodeJSON(body []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			fields[k] = val
		case float64:
			fields[k] = fmt.Sprintf("%.0f", val)
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return fields, nil
}

func pick(fields map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}
