// Package regcheck looks up Australian registrations through the RegCheck
// CheckAustralia endpoint.
package regcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

const (
	defaultBaseURL = "https://www.regcheck.org.uk/api/reg.asmx"

	// DefaultState is used by the quick lookup form when no state is given
	DefaultState = "WA"
)

// ErrNotConfigured is returned when REGCHECK_USERNAME is not set
var ErrNotConfigured = apperr.New(apperr.ErrConfiguration, "Missing REGCHECK_USERNAME")

// Client calls the RegCheck API
type Client struct {
	username   string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a RegCheck client
func NewClient(username string) *Client {
	return &Client{
		username:   username,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithBaseURL points the client at another endpoint
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Lookup fetches the vehicle record for rego in state. The decoded payload is
// returned as-is so callers can store it verbatim.
func (c *Client) Lookup(ctx context.Context, rego, state string) (json.RawMessage, error) {
	if c == nil || c.username == "" {
		return nil, ErrNotConfigured
	}
	rego = strings.ToUpper(strings.TrimSpace(rego))
	state = strings.ToUpper(strings.TrimSpace(state))
	if rego == "" || state == "" {
		return nil, apperr.Validation("regoNumber and state are required")
	}

	q := url.Values{}
	q.Set("RegistrationNumber", rego)
	q.Set("State", state)
	q.Set("username", c.username)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/CheckAustralia?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create regcheck request: %w", err)
	}
	req.Header.Set("Accept", "text/xml,*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Integration("RegCheck request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, apperr.Integration("RegCheck request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Integration("RegCheck request failed",
			fmt.Errorf("status %d: %s", resp.StatusCode, preview(string(body), 300)))
	}

	data, ok := ExtractVehicleJSON(string(body))
	if !ok {
		return nil, apperr.Integration("Could not parse RegCheck response",
			fmt.Errorf("body: %s", preview(string(body), 500)))
	}
	return data, nil
}

var vehicleJSONElement = regexp.MustCompile(`(?is)<vehicleJson>(.*?)</vehicleJson>`)

// ExtractVehicleJSON pulls the JSON document out of an XML response. The
// <vehicleJson> element is preferred; otherwise the outermost brace span is
// tried.
func ExtractVehicleJSON(xml string) (json.RawMessage, bool) {
	if m := vehicleJSONElement.FindStringSubmatch(xml); m != nil {
		candidate := strings.TrimSpace(html.UnescapeString(m[1]))
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}

	first := strings.Index(xml, "{")
	last := strings.LastIndex(xml, "}")
	if first == -1 || last <= first {
		return nil, false
	}
	candidate := xml[first : last+1]
	if !json.Valid([]byte(candidate)) {
		candidate = html.UnescapeString(candidate)
		if !json.Valid([]byte(candidate)) {
			return nil, false
		}
	}
	return json.RawMessage(candidate), true
}

// Summary is the handful of fields the vehicle form pre-fills
type Summary struct {
	Description string `json:"description,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	Year        *int   `json:"year,omitempty"`
	Colour      string `json:"colour,omitempty"`
	BodyType    string `json:"bodyType,omitempty"`
	FuelType    string `json:"fuelType,omitempty"`
	VIN         string `json:"vin,omitempty"`
}

// Summarize picks known fields from a RegCheck payload. Values may be plain
// strings or {"CurrentTextValue": ...} objects depending on the field.
func Summarize(raw json.RawMessage) Summary {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Summary{}
	}

	s := Summary{
		Description: text(doc["Description"]),
		Make:        firstText(doc, "CarMake", "MakeDescription", "Make"),
		Model:       firstText(doc, "CarModel", "ModelDescription", "Model"),
		Colour:      firstText(doc, "Colour", "Color"),
		BodyType:    firstText(doc, "BodyStyle", "Body"),
		FuelType:    firstText(doc, "FuelType", "Fuel"),
		VIN:         firstText(doc, "VechileIdentificationNumber", "VehicleIdentificationNumber", "VIN"),
	}
	if y, err := strconv.Atoi(firstText(doc, "RegistrationYear", "Year")); err == nil && y > 1900 {
		s.Year = &y
	}
	return s
}

func firstText(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := text(doc[k]); v != "" {
			return v
		}
	}
	return ""
}

func text(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		return text(val["CurrentTextValue"])
	default:
		return ""
	}
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
