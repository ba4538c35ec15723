package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"
)

//go:embed templates/layout.html
var templateFS embed.FS

var layout = template.Must(template.New("layout.html").Option("missingkey=zero").ParseFS(templateFS, "templates/layout.html"))

// MaxQuickLinks caps the quick link row
const MaxQuickLinks = 6

// Brand holds the product details shown in every email
type Brand struct {
	ProductName  string
	WebsiteURL   string
	SupportEmail string
	PortalURL    string
}

// Link is a labelled URL
type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Content describes one branded email
type Content struct {
	Subject    string
	Title      string
	Subtitle   string
	Body       string // plain text; blank lines separate paragraphs
	CTA        *Link
	QuickLinks []Link
	FooterNote string
}

type layoutData struct {
	Content
	Brand       Brand
	Preheader   string
	Paragraphs  [][]string
	WebsiteHost string
	Year        int
}

var blankLines = regexp.MustCompile(`\n{2,}`)

// Compose renders content into a message with an HTML body and a plain text
// alternative.
func Compose(brand Brand, to string, c Content) (*Message, error) {
	links := make([]Link, 0, len(c.QuickLinks))
	for _, l := range c.QuickLinks {
		l.Label, l.Href = strings.TrimSpace(l.Label), strings.TrimSpace(l.Href)
		if l.Label != "" && l.Href != "" {
			links = append(links, l)
		}
	}
	if len(links) > MaxQuickLinks {
		links = links[:MaxQuickLinks]
	}
	c.QuickLinks = links
	if c.CTA != nil && (c.CTA.Label == "" || c.CTA.Href == "") {
		c.CTA = nil
	}

	preheader := firstNonEmpty(c.Subtitle, c.Subject, c.Title)
	if len(preheader) > 120 {
		preheader = preheader[:120]
	}

	data := layoutData{
		Content:     c,
		Brand:       brand,
		Preheader:   preheader,
		Paragraphs:  paragraphs(c.Body),
		WebsiteHost: stripProtocol(brand.WebsiteURL),
		Year:        time.Now().Year(),
	}

	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}

	return &Message{
		To:      []string{to},
		Subject: c.Subject,
		HTML:    buf.String(),
		Text:    plainText(brand, c),
	}, nil
}

// paragraphs splits text on blank lines, then each paragraph into lines
func paragraphs(text string) [][]string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	var out [][]string
	for _, block := range blankLines.Split(text, -1) {
		out = append(out, strings.Split(block, "\n"))
	}
	return out
}

func plainText(brand Brand, c Content) string {
	lines := []string{c.Title}
	if c.Subtitle != "" {
		lines = append(lines, c.Subtitle)
	}
	lines = append(lines, "", strings.TrimSpace(c.Body), "")
	if c.CTA != nil {
		lines = append(lines, c.CTA.Label+": "+c.CTA.Href)
	}
	lines = append(lines, "Website: "+brand.WebsiteURL, "Support: "+brand.SupportEmail)
	return strings.Join(lines, "\n")
}

func stripProtocol(url string) string {
	lower := strings.ToLower(url)
	for _, p := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, p) {
			return url[len(p):]
		}
	}
	return url
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Welcome is sent when an administrator creates a customer account
func Welcome(brand Brand, loginEmail, tempPassword string) Content {
	body := strings.Join([]string{
		"Hi,",
		"",
		"Your " + brand.ProductName + " portal account has been created.",
		"",
		"Login email: " + loginEmail,
		"Temporary password: " + tempPassword,
		"",
		"For security, you will be required to reset your password on first login.",
	}, "\n")

	return Content{
		Subject:  "Welcome to " + brand.ProductName + " - Portal Access",
		Title:    "Welcome - your portal access is ready",
		Subtitle: "Use the details below to sign in. You'll be prompted to reset your password.",
		Body:     body,
		CTA:      &Link{Label: "Open portal", Href: brand.PortalURL},
		QuickLinks: []Link{
			{Label: "Visit website", Href: brand.WebsiteURL},
			{Label: "Support", Href: "mailto:" + brand.SupportEmail},
		},
		FooterNote: "If you did not request this account, please contact support.",
	}
}

// TemporaryPassword is sent when an administrator issues a new temporary password
func TemporaryPassword(brand Brand, loginEmail, tempPassword string) Content {
	body := strings.Join([]string{
		"Hi,",
		"",
		"A new temporary password has been issued for your " + brand.ProductName + " portal account.",
		"",
		"Login email: " + loginEmail,
		"Temporary password: " + tempPassword,
		"",
		"You will be asked to choose a new password when you sign in.",
	}, "\n")

	return Content{
		Subject:    brand.ProductName + " - Temporary password",
		Title:      "Your temporary password",
		Subtitle:   "Sign in with the details below and choose a new password.",
		Body:       body,
		CTA:        &Link{Label: "Open portal", Href: brand.PortalURL},
		FooterNote: "If you did not expect this email, please contact support.",
	}
}

// DefaultQuickLinks are used when an administrator supplies none
func DefaultQuickLinks(brand Brand) []Link {
	return []Link{
		{Label: "Website", Href: brand.WebsiteURL},
		{Label: "Support", Href: "mailto:" + brand.SupportEmail},
	}
}
