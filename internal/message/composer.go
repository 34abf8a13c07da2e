// Package message renders applicant-facing texts and documents and builds
// WhatsApp deep links to deliver them.
package message

import (
	"embed"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/nyaruka/phonenumbers"
)

const (
	TemplateCorrectionsRequested = "corrections_requested"
	TemplateCodeRegenerated      = "code_regenerated"
	TemplateRequestRejected      = "request_rejected"
	TemplateRequestApproved      = "request_approved"
	TemplateCredentialsDocument  = "credentials_document"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Composer is a pure renderer: it performs no I/O after construction.
type Composer struct {
	templates map[string]*pongo2.Template
}

func NewComposer() (*Composer, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	c := &Composer{templates: make(map[string]*pongo2.Template)}
	for _, e := range entries {
		src, err := templateFS.ReadFile(path.Join("templates", e.Name()))
		if err != nil {
			return nil, err
		}
		tpl, err := pongo2.FromString(string(src))
		if err != nil {
			return nil, fmt.Errorf("failed to compile template %s: %w", e.Name(), err)
		}
		c.templates[strings.TrimSuffix(e.Name(), ".tmpl")] = tpl
	}
	return c, nil
}

// Render executes the named template. A "code" var is also exposed to the
// template in display form as "code_display".
func (c *Composer) Render(name string, vars map[string]any) (string, error) {
	tpl, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	ctx := pongo2.Context{}
	for k, v := range vars {
		ctx[k] = v
	}
	if code, ok := vars["code"].(string); ok {
		ctx["code_display"] = FormatCode(code)
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// FormatCode groups a 6-digit code as XX-XX-XX. Other lengths are returned
// unchanged.
func FormatCode(code string) string {
	if len(code) != 6 {
		return code
	}
	return code[0:2] + "-" + code[2:4] + "-" + code[4:6]
}

// WhatsAppLink builds a wa.me deep link that opens a chat with phone and a
// pre-filled text.
func WhatsAppLink(phone, region, text string) (string, error) {
	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone number: %w", err)
	}
	digits := strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+")
	return "https://wa.me/" + digits + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20"), nil
}
