package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/personalize"
	"github.com/leadsmagics/crm-backend/internal/transport"
)

// TemplateStore is the read side of the template collaborator.
type TemplateStore interface {
	GetByID(id int) (*model.Template, error)
}

// Assembler builds the final envelope for one recipient: content
// precedence, personalization, tracking instrumentation and headers.
type Assembler struct {
	Templates TemplateStore
	BaseURL   string
}

func NewAssembler(templates TemplateStore, baseURL string) *Assembler {
	return &Assembler{Templates: templates, BaseURL: baseURL}
}

// testBanner is prepended to test sends so they are never mistaken for
// a real campaign.
const testBanner = `<div style="background:#fff3cd;padding:10px;margin-bottom:20px;border:1px solid #ffc107;"><strong>TEST EMAIL - NOT A REAL CAMPAIGN</strong></div>`

// Assemble builds the envelope for one recipient of a campaign.
func (a *Assembler) Assemble(c *model.Campaign, contact *model.Contact, r *model.Recipient) (*transport.Envelope, error) {
	src, err := a.resolveSource(c)
	if err != nil {
		return nil, err
	}

	vars := personalize.Vars(contact, r.TrackingToken, c.TemplateVariables)

	subject := personalize.Render(src.Subject(c), vars, c.TemplateVariables)
	preview := personalize.Render(c.PreviewText, vars, c.TemplateVariables)
	body := personalize.Render(src.HTML(c.TemplateVariables), vars, c.TemplateVariables)

	if c.EnableTracking && c.TrackClicks {
		body = personalize.RewriteLinks(body, a.BaseURL, r.TrackingToken)
	}

	text := src.PlainText(c.TemplateVariables)
	if text == "" {
		text = StripTags(body)
	} else {
		text = personalize.Render(text, vars, c.TemplateVariables)
	}

	if preview != "" {
		body = preheader(preview) + body
	}
	if c.EnableTracking && c.TrackOpens {
		body = appendPixel(body, a.BaseURL, r.TrackingToken)
	}

	headers := buildHeaders(c, r, a.BaseURL)

	return &transport.Envelope{
		Subject:  subject,
		FromAddr: senderAddress(c),
		ReplyTo:  replyTo(c),
		To:       []string{contact.Email},
		HTML:     body,
		Text:     text,
		Headers:  headers,
	}, nil
}

// AssembleTest builds a test envelope for an ad-hoc address. No
// recipient row exists, so no tracking instrumentation is embedded.
func (a *Assembler) AssembleTest(c *model.Campaign, addr string) (*transport.Envelope, error) {
	src, err := a.resolveSource(c)
	if err != nil {
		return nil, err
	}

	testContact := &model.Contact{Name: "Test User", Email: addr}
	vars := personalize.Vars(testContact, "", c.TemplateVariables)

	subject := "[TEST] " + personalize.Render(src.Subject(c), vars, c.TemplateVariables)
	body := testBanner + personalize.Render(src.HTML(c.TemplateVariables), vars, c.TemplateVariables)

	text := src.PlainText(c.TemplateVariables)
	if text == "" {
		text = StripTags(body)
	} else {
		text = personalize.Render(text, vars, c.TemplateVariables)
	}

	return &transport.Envelope{
		Subject:  subject,
		FromAddr: senderAddress(c),
		ReplyTo:  replyTo(c),
		To:       []string{addr},
		HTML:     body,
		Text:     text,
		Headers:  map[string]string{},
	}, nil
}

func (a *Assembler) resolveSource(c *model.Campaign) (Source, error) {
	var tmpl *model.Template
	if c.CustomContent == "" && c.TemplateID != nil {
		t, err := a.Templates.GetByID(*c.TemplateID)
		if err != nil {
			if appErrors.IsNotFound(err) {
				return Source{}, err
			}
			return Source{}, fmt.Errorf("loading template %d: %w", *c.TemplateID, err)
		}
		tmpl = t
	}
	return ResolveSource(c, tmpl), nil
}

// appendPixel adds the 1x1 open-tracking image once, at the end of the
// body. Re-assembly of the same body does not duplicate it.
func appendPixel(body, baseURL, token string) string {
	pixelURL := personalize.OpenURL(baseURL, token)
	if strings.Contains(body, pixelURL) {
		return body
	}
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;">`, pixelURL)
	return body + pixel
}

// preheader renders preview text as a hidden preheader block.
func preheader(preview string) string {
	return fmt.Sprintf(`<div style="display:none;max-height:0;overflow:hidden;">%s</div>`, preview)
}

func buildHeaders(c *model.Campaign, r *model.Recipient, baseURL string) map[string]string {
	headers := make(map[string]string, len(c.CustomHeaders)+5)
	for k, v := range c.CustomHeaders {
		headers[k] = v
	}
	if c.EnableTracking {
		headers["X-Campaign-ID"] = strconv.Itoa(c.ID)
		headers["X-Recipient-ID"] = strconv.Itoa(r.ID)
		headers["X-Tracking-ID"] = r.TrackingToken
	}
	headers["List-Unsubscribe"] = "<" + personalize.UnsubscribeURL(baseURL, r.TrackingToken) + ">"
	headers["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
	return headers
}

func senderAddress(c *model.Campaign) string {
	if c.SenderName != "" {
		return fmt.Sprintf("%s <%s>", c.SenderName, c.SenderEmail)
	}
	return c.SenderEmail
}

func replyTo(c *model.Campaign) string {
	if c.ReplyTo != "" {
		return c.ReplyTo
	}
	return c.SenderEmail
}

var (
	blockPattern = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)>`)
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// StripTags derives a plain-text fallback from HTML: markup removed,
// whitespace collapsed.
func StripTags(html string) string {
	text := blockPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}
