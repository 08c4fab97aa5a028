package content

import (
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/personalize"
)

// SourceKind tags where a campaign's email content comes from.
type SourceKind int

const (
	SourceEmpty SourceKind = iota
	SourceCustom
	SourceTemplate
)

// Source is the resolved content source of a campaign: inline custom
// content wins over a referenced template, and a campaign with neither
// resolves to SourceEmpty (which the state machine rejects before any
// send).
type Source struct {
	Kind     SourceKind
	Custom   string
	Template *model.Template
}

// ResolveSource applies the precedence rule: custom content, then
// template, then empty.
func ResolveSource(c *model.Campaign, tmpl *model.Template) Source {
	if c.CustomContent != "" {
		return Source{Kind: SourceCustom, Custom: c.CustomContent}
	}
	if tmpl != nil {
		return Source{Kind: SourceTemplate, Template: tmpl}
	}
	return Source{Kind: SourceEmpty}
}

// HTML returns the base HTML body. Template content is rendered with
// the campaign's variable map before any per-recipient personalization.
func (s Source) HTML(campaignVars map[string]string) string {
	switch s.Kind {
	case SourceCustom:
		return s.Custom
	case SourceTemplate:
		return personalize.Render(s.Template.HTMLContent, campaignVars, campaignVars)
	case SourceEmpty:
		return ""
	}
	return ""
}

// PlainText returns the explicit plain-text source, if any. Empty means
// the assembler derives a fallback by stripping the HTML.
func (s Source) PlainText(campaignVars map[string]string) string {
	if s.Kind == SourceTemplate && s.Template.PlainTextContent != "" {
		return personalize.Render(s.Template.PlainTextContent, campaignVars, campaignVars)
	}
	return ""
}

// Subject applies the subject precedence: campaign subject line, then
// template subject, then a literal fallback.
func (s Source) Subject(c *model.Campaign) string {
	if c.SubjectLine != "" {
		return c.SubjectLine
	}
	if s.Kind == SourceTemplate && s.Template.Subject != "" {
		return s.Template.Subject
	}
	return "No Subject"
}
