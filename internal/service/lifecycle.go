package service

import (
	"strings"
	"time"

	"github.com/leadsmagics/crm-backend/internal/content"
	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
)

// Campaign lifecycle actions exposed through the transition endpoint.
const (
	ActionSaveDraft = "save_draft"
	ActionSendTest  = "send_test"
	ActionSendNow   = "send_now"
	ActionSchedule  = "schedule"
	ActionCancel    = "cancel"
)

// legalTransitions is the campaign state machine: draft can be sent or
// scheduled, scheduled campaigns start sending when due, and anything
// not yet sent can be cancelled. sent, cancelled and failed are
// terminal.
var legalTransitions = map[string][]string{
	model.CampaignStatusDraft:     {model.CampaignStatusScheduled, model.CampaignStatusSending, model.CampaignStatusCancelled, model.CampaignStatusFailed},
	model.CampaignStatusScheduled: {model.CampaignStatusSending, model.CampaignStatusCancelled, model.CampaignStatusFailed},
	model.CampaignStatusSending:   {model.CampaignStatusSent, model.CampaignStatusFailed},
}

func canTransition(from, to string) bool {
	if model.IsTerminalStatus(from) {
		return false
	}
	for _, status := range legalTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// validateSendable checks the guard conditions shared by send_now and
// schedule: a sender, at least one target list and non-empty resolved
// content. Violations surface as validation errors before any state
// mutation.
func (s *CampaignService) validateSendable(c *model.Campaign) error {
	if strings.TrimSpace(c.SenderEmail) == "" {
		return appErrors.NewValidation("sender_email", "sender email is required")
	}
	if len(c.SentListIDs) == 0 {
		return appErrors.NewValidation("sent_lists", "at least one target list is required")
	}
	return s.validateContent(c)
}

func (s *CampaignService) validateContent(c *model.Campaign) error {
	var tmpl *model.Template
	if c.CustomContent == "" && c.TemplateID != nil {
		t, err := s.Templates.GetByID(*c.TemplateID)
		if err != nil {
			if appErrors.IsNotFound(err) {
				return appErrors.NewValidation("template_id", "referenced template does not exist")
			}
			return err
		}
		tmpl = t
	}
	src := content.ResolveSource(c, tmpl)
	if src.Kind == content.SourceEmpty || strings.TrimSpace(src.HTML(c.TemplateVariables)) == "" {
		return appErrors.NewValidation("content", "campaign has no custom content and no template")
	}
	return nil
}

// validateSchedule additionally requires a scheduled_at strictly in the
// future. All comparisons happen in UTC.
func (s *CampaignService) validateSchedule(c *model.Campaign, at time.Time) error {
	if err := s.validateSendable(c); err != nil {
		return err
	}
	if !at.UTC().After(s.now().UTC()) {
		return appErrors.NewValidation("scheduled_at", "scheduled time must be in the future")
	}
	return nil
}
