package service

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/repository"
)

// CampaignService owns campaign CRUD and the lifecycle transitions.
type CampaignService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Resolver   *ResolverService
	Engine     *DeliveryEngine

	// Now is swapped out by tests; defaults to time.Now.
	Now func() time.Time
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignService) CreateCampaign(c *model.Campaign) error {
	if c.Name == "" {
		return appErrors.NewValidation("name", "campaign name is required")
	}
	c.Status = model.CampaignStatusDraft
	return s.Campaigns.Create(c)
}

// SaveDraft persists field edits. Only draft campaigns are editable; in
// particular a sent campaign is immutable.
func (s *CampaignService) SaveDraft(c *model.Campaign) error {
	current, err := s.Campaigns.GetByID(c.ID)
	if err != nil {
		return err
	}
	if current.Status != model.CampaignStatusDraft {
		return appErrors.NewValidation("status", fmt.Sprintf("cannot edit a %s campaign", current.Status))
	}
	return s.Campaigns.Update(c)
}

// ListCampaigns fetches campaigns with pagination.
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.Campaigns.List(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaign(id int) (*model.Campaign, error) {
	return s.Campaigns.GetByID(id)
}

// TransitionPayload carries the per-action inputs of the transition
// endpoint.
type TransitionPayload struct {
	Campaign       *model.Campaign `json:"campaign,omitempty"`
	ScheduledAt    *time.Time      `json:"scheduled_at,omitempty"`
	TestRecipients []string        `json:"test_recipients,omitempty"`
}

// TransitionResult is what every action reports back.
type TransitionResult struct {
	CampaignID  int              `json:"campaign_id"`
	Status      string           `json:"status"`
	Resolution  *ResolveResult   `json:"resolution,omitempty"`
	TestResults []TestSendResult `json:"test_results,omitempty"`
}

// Transition applies one lifecycle action to a campaign.
func (s *CampaignService) Transition(ctx context.Context, campaignID int, action string, payload TransitionPayload) (*TransitionResult, error) {
	switch action {
	case ActionSaveDraft:
		if payload.Campaign == nil {
			return nil, appErrors.NewValidation("campaign", "save_draft requires campaign fields")
		}
		payload.Campaign.ID = campaignID
		if err := s.SaveDraft(payload.Campaign); err != nil {
			return nil, err
		}
		return &TransitionResult{CampaignID: campaignID, Status: model.CampaignStatusDraft}, nil

	case ActionSendTest:
		addrs := payload.TestRecipients
		if len(addrs) == 0 {
			c, err := s.Campaigns.GetByID(campaignID)
			if err != nil {
				return nil, err
			}
			addrs = c.TestRecipients
		}
		results, err := s.Engine.SendTest(ctx, campaignID, addrs)
		if err != nil {
			return nil, err
		}
		c, err := s.Campaigns.GetByID(campaignID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{CampaignID: campaignID, Status: c.Status, TestResults: results}, nil

	case ActionSendNow:
		return s.SendNow(campaignID)

	case ActionSchedule:
		if payload.ScheduledAt == nil {
			return nil, appErrors.NewValidation("scheduled_at", "schedule requires a scheduled_at timestamp")
		}
		return s.Schedule(campaignID, *payload.ScheduledAt)

	case ActionCancel:
		return s.Cancel(campaignID)
	}
	return nil, appErrors.NewValidation("action", "unknown action: "+action)
}

// SendNow validates the send guards, resolves recipients when none
// exist yet and hands the campaign to the delivery engine.
func (s *CampaignService) SendNow(campaignID int) (*TransitionResult, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, model.CampaignStatusSending) {
		return nil, appErrors.NewValidation("status", fmt.Sprintf("cannot send a %s campaign", c.Status))
	}
	if err := s.validateSendable(c); err != nil {
		return nil, err
	}

	counts, err := s.Recipients.Counts(campaignID)
	if err != nil {
		return nil, err
	}
	var resolution *ResolveResult
	if counts.Total == 0 {
		resolution, err = s.Resolver.ResolveCampaign(c)
		if err != nil {
			return nil, err
		}
	}

	pending, err := s.Recipients.CountPending(campaignID)
	if err != nil {
		return nil, err
	}
	if pending == 0 {
		return nil, appErrors.NewValidation("recipients", "campaign has no pending recipients")
	}

	flipped, err := s.Campaigns.UpdateStatusIf(campaignID, c.Status, model.CampaignStatusSending)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, appErrors.NewConflict("campaign", campaignID)
	}

	if err := s.Engine.SendCampaign(campaignID); err != nil {
		return nil, err
	}
	return &TransitionResult{CampaignID: campaignID, Status: model.CampaignStatusSending, Resolution: resolution}, nil
}

// Schedule validates the guards plus a strictly-future scheduled_at
// (UTC) and parks the campaign for the scheduler.
func (s *CampaignService) Schedule(campaignID int, at time.Time) (*TransitionResult, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusDraft {
		return nil, appErrors.NewValidation("status", fmt.Sprintf("cannot schedule a %s campaign", c.Status))
	}
	if err := s.validateSchedule(c, at); err != nil {
		return nil, err
	}

	utc := at.UTC()
	c.ScheduledAt = &utc
	if err := s.Campaigns.Update(c); err != nil {
		return nil, err
	}
	flipped, err := s.Campaigns.UpdateStatusIf(campaignID, model.CampaignStatusDraft, model.CampaignStatusScheduled)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, appErrors.NewConflict("campaign", campaignID)
	}
	return &TransitionResult{CampaignID: campaignID, Status: model.CampaignStatusScheduled}, nil
}

// Cancel aborts a campaign that has not started sending. A campaign
// already sending is not abortable mid-flight.
func (s *CampaignService) Cancel(campaignID int) (*TransitionResult, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, model.CampaignStatusCancelled) {
		return nil, appErrors.NewValidation("status", fmt.Sprintf("cannot cancel a %s campaign", c.Status))
	}
	flipped, err := s.Campaigns.UpdateStatusIf(campaignID, c.Status, model.CampaignStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, appErrors.NewConflict("campaign", campaignID)
	}
	return &TransitionResult{CampaignID: campaignID, Status: model.CampaignStatusCancelled}, nil
}

// CampaignStats is the engagement summary of one campaign. Rates are
// percentages; every rate is 0 when its denominator is 0.
type CampaignStats struct {
	TotalRecipients int     `json:"total_recipients"`
	Pending         int     `json:"pending"`
	Sent            int     `json:"sent"`
	Opened          int     `json:"opened"`
	Clicked         int     `json:"clicked"`
	Unsubscribed    int     `json:"unsubscribed"`
	Failed          int     `json:"failed"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	DeliveryRate    float64 `json:"delivery_rate"`
}

func (s *CampaignService) Stats(campaignID int) (*CampaignStats, error) {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return nil, err
	}
	counts, err := s.Recipients.Counts(campaignID)
	if err != nil {
		return nil, err
	}

	stats := &CampaignStats{
		TotalRecipients: counts.Total,
		Pending:         counts.Pending,
		Sent:            counts.Sent,
		Opened:          counts.Opened,
		Clicked:         counts.Clicked,
		Unsubscribed:    counts.Unsubscribed,
		Failed:          counts.Failed,
	}
	stats.OpenRate = ratio(counts.Opened, counts.Sent)
	stats.ClickRate = ratio(counts.Clicked, counts.Opened)
	stats.DeliveryRate = ratio(counts.Total-counts.Failed, counts.Total)
	return stats, nil
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

// CampaignDetails couples a campaign with its stats for the detail
// endpoint.
type CampaignDetails struct {
	*model.Campaign
	Stats *CampaignStats `json:"stats"`
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CampaignDetails, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}
