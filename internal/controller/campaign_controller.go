package controller

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/service"
)

type CampaignController struct {
	Service *service.CampaignService
}

func (c *CampaignController) Create(w http.ResponseWriter, r *http.Request) {
	var campaign model.Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}
	if err := c.Service.CreateCampaign(&campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", "1")
	pageSize := queryInt(r, "page_size", "20")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.Service.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []*model.Campaign{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// Get returns the campaign with its engagement stats embedded.
func (c *CampaignController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	details, err := c.Service.GetCampaignDetailsWithStats(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var campaign model.Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}
	campaign.ID = id
	if err := c.Service.SaveDraft(&campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// Transition drives the campaign state machine. The action name in the
// body selects what happens: save_draft, send_test, send_now, schedule
// or cancel.
func (c *CampaignController) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Action string `json:"action"`
		service.TransitionPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}
	result, err := c.Service.Transition(r.Context(), id, body.Action, body.TransitionPayload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := c.Service.Stats(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RetryRecipient requeues one failed recipient for another delivery
// attempt.
func (c *CampaignController) RetryRecipient(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.Service.Engine.RetryRecipient(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"recipient_id": id, "status": model.RecipientStatusPending})
}

// Resolve materializes the recipient set ahead of sending so the
// caller can inspect the audience size.
func (c *CampaignController) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := c.Service.Resolver.Resolve(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
