package controller

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/repository"
)

type ContactController struct {
	Contacts repository.ContactRepositoryInterface
}

func (c *ContactController) Create(w http.ResponseWriter, r *http.Request) {
	var contact model.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}
	if contact.Email == "" {
		writeError(w, appErrors.NewValidation("email", "email is required"))
		return
	}
	if err := c.Contacts.Create(&contact); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (c *ContactController) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", "1")
	pageSize := queryInt(r, "page_size", "50")
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	search := r.URL.Query().Get("search")

	contacts, total, err := c.Contacts.List((page-1)*pageSize, pageSize, search)
	if err != nil {
		writeError(w, err)
		return
	}
	if contacts == nil {
		contacts = []model.Contact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": contacts,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
		},
	})
}

func (c *ContactController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	contact, err := c.Contacts.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}
