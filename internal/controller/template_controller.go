package controller

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/repository"
)

type TemplateController struct {
	Templates repository.TemplateRepositoryInterface
}

func (c *TemplateController) Create(w http.ResponseWriter, r *http.Request) {
	var tmpl model.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}
	if tmpl.Name == "" {
		writeError(w, appErrors.NewValidation("name", "template name is required"))
		return
	}
	if tmpl.HTMLContent == "" {
		writeError(w, appErrors.NewValidation("html_content", "template content is required"))
		return
	}
	if err := c.Templates.Create(&tmpl); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (c *TemplateController) List(w http.ResponseWriter, r *http.Request) {
	templates, err := c.Templates.ListAll()
	if err != nil {
		writeError(w, err)
		return
	}
	if templates == nil {
		templates = []model.Template{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": templates})
}

func (c *TemplateController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	tmpl, err := c.Templates.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}
