package controller

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/repository"
)

type ListController struct {
	Lists repository.ListRepositoryInterface
}

func (c *ListController) Create(w http.ResponseWriter, r *http.Request) {
	var list model.List
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}
	if list.Name == "" {
		writeError(w, appErrors.NewValidation("name", "list name is required"))
		return
	}
	if err := c.Lists.Create(&list); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (c *ListController) List(w http.ResponseWriter, r *http.Request) {
	lists, err := c.Lists.ListAll()
	if err != nil {
		writeError(w, err)
		return
	}
	if lists == nil {
		lists = []model.List{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": lists})
}

func (c *ListController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := c.Lists.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AddContacts attaches existing contacts to the list. Already-attached
// contacts are skipped.
func (c *ListController) AddContacts(w http.ResponseWriter, r *http.Request) {
	c.updateMembers(w, r, c.Lists.AddContacts)
}

func (c *ListController) RemoveContacts(w http.ResponseWriter, r *http.Request) {
	c.updateMembers(w, r, c.Lists.RemoveContacts)
}

func (c *ListController) updateMembers(w http.ResponseWriter, r *http.Request, apply func(listID int, contactIDs []int) error) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := c.Lists.GetByID(id); err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ContactIDs []int `json:"contact_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid request body"))
		return
	}
	if len(body.ContactIDs) == 0 {
		writeError(w, appErrors.NewValidation("contact_ids", "at least one contact id is required"))
		return
	}
	if err := apply(id, body.ContactIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"list_id": id, "count": len(body.ContactIDs)})
}
