package repository

import (
	"database/sql"

	"github.com/lib/pq"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(t *model.Template) error
	GetByID(id int) (*model.Template, error)
	ListAll() ([]model.Template, error)
	// IncrementUsage bumps the usage counter as a side effect of a
	// successful send.
	IncrementUsage(id int) error
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, name, subject, html_content, plain_text_content, variables, usage_count, created_at, updated_at`

func (r *TemplateRepository) Create(t *model.Template) error {
	query := `
        INSERT INTO email_templates (name, subject, html_content, plain_text_content, variables, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRow(query,
		t.Name, t.Subject, t.HTMLContent, t.PlainTextContent, pq.StringArray(t.Variables),
	).Scan(&t.ID, &t.CreatedAt)
}

func (r *TemplateRepository) GetByID(id int) (*model.Template, error) {
	row := r.DB.QueryRow(`SELECT `+templateColumns+` FROM email_templates WHERE id=$1`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("template", id)
	}
	return t, err
}

func (r *TemplateRepository) ListAll() ([]model.Template, error) {
	rows, err := r.DB.Query(`SELECT ` + templateColumns + ` FROM email_templates ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) IncrementUsage(id int) error {
	_, err := r.DB.Exec(`UPDATE email_templates SET usage_count = usage_count + 1, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var t model.Template
	var variables pq.StringArray
	err := row.Scan(&t.ID, &t.Name, &t.Subject, &t.HTMLContent, &t.PlainTextContent,
		&variables, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Variables = variables
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
