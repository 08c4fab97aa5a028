package repository

import (
	"database/sql"
	"encoding/json"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
)

type ContactRepositoryInterface interface {
	Create(c *model.Contact) error
	GetByID(id int) (*model.Contact, error)
	List(offset, limit int, search string) ([]model.Contact, int, error)
	// ListMembers returns the distinct contacts belonging to any of the
	// given lists.
	ListMembers(listIDs []int) ([]model.Contact, error)
	UpdateStatus(id int, status string) error
}

type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, name, email, job_role, phone, company_name, company_location, social_media, status, created_at, updated_at`

func (r *ContactRepository) Create(c *model.Contact) error {
	if c.Status == "" {
		c.Status = model.ContactStatusNew
	}
	social, err := json.Marshal(orEmptyMap(c.SocialMedia))
	if err != nil {
		return err
	}
	query := `
        INSERT INTO contacts (name, email, job_role, phone, company_name, company_location, social_media, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRow(query,
		c.Name, c.Email, c.JobRole, c.Phone, c.CompanyName, c.CompanyLocation, social, c.Status,
	).Scan(&c.ID, &c.CreatedAt)
}

func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	row := r.DB.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id=$1`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("contact", id)
	}
	return c, err
}

func (r *ContactRepository) List(offset, limit int, search string) ([]model.Contact, int, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	countQuery := `SELECT COUNT(*) FROM contacts`
	args := []interface{}{}
	if search != "" {
		cond := ` WHERE name ILIKE $1 OR email ILIKE $1 OR job_role ILIKE $1 OR company_name ILIKE $1`
		query += cond
		countQuery += cond
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY id DESC LIMIT ` + placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

func (r *ContactRepository) ListMembers(listIDs []int) ([]model.Contact, error) {
	if len(listIDs) == 0 {
		return []model.Contact{}, nil
	}
	query := `
        SELECT DISTINCT c.id, c.name, c.email, c.job_role, c.phone, c.company_name, c.company_location, c.social_media, c.status, c.created_at, c.updated_at
        FROM contacts c
        JOIN contact_lists cl ON cl.contact_id = c.id
        WHERE cl.list_id = ANY($1)
        ORDER BY c.id
    `
	rows, err := r.DB.Query(query, intArray(listIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) UpdateStatus(id int, status string) error {
	res, err := r.DB.Exec(`UPDATE contacts SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("contact", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	var social []byte
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.JobRole, &c.Phone,
		&c.CompanyName, &c.CompanyLocation, &social, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(social) > 0 {
		if err := json.Unmarshal(social, &c.SocialMedia); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
