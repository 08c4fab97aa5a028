package repository

import (
	"database/sql"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
)

type ListRepositoryInterface interface {
	Create(l *model.List) error
	GetByID(id int) (*model.List, error)
	ListAll() ([]model.List, error)
	AddContacts(listID int, contactIDs []int) error
	RemoveContacts(listID int, contactIDs []int) error
}

type ListRepository struct {
	DB *sql.DB
}

func (r *ListRepository) Create(l *model.List) error {
	query := `
        INSERT INTO lists (name, folder, created_at)
        VALUES ($1, $2, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRow(query, l.Name, l.Folder).Scan(&l.ID, &l.CreatedAt)
}

func (r *ListRepository) GetByID(id int) (*model.List, error) {
	var l model.List
	err := r.DB.QueryRow(
		`SELECT id, name, folder, created_at, updated_at FROM lists WHERE id=$1`, id,
	).Scan(&l.ID, &l.Name, &l.Folder, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("list", id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListRepository) ListAll() ([]model.List, error) {
	rows, err := r.DB.Query(`SELECT id, name, folder, created_at, updated_at FROM lists ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []model.List{}
	for rows.Next() {
		var l model.List
		if err := rows.Scan(&l.ID, &l.Name, &l.Folder, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func (r *ListRepository) AddContacts(listID int, contactIDs []int) error {
	query := `
        INSERT INTO contact_lists (list_id, contact_id)
        SELECT $1, id FROM contacts WHERE id = ANY($2)
        ON CONFLICT DO NOTHING
    `
	_, err := r.DB.Exec(query, listID, intArray(contactIDs))
	return err
}

func (r *ListRepository) RemoveContacts(listID int, contactIDs []int) error {
	_, err := r.DB.Exec(
		`DELETE FROM contact_lists WHERE list_id=$1 AND contact_id = ANY($2)`,
		listID, intArray(contactIDs),
	)
	return err
}

var _ ListRepositoryInterface = (*ListRepository)(nil)
