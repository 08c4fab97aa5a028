package model

import "time"

// List is a named grouping of contacts, optionally inside a folder.
// Membership lives in the contact_lists join table.
type List struct {
	ID        int        `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Folder    string     `db:"folder" json:"folder,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
