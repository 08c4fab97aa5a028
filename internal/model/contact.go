package model

import "time"

// Contact lifecycle statuses. Engagement events move a contact forward;
// CRM edits can set anything while the core only promotes.
const (
	ContactStatusNew          = "new"
	ContactStatusContacted    = "contacted"
	ContactStatusEngaged      = "engaged"
	ContactStatusUnsubscribed = "unsubscribed"
)

type Contact struct {
	ID              int               `db:"id" json:"id"`
	Name            string            `db:"name" json:"name"`
	Email           string            `db:"email" json:"email"`
	JobRole         string            `db:"job_role" json:"job_role"`
	Phone           string            `db:"phone" json:"phone"`
	CompanyName     string            `db:"company_name" json:"company_name"`
	CompanyLocation string            `db:"company_location" json:"company_location"`
	SocialMedia     map[string]string `db:"social_media" json:"social_media,omitempty"`
	Status          string            `db:"status" json:"status"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}
