package model

import "time"

// Template is a reusable content source referenced by campaigns.
// UsageCount is incremented as a side effect of a successful send.
type Template struct {
	ID               int        `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	Subject          string     `db:"subject" json:"subject"`
	HTMLContent      string     `db:"html_content" json:"html_content"`
	PlainTextContent string     `db:"plain_text_content" json:"plain_text_content,omitempty"`
	Variables        []string   `db:"variables" json:"variables,omitempty"`
	UsageCount       int        `db:"usage_count" json:"usage_count"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
