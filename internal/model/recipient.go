package model

import "time"

// Recipient statuses. A recipient only moves forward through
// pending -> sent -> opened -> clicked, with unsubscribed dominating
// every engagement state. failed -> pending is the one allowed
// regression, used to requeue a recipient on re-resolution.
const (
	RecipientStatusPending      = "pending"
	RecipientStatusSent         = "sent"
	RecipientStatusFailed       = "failed"
	RecipientStatusOpened       = "opened"
	RecipientStatusClicked      = "clicked"
	RecipientStatusUnsubscribed = "unsubscribed"
)

// Recipient is the per-contact delivery record for one campaign.
// At most one row exists per (campaign, contact) pair.
type Recipient struct {
	ID             int        `db:"id" json:"id"`
	CampaignID     int        `db:"campaign_id" json:"campaign_id"`
	ContactID      int        `db:"contact_id" json:"contact_id"`
	Status         string     `db:"status" json:"status"`
	TrackingToken  string     `db:"tracking_token" json:"tracking_token"`
	Attempts       int        `db:"attempts" json:"attempts"`
	FailureReason  string     `db:"failure_reason" json:"failure_reason,omitempty"`
	ClaimedAt      *time.Time `db:"claimed_at" json:"-"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	OpenedAt       *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt      *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	UnsubscribedAt *time.Time `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
