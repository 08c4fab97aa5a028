package model

import "time"

// Campaign statuses. sent, cancelled and failed are terminal.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
	CampaignStatusCancelled = "cancelled"
	CampaignStatusFailed    = "failed"
)

type Campaign struct {
	ID                int               `db:"id" json:"id"`
	Name              string            `db:"name" json:"name"`
	Type              string            `db:"type" json:"type"`
	SubjectLine       string            `db:"subject_line" json:"subject_line"`
	PreviewText       string            `db:"preview_text" json:"preview_text"`
	CustomContent     string            `db:"custom_content" json:"custom_content"`
	TemplateID        *int              `db:"template_id" json:"template_id,omitempty"`
	TemplateVariables map[string]string `db:"template_variables" json:"template_variables,omitempty"`
	SenderName        string            `db:"sender_name" json:"sender_name"`
	SenderEmail       string            `db:"sender_email" json:"sender_email"`
	ReplyTo           string            `db:"reply_to" json:"reply_to"`
	CustomHeaders     map[string]string `db:"custom_headers" json:"custom_headers,omitempty"`
	EnableTracking    bool              `db:"enable_tracking" json:"enable_tracking"`
	TrackOpens        bool              `db:"track_opens" json:"track_opens"`
	TrackClicks       bool              `db:"track_clicks" json:"track_clicks"`
	SentListIDs       []int             `db:"-" json:"sent_lists"`
	DoNotSendListIDs  []int             `db:"-" json:"do_not_send_lists"`
	TestRecipients    []string          `db:"test_recipients" json:"test_recipients,omitempty"`
	Status            string            `db:"status" json:"status"`
	FailureReason     string            `db:"failure_reason" json:"failure_reason,omitempty"`
	ScheduledAt       *time.Time        `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt            *time.Time        `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}

// IsTerminalStatus reports whether no further automatic transition can
// move a campaign out of the given status.
func IsTerminalStatus(status string) bool {
	switch status {
	case CampaignStatusSent, CampaignStatusCancelled, CampaignStatusFailed:
		return true
	}
	return false
}
