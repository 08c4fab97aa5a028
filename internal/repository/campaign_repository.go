package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	Update(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	List(offset, limit int, status string) ([]*model.Campaign, int, error)

	UpdateStatus(id int, status string) error
	// UpdateStatusIf flips the status only when the campaign currently
	// holds the expected one. Returns false when another worker won.
	UpdateStatusIf(id int, from, to string) (bool, error)
	MarkSent(id int) (bool, error)
	MarkFailed(id int, reason string) error
	SetLists(id int, sentListIDs, doNotSendListIDs []int) error
	// ListDue returns scheduled campaigns whose scheduled_at has passed.
	ListDue(now time.Time) ([]*model.Campaign, error)
	// ListDueWithin returns scheduled campaigns coming due inside the
	// lookahead window, for recipient pre-generation.
	ListDueWithin(now time.Time, lookahead time.Duration) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, type, subject_line, preview_text, custom_content, template_id,
        template_variables, sender_name, sender_email, reply_to, custom_headers,
        enable_tracking, track_opens, track_clicks, test_recipients, status, failure_reason,
        scheduled_at, sent_at, created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	vars, headers, err := marshalCampaignMaps(c)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (name, type, subject_line, preview_text, custom_content, template_id,
            template_variables, sender_name, sender_email, reply_to, custom_headers,
            enable_tracking, track_opens, track_clicks, test_recipients, status, scheduled_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW())
        RETURNING id, created_at
    `
	err = r.DB.QueryRow(query,
		c.Name, c.Type, c.SubjectLine, c.PreviewText, c.CustomContent, c.TemplateID,
		vars, c.SenderName, c.SenderEmail, c.ReplyTo, headers,
		c.EnableTracking, c.TrackOpens, c.TrackClicks, pq.StringArray(c.TestRecipients),
		c.Status, c.ScheduledAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return err
	}
	return r.SetLists(c.ID, c.SentListIDs, c.DoNotSendListIDs)
}

// Update persists draft field edits. Status changes go through the
// dedicated status methods, never through here.
func (r *CampaignRepository) Update(c *model.Campaign) error {
	vars, headers, err := marshalCampaignMaps(c)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaigns
        SET name=$1, type=$2, subject_line=$3, preview_text=$4, custom_content=$5, template_id=$6,
            template_variables=$7, sender_name=$8, sender_email=$9, reply_to=$10, custom_headers=$11,
            enable_tracking=$12, track_opens=$13, track_clicks=$14, test_recipients=$15,
            scheduled_at=$16, updated_at=NOW()
        WHERE id=$17
    `
	res, err := r.DB.Exec(query,
		c.Name, c.Type, c.SubjectLine, c.PreviewText, c.CustomContent, c.TemplateID,
		vars, c.SenderName, c.SenderEmail, c.ReplyTo, headers,
		c.EnableTracking, c.TrackOpens, c.TrackClicks, pq.StringArray(c.TestRecipients),
		c.ScheduledAt, c.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("campaign", c.ID)
	}
	return r.SetLists(c.ID, c.SentListIDs, c.DoNotSendListIDs)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	row := r.DB.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLists(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(offset, limit int, status string) ([]*model.Campaign, int, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	countQuery := `SELECT COUNT(*) FROM campaigns`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status=$1`
		countQuery += ` WHERE status=$1`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ` + placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, c := range campaigns {
		if err := r.loadLists(c); err != nil {
			return nil, 0, err
		}
	}

	var total int
	if err := r.DB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(id int, status string) error {
	res, err := r.DB.Exec(`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("campaign", id)
	}
	return nil
}

func (r *CampaignRepository) UpdateStatusIf(id int, from, to string) (bool, error) {
	res, err := r.DB.Exec(
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`,
		to, id, from,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkSent flips a sending campaign to sent and stamps sent_at. Safe to
// call repeatedly; flipping an already-sent campaign is a no-op.
func (r *CampaignRepository) MarkSent(id int) (bool, error) {
	res, err := r.DB.Exec(
		`UPDATE campaigns SET status=$1, sent_at=NOW(), updated_at=NOW() WHERE id=$2 AND status=$3`,
		model.CampaignStatusSent, id, model.CampaignStatusSending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepository) MarkFailed(id int, reason string) error {
	_, err := r.DB.Exec(
		`UPDATE campaigns SET status=$1, failure_reason=$2, updated_at=NOW() WHERE id=$3`,
		model.CampaignStatusFailed, reason, id,
	)
	return err
}

func (r *CampaignRepository) SetLists(id int, sentListIDs, doNotSendListIDs []int) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM campaign_lists WHERE campaign_id=$1`, id); err != nil {
		return err
	}
	insert := `INSERT INTO campaign_lists (campaign_id, list_id, exclude) SELECT $1, id, $3 FROM lists WHERE id = ANY($2)`
	if _, err := tx.Exec(insert, id, intArray(sentListIDs), false); err != nil {
		return err
	}
	if _, err := tx.Exec(insert, id, intArray(doNotSendListIDs), true); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *CampaignRepository) ListDue(now time.Time) ([]*model.Campaign, error) {
	return r.listScheduledBefore(now.UTC())
}

func (r *CampaignRepository) ListDueWithin(now time.Time, lookahead time.Duration) ([]*model.Campaign, error) {
	return r.listScheduledBefore(now.UTC().Add(lookahead))
}

func (r *CampaignRepository) listScheduledBefore(cutoff time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 AND scheduled_at <= $2 ORDER BY scheduled_at`
	rows, err := r.DB.Query(query, model.CampaignStatusScheduled, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range campaigns {
		if err := r.loadLists(c); err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

func (r *CampaignRepository) loadLists(c *model.Campaign) error {
	rows, err := r.DB.Query(`SELECT list_id, exclude FROM campaign_lists WHERE campaign_id=$1 ORDER BY list_id`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.SentListIDs = []int{}
	c.DoNotSendListIDs = []int{}
	for rows.Next() {
		var listID int
		var exclude bool
		if err := rows.Scan(&listID, &exclude); err != nil {
			return err
		}
		if exclude {
			c.DoNotSendListIDs = append(c.DoNotSendListIDs, listID)
		} else {
			c.SentListIDs = append(c.SentListIDs, listID)
		}
	}
	return rows.Err()
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var vars, headers []byte
	var testRecipients pq.StringArray
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.SubjectLine, &c.PreviewText, &c.CustomContent,
		&c.TemplateID, &vars, &c.SenderName, &c.SenderEmail, &c.ReplyTo, &headers,
		&c.EnableTracking, &c.TrackOpens, &c.TrackClicks, &testRecipients, &c.Status,
		&c.FailureReason, &c.ScheduledAt, &c.SentAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.TestRecipients = testRecipients
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &c.TemplateVariables); err != nil {
			return nil, err
		}
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &c.CustomHeaders); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func marshalCampaignMaps(c *model.Campaign) ([]byte, []byte, error) {
	vars, err := json.Marshal(orEmptyMap(c.TemplateVariables))
	if err != nil {
		return nil, nil, err
	}
	headers, err := json.Marshal(orEmptyMap(c.CustomHeaders))
	if err != nil {
		return nil, nil, err
	}
	return vars, headers, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
