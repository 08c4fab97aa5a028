package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
)

type RecipientRepositoryInterface interface {
	GetByID(id int) (*model.Recipient, error)
	GetByToken(token string) (*model.Recipient, error)
	// GetOrCreate returns the one recipient row for the pair, creating
	// it with the given tracking token when absent. Idempotent under
	// concurrent resolution.
	GetOrCreate(campaignID, contactID int, token string) (rec *model.Recipient, created bool, err error)
	// Requeue moves a failed recipient back to pending. Recipients that
	// reached sent (or any engagement state) are never touched.
	Requeue(id int) (bool, error)
	ListPending(campaignID int) ([]model.Recipient, error)
	CountPending(campaignID int) (int, error)
	CountByStatus(campaignID int) (map[string]int, error)
	// Counts aggregates engagement by timestamp, so a clicked recipient
	// still counts as sent and opened.
	Counts(campaignID int) (*RecipientCounts, error)

	// Claim atomically takes ownership of a pending recipient before
	// the network call. A second claim loses. Claims older than
	// ClaimTTL count as abandoned and can be taken over.
	Claim(id int) error
	// ReleaseClaim returns a claimed recipient that never reached a
	// terminal mark to the unclaimed pool.
	ReleaseClaim(id int) error
	MarkSent(id int) error
	MarkFailed(id int, reason string, attempts int) error

	RecordOpen(token string, at time.Time) error
	RecordClick(token string, at time.Time) error
	RecordUnsubscribe(token string, at time.Time) error
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, contact_id, status, tracking_token, attempts, failure_reason,
        claimed_at, sent_at, opened_at, clicked_at, unsubscribed_at, created_at, updated_at`

func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	row := r.DB.QueryRow(`SELECT `+recipientColumns+` FROM email_recipients WHERE id=$1`, id)
	rec, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("recipient", id)
	}
	return rec, err
}

func (r *RecipientRepository) GetByToken(token string) (*model.Recipient, error) {
	row := r.DB.QueryRow(`SELECT `+recipientColumns+` FROM email_recipients WHERE tracking_token=$1`, token)
	rec, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("recipient", token)
	}
	return rec, err
}

func (r *RecipientRepository) GetOrCreate(campaignID, contactID int, token string) (*model.Recipient, bool, error) {
	var id int
	insert := `
        INSERT INTO email_recipients (campaign_id, contact_id, status, tracking_token, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRow(insert, campaignID, contactID, model.RecipientStatusPending, token).Scan(&id)
	created := true
	if err == sql.ErrNoRows {
		created = false
	} else if err != nil {
		return nil, false, err
	}

	if created {
		rec, err := r.GetByID(id)
		return rec, true, err
	}

	row := r.DB.QueryRow(
		`SELECT `+recipientColumns+` FROM email_recipients WHERE campaign_id=$1 AND contact_id=$2`,
		campaignID, contactID,
	)
	rec, err := scanRecipient(row)
	return rec, false, err
}

func (r *RecipientRepository) Requeue(id int) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE email_recipients
        SET status=$1, attempts=0, failure_reason='', claimed_at=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3
    `, model.RecipientStatusPending, id, model.RecipientStatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *RecipientRepository) ListPending(campaignID int) ([]model.Recipient, error) {
	rows, err := r.DB.Query(
		`SELECT `+recipientColumns+` FROM email_recipients WHERE campaign_id=$1 AND status=$2 ORDER BY id`,
		campaignID, model.RecipientStatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	return recipients, rows.Err()
}

func (r *RecipientRepository) CountPending(campaignID int) (int, error) {
	var n int
	err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM email_recipients WHERE campaign_id=$1 AND status=$2`,
		campaignID, model.RecipientStatusPending,
	).Scan(&n)
	return n, err
}

func (r *RecipientRepository) CountByStatus(campaignID int) (map[string]int, error) {
	rows, err := r.DB.Query(
		`SELECT status, COUNT(*) FROM email_recipients WHERE campaign_id=$1 GROUP BY status`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// RecipientCounts aggregates one campaign's delivery and engagement
// numbers.
type RecipientCounts struct {
	Total        int
	Pending      int
	Sent         int
	Opened       int
	Clicked      int
	Unsubscribed int
	Failed       int
}

func (r *RecipientRepository) Counts(campaignID int) (*RecipientCounts, error) {
	var c RecipientCounts
	err := r.DB.QueryRow(`
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status=$2),
               COUNT(sent_at),
               COUNT(opened_at),
               COUNT(clicked_at),
               COUNT(unsubscribed_at),
               COUNT(*) FILTER (WHERE status=$3)
        FROM email_recipients WHERE campaign_id=$1
    `, campaignID, model.RecipientStatusPending, model.RecipientStatusFailed).
		Scan(&c.Total, &c.Pending, &c.Sent, &c.Opened, &c.Clicked, &c.Unsubscribed, &c.Failed)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClaimTTL is how long a claim shields a pending recipient from other
// workers. A claim older than this belongs to a worker that died
// mid-send and is treated as unclaimed.
const ClaimTTL = 15 * time.Minute

func (r *RecipientRepository) Claim(id int) error {
	res, err := r.DB.Exec(`
        UPDATE email_recipients SET claimed_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND status=$2 AND (claimed_at IS NULL OR claimed_at < $3)
    `, id, model.RecipientStatusPending, time.Now().Add(-ClaimTTL))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewConflict("recipient", id)
	}
	return nil
}

func (r *RecipientRepository) ReleaseClaim(id int) error {
	_, err := r.DB.Exec(`
        UPDATE email_recipients SET claimed_at=NULL, updated_at=NOW()
        WHERE id=$1 AND status=$2
    `, id, model.RecipientStatusPending)
	return err
}

func (r *RecipientRepository) MarkSent(id int) error {
	res, err := r.DB.Exec(`
        UPDATE email_recipients SET status=$1, sent_at=NOW(), failure_reason='', updated_at=NOW()
        WHERE id=$2 AND status=$3
    `, model.RecipientStatusSent, id, model.RecipientStatusPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewConflict("recipient", id)
	}
	return nil
}

func (r *RecipientRepository) MarkFailed(id int, reason string, attempts int) error {
	_, err := r.DB.Exec(`
        UPDATE email_recipients SET status=$1, failure_reason=$2, attempts=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5
    `, model.RecipientStatusFailed, reason, attempts, id, model.RecipientStatusPending)
	return err
}

// Engagement updates set the first-occurrence timestamp once and only
// ever advance the status; replays are no-ops.
func (r *RecipientRepository) RecordOpen(token string, at time.Time) error {
	_, err := r.DB.Exec(`
        UPDATE email_recipients
        SET opened_at = COALESCE(opened_at, $2),
            status = CASE WHEN status IN ($3, $4) THEN $5 ELSE status END,
            updated_at = NOW()
        WHERE tracking_token=$1
    `, token, at,
		model.RecipientStatusPending, model.RecipientStatusSent, model.RecipientStatusOpened)
	return err
}

func (r *RecipientRepository) RecordClick(token string, at time.Time) error {
	_, err := r.DB.Exec(`
        UPDATE email_recipients
        SET clicked_at = COALESCE(clicked_at, $2),
            opened_at = COALESCE(opened_at, $2),
            status = CASE WHEN status IN ($3, $4, $5) THEN $6 ELSE status END,
            updated_at = NOW()
        WHERE tracking_token=$1
    `, token, at,
		model.RecipientStatusPending, model.RecipientStatusSent, model.RecipientStatusOpened,
		model.RecipientStatusClicked)
	return err
}

func (r *RecipientRepository) RecordUnsubscribe(token string, at time.Time) error {
	_, err := r.DB.Exec(`
        UPDATE email_recipients
        SET unsubscribed_at = COALESCE(unsubscribed_at, $2),
            status = CASE WHEN status <> $3 THEN $4 ELSE status END,
            updated_at = NOW()
        WHERE tracking_token=$1
    `, token, at, model.RecipientStatusFailed, model.RecipientStatusUnsubscribed)
	return err
}

func scanRecipient(row rowScanner) (*model.Recipient, error) {
	var rec model.Recipient
	err := row.Scan(&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.Status, &rec.TrackingToken,
		&rec.Attempts, &rec.FailureReason, &rec.ClaimedAt, &rec.SentAt, &rec.OpenedAt,
		&rec.ClickedAt, &rec.UnsubscribedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
