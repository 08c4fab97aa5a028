package service

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leadsmagics/crm-backend/internal/content"
	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/queue"
	"github.com/leadsmagics/crm-backend/internal/repository"
	"github.com/leadsmagics/crm-backend/internal/transport"
)

// maxFailureReasonLen bounds the persisted failure reason.
const maxFailureReasonLen = 500

// EngineConfig is the delivery policy: retries, backoff, timeouts and
// rate limiting are first-class configuration, not annotations.
type EngineConfig struct {
	// MaxAttempts is the total number of delivery attempts per
	// recipient per batch, including the first one.
	MaxAttempts int
	// BaseBackoff is doubled after every failed attempt.
	BaseBackoff time.Duration
	// SendTimeout bounds each individual transport call.
	SendTimeout time.Duration
	// RatePerMinute caps sends across the engine; zero disables.
	RatePerMinute int
	// Concurrency bounds the in-process send pool of one batch.
	Concurrency int
}

func (cfg *EngineConfig) withDefaults() {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
}

// DeliveryEngine drives recipient sends through a transport and keeps
// the recipient and campaign state machines consistent.
type DeliveryEngine struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Contacts   repository.ContactRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Assembler  *content.Assembler
	// NewTransport opens a fresh session. Each batch worker owns one
	// and closes it; sessions are never shared across batches.
	NewTransport func() transport.Transport
	Queue        queue.Publisher

	cfg     EngineConfig
	limiter *rateLimiter
	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDeliveryEngine(
	campaigns repository.CampaignRepositoryInterface,
	recipients repository.RecipientRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	assembler *content.Assembler,
	newTransport func() transport.Transport,
	q queue.Publisher,
	cfg EngineConfig,
) *DeliveryEngine {
	cfg.withDefaults()
	return &DeliveryEngine{
		Campaigns:    campaigns,
		Recipients:   recipients,
		Contacts:     contacts,
		Templates:    templates,
		Assembler:    assembler,
		NewTransport: newTransport,
		Queue:        q,
		cfg:          cfg,
		limiter:      newRateLimiter(cfg.RatePerMinute),
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SendCampaign queues one campaign-dispatch job. Fire-and-forget: the
// caller gets an error only when enqueueing itself fails.
func (e *DeliveryEngine) SendCampaign(campaignID int) error {
	return e.Queue.Publish(queue.TopicCampaignDispatch, queue.DispatchJob{CampaignID: campaignID})
}

// RetryRecipient requeues one failed recipient and publishes a
// single-send job for it. Recipients in any other state are not
// retryable.
func (e *DeliveryEngine) RetryRecipient(recipientID int) error {
	if _, err := e.Recipients.GetByID(recipientID); err != nil {
		return err
	}
	requeued, err := e.Recipients.Requeue(recipientID)
	if err != nil {
		return err
	}
	if !requeued {
		return appErrors.NewValidation("status", "only failed recipients can be retried")
	}
	return e.Queue.Publish(queue.TopicCampaignSends, queue.SendJob{RecipientID: recipientID})
}

// ProcessCampaign is the batch job behind one campaign dispatch: it
// drains every pending recipient through a bounded worker pool, each
// worker owning its own transport session, then rolls the campaign up.
func (e *DeliveryEngine) ProcessCampaign(ctx context.Context, campaignID int) error {
	c, err := e.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignStatusSending {
		log.Printf("delivery: campaign %d is %s, not sending; skipping dispatch", campaignID, c.Status)
		return nil
	}

	pending, err := e.Recipients.ListPending(campaignID)
	if err != nil {
		return err
	}

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Concurrency; i++ {
		g.Go(func() error {
			t := e.NewTransport()
			defer t.Close()
			for id := range jobs {
				// Per-recipient failures never abort the batch.
				if err := e.sendOne(gctx, t, id); err != nil {
					log.Printf("delivery: recipient %d: %v", id, err)
				}
			}
			return nil
		})
	}

	for _, rec := range pending {
		select {
		case jobs <- rec.ID:
		case <-gctx.Done():
		}
	}
	close(jobs)
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = e.FinalizeCampaign(campaignID)
	return err
}

// SendOne delivers to a single recipient using a transport session
// owned by this call.
func (e *DeliveryEngine) SendOne(ctx context.Context, recipientID int) error {
	t := e.NewTransport()
	defer t.Close()
	if err := e.sendOne(ctx, t, recipientID); err != nil {
		return err
	}
	_, err := e.finalizeForRecipient(recipientID)
	return err
}

func (e *DeliveryEngine) sendOne(ctx context.Context, t transport.Transport, recipientID int) error {
	rec, err := e.Recipients.GetByID(recipientID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			log.Printf("delivery: recipient %d vanished, skipping", recipientID)
			return nil
		}
		return err
	}
	if rec.Status != model.RecipientStatusPending {
		return nil
	}

	// Claim before the network call so two workers racing on the same
	// pending recipient cannot both deliver. The loser backs off
	// silently.
	if err := e.Recipients.Claim(rec.ID); err != nil {
		if appErrors.IsConflict(err) {
			return nil
		}
		return err
	}

	if err := e.sendClaimed(ctx, t, rec); err != nil {
		// No terminal mark landed, so the claim must not outlive this
		// attempt: release it or the recipient stays pending-but-claimed
		// and the campaign can never finalize.
		if relErr := e.Recipients.ReleaseClaim(rec.ID); relErr != nil {
			log.Printf("delivery: releasing claim on recipient %d: %v", rec.ID, relErr)
		}
		return err
	}
	return nil
}

func (e *DeliveryEngine) sendClaimed(ctx context.Context, t transport.Transport, rec *model.Recipient) error {
	c, err := e.Campaigns.GetByID(rec.CampaignID)
	if err != nil {
		return err
	}
	contact, err := e.Contacts.GetByID(rec.ContactID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return e.recordFailure(rec, "contact no longer exists", 0)
		}
		return err
	}

	env, err := e.Assembler.Assemble(c, contact, rec)
	if err != nil {
		return e.recordFailure(rec, err.Error(), 0)
	}

	attempts, err := e.deliver(ctx, t, env)
	if err != nil {
		return e.recordFailure(rec, err.Error(), attempts)
	}

	if err := e.Recipients.MarkSent(rec.ID); err != nil {
		if appErrors.IsConflict(err) {
			return nil
		}
		return err
	}
	if c.TemplateID != nil && c.CustomContent == "" {
		if err := e.Templates.IncrementUsage(*c.TemplateID); err != nil {
			log.Printf("delivery: incrementing usage of template %d: %v", *c.TemplateID, err)
		}
	}
	return nil
}

// deliver attempts the transport call with per-attempt timeout,
// retrying transient failures with exponential backoff. It returns the
// number of attempts made alongside the terminal error, if any.
func (e *DeliveryEngine) deliver(ctx context.Context, t transport.Transport, env *transport.Envelope) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return attempt - 1, appErrors.NewTransientDelivery(err)
		}

		sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
		err := t.Send(sendCtx, env)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if appErrors.IsPermanent(err) {
			return attempt, err
		}
		if attempt < e.cfg.MaxAttempts {
			backoff := e.cfg.BaseBackoff << (attempt - 1)
			if err := e.sleep(ctx, backoff); err != nil {
				return attempt, appErrors.NewTransientDelivery(err)
			}
		}
	}
	return e.cfg.MaxAttempts, lastErr
}

func (e *DeliveryEngine) recordFailure(rec *model.Recipient, reason string, attempts int) error {
	if len(reason) > maxFailureReasonLen {
		reason = reason[:maxFailureReasonLen]
	}
	return e.Recipients.MarkFailed(rec.ID, reason, attempts)
}

// FinalizeCampaign flips a sending campaign to sent once no pending
// recipients remain. Idempotent and safe to run concurrently: the flip
// is a conditional update and flipping an already-sent campaign is a
// no-op.
func (e *DeliveryEngine) FinalizeCampaign(campaignID int) (bool, error) {
	pending, err := e.Recipients.CountPending(campaignID)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}
	stats, err := e.Recipients.CountByStatus(campaignID)
	if err != nil {
		return false, err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	if total == 0 {
		return false, nil
	}
	return e.Campaigns.MarkSent(campaignID)
}

func (e *DeliveryEngine) finalizeForRecipient(recipientID int) (bool, error) {
	rec, err := e.Recipients.GetByID(recipientID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return e.FinalizeCampaign(rec.CampaignID)
}

// TestSendResult reports the outcome for one ad-hoc test address.
type TestSendResult struct {
	Email   string `json:"email"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SendTest delivers the campaign to ad-hoc addresses without touching
// recipient rows or delivery stats. Invalid addresses fail
// individually, never the whole batch.
func (e *DeliveryEngine) SendTest(ctx context.Context, campaignID int, addrs []string) ([]TestSendResult, error) {
	c, err := e.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, appErrors.NewValidation("test_recipients", "at least one address is required")
	}

	t := e.NewTransport()
	defer t.Close()

	results := make([]TestSendResult, 0, len(addrs))
	for _, addr := range addrs {
		if !PlausibleEmail(addr) {
			results = append(results, TestSendResult{Email: addr, Status: "failed", Message: "invalid email address"})
			continue
		}
		env, err := e.Assembler.AssembleTest(c, addr)
		if err != nil {
			results = append(results, TestSendResult{Email: addr, Status: "failed", Message: err.Error()})
			continue
		}

		// Test sends count against the same per-minute cap as real ones.
		if err := e.limiter.Wait(ctx); err != nil {
			return results, err
		}
		sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
		err = t.Send(sendCtx, env)
		cancel()
		if err != nil {
			results = append(results, TestSendResult{Email: addr, Status: "failed", Message: truncate(err.Error())})
			continue
		}
		results = append(results, TestSendResult{Email: addr, Status: "sent"})
	}
	return results, nil
}

func truncate(s string) string {
	if len(s) > maxFailureReasonLen {
		return s[:maxFailureReasonLen]
	}
	return s
}
