package service

import (
	"context"
	"log"
	"time"

	"github.com/leadsmagics/crm-backend/internal/model"
)

// Scheduler polls for scheduled campaigns that have come due and hands
// them to the delivery engine. One instance runs inside the server
// process.
type Scheduler struct {
	Campaigns *CampaignService
	Interval  time.Duration
	Lookahead time.Duration

	// Now is swapped out by tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start runs the polling loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("scheduler: polling every %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopping")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick dispatches every campaign whose scheduled_at has passed. A
// failure on one campaign never blocks the others.
func (s *Scheduler) Tick() {
	now := s.now().UTC()
	due, err := s.Campaigns.Campaigns.ListDue(now)
	if err != nil {
		log.Printf("scheduler: listing due campaigns: %v", err)
		return
	}
	for _, c := range due {
		if err := s.dispatch(c); err != nil {
			log.Printf("scheduler: campaign %d: %v", c.ID, err)
		}
	}

	if s.Lookahead > 0 {
		s.preresolve(now)
	}
}

// dispatch re-runs the send guards at fire time. Guard failures mark
// the campaign failed with a reason instead of leaving it stuck in
// scheduled.
func (s *Scheduler) dispatch(c *model.Campaign) error {
	if err := s.Campaigns.validateSendable(c); err != nil {
		log.Printf("scheduler: campaign %d no longer sendable: %v", c.ID, err)
		return s.Campaigns.Campaigns.MarkFailed(c.ID, err.Error())
	}

	counts, err := s.Campaigns.Recipients.Counts(c.ID)
	if err != nil {
		return err
	}
	if counts.Total == 0 {
		if _, err := s.Campaigns.Resolver.ResolveCampaign(c); err != nil {
			return err
		}
	}
	pending, err := s.Campaigns.Recipients.CountPending(c.ID)
	if err != nil {
		return err
	}
	if pending == 0 {
		log.Printf("scheduler: campaign %d has no pending recipients", c.ID)
		return s.Campaigns.Campaigns.MarkFailed(c.ID, "no pending recipients at scheduled time")
	}

	flipped, err := s.Campaigns.Campaigns.UpdateStatusIf(c.ID, model.CampaignStatusScheduled, model.CampaignStatusSending)
	if err != nil {
		return err
	}
	if !flipped {
		// Another scheduler instance or an operator beat us to it.
		return nil
	}
	log.Printf("scheduler: campaign %d due, dispatching", c.ID)
	return s.Campaigns.Engine.SendCampaign(c.ID)
}

// preresolve materializes recipients for campaigns coming due inside
// the lookahead window so the fire-time path only has to flip status
// and publish.
func (s *Scheduler) preresolve(now time.Time) {
	upcoming, err := s.Campaigns.Campaigns.ListDueWithin(now, s.Lookahead)
	if err != nil {
		log.Printf("scheduler: listing upcoming campaigns: %v", err)
		return
	}
	for _, c := range upcoming {
		counts, err := s.Campaigns.Recipients.Counts(c.ID)
		if err != nil {
			log.Printf("scheduler: counting recipients for campaign %d: %v", c.ID, err)
			continue
		}
		if counts.Total > 0 {
			continue
		}
		if _, err := s.Campaigns.Resolver.ResolveCampaign(c); err != nil {
			log.Printf("scheduler: preresolving campaign %d: %v", c.ID, err)
		}
	}
}
