package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/service"
)

func newScheduler(f *fixture) *service.Scheduler {
	return &service.Scheduler{
		Campaigns: f.svc,
		Interval:  time.Minute,
		Lookahead: 10 * time.Minute,
		Now:       func() time.Time { return f.now },
	}
}

func TestTickDispatchesDueCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.sendableCampaign()

	_, err := f.svc.Schedule(c.ID, f.now.Add(time.Hour))
	require.NoError(t, err)

	s := newScheduler(f)

	// Not due yet.
	s.Tick()
	assert.Empty(t, f.publisher.topics)

	f.now = f.now.Add(2 * time.Hour)
	s.Tick()

	stored, err := f.campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusSending, stored.Status)
	require.Len(t, f.publisher.topics, 1)
	assert.Equal(t, "campaign_dispatch", f.publisher.topics[0])
}

func TestTickMarksCampaignFailedWhenGuardsRegress(t *testing.T) {
	f := newFixture(t)
	c := f.sendableCampaign()

	_, err := f.svc.Schedule(c.ID, f.now.Add(time.Hour))
	require.NoError(t, err)

	// Content disappears between scheduling and fire time.
	stored, err := f.campaigns.GetByID(c.ID)
	require.NoError(t, err)
	stored.CustomContent = ""
	require.NoError(t, f.campaigns.Update(stored))

	f.now = f.now.Add(2 * time.Hour)
	newScheduler(f).Tick()

	failed, err := f.campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)
	assert.Empty(t, f.publisher.topics)
}

func TestTickSkipsCancelledCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.sendableCampaign()

	_, err := f.svc.Schedule(c.ID, f.now.Add(time.Hour))
	require.NoError(t, err)
	_, err = f.svc.Cancel(c.ID)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	newScheduler(f).Tick()

	stored, err := f.campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCancelled, stored.Status)
	assert.Empty(t, f.publisher.topics)
}

func TestTickPreresolvesUpcomingCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.sendableCampaign()

	_, err := f.svc.Schedule(c.ID, f.now.Add(5*time.Minute))
	require.NoError(t, err)

	newScheduler(f).Tick()

	// Inside the lookahead window: recipients exist but nothing was
	// dispatched yet.
	counts, err := f.recipients.Counts(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
	assert.Empty(t, f.publisher.topics)

	stored, err := f.campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusScheduled, stored.Status)
}
