package service_test

import (
	"context"
	"strings"
	"sync"
	"time"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/repository"
	"github.com/leadsmagics/crm-backend/internal/transport"
)

// In-memory repositories backing the service tests. They mirror the
// SQL implementations' conditional-update semantics so the claim and
// status-flip races behave the same way.

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[int]*model.Contact
	members  map[int][]int // list ID -> contact IDs
	nextID   int
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{
		contacts: make(map[int]*model.Contact),
		members:  make(map[int][]int),
		nextID:   1,
	}
}

func (r *fakeContactRepo) add(c model.Contact, listIDs ...int) *model.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID
	r.nextID++
	if c.Status == "" {
		c.Status = model.ContactStatusNew
	}
	r.contacts[c.ID] = &c
	for _, listID := range listIDs {
		r.members[listID] = append(r.members[listID], c.ID)
	}
	return &c
}

func (r *fakeContactRepo) Create(c *model.Contact) error {
	created := r.add(*c)
	c.ID = created.ID
	return nil
}

func (r *fakeContactRepo) GetByID(id int) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil, appErrors.NewNotFound("contact", id)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeContactRepo) List(offset, limit int, search string) ([]model.Contact, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Contact
	for _, c := range r.contacts {
		if search == "" || strings.Contains(c.Name, search) || strings.Contains(c.Email, search) {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (r *fakeContactRepo) ListMembers(listIDs []int) ([]model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int]bool)
	var out []model.Contact
	for _, listID := range listIDs {
		for _, contactID := range r.members[listID] {
			if seen[contactID] {
				continue
			}
			seen[contactID] = true
			out = append(out, *r.contacts[contactID])
		}
	}
	return out, nil
}

func (r *fakeContactRepo) UpdateStatus(id int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return appErrors.NewNotFound("contact", id)
	}
	c.Status = status
	return nil
}

var _ repository.ContactRepositoryInterface = (*fakeContactRepo)(nil)

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: make(map[int]*model.Campaign), nextID: 1}
}

func (r *fakeCampaignRepo) add(c model.Campaign) *model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID
	r.nextID++
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	stored := c
	r.campaigns[c.ID] = &stored
	return &c
}

func (r *fakeCampaignRepo) Create(c *model.Campaign) error {
	created := r.add(*c)
	c.ID = created.ID
	c.Status = created.Status
	return nil
}

func (r *fakeCampaignRepo) Update(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.campaigns[c.ID]
	if !ok {
		return appErrors.NewNotFound("campaign", c.ID)
	}
	status := current.Status
	copied := *c
	copied.Status = status
	r.campaigns[c.ID] = &copied
	return nil
}

func (r *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCampaignRepo) List(offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Campaign
	for id := 1; id < r.nextID; id++ {
		c, ok := r.campaigns[id]
		if !ok {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		copied := *c
		all = append(all, &copied)
	}
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *fakeCampaignRepo) UpdateStatus(id int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewNotFound("campaign", id)
	}
	c.Status = status
	return nil
}

func (r *fakeCampaignRepo) UpdateStatusIf(id int, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *fakeCampaignRepo) MarkSent(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.CampaignStatusSending {
		return false, nil
	}
	now := time.Now()
	c.Status = model.CampaignStatusSent
	c.SentAt = &now
	return true, nil
}

func (r *fakeCampaignRepo) MarkFailed(id int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewNotFound("campaign", id)
	}
	c.Status = model.CampaignStatusFailed
	c.FailureReason = reason
	return nil
}

func (r *fakeCampaignRepo) SetLists(id int, sentListIDs, doNotSendListIDs []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewNotFound("campaign", id)
	}
	c.SentListIDs = sentListIDs
	c.DoNotSendListIDs = doNotSendListIDs
	return nil
}

func (r *fakeCampaignRepo) ListDue(now time.Time) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.Campaign
	for id := 1; id < r.nextID; id++ {
		c, ok := r.campaigns[id]
		if !ok || c.Status != model.CampaignStatusScheduled || c.ScheduledAt == nil {
			continue
		}
		if !c.ScheduledAt.After(now) {
			copied := *c
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (r *fakeCampaignRepo) ListDueWithin(now time.Time, lookahead time.Duration) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	horizon := now.Add(lookahead)
	var upcoming []*model.Campaign
	for id := 1; id < r.nextID; id++ {
		c, ok := r.campaigns[id]
		if !ok || c.Status != model.CampaignStatusScheduled || c.ScheduledAt == nil {
			continue
		}
		if c.ScheduledAt.After(now) && !c.ScheduledAt.After(horizon) {
			copied := *c
			upcoming = append(upcoming, &copied)
		}
	}
	return upcoming, nil
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

type fakeRecipientRepo struct {
	mu         sync.Mutex
	recipients map[int]*model.Recipient
	nextID     int
}

// engagementRank orders recipient statuses along the forward-only
// lattice the SQL tracking updates encode in their CASE expressions.
func engagementRank(status string) int {
	switch status {
	case model.RecipientStatusSent:
		return 1
	case model.RecipientStatusOpened:
		return 2
	case model.RecipientStatusClicked:
		return 3
	case model.RecipientStatusUnsubscribed:
		return 4
	}
	return 0
}

func advanceStatus(current, event string) string {
	if engagementRank(event) > engagementRank(current) {
		return event
	}
	return current
}

func newFakeRecipientRepo() *fakeRecipientRepo {
	return &fakeRecipientRepo{recipients: make(map[int]*model.Recipient), nextID: 1}
}

func (r *fakeRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return nil, appErrors.NewNotFound("recipient", id)
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeRecipientRepo) GetByToken(token string) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.byToken(token)
	if rec == nil {
		return nil, appErrors.NewNotFound("recipient", token)
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeRecipientRepo) byToken(token string) *model.Recipient {
	for _, rec := range r.recipients {
		if rec.TrackingToken == token {
			return rec
		}
	}
	return nil
}

func (r *fakeRecipientRepo) GetOrCreate(campaignID, contactID int, token string) (*model.Recipient, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recipients {
		if rec.CampaignID == campaignID && rec.ContactID == contactID {
			copied := *rec
			return &copied, false, nil
		}
	}
	rec := &model.Recipient{
		ID:            r.nextID,
		CampaignID:    campaignID,
		ContactID:     contactID,
		Status:        model.RecipientStatusPending,
		TrackingToken: token,
		CreatedAt:     time.Now(),
	}
	r.nextID++
	r.recipients[rec.ID] = rec
	copied := *rec
	return &copied, true, nil
}

func (r *fakeRecipientRepo) Requeue(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok || rec.Status != model.RecipientStatusFailed {
		return false, nil
	}
	rec.Status = model.RecipientStatusPending
	rec.Attempts = 0
	rec.FailureReason = ""
	rec.ClaimedAt = nil
	return true, nil
}

func (r *fakeRecipientRepo) ListPending(campaignID int) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Recipient
	for id := 1; id < r.nextID; id++ {
		rec, ok := r.recipients[id]
		if ok && rec.CampaignID == campaignID && rec.Status == model.RecipientStatusPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeRecipientRepo) CountPending(campaignID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, rec := range r.recipients {
		if rec.CampaignID == campaignID && rec.Status == model.RecipientStatusPending {
			count++
		}
	}
	return count, nil
}

func (r *fakeRecipientRepo) CountByStatus(campaignID int) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, rec := range r.recipients {
		if rec.CampaignID == campaignID {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

func (r *fakeRecipientRepo) Counts(campaignID int) (*repository.RecipientCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := &repository.RecipientCounts{}
	for _, rec := range r.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		counts.Total++
		switch rec.Status {
		case model.RecipientStatusPending:
			counts.Pending++
		case model.RecipientStatusFailed:
			counts.Failed++
		}
		if rec.SentAt != nil {
			counts.Sent++
		}
		if rec.OpenedAt != nil {
			counts.Opened++
		}
		if rec.ClickedAt != nil {
			counts.Clicked++
		}
		if rec.UnsubscribedAt != nil {
			counts.Unsubscribed++
		}
	}
	return counts, nil
}

func (r *fakeRecipientRepo) Claim(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok || rec.Status != model.RecipientStatusPending {
		return appErrors.NewConflict("recipient", id)
	}
	now := time.Now()
	if rec.ClaimedAt != nil && now.Sub(*rec.ClaimedAt) < repository.ClaimTTL {
		return appErrors.NewConflict("recipient", id)
	}
	rec.ClaimedAt = &now
	return nil
}

func (r *fakeRecipientRepo) ReleaseClaim(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if ok && rec.Status == model.RecipientStatusPending {
		rec.ClaimedAt = nil
	}
	return nil
}

func (r *fakeRecipientRepo) MarkSent(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok || rec.Status != model.RecipientStatusPending {
		return appErrors.NewConflict("recipient", id)
	}
	now := time.Now()
	rec.Status = model.RecipientStatusSent
	rec.SentAt = &now
	return nil
}

func (r *fakeRecipientRepo) MarkFailed(id int, reason string, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok || rec.Status != model.RecipientStatusPending {
		return appErrors.NewConflict("recipient", id)
	}
	rec.Status = model.RecipientStatusFailed
	rec.FailureReason = reason
	rec.Attempts = attempts
	return nil
}

func (r *fakeRecipientRepo) RecordOpen(token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.byToken(token)
	if rec == nil {
		return appErrors.NewNotFound("recipient", token)
	}
	if rec.OpenedAt == nil {
		rec.OpenedAt = &at
	}
	rec.Status = advanceStatus(rec.Status, model.RecipientStatusOpened)
	return nil
}

func (r *fakeRecipientRepo) RecordClick(token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.byToken(token)
	if rec == nil {
		return appErrors.NewNotFound("recipient", token)
	}
	if rec.OpenedAt == nil {
		rec.OpenedAt = &at
	}
	if rec.ClickedAt == nil {
		rec.ClickedAt = &at
	}
	rec.Status = advanceStatus(rec.Status, model.RecipientStatusClicked)
	return nil
}

func (r *fakeRecipientRepo) RecordUnsubscribe(token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.byToken(token)
	if rec == nil {
		return appErrors.NewNotFound("recipient", token)
	}
	if rec.UnsubscribedAt == nil {
		rec.UnsubscribedAt = &at
	}
	if rec.Status != model.RecipientStatusFailed {
		rec.Status = advanceStatus(rec.Status, model.RecipientStatusUnsubscribed)
	}
	return nil
}

var _ repository.RecipientRepositoryInterface = (*fakeRecipientRepo)(nil)

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[int]*model.Template
	usage     map[int]int
	nextID    int
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{
		templates: make(map[int]*model.Template),
		usage:     make(map[int]int),
		nextID:    1,
	}
}

func (r *fakeTemplateRepo) add(t model.Template) *model.Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID
	r.nextID++
	r.templates[t.ID] = &t
	return &t
}

func (r *fakeTemplateRepo) Create(t *model.Template) error {
	created := r.add(*t)
	t.ID = created.ID
	return nil
}

func (r *fakeTemplateRepo) GetByID(id int) (*model.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, appErrors.NewNotFound("template", id)
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTemplateRepo) ListAll() ([]model.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Template
	for id := 1; id < r.nextID; id++ {
		if t, ok := r.templates[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTemplateRepo) IncrementUsage(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[id]++
	return nil
}

var _ repository.TemplateRepositoryInterface = (*fakeTemplateRepo)(nil)

// fakeTransport records envelopes and can be told to fail the first N
// sends with a given error.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []*transport.Envelope
	failures int
	failErr  error
	closed   int
}

func (t *fakeTransport) Send(ctx context.Context, env *transport.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failures > 0 {
		t.failures--
		return t.failErr
	}
	copied := *env
	t.sent = append(t.sent, &copied)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) sentTo() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, env := range t.sent {
		out = append(out, env.To...)
	}
	return out
}

var _ transport.Transport = (*fakeTransport)(nil)

// fakePublisher records published jobs without delivering them.
type fakePublisher struct {
	mu        sync.Mutex
	published []any
	topics    []string
}

func (p *fakePublisher) Publish(topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.published = append(p.published, payload)
	return nil
}
