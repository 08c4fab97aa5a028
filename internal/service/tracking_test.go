package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/service"
)

func newTrackedRecipient(t *testing.T, contacts *fakeContactRepo, recipients *fakeRecipientRepo) (*model.Contact, *model.Recipient) {
	t.Helper()
	contact := contacts.add(model.Contact{Name: "Alice", Email: "alice@example.com"})
	rec, _, err := recipients.GetOrCreate(1, contact.ID, "tok-alice")
	require.NoError(t, err)
	require.NoError(t, recipients.Claim(rec.ID))
	require.NoError(t, recipients.MarkSent(rec.ID))
	return contact, rec
}

func TestRecordOpenIsIdempotent(t *testing.T) {
	contacts := newFakeContactRepo()
	recipients := newFakeRecipientRepo()
	contact, rec := newTrackedRecipient(t, contacts, recipients)

	svc := &service.TrackingService{Recipients: recipients, Contacts: contacts}
	svc.RecordOpen("tok-alice")

	first, err := recipients.GetByID(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, first.OpenedAt)
	assert.Equal(t, model.RecipientStatusOpened, first.Status)

	time.Sleep(time.Millisecond)
	svc.RecordOpen("tok-alice")

	second, err := recipients.GetByID(rec.ID)
	require.NoError(t, err)
	assert.True(t, second.OpenedAt.Equal(*first.OpenedAt))

	promoted, err := contacts.GetByID(contact.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContactStatusEngaged, promoted.Status)
}

func TestRecordOpenUnknownTokenIsNoop(t *testing.T) {
	contacts := newFakeContactRepo()
	recipients := newFakeRecipientRepo()

	svc := &service.TrackingService{Recipients: recipients, Contacts: contacts}
	svc.RecordOpen("no-such-token")
}

func TestRecordClickImpliesOpen(t *testing.T) {
	contacts := newFakeContactRepo()
	recipients := newFakeRecipientRepo()
	_, rec := newTrackedRecipient(t, contacts, recipients)

	svc := &service.TrackingService{Recipients: recipients, Contacts: contacts}
	redirect := svc.RecordClick("tok-alice", "https://example.com/pricing")
	assert.Equal(t, "https://example.com/pricing", redirect)

	stored, err := recipients.GetByID(rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.OpenedAt)
	assert.NotNil(t, stored.ClickedAt)
	assert.Equal(t, model.RecipientStatusClicked, stored.Status)
}

func TestRecordClickUnknownTokenStillRedirects(t *testing.T) {
	contacts := newFakeContactRepo()
	recipients := newFakeRecipientRepo()

	svc := &service.TrackingService{Recipients: recipients, Contacts: contacts}
	assert.Equal(t, "https://example.com", svc.RecordClick("garbage", "https://example.com"))
	assert.Equal(t, "/", svc.RecordClick("garbage", ""))
}

func TestOpenAfterClickDoesNotRegress(t *testing.T) {
	contacts := newFakeContactRepo()
	recipients := newFakeRecipientRepo()
	_, rec := newTrackedRecipient(t, contacts, recipients)

	svc := &service.TrackingService{Recipients: recipients, Contacts: contacts}
	svc.RecordClick("tok-alice", "https://example.com")
	svc.RecordOpen("tok-alice")

	stored, err := recipients.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecipientStatusClicked, stored.Status)
}

func TestRecordUnsubscribeFlipsContact(t *testing.T) {
	contacts := newFakeContactRepo()
	recipients := newFakeRecipientRepo()
	contact, rec := newTrackedRecipient(t, contacts, recipients)

	svc := &service.TrackingService{Recipients: recipients, Contacts: contacts}
	require.NoError(t, svc.RecordUnsubscribe("tok-alice"))

	stored, err := recipients.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecipientStatusUnsubscribed, stored.Status)
	assert.NotNil(t, stored.UnsubscribedAt)

	flipped, err := contacts.GetByID(contact.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContactStatusUnsubscribed, flipped.Status)

	// A later open never resurrects an unsubscribed contact.
	svc.RecordOpen("tok-alice")
	still, err := contacts.GetByID(contact.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContactStatusUnsubscribed, still.Status)
}
