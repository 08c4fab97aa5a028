package service

import (
	"log"
	"time"

	appErrors "github.com/leadsmagics/crm-backend/internal/errors"
	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/repository"
)

// TrackingService records engagement events keyed by tracking token.
// The handlers in front of it never surface errors to the mail client,
// so unknown tokens and storage failures are logged here and swallowed.
type TrackingService struct {
	Recipients repository.RecipientRepositoryInterface
	Contacts   repository.ContactRepositoryInterface

	// Now is swapped out by tests; defaults to time.Now.
	Now func() time.Time
}

func (s *TrackingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RecordOpen stores the first open timestamp for the token. Repeated
// opens and unknown tokens are no-ops.
func (s *TrackingService) RecordOpen(token string) {
	if err := s.Recipients.RecordOpen(token, s.now().UTC()); err != nil {
		log.Printf("tracking: recording open for token %s: %v", token, err)
		return
	}
	s.promoteContact(token, model.ContactStatusEngaged)
}

// RecordClick stores the click (which implies an open) and returns the
// URL to redirect to. An unknown token still redirects, falling back to
// the root path so the handler never dead-ends a real person.
func (s *TrackingService) RecordClick(token, targetURL string) string {
	rec, err := s.Recipients.GetByToken(token)
	if err != nil {
		if !appErrors.IsNotFound(err) {
			log.Printf("tracking: looking up token %s: %v", token, err)
		}
		if targetURL == "" {
			return "/"
		}
		return targetURL
	}
	if err := s.Recipients.RecordClick(token, s.now().UTC()); err != nil {
		log.Printf("tracking: recording click for recipient %d: %v", rec.ID, err)
	}
	s.promoteContact(token, model.ContactStatusEngaged)
	if targetURL == "" {
		return "/"
	}
	return targetURL
}

// RecordUnsubscribe marks the recipient unsubscribed and flips the
// contact so future campaigns exclude them.
func (s *TrackingService) RecordUnsubscribe(token string) error {
	if err := s.Recipients.RecordUnsubscribe(token, s.now().UTC()); err != nil {
		return err
	}
	s.promoteContact(token, model.ContactStatusUnsubscribed)
	return nil
}

// promoteContact moves the contact behind the token to the given
// status. Unsubscribed contacts never move back to engaged.
func (s *TrackingService) promoteContact(token, status string) {
	rec, err := s.Recipients.GetByToken(token)
	if err != nil {
		return
	}
	contact, err := s.Contacts.GetByID(rec.ContactID)
	if err != nil {
		log.Printf("tracking: loading contact %d: %v", rec.ContactID, err)
		return
	}
	if contact.Status == model.ContactStatusUnsubscribed && status != model.ContactStatusUnsubscribed {
		return
	}
	if contact.Status == status {
		return
	}
	if err := s.Contacts.UpdateStatus(contact.ID, status); err != nil {
		log.Printf("tracking: updating contact %d status: %v", contact.ID, err)
	}
}
