package service

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/leadsmagics/crm-backend/internal/model"
	"github.com/leadsmagics/crm-backend/internal/repository"
)

// ResolveResult reports what one resolution pass did.
type ResolveResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// ResolverService materializes the recipient set of a campaign from its
// list associations.
type ResolverService struct {
	Contacts   repository.ContactRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Campaigns  repository.CampaignRepositoryInterface
}

// Resolve computes included minus excluded contacts, filters out
// implausible email addresses and get-or-creates one recipient per
// eligible contact. Safe to call repeatedly: an unchanged list
// configuration yields zero creations on the second call, and a
// recipient already marked sent is never touched.
func (s *ResolverService) Resolve(campaignID int) (*ResolveResult, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	return s.ResolveCampaign(c)
}

func (s *ResolverService) ResolveCampaign(c *model.Campaign) (*ResolveResult, error) {
	included, err := s.Contacts.ListMembers(c.SentListIDs)
	if err != nil {
		return nil, err
	}
	excludedContacts, err := s.Contacts.ListMembers(c.DoNotSendListIDs)
	if err != nil {
		return nil, err
	}
	excluded := make(map[int]bool, len(excludedContacts))
	for _, contact := range excludedContacts {
		excluded[contact.ID] = true
	}

	result := &ResolveResult{}
	for _, contact := range included {
		if excluded[contact.ID] {
			continue
		}
		if !PlausibleEmail(contact.Email) {
			continue
		}

		rec, created, err := s.Recipients.GetOrCreate(c.ID, contact.ID, uuid.NewString())
		if err != nil {
			log.Printf("resolver: get-or-create failed for campaign %d contact %d: %v", c.ID, contact.ID, err)
			continue
		}
		result.Total++
		if created {
			result.Created++
			continue
		}
		if rec.Status == model.RecipientStatusFailed {
			requeued, err := s.Recipients.Requeue(rec.ID)
			if err != nil {
				return nil, err
			}
			if requeued {
				result.Updated++
			}
		}
	}
	return result, nil
}

// PlausibleEmail applies the minimal syntactic check used for both
// recipient eligibility and test-send addresses: an @ with a non-empty
// local part and a dot in the domain.
func PlausibleEmail(email string) bool {
	email = strings.TrimSpace(email)
	if strings.ContainsAny(email, " \t") {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
