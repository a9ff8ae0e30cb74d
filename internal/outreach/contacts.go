package outreach

import (
	"context"
	"fmt"
	"strings"

	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/scheduler"
	"github.com/khrees2412/coldreach/pkg/models"
)

// ReplyResult reports what recording a reply changed
type ReplyResult struct {
	Entry     *models.OutreachEntry
	Cancelled int // follow-up tasks removed
}

// RecordReply marks a sent entry as replied and cancels its pending
// follow-ups. The company history picks the reply up from the entry.
func (s *Service) RecordReply(ctx context.Context, entryID string, category models.ResponseCategory, body string) (*ReplyResult, error) {
	var result *ReplyResult
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		entry, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.SentAt == nil {
			return fmt.Errorf("%s: %w", entry.ID, ErrNotSent)
		}
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}

		now := s.now()
		entry.Status = models.StatusReplied
		entry.ResponseCategory = category
		entry.ResponseBody = body
		entry.RepliedAt = &now
		entry.UpdatedAt = now
		entry.NextFollowupScheduled = nil

		cancelled := scheduler.CancelForEntry(state, entry.ID)
		if err := tx.SaveEntry(ctx, entry, database.EventReplied); err != nil {
			return err
		}
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}
		result = &ReplyResult{Entry: entry, Cancelled: cancelled}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reply recorded", "entry", entryID, "category", category, "cancelled", result.Cancelled)
	return result, nil
}

// UnsubscribeResult reports what an opt-out changed
type UnsubscribeResult struct {
	Cancelled     int // follow-up tasks removed
	EntriesClosed int // open entries moved to dead
}

// Unsubscribe puts email on the do-not-contact list, drops its pending
// follow-ups and closes every open entry addressed to it
func (s *Service) Unsubscribe(ctx context.Context, email, reason string) (*UnsubscribeResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNoRecipient
	}
	result := &UnsubscribeResult{}
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		now := s.now()
		if err := tx.AddNoContact(ctx, email, reason, now); err != nil {
			return err
		}
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		result.Cancelled = scheduler.CancelForRecipient(state, email)

		entries, err := tx.SearchEntries(ctx, database.EntryFilter{Recipient: email})
		if err != nil {
			return err
		}
		for _, entry := range entries {
			switch entry.Status {
			case models.StatusReplied, models.StatusConverted, models.StatusDead:
				continue
			}
			entry.Status = models.StatusDead
			entry.NextFollowupScheduled = nil
			entry.UpdatedAt = now
			if err := tx.SaveEntry(ctx, entry, database.EventClosed); err != nil {
				return err
			}
			result.EntriesClosed++
		}
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("recipient unsubscribed", "email", email, "cancelled", result.Cancelled, "closed", result.EntriesClosed)
	return result, nil
}

// Unblock takes email off the do-not-contact list. Entries closed by the
// opt-out stay closed.
func (s *Service) Unblock(ctx context.Context, email string) error {
	if err := s.store.RemoveNoContact(ctx, email); err != nil {
		return err
	}
	s.logger.Info("recipient unblocked", "email", email)
	return nil
}

// BlockCompany stops all future sends to company and cancels the follow-ups
// already queued for it
func (s *Service) BlockCompany(ctx context.Context, company, reason string) (int, error) {
	var cancelled int
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		if err := tx.SetCompanyDoNotContact(ctx, company, true, reason); err != nil {
			return err
		}
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		key := database.CompanyKey(company)
		affected := map[string]bool{}
		for _, t := range scheduler.Pending(state) {
			if database.CompanyKey(t.Company) == key {
				affected[t.EntryID] = true
			}
		}
		now := s.now()
		for entryID := range affected {
			cancelled += scheduler.CancelForEntry(state, entryID)
			entry, err := tx.GetEntry(ctx, entryID)
			if err != nil {
				return err
			}
			entry.NextFollowupScheduled = nil
			entry.UpdatedAt = now
			if err := tx.SaveEntry(ctx, entry, database.EventUpdated); err != nil {
				return err
			}
		}
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("company blocked", "company", company, "cancelled", cancelled)
	return cancelled, nil
}

// UnblockCompany clears the company-wide block
func (s *Service) UnblockCompany(ctx context.Context, company string) error {
	if err := s.store.SetCompanyDoNotContact(ctx, company, false, ""); err != nil {
		return err
	}
	s.logger.Info("company unblocked", "company", company)
	return nil
}
