package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khrees2412/coldreach/internal/ai"
	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/pipeline"
	"github.com/khrees2412/coldreach/internal/safety"
	"github.com/khrees2412/coldreach/internal/scheduler"
	"github.com/khrees2412/coldreach/internal/sender"
	"github.com/khrees2412/coldreach/pkg/models"
)

var (
	ErrCampaignPaused = errors.New("campaigns are paused")
	ErrAlreadySent    = errors.New("entry has already been sent")
	ErrNoRecipient    = errors.New("entry has no recipient email")
	ErrNotSent        = errors.New("entry has not been sent")
	ErrEntryClosed    = errors.New("entry is closed")
)

// Options are the non-policy settings the service needs
type Options struct {
	SenderName        string
	SenderEmail       string
	MaxFollowups      int
	FollowupDelayDays int // default wait for a manually scheduled follow-up
	HeartbeatInterval time.Duration
	CampaignPace      time.Duration
}

// Service runs the draft, approve, send, schedule and follow-up workflow.
// Every operation that reads and then writes persisted state does so inside
// one store transaction.
type Service struct {
	store   *database.Store
	guard   *safety.Guardrails
	drafter ai.Drafter
	sender  sender.Sender
	replies sender.ReplyChecker // nil when the sender cannot read mail
	tracker *pipeline.Tracker
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
}

func NewService(store *database.Store, guard *safety.Guardrails, drafter ai.Drafter, snd sender.Sender, tracker *pipeline.Tracker, logger *slog.Logger, opts Options) *Service {
	if opts.MaxFollowups <= 0 {
		opts.MaxFollowups = guard.Limits().MaxFollowups
	}
	if opts.FollowupDelayDays <= 0 {
		opts.FollowupDelayDays = 5
	}
	return &Service{
		store:   store,
		guard:   guard,
		drafter: drafter,
		sender:  snd,
		tracker: tracker,
		logger:  logger.With("component", "outreach"),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service clock
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetReplyChecker enables reply detection during heartbeats
func (s *Service) SetReplyChecker(rc sender.ReplyChecker) {
	s.replies = rc
}

// DraftRequest describes a new cold email to generate
type DraftRequest struct {
	Company        string
	Role           string
	RecipientName  string
	RecipientEmail string
	RecipientTitle string
	JobDescription string
	JobURL         string
}

// DraftResult is a stored draft plus the content review
type DraftResult struct {
	Entry   *models.OutreachEntry
	Content safety.Check
}

// Draft generates an email and stores it as a draft entry. The content check
// is advisory and never prevents the draft from being stored.
func (s *Service) Draft(ctx context.Context, req DraftRequest) (*DraftResult, error) {
	if strings.TrimSpace(req.Company) == "" {
		return nil, errors.New("company is required")
	}

	history, err := s.store.CompanyHistory(ctx, req.Company)
	if err != nil {
		return nil, fmt.Errorf("failed to load company history: %w", err)
	}

	draft, err := s.drafter.Draft(ctx, ai.DraftContext{
		SenderName:     s.opts.SenderName,
		SenderEmail:    s.opts.SenderEmail,
		Company:        req.Company,
		Role:           req.Role,
		RecipientName:  req.RecipientName,
		RecipientTitle: req.RecipientTitle,
		JobDescription: req.JobDescription,
		CompanyHistory: summarizeHistory(history),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to draft email: %w", err)
	}

	entry := models.NewOutreachEntry(uuid.NewString(), s.now())
	entry.MaxFollowups = s.opts.MaxFollowups
	entry.CompanyName = req.Company
	entry.RoleTitle = req.Role
	entry.RecipientName = req.RecipientName
	entry.RecipientEmail = strings.TrimSpace(req.RecipientEmail)
	entry.RecipientTitle = req.RecipientTitle
	entry.JobDescription = req.JobDescription
	entry.JobURL = req.JobURL
	entry.Subject = draft.Subject
	entry.Body = draft.Body
	if draft.Personalization != nil {
		entry.Personalization = draft.Personalization
	}

	if err := s.store.SaveEntry(ctx, entry, database.EventDrafted); err != nil {
		return nil, err
	}

	content := s.guard.CheckEmailContent(entry.Subject, entry.Body)
	if content.Advisory() {
		s.logger.Warn("draft content warning", "entry", entry.ID, "message", content.Message)
	}
	s.logger.Info("draft stored", "entry", entry.ID, "company", entry.CompanyName)
	return &DraftResult{Entry: entry, Content: content}, nil
}

func summarizeHistory(h *models.CompanyHistory) string {
	if h == nil || h.TotalOutreach == 0 {
		return ""
	}
	summary := fmt.Sprintf("%d previous emails, %d replies", h.TotalOutreach, h.ResponsesReceived)
	if h.LastContactDate != nil {
		summary += ", last contact " + models.DateKey(*h.LastContactDate)
	}
	if h.LastStatus != "" {
		summary += ", last status " + h.LastStatus
	}
	return summary
}

// SendRequest asks for a stored draft to be sent
type SendRequest struct {
	EntryID       string
	Approved      bool
	OpportunityID string // must exist; linked to the entry after a successful send
}

// SendResult is the outcome of a send attempt. A blocked send is not an
// error: Sent is false and Verdict says why.
type SendResult struct {
	Entry     *models.OutreachEntry
	Verdict   safety.Verdict
	Sent      bool
	Receipt   *sender.Receipt
	FollowUps []models.FollowUpTask
	LinkErr   error // set when the send succeeded but linking the opportunity did not
}

// Blocked reports whether the guardrails stopped the send
func (r *SendResult) Blocked() bool {
	return r != nil && r.Verdict.Blocking()
}

// Send runs the guardrails against current state and, if they pass, sends
// the draft, counts it, schedules its follow-ups and persists everything.
// Nothing is written when the sender fails.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	var result *SendResult
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		entry, err := tx.GetEntry(ctx, req.EntryID)
		if err != nil {
			return err
		}
		if entry.Status != models.StatusDraft && entry.Status != models.StatusScheduled {
			return fmt.Errorf("%s is %s: %w", entry.ID, entry.Status, ErrAlreadySent)
		}
		if entry.RecipientEmail == "" {
			return fmt.Errorf("%s: %w", entry.ID, ErrNoRecipient)
		}

		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		if state.IsPaused(now) {
			return fmt.Errorf("%s: %w", state.PauseReason, ErrCampaignPaused)
		}

		// an unknown opportunity is refused before anything goes out
		if req.OpportunityID != "" {
			opp, err := tx.GetOpportunity(ctx, req.OpportunityID)
			if err != nil {
				return fmt.Errorf("failed to load opportunity: %w", err)
			}
			req.OpportunityID = opp.ID
		}

		verdict, err := s.evaluate(ctx, tx, state, entry.RecipientEmail, entry.CompanyName, req.Approved, now)
		if err != nil {
			return err
		}
		result = &SendResult{Entry: entry, Verdict: verdict}
		if verdict.Blocking() {
			s.logger.Warn("send blocked", "entry", entry.ID, "violation", verdict.Violation, "message", verdict.Message)
			return nil
		}

		receipt, err := s.sender.Send(ctx, sender.Message{
			To:       entry.RecipientEmail,
			ToName:   entry.RecipientName,
			From:     s.opts.SenderEmail,
			FromName: s.opts.SenderName,
			Subject:  entry.Subject,
			Body:     entry.Body,
		})
		if err != nil {
			s.logger.Error("send failed", "entry", entry.ID, "error", err)
			return fmt.Errorf("failed to send %s: %w", entry.ID, err)
		}

		state.RecordSend(now)
		entry.Status = models.StatusSent
		entry.SentAt = &now
		entry.UpdatedAt = now
		entry.ThreadID = receipt.ThreadID
		entry.MessageID = receipt.MessageID

		tasks := scheduler.Schedule(state, entry, entry.JobDescription, now)
		entry.NextFollowupScheduled = scheduler.NextDue(state, entry.ID)

		if err := tx.SaveEntry(ctx, entry, database.EventSent); err != nil {
			return err
		}
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}
		result.Sent = true
		result.Receipt = receipt
		result.FollowUps = tasks
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Sent && req.OpportunityID != "" {
		// the email is out and recorded; a failed link is repaired with
		// "pipeline link" rather than undoing the send
		if _, err := s.tracker.LinkOutreach(ctx, req.OpportunityID, result.Entry.ID); err != nil {
			s.logger.Error("failed to link opportunity", "entry", result.Entry.ID, "opportunity", req.OpportunityID, "error", err)
			result.LinkErr = err
		}
	}
	if result.Sent {
		s.logger.Info("email sent", "entry", result.Entry.ID, "to", result.Entry.RecipientEmail,
			"followups", len(result.FollowUps), "warnings", len(result.Verdict.Warnings()))
	}
	return result, nil
}

// evaluate builds the snapshot for a send to email at company and asks the
// guardrails for a verdict
func (s *Service) evaluate(ctx context.Context, tx *database.Store, state *models.HeartbeatState, email, company string, approved bool, now time.Time) (safety.Verdict, error) {
	history, err := tx.CompanyHistory(ctx, company)
	if err != nil {
		return safety.Verdict{}, fmt.Errorf("failed to load company history: %w", err)
	}
	listed, err := tx.NoContact(ctx, email)
	if err != nil {
		return safety.Verdict{}, fmt.Errorf("failed to check no-contact list: %w", err)
	}
	return s.guard.CanSendEmail(
		safety.Snapshot{State: state, Company: history, NoContact: listed, Now: now},
		safety.SendRequest{RecipientEmail: email, Company: company, Approved: approved},
	), nil
}

func (s *Service) loadState(ctx context.Context, tx *database.Store) (*models.HeartbeatState, error) {
	state, status, err := tx.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	switch status {
	case database.StateRecovered:
		s.logger.Warn("heartbeat state was corrupt, reset to defaults")
	case database.StateCreated:
		s.logger.Info("heartbeat state created")
	}
	return state, nil
}
