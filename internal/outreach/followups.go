package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/khrees2412/coldreach/internal/ai"
	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/safety"
	"github.com/khrees2412/coldreach/internal/scheduler"
	"github.com/khrees2412/coldreach/internal/sender"
	"github.com/khrees2412/coldreach/pkg/models"
)

// Preview is what an approver sees before an email goes out
type Preview struct {
	Kind     string // "email" or the follow-up name
	Company  string
	Role     string
	To       string
	Subject  string
	Body     string
	Warnings []safety.Check
}

// Approver gives the explicit consent every send requires
type Approver interface {
	Approve(ctx context.Context, p Preview) (bool, error)
}

// ApproveFunc adapts a function to Approver
type ApproveFunc func(ctx context.Context, p Preview) (bool, error)

func (f ApproveFunc) Approve(ctx context.Context, p Preview) (bool, error) {
	return f(ctx, p)
}

// HeartbeatResult is what a heartbeat run found
type HeartbeatResult struct {
	Due     []models.FollowUpTask
	Pending int
	Resumed bool // a timed pause expired during this run
	Paused  bool
	NextRun time.Time
	Replies []*ReplyResult // threads answered since the last run
}

// Heartbeat records the run, lifts an expired timed pause and returns the
// follow-ups that are due. With a reply checker set, answered threads are
// marked replied first so their follow-ups never come due.
func (s *Service) Heartbeat(ctx context.Context) (*HeartbeatResult, error) {
	replies, err := s.checkReplies(ctx)
	if err != nil {
		return nil, err
	}
	result := &HeartbeatResult{Replies: replies}
	err = s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		if state.CampaignsPaused && state.PauseUntil != nil && !now.Before(*state.PauseUntil) {
			state.Resume()
			result.Resumed = true
		}
		state.RollDate(now)

		next := now.Add(s.opts.HeartbeatInterval)
		last := now
		state.LastRun = &last
		state.NextScheduledRun = &next

		result.Due = scheduler.Due(state, now)
		result.Pending = len(scheduler.Pending(state))
		result.Paused = state.IsPaused(now)
		result.NextRun = next
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	if result.Resumed {
		s.logger.Info("campaigns resumed, pause expired")
	}
	s.logger.Info("heartbeat", "due", len(result.Due), "pending", result.Pending, "paused", result.Paused, "replies", len(result.Replies))
	return result, nil
}

// checkReplies records a reply for every open thread that gained an inbound
// message. Lookup failures are logged and the entry is retried next run.
func (s *Service) checkReplies(ctx context.Context) ([]*ReplyResult, error) {
	if s.replies == nil {
		return nil, nil
	}
	var open []*models.OutreachEntry
	for _, status := range []models.OutreachStatus{models.StatusSent, models.StatusFollowupSent} {
		entries, err := s.store.SearchEntries(ctx, database.EntryFilter{Status: status})
		if err != nil {
			return nil, fmt.Errorf("failed to list open entries: %w", err)
		}
		open = append(open, entries...)
	}

	var recorded []*ReplyResult
	for _, entry := range open {
		if entry.ThreadID == "" {
			continue
		}
		replies, err := s.replies.Replies(ctx, entry.ThreadID, entry.MessageID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, sender.ErrRepliesUnavailable) {
				s.logger.Debug("reply check skipped", "error", err)
				break
			}
			s.logger.Warn("reply check failed", "entry", entry.ID, "thread", entry.ThreadID, "error", err)
			continue
		}
		if len(replies) == 0 {
			continue
		}
		res, err := s.RecordReply(ctx, entry.ID, models.ResponseNeedsReply, replies[0].Snippet)
		if err != nil {
			return nil, err
		}
		s.logger.Info("reply detected", "entry", entry.ID, "company", entry.CompanyName, "from", replies[0].From)
		recorded = append(recorded, res)
	}
	return recorded, nil
}

// DueFollowUps lists the unsent follow-ups due now
func (s *Service) DueFollowUps(ctx context.Context) ([]models.FollowUpTask, error) {
	var due []models.FollowUpTask
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		due = scheduler.Due(state, s.now())
		return nil
	})
	return due, err
}

// PendingFollowUps lists every unsent follow-up
func (s *Service) PendingFollowUps(ctx context.Context) ([]models.FollowUpTask, error) {
	var pending []models.FollowUpTask
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		pending = scheduler.Pending(state)
		return nil
	})
	return pending, err
}

// CancelFollowUp drops one scheduled follow-up and moves the entry's next
// follow-up date accordingly
func (s *Service) CancelFollowUp(ctx context.Context, taskID string) (*models.FollowUpTask, error) {
	var removed *models.FollowUpTask
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		removed, err = scheduler.CancelTask(state, taskID)
		if err != nil {
			return err
		}
		entry, err := tx.GetEntry(ctx, removed.EntryID)
		if err != nil {
			return err
		}
		entry.NextFollowupScheduled = scheduler.NextDue(state, entry.ID)
		entry.UpdatedAt = s.now()
		if err := tx.SaveEntry(ctx, entry, database.EventUpdated); err != nil {
			return err
		}
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("follow-up cancelled", "task", removed.ID, "entry", removed.EntryID)
	return removed, nil
}

// ScheduleResult is the outcome of a manual follow-up request. A blocked
// request is not an error: Task is nil and Check says why.
type ScheduleResult struct {
	Entry *models.OutreachEntry
	Check safety.Check
	Task  *models.FollowUpTask
}

// ScheduleFollowUp queues one extra follow-up for a sent entry, days
// calendar days from now (the configured default when days <= 0). Pending
// tasks count toward the follow-up ceiling. A short-wait warning does not
// stop the task, since it only falls due later.
func (s *Service) ScheduleFollowUp(ctx context.Context, entryID string, days int) (*ScheduleResult, error) {
	if days <= 0 {
		days = s.opts.FollowupDelayDays
	}
	var result *ScheduleResult
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		entry, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.SentAt == nil {
			return fmt.Errorf("%s: %w", entry.ID, ErrNotSent)
		}
		if reason := closedReason(entry); reason != "" {
			return fmt.Errorf("%s: %w", reason, ErrEntryClosed)
		}
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}

		now := s.now()
		planned := entry.FollowupCount + len(scheduler.PendingForEntry(state, entry.ID))
		result = &ScheduleResult{
			Entry: entry,
			Check: s.guard.CanScheduleFollowup(entry.CompanyName, planned, entry.LastContact(), now),
		}
		if result.Check.Blocking() {
			s.logger.Warn("follow-up not scheduled", "entry", entry.ID, "message", result.Check.Message)
			return nil
		}

		task := scheduler.Add(state, entry, entry.JobDescription, now.AddDate(0, 0, days))
		entry.NextFollowupScheduled = scheduler.NextDue(state, entry.ID)
		entry.UpdatedAt = now
		if err := tx.SaveEntry(ctx, entry, database.EventUpdated); err != nil {
			return err
		}
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}
		result.Task = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Task != nil {
		s.logger.Info("follow-up scheduled", "entry", entryID, "task", result.Task.ID, "due", result.Task.DueAt)
	}
	return result, nil
}

// FollowUpResult is the outcome of one follow-up attempt
type FollowUpResult struct {
	Task     models.FollowUpTask
	Entry    *models.OutreachEntry
	Sent     bool
	Skipped  string       // why the task was dropped without sending
	Schedule safety.Check // follow-up eligibility
	Verdict  safety.Verdict
	Receipt  *sender.Receipt
}

// SendFollowUp drafts the task's follow-up with its ordinal tone, asks for
// approval and sends it in the original thread. Tasks whose entry has
// replied or closed, or has used up its follow-ups, are dropped.
func (s *Service) SendFollowUp(ctx context.Context, taskID string, approver Approver) (*FollowUpResult, error) {
	var (
		task  models.FollowUpTask
		entry *models.OutreachEntry
	)
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		found, err := scheduler.Find(state, taskID)
		if err != nil {
			return err
		}
		if found.Sent {
			return fmt.Errorf("%s: %w", found.ID, scheduler.ErrAlreadySent)
		}
		task = *found
		entry, err = tx.GetEntry(ctx, task.EntryID)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &FollowUpResult{Task: task, Entry: entry}
	now := s.now()
	if reason := closedReason(entry); reason != "" {
		return s.dropFollowUps(ctx, result, reason)
	}
	result.Schedule = s.guard.CanScheduleFollowup(entry.CompanyName, entry.FollowupCount, entry.LastContact(), now)
	if result.Schedule.Blocking() {
		return s.dropFollowUps(ctx, result, result.Schedule.Message)
	}

	var originalSent time.Time
	if entry.SentAt != nil {
		originalSent = *entry.SentAt
	}
	draft, err := s.drafter.DraftFollowUp(ctx, ai.FollowUpContext{
		SenderName:      s.opts.SenderName,
		Company:         task.Company,
		Role:            task.Role,
		RecipientName:   task.RecipientName,
		JobDescription:  task.JobDescription,
		OriginalSubject: entry.Subject,
		OriginalBody:    entry.Body,
		OriginalSentAt:  originalSent,
		Ordinal:         task.Ordinal,
		MaxFollowups:    entry.MaxFollowups,
		Tone:            scheduler.Tone(task.Ordinal),
		DaysElapsed:     scheduler.DaysElapsed(task.Ordinal),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to draft %s: %w", task.Name, err)
	}

	preview := Preview{
		Kind:    task.Name,
		Company: task.Company,
		Role:    task.Role,
		To:      task.RecipientEmail,
		Subject: draft.Subject,
		Body:    draft.Body,
	}
	if result.Schedule.Advisory() {
		preview.Warnings = append(preview.Warnings, result.Schedule)
	}
	if content := s.guard.CheckEmailContent(draft.Subject, draft.Body); content.Advisory() {
		preview.Warnings = append(preview.Warnings, content)
	}
	approved, err := approver.Approve(ctx, preview)
	if err != nil {
		return nil, err
	}

	err = s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		current, err := scheduler.Find(state, task.ID)
		if err != nil {
			return err
		}
		if current.Sent {
			return fmt.Errorf("%s: %w", current.ID, scheduler.ErrAlreadySent)
		}
		entry, err = tx.GetEntry(ctx, task.EntryID)
		if err != nil {
			return err
		}
		result.Entry = entry

		now := s.now()
		if state.IsPaused(now) {
			return fmt.Errorf("%s: %w", state.PauseReason, ErrCampaignPaused)
		}
		result.Verdict, err = s.evaluate(ctx, tx, state, task.RecipientEmail, task.Company, approved, now)
		if err != nil {
			return err
		}
		if result.Verdict.Blocking() {
			s.logger.Warn("follow-up blocked", "task", task.ID, "violation", result.Verdict.Violation, "message", result.Verdict.Message)
			return nil
		}

		receipt, err := s.sender.Send(ctx, sender.Message{
			To:        task.RecipientEmail,
			ToName:    task.RecipientName,
			From:      s.opts.SenderEmail,
			FromName:  s.opts.SenderName,
			Subject:   draft.Subject,
			Body:      draft.Body,
			ThreadID:  task.ThreadID,
			InReplyTo: replyHeader(entry.MessageID),
		})
		if err != nil {
			s.logger.Error("follow-up send failed", "task", task.ID, "error", err)
			return fmt.Errorf("failed to send %s: %w", task.Name, err)
		}

		state.RecordSend(now)
		if err := scheduler.MarkSent(state, task.ID, now); err != nil {
			return err
		}
		entry.FollowupCount++
		entry.LastFollowupAt = &now
		entry.Status = models.StatusFollowupSent
		entry.UpdatedAt = now
		entry.NextFollowupScheduled = scheduler.NextDue(state, entry.ID)
		if entry.FollowupsRemaining() == 0 {
			scheduler.CancelForEntry(state, entry.ID)
			entry.NextFollowupScheduled = nil
		}

		if err := tx.SaveEntry(ctx, entry, database.EventFollowup); err != nil {
			return err
		}
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}
		result.Sent = true
		result.Receipt = receipt
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Sent {
		s.logger.Info("follow-up sent", "task", task.ID, "entry", entry.ID, "ordinal", task.Ordinal)
	}
	return result, nil
}

// replyHeader returns id when it is an RFC 5322 Message-ID. Gmail message ids
// are not, and Gmail threads by ThreadID anyway.
func replyHeader(id string) string {
	if strings.HasPrefix(id, "<") && strings.HasSuffix(id, ">") {
		return id
	}
	return ""
}

func closedReason(entry *models.OutreachEntry) string {
	switch entry.Status {
	case models.StatusReplied, models.StatusConverted, models.StatusDead:
		return "entry is " + string(entry.Status)
	}
	return ""
}

// dropFollowUps removes every pending task of the result's entry
func (s *Service) dropFollowUps(ctx context.Context, result *FollowUpResult, reason string) (*FollowUpResult, error) {
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		scheduler.CancelForEntry(state, result.Entry.ID)
		if result.Entry.NextFollowupScheduled != nil {
			entry, err := tx.GetEntry(ctx, result.Entry.ID)
			if err != nil {
				return err
			}
			entry.NextFollowupScheduled = nil
			entry.UpdatedAt = s.now()
			if err := tx.SaveEntry(ctx, entry, database.EventUpdated); err != nil {
				return err
			}
			result.Entry = entry
		}
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	result.Skipped = reason
	s.logger.Info("follow-ups dropped", "entry", result.Entry.ID, "reason", reason)
	return result, nil
}

// SendDueFollowUps works through the due follow-ups in due order, at most
// one per entry per run. It stops early once the daily limit is reached.
func (s *Service) SendDueFollowUps(ctx context.Context, approver Approver) ([]*FollowUpResult, error) {
	due, err := s.DueFollowUps(ctx)
	if err != nil {
		return nil, err
	}
	var results []*FollowUpResult
	seen := map[string]bool{}
	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if seen[task.EntryID] {
			continue
		}
		seen[task.EntryID] = true

		res, err := s.SendFollowUp(ctx, task.ID, approver)
		if errors.Is(err, scheduler.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Verdict.Violation == safety.ViolationDailyLimit {
			break
		}
	}
	return results, nil
}
