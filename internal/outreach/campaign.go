package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/jobsource"
	"github.com/khrees2412/coldreach/internal/safety"
	"github.com/khrees2412/coldreach/internal/scheduler"
	"github.com/khrees2412/coldreach/pkg/models"
	"golang.org/x/time/rate"
)

// Pause holds all outbound email. A non-nil until makes the pause lift on
// the first heartbeat after it.
func (s *Service) Pause(ctx context.Context, reason string, until *time.Time) error {
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		state.Pause(reason, until)
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return err
	}
	s.logger.Info("campaigns paused", "reason", reason, "until", until)
	return nil
}

func (s *Service) Resume(ctx context.Context) error {
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		state.Resume()
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return err
	}
	s.logger.Info("campaigns resumed")
	return nil
}

// Status is a point-in-time view of the sending state
type Status struct {
	State          *models.HeartbeatState
	Paused         bool
	SentToday      int
	RemainingToday int
	Pending        int
	Due            int
	NextSendAt     *time.Time // earliest send that avoids a rate-limit warning
}

func (s *Service) Status(ctx context.Context) (*Status, error) {
	var st *Status
	err := s.store.Tx(ctx, func(tx *database.Store) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		limits := s.guard.Limits()
		sent := state.SentToday(now)
		remaining := limits.MaxDailyEmails - sent
		if remaining < 0 {
			remaining = 0
		}
		st = &Status{
			State:          state,
			Paused:         state.IsPaused(now),
			SentToday:      sent,
			RemainingToday: remaining,
			Pending:        len(scheduler.Pending(state)),
			Due:            len(scheduler.Due(state, now)),
		}
		if limits.RateLimitingEnabled && state.LastSendTimestamp != nil {
			next := state.LastSendTimestamp.Add(limits.MinEmailInterval)
			if next.After(now) {
				st.NextSendAt = &next
			}
		}
		return nil
	})
	return st, err
}

// Campaign outcomes recorded per job
const (
	OutcomeSent       = "sent"
	OutcomeDeclined   = "declined"
	OutcomeBlocked    = "blocked"
	OutcomeFailed     = "failed"
	OutcomeDraftOnly  = "drafted" // no recipient email, kept as a draft
	OutcomeDraftError = "draft-error"
	OutcomeNotReached = "not-reached" // stopped before this job's turn
)

// CampaignItem is what happened to one job
type CampaignItem struct {
	Job     jobsource.Job
	EntryID string
	Outcome string
	Message string
}

// CampaignReport summarises a campaign run
type CampaignReport struct {
	Items []CampaignItem
	Batch safety.Check
}

// Count returns how many items ended with outcome
func (r *CampaignReport) Count(outcome string) int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == outcome {
			n++
		}
	}
	return n
}

// RunCampaign drafts every pending job (up to limit), checks the batch for
// mass-email patterns, then asks for approval and sends each one, spaced by
// the campaign pace. A job's status is written back to src only once its
// outcome is final; jobs the run stops before, or that hit the daily limit
// or a pause, stay pending for the next run.
func (s *Service) RunCampaign(ctx context.Context, src jobsource.Source, limit int, approver Approver) (*CampaignReport, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st.Paused {
		return nil, fmt.Errorf("%s: %w", st.State.PauseReason, ErrCampaignPaused)
	}

	jobs, err := src.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	report := &CampaignReport{}
	if len(jobs) == 0 {
		report.Batch = s.guard.CheckBatch(nil)
		return report, nil
	}
	s.logger.Info("campaign started", "jobs", len(jobs))

	type drafted struct {
		item  int
		draft *DraftResult
	}
	var drafts []drafted
	var batch []safety.BatchEmail
	for _, job := range jobs {
		res, err := s.Draft(ctx, DraftRequest{
			Company:        job.Company,
			Role:           job.Role,
			RecipientName:  job.Recipient,
			RecipientEmail: job.Email,
			RecipientTitle: job.RecipientTitle,
			JobDescription: job.JobDescription,
			JobURL:         job.JobURL,
		})
		if err != nil {
			s.logger.Error("campaign draft failed", "job", job.ID, "error", err)
			report.Items = append(report.Items, CampaignItem{Job: job, Outcome: OutcomeDraftError, Message: err.Error()})
			continue
		}
		if job.Email == "" {
			report.Items = append(report.Items, CampaignItem{Job: job, EntryID: res.Entry.ID, Outcome: OutcomeDraftOnly})
			s.updateJob(ctx, src, job.ID, jobsource.StatusDrafted)
			continue
		}
		report.Items = append(report.Items, CampaignItem{Job: job, EntryID: res.Entry.ID, Outcome: OutcomeNotReached})
		drafts = append(drafts, drafted{item: len(report.Items) - 1, draft: res})
		batch = append(batch, safety.BatchEmail{Subject: res.Entry.Subject, Body: res.Entry.Body})
	}

	report.Batch = s.guard.CheckBatch(batch)
	if report.Batch.Blocking() {
		s.logger.Warn("campaign batch blocked", "message", report.Batch.Message)
		return report, nil
	}

	pace := rate.Inf
	if s.opts.CampaignPace > 0 {
		pace = rate.Every(s.opts.CampaignPace)
	}
	limiter := rate.NewLimiter(pace, 1)

	for _, d := range drafts {
		item := &report.Items[d.item]
		entry := d.draft.Entry

		approved, err := approver.Approve(ctx, Preview{
			Kind:     "email",
			Company:  entry.CompanyName,
			Role:     entry.RoleTitle,
			To:       entry.RecipientEmail,
			Subject:  entry.Subject,
			Body:     entry.Body,
			Warnings: advisories(d.draft.Content),
		})
		if err != nil {
			return report, err
		}
		if !approved {
			item.Outcome = OutcomeDeclined
			s.updateJob(ctx, src, item.Job.ID, jobsource.StatusDraftedNotSent)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}
		res, err := s.Send(ctx, SendRequest{EntryID: entry.ID, Approved: true})
		if errors.Is(err, ErrCampaignPaused) {
			item.Message = err.Error()
			return report, nil
		}
		if err != nil {
			item.Outcome = OutcomeFailed
			item.Message = err.Error()
			s.updateJob(ctx, src, item.Job.ID, jobsource.StatusSendFailed)
			continue
		}
		if !res.Sent {
			item.Outcome = OutcomeBlocked
			item.Message = res.Verdict.Message
			// the daily limit lifts tomorrow, so the job stays pending
			if res.Verdict.Violation == safety.ViolationDailyLimit {
				break
			}
			s.updateJob(ctx, src, item.Job.ID, jobsource.StatusBlocked+": "+res.Verdict.Message)
			continue
		}
		item.Outcome = OutcomeSent
		if w := res.Verdict.Warnings(); len(w) > 0 {
			item.Message = w[0].Message
		}
		s.updateJob(ctx, src, item.Job.ID, jobsource.StatusSent)
	}

	s.logger.Info("campaign finished",
		"sent", report.Count(OutcomeSent),
		"declined", report.Count(OutcomeDeclined),
		"blocked", report.Count(OutcomeBlocked),
		"failed", report.Count(OutcomeFailed))
	return report, nil
}

func advisories(checks ...safety.Check) []safety.Check {
	var out []safety.Check
	for _, c := range checks {
		if c.Advisory() {
			out = append(out, c)
		}
	}
	return out
}

// updateJob writes a job status back to the source. A failure here is
// logged and does not undo the send.
func (s *Service) updateJob(ctx context.Context, src jobsource.Source, id, status string) {
	if err := src.UpdateStatus(ctx, id, status, s.now()); err != nil {
		s.logger.Error("failed to update job status", "job", id, "status", status, "error", err)
	}
}
