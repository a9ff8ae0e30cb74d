package models

import (
	"fmt"
	"time"
)

// FollowUpTask is one pending follow-up persisted in the heartbeat state
type FollowUpTask struct {
	ID             string     `json:"id"`
	EntryID        string     `json:"entry_id"`
	Company        string     `json:"company"`
	Role           string     `json:"role"`
	RecipientEmail string     `json:"email"`
	RecipientName  string     `json:"recipient_name"`
	JobDescription string     `json:"job_description"` // snapshot used to regenerate content
	ThreadID       string     `json:"thread_id,omitempty"`
	DueAt          time.Time  `json:"due_at"`
	Ordinal        int        `json:"followup_number"`
	Name           string     `json:"followup_name"` // "Follow-up 1/2/3"
	Sent           bool       `json:"sent"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}

// IsDue reports whether the task should be sent at now
func (t FollowUpTask) IsDue(now time.Time) bool {
	return !t.Sent && !t.DueAt.After(now)
}

// HeartbeatState is the process-wide persisted record driving limits and follow-ups
type HeartbeatState struct {
	LastRun          *time.Time `json:"last_run,omitempty"`
	NextScheduledRun *time.Time `json:"next_scheduled_run,omitempty"`

	ScheduledFollowups []FollowUpTask `json:"scheduled_followups"`

	CampaignsPaused bool       `json:"campaigns_paused"`
	PauseReason     string     `json:"pause_reason,omitempty"`
	PauseUntil      *time.Time `json:"pause_until,omitempty"`

	LastSendTimestamp *time.Time `json:"last_send_timestamp,omitempty"`
	DailyEmailCount   int        `json:"daily_email_count"`
	CurrentDate       string     `json:"current_date,omitempty"` // YYYY-MM-DD
}

// NewHeartbeatState returns the defaults used on first run
func NewHeartbeatState() *HeartbeatState {
	return &HeartbeatState{ScheduledFollowups: []FollowUpTask{}}
}

// SentToday is the daily counter as seen from now; a stale date counts as zero
func (s *HeartbeatState) SentToday(now time.Time) int {
	if s.CurrentDate != DateKey(now) {
		return 0
	}
	return s.DailyEmailCount
}

// RollDate resets the daily counter when the UTC day has changed
func (s *HeartbeatState) RollDate(now time.Time) {
	today := DateKey(now)
	if s.CurrentDate != today {
		s.CurrentDate = today
		s.DailyEmailCount = 0
	}
}

// RecordSend counts one delivered email at now
func (s *HeartbeatState) RecordSend(now time.Time) {
	s.RollDate(now)
	s.DailyEmailCount++
	sent := now
	s.LastSendTimestamp = &sent
}

// Pause stops outbound email until Resume, or until until has passed when set
func (s *HeartbeatState) Pause(reason string, until *time.Time) {
	s.CampaignsPaused = true
	s.PauseReason = reason
	s.PauseUntil = until
}

// Resume clears any pause
func (s *HeartbeatState) Resume() {
	s.CampaignsPaused = false
	s.PauseReason = ""
	s.PauseUntil = nil
}

// IsPaused reports whether sends are currently held
func (s *HeartbeatState) IsPaused(now time.Time) bool {
	if !s.CampaignsPaused {
		return false
	}
	return s.PauseUntil == nil || now.Before(*s.PauseUntil)
}

// Validate rejects malformed follow-up tasks so they surface at load time
func (s *HeartbeatState) Validate() error {
	if s.DailyEmailCount < 0 {
		return fmt.Errorf("negative daily email count %d", s.DailyEmailCount)
	}
	if s.CurrentDate != "" {
		if _, err := time.Parse("2006-01-02", s.CurrentDate); err != nil {
			return fmt.Errorf("invalid current_date %q: %w", s.CurrentDate, err)
		}
	}
	for i, t := range s.ScheduledFollowups {
		if t.ID == "" || t.EntryID == "" {
			return fmt.Errorf("follow-up task %d: missing id or entry id", i)
		}
		if t.DueAt.IsZero() {
			return fmt.Errorf("follow-up task %s: missing due_at", t.ID)
		}
		if t.Ordinal < 1 {
			return fmt.Errorf("follow-up task %s: invalid ordinal %d", t.ID, t.Ordinal)
		}
	}
	return nil
}
