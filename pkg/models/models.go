package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxFollowups is the follow-up ceiling applied to new entries
const DefaultMaxFollowups = 3

// OutreachStatus is the lifecycle state of a single outreach attempt
type OutreachStatus string

const (
	StatusDraft        OutreachStatus = "draft"
	StatusScheduled    OutreachStatus = "scheduled"
	StatusSent         OutreachStatus = "sent"
	StatusReplied      OutreachStatus = "replied"
	StatusFollowupSent OutreachStatus = "followup-sent"
	StatusConverted    OutreachStatus = "converted"
	StatusDead         OutreachStatus = "dead"
)

var outreachStatuses = []OutreachStatus{
	StatusDraft, StatusScheduled, StatusSent, StatusReplied,
	StatusFollowupSent, StatusConverted, StatusDead,
}

// Valid reports whether s is one of the known statuses
func (s OutreachStatus) Valid() bool {
	for _, known := range outreachStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseOutreachStatus converts user input into an OutreachStatus
func ParseOutreachStatus(v string) (OutreachStatus, error) {
	s := OutreachStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown outreach status %q", v)
	}
	return s, nil
}

// ResponseCategory classifies a reply to an outreach email
type ResponseCategory string

const (
	ResponsePositive   ResponseCategory = "positive"    // interested, wants to talk
	ResponseNeutral    ResponseCategory = "neutral"     // acknowledged, forwarded
	ResponseRejection  ResponseCategory = "rejection"   // not hiring, not interested
	ResponseNoResponse ResponseCategory = "no-response" // automated, out-of-office
	ResponseNeedsReply ResponseCategory = "needs-reply" // asking questions
)

// ParseResponseCategory converts user input into a ResponseCategory
func ParseResponseCategory(v string) (ResponseCategory, error) {
	c := ResponseCategory(strings.ToLower(strings.TrimSpace(v)))
	switch c {
	case ResponsePositive, ResponseNeutral, ResponseRejection, ResponseNoResponse, ResponseNeedsReply:
		return c, nil
	}
	return "", fmt.Errorf("unknown response category %q", v)
}

// OutreachEntry records one cold email attempt to one recipient for one role
type OutreachEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CompanyName    string `json:"company_name"`
	RoleTitle      string `json:"role_title"`
	JobURL         string `json:"job_url,omitempty"`
	JobDescription string `json:"job_description,omitempty"` // snapshot used for follow-ups
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientEmail string `json:"recipient_email,omitempty"` // optional until known
	RecipientTitle string `json:"recipient_title,omitempty"`

	Subject         string   `json:"subject"`
	Body            string   `json:"body"`
	Personalization []string `json:"personalization"`

	Status           OutreachStatus   `json:"status"`
	ResponseCategory ResponseCategory `json:"response_category,omitempty"`
	ResponseBody     string           `json:"response_body,omitempty"`

	DraftedAt *time.Time `json:"drafted_at,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	RepliedAt *time.Time `json:"replied_at,omitempty"`

	FollowupCount         int        `json:"followup_count"`
	MaxFollowups          int        `json:"max_followups"`
	NextFollowupScheduled *time.Time `json:"next_followup_scheduled,omitempty"`
	LastFollowupAt        *time.Time `json:"last_followup_at,omitempty"`

	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// NewOutreachEntry returns a draft entry with the default follow-up ceiling
func NewOutreachEntry(id string, now time.Time) *OutreachEntry {
	drafted := now
	return &OutreachEntry{
		ID:              id,
		CreatedAt:       now,
		UpdatedAt:       now,
		Status:          StatusDraft,
		DraftedAt:       &drafted,
		MaxFollowups:    DefaultMaxFollowups,
		Personalization: []string{},
	}
}

// FollowupsRemaining is how many more follow-ups the entry may receive
func (e *OutreachEntry) FollowupsRemaining() int {
	if e.FollowupCount >= e.MaxFollowups {
		return 0
	}
	return e.MaxFollowups - e.FollowupCount
}

// LastContact is the most recent instant we emailed the recipient
func (e *OutreachEntry) LastContact() *time.Time {
	if e.LastFollowupAt != nil && (e.SentAt == nil || e.LastFollowupAt.After(*e.SentAt)) {
		return e.LastFollowupAt
	}
	return e.SentAt
}

// Validate checks the invariants every persisted entry must hold
func (e *OutreachEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if e.CompanyName == "" {
		return fmt.Errorf("entry %s: company name is required", e.ID)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("entry %s: invalid status %q", e.ID, e.Status)
	}
	if e.FollowupCount < 0 {
		return fmt.Errorf("entry %s: negative follow-up count", e.ID)
	}
	if e.FollowupCount > e.MaxFollowups {
		return fmt.Errorf("entry %s: follow-up count %d exceeds max %d", e.ID, e.FollowupCount, e.MaxFollowups)
	}
	if e.DraftedAt != nil && e.SentAt != nil && e.SentAt.Before(*e.DraftedAt) {
		return fmt.Errorf("entry %s: sent before drafted", e.ID)
	}
	if e.SentAt != nil && e.RepliedAt != nil && e.RepliedAt.Before(*e.SentAt) {
		return fmt.Errorf("entry %s: replied before sent", e.ID)
	}
	if e.Status == StatusReplied && e.NextFollowupScheduled != nil {
		return fmt.Errorf("entry %s: replied entry still has a follow-up scheduled", e.ID)
	}
	return nil
}

// CompanyHistory is the aggregate view of all outreach to one company
type CompanyHistory struct {
	CompanyName        string     `json:"company_name"`
	OutreachIDs        []string   `json:"outreach_ids"`
	TotalOutreach      int        `json:"total_outreach"`
	ResponsesReceived  int        `json:"responses_received"`
	PositiveResponses  int        `json:"positive_responses"`
	Rejections         int        `json:"rejections"`
	FirstContactDate   *time.Time `json:"first_contact_date,omitempty"`
	LastContactDate    *time.Time `json:"last_contact_date,omitempty"`
	LastStatus         string     `json:"last_status,omitempty"`
	DoNotContact       bool       `json:"do_not_contact"`
	DoNotContactReason string     `json:"do_not_contact_reason,omitempty"`
}

// NoContactEntry is a recipient who must never be emailed again
type NoContactEntry struct {
	Email     string    `json:"email"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyStats summarises outreach activity for one UTC day
type DailyStats struct {
	Date              string `json:"date"` // YYYY-MM-DD
	EmailsDrafted     int    `json:"emails_drafted"`
	EmailsSent        int    `json:"emails_sent"`
	FollowupsSent     int    `json:"followups_sent"`
	RepliesReceived   int    `json:"replies_received"`
	PositiveResponses int    `json:"positive_responses"`
	Rejections        int    `json:"rejections"`
}

// ActivityRecord is one append-only block in the per-day activity log
type ActivityRecord struct {
	ID        int64          `json:"id"`
	Date      string         `json:"date"`
	EntryID   string         `json:"entry_id"`
	Event     string         `json:"event"`
	Status    OutreachStatus `json:"status"`
	Snapshot  OutreachEntry  `json:"snapshot"`
	CreatedAt time.Time      `json:"created_at"`
}

// DateKey formats t as the UTC calendar day used for daily keys
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
