package models

import (
	"fmt"
	"strings"
	"time"
)

// PipelineStage is the named phase of a job opportunity
type PipelineStage string

const (
	StageIdentified  PipelineStage = "identified"
	StageResearched  PipelineStage = "researched"
	StageContacted   PipelineStage = "contacted"
	StageApplied     PipelineStage = "applied"
	StageReplied     PipelineStage = "replied"
	StagePhoneScreen PipelineStage = "phone_screen"
	StageInterview   PipelineStage = "interview"
	StageFinalRound  PipelineStage = "final_round"
	StageOffer       PipelineStage = "offer"
	StageNegotiating PipelineStage = "negotiating"
	StageAccepted    PipelineStage = "accepted"
	StageRejected    PipelineStage = "rejected"
	StageDeclined    PipelineStage = "declined"
	StageWithdrawn   PipelineStage = "withdrawn"
)

// AllStages lists every stage in funnel order
var AllStages = []PipelineStage{
	StageIdentified, StageResearched, StageContacted, StageApplied, StageReplied,
	StagePhoneScreen, StageInterview, StageFinalRound, StageOffer, StageNegotiating,
	StageAccepted, StageRejected, StageDeclined, StageWithdrawn,
}

// Valid reports whether s is a known stage
func (s PipelineStage) Valid() bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s closes the opportunity
func (s PipelineStage) Terminal() bool {
	switch s {
	case StageAccepted, StageRejected, StageDeclined, StageWithdrawn:
		return true
	}
	return false
}

// ParsePipelineStage converts user input ("phone-screen", "Offer") into a stage
func ParsePipelineStage(v string) (PipelineStage, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_")
	s := PipelineStage(norm)
	if !s.Valid() {
		return "", fmt.Errorf("unknown pipeline stage %q", v)
	}
	return s, nil
}

// OpportunityNote is a timestamped note on an opportunity
type OpportunityNote struct {
	Date    time.Time `json:"date"`
	Content string    `json:"content"`
}

// JobOpportunity is a tracked application moving through the pipeline
type JobOpportunity struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompanyName    string            `json:"company_name"`
	RoleTitle      string            `json:"role_title"`
	JobDescription string            `json:"job_description,omitempty"`
	JobURL         string            `json:"job_url,omitempty"`
	SalaryRange    string            `json:"salary_range,omitempty"`
	Location       string            `json:"location,omitempty"`
	IsRemote       *bool             `json:"is_remote,omitempty"`
	Stage          PipelineStage     `json:"stage"`
	OutreachIDs    []string          `json:"outreach_entry_ids"`
	Notes          []OpportunityNote `json:"notes"`
	NextAction     string            `json:"next_action,omitempty"`
	NextActionDue  *time.Time        `json:"next_action_due,omitempty"`
	IsActive       bool              `json:"is_active"`
	Outcome        string            `json:"outcome,omitempty"`
	OutcomeDate    *time.Time        `json:"outcome_date,omitempty"`
}
