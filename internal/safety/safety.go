package safety

import (
	"time"

	"github.com/khrees2412/coldreach/pkg/models"
)

// Level is the severity of a check result
type Level string

const (
	LevelInfo     Level = "info"     // nothing to do
	LevelWarning  Level = "warning"  // proceed, but tell the user
	LevelBlocking Level = "blocking" // must not proceed
)

// Violation names the rule a failed check tripped
type Violation string

const (
	ViolationNone               Violation = ""
	ViolationRateLimit          Violation = "rate_limit"
	ViolationDailyLimit         Violation = "daily_limit"
	ViolationDuplicateOutreach  Violation = "duplicate_outreach"
	ViolationNoContactList      Violation = "no_contact_list"
	ViolationMissingApproval    Violation = "missing_approval"
	ViolationUnsubscribeRequest Violation = "unsubscribe_request"
	ViolationMassEmailPattern   Violation = "mass_email_pattern"
	ViolationMissingUnsubscribe Violation = "missing_unsubscribe"
	ViolationMaxFollowups       Violation = "max_followups"
)

// Check is the outcome of one guardrail
type Check struct {
	Passed    bool           `json:"passed"`
	Level     Level          `json:"level"`
	Violation Violation      `json:"violation,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Blocking reports whether the check stops the action
func (c Check) Blocking() bool {
	return !c.Passed && c.Level == LevelBlocking
}

// Advisory reports whether the check carries a warning worth showing,
// whether or not it counts as a failure
func (c Check) Advisory() bool {
	return c.Level == LevelWarning
}

func pass(message string, details map[string]any) Check {
	return Check{Passed: true, Level: LevelInfo, Message: message, Details: details}
}

// Limits are the configured thresholds the guardrails enforce
type Limits struct {
	MaxDailyEmails      int
	MinEmailInterval    time.Duration
	RateLimitingEnabled bool
	MaxFollowups        int
	MaxBatchSize        int
}

// DefaultLimits mirrors the configuration defaults
func DefaultLimits() Limits {
	return Limits{
		MaxDailyEmails:      20,
		MinEmailInterval:    300 * time.Second,
		RateLimitingEnabled: true,
		MaxFollowups:        models.DefaultMaxFollowups,
		MaxBatchSize:        10,
	}
}

// Guardrails evaluates policy checks. Every method is a pure function of its
// arguments; callers load the snapshot and own persistence.
type Guardrails struct {
	limits Limits
}

func New(limits Limits) *Guardrails {
	return &Guardrails{limits: limits}
}

func (g *Guardrails) Limits() Limits {
	return g.limits
}

// Snapshot is the persisted state a send decision is made against
type Snapshot struct {
	State     *models.HeartbeatState
	Company   *models.CompanyHistory
	NoContact *models.NoContactEntry // nil when the recipient is not listed
	Now       time.Time
}

// SendRequest describes a proposed send
type SendRequest struct {
	RecipientEmail string
	Company        string
	Approved       bool
}

// Verdict is the composite answer to "may this email be sent"
type Verdict struct {
	Check
	Checks []Check `json:"checks"` // every check, in evaluation order
}

// Warnings returns the advisory results a caller should surface alongside
// a passing verdict
func (v Verdict) Warnings() []Check {
	var out []Check
	for _, c := range v.Checks {
		if c.Advisory() {
			out = append(out, c)
		}
	}
	return out
}

// Composite reduces an ordered list of checks: the first blocking failure
// wins, then the first warning failure, else success.
func Composite(checks []Check) Check {
	var firstWarning *Check
	for i := range checks {
		c := checks[i]
		if c.Passed {
			continue
		}
		if c.Level == LevelBlocking {
			return c
		}
		if c.Level == LevelWarning && firstWarning == nil {
			firstWarning = &checks[i]
		}
	}
	if firstWarning != nil {
		return *firstWarning
	}
	for _, c := range checks {
		if !c.Passed {
			return c
		}
	}
	return pass("All safety checks passed", map[string]any{})
}
