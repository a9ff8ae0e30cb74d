package safety

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var optOutPhrases = []string{
	"unsubscribe",
	"opt out",
	"don't want to receive",
	"no longer interested",
}

var spamWords = []string{"guaranteed", "act now", "limited time", "winner", "free money"}

// Minimum days since last contact before a follow-up, by follow-ups already sent
const (
	firstFollowupMinDays = 3
	laterFollowupMinDays = 5
)

// CanSendEmail runs the send battery in a fixed order: approval, daily
// limit, rate limit, company duplicate, no-contact list. The order decides
// which failure is reported when several apply.
func (g *Guardrails) CanSendEmail(snap Snapshot, req SendRequest) Verdict {
	checks := []Check{
		g.checkApproval(req.Approved),
		g.checkDailyLimit(snap),
		g.checkRateLimit(snap),
		g.checkCompanyContact(snap, req.Company),
		g.checkNoContact(snap, req.RecipientEmail),
	}
	return Verdict{Check: Composite(checks), Checks: checks}
}

func (g *Guardrails) checkApproval(approved bool) Check {
	if !approved {
		return Check{
			Level:     LevelBlocking,
			Violation: ViolationMissingApproval,
			Message:   "Explicit user approval required before sending",
			Details:   map[string]any{"action_required": "User must confirm send"},
		}
	}
	return pass("Approval confirmed", nil)
}

func (g *Guardrails) checkDailyLimit(snap Snapshot) Check {
	sent := 0
	if snap.State != nil {
		sent = snap.State.SentToday(snap.Now)
	}
	if sent >= g.limits.MaxDailyEmails {
		return Check{
			Level:     LevelBlocking,
			Violation: ViolationDailyLimit,
			Message:   fmt.Sprintf("Daily limit of %d emails reached", g.limits.MaxDailyEmails),
			Details: map[string]any{
				"sent_today": sent,
				"limit":      g.limits.MaxDailyEmails,
				"resets_at":  "midnight UTC",
			},
		}
	}
	remaining := g.limits.MaxDailyEmails - sent
	return pass(fmt.Sprintf("%d emails remaining today", remaining),
		map[string]any{"remaining": remaining, "sent": sent})
}

func (g *Guardrails) checkRateLimit(snap Snapshot) Check {
	if !g.limits.RateLimitingEnabled || snap.State == nil || snap.State.LastSendTimestamp == nil {
		return pass("Rate limit check passed", nil)
	}
	elapsed := snap.Now.Sub(*snap.State.LastSendTimestamp)
	if elapsed >= g.limits.MinEmailInterval {
		return pass("Rate limit check passed", nil)
	}
	wait := int(math.Ceil((g.limits.MinEmailInterval - elapsed).Seconds()))
	return Check{
		Level:     LevelWarning,
		Violation: ViolationRateLimit,
		Message:   fmt.Sprintf("Rate limit: Please wait %d seconds before sending", wait),
		Details: map[string]any{
			"elapsed_seconds": int(elapsed.Seconds()),
			"minimum_seconds": int(g.limits.MinEmailInterval.Seconds()),
			"wait_seconds":    wait,
		},
	}
}

// checkCompanyContact never fails; prior outreach only earns a warning
func (g *Guardrails) checkCompanyContact(snap Snapshot, company string) Check {
	h := snap.Company
	if h == nil || h.TotalOutreach == 0 {
		return pass("No prior contact with this company", nil)
	}
	var last any
	if h.LastContactDate != nil {
		last = h.LastContactDate.UTC().Format(time.RFC3339)
	}
	return Check{
		Passed:    true,
		Level:     LevelWarning,
		Violation: ViolationDuplicateOutreach,
		Message:   fmt.Sprintf("Prior contact with %s detected (%d emails)", company, h.TotalOutreach),
		Details: map[string]any{
			"company":           company,
			"previous_outreach": h.TotalOutreach,
			"last_contact":      last,
			"recommendation":    "Review previous emails to avoid duplication",
		},
	}
}

// checkNoContact blocks listed recipients and companies flagged do-not-contact
func (g *Guardrails) checkNoContact(snap Snapshot, email string) Check {
	if snap.NoContact != nil {
		return Check{
			Level:     LevelBlocking,
			Violation: ViolationNoContactList,
			Message:   fmt.Sprintf("%s is on the do-not-contact list", email),
			Details: map[string]any{
				"email":    email,
				"reason":   snap.NoContact.Reason,
				"added_at": snap.NoContact.CreatedAt.UTC().Format(time.RFC3339),
			},
		}
	}
	if snap.Company != nil && snap.Company.DoNotContact {
		return Check{
			Level:     LevelBlocking,
			Violation: ViolationNoContactList,
			Message:   fmt.Sprintf("%s is marked do-not-contact", snap.Company.CompanyName),
			Details: map[string]any{
				"company": snap.Company.CompanyName,
				"reason":  snap.Company.DoNotContactReason,
			},
		}
	}
	return pass("Not on no-contact list", nil)
}

// CanScheduleFollowup blocks once the follow-up ceiling is reached and warns
// when too little time has passed since lastContact.
func (g *Guardrails) CanScheduleFollowup(company string, followupCount int, lastContact *time.Time, now time.Time) Check {
	if followupCount >= g.limits.MaxFollowups {
		return Check{
			Level:     LevelBlocking,
			Violation: ViolationMaxFollowups,
			Message:   fmt.Sprintf("Maximum follow-ups (%d) reached for %s", g.limits.MaxFollowups, company),
			Details: map[string]any{
				"company":        company,
				"followups_sent": followupCount,
				"max_allowed":    g.limits.MaxFollowups,
			},
		}
	}

	if lastContact != nil {
		daysSince := int(now.Sub(*lastContact).Hours() / 24)
		minDays := laterFollowupMinDays
		if followupCount == 0 {
			minDays = firstFollowupMinDays
		}
		if daysSince < minDays {
			suggested := lastContact.AddDate(0, 0, minDays)
			return Check{
				Level:     LevelWarning,
				Violation: ViolationRateLimit,
				Message: fmt.Sprintf("Only %d days since last contact. Recommend waiting %d days (after %s).",
					daysSince, minDays, suggested.UTC().Format("2006-01-02")),
				Details: map[string]any{
					"days_since":          daysSince,
					"minimum_recommended": minDays,
					"suggested_date":      suggested.UTC().Format(time.RFC3339),
				},
			}
		}
	}

	return pass("Follow-up can be scheduled", map[string]any{
		"followup_number": followupCount + 1,
		"remaining":       g.limits.MaxFollowups - followupCount - 1,
	})
}

// CheckEmailContent looks for opt-out language and spam trigger words. It
// only ever warns.
func (g *Guardrails) CheckEmailContent(subject, body string) Check {
	text := strings.ToLower(subject + "\n" + body)
	var issues []string

	hasOptOut := false
	for _, phrase := range optOutPhrases {
		if strings.Contains(text, phrase) {
			hasOptOut = true
			break
		}
	}
	if !hasOptOut {
		issues = append(issues, "Email missing unsubscribe/opt-out language")
	}

	var found []string
	for _, w := range spamWords {
		if strings.Contains(text, w) {
			found = append(found, w)
		}
	}
	if len(found) > 0 {
		issues = append(issues, fmt.Sprintf("Potentially spammy language detected: %s", strings.Join(found, ", ")))
	}

	if len(issues) > 0 {
		return Check{
			Level:     LevelWarning,
			Violation: ViolationMissingUnsubscribe,
			Message:   strings.Join(issues, "; "),
			Details:   map[string]any{"issues": issues, "spam_words": found},
		}
	}
	return pass("Email content passes safety checks", nil)
}

// BatchEmail is the part of a proposed email the batch check looks at
type BatchEmail struct {
	Subject string
	Body    string
}

// CheckBatch rejects oversized batches and warns when subjects repeat
// across more than half the batch.
func (g *Guardrails) CheckBatch(emails []BatchEmail) Check {
	limit := g.limits.MaxBatchSize
	if len(emails) > limit {
		return Check{
			Level:     LevelBlocking,
			Violation: ViolationMassEmailPattern,
			Message:   fmt.Sprintf("Batch of %d emails detected. Send in smaller batches.", len(emails)),
			Details:   map[string]any{"batch_size": len(emails), "max_recommended": limit},
		}
	}

	unique := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		unique[e.Subject] = struct{}{}
	}
	if float64(len(unique)) < float64(len(emails))*0.5 {
		return Check{
			Level:     LevelWarning,
			Violation: ViolationMassEmailPattern,
			Message:   "Many emails have identical subjects. Consider more personalization.",
			Details:   map[string]any{"unique_subjects": len(unique), "total": len(emails)},
		}
	}
	return pass("Email batch passes pattern checks", nil)
}
