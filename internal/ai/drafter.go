package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Draft is a generated email
type Draft struct {
	Subject         string
	Body            string
	Personalization []string
}

// DraftContext is what the drafter knows about a new cold email
type DraftContext struct {
	SenderName     string
	SenderEmail    string
	Company        string
	Role           string
	RecipientName  string
	RecipientTitle string
	JobDescription string
	CompanyHistory string // summary of prior outreach, empty when none
}

// FollowUpContext is what the drafter knows about a follow-up
type FollowUpContext struct {
	SenderName      string
	Company         string
	Role            string
	RecipientName   string
	JobDescription  string
	OriginalSubject string
	OriginalBody    string
	OriginalSentAt  time.Time
	Ordinal         int
	MaxFollowups    int
	Tone            string
	DaysElapsed     int
}

// Drafter produces email content. The orchestrator treats it as opaque.
type Drafter interface {
	Draft(ctx context.Context, in DraftContext) (*Draft, error)
	DraftFollowUp(ctx context.Context, in FollowUpContext) (*Draft, error)
}

type completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// LLMDrafter drafts emails with a language model
type LLMDrafter struct {
	llm completer
}

func NewLLMDrafter(llm completer) *LLMDrafter {
	return &LLMDrafter{llm: llm}
}

func (d *LLMDrafter) Draft(ctx context.Context, in DraftContext) (*Draft, error) {
	out, err := d.llm.Complete(ctx, buildDraftPrompt(in), 1000)
	if err != nil {
		return nil, err
	}
	return ParseDraft(out)
}

func (d *LLMDrafter) DraftFollowUp(ctx context.Context, in FollowUpContext) (*Draft, error) {
	out, err := d.llm.Complete(ctx, buildFollowUpPrompt(in), 600)
	if err != nil {
		return nil, err
	}
	draft, err := ParseDraft(out)
	if err != nil {
		return nil, err
	}
	if draft.Subject == "" && in.OriginalSubject != "" {
		draft.Subject = "Re: " + in.OriginalSubject
	}
	return draft, nil
}

// buildDraftPrompt creates the prompt for a first-contact email
func buildDraftPrompt(in DraftContext) string {
	history := in.CompanyHistory
	if history == "" {
		history = "No prior contact."
	}
	return fmt.Sprintf(`Draft a professional cold email for a job opportunity.

Sender:
- Name: %s
- Email: %s

Recipient:
- Name: %s
- Title: %s
- Company: %s

Job:
- Role: %s
- Description: %s

Outreach history with this company:
%s

Instructions:
1. Write a compelling subject line (max 60 chars)
2. Keep the body concise (150-200 words max)
3. Lead with a personalized hook based on the recipient or company
4. Briefly mention relevant experience
5. Include a specific ask (call, referral, advice)
6. End with a line telling the recipient they can reply to opt out of further emails
7. Do not include placeholders like [Your Name]

Output format:
Subject: <subject line>

<email body>

---
Personalization:
- <element 1>
- <element 2>`,
		in.SenderName, in.SenderEmail,
		orUnknown(in.RecipientName), orUnknown(in.RecipientTitle), in.Company,
		in.Role, orUnknown(in.JobDescription),
		history,
	)
}

// buildFollowUpPrompt creates the prompt for follow-up number in.Ordinal
func buildFollowUpPrompt(in FollowUpContext) string {
	return fmt.Sprintf(`Draft a polite follow-up email for an unanswered cold outreach.

Original email (sent %s):
Subject: %s

%s

Working days since: %d
Follow-up number: %d of %d
Tone: %s

Recipient: %s at %s, about the %s role.
Job description: %s

Guidelines:
- Never sound annoyed or demanding
- Assume the recipient is busy, not ignoring
- Add new value or context
- Make it easy to respond (yes/no question)
- Keep it under 100 words and mention they can reply to opt out

Output format:
Subject: <subject line>

<email body>`,
		in.OriginalSentAt.UTC().Format("2006-01-02"), in.OriginalSubject, in.OriginalBody,
		in.DaysElapsed, in.Ordinal, in.MaxFollowups, in.Tone,
		orUnknown(in.RecipientName), in.Company, in.Role, orUnknown(in.JobDescription),
	)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

var listItem = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*(.+)$`)

// ParseDraft splits model output into subject, body and personalization
// notes. A "---" line or a "Personalization" heading ends the body.
func ParseDraft(text string) (*Draft, error) {
	draft := &Draft{Personalization: []string{}}
	var body []string
	inBody, inNotes := false, false

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		switch {
		case draft.Subject == "" && !inBody && strings.HasPrefix(lower, "subject:"):
			draft.Subject = strings.TrimSpace(trimmed[len("subject:"):])
			body = nil // drop any preamble before the subject line
			inBody = true
			continue
		case trimmed == "---" || strings.HasPrefix(lower, "personalization") || strings.HasPrefix(lower, "for agent reference"):
			inBody, inNotes = false, true
			continue
		case strings.HasPrefix(lower, "why this should work"):
			inNotes = false
			continue
		}

		if inNotes {
			if m := listItem.FindStringSubmatch(trimmed); m != nil {
				draft.Personalization = append(draft.Personalization, strings.TrimSpace(m[1]))
			}
			continue
		}
		if inBody || draft.Subject == "" {
			body = append(body, line)
		}
	}

	draft.Body = strings.TrimSpace(strings.Join(body, "\n"))
	if draft.Body == "" {
		return nil, errors.New("model returned an empty email body")
	}
	return draft, nil
}
