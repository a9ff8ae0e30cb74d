package sender

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender sends through the Gmail API as the authorised user
type GmailSender struct {
	svc *gmail.Service
}

// NewGmailSender loads OAuth client credentials and a saved token. The token
// file must already exist; obtaining one is a one-off browser flow.
func NewGmailSender(ctx context.Context, credentialsPath, tokenPath string) (*GmailSender, error) {
	creds, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	// reading threads is needed for reply detection
	cfg, err := google.ConfigFromJSON(creds, gmail.GmailSendScope, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}

	raw, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail token: %w", err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(raw, tok); err != nil {
		return nil, fmt.Errorf("failed to parse gmail token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &GmailSender{svc: svc}, nil
}

// NewGmailSenderWithService wraps an existing service
func NewGmailSenderWithService(svc *gmail.Service) *GmailSender {
	return &GmailSender{svc: svc}
}

func (g *GmailSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	sentAt := time.Now().UTC()
	out := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(buildRFC822(msg, "", sentAt)),
		ThreadId: msg.ThreadID,
	}

	resp, err := g.svc.Users.Messages.Send("me", out).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail send failed: %w", err)
	}
	return &Receipt{MessageID: resp.Id, ThreadID: resp.ThreadId, SentAt: sentAt}, nil
}

// Replies lists the inbound messages in thread threadID that follow
// afterMessageID. Messages carrying the SENT label are ours and skipped. When
// afterMessageID is not in the thread the whole thread is considered.
func (g *GmailSender) Replies(ctx context.Context, threadID, afterMessageID string) ([]Reply, error) {
	thread, err := g.svc.Users.Threads.Get("me", threadID).
		Format("metadata").
		MetadataHeaders("From").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail thread %s: %w", threadID, err)
	}

	start := 0
	for i, m := range thread.Messages {
		if m.Id == afterMessageID {
			start = i + 1
			break
		}
	}

	var replies []Reply
	for _, m := range thread.Messages[start:] {
		if slices.Contains(m.LabelIds, "SENT") {
			continue
		}
		r := Reply{MessageID: m.Id, Snippet: m.Snippet, At: time.UnixMilli(m.InternalDate).UTC()}
		if m.Payload != nil {
			for _, h := range m.Payload.Headers {
				if strings.EqualFold(h.Name, "From") {
					r.From = h.Value
				}
			}
		}
		replies = append(replies, r)
	}
	return replies, nil
}
