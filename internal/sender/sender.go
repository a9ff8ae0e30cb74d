package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrNoRecipient        = errors.New("recipient email is required")
	ErrRepliesUnavailable = errors.New("reply checking is unavailable")
)

// Message is one outbound email
type Message struct {
	To        string
	ToName    string
	From      string
	FromName  string
	Subject   string
	Body      string
	ThreadID  string // reply within this conversation when set
	InReplyTo string // Message-ID header of the email being followed up
}

// Receipt identifies a delivered message
type Receipt struct {
	MessageID string
	ThreadID  string
	SentAt    time.Time
}

// Sender delivers email. A returned error means nothing was sent.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// Reply is an inbound message found in a conversation
type Reply struct {
	MessageID string
	From      string
	Snippet   string
	At        time.Time
}

// ReplyChecker reports messages the other side added to a thread after
// afterMessageID. Only senders that can read mail implement it.
type ReplyChecker interface {
	Replies(ctx context.Context, threadID, afterMessageID string) ([]Reply, error)
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	return nil
}

func formatAddress(name, email string) string {
	if email == "" {
		return ""
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// buildRFC822 renders msg with the given Message-ID header
func buildRFC822(msg Message, messageID string, date time.Time) []byte {
	var b bytes.Buffer
	if from := formatAddress(msg.FromName, msg.From); from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", formatAddress(msg.ToName, msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if messageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	}
	if msg.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", msg.InReplyTo)
		fmt.Fprintf(&b, "References: %s\r\n", msg.InReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
