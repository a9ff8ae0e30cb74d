package sender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// OutboxSender writes each message as an .eml file instead of sending it.
// Useful for dry runs and for sending by hand from a mail client.
type OutboxSender struct {
	dir string
	now func() time.Time
}

func NewOutboxSender(dir string) *OutboxSender {
	return &OutboxSender{dir: dir, now: time.Now}
}

func (o *OutboxSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(o.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create outbox: %w", err)
	}

	id := uuid.NewString()
	messageID := fmt.Sprintf("<%s@coldreach.local>", id)
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = id
	}
	sentAt := o.now().UTC()

	name := fmt.Sprintf("%s-%s.eml", sentAt.Format("20060102T150405"), id[:8])
	if err := os.WriteFile(filepath.Join(o.dir, name), buildRFC822(msg, messageID, sentAt), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return &Receipt{MessageID: messageID, ThreadID: threadID, SentAt: sentAt}, nil
}
