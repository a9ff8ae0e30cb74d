package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khrees2412/coldreach/pkg/models"
)

var (
	ErrTaskNotFound = errors.New("follow-up task not found")
	ErrAlreadySent  = errors.New("follow-up already sent")
)

// Offsets are the working days after the original send at which each
// follow-up falls due
var Offsets = []int{4, 8, 10}

var tones = []string{
	"gentle reminder",
	"add new value",
	"graceful exit",
}

// AddWorkingDays advances start one calendar day at a time, counting only
// Monday to Friday, until n working days have passed. The time of day is
// kept. n <= 0 returns start unchanged.
func AddWorkingDays(start time.Time, n int) time.Time {
	current := start.UTC()
	for added := 0; added < n; {
		current = current.AddDate(0, 0, 1)
		if IsWorkingDay(current) {
			added++
		}
	}
	return current
}

func IsWorkingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// TaskName labels a follow-up by ordinal ("Follow-up 2")
func TaskName(ordinal int) string {
	return fmt.Sprintf("Follow-up %d", ordinal)
}

// Tone is the drafting tone for the given follow-up ordinal. Ordinals past
// the table reuse the last tone.
func Tone(ordinal int) string {
	return tones[clampOrdinal(ordinal, len(tones))-1]
}

// DaysElapsed is the working-day offset passed to the drafter for ordinal
func DaysElapsed(ordinal int) int {
	return Offsets[clampOrdinal(ordinal, len(Offsets))-1]
}

func clampOrdinal(ordinal, n int) int {
	if ordinal < 1 {
		return 1
	}
	if ordinal > n {
		return n
	}
	return ordinal
}

// Schedule enqueues the follow-ups for an entry that was just sent at
// sentAt, capped by the follow-ups the entry has left. Nothing is added when
// the entry already has pending tasks.
func Schedule(state *models.HeartbeatState, entry *models.OutreachEntry, jobDescription string, sentAt time.Time) []models.FollowUpTask {
	if len(PendingForEntry(state, entry.ID)) > 0 {
		return nil
	}

	count := entry.FollowupsRemaining()
	if count > len(Offsets) {
		count = len(Offsets)
	}

	tasks := make([]models.FollowUpTask, 0, count)
	for i := 0; i < count; i++ {
		tasks = append(tasks, newTask(entry, jobDescription, entry.FollowupCount+i+1, AddWorkingDays(sentAt, Offsets[i])))
	}
	state.ScheduledFollowups = append(state.ScheduledFollowups, tasks...)
	return tasks
}

// Add enqueues a single follow-up for entry due at dueAt, numbered after
// the follow-ups already sent or pending for it
func Add(state *models.HeartbeatState, entry *models.OutreachEntry, jobDescription string, dueAt time.Time) models.FollowUpTask {
	ordinal := entry.FollowupCount + len(PendingForEntry(state, entry.ID)) + 1
	task := newTask(entry, jobDescription, ordinal, dueAt)
	state.ScheduledFollowups = append(state.ScheduledFollowups, task)
	return task
}

func newTask(entry *models.OutreachEntry, jobDescription string, ordinal int, dueAt time.Time) models.FollowUpTask {
	return models.FollowUpTask{
		ID:             uuid.NewString(),
		EntryID:        entry.ID,
		Company:        entry.CompanyName,
		Role:           entry.RoleTitle,
		RecipientEmail: entry.RecipientEmail,
		RecipientName:  entry.RecipientName,
		JobDescription: jobDescription,
		ThreadID:       entry.ThreadID,
		DueAt:          dueAt,
		Ordinal:        ordinal,
		Name:           TaskName(ordinal),
	}
}

// Due returns unsent tasks whose due time is at or before now, earliest
// first. Tasks never expire on their own.
func Due(state *models.HeartbeatState, now time.Time) []models.FollowUpTask {
	var due []models.FollowUpTask
	for _, t := range state.ScheduledFollowups {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	sortByDue(due)
	return due
}

// Pending returns every unsent task, earliest first
func Pending(state *models.HeartbeatState) []models.FollowUpTask {
	var pending []models.FollowUpTask
	for _, t := range state.ScheduledFollowups {
		if !t.Sent {
			pending = append(pending, t)
		}
	}
	sortByDue(pending)
	return pending
}

func PendingForEntry(state *models.HeartbeatState, entryID string) []models.FollowUpTask {
	var pending []models.FollowUpTask
	for _, t := range state.ScheduledFollowups {
		if !t.Sent && t.EntryID == entryID {
			pending = append(pending, t)
		}
	}
	sortByDue(pending)
	return pending
}

// NextDue is the due time of the entry's earliest unsent task, or nil
func NextDue(state *models.HeartbeatState, entryID string) *time.Time {
	pending := PendingForEntry(state, entryID)
	if len(pending) == 0 {
		return nil
	}
	due := pending[0].DueAt
	return &due
}

// Find returns the task with id. A unique prefix of the id also matches.
func Find(state *models.HeartbeatState, id string) (*models.FollowUpTask, error) {
	var match *models.FollowUpTask
	for i := range state.ScheduledFollowups {
		t := &state.ScheduledFollowups[i]
		if t.ID == id {
			return t, nil
		}
		if id != "" && strings.HasPrefix(t.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous task id %q", id)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	return match, nil
}

// MarkSent flags a task as delivered at at
func MarkSent(state *models.HeartbeatState, taskID string, at time.Time) error {
	t, err := Find(state, taskID)
	if err != nil {
		return err
	}
	if t.Sent {
		return fmt.Errorf("%s: %w", t.ID, ErrAlreadySent)
	}
	sent := at
	t.Sent = true
	t.SentAt = &sent
	return nil
}

// CancelForEntry drops every task referencing entryID and returns how many
// were removed
func CancelForEntry(state *models.HeartbeatState, entryID string) int {
	return removeWhere(state, func(t models.FollowUpTask) bool {
		return t.EntryID == entryID
	})
}

// CancelForRecipient drops every unsent task addressed to email
func CancelForRecipient(state *models.HeartbeatState, email string) int {
	email = strings.ToLower(strings.TrimSpace(email))
	return removeWhere(state, func(t models.FollowUpTask) bool {
		return !t.Sent && strings.EqualFold(t.RecipientEmail, email)
	})
}

// CancelTask drops a single task by id or unique id prefix
func CancelTask(state *models.HeartbeatState, taskID string) (*models.FollowUpTask, error) {
	t, err := Find(state, taskID)
	if err != nil {
		return nil, err
	}
	removed := *t
	removeWhere(state, func(other models.FollowUpTask) bool { return other.ID == removed.ID })
	return &removed, nil
}

func removeWhere(state *models.HeartbeatState, drop func(models.FollowUpTask) bool) int {
	kept := state.ScheduledFollowups[:0]
	removed := 0
	for _, t := range state.ScheduledFollowups {
		if drop(t) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	state.ScheduledFollowups = kept
	return removed
}

func sortByDue(tasks []models.FollowUpTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].DueAt.Before(tasks[j].DueAt)
	})
}
