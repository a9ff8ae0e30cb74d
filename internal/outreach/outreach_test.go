package outreach

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/khrees2412/coldreach/internal/ai"
	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/jobsource"
	"github.com/khrees2412/coldreach/internal/logging"
	"github.com/khrees2412/coldreach/internal/pipeline"
	"github.com/khrees2412/coldreach/internal/safety"
	"github.com/khrees2412/coldreach/internal/scheduler"
	"github.com/khrees2412/coldreach/internal/sender"
	"github.com/khrees2412/coldreach/pkg/models"
)

// Monday
var start = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fakeDrafter struct {
	followups []ai.FollowUpContext
	err       error
}

func (f *fakeDrafter) Draft(ctx context.Context, in ai.DraftContext) (*ai.Draft, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Draft{
		Subject:         fmt.Sprintf("%s at %s", in.Role, in.Company),
		Body:            "Hi,\nShort note about the role. Reply unsubscribe to opt out.",
		Personalization: []string{in.Company},
	}, nil
}

func (f *fakeDrafter) DraftFollowUp(ctx context.Context, in ai.FollowUpContext) (*ai.Draft, error) {
	f.followups = append(f.followups, in)
	return &ai.Draft{Subject: "Re: " + in.OriginalSubject, Body: "Following up. Reply unsubscribe to opt out."}, nil
}

type fakeSender struct {
	sent []sender.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg sender.Message) (*sender.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	n := len(f.sent)
	thread := msg.ThreadID
	if thread == "" {
		thread = fmt.Sprintf("thread-%d", n)
	}
	return &sender.Receipt{MessageID: fmt.Sprintf("<m%d@test>", n), ThreadID: thread}, nil
}

// fakeReplies answers per thread; a thread mapped to an error fails
type fakeReplies struct {
	replies map[string][]sender.Reply
	errs    map[string]error
	asked   []string
}

func (f *fakeReplies) Replies(ctx context.Context, threadID, afterMessageID string) ([]sender.Reply, error) {
	f.asked = append(f.asked, threadID+" "+afterMessageID)
	if err := f.errs[threadID]; err != nil {
		return nil, err
	}
	return f.replies[threadID], nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

type harness struct {
	svc     *Service
	store   *database.Store
	drafter *fakeDrafter
	sender  *fakeSender
	tracker *pipeline.Tracker
	clock   *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "outreach.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:   store,
		drafter: &fakeDrafter{},
		sender:  &fakeSender{},
		tracker: pipeline.NewTracker(store, logging.Discard()),
		clock:   &testClock{t: start},
	}
	h.svc = NewService(store, safety.New(safety.DefaultLimits()), h.drafter, h.sender, h.tracker, logging.Discard(), Options{
		SenderName:        "Sam",
		SenderEmail:       "sam@example.com",
		HeartbeatInterval: time.Hour,
	})
	h.svc.SetClock(h.clock.now)
	return h
}

func (h *harness) draft(t *testing.T, company, email string) *models.OutreachEntry {
	t.Helper()
	res, err := h.svc.Draft(context.Background(), DraftRequest{
		Company:        company,
		Role:           "Platform Engineer",
		RecipientName:  "Jane",
		RecipientEmail: email,
		JobDescription: "Run the platform",
	})
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	return res.Entry
}

func (h *harness) send(t *testing.T, entryID string) *SendResult {
	t.Helper()
	res, err := h.svc.Send(context.Background(), SendRequest{EntryID: entryID, Approved: true})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	return res
}

func (h *harness) state(t *testing.T) *models.HeartbeatState {
	t.Helper()
	state, _, err := h.store.LoadState(context.Background())
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	return state
}

func approveAll(ctx context.Context, p Preview) (bool, error) { return true, nil }

func TestDraftStoresEntry(t *testing.T) {
	h := newHarness(t)
	entry := h.draft(t, "Acme", "jane@acme.io")

	got, err := h.store.GetEntry(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("failed to reload entry: %v", err)
	}
	if got.Status != models.StatusDraft || got.JobDescription != "Run the platform" {
		t.Errorf("stored entry = %+v", got)
	}
	if got.MaxFollowups != models.DefaultMaxFollowups {
		t.Errorf("max followups = %d", got.MaxFollowups)
	}

	h.drafter.err = errors.New("model offline")
	if _, err := h.svc.Draft(context.Background(), DraftRequest{Company: "Acme"}); err == nil {
		t.Error("expected drafter failure to surface")
	}
}

func TestSendDailyLimitScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	seed := models.NewHeartbeatState()
	seed.DailyEmailCount = 19
	seed.CurrentDate = models.DateKey(start)
	last := start.Add(-time.Hour)
	seed.LastSendTimestamp = &last
	if err := h.store.SaveState(ctx, seed); err != nil {
		t.Fatal(err)
	}

	first := h.draft(t, "Acme", "jane@acme.io")
	second := h.draft(t, "Globex", "hr@globex.io")

	res := h.send(t, first.ID)
	if !res.Sent {
		t.Fatalf("20th send should succeed, verdict %+v", res.Verdict.Check)
	}
	if got := h.state(t).DailyEmailCount; got != 20 {
		t.Errorf("daily count = %d, want 20", got)
	}

	res = h.send(t, second.ID)
	if res.Sent || res.Verdict.Violation != safety.ViolationDailyLimit {
		t.Errorf("21st send: sent=%v violation=%q", res.Sent, res.Verdict.Violation)
	}
	if len(h.sender.sent) != 1 {
		t.Errorf("sender called %d times, want 1", len(h.sender.sent))
	}
	got, _ := h.store.GetEntry(ctx, second.ID)
	if got.Status != models.StatusDraft {
		t.Errorf("blocked entry status = %s, want draft", got.Status)
	}
}

func TestSendRequiresApproval(t *testing.T) {
	h := newHarness(t)
	entry := h.draft(t, "Acme", "jane@acme.io")

	res, err := h.svc.Send(context.Background(), SendRequest{EntryID: entry.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Sent || !res.Blocked() || res.Verdict.Violation != safety.ViolationMissingApproval {
		t.Errorf("unapproved send = %+v", res.Verdict.Check)
	}
	if len(h.sender.sent) != 0 {
		t.Error("sender must not be called without approval")
	}
	if got := h.state(t).DailyEmailCount; got != 0 {
		t.Errorf("daily count = %d, want 0", got)
	}
}

func TestSendSchedulesFollowUps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	opp, err := h.tracker.Add(ctx, pipeline.NewOpportunity{CompanyName: "Acme", RoleTitle: "Platform Engineer"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.tracker.AdvanceStage(ctx, opp.ID, models.StageResearched, ""); err != nil {
		t.Fatal(err)
	}

	entry := h.draft(t, "Acme", "jane@acme.io")
	res, err := h.svc.Send(ctx, SendRequest{EntryID: entry.ID, Approved: true, OpportunityID: opp.ID})
	if err != nil || !res.Sent {
		t.Fatalf("send failed: %v %+v", err, res)
	}

	var due []time.Time
	for _, task := range res.FollowUps {
		due = append(due, task.DueAt)
		if task.Sent || task.ThreadID != "thread-1" || task.JobDescription != "Run the platform" {
			t.Errorf("task = %+v", task)
		}
	}
	want := []time.Time{
		scheduler.AddWorkingDays(start, 4),
		scheduler.AddWorkingDays(start, 8),
		scheduler.AddWorkingDays(start, 10),
	}
	if diff := cmp.Diff(want, due); diff != "" {
		t.Errorf("due dates mismatch (-want +got):\n%s", diff)
	}

	stored, err := h.store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusSent || stored.NextFollowupScheduled == nil || !stored.NextFollowupScheduled.Equal(want[0]) {
		t.Errorf("stored entry status %s next %v", stored.Status, stored.NextFollowupScheduled)
	}
	if len(h.state(t).ScheduledFollowups) != 3 {
		t.Errorf("state holds %d tasks, want 3", len(h.state(t).ScheduledFollowups))
	}

	linked, err := h.tracker.Get(ctx, opp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if linked.Stage != models.StageContacted || len(linked.OutreachIDs) != 1 {
		t.Errorf("opportunity stage %s ids %v", linked.Stage, linked.OutreachIDs)
	}

	if _, err := h.svc.Send(ctx, SendRequest{EntryID: entry.ID, Approved: true}); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("resend err = %v, want ErrAlreadySent", err)
	}
}

func TestSendWithUnknownOpportunity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")

	_, err := h.svc.Send(ctx, SendRequest{EntryID: entry.ID, Approved: true, OpportunityID: "missing"})
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(h.sender.sent) != 0 {
		t.Errorf("delivered %d messages before the opportunity was checked", len(h.sender.sent))
	}
	stored, err := h.store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusDraft {
		t.Errorf("status = %s, want draft", stored.Status)
	}

	// without the bad id the same draft goes out exactly once
	res := h.send(t, entry.ID)
	if !res.Sent || len(h.sender.sent) != 1 || h.state(t).DailyEmailCount != 1 {
		t.Errorf("sent %v, delivered %d, count %d", res.Sent, len(h.sender.sent), h.state(t).DailyEmailCount)
	}
}

func TestSendFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")

	h.sender.err = errors.New("smtp down")
	if _, err := h.svc.Send(ctx, SendRequest{EntryID: entry.ID, Approved: true}); err == nil {
		t.Fatal("expected sender failure")
	}

	state := h.state(t)
	if state.DailyEmailCount != 0 || state.LastSendTimestamp != nil || len(state.ScheduledFollowups) != 0 {
		t.Errorf("state changed after failed send: %+v", state)
	}
	got, _ := h.store.GetEntry(ctx, entry.ID)
	if got.Status != models.StatusDraft || got.SentAt != nil {
		t.Errorf("entry changed after failed send: %+v", got)
	}
}

func TestSendWithoutRecipient(t *testing.T) {
	h := newHarness(t)
	entry := h.draft(t, "Acme", "")
	if _, err := h.svc.Send(context.Background(), SendRequest{EntryID: entry.ID, Approved: true}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("err = %v, want ErrNoRecipient", err)
	}
}

func TestPauseAndHeartbeatResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")

	until := start.Add(time.Hour)
	if err := h.svc.Pause(ctx, "vacation", &until); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Send(ctx, SendRequest{EntryID: entry.ID, Approved: true}); !errors.Is(err, ErrCampaignPaused) {
		t.Fatalf("err = %v, want ErrCampaignPaused", err)
	}

	h.clock.t = start.Add(2 * time.Hour)
	hb, err := h.svc.Heartbeat(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !hb.Resumed || hb.Paused {
		t.Errorf("heartbeat resumed=%v paused=%v", hb.Resumed, hb.Paused)
	}
	state := h.state(t)
	if state.CampaignsPaused || state.LastRun == nil || !state.NextScheduledRun.Equal(h.clock.t.Add(time.Hour)) {
		t.Errorf("state after heartbeat: %+v", state)
	}
	if res := h.send(t, entry.ID); !res.Sent {
		t.Errorf("send after resume blocked: %+v", res.Verdict.Check)
	}
}

func TestManualPauseHoldsUntilResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.svc.Pause(ctx, "review", nil); err != nil {
		t.Fatal(err)
	}
	h.clock.t = start.AddDate(0, 0, 7)
	hb, err := h.svc.Heartbeat(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if hb.Resumed || !hb.Paused {
		t.Errorf("indefinite pause lifted by heartbeat: %+v", hb)
	}
	if err := h.svc.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	st, err := h.svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Paused {
		t.Error("still paused after resume")
	}
}

func TestHeartbeatRecordsDetectedReplies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acme := h.draft(t, "Acme", "jane@acme.io")
	h.send(t, acme.ID)
	h.clock.t = start.Add(time.Hour)
	globex := h.draft(t, "Globex", "hr@globex.io")
	h.send(t, globex.ID)
	h.clock.t = start.Add(2 * time.Hour)
	initech := h.draft(t, "Initech", "bill@initech.io")
	h.send(t, initech.ID)
	h.draft(t, "Hooli", "gavin@hooli.io")

	checker := &fakeReplies{
		replies: map[string][]sender.Reply{
			"thread-1": {{MessageID: "r1", From: "Jane <jane@acme.io>", Snippet: "Happy to chat Thursday"}},
		},
		errs: map[string]error{"thread-3": errors.New("rate limited")},
	}
	h.svc.SetReplyChecker(checker)

	h.clock.t = start.AddDate(0, 0, 5)
	hb, err := h.svc.Heartbeat(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(checker.asked) != 3 {
		t.Errorf("checked %d threads, want 3 (drafts are skipped): %v", len(checker.asked), checker.asked)
	}
	if len(hb.Replies) != 1 || hb.Replies[0].Entry.ID != acme.ID || hb.Replies[0].Cancelled != 3 {
		t.Fatalf("replies = %+v", hb.Replies)
	}
	if hb.Pending != 6 {
		t.Errorf("pending = %d, want 6", hb.Pending)
	}
	for _, task := range hb.Due {
		if task.EntryID == acme.ID {
			t.Errorf("follow-up for a replied entry is due: %+v", task)
		}
	}

	stored, _ := h.store.GetEntry(ctx, acme.ID)
	if stored.Status != models.StatusReplied || stored.ResponseCategory != models.ResponseNeedsReply || stored.ResponseBody != "Happy to chat Thursday" {
		t.Errorf("replied entry: status %s category %s body %q", stored.Status, stored.ResponseCategory, stored.ResponseBody)
	}
	for _, id := range []string{globex.ID, initech.ID} {
		if got, _ := h.store.GetEntry(ctx, id); got.Status != models.StatusSent {
			t.Errorf("%s status = %s, want sent", got.CompanyName, got.Status)
		}
	}

	// replied threads are not asked again
	checker.asked = nil
	if _, err := h.svc.Heartbeat(ctx); err != nil {
		t.Fatal(err)
	}
	if len(checker.asked) != 2 {
		t.Errorf("second run checked %v, want the two open threads", checker.asked)
	}
}

func TestHeartbeatStopsWhenRepliesUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.send(t, h.draft(t, "Acme", "jane@acme.io").ID)
	h.clock.t = start.Add(time.Hour)
	h.send(t, h.draft(t, "Globex", "hr@globex.io").ID)

	checker := &fakeReplies{errs: map[string]error{
		"thread-1": fmt.Errorf("outbox: %w", sender.ErrRepliesUnavailable),
		"thread-2": fmt.Errorf("outbox: %w", sender.ErrRepliesUnavailable),
	}}
	h.svc.SetReplyChecker(checker)

	hb, err := h.svc.Heartbeat(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(checker.asked) != 1 || len(hb.Replies) != 0 || hb.Pending != 6 {
		t.Errorf("asked %v, replies %d, pending %d", checker.asked, len(hb.Replies), hb.Pending)
	}
}

func TestRecordReplyCancelsFollowUps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")
	h.send(t, entry.ID)

	h.clock.t = start.Add(24 * time.Hour)
	res, err := h.svc.RecordReply(ctx, entry.ID, models.ResponsePositive, "Let's talk")
	if err != nil {
		t.Fatal(err)
	}
	if res.Cancelled != 3 {
		t.Errorf("cancelled = %d, want 3", res.Cancelled)
	}
	if got := scheduler.PendingForEntry(h.state(t), entry.ID); len(got) != 0 {
		t.Errorf("pending tasks after reply: %d", len(got))
	}
	stored, _ := h.store.GetEntry(ctx, entry.ID)
	if stored.Status != models.StatusReplied || stored.NextFollowupScheduled != nil {
		t.Errorf("entry after reply: status %s next %v", stored.Status, stored.NextFollowupScheduled)
	}
	history, err := h.store.CompanyHistory(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if history.ResponsesReceived != 1 || history.PositiveResponses != 1 {
		t.Errorf("history = %+v", history)
	}

	draft := h.draft(t, "Acme", "bob@acme.io")
	if _, err := h.svc.RecordReply(ctx, draft.ID, models.ResponseNeutral, ""); !errors.Is(err, ErrNotSent) {
		t.Errorf("reply to draft err = %v, want ErrNotSent", err)
	}
}

func TestUnsubscribeBlocksFutureSends(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")
	h.send(t, entry.ID)

	res, err := h.svc.Unsubscribe(ctx, "Jane@Acme.io", "asked to stop")
	if err != nil {
		t.Fatal(err)
	}
	if res.Cancelled != 3 || res.EntriesClosed != 1 {
		t.Errorf("unsubscribe = %+v", res)
	}
	stored, _ := h.store.GetEntry(ctx, entry.ID)
	if stored.Status != models.StatusDead {
		t.Errorf("entry status = %s, want dead", stored.Status)
	}

	again := h.draft(t, "Acme", "jane@acme.io")
	send := h.send(t, again.ID)
	if send.Sent || send.Verdict.Violation != safety.ViolationNoContactList {
		t.Errorf("send to unsubscribed = %+v", send.Verdict.Check)
	}

	if err := h.svc.Unblock(ctx, "jane@acme.io"); err != nil {
		t.Fatal(err)
	}
	if send := h.send(t, again.ID); !send.Sent {
		t.Errorf("send after unblock = %+v", send.Verdict.Check)
	}
}

func TestBlockCompany(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")
	h.send(t, entry.ID)

	cancelled, err := h.svc.BlockCompany(ctx, "ACME", "not hiring")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled != 3 {
		t.Errorf("cancelled = %d, want 3", cancelled)
	}
	next := h.draft(t, "Acme", "bob@acme.io")
	if res := h.send(t, next.ID); res.Sent || res.Verdict.Violation != safety.ViolationNoContactList {
		t.Errorf("send to blocked company = %+v", res.Verdict.Check)
	}
}

func TestDuplicateCompanyWarnsButSends(t *testing.T) {
	h := newHarness(t)
	h.send(t, h.draft(t, "Acme", "jane@acme.io").ID)

	h.clock.t = start.Add(time.Hour)
	res := h.send(t, h.draft(t, "Acme", "bob@acme.io").ID)
	if !res.Sent {
		t.Fatalf("duplicate company blocked: %+v", res.Verdict.Check)
	}
	var violations []safety.Violation
	for _, w := range res.Verdict.Warnings() {
		violations = append(violations, w.Violation)
	}
	if diff := cmp.Diff([]safety.Violation{safety.ViolationDuplicateOutreach}, violations); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueFollowUps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")
	sent := h.send(t, entry.ID)

	results, err := h.svc.SendDueFollowUps(ctx, ApproveFunc(approveAll))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("nothing should be due at send time, got %d", len(results))
	}

	h.clock.t = sent.FollowUps[0].DueAt
	results, err = h.svc.SendDueFollowUps(ctx, ApproveFunc(approveAll))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].Sent {
		t.Fatalf("results = %+v", results)
	}

	msg := h.sender.sent[1]
	if msg.ThreadID != "thread-1" || msg.InReplyTo != "<m1@test>" {
		t.Errorf("follow-up threading: thread %q in-reply-to %q", msg.ThreadID, msg.InReplyTo)
	}
	fc := h.drafter.followups[0]
	if fc.Tone != "gentle reminder" || fc.DaysElapsed != 4 || fc.Ordinal != 1 {
		t.Errorf("follow-up context = %+v", fc)
	}

	stored, _ := h.store.GetEntry(ctx, entry.ID)
	if stored.FollowupCount != 1 || stored.Status != models.StatusFollowupSent {
		t.Errorf("entry after follow-up: count %d status %s", stored.FollowupCount, stored.Status)
	}
	if stored.NextFollowupScheduled == nil || !stored.NextFollowupScheduled.Equal(sent.FollowUps[1].DueAt) {
		t.Errorf("next follow-up = %v, want %v", stored.NextFollowupScheduled, sent.FollowUps[1].DueAt)
	}
	task, err := scheduler.Find(h.state(t), sent.FollowUps[0].ID)
	if err != nil || !task.Sent {
		t.Errorf("task not marked sent: %+v %v", task, err)
	}
}

func TestFollowUpsNeverExceedMax(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")
	sent := h.send(t, entry.ID)

	for _, task := range sent.FollowUps {
		h.clock.t = task.DueAt
		if _, err := h.svc.SendDueFollowUps(ctx, ApproveFunc(approveAll)); err != nil {
			t.Fatal(err)
		}
	}
	stored, _ := h.store.GetEntry(ctx, entry.ID)
	if stored.FollowupCount != stored.MaxFollowups {
		t.Errorf("follow-up count = %d, want %d", stored.FollowupCount, stored.MaxFollowups)
	}
	if stored.NextFollowupScheduled != nil || len(scheduler.PendingForEntry(h.state(t), entry.ID)) != 0 {
		t.Error("entry at max follow-ups still has work scheduled")
	}
	if len(h.sender.sent) != 4 {
		t.Errorf("emails sent = %d, want 4", len(h.sender.sent))
	}
}

func TestSendFollowUpDeclined(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sent := h.send(t, h.draft(t, "Acme", "jane@acme.io").ID)
	h.clock.t = sent.FollowUps[0].DueAt

	decline := ApproveFunc(func(ctx context.Context, p Preview) (bool, error) { return false, nil })
	res, err := h.svc.SendFollowUp(ctx, sent.FollowUps[0].ID, decline)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent || res.Verdict.Violation != safety.ViolationMissingApproval {
		t.Errorf("declined follow-up = %+v", res.Verdict.Check)
	}
	if due, _ := h.svc.DueFollowUps(ctx); len(due) != 1 {
		t.Errorf("declined task should stay due, got %d", len(due))
	}
}

func TestSendFollowUpForClosedEntryDropsTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")
	sent := h.send(t, entry.ID)

	stored, _ := h.store.GetEntry(ctx, entry.ID)
	stored.Status = models.StatusConverted
	if err := h.store.SaveEntry(ctx, stored, database.EventUpdated); err != nil {
		t.Fatal(err)
	}

	h.clock.t = sent.FollowUps[0].DueAt
	res, err := h.svc.SendFollowUp(ctx, sent.FollowUps[0].ID, ApproveFunc(approveAll))
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent || res.Skipped == "" {
		t.Errorf("closed entry follow-up = %+v", res)
	}
	if n := len(h.state(t).ScheduledFollowups); n != 0 {
		t.Errorf("tasks left = %d, want 0", n)
	}
}

func TestCancelFollowUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")
	sent := h.send(t, entry.ID)

	if _, err := h.svc.CancelFollowUp(ctx, sent.FollowUps[0].ID[:8]); err != nil {
		t.Fatal(err)
	}
	stored, _ := h.store.GetEntry(ctx, entry.ID)
	if !stored.NextFollowupScheduled.Equal(sent.FollowUps[1].DueAt) {
		t.Errorf("next follow-up = %v, want %v", stored.NextFollowupScheduled, sent.FollowUps[1].DueAt)
	}
	if _, err := h.svc.CancelFollowUp(ctx, "nope"); !errors.Is(err, scheduler.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestScheduleFollowUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.draft(t, "Acme", "jane@acme.io")

	if _, err := h.svc.ScheduleFollowUp(ctx, entry.ID, 0); !errors.Is(err, ErrNotSent) {
		t.Errorf("draft err = %v, want ErrNotSent", err)
	}

	sent := h.send(t, entry.ID)

	// the three automatic follow-ups already fill the ceiling
	res, err := h.svc.ScheduleFollowUp(ctx, entry.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Task != nil || !res.Check.Blocking() || res.Check.Violation != safety.ViolationMaxFollowups {
		t.Errorf("at ceiling: task %v check %+v", res.Task, res.Check)
	}
	if n := len(h.state(t).ScheduledFollowups); n != 3 {
		t.Errorf("tasks = %d, want 3", n)
	}

	for _, task := range sent.FollowUps[1:] {
		if _, err := h.svc.CancelFollowUp(ctx, task.ID); err != nil {
			t.Fatal(err)
		}
	}

	// one day after the send is too soon for a first follow-up: warned, still queued
	h.clock.t = start.AddDate(0, 0, 1)
	res, err = h.svc.ScheduleFollowUp(ctx, entry.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Task == nil || !res.Check.Advisory() {
		t.Fatalf("task %v check %+v", res.Task, res.Check)
	}
	if want := h.clock.t.AddDate(0, 0, 5); !res.Task.DueAt.Equal(want) || res.Task.Ordinal != 2 {
		t.Errorf("task due %v ordinal %d, want %v and 2", res.Task.DueAt, res.Task.Ordinal, want)
	}

	res, err = h.svc.ScheduleFollowUp(ctx, entry.ID, 2)
	if err != nil || res.Task == nil {
		t.Fatalf("explicit days: %v %+v", err, res)
	}
	if want := h.clock.t.AddDate(0, 0, 2); !res.Task.DueAt.Equal(want) {
		t.Errorf("due %v, want %v", res.Task.DueAt, want)
	}
	stored, err := h.store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	// two days out lands before the first automatic follow-up
	if stored.NextFollowupScheduled == nil || !stored.NextFollowupScheduled.Equal(res.Task.DueAt) {
		t.Errorf("next follow-up = %v", stored.NextFollowupScheduled)
	}

	if _, err := h.svc.RecordReply(ctx, entry.ID, models.ResponsePositive, "sure"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.ScheduleFollowUp(ctx, entry.ID, 0); !errors.Is(err, ErrEntryClosed) {
		t.Errorf("replied err = %v, want ErrEntryClosed", err)
	}
}

const campaignJobs = `jobs:
  - id: acme
    company: Acme
    role: SRE
    email: jane@acme.io
  - id: globex
    company: Globex
    role: Backend Engineer
    email: hr@globex.io
  - id: initech
    company: Initech
    role: Analyst
    email: bill@initech.io
`

func TestRunCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(campaignJobs), 0644); err != nil {
		t.Fatal(err)
	}
	src := jobsource.NewYAMLSource(path)

	skipGlobex := ApproveFunc(func(ctx context.Context, p Preview) (bool, error) {
		return p.Company != "Globex", nil
	})
	report, err := h.svc.RunCampaign(ctx, src, 0, skipGlobex)
	if err != nil {
		t.Fatal(err)
	}

	var outcomes []string
	for _, it := range report.Items {
		outcomes = append(outcomes, it.Outcome)
	}
	if diff := cmp.Diff([]string{OutcomeSent, OutcomeDeclined, OutcomeSent}, outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if report.Batch.Blocking() {
		t.Errorf("batch check = %+v", report.Batch)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(raw), "status: Sent"); n != 2 {
		t.Errorf("jobs marked Sent = %d, want 2:\n%s", n, raw)
	}
	if !strings.Contains(string(raw), jobsource.StatusDraftedNotSent) {
		t.Errorf("declined job not marked:\n%s", raw)
	}
	if got := h.state(t).DailyEmailCount; got != 2 {
		t.Errorf("daily count = %d, want 2", got)
	}
}

func TestRunCampaignStopsAtDailyLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seed := models.NewHeartbeatState()
	seed.DailyEmailCount = 19
	seed.CurrentDate = models.DateKey(start)
	if err := h.store.SaveState(ctx, seed); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(campaignJobs), 0644); err != nil {
		t.Fatal(err)
	}

	src := jobsource.NewYAMLSource(path)

	report, err := h.svc.RunCampaign(ctx, src, 0, ApproveFunc(approveAll))
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(OutcomeSent) != 1 || report.Count(OutcomeBlocked) != 1 || report.Count(OutcomeNotReached) != 1 {
		t.Errorf("report = %+v", report.Items)
	}

	// the limit resets tomorrow; the two unsent jobs must still be pending
	h.clock.t = start.AddDate(0, 0, 1)
	pending, err := src.ListPending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, job := range pending {
		ids = append(ids, job.ID)
	}
	if diff := cmp.Diff([]string{"globex", "initech"}, ids); diff != "" {
		t.Errorf("pending jobs mismatch (-want +got):\n%s", diff)
	}

	report, err = h.svc.RunCampaign(ctx, src, 0, ApproveFunc(approveAll))
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(OutcomeSent) != 2 {
		t.Errorf("second run = %+v", report.Items)
	}
}

func TestRunCampaignDraftsJobsWithoutEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	jobs := `jobs:
  - id: acme
    company: Acme
    role: SRE
  - id: globex
    company: Globex
    role: Backend Engineer
    email: hr@globex.io
`
	if err := os.WriteFile(path, []byte(jobs), 0644); err != nil {
		t.Fatal(err)
	}
	src := jobsource.NewYAMLSource(path)

	report, err := h.svc.RunCampaign(ctx, src, 0, ApproveFunc(approveAll))
	if err != nil {
		t.Fatal(err)
	}
	var outcomes []string
	for _, it := range report.Items {
		outcomes = append(outcomes, it.Outcome)
	}
	if diff := cmp.Diff([]string{OutcomeDraftOnly, OutcomeSent}, outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "status: Drafted\n") || strings.Contains(string(raw), jobsource.StatusSendFailed) {
		t.Errorf("job statuses:\n%s", raw)
	}
	drafted, err := h.store.GetEntry(ctx, report.Items[0].EntryID)
	if err != nil {
		t.Fatal(err)
	}
	if drafted.Status != models.StatusDraft {
		t.Errorf("entry status = %s, want draft", drafted.Status)
	}
}

func TestRunCampaignBatchBlockLeavesJobsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var b strings.Builder
	b.WriteString("jobs:\n")
	for i := 0; i < 11; i++ {
		fmt.Fprintf(&b, "  - id: job%d\n    company: Co%d\n    role: SRE\n    email: a%d@co.io\n", i, i, i)
	}
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	src := jobsource.NewYAMLSource(path)

	report, err := h.svc.RunCampaign(ctx, src, 20, ApproveFunc(approveAll))
	if err != nil {
		t.Fatal(err)
	}
	if !report.Batch.Blocking() || len(h.sender.sent) != 0 {
		t.Fatalf("batch = %+v, delivered %d", report.Batch, len(h.sender.sent))
	}
	pending, err := src.ListPending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 11 {
		t.Errorf("pending = %d, want 11", len(pending))
	}
}

func TestRunCampaignWhilePaused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.svc.Pause(ctx, "review", nil); err != nil {
		t.Fatal(err)
	}
	_, err := h.svc.RunCampaign(ctx, jobsource.NewYAMLSource("unused.yaml"), 0, ApproveFunc(approveAll))
	if !errors.Is(err, ErrCampaignPaused) {
		t.Errorf("err = %v, want ErrCampaignPaused", err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.send(t, h.draft(t, "Acme", "jane@acme.io").ID)

	st, err := h.svc.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.SentToday != 1 || st.RemainingToday != 19 || st.Pending != 3 || st.Due != 0 {
		t.Errorf("status = %+v", st)
	}
	if st.NextSendAt == nil || !st.NextSendAt.Equal(start.Add(300*time.Second)) {
		t.Errorf("next send at = %v", st.NextSendAt)
	}
}
