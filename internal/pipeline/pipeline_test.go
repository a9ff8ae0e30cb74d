package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/logging"
	"github.com/khrees2412/coldreach/pkg/models"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewTracker(store, logging.Discard())
}

func addTestOpportunity(t *testing.T, tr *Tracker) *models.JobOpportunity {
	t.Helper()
	opp, err := tr.Add(context.Background(), NewOpportunity{CompanyName: "Acme", RoleTitle: "SRE", Notes: "referral from Sam"})
	if err != nil {
		t.Fatalf("failed to add opportunity: %v", err)
	}
	return opp
}

func TestAdd(t *testing.T) {
	tr := newTestTracker(t)
	opp := addTestOpportunity(t, tr)

	if opp.Stage != models.StageIdentified || !opp.IsActive {
		t.Errorf("new opportunity stage %s active %v", opp.Stage, opp.IsActive)
	}
	if len(opp.Notes) != 1 {
		t.Errorf("notes = %d, want 1", len(opp.Notes))
	}
	if _, err := tr.Add(context.Background(), NewOpportunity{CompanyName: "Acme"}); err == nil {
		t.Error("expected missing role to be rejected")
	}
}

func TestAdvanceStageAppendsOneNotePerTransition(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	opp := addTestOpportunity(t, tr)
	baseNotes := len(opp.Notes)

	path := []models.PipelineStage{
		models.StageResearched, models.StageContacted, models.StageReplied,
		models.StageInterview, models.StagePhoneScreen,
	}
	for i, stage := range path {
		var err error
		opp, err = tr.AdvanceStage(ctx, opp.ID, stage, "")
		if err != nil {
			t.Fatalf("advance to %s: %v", stage, err)
		}
		if got := len(opp.Notes); got != baseNotes+i+1 {
			t.Errorf("after %s notes = %d, want %d", stage, got, baseNotes+i+1)
		}
		if opp.NextAction != Describe(stage).Action {
			t.Errorf("next action %q, want %q", opp.NextAction, Describe(stage).Action)
		}
	}

	last := opp.Notes[len(opp.Notes)-1].Content
	if last != "Stage changed: interview → phone_screen" {
		t.Errorf("note = %q", last)
	}

	stored, err := tr.Get(ctx, opp.ID)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if stored.Stage != models.StagePhoneScreen || len(stored.Notes) != len(opp.Notes) {
		t.Errorf("stored stage %s notes %d", stored.Stage, len(stored.Notes))
	}
}

func TestTerminalStagesRejectTransitions(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	opp := addTestOpportunity(t, tr)

	closed, err := tr.AdvanceStage(ctx, opp.ID, models.StageRejected, "not hiring")
	if err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if closed.IsActive || closed.Outcome != "rejected" || closed.OutcomeDate == nil {
		t.Errorf("closed opportunity: active %v outcome %q date %v", closed.IsActive, closed.Outcome, closed.OutcomeDate)
	}
	if !strings.HasSuffix(closed.Notes[len(closed.Notes)-1].Content, "| not hiring") {
		t.Errorf("transition note lost context: %q", closed.Notes[len(closed.Notes)-1].Content)
	}

	_, err = tr.AdvanceStage(ctx, opp.ID, models.StageInterview, "")
	if !errors.Is(err, ErrTerminalStage) {
		t.Errorf("err = %v, want ErrTerminalStage", err)
	}

	_, err = tr.AdvanceStage(ctx, opp.ID, models.PipelineStage("hired"), "")
	if !errors.Is(err, ErrInvalidStage) {
		t.Errorf("err = %v, want ErrInvalidStage", err)
	}
}

func TestLinkOutreach(t *testing.T) {
	tests := []struct {
		name  string
		from  models.PipelineStage
		want  models.PipelineStage
		notes int
	}{
		{"researched advances", models.StageResearched, models.StageContacted, 1},
		{"identified stays", models.StageIdentified, models.StageIdentified, 0},
		{"applied stays", models.StageApplied, models.StageApplied, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(t)
			ctx := context.Background()
			opp := addTestOpportunity(t, tr)
			if tt.from != models.StageIdentified {
				var err error
				if opp, err = tr.AdvanceStage(ctx, opp.ID, tt.from, ""); err != nil {
					t.Fatalf("setup: %v", err)
				}
			}
			before := len(opp.Notes)

			linked, err := tr.LinkOutreach(ctx, opp.ID, "entry-1")
			if err != nil {
				t.Fatalf("link failed: %v", err)
			}
			if linked.Stage != tt.want {
				t.Errorf("stage = %s, want %s", linked.Stage, tt.want)
			}
			if len(linked.OutreachIDs) != 1 || linked.OutreachIDs[0] != "entry-1" {
				t.Errorf("outreach ids = %v", linked.OutreachIDs)
			}
			if got := len(linked.Notes) - before; got != tt.notes {
				t.Errorf("added %d notes, want %d", got, tt.notes)
			}
		})
	}
}

func TestFunnelStats(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a := addTestOpportunity(t, tr)
	b := addTestOpportunity(t, tr)
	addTestOpportunity(t, tr)
	if _, err := tr.AdvanceStage(ctx, a.ID, models.StageOffer, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.AdvanceStage(ctx, b.ID, models.StageWithdrawn, ""); err != nil {
		t.Fatal(err)
	}

	stats, err := tr.FunnelStats(ctx)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Closed != 1 {
		t.Errorf("total %d active %d closed %d", stats.Total, stats.Active, stats.Closed)
	}
	if stats.ByStage[models.StageOffer] != 1 || stats.ByStage[models.StageIdentified] != 1 {
		t.Errorf("by stage = %v", stats.ByStage)
	}
	if _, ok := stats.ByStage[models.StageNegotiating]; !ok {
		t.Error("every stage should be present in the funnel")
	}

	active, err := tr.Active(ctx, "")
	if err != nil || len(active) != 2 {
		t.Errorf("active = %d, err = %v", len(active), err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	opp := addTestOpportunity(t, tr)

	salary := "$150k-$180k"
	updated, err := tr.Update(ctx, opp.ID, Update{SalaryRange: &salary, Note: "recruiter call went well"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.SalaryRange != salary || len(updated.Notes) != 2 {
		t.Errorf("salary %q notes %d", updated.SalaryRange, len(updated.Notes))
	}

	if err := tr.Delete(ctx, opp.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := tr.Get(ctx, opp.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
