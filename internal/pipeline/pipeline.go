package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/pkg/models"
)

var (
	ErrTerminalStage = errors.New("opportunity is closed")
	ErrInvalidStage  = errors.New("invalid pipeline stage")
)

// StageInfo describes a stage and the action recommended while in it
type StageInfo struct {
	Description string
	Action      string
}

var stageTable = map[models.PipelineStage]StageInfo{
	models.StageIdentified:  {"Role identified, initial interest", "Research company and role"},
	models.StageResearched:  {"Company research complete", "Draft personalized outreach"},
	models.StageContacted:   {"Cold email sent", "Wait for response, prepare follow-up"},
	models.StageApplied:     {"Formal application submitted", "Track application status"},
	models.StageReplied:     {"Received response from company", "Respond promptly, schedule next steps"},
	models.StagePhoneScreen: {"Phone/video screen scheduled", "Prepare for screening call"},
	models.StageInterview:   {"In interview process", "Prepare for interviews, send thank you notes"},
	models.StageFinalRound:  {"Final round interviews", "Final preparation, references ready"},
	models.StageOffer:       {"Offer received", "Evaluate offer, prepare negotiation"},
	models.StageNegotiating: {"Negotiating terms", "Finalize negotiation details"},
	models.StageAccepted:    {"Offer accepted", "Celebrate and prepare for new role"},
	models.StageRejected:    {"Rejected by company", "Request feedback, update records"},
	models.StageDeclined:    {"Declined offer", "Maintain relationship, document learnings"},
	models.StageWithdrawn:   {"Withdrew application", "Document reason, maintain relationship"},
}

// Describe returns the table entry for stage
func Describe(stage models.PipelineStage) StageInfo {
	if info, ok := stageTable[stage]; ok {
		return info
	}
	return StageInfo{Description: "Unknown stage", Action: "Review pipeline"}
}

// Tracker keeps job opportunities and their stage history
type Tracker struct {
	store  *database.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(store *database.Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With("component", "pipeline"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewOpportunity holds the fields accepted when adding an opportunity
type NewOpportunity struct {
	CompanyName    string
	RoleTitle      string
	JobDescription string
	JobURL         string
	SalaryRange    string
	Location       string
	IsRemote       *bool
	Notes          string
}

// Add creates an opportunity in the identified stage
func (t *Tracker) Add(ctx context.Context, in NewOpportunity) (*models.JobOpportunity, error) {
	if strings.TrimSpace(in.CompanyName) == "" || strings.TrimSpace(in.RoleTitle) == "" {
		return nil, errors.New("company and role are required")
	}
	now := t.now()
	opp := &models.JobOpportunity{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
		CompanyName:    in.CompanyName,
		RoleTitle:      in.RoleTitle,
		JobDescription: in.JobDescription,
		JobURL:         in.JobURL,
		SalaryRange:    in.SalaryRange,
		Location:       in.Location,
		IsRemote:       in.IsRemote,
		Stage:          models.StageIdentified,
		OutreachIDs:    []string{},
		Notes:          []models.OpportunityNote{},
		NextAction:     Describe(models.StageIdentified).Action,
		IsActive:       true,
	}
	if in.Notes != "" {
		opp.Notes = append(opp.Notes, models.OpportunityNote{Date: now, Content: in.Notes})
	}
	if err := t.store.SaveOpportunity(ctx, opp); err != nil {
		return nil, err
	}
	t.logger.Info("opportunity added", "id", opp.ID, "company", opp.CompanyName, "role", opp.RoleTitle)
	return opp, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (*models.JobOpportunity, error) {
	return t.store.GetOpportunity(ctx, id)
}

// Update holds optional field changes; nil fields are left alone
type Update struct {
	JobDescription *string
	JobURL         *string
	SalaryRange    *string
	Location       *string
	IsRemote       *bool
	NextAction     *string
	NextActionDue  *time.Time
	Note           string
}

func (t *Tracker) Update(ctx context.Context, id string, u Update) (*models.JobOpportunity, error) {
	opp, err := t.store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	now := t.now()
	setString(&opp.JobDescription, u.JobDescription)
	setString(&opp.JobURL, u.JobURL)
	setString(&opp.SalaryRange, u.SalaryRange)
	setString(&opp.Location, u.Location)
	setString(&opp.NextAction, u.NextAction)
	if u.IsRemote != nil {
		opp.IsRemote = u.IsRemote
	}
	if u.NextActionDue != nil {
		opp.NextActionDue = u.NextActionDue
	}
	if u.Note != "" {
		opp.Notes = append(opp.Notes, models.OpportunityNote{Date: now, Content: u.Note})
	}
	opp.UpdatedAt = now
	if err := t.store.SaveOpportunity(ctx, opp); err != nil {
		return nil, err
	}
	return opp, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (t *Tracker) Delete(ctx context.Context, id string) error {
	if err := t.store.DeleteOpportunity(ctx, id); err != nil {
		return err
	}
	t.logger.Info("opportunity deleted", "id", id)
	return nil
}

// AdvanceStage moves an opportunity to stage, recording a note and the
// stage's recommended next action. Any open stage may move to any stage;
// closed opportunities reject further transitions.
func (t *Tracker) AdvanceStage(ctx context.Context, id string, stage models.PipelineStage, notes string) (*models.JobOpportunity, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%q: %w", stage, ErrInvalidStage)
	}
	opp, err := t.store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	if opp.Stage.Terminal() {
		return nil, fmt.Errorf("%s is %s: %w", opp.ID, opp.Stage, ErrTerminalStage)
	}

	now := t.now()
	old := opp.Stage
	content := fmt.Sprintf("Stage changed: %s → %s", old, stage)
	if notes != "" {
		content += " | " + notes
	}
	opp.Stage = stage
	opp.Notes = append(opp.Notes, models.OpportunityNote{Date: now, Content: content})
	opp.NextAction = Describe(stage).Action
	opp.UpdatedAt = now
	if stage.Terminal() {
		opp.IsActive = false
		opp.Outcome = string(stage)
		opp.OutcomeDate = &now
	}

	if err := t.store.SaveOpportunity(ctx, opp); err != nil {
		return nil, err
	}
	t.logger.Info("stage advanced", "id", opp.ID, "from", old, "to", stage)
	return opp, nil
}

// LinkOutreach attaches an outreach entry to the opportunity. An opportunity
// sitting exactly in researched moves to contacted.
func (t *Tracker) LinkOutreach(ctx context.Context, id, entryID string) (*models.JobOpportunity, error) {
	opp, err := t.store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, existing := range opp.OutreachIDs {
		if existing == entryID {
			return opp, nil
		}
	}
	opp.OutreachIDs = append(opp.OutreachIDs, entryID)
	opp.UpdatedAt = t.now()
	if err := t.store.SaveOpportunity(ctx, opp); err != nil {
		return nil, err
	}

	if opp.Stage == models.StageResearched {
		return t.AdvanceStage(ctx, id, models.StageContacted, "outreach "+entryID)
	}
	return opp, nil
}

// Active returns open opportunities, optionally in one stage
func (t *Tracker) Active(ctx context.Context, stage models.PipelineStage) ([]*models.JobOpportunity, error) {
	return t.store.ListOpportunities(ctx, stage, true)
}

func (t *Tracker) All(ctx context.Context) ([]*models.JobOpportunity, error) {
	return t.store.ListOpportunities(ctx, "", false)
}

// FunnelStats counts opportunities per stage
type FunnelStats struct {
	ByStage map[models.PipelineStage]int
	Total   int
	Active  int
	Closed  int
}

func (t *Tracker) FunnelStats(ctx context.Context) (*FunnelStats, error) {
	opps, err := t.All(ctx)
	if err != nil {
		return nil, err
	}
	stats := &FunnelStats{ByStage: make(map[models.PipelineStage]int, len(models.AllStages))}
	for _, s := range models.AllStages {
		stats.ByStage[s] = 0
	}
	for _, opp := range opps {
		stats.ByStage[opp.Stage]++
		stats.Total++
		if opp.Stage.Terminal() {
			stats.Closed++
		} else {
			stats.Active++
		}
	}
	return stats, nil
}
