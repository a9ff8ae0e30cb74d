package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/khrees2412/coldreach/internal/ai"
	"github.com/khrees2412/coldreach/internal/config"
	"github.com/khrees2412/coldreach/internal/database"
	"github.com/khrees2412/coldreach/internal/jobsource"
	"github.com/khrees2412/coldreach/internal/logging"
	"github.com/khrees2412/coldreach/internal/outreach"
	"github.com/khrees2412/coldreach/internal/pipeline"
	"github.com/khrees2412/coldreach/internal/safety"
	"github.com/khrees2412/coldreach/internal/sender"
)

// App is the dependency container for the CLI application
type App struct {
	Config   *config.Config
	Store    *database.Store
	Logger   *slog.Logger
	Guard    *safety.Guardrails
	Tracker  *pipeline.Tracker
	Outreach *outreach.Service

	logFile *os.File
}

// NewApp loads configuration from dataDir (the default data directory when
// empty), opens the store and wires the outreach service
func NewApp(ctx context.Context, dataDir string) (*App, error) {
	if dataDir == "" {
		dir, err := config.DefaultDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = dir
	}

	cfg, err := config.Initialize(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dataDir, "coldreach.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := logging.New(cfg.LogLevel, logFile)

	store, err := database.Open(cfg.DatabasePath())
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	guard := safety.New(Limits(cfg))
	tracker := pipeline.NewTracker(store, logger)
	drafter := ai.NewLLMDrafter(ai.NewClient(cfg))
	snd := newLazySender(cfg)
	svc := outreach.NewService(store, guard, drafter, snd, tracker, logger, outreach.Options{
		SenderName:        cfg.SenderName,
		SenderEmail:       cfg.SenderEmail,
		MaxFollowups:      cfg.MaxFollowups,
		FollowupDelayDays: cfg.DefaultFollowupDelayDays,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		CampaignPace:      cfg.CampaignPace(),
	})
	if cfg.Sender == "gmail" {
		svc.SetReplyChecker(snd)
	}

	return &App{
		Config:   cfg,
		Store:    store,
		Logger:   logger,
		Guard:    guard,
		Tracker:  tracker,
		Outreach: svc,
		logFile:  logFile,
	}, nil
}

// Limits maps configuration onto guardrail thresholds
func Limits(cfg *config.Config) safety.Limits {
	return safety.Limits{
		MaxDailyEmails:      cfg.MaxDailyEmails,
		MinEmailInterval:    cfg.MinEmailInterval(),
		RateLimitingEnabled: cfg.RateLimitingEnabled,
		MaxFollowups:        cfg.MaxFollowups,
		MaxBatchSize:        cfg.MaxBatchSize,
	}
}

// JobSource opens the configured job list, or path when set
func (a *App) JobSource(path string) jobsource.Source {
	if path == "" {
		path = a.Config.JobsFile
	}
	return jobsource.NewYAMLSource(path)
}

// Close closes all resources
func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// lazySender builds the configured sender on first use, so commands that
// never send do not need Gmail credentials
type lazySender struct {
	cfg  *config.Config
	once sync.Once
	s    sender.Sender
	err  error
}

func newLazySender(cfg *config.Config) *lazySender {
	return &lazySender{cfg: cfg}
}

func (l *lazySender) get(ctx context.Context) (sender.Sender, error) {
	l.once.Do(func() {
		l.s, l.err = NewSender(ctx, l.cfg)
	})
	return l.s, l.err
}

func (l *lazySender) Send(ctx context.Context, msg sender.Message) (*sender.Receipt, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, msg)
}

// Replies delegates to the configured sender when it can read mail
func (l *lazySender) Replies(ctx context.Context, threadID, afterMessageID string) ([]sender.Reply, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sender.ErrRepliesUnavailable, err)
	}
	rc, ok := s.(sender.ReplyChecker)
	if !ok {
		return nil, fmt.Errorf("%T: %w", s, sender.ErrRepliesUnavailable)
	}
	return rc.Replies(ctx, threadID, afterMessageID)
}

// NewSender returns the sender named by the configuration
func NewSender(ctx context.Context, cfg *config.Config) (sender.Sender, error) {
	switch cfg.Sender {
	case "gmail":
		if cfg.SenderEmail == "" {
			return nil, fmt.Errorf("sender_email: %w", ErrNotConfigured)
		}
		return sender.NewGmailSender(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath)
	case "outbox", "":
		return sender.NewOutboxSender(cfg.OutboxDir()), nil
	default:
		return nil, fmt.Errorf("sender %q: %w", cfg.Sender, ErrInvalidArgument)
	}
}
