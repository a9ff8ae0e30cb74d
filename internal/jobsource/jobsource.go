package jobsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrJobNotFound = errors.New("job not found")

// Statuses written back by the campaign runner
const (
	StatusPending        = "Pending"
	StatusDrafted        = "Drafted"
	StatusSent           = "Sent"
	StatusSendFailed     = "Send Failed"
	StatusDraftedNotSent = "Drafted - Not Sent"
	StatusBlocked        = "Blocked"
)

// Job is one row of the job list
type Job struct {
	ID             string     `yaml:"id"`
	Company        string     `yaml:"company"`
	Role           string     `yaml:"role"`
	Recipient      string     `yaml:"recipient,omitempty"`
	RecipientTitle string     `yaml:"recipient_title,omitempty"`
	Email          string     `yaml:"email"`
	JobDescription string     `yaml:"job_description,omitempty"`
	JobURL         string     `yaml:"job_url,omitempty"`
	Status         string     `yaml:"status,omitempty"`
	UpdatedAt      *time.Time `yaml:"updated_at,omitempty"`
}

// Pending reports whether the job still needs outreach
func (j Job) Pending() bool {
	s := strings.TrimSpace(j.Status)
	return s == "" || strings.EqualFold(s, StatusPending)
}

// Source lists jobs awaiting outreach and records what happened to them
type Source interface {
	ListPending(ctx context.Context, limit int) ([]Job, error)
	UpdateStatus(ctx context.Context, id, status string, at time.Time) error
}

type document struct {
	Jobs []Job `yaml:"jobs"`
}

// YAMLSource keeps the job list in a YAML file
type YAMLSource struct {
	path string
	mu   sync.Mutex
}

func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

func (s *YAMLSource) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job file %s does not exist", s.path)
		}
		return nil, err
	}
	doc := &document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *YAMLSource) save(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".jobs-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// ListPending returns up to limit pending jobs in file order. limit <= 0
// means no limit. Jobs without an id get one derived from their position.
func (s *YAMLSource) ListPending(ctx context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for i, j := range doc.Jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.Pending() {
			continue
		}
		if j.ID == "" {
			j.ID = fmt.Sprintf("row-%d", i+1)
		}
		jobs = append(jobs, j)
		if limit > 0 && len(jobs) == limit {
			break
		}
	}
	return jobs, nil
}

// UpdateStatus records status for the job with id and rewrites the file
func (s *YAMLSource) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Jobs {
		j := &doc.Jobs[i]
		if j.ID == id || (j.ID == "" && fmt.Sprintf("row-%d", i+1) == id) {
			ts := at.UTC()
			j.Status = status
			j.UpdatedAt = &ts
			return s.save(doc)
		}
	}
	return fmt.Errorf("%s: %w", id, ErrJobNotFound)
}
