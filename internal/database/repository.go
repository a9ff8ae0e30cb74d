package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/khrees2412/coldreach/pkg/models"
)

// Activity log events
const (
	EventDrafted  = "drafted"
	EventUpdated  = "updated"
	EventSent     = "sent"
	EventFollowup = "followup"
	EventReplied  = "replied"
	EventClosed   = "closed"
)

// Outreach entry operations

// SaveEntry upserts the current record and appends a snapshot of it to the
// activity log for the day the entry was last updated.
func (s *Store) SaveEntry(ctx context.Context, entry *models.OutreachEntry, event string) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	query := `INSERT INTO outreach_entries (id, company, company_key, recipient_email, status, response_category,
			  created_at, updated_at, sent_at, replied_at, last_contact_at, data)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET company=excluded.company, company_key=excluded.company_key,
			  recipient_email=excluded.recipient_email, status=excluded.status,
			  response_category=excluded.response_category, updated_at=excluded.updated_at,
			  sent_at=excluded.sent_at, replied_at=excluded.replied_at,
			  last_contact_at=excluded.last_contact_at, data=excluded.data`
	_, err = s.q.ExecContext(ctx, query, entry.ID, entry.CompanyName, CompanyKey(entry.CompanyName),
		EmailKey(entry.RecipientEmail), string(entry.Status), string(entry.ResponseCategory),
		formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt), formatTimePtr(entry.SentAt),
		formatTimePtr(entry.RepliedAt), formatTimePtr(entry.LastContact()), string(data))
	if err != nil {
		return fmt.Errorf("failed to save entry %s: %w", entry.ID, err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO activity_log (log_date, entry_id, event, status, category, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		models.DateKey(entry.UpdatedAt), entry.ID, event, string(entry.Status),
		string(entry.ResponseCategory), string(data), formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to append activity for %s: %w", entry.ID, err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*models.OutreachEntry, error) {
	var raw string
	err := s.q.QueryRowContext(ctx, `SELECT data FROM outreach_entries WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry(raw)
}

// EntriesByDate returns the current form of every entry with activity on date
func (s *Store) EntriesByDate(ctx context.Context, date string) ([]*models.OutreachEntry, error) {
	return s.queryEntries(ctx,
		`SELECT data FROM outreach_entries
		 WHERE id IN (SELECT DISTINCT entry_id FROM activity_log WHERE log_date = ?)
		 ORDER BY created_at`, date)
}

// EntryFilter narrows SearchEntries. Zero fields match everything.
type EntryFilter struct {
	Company   string
	Recipient string
	Status    models.OutreachStatus
	Since     *time.Time // created at or after
	Limit     int
}

func (s *Store) SearchEntries(ctx context.Context, f EntryFilter) ([]*models.OutreachEntry, error) {
	var where []string
	var args []any
	if f.Company != "" {
		where = append(where, "company_key = ?")
		args = append(args, CompanyKey(f.Company))
	}
	if f.Recipient != "" {
		where = append(where, "recipient_email = ?")
		args = append(args, EmailKey(f.Recipient))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*f.Since))
	}

	query := `SELECT data FROM outreach_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return s.queryEntries(ctx, query, args...)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]*models.OutreachEntry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.OutreachEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		entry, err := decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func decodeEntry(raw string) (*models.OutreachEntry, error) {
	entry := &models.OutreachEntry{}
	if err := json.Unmarshal([]byte(raw), entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return entry, nil
}

// ActivityByDate returns the append-only log for one day, oldest first
func (s *Store) ActivityByDate(ctx context.Context, date string) ([]models.ActivityRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, log_date, entry_id, event, status, snapshot, created_at
		 FROM activity_log WHERE log_date = ? ORDER BY id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ActivityRecord
	for rows.Next() {
		var rec models.ActivityRecord
		var status, snapshot, created string
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.EntryID, &rec.Event, &status, &snapshot, &created); err != nil {
			return nil, err
		}
		rec.Status = models.OutreachStatus(status)
		if err := json.Unmarshal([]byte(snapshot), &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode activity %d: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DailyStats counts the events logged on date
func (s *Store) DailyStats(ctx context.Context, date string) (*models.DailyStats, error) {
	stats := &models.DailyStats{Date: date}
	rows, err := s.q.QueryContext(ctx,
		`SELECT event, COALESCE(category, ''), COUNT(*) FROM activity_log
		 WHERE log_date = ? GROUP BY event, category`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var event, category string
		var n int
		if err := rows.Scan(&event, &category, &n); err != nil {
			return nil, err
		}
		switch event {
		case EventDrafted:
			stats.EmailsDrafted += n
		case EventSent:
			stats.EmailsSent += n
		case EventFollowup:
			stats.FollowupsSent += n
		case EventReplied:
			stats.RepliesReceived += n
			switch models.ResponseCategory(category) {
			case models.ResponsePositive:
				stats.PositiveResponses += n
			case models.ResponseRejection:
				stats.Rejections += n
			}
		}
	}
	return stats, rows.Err()
}

// Company operations

// CompanyHistory aggregates every sent entry for the company, matched on the
// normalised name, together with its do-not-contact flag. Unknown companies
// yield an empty history.
func (s *Store) CompanyHistory(ctx context.Context, company string) (*models.CompanyHistory, error) {
	key := CompanyKey(company)
	history := &models.CompanyHistory{CompanyName: company, OutreachIDs: []string{}}

	entries, err := s.queryEntries(ctx,
		`SELECT data FROM outreach_entries
		 WHERE company_key = ? AND sent_at IS NOT NULL
		 ORDER BY sent_at`, key)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		history.OutreachIDs = append(history.OutreachIDs, e.ID)
		history.TotalOutreach++
		if e.RepliedAt != nil {
			history.ResponsesReceived++
		}
		switch e.ResponseCategory {
		case models.ResponsePositive:
			history.PositiveResponses++
		case models.ResponseRejection:
			history.Rejections++
		}
		if history.FirstContactDate == nil || e.SentAt.Before(*history.FirstContactDate) {
			history.FirstContactDate = e.SentAt
		}
		if last := e.LastContact(); last != nil && (history.LastContactDate == nil || last.After(*history.LastContactDate)) {
			history.LastContactDate = last
			history.LastStatus = string(e.Status)
		}
	}

	var flag bool
	var reason sql.NullString
	err = s.q.QueryRowContext(ctx,
		`SELECT do_not_contact, reason FROM company_flags WHERE company_key = ?`, key).Scan(&flag, &reason)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	history.DoNotContact = flag
	history.DoNotContactReason = reason.String
	return history, nil
}

// SetCompanyDoNotContact sets or clears the company-wide block
func (s *Store) SetCompanyDoNotContact(ctx context.Context, company string, blocked bool, reason string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO company_flags (company_key, company, do_not_contact, reason, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(company_key) DO UPDATE SET do_not_contact = excluded.do_not_contact,
		 reason = excluded.reason, updated_at = excluded.updated_at`,
		CompanyKey(company), company, blocked, reason, formatTime(time.Now()))
	return err
}

// Do-not-contact list operations

func (s *Store) AddNoContact(ctx context.Context, email, reason string, at time.Time) error {
	key := EmailKey(email)
	if key == "" {
		return errors.New("email is required")
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO no_contact (email, reason, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET reason = excluded.reason`,
		key, reason, formatTime(at))
	return err
}

func (s *Store) RemoveNoContact(ctx context.Context, email string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM no_contact WHERE email = ?`, EmailKey(email))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", email, ErrNotFound)
	}
	return nil
}

// NoContact returns the list entry for email, or nil when it is not listed
func (s *Store) NoContact(ctx context.Context, email string) (*models.NoContactEntry, error) {
	key := EmailKey(email)
	if key == "" {
		return nil, nil
	}
	entry := &models.NoContactEntry{}
	var reason sql.NullString
	var created string
	err := s.q.QueryRowContext(ctx,
		`SELECT email, reason, created_at FROM no_contact WHERE email = ?`, key).Scan(&entry.Email, &reason, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.Reason = reason.String
	if entry.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) ListNoContact(ctx context.Context) ([]models.NoContactEntry, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT email, reason, created_at FROM no_contact ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.NoContactEntry
	for rows.Next() {
		var entry models.NoContactEntry
		var reason sql.NullString
		var created string
		if err := rows.Scan(&entry.Email, &reason, &created); err != nil {
			return nil, err
		}
		entry.Reason = reason.String
		if entry.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	return list, rows.Err()
}

// Opportunity operations

func (s *Store) SaveOpportunity(ctx context.Context, opp *models.JobOpportunity) error {
	if opp.ID == "" {
		return errors.New("opportunity id is required")
	}
	if !opp.Stage.Valid() {
		return fmt.Errorf("opportunity %s: invalid stage %q", opp.ID, opp.Stage)
	}
	data, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("failed to encode opportunity: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO opportunities (id, company, stage, is_active, created_at, updated_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET company = excluded.company, stage = excluded.stage,
		 is_active = excluded.is_active, updated_at = excluded.updated_at, data = excluded.data`,
		opp.ID, opp.CompanyName, string(opp.Stage), opp.IsActive,
		formatTime(opp.CreatedAt), formatTime(opp.UpdatedAt), string(data))
	if err != nil {
		return fmt.Errorf("failed to save opportunity %s: %w", opp.ID, err)
	}
	return nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (*models.JobOpportunity, error) {
	var raw string
	err := s.q.QueryRowContext(ctx, `SELECT data FROM opportunities WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	opp := &models.JobOpportunity{}
	if err := json.Unmarshal([]byte(raw), opp); err != nil {
		return nil, fmt.Errorf("failed to decode opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ListOpportunities returns opportunities oldest first, optionally filtered
// to one stage and to active ones
func (s *Store) ListOpportunities(ctx context.Context, stage models.PipelineStage, activeOnly bool) ([]*models.JobOpportunity, error) {
	query := `SELECT data FROM opportunities WHERE 1=1`
	var args []any
	if stage != "" {
		query += " AND stage = ?"
		args = append(args, string(stage))
	}
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY created_at"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opps []*models.JobOpportunity
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		opp := &models.JobOpportunity{}
		if err := json.Unmarshal([]byte(raw), opp); err != nil {
			return nil, fmt.Errorf("failed to decode opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	return opps, rows.Err()
}

func (s *Store) DeleteOpportunity(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM opportunities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	return nil
}
