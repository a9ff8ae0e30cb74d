package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/khrees2412/coldreach/pkg/models"
)

const heartbeatKey = "heartbeat"

// LoadStatus says how LoadState produced the state it returned
type LoadStatus int

const (
	StateLoaded    LoadStatus = iota // read back as stored
	StateCreated                     // nothing stored yet, defaults persisted
	StateRecovered                   // stored blob was corrupt, defaults persisted and blob backed up
)

func (s LoadStatus) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateCreated:
		return "created"
	case StateRecovered:
		return "recovered"
	}
	return "unknown"
}

// LoadState reads the heartbeat state. A missing record is created with
// defaults; a corrupt one is copied to state_backups and reset. Neither case
// is an error.
func (s *Store) LoadState(ctx context.Context) (*models.HeartbeatState, LoadStatus, error) {
	var raw string
	err := s.q.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, heartbeatKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		state := models.NewHeartbeatState()
		if err := s.SaveState(ctx, state); err != nil {
			return nil, StateCreated, err
		}
		return state, StateCreated, nil
	}
	if err != nil {
		return nil, StateLoaded, fmt.Errorf("failed to read state: %w", err)
	}

	state, decodeErr := decodeState(raw)
	if decodeErr == nil {
		return state, StateLoaded, nil
	}

	now := formatTime(time.Now())
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO state_backups (key, value, reason, created_at) VALUES (?, ?, ?, ?)`,
		heartbeatKey, raw, decodeErr.Error(), now); err != nil {
		return nil, StateRecovered, fmt.Errorf("failed to back up corrupt state: %w", err)
	}
	state = models.NewHeartbeatState()
	if err := s.SaveState(ctx, state); err != nil {
		return nil, StateRecovered, err
	}
	return state, StateRecovered, nil
}

func decodeState(raw string) (*models.HeartbeatState, error) {
	state := &models.HeartbeatState{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, err
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if state.ScheduledFollowups == nil {
		state.ScheduledFollowups = []models.FollowUpTask{}
	}
	return state, nil
}

// SaveState replaces the stored heartbeat state
func (s *Store) SaveState(ctx context.Context, state *models.HeartbeatState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid state: %w", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		heartbeatKey, string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// StateBackups counts corrupt state blobs that were set aside
func (s *Store) StateBackups(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM state_backups`).Scan(&n)
	return n, err
}
