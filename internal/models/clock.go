package models

import (
	"time"

	"github.com/google/uuid"
)

// ClockStatus defines the state of a tournament clock.
type ClockStatus string

const (
	ClockStatusStopped ClockStatus = "stopped"
	ClockStatusRunning ClockStatus = "running"
	ClockStatusPaused  ClockStatus = "paused"
)

// TournamentClock is the durable clock row, one per tournament.
//
// LevelEndTime is stored as an absolute timestamp so that remaining time is a
// pure function of wall-clock time and survives restarts. Pausing freezes it;
// resuming shifts it forward by the elapsed pause.
type TournamentClock struct {
	ID           uuid.UUID   `json:"id"`
	TournamentID uuid.UUID   `json:"tournament_id"`
	Status       ClockStatus `json:"status"`
	CurrentLevel int32       `json:"current_level"`
	// Set whenever a level becomes active while running.
	LevelStartedAt *time.Time `json:"level_started_at,omitempty"`
	LevelEndTime   *time.Time `json:"level_end_time,omitempty"`
	// Present only while paused.
	PauseStartedAt *time.Time `json:"pause_started_at,omitempty"`
	// Accumulated pause time for the current level only; reset on every
	// level transition.
	TotalPauseDuration time.Duration `json:"total_pause_duration"`
	AutoAdvance        bool          `json:"auto_advance"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}
