package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/mreyes/tablestakes/internal/models"
)

// ClockEventType identifies a clock transition.
type ClockEventType string

const (
	EventTypeClockCreated  ClockEventType = "ClockCreated"
	EventTypeClockStarted  ClockEventType = "ClockStarted"
	EventTypeClockPaused   ClockEventType = "ClockPaused"
	EventTypeClockResumed  ClockEventType = "ClockResumed"
	EventTypeLevelAdvanced ClockEventType = "LevelAdvanced"
	EventTypeLevelReverted ClockEventType = "LevelReverted"
)

// ClockEvent is the advisory notification published after a transition
// commits. Consumers must not treat it as state: the clock row is the source
// of truth and every snapshot re-reads it.
type ClockEvent struct {
	ID           uuid.UUID          `json:"id"`
	TournamentID uuid.UUID          `json:"tournament_id"`
	Type         ClockEventType     `json:"type"`
	Status       models.ClockStatus `json:"status"`
	CurrentLevel int32              `json:"current_level"`
	// Nil for automatic transitions made by the scheduler.
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
