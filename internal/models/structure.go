package models

import (
	"github.com/google/uuid"
)

// StructureLevel is one blind level in a tournament's structure. Levels are
// numbered from 1 with no gaps and are immutable once the tournament runs.
type StructureLevel struct {
	ID              uuid.UUID `json:"id"`
	TournamentID    uuid.UUID `json:"tournament_id"`
	LevelNumber     int32     `json:"level_number"`
	SmallBlind      int32     `json:"small_blind"`
	BigBlind        int32     `json:"big_blind"`
	Ante            int32     `json:"ante"`
	DurationMinutes int32     `json:"duration_minutes"`
	IsBreak         bool      `json:"is_break"`
	// Present only when IsBreak is set.
	BreakDurationMinutes *int32 `json:"break_duration_minutes,omitempty"`
}
