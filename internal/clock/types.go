package clock

import (
	"time"

	"github.com/google/uuid"
	"github.com/mreyes/tablestakes/internal/models"
)

// Snapshot is the derived, read-only projection of a clock that the live
// stream emits. It is recomputed from the store on every read and never
// persisted.
type Snapshot struct {
	TournamentID         uuid.UUID              `json:"tournament_id"`
	Status               models.ClockStatus     `json:"status"`
	CurrentLevel         int32                  `json:"current_level"`
	TimeRemainingSeconds int64                  `json:"time_remaining_sec"`
	SmallBlind           int32                  `json:"small_blind"`
	BigBlind             int32                  `json:"big_blind"`
	Ante                 int32                  `json:"ante"`
	IsBreak              bool                   `json:"is_break"`
	LevelDurationMinutes int32                  `json:"level_duration_minutes"`
	AutoAdvance          bool                   `json:"auto_advance"`
	NextLevel            *models.StructureLevel `json:"next_level,omitempty"`
	ObservedAt           time.Time              `json:"observed_at"`
}

// startParams carries the timestamps a start/resume transition writes.
type startParams struct {
	StartedAt time.Time
	EndTime   time.Time
}

// levelChangeParams carries the fields an advance/revert transition writes.
// FromLevel is the level the caller observed; the store's conditional update
// requires the row to still be at that level.
type levelChangeParams struct {
	FromLevel int32
	ToLevel   int32
	StartedAt time.Time
	EndTime   time.Time
}
