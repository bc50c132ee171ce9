package structure

import "errors"

// ErrLevelNotFound is returned when a tournament's structure has no entry for
// the requested level number
var ErrLevelNotFound = errors.New("structure level not found")

// ErrInvalidStructure is returned when a structure write fails validation
var ErrInvalidStructure = errors.New("invalid tournament structure")

// LevelInput is one level of a structure write. Level numbers are implied by
// position: the first input becomes level 1.
type LevelInput struct {
	SmallBlind      int32  `json:"small_blind"`
	BigBlind        int32  `json:"big_blind"`
	Ante            int32  `json:"ante"`
	DurationMinutes int32  `json:"duration_minutes"`
	IsBreak         bool   `json:"is_break"`
	BreakDuration   *int32 `json:"break_duration_minutes,omitempty"`
}
