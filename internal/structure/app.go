package structure

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mreyes/tablestakes/internal/models"
)

// StructureRepository defines what the app layer needs from the structure
// repository.
type StructureRepository interface {
	GetLevel(ctx context.Context, tournamentID uuid.UUID, levelNumber int32) (*models.StructureLevel, error)
	GetLevels(ctx context.Context, tournamentID uuid.UUID) ([]models.StructureLevel, error)
	ReplaceLevels(ctx context.Context, tournamentID uuid.UUID, levels []models.StructureLevel) error
}

// App is the structure catalog: validated writes, plain reads. The clock
// engine consumes it read-only.
type App struct {
	repo StructureRepository
}

// NewApp creates a structure App.
func NewApp(repo StructureRepository) *App {
	return &App{repo: repo}
}

// GetLevel returns one level of a tournament's structure.
func (a *App) GetLevel(ctx context.Context, tournamentID uuid.UUID, levelNumber int32) (*models.StructureLevel, error) {
	return a.repo.GetLevel(ctx, tournamentID, levelNumber)
}

// GetLevels returns the ordered structure for a tournament.
func (a *App) GetLevels(ctx context.Context, tournamentID uuid.UUID) ([]models.StructureLevel, error) {
	return a.repo.GetLevels(ctx, tournamentID)
}

// ReplaceLevels validates and writes a tournament's structure. Level numbers
// are assigned from input order, starting at 1, so the stored sequence is
// always contiguous.
func (a *App) ReplaceLevels(ctx context.Context, tournamentID uuid.UUID, inputs []LevelInput) ([]models.StructureLevel, error) {
	if err := validateLevels(inputs); err != nil {
		return nil, err
	}

	levels := make([]models.StructureLevel, len(inputs))
	for i, in := range inputs {
		levels[i] = models.StructureLevel{
			ID:                   uuid.New(),
			TournamentID:         tournamentID,
			LevelNumber:          int32(i + 1),
			SmallBlind:           in.SmallBlind,
			BigBlind:             in.BigBlind,
			Ante:                 in.Ante,
			DurationMinutes:      in.DurationMinutes,
			IsBreak:              in.IsBreak,
			BreakDurationMinutes: in.BreakDuration,
		}
	}

	if err := a.repo.ReplaceLevels(ctx, tournamentID, levels); err != nil {
		return nil, err
	}
	return levels, nil
}

func validateLevels(inputs []LevelInput) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: structure needs at least one level", ErrInvalidStructure)
	}

	for i, in := range inputs {
		n := i + 1
		if in.DurationMinutes <= 0 {
			return fmt.Errorf("%w: level %d duration must be positive", ErrInvalidStructure, n)
		}
		if in.SmallBlind < 0 || in.BigBlind < 0 {
			return fmt.Errorf("%w: level %d blinds must be non-negative", ErrInvalidStructure, n)
		}
		if in.Ante < 0 {
			return fmt.Errorf("%w: level %d ante must be non-negative", ErrInvalidStructure, n)
		}
		if !in.IsBreak && in.BreakDuration != nil {
			return fmt.Errorf("%w: level %d sets break duration but is not a break", ErrInvalidStructure, n)
		}
		if in.BreakDuration != nil && *in.BreakDuration <= 0 {
			return fmt.Errorf("%w: level %d break duration must be positive", ErrInvalidStructure, n)
		}
	}
	return nil
}
