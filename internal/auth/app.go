package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mreyes/tablestakes/internal/models"
)

// ErrNotManager is returned when the user does not manage the tournament's club
var ErrNotManager = errors.New("user is not a manager of this tournament")

// ManagerRepository defines what the app layer needs from the auth repository.
type ManagerRepository interface {
	GetManagerForTournament(ctx context.Context, tournamentID, userID uuid.UUID) (*models.Manager, error)
}

// App answers "may this user operate this tournament's clock". Manual clock
// transitions go through RequireManager; the scheduler never does.
type App struct {
	repo ManagerRepository
}

// NewApp creates an auth App.
func NewApp(repo ManagerRepository) *App {
	return &App{repo: repo}
}

// RequireManager returns the manager identity or ErrNotManager.
func (a *App) RequireManager(ctx context.Context, tournamentID, userID uuid.UUID) (*models.Manager, error) {
	return a.repo.GetManagerForTournament(ctx, tournamentID, userID)
}
