package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mreyes/tablestakes/internal/models"
)

// Repository resolves manager relationships. Managers are scoped to a club;
// a tournament is managed by whoever manages its club.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetManagerForTournament returns the manager row linking the user to the
// tournament's club, or ErrNotManager.
func (r *Repository) GetManagerForTournament(ctx context.Context, tournamentID, userID uuid.UUID) (*models.Manager, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT cm.user_id, cm.club_id
		 FROM club_managers cm
		 JOIN tournaments t ON t.club_id = cm.club_id
		 WHERE t.id = $1 AND cm.user_id = $2`,
		tournamentID, userID)

	var m models.Manager
	err := row.Scan(&m.UserID, &m.ClubID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotManager
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up manager: %w", err)
	}
	return &m, nil
}
