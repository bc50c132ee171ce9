package structure

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mreyes/tablestakes/internal/models"
)

// Repository provides access to tournament structures. Levels are read far
// more often than written; writes replace a tournament's whole structure in
// one transaction so readers never observe a gap.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a structure repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const levelColumns = `id, tournament_id, level_number, small_blind, big_blind,
	ante, duration_minutes, is_break, break_duration_minutes`

// GetLevel fetches a single level by number.
func (r *Repository) GetLevel(ctx context.Context, tournamentID uuid.UUID, levelNumber int32) (*models.StructureLevel, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+levelColumns+` FROM tournament_structures
		 WHERE tournament_id = $1 AND level_number = $2`,
		tournamentID, levelNumber)

	level, err := scanLevel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLevelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get structure level: %w", err)
	}
	return level, nil
}

// GetLevels fetches a tournament's full structure ordered by level number.
func (r *Repository) GetLevels(ctx context.Context, tournamentID uuid.UUID) ([]models.StructureLevel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+levelColumns+` FROM tournament_structures
		 WHERE tournament_id = $1 ORDER BY level_number`,
		tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list structure levels: %w", err)
	}
	defer rows.Close()

	var levels []models.StructureLevel
	for rows.Next() {
		level, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan structure level: %w", err)
		}
		levels = append(levels, *level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read structure levels: %w", err)
	}
	return levels, nil
}

// ReplaceLevels swaps a tournament's structure for the given levels inside
// one transaction.
func (r *Repository) ReplaceLevels(ctx context.Context, tournamentID uuid.UUID, levels []models.StructureLevel) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin structure transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM tournament_structures WHERE tournament_id = $1`,
		tournamentID); err != nil {
		return fmt.Errorf("failed to clear structure: %w", err)
	}

	for _, level := range levels {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tournament_structures
			   (id, tournament_id, level_number, small_blind, big_blind, ante,
			    duration_minutes, is_break, break_duration_minutes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			level.ID, tournamentID, level.LevelNumber, level.SmallBlind,
			level.BigBlind, level.Ante, level.DurationMinutes, level.IsBreak,
			level.BreakDurationMinutes); err != nil {
			return fmt.Errorf("failed to insert structure level %d: %w", level.LevelNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit structure: %w", err)
	}
	return nil
}

func scanLevel(row pgx.Row) (*models.StructureLevel, error) {
	var level models.StructureLevel
	err := row.Scan(
		&level.ID,
		&level.TournamentID,
		&level.LevelNumber,
		&level.SmallBlind,
		&level.BigBlind,
		&level.Ante,
		&level.DurationMinutes,
		&level.IsBreak,
		&level.BreakDurationMinutes,
	)
	if err != nil {
		return nil, err
	}
	return &level, nil
}
