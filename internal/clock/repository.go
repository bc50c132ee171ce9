package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mreyes/tablestakes/internal/models"
)

// Repository is the clock store. Every transition is a single conditional
// UPDATE qualified by the expected prior state; zero rows affected means a
// concurrent caller got there first and surfaces as ErrClockConflict. This
// row guard is the only concurrency control in the subsystem, so no method
// here may split a transition across statements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a clock repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clockColumns = `id, tournament_id, clock_status, current_level,
	level_started_at, level_end_time, pause_started_at,
	total_pause_duration, auto_advance, created_at, updated_at`

// GetClock fetches the clock row for a tournament.
func (r *Repository) GetClock(ctx context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+clockColumns+` FROM tournament_clocks WHERE tournament_id = $1`,
		tournamentID)

	c, err := scanClock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clock: %w", err)
	}
	return c, nil
}

// CreateClock inserts the stopped, level-1 clock row for a tournament.
// Creation is idempotent: if a row already exists it is returned untouched.
func (r *Repository) CreateClock(ctx context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tournament_clocks (id, tournament_id, clock_status, current_level, auto_advance)
		 VALUES ($1, $2, 'stopped', 1, true)
		 ON CONFLICT (tournament_id) DO NOTHING`,
		uuid.New(), tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to create clock: %w", err)
	}

	return r.GetClock(ctx, tournamentID)
}

// StartClock transitions stopped -> running, stamping the first level's
// window. Resuming from paused goes through ResumeClock instead.
func (r *Repository) StartClock(ctx context.Context, tournamentID uuid.UUID, p startParams) (*models.TournamentClock, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE tournament_clocks
		 SET clock_status = 'running',
		     level_started_at = $2,
		     level_end_time = $3,
		     updated_at = now()
		 WHERE tournament_id = $1 AND clock_status = 'stopped'
		 RETURNING `+clockColumns,
		tournamentID, p.StartedAt, p.EndTime)

	return guardedScan(row, "start clock")
}

// PauseClock transitions running -> paused. level_end_time is left frozen;
// the shift happens on resume.
func (r *Repository) PauseClock(ctx context.Context, tournamentID uuid.UUID, pausedAt time.Time) (*models.TournamentClock, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE tournament_clocks
		 SET clock_status = 'paused',
		     pause_started_at = $2,
		     updated_at = now()
		 WHERE tournament_id = $1 AND clock_status = 'running'
		 RETURNING `+clockColumns,
		tournamentID, pausedAt)

	return guardedScan(row, "pause clock")
}

// ResumeClock transitions paused -> running. The end-time shift and pause
// accounting are computed from the in-row pause_started_at inside the same
// statement as the status guard, so a racing resume cannot double-shift.
func (r *Repository) ResumeClock(ctx context.Context, tournamentID uuid.UUID, resumedAt time.Time) (*models.TournamentClock, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE tournament_clocks
		 SET clock_status = 'running',
		     level_end_time = level_end_time + ($2 - pause_started_at),
		     total_pause_duration = total_pause_duration + ($2 - pause_started_at),
		     pause_started_at = NULL,
		     updated_at = now()
		 WHERE tournament_id = $1 AND clock_status = 'paused' AND pause_started_at IS NOT NULL
		 RETURNING `+clockColumns,
		tournamentID, resumedAt)

	return guardedScan(row, "resume clock")
}

// AdvanceClock moves the clock to p.ToLevel provided the row is still at
// p.FromLevel. Automatic advances additionally require the clock to be
// running with auto_advance set and the level actually expired, which is what
// bounds the scheduler to at most one advance per (tournament, level).
func (r *Repository) AdvanceClock(ctx context.Context, tournamentID uuid.UUID, p levelChangeParams, auto bool) (*models.TournamentClock, error) {
	query := `UPDATE tournament_clocks
		 SET current_level = $2,
		     level_started_at = $3,
		     level_end_time = $4,
		     total_pause_duration = interval '0',
		     pause_started_at = NULL,
		     updated_at = now()
		 WHERE tournament_id = $1 AND current_level = $5`
	args := []any{tournamentID, p.ToLevel, p.StartedAt, p.EndTime, p.FromLevel}

	if auto {
		query += ` AND clock_status = 'running' AND auto_advance AND level_end_time <= $6`
		args = append(args, p.StartedAt)
	}
	query += ` RETURNING ` + clockColumns

	row := r.pool.QueryRow(ctx, query, args...)
	return guardedScan(row, "advance clock")
}

// RevertClock moves the clock back to p.ToLevel with the same stamp/reset
// behavior as AdvanceClock. The level floor is enforced here as well as in
// the engine.
func (r *Repository) RevertClock(ctx context.Context, tournamentID uuid.UUID, p levelChangeParams) (*models.TournamentClock, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE tournament_clocks
		 SET current_level = $2,
		     level_started_at = $3,
		     level_end_time = $4,
		     total_pause_duration = interval '0',
		     pause_started_at = NULL,
		     updated_at = now()
		 WHERE tournament_id = $1 AND current_level = $5 AND current_level > 1
		 RETURNING `+clockColumns,
		tournamentID, p.ToLevel, p.StartedAt, p.EndTime, p.FromLevel)

	return guardedScan(row, "revert clock")
}

// ListExpiredClocks returns tournaments whose running, auto-advancing clocks
// have passed their level end time. The scheduler feeds these back through
// AdvanceClock with auto=true.
func (r *Repository) ListExpiredClocks(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tournament_id FROM tournament_clocks
		 WHERE clock_status = 'running' AND auto_advance AND level_end_time <= $1
		 ORDER BY level_end_time`,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired clocks: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired clock row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read expired clocks: %w", err)
	}
	return ids, nil
}

// SetAutoAdvance toggles whether the scheduler may advance this clock.
func (r *Repository) SetAutoAdvance(ctx context.Context, tournamentID uuid.UUID, enabled bool) (*models.TournamentClock, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE tournament_clocks
		 SET auto_advance = $2, updated_at = now()
		 WHERE tournament_id = $1
		 RETURNING `+clockColumns,
		tournamentID, enabled)

	c, err := scanClock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set auto advance: %w", err)
	}
	return c, nil
}

// guardedScan maps the no-rows result of a conditional update to
// ErrClockConflict. Callers have already established the row exists.
func guardedScan(row pgx.Row, op string) (*models.TournamentClock, error) {
	c, err := scanClock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClockConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return c, nil
}

func scanClock(row pgx.Row) (*models.TournamentClock, error) {
	var (
		c          models.TournamentClock
		status     string
		pauseTotal pgtype.Interval
	)
	err := row.Scan(
		&c.ID,
		&c.TournamentID,
		&status,
		&c.CurrentLevel,
		&c.LevelStartedAt,
		&c.LevelEndTime,
		&c.PauseStartedAt,
		&pauseTotal,
		&c.AutoAdvance,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.ClockStatus(status)
	c.TotalPauseDuration = intervalToDuration(pauseTotal)
	return &c, nil
}

// intervalToDuration flattens a Postgres interval. Pause accounting never
// produces month components; days can appear for very long pauses.
func intervalToDuration(iv pgtype.Interval) time.Duration {
	if !iv.Valid {
		return 0
	}
	d := time.Duration(iv.Microseconds) * time.Microsecond
	d += time.Duration(iv.Days) * 24 * time.Hour
	d += time.Duration(iv.Months) * 30 * 24 * time.Hour
	return d
}
