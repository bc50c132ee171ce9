package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mreyes/tablestakes/internal/events"
	"github.com/mreyes/tablestakes/internal/models"
	"github.com/mreyes/tablestakes/internal/structure"
	"github.com/rs/zerolog/log"
)

// ClockRepository defines what the engine needs from the clock store. Every
// transition method performs a conditional atomic update and returns
// ErrClockConflict when the expected prior state no longer holds.
type ClockRepository interface {
	GetClock(ctx context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error)
	CreateClock(ctx context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error)
	StartClock(ctx context.Context, tournamentID uuid.UUID, p startParams) (*models.TournamentClock, error)
	PauseClock(ctx context.Context, tournamentID uuid.UUID, pausedAt time.Time) (*models.TournamentClock, error)
	ResumeClock(ctx context.Context, tournamentID uuid.UUID, resumedAt time.Time) (*models.TournamentClock, error)
	AdvanceClock(ctx context.Context, tournamentID uuid.UUID, p levelChangeParams, auto bool) (*models.TournamentClock, error)
	RevertClock(ctx context.Context, tournamentID uuid.UUID, p levelChangeParams) (*models.TournamentClock, error)
	ListExpiredClocks(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	SetAutoAdvance(ctx context.Context, tournamentID uuid.UUID, enabled bool) (*models.TournamentClock, error)
}

// StructureCatalog defines what the engine needs from the structure side.
type StructureCatalog interface {
	GetLevel(ctx context.Context, tournamentID uuid.UUID, levelNumber int32) (*models.StructureLevel, error)
	GetLevels(ctx context.Context, tournamentID uuid.UUID) ([]models.StructureLevel, error)
}

// Authorizer checks that an acting user may operate a tournament's clock.
type Authorizer interface {
	RequireManager(ctx context.Context, tournamentID, userID uuid.UUID) (*models.Manager, error)
}

// EventPublisher receives advisory transition events. May be nil.
type EventPublisher interface {
	PublishClockEvent(ctx context.Context, evt events.ClockEvent) error
}

// App is the tournament clock engine: it validates transitions, computes the
// time fields each one writes, and hands the write to the store's conditional
// update. It holds no clock state of its own; every read hits the store so
// manual callers, the scheduler, and other replicas all see the same row.
type App struct {
	repo    ClockRepository
	catalog StructureCatalog
	auth    Authorizer
	events  EventPublisher
	clock   clockwork.Clock
}

// NewApp creates the clock engine. events may be nil to disable publishing.
func NewApp(repo ClockRepository, catalog StructureCatalog, auth Authorizer, events EventPublisher, clk clockwork.Clock) *App {
	return &App{
		repo:    repo,
		catalog: catalog,
		auth:    auth,
		events:  events,
		clock:   clk,
	}
}

// CreateClock initializes the stopped, level-1 clock for a tournament. The
// structure must already have a level 1.
func (a *App) CreateClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error) {
	if err := a.authorize(ctx, tournamentID, actor); err != nil {
		return nil, err
	}

	if _, err := a.catalog.GetLevel(ctx, tournamentID, 1); err != nil {
		return nil, fmt.Errorf("tournament has no structure: %w", err)
	}

	c, err := a.repo.CreateClock(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	a.publish(ctx, c, events.EventTypeClockCreated, actor)
	return c, nil
}

// StartClock starts a stopped clock on its current level. Starting a paused
// clock behaves as resume.
func (a *App) StartClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error) {
	if err := a.authorize(ctx, tournamentID, actor); err != nil {
		return nil, err
	}

	c, err := a.repo.GetClock(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case models.ClockStatusRunning:
		return nil, fmt.Errorf("%w: clock is already running", ErrInvalidTransition)
	case models.ClockStatusPaused:
		return a.resume(ctx, c, actor)
	}

	level, err := a.catalog.GetLevel(ctx, tournamentID, c.CurrentLevel)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	c, err = a.repo.StartClock(ctx, tournamentID, startParams{
		StartedAt: now,
		EndTime:   now.Add(levelDuration(level)),
	})
	if err != nil {
		return nil, err
	}

	a.publish(ctx, c, events.EventTypeClockStarted, actor)
	return c, nil
}

// PauseClock pauses a running clock, freezing its remaining time.
func (a *App) PauseClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error) {
	if err := a.authorize(ctx, tournamentID, actor); err != nil {
		return nil, err
	}

	c, err := a.repo.GetClock(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ClockStatusRunning {
		return nil, fmt.Errorf("%w: cannot pause a %s clock", ErrInvalidTransition, c.Status)
	}

	c, err = a.repo.PauseClock(ctx, tournamentID, a.clock.Now())
	if err != nil {
		return nil, err
	}

	a.publish(ctx, c, events.EventTypeClockPaused, actor)
	return c, nil
}

// ResumeClock resumes a paused clock, shifting level_end_time forward by the
// elapsed pause so remaining time is preserved exactly.
func (a *App) ResumeClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error) {
	if err := a.authorize(ctx, tournamentID, actor); err != nil {
		return nil, err
	}

	c, err := a.repo.GetClock(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return a.resume(ctx, c, actor)
}

func (a *App) resume(ctx context.Context, c *models.TournamentClock, actor *uuid.UUID) (*models.TournamentClock, error) {
	if c.Status != models.ClockStatusPaused {
		return nil, fmt.Errorf("%w: cannot resume a %s clock", ErrInvalidTransition, c.Status)
	}

	c, err := a.repo.ResumeClock(ctx, c.TournamentID, a.clock.Now())
	if err != nil {
		return nil, err
	}

	a.publish(ctx, c, events.EventTypeClockResumed, actor)
	return c, nil
}

// AdvanceLevel moves the clock to the next structure level. auto marks a
// scheduler-initiated advance: it skips authorization and tightens the store
// guard so an expired level is advanced at most once across all callers and
// replicas.
func (a *App) AdvanceLevel(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID, auto bool) (*models.TournamentClock, error) {
	if !auto {
		if err := a.authorize(ctx, tournamentID, actor); err != nil {
			return nil, err
		}
	}

	c, err := a.repo.GetClock(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	next, err := a.catalog.GetLevel(ctx, tournamentID, c.CurrentLevel+1)
	if err != nil {
		if errors.Is(err, structure.ErrLevelNotFound) {
			return nil, fmt.Errorf("%w: level %d is the last", ErrNoNextLevel, c.CurrentLevel)
		}
		return nil, err
	}

	now := a.clock.Now()
	c, err = a.repo.AdvanceClock(ctx, tournamentID, levelChangeParams{
		FromLevel: c.CurrentLevel,
		ToLevel:   c.CurrentLevel + 1,
		StartedAt: now,
		EndTime:   now.Add(levelDuration(next)),
	}, auto)
	if err != nil {
		return nil, err
	}

	a.publish(ctx, c, events.EventTypeLevelAdvanced, actor)
	return c, nil
}

// RevertLevel moves the clock back one structure level. Fails with
// ErrCannotRevert at level 1 without touching state.
func (a *App) RevertLevel(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error) {
	if err := a.authorize(ctx, tournamentID, actor); err != nil {
		return nil, err
	}

	c, err := a.repo.GetClock(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if c.CurrentLevel <= 1 {
		return nil, ErrCannotRevert
	}

	prev, err := a.catalog.GetLevel(ctx, tournamentID, c.CurrentLevel-1)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	c, err = a.repo.RevertClock(ctx, tournamentID, levelChangeParams{
		FromLevel: c.CurrentLevel,
		ToLevel:   c.CurrentLevel - 1,
		StartedAt: now,
		EndTime:   now.Add(levelDuration(prev)),
	})
	if err != nil {
		return nil, err
	}

	a.publish(ctx, c, events.EventTypeLevelReverted, actor)
	return c, nil
}

// SetAutoAdvance toggles scheduler control of this clock.
func (a *App) SetAutoAdvance(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID, enabled bool) (*models.TournamentClock, error) {
	if err := a.authorize(ctx, tournamentID, actor); err != nil {
		return nil, err
	}
	return a.repo.SetAutoAdvance(ctx, tournamentID, enabled)
}

// GetClock returns the raw clock row.
func (a *App) GetClock(ctx context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error) {
	return a.repo.GetClock(ctx, tournamentID)
}

// GetLevels returns the tournament's full structure.
func (a *App) GetLevels(ctx context.Context, tournamentID uuid.UUID) ([]models.StructureLevel, error) {
	return a.catalog.GetLevels(ctx, tournamentID)
}

// ClocksDueForAdvance lists tournaments whose running auto-advance clocks
// have expired as of now.
func (a *App) ClocksDueForAdvance(ctx context.Context) ([]uuid.UUID, error) {
	return a.repo.ListExpiredClocks(ctx, a.clock.Now())
}

// Snapshot assembles the live projection for a tournament: current status and
// level, remaining time recomputed at call time, and the next level preview.
func (a *App) Snapshot(ctx context.Context, tournamentID uuid.UUID) (*Snapshot, error) {
	c, err := a.repo.GetClock(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	level, err := a.catalog.GetLevel(ctx, tournamentID, c.CurrentLevel)
	if err != nil {
		return nil, err
	}

	next, err := a.catalog.GetLevel(ctx, tournamentID, c.CurrentLevel+1)
	if err != nil && !errors.Is(err, structure.ErrLevelNotFound) {
		return nil, err
	}

	now := a.clock.Now()
	return &Snapshot{
		TournamentID:         tournamentID,
		Status:               c.Status,
		CurrentLevel:         c.CurrentLevel,
		TimeRemainingSeconds: int64(remaining(c, level, now) / time.Second),
		SmallBlind:           level.SmallBlind,
		BigBlind:             level.BigBlind,
		Ante:                 level.Ante,
		IsBreak:              level.IsBreak,
		LevelDurationMinutes: level.DurationMinutes,
		AutoAdvance:          c.AutoAdvance,
		NextLevel:            next,
		ObservedAt:           now,
	}, nil
}

// remaining is the time-remaining projection. It is never persisted:
// running clocks count down against the wall clock, paused clocks are frozen
// at the instant of pause, stopped clocks show the full level duration.
func remaining(c *models.TournamentClock, level *models.StructureLevel, now time.Time) time.Duration {
	switch c.Status {
	case models.ClockStatusRunning:
		if c.LevelEndTime == nil {
			return 0
		}
		return max(0, c.LevelEndTime.Sub(now))
	case models.ClockStatusPaused:
		if c.LevelEndTime == nil || c.PauseStartedAt == nil {
			return 0
		}
		return max(0, c.LevelEndTime.Sub(*c.PauseStartedAt))
	default:
		return levelDuration(level)
	}
}

func levelDuration(level *models.StructureLevel) time.Duration {
	return time.Duration(level.DurationMinutes) * time.Minute
}

func (a *App) authorize(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) error {
	if actor == nil {
		return fmt.Errorf("%w: actor is required", ErrInvalidTransition)
	}
	if a.auth == nil {
		return nil
	}
	if _, err := a.auth.RequireManager(ctx, tournamentID, *actor); err != nil {
		return err
	}
	return nil
}

func (a *App) publish(ctx context.Context, c *models.TournamentClock, typ events.ClockEventType, actor *uuid.UUID) {
	if a.events == nil {
		return
	}
	evt := events.ClockEvent{
		ID:           uuid.New(),
		TournamentID: c.TournamentID,
		Type:         typ,
		Status:       c.Status,
		CurrentLevel: c.CurrentLevel,
		ActorID:      actor,
		OccurredAt:   a.clock.Now(),
	}
	if err := a.events.PublishClockEvent(ctx, evt); err != nil {
		log.Warn().
			Err(err).
			Str("tournament_id", c.TournamentID.String()).
			Str("event_type", string(typ)).
			Msg("failed to publish clock event")
	}
}
