package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mreyes/tablestakes/internal/clock"
	"github.com/mreyes/tablestakes/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the poll interval. A level can therefore expire up to
// one interval before its clock is auto-advanced; the live stream keeps
// showing zero remaining in the meantime.
const DefaultInterval = 5 * time.Second

// ClockEngine defines what the scheduler needs from the clock engine.
type ClockEngine interface {
	ClocksDueForAdvance(ctx context.Context) ([]uuid.UUID, error)
	AdvanceLevel(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID, auto bool) (*models.TournamentClock, error)
}

// Scheduler is the auto-advance loop: every tick it queries for expired
// running clocks and advances each one with the automatic (actor-less) path.
// The store's conditional update makes it safe to run alongside manual
// mutations and other scheduler replicas; losing a race is a debug-level
// no-op, never an error.
type Scheduler struct {
	engine     ClockEngine
	clock      clockwork.Clock
	interval   time.Duration
	instanceID string
}

// New creates a scheduler. interval <= 0 selects DefaultInterval.
func New(engine ClockEngine, clk clockwork.Clock, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		engine:     engine,
		clock:      clk,
		interval:   interval,
		instanceID: uuid.New().String()[:8],
	}
}

// Run ticks until ctx is cancelled. It never returns a tick's failure: one
// bad tick (or one bad tournament within a tick) must not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().
		Str("instance", s.instanceID).
		Dur("interval", s.interval).
		Msg("clock scheduler started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", s.instanceID).Msg("clock scheduler shutting down")
			return
		case <-ticker.Chan():
			s.processTick(ctx)
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context) {
	due, err := s.engine.ClocksDueForAdvance(ctx)
	if err != nil {
		log.Error().Err(err).Str("instance", s.instanceID).Msg("failed to query expired clocks")
		return
	}

	for _, tournamentID := range due {
		s.advance(ctx, tournamentID)
	}
}

func (s *Scheduler) advance(ctx context.Context, tournamentID uuid.UUID) {
	c, err := s.engine.AdvanceLevel(ctx, tournamentID, nil, true)
	switch {
	case err == nil:
		log.Info().
			Str("instance", s.instanceID).
			Str("tournament_id", tournamentID.String()).
			Int32("level", c.CurrentLevel).
			Msg("auto-advanced tournament level")
	case errors.Is(err, clock.ErrNoNextLevel):
		// Final level ran out; the tournament just stays on it.
		log.Debug().
			Str("tournament_id", tournamentID.String()).
			Msg("clock expired on final level, nothing to advance")
	case errors.Is(err, clock.ErrClockConflict):
		// A manual caller or another replica advanced it first.
		log.Debug().
			Str("tournament_id", tournamentID.String()).
			Msg("clock already advanced by another caller")
	default:
		log.Warn().
			Err(err).
			Str("instance", s.instanceID).
			Str("tournament_id", tournamentID.String()).
			Msg("failed to auto-advance tournament level")
	}
}
