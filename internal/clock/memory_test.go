package clock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mreyes/tablestakes/internal/events"
	"github.com/mreyes/tablestakes/internal/models"
	"github.com/mreyes/tablestakes/internal/structure"
)

// memClockRepo is an in-memory ClockRepository for engine tests. Each
// transition applies the same expected-state guard as the SQL conditional
// updates, under one mutex, so racing callers observe the same
// exactly-one-winner behavior as the real store.
type memClockRepo struct {
	mu     sync.Mutex
	clocks map[uuid.UUID]*models.TournamentClock
}

func newMemClockRepo() *memClockRepo {
	return &memClockRepo{clocks: make(map[uuid.UUID]*models.TournamentClock)}
}

func (r *memClockRepo) GetClock(_ context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clocks[tournamentID]
	if !ok {
		return nil, ErrClockNotFound
	}
	return cloneClock(c), nil
}

func (r *memClockRepo) CreateClock(_ context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clocks[tournamentID]; ok {
		return cloneClock(c), nil
	}
	c := &models.TournamentClock{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		Status:       models.ClockStatusStopped,
		CurrentLevel: 1,
		AutoAdvance:  true,
	}
	r.clocks[tournamentID] = c
	return cloneClock(c), nil
}

func (r *memClockRepo) StartClock(_ context.Context, tournamentID uuid.UUID, p startParams) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clocks[tournamentID]
	if !ok || c.Status != models.ClockStatusStopped {
		return nil, ErrClockConflict
	}
	started := p.StartedAt
	end := p.EndTime
	c.Status = models.ClockStatusRunning
	c.LevelStartedAt = &started
	c.LevelEndTime = &end
	return cloneClock(c), nil
}

func (r *memClockRepo) PauseClock(_ context.Context, tournamentID uuid.UUID, pausedAt time.Time) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clocks[tournamentID]
	if !ok || c.Status != models.ClockStatusRunning {
		return nil, ErrClockConflict
	}
	c.Status = models.ClockStatusPaused
	c.PauseStartedAt = &pausedAt
	return cloneClock(c), nil
}

func (r *memClockRepo) ResumeClock(_ context.Context, tournamentID uuid.UUID, resumedAt time.Time) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clocks[tournamentID]
	if !ok || c.Status != models.ClockStatusPaused || c.PauseStartedAt == nil {
		return nil, ErrClockConflict
	}
	elapsed := resumedAt.Sub(*c.PauseStartedAt)
	end := c.LevelEndTime.Add(elapsed)
	c.Status = models.ClockStatusRunning
	c.LevelEndTime = &end
	c.TotalPauseDuration += elapsed
	c.PauseStartedAt = nil
	return cloneClock(c), nil
}

func (r *memClockRepo) AdvanceClock(_ context.Context, tournamentID uuid.UUID, p levelChangeParams, auto bool) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clocks[tournamentID]
	if !ok || c.CurrentLevel != p.FromLevel {
		return nil, ErrClockConflict
	}
	if auto {
		expired := c.LevelEndTime != nil && !c.LevelEndTime.After(p.StartedAt)
		if c.Status != models.ClockStatusRunning || !c.AutoAdvance || !expired {
			return nil, ErrClockConflict
		}
	}
	applyLevelChange(c, p)
	return cloneClock(c), nil
}

func (r *memClockRepo) RevertClock(_ context.Context, tournamentID uuid.UUID, p levelChangeParams) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clocks[tournamentID]
	if !ok || c.CurrentLevel != p.FromLevel || c.CurrentLevel <= 1 {
		return nil, ErrClockConflict
	}
	applyLevelChange(c, p)
	return cloneClock(c), nil
}

func (r *memClockRepo) ListExpiredClocks(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, c := range r.clocks {
		if c.Status == models.ClockStatusRunning && c.AutoAdvance &&
			c.LevelEndTime != nil && !c.LevelEndTime.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memClockRepo) SetAutoAdvance(_ context.Context, tournamentID uuid.UUID, enabled bool) (*models.TournamentClock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clocks[tournamentID]
	if !ok {
		return nil, ErrClockNotFound
	}
	c.AutoAdvance = enabled
	return cloneClock(c), nil
}

func applyLevelChange(c *models.TournamentClock, p levelChangeParams) {
	started := p.StartedAt
	end := p.EndTime
	c.CurrentLevel = p.ToLevel
	c.LevelStartedAt = &started
	c.LevelEndTime = &end
	c.TotalPauseDuration = 0
	c.PauseStartedAt = nil
}

func cloneClock(c *models.TournamentClock) *models.TournamentClock {
	clone := *c
	if c.LevelStartedAt != nil {
		t := *c.LevelStartedAt
		clone.LevelStartedAt = &t
	}
	if c.LevelEndTime != nil {
		t := *c.LevelEndTime
		clone.LevelEndTime = &t
	}
	if c.PauseStartedAt != nil {
		t := *c.PauseStartedAt
		clone.PauseStartedAt = &t
	}
	return &clone
}

// memCatalog is an in-memory StructureCatalog.
type memCatalog struct {
	levels map[uuid.UUID][]models.StructureLevel
}

func newMemCatalog() *memCatalog {
	return &memCatalog{levels: make(map[uuid.UUID][]models.StructureLevel)}
}

func (c *memCatalog) setLevels(tournamentID uuid.UUID, levels ...models.StructureLevel) {
	c.levels[tournamentID] = levels
}

func (c *memCatalog) GetLevel(_ context.Context, tournamentID uuid.UUID, levelNumber int32) (*models.StructureLevel, error) {
	for _, level := range c.levels[tournamentID] {
		if level.LevelNumber == levelNumber {
			l := level
			return &l, nil
		}
	}
	return nil, structure.ErrLevelNotFound
}

func (c *memCatalog) GetLevels(_ context.Context, tournamentID uuid.UUID) ([]models.StructureLevel, error) {
	return c.levels[tournamentID], nil
}

// allowAllAuth approves every actor.
type allowAllAuth struct{}

func (allowAllAuth) RequireManager(_ context.Context, tournamentID, userID uuid.UUID) (*models.Manager, error) {
	return &models.Manager{UserID: userID}, nil
}

// denyAllAuth rejects every actor.
type denyAllAuth struct{ err error }

func (d denyAllAuth) RequireManager(context.Context, uuid.UUID, uuid.UUID) (*models.Manager, error) {
	return nil, d.err
}

// eventRecorder captures published transition events.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.ClockEvent
}

func (r *eventRecorder) PublishClockEvent(_ context.Context, evt events.ClockEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) types() []events.ClockEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]events.ClockEventType, len(r.events))
	for i, evt := range r.events {
		types[i] = evt.Type
	}
	return types
}
