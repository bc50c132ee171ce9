package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mreyes/tablestakes/internal/events"
	"github.com/mreyes/tablestakes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

type engineFixture struct {
	app     *App
	repo    *memClockRepo
	catalog *memCatalog
	clock   *clockwork.FakeClock
	events  *eventRecorder
	tid     uuid.UUID
	actor   uuid.UUID
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		repo:    newMemClockRepo(),
		catalog: newMemCatalog(),
		clock:   clockwork.NewFakeClockAt(testStart),
		events:  &eventRecorder{},
		tid:     uuid.New(),
		actor:   uuid.New(),
	}
	f.app = NewApp(f.repo, f.catalog, allowAllAuth{}, f.events, f.clock)
	f.catalog.setLevels(f.tid,
		models.StructureLevel{TournamentID: f.tid, LevelNumber: 1, SmallBlind: 100, BigBlind: 200, Ante: 200, DurationMinutes: 20},
		models.StructureLevel{TournamentID: f.tid, LevelNumber: 2, SmallBlind: 200, BigBlind: 400, Ante: 400, DurationMinutes: 20},
	)
	return f
}

func (f *engineFixture) mustCreate(t *testing.T) *models.TournamentClock {
	t.Helper()
	c, err := f.app.CreateClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)
	return c
}

func (f *engineFixture) mustStart(t *testing.T) *models.TournamentClock {
	t.Helper()
	c, err := f.app.StartClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)
	return c
}

func TestCreateClock(t *testing.T) {
	f := newEngineFixture(t)

	c := f.mustCreate(t)
	assert.Equal(t, models.ClockStatusStopped, c.Status)
	assert.Equal(t, int32(1), c.CurrentLevel)
	assert.True(t, c.AutoAdvance)
	assert.Nil(t, c.LevelEndTime)
	assert.Equal(t, []events.ClockEventType{events.EventTypeClockCreated}, f.events.types())
}

func TestCreateClockIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)

	first := f.mustCreate(t)
	second := f.mustCreate(t)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateClockRequiresStructure(t *testing.T) {
	f := newEngineFixture(t)
	empty := uuid.New()

	_, err := f.app.CreateClock(context.Background(), empty, &f.actor)
	require.Error(t, err)

	_, err = f.repo.GetClock(context.Background(), empty)
	assert.ErrorIs(t, err, ErrClockNotFound)
}

func TestStartClock(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	c := f.mustStart(t)
	assert.Equal(t, models.ClockStatusRunning, c.Status)
	require.NotNil(t, c.LevelStartedAt)
	require.NotNil(t, c.LevelEndTime)
	assert.Equal(t, testStart, *c.LevelStartedAt)
	assert.Equal(t, testStart.Add(20*time.Minute), *c.LevelEndTime)
}

func TestStartRunningClockFails(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	_, err := f.app.StartClock(context.Background(), f.tid, &f.actor)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartPausedClockResumes(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	f.clock.Advance(5 * time.Minute)
	_, err := f.app.PauseClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	c, err := f.app.StartClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)
	assert.Equal(t, models.ClockStatusRunning, c.Status)
	assert.Equal(t, time.Minute, c.TotalPauseDuration)
}

func TestPauseFreezesRemainingTime(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	f.clock.Advance(5 * time.Minute)
	_, err := f.app.PauseClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)

	snap, err := f.app.Snapshot(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, int64(15*60), snap.TimeRemainingSeconds)

	// Remaining time does not move while paused.
	f.clock.Advance(10 * time.Minute)
	snap, err = f.app.Snapshot(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, int64(15*60), snap.TimeRemainingSeconds)
}

func TestResumeShiftsLevelEndTime(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	f.clock.Advance(5 * time.Minute)
	_, err := f.app.PauseClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	c, err := f.app.ResumeClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)

	assert.Equal(t, models.ClockStatusRunning, c.Status)
	assert.Equal(t, testStart.Add(22*time.Minute), *c.LevelEndTime)
	assert.Equal(t, 2*time.Minute, c.TotalPauseDuration)
	assert.Nil(t, c.PauseStartedAt)

	snap, err := f.app.Snapshot(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, int64(15*60), snap.TimeRemainingSeconds)
}

func TestPauseResumeAccumulatesPauseDuration(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.app.PauseClock(context.Background(), f.tid, &f.actor)
		require.NoError(t, err)
		f.clock.Advance(30 * time.Second)
		_, err = f.app.ResumeClock(context.Background(), f.tid, &f.actor)
		require.NoError(t, err)
	}

	c, err := f.app.GetClock(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.TotalPauseDuration)
}

func TestPauseStoppedClockFails(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	_, err := f.app.PauseClock(context.Background(), f.tid, &f.actor)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResumeRunningClockFails(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	_, err := f.app.ResumeClock(context.Background(), f.tid, &f.actor)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRemainingTimeCountsDownWhileRunning(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	prev := int64(20 * 60)
	for i := 0; i < 4; i++ {
		f.clock.Advance(3 * time.Minute)
		snap, err := f.app.Snapshot(context.Background(), f.tid)
		require.NoError(t, err)
		assert.Less(t, snap.TimeRemainingSeconds, prev)
		prev = snap.TimeRemainingSeconds
	}
}

func TestRemainingTimeNeverNegative(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	f.clock.Advance(45 * time.Minute)
	snap, err := f.app.Snapshot(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.TimeRemainingSeconds)
}

func TestStoppedClockShowsFullLevelDuration(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	snap, err := f.app.Snapshot(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, models.ClockStatusStopped, snap.Status)
	assert.Equal(t, int64(20*60), snap.TimeRemainingSeconds)
}

func TestAdvanceLevel(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	f.clock.Advance(20 * time.Minute)
	c, err := f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)

	assert.Equal(t, int32(2), c.CurrentLevel)
	assert.Equal(t, models.ClockStatusRunning, c.Status)
	assert.Equal(t, testStart.Add(40*time.Minute), *c.LevelEndTime)
}

func TestAdvanceResetsPauseAccounting(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	f.clock.Advance(5 * time.Minute)
	_, err := f.app.PauseClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.app.ResumeClock(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)

	c, err := f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), c.TotalPauseDuration)
	assert.Nil(t, c.PauseStartedAt)
}

func TestAdvanceWhileStoppedKeepsStopped(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	c, err := f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.CurrentLevel)
	assert.Equal(t, models.ClockStatusStopped, c.Status)
}

func TestAdvancePastLastLevel(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	_, err := f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)

	_, err = f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	assert.ErrorIs(t, err, ErrNoNextLevel)

	c, err := f.app.GetClock(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.CurrentLevel)
}

func TestRevertLevel(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	_, err := f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)

	c, err := f.app.RevertLevel(context.Background(), f.tid, &f.actor)
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.CurrentLevel)
	assert.Equal(t, time.Duration(0), c.TotalPauseDuration)
}

func TestRevertAtLevelOneFails(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	before, err := f.app.GetClock(context.Background(), f.tid)
	require.NoError(t, err)

	_, err = f.app.RevertLevel(context.Background(), f.tid, &f.actor)
	assert.ErrorIs(t, err, ErrCannotRevert)

	after, err := f.app.GetClock(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAutoAdvanceRequiresExpiry(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	// Level has time left, so the scheduler-style advance must lose the
	// store guard.
	f.clock.Advance(time.Minute)
	_, err := f.app.AdvanceLevel(context.Background(), f.tid, nil, true)
	assert.ErrorIs(t, err, ErrClockConflict)
}

func TestAutoAdvanceRequiresRunning(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	_, err := f.app.AdvanceLevel(context.Background(), f.tid, nil, true)
	assert.ErrorIs(t, err, ErrClockConflict)
}

func TestAutoAdvanceRespectsDisabledFlag(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	_, err := f.app.SetAutoAdvance(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)

	f.clock.Advance(25 * time.Minute)
	due, err := f.app.ClocksDueForAdvance(context.Background())
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = f.app.AdvanceLevel(context.Background(), f.tid, nil, true)
	assert.ErrorIs(t, err, ErrClockConflict)
}

func TestClocksDueForAdvance(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)

	due, err := f.app.ClocksDueForAdvance(context.Background())
	require.NoError(t, err)
	assert.Empty(t, due)

	f.clock.Advance(20 * time.Minute)
	due, err = f.app.ClocksDueForAdvance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.tid}, due)
}

func TestConcurrentAdvanceExactlyOneWins(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)
	f.clock.Advance(20 * time.Minute)

	// A manual advance and the scheduler race for the same expired level.
	// Both target level 1, so the store's expected-level guard admits
	// exactly one of them.
	now := f.clock.Now()
	params := levelChangeParams{
		FromLevel: 1,
		ToLevel:   2,
		StartedAt: now,
		EndTime:   now.Add(20 * time.Minute),
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.repo.AdvanceClock(context.Background(), f.tid, params, i == 0)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrClockConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	c, err := f.app.GetClock(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.CurrentLevel)
}

func TestAutoAdvanceAfterManualAdvanceConflicts(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)
	f.mustStart(t)
	f.clock.Advance(20 * time.Minute)

	// The scheduler saw the clock expire, but a manual advance lands first
	// and pushes level_end_time into the future. The stale auto attempt
	// must be rejected by the store, not applied.
	now := f.clock.Now()
	_, err := f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)

	_, err = f.repo.AdvanceClock(context.Background(), f.tid, levelChangeParams{
		FromLevel: 1,
		ToLevel:   2,
		StartedAt: now,
		EndTime:   now.Add(20 * time.Minute),
	}, true)
	assert.ErrorIs(t, err, ErrClockConflict)

	c, err := f.app.GetClock(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.CurrentLevel)
}

func TestSnapshotIncludesNextLevelPreview(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	snap, err := f.app.Snapshot(context.Background(), f.tid)
	require.NoError(t, err)
	require.NotNil(t, snap.NextLevel)
	assert.Equal(t, int32(2), snap.NextLevel.LevelNumber)
	assert.Equal(t, int32(400), snap.NextLevel.BigBlind)

	_, err = f.app.AdvanceLevel(context.Background(), f.tid, &f.actor, false)
	require.NoError(t, err)

	snap, err = f.app.Snapshot(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Nil(t, snap.NextLevel)
}

func TestSnapshotUnknownTournament(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.app.Snapshot(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrClockNotFound)
}

func TestManualTransitionsRequireManager(t *testing.T) {
	f := newEngineFixture(t)
	f.mustCreate(t)

	denied := errors.New("not a manager")
	f.app = NewApp(f.repo, f.catalog, denyAllAuth{err: denied}, f.events, f.clock)

	_, err := f.app.StartClock(context.Background(), f.tid, &f.actor)
	assert.ErrorIs(t, err, denied)

	c, err := f.repo.GetClock(context.Background(), f.tid)
	require.NoError(t, err)
	assert.Equal(t, models.ClockStatusStopped, c.Status)
}

func TestFullTournamentScenario(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t)
	assert.Equal(t, models.ClockStatusStopped, c.Status)
	assert.Equal(t, int32(1), c.CurrentLevel)

	// Start level 1 at t0. It should end at t0+20m.
	c = f.mustStart(t)
	assert.Equal(t, testStart.Add(20*time.Minute), *c.LevelEndTime)

	// Pause five minutes in; remaining time freezes at 15m.
	f.clock.Advance(5 * time.Minute)
	_, err := f.app.PauseClock(ctx, f.tid, &f.actor)
	require.NoError(t, err)
	snap, err := f.app.Snapshot(ctx, f.tid)
	require.NoError(t, err)
	assert.Equal(t, int64(15*60), snap.TimeRemainingSeconds)

	// Resume two minutes later; the level now ends at t0+22m.
	f.clock.Advance(2 * time.Minute)
	c, err = f.app.ResumeClock(ctx, f.tid, &f.actor)
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(22*time.Minute), *c.LevelEndTime)
	assert.Equal(t, 2*time.Minute, c.TotalPauseDuration)

	// Run the level out and auto-advance to level 2.
	f.clock.Advance(15 * time.Minute)
	due, err := f.app.ClocksDueForAdvance(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{f.tid}, due)

	c, err = f.app.AdvanceLevel(ctx, f.tid, nil, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.CurrentLevel)
	assert.Equal(t, time.Duration(0), c.TotalPauseDuration)
	assert.Equal(t, f.clock.Now().Add(20*time.Minute), *c.LevelEndTime)

	// Level 2 is the last one; the next expiry has nowhere to go.
	f.clock.Advance(20 * time.Minute)
	_, err = f.app.AdvanceLevel(ctx, f.tid, nil, true)
	assert.ErrorIs(t, err, ErrNoNextLevel)

	assert.Equal(t, []events.ClockEventType{
		events.EventTypeClockCreated,
		events.EventTypeClockStarted,
		events.EventTypeClockPaused,
		events.EventTypeClockResumed,
		events.EventTypeLevelAdvanced,
	}, f.events.types())
}
