package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mreyes/tablestakes/internal/clock"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often each subscriber receives a snapshot.
const DefaultInterval = time.Second

// SnapshotSource defines what the publisher needs from the clock engine's
// read path.
type SnapshotSource interface {
	Snapshot(ctx context.Context, tournamentID uuid.UUID) (*clock.Snapshot, error)
}

// Publisher pushes clock snapshots to subscribers once per second. It is a
// derived read-only projection: every emission re-reads the store through the
// snapshot source, so subscribers always see the effect of concurrent manual
// mutations and scheduler advances. Delivery is lossy with at most one
// pending snapshot per subscriber; only the latest matters.
type Publisher struct {
	src      SnapshotSource
	clock    clockwork.Clock
	interval time.Duration

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

// Subscription is a cancellable handle on one tournament's snapshot stream.
type Subscription struct {
	tournamentID uuid.UUID
	ch           chan *clock.Snapshot
	nudge        chan struct{}
	cancel       context.CancelFunc
	once         sync.Once
	pub          *Publisher
}

// NewPublisher creates a publisher. interval <= 0 selects DefaultInterval.
func NewPublisher(src SnapshotSource, clk clockwork.Clock, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{
		src:      src,
		clock:    clk,
		interval: interval,
		subs:     make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Subscribe starts a per-second snapshot stream for a tournament. The stream
// ends when Cancel is called or ctx is done; either closes the channel and
// releases the subscriber's resources.
func (p *Publisher) Subscribe(ctx context.Context, tournamentID uuid.UUID) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		tournamentID: tournamentID,
		ch:           make(chan *clock.Snapshot, 1),
		nudge:        make(chan struct{}, 1),
		cancel:       cancel,
		pub:          p,
	}

	p.mu.Lock()
	if p.subs[tournamentID] == nil {
		p.subs[tournamentID] = make(map[*Subscription]struct{})
	}
	p.subs[tournamentID][sub] = struct{}{}
	p.mu.Unlock()

	go sub.run(ctx)

	log.Debug().
		Str("tournament_id", tournamentID.String()).
		Msg("clock subscription opened")
	return sub
}

// Nudge asks all of a tournament's subscribers to emit immediately instead of
// waiting for the next tick. Used by the event consumer after a transition.
func (p *Publisher) Nudge(tournamentID uuid.UUID) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for sub := range p.subs[tournamentID] {
		select {
		case sub.nudge <- struct{}{}:
		default:
		}
	}
}

// Updates is the snapshot channel. Closed on cancellation.
func (s *Subscription) Updates() <-chan *clock.Snapshot {
	return s.ch
}

// Cancel stops the stream. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

func (s *Subscription) run(ctx context.Context) {
	defer s.close()

	ticker := s.pub.clock.NewTicker(s.pub.interval)
	defer ticker.Stop()

	// Emit once up front so a new subscriber is not blank for a full tick.
	s.emit(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.emit(ctx)
		case <-s.nudge:
			s.emit(ctx)
		}
	}
}

// emit pushes the current snapshot, displacing any undelivered one.
func (s *Subscription) emit(ctx context.Context) {
	snap, err := s.pub.src.Snapshot(ctx, s.tournamentID)
	if err != nil {
		// NotFound before the clock is created is routine; anything else is
		// worth a log line, but the stream keeps going either way.
		log.Debug().
			Err(err).
			Str("tournament_id", s.tournamentID.String()).
			Msg("snapshot unavailable, skipping emission")
		return
	}

	for {
		select {
		case s.ch <- snap:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func (s *Subscription) close() {
	s.once.Do(func() {
		s.pub.mu.Lock()
		if subs, ok := s.pub.subs[s.tournamentID]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.pub.subs, s.tournamentID)
			}
		}
		s.pub.mu.Unlock()
		close(s.ch)

		log.Debug().
			Str("tournament_id", s.tournamentID.String()).
			Msg("clock subscription closed")
	})
}
