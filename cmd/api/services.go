package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mreyes/tablestakes/internal/auth"
	"github.com/mreyes/tablestakes/internal/clock"
	"github.com/mreyes/tablestakes/internal/events"
	"github.com/mreyes/tablestakes/internal/gateway"
	"github.com/mreyes/tablestakes/internal/live"
	"github.com/mreyes/tablestakes/internal/scheduler"
	"github.com/mreyes/tablestakes/internal/structure"
	"github.com/rs/zerolog/log"
)

// Services holds the wired application graph.
type Services struct {
	Clock     *clock.App
	Publisher *live.Publisher
	Scheduler *scheduler.Scheduler
	Gateway   *gateway.Handler
	Consumer  *gateway.EventConsumer
	publisher *events.JetStreamPublisher
}

func setupServices(pool *pgxpool.Pool, cfg *Config) (*Services, error) {
	clk := clockwork.NewRealClock()

	// Database layer -> repository -> app, as everywhere else.
	structureRepo := structure.NewRepository(pool)
	structureApp := structure.NewApp(structureRepo)

	authRepo := auth.NewRepository(pool)
	authApp := auth.NewApp(authRepo)

	// Transition events are optional; without NATS the 1s poll is the only
	// delivery path.
	var eventPub *events.JetStreamPublisher
	var enginePub clock.EventPublisher
	if cfg.NATS.Enabled {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		p, err := events.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, err
		}
		eventPub = p
		enginePub = p
	}

	clockRepo := clock.NewRepository(pool)
	clockApp := clock.NewApp(clockRepo, structureApp, authApp, enginePub, clk)

	publisher := live.NewPublisher(clockApp, clk, cfg.liveInterval())
	sched := scheduler.New(clockApp, clk, cfg.schedulerInterval())

	stream := gateway.NewStreamHandler(publisher, gateway.DefaultStreamConfig())
	handler := gateway.NewHandler(clockApp, structureApp, authApp, stream)

	var consumer *gateway.EventConsumer
	if cfg.NATS.Enabled {
		ecCfg := gateway.DefaultEventConsumerConfig()
		ecCfg.URL = cfg.NATS.URL
		c, err := gateway.NewEventConsumer(publisher, ecCfg)
		if err != nil {
			// The stream still works on polling alone.
			log.Warn().Err(err).Msg("clock event consumer unavailable, relying on polling")
		} else {
			consumer = c
		}
	}

	return &Services{
		Clock:     clockApp,
		Publisher: publisher,
		Scheduler: sched,
		Gateway:   handler,
		Consumer:  consumer,
		publisher: eventPub,
	}, nil
}

// Close releases external connections.
func (s *Services) Close() {
	if s.Consumer != nil {
		s.Consumer.Close()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
}
