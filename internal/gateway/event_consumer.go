package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mreyes/tablestakes/internal/events"
	"github.com/mreyes/tablestakes/internal/live"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// EventConsumerConfig holds JetStream consumer settings for clock events.
type EventConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	AckWait       time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultEventConsumerConfig returns default clock event consumer settings.
func DefaultEventConsumerConfig() EventConsumerConfig {
	return EventConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "CLOCK_EVENTS",
		ConsumerName:  "clock-gateway",
		SubjectFilter: "clock.events.>",
		AckWait:       30 * time.Second,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer turns clock transition events into immediate snapshot pushes
// by nudging the live publisher. The 1s poll remains the delivery floor;
// this only trims the latency of manual and scheduler transitions. Events
// carry no state, so a missed or redelivered event is harmless.
type EventConsumer struct {
	publisher *live.Publisher
	nc        *nats.Conn
	consumer  jetstream.Consumer
	config    EventConsumerConfig
}

// NewEventConsumer connects to NATS and binds an ephemeral consumer that
// starts at new events only.
func NewEventConsumer(publisher *live.Publisher, config EventConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.Stream(context.Background(), config.StreamName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(context.Background(), jetstream.ConsumerConfig{
		Name:          config.ConsumerName,
		Durable:       config.ConsumerName,
		Description:   "Clock gateway snapshot nudger",
		FilterSubject: config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       config.AckWait,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	return &EventConsumer{
		publisher: publisher,
		nc:        nc,
		consumer:  consumer,
		config:    config,
	}, nil
}

// Start consumes until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("clock event consumer started")

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		ec.handleMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Str("consumer", ec.config.ConsumerName).Msg("clock event consumer shutting down")
	return nil
}

func (ec *EventConsumer) handleMessage(msg jetstream.Msg) {
	var evt events.ClockEvent
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode clock event")
		msg.Term()
		return
	}

	ec.publisher.Nudge(evt.TournamentID)

	log.Debug().
		Str("tournament_id", evt.TournamentID.String()).
		Str("event_type", string(evt.Type)).
		Msg("nudged subscribers after clock event")

	if err := msg.Ack(); err != nil {
		log.Warn().Err(err).Msg("failed to ack clock event")
	}
}

// Close drains the NATS connection.
func (ec *EventConsumer) Close() {
	ec.nc.Close()
}
