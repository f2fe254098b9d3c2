// Package natsfeed is an alternative inbound event source: it consumes
// room events from a NATS JetStream stream instead of a websocket, for
// server-side mirrors of a room (archival workers, judge integrations).
// Events land in the same session apply loop as websocket-delivered ones.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/pointcasthq/pointcast/go/room"
)

// EventSink receives decoded room events in stream order. session.Session
// satisfies this through HandleEvent.
type EventSink interface {
	HandleEvent(ev room.Event)
}

// Config holds configuration for the JetStream feed.
type Config struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		ConsumerName:  "room-feed",
		SubjectFilter: "room.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Feed consumes room events from JetStream and hands them to a sink.
type Feed struct {
	sink     EventSink
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   Config
}

// New connects to NATS and ensures the durable consumer exists.
func New(sink EventSink, config Config) (*Feed, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
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

	f := &Feed{
		sink:   sink,
		nc:     nc,
		js:     js,
		config: config,
	}

	if err := f.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return f, nil
}

func (f *Feed) ensureConsumer(ctx context.Context) error {
	stream, err := f.js.Stream(ctx, f.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          f.config.ConsumerName,
		Durable:       f.config.ConsumerName,
		Description:   "room event feed",
		FilterSubject: f.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    f.config.MaxDeliver,
		AckWait:       f.config.AckWait,
		MaxAckPending: f.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, f.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", f.config.ConsumerName).
			Str("stream", f.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", f.config.ConsumerName).
			Str("stream", f.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	f.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled. Malformed payloads are
// terminated rather than redelivered; redelivery cannot make them parse.
func (f *Feed) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", f.config.ConsumerName).
		Str("stream", f.config.StreamName).
		Msg("starting room event feed")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := f.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room event feed shutting down")
			return nil
		case msg := <-messageCh:
			f.processMessage(msg)
		}
	}
}

func (f *Feed) processMessage(msg jetstream.Msg) {
	var ev room.Event
	if err := json.Unmarshal(msg.Data(), &ev); err != nil || ev.Type == "" {
		log.Warn().
			Err(err).
			Str("subject", msg.Subject()).
			Msg("terminating malformed room event")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
		return
	}

	log.Debug().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("subject", msg.Subject()).
		Msg("processing room event")

	f.sink.HandleEvent(ev)

	if ackErr := msg.Ack(); ackErr != nil {
		log.Error().Err(ackErr).Msg("failed to ACK message")
	}
}

// Stop gracefully shuts the feed down.
func (f *Feed) Stop() error {
	log.Info().Msg("stopping room event feed")
	if f.nc != nil {
		f.nc.Close()
	}
	return nil
}
