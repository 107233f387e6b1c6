package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telecare/telecare/internal/platform/telemetry"
)

// DefaultChannel is the pub/sub channel shared by all server processes.
const DefaultChannel = "telecare:events"

// RedisBroker fans events out across processes. Publish only writes to Redis;
// every process, including the publisher, delivers to its local hub from its
// subscription. A single channel keeps per-room order intact.
type RedisBroker struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	logger  zerolog.Logger
}

func NewRedisBroker(rdb *redis.Client, hub *Hub, channel string, logger zerolog.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		rdb:     rdb,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "relay_broker").Logger(),
	}
}

// Publish implements EventPublisher.
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	ctx, span := telemetry.Tracer().Start(ctx, "relay.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("relay.room", event.Room),
			attribute.String("relay.event", event.Type),
		))
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redis publish")
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to the channel and delivers events to the local hub until
// ctx is cancelled. It returns once the subscription is confirmed or fails.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.deliver([]byte(msg.Payload))
			}
		}
	}()

	b.logger.Info().Str("channel", b.channel).Msg("relay broker subscribed")
	return nil
}

func (b *RedisBroker) deliver(payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		b.logger.Warn().Err(err).Msg("discarding malformed relay event")
		return
	}
	b.hub.Broadcast(ev.Room, ev)
}

// Ping checks connectivity.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
