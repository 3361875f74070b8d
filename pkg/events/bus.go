// pkg/events/bus.go

package events

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	// DefaultStream is the Redis stream local mutations are appended to.
	DefaultStream = "listsync:changes"
	// DefaultGroup is the consumer group the outbound synchronizer reads as.
	DefaultGroup = "outbound"

	payloadField = "payload"
	readBatch    = 16
	readBlock    = 5 * time.Second
)

// Publisher appends change events to the durable channel.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// Handler processes one delivered change event.
type Handler func(ctx context.Context, event ChangeEvent) error

// BusConfig carries the Redis stream settings.
type BusConfig struct {
	URL      string
	Stream   string
	Group    string
	Consumer string
}

// Bus is a Redis Streams backed change-event channel. Producers append with
// XADD; the consumer group delivers each entry at least once. Every delivered
// entry is acknowledged after its handler returns, whatever the outcome:
// failed pushes are not retried here, the periodic reconciler repairs them.
type Bus struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	logger   *zap.Logger
}

// NewBus connects to Redis and prepares a bus on the configured stream.
func NewBus(ctx context.Context, cfg BusConfig) (*Bus, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, cerr.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, cerr.Wrap(err, "ping redis")
	}

	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	group := cfg.Group
	if group == "" {
		group = DefaultGroup
	}
	consumer := cfg.Consumer
	if consumer == "" {
		// A stable name lets a restarted process re-read its own
		// pending entries instead of orphaning them.
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "listsync"
		}
		consumer = host
	}

	return &Bus{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		logger:   zap.L().Named("events"),
	}, nil
}

// Close releases the Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Publish appends the event to the stream.
func (b *Bus) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return cerr.Wrap(err, "marshal change event")
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{payloadField: string(data)},
	}).Result()
	if err != nil {
		return cerr.Wrapf(err, "append %s to stream %s", event.Kind, b.stream)
	}

	otelzap.Ctx(ctx).Debug("Change event published",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.Uint("entity_id", event.EntityID),
		zap.String("stream_id", id))
	return nil
}

// Run consumes the stream until ctx is cancelled. It first drains this
// consumer's pending entries, so events delivered before a crash are
// processed again after restart, then blocks on new entries.
func (b *Bus) Run(ctx context.Context, handler Handler) error {
	if err := b.ensureGroup(ctx); err != nil {
		return err
	}

	b.logger.Info("Consuming change events",
		zap.String("stream", b.stream),
		zap.String("group", b.group),
		zap.String("consumer", b.consumer))

	// Pending entries delivered to this consumer but never acknowledged.
	// Reads return batches, so keep going until the backlog is empty.
	for {
		n, err := b.consume(ctx, handler, "0")
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Change event consumer stopping")
			return nil
		default:
		}

		if _, err := b.consume(ctx, handler, ">"); err != nil {
			return err
		}
	}
}

func (b *Bus) ensureGroup(ctx context.Context) error {
	// Start the group at the beginning of the stream so events published
	// before the first consumer came up are still delivered.
	err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return cerr.Wrapf(err, "create consumer group %s", b.group)
	}
	return nil
}

func (b *Bus) consume(ctx context.Context, handler Handler, fromID string) (int, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, fromID},
		Count:    readBatch,
		Block:    readBlock,
	}).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			return 0, nil
		}
		return 0, cerr.Wrapf(err, "read stream %s", b.stream)
	}

	delivered := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			b.dispatch(ctx, handler, msg)
			delivered++
		}
	}
	return delivered, nil
}

// dispatch runs the handler for one delivered entry and always acknowledges
// it. Handler failures are logged, not redelivered: the event channel only
// guarantees the remote push is attempted, the reconciler guarantees it
// eventually lands.
func (b *Bus) dispatch(ctx context.Context, handler Handler, msg redis.XMessage) {
	defer b.ack(ctx, msg.ID)

	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		b.logger.Warn("Dropping stream entry without payload",
			zap.String("stream_id", msg.ID))
		return
	}

	var event ChangeEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		b.logger.Warn("Dropping malformed change event",
			zap.String("stream_id", msg.ID),
			zap.Error(err))
		return
	}

	if err := handler(ctx, event); err != nil {
		otelzap.Ctx(ctx).Warn("Change event handler failed, reconciler will repair",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Uint("entity_id", event.EntityID),
			zap.Error(err))
	}
}

func (b *Bus) ack(ctx context.Context, streamID string) {
	if err := b.client.XAck(ctx, b.stream, b.group, streamID).Err(); err != nil {
		b.logger.Warn("Failed to acknowledge stream entry",
			zap.String("stream_id", streamID),
			zap.Error(err))
	}
}
