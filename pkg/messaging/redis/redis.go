package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/queue-api/pkg/circuitbreaker"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/messaging"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

type RedisBroker struct {
	client  *redis.Client
	cb      *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
	metrics *metrics.Metrics
	buffer  int
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	// SubscribeBuffer sizes the channel returned by Subscribe.
	SubscribeBuffer int
}

func NewRedisBroker(ctx context.Context, config Config, log *logger.Logger, m *metrics.Metrics) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newBroker(client, config.SubscribeBuffer, log, m), nil
}

func newBroker(client *redis.Client, buffer int, log *logger.Logger, m *metrics.Metrics) *RedisBroker {
	if buffer <= 0 {
		buffer = 100
	}
	return &RedisBroker{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-broker",
			MaxFailures: 5,
			Timeout:     5 * time.Second,
		}),
		logger:  log,
		metrics: m,
		buffer:  buffer,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := messaging.Encode(message)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
	b.observe("publish", start, err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	msgChan := make(chan []byte, b.buffer)
	go func() {
		defer func() {
			pubsub.Close()
			close(msgChan)
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case msgChan <- []byte(msg.Payload):
				default:
					if b.metrics != nil {
						b.metrics.BroadcastsDropped.WithLabelValues("subscribe").Inc()
					}
					b.logger.Warn("dropping redis message, subscriber is slow", "channel", channel)
				}
			}
		}
	}()

	return msgChan, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	if err := b.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (b *RedisBroker) observe(op string, start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.metrics.RedisOperations.WithLabelValues(op, status).Inc()
	b.metrics.RedisLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
