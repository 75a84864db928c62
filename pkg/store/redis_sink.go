package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/macawi-ai/domovoi/pkg/events"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "domovoi:events"

// RedisSink publishes every event to a Redis stream with XADD.
type RedisSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
	logger *slog.Logger
}

var _ Sink = (*RedisSink)(nil)

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisSink) { s.maxLen = n }
}

// NewRedisSink publishes to stream on client. An empty stream uses
// DefaultStream.
func NewRedisSink(client redis.Cmdable, stream string, opts ...RedisOption) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	s := &RedisSink{
		client: client,
		stream: stream,
		logger: slog.Default().With("component", "redis_sink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisClient builds a client the same way for every caller.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Stream is the target stream key.
func (s *RedisSink) Stream() string { return s.stream }

// Write appends evs to the stream in sequence order.
func (s *RedisSink) Write(ctx context.Context, runID string, evs []events.Event) error {
	if runID == "" {
		return ErrEmptyRunID
	}
	for _, e := range evs {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event %d: %w", e.Sequence, err)
		}
		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]any{
				"run_id":   runID,
				"seq":      e.Sequence,
				"severity": string(e.Severity),
				"type":     e.Kind.Type(),
				"payload":  string(payload),
			},
		}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}
		if err := s.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("failed to publish event %d to %s: %w", e.Sequence, s.stream, err)
		}
	}
	s.logger.DebugContext(ctx, "events published", "run_id", runID, "stream", s.stream, "count", len(evs))
	return nil
}
