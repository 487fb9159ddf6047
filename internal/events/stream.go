package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamSink appends events to a Redis stream for downstream analytics
// consumers to tail.
type StreamSink struct {
	rdb    *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamSink creates a Redis-backed event sink.
func NewStreamSink(redisURL, stream string, logger *zap.Logger) (*StreamSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &StreamSink{rdb: rdb, stream: stream, logger: logger}, nil
}

// Record appends the event asynchronously; XAdd runs under its own timeout
// so the evaluation path never blocks on Redis.
func (s *StreamSink) Record(_ context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Debug("marshal event", zap.String("name", ev.Name), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"data": string(data),
			},
		}).Err()
		if err != nil {
			s.logger.Debug("append event",
				zap.String("stream", s.stream),
				zap.String("name", ev.Name),
				zap.Error(err))
		}
	}()
}

// Close releases the Redis connection.
func (s *StreamSink) Close() error {
	return s.rdb.Close()
}
