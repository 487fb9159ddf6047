package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/switchyard/internal/experiment"
)

const assignPrefix = "syd:assign:"

// Redis persists assignments as JSON values under per-pair keys. SetNX gives
// PutIfAbsent its atomic first-write-wins semantics; a non-zero TTL bounds
// how long a dormant session keeps its assignments (expiry is the caller's
// lifecycle decision, the engine reassigns deterministically after loss).
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a Redis-backed assignment store. ttl of zero means keys
// never expire.
func NewRedis(redisURL string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis connected")
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func assignKey(sessionID, experimentID string) string {
	return assignPrefix + sessionID + ":" + experimentID
}

// Get returns the assignment for the pair, or nil when none exists.
func (s *Redis) Get(ctx context.Context, sessionID, experimentID string) (*experiment.Assignment, error) {
	data, err := s.rdb.Get(ctx, assignKey(sessionID, experimentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	var a experiment.Assignment
	if err := json.Unmarshal(data, &a); err != nil {
		// Corrupt value: treated as no stored assignment.
		s.logger.Warn("corrupt assignment dropped",
			zap.String("session", sessionID),
			zap.String("experiment", experimentID),
			zap.Error(err))
		return nil, nil
	}
	return &a, nil
}

// PutIfAbsent stores the assignment unless the pair already has one.
func (s *Redis) PutIfAbsent(ctx context.Context, a experiment.Assignment) (*experiment.Assignment, bool, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, false, fmt.Errorf("marshal assignment: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, assignKey(a.SessionID, a.ExperimentID), data, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx assignment: %w", err)
	}
	if ok {
		return &a, true, nil
	}
	existing, err := s.Get(ctx, a.SessionID, a.ExperimentID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Key expired between SetNX and Get; treat ours as the winner.
		return &a, true, nil
	}
	return existing, false, nil
}

// Put stores the assignment unconditionally, replacing any prior one.
func (s *Redis) Put(ctx context.Context, a experiment.Assignment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}
	if err := s.rdb.Set(ctx, assignKey(a.SessionID, a.ExperimentID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set assignment: %w", err)
	}
	return nil
}

// List returns the session's assignments by scanning the session's key
// space. Introspection path, not the evaluation hot path.
func (s *Redis) List(ctx context.Context, sessionID string) ([]experiment.Assignment, error) {
	var out []experiment.Assignment
	iter := s.rdb.Scan(ctx, 0, assignPrefix+sessionID+":*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		var a experiment.Assignment
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan assignments: %w", err)
	}
	return out, nil
}

// Close releases the Redis connection.
func (s *Redis) Close() error {
	return s.rdb.Close()
}
