// Package store keeps generation status and progress in Redis for polling clients.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a finished generation stays visible.
const DefaultTTL = 24 * time.Hour

type Status struct {
	Status   string         `json:"status"`
	Stage    string         `json:"stage,omitempty"`
	Message  string         `json:"message"`
	Start    *time.Time     `json:"start_time,omitempty"`
	End      *time.Time     `json:"end_time,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type RedisStatus struct {
	client redis.UniversalClient
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return NewRedisStatusClient(c, ttl), nil
}

// NewRedisStatusClient wraps an existing client. ttl <= 0 uses DefaultTTL.
func NewRedisStatusClient(c redis.UniversalClient, ttl time.Duration) *RedisStatus {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStatus{client: c, keyNS: "quiz", ttl: ttl}
}

func (s *RedisStatus) key(requestID string) string {
	return fmt.Sprintf("%s:%s:status", s.keyNS, requestID)
}

func (s *RedisStatus) progressKey(requestID string) string {
	return fmt.Sprintf("%s:%s:progress", s.keyNS, requestID)
}

// Set replaces the stored fields of a status. Fields left empty are removed.
func (s *RedisStatus) Set(ctx context.Context, requestID string, st Status) error {
	m := map[string]any{
		"status":  st.Status,
		"stage":   st.Stage,
		"message": st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		m["metadata"] = string(b)
	}
	key := s.key(requestID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, m)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStatus) Get(ctx context.Context, requestID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(requestID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{Status: res["status"], Stage: res["stage"], Message: res["message"]}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st, true, nil
}

// AppendProgress adds one user-facing progress line.
func (s *RedisStatus) AppendProgress(ctx context.Context, requestID, message string) error {
	key := s.progressKey(requestID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, message)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Progress returns the progress lines in the order they were appended.
func (s *RedisStatus) Progress(ctx context.Context, requestID string) ([]string, error) {
	lines, err := s.client.LRange(ctx, s.progressKey(requestID), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return lines, err
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() redis.UniversalClient { return s.client }
