package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "medvault/pkg/domain"
)

const redisKeyPrefix = "medvault:access:idempotency:"

// Redis is a Store shared by every server instance. Remember relies on
// SET NX so concurrent retries agree on one request ID.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) Lookup(ctx context.Context, key string) (id.RequestID, bool, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return id.RequestID{}, false, nil
		}
		return id.RequestID{}, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	requestID, err := id.ParseRequestID(value)
	if err != nil {
		return id.RequestID{}, false, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return requestID, true, nil
}

func (s *Redis) Remember(ctx context.Context, key string, requestID id.RequestID) (id.RequestID, error) {
	set, err := s.client.SetNX(ctx, redisKeyPrefix+key, requestID.String(), s.ttl).Result()
	if err != nil {
		return id.RequestID{}, fmt.Errorf("remember idempotency key: %w", err)
	}
	if set {
		return requestID, nil
	}
	stored, ok, err := s.Lookup(ctx, key)
	if err != nil {
		return id.RequestID{}, err
	}
	if !ok {
		// Expired between SETNX and GET; the caller's ID is as good as any.
		return requestID, nil
	}
	return stored, nil
}
