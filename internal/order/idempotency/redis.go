package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idempotency:order:"

// releaseScript drops a reservation only while it is still pending for the same request.
var releaseScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return 0
end
local rec = cjson.decode(raw)
if rec.status == "pending" and rec.fingerprint == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (order.Reservation, error) {
	ttl = ttlOrDefault(ttl)
	redisKey := keyPrefix + hashKey(key)

	pending, err := json.Marshal(record{
		Status:      statusPending,
		Fingerprint: fingerprint,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	})
	if err != nil {
		return order.Reservation{}, err
	}

	ok, err := s.client.SetNX(ctx, redisKey, pending, ttl).Result()
	if err != nil {
		return order.Reservation{}, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return order.Reservation{State: order.ReservationNew}, nil
	}

	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		return s.Reserve(ctx, key, fingerprint, ttl)
	}
	if err != nil {
		return order.Reservation{}, fmt.Errorf("load idempotency key: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return order.Reservation{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	return reservationFor(rec, fingerprint)
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint, orderID string, ttl time.Duration) error {
	ttl = ttlOrDefault(ttl)
	done, err := json.Marshal(record{
		Status:      statusCompleted,
		Fingerprint: fingerprint,
		OrderID:     orderID,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+hashKey(key), done, ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	if err := releaseScript.Run(ctx, s.client, []string{keyPrefix + hashKey(key)}, fingerprint).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
