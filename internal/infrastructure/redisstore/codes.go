// Package redisstore implements the verification code store on Redis for
// deployments that share codes across API instances.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-recovery-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Codes are stored as a hash so the compare-and-delete script can read the
// value without decoding the payload.
const (
	fieldValue   = "code"
	fieldPayload = "payload"
)

var removeIfEqualsScript = redis.NewScript(`
	if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

var putIfAbsentScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
`)

var incrementScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// CodeStore implements verification.CodeStore and verification.AttemptCounter.
type CodeStore struct {
	client *redis.Client
	prefix string
}

func NewCodeStore(client *redis.Client, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "recovery:"
	}
	return &CodeStore{client: client, prefix: prefix}
}

func (s *CodeStore) codeKey(key string) string {
	return s.prefix + "code:" + key
}

func (s *CodeStore) attemptsKey(key string) string {
	return s.prefix + "attempts:" + key
}

func (s *CodeStore) Put(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("redis codes: encode: %w", err)
	}
	k := s.codeKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, fieldValue, code.Value, fieldPayload, payload)
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return unavailable("put", err)
	}
	return nil
}

func (s *CodeStore) PutIfAbsent(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(code)
	if err != nil {
		return false, fmt.Errorf("redis codes: encode: %w", err)
	}
	n, err := putIfAbsentScript.Run(ctx, s.client, []string{s.codeKey(key)},
		fieldValue, code.Value, fieldPayload, payload, ttlMillis(ttl)).Int64()
	if err != nil {
		return false, unavailable("put if absent", err)
	}
	return n == 1, nil
}

func (s *CodeStore) Get(ctx context.Context, key string) (*domain.VerificationCode, error) {
	raw, err := s.client.HGet(ctx, s.codeKey(key), fieldPayload).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	var code domain.VerificationCode
	if err := json.Unmarshal(raw, &code); err != nil {
		return nil, fmt.Errorf("redis codes: decode %s: %w", key, err)
	}
	return &code, nil
}

func (s *CodeStore) RemoveIfEquals(ctx context.Context, key, expected string) (bool, error) {
	n, err := removeIfEqualsScript.Run(ctx, s.client, []string{s.codeKey(key)}, fieldValue, expected).Int64()
	if err != nil {
		return false, unavailable("remove if equals", err)
	}
	return n == 1, nil
}

func (s *CodeStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.codeKey(key)).Err(); err != nil {
		return unavailable("remove", err)
	}
	return nil
}

func (s *CodeStore) Increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{s.attemptsKey(key)}, ttlMillis(ttl)).Int64()
	if err != nil {
		return 0, unavailable("count attempt", err)
	}
	return int(n), nil
}

func (s *CodeStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.attemptsKey(key)).Err(); err != nil {
		return unavailable("reset attempts", err)
	}
	return nil
}

func (s *CodeStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// ttlMillis rounds sub-millisecond TTLs up so PEXPIRE never receives zero.
func ttlMillis(ttl time.Duration) int64 {
	if ms := ttl.Milliseconds(); ms >= 1 {
		return ms
	}
	return 1
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis codes: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
