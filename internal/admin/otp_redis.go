package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gallery:admin:"

// RedisOTPStore keeps codes in Redis so several gallery processes share
// them. Expiry is delegated to key TTLs.
type RedisOTPStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxAttempts int
	limit       int
	window      time.Duration
}

// NewRedisOTPStore connects to url and applies the limits of cfg.
func NewRedisOTPStore(ctx context.Context, url string, cfg Config) (*RedisOTPStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisOTPStoreFromClient(client, cfg), nil
}

// NewRedisOTPStoreFromClient wraps an existing client.
func NewRedisOTPStoreFromClient(client *redis.Client, cfg Config) *RedisOTPStore {
	cfg.applyDefaults()
	return &RedisOTPStore{
		client:      client,
		ttl:         cfg.OTPTTL,
		maxAttempts: cfg.OTPMaxAttempts,
		limit:       cfg.RateLimit,
		window:      cfg.RateLimitWindow,
	}
}

// Close closes the underlying client.
func (s *RedisOTPStore) Close() error {
	return s.client.Close()
}

func sessionKey(email string) string { return redisKeyPrefix + "otp:" + email }
func rateKey(email string) string { return redisKeyPrefix + "otp-rate:" + email }

func (s *RedisOTPStore) Allow(ctx context.Context, email string) (bool, error) {
	key := rateKey(email)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("count otp request: %w", err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			return false, fmt.Errorf("set otp rate window: %w", err)
		}
	}
	return n <= int64(s.limit), nil
}

func (s *RedisOTPStore) Save(ctx context.Context, email, code string) error {
	key := sessionKey(email)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "code", code, "attempts", 0)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Verify(ctx context.Context, email, code string) (bool, error) {
	key := sessionKey(email)
	stored, err := s.client.HGet(ctx, key, "code").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read otp: %w", err)
	}
	attempts, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return false, fmt.Errorf("count otp attempt: %w", err)
	}
	if attempts > int64(s.maxAttempts) {
		s.client.Del(ctx, key)
		return false, nil
	}
	if codesEqual(stored, code) {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("consume otp: %w", err)
		}
		return true, nil
	}
	return false, nil
}
