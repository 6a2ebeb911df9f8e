package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

type redisCache struct {
	client *redis.Client
	cb     *circuitBreaker
	logger *zerolog.Logger
}

// NewRedisCache connects to Redis and wraps it behind a circuit breaker
// so a dead cache degrades to store reads instead of request latency.
func NewRedisCache(config Config, logger *zerolog.Logger) (Cache, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisCache{
		client: client,
		cb: newCircuitBreaker(breakerSettings{
			name:        "redis-cache",
			maxFailures: 5,
			timeout:     5 * time.Second,
		}),
		logger: logger,
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.cb.execute(func() error {
		var err error
		value, err = c.client.Get(ctx, key).Result()
		if err == redis.Nil {
			value = ""
			return ErrMiss
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.cb.execute(func() error {
		return c.client.Set(ctx, key, value, ttl).Err()
	})
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.cb.execute(func() error {
		return c.client.Del(ctx, key).Err()
	})
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

type breakerSettings struct {
	name        string
	maxFailures int
	timeout     time.Duration
}

type circuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	failures    int
	lastFailure time.Time
	state       string
	mu          sync.RWMutex
}

func newCircuitBreaker(settings breakerSettings) *circuitBreaker {
	return &circuitBreaker{
		name:        settings.name,
		maxFailures: settings.maxFailures,
		timeout:     settings.timeout,
		state:       "closed",
	}
}

func (cb *circuitBreaker) execute(fn func() error) error {
	cb.mu.RLock()
	if cb.state == "open" {
		if time.Since(cb.lastFailure) > cb.timeout {
			cb.mu.RUnlock()
			cb.mu.Lock()
			cb.state = "half-open"
			cb.mu.Unlock()
		} else {
			cb.mu.RUnlock()
			return fmt.Errorf("circuit breaker %s is open", cb.name)
		}
	} else {
		cb.mu.RUnlock()
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A miss is an answer, not a failure.
	if err != nil && err != ErrMiss {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = "open"
		}
		return err
	}

	if cb.state == "half-open" {
		cb.state = "closed"
	}
	cb.failures = 0
	return err
}
