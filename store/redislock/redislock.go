// Package redislock implements generic.KeyLocker on Redis so several
// server instances serialize balance mutations and batch jobs.
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the key still holds our
// token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker implements generic.KeyLocker with SET NX PX and a random token.
// A held key is renewed every third of its TTL until released, so a batch
// job that outlives the TTL keeps its lock; the TTL only bounds how long a
// crashed holder blocks others.
type Locker struct {
	client        *redis.Client
	keyPrefix     string
	ttl           time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

var _ generic.KeyLocker = (*Locker)(nil)

// Option is a functional option for configuring the locker
type Option func(*Locker)

// WithKeyPrefix namespaces lock keys. Default "leave:lock:".
func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) { l.keyPrefix = prefix }
}

// WithTTL bounds how long a crashed holder can keep a key. Default 30s.
// Live holders renew it, so it does not cap how long a lock may be held.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithRetryInterval sets the polling interval while waiting. Default 25ms.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) { l.retryInterval = d }
}

// WithLogger sets the logger used for release failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New creates a locker with an existing Redis client.
func New(client *redis.Client, opts ...Option) *Locker {
	l := &Locker{
		client:        client,
		keyPrefix:     "leave:lock:",
		ttl:           30 * time.Second,
		retryInterval: 25 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config holds Redis connection configuration
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Lock polls SET NX until it wins or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", generic.ErrLockNotAcquired, key, err)
		}
		if ok {
			stop := l.keepAlive(redisKey, token)
			return l.unlockFunc(redisKey, token, stop), nil
		}

		timer := time.NewTimer(l.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", generic.ErrLockNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
	}
}

// keepAlive renews the key until the returned func is called. It gives up
// when the key no longer holds our token.
func (l *Locker) keepAlive(redisKey, token string) func() {
	interval := l.ttl / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := extendScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				l.logger.Warn("redis lock renewal failed", zap.String("key", redisKey), zap.Error(err))
			case n == 0:
				l.logger.Error("redis lock lost before release", zap.String("key", redisKey))
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (l *Locker) unlockFunc(redisKey, token string, stopRenewal func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenewal()
			// the caller's ctx may already be cancelled; release regardless
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("redis lock release failed", zap.String("key", redisKey), zap.Error(err))
			}
		})
	}
}

// Close closes the Redis client
func (l *Locker) Close() error {
	return l.client.Close()
}
