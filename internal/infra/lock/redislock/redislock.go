// Package redislock implements lock.Locker on top of Redis so that several
// engine replicas sharing one store serialize writes to the same calendar.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"slotkeeper/internal/app/lock"
)

const keyPrefix = "slotkeeper:lock:"

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a crashed holder can block a calendar.
	TTL time.Duration
	// RetryEvery is the polling interval while a key is held elsewhere.
	RetryEvery time.Duration
}

type Locker struct {
	rdb        client
	closer     func() error
	ttl        time.Duration
	retryEvery time.Duration
	logger     *slog.Logger
}

// New connects and pings Redis before returning.
func New(opts Options, logger *slog.Logger) (*Locker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("redis lock connected", slog.String("addr", opts.Addr))

	l := newLocker(rdb, opts.TTL, opts.RetryEvery, logger)
	l.closer = rdb.Close
	return l, nil
}

func newLocker(rdb client, ttl, retryEvery time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retryEvery <= 0 {
		retryEvery = 25 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{rdb: rdb, ttl: ttl, retryEvery: retryEvery, logger: logger}
}

// Acquire takes every key in sorted order, waiting until ctx is done.
func (l *Locker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = lock.Normalize(keys)
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	held := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := l.acquireOne(ctx, keyPrefix+k, token); err != nil {
			l.release(held, token)
			return nil, fmt.Errorf("%w: %s: %v", lock.ErrNotAcquired, k, err)
		}
		held = append(held, keyPrefix+k)
	}
	var once sync.Once
	return func() { once.Do(func() { l.release(held, token) }) }, nil
}

func (l *Locker) acquireOne(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(keys []string, token string) {
	// The caller's ctx may already be cancelled; release must still run.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		if err := l.rdb.Eval(ctx, releaseScript, []string{keys[i]}, token).Err(); err != nil {
			l.logger.Warn("redis lock release failed", slog.String("key", keys[i]), slog.Any("error", err))
		}
	}
}

func (l *Locker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *Locker) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var _ lock.Locker = (*Locker)(nil)
