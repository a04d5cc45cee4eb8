// Package lock serializes work on a single order across requests and API replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires an exclusive lock on key. The returned release func must be called once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is a Locker for a single process. A key is forgotten once nobody holds or waits
// for it.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*localLock)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lk)
		return nil, fmt.Errorf("waiting for lock %q: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.unref(key, lk)
		})
	}, nil
}

func (l *Local) unref(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// releaseScript deletes the key only while it still holds our token, so an expired lock
// taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica using the same Redis.
type Redis struct {
	client       redis.UniversalClient
	prefix       string
	ttl          time.Duration
	timeout      time.Duration
	pollInterval time.Duration
}

func NewRedis(client redis.UniversalClient, ttl, timeout time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Redis{
		client:       client,
		prefix:       "orderflow:lock:",
		ttl:          ttl,
		timeout:      timeout,
		pollInterval: 50 * time.Millisecond,
	}
}

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func wrapRedisError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s redis operation timed out: %w", operation, err)
	}
	return fmt.Errorf("%s redis operation failed: %w", operation, err)
}

// Acquire polls until the lock is free or ctx is done. The lock expires after the TTL even
// if it is never released.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		opCtx, cancel := r.withTimeout(ctx)
		ok, err := r.client.SetNX(opCtx, fullKey, token, r.ttl).Result()
		cancel()
		if err != nil {
			return nil, wrapRedisError("acquire", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %q: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			opCtx, cancel := r.withTimeout(context.Background())
			defer cancel()
			_ = releaseScript.Run(opCtx, r.client, []string{fullKey}, token).Err()
		})
	}, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return wrapRedisError("ping", r.client.Ping(opCtx).Err())
}
