package redislock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"slotkeeper/internal/app/lock"
)

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]string)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return goredis.NewCmdResult(int64(1), nil)
	}
	return goredis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.keys[keyPrefix+key]
	return v, ok
}

func newTestLocker(rdb client) *Locker {
	return newLocker(rdb, time.Second, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAcquireReleaseFreesKeys(t *testing.T) {
	rdb := newFakeRedis()
	l := newTestLocker(rdb)

	release, err := l.Acquire(context.Background(), "resource:b", "resource:a", "resource:a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, ok := rdb.holder("resource:a"); !ok {
		t.Fatal("resource:a should be held")
	}
	release()
	release()
	if _, ok := rdb.holder("resource:a"); ok {
		t.Fatal("resource:a should be free")
	}
	if _, ok := rdb.holder("resource:b"); ok {
		t.Fatal("resource:b should be free")
	}
}

func TestAcquireTimesOutAndDropsPartialHold(t *testing.T) {
	rdb := newFakeRedis()
	l := newTestLocker(rdb)

	release, err := l.Acquire(context.Background(), "resource:b")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "resource:a", "resource:b")
	if !errors.Is(err, lock.ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if _, ok := rdb.holder("resource:a"); ok {
		t.Fatal("partially acquired key must be released")
	}
}

func TestReleaseKeepsKeyTakenOverByAnotherHolder(t *testing.T) {
	rdb := newFakeRedis()
	l := newTestLocker(rdb)

	release, err := l.Acquire(context.Background(), "resource:a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Simulate TTL expiry followed by another replica taking the key.
	rdb.mu.Lock()
	rdb.keys[keyPrefix+"resource:a"] = "someone-else"
	rdb.mu.Unlock()

	release()
	if v, ok := rdb.holder("resource:a"); !ok || v != "someone-else" {
		t.Fatalf("foreign hold was removed: %q %v", v, ok)
	}
}

func TestWaiterGetsKeyAfterRelease(t *testing.T) {
	rdb := newFakeRedis()
	l := newTestLocker(rdb)

	release, err := l.Acquire(context.Background(), "resource:a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r, err := l.Acquire(ctx, "resource:a")
		if err == nil {
			r()
		}
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	release()
	if err := <-done; err != nil {
		t.Fatalf("waiter: %v", err)
	}
}
