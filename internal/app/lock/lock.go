// Package lock serializes conflict-check-then-write per resource calendar.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNotAcquired = errors.New("lock: not acquired")

// Locker grants exclusive access to a set of keys. Release must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// ResourceKey is the lock key guarding one resource calendar.
func ResourceKey(resourceID string) string {
	return "resource:" + resourceID
}

// Normalize sorts and dedupes keys so multi-key acquisition has one global order.
func Normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (m *KeyedMutex) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = Normalize(keys)
	held := make([]string, 0, len(keys))
	for _, k := range keys {
		s := m.ref(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			m.unref(k)
			m.release(held)
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, k, ctx.Err())
		}
	}
	var once sync.Once
	return func() { once.Do(func() { m.release(held) }) }, nil
}

func (m *KeyedMutex) ref(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *KeyedMutex) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

func (m *KeyedMutex) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		m.mu.Lock()
		s := m.slots[keys[i]]
		m.mu.Unlock()
		<-s.ch
		m.unref(keys[i])
	}
}

var _ Locker = (*KeyedMutex)(nil)
