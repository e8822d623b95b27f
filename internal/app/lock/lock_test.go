package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"b", "a", "", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected keys: %v", got)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), "resource:r1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
	if len(m.slots) != 0 {
		t.Fatalf("expected slots to be released, got %d", len(m.slots))
	}
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Acquire(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, "b"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected not acquired, got %v", err)
	}
	release()
	release()

	other, err := m.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	other()
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	r1, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer r1()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := m.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b should not block: %v", err)
	}
	r2()
}
