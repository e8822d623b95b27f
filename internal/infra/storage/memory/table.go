package memory

import (
	"context"
	"sort"
	"sync"
)

// table is a copy-on-read map. Aggregates never leak out of it, so callers
// mutate only their own copy until Save, which enforces the stored version.
type table[ID ~string, A any] struct {
	mu       sync.RWMutex
	items    map[ID]*A
	id       func(*A) ID
	version  func(*A) *int64
	clone    func(*A) *A
	notFound error
	stale    error
}

func newTable[ID ~string, A any](id func(*A) ID, version func(*A) *int64, clone func(*A) *A, notFound, stale error) *table[ID, A] {
	return &table[ID, A]{
		items:    make(map[ID]*A),
		id:       id,
		version:  version,
		clone:    clone,
		notFound: notFound,
		stale:    stale,
	}
}

func (t *table[ID, A]) get(id ID) (*A, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[id]
	if !ok {
		return nil, t.notFound
	}
	return t.clone(item), nil
}

// put stores a copy of item. Inside a unit the previous value is journaled
// so Rollback can restore it.
func (t *table[ID, A]) put(ctx context.Context, item *A) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id(item)
	stored, existed := t.items[id]
	if existed && *t.version(stored) != *t.version(item) {
		return t.stale
	}
	if j := journalFrom(ctx); j != nil {
		j.record(func() { t.restore(id, stored, existed) })
	}
	*t.version(item)++
	t.items[id] = t.clone(item)
	return nil
}

func (t *table[ID, A]) restore(id ID, prev *A, existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !existed {
		delete(t.items, id)
		return
	}
	t.items[id] = prev
}

// filter returns clones of matching items ordered by id.
func (t *table[ID, A]) filter(match func(*A) bool) []*A {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*A, 0)
	for _, item := range t.items {
		if match(item) {
			out = append(out, t.clone(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.id(out[i]) < t.id(out[j]) })
	return out
}
