package outbox

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Subscriber reacts to one published event.
type Subscriber func(ctx context.Context, rec EventRecord) error

// Router fans event records out to subscribers by event name. The in-memory
// outbox and the Kafka consumer both deliver through it.
type Router struct {
	mu   sync.RWMutex
	subs map[string][]Subscriber
}

func NewRouter() *Router {
	return &Router{subs: make(map[string][]Subscriber)}
}

func (r *Router) Subscribe(name string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[name] = append(r.subs[name], sub)
}

// Names lists the event names that have subscribers.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subs))
	for name := range r.subs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Deliver runs every subscriber for rec and joins their errors. One failing
// subscriber does not stop the others.
func (r *Router) Deliver(ctx context.Context, rec EventRecord) error {
	r.mu.RLock()
	subs := append([]Subscriber(nil), r.subs[rec.Name]...)
	r.mu.RUnlock()
	var errList []error
	for _, sub := range subs {
		if err := sub(ctx, rec); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
