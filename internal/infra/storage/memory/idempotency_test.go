package memory

import (
	"context"
	"testing"
	"time"

	"slotkeeper/internal/app/middleware"
)

func TestIdempotencyStoreForgetsExpiredRecords(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore()
	store.TTL = time.Hour
	store.Now = func() time.Time { return now }

	if err := store.Save(ctx, middleware.IdempotencyRecord{Key: "req-1", Command: "booking.book", OccurredAt: now}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "req-1"); !ok {
		t.Fatal("fresh record should replay")
	}

	now = now.Add(time.Hour + time.Second)
	if _, ok, _ := store.Get(ctx, "req-1"); ok {
		t.Fatal("record past its TTL should be gone")
	}
}
