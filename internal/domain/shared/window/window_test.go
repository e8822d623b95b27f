package window

import (
	"errors"
	"testing"
	"time"

	"slotkeeper/internal/domain/shared/errs"
)

var base = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func span(from, to int) TimeWindow {
	return TimeWindow{Start: base.Add(time.Duration(from) * time.Hour), End: base.Add(time.Duration(to) * time.Hour)}
}

func TestNewValidatesOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		wantErr bool
	}{
		{name: "ordered", start: base, end: base.Add(time.Hour)},
		{name: "zero length", start: base, end: base, wantErr: true},
		{name: "reversed", start: base.Add(time.Hour), end: base, wantErr: true},
		{name: "missing start", end: base, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, err := New(tc.start, tc.end)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidWindow) || !errors.Is(err, errs.ErrValidation) {
					t.Fatalf("expected invalid window, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if w.Duration() != tc.end.Sub(tc.start) {
				t.Fatalf("duration = %s", w.Duration())
			}
		})
	}
}

func TestNewNormalizesToUTC(t *testing.T) {
	t.Parallel()
	zone := time.FixedZone("UTC+2", 2*3600)
	w, err := New(time.Date(2024, 3, 4, 11, 0, 0, 0, zone), time.Date(2024, 3, 4, 12, 0, 0, 0, zone))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if w.Start.Location() != time.UTC || !w.Start.Equal(base) {
		t.Fatalf("start = %s", w.Start)
	}
}

func TestOverlaps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b TimeWindow
		want bool
	}{
		{"partial", span(0, 2), span(1, 3), true},
		{"contained", span(0, 3), span(1, 2), true},
		{"identical", span(0, 1), span(0, 1), true},
		{"touching", span(0, 1), span(1, 2), false},
		{"disjoint", span(0, 1), span(3, 4), false},
		{"zero length inside", span(0, 2), TimeWindow{Start: base.Add(time.Hour), End: base.Add(time.Hour)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("a.Overlaps(b) = %v, want %v", got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Fatalf("b.Overlaps(a) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	t.Parallel()
	outer := span(0, 4)
	tests := []struct {
		name  string
		inner TimeWindow
		want  bool
	}{
		{"same bounds", span(0, 4), true},
		{"flush with start", span(0, 1), true},
		{"flush with end", span(3, 4), true},
		{"runs past end", span(3, 5), false},
		{"starts before", span(-1, 1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := outer.Contains(tc.inner); got != tc.want {
				t.Fatalf("Contains(%s) = %v, want %v", tc.inner, got, tc.want)
			}
		})
	}
}

func TestContainsInstantIsHalfOpen(t *testing.T) {
	t.Parallel()
	w := span(0, 1)
	if !w.ContainsInstant(w.Start) {
		t.Fatal("start must be inside")
	}
	if w.ContainsInstant(w.End) {
		t.Fatal("end must be outside")
	}
	if w.ContainsInstant(w.Start.Add(-time.Nanosecond)) {
		t.Fatal("instant before start must be outside")
	}
}
