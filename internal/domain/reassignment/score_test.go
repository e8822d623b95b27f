package reassignment

import (
	"testing"

	"slotkeeper/internal/domain/resource"
)

func room(id string, capacity int, features ...string) *resource.Resource {
	return &resource.Resource{
		ID:       resource.ResourceID(id),
		Name:     id,
		Capacity: capacity,
		Features: resource.NormalizeFeatures(features),
		Status:   resource.StatusActive,
	}
}

func TestCapacityFitPenalizesUndersizedRooms(t *testing.T) {
	a := CapacityFit(30, 28, 10)
	b := CapacityFit(30, 10, 10)
	if a < 0.9 {
		t.Fatalf("expected near neutral fit inside tolerance, got %v", a)
	}
	if b > 0.1 {
		t.Fatalf("expected strong penalty below tolerance, got %v", b)
	}
	if got := CapacityFit(30, 30, 10); got != 1 {
		t.Fatalf("exact capacity should fit perfectly, got %v", got)
	}
	if CapacityFit(30, 40, 10) <= CapacityFit(30, 90, 10) {
		t.Fatalf("closer oversized room should fit better")
	}
}

func TestUndersizedCandidateRanksLower(t *testing.T) {
	target := Target{RequiredCapacity: 30, TolerancePercent: 10}
	a := Score(target, room("a", 28))
	b := Score(target, room("b", 10))
	if b.Score >= a.Score {
		t.Fatalf("expected b (%v) below a (%v)", b.Score, a.Score)
	}
	if a.Tier != TierExact {
		t.Fatalf("expected a to be exact, got %q at %v", a.Tier, a.Score)
	}
}

func TestScoreMonotonicInFeatureOverlap(t *testing.T) {
	target := Target{RequiredCapacity: 20, TolerancePercent: 10, Required: []string{"projector", "whiteboard"}, Preferred: []string{"video"}}
	prev := Score(target, room("r", 20)).Score
	var features []string
	for _, f := range []string{"projector", "whiteboard", "video"} {
		features = append(features, f)
		got := Score(target, room("r", 20, features...)).Score
		if got < prev {
			t.Fatalf("adding %q decreased score from %v to %v", f, prev, got)
		}
		prev = got
	}
	again := Score(target, room("r", 20, append(features, "projector")...)).Score
	if again != prev {
		t.Fatalf("duplicate feature changed score: %v vs %v", again, prev)
	}
}

func TestExactRequiresAllRequiredFeatures(t *testing.T) {
	target := Target{RequiredCapacity: 20, Required: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p", "q", "r", "s", "t"}}
	all := target.Required
	missing := all[:len(all)-1]
	c := Score(target, room("x", 20, missing...))
	if c.HasRequired {
		t.Fatalf("expected missing required feature to be detected")
	}
	if c.Tier == TierExact {
		t.Fatalf("candidate missing a required feature must not be exact (score %v)", c.Score)
	}
	if full := Score(target, room("y", 20, all...)); full.Tier != TierExact {
		t.Fatalf("expected full match to be exact, got %q", full.Tier)
	}
}

func TestProximity(t *testing.T) {
	origin := resource.Location{Building: "main", Floor: 1}
	if s, d := Proximity(resource.Location{}, origin); s != 1 || d != -1 {
		t.Fatalf("unknown origin should be neutral, got %v %v", s, d)
	}
	if s, _ := Proximity(origin, resource.Location{Building: "annex"}); s != proximityUnknown {
		t.Fatalf("unmeasurable distance should score %v, got %v", proximityUnknown, s)
	}
	near, _ := Proximity(origin, resource.Location{Building: "main", Floor: 1})
	far, _ := Proximity(origin, resource.Location{Building: "main", Floor: 6})
	if near <= far {
		t.Fatalf("expected nearer room to score higher: %v vs %v", near, far)
	}
}

func TestRankBucketsAndOrder(t *testing.T) {
	target := Target{RequiredCapacity: 30, TolerancePercent: 10, Preferred: []string{"projector", "video"}}
	eq := Rank(target, []*resource.Resource{
		room("c", 30, "projector"),
		room("a", 30, "projector", "video"),
		room("b", 30, "projector", "video"),
		room("tiny", 2),
	})
	if len(eq.Exact) != 2 || eq.Exact[0].ResourceID != "a" || eq.Exact[1].ResourceID != "b" {
		t.Fatalf("unexpected exact bucket: %+v", eq.Exact)
	}
	if len(eq.Good) != 1 || eq.Good[0].ResourceID != "c" {
		t.Fatalf("unexpected good bucket: %+v", eq.Good)
	}
	for _, c := range eq.All() {
		if c.ResourceID == "tiny" {
			t.Fatalf("candidate below acceptable threshold must be dropped")
		}
	}
	best, ok := eq.BestGood()
	if !ok || best.ResourceID != "a" {
		t.Fatalf("expected best good to be a, got %+v", best)
	}
}

func TestRankDropsDistantCandidates(t *testing.T) {
	origin := resource.Location{Coordinates: &resource.Coordinates{Lat: 52.0, Lon: 13.0}}
	target := Target{Origin: origin, RequiredCapacity: 10, MaxDistance: 500}
	near := room("near", 10)
	near.Location = resource.Location{Coordinates: &resource.Coordinates{Lat: 52.001, Lon: 13.0}}
	far := room("far", 10)
	far.Location = resource.Location{Coordinates: &resource.Coordinates{Lat: 52.1, Lon: 13.0}}
	eq := Rank(target, []*resource.Resource{near, far})
	all := eq.All()
	if len(all) != 1 || all[0].ResourceID != "near" {
		t.Fatalf("expected only near candidate, got %+v", all)
	}
}
