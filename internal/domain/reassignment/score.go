package reassignment

import (
	"math"
	"sort"

	"slotkeeper/internal/domain/resource"
)

const (
	weightCapacity  = 0.4
	weightFeatures  = 0.4
	weightProximity = 0.2

	exactThreshold      = 0.95
	goodThreshold       = 0.75
	acceptableThreshold = 0.5

	// proximityUnknown is used when the candidate cannot be located relative
	// to a located original.
	proximityUnknown = 0.5
	// proximityScale is the distance in meters at which proximity halves.
	proximityScale = 100.0
)

type Tier string

const (
	TierExact      Tier = "exact"
	TierGood       Tier = "good"
	TierAcceptable Tier = "acceptable"
)

// Target describes what the displaced reservation needs.
type Target struct {
	Origin           resource.Location
	RequiredCapacity int
	TolerancePercent int
	Required         []string
	Preferred        []string
	MaxDistance      float64
}

type Candidate struct {
	ResourceID     resource.ResourceID
	Name           string
	Score          float64
	CapacityFit    float64
	FeatureOverlap float64
	Proximity      float64
	Distance       float64
	Tier           Tier
	HasRequired    bool
}

type Equivalents struct {
	Exact      []Candidate
	Good       []Candidate
	Acceptable []Candidate
}

// All returns every ranked candidate, best first.
func (e Equivalents) All() []Candidate {
	out := make([]Candidate, 0, len(e.Exact)+len(e.Good)+len(e.Acceptable))
	out = append(out, e.Exact...)
	out = append(out, e.Good...)
	return append(out, e.Acceptable...)
}

// BestGood returns the top candidate that is at least a good match.
func (e Equivalents) BestGood() (Candidate, bool) {
	if len(e.Exact) > 0 {
		return e.Exact[0], true
	}
	if len(e.Good) > 0 {
		return e.Good[0], true
	}
	return Candidate{}, false
}

// CapacityFit is 1 for an exact fit, decays gently for oversized rooms, stays
// near 1 inside the tolerance band below the requirement and drops sharply
// beneath it.
func CapacityFit(required, capacity, tolerancePercent int) float64 {
	if required <= 0 {
		return 1
	}
	req := float64(required)
	c := float64(capacity)
	if c >= req {
		return 1 - 0.5*math.Min(1, (c-req)/req)
	}
	floor := req * (1 - float64(tolerancePercent)/100)
	if c >= floor {
		return 1 - 0.5*(req-c)/req
	}
	ratio := c / req
	if ratio < 0 {
		ratio = 0
	}
	return 0.5 * ratio * ratio
}

// FeatureOverlap is the fraction of required and preferred features present.
func FeatureOverlap(required, preferred []string, has func(string) bool) float64 {
	wanted := resource.NormalizeFeatures(append(append([]string(nil), required...), preferred...))
	if len(wanted) == 0 {
		return 1
	}
	present := 0
	for _, f := range wanted {
		if has(f) {
			present++
		}
	}
	return float64(present) / float64(len(wanted))
}

// Proximity maps distance to (0, 1]. An original without any location makes
// proximity irrelevant, so every candidate scores 1. meters is -1 when no
// distance could be estimated.
func Proximity(origin, candidate resource.Location) (score, meters float64) {
	if !origin.Known() {
		return 1, -1
	}
	d, ok := resource.DistanceMeters(origin, candidate)
	if !ok {
		return proximityUnknown, -1
	}
	return 1 / (1 + d/proximityScale), d
}

// Score evaluates one candidate resource against the target.
func Score(target Target, cand *resource.Resource) Candidate {
	capFit := CapacityFit(target.RequiredCapacity, cand.Capacity, target.TolerancePercent)
	overlap := FeatureOverlap(target.Required, target.Preferred, cand.HasFeature)
	prox, dist := Proximity(target.Origin, cand.Location)
	hasRequired := true
	for _, f := range target.Required {
		if !cand.HasFeature(f) {
			hasRequired = false
			break
		}
	}
	score := weightCapacity*capFit + weightFeatures*overlap + weightProximity*prox
	c := Candidate{
		ResourceID:     cand.ID,
		Name:           cand.Name,
		Score:          math.Round(score*10000) / 10000,
		CapacityFit:    capFit,
		FeatureOverlap: overlap,
		Proximity:      prox,
		Distance:       dist,
		HasRequired:    hasRequired,
	}
	switch {
	case c.Score >= exactThreshold && hasRequired:
		c.Tier = TierExact
	case c.Score >= goodThreshold:
		c.Tier = TierGood
	case c.Score >= acceptableThreshold:
		c.Tier = TierAcceptable
	}
	return c
}

// Rank scores candidates and buckets them. Candidates scoring below 0.5 or
// farther than the target's max distance are dropped.
func Rank(target Target, candidates []*resource.Resource) Equivalents {
	var eq Equivalents
	for _, cand := range candidates {
		c := Score(target, cand)
		if target.MaxDistance > 0 && c.Distance > target.MaxDistance {
			continue
		}
		switch c.Tier {
		case TierExact:
			eq.Exact = append(eq.Exact, c)
		case TierGood:
			eq.Good = append(eq.Good, c)
		case TierAcceptable:
			eq.Acceptable = append(eq.Acceptable, c)
		}
	}
	sortCandidates(eq.Exact)
	sortCandidates(eq.Good)
	sortCandidates(eq.Acceptable)
	return eq
}

func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].ResourceID < cs[j].ResourceID
	})
}
