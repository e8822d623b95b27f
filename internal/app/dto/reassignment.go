package dto

import (
	"time"

	domainreassignment "slotkeeper/internal/domain/reassignment"
)

type Candidate struct {
	ResourceID     string   `json:"resource_id"`
	Name           string   `json:"name"`
	Score          float64  `json:"score"`
	Tier           string   `json:"tier"`
	CapacityFit    float64  `json:"capacity_fit"`
	FeatureOverlap float64  `json:"feature_overlap"`
	Proximity      float64  `json:"proximity"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

type Equivalents struct {
	Exact      []Candidate `json:"exact"`
	Good       []Candidate `json:"good"`
	Acceptable []Candidate `json:"acceptable"`
}

type Reassignment struct {
	ID                 string      `json:"id"`
	ReservationID      string      `json:"reservation_id"`
	ResourceID         string      `json:"resource_id"`
	RequesterID        string      `json:"requester_id"`
	PriorityClass      string      `json:"priority_class,omitempty"`
	Start              time.Time   `json:"start"`
	End                time.Time   `json:"end"`
	Reason             string      `json:"reason"`
	Status             string      `json:"status"`
	ResponseDeadline   time.Time   `json:"response_deadline"`
	SelectedResourceID string      `json:"selected_resource_id,omitempty"`
	Fallback           string      `json:"fallback,omitempty"`
	Note               string      `json:"note,omitempty"`
	Candidates         []Candidate `json:"candidates"`
	CreatedAt          time.Time   `json:"created_at"`
	ResolvedAt         *time.Time  `json:"resolved_at,omitempty"`
}

type ReassignmentCollection struct {
	Items []Reassignment `json:"items"`
}

func MapCandidate(c domainreassignment.Candidate) Candidate {
	out := Candidate{
		ResourceID:     string(c.ResourceID),
		Name:           c.Name,
		Score:          c.Score,
		Tier:           string(c.Tier),
		CapacityFit:    c.CapacityFit,
		FeatureOverlap: c.FeatureOverlap,
		Proximity:      c.Proximity,
	}
	if c.Distance >= 0 {
		d := c.Distance
		out.DistanceMeters = &d
	}
	return out
}

func mapCandidates(items []domainreassignment.Candidate) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, c := range items {
		out = append(out, MapCandidate(c))
	}
	return out
}

func MapEquivalents(eq domainreassignment.Equivalents) Equivalents {
	return Equivalents{
		Exact:      mapCandidates(eq.Exact),
		Good:       mapCandidates(eq.Good),
		Acceptable: mapCandidates(eq.Acceptable),
	}
}

func MapReassignment(r *domainreassignment.Request) Reassignment {
	out := Reassignment{
		ID:                 string(r.ID),
		ReservationID:      string(r.ReservationID),
		ResourceID:         string(r.ResourceID),
		RequesterID:        r.RequesterID,
		PriorityClass:      r.PriorityClass,
		Start:              r.Window.Start,
		End:                r.Window.End,
		Reason:             string(r.Reason),
		Status:             string(r.Status),
		ResponseDeadline:   r.ResponseDeadline,
		SelectedResourceID: string(r.SelectedResourceID),
		Fallback:           string(r.Fallback),
		Note:               r.Note,
		Candidates:         mapCandidates(r.Candidates),
		CreatedAt:          r.CreatedAt,
	}
	if !r.ResolvedAt.IsZero() {
		resolved := r.ResolvedAt
		out.ResolvedAt = &resolved
	}
	return out
}

func MapReassignments(items []*domainreassignment.Request) ReassignmentCollection {
	out := make([]Reassignment, 0, len(items))
	for _, r := range items {
		out = append(out, MapReassignment(r))
	}
	return ReassignmentCollection{Items: out}
}
