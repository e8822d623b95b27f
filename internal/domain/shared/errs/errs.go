// Package errs defines the error taxonomy shared by the scheduling core.
//
// Domain packages wrap these sentinels with their own prefix so callers can
// branch either on the kind (errors.Is(err, errs.ErrNotFound)) or on the
// package-level sentinel.
package errs

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")
	ErrDeadlineExpired        = errors.New("deadline expired")
	ErrConflict               = errors.New("scheduling conflict")
	ErrValidation             = errors.New("validation failed")
	// ErrStale marks an optimistic version check that lost a race.
	ErrStale                  = errors.New("stale aggregate version")
)

// ConflictReason is an observable cause for rejecting a window on a resource.
type ConflictReason string

const (
	ReasonReserved            ConflictReason = "RESERVED"
	ReasonMaintenance         ConflictReason = "MAINTENANCE"
	ReasonScheduleRestriction ConflictReason = "SCHEDULE_RESTRICTION"
	ReasonOutOfHours          ConflictReason = "OUT_OF_HOURS"
	ReasonTooSoon             ConflictReason = "TOO_SOON"
	ReasonTooFar              ConflictReason = "TOO_FAR"
)

var reasonOrder = map[ConflictReason]int{
	ReasonReserved:            0,
	ReasonMaintenance:         1,
	ReasonScheduleRestriction: 2,
	ReasonOutOfHours:          3,
	ReasonTooSoon:             4,
	ReasonTooFar:              5,
}

// NormalizeReasons dedupes reasons and returns them in a stable order.
func NormalizeReasons(in []ConflictReason) []ConflictReason {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[ConflictReason]struct{}, len(in))
	out := make([]ConflictReason, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return reasonOrder[out[i]] < reasonOrder[out[j]]
	})
	return out
}

// ConflictError reports every reason a window was rejected on a resource.
type ConflictError struct {
	ResourceID     string
	Start          time.Time
	End            time.Time
	Reasons        []ConflictReason
	ConflictingIDs []string
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		parts = append(parts, string(r))
	}
	return "conflict on resource " + e.ResourceID + ": " + strings.Join(parts, ",")
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Has reports whether reason is among the recorded reasons.
func (e *ConflictError) Has(reason ConflictReason) bool {
	if e == nil {
		return false
	}
	for _, r := range e.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// OnlyReserved is true when the window is otherwise bookable and only
// overlapping reservations stand in the way.
func (e *ConflictError) OnlyReserved() bool {
	return e != nil && len(e.Reasons) == 1 && e.Reasons[0] == ReasonReserved
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// OrNil returns the receiver when it carries errors so callers can write
// `return verr.OrNil()` without tripping over typed nil interfaces.
func (v *ValidationError) OrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// Invalid builds a single-field validation error.
func Invalid(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Kind maps an error to a stable label used in logs and transport mapping.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, ErrDeadlineExpired):
		return "deadline_expired"
	case errors.Is(err, ErrStale):
		return "concurrent_update"
	}
	return "unexpected"
}
