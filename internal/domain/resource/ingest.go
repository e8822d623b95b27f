package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
)

// Weekly hours and priority weights are accepted only as ordered lists.
// The keyed-map shape ({"monday": {...}}) is rejected at this boundary.

type weeklyHoursItem struct {
	Weekday string `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type priorityWeightItem struct {
	UserType string `json:"user_type"`
	Weight   int    `json:"weight"`
}

// ParseWeeklyHours decodes the canonical list form [{weekday, start, end}].
func ParseWeeklyHours(raw json.RawMessage) ([]OperatingHours, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	if err := requireArray(raw, "weekly_hours"); err != nil {
		return nil, err
	}
	var items []weeklyHoursItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errs.Invalid("weekly_hours", err.Error())
	}
	verr := &errs.ValidationError{}
	out := make([]OperatingHours, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("weekly_hours[%d]", i)
		wd, err := daytime.ParseWeekday(item.Weekday)
		if err != nil {
			verr.Add(field+".weekday", err.Error())
			continue
		}
		start, err := daytime.Parse(item.Start)
		if err != nil {
			verr.Add(field+".start", err.Error())
			continue
		}
		end, err := daytime.Parse(item.End)
		if err != nil {
			verr.Add(field+".end", err.Error())
			continue
		}
		if end <= start {
			verr.Add(field, "end must be after start")
			continue
		}
		out = append(out, OperatingHours{Weekday: wd, Start: start, End: end})
	}
	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

// ParsePriorityWeights decodes the canonical list form [{user_type, weight}].
func ParsePriorityWeights(raw json.RawMessage) (map[string]int, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	if err := requireArray(raw, "priority_weights"); err != nil {
		return nil, err
	}
	var items []priorityWeightItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errs.Invalid("priority_weights", err.Error())
	}
	out := make(map[string]int, len(items))
	for i, item := range items {
		if item.UserType == "" {
			return nil, errs.Invalid(fmt.Sprintf("priority_weights[%d].user_type", i), "required")
		}
		if _, dup := out[item.UserType]; dup {
			return nil, errs.Invalid(fmt.Sprintf("priority_weights[%d].user_type", i), "duplicate entry")
		}
		out[item.UserType] = item.Weight
	}
	return out, nil
}

// FormatWeeklyHours renders hours back into the canonical list form.
func FormatWeeklyHours(hours []OperatingHours) []map[string]string {
	sorted := append([]OperatingHours(nil), hours...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weekday != sorted[j].Weekday {
			return weekdayOrder(sorted[i].Weekday) < weekdayOrder(sorted[j].Weekday)
		}
		return sorted[i].Start < sorted[j].Start
	})
	out := make([]map[string]string, 0, len(sorted))
	for _, h := range sorted {
		out = append(out, map[string]string{
			"weekday": h.Weekday.String(),
			"start":   h.Start.String(),
			"end":     h.End.String(),
		})
	}
	return out
}

func requireArray(raw json.RawMessage, field string) error {
	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case '[':
		return nil
	case '{':
		return errs.Invalid(field, "keyed map form is not supported; send a list of entries")
	}
	return errs.Invalid(field, "must be a list")
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// weekdayOrder sorts hours Monday first, the way administrators enter them.
func weekdayOrder(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
