// Package domain defines the protocol aggregate, its value types, and the
// pure tracking rules (day resolution, edit window, progress, completion,
// history and analytics) used by habitcore.
package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EntityType identifies the type of record referenced by errors, audit entries and rule violations.
type EntityType string

const (
	// EntityProtocol identifies a protocol aggregate.
	EntityProtocol EntityType = "protocol"
	// EntityRoutineItem identifies a routine item inside a protocol.
	EntityRoutineItem EntityType = "routine_item"
	// EntityArchive identifies an archived protocol snapshot.
	EntityArchive EntityType = "archive"
)

// Action enumerates the mutation kinds captured in changes handed to the rules engine.
type Action string

const (
	ActionCreate     Action = "create"
	ActionToggle     Action = "toggle"
	ActionAddItem    Action = "add_item"
	ActionRemoveItem Action = "remove_item"
	ActionOverride   Action = "override"
	ActionSettings   Action = "settings"
	ActionReset      Action = "reset"
	ActionDelete     Action = "delete"
)

const (
	// DefaultTitle is applied when a protocol is launched without a title.
	DefaultTitle = "New Discipline Challenge"
	// MaxTotalDays bounds the dense progress matrix allocated at creation.
	MaxTotalDays = 3650
)

// RoutineItem is one recurring task of a protocol.
type RoutineItem struct {
	ID   string     `json:"id"`
	Text string     `json:"text"`
	Time *TimeOfDay `json:"time,omitempty"`
}

// Override patches the text and/or time of a routine item for a single day.
// Nil fields are "not specified".
type Override struct {
	Text *string    `json:"text,omitempty"`
	Time *TimeOfDay `json:"time,omitempty"`
}

// IsEmpty reports whether the override specifies no field.
func (o Override) IsEmpty() bool { return o.Text == nil && o.Time == nil }

// ResolvedItem is what consumers display for a routine item on a given day.
type ResolvedItem struct {
	Index int        `json:"index"`
	ID    string     `json:"id"`
	Text  string     `json:"text"`
	Time  *TimeOfDay `json:"time,omitempty"`
}

// ProtocolSpec carries the launch parameters of a protocol.
type ProtocolSpec struct {
	ID             string
	Title          string
	Description    string
	Routine        []RoutineItem
	TotalDays      int
	StartDate      Date
	RolloverOffset TimeOfDay
	CreatedAt      time.Time
}

// SettingsPatch carries optional protocol setting updates. Nil fields are left untouched.
type SettingsPatch struct {
	Title          *string
	Description    *string
	RolloverOffset *TimeOfDay
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.RolloverOffset == nil
}

// Stamp identifies the history record produced by a structural mutation.
type Stamp struct {
	RecordID string
	At       time.Time
}

// Protocol is the aggregate root: a routine repeated for TotalDays days with
// per-day completion, overrides, derived completed days and an audit history.
//
// Progress is a dense matrix indexed by day-1; a nil row means the day was never
// touched. completedDays is derived and only ever written by the completion tracker.
type Protocol struct {
	ID             string
	Title          string
	Description    string
	Routine        []RoutineItem
	TotalDays      int
	StartDate      Date
	RolloverOffset TimeOfDay
	CreatedAt      time.Time
	UpdatedAt      time.Time

	progress      [][]bool
	overrides     map[int]map[int]Override
	completedDays []int
	history       History
}

// NewProtocol validates the spec and builds an active protocol with empty state.
func NewProtocol(spec ProtocolSpec) (Protocol, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return Protocol{}, ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if spec.TotalDays < 1 {
		return Protocol{}, ValidationError{Field: "totalDays", Reason: fmt.Sprintf("must be at least 1, got %d", spec.TotalDays)}
	}
	if spec.TotalDays > MaxTotalDays {
		return Protocol{}, ValidationError{Field: "totalDays", Reason: fmt.Sprintf("must be at most %d, got %d", MaxTotalDays, spec.TotalDays)}
	}
	if spec.StartDate.IsZero() {
		return Protocol{}, ValidationError{Field: "startDate", Reason: "must be set"}
	}
	if err := spec.RolloverOffset.Validate(); err != nil {
		return Protocol{}, err
	}
	seen := make(map[string]struct{}, len(spec.Routine))
	routine := make([]RoutineItem, 0, len(spec.Routine))
	for i, item := range spec.Routine {
		normalized, err := normalizeItem(item)
		if err != nil {
			return Protocol{}, fmt.Errorf("routine[%d]: %w", i, err)
		}
		if _, dup := seen[normalized.ID]; dup {
			return Protocol{}, ValidationError{Field: "routine", Reason: fmt.Sprintf("duplicate item id %q", normalized.ID)}
		}
		seen[normalized.ID] = struct{}{}
		routine = append(routine, normalized)
	}
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		title = DefaultTitle
	}
	return Protocol{
		ID:             spec.ID,
		Title:          title,
		Description:    strings.TrimSpace(spec.Description),
		Routine:        routine,
		TotalDays:      spec.TotalDays,
		StartDate:      spec.StartDate,
		RolloverOffset: spec.RolloverOffset,
		CreatedAt:      spec.CreatedAt,
		UpdatedAt:      spec.CreatedAt,
		progress:       make([][]bool, spec.TotalDays),
		overrides:      make(map[int]map[int]Override),
	}, nil
}

func normalizeItem(item RoutineItem) (RoutineItem, error) {
	if strings.TrimSpace(item.ID) == "" {
		return RoutineItem{}, ValidationError{Field: "routine.id", Reason: "must not be empty"}
	}
	text := strings.TrimSpace(item.Text)
	if text == "" {
		return RoutineItem{}, ValidationError{Field: "routine.text", Reason: "must not be empty"}
	}
	out := RoutineItem{ID: item.ID, Text: text}
	if item.Time != nil {
		if err := item.Time.Validate(); err != nil {
			return RoutineItem{}, err
		}
		t := *item.Time
		out.Time = &t
	}
	return out, nil
}

// EffectiveDay resolves the current 1-based day index for now.
func (p *Protocol) EffectiveDay(now time.Time) int {
	return EffectiveDay(now, p.StartDate, p.RolloverOffset)
}

// DayProgress returns a copy of the completion row for day and whether it was materialized.
func (p *Protocol) DayProgress(day int) ([]bool, bool) {
	if day < 1 || day > len(p.progress) || p.progress[day-1] == nil {
		return nil, false
	}
	return slices.Clone(p.progress[day-1]), true
}

// RecordedDays lists the days whose progress rows exist, ascending.
func (p *Protocol) RecordedDays() []int {
	var days []int
	for i, row := range p.progress {
		if row != nil {
			days = append(days, i+1)
		}
	}
	return days
}

// Override returns the override stored for (day, item), if any.
func (p *Protocol) Override(day, item int) (Override, bool) {
	o, ok := p.overrides[day][item]
	if !ok {
		return Override{}, false
	}
	return cloneOverride(o), true
}

// OverrideDays lists the days carrying at least one override, ascending.
func (p *Protocol) OverrideDays() []int {
	days := make([]int, 0, len(p.overrides))
	for d, items := range p.overrides {
		if len(items) > 0 {
			days = append(days, d)
		}
	}
	slices.Sort(days)
	return days
}

// CompletedDays returns the derived set of fully completed days, ascending.
func (p *Protocol) CompletedDays() []int {
	return slices.Clone(p.completedDays)
}

// IsDayComplete reports whether day is in the completed set.
func (p *Protocol) IsDayComplete(day int) bool {
	_, found := slices.BinarySearch(p.completedDays, day)
	return found
}

// History returns the protocol's audit log.
func (p *Protocol) History() History {
	return p.history.clone()
}

// Touch stamps the aggregate's modification time.
func (p *Protocol) Touch(at time.Time) {
	p.UpdatedAt = at
}

// Clone returns a deep copy that shares no mutable state with p.
func (p Protocol) Clone() Protocol {
	cp := p
	cp.Routine = make([]RoutineItem, len(p.Routine))
	for i, item := range p.Routine {
		cp.Routine[i] = cloneItem(item)
	}
	if p.progress != nil {
		cp.progress = make([][]bool, len(p.progress))
		for i, row := range p.progress {
			if row != nil {
				cp.progress[i] = slices.Clone(row)
			}
		}
	}
	cp.overrides = make(map[int]map[int]Override, len(p.overrides))
	for d, items := range p.overrides {
		inner := make(map[int]Override, len(items))
		for i, o := range items {
			inner[i] = cloneOverride(o)
		}
		cp.overrides[d] = inner
	}
	cp.completedDays = slices.Clone(p.completedDays)
	cp.history = p.history.clone()
	return cp
}

func cloneItem(item RoutineItem) RoutineItem {
	if item.Time != nil {
		t := *item.Time
		item.Time = &t
	}
	return item
}

func cloneOverride(o Override) Override {
	var out Override
	if o.Text != nil {
		s := *o.Text
		out.Text = &s
	}
	if o.Time != nil {
		t := *o.Time
		out.Time = &t
	}
	return out
}
