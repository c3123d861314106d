package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// protocolWire is the JSON shape of a protocol. Day and item indices used as
// map keys travel as decimal strings.
type protocolWire struct {
	ID             string                         `json:"id"`
	Title          string                         `json:"title"`
	Description    string                         `json:"description,omitempty"`
	Routine        []RoutineItem                  `json:"dailyRoutine"`
	TotalDays      int                            `json:"days"`
	StartDate      Date                           `json:"startDate"`
	RolloverOffset TimeOfDay                      `json:"refreshTime"`
	Progress       map[string][]bool              `json:"dailyProgress"`
	Overrides      map[string]map[string]Override `json:"dailyOverrides"`
	CompletedDays  []int                          `json:"completedDays"`
	History        []HistoryRecord                `json:"history"`
	CreatedAt      time.Time                      `json:"createdAt"`
	UpdatedAt      time.Time                      `json:"updatedAt"`
}

// MarshalJSON encodes the aggregate with history newest first.
func (p Protocol) MarshalJSON() ([]byte, error) {
	w := protocolWire{
		ID:             p.ID,
		Title:          p.Title,
		Description:    p.Description,
		Routine:        p.Routine,
		TotalDays:      p.TotalDays,
		StartDate:      p.StartDate,
		RolloverOffset: p.RolloverOffset,
		Progress:       make(map[string][]bool),
		Overrides:      make(map[string]map[string]Override, len(p.overrides)),
		CompletedDays:  p.completedDays,
		History:        p.history.Recent(0),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if w.Routine == nil {
		w.Routine = []RoutineItem{}
	}
	if w.CompletedDays == nil {
		w.CompletedDays = []int{}
	}
	for i, row := range p.progress {
		if row != nil {
			w.Progress[strconv.Itoa(i+1)] = row
		}
	}
	for day, items := range p.overrides {
		if len(items) == 0 {
			continue
		}
		inner := make(map[string]Override, len(items))
		for idx, o := range items {
			inner[strconv.Itoa(idx)] = o
		}
		w.Overrides[strconv.Itoa(day)] = inner
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the aggregate, rejecting malformed or out-of-window
// keys. Progress rows whose length drifted from the routine are padded with
// false or truncated, and completed days are re-derived rather than trusted.
func (p *Protocol) UnmarshalJSON(data []byte) error {
	var w protocolWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.TotalDays < 1 || w.TotalDays > MaxTotalDays {
		return ValidationError{Field: "days", Reason: fmt.Sprintf("%d outside [1, %d]", w.TotalDays, MaxTotalDays)}
	}
	out := Protocol{
		ID:             w.ID,
		Title:          w.Title,
		Description:    w.Description,
		Routine:        w.Routine,
		TotalDays:      w.TotalDays,
		StartDate:      w.StartDate,
		RolloverOffset: w.RolloverOffset,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		progress:       make([][]bool, w.TotalDays),
		overrides:      make(map[int]map[int]Override, len(w.Overrides)),
	}
	if out.Routine == nil {
		out.Routine = []RoutineItem{}
	}
	for key, row := range w.Progress {
		day, err := parseIndexKey("dailyProgress", key, 1, w.TotalDays)
		if err != nil {
			return err
		}
		if len(out.Routine) == 0 {
			continue
		}
		normalized := make([]bool, len(out.Routine))
		copy(normalized, row)
		out.progress[day-1] = normalized
	}
	for dayKey, items := range w.Overrides {
		day, err := parseIndexKey("dailyOverrides", dayKey, 1, w.TotalDays)
		if err != nil {
			return err
		}
		inner := make(map[int]Override, len(items))
		for itemKey, o := range items {
			idx, err := parseIndexKey("dailyOverrides", itemKey, 0, len(out.Routine)-1)
			if err != nil {
				return err
			}
			if !o.IsEmpty() {
				inner[idx] = o
			}
		}
		if len(inner) > 0 {
			out.overrides[day] = inner
		}
	}
	records := slices.Clone(w.History)
	slices.Reverse(records)
	for _, rec := range records {
		if !rec.Kind.Valid() {
			return ValidationError{Field: "history.type", Reason: fmt.Sprintf("unknown kind %q", rec.Kind)}
		}
		out.history.Append(rec)
	}
	out.RecomputeAll()
	*p = out
	return nil
}

func parseIndexKey(field, key string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, ValidationError{Field: field, Reason: fmt.Sprintf("key %q is not an integer", key)}
	}
	if n < lo || n > hi {
		return 0, OutOfRangeError{Field: field, Value: n, Min: lo, Max: hi}
	}
	return n, nil
}

// optionalTime decodes an item or override time. Empty and null both mean
// "no time"; only the protocol refresh time defaults an empty value to midnight.
func optionalTime(raw *string) (*TimeOfDay, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := ParseTimeOfDay(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UnmarshalJSON decodes a routine item, treating an empty time as unset.
func (i *RoutineItem) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID   string  `json:"id"`
		Text string  `json:"text"`
		Time *string `json:"time"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	at, err := optionalTime(wire.Time)
	if err != nil {
		return fmt.Errorf("routine item %q time: %w", wire.ID, err)
	}
	*i = RoutineItem{ID: wire.ID, Text: wire.Text, Time: at}
	return nil
}

// UnmarshalJSON decodes an override, treating an empty time as unset.
func (o *Override) UnmarshalJSON(data []byte) error {
	var wire struct {
		Text *string `json:"text"`
		Time *string `json:"time"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	at, err := optionalTime(wire.Time)
	if err != nil {
		return fmt.Errorf("override time: %w", err)
	}
	*o = Override{Text: wire.Text, Time: at}
	return nil
}
