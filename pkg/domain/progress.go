package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Toggle flips item on day. The day must lie in the protocol window and equal
// effectiveDay; otherwise nothing is written. A day row is materialized lazily
// as all-false of the current routine length.
func (p *Protocol) Toggle(day, item, effectiveDay int) error {
	return p.mutate(func() ([]int, error) {
		if err := dayRange(day, p.TotalDays); err != nil {
			return nil, err
		}
		if !CanMutateDay(day, effectiveDay) {
			return nil, EditForbiddenError{Day: day, EffectiveDay: effectiveDay}
		}
		if err := itemRange(item, len(p.Routine)); err != nil {
			return nil, err
		}
		p.ensureWindow()
		if p.progress[day-1] == nil {
			p.progress[day-1] = make([]bool, len(p.Routine))
		}
		p.progress[day-1][item] = !p.progress[day-1][item]
		return []int{day}, nil
	})
}

// AddRoutineItem appends item to the routine and a false slot to every
// materialized day, leaving existing values untouched.
func (p *Protocol) AddRoutineItem(item RoutineItem, stamp Stamp) (RoutineItem, error) {
	var added RoutineItem
	err := p.mutate(func() ([]int, error) {
		normalized, err := normalizeItem(item)
		if err != nil {
			return nil, err
		}
		for _, existing := range p.Routine {
			if existing.ID == normalized.ID {
				return nil, ValidationError{Field: "routine.id", Reason: fmt.Sprintf("duplicate item id %q", normalized.ID)}
			}
		}
		p.Routine = append(p.Routine, normalized)
		for i, row := range p.progress {
			if row != nil {
				p.progress[i] = append(row, false)
			}
		}
		detail := fmt.Sprintf("Added routine item %q", normalized.Text)
		if normalized.Time != nil {
			detail += " at " + normalized.Time.String()
		}
		p.history.Append(HistoryRecord{
			ID:           stamp.RecordID,
			Kind:         HistoryAdd,
			SubjectID:    normalized.ID,
			SubjectLabel: normalized.Text,
			Timestamp:    stamp.At,
			Detail:       detail,
		})
		added = cloneItem(normalized)
		return nil, nil
	})
	return added, err
}

// RemoveRoutineItem splices index out of the routine, every day row and the
// override table. Removing the last item clears progress and completed days.
func (p *Protocol) RemoveRoutineItem(index int, stamp Stamp) (RoutineItem, error) {
	var removed RoutineItem
	err := p.mutate(func() ([]int, error) {
		if err := itemRange(index, len(p.Routine)); err != nil {
			return nil, err
		}
		removed = p.Routine[index]
		p.Routine = slices.Delete(p.Routine, index, index+1)
		if len(p.Routine) == 0 {
			p.progress = make([][]bool, p.TotalDays)
			p.completedDays = nil
		} else {
			for i, row := range p.progress {
				if row != nil && index < len(row) {
					p.progress[i] = slices.Delete(row, index, index+1)
				}
			}
		}
		p.shiftOverrides(index)
		p.history.Append(HistoryRecord{
			ID:           stamp.RecordID,
			Kind:         HistoryDelete,
			SubjectID:    removed.ID,
			SubjectLabel: removed.Text,
			Timestamp:    stamp.At,
			Detail:       fmt.Sprintf("Removed routine item %q", removed.Text),
		})
		return nil, nil
	})
	return removed, err
}

// shiftOverrides drops overrides of the removed item and moves later items down
// so every override stays attached to the same routine item.
func (p *Protocol) shiftOverrides(removed int) {
	for day, items := range p.overrides {
		shifted := make(map[int]Override, len(items))
		for idx, o := range items {
			switch {
			case idx < removed:
				shifted[idx] = o
			case idx > removed:
				shifted[idx-1] = o
			}
		}
		if len(shifted) == 0 {
			delete(p.overrides, day)
			continue
		}
		p.overrides[day] = shifted
	}
}

// ApplyOverride merges patch into the override of (day, item): specified
// fields replace, unspecified ones are retained. It returns the history record
// describing the visible delta.
func (p *Protocol) ApplyOverride(day, item int, patch Override, stamp Stamp) (HistoryRecord, error) {
	var rec HistoryRecord
	err := p.mutate(func() ([]int, error) {
		if err := dayRange(day, p.TotalDays); err != nil {
			return nil, err
		}
		if err := itemRange(item, len(p.Routine)); err != nil {
			return nil, err
		}
		if patch.Time != nil {
			if err := patch.Time.Validate(); err != nil {
				return nil, err
			}
		}
		if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
			return nil, ValidationError{Field: "override.text", Reason: "must not be blank"}
		}
		before := p.resolve(day, item)
		merged, _ := p.Override(day, item)
		if patch.Text != nil {
			text := strings.TrimSpace(*patch.Text)
			merged.Text = &text
		}
		if patch.Time != nil {
			t := *patch.Time
			merged.Time = &t
		}
		if p.overrides == nil {
			p.overrides = make(map[int]map[int]Override)
		}
		if p.overrides[day] == nil {
			p.overrides[day] = make(map[int]Override)
		}
		p.overrides[day][item] = merged
		after := p.resolve(day, item)
		rec = HistoryRecord{
			ID:           stamp.RecordID,
			Kind:         HistoryEdit,
			SubjectID:    p.Routine[item].ID,
			SubjectLabel: after.Text,
			Timestamp:    stamp.At,
			Detail:       describeOverride(day, before, after),
		}
		p.history.Append(rec)
		return []int{}, nil
	})
	return rec, err
}

func describeOverride(day int, before, after ResolvedItem) string {
	var changes []string
	if before.Text != after.Text {
		changes = append(changes, fmt.Sprintf("text %q -> %q", before.Text, after.Text))
	}
	if formatTime(before.Time) != formatTime(after.Time) {
		changes = append(changes, fmt.Sprintf("time %s -> %s", formatTime(before.Time), formatTime(after.Time)))
	}
	if len(changes) == 0 {
		return fmt.Sprintf("Day %d: no visible change", day)
	}
	return fmt.Sprintf("Day %d: %s", day, strings.Join(changes, "; "))
}

func formatTime(t *TimeOfDay) string {
	if t == nil {
		return "none"
	}
	return t.String()
}

// ResolveItem returns what is displayed for item on day: each override field
// wins when present, otherwise the base routine field is used.
func (p *Protocol) ResolveItem(day, item int) (ResolvedItem, error) {
	if err := dayRange(day, p.TotalDays); err != nil {
		return ResolvedItem{}, err
	}
	if err := itemRange(item, len(p.Routine)); err != nil {
		return ResolvedItem{}, err
	}
	return p.resolve(day, item), nil
}

func (p *Protocol) resolve(day, item int) ResolvedItem {
	base := p.Routine[item]
	out := ResolvedItem{Index: item, ID: base.ID, Text: base.Text}
	if base.Time != nil {
		t := *base.Time
		out.Time = &t
	}
	o, ok := p.overrides[day][item]
	if !ok {
		return out
	}
	if o.Text != nil {
		out.Text = *o.Text
	}
	if o.Time != nil {
		t := *o.Time
		out.Time = &t
	}
	return out
}

// ResolveDay resolves every routine item for day.
func (p *Protocol) ResolveDay(day int) ([]ResolvedItem, error) {
	if err := dayRange(day, p.TotalDays); err != nil {
		return nil, err
	}
	out := make([]ResolvedItem, len(p.Routine))
	for i := range p.Routine {
		out[i] = p.resolve(day, i)
	}
	return out, nil
}

// UpdateSettings applies title, description and rollover changes. A history
// record is appended only when something visibly changed; the returned flag
// reports that.
func (p *Protocol) UpdateSettings(patch SettingsPatch, stamp Stamp) (bool, error) {
	changed := false
	err := p.mutate(func() ([]int, error) {
		if patch.RolloverOffset != nil {
			if err := patch.RolloverOffset.Validate(); err != nil {
				return nil, err
			}
		}
		var changes []string
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				title = DefaultTitle
			}
			if title != p.Title {
				changes = append(changes, fmt.Sprintf("title %q -> %q", p.Title, title))
				p.Title = title
			}
		}
		if patch.Description != nil {
			desc := strings.TrimSpace(*patch.Description)
			if desc != p.Description {
				changes = append(changes, "description updated")
				p.Description = desc
			}
		}
		if patch.RolloverOffset != nil && *patch.RolloverOffset != p.RolloverOffset {
			changes = append(changes, fmt.Sprintf("refresh time %s -> %s", p.RolloverOffset, *patch.RolloverOffset))
			p.RolloverOffset = *patch.RolloverOffset
		}
		if len(changes) == 0 {
			return []int{}, nil
		}
		changed = true
		p.history.Append(HistoryRecord{
			ID:           stamp.RecordID,
			Kind:         HistoryEdit,
			SubjectID:    p.ID,
			SubjectLabel: p.Title,
			Timestamp:    stamp.At,
			Detail:       "Settings: " + strings.Join(changes, "; "),
		})
		return []int{}, nil
	})
	return changed, err
}

// Reset clears progress, overrides, completed days and history while keeping
// the routine and settings.
func (p *Protocol) Reset() {
	_ = p.mutate(func() ([]int, error) {
		p.progress = make([][]bool, p.TotalDays)
		p.overrides = make(map[int]map[int]Override)
		p.completedDays = nil
		p.history = History{}
		return nil, nil
	})
}

// ensureWindow sizes the dense matrix for aggregates built without NewProtocol.
func (p *Protocol) ensureWindow() {
	if len(p.progress) < p.TotalDays {
		grown := make([][]bool, p.TotalDays)
		copy(grown, p.progress)
		p.progress = grown
	}
}
