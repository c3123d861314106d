package domain

import (
	"math"
	"slices"
)

// DayCategory classifies a day cell by its completion ratio.
type DayCategory string

const (
	DayNone    DayCategory = "none"
	DayLow     DayCategory = "low"
	DayMid     DayCategory = "mid"
	DayHigh    DayCategory = "high"
	DayPerfect DayCategory = "perfect"
)

// ProtocolState is the display-level lifecycle state derived on read.
type ProtocolState string

const (
	StateActive    ProtocolState = "active"
	StateCompleted ProtocolState = "completed"
)

// TaskFrequency is one row of the habit leaderboard.
type TaskFrequency struct {
	Index      int     `json:"index"`
	ItemID     string  `json:"itemId"`
	Text       string  `json:"text"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AnalyticsSnapshot bundles every statistic derived from a protocol at one instant.
type AnalyticsSnapshot struct {
	ProtocolID         string          `json:"protocolId"`
	State              ProtocolState   `json:"state"`
	EffectiveDay       int             `json:"effectiveDay"`
	TotalDays          int             `json:"totalDays"`
	CompletedCount     int             `json:"completedCount"`
	ConsistencyPercent int             `json:"consistencyPercent"`
	DaysRemaining      int             `json:"daysRemaining"`
	CurrentStreak      int             `json:"currentStreak"`
	LongestStreak      int             `json:"longestStreak"`
	TaskFrequency      []TaskFrequency `json:"taskFrequency"`
	TopHabit           *TaskFrequency  `json:"topHabit,omitempty"`
	DayCategories      []DayCategory   `json:"dayCategories"`
}

// ConsistencyPercent is the share of elapsed days (bounded by TotalDays) that
// were fully completed, rounded to the nearest integer.
func (p *Protocol) ConsistencyPercent(effectiveDay int) int {
	elapsed := max(1, min(p.TotalDays, effectiveDay))
	return int(math.Round(100 * float64(len(p.completedDays)) / float64(elapsed)))
}

// DaysRemaining counts the days left including the effective day.
func (p *Protocol) DaysRemaining(effectiveDay int) int {
	return max(0, p.TotalDays-effectiveDay+1)
}

// TaskFrequency counts completions per routine item across all recorded days
// and ranks them by count, descending. Ties keep routine order.
func (p *Protocol) TaskFrequency() []TaskFrequency {
	counts := make([]int, len(p.Routine))
	total := 0
	for _, row := range p.progress {
		for i, done := range row {
			if done && i < len(counts) {
				counts[i]++
				total++
			}
		}
	}
	out := make([]TaskFrequency, len(p.Routine))
	for i, item := range p.Routine {
		pct := 0.0
		if total > 0 {
			pct = float64(counts[i]) / float64(total) * 100
		}
		out[i] = TaskFrequency{Index: i, ItemID: item.ID, Text: item.Text, Count: counts[i], Percentage: pct}
	}
	slices.SortStableFunc(out, func(a, b TaskFrequency) int { return b.Count - a.Count })
	return out
}

// DayCellCategory classifies day by done/total; an empty routine or an
// untouched day is DayNone.
func (p *Protocol) DayCellCategory(day int) DayCategory {
	total := len(p.Routine)
	if total == 0 || day < 1 || day > len(p.progress) {
		return DayNone
	}
	done := 0
	for _, v := range p.progress[day-1] {
		if v {
			done++
		}
	}
	return categorize(done, total)
}

func categorize(done, total int) DayCategory {
	pct := float64(done) / float64(total) * 100
	switch {
	case done == 0:
		return DayNone
	case done >= total:
		return DayPerfect
	case pct < 30:
		return DayLow
	case pct < 70:
		return DayMid
	default:
		return DayHigh
	}
}

// CurrentStreak counts consecutive completed days ending at the effective day.
// When the effective day is not complete yet, the streak ending the day before
// still counts.
func (p *Protocol) CurrentStreak(effectiveDay int) int {
	day := min(effectiveDay, p.TotalDays)
	if day >= 1 && !p.IsDayComplete(day) && day == effectiveDay {
		day--
	}
	streak := 0
	for ; day >= 1 && p.IsDayComplete(day); day-- {
		streak++
	}
	return streak
}

// LongestStreak returns the longest run of consecutive completed days.
func (p *Protocol) LongestStreak() int {
	longest, run, prev := 0, 0, 0
	for _, d := range p.completedDays {
		if d == prev+1 {
			run++
		} else {
			run = 1
		}
		prev = d
		longest = max(longest, run)
	}
	return longest
}

// State returns the derived display state.
func (p *Protocol) State() ProtocolState {
	if p.IsCompleted() {
		return StateCompleted
	}
	return StateActive
}

// Analytics computes the full snapshot for effectiveDay.
func (p *Protocol) Analytics(effectiveDay int) AnalyticsSnapshot {
	freq := p.TaskFrequency()
	snap := AnalyticsSnapshot{
		ProtocolID:         p.ID,
		State:              p.State(),
		EffectiveDay:       effectiveDay,
		TotalDays:          p.TotalDays,
		CompletedCount:     len(p.completedDays),
		ConsistencyPercent: p.ConsistencyPercent(effectiveDay),
		DaysRemaining:      p.DaysRemaining(effectiveDay),
		CurrentStreak:      p.CurrentStreak(effectiveDay),
		LongestStreak:      p.LongestStreak(),
		TaskFrequency:      freq,
		DayCategories:      make([]DayCategory, p.TotalDays),
	}
	if len(freq) > 0 && freq[0].Count > 0 {
		top := freq[0]
		snap.TopHabit = &top
	}
	for d := 1; d <= p.TotalDays; d++ {
		snap.DayCategories[d-1] = p.DayCellCategory(d)
	}
	return snap
}
