package core

import (
	"context"
	"fmt"
	"slices"

	"habitcore/pkg/domain"
)

// ToggleScopeRule blocks toggles that change more than one day row or touch
// the routine.
func ToggleScopeRule() domain.Rule {
	return toggleScopeRule{}
}

type toggleScopeRule struct{}

func (toggleScopeRule) Name() string { return "toggle_scope" }

func (r toggleScopeRule) Evaluate(_ context.Context, change domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if change.Action != domain.ActionToggle || change.Before == nil || change.After == nil {
		return res, nil
	}
	before, after := change.Before, change.After
	if len(before.Routine) != len(after.Routine) {
		res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, after.ID,
			fmt.Sprintf("toggle changed routine length from %d to %d", len(before.Routine), len(after.Routine))))
	}
	var changed []int
	for day := 1; day <= after.TotalDays; day++ {
		b, _ := before.DayProgress(day)
		a, _ := after.DayProgress(day)
		if !sameRow(a, b) {
			changed = append(changed, day)
		}
	}
	if len(changed) > 1 {
		res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, after.ID,
			fmt.Sprintf("toggle changed days %v", changed)))
	}
	return res, nil
}

// sameRow treats an untouched day and an all-false row as equal.
func sameRow(a, b []bool) bool {
	if slices.Equal(a, b) {
		return true
	}
	return !slices.Contains(a, true) && !slices.Contains(b, true)
}
