package core

import (
	"context"
	"fmt"

	"habitcore/pkg/domain"
)

// ProgressAlignmentRule blocks saves where a materialized progress row does
// not match the routine length or sits outside the protocol window.
func ProgressAlignmentRule() domain.Rule {
	return progressAlignmentRule{}
}

type progressAlignmentRule struct{}

func (progressAlignmentRule) Name() string { return "progress_alignment" }

func (r progressAlignmentRule) Evaluate(_ context.Context, change domain.Change) (domain.Result, error) {
	res := domain.Result{}
	p := change.After
	if p == nil {
		return res, nil
	}
	for _, day := range p.RecordedDays() {
		if day < 1 || day > p.TotalDays {
			res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, p.ID,
				fmt.Sprintf("progress recorded for day %d outside [1, %d]", day, p.TotalDays)))
			continue
		}
		row, _ := p.DayProgress(day)
		if len(row) != len(p.Routine) {
			res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, p.ID,
				fmt.Sprintf("day %d has %d entries for %d routine items", day, len(row), len(p.Routine))))
		}
	}
	for _, day := range p.OverrideDays() {
		if day < 1 || day > p.TotalDays {
			res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, p.ID,
				fmt.Sprintf("override stored for day %d outside [1, %d]", day, p.TotalDays)))
		}
	}
	return res, nil
}
