package core

import (
	"context"
	"fmt"
	"slices"

	"habitcore/pkg/domain"
)

// CompletionConsistencyRule blocks saves whose completed set disagrees with
// the progress matrix, and notes the transition into the completed state.
func CompletionConsistencyRule() domain.Rule {
	return completionConsistencyRule{}
}

type completionConsistencyRule struct{}

func (completionConsistencyRule) Name() string { return "completion_consistency" }

func (r completionConsistencyRule) Evaluate(_ context.Context, change domain.Change) (domain.Result, error) {
	res := domain.Result{}
	p := change.After
	if p == nil {
		return res, nil
	}
	stored := p.CompletedDays()
	derived := p.DerivedCompletedDays()
	if !slices.Equal(stored, derived) {
		res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, p.ID,
			fmt.Sprintf("completed days %v do not match progress %v", stored, derived)))
		return res, nil
	}
	if p.IsCompleted() && (change.Before == nil || !change.Before.IsCompleted()) {
		res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityLog, p.ID,
			fmt.Sprintf("all %d days completed", p.TotalDays)))
	}
	return res, nil
}
