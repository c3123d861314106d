package core

import (
	"context"
	"fmt"

	"habitcore/pkg/domain"
)

// HistoryAppendOnlyRule blocks mutations that rewrite or drop existing
// history records. Reset legitimately clears the log and is exempt.
func HistoryAppendOnlyRule() domain.Rule {
	return historyAppendOnlyRule{}
}

type historyAppendOnlyRule struct{}

func (historyAppendOnlyRule) Name() string { return "history_append_only" }

func (r historyAppendOnlyRule) Evaluate(_ context.Context, change domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if change.Before == nil || change.After == nil || change.Action == domain.ActionReset {
		return res, nil
	}
	before := change.Before.History().All()
	after := change.After.History().All()
	if len(after) < len(before) {
		res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, change.After.ID,
			fmt.Sprintf("history shrank from %d to %d records", len(before), len(after))))
		return res, nil
	}
	for i, rec := range before {
		if after[i] != rec {
			res.Violations = append(res.Violations, protocolViolation(r.Name(), domain.SeverityBlock, change.After.ID,
				fmt.Sprintf("history record %s was rewritten", rec.ID)))
			break
		}
	}
	return res, nil
}
