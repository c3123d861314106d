package core

import "habitcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ProgressAlignmentRule())
	engine.Register(CompletionConsistencyRule())
	engine.Register(HistoryAppendOnlyRule())
	engine.Register(ToggleScopeRule())
	return engine
}

func protocolViolation(rule string, severity domain.Severity, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: severity,
		Message:  msg,
		Entity:   domain.EntityProtocol,
		EntityID: id,
	}
}
