package core

import (
	"context"
	"time"

	"habitcore/pkg/domain"
)

// Logger is the minimal structured logger the service writes to. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed mutation.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes the outcome and latency of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

// auditedOperations lists the mutating operations written to the audit trail.
var auditedOperations = map[string]operationMeta{
	opCreateProtocol:    {entity: domain.EntityProtocol, action: domain.ActionCreate},
	opToggleItem:        {entity: domain.EntityProtocol, action: domain.ActionToggle},
	opToggleItemOnDay:   {entity: domain.EntityProtocol, action: domain.ActionToggle},
	opAddRoutineItem:    {entity: domain.EntityRoutineItem, action: domain.ActionAddItem},
	opRemoveRoutineItem: {entity: domain.EntityRoutineItem, action: domain.ActionRemoveItem},
	opApplyOverride:     {entity: domain.EntityRoutineItem, action: domain.ActionOverride},
	opUpdateSettings:    {entity: domain.EntityProtocol, action: domain.ActionSettings},
	opResetProtocol:     {entity: domain.EntityProtocol, action: domain.ActionReset},
	opDeleteProtocol:    {entity: domain.EntityProtocol, action: domain.ActionDelete},
}

const (
	opCreateProtocol    = "create_protocol"
	opGetProtocol       = "get_protocol"
	opListProtocols     = "list_protocols"
	opToggleItem        = "toggle_item"
	opToggleItemOnDay   = "toggle_item_on_day"
	opAddRoutineItem    = "add_routine_item"
	opRemoveRoutineItem = "remove_routine_item"
	opApplyOverride     = "apply_override"
	opResolveItem       = "resolve_item"
	opUpdateSettings    = "update_settings"
	opResetProtocol     = "reset_protocol"
	opDeleteProtocol    = "delete_protocol"
	opGetAnalytics      = "get_analytics"
	opTodayAgenda       = "today_agenda"
	opListArchives      = "list_archives"
	opLoadArchive       = "load_archive"
)

// run wraps an operation with tracing, metrics, logging and auditing.
func (s *Service) run(ctx context.Context, op, entityID string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("habitcore operation failed", "operation", op, "entity_id", entityID, "error", err)
		s.recordAuditError(ctx, op, entityID, duration, err)
		return err
	}
	s.logger.Debug("habitcore operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, AuditStatusSuccess, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, AuditStatusError, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, status AuditStatus, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
