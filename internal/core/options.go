package core

import (
	"time"

	"github.com/google/uuid"

	"habitcore/internal/blob"
	"habitcore/pkg/domain"
)

// Clock supplies the current instant. The service samples it once per operation.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reads the system clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now()
	}
	return f()
}

// IDGenerator produces identifiers for protocols, routine items and history records.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

// NewID implements IDGenerator.
func (f IDGeneratorFunc) NewID() string { return f() }

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	engine   *domain.RulesEngine
	clock    Clock
	location *time.Location
	ids      IDGenerator
	archive  blob.Store
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(nil),
		ids:     uuidGenerator{},
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
}

// WithRulesEngine replaces the default invariant rules.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(o *serviceOptions) {
		if engine != nil {
			o.engine = engine
		}
	}
}

// WithClock overrides the clock used to resolve the effective day.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation pins the wall-clock location used for day rollover. By default
// the clock's own location is used.
func WithLocation(loc *time.Location) Option {
	return func(o *serviceOptions) {
		o.location = loc
	}
}

// WithIDGenerator overrides the identifier source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *serviceOptions) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithArchive enables snapshot archiving before reset and delete.
func WithArchive(store blob.Store) Option {
	return func(o *serviceOptions) {
		o.archive = store
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}
