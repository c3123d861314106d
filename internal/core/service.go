// Package core hosts the protocol tracking service: it samples the clock,
// loads aggregates through the persistence port, applies domain mutations,
// evaluates invariant rules and saves the result.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"habitcore/internal/blob"
	"habitcore/internal/infra/persistence/memory"
	"habitcore/pkg/domain"
)

// Service exposes transactional operations over protocols. Mutations are
// serialized; each works on a deep clone and only a successfully saved clone
// becomes visible.
type Service struct {
	mu sync.Mutex

	store    domain.ProtocolStore
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

// ProtocolDraft carries the parameters of a new protocol. Routine items
// without an id get one assigned; a nil StartDate means today.
type ProtocolDraft struct {
	Title          string
	Description    string
	Routine        []domain.RoutineItem
	TotalDays      int
	RolloverOffset domain.TimeOfDay
	StartDate      *domain.Date
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.ProtocolStore, opts ...Option) *Service {
	if store == nil {
		panic("core: nil protocol store")
	}
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.engine == nil {
		cfg.engine = NewDefaultRulesEngine()
	}
	return &Service{
		store:    store,
		engine:   cfg.engine,
		clock:    cfg.clock,
		location: cfg.location,
		ids:      cfg.ids,
		archive:  cfg.archive,
		logger:   cfg.logger,
		audit:    cfg.audit,
		metrics:  cfg.metrics,
		tracer:   cfg.tracer,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects the default rules.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(), append([]Option{WithRulesEngine(engine)}, opts...)...)
}

// Store returns the underlying persistence port.
func (s *Service) Store() domain.ProtocolStore { return s.store }

// RulesEngine returns the invariant rules evaluated before every save.
func (s *Service) RulesEngine() *domain.RulesEngine { return s.engine }

func (s *Service) now() time.Time {
	now := s.clock.Now()
	if s.location != nil {
		now = now.In(s.location)
	}
	return now
}

func (s *Service) stamp(at time.Time) domain.Stamp {
	return domain.Stamp{RecordID: s.ids.NewID(), At: at}
}

// CreateProtocol validates the draft and persists a new active protocol.
func (s *Service) CreateProtocol(ctx context.Context, draft ProtocolDraft) (domain.Protocol, domain.Result, error) {
	id := s.ids.NewID()
	var (
		created domain.Protocol
		res     domain.Result
	)
	err := s.run(ctx, opCreateProtocol, id, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		now := s.now()
		start := domain.DateOf(now)
		if draft.StartDate != nil {
			start = *draft.StartDate
		}
		routine := make([]domain.RoutineItem, len(draft.Routine))
		for i, item := range draft.Routine {
			if item.ID == "" {
				item.ID = s.ids.NewID()
			}
			routine[i] = item
		}
		p, err := domain.NewProtocol(domain.ProtocolSpec{
			ID:             id,
			Title:          draft.Title,
			Description:    draft.Description,
			Routine:        routine,
			TotalDays:      draft.TotalDays,
			StartDate:      start,
			RolloverOffset: draft.RolloverOffset,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		res, err = s.evaluate(ctx, domain.Change{Action: domain.ActionCreate, After: &p})
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, p); err != nil {
			return domain.PersistenceError{Op: "save", Err: err}
		}
		created = p
		return nil
	})
	return created, res, err
}

// GetProtocol loads a protocol by id.
func (s *Service) GetProtocol(ctx context.Context, id string) (domain.Protocol, error) {
	var p domain.Protocol
	err := s.run(ctx, opGetProtocol, id, func(ctx context.Context) error {
		var err error
		p, err = s.load(ctx, id)
		return err
	})
	return p, err
}

// ListProtocols returns every stored protocol.
func (s *Service) ListProtocols(ctx context.Context) ([]domain.Protocol, error) {
	var out []domain.Protocol
	err := s.run(ctx, opListProtocols, "", func(ctx context.Context) error {
		var err error
		out, err = s.store.List(ctx)
		if err != nil {
			return domain.PersistenceError{Op: "list", Err: err}
		}
		return nil
	})
	return out, err
}

// ToggleItem flips item on the protocol's current effective day.
func (s *Service) ToggleItem(ctx context.Context, id string, item int) (domain.Protocol, domain.Result, error) {
	var (
		out domain.Protocol
		res domain.Result
	)
	err := s.run(ctx, opToggleItem, id, func(ctx context.Context) error {
		var err error
		out, res, err = s.mutate(ctx, id, domain.ActionToggle, func(p *domain.Protocol, now time.Time) error {
			day := p.EffectiveDay(now)
			return p.Toggle(day, item, day)
		})
		return err
	})
	return out, res, err
}

// ToggleItemOnDay flips item on an explicit day. Any day other than the
// effective day is rejected with EditForbiddenError.
func (s *Service) ToggleItemOnDay(ctx context.Context, id string, day, item int) (domain.Protocol, domain.Result, error) {
	var (
		out domain.Protocol
		res domain.Result
	)
	err := s.run(ctx, opToggleItemOnDay, id, func(ctx context.Context) error {
		var err error
		out, res, err = s.mutate(ctx, id, domain.ActionToggle, func(p *domain.Protocol, now time.Time) error {
			return p.Toggle(day, item, p.EffectiveDay(now))
		})
		return err
	})
	return out, res, err
}

// AddRoutineItem appends a new item to the routine.
func (s *Service) AddRoutineItem(ctx context.Context, id, text string, at *domain.TimeOfDay) (domain.RoutineItem, domain.Result, error) {
	var (
		added domain.RoutineItem
		res   domain.Result
	)
	err := s.run(ctx, opAddRoutineItem, id, func(ctx context.Context) error {
		var err error
		_, res, err = s.mutate(ctx, id, domain.ActionAddItem, func(p *domain.Protocol, now time.Time) error {
			var addErr error
			added, addErr = p.AddRoutineItem(domain.RoutineItem{ID: s.ids.NewID(), Text: text, Time: at}, s.stamp(now))
			return addErr
		})
		return err
	})
	return added, res, err
}

// RemoveRoutineItem removes the item at index from the routine and every day.
func (s *Service) RemoveRoutineItem(ctx context.Context, id string, index int) (domain.RoutineItem, domain.Result, error) {
	var (
		removed domain.RoutineItem
		res     domain.Result
	)
	err := s.run(ctx, opRemoveRoutineItem, id, func(ctx context.Context) error {
		var err error
		_, res, err = s.mutate(ctx, id, domain.ActionRemoveItem, func(p *domain.Protocol, now time.Time) error {
			var rmErr error
			removed, rmErr = p.RemoveRoutineItem(index, s.stamp(now))
			return rmErr
		})
		return err
	})
	return removed, res, err
}

// ApplyOverride merges patch into the (day, item) override and returns the
// resolved item as it now displays.
func (s *Service) ApplyOverride(ctx context.Context, id string, day, item int, patch domain.Override) (domain.ResolvedItem, domain.Result, error) {
	var (
		resolved domain.ResolvedItem
		res      domain.Result
	)
	err := s.run(ctx, opApplyOverride, id, func(ctx context.Context) error {
		var err error
		_, res, err = s.mutate(ctx, id, domain.ActionOverride, func(p *domain.Protocol, now time.Time) error {
			if _, applyErr := p.ApplyOverride(day, item, patch, s.stamp(now)); applyErr != nil {
				return applyErr
			}
			var resolveErr error
			resolved, resolveErr = p.ResolveItem(day, item)
			return resolveErr
		})
		return err
	})
	return resolved, res, err
}

// ResolveItem returns what item displays on day after overrides.
func (s *Service) ResolveItem(ctx context.Context, id string, day, item int) (domain.ResolvedItem, error) {
	var resolved domain.ResolvedItem
	err := s.run(ctx, opResolveItem, id, func(ctx context.Context) error {
		p, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		resolved, err = p.ResolveItem(day, item)
		return err
	})
	return resolved, err
}

// UpdateSettings changes title, description or rollover time.
func (s *Service) UpdateSettings(ctx context.Context, id string, patch domain.SettingsPatch) (domain.Protocol, domain.Result, error) {
	var (
		out domain.Protocol
		res domain.Result
	)
	err := s.run(ctx, opUpdateSettings, id, func(ctx context.Context) error {
		var err error
		out, res, err = s.mutate(ctx, id, domain.ActionSettings, func(p *domain.Protocol, now time.Time) error {
			_, err := p.UpdateSettings(patch, s.stamp(now))
			return err
		})
		return err
	})
	return out, res, err
}

// ResetProtocol archives the current state (when an archive is configured)
// and clears progress, overrides, completed days and history.
func (s *Service) ResetProtocol(ctx context.Context, id string) (domain.Protocol, domain.Result, error) {
	var (
		out domain.Protocol
		res domain.Result
	)
	err := s.run(ctx, opResetProtocol, id, func(ctx context.Context) error {
		var (
			key string
			err error
		)
		out, res, err = s.mutate(ctx, id, domain.ActionReset, func(p *domain.Protocol, now time.Time) error {
			written, archErr := s.archiveSnapshot(ctx, *p, archiveReasonReset, now)
			if archErr != nil {
				return archErr
			}
			key = written
			p.Reset()
			return nil
		})
		if err != nil {
			s.discardArchive(ctx, key)
		}
		return err
	})
	return out, res, err
}

// DeleteProtocol archives the protocol (when configured) and removes it.
func (s *Service) DeleteProtocol(ctx context.Context, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, opDeleteProtocol, id, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		now := s.now()
		before, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		res, err = s.evaluate(ctx, domain.Change{Action: domain.ActionDelete, Before: &before})
		if err != nil {
			return err
		}
		key, err := s.archiveSnapshot(ctx, before, archiveReasonDelete, now)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, id); err != nil {
			s.discardArchive(ctx, key)
			var nf domain.NotFoundError
			if errors.As(err, &nf) {
				return nf
			}
			return domain.PersistenceError{Op: "delete", Err: err}
		}
		return nil
	})
	return res, err
}

// GetAnalytics derives the statistics snapshot at the current instant.
func (s *Service) GetAnalytics(ctx context.Context, id string) (domain.AnalyticsSnapshot, error) {
	var snap domain.AnalyticsSnapshot
	err := s.run(ctx, opGetAnalytics, id, func(ctx context.Context) error {
		p, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		snap = p.Analytics(p.EffectiveDay(s.now()))
		return nil
	})
	return snap, err
}

// EffectiveDay reports the current day index of a protocol.
func (s *Service) EffectiveDay(ctx context.Context, id string) (int, error) {
	p, err := s.GetProtocol(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.EffectiveDay(s.now()), nil
}

// mutate is the load, clone, apply, evaluate, save pipeline shared by every
// aggregate mutation. fn receives the clone and the single clock sample.
func (s *Service) mutate(ctx context.Context, id string, action domain.Action, fn func(p *domain.Protocol, now time.Time) error) (domain.Protocol, domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	before, err := s.load(ctx, id)
	if err != nil {
		return domain.Protocol{}, domain.Result{}, err
	}
	after := before.Clone()
	if err := fn(&after, now); err != nil {
		return domain.Protocol{}, domain.Result{}, err
	}
	after.Touch(now)
	res, err := s.evaluate(ctx, domain.Change{Action: action, Before: &before, After: &after})
	if err != nil {
		return domain.Protocol{}, res, err
	}
	if err := s.store.Save(ctx, after); err != nil {
		return domain.Protocol{}, res, domain.PersistenceError{Op: "save", Err: err}
	}
	return after, res, nil
}

func (s *Service) load(ctx context.Context, id string) (domain.Protocol, error) {
	p, err := s.store.Load(ctx, id)
	if err != nil {
		var nf domain.NotFoundError
		if errors.As(err, &nf) {
			return domain.Protocol{}, nf
		}
		return domain.Protocol{}, domain.PersistenceError{Op: "load", Err: err}
	}
	return p, nil
}

// evaluate runs the rules engine; blocking violations abort the mutation and
// warnings are logged.
func (s *Service) evaluate(ctx context.Context, change domain.Change) (domain.Result, error) {
	res, err := s.engine.Evaluate(ctx, change)
	if err != nil {
		return domain.Result{}, err
	}
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityWarn:
			s.logger.Warn("rule warning", "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		case domain.SeverityLog:
			s.logger.Info("rule note", "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	return res, nil
}
