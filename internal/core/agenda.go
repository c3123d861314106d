package core

import (
	"context"
	"slices"

	"habitcore/pkg/domain"
)

// AgendaItem is one routine item as it displays on the effective day.
type AgendaItem struct {
	domain.ResolvedItem
	Done bool `json:"done"`
}

// Agenda lists the effective day's items for timer style consumers.
type Agenda struct {
	ProtocolID string       `json:"protocolId"`
	Day        int          `json:"day"`
	Items      []AgendaItem `json:"items"`
}

// TodayAgenda resolves every item for the effective day, sorted by time with
// untimed items last. pendingOnly drops items already done. A day outside the
// protocol window yields an empty agenda.
func (s *Service) TodayAgenda(ctx context.Context, id string, pendingOnly bool) (Agenda, error) {
	var agenda Agenda
	err := s.run(ctx, opTodayAgenda, id, func(ctx context.Context) error {
		p, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		agenda = buildAgenda(&p, p.EffectiveDay(s.now()), pendingOnly)
		return nil
	})
	return agenda, err
}

func buildAgenda(p *domain.Protocol, day int, pendingOnly bool) Agenda {
	agenda := Agenda{ProtocolID: p.ID, Day: day, Items: []AgendaItem{}}
	resolved, err := p.ResolveDay(day)
	if err != nil {
		return agenda
	}
	row, _ := p.DayProgress(day)
	for _, item := range resolved {
		done := item.Index < len(row) && row[item.Index]
		if pendingOnly && done {
			continue
		}
		agenda.Items = append(agenda.Items, AgendaItem{ResolvedItem: item, Done: done})
	}
	slices.SortStableFunc(agenda.Items, func(a, b AgendaItem) int {
		switch {
		case a.Time == nil && b.Time == nil:
			return 0
		case a.Time == nil:
			return 1
		case b.Time == nil:
			return -1
		case a.Time.Before(*b.Time):
			return -1
		case b.Time.Before(*a.Time):
			return 1
		}
		return 0
	})
	return agenda
}
