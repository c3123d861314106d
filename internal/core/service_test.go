package core

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"habitcore/internal/infra/persistence/memory"
	"habitcore/pkg/domain"
)

func TestServiceCreateAndToggleCompletesDay(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock("2024-01-01T10:00:00Z")
	svc := newTestService(t, clock)

	p := mustCreate(t, svc, morningDraft(7))
	if p.ID != "id-1" || p.Routine[0].ID != "id-2" || p.Routine[1].ID != "id-3" {
		t.Fatalf("unexpected ids: %s %+v", p.ID, p.Routine)
	}
	if p.Title != "Morning" || p.TotalDays != 7 || !p.CreatedAt.Equal(clock.Now()) {
		t.Fatalf("unexpected protocol %+v", p)
	}

	if _, _, err := svc.ToggleItem(ctx, p.ID, 0); err != nil {
		t.Fatalf("toggle 0: %v", err)
	}
	got, res, err := svc.ToggleItem(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("toggle 1: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
	if diff := cmp.Diff([]int{1}, got.CompletedDays()); diff != "" {
		t.Fatalf("completed days mismatch (-want +got):\n%s", diff)
	}
	stored, err := svc.GetProtocol(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.IsDayComplete(1) {
		t.Fatalf("expected day 1 complete in store")
	}

	// untoggling restores the previous state
	got, _, err = svc.ToggleItem(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("untoggle: %v", err)
	}
	row, _ := got.DayProgress(1)
	if diff := cmp.Diff([]bool{true, false}, row); diff != "" || len(got.CompletedDays()) != 0 {
		t.Fatalf("unexpected state after untoggle: %v %v", row, got.CompletedDays())
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc := newTestService(t, newTestClock("2024-01-01T10:00:00Z"))
	draft := morningDraft(0)
	_, _, err := svc.CreateProtocol(context.Background(), draft)
	verr := errorAs[domain.ValidationError](t, err)
	if verr.Field != "totalDays" {
		t.Fatalf("unexpected field %q", verr.Field)
	}
	if list, _ := svc.ListProtocols(context.Background()); len(list) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(list))
	}
}

func TestServiceCreateDefaultsStartDateToToday(t *testing.T) {
	clock := newTestClock("2024-03-05T23:30:00Z")
	svc := newTestService(t, clock)
	draft := morningDraft(3)
	draft.StartDate = nil
	p := mustCreate(t, svc, draft)
	if p.StartDate != domain.MustDate("2024-03-05") {
		t.Fatalf("unexpected start date %s", p.StartDate)
	}
}

func TestServiceEditForbiddenLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock("2024-01-03T10:00:00Z")
	svc := newTestService(t, clock)
	p := mustCreate(t, svc, morningDraft(7))
	before, _ := svc.GetProtocol(ctx, p.ID)

	for _, day := range []int{2, 4} {
		_, _, err := svc.ToggleItemOnDay(ctx, p.ID, day, 0)
		forbidden := errorAs[domain.EditForbiddenError](t, err)
		if forbidden.Day != day || forbidden.EffectiveDay != 3 {
			t.Fatalf("unexpected error %+v", forbidden)
		}
	}
	after, _ := svc.GetProtocol(ctx, p.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || len(after.RecordedDays()) != 0 {
		t.Fatalf("forbidden toggle must not write: %+v", after.RecordedDays())
	}

	if _, _, err := svc.ToggleItemOnDay(ctx, p.ID, 3, 1); err != nil {
		t.Fatalf("toggle effective day: %v", err)
	}
	if _, _, err := svc.ToggleItemOnDay(ctx, p.ID, 9, 0); err == nil {
		t.Fatalf("expected out of range day")
	} else {
		errorAs[domain.OutOfRangeError](t, err)
	}
}

func TestServiceRolloverOffsetShiftsEffectiveDay(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock("2024-01-02T03:00:00Z")
	svc := newTestService(t, clock)
	draft := morningDraft(7)
	draft.RolloverOffset = domain.MustTimeOfDay("04:00")
	p := mustCreate(t, svc, draft)

	day, err := svc.EffectiveDay(ctx, p.ID)
	if err != nil || day != 1 {
		t.Fatalf("expected day 1 before rollover, got %d %v", day, err)
	}
	clock.Set("2024-01-02T04:00:00Z")
	if day, _ = svc.EffectiveDay(ctx, p.ID); day != 2 {
		t.Fatalf("expected day 2 after rollover, got %d", day)
	}
}

func TestServiceRoutineEditsRederiveCompletion(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock("2024-01-01T10:00:00Z")
	svc := newTestService(t, clock)
	p := mustCreate(t, svc, morningDraft(7))
	for item := range 2 {
		if _, _, err := svc.ToggleItem(ctx, p.ID, item); err != nil {
			t.Fatalf("toggle %d: %v", item, err)
		}
	}

	nine := domain.MustTimeOfDay("21:00")
	added, _, err := svc.AddRoutineItem(ctx, p.ID, "Journal", &nine)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.Text != "Journal" || added.ID == "" {
		t.Fatalf("unexpected added item %+v", added)
	}
	got, _ := svc.GetProtocol(ctx, p.ID)
	row, _ := got.DayProgress(1)
	if diff := cmp.Diff([]bool{true, true, false}, row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
	if got.IsDayComplete(1) {
		t.Fatalf("adding an item must reopen day 1")
	}
	latest, ok := got.History().Latest()
	if !ok || latest.Kind != domain.HistoryAdd || latest.SubjectID != added.ID {
		t.Fatalf("unexpected history %+v", latest)
	}

	removed, _, err := svc.RemoveRoutineItem(ctx, p.ID, 2)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.ID != added.ID {
		t.Fatalf("removed wrong item %+v", removed)
	}
	got, _ = svc.GetProtocol(ctx, p.ID)
	if !got.IsDayComplete(1) || got.History().Len() != 2 {
		t.Fatalf("expected day 1 complete again with two history records, got %v %d", got.CompletedDays(), got.History().Len())
	}

	if _, _, err := svc.RemoveRoutineItem(ctx, p.ID, 5); err == nil {
		t.Fatalf("expected out of range removal")
	} else {
		errorAs[domain.OutOfRangeError](t, err)
	}
	if _, _, err := svc.AddRoutineItem(ctx, p.ID, "  ", nil); err == nil {
		t.Fatalf("expected blank text rejection")
	} else {
		errorAs[domain.ValidationError](t, err)
	}
}

func TestServiceOverridesAndResolve(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock("2024-01-01T10:00:00Z"))
	p := mustCreate(t, svc, morningDraft(7))

	text := "Read 20 pages"
	resolved, _, err := svc.ApplyOverride(ctx, p.ID, 5, 0, domain.Override{Text: &text})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if resolved.Text != text || resolved.Time != nil {
		t.Fatalf("unexpected resolved %+v", resolved)
	}
	eight := domain.MustTimeOfDay("08:00")
	resolved, _, err = svc.ApplyOverride(ctx, p.ID, 5, 0, domain.Override{Time: &eight})
	if err != nil {
		t.Fatalf("second override: %v", err)
	}
	if resolved.Text != text || resolved.Time == nil || *resolved.Time != eight {
		t.Fatalf("merge lost a field: %+v", resolved)
	}

	base, err := svc.ResolveItem(ctx, p.ID, 4, 0)
	if err != nil || base.Text != "Read" {
		t.Fatalf("other days must resolve to base: %+v %v", base, err)
	}
	if _, err := svc.ResolveItem(ctx, p.ID, 5, 7); err == nil {
		t.Fatalf("expected out of range item")
	}
	got, _ := svc.GetProtocol(ctx, p.ID)
	if got.History().Len() != 2 {
		t.Fatalf("expected two edit records, got %d", got.History().Len())
	}
}

func TestServiceUpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock("2024-01-01T10:00:00Z"))
	p := mustCreate(t, svc, morningDraft(7))

	title := "Evening"
	offset := domain.MustTimeOfDay("03:30")
	got, _, err := svc.UpdateSettings(ctx, p.ID, domain.SettingsPatch{Title: &title, RolloverOffset: &offset})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Evening" || got.RolloverOffset != offset || got.History().Len() != 1 {
		t.Fatalf("unexpected protocol %+v", got)
	}
	// a patch without visible change appends nothing
	got, _, err = svc.UpdateSettings(ctx, p.ID, domain.SettingsPatch{Title: &title})
	if err != nil || got.History().Len() != 1 {
		t.Fatalf("expected no new history, got %d %v", got.History().Len(), err)
	}
}

func TestServiceNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock("2024-01-01T10:00:00Z"))
	checks := map[string]error{}
	_, checks["get"] = svc.GetProtocol(ctx, "missing")
	_, _, checks["toggle"] = svc.ToggleItem(ctx, "missing", 0)
	_, checks["delete"] = svc.DeleteProtocol(ctx, "missing")
	_, checks["analytics"] = svc.GetAnalytics(ctx, "missing")
	_, checks["agenda"] = svc.TodayAgenda(ctx, "missing", false)
	for name, err := range checks {
		nf := errorAs[domain.NotFoundError](t, err)
		if nf.ID != "missing" || nf.Entity != domain.EntityProtocol {
			t.Fatalf("%s: unexpected error %+v", name, nf)
		}
	}
}

func TestServiceSaveFailureKeepsLastSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.NewStore()}
	svc := NewService(store, WithClock(newTestClock("2024-01-01T10:00:00Z")), WithIDGenerator(sequentialIDs()))
	p := mustCreate(t, svc, morningDraft(7))

	store.failSave = true
	_, _, err := svc.ToggleItem(ctx, p.ID, 0)
	perr := errorAs[domain.PersistenceError](t, err)
	if perr.Op != "save" || !errors.Is(err, errStoreDown) {
		t.Fatalf("unexpected persistence error %+v", perr)
	}
	got, err := svc.GetProtocol(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.RecordedDays()) != 0 {
		t.Fatalf("failed save must not leak state: %v", got.RecordedDays())
	}

	store.failSave = false
	store.failDelete = true
	if _, err := svc.DeleteProtocol(ctx, p.ID); err == nil {
		t.Fatalf("expected delete failure")
	} else if errorAs[domain.PersistenceError](t, err).Op != "delete" {
		t.Fatalf("unexpected op for %v", err)
	}

	store.failLoad = true
	if _, err := svc.GetProtocol(ctx, p.ID); err == nil {
		t.Fatalf("expected load failure")
	} else if errorAs[domain.PersistenceError](t, err).Op != "load" {
		t.Fatalf("unexpected op for %v", err)
	}
}

func TestServiceDeleteAndList(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock("2024-01-01T10:00:00Z"))
	a := mustCreate(t, svc, morningDraft(7))
	b := mustCreate(t, svc, morningDraft(3))

	list, err := svc.ListProtocols(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v %d", err, len(list))
	}
	if _, err := svc.DeleteProtocol(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = svc.ListProtocols(ctx)
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	if !slices.Equal(ids, []string{b.ID}) {
		t.Fatalf("unexpected remaining ids %v", ids)
	}
	if _, err := svc.GetProtocol(ctx, a.ID); err == nil {
		t.Fatalf("expected deleted protocol to be gone")
	}
}

func TestServiceResetClearsState(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestClock("2024-01-01T10:00:00Z"))
	p := mustCreate(t, svc, morningDraft(7))
	if _, _, err := svc.ToggleItem(ctx, p.ID, 0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, _, err := svc.AddRoutineItem(ctx, p.ID, "Walk", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _, err := svc.ResetProtocol(ctx, p.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(got.RecordedDays()) != 0 || got.History().Len() != 0 || len(got.CompletedDays()) != 0 {
		t.Fatalf("reset left state behind")
	}
	if len(got.Routine) != 3 || got.Title != "Morning" {
		t.Fatalf("reset must keep routine and settings: %+v", got)
	}
}

func TestServiceGetAnalytics(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock("2024-01-01T10:00:00Z")
	svc := newTestService(t, clock)
	p := mustCreate(t, svc, morningDraft(4))
	for _, ts := range []string{"2024-01-01T10:00:00Z", "2024-01-02T10:00:00Z"} {
		clock.Set(ts)
		for item := range 2 {
			if _, _, err := svc.ToggleItem(ctx, p.ID, item); err != nil {
				t.Fatalf("toggle: %v", err)
			}
		}
	}
	clock.Set("2024-01-03T10:00:00Z")
	if _, _, err := svc.ToggleItem(ctx, p.ID, 0); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	snap, err := svc.GetAnalytics(ctx, p.ID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if snap.EffectiveDay != 3 || snap.CompletedCount != 2 || snap.ConsistencyPercent != 67 || snap.DaysRemaining != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.CurrentStreak != 2 || snap.LongestStreak != 2 || snap.State != domain.StateActive {
		t.Fatalf("unexpected streaks %+v", snap)
	}
	if snap.TopHabit == nil || snap.TopHabit.Index != 0 || snap.TopHabit.Count != 3 {
		t.Fatalf("unexpected top habit %+v", snap.TopHabit)
	}
}
