package domain

import (
	"errors"
	"testing"
	"time"
)

var testStart = MustDate("2024-01-01")

func mustNoError(t *testing.T, label string, err error) {
	t.Helper()
	if err != nil {
		if label == "" {
			t.Fatalf("unexpected error: %v", err)
		}
		t.Fatalf("%s: %v", label, err)
	}
}

func newTestProtocol(t *testing.T, totalDays int, texts ...string) Protocol {
	t.Helper()
	routine := make([]RoutineItem, len(texts))
	for i, text := range texts {
		routine[i] = RoutineItem{ID: "item-" + text, Text: text}
	}
	p, err := NewProtocol(ProtocolSpec{
		ID:        "p1",
		Title:     "Test",
		Routine:   routine,
		TotalDays: totalDays,
		StartDate: testStart,
		CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	})
	mustNoError(t, "new protocol", err)
	return p
}

func stamp(id string) Stamp {
	return Stamp{RecordID: id, At: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func assertDays(t *testing.T, label string, got []int, want ...int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %v, got %v", label, want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: expected %v, got %v", label, want, got)
		}
	}
}

// assertCompletionInvariant checks the stored completed set against one derived from progress.
func assertCompletionInvariant(t *testing.T, p *Protocol) {
	t.Helper()
	assertDays(t, "completed days", p.CompletedDays(), p.DerivedCompletedDays()...)
}

func ptr[T any](v T) *T { return &v }

func errorAs[E error](t *testing.T, err error) E {
	t.Helper()
	var target E
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
	return target
}
