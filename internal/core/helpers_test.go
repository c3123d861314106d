package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"habitcore/internal/infra/persistence/memory"
	"habitcore/pkg/domain"
)

// testClock is a settable clock shared with the service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(s string) *testClock {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(s string) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func sequentialIDs() IDGenerator {
	var mu sync.Mutex
	n := 0
	return IDGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	})
}

func newTestService(t *testing.T, clock *testClock, opts ...Option) *Service {
	t.Helper()
	base := []Option{WithClock(clock), WithLocation(time.UTC), WithIDGenerator(sequentialIDs())}
	return NewInMemoryService(nil, append(base, opts...)...)
}

func morningDraft(days int) ProtocolDraft {
	start := domain.MustDate("2024-01-01")
	seven := domain.MustTimeOfDay("07:00")
	return ProtocolDraft{
		Title: "Morning",
		Routine: []domain.RoutineItem{
			{Text: "Read"},
			{Text: "Stretch", Time: &seven},
		},
		TotalDays: days,
		StartDate: &start,
	}
}

func mustCreate(t *testing.T, svc *Service, draft ProtocolDraft) domain.Protocol {
	t.Helper()
	p, _, err := svc.CreateProtocol(context.Background(), draft)
	if err != nil {
		t.Fatalf("create protocol: %v", err)
	}
	return p
}

func errorAs[E error](t *testing.T, err error) E {
	t.Helper()
	var target E
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
	return target
}

// flakyStore wraps the memory store and fails writes on demand.
type flakyStore struct {
	*memory.Store
	failSave   bool
	failDelete bool
	failLoad   bool
}

var errStoreDown = errors.New("store down")

func (f *flakyStore) Load(ctx context.Context, id string) (domain.Protocol, error) {
	if f.failLoad {
		return domain.Protocol{}, errStoreDown
	}
	return f.Store.Load(ctx, id)
}

func (f *flakyStore) Save(ctx context.Context, p domain.Protocol) error {
	if f.failSave {
		return errStoreDown
	}
	return f.Store.Save(ctx, p)
}

func (f *flakyStore) Delete(ctx context.Context, id string) error {
	if f.failDelete {
		return errStoreDown
	}
	return f.Store.Delete(ctx, id)
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (c *captureLogger) add(level, msg string, args []any) {
	c.mu.Lock()
	c.entries = append(c.entries, logEntry{level: level, msg: msg, args: args})
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) has(level, msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}
