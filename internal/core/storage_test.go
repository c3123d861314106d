package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"habitcore/internal/config"
)

func TestOpenPersistentStore(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenPersistentStore(ctx, config.Storage{Driver: config.StorageMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if err := CloseStore(mem); err != nil {
		t.Fatalf("close memory: %v", err)
	}

	path := filepath.Join(t.TempDir(), "habitcore.db")
	lite, err := OpenPersistentStore(ctx, config.Storage{Driver: config.StorageSQLite, SQLitePath: path})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	svc := NewService(lite, WithClock(newTestClock("2024-01-01T10:00:00Z")), WithLocation(time.UTC))
	p := mustCreate(t, svc, morningDraft(3))
	if _, _, err := svc.ToggleItem(ctx, p.ID, 0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := CloseStore(lite); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	reopened, err := OpenPersistentStore(ctx, config.Storage{Driver: config.StorageSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = CloseStore(reopened) })
	got, err := reopened.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if row, ok := got.DayProgress(1); !ok || !row[0] {
		t.Fatalf("expected persisted toggle, got %v", row)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	_, err := OpenPersistentStore(context.Background(), config.Storage{Driver: "mongo"})
	if err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
