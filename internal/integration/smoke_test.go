package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"habitcore/internal/blob"
	"habitcore/internal/config"
	"habitcore/internal/core"
	"habitcore/pkg/domain"
)

// TestIntegrationSmoke drives a full protocol lifecycle through every
// in-process storage and blob combination. Scope stays small so it can act
// as a fast health check.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		cfg  func(t *testing.T) config.Storage
	}{
		{
			name: "memory-store",
			cfg:  func(*testing.T) config.Storage { return config.Storage{Driver: config.StorageMemory} },
		},
		{
			name: "sqlite-store",
			cfg: func(t *testing.T) config.Storage {
				return config.Storage{Driver: config.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "habitcore.db")}
			},
		},
	}
	blobVariants := []struct {
		name string
		cfg  func(t *testing.T) config.Blob
	}{
		{
			name: "memory-blob",
			cfg:  func(*testing.T) config.Blob { return config.Blob{Driver: "memory"} },
		},
		{
			name: "filesystem-blob",
			cfg:  func(t *testing.T) config.Blob { return config.Blob{Driver: "fs", FSRoot: t.TempDir()} },
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				store, err := core.OpenPersistentStore(ctx, sv.cfg(t))
				if err != nil {
					t.Skipf("store unavailable: %v", err)
				}
				t.Cleanup(func() { _ = core.CloseStore(store) })
				archive, err := blob.Open(ctx, bv.cfg(t))
				if err != nil {
					t.Fatalf("open blob: %v", err)
				}

				now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
				metrics := core.NewExpvarMetricsRecorder("")
				var traces bytes.Buffer
				svc := core.NewService(store,
					core.WithClock(core.ClockFunc(func() time.Time { return now })),
					core.WithLocation(time.UTC),
					core.WithArchive(archive),
					core.WithMetricsRecorder(metrics),
					core.WithTracer(core.NewJSONTracer(&traces)),
				)
				runLifecycle(t, ctx, svc)

				snap := metrics.Snapshot()
				if snap.Results["toggle_item"]["success"] != 2 {
					t.Fatalf("expected two successful toggles, got %+v", snap.Results)
				}
				if traces.Len() == 0 {
					t.Fatalf("expected trace output")
				}
			})
		}
	}
}

func runLifecycle(t *testing.T, ctx context.Context, svc *core.Service) {
	t.Helper()
	start := domain.MustDate("2024-03-01")
	p, _, err := svc.CreateProtocol(ctx, core.ProtocolDraft{
		Title:     "Smoke",
		Routine:   []domain.RoutineItem{{Text: "Walk"}, {Text: "Read"}},
		TotalDays: 2,
		StartDate: &start,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for item := range 2 {
		if _, _, err := svc.ToggleItem(ctx, p.ID, item); err != nil {
			t.Fatalf("toggle %d: %v", item, err)
		}
	}
	yoga := "Yoga"
	if _, _, err := svc.ApplyOverride(ctx, p.ID, 2, 0, domain.Override{Text: &yoga}); err != nil {
		t.Fatalf("override: %v", err)
	}

	got, err := svc.GetProtocol(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsDayComplete(2) || got.History().Len() != 1 {
		t.Fatalf("unexpected state: complete=%v history=%d", got.IsDayComplete(2), got.History().Len())
	}

	if _, _, err := svc.ResetProtocol(ctx, p.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := svc.DeleteProtocol(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	archives, err := svc.ListArchives(ctx, p.ID)
	if err != nil {
		t.Fatalf("list archives: %v", err)
	}
	if len(archives) != 2 {
		t.Fatalf("expected reset and delete archives, got %+v", archives)
	}
	for _, a := range archives {
		if a.Reason != "reset" {
			continue
		}
		snapshot, err := svc.LoadArchive(ctx, a.Key)
		if err != nil {
			t.Fatalf("load archive: %v", err)
		}
		if !snapshot.IsDayComplete(2) {
			t.Fatalf("reset archive must hold the pre-reset progress")
		}
	}
	if _, err := svc.GetProtocol(ctx, p.ID); err == nil {
		t.Fatalf("expected deleted protocol to be gone")
	}
}
