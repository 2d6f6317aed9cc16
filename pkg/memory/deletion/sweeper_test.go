package deletion

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/audit"
	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

func newSweeperFixture(t *testing.T) (*fixture, *Sweeper) {
	t.Helper()
	f := newFixture(t)
	sweeper := NewSweeper(f.store, SweeperOptions{
		Clock:  func() time.Time { return *f.now },
		Logger: log.New(io.Discard, "", 0),
		Audit:  f.sink,
	})
	return f, sweeper
}

func TestCleanupMarksDecayedEntries(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	ctx := context.Background()
	// Explicit content decays at 0.30/day toward a 0.5 floor; ten untouched
	// days puts retention at e^-3, far below the threshold.
	decayed := f.seed(t, "alice", model.NamespaceExplicit, "old secret")
	fresh := f.seed(t, "alice", model.NamespaceInteractions, "new note")

	f.advance(10 * 24 * time.Hour)
	result, err := sweeper.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.Marked != 1 {
		t.Fatalf("expected 1 entry marked, got %+v", result)
	}
	if result.ByNamespace[model.NamespaceExplicit] != 1 {
		t.Fatalf("expected explicit entry marked, got %v", result.ByNamespace)
	}
	if _, err := f.store.Get(ctx, decayed); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("marked entry should be hidden, got %v", err)
	}
	if _, err := f.store.Get(ctx, fresh); err != nil {
		t.Fatalf("interactions entry aged 10 days should survive: %v", err)
	}
}

func TestPurgeWaitsForGraceWindow(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	ctx := context.Background()
	decayed := f.seed(t, "alice", model.NamespaceExplicit, "old secret")

	f.advance(10 * 24 * time.Hour)
	if _, err := sweeper.CleanupExpired(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// Inside the 7-day grace window nothing is purged yet.
	purged, err := sweeper.PurgeMarked(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Fatalf("expected no purge inside grace window, got %d", purged)
	}

	f.advance(8 * 24 * time.Hour)
	purged, err = sweeper.PurgeMarked(ctx)
	if err != nil {
		t.Fatalf("purge after grace: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 entry purged, got %d", purged)
	}
	if _, err := f.store.Backend().GetEntry(ctx, decayed); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected entry physically gone, got %v", err)
	}
}

func TestAccessDuringGraceRescuesEntry(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	ctx := context.Background()
	decayed := f.seed(t, "alice", model.NamespaceExplicit, "still relevant")

	f.advance(10 * 24 * time.Hour)
	if _, err := sweeper.CleanupExpired(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := f.store.RefreshOnAccess(ctx, decayed, "alice"); err != nil {
		t.Fatalf("refresh during grace window: %v", err)
	}

	f.advance(8 * 24 * time.Hour)
	purged, err := sweeper.PurgeMarked(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Fatalf("rescued entry must not be purged, got %d", purged)
	}
	if _, err := f.store.Get(ctx, decayed); err != nil {
		t.Fatalf("rescued entry should be readable: %v", err)
	}
}

func TestSweepEmitsMaintenanceAudit(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", model.NamespaceExplicit, "old secret")

	f.advance(10 * 24 * time.Hour)
	if _, err := sweeper.CleanupExpired(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	var swept bool
	for _, ev := range f.sink.Events() {
		if ev.Category == audit.CategoryMaintenance && ev.Action == audit.ActionSwept {
			swept = true
		}
	}
	if !swept {
		t.Fatal("expected a maintenance/swept audit event")
	}
}

func TestCleanupScansInBatches(t *testing.T) {
	f := newFixture(t)
	sweeper := NewSweeper(f.store, SweeperOptions{
		BatchSize: 2,
		Clock:     func() time.Time { return *f.now },
		Logger:    log.New(io.Discard, "", 0),
		Audit:     f.sink,
	})
	ctx := context.Background()
	for _, content := range []string{"a", "b", "c", "d", "e"} {
		f.seed(t, "alice", model.NamespaceExplicit, content)
	}
	f.advance(10 * 24 * time.Hour)
	result, err := sweeper.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.Marked != 5 {
		t.Fatalf("expected all 5 entries marked across batches, got %+v", result)
	}
	// The marked entries mature together and purge in batched rounds too.
	f.advance(8 * 24 * time.Hour)
	purged, err := sweeper.PurgeMarked(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 5 {
		t.Fatalf("expected 5 purged, got %d", purged)
	}
}
