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
	"github.com/Protocol-Lattice/engram/pkg/memory/namespace"
	"github.com/Protocol-Lattice/engram/pkg/memory/store"
)

type fixture struct {
	store    *store.VectorStore
	pipeline *Pipeline
	sink     *audit.MemorySink
	now      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry, err := namespace.NewRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	logger := log.New(io.Discard, "", 0)
	vs := store.NewVectorStore(store.NewInMemoryBackend(), registry, store.Options{Clock: clock, Logger: logger})
	sink := &audit.MemorySink{}
	pipeline := NewPipeline(vs, Options{Clock: clock, Logger: logger, Audit: sink})
	return &fixture{store: vs, pipeline: pipeline, sink: sink, now: &now}
}

func (f *fixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

func (f *fixture) seed(t *testing.T, userID string, ns model.Namespace, content string) int64 {
	t.Helper()
	vec := make([]float32, model.EmbeddingDim)
	vec[0] = 1
	res, err := f.store.Upsert(context.Background(), store.UpsertParams{
		UserID:    userID,
		Namespace: ns,
		Embedding: vec,
		Content:   content,
	})
	if err != nil {
		t.Fatalf("seed entry %q: %v", content, err)
	}
	return res.ID
}

func TestFullDeletionErasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", model.NamespaceBrowsing, "page one")
	f.seed(t, "alice", model.NamespaceBrowsing, "page two")
	f.seed(t, "alice", model.NamespaceBrowsing, "page three")
	f.seed(t, "alice", model.NamespacePreferences, "dark mode")
	f.seed(t, "alice", model.NamespacePreferences, "metric units")

	reqID, err := f.pipeline.RequestFull(ctx, "alice", true)
	if err != nil {
		t.Fatalf("request full deletion: %v", err)
	}
	result, err := f.pipeline.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if result.Processed != 1 || result.TotalDeleted != 5 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.ByNamespace[model.NamespaceBrowsing] != 3 || result.ByNamespace[model.NamespacePreferences] != 2 {
		t.Fatalf("unexpected per-namespace counts %v", result.ByNamespace)
	}

	stats, err := f.store.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for ns, s := range stats {
		if s.Count != 0 {
			t.Fatalf("namespace %q still holds %d entries", ns, s.Count)
		}
	}

	req, err := f.pipeline.Request(ctx, reqID, "alice")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if req.Status != model.StatusCompleted || req.ItemsDeleted != 5 {
		t.Fatalf("unexpected request state %+v", req)
	}
}

func TestNamespaceDeletionLeavesOtherNamespaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", model.NamespaceBrowsing, "page")
	keep := f.seed(t, "alice", model.NamespacePreferences, "dark mode")

	if _, err := f.pipeline.RequestNamespaces(ctx, "alice", []model.Namespace{model.NamespaceBrowsing}, true); err != nil {
		t.Fatalf("request namespace deletion: %v", err)
	}
	if _, err := f.pipeline.ProcessDue(ctx); err != nil {
		t.Fatalf("process due: %v", err)
	}
	if _, err := f.store.Get(ctx, keep); err != nil {
		t.Fatalf("preferences entry should survive: %v", err)
	}
	stats, err := f.store.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[model.NamespaceBrowsing].Count != 0 {
		t.Fatal("browsing entries should be gone")
	}
}

func TestSelectiveDeletionChecksOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.seed(t, "alice", model.NamespaceInteractions, "mine")
	other := f.seed(t, "bob", model.NamespaceInteractions, "not mine")

	reqID, err := f.pipeline.RequestSelective(ctx, "alice", []int64{mine, other, 9999})
	if err != nil {
		t.Fatalf("request selective deletion: %v", err)
	}
	if _, err := f.pipeline.ProcessDue(ctx); err != nil {
		t.Fatalf("process due: %v", err)
	}
	req, err := f.pipeline.Request(ctx, reqID, "alice")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if req.Status != model.StatusCompleted || req.ItemsDeleted != 1 {
		t.Fatalf("expected 1 item deleted, got %+v", req)
	}
	if _, err := f.store.Get(ctx, other); err != nil {
		t.Fatalf("bob's entry should survive: %v", err)
	}
}

func TestGracePeriodDefersProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", model.NamespaceBrowsing, "page")

	reqID, err := f.pipeline.RequestFull(ctx, "alice", false)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	result, err := f.pipeline.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("request inside grace period should not be processed, got %+v", result)
	}

	f.advance(31 * 24 * time.Hour)
	result, err = f.pipeline.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("process due after grace: %v", err)
	}
	if result.Processed != 1 || result.TotalDeleted != 1 {
		t.Fatalf("expected matured request processed, got %+v", result)
	}
	req, err := f.pipeline.Request(ctx, reqID, "alice")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if req.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", req.Status)
	}
}

func TestCancelOnlyPendingAndOnlyOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reqID, err := f.pipeline.RequestFull(ctx, "alice", false)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := f.pipeline.Cancel(ctx, reqID, "mallory"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.pipeline.Cancel(ctx, reqID, "alice"); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if err := f.pipeline.Cancel(ctx, reqID, "alice"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double cancel, got %v", err)
	}

	// A cancelled request is never picked up, even once matured.
	f.advance(40 * 24 * time.Hour)
	result, err := f.pipeline.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("cancelled request must stay terminal, got %+v", result)
	}
}

func TestAuditTrailCoversLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "alice", model.NamespaceBrowsing, "page")
	if _, err := f.pipeline.RequestFull(ctx, "alice", true); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.pipeline.ProcessDue(ctx); err != nil {
		t.Fatalf("process due: %v", err)
	}
	events := f.sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Action != audit.ActionRequested || events[1].Action != audit.ActionCompleted {
		t.Fatalf("unexpected audit actions %s, %s", events[0].Action, events[1].Action)
	}
	if events[0].Actor != "alice" {
		t.Fatalf("expected actor alice, got %s", events[0].Actor)
	}
}
