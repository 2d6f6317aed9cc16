package store

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
	"github.com/Protocol-Lattice/engram/pkg/memory/namespace"
)

func testVector(seed float32) []float32 {
	vec := make([]float32, model.EmbeddingDim)
	vec[0] = seed
	vec[1] = 1
	return vec
}

func newTestStore(t *testing.T, now *time.Time) *VectorStore {
	t.Helper()
	registry, err := namespace.NewRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return NewVectorStore(NewInMemoryBackend(), registry, Options{
		Clock:  func() time.Time { return *now },
		Logger: log.New(io.Discard, "", 0),
	})
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	_, err := vs.Upsert(context.Background(), UpsertParams{
		UserID:    "alice",
		Namespace: model.NamespaceInteractions,
		Embedding: []float32{1, 2, 3},
		Content:   "short vector",
	})
	if !errors.Is(err, model.ErrInvalidDimension) {
		t.Fatalf("expected ErrInvalidDimension, got %v", err)
	}
	if vs.MetricsSnapshot().Rejected != 1 {
		t.Fatalf("expected 1 rejection recorded, got %d", vs.MetricsSnapshot().Rejected)
	}
}

func TestUpsertRejectsUnknownNamespace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	_, err := vs.Upsert(context.Background(), UpsertParams{
		UserID:    "alice",
		Namespace: "bogus",
		Embedding: testVector(1),
		Content:   "anything",
	})
	if !errors.Is(err, model.ErrInvalidNamespace) {
		t.Fatalf("expected ErrInvalidNamespace, got %v", err)
	}
}

func TestUpsertDeduplicatesAndBlendsConfidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	params := UpsertParams{
		UserID:    "alice",
		Namespace: model.NamespaceInteractions,
		Embedding: testVector(1),
		Content:   "the user likes espresso",
	}
	first, err := vs.Upsert(ctx, params)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !first.IsNew || first.Confidence != 0.5 {
		t.Fatalf("unexpected first result %+v", first)
	}

	now = now.Add(time.Hour)
	second, err := vs.Upsert(ctx, params)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.IsNew {
		t.Fatal("repeat content should not create a new entry")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same entry, got %d then %d", first.ID, second.ID)
	}
	// Blend of two defaults: (0.5+0.5)/2 + 0.1.
	if math.Abs(second.Confidence-0.6) > 1e-9 {
		t.Fatalf("expected confidence 0.6, got %f", second.Confidence)
	}

	entry, err := vs.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", entry.AccessCount)
	}
	if !entry.LastAccessedAt.Equal(now) {
		t.Fatalf("expected last access bumped to %v, got %v", now, entry.LastAccessedAt)
	}
}

func TestConfidenceStaysInRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	high := 1.0
	params := UpsertParams{
		UserID:     "alice",
		Namespace:  model.NamespaceInteractions,
		Embedding:  testVector(1),
		Content:    "repeated observation",
		Confidence: &high,
	}
	var last UpsertResult
	for i := 0; i < 10; i++ {
		res, err := vs.Upsert(ctx, params)
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Fatalf("confidence out of range after %d upserts: %f", i+1, res.Confidence)
		}
		last = res
	}
	if last.Confidence != 1 {
		t.Fatalf("expected confidence saturated at 1, got %f", last.Confidence)
	}
}

func TestQuotaEnforcedOnNewEntriesOnly(t *testing.T) {
	registry, err := namespace.NewRegistryWithConfigs([]namespace.Config{{
		Namespace:      model.NamespaceInteractions,
		MaxVectors:     2,
		IsolationLevel: namespace.IsolationStandard,
	}})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := NewVectorStore(NewInMemoryBackend(), registry, Options{
		Clock:  func() time.Time { return now },
		Logger: log.New(io.Discard, "", 0),
	})
	ctx := context.Background()
	upsert := func(content string) error {
		_, err := vs.Upsert(ctx, UpsertParams{
			UserID:    "alice",
			Namespace: model.NamespaceInteractions,
			Embedding: testVector(1),
			Content:   content,
		})
		return err
	}
	if err := upsert("first"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := upsert("second"); err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if err := upsert("third"); !errors.Is(err, model.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	// Reinforcing existing content is not admission and passes at quota.
	if err := upsert("first"); err != nil {
		t.Fatalf("reinforcement at quota: %v", err)
	}
}

func TestGetHidesMarkedEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	res, err := vs.Upsert(ctx, UpsertParams{
		UserID:    "alice",
		Namespace: model.NamespaceInteractions,
		Embedding: testVector(1),
		Content:   "ephemeral",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := vs.ScheduleDeletion(ctx, res.ID, "alice", 24*time.Hour); err != nil {
		t.Fatalf("schedule deletion: %v", err)
	}
	if _, err := vs.Get(ctx, res.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected marked entry hidden, got %v", err)
	}
}

func TestRefreshRescuesMarkedEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	res, err := vs.Upsert(ctx, UpsertParams{
		UserID:    "alice",
		Namespace: model.NamespaceInteractions,
		Embedding: testVector(1),
		Content:   "worth keeping",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := vs.ScheduleDeletion(ctx, res.ID, "alice", 24*time.Hour); err != nil {
		t.Fatalf("schedule deletion: %v", err)
	}
	entry, err := vs.RefreshOnAccess(ctx, res.ID, "alice")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if entry.MarkedForDeletion || !entry.ScheduledDeletionAt.IsZero() {
		t.Fatalf("expected mark cleared, got %+v", entry)
	}
	if entry.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", entry.AccessCount)
	}
	if math.Abs(entry.Confidence-0.55) > 1e-9 {
		t.Fatalf("expected confidence nudged to 0.55, got %f", entry.Confidence)
	}
	if _, err := vs.Get(ctx, res.ID); err != nil {
		t.Fatalf("rescued entry should be visible again: %v", err)
	}
}

func TestOwnershipChecks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	res, err := vs.Upsert(ctx, UpsertParams{
		UserID:    "alice",
		Namespace: model.NamespaceInteractions,
		Embedding: testVector(1),
		Content:   "private",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := vs.Delete(ctx, res.ID, "mallory"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on delete, got %v", err)
	}
	if _, err := vs.RefreshOnAccess(ctx, res.ID, "mallory"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on refresh, got %v", err)
	}
	if _, err := vs.ScheduleDeletion(ctx, res.ID, "mallory", time.Hour); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on schedule, got %v", err)
	}
}

func TestListByNamespacePaginates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	contents := []string{"one", "two", "three", "four", "five"}
	for i, content := range contents {
		if _, err := vs.Upsert(ctx, UpsertParams{
			UserID:    "alice",
			Namespace: model.NamespaceInteractions,
			Embedding: testVector(float32(i + 1)),
			Content:   content,
		}); err != nil {
			t.Fatalf("upsert %q: %v", content, err)
		}
	}

	var seen []string
	var cursor int64
	for {
		page, err := vs.ListByNamespace(ctx, "alice", model.NamespaceInteractions, 2, cursor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page.Entries) == 0 {
			break
		}
		for _, entry := range page.Entries {
			seen = append(seen, entry.Content)
		}
		cursor = page.NextCursor
	}
	if len(seen) != len(contents) {
		t.Fatalf("expected %d entries across pages, got %d", len(contents), len(seen))
	}
	for i, content := range contents {
		if seen[i] != content {
			t.Fatalf("expected insertion order, index %d is %q", i, seen[i])
		}
	}
}

func TestStatsPerNamespace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := vs.Upsert(ctx, UpsertParams{
			UserID:    "alice",
			Namespace: model.NamespaceInteractions,
			Embedding: testVector(float32(i + 1)),
			Content:   string(rune('a' + i)),
		}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	stats, err := vs.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[model.NamespaceInteractions].Count != 3 {
		t.Fatalf("expected 3 interactions, got %d", stats[model.NamespaceInteractions].Count)
	}
	if stats[model.NamespaceBrowsing].Count != 0 {
		t.Fatalf("expected empty browsing namespace, got %d", stats[model.NamespaceBrowsing].Count)
	}
	if math.Abs(stats[model.NamespaceInteractions].AvgConfidence-0.5) > 1e-9 {
		t.Fatalf("expected average confidence 0.5, got %f", stats[model.NamespaceInteractions].AvgConfidence)
	}
}

func TestPurgeUserNamespaceLeavesOthersAlone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	ctx := context.Background()
	for _, user := range []string{"alice", "bob"} {
		if _, err := vs.Upsert(ctx, UpsertParams{
			UserID:    user,
			Namespace: model.NamespaceInteractions,
			Embedding: testVector(1),
			Content:   "note from " + user,
		}); err != nil {
			t.Fatalf("upsert for %s: %v", user, err)
		}
	}
	deleted, err := vs.PurgeUserNamespace(ctx, "alice", model.NamespaceInteractions, 1)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	bobStats, err := vs.Stats(ctx, "bob")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if bobStats[model.NamespaceInteractions].Count != 1 {
		t.Fatal("purge of alice must not touch bob's entries")
	}
}

func TestBatchUpsertIsolatesFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vs := newTestStore(t, &now)
	results := vs.BatchUpsert(context.Background(), []UpsertParams{
		{UserID: "alice", Namespace: model.NamespaceInteractions, Embedding: testVector(1), Content: "good"},
		{UserID: "alice", Namespace: model.NamespaceInteractions, Embedding: []float32{1}, Content: "bad"},
		{UserID: "alice", Namespace: model.NamespaceInteractions, Embedding: testVector(2), Content: "also good"},
	})
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("valid items should succeed: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, model.ErrInvalidDimension) {
		t.Fatalf("expected dimension error in slot 1, got %v", results[1].Err)
	}
}
