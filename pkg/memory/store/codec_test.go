package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 0, 3}
	parsed := parseVector(vectorLiteral(vec))
	require.Len(t, parsed, len(vec))
	for i := range vec {
		assert.InDelta(t, vec[i], parsed[i], 1e-6, "component %d", i)
	}
}

func TestParseVectorEmptyAndMalformed(t *testing.T) {
	assert.Nil(t, parseVector("[]"))
	assert.Nil(t, parseVector(""))
	// Malformed components are skipped rather than failing the row.
	assert.Equal(t, []float32{1, 3}, parseVector("[1, oops, 3]"))
}

func TestNullableTime(t *testing.T) {
	assert.Nil(t, nullableTime(time.Time{}))
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := nullableTime(ts)
	require.NotNil(t, got)
	assert.True(t, got.Equal(ts))
}

func TestMongoEntryDocumentRoundTrip(t *testing.T) {
	scheduled := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	entry := model.VectorEntry{
		ID:          42,
		UserID:      "alice",
		Namespace:   model.NamespaceVoice,
		Embedding:   []float32{0.25, -0.5, 1},
		Content:     "turn down the lights",
		ContentHash: model.HashContent("turn down the lights"),
		Metadata: model.EntryMetadata{
			ContentType: "voice_command",
			Tags:        []string{"home"},
			Sensitivity: model.SensitivityPersonal,
		},
		CreatedAt:           time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
		LastAccessedAt:      time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
		AccessCount:         3,
		Confidence:          0.7,
		MarkedForDeletion:   true,
		ScheduledDeletionAt: scheduled,
	}
	got := entryDocument(entry).toEntry()
	assert.Equal(t, entry, got)
}

func TestMongoEntryDocumentOmitsZeroDeletionTime(t *testing.T) {
	entry := model.VectorEntry{ID: 1, UserID: "alice", Namespace: model.NamespaceBrowsing}
	doc := entryDocument(entry)
	require.Nil(t, doc.ScheduledDeletionAt)
	assert.True(t, doc.toEntry().ScheduledDeletionAt.IsZero())
}

func TestMongoRequestDocumentRoundTrip(t *testing.T) {
	completed := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	req := model.DeletionRequest{
		ID:           "req-1",
		UserID:       "alice",
		Scope:        model.NamespaceScope(model.NamespaceBrowsing, model.NamespaceVoice),
		RequestedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ScheduledFor: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:       model.StatusCompleted,
		CompletedAt:  completed,
		ItemsDeleted: 7,
	}
	got := requestDocument(req).toRequest()
	assert.Equal(t, req, got)
}

func TestMongoRequestDocumentSelectiveScope(t *testing.T) {
	req := model.DeletionRequest{
		ID:           "req-2",
		UserID:       "bob",
		Scope:        model.SelectiveScope(3, 9),
		RequestedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ScheduledFor: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:       model.StatusPending,
	}
	got := requestDocument(req).toRequest()
	assert.Equal(t, model.DeletionSelective, got.Scope.Type)
	assert.Equal(t, []int64{3, 9}, got.Scope.VectorIDs)
	assert.Empty(t, got.Scope.Namespaces)
}
