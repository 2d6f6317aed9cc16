// Package store provides the vector entry store: a small storage abstraction
// over a transactional backend plus the VectorStore component that enforces
// validation, deduplication and ownership on top of it.
package store

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// EntryQuery carries the predicates a backend must support: equality on
// owner, namespace, content hash and deletion mark, ranges on creation and
// scheduled-deletion timestamps, and id-cursor pagination. Results are always
// ordered by ascending id (insertion order).
type EntryQuery struct {
	UserID      string
	Namespace   model.Namespace // empty matches any namespace
	ContentHash string
	Marked      *bool // nil matches both marked and unmarked entries

	DueBefore     time.Time // scheduled_deletion_at <= DueBefore
	CreatedAfter  time.Time
	CreatedBefore time.Time

	AfterID int64 // cursor: only ids strictly greater
	Limit   int   // 0 means no limit
}

// RequestQuery selects deletion requests for the maintenance loop.
type RequestQuery struct {
	UserID    string
	Status    model.DeletionStatus
	DueBefore time.Time // scheduled_for <= DueBefore
	Limit     int
}

// Backend is the transactional substrate the store is written against. Each
// call is an independently-atomic read or write; implementations must be safe
// for concurrent use.
type Backend interface {
	// PutEntry inserts or replaces an entry. A zero ID means insert: the
	// backend assigns the next monotonic id and returns the stored entry.
	PutEntry(ctx context.Context, entry model.VectorEntry) (model.VectorEntry, error)
	GetEntry(ctx context.Context, id int64) (model.VectorEntry, error)
	DeleteEntries(ctx context.Context, ids []int64) (int, error)
	ScanEntries(ctx context.Context, q EntryQuery) ([]model.VectorEntry, error)
	CountEntries(ctx context.Context, userID string, ns model.Namespace) (int, error)

	PutRequest(ctx context.Context, req model.DeletionRequest) error
	GetRequest(ctx context.Context, id string) (model.DeletionRequest, error)
	ScanRequests(ctx context.Context, q RequestQuery) ([]model.DeletionRequest, error)
}

// SchemaInitializer is implemented by backends that bootstrap their own
// schema or indexes.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context) error
}

func matchesEntry(e model.VectorEntry, q EntryQuery) bool {
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.Namespace != "" && e.Namespace != q.Namespace {
		return false
	}
	if q.ContentHash != "" && e.ContentHash != q.ContentHash {
		return false
	}
	if q.Marked != nil && e.MarkedForDeletion != *q.Marked {
		return false
	}
	if !q.DueBefore.IsZero() {
		if e.ScheduledDeletionAt.IsZero() || e.ScheduledDeletionAt.After(q.DueBefore) {
			return false
		}
	}
	if !q.CreatedAfter.IsZero() && e.CreatedAt.Before(q.CreatedAfter) {
		return false
	}
	if !q.CreatedBefore.IsZero() && e.CreatedAt.After(q.CreatedBefore) {
		return false
	}
	if q.AfterID != 0 && e.ID <= q.AfterID {
		return false
	}
	return true
}

func matchesRequest(r model.DeletionRequest, q RequestQuery) bool {
	if q.UserID != "" && r.UserID != q.UserID {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if !q.DueBefore.IsZero() && r.ScheduledFor.After(q.DueBefore) {
		return false
	}
	return true
}

// MarkedFilter is a convenience for building EntryQuery.Marked values.
func MarkedFilter(v bool) *bool { return &v }
