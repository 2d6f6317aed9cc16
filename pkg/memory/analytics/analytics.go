// Package analytics provides the read-only temporal views over stored
// embeddings: time-weighted similarity search, session grouping, behavioral
// pattern detection and trend analysis. Nothing here mutates entries; access
// stats are only bumped by callers that act on a result.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
	"github.com/Protocol-Lattice/engram/pkg/memory/store"
)

// ErrInsufficientData is returned when a user has too few entries for a
// statistical read to mean anything.
var ErrInsufficientData = errors.New("insufficient data")

// Analytics answers temporal questions over the vector store.
type Analytics struct {
	store *store.VectorStore
	clock func() time.Time
}

// New builds the analytics layer. A nil clock uses wall time.
func New(vs *store.VectorStore, clock func() time.Time) *Analytics {
	if clock == nil {
		clock = time.Now
	}
	return &Analytics{store: vs, clock: clock}
}

// entriesInTrailingWindow fetches a user's live entries in a namespace
// created within the trailing window; a zero window means all history.
func (a *Analytics) entriesInTrailingWindow(ctx context.Context, userID string, ns model.Namespace, window time.Duration) ([]model.VectorEntry, error) {
	var from time.Time
	if window > 0 {
		from = a.clock().UTC().Add(-window)
	}
	return a.store.EntriesInWindow(ctx, userID, ns, from, time.Time{})
}
