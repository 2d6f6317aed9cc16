package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
	"github.com/Protocol-Lattice/engram/pkg/memory/namespace"
)

const defaultConfidence = 0.5

// Options configures the vector store component.
type Options struct {
	Clock  func() time.Time
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "vector-store: ", log.LstdFlags)
	}
	return o
}

// VectorStore enforces validation, deduplication, confidence blending and
// ownership checks over a Backend. Every operation is a self-contained
// read-compute-write; concurrent upserts of the same content hash race on the
// confidence blend, which is accepted (the blend is approximate by nature).
type VectorStore struct {
	backend  Backend
	registry *namespace.Registry
	clock    func() time.Time
	logger   *log.Logger
	metrics  *Metrics
}

// NewVectorStore builds a store over the given backend and policy registry.
func NewVectorStore(backend Backend, registry *namespace.Registry, opts Options) *VectorStore {
	opts = opts.withDefaults()
	return &VectorStore{
		backend:  backend,
		registry: registry,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  &Metrics{},
	}
}

// Backend exposes the underlying substrate for collaborators that share it
// (the deletion pipeline stores its requests next to the entries).
func (vs *VectorStore) Backend() Backend { return vs.backend }

// MetricsSnapshot returns a copy of the runtime counters.
func (vs *VectorStore) MetricsSnapshot() MetricsSnapshot { return vs.metrics.Snapshot() }

// UpsertParams carries one upsert. A nil Confidence means the default 0.5 for
// new entries.
type UpsertParams struct {
	UserID     string
	Namespace  model.Namespace
	Embedding  []float32
	Content    string
	Metadata   model.EntryMetadata
	Confidence *float64
}

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	ID         int64
	IsNew      bool
	Confidence float64
}

// Upsert validates and stores an entry, deduplicating on the
// (user, namespace, content hash) triple. Repeat observation of the same
// content blends confidence upward: min(1, (old+new)/2 + 0.1).
func (vs *VectorStore) Upsert(ctx context.Context, p UpsertParams) (UpsertResult, error) {
	cfg, err := vs.registry.Resolve(p.Namespace)
	if err != nil {
		vs.metrics.IncRejected()
		return UpsertResult{}, err
	}
	if len(p.Embedding) != model.EmbeddingDim {
		vs.metrics.IncRejected()
		return UpsertResult{}, fmt.Errorf("%w: got %d, want %d",
			model.ErrInvalidDimension, len(p.Embedding), model.EmbeddingDim)
	}
	now := vs.clock().UTC()
	hash := model.HashContent(p.Content)
	supplied := defaultConfidence
	if p.Confidence != nil {
		supplied = clamp(*p.Confidence, 0, 1)
	}

	existing, err := vs.backend.ScanEntries(ctx, EntryQuery{
		UserID:      p.UserID,
		Namespace:   p.Namespace,
		ContentHash: hash,
		Limit:       1,
	})
	if err != nil {
		return UpsertResult{}, err
	}
	if len(existing) > 0 {
		entry := existing[0]
		entry.Embedding = append([]float32(nil), p.Embedding...)
		entry.Metadata = p.Metadata
		entry.AccessCount++
		entry.LastAccessedAt = now
		entry.Confidence = clamp((entry.Confidence+supplied)/2+0.1, 0, 1)
		// Re-observing marked content rescues it, same as an access.
		entry.MarkedForDeletion = false
		entry.ScheduledDeletionAt = time.Time{}
		if _, err := vs.backend.PutEntry(ctx, entry); err != nil {
			return UpsertResult{}, err
		}
		vs.metrics.IncReinforced()
		return UpsertResult{ID: entry.ID, IsNew: false, Confidence: entry.Confidence}, nil
	}

	if cfg.MaxVectors > 0 {
		count, err := vs.backend.CountEntries(ctx, p.UserID, p.Namespace)
		if err != nil {
			return UpsertResult{}, err
		}
		if count >= cfg.MaxVectors {
			vs.metrics.IncRejected()
			return UpsertResult{}, fmt.Errorf("%w: namespace %q holds %d of %d",
				model.ErrQuotaExceeded, p.Namespace, count, cfg.MaxVectors)
		}
	}
	entry := model.VectorEntry{
		UserID:         p.UserID,
		Namespace:      p.Namespace,
		Embedding:      append([]float32(nil), p.Embedding...),
		Content:        p.Content,
		ContentHash:    hash,
		Metadata:       p.Metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		Confidence:     supplied,
	}
	stored, err := vs.backend.PutEntry(ctx, entry)
	if err != nil {
		return UpsertResult{}, err
	}
	vs.metrics.IncInserted()
	return UpsertResult{ID: stored.ID, IsNew: true, Confidence: stored.Confidence}, nil
}

// BatchResult is the outcome of one item in a batch upsert.
type BatchResult struct {
	Index  int
	Result UpsertResult
	Err    error
}

// BatchUpsert applies upserts sequentially. One item's failure is recorded in
// its slot and does not abort or roll back siblings.
func (vs *VectorStore) BatchUpsert(ctx context.Context, params []UpsertParams) []BatchResult {
	results := make([]BatchResult, len(params))
	for i, p := range params {
		res, err := vs.Upsert(ctx, p)
		results[i] = BatchResult{Index: i, Result: res, Err: err}
		if err != nil {
			vs.logf("batch upsert item %d: %v", i, err)
		}
	}
	return results
}

// Get returns an entry by id. Soft-marked entries are hidden from normal
// reads and report not found.
func (vs *VectorStore) Get(ctx context.Context, id int64) (model.VectorEntry, error) {
	entry, err := vs.backend.GetEntry(ctx, id)
	if err != nil {
		return model.VectorEntry{}, err
	}
	if entry.MarkedForDeletion {
		return model.VectorEntry{}, fmt.Errorf("entry %d: %w", id, model.ErrNotFound)
	}
	return entry, nil
}

// Delete hard-deletes an entry after an ownership check. Marked entries are
// still deletable by their owner.
func (vs *VectorStore) Delete(ctx context.Context, id int64, userID string) error {
	entry, err := vs.backend.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return fmt.Errorf("delete entry %d: %w", id, model.ErrUnauthorized)
	}
	n, err := vs.backend.DeleteEntries(ctx, []int64{id})
	if err != nil {
		return err
	}
	vs.metrics.IncHardDeleted(n)
	return nil
}

// ScheduleDeletion soft-marks an entry for deletion after the given delay.
// The entry disappears from normal reads immediately but is only purged once
// the deadline matures, leaving a grace window for access-based rescue.
func (vs *VectorStore) ScheduleDeletion(ctx context.Context, id int64, userID string, delay time.Duration) (time.Time, error) {
	entry, err := vs.backend.GetEntry(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if entry.UserID != userID {
		return time.Time{}, fmt.Errorf("schedule deletion of entry %d: %w", id, model.ErrUnauthorized)
	}
	at := vs.clock().UTC().Add(delay)
	entry.MarkedForDeletion = true
	entry.ScheduledDeletionAt = at
	if _, err := vs.backend.PutEntry(ctx, entry); err != nil {
		return time.Time{}, err
	}
	vs.metrics.IncSoftMarked()
	return at, nil
}

// RefreshOnAccess records a read/use of the entry: access stats are bumped,
// confidence is nudged up by 0.05, and any pending soft-deletion mark is
// cleared — an access rescues a decaying entry.
func (vs *VectorStore) RefreshOnAccess(ctx context.Context, id int64, userID string) (model.VectorEntry, error) {
	entry, err := vs.backend.GetEntry(ctx, id)
	if err != nil {
		return model.VectorEntry{}, err
	}
	if entry.UserID != userID {
		return model.VectorEntry{}, fmt.Errorf("refresh entry %d: %w", id, model.ErrUnauthorized)
	}
	entry.AccessCount++
	entry.LastAccessedAt = vs.clock().UTC()
	entry.Confidence = clamp(entry.Confidence+0.05, 0, 1)
	entry.MarkedForDeletion = false
	entry.ScheduledDeletionAt = time.Time{}
	stored, err := vs.backend.PutEntry(ctx, entry)
	if err != nil {
		return model.VectorEntry{}, err
	}
	vs.metrics.IncRefreshed()
	return stored, nil
}

// Page is one page of a namespace listing, ordered by insertion order.
// NextCursor is the last returned id; zero when the page is empty.
type Page struct {
	Entries    []model.VectorEntry
	NextCursor int64
}

// ListByNamespace returns the user's live entries in a namespace, excluding
// soft-marked ones, paginated by id cursor.
func (vs *VectorStore) ListByNamespace(ctx context.Context, userID string, ns model.Namespace, limit int, cursor int64) (Page, error) {
	if _, err := vs.registry.Resolve(ns); err != nil {
		return Page{}, err
	}
	entries, err := vs.backend.ScanEntries(ctx, EntryQuery{
		UserID:    userID,
		Namespace: ns,
		Marked:    MarkedFilter(false),
		AfterID:   cursor,
		Limit:     limit,
	})
	if err != nil {
		return Page{}, err
	}
	page := Page{Entries: entries}
	if len(entries) > 0 {
		page.NextCursor = entries[len(entries)-1].ID
	}
	return page, nil
}

// NamespaceStats aggregates a user's live entries in one namespace.
type NamespaceStats struct {
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Stats reports per-namespace counts and average confidence for a user's
// live entries.
func (vs *VectorStore) Stats(ctx context.Context, userID string) (map[model.Namespace]NamespaceStats, error) {
	out := make(map[model.Namespace]NamespaceStats, len(model.AllNamespaces()))
	for _, ns := range model.AllNamespaces() {
		entries, err := vs.backend.ScanEntries(ctx, EntryQuery{
			UserID:    userID,
			Namespace: ns,
			Marked:    MarkedFilter(false),
		})
		if err != nil {
			return nil, err
		}
		stats := NamespaceStats{Count: len(entries)}
		if len(entries) > 0 {
			var sum float64
			for _, entry := range entries {
				sum += entry.Confidence
			}
			stats.AvgConfidence = sum / float64(len(entries))
		}
		out[ns] = stats
	}
	return out, nil
}

// EntriesInWindow returns a user's live entries in a namespace created within
// [from, to], for the read-only analytics paths.
func (vs *VectorStore) EntriesInWindow(ctx context.Context, userID string, ns model.Namespace, from, to time.Time) ([]model.VectorEntry, error) {
	if _, err := vs.registry.Resolve(ns); err != nil {
		return nil, err
	}
	return vs.backend.ScanEntries(ctx, EntryQuery{
		UserID:        userID,
		Namespace:     ns,
		Marked:        MarkedFilter(false),
		CreatedAfter:  from,
		CreatedBefore: to,
	})
}

// PurgeUserNamespace hard-deletes every entry (marked or not) a user owns in
// a namespace, in bounded batches. Returns the number deleted.
func (vs *VectorStore) PurgeUserNamespace(ctx context.Context, userID string, ns model.Namespace, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	total := 0
	for {
		entries, err := vs.backend.ScanEntries(ctx, EntryQuery{
			UserID:    userID,
			Namespace: ns,
			Limit:     batchSize,
		})
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			return total, nil
		}
		ids := make([]int64, len(entries))
		for i, entry := range entries {
			ids[i] = entry.ID
		}
		n, err := vs.backend.DeleteEntries(ctx, ids)
		total += n
		vs.metrics.IncHardDeleted(n)
		if err != nil {
			return total, err
		}
	}
}

// HardDelete removes entries by id without ownership checks; reserved for the
// maintenance sweeps that already validated their candidates.
func (vs *VectorStore) HardDelete(ctx context.Context, ids []int64) (int, error) {
	n, err := vs.backend.DeleteEntries(ctx, ids)
	vs.metrics.IncHardDeleted(n)
	return n, err
}

func (vs *VectorStore) logf(format string, args ...any) {
	if vs.logger != nil {
		vs.logger.Printf(format, args...)
	}
}

func clamp(val, minVal, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
