// Package deletion implements the right-to-erasure pipeline: an asynchronous
// state machine over deletion requests plus the periodic retention sweeps.
// Requests move pending -> processing -> completed|failed; only a pending
// request can be cancelled, and terminal requests are never re-picked.
package deletion

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/engram/pkg/memory/audit"
	"github.com/Protocol-Lattice/engram/pkg/memory/model"
	"github.com/Protocol-Lattice/engram/pkg/memory/store"
)

// Options configures the pipeline.
type Options struct {
	// GracePeriod delays non-immediate requests so users can cancel.
	GracePeriod time.Duration
	// RequestBatch bounds how many due requests one ProcessDue run picks up.
	RequestBatch int
	// DeleteBatch bounds each per-namespace deletion round.
	DeleteBatch int
	Clock       func() time.Time
	Logger      *log.Logger
	Audit       audit.Sink
}

func (o Options) withDefaults() Options {
	if o.GracePeriod == 0 {
		o.GracePeriod = 30 * 24 * time.Hour
	}
	if o.RequestBatch == 0 {
		o.RequestBatch = 10
	}
	if o.DeleteBatch == 0 {
		o.DeleteBatch = 100
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "deletion-pipeline: ", log.LstdFlags)
	}
	if o.Audit == nil {
		o.Audit = audit.LogSink{Logger: o.Logger}
	}
	return o
}

// Pipeline schedules and executes erasure requests against the vector store.
type Pipeline struct {
	store   *store.VectorStore
	backend store.Backend
	opts    Options
}

// NewPipeline builds a pipeline sharing the store's backend for request
// persistence.
func NewPipeline(vs *store.VectorStore, opts Options) *Pipeline {
	return &Pipeline{store: vs, backend: vs.Backend(), opts: opts.withDefaults()}
}

// RequestFull schedules erasure of everything the user owns. Immediate
// requests become due now; otherwise the grace period applies.
func (p *Pipeline) RequestFull(ctx context.Context, userID string, immediate bool) (string, error) {
	return p.submit(ctx, userID, model.FullScope(), immediate)
}

// RequestNamespaces schedules erasure of the listed namespaces.
func (p *Pipeline) RequestNamespaces(ctx context.Context, userID string, namespaces []model.Namespace, immediate bool) (string, error) {
	if len(namespaces) == 0 {
		return "", fmt.Errorf("namespace deletion request without namespaces")
	}
	return p.submit(ctx, userID, model.NamespaceScope(namespaces...), immediate)
}

// RequestSelective schedules erasure of individual vectors. Selective
// requests are always due immediately.
func (p *Pipeline) RequestSelective(ctx context.Context, userID string, vectorIDs []int64) (string, error) {
	if len(vectorIDs) == 0 {
		return "", fmt.Errorf("selective deletion request without vector ids")
	}
	return p.submit(ctx, userID, model.SelectiveScope(vectorIDs...), true)
}

func (p *Pipeline) submit(ctx context.Context, userID string, scope model.DeletionScope, immediate bool) (string, error) {
	now := p.opts.Clock().UTC()
	scheduledFor := now
	if !immediate {
		scheduledFor = now.Add(p.opts.GracePeriod)
	}
	req := model.DeletionRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		Scope:        scope,
		RequestedAt:  now,
		ScheduledFor: scheduledFor,
		Status:       model.StatusPending,
	}
	if err := p.backend.PutRequest(ctx, req); err != nil {
		return "", err
	}
	p.emit(ctx, audit.ActionRequested, req, map[string]any{
		"type":          string(scope.Type),
		"scheduled_for": scheduledFor,
	})
	return req.ID, nil
}

// Cancel aborts a pending request. Only the owner may cancel, and only while
// the request has not started processing.
func (p *Pipeline) Cancel(ctx context.Context, requestID, userID string) error {
	req, err := p.backend.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.UserID != userID {
		return fmt.Errorf("cancel request %s: %w", requestID, model.ErrUnauthorized)
	}
	if !req.Status.CanTransitionTo(model.StatusCancelled) {
		return fmt.Errorf("cancel request %s in status %q: %w", requestID, req.Status, model.ErrInvalidTransition)
	}
	req.Status = model.StatusCancelled
	if err := p.backend.PutRequest(ctx, req); err != nil {
		return err
	}
	p.emit(ctx, audit.ActionCancelled, req, nil)
	return nil
}

// Request returns the current state of a deletion request for its owner.
func (p *Pipeline) Request(ctx context.Context, requestID, userID string) (model.DeletionRequest, error) {
	req, err := p.backend.GetRequest(ctx, requestID)
	if err != nil {
		return model.DeletionRequest{}, err
	}
	if req.UserID != userID {
		return model.DeletionRequest{}, fmt.Errorf("request %s: %w", requestID, model.ErrUnauthorized)
	}
	return req, nil
}

// Result summarizes one ProcessDue run.
type Result struct {
	Processed    int                     `json:"processed"`
	Failed       int                     `json:"failed"`
	TotalDeleted int                     `json:"total_deleted"`
	ByNamespace  map[model.Namespace]int `json:"by_namespace"`
	Duration     time.Duration           `json:"duration"`
}

// ProcessDue is the maintenance entry point: it picks up a bounded batch of
// due pending requests, executes each, and records the terminal status. One
// request's failure does not block the others. Failed requests are not
// retried automatically; callers resubmit if they choose to.
func (p *Pipeline) ProcessDue(ctx context.Context) (Result, error) {
	started := p.opts.Clock()
	now := started.UTC()
	result := Result{ByNamespace: make(map[model.Namespace]int)}
	due, err := p.backend.ScanRequests(ctx, store.RequestQuery{
		Status:    model.StatusPending,
		DueBefore: now,
		Limit:     p.opts.RequestBatch,
	})
	if err != nil {
		return result, err
	}
	for _, req := range due {
		if !req.Status.CanTransitionTo(model.StatusProcessing) {
			continue
		}
		req.Status = model.StatusProcessing
		if err := p.backend.PutRequest(ctx, req); err != nil {
			p.logf("mark request %s processing: %v", req.ID, err)
			continue
		}
		deleted, byNamespace, execErr := p.execute(ctx, req)
		result.Processed++
		result.TotalDeleted += deleted
		for ns, n := range byNamespace {
			result.ByNamespace[ns] += n
		}
		req.ItemsDeleted = deleted
		req.CompletedAt = p.opts.Clock().UTC()
		if execErr != nil {
			req.Status = model.StatusFailed
			req.Error = execErr.Error()
			result.Failed++
			p.logf("request %s failed: %v", req.ID, execErr)
		} else {
			req.Status = model.StatusCompleted
		}
		if err := p.backend.PutRequest(ctx, req); err != nil {
			p.logf("finalize request %s: %v", req.ID, err)
			continue
		}
		action := audit.ActionCompleted
		if execErr != nil {
			action = audit.ActionFailed
		}
		p.emit(ctx, action, req, map[string]any{"items_deleted": deleted})
	}
	result.Duration = p.opts.Clock().Sub(started)
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, req model.DeletionRequest) (int, map[model.Namespace]int, error) {
	byNamespace := make(map[model.Namespace]int)
	switch req.Scope.Type {
	case model.DeletionFull:
		total := 0
		for _, ns := range model.AllNamespaces() {
			n, err := p.store.PurgeUserNamespace(ctx, req.UserID, ns, p.opts.DeleteBatch)
			total += n
			byNamespace[ns] += n
			if err != nil {
				return total, byNamespace, fmt.Errorf("purge namespace %q: %w", ns, err)
			}
		}
		return total, byNamespace, nil
	case model.DeletionNamespace:
		total := 0
		for _, ns := range req.Scope.Namespaces {
			n, err := p.store.PurgeUserNamespace(ctx, req.UserID, ns, p.opts.DeleteBatch)
			total += n
			byNamespace[ns] += n
			if err != nil {
				return total, byNamespace, fmt.Errorf("purge namespace %q: %w", ns, err)
			}
		}
		return total, byNamespace, nil
	case model.DeletionSelective:
		total := 0
		for _, id := range req.Scope.VectorIDs {
			entry, err := p.backend.GetEntry(ctx, id)
			if err != nil {
				continue // already gone; selective deletes are idempotent
			}
			if entry.UserID != req.UserID {
				p.logf("request %s: skipping entry %d owned by another user", req.ID, id)
				continue
			}
			n, err := p.store.HardDelete(ctx, []int64{id})
			total += n
			byNamespace[entry.Namespace] += n
			if err != nil {
				return total, byNamespace, fmt.Errorf("delete entry %d: %w", id, err)
			}
		}
		return total, byNamespace, nil
	default:
		return 0, byNamespace, fmt.Errorf("unknown deletion type %q", req.Scope.Type)
	}
}

func (p *Pipeline) emit(ctx context.Context, action audit.Action, req model.DeletionRequest, metadata map[string]any) {
	ev := audit.Event{
		Category:  audit.CategoryDeletion,
		Action:    action,
		Actor:     req.UserID,
		Target:    req.ID,
		Metadata:  metadata,
		Timestamp: p.opts.Clock().UTC(),
	}
	if err := p.opts.Audit.Emit(ctx, ev); err != nil {
		p.logf("emit audit event: %v", err)
	}
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Printf(format, args...)
	}
}
