package deletion

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/audit"
	"github.com/Protocol-Lattice/engram/pkg/memory/model"
	"github.com/Protocol-Lattice/engram/pkg/memory/retention"
	"github.com/Protocol-Lattice/engram/pkg/memory/store"
)

// SweeperOptions configures the retention sweeps.
type SweeperOptions struct {
	// PurgeGrace is how long a swept entry stays soft-marked before the
	// purge pass may remove it. Re-access during this window rescues it.
	PurgeGrace time.Duration
	// BatchSize bounds each scan and delete round.
	BatchSize int
	Curves    map[model.Namespace]retention.CurveParams
	Clock     func() time.Time
	Logger    *log.Logger
	Audit     audit.Sink
}

func (o SweeperOptions) withDefaults() SweeperOptions {
	if o.PurgeGrace == 0 {
		o.PurgeGrace = 7 * 24 * time.Hour
	}
	if o.BatchSize == 0 {
		o.BatchSize = 100
	}
	if o.Curves == nil {
		o.Curves = retention.DefaultCurves()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "deletion-sweeper: ", log.LstdFlags)
	}
	if o.Audit == nil {
		o.Audit = audit.LogSink{Logger: o.Logger}
	}
	return o
}

// Sweeper runs the periodic forgetting passes: CleanupExpired soft-marks
// entries whose retention fell to the namespace floor, and PurgeMarked
// removes marked entries whose grace window elapsed. Two separate passes so
// a sweep is never a point of no return.
type Sweeper struct {
	store   *store.VectorStore
	backend store.Backend
	opts    SweeperOptions
}

// NewSweeper builds a sweeper over the store.
func NewSweeper(vs *store.VectorStore, opts SweeperOptions) *Sweeper {
	return &Sweeper{store: vs, backend: vs.Backend(), opts: opts.withDefaults()}
}

// CleanupResult reports one CleanupExpired pass.
type CleanupResult struct {
	Scanned     int                     `json:"scanned"`
	Marked      int                     `json:"marked"`
	ByNamespace map[model.Namespace]int `json:"by_namespace"`
}

// CleanupExpired scans live entries across all users and soft-marks every one
// whose retention score has reached its namespace deletion threshold. Marked
// entries disappear from reads immediately but are only purged after the
// grace window.
func (s *Sweeper) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	now := s.opts.Clock().UTC()
	result := CleanupResult{ByNamespace: make(map[model.Namespace]int)}
	for _, ns := range model.AllNamespaces() {
		params := retention.CurveFor(s.opts.Curves, ns)
		var cursor int64
		for {
			entries, err := s.backend.ScanEntries(ctx, store.EntryQuery{
				Namespace: ns,
				Marked:    store.MarkedFilter(false),
				AfterID:   cursor,
				Limit:     s.opts.BatchSize,
			})
			if err != nil {
				return result, err
			}
			if len(entries) == 0 {
				break
			}
			for _, entry := range entries {
				cursor = entry.ID
				result.Scanned++
				score := retention.Score(entry.LastAccessedAt, entry.AccessCount, params, now)
				if score > params.MinRetention {
					continue
				}
				if _, err := s.store.ScheduleDeletion(ctx, entry.ID, entry.UserID, s.opts.PurgeGrace); err != nil {
					s.opts.Logger.Printf("mark entry %d: %v", entry.ID, err)
					continue
				}
				result.Marked++
				result.ByNamespace[ns]++
			}
			if len(entries) < s.opts.BatchSize {
				break
			}
		}
	}
	s.emit(ctx, audit.ActionSwept, map[string]any{
		"scanned": result.Scanned,
		"marked":  result.Marked,
	})
	return result, nil
}

// PurgeMarked hard-deletes marked entries whose scheduled deletion time has
// passed. Returns the number of entries removed.
func (s *Sweeper) PurgeMarked(ctx context.Context) (int, error) {
	now := s.opts.Clock().UTC()
	total := 0
	for {
		entries, err := s.backend.ScanEntries(ctx, store.EntryQuery{
			Marked:    store.MarkedFilter(true),
			DueBefore: now,
			Limit:     s.opts.BatchSize,
		})
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			break
		}
		ids := make([]int64, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		n, err := s.store.HardDelete(ctx, ids)
		total += n
		if err != nil {
			return total, err
		}
		if len(entries) < s.opts.BatchSize {
			break
		}
	}
	if total > 0 {
		s.emit(ctx, audit.ActionPurged, map[string]any{"purged": total})
	}
	return total, nil
}

func (s *Sweeper) emit(ctx context.Context, action audit.Action, metadata map[string]any) {
	ev := audit.Event{
		Category:  audit.CategoryMaintenance,
		Action:    action,
		Actor:     "sweeper",
		Metadata:  metadata,
		Timestamp: s.opts.Clock().UTC(),
	}
	if err := s.opts.Audit.Emit(ctx, ev); err != nil {
		s.opts.Logger.Printf("emit audit event: %v", err)
	}
}
