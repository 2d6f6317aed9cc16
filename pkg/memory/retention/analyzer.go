package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
	"github.com/Protocol-Lattice/engram/pkg/memory/store"
)

// VectorAnalysis is the retention report for a single entry.
type VectorAnalysis struct {
	ID                  int64           `json:"id"`
	Namespace           model.Namespace `json:"namespace"`
	Retention           float64         `json:"retention"`
	Recommendation      Recommendation  `json:"recommendation"`
	DaysSinceAccess     float64         `json:"days_since_access"`
	DaysUntilExpiration float64         `json:"days_until_expiration"`
	AccessCount         int             `json:"access_count"`
}

// UserAnalysis aggregates retention over one namespace of a user.
type UserAnalysis struct {
	Count        int     `json:"count"`
	AvgRetention float64 `json:"avg_retention"`
	Keep         int     `json:"keep"`
	Archive      int     `json:"archive"`
	Delete       int     `json:"delete"`
}

// Analyzer answers retention questions over stored entries. The math stays in
// the pure functions; this type only bridges to the store.
type Analyzer struct {
	store  *store.VectorStore
	curves map[model.Namespace]CurveParams
	clock  func() time.Time
}

// NewAnalyzer builds an analyzer over the store. A nil curves map uses the
// deployed defaults; a nil clock uses wall time.
func NewAnalyzer(vs *store.VectorStore, curves map[model.Namespace]CurveParams, clock func() time.Time) *Analyzer {
	if curves == nil {
		curves = DefaultCurves()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Analyzer{store: vs, curves: curves, clock: clock}
}

// AnalyzeVector scores a single entry the caller owns.
func (a *Analyzer) AnalyzeVector(ctx context.Context, id int64, userID string) (VectorAnalysis, error) {
	entry, err := a.store.Get(ctx, id)
	if err != nil {
		return VectorAnalysis{}, err
	}
	if entry.UserID != userID {
		return VectorAnalysis{}, fmt.Errorf("analyze entry %d: %w", id, model.ErrUnauthorized)
	}
	now := a.clock().UTC()
	params := CurveFor(a.curves, entry.Namespace)
	retention := Score(entry.LastAccessedAt, entry.AccessCount, params, now)
	return VectorAnalysis{
		ID:                  entry.ID,
		Namespace:           entry.Namespace,
		Retention:           retention,
		Recommendation:      Recommend(retention, params),
		DaysSinceAccess:     now.Sub(entry.LastAccessedAt).Hours() / 24,
		DaysUntilExpiration: DaysUntilExpiration(entry.LastAccessedAt, entry.AccessCount, params, now),
		AccessCount:         entry.AccessCount,
	}, nil
}

// AnalyzeUser scores every live entry a user owns, aggregated per namespace.
func (a *Analyzer) AnalyzeUser(ctx context.Context, userID string) (map[model.Namespace]UserAnalysis, error) {
	now := a.clock().UTC()
	out := make(map[model.Namespace]UserAnalysis, len(model.AllNamespaces()))
	for _, ns := range model.AllNamespaces() {
		entries, err := a.store.EntriesInWindow(ctx, userID, ns, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		params := CurveFor(a.curves, ns)
		analysis := UserAnalysis{Count: len(entries)}
		var sum float64
		for _, entry := range entries {
			retention := Score(entry.LastAccessedAt, entry.AccessCount, params, now)
			sum += retention
			switch Recommend(retention, params) {
			case RecommendKeep:
				analysis.Keep++
			case RecommendArchive:
				analysis.Archive++
			case RecommendDelete:
				analysis.Delete++
			}
		}
		if analysis.Count > 0 {
			analysis.AvgRetention = sum / float64(analysis.Count)
		}
		out[ns] = analysis
	}
	return out, nil
}
