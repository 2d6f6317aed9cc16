package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// SearchOptions tunes a time-weighted search.
type SearchOptions struct {
	// RecencyBias in [0,1] sets how much temporal alignment shifts the
	// similarity score. 0 is pure cosine ranking.
	RecencyBias float64
	// RecencyPeriod is the e-folding age of the recency component,
	// defaulting to a year when the caller has no window in mind.
	RecencyPeriod time.Duration
	// MinSimilarity discards candidates below this cosine similarity before
	// any temporal weighting.
	MinSimilarity float64
	Limit         int
	// UseTimeOfDay and UseDayOfWeek enable the cyclical components. A
	// disabled component's weight falls back to recency.
	UseTimeOfDay bool
	UseDayOfWeek bool
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.RecencyBias < 0 {
		o.RecencyBias = 0
	}
	if o.RecencyBias > 1 {
		o.RecencyBias = 1
	}
	if o.RecencyPeriod == 0 {
		o.RecencyPeriod = 365 * 24 * time.Hour
	}
	if o.Limit == 0 {
		o.Limit = 10
	}
	return o
}

// ScoredEntry is one search result with its score breakdown.
type ScoredEntry struct {
	Entry         model.VectorEntry `json:"entry"`
	Similarity    float64           `json:"similarity"`
	TemporalScore float64           `json:"temporal_score"`
	FinalScore    float64           `json:"final_score"`
}

// TimeWeightedSearch ranks a user's live entries in the given namespaces
// (all of them when none are listed) against the query vector, blending
// cosine similarity with temporal alignment:
//
//	final = base*(1-bias) + base*temporal*bias
//
// where temporal combines recency with optional time-of-day and day-of-week
// alignment to the current moment. With bias 0 this is plain similarity
// search; with bias 1 a maximally-aligned entry keeps its full base score and
// a misaligned one is scaled down toward zero.
func (a *Analytics) TimeWeightedSearch(ctx context.Context, userID string, namespaces []model.Namespace, query []float32, opts SearchOptions) ([]ScoredEntry, error) {
	opts = opts.withDefaults()
	if len(namespaces) == 0 {
		namespaces = model.AllNamespaces()
	}
	now := a.clock().UTC()
	var scored []ScoredEntry
	for _, ns := range namespaces {
		entries, err := a.store.EntriesInWindow(ctx, userID, ns, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			base, err := model.CosineSimilarity(query, entry.Embedding)
			if err != nil {
				return nil, err
			}
			if base < opts.MinSimilarity {
				continue
			}
			temporal := temporalScore(entry, now, opts)
			final := base*(1-opts.RecencyBias) + base*temporal*opts.RecencyBias
			scored = append(scored, ScoredEntry{
				Entry:         entry,
				Similarity:    base,
				TemporalScore: temporal,
				FinalScore:    final,
			})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	return scored, nil
}

// temporalScore blends recency with the cyclical components. Recency carries
// half the weight; the cyclical quarters fall back to recency when disabled
// so the score stays comparable across configurations.
func temporalScore(entry model.VectorEntry, now time.Time, opts SearchOptions) float64 {
	recency := recencyScore(entry.CreatedAt, now, opts.RecencyPeriod)
	tod := recency
	if opts.UseTimeOfDay {
		tod = timeOfDayScore(entry.CreatedAt, now)
	}
	dow := recency
	if opts.UseDayOfWeek {
		dow = dayOfWeekScore(entry.CreatedAt, now)
	}
	return 0.5*recency + 0.25*tod + 0.25*dow
}

// recencyScore decays exponentially with age: 1 at creation, 1/e after one
// period.
func recencyScore(createdAt, now time.Time, period time.Duration) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Seconds() / period.Seconds())
}

// timeOfDayScore maps circular hour distance onto [0.5, 1]: same hour scores
// 1, the opposite side of the clock scores 0.5.
func timeOfDayScore(createdAt, now time.Time) float64 {
	dist := math.Abs(float64(createdAt.Hour() - now.Hour()))
	if dist > 12 {
		dist = 24 - dist
	}
	return 1 - (dist/12)*0.5
}

// dayOfWeekScore rewards entries from the same side of the weekday/weekend
// split as the current moment.
func dayOfWeekScore(createdAt, now time.Time) float64 {
	if isWeekend(createdAt.Weekday()) == isWeekend(now.Weekday()) {
		return 1.0
	}
	return 0.5
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
