package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// volatilityCV is the coefficient-of-variation threshold above which bucket
// counts read as volatile rather than trending.
const volatilityCV = 0.5

// slopeBand is the normalized per-bucket slope below which a fit counts as
// stable.
const slopeBand = 0.1

// BucketStats summarizes one time bucket of a trend window.
type BucketStats struct {
	Start         time.Time `json:"start"`
	Count         int       `json:"count"`
	AvgConfidence float64   `json:"avg_confidence"`
	TopTags       []string  `json:"top_tags,omitempty"`
}

// TrendReport is the outcome of AnalyzeTrends over one namespace window.
type TrendReport struct {
	Buckets         []BucketStats `json:"buckets"`
	Direction       string        `json:"direction"`
	Volatile        bool          `json:"volatile"`
	EmergingTopics  []string      `json:"emerging_topics,omitempty"`
	DecliningTopics []string      `json:"declining_topics,omitempty"`
}

// AnalyzeTrends buckets a user's entries over the trailing window and fits a
// line through the per-bucket counts. Direction comes from the fitted slope
// normalized by the mean count; highly dispersed counts are flagged volatile
// instead. Topic churn compares the tag sets of the older and newer halves of
// the window. Returns ErrInsufficientData when fewer than two buckets hold
// entries.
func (a *Analytics) AnalyzeTrends(ctx context.Context, userID string, ns model.Namespace, window, bucket time.Duration) (TrendReport, error) {
	if window <= 0 {
		window = 90 * 24 * time.Hour
	}
	if bucket <= 0 {
		bucket = 7 * 24 * time.Hour
	}
	now := a.clock().UTC()
	from := now.Add(-window)
	entries, err := a.store.EntriesInWindow(ctx, userID, ns, from, now)
	if err != nil {
		return TrendReport{}, err
	}

	numBuckets := int(window / bucket)
	if window%bucket != 0 {
		numBuckets++
	}
	buckets := make([]BucketStats, numBuckets)
	sums := make([]float64, numBuckets)
	tagCounts := make([]map[string]int, numBuckets)
	for i := range buckets {
		buckets[i].Start = from.Add(time.Duration(i) * bucket)
		tagCounts[i] = make(map[string]int)
	}
	for _, entry := range entries {
		i := int(entry.CreatedAt.Sub(from) / bucket)
		if i < 0 || i >= numBuckets {
			continue
		}
		buckets[i].Count++
		sums[i] += entry.Confidence
		for _, tag := range entry.Metadata.Tags {
			tagCounts[i][tag]++
		}
	}
	occupied := 0
	counts := make([]float64, numBuckets)
	for i := range buckets {
		counts[i] = float64(buckets[i].Count)
		if buckets[i].Count > 0 {
			occupied++
			buckets[i].AvgConfidence = sums[i] / float64(buckets[i].Count)
			buckets[i].TopTags = topTags(tagCounts[i], 5)
		}
	}
	if occupied < 2 {
		return TrendReport{Buckets: buckets}, ErrInsufficientData
	}

	direction, volatile := countTrend(counts)
	emerging, declining := topicChurn(tagCounts)
	return TrendReport{
		Buckets:         buckets,
		Direction:       direction,
		Volatile:        volatile,
		EmergingTopics:  emerging,
		DecliningTopics: declining,
	}, nil
}

// countTrend fits a regression line through the bucket counts and classifies
// the slope relative to the mean count per bucket.
func countTrend(counts []float64) (string, bool) {
	mean, err := stats.Mean(counts)
	if err != nil || mean == 0 {
		return TrendStable, false
	}
	stddev, err := stats.StandardDeviation(counts)
	if err != nil {
		return TrendStable, false
	}
	volatile := stddev/mean > volatilityCV

	series := make(stats.Series, len(counts))
	for i, c := range counts {
		series[i] = stats.Coordinate{X: float64(i), Y: c}
	}
	fitted, err := stats.LinearRegression(series)
	if err != nil || len(fitted) < 2 {
		return TrendStable, volatile
	}
	slope := (fitted[len(fitted)-1].Y - fitted[0].Y) / float64(len(fitted)-1)
	normalized := slope / mean
	switch {
	case normalized > slopeBand:
		return TrendIncreasing, volatile
	case normalized < -slopeBand:
		return TrendDeclining, volatile
	default:
		return TrendStable, volatile
	}
}

// topicChurn diffs the tag sets of the older and newer halves of the window.
func topicChurn(tagCounts []map[string]int) (emerging, declining []string) {
	half := len(tagCounts) / 2
	older := mergeTags(tagCounts[:half])
	newer := mergeTags(tagCounts[half:])
	for tag := range newer {
		if _, ok := older[tag]; !ok {
			emerging = append(emerging, tag)
		}
	}
	for tag := range older {
		if _, ok := newer[tag]; !ok {
			declining = append(declining, tag)
		}
	}
	sort.Strings(emerging)
	sort.Strings(declining)
	return emerging, declining
}

func mergeTags(buckets []map[string]int) map[string]int {
	merged := make(map[string]int)
	for _, counts := range buckets {
		for tag, n := range counts {
			merged[tag] += n
		}
	}
	return merged
}

func topTags(counts map[string]int, limit int) []string {
	type tc struct {
		tag   string
		count int
	}
	ranked := make([]tc, 0, len(counts))
	for tag, n := range counts {
		ranked = append(ranked, tc{tag, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].tag < ranked[j].tag
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	tags := make([]string, 0, len(ranked))
	for _, r := range ranked {
		tags = append(tags, r.tag)
	}
	return tags
}
