package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// minPatternSample is the fewest entries pattern detection will read into.
const minPatternSample = 10

// Activity trend labels.
const (
	TrendIncreasing = "increasing"
	TrendStable     = "stable"
	TrendDeclining  = "declining"
)

// Patterns summarizes when a user is active in a namespace.
type Patterns struct {
	SampleSize int            `json:"sample_size"`
	PeakHours  []int          `json:"peak_hours"`
	PeakDays   []time.Weekday `json:"peak_days"`
	Trend      string         `json:"trend"`
}

// DetectPatterns finds the hours and weekdays where activity concentrates and
// whether overall activity is rising or falling, over the trailing window
// (all history when zero). A peak hour carries at least 1.5x the uniform
// share of entries; a peak day at least 1.3x. The trend compares entry
// counts in the older and newer halves of the observed span. Returns
// ErrInsufficientData below 10 entries.
func (a *Analytics) DetectPatterns(ctx context.Context, userID string, ns model.Namespace, window time.Duration) (Patterns, error) {
	entries, err := a.entriesInTrailingWindow(ctx, userID, ns, window)
	if err != nil {
		return Patterns{}, err
	}
	if len(entries) < minPatternSample {
		return Patterns{}, fmt.Errorf("pattern detection over %d entries: %w", len(entries), ErrInsufficientData)
	}

	var hourCounts [24]int
	var dayCounts [7]int
	for _, entry := range entries {
		hourCounts[entry.CreatedAt.Hour()]++
		dayCounts[entry.CreatedAt.Weekday()]++
	}
	return Patterns{
		SampleSize: len(entries),
		PeakHours:  peakHours(hourCounts, len(entries)),
		PeakDays:   peakDays(dayCounts, len(entries)),
		Trend:      activityTrend(entries),
	}, nil
}

func peakHours(counts [24]int, total int) []int {
	threshold := 1.5 * float64(total) / 24
	type hc struct {
		hour  int
		count int
	}
	var candidates []hc
	for hour, count := range counts {
		if float64(count) > threshold {
			candidates = append(candidates, hc{hour, count})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].hour < candidates[j].hour
	})
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}
	hours := make([]int, 0, len(candidates))
	for _, c := range candidates {
		hours = append(hours, c.hour)
	}
	sort.Ints(hours)
	return hours
}

func peakDays(counts [7]int, total int) []time.Weekday {
	threshold := 1.3 * float64(total) / 7
	type dc struct {
		day   time.Weekday
		count int
	}
	var candidates []dc
	for day, count := range counts {
		if float64(count) > threshold {
			candidates = append(candidates, dc{time.Weekday(day), count})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].day < candidates[j].day
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	days := make([]time.Weekday, 0, len(candidates))
	for _, c := range candidates {
		days = append(days, c.day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// activityTrend splits the observed span in half and compares entry counts.
// Newer half carrying 1.5x the older reads as increasing, under 2/3 as
// declining.
func activityTrend(entries []model.VectorEntry) string {
	earliest, latest := entries[0].CreatedAt, entries[0].CreatedAt
	for _, entry := range entries[1:] {
		if entry.CreatedAt.Before(earliest) {
			earliest = entry.CreatedAt
		}
		if entry.CreatedAt.After(latest) {
			latest = entry.CreatedAt
		}
	}
	if !latest.After(earliest) {
		return TrendStable
	}
	midpoint := earliest.Add(latest.Sub(earliest) / 2)
	older, newer := 0, 0
	for _, entry := range entries {
		if entry.CreatedAt.Before(midpoint) {
			older++
		} else {
			newer++
		}
	}
	if older == 0 {
		return TrendIncreasing
	}
	ratio := float64(newer) / float64(older)
	switch {
	case ratio > 1.5:
		return TrendIncreasing
	case ratio < 2.0/3.0:
		return TrendDeclining
	default:
		return TrendStable
	}
}
