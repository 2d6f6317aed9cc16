package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

func TestDetectPatternsRequiresMinimumSample(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < minPatternSample-1; i++ {
		f.seed(t, fmt.Sprintf("entry %d", i), unitVector(0))
	}
	_, err := f.analytics.DetectPatterns(context.Background(), "alice", model.NamespaceInteractions, 0)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestDetectPatternsFindsPeakHour(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	// Fifteen entries at nine in the morning across different days, five
	// scattered elsewhere.
	for i := 0; i < 15; i++ {
		f.at(base.AddDate(0, 0, i).Add(9 * time.Hour))
		f.seed(t, fmt.Sprintf("morning %d", i), unitVector(0))
	}
	for i, hour := range []int{13, 16, 19, 21, 23} {
		f.at(base.AddDate(0, 0, i).Add(time.Duration(hour) * time.Hour))
		f.seed(t, fmt.Sprintf("scattered %d", i), unitVector(0))
	}
	f.at(base.AddDate(0, 0, 20))

	patterns, err := f.analytics.DetectPatterns(context.Background(), "alice", model.NamespaceInteractions, 0)
	if err != nil {
		t.Fatalf("detect patterns: %v", err)
	}
	if patterns.SampleSize != 20 {
		t.Fatalf("expected sample size 20, got %d", patterns.SampleSize)
	}
	if len(patterns.PeakHours) != 1 || patterns.PeakHours[0] != 9 {
		t.Fatalf("expected peak hour 9, got %v", patterns.PeakHours)
	}
}

func TestActivityTrendClassification(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	build := func(olderCount, newerCount int) []model.VectorEntry {
		var entries []model.VectorEntry
		for i := 0; i < olderCount; i++ {
			entries = append(entries, model.VectorEntry{CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		}
		for i := 0; i < newerCount; i++ {
			entries = append(entries, model.VectorEntry{CreatedAt: base.Add(240*time.Hour + time.Duration(i)*time.Hour)})
		}
		return entries
	}
	if got := activityTrend(build(2, 8)); got != TrendIncreasing {
		t.Fatalf("expected increasing, got %s", got)
	}
	if got := activityTrend(build(8, 2)); got != TrendDeclining {
		t.Fatalf("expected declining, got %s", got)
	}
	if got := activityTrend(build(5, 5)); got != TrendStable {
		t.Fatalf("expected stable, got %s", got)
	}
}
