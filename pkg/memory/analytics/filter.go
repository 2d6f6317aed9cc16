package analytics

import (
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// TimeFilter selects entries by when they were created. Zero-valued fields
// do not constrain.
type TimeFilter struct {
	// Hours keeps only entries created in the listed hours (0-23).
	Hours []int
	// Weekdays keeps only entries created on the listed weekdays.
	Weekdays []time.Weekday
	// ExcludeWeekends drops Saturday and Sunday entries.
	ExcludeWeekends bool
	// ExcludeNights drops entries created between 22:00 and 06:00.
	ExcludeNights bool
}

// FilterByTime returns the entries that pass every enabled constraint. The
// input slice is not modified.
func FilterByTime(entries []model.VectorEntry, filter TimeFilter) []model.VectorEntry {
	hours := make(map[int]bool, len(filter.Hours))
	for _, h := range filter.Hours {
		hours[h] = true
	}
	days := make(map[time.Weekday]bool, len(filter.Weekdays))
	for _, d := range filter.Weekdays {
		days[d] = true
	}
	var out []model.VectorEntry
	for _, entry := range entries {
		created := entry.CreatedAt
		if len(hours) > 0 && !hours[created.Hour()] {
			continue
		}
		if len(days) > 0 && !days[created.Weekday()] {
			continue
		}
		if filter.ExcludeWeekends && isWeekend(created.Weekday()) {
			continue
		}
		if filter.ExcludeNights && (created.Hour() >= 22 || created.Hour() < 6) {
			continue
		}
		out = append(out, entry)
	}
	return out
}
