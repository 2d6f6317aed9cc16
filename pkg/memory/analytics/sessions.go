package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// Session is a burst of activity: consecutive entries separated by less than
// the gap threshold.
type Session struct {
	Entries   []model.VectorEntry `json:"entries"`
	Start     time.Time           `json:"start"`
	End       time.Time           `json:"end"`
	Coherence float64             `json:"coherence"`
}

// IdentifySessions groups a user's live entries in a namespace into sessions
// over the trailing window (all history when zero). Entries are ordered by
// creation time and split wherever the gap to the next entry meets or exceeds
// maxGap. Coherence is the mean pairwise cosine similarity inside the
// session; a single-entry session is trivially 1.
func (a *Analytics) IdentifySessions(ctx context.Context, userID string, ns model.Namespace, window, maxGap time.Duration) ([]Session, error) {
	if maxGap <= 0 {
		maxGap = 30 * time.Minute
	}
	entries, err := a.entriesInTrailingWindow(ctx, userID, ns, window)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	var sessions []Session
	current := []model.VectorEntry{entries[0]}
	for _, entry := range entries[1:] {
		if entry.CreatedAt.Sub(current[len(current)-1].CreatedAt) >= maxGap {
			sessions = append(sessions, buildSession(current))
			current = nil
		}
		current = append(current, entry)
	}
	sessions = append(sessions, buildSession(current))
	return sessions, nil
}

func buildSession(entries []model.VectorEntry) Session {
	return Session{
		Entries:   entries,
		Start:     entries[0].CreatedAt,
		End:       entries[len(entries)-1].CreatedAt,
		Coherence: sessionCoherence(entries),
	}
}

func sessionCoherence(entries []model.VectorEntry) float64 {
	if len(entries) < 2 {
		return 1.0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			sim, err := model.CosineSimilarity(entries[i].Embedding, entries[j].Embedding)
			if err != nil {
				continue
			}
			sum += sim
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
