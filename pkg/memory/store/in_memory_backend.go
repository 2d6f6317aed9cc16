package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// InMemoryBackend implements Backend for tests and lightweight deployments.
type InMemoryBackend struct {
	mu       sync.RWMutex
	nextID   int64
	entries  map[int64]model.VectorEntry
	requests map[string]model.DeletionRequest
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		entries:  make(map[int64]model.VectorEntry),
		requests: make(map[string]model.DeletionRequest),
	}
}

func (b *InMemoryBackend) PutEntry(_ context.Context, entry model.VectorEntry) (model.VectorEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.ID == 0 {
		b.nextID++
		entry.ID = b.nextID
	} else if _, ok := b.entries[entry.ID]; !ok {
		return model.VectorEntry{}, fmt.Errorf("put entry %d: %w", entry.ID, model.ErrNotFound)
	}
	b.entries[entry.ID] = entry.Clone()
	return entry, nil
}

func (b *InMemoryBackend) GetEntry(_ context.Context, id int64) (model.VectorEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[id]
	if !ok {
		return model.VectorEntry{}, fmt.Errorf("entry %d: %w", id, model.ErrNotFound)
	}
	return entry.Clone(), nil
}

func (b *InMemoryBackend) DeleteEntries(_ context.Context, ids []int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := b.entries[id]; ok {
			delete(b.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (b *InMemoryBackend) ScanEntries(_ context.Context, q EntryQuery) ([]model.VectorEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]int64, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []model.VectorEntry
	for _, id := range ids {
		entry := b.entries[id]
		if !matchesEntry(entry, q) {
			continue
		}
		out = append(out, entry.Clone())
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (b *InMemoryBackend) CountEntries(_ context.Context, userID string, ns model.Namespace) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for _, entry := range b.entries {
		if userID != "" && entry.UserID != userID {
			continue
		}
		if ns != "" && entry.Namespace != ns {
			continue
		}
		count++
	}
	return count, nil
}

func (b *InMemoryBackend) PutRequest(_ context.Context, req model.DeletionRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests[req.ID] = req.Clone()
	return nil
}

func (b *InMemoryBackend) GetRequest(_ context.Context, id string) (model.DeletionRequest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	req, ok := b.requests[id]
	if !ok {
		return model.DeletionRequest{}, fmt.Errorf("deletion request %s: %w", id, model.ErrNotFound)
	}
	return req.Clone(), nil
}

func (b *InMemoryBackend) ScanRequests(_ context.Context, q RequestQuery) ([]model.DeletionRequest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.DeletionRequest, 0)
	for _, req := range b.requests {
		if matchesRequest(req, q) {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
