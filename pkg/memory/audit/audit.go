// Package audit defines the structured events the store emits on every
// deletion-lifecycle transition and maintenance sweep. Persistence, delivery
// and ordering are the sink's responsibility, not this core's.
package audit

import (
	"context"
	"log"
	"sync"
	"time"
)

// Category groups related events.
type Category string

const (
	CategoryDeletion    Category = "deletion"
	CategoryMaintenance Category = "maintenance"
)

// Action names what happened within a category.
type Action string

const (
	ActionRequested Action = "requested"
	ActionCancelled Action = "cancelled"
	ActionCompleted Action = "completed"
	ActionFailed    Action = "failed"
	ActionSwept     Action = "swept"
	ActionPurged    Action = "purged"
)

// Event is one audit record.
type Event struct {
	Category  Category       `json:"category"`
	Action    Action         `json:"action"`
	Actor     string         `json:"actor"`
	Target    string         `json:"target,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives audit events. Implementations must tolerate concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// LogSink writes events through a standard logger.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Emit(_ context.Context, ev Event) error {
	if s.Logger != nil {
		s.Logger.Printf("audit %s/%s actor=%s target=%s meta=%v", ev.Category, ev.Action, ev.Actor, ev.Target, ev.Metadata)
	}
	return nil
}

// MemorySink collects events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of everything emitted so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
