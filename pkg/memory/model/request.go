package model

import "time"

// DeletionType identifies how much of a user's data a request covers.
type DeletionType string

const (
	DeletionFull      DeletionType = "full"
	DeletionNamespace DeletionType = "namespace"
	DeletionSelective DeletionType = "selective"
)

// DeletionStatus tracks a request through the erasure state machine.
type DeletionStatus string

const (
	StatusPending    DeletionStatus = "pending"
	StatusProcessing DeletionStatus = "processing"
	StatusCompleted  DeletionStatus = "completed"
	StatusFailed     DeletionStatus = "failed"
	StatusCancelled  DeletionStatus = "cancelled"
)

var allowedTransitions = map[DeletionStatus][]DeletionStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransitionTo reports whether the state machine permits moving to next.
// Completed, failed and cancelled are terminal.
func (s DeletionStatus) CanTransitionTo(next DeletionStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether a request in this status is never re-picked.
func (s DeletionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DeletionScope is the tagged variant describing what a request deletes.
// Namespaces is populated only for DeletionNamespace, VectorIDs only for
// DeletionSelective; the constructors keep invalid combinations out.
type DeletionScope struct {
	Type       DeletionType `json:"type"`
	Namespaces []Namespace  `json:"namespaces,omitempty"`
	VectorIDs  []int64      `json:"vector_ids,omitempty"`
}

// FullScope covers every namespace the user owns.
func FullScope() DeletionScope {
	return DeletionScope{Type: DeletionFull}
}

// NamespaceScope covers the listed namespaces.
func NamespaceScope(namespaces ...Namespace) DeletionScope {
	return DeletionScope{Type: DeletionNamespace, Namespaces: namespaces}
}

// SelectiveScope covers individual vector ids.
func SelectiveScope(vectorIDs ...int64) DeletionScope {
	return DeletionScope{Type: DeletionSelective, VectorIDs: vectorIDs}
}

// DeletionRequest is a right-to-erasure request moving through the pipeline.
type DeletionRequest struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Scope        DeletionScope  `json:"scope"`
	RequestedAt  time.Time      `json:"requested_at"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	Status       DeletionStatus `json:"status"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
	ItemsDeleted int            `json:"items_deleted"`
	Error        string         `json:"error,omitempty"`
}

// Clone returns a copy safe to hand to callers.
func (r DeletionRequest) Clone() DeletionRequest {
	cp := r
	cp.Scope.Namespaces = append([]Namespace(nil), r.Scope.Namespaces...)
	cp.Scope.VectorIDs = append([]int64(nil), r.Scope.VectorIDs...)
	return cp
}
