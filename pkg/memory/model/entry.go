// Package model defines the persisted types and pure vector math shared by the
// memory store components.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EmbeddingDim is the fixed dimensionality of every stored embedding.
const EmbeddingDim = 1536

// Namespace is an isolation domain for vector entries. Each namespace carries
// its own consent, quota and retention policy.
type Namespace string

const (
	NamespaceBrowsing     Namespace = "browsing"
	NamespaceVoice        Namespace = "voice"
	NamespaceExplicit     Namespace = "explicit"
	NamespacePreferences  Namespace = "preferences"
	NamespaceInteractions Namespace = "interactions"
)

// AllNamespaces lists every known namespace in a stable order.
func AllNamespaces() []Namespace {
	return []Namespace{
		NamespaceBrowsing,
		NamespaceVoice,
		NamespaceExplicit,
		NamespacePreferences,
		NamespaceInteractions,
	}
}

// Sensitivity classifies how delicate an entry's content is.
type Sensitivity string

const (
	SensitivityPublic   Sensitivity = "public"
	SensitivityPersonal Sensitivity = "personal"
	SensitivityExplicit Sensitivity = "explicit"
)

// EntryMetadata carries the descriptive fields attached to a vector entry.
type EntryMetadata struct {
	Source      string      `json:"source"`
	ContentType string      `json:"content_type"`
	Domain      string      `json:"domain"`
	Title       string      `json:"title,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Language    string      `json:"language,omitempty"`
	Sensitivity Sensitivity `json:"sensitivity,omitempty"`
}

// VectorEntry is a persisted per-user embedding. Identity fields are immutable
// after creation; access/retention fields mutate over the entry's lifetime.
type VectorEntry struct {
	ID                  int64         `json:"id"`
	UserID              string        `json:"user_id"`
	Namespace           Namespace     `json:"namespace"`
	Embedding           []float32     `json:"embedding"`
	Content             string        `json:"content"`
	ContentHash         string        `json:"content_hash"`
	Metadata            EntryMetadata `json:"metadata"`
	CreatedAt           time.Time     `json:"created_at"`
	LastAccessedAt      time.Time     `json:"last_accessed_at"`
	AccessCount         int           `json:"access_count"`
	Confidence          float64       `json:"confidence"`
	MarkedForDeletion   bool          `json:"marked_for_deletion"`
	ScheduledDeletionAt time.Time     `json:"scheduled_deletion_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (e VectorEntry) Clone() VectorEntry {
	cp := e
	cp.Embedding = append([]float32(nil), e.Embedding...)
	cp.Metadata.Tags = append([]string(nil), e.Metadata.Tags...)
	return cp
}

// HashContent derives the deduplication key for a piece of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
