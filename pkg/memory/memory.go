// Package memory is the umbrella API for the per-user embedding store: it
// re-exports the model types, the policy registry, the vector store and its
// backends, the retention engine, the deletion pipeline and the temporal
// analytics under one import path.
package memory

import (
	analyticspkg "github.com/Protocol-Lattice/engram/pkg/memory/analytics"
	auditpkg "github.com/Protocol-Lattice/engram/pkg/memory/audit"
	deletionpkg "github.com/Protocol-Lattice/engram/pkg/memory/deletion"
	"github.com/Protocol-Lattice/engram/pkg/memory/model"
	namespacepkg "github.com/Protocol-Lattice/engram/pkg/memory/namespace"
	retentionpkg "github.com/Protocol-Lattice/engram/pkg/memory/retention"
	storepkg "github.com/Protocol-Lattice/engram/pkg/memory/store"
)

// Type aliases preserving the package-per-concern layout behind one API.
type (
	VectorEntry   = model.VectorEntry
	EntryMetadata = model.EntryMetadata
	Namespace     = model.Namespace
	Sensitivity   = model.Sensitivity

	DeletionRequest = model.DeletionRequest
	DeletionScope   = model.DeletionScope
	DeletionType    = model.DeletionType
	DeletionStatus  = model.DeletionStatus

	Registry        = namespacepkg.Registry
	NamespaceConfig = namespacepkg.Config
	ConsentLevel    = namespacepkg.ConsentLevel
	IsolationLevel  = namespacepkg.IsolationLevel
	Operation       = namespacepkg.Operation
	Violation       = namespacepkg.Violation

	VectorStore       = storepkg.VectorStore
	StoreOptions      = storepkg.Options
	Backend           = storepkg.Backend
	SchemaInitializer = storepkg.SchemaInitializer
	InMemoryBackend   = storepkg.InMemoryBackend
	PostgresBackend   = storepkg.PostgresBackend
	MongoBackend      = storepkg.MongoBackend
	UpsertParams      = storepkg.UpsertParams
	UpsertResult      = storepkg.UpsertResult
	MetricsSnapshot   = storepkg.MetricsSnapshot

	CurveParams    = retentionpkg.CurveParams
	Recommendation = retentionpkg.Recommendation
	Analyzer       = retentionpkg.Analyzer
	VectorAnalysis = retentionpkg.VectorAnalysis
	UserAnalysis   = retentionpkg.UserAnalysis

	Pipeline        = deletionpkg.Pipeline
	PipelineOptions = deletionpkg.Options
	Sweeper         = deletionpkg.Sweeper
	SweeperOptions  = deletionpkg.SweeperOptions

	Analytics     = analyticspkg.Analytics
	SearchOptions = analyticspkg.SearchOptions
	ScoredEntry   = analyticspkg.ScoredEntry
	Session       = analyticspkg.Session
	Patterns      = analyticspkg.Patterns
	TrendReport   = analyticspkg.TrendReport
	TimeFilter    = analyticspkg.TimeFilter

	AuditEvent = auditpkg.Event
	AuditSink  = auditpkg.Sink
)

const (
	NamespaceBrowsing     = model.NamespaceBrowsing
	NamespaceVoice        = model.NamespaceVoice
	NamespaceExplicit     = model.NamespaceExplicit
	NamespacePreferences  = model.NamespacePreferences
	NamespaceInteractions = model.NamespaceInteractions

	DeletionFull      = model.DeletionFull
	DeletionNamespace = model.DeletionNamespace
	DeletionSelective = model.DeletionSelective

	StatusPending    = model.StatusPending
	StatusProcessing = model.StatusProcessing
	StatusCompleted  = model.StatusCompleted
	StatusFailed     = model.StatusFailed
	StatusCancelled  = model.StatusCancelled

	RecommendKeep    = retentionpkg.RecommendKeep
	RecommendArchive = retentionpkg.RecommendArchive
	RecommendDelete  = retentionpkg.RecommendDelete
)

var (
	ErrInvalidNamespace    = model.ErrInvalidNamespace
	ErrInvalidDimension    = model.ErrInvalidDimension
	ErrUnauthorized        = model.ErrUnauthorized
	ErrNotFound            = model.ErrNotFound
	ErrInvalidTransition   = model.ErrInvalidTransition
	ErrConsentInsufficient = model.ErrConsentInsufficient
	ErrQuotaExceeded       = model.ErrQuotaExceeded
	ErrInsufficientData    = analyticspkg.ErrInsufficientData

	AllNamespaces    = model.AllNamespaces
	CosineSimilarity = model.CosineSimilarity

	NewRegistry            = namespacepkg.NewRegistry
	NewRegistryWithConfigs = namespacepkg.NewRegistryWithConfigs
	DefaultConfigs         = namespacepkg.DefaultConfigs
	NewVectorStore         = storepkg.NewVectorStore
	NewInMemory            = storepkg.NewInMemoryBackend
	NewPostgres            = storepkg.NewPostgresBackend
	NewMongo               = storepkg.NewMongoBackend
	DefaultCurves          = retentionpkg.DefaultCurves
	NewAnalyzer            = retentionpkg.NewAnalyzer
	NewPipeline            = deletionpkg.NewPipeline
	NewSweeper             = deletionpkg.NewSweeper
	NewAnalytics           = analyticspkg.New
	FilterByTime           = analyticspkg.FilterByTime
)
