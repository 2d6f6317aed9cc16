// Package namespace holds the static per-namespace policy table: consent
// requirements, quotas, retention defaults, isolation levels and content-type
// rules. The table is fixed at construction; policy changes are deploy-time
// updates, never data-layer mutations.
package namespace

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// IsolationLevel is the policy tier controlling export and cross-namespace
// linking permissions.
type IsolationLevel string

const (
	IsolationStandard IsolationLevel = "standard"
	IsolationStrict   IsolationLevel = "strict"
	IsolationMaximum  IsolationLevel = "maximum"
)

// ConsentLevel is the ordinal consent tier supplied by the identity provider.
type ConsentLevel int

// Operation names the action being checked against isolation policy.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpExport Operation = "export"
	OpLink   Operation = "link"
)

// Config is the immutable policy for a single namespace.
type Config struct {
	Namespace                model.Namespace
	RequiredConsentLevel     ConsentLevel
	MaxVectors               int
	DefaultRetentionDays     int
	Exportable               bool
	RequiresEncryption       bool
	IsolationLevel           IsolationLevel
	AllowedContentTypes      []string
	AllowCrossNamespaceLinks bool
}

// Violation describes a single isolation rule an operation would break.
type Violation struct {
	Namespace model.Namespace
	Operation Operation
	Rule      string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s on %s: %s", v.Operation, v.Namespace, v.Rule)
}

// DefaultConfigs returns the deployed policy table.
func DefaultConfigs() []Config {
	return []Config{
		{
			Namespace:                model.NamespaceBrowsing,
			RequiredConsentLevel:     2,
			MaxVectors:               10000,
			DefaultRetentionDays:     30,
			Exportable:               true,
			IsolationLevel:           IsolationStandard,
			AllowedContentTypes:      []string{"webpage", "article", "search_query"},
			AllowCrossNamespaceLinks: true,
		},
		{
			Namespace:            model.NamespaceVoice,
			RequiredConsentLevel: 3,
			MaxVectors:           5000,
			DefaultRetentionDays: 14,
			Exportable:           true,
			RequiresEncryption:   true,
			IsolationLevel:       IsolationStrict,
			AllowedContentTypes:  []string{"voice_transcript", "voice_command"},
		},
		{
			Namespace:            model.NamespaceExplicit,
			RequiredConsentLevel: 4,
			MaxVectors:           1000,
			DefaultRetentionDays: 7,
			RequiresEncryption:   true,
			IsolationLevel:       IsolationMaximum,
			AllowedContentTypes:  nil, // any, the sensitivity flag routes here
		},
		{
			Namespace:                model.NamespacePreferences,
			RequiredConsentLevel:     1,
			MaxVectors:               2000,
			DefaultRetentionDays:     365,
			Exportable:               true,
			IsolationLevel:           IsolationStandard,
			AllowedContentTypes:      []string{"preference", "setting", "profile"},
			AllowCrossNamespaceLinks: true,
		},
		{
			Namespace:                model.NamespaceInteractions,
			RequiredConsentLevel:     1,
			MaxVectors:               20000,
			DefaultRetentionDays:     30,
			Exportable:               true,
			IsolationLevel:           IsolationStandard,
			AllowedContentTypes:      []string{"conversation", "message", "feedback"},
			AllowCrossNamespaceLinks: true,
		},
	}
}

// contentTypeRouting maps content types to their home namespace for
// SelectNamespace. Explicit sensitivity overrides the table.
var contentTypeRouting = map[string]model.Namespace{
	"webpage":          model.NamespaceBrowsing,
	"article":          model.NamespaceBrowsing,
	"search_query":     model.NamespaceBrowsing,
	"voice_transcript": model.NamespaceVoice,
	"voice_command":    model.NamespaceVoice,
	"preference":       model.NamespacePreferences,
	"setting":          model.NamespacePreferences,
	"profile":          model.NamespacePreferences,
}

// Registry answers policy questions about namespaces. It carries no mutable
// state and is safe for concurrent use.
type Registry struct {
	configs map[model.Namespace]Config
}

// NewRegistry builds a registry over the default policy table. The table is
// validated so a misconfigured deploy fails fast.
func NewRegistry() (*Registry, error) {
	return NewRegistryWithConfigs(DefaultConfigs())
}

// NewRegistryWithConfigs builds a registry over a custom table.
func NewRegistryWithConfigs(configs []Config) (*Registry, error) {
	if err := ValidateTable(configs); err != nil {
		return nil, err
	}
	table := make(map[model.Namespace]Config, len(configs))
	for _, cfg := range configs {
		table[cfg.Namespace] = cfg
	}
	return &Registry{configs: table}, nil
}

// ValidateTable checks the static invariants of a policy table:
// maximum isolation forbids export and cross-namespace links, and any
// non-standard isolation forbids links.
func ValidateTable(configs []Config) error {
	seen := make(map[model.Namespace]struct{}, len(configs))
	for _, cfg := range configs {
		if cfg.Namespace == "" {
			return fmt.Errorf("namespace config with empty key")
		}
		if _, dup := seen[cfg.Namespace]; dup {
			return fmt.Errorf("duplicate namespace config %q", cfg.Namespace)
		}
		seen[cfg.Namespace] = struct{}{}
		if cfg.IsolationLevel == IsolationMaximum && (cfg.Exportable || cfg.AllowCrossNamespaceLinks) {
			return fmt.Errorf("namespace %q: maximum isolation forbids export and links", cfg.Namespace)
		}
		if cfg.IsolationLevel != IsolationStandard && cfg.AllowCrossNamespaceLinks {
			return fmt.Errorf("namespace %q: %s isolation forbids cross-namespace links", cfg.Namespace, cfg.IsolationLevel)
		}
	}
	return nil
}

// Resolve returns the config for a namespace.
func (r *Registry) Resolve(ns model.Namespace) (Config, error) {
	cfg, ok := r.configs[ns]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", model.ErrInvalidNamespace, ns)
	}
	return cfg, nil
}

// CanAccess checks the caller's consent level against the namespace
// requirement. Denied iff the level is below the requirement.
func (r *Registry) CanAccess(ns model.Namespace, level ConsentLevel) error {
	cfg, err := r.Resolve(ns)
	if err != nil {
		return err
	}
	if level < cfg.RequiredConsentLevel {
		return fmt.Errorf("%w: namespace %q requires level %d, caller has %d",
			model.ErrConsentInsufficient, ns, cfg.RequiredConsentLevel, level)
	}
	return nil
}

// IsContentTypeAllowed reports whether the namespace admits the content type.
// A namespace with no listed types admits everything.
func (r *Registry) IsContentTypeAllowed(ns model.Namespace, contentType string) bool {
	cfg, ok := r.configs[ns]
	if !ok {
		return false
	}
	if len(cfg.AllowedContentTypes) == 0 {
		return true
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, allowed := range cfg.AllowedContentTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}

// CanLink reports whether entries in source may link to entries in target.
// Both sides must permit cross-namespace links.
func (r *Registry) CanLink(source, target model.Namespace) bool {
	src, ok := r.configs[source]
	if !ok {
		return false
	}
	dst, ok := r.configs[target]
	if !ok {
		return false
	}
	return src.AllowCrossNamespaceLinks && dst.AllowCrossNamespaceLinks
}

// ValidateIsolation checks an operation against a namespace's isolation
// policy. A nil result means the operation is permitted.
func (r *Registry) ValidateIsolation(ns model.Namespace, op Operation, target model.Namespace) []Violation {
	cfg, ok := r.configs[ns]
	if !ok {
		return []Violation{{Namespace: ns, Operation: op, Rule: "namespace not registered"}}
	}
	var violations []Violation
	switch op {
	case OpExport:
		if !cfg.Exportable {
			violations = append(violations, Violation{Namespace: ns, Operation: op, Rule: "namespace is not exportable"})
		}
	case OpLink:
		if !cfg.AllowCrossNamespaceLinks {
			violations = append(violations, Violation{Namespace: ns, Operation: op, Rule: "cross-namespace links disabled"})
		}
		if target != "" {
			dst, ok := r.configs[target]
			if !ok {
				violations = append(violations, Violation{Namespace: target, Operation: op, Rule: "namespace not registered"})
			} else if !dst.AllowCrossNamespaceLinks {
				violations = append(violations, Violation{Namespace: target, Operation: op, Rule: "cross-namespace links disabled"})
			}
		}
	}
	return violations
}

// SelectNamespace routes content to its home namespace. Explicit sensitivity
// always wins regardless of content type.
func (r *Registry) SelectNamespace(contentType string, sensitivity model.Sensitivity) model.Namespace {
	if sensitivity == model.SensitivityExplicit {
		return model.NamespaceExplicit
	}
	if ns, ok := contentTypeRouting[strings.ToLower(strings.TrimSpace(contentType))]; ok {
		return ns
	}
	return model.NamespaceInteractions
}
