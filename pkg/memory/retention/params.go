package retention

import "github.com/Protocol-Lattice/engram/pkg/memory/model"

// DefaultCurves returns the deployed forgetting-curve constants per
// namespace. Explicit content decays aggressively; preferences are
// near-permanent. Tunable at deploy time, never at runtime.
func DefaultCurves() map[model.Namespace]CurveParams {
	return map[model.Namespace]CurveParams{
		model.NamespaceBrowsing: {
			InitialRetention: 1.0,
			DecayRate:        0.10,
			MinRetention:     0.2,
			AccessBoost:      0.02,
			MaxAccessBoost:   0.08,
		},
		model.NamespaceVoice: {
			InitialRetention: 1.0,
			DecayRate:        0.15,
			MinRetention:     0.3,
			AccessBoost:      0.02,
			MaxAccessBoost:   0.08,
		},
		model.NamespaceExplicit: {
			InitialRetention: 1.0,
			DecayRate:        0.30,
			MinRetention:     0.5,
			AccessBoost:      0.01,
			MaxAccessBoost:   0.05,
		},
		model.NamespacePreferences: {
			InitialRetention: 1.0,
			DecayRate:        0.02,
			MinRetention:     0.1,
			AccessBoost:      0.005,
			MaxAccessBoost:   0.01,
		},
		model.NamespaceInteractions: {
			InitialRetention: 1.0,
			DecayRate:        0.20,
			MinRetention:     0.3,
			AccessBoost:      0.02,
			MaxAccessBoost:   0.08,
		},
	}
}

// CurveFor returns the params for a namespace, falling back to the
// interactions curve for unknown keys.
func CurveFor(curves map[model.Namespace]CurveParams, ns model.Namespace) CurveParams {
	if params, ok := curves[ns]; ok {
		return params
	}
	return curves[model.NamespaceInteractions]
}
