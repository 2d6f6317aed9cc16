// Package retention implements the memory-decay model: an exponential
// forgetting curve per namespace, stabilized by repeated access, producing a
// retention score and a keep/archive/delete recommendation.
package retention

import (
	"math"
	"time"
)

// minDecayRate floors the adjusted rate so heavy access can never stop decay
// entirely or reverse it.
const minDecayRate = 0.01

// archiveBand is the margin above the deletion threshold in which an entry is
// recommended for archival rather than kept.
const archiveBand = 0.2

// CurveParams are the forgetting-curve constants for one namespace.
// All values live in [0,1] except DecayRate, a positive per-day rate.
type CurveParams struct {
	InitialRetention float64
	DecayRate        float64
	MinRetention     float64
	AccessBoost      float64
	MaxAccessBoost   float64
}

// Recommendation is the action the curve suggests for an entry.
type Recommendation string

const (
	RecommendKeep    Recommendation = "keep"
	RecommendArchive Recommendation = "archive"
	RecommendDelete  Recommendation = "delete"
)

// AdjustedDecayRate returns the decay rate after access stabilization: each
// access beyond the first slows decay by AccessBoost, capped at
// MaxAccessBoost and floored at minDecayRate.
func AdjustedDecayRate(accessCount int, params CurveParams) float64 {
	boost := float64(accessCount-1) * params.AccessBoost
	if boost > params.MaxAccessBoost {
		boost = params.MaxAccessBoost
	}
	if boost < 0 {
		boost = 0
	}
	rate := params.DecayRate - boost
	if rate < minDecayRate {
		rate = minDecayRate
	}
	return rate
}

// Score computes the current retention of an entry last accessed at the given
// time. Retention decays exponentially with days since access and is clamped
// to [0,1]. Holding access count fixed, it never increases with elapsed time.
func Score(lastAccessedAt time.Time, accessCount int, params CurveParams, now time.Time) float64 {
	days := daysSince(lastAccessedAt, now)
	rate := AdjustedDecayRate(accessCount, params)
	retention := params.InitialRetention * math.Exp(-rate*days)
	if retention < 0 {
		return 0
	}
	if retention > 1 {
		return 1
	}
	return retention
}

// Recommend maps a retention score to an action: delete at or below the
// namespace minimum, archive within the band just above it, keep otherwise.
func Recommend(retention float64, params CurveParams) Recommendation {
	if retention <= params.MinRetention {
		return RecommendDelete
	}
	if retention <= params.MinRetention+archiveBand {
		return RecommendArchive
	}
	return RecommendKeep
}

// DaysUntilExpiration returns how many more days the entry stays above the
// deletion threshold, solving minRetention = initial * e^(-rate*t) for t.
// Already-expired entries return 0.
func DaysUntilExpiration(lastAccessedAt time.Time, accessCount int, params CurveParams, now time.Time) float64 {
	retention := Score(lastAccessedAt, accessCount, params, now)
	if retention <= params.MinRetention {
		return 0
	}
	if params.MinRetention <= 0 || params.InitialRetention <= 0 {
		return math.Inf(1)
	}
	rate := AdjustedDecayRate(accessCount, params)
	total := math.Log(params.InitialRetention/params.MinRetention) / rate
	remaining := total - daysSince(lastAccessedAt, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func daysSince(lastAccessedAt, now time.Time) float64 {
	days := now.Sub(lastAccessedAt).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}
