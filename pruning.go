package lgptune

import (
	"math"
	"strings"
)

// DefaultThresholdKey is the ThresholdTable key used when no prefix matches.
const DefaultThresholdKey = "default"

// ThresholdTable maps the leading domain token of an environment name to the
// minimum acceptable aggregated score.
type ThresholdTable struct {
	// Prefixes maps a domain token (e.g. "iris") to its threshold.
	Prefixes map[string]float64 `toml:"prefixes"`

	// Default applies to names whose token is not in Prefixes.
	Default float64 `toml:"default"`
}

// DefaultThresholds returns the built-in table.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		Prefixes: map[string]float64{
			"cart":     400,
			"iris":     0.9,
			"mountain": -150,
		},
		Default: 0,
	}
}

// domainToken returns the text before the first '_' or '-'.
func domainToken(env string) string {
	if i := strings.IndexAny(env, "_-"); i >= 0 {
		return env[:i]
	}

	return env
}

// Threshold resolves the threshold for env.
func (t ThresholdTable) Threshold(env string) float64 {
	if v, ok := t.Prefixes[domainToken(env)]; ok {
		return v
	}

	return t.Default
}

// ShouldPrune decides whether a trial of env with the given aggregated score
// is discarded. NaN is always pruned.
func (t ThresholdTable) ShouldPrune(env string, score float64) bool {
	if math.IsNaN(score) {
		return true
	}

	return score < t.Threshold(env)
}
