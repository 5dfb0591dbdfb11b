package reindex

import (
	"github.com/pressbridge/pressbridge/internal/config"
)

// Effort is a retrieval-tuning tier controlling search breadth at query
// time in the downstream index.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
	EffortDebug  Effort = "debug"
)

// defaultEffort is the hardcoded fallback when no tier supplies a value.
const defaultEffort = EffortMedium

// searchBreadth maps each tier to the candidate-set size handed to the
// index (HNSW ef-style parameter).
var searchBreadth = map[Effort]int{
	EffortLow:    10,
	EffortMedium: 40,
	EffortHigh:   120,
	EffortDebug:  400,
}

// Valid reports whether e names a known tier.
func (e Effort) Valid() bool {
	_, ok := searchBreadth[e]
	return ok
}

// Breadth returns the numeric search-breadth value for the tier.
func (e Effort) Breadth() int {
	if n, ok := searchBreadth[e]; ok {
		return n
	}
	return searchBreadth[defaultEffort]
}

// ResolveEffort picks the effective tier: request override beats tenant
// override beats environment default beats the hardcoded fallback. The
// returned Resolved records which tier supplied the value.
func ResolveEffort(request, tenant, environment string) config.Resolved[Effort] {
	return config.Resolve(
		config.Maybe(config.TierRequest, Effort(request), Effort(request).Valid()),
		config.Maybe(config.TierTenant, Effort(tenant), Effort(tenant).Valid()),
		config.Maybe(config.TierEnvironment, Effort(environment), Effort(environment).Valid()),
		config.Static(config.TierDefault, defaultEffort),
	)
}
