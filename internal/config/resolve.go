package config

// Tier names for option resolution, in priority order.
const (
	TierRequest     = "request"
	TierTenant      = "tenant"
	TierEnvironment = "environment"
	TierDefault     = "default"
)

// Source is one optional-value provider in a resolution chain.
type Source[T any] struct {
	Tier string
	Get  func() (T, bool)
}

// Resolved carries a resolved option value together with the tier that
// supplied it, so callers can log where a value came from.
type Resolved[T any] struct {
	Value T
	Tier  string
}

// Resolve evaluates sources in order and returns the first present value.
// The final source should always produce a value (the hardcoded fallback);
// if nothing matches, the zero value is returned with an empty tier.
func Resolve[T any](sources ...Source[T]) Resolved[T] {
	for _, s := range sources {
		if v, ok := s.Get(); ok {
			return Resolved[T]{Value: v, Tier: s.Tier}
		}
	}
	var zero T
	return Resolved[T]{Value: zero}
}

// Static returns a source that always yields v. Used as the fallback tier.
func Static[T any](tier string, v T) Source[T] {
	return Source[T]{Tier: tier, Get: func() (T, bool) { return v, true }}
}

// Maybe returns a source that yields v only when present is true.
func Maybe[T any](tier string, v T, present bool) Source[T] {
	return Source[T]{Tier: tier, Get: func() (T, bool) { return v, present }}
}
