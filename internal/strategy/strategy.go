package strategy

import (
	"fmt"

	"github.com/dreamware/stcache/internal/cachecube"
)

// cacheReadCostFactor approximates the seconds-per-byte cost of reading
// an entry back out of the cache.
const cacheReadCostFactor = 5e-9

// Scope selects which part of a profile's cost to evaluate.
type Scope int

const (
	// ScopeSelf is the cost of the operator that produced this exact
	// result, ignoring its inputs.
	ScopeSelf Scope = iota
	// ScopeAll is the cost of the whole operator subtree, as if none of
	// it had been served from cache.
	ScopeAll
	// ScopeUncached is the cost of the subtree minus whatever was
	// already served from cache.
	ScopeUncached
)

// Strategy decides whether a freshly computed result is worth caching.
type Strategy interface {
	DoCache(profile cachecube.Profile, bytes uint64) bool
}

// Cost computes io/bytes + (cpu+gpu)/(k*bytes) for the given scope,
// where k is cacheReadCostFactor.
func Cost(profile cachecube.Profile, bytes uint64, scope Scope) float64 {
	if bytes == 0 {
		return 0
	}
	var cpu, gpu, io float64
	switch scope {
	case ScopeSelf:
		cpu, gpu, io = profile.SelfCPU, profile.SelfGPU, profile.SelfIO
	case ScopeAll:
		cpu, gpu, io = profile.AllCPU, profile.AllGPU, profile.AllIO
	case ScopeUncached:
		cpu, gpu, io = profile.UncachedCPU, profile.UncachedGPU, profile.UncachedIO
	}

	b := float64(bytes)
	proc := cpu + gpu
	cacheCPU := cacheReadCostFactor * b
	return io/b + proc/cacheCPU
}

// Always caches every result.
type Always struct{}

func (Always) DoCache(cachecube.Profile, uint64) bool { return true }

// Never caches nothing.
type Never struct{}

func (Never) DoCache(cachecube.Profile, uint64) bool { return false }

// Simple caches iff the uncached cost of the result meets or exceeds a
// single threshold.
type Simple struct {
	Threshold float64
}

// DefaultSimpleThreshold is the threshold "simple" uses when the
// config doesn't override it.
const DefaultSimpleThreshold = 2.0

func (s Simple) DoCache(profile cachecube.Profile, bytes uint64) bool {
	return Cost(profile, bytes, ScopeUncached) >= s.Threshold
}

// TwoStep caches a result either because it was expensive enough on its
// own (ImmediateThreshold against ScopeSelf), or because it is the
// latest in a run of computations that have collectively become
// expensive enough to be worth caching (StackedThreshold against
// ScopeUncached).
type TwoStep struct {
	StackedThreshold   float64
	ImmediateThreshold float64
}

// Default thresholds for TwoStep when the config doesn't override
// them.
const (
	DefaultTwoStepStacked   = 3.0
	DefaultTwoStepImmediate = 2.0
)

func (t TwoStep) DoCache(profile cachecube.Profile, bytes uint64) bool {
	return Cost(profile, bytes, ScopeSelf) >= t.ImmediateThreshold ||
		Cost(profile, bytes, ScopeUncached) >= t.StackedThreshold
}

// Config carries the thresholds a caller may want to override away from
// the defaults when building a named strategy.
type Config struct {
	SimpleThreshold         float64
	TwoStepStackedThreshold float64
	TwoStepImmediateThreshold float64
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{
		SimpleThreshold:           DefaultSimpleThreshold,
		TwoStepStackedThreshold:   DefaultTwoStepStacked,
		TwoStepImmediateThreshold: DefaultTwoStepImmediate,
	}
}

// ByName builds a Strategy from one of the four recognized names
// ("never", "always", "simple", "twostep"), using cfg's thresholds
// for the threshold-based strategies.
func ByName(name string, cfg Config) (Strategy, error) {
	switch name {
	case "never":
		return Never{}, nil
	case "always":
		return Always{}, nil
	case "simple":
		return Simple{Threshold: cfg.SimpleThreshold}, nil
	case "twostep":
		return TwoStep{
			StackedThreshold:   cfg.TwoStepStackedThreshold,
			ImmediateThreshold: cfg.TwoStepImmediateThreshold,
		}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown caching strategy %q", name)
	}
}
