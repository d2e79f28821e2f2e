package depresolve

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rhansen/depresolve/internal/itertools"
	"github.com/rhansen/depresolve/internal/version"
)

// A Candidate is one version of a module competing in conflict resolution.
type Candidate interface {
	// Id returns the candidate's component identity.
	Id() ComponentIdentity
	// Forced reports whether any live dependency requesting this version asked for it to be
	// forced.
	Forced() bool
	// Metadata returns the candidate's metadata.
	Metadata() *ComponentMetadata
}

// A ConflictResolver picks a winner when more than one version of the same module is requested.
// The candidates are passed in increasing version order and there are always at least two.  The
// returned [Candidate] must be one of the given candidates.  A returned error aborts the
// resolution.
//
// SelectWinner must be deterministic: given the same candidates it must return the same winner,
// otherwise conflict resolution restarts might not converge.
type ConflictResolver interface {
	SelectWinner(module ModuleIdentity, candidates []Candidate) (Candidate, error)
}

// ConflictResolverFunc adapts a function to the [ConflictResolver] interface.
type ConflictResolverFunc func(module ModuleIdentity, candidates []Candidate) (Candidate, error)

func (f ConflictResolverFunc) SelectWinner(module ModuleIdentity, candidates []Candidate) (Candidate, error) {
	return f(module, candidates)
}

// LatestVersion selects the newest forced candidate if any candidate is forced, otherwise the
// newest candidate.  This is the default [ConflictResolver].
var LatestVersion ConflictResolver = ConflictResolverFunc(latestVersion)

func latestVersion(_ ModuleIdentity, candidates []Candidate) (Candidate, error) {
	pool := slices.Collect(itertools.Filter(slices.Values(candidates), Candidate.Forced))
	if len(pool) == 0 {
		pool = candidates
	}
	return slices.MaxFunc(pool, func(a, b Candidate) int {
		return version.Compare(a.Id().Version, b.Id().Version)
	}), nil
}

// FailOnVersionConflict fails the resolution whenever two versions of the same module are
// requested, unless exactly one of them is forced.
var FailOnVersionConflict ConflictResolver = ConflictResolverFunc(failOnVersionConflict)

func failOnVersionConflict(m ModuleIdentity, candidates []Candidate) (Candidate, error) {
	forced := slices.Collect(itertools.Filter(slices.Values(candidates), Candidate.Forced))
	if len(forced) == 1 {
		return forced[0], nil
	}
	vers := slices.Collect(itertools.Map(slices.Values(candidates), func(c Candidate) string {
		return c.Id().Version
	}))
	return nil, fmt.Errorf("version conflict on module %v: %s", m, strings.Join(vers, ", "))
}
