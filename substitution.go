package depresolve

import (
	"errors"
	"fmt"
)

// SubstitutionResult is the outcome of applying dependency substitution to one dependency.
type SubstitutionResult struct {
	// Updated is true if Target replaces the dependency's own selector.
	Updated bool
	Target  ModuleSelector
	Reason  string
}

// A Substituter rewrites dependency targets before they are resolved.  A returned error becomes a
// failure on the affected edge; it does not abort the resolution.
type Substituter interface {
	Apply(dep DependencyMetadata) (SubstitutionResult, error)
}

// SubstituterFunc adapts a function to the [Substituter] interface.
type SubstituterFunc func(dep DependencyMetadata) (SubstitutionResult, error)

func (f SubstituterFunc) Apply(dep DependencyMetadata) (SubstitutionResult, error) {
	return f(dep)
}

type noSubstitution struct{}

func (noSubstitution) Apply(DependencyMetadata) (SubstitutionResult, error) {
	return SubstitutionResult{}, nil
}

// SubstitutionRules is an ordered list of module substitution rules.  The first matching rule
// wins.  The zero value has no rules.
type SubstitutionRules struct {
	rules []substitutionRule
}

var _ Substituter = (*SubstitutionRules)(nil)

type substitutionRule struct {
	from    ModuleIdentity
	fromVer string // Empty matches any requested version.
	to      ModuleSelector
	reason  string
	reject  bool
}

func (r substitutionRule) matches(sel ModuleSelector) bool {
	return r.from == sel.Module && (r.fromVer == "" || r.fromVer == sel.Version)
}

// Substitute adds a rule replacing any dependency on from (at any version if fromVer is empty,
// otherwise only that exact requested version) with a dependency on to.
func (s *SubstitutionRules) Substitute(from ModuleIdentity, fromVer string, to ModuleSelector, reason string) *SubstitutionRules {
	s.rules = append(s.rules, substitutionRule{from: from, fromVer: fromVer, to: to, reason: reason})
	return s
}

// Reject adds a rule that fails every dependency on the given module.
func (s *SubstitutionRules) Reject(from ModuleIdentity, reason string) *SubstitutionRules {
	s.rules = append(s.rules, substitutionRule{from: from, reason: reason, reject: true})
	return s
}

func (s *SubstitutionRules) Apply(dep DependencyMetadata) (SubstitutionResult, error) {
	for _, r := range s.rules {
		if !r.matches(dep.Selector) {
			continue
		}
		if r.reject {
			return SubstitutionResult{}, fmt.Errorf("%v rejected: %s", dep.Selector, r.reason)
		}
		if err := r.to.Module.Check(); err != nil {
			return SubstitutionResult{}, fmt.Errorf("invalid substitution target %v: %w", r.to, err)
		}
		if r.to.Version == "" {
			return SubstitutionResult{}, errors.New("substitution target has no version")
		}
		return SubstitutionResult{Updated: true, Target: r.to, Reason: r.reason}, nil
	}
	return SubstitutionResult{}, nil
}
