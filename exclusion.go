package depresolve

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rhansen/depresolve/internal/syncmap"
)

// An ExcludeRule removes matching modules (or just matching artifacts) from the part of the graph
// reached through the declaring configuration or dependency.  Empty fields and "*" match anything.
// A rule with any of Artifact, Type, or Extension set only excludes artifacts, never whole modules.
type ExcludeRule struct {
	Group     string
	Name      string
	Artifact  string
	Type      string
	Extension string
	// Configurations restricts an Ivy rule to the listed configurations of the declaring
	// component.  Ignored for other metadata kinds.
	Configurations []string
}

// ExcludeModuleRule returns a rule that excludes every module matching the given group and name
// ("*" or empty for any).
func ExcludeModuleRule(group, name string) ExcludeRule {
	return ExcludeRule{Group: group, Name: name}
}

func (r ExcludeRule) String() string {
	return r.pattern().String()
}

// pattern is the normalized form of an [ExcludeRule].  The empty string matches anything.
type pattern struct {
	group, name        string
	artifact, typ, ext string
}

func wildcard(s string) string {
	if s == "*" {
		return ""
	}
	return s
}

func (r ExcludeRule) pattern() pattern {
	return pattern{
		group:    wildcard(r.Group),
		name:     wildcard(r.Name),
		artifact: wildcard(r.Artifact),
		typ:      wildcard(r.Type),
		ext:      wildcard(r.Extension),
	}
}

func (p pattern) artifactLevel() bool {
	return p.artifact != "" || p.typ != "" || p.ext != ""
}

func (p pattern) matchesModule(m ModuleIdentity) bool {
	return (p.group == "" || p.group == m.Group) && (p.name == "" || p.name == m.Name)
}

func (p pattern) matchesArtifact(a Artifact) bool {
	return (p.artifact == "" || p.artifact == a.Name) &&
		(p.typ == "" || p.typ == a.Type) &&
		(p.ext == "" || p.ext == a.Extension)
}

// subsumes reports whether everything matched by q is also matched by p.
func (p pattern) subsumes(q pattern) bool {
	covers := func(a, b string) bool { return a == "" || a == b }
	return covers(p.group, q.group) && covers(p.name, q.name) &&
		covers(p.artifact, q.artifact) && covers(p.typ, q.typ) && covers(p.ext, q.ext)
}

// meet returns the pattern matching exactly what both p and q match, or false if nothing matches
// both.
func (p pattern) meet(q pattern) (pattern, bool) {
	ok := true
	f := func(a, b string) string {
		switch {
		case a == "":
			return b
		case b == "" || a == b:
			return a
		default:
			ok = false
			return ""
		}
	}
	m := pattern{
		group:    f(p.group, q.group),
		name:     f(p.name, q.name),
		artifact: f(p.artifact, q.artifact),
		typ:      f(p.typ, q.typ),
		ext:      f(p.ext, q.ext),
	}
	return m, ok
}

func (p pattern) String() string {
	star := func(s string) string {
		if s == "" {
			return "*"
		}
		return s
	}
	s := star(p.group) + ":" + star(p.name)
	if p.artifactLevel() {
		s += fmt.Sprintf("[%s.%s(%s)]", star(p.artifact), star(p.ext), star(p.typ))
	}
	return s
}

// key is an unambiguous encoding of p, unlike String, whose output can collide for names
// containing separators.
func (p pattern) key() string {
	return strings.Join([]string{
		strconv.Quote(p.group), strconv.Quote(p.name),
		strconv.Quote(p.artifact), strconv.Quote(p.typ), strconv.Quote(p.ext),
	}, ":")
}

func comparePatterns(a, b pattern) int {
	return cmp.Or(
		strings.Compare(a.group, b.group),
		strings.Compare(a.name, b.name),
		strings.Compare(a.artifact, b.artifact),
		strings.Compare(a.typ, b.typ),
		strings.Compare(a.ext, b.ext))
}

// A ModuleExclusion is an immutable exclusion filter.  Filters are created by and interned in an
// [Exclusions] factory: two filters from the same factory that exclude exactly the same modules and
// artifacts are the same pointer.
//
// Internally a filter is a minimal set of patterns; a module is excluded if any module-level
// pattern matches it.  This normal form is closed under [Exclusions.Union] and
// [Exclusions.Intersect], which is what makes [ModuleExclusion.ExcludesSameModulesAs] exact.
type ModuleExclusion struct {
	id        uint64
	patterns  []pattern
	moduleKey string
}

// IsNone reports whether the filter excludes nothing.
func (e *ModuleExclusion) IsNone() bool {
	return len(e.patterns) == 0
}

// ExcludeModule reports whether the filter excludes the whole module.
func (e *ModuleExclusion) ExcludeModule(m ModuleIdentity) bool {
	for _, p := range e.patterns {
		if !p.artifactLevel() && p.matchesModule(m) {
			return true
		}
	}
	return false
}

// ExcludeArtifact reports whether the filter excludes the given artifact of the given module.
func (e *ModuleExclusion) ExcludeArtifact(m ModuleIdentity, a Artifact) bool {
	for _, p := range e.patterns {
		if p.matchesModule(m) && p.matchesArtifact(a) {
			return true
		}
	}
	return false
}

// MayExcludeArtifacts reports whether the filter has any artifact-level patterns.
func (e *ModuleExclusion) MayExcludeArtifacts() bool {
	return slices.ContainsFunc(e.patterns, pattern.artifactLevel)
}

// ExcludesSameModulesAs reports whether both filters exclude exactly the same set of modules.  The
// filters may still differ in which artifacts they exclude.
func (e *ModuleExclusion) ExcludesSameModulesAs(other *ModuleExclusion) bool {
	return e == other || e.moduleKey == other.moduleKey
}

func (e *ModuleExclusion) String() string {
	if e.IsNone() {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range e.patterns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteByte('}')
	return b.String()
}

// Exclusions creates, interns, and memoizes [ModuleExclusion] filters.  The zero value is not
// usable; call [NewExclusions].  An Exclusions is safe for concurrent use and may be shared between
// resolutions (see [WithExclusions]).
type Exclusions struct {
	nextId    atomic.Uint64
	none      *ModuleExclusion
	interned  syncmap.Map[string, *ModuleExclusion]
	unions    syncmap.Map[[2]uint64, *ModuleExclusion]
	intersect syncmap.Map[[2]uint64, *ModuleExclusion]
}

// NewExclusions returns an empty [Exclusions] factory.
func NewExclusions() *Exclusions {
	x := &Exclusions{}
	x.none = x.intern(nil)
	return x
}

// ExcludeNone returns the filter that excludes nothing.  It is the identity element of
// [Exclusions.Intersect] and the absorbing element of [Exclusions.Union].
func (x *Exclusions) ExcludeNone() *ModuleExclusion {
	return x.none
}

// ExcludeAny returns a filter that excludes anything matched by any of the given rules.
func (x *Exclusions) ExcludeAny(rules []ExcludeRule) *ModuleExclusion {
	if len(rules) == 0 {
		return x.none
	}
	ps := make([]pattern, 0, len(rules))
	for _, r := range rules {
		ps = append(ps, r.pattern())
	}
	return x.intern(ps)
}

// Union returns a filter that excludes only what both a and b exclude.  It is used to merge the
// filters of parallel paths into a node: a module is only excluded if every path excludes it.
func (x *Exclusions) Union(a, b *ModuleExclusion) *ModuleExclusion {
	switch {
	case a == b:
		return a
	case a.IsNone() || b.IsNone():
		return x.none
	}
	return memo(&x.unions, a, b, func() *ModuleExclusion {
		var ps []pattern
		for _, p := range a.patterns {
			for _, q := range b.patterns {
				if m, ok := p.meet(q); ok {
					ps = append(ps, m)
				}
			}
		}
		return x.intern(ps)
	})
}

// Intersect returns a filter that excludes anything excluded by a or by b.  It is used to combine
// a node's own exclude rules with the filter inherited along the paths into it.
func (x *Exclusions) Intersect(a, b *ModuleExclusion) *ModuleExclusion {
	switch {
	case a == b || b.IsNone():
		return a
	case a.IsNone():
		return b
	}
	return memo(&x.intersect, a, b, func() *ModuleExclusion {
		return x.intern(slices.Concat(a.patterns, b.patterns))
	})
}

func memo(m *syncmap.Map[[2]uint64, *ModuleExclusion], a, b *ModuleExclusion, f func() *ModuleExclusion) *ModuleExclusion {
	k := [2]uint64{min(a.id, b.id), max(a.id, b.id)}
	if e, ok := m.Load(k); ok {
		return e
	}
	e, _ := m.LoadOrStore(k, f())
	return e
}

// intern normalizes the patterns to a minimal sorted antichain and returns the canonical filter.
func (x *Exclusions) intern(ps []pattern) *ModuleExclusion {
	uniq := mapset.NewThreadUnsafeSet(ps...).ToSlice()
	var minimal []pattern
	for i, p := range uniq {
		subsumed := false
		for j, q := range uniq {
			if i != j && q.subsumes(p) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			minimal = append(minimal, p)
		}
	}
	slices.SortFunc(minimal, comparePatterns)
	var keys, moduleKeys []string
	for _, p := range minimal {
		keys = append(keys, p.key())
		if !p.artifactLevel() {
			moduleKeys = append(moduleKeys, p.key())
		}
	}
	key := strings.Join(keys, ",")
	if e, ok := x.interned.Load(key); ok {
		return e
	}
	e, _ := x.interned.LoadOrStore(key, &ModuleExclusion{
		id:        x.nextId.Add(1),
		patterns:  minimal,
		moduleKey: strings.Join(moduleKeys, ","),
	})
	return e
}
