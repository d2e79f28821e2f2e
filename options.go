package depresolve

// An Option configures [Resolve].
type Option func(*options)

type options struct {
	resolver        ConflictResolver
	substituter     Substituter
	edgeFilter      func(DependencyMetadata) bool
	exclusions      *Exclusions
	prefetch        int
	checkInvariants bool
}

func newOptions(opts []Option) *options {
	o := &options{
		resolver:    LatestVersion,
		substituter: noSubstitution{},
		edgeFilter:  func(DependencyMetadata) bool { return true },
		prefetch:    1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.exclusions == nil {
		o.exclusions = NewExclusions()
	}
	return o
}

// WithConflictResolver sets the policy used to pick a winner among competing versions of the same
// module.  Defaults to [LatestVersion].
func WithConflictResolver(r ConflictResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithSubstituter sets the dependency substitution rules applied to every dependency before it is
// resolved.
func WithSubstituter(s Substituter) Option {
	return func(o *options) { o.substituter = s }
}

// WithEdgeFilter sets a global filter on dependencies.  Dependencies for which the filter returns
// false are dropped silently, as if excluded.
func WithEdgeFilter(f func(DependencyMetadata) bool) Option {
	return func(o *options) { o.edgeFilter = f }
}

// WithExclusions shares an [Exclusions] intern cache between resolutions.  By default each
// resolution gets its own.
func WithExclusions(x *Exclusions) Option {
	return func(o *options) { o.exclusions = x }
}

// WithPrefetch allows up to n concurrent [MetadataProvider.Resolve] calls for the dependencies
// discovered by a single node visit.  Graph mutation stays single-threaded.  The default, 1,
// disables prefetching.
func WithPrefetch(n int) Option {
	return func(o *options) { o.prefetch = max(n, 1) }
}

// WithInvariantChecks verifies the internal consistency of the graph after every step and fails
// the resolution with an error describing the first violation found.  Slow; meant for tests.
func WithInvariantChecks() Option {
	return func(o *options) { o.checkInvariants = true }
}
