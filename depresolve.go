// Package depresolve builds the dependency graph of a component from per-component metadata, in
// the manner of the Gradle and Ivy resolvers: dependencies name a module and a version selector,
// competing versions of the same module are reconciled by a conflict resolution policy, and exclude
// rules prune the graph along the paths that declare them.
//
// # Quick Start
//
// (The following is also available as a package-level example.)
//
// Implement [MetadataProvider], or populate the static repository from the repository
// subpackage:
//
//	repo := repository.NewStatic()
//	if err := repo.AddComponent("org.example:app:1.0", repository.Configuration("default",
//		repository.DependsOn("org.example:lib:1.+"))); err != nil {
//		return err
//	}
//	if err := repo.AddComponent("org.example:lib:1.2", repository.Configuration("default")); err != nil {
//		return err
//	}
//
// Resolve a configuration of the root component:
//
//	root, err := repo.Lookup(depresolve.NewComponentIdentity("org.example", "app", "1.0"))
//	if err != nil {
//		return err
//	}
//	g, err := depresolve.Resolve(ctx, repo, root, "default")
//	if err != nil {
//		return err
//	}
//
// Unresolvable dependencies do not make [Resolve] fail.  Check for them separately:
//
//	if err := g.Err(); err != nil {
//		return err
//	}
//
// Then examine the nodes and edges of the [Graph], directly or with [WalkGraph]:
//
//	for n := range g.Nodes() {
//		for e := range n.Outgoing() {
//			fmt.Printf("%v -> %v\n", n, e.To())
//		}
//	}
//
// # Terminology
//
//   - A module is a group and a name, such as org.example:lib.  See [ModuleIdentity].
//   - A component is one version of a module.  See [ComponentIdentity].
//   - A configuration is a named bucket of dependencies, exclude rules, and artifacts belonging to
//     a component.  See [ConfigurationMetadata].
//   - A node is one configuration of one component.  Each dependency of a node becomes an edge
//     from that node to the requested configurations of the component selected for the requested
//     module.
//   - A selector is a requested version for a module, such as 1.2, 1.+, [1.0,2.0), or latest.  See
//     [ModuleSelector].
//
// # Conflict Resolution
//
// The first component a module's selectors resolve to becomes the module's selection.  Every
// request that resolves to a different component registers a conflict.  Conflicts are resolved one
// module at a time once there is nothing else to traverse: the [ConflictResolver] picks the winner
// among the components requested by the dependencies that are still in the graph, the previous
// winner is evicted, and every edge into a losing component is moved to the winner.  The
// dependencies of the evicted component are removed from the graph, which may in turn remove other
// requests and change the outcome of other conflicts.  The root component always wins conflicts on
// its own module.
//
// A version that is requested only from within the dependencies of an older version of its own
// module (for example old-lib -> helper -> new-lib) stays selected once the older version has
// been evicted.
//
// # Exclusions
//
// An [ExcludeRule] on a configuration applies to all of that configuration's transitive
// dependencies; an exclude rule on a dependency applies to everything reached through that
// dependency.  A node reached along several paths only excludes a module if every path excludes it.
// The node's own rules always apply.  Exclusions can also name individual artifacts, in which case
// they change the artifacts reported by [Node.Artifacts] and [Edge.Artifacts] without changing the
// graph.
//
// # Pending Dependencies
//
// A dependency marked [DependencyMetadata.Pending] (a dependency constraint, for example) does not
// pull its module into the graph.  It is held back until some other, non-pending dependency on the
// same module is traversed, after which it behaves like any other dependency.
//
// # Non-Transitive Edges
//
// The targets of a non-transitive dependency, or of any dependency declared by a non-transitive
// configuration, are in the graph, but their own dependencies are not followed unless some other
// transitive edge reaches them.
package depresolve
