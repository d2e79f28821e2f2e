package depresolve

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// A Graph is the result of [Resolve]: the selected nodes reachable from the root and the edges
// between them.  A Graph is immutable and safe for concurrent use.
type Graph struct {
	root     *Node
	nodes    []*Node
	index    map[nodeKey]*Node
	selected map[ModuleIdentity]ComponentIdentity
	failures []*ResolveError
}

// A Node is one configuration of one selected component.
type Node struct {
	metadata  *ComponentMetadata
	conf      *ConfigurationMetadata
	artifacts []Artifact
	files     []FileDependency
	incoming  []*Edge
	outgoing  []*Edge
}

// Component returns the identity of the node's component.
func (n *Node) Component() ComponentIdentity {
	return n.metadata.Id
}

// Metadata returns the metadata of the node's component.
func (n *Node) Metadata() *ComponentMetadata {
	return n.metadata
}

// Configuration returns the name of the node's configuration.
func (n *Node) Configuration() string {
	return n.conf.Name
}

// Artifacts returns the configuration's artifacts minus those excluded along every path into the
// node.
func (n *Node) Artifacts() []Artifact {
	return slices.Clone(n.artifacts)
}

// Incoming returns the edges into the node, in the order they were attached.
func (n *Node) Incoming() iter.Seq[*Edge] {
	return slices.Values(n.incoming)
}

// Outgoing returns the node's edges, in dependency declaration order.  Dependencies that were
// excluded, filtered, or held back as pending have no edge.
func (n *Node) Outgoing() iter.Seq[*Edge] {
	return slices.Values(n.outgoing)
}

// OutgoingFileEdges returns the file-only dependencies of a [KindLocal] configuration.  They are
// only reported if the node is the root or is reached by at least one transitive edge.
func (n *Node) OutgoingFileEdges() []FileDependency {
	return slices.Clone(n.files)
}

func (n *Node) String() string {
	return fmt.Sprintf("%v(%s)", n.metadata.Id, n.conf.Name)
}

// An Edge is one resolved (or failed) dependency of a node.
type Edge struct {
	from       *Node
	to         []*Node
	dep        DependencyMetadata
	requested  ModuleSelector
	reason     string
	failure    error
	artifacts  []Artifact
	transitive bool
}

func (e *Edge) From() *Node {
	return e.from
}

// To returns the target nodes, one per target configuration.  Empty if the edge failed.
func (e *Edge) To() []*Node {
	return slices.Clone(e.to)
}

// Dependency returns the declared dependency, before substitution.
func (e *Edge) Dependency() DependencyMetadata {
	return e.dep
}

// Requested returns the selector that was resolved, after substitution.
func (e *Edge) Requested() ModuleSelector {
	return e.requested
}

// Reason returns the reason given by the substitution rule that rewrote the dependency, if any.
func (e *Edge) Reason() string {
	return e.reason
}

// Failure returns the edge's [*ResolveError], or nil if the edge resolved.
func (e *Edge) Failure() error {
	return e.failure
}

// Transitive reports whether the dependencies of the edge's targets were followed through this
// edge.
func (e *Edge) Transitive() bool {
	return e.transitive
}

// Artifacts returns the dependency's own artifacts if it declares any, otherwise the target
// configurations' artifacts that are not excluded along this edge.
func (e *Edge) Artifacts() []Artifact {
	return slices.Clone(e.artifacts)
}

func (e *Edge) String() string {
	return fmt.Sprintf("%v -> %v", e.from, e.requested)
}

// Root returns the root node.
func (g *Graph) Root() *Node {
	return g.root
}

// Nodes returns every node in breadth-first order from the root.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return slices.Values(g.nodes)
}

// Node returns the node for the given configuration of the given component, or nil if it is not
// in the graph.
func (g *Graph) Node(c ComponentIdentity, configuration string) *Node {
	return g.index[nodeKey{c, configuration}]
}

// Selected returns the component selected for the given module.
func (g *Graph) Selected(m ModuleIdentity) (ComponentIdentity, bool) {
	c, ok := g.selected[m]
	return c, ok
}

// Failures returns every edge failure, sorted by declaring component, configuration, and
// requested selector.
func (g *Graph) Failures() []*ResolveError {
	return slices.Clone(g.failures)
}

// Err joins [Graph.Failures] into a single error.  Returns nil if there are no failures.
func (g *Graph) Err() error {
	errs := make([]error, 0, len(g.failures))
	for _, f := range g.failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// newGraph snapshots the live, root-reachable part of the resolve state.
func newGraph(rs *resolveState) *Graph {
	g := &Graph{
		index:    map[nodeKey]*Node{},
		selected: map[ModuleIdentity]ComponentIdentity{},
	}
	states := map[nodeId]*Node{}
	var q []*nodeState
	get := func(ns *nodeState) *Node {
		n := states[ns.id]
		if n == nil {
			n = &Node{metadata: ns.component.metadata, conf: ns.conf}
			states[ns.id] = n
			g.nodes = append(g.nodes, n)
			g.index[nodeKey{ns.component.id, ns.conf.Name}] = n
			g.selected[ns.component.id.Module] = ns.component.id
			q = append(q, ns)
		}
		return n
	}
	g.root = get(rs.root)
	exclusions := map[*Node]*ModuleExclusion{}
	x := rs.exclusions
	for len(q) > 0 {
		ns := q[0]
		q = q[1:]
		from := states[ns.id]
		for eid := range ns.outgoing.All() {
			es := rs.edges[eid]
			e := &Edge{
				from:       from,
				dep:        es.dep.dep,
				requested:  es.dep.requested,
				reason:     es.dep.reason,
				transitive: es.isTransitive(),
			}
			from.outgoing = append(from.outgoing, e)
			if es.failure != nil {
				e.failure = es.failure
				g.failures = append(g.failures, es.failure.(*ResolveError))
				continue
			}
			ex := es.exclusions()
			for tid := range es.targets.All() {
				ts := rs.nodes[tid]
				to := get(ts)
				e.to = append(e.to, to)
				to.incoming = append(to.incoming, e)
				if prev, ok := exclusions[to]; ok {
					exclusions[to] = x.Union(prev, ex)
				} else {
					exclusions[to] = ex
				}
				if len(e.dep.Artifacts) == 0 {
					e.artifacts = append(e.artifacts, filterArtifacts(ts.component.id.Module, ts.conf.Artifacts, ex)...)
				}
			}
			if len(e.dep.Artifacts) > 0 {
				e.artifacts = slices.Clone(e.dep.Artifacts)
			}
		}
	}
	for id, n := range states {
		ns := rs.nodes[id]
		ex, ok := exclusions[n]
		if !ok || ns.isRoot() {
			ex = x.ExcludeNone()
		}
		n.artifacts = filterArtifacts(ns.component.id.Module, ns.conf.Artifacts, ex)
		if ns.component.metadata.Kind == KindLocal && (ns.isRoot() || slices.ContainsFunc(n.incoming, (*Edge).Transitive)) {
			n.files = slices.Clone(ns.conf.Files)
		}
	}
	slices.SortFunc(g.failures, func(a, b *ResolveError) int {
		return cmp.Or(
			ComponentIdentityCompare(a.From, b.From),
			cmp.Compare(a.FromConf, b.FromConf),
			cmp.Compare(a.Requested.String(), b.Requested.String()))
	})
	return g
}

func filterArtifacts(m ModuleIdentity, as []Artifact, ex *ModuleExclusion) []Artifact {
	if !ex.MayExcludeArtifacts() {
		return slices.Clone(as)
	}
	var ret []Artifact
	for _, a := range as {
		if !ex.ExcludeArtifact(m, a) {
			ret = append(ret, a)
		}
	}
	return ret
}

// DependenciesFirst returns the graph's nodes ordered so that every node comes after the targets
// of its edges, except where a cycle makes that impossible.  The root is last.  The order is
// deterministic: targets are visited in dependency declaration order.
func DependenciesFirst(g *Graph) []*Node {
	seen := mapset.NewThreadUnsafeSet[*Node]()
	var order []*Node
	var visit func(n *Node)
	visit = func(n *Node) {
		if !seen.Add(n) {
			return
		}
		for _, e := range n.outgoing {
			for _, m := range e.to {
				visit(m)
			}
		}
		order = append(order, n)
	}
	visit(g.root)
	return order
}
