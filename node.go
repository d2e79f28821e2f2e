package depresolve

import (
	"fmt"
	"log/slog"

	"github.com/rhansen/depresolve/internal/logging"
	"github.com/rhansen/depresolve/internal/orderedset"
)

// nodeState is one configuration of one component: a vertex of the graph.  A node is never
// deleted.  It is deselected by clearing its edges, and it is left out of the result if nothing
// reachable from the root points at it.
type nodeState struct {
	id         nodeId
	component  *componentState
	conf       *ConfigurationMetadata
	transitive bool
	excludes   []ExcludeRule
	rs         *resolveState

	incoming orderedset.Set[edgeId]
	outgoing orderedset.Set[edgeId]
	// previousTraversalExclusions is nil iff the outgoing edges have not been computed since the
	// node was created or last cleared.
	previousTraversalExclusions *ModuleExclusion
	// detachedBy is the module whose eviction removed the node's last incoming edge, if any.
	detachedBy *moduleState
}

func (n *nodeState) String() string {
	return fmt.Sprintf("%v(%s)", n.component.id, n.conf.Name)
}

func (n *nodeState) isRoot() bool {
	return n == n.rs.root
}

func (n *nodeState) isSelected() bool {
	return n.isRoot() || n.incoming.Len() > 0
}

// visitOutgoingDependencies (re)computes the node's outgoing edges if its incoming edges call for
// it.  New edges are appended to discovered; their targets are resolved by the caller.
func (n *nodeState) visitOutgoingDependencies(discovered *[]*edgeState) {
	rs := n.rs
	if !n.component.isSelected() {
		slog.Log(rs.ctx, logging.LevelTrace, "skipping node of unselected component", "node", n)
		return
	}
	filter := n.traversalExclusions()
	if filter == nil {
		if n.previousTraversalExclusions != nil {
			slog.DebugContext(rs.ctx, "node no longer reached transitively", "node", n)
			n.removeOutgoingEdges(n.detachedBy)
		}
		return
	}
	if prev := n.previousTraversalExclusions; prev != nil {
		if prev.ExcludesSameModulesAs(filter) {
			if prev != filter {
				// Same edges, but the artifacts excluded along them may have changed.
				n.previousTraversalExclusions = filter
				for eid := range n.outgoing.All() {
					for tid := range rs.edges[eid].targets.All() {
						rs.enqueue(rs.nodes[tid])
					}
				}
			}
			slog.Log(rs.ctx, logging.LevelTrace, "exclusions unchanged; keeping outgoing edges",
				"node", n, "exclusions", filter)
			return
		}
		slog.DebugContext(rs.ctx, "exclusions changed; recomputing outgoing edges",
			"node", n, "old", prev, "new", filter)
		n.removeOutgoingEdges(nil)
	}
	visitor := rs.pending.start()
	defer visitor.complete()
	for i, dep := range n.conf.Dependencies {
		n.visitDependency(i, dep, filter, visitor, discovered)
	}
	n.previousTraversalExclusions = filter
}

// traversalExclusions returns the filter that applies to the node's dependencies, or nil if the
// node is not reached by any transitive edge.  A dependency is excluded if the node's own rules
// exclude it or if every transitive path into the node excludes it.
func (n *nodeState) traversalExclusions() *ModuleExclusion {
	x := n.rs.exclusions
	own := x.ExcludeAny(n.excludes)
	if n.isRoot() {
		return own
	}
	var inherited *ModuleExclusion
	for eid := range n.incoming.All() {
		e := n.rs.edges[eid]
		if !e.isTransitive() {
			continue
		}
		if inherited == nil {
			inherited = e.exclusions()
		} else {
			inherited = x.Union(inherited, e.exclusions())
		}
	}
	if inherited == nil {
		return nil
	}
	return x.Intersect(own, inherited)
}

func (n *nodeState) visitDependency(i int, dep DependencyMetadata, filter *ModuleExclusion, visitor *pendingVisitor, discovered *[]*edgeState) {
	rs := n.rs
	if filter.ExcludeModule(dep.Selector.Module) {
		slog.Log(rs.ctx, logging.LevelTrace, "dependency excluded", "node", n, "dependency", dep, "exclusions", filter)
		return
	}
	if !rs.opts.edgeFilter(dep) {
		slog.Log(rs.ctx, logging.LevelTrace, "dependency filtered", "node", n, "dependency", dep)
		return
	}
	ds := dependencyState{index: i, dep: dep, requested: dep.Selector}
	switch res, err := rs.opts.substituter.Apply(dep); {
	case err != nil:
		ds.failure = fmt.Errorf("%w: %w", ErrSubstitution, err)
	case res.Updated:
		slog.DebugContext(rs.ctx, "dependency substituted", "node", n, "from", dep.Selector, "to", res.Target, "reason", res.Reason)
		ds.requested = res.Target
		ds.reason = res.Reason
	}
	if visitor.maybeAddAsPendingDependency(n, ds) {
		slog.Log(rs.ctx, logging.LevelTrace, "dependency pending", "node", n, "dependency", dep)
		return
	}
	*discovered = append(*discovered, rs.newEdge(n, ds))
}

// removeOutgoingEdges detaches every outgoing edge from its targets and releases its selector.
// evicted is the module whose eviction led to the removal, or nil.
func (n *nodeState) removeOutgoingEdges(evicted *moduleState) {
	rs := n.rs
	for eid := range n.outgoing.All() {
		rs.edges[eid].remove(evicted)
	}
	n.outgoing.Clear()
	n.previousTraversalExclusions = nil
}

// restart is called when the node's module has (re)selected a winner.  The winner's nodes are
// traversed again; every other node hands its incoming edges over to the winner.
func (n *nodeState) restart(winner *componentState) {
	if n.component == winner {
		n.rs.enqueue(n)
		return
	}
	for _, eid := range n.incoming.Slice() {
		n.rs.edges[eid].restart()
	}
}

// resetSelectionState forces the node to recompute its outgoing edges.
func (n *nodeState) resetSelectionState() {
	n.removeOutgoingEdges(nil)
	n.rs.enqueue(n)
}

// deselect clears the outgoing edges of a node whose component lost conflict resolution.
func (n *nodeState) deselect() {
	n.removeOutgoingEdges(n.component.module)
}

func (n *nodeState) addIncoming(e *edgeState) {
	if n.incoming.Add(e.id) {
		n.detachedBy = nil
		n.rs.onMoreSelected(n)
	}
}

func (n *nodeState) removeIncoming(e *edgeState, evicted *moduleState) {
	if n.incoming.Remove(e.id) {
		if n.incoming.Len() == 0 {
			n.detachedBy = evicted
		}
		n.rs.onFewerSelected(n)
	}
}

// dependencyState is one declared dependency after substitution.
type dependencyState struct {
	index     int // Position in the declaring configuration.
	dep       DependencyMetadata
	requested ModuleSelector
	reason    string
	failure   error
}
