package depresolve

import (
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// pendingDependencies tracks, per target module, whether a non-pending dependency on the module
// has been seen, and which nodes are holding back pending dependencies on it.  Once a module has
// been pulled in by a non-pending dependency it stays that way for the rest of the resolution.
type pendingDependencies struct {
	rs      *resolveState
	modules map[ModuleIdentity]*pendingState
}

type pendingState struct {
	module ModuleIdentity
	hard   bool
	nodes  mapset.Set[nodeId]
}

func newPendingDependencies(rs *resolveState) *pendingDependencies {
	return &pendingDependencies{rs: rs, modules: map[ModuleIdentity]*pendingState{}}
}

func (p *pendingDependencies) state(m ModuleIdentity) *pendingState {
	st := p.modules[m]
	if st == nil {
		st = &pendingState{module: m, nodes: mapset.NewThreadUnsafeSet[nodeId]()}
		p.modules[m] = st
	}
	return st
}

// start returns a visitor for one node visit.  The visitor's complete method must be called when
// the visit is done.
func (p *pendingDependencies) start() *pendingVisitor {
	return &pendingVisitor{p: p}
}

type pendingVisitor struct {
	p               *pendingDependencies
	noLongerPending []*pendingState
}

// maybeAddAsPendingDependency reports whether the dependency should be held back.  Seeing a
// non-pending dependency on a module releases every pending dependency on the same module.
func (v *pendingVisitor) maybeAddAsPendingDependency(n *nodeState, ds dependencyState) bool {
	st := v.p.state(ds.requested.Module)
	if !ds.dep.Pending {
		if !st.hard {
			st.hard = true
			if st.nodes.Cardinality() > 0 {
				v.noLongerPending = append(v.noLongerPending, st)
			}
		}
		return false
	}
	if st.hard {
		return false
	}
	st.nodes.Add(n.id)
	return true
}

// complete resets every node that held back a dependency on a module that is now in the graph so
// that the next visit turns the held dependency into an edge.
func (v *pendingVisitor) complete() {
	rs := v.p.rs
	for _, st := range v.noLongerPending {
		ids := slices.Sorted(mapset.Elements(st.nodes))
		st.nodes.Clear()
		for _, id := range ids {
			n := rs.nodes[id]
			slog.DebugContext(rs.ctx, "pending dependency activated", "module", st.module, "node", n)
			n.resetSelectionState()
		}
	}
	v.noLongerPending = nil
}
