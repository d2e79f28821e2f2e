package depresolve

import (
	"fmt"
	"log/slog"

	"github.com/rhansen/depresolve/internal/logging"
	"github.com/rhansen/depresolve/internal/orderedset"
)

// edgeState is one outgoing dependency of a node.  It targets one node per requested
// configuration of the selected component of the requested module.
type edgeState struct {
	id       edgeId
	from     *nodeState
	dep      dependencyState
	excludes *ModuleExclusion // The dependency's own exclude rules.
	// selector is nil if the dependency failed before it could be resolved.
	selector *selectorState
	target   *componentState
	targets  orderedset.Set[nodeId]
	failure  error
	removed  bool
}

func (rs *resolveState) newEdge(from *nodeState, ds dependencyState) *edgeState {
	e := &edgeState{
		id:       edgeId(len(rs.edges)),
		from:     from,
		dep:      ds,
		excludes: rs.exclusions.ExcludeAny(ds.dep.Excludes),
	}
	rs.edges = append(rs.edges, e)
	from.outgoing.Add(e.id)
	if ds.failure != nil {
		e.fail(ds.failure)
		return e
	}
	e.selector = rs.module(ds.requested.Module).selector(ds.requested, ds.dep.Force)
	e.selector.use()
	return e
}

func (e *edgeState) String() string {
	return fmt.Sprintf("%v -> %v", e.from, e.dep.requested)
}

func (e *edgeState) fail(err error) {
	e.failure = &ResolveError{
		From:      e.from.component.id,
		FromConf:  e.from.conf.Name,
		Requested: e.dep.requested,
		Err:       err,
	}
	slog.DebugContext(e.from.rs.ctx, "edge failed", "edge", e, "err", err)
}

func (e *edgeState) isTransitive() bool {
	return e.from.transitive && e.dep.dep.Transitive
}

// exclusions returns the filter passed along this edge to its targets: whatever the source node
// excluded plus the dependency's own exclude rules.
func (e *edgeState) exclusions() *ModuleExclusion {
	x := e.from.rs.exclusions
	from := e.from.previousTraversalExclusions
	if from == nil {
		from = x.ExcludeNone()
	}
	return x.Intersect(from, e.excludes)
}

// resolve resolves the edge's selector and attaches the edge to the selected component, selecting
// the resolved component first if the module has no selection yet.  The returned error is fatal.
func (e *edgeState) resolve() error {
	if e.removed || e.selector == nil {
		return nil
	}
	s := e.selector
	if err := s.resolve(); err != nil {
		return err
	}
	if s.failure != nil {
		e.fail(s.failure)
		return nil
	}
	ms := s.module
	switch {
	case ms.selected == nil:
		ms.selectInitial(s.component)
	case ms.selected != s.component:
		slog.DebugContext(ms.rs.ctx, "version conflict", "module", ms.id,
			"selected", ms.selected, "requested", s.component, "by", e.from)
		ms.rs.registerConflict(ms)
	}
	e.target = s.component
	e.attachToTargetConfigurations()
	return nil
}

// attachToTargetConfigurations connects the edge to the nodes of its target component, or parks it
// on the module until conflict resolution picks a selection if the target is not selected.
func (e *edgeState) attachToTargetConfigurations() {
	c := e.target
	if !c.isSelected() {
		slog.Log(c.module.rs.ctx, logging.LevelTrace, "target not selected; deferring attach", "edge", e, "target", c)
		c.module.unattached = append(c.module.unattached, e)
		return
	}
	rs := c.module.rs
	var nodes []*nodeState
	for _, name := range e.dep.dep.targetConfigurations() {
		conf := c.metadata.Configuration(name)
		if conf == nil {
			e.fail(fmt.Errorf("%w: %v has no configuration %q", ErrMissingConfiguration, c.id, name))
			return
		}
		nodes = append(nodes, rs.node(c, conf))
	}
	for _, n := range nodes {
		if e.targets.Add(n.id) {
			n.addIncoming(e)
		}
	}
	slog.Log(rs.ctx, logging.LevelTrace, "attached edge", "edge", e, "target", c)
}

func (e *edgeState) removeFromTargetConfigurations(evicted *moduleState) {
	rs := e.from.rs
	for _, tid := range e.targets.Slice() {
		rs.nodes[tid].removeIncoming(e, evicted)
	}
	e.targets.Clear()
}

// restart moves the edge to its module's current selection.
func (e *edgeState) restart() {
	if e.removed || e.selector == nil {
		return
	}
	e.removeFromTargetConfigurations(nil)
	e.failure = nil
	e.target = e.selector.component
	if sel := e.selector.module.selected; sel != nil {
		e.target = sel
	}
	if e.target == nil {
		e.fail(e.selector.failure)
		return
	}
	e.attachToTargetConfigurations()
}

// remove detaches the edge from both ends.  The edge is dead afterward; it is never reused.
func (e *edgeState) remove(evicted *moduleState) {
	e.removeFromTargetConfigurations(evicted)
	if e.selector != nil {
		e.selector.release(evicted)
	}
	e.removed = true
}
