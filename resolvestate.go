package depresolve

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rhansen/depresolve/internal/itertools"
	"github.com/rhansen/depresolve/internal/logging"
	"golang.org/x/sync/errgroup"
)

type nodeId uint32
type edgeId uint32

type nodeKey struct {
	component ComponentIdentity
	conf      string
}

type metadataResult struct {
	md  *ComponentMetadata
	err error
}

// resolveState is the global context of one resolution: the registries of modules, components,
// and selectors, the node and edge arenas, and the work queues.  Every method runs on the single
// traversal goroutine except the provider calls made by prefetch.
type resolveState struct {
	ctx        context.Context
	opts       *options
	provider   MetadataProvider
	exclusions *Exclusions

	modules    map[ModuleIdentity]*moduleState
	components map[ComponentIdentity]*componentState
	metadata   map[ModuleSelector]metadataResult

	nodes     []*nodeState
	nodeIndex map[nodeKey]nodeId
	edges     []*edgeState

	queue     []nodeId
	queued    mapset.Set[nodeId]
	conflicts []*moduleState
	pending   *pendingDependencies

	root *nodeState
}

func newResolveState(ctx context.Context, provider MetadataProvider, opts *options) *resolveState {
	rs := &resolveState{
		ctx:        ctx,
		opts:       opts,
		provider:   provider,
		exclusions: opts.exclusions,
		modules:    map[ModuleIdentity]*moduleState{},
		components: map[ComponentIdentity]*componentState{},
		metadata:   map[ModuleSelector]metadataResult{},
		nodeIndex:  map[nodeKey]nodeId{},
		queued:     mapset.NewThreadUnsafeSet[nodeId](),
	}
	rs.pending = newPendingDependencies(rs)
	return rs
}

func (rs *resolveState) module(m ModuleIdentity) *moduleState {
	ms := rs.modules[m]
	if ms == nil {
		ms = &moduleState{id: m, rs: rs, selectors: map[selectorKey]*selectorState{}}
		rs.modules[m] = ms
	}
	return ms
}

// component returns the unique component state for the metadata's identity.  Metadata for an
// already-known component is ignored.
func (rs *resolveState) component(md *ComponentMetadata) *componentState {
	c := rs.components[md.Id]
	if c == nil {
		ms := rs.module(md.Id.Module)
		c = &componentState{id: md.Id, module: ms, metadata: md}
		rs.components[md.Id] = c
		ms.components = append(ms.components, c)
	}
	return c
}

// node returns the unique node for the given configuration of the given component, creating it
// if necessary.
func (rs *resolveState) node(c *componentState, conf *ConfigurationMetadata) *nodeState {
	k := nodeKey{c.id, conf.Name}
	if id, ok := rs.nodeIndex[k]; ok {
		return rs.nodes[id]
	}
	n := &nodeState{
		id:         nodeId(len(rs.nodes)),
		component:  c,
		conf:       conf,
		transitive: conf.Transitive,
		excludes:   c.metadata.excludes(conf),
		rs:         rs,
	}
	rs.nodes = append(rs.nodes, n)
	rs.nodeIndex[k] = n.id
	c.nodes = append(c.nodes, n.id)
	slog.Log(rs.ctx, logging.LevelTrace, "created node", "node", n)
	return n
}

func (rs *resolveState) enqueue(n *nodeState) {
	if rs.queued.Add(n.id) {
		rs.queue = append(rs.queue, n.id)
	}
}

func (rs *resolveState) dequeue() (*nodeState, bool) {
	if len(rs.queue) == 0 {
		return nil, false
	}
	id := rs.queue[0]
	rs.queue = rs.queue[1:]
	rs.queued.Remove(id)
	return rs.nodes[id], true
}

// onMoreSelected and onFewerSelected are called whenever a node's incoming edge set changes.
func (rs *resolveState) onMoreSelected(n *nodeState) {
	rs.enqueue(n)
}

func (rs *resolveState) onFewerSelected(n *nodeState) {
	rs.enqueue(n)
}

func (rs *resolveState) registerConflict(ms *moduleState) {
	if !ms.conflicted {
		ms.conflicted = true
		rs.conflicts = append(rs.conflicts, ms)
	}
}

func (rs *resolveState) nextConflict() *moduleState {
	if len(rs.conflicts) == 0 {
		return nil
	}
	ms := rs.conflicts[0]
	rs.conflicts = rs.conflicts[1:]
	return ms
}

// resolveMetadata calls the provider for the given selector at most once per resolution.
func (rs *resolveState) resolveMetadata(sel ModuleSelector) metadataResult {
	r, ok := rs.metadata[sel]
	if !ok {
		md, err := rs.provider.Resolve(rs.ctx, sel)
		r = metadataResult{md, err}
		rs.metadata[sel] = r
	}
	return r
}

// prefetch fetches the metadata for the given edges' selectors concurrently so that resolving the
// edges afterward does not wait on the provider one selector at a time.
func (rs *resolveState) prefetch(edges []*edgeState) error {
	if rs.opts.prefetch <= 1 {
		return nil
	}
	want := mapset.NewThreadUnsafeSet[ModuleSelector]()
	for _, e := range edges {
		if e.selector == nil || e.selector.resolved {
			continue
		}
		if _, ok := rs.metadata[e.selector.key.sel]; !ok {
			want.Add(e.selector.key.sel)
		}
	}
	if want.Cardinality() < 2 {
		return nil
	}
	sels := slices.SortedFunc(mapset.Elements(want), func(a, b ModuleSelector) int {
		return cmp.Or(ModuleIdentityCompare(a.Module, b.Module), strings.Compare(a.Version, b.Version))
	})
	results := make([]metadataResult, len(sels))
	var gr errgroup.Group
	gr.SetLimit(rs.opts.prefetch)
	for i, sel := range sels {
		gr.Go(func() error {
			if err := context.Cause(rs.ctx); err != nil {
				return err
			}
			md, err := rs.provider.Resolve(rs.ctx, sel)
			results[i] = metadataResult{md, err}
			return nil
		})
	}
	if err := gr.Wait(); err != nil {
		return err
	}
	for i, sel := range sels {
		rs.metadata[sel] = results[i]
	}
	slog.DebugContext(rs.ctx, "prefetched metadata", "count", len(sels))
	return nil
}

// pruneUnreachable deselects nodes that still have incoming edges but can no longer be reached
// from the root; such nodes are kept alive only by a cycle among themselves.  Reports whether
// anything was pruned.
func (rs *resolveState) pruneUnreachable() bool {
	reachable := rs.reachable()
	pruned := false
	for id := range itertools.Range(nodeId(0), nodeId(len(rs.nodes))) {
		n := rs.nodes[id]
		if reachable.Contains(id) || n.outgoing.Len() == 0 {
			continue
		}
		slog.DebugContext(rs.ctx, "pruning node unreachable from root", "node", n)
		n.removeOutgoingEdges(nil)
		pruned = true
	}
	return pruned
}

func (rs *resolveState) reachable() mapset.Set[nodeId] {
	seen := mapset.NewThreadUnsafeSet(rs.root.id)
	q := []*nodeState{rs.root}
	for len(q) > 0 {
		n := q[0]
		q = q[1:]
		for eid := range n.outgoing.All() {
			for tid := range rs.edges[eid].targets.All() {
				if seen.Add(tid) {
					q = append(q, rs.nodes[tid])
				}
			}
		}
	}
	return seen
}

// collectGarbage drops the selection of every module that is no longer referenced by any live
// selector.  The nodes of such modules have no incoming edges and have already been visited, so
// their outgoing edges are gone.
func (rs *resolveState) collectGarbage() {
	for _, ms := range rs.modules {
		if ms.selected == nil || len(ms.selectors) > 0 || ms.selected == rs.root.component {
			continue
		}
		slog.DebugContext(rs.ctx, "module no longer referenced", "module", ms.id, "was", ms.selected)
		ms.selected.state = stateCandidate
		ms.selected = nil
	}
}

// checkInvariants verifies the bidirectional edge invariants and the absence of duplicate
// outgoing edges.
func (rs *resolveState) checkInvariants() error {
	for _, n := range rs.nodes {
		deps := mapset.NewThreadUnsafeSet[int]()
		for eid := range n.outgoing.All() {
			e := rs.edges[eid]
			if e.removed || e.from != n {
				return fmt.Errorf("bug: node %v has stale outgoing edge %v", n, e)
			}
			if !deps.Add(e.dep.index) {
				return fmt.Errorf("bug: node %v has duplicate outgoing edges for dependency %v", n, e.dep.dep)
			}
			for tid := range e.targets.All() {
				if !rs.nodes[tid].incoming.Contains(eid) {
					return fmt.Errorf("bug: edge %v targets %v but is not an incoming edge of it", e, rs.nodes[tid])
				}
			}
		}
		for eid := range n.incoming.All() {
			e := rs.edges[eid]
			if e.removed || !e.targets.Contains(n.id) || !e.from.outgoing.Contains(eid) {
				return fmt.Errorf("bug: node %v has inconsistent incoming edge %v", n, e)
			}
		}
		if n.previousTraversalExclusions == nil && n.outgoing.Len() > 0 {
			return fmt.Errorf("bug: untraversed node %v has outgoing edges", n)
		}
	}
	return nil
}

type selectionState uint8

const (
	stateCandidate selectionState = iota
	stateSelected
	stateEvicted
)

// componentState is one version of a module.
type componentState struct {
	id       ComponentIdentity
	module   *moduleState
	metadata *ComponentMetadata
	nodes    []nodeId
	state    selectionState
}

var _ Candidate = (*componentState)(nil)

func (c *componentState) Id() ComponentIdentity {
	return c.id
}

func (c *componentState) Metadata() *ComponentMetadata {
	return c.metadata
}

func (c *componentState) Forced() bool {
	for _, s := range c.module.selectors {
		if s.key.force && s.component == c {
			return true
		}
	}
	return false
}

func (c *componentState) isSelected() bool {
	return c.state == stateSelected
}

func (c *componentState) String() string {
	return c.id.String()
}

// evict marks the component as a conflict loser and removes the outgoing edges of all of its
// nodes.
func (c *componentState) evict() {
	c.state = stateEvicted
	for _, id := range c.nodes {
		c.module.rs.nodes[id].deselect()
	}
}

func (c *componentState) restart(winner *componentState) {
	for _, id := range c.nodes {
		c.module.rs.nodes[id].restart(winner)
	}
}

type selectorKey struct {
	sel   ModuleSelector
	force bool
}

// selectorState is one distinct version request for a module.  It is shared by every live edge
// making that request and is removed from its module once no edge uses it.
type selectorState struct {
	key      selectorKey
	module   *moduleState
	uses     int
	resolved bool
	// component is nil if resolution failed.
	component *componentState
	failure   error
}

func (s *selectorState) use() {
	s.uses++
}

// release drops one use of the selector.  evicted is the module whose eviction caused the release,
// or nil.
func (s *selectorState) release(evicted *moduleState) {
	s.uses--
	if s.uses < 0 {
		panic(fmt.Errorf("bug: selector %v released more often than used", s.key.sel))
	}
	if s.uses > 0 {
		return
	}
	ms := s.module
	delete(ms.selectors, s.key)
	// The selection may have been made with this selector's component as a candidate.
	if s.component == nil || len(ms.selectors) == 0 || ms.isRoot() || ms.isCandidate(s.component) {
		return
	}
	if evicted == ms {
		// Requested from the dependencies of a losing version of the same module.
		slog.DebugContext(ms.rs.ctx, "candidate requested by an evicted version of its own module",
			"module", ms.id, "component", s.component)
		return
	}
	ms.withdraw(s.component)
}

// resolve turns the selector into a component, consulting the provider on first use.  The
// returned error is fatal; edge-local failures are stored in s.failure.
func (s *selectorState) resolve() error {
	if s.resolved {
		return nil
	}
	s.resolved = true
	rs := s.module.rs
	sel := s.key.sel
	r := rs.resolveMetadata(sel)
	switch {
	case r.err != nil:
		s.failure = fmt.Errorf("%w %v: %w", ErrUnresolved, sel, r.err)
	case r.md == nil:
		s.failure = fmt.Errorf("%w %v: no metadata", ErrUnresolved, sel)
	default:
		if err := r.md.Check(); err != nil {
			return err
		}
		if !sel.Matches(r.md.Id) {
			s.failure = fmt.Errorf("%w %v: provider returned non-matching component %v",
				ErrUnresolved, sel, r.md.Id)
			break
		}
		s.component = rs.component(r.md)
	}
	if s.failure != nil {
		slog.DebugContext(rs.ctx, "selector failed to resolve", "selector", sel, "err", s.failure)
	}
	return nil
}

// moduleState arbitrates among the versions requested for one module.
type moduleState struct {
	id         ModuleIdentity
	rs         *resolveState
	selectors  map[selectorKey]*selectorState
	components []*componentState
	selected   *componentState
	// unattached holds live edges whose target component was not selected when they were
	// resolved.  They are restarted when the module's conflict is resolved.
	unattached []*edgeState
	conflicted bool
	// withdrawn records, per component, the remaining candidates at each withdrawal of that
	// component while it was selected.
	withdrawn map[*componentState][][]*componentState
}

func (ms *moduleState) selector(sel ModuleSelector, force bool) *selectorState {
	k := selectorKey{sel, force}
	s := ms.selectors[k]
	if s == nil {
		s = &selectorState{key: k, module: ms}
		ms.selectors[k] = s
	}
	return s
}

func (ms *moduleState) isCandidate(c *componentState) bool {
	for _, s := range ms.selectors {
		if s.component == c {
			return true
		}
	}
	return false
}

// withdraw re-registers the module's conflict after c lost its last request.  If c is the
// selection and was already withdrawn once with the same remaining candidates, choosing among them
// led back to a request for c, so c stays selected instead.
func (ms *moduleState) withdraw(c *componentState) {
	if c != ms.selected {
		slog.DebugContext(ms.rs.ctx, "candidate withdrawn", "module", ms.id, "component", c)
		ms.rs.registerConflict(ms)
		return
	}
	rest := ms.candidates()
	if slices.ContainsFunc(ms.withdrawn[c], func(prev []*componentState) bool {
		return slices.Equal(prev, rest)
	}) {
		slog.DebugContext(ms.rs.ctx, "candidate withdrawn again; keeping selection",
			"module", ms.id, "component", c, "selected", ms.selected)
		return
	}
	if ms.withdrawn == nil {
		ms.withdrawn = map[*componentState][][]*componentState{}
	}
	ms.withdrawn[c] = append(ms.withdrawn[c], rest)
	slog.DebugContext(ms.rs.ctx, "selection withdrawn", "module", ms.id, "component", c)
	ms.rs.registerConflict(ms)
}

func (ms *moduleState) isRoot() bool {
	return ms.rs.root != nil && ms.rs.root.component.module == ms
}

func (ms *moduleState) selectInitial(c *componentState) {
	slog.DebugContext(ms.rs.ctx, "selecting module", "module", ms.id, "component", c)
	ms.selected = c
	c.state = stateSelected
}

// candidates returns the components requested by live selectors, oldest version first.
func (ms *moduleState) candidates() []*componentState {
	set := mapset.NewThreadUnsafeSet[*componentState]()
	for _, s := range ms.selectors {
		if s.component != nil && s.uses > 0 {
			set.Add(s.component)
		}
	}
	return slices.SortedFunc(mapset.Elements(set), func(a, b *componentState) int {
		return ComponentIdentityCompare(a.id, b.id)
	})
}

// resolveConflict picks the winner among the candidates and restarts the module.
func (ms *moduleState) resolveConflict() error {
	ms.conflicted = false
	rs := ms.rs
	var winner *componentState
	switch cands := ms.candidates(); {
	case ms.isRoot():
		winner = rs.root.component
	case len(cands) == 0:
		// Every request went away before the conflict was resolved.
		ms.unattached = nil
		return nil
	case len(cands) == 1:
		winner = cands[0]
	default:
		w, err := rs.opts.resolver.SelectWinner(ms.id, slices.Collect(
			itertools.Map(slices.Values(cands), func(c *componentState) Candidate { return c })))
		if err != nil {
			return err
		}
		var ok bool
		if winner, ok = w.(*componentState); !ok || !slices.Contains(cands, winner) {
			return fmt.Errorf("conflict resolver for %v returned non-candidate %v", ms.id, w)
		}
	}
	slog.DebugContext(rs.ctx, "conflict resolved", "module", ms.id, "winner", winner, "previous", ms.selected)
	ms.restart(winner)
	return nil
}

// restart makes winner the selected component, evicting the previous selection, then restarts
// every node of every version so that incoming edges move to the winner's nodes.
func (ms *moduleState) restart(winner *componentState) {
	if prev := ms.selected; prev != winner {
		ms.selected = winner
		winner.state = stateSelected
		if prev != nil {
			prev.evict()
		}
	}
	for _, c := range ms.components {
		c.restart(winner)
	}
	unattached := ms.unattached
	ms.unattached = nil
	for _, e := range unattached {
		e.restart()
	}
}
