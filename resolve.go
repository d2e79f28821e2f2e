package depresolve

import (
	"context"
	"fmt"
	"log/slog"
)

// Resolve builds the dependency graph of the named configuration of the root component.
//
// Metadata for every other component is obtained from provider, which is called at most once per
// distinct [ModuleSelector].  When more than one version of a module is requested, the conflict
// resolver (see [WithConflictResolver]) picks one, and the graph is rebuilt around the winner
// until nothing changes.
//
// Dependencies that cannot be resolved do not make Resolve fail; they are recorded as edge
// failures and reported by [Graph.Failures].  Resolve returns an error only if the metadata is
// structurally invalid ([InvariantError]), the conflict resolver fails, or ctx is canceled.
func Resolve(ctx context.Context, provider MetadataProvider, root *ComponentMetadata, configuration string, opts ...Option) (*Graph, error) {
	o := newOptions(opts)
	if err := root.Check(); err != nil {
		return nil, err
	}
	conf := root.Configuration(configuration)
	if conf == nil {
		return nil, fmt.Errorf("%w: root component %v has no configuration %q",
			ErrMissingConfiguration, root.Id, configuration)
	}
	rs := newResolveState(ctx, provider, o)
	c := rs.component(root)
	c.module.selectInitial(c)
	rs.root = rs.node(c, conf)
	rs.enqueue(rs.root)
	slog.DebugContext(ctx, "resolving", "root", rs.root)
	if err := rs.traverse(); err != nil {
		return nil, err
	}
	g := newGraph(rs)
	slog.DebugContext(ctx, "resolved", "root", rs.root, "nodes", len(g.nodes), "failures", len(g.failures))
	return g, nil
}

// traverse visits queued nodes until the graph reaches a fixed point.  Pending conflicts are
// resolved one at a time, and only when the queue is empty, so that each conflict sees every
// version that the current graph requests.
func (rs *resolveState) traverse() error {
	for {
		if err := context.Cause(rs.ctx); err != nil {
			return err
		}
		n, ok := rs.dequeue()
		if !ok {
			if rs.pruneUnreachable() {
				continue
			}
			rs.collectGarbage()
			ms := rs.nextConflict()
			if ms == nil {
				return nil
			}
			if err := ms.resolveConflict(); err != nil {
				return err
			}
			if err := rs.maybeCheckInvariants(); err != nil {
				return err
			}
			continue
		}
		var discovered []*edgeState
		n.visitOutgoingDependencies(&discovered)
		live := discovered[:0]
		for _, e := range discovered {
			if !e.removed {
				live = append(live, e)
			}
		}
		if err := rs.prefetch(live); err != nil {
			return err
		}
		for _, e := range live {
			if err := e.resolve(); err != nil {
				return err
			}
		}
		if err := rs.maybeCheckInvariants(); err != nil {
			return err
		}
	}
}

func (rs *resolveState) maybeCheckInvariants() error {
	if !rs.opts.checkInvariants {
		return nil
	}
	return rs.checkInvariants()
}
