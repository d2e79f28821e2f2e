package depresolve

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WalkGraph walks the graph from the given start node, calling nodeVisit once for each reachable
// node and edgeVisit once for each edge leaving a node whose visit returned true.  An edge with
// more than one target configuration is visited once per target.  Either callback may be nil.
//
// Callbacks run concurrently, but nodeVisit is always done with both ends of an edge before
// edgeVisit is called for that edge.  If nodeVisit returns false the node's edges are not
// followed.  The first error returned by a callback cancels the walk and is returned.
//
// start must be a node of g.
func WalkGraph(ctx context.Context, g *Graph, start *Node,
	nodeVisit func(ctx context.Context, n *Node) (bool, error),
	edgeVisit func(ctx context.Context, e *Edge, to *Node) error) (retErr error) {

	if start == nil || g.Node(start.Component(), start.Configuration()) != start {
		return fmt.Errorf("WalkGraph: start node %v is not in the graph", start)
	}
	gr, ctx := errgroup.WithContext(ctx)
	w := &walker{
		ctx:       ctx,
		gr:        gr,
		ready:     map[*Node]chan struct{}{},
		nodeVisit: nodeVisit,
		edgeVisit: edgeVisit,
	}
	slog.DebugContext(ctx, "WalkGraph start", "start", start)
	defer func() {
		slog.DebugContext(ctx, "WalkGraph done",
			"nodes", len(w.ready), "edges", w.nEdges.Load(), "err", retErr)
	}()
	w.node(start)
	return gr.Wait()
}

type walker struct {
	ctx       context.Context
	gr        *errgroup.Group
	mu        sync.Mutex
	ready     map[*Node]chan struct{} // Closed once the node's visit is done.
	nEdges    atomic.Int32
	nodeVisit func(ctx context.Context, n *Node) (bool, error)
	edgeVisit func(ctx context.Context, e *Edge, to *Node) error
}

// node starts the visit of n unless it was already started, and returns n's ready channel.
func (w *walker) node(n *Node) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.ready[n]; ok {
		return ch
	}
	ch := make(chan struct{})
	w.ready[n] = ch
	w.gr.Go(func() error {
		descend := true
		if w.nodeVisit != nil {
			var err error
			descend, err = w.nodeVisit(w.ctx, n)
			if err != nil {
				return err
			}
		}
		close(ch)
		if !descend {
			return nil
		}
		for _, e := range n.outgoing {
			for _, to := range e.to {
				w.edge(e, to, w.node(to))
			}
		}
		return nil
	})
	return ch
}

func (w *walker) edge(e *Edge, to *Node, toReady <-chan struct{}) {
	w.nEdges.Add(1)
	if w.edgeVisit == nil {
		return
	}
	w.gr.Go(func() error {
		select {
		case <-w.ctx.Done():
			return context.Cause(w.ctx)
		case <-toReady:
		}
		return w.edgeVisit(w.ctx, e, to)
	})
}

// AllNodes returns an iterator over every node reachable from the root, in no particular order,
// and a function that returns the walk's error once iteration is done.
func AllNodes(ctx context.Context, g *Graph) (iter.Seq[*Node], func() error) {
	stop := false
	var retErr error
	var mu sync.Mutex
	return func(yield func(*Node) bool) {
		retErr = WalkGraph(ctx, g, g.Root(),
			func(ctx context.Context, n *Node) (bool, error) {
				mu.Lock()
				defer mu.Unlock()
				if stop || !yield(n) {
					stop = true
					return false, errWalkStop
				}
				return true, nil
			},
			nil)
		if errors.Is(retErr, errWalkStop) {
			retErr = nil
		}
	}, func() error { return retErr }
}

type walkStopError struct{}

func (walkStopError) Error() string { return "stop" }

var errWalkStop error = walkStopError{}
