package depresolve_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/go-cmp/cmp"
	. "github.com/rhansen/depresolve"
	r "github.com/rhansen/depresolve/repository"
)

var testErr = errors.New("test error")

const fanOut = 50

// resolveTest resolves the default configuration of g:root:1.
func resolveTest(t *testing.T, cs []tComponent) *Graph {
	t.Helper()
	repo := newRepo(t, cs)
	g, err := Resolve(t.Context(), repo, repo.Root("g:root:1"), DefaultConfiguration)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// newHighFanOutFanInGraph returns a graph where the root depends on many b_N components, each of
// which depends on the same c component.
func newHighFanOutFanInGraph(t *testing.T) *Graph {
	t.Helper()
	var rootDeps []r.ConfOption
	cs := []tComponent{comp("g:c:1", conf())}
	for i := range fanOut {
		id := fmt.Sprintf("g:b_%d:1", i)
		rootDeps = append(rootDeps, dep(id))
		cs = append(cs, comp(id, conf(dep("g:c:1"))))
	}
	cs = append(cs, comp("g:root:1", conf(rootDeps...)))
	return resolveTest(t, cs)
}

func name(n *Node) string {
	return n.Component().Module.Name
}

func TestWalkGraph(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		desc string
		g    func(t *testing.T) *Graph
	}{
		{
			desc: "single node",
			g: func(t *testing.T) *Graph {
				return resolveTest(t, []tComponent{comp("g:root:1", conf())})
			},
		},
		{
			desc: "cycle",
			g: func(t *testing.T) *Graph {
				return resolveTest(t, []tComponent{
					comp("g:root:1", conf(dep("g:a:1"))),
					comp("g:a:1", conf(dep("g:b:1"))),
					comp("g:b:1", conf(dep("g:a:1"))),
				})
			},
		},
		{
			desc: "multiple target configurations",
			g: func(t *testing.T) *Graph {
				return resolveTest(t, []tComponent{
					comp("g:root:1", conf(dep("g:a:1", r.TargetConfigurations("api", "runtime")))),
					comp("g:a:1", r.Configuration("api"), r.Configuration("runtime")),
				})
			},
		},
		{
			desc: "high fan-out and fan-in",
			g:    newHighFanOutFanInGraph,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			g := tc.g(t)
			want := toTGraph(g)
			// Each run has some random sleeps to try to exercise the parallelism.
			for i := range 10 {
				t.Run(strconv.Itoa(i), func(t *testing.T) {
					t.Parallel()
					var mu sync.Mutex
					got := tGraph{}
					nodeVisit := func(ctx context.Context, n *Node) (bool, error) {
						time.Sleep(rand.N(20 * time.Millisecond))
						if err := context.Cause(ctx); err != nil {
							t.Fatal(err)
						}
						mu.Lock()
						defer mu.Unlock()
						if _, ok := got[n.String()]; ok {
							t.Fatalf("node %v already visited", n)
						}
						got[n.String()] = tEdges{}
						return true, nil
					}
					edgeVisit := func(ctx context.Context, e *Edge, to *Node) error {
						time.Sleep(rand.N(20 * time.Millisecond))
						mu.Lock()
						defer mu.Unlock()
						p := e.From().String()
						if got[p] == nil {
							t.Fatalf("parent node %v not yet visited", p)
						}
						if got[to.String()] == nil {
							t.Fatalf("child node %v not yet visited", to)
						}
						if c, ok := got[p][to.String()]; ok {
							t.Fatalf("edge %v -> %v already seen (with color %v)", p, to, c)
						}
						got[p][to.String()] = e.Requested().String()
						return nil
					}
					if err := WalkGraph(t.Context(), g, g.Root(), nodeVisit, edgeVisit); err != nil {
						t.Fatal(err)
					}
					if diff := cmp.Diff(want, got); diff != "" {
						t.Errorf("reconstructed graph differs (-want +got):\n%s", diff)
					}
				})
			}
		})
	}
}

func TestWalkGraph_ParallelVisits(t *testing.T) {
	// Strategy for this test:
	//   1. Use a high fan-out graph to ensure lots of parallel nodeVisit and edgeVisit calls.
	//   2. Assign the nodes and edges in the fan-out level into two groups.
	//   3. Wait for all of the 1st half to be in nodeVisit.
	//   4. Let the 1st half finish nodeVisit.
	//   5. Wait for the 1st half to enter edgeVisit.
	//   6. Let the 1st half finish edgeVisit.
	//   7. Let the 2nd half progress.
	t.Parallel()
	g := newHighFanOutFanInGraph(t)
	nodes := [2]mapset.Set[string]{
		mapset.NewThreadUnsafeSet[string](),
		mapset.NewThreadUnsafeSet[string](),
	}
	i := 0
	for e := range g.Root().Outgoing() {
		nodes[i%len(nodes)].Add(name(e.To()[0]))
		i++
	}
	for _, ns := range nodes {
		if ns.Cardinality() <= 0 {
			t.Fatalf("test setup failed")
		}
	}
	resumeNodeVisit := [2]chan struct{}{
		make(chan struct{}),
		make(chan struct{}),
	}
	var grNodeVisit [2]sync.WaitGroup
	for i := range 2 {
		grNodeVisit[i].Add(nodes[i].Cardinality())
	}
	nodeVisit := func(ctx context.Context, n *Node) (bool, error) {
		for i := range 2 {
			if nodes[i].Contains(name(n)) {
				grNodeVisit[i].Done()
				select {
				case <-ctx.Done():
					return false, context.Cause(ctx)
				case <-resumeNodeVisit[i]:
				}
				break
			}
		}
		return true, nil
	}
	resumeEdgeVisit := [2]chan struct{}{
		make(chan struct{}),
		make(chan struct{}),
	}
	var grEdgeVisit [2]sync.WaitGroup
	for i := range 2 {
		grEdgeVisit[i].Add(nodes[i].Cardinality())
	}
	edgeVisit := func(ctx context.Context, e *Edge, to *Node) error {
		if e.From() == g.Root() {
			for i := range 2 {
				if nodes[i].Contains(name(to)) {
					grEdgeVisit[i].Done()
					select {
					case <-ctx.Done():
						return context.Cause(ctx)
					case <-resumeEdgeVisit[i]:
					}
					break
				}
			}
		}
		return nil
	}
	go func() {
		for i := range 2 {
			// First ensure that nodeVisit is called concurrently by waiting for half of them to start.
			grNodeVisit[i].Wait()
			// Now let that half complete, which should allow the edges to those nodes to be visited even
			// though half of the nodeVisit calls are still running.
			close(resumeNodeVisit[i])
			// Wait for the first half of the edgeVisit calls to start running.
			grEdgeVisit[i].Wait()
			// Let the first half of the edgeVisit calls finish.
			close(resumeEdgeVisit[i])
			// Now repeat with the 2nd half.
		}
	}()
	if err := WalkGraph(t.Context(), g, g.Root(), nodeVisit, edgeVisit); err != nil {
		t.Fatal(err)
	}
}

func TestWalkGraph_ErrorHandling(t *testing.T) {
	t.Parallel()
	g := newHighFanOutFanInGraph(t)
	for _, tc := range []struct {
		desc           string
		errNodeVisit   bool
		errEdgeVisit   bool
		wantEdgeVisits bool
	}{
		{
			desc:         "nodeVisit",
			errNodeVisit: true,
		},
		{
			desc:           "edgeVisit",
			errEdgeVisit:   true,
			wantEdgeVisits: true,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			var gr sync.WaitGroup
			gr.Add(fanOut)
			errCh := make(chan error)
			var gotNodeVisits, gotEdgeVisits atomic.Int32
			maybeErr := func(ctx context.Context, maybe bool, counter *atomic.Int32, n *Node) error {
				if strings.HasPrefix(name(n), "b_") {
					counter.Add(1)
					if maybe {
						gr.Done()
						select {
						case <-ctx.Done():
							return ctx.Err()
						case err := <-errCh:
							return err
						}
					}
				}
				return nil
			}
			nodeVisit := func(ctx context.Context, n *Node) (bool, error) {
				if err := maybeErr(ctx, tc.errNodeVisit, &gotNodeVisits, n); err != nil {
					return false, err
				}
				return true, nil
			}
			edgeVisit := func(ctx context.Context, e *Edge, to *Node) error {
				return maybeErr(ctx, tc.errEdgeVisit, &gotEdgeVisits, e.From())
			}
			go func() {
				gr.Wait()
				select {
				case <-ctx.Done():
				case errCh <- testErr:
				}
			}()
			gotErr := WalkGraph(ctx, g, g.Root(), nodeVisit, edgeVisit)
			if !errors.Is(gotErr, testErr) {
				t.Errorf("got error %v, want %v", gotErr, testErr)
			}
			if got := gotNodeVisits.Load(); got != fanOut {
				t.Errorf("got node visits %v, want %v", got, fanOut)
			}
			wantEdgeVisits := int32(fanOut)
			if !tc.wantEdgeVisits {
				wantEdgeVisits = 0
			}
			if got := gotEdgeVisits.Load(); got != wantEdgeVisits {
				t.Errorf("got edge visits %v, want %v", got, wantEdgeVisits)
			}
		})
	}
}

func TestWalkGraph_Prune(t *testing.T) {
	t.Parallel()
	g := resolveTest(t, []tComponent{
		comp("g:root:1", conf(dep("g:a:1"), dep("g:b:1"))),
		comp("g:a:1", conf(dep("g:c:1"))),
		comp("g:b:1", conf()),
		comp("g:c:1", conf()),
	})
	var mu sync.Mutex
	got := mapset.NewThreadUnsafeSet[string]()
	nodeVisit := func(ctx context.Context, n *Node) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		got.Add(name(n))
		return name(n) != "a", nil
	}
	if err := WalkGraph(t.Context(), g, g.Root(), nodeVisit, nil); err != nil {
		t.Fatal(err)
	}
	want := mapset.NewThreadUnsafeSet("root", "a", "b")
	if !got.Equal(want) {
		t.Errorf("got visited nodes %v, want %v", got, want)
	}
}

func TestWalkGraph_StartNotInGraph(t *testing.T) {
	t.Parallel()
	cs := []tComponent{comp("g:root:1", conf())}
	g, other := resolveTest(t, cs), resolveTest(t, cs)
	called := false
	nodeVisit := func(ctx context.Context, n *Node) (bool, error) {
		called = true
		return true, nil
	}
	if err := WalkGraph(t.Context(), g, other.Root(), nodeVisit, nil); err == nil {
		t.Error("got nil error for a start node from another graph")
	}
	if called {
		t.Error("nodeVisit called for a start node from another graph")
	}
}

func TestAllNodes(t *testing.T) {
	t.Parallel()
	g := newHighFanOutFanInGraph(t)
	t.Run("all", func(t *testing.T) {
		t.Parallel()
		all, done := AllNodes(t.Context(), g)
		got := mapset.NewThreadUnsafeSet[*Node]()
		for n := range all {
			if !got.Add(n) {
				t.Errorf("node %v yielded twice", n)
			}
		}
		if err := done(); err != nil {
			t.Fatal(err)
		}
		want := mapset.NewThreadUnsafeSet[*Node]()
		for n := range g.Nodes() {
			want.Add(n)
		}
		if !got.Equal(want) {
			t.Errorf("got %v nodes, want %v", got.Cardinality(), want.Cardinality())
		}
	})
	t.Run("early exit", func(t *testing.T) {
		t.Parallel()
		all, done := AllNodes(t.Context(), g)
		n := 0
		for range all {
			n++
			if n == 3 {
				break
			}
		}
		if err := done(); err != nil {
			t.Fatal(err)
		}
		if n != 3 {
			t.Errorf("got %v nodes before break, want 3", n)
		}
	})
}
