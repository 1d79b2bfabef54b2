// Package graph provides the two graph primitives the scheduler is built
// on (spec §4.1): strongly connected components of an arbitrary directed
// graph, and a topological sort of the resulting SCC DAG.
//
// The SCC algorithm is grounded on the path-based (Gabow/Tarjan-style)
// traversal used by golang.org/x/tools/gopls/internal/cache/metadata's
// detectImportCycles and by the Tarjan implementation in
// buf.build/go/hyperpb's internal/scc package (see
// _examples/other_examples/ad9487c1_...scc.go.go), but rewritten with an
// explicit work stack instead of recursion: spec §9 calls out that the
// classic recursive DFS can overflow on deep import graphs, and this
// tool's graphs are adversarial input (arbitrary source trees), not a
// small fixed call graph.
package graph

import "sort"

// EdgesFunc returns the outgoing edges (dependencies) of a vertex.
type EdgesFunc[V comparable] func(V) []V

// SCC computes the strongly connected components of the subgraph induced
// by vertices, using edges to find each vertex's outgoing edges. Every
// vertex in vertices appears in exactly one returned component; a vertex
// with no cycles through it is returned as a singleton set. Emission
// order is arbitrary — callers needing a topological order call Toposort
// on the result separately, as spec §4.1 specifies.
func SCC[V comparable](vertices []V, edges EdgesFunc[V]) [][]V {
	s := &sccState[V]{
		edges:   edges,
		index:   make(map[V]int32),
		lowlink: make(map[V]int32),
		onStack: make(map[V]bool),
	}
	for _, v := range vertices {
		if _, visited := s.index[v]; !visited {
			s.run(v)
		}
	}
	return s.components
}

// sccState holds the iterative, explicit-stack Tarjan traversal. Each
// frame on work corresponds to one still-in-progress call of the
// recursive algorithm; the frame's next field tracks how far through
// its edge list it has progressed, and when a frame finishes its
// lowlink is folded into its parent frame's lowlink.
type sccState[V comparable] struct {
	edges EdgesFunc[V]

	nextIndex int32
	index     map[V]int32
	lowlink   map[V]int32
	onStack   map[V]bool
	stack     []V

	components [][]V
}

type frame[V comparable] struct {
	v        V
	children []V
	next     int // index into children of the edge to process next
}

func (s *sccState[V]) run(root V) {
	var work []*frame[V]
	s.push(root)
	work = append(work, &frame[V]{v: root, children: s.edges(root)})

	for len(work) > 0 {
		top := work[len(work)-1]

		if top.next < len(top.children) {
			w := top.children[top.next]
			top.next++

			if _, seen := s.index[w]; !seen {
				s.push(w)
				work = append(work, &frame[V]{v: w, children: s.edges(w)})
				continue
			}
			if s.onStack[w] {
				if s.lowlink[w] < s.lowlink[top.v] {
					s.lowlink[top.v] = s.lowlink[w]
				}
			}
			continue
		}

		// All of top.v's edges are processed: top.v is done.
		work = work[:len(work)-1]
		if len(work) > 0 {
			parent := work[len(work)-1]
			if s.lowlink[top.v] < s.lowlink[parent.v] {
				s.lowlink[parent.v] = s.lowlink[top.v]
			}
		}

		if s.lowlink[top.v] == s.index[top.v] {
			var comp []V
			for {
				n := len(s.stack) - 1
				w := s.stack[n]
				s.stack = s.stack[:n]
				s.onStack[w] = false
				comp = append(comp, w)
				if w == top.v {
					break
				}
			}
			s.components = append(s.components, comp)
		}
	}
}

func (s *sccState[V]) push(v V) {
	s.index[v] = s.nextIndex
	s.lowlink[v] = s.nextIndex
	s.nextIndex++
	s.stack = append(s.stack, v)
	s.onStack[v] = true
}

// SortVertices is a small helper for deterministic test output: it
// sorts a vertex slice by a caller-supplied less function, leaving the
// SCC/Toposort algorithms themselves free of any ordering assumption.
func SortVertices[V any](vs []V, less func(a, b V) bool) {
	sort.Slice(vs, func(i, j int) bool { return less(vs[i], vs[j]) })
}
