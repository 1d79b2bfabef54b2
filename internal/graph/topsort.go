package graph

import (
	"fmt"

	"github.com/buildgraph/orchestrator/internal/errs"
)

// Toposort orders the keys of deps — a mapping from each node (here, an
// SCC, represented by any comparable key the caller chooses, e.g. a
// frozen set serialized to a string) to the set of nodes it depends on —
// so that every node is emitted no earlier than every node it depends
// on (leaves first), matching spec §4.1 and the
// ordering property in spec §8 ("if SCC A depends on SCC B, B is emitted
// no later than A").
//
// The implementation is the "peel off nodes with no remaining
// dependencies, subtract them from every other node's dependency set"
// algorithm spec §4.1 describes: it normalizes the input first (dropping
// self-edges, and injecting empty entries for any dependency key that
// doesn't itself appear as a top-level key, so a dangling reference
// doesn't make a round look unready forever), then repeatedly emits the
// ready set.
//
// Toposort returns a *errs.CyclicDependency if a round emits nothing
// while nodes remain — impossible when deps was built from an SCC
// computation, since an SCC DAG is acyclic by construction. It is kept
// as a defensive check, the same role it plays in spec §4.1.
func Toposort[K comparable](deps map[K]map[K]bool) ([]K, error) {
	// Normalize: copy so we don't mutate the caller's map, drop self
	// edges, and make sure every referenced dependency has its own entry.
	work := make(map[K]map[K]bool, len(deps))
	for k, ds := range deps {
		cp := make(map[K]bool, len(ds))
		for d := range ds {
			if d == k {
				continue // self-edges are not real cycles
			}
			cp[d] = true
		}
		work[k] = cp
	}
	for _, ds := range deps {
		for d := range ds {
			if _, ok := work[d]; !ok {
				work[d] = map[K]bool{}
			}
		}
	}

	var order []K
	for len(work) > 0 {
		var ready []K
		for k, ds := range work {
			if len(ds) == 0 {
				ready = append(ready, k)
			}
		}
		if len(ready) == 0 {
			remaining := make([]string, 0, len(work))
			for k := range work {
				remaining = append(remaining, fmt.Sprint(k))
			}
			return order, &errs.CyclicDependency{Remaining: remaining}
		}
		for _, k := range ready {
			order = append(order, k)
			delete(work, k)
		}
		for _, ds := range work {
			for _, k := range ready {
				delete(ds, k)
			}
		}
	}
	return order, nil
}
