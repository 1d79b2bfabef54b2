package scheduler

import (
	"sort"

	"github.com/buildgraph/orchestrator/internal/graph"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
)

// builtinsID is the one module name spec §4.6 step 1 singles out: a
// cycle containing it is ordered with builtins processed last,
// mirroring every other dynamically typed language runtime's import of
// its own builtin namespace before anything else can run, yet needing
// its own symbols resolved only after its dependents have registered
// theirs.
const builtinsID = moduleid.ID("builtins")

// orderSCC implements spec §4.6 step 1, order_ascc: order the nodes of
// one SCC for sequential processing. If internal edges span more than
// one priority level, the highest-priority edges are dropped, the
// reduced subgraph's SCCs are recomputed, and the resulting sub-SCCs are
// each ordered recursively in the topological order of the reduction.
// Bottoms out when all internal edges share one priority (or there are
// none), ordering nodes by descending discovery order with builtins
// forced last.
func orderSCC(ids []moduleid.ID, modules map[moduleid.ID]*module.State) []moduleid.ID {
	vertexSet := make(map[moduleid.ID]bool, len(ids))
	for _, id := range ids {
		vertexSet[id] = true
	}

	prios := map[priority.Priority]bool{}
	for _, id := range ids {
		s := modules[id]
		for _, dep := range s.Dependencies {
			if vertexSet[dep] {
				prios[s.Priorities[dep]] = true
			}
		}
	}

	if len(prios) <= 1 {
		return orderByDiscovery(ids, modules)
	}

	maxPrio := priority.Priority(0)
	for p := range prios {
		if p > maxPrio {
			maxPrio = p
		}
	}

	edgesFn := func(id moduleid.ID) []moduleid.ID {
		s := modules[id]
		return graph.DepsFiltered(s.Dependencies, vertexSet, func(d moduleid.ID) int {
			return int(s.Priorities[d])
		}, int(maxPrio))
	}

	reduced := graph.SCC(ids, edgesFn)
	_, compByKey, deps := componentDepsMap(reduced, edgesFn)
	order, err := graph.Toposort(deps)
	if err != nil {
		// Unreachable per spec §4.1's invariant (an SCC computation's
		// output is always acyclic); fall back to discovery order rather
		// than propagate a defensive-only error through a helper whose
		// signature spec §4.6 does not give a way to fail.
		return orderByDiscovery(ids, modules)
	}

	var out []moduleid.ID
	for _, k := range order {
		out = append(out, orderSCC(compByKey[k], modules)...)
	}
	return out
}

// orderByDiscovery is order_ascc's base case: nodes ordered by
// descending discovery order, except that builtins is always moved to
// the end regardless of when it was discovered.
func orderByDiscovery(ids []moduleid.ID, modules map[moduleid.ID]*module.State) []moduleid.ID {
	out := append([]moduleid.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i] == builtinsID, out[j] == builtinsID
		if bi != bj {
			return bj // builtins sorts after anything else
		}
		return modules[out[i]].Order > modules[out[j]].Order
	})
	return out
}
