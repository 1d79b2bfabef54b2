package graph

// DepsFiltered returns the subset of deps that both (a) lie within
// vertices and (b) have a priority strictly less than priMax, per spec
// §4.1. This is the mechanism the SCC scheduler uses to peel
// lower-priority edges off a cycle one round at a time (spec §4.6 step
// 1, order_ascc).
func DepsFiltered[V comparable](deps []V, vertices map[V]bool, priorityOf func(V) int, priMax int) []V {
	out := make([]V, 0, len(deps))
	for _, d := range deps {
		if !vertices[d] {
			continue
		}
		if priorityOf(d) >= priMax {
			continue
		}
		out = append(out, d)
	}
	return out
}
