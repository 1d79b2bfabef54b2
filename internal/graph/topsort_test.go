package graph

import (
	"errors"
	"testing"

	"github.com/buildgraph/orchestrator/internal/errs"
)

func indexOf(order []string, v string) int {
	for i, x := range order {
		if x == v {
			return i
		}
	}
	return -1
}

func TestToposortOrdersDepsFirst(t *testing.T) {
	// b depends on c, a depends on b: expect c, b, a (or any order
	// respecting those precedences).
	deps := map[string]map[string]bool{
		"a": {"b": true},
		"b": {"c": true},
		"c": {},
	}
	order, err := Toposort(deps)
	if err != nil {
		t.Fatalf("Toposort: %v", err)
	}
	if indexOf(order, "c") > indexOf(order, "b") || indexOf(order, "b") > indexOf(order, "a") {
		t.Fatalf("order %v violates dependency precedence", order)
	}
}

func TestToposortDropsSelfEdges(t *testing.T) {
	deps := map[string]map[string]bool{
		"a": {"a": true},
	}
	order, err := Toposort(deps)
	if err != nil {
		t.Fatalf("Toposort: %v", err)
	}
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("Toposort with self-edge = %v, want [a]", order)
	}
}

func TestToposortInjectsOrphanDependencies(t *testing.T) {
	// "b" is referenced as a dependency but never appears as a key.
	deps := map[string]map[string]bool{
		"a": {"b": true},
	}
	order, err := Toposort(deps)
	if err != nil {
		t.Fatalf("Toposort: %v", err)
	}
	if indexOf(order, "b") > indexOf(order, "a") {
		t.Fatalf("order %v: orphan dependency b not scheduled before a", order)
	}
}

func TestToposortDetectsCycle(t *testing.T) {
	deps := map[string]map[string]bool{
		"a": {"b": true},
		"b": {"a": true},
	}
	_, err := Toposort(deps)
	var cyc *errs.CyclicDependency
	if !errors.As(err, &cyc) {
		t.Fatalf("Toposort(cycle) error = %v, want *errs.CyclicDependency", err)
	}
}
