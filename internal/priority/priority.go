// Package priority defines the import-priority scale used to break
// dependency cycles (spec §4.5). Lower values are "more important": a
// top-level "from X import ..." outranks an import buried in a function
// body, which in turn outranks a synthesized, type-checker-only edge.
package priority

// Priority tags a single import occurrence.
type Priority int

const (
	// High is a top-level "from X import ...".
	High Priority = 5
	// Med is a top-level "import X".
	Med Priority = 10
	// Low is an import inside a function body.
	Low Priority = 20
	// TypeCheckingOnly is an import guarded by a type-checking-only
	// conditional (e.g. `if TYPE_CHECKING:`).
	TypeCheckingOnly Priority = 25
	// Indirect is a dependency synthesized by the type checker; excluded
	// from discovery (spec §4.4) but recorded for cache invalidation.
	Indirect Priority = 30
	// All is the sentinel priority ceiling: "include everything".
	All Priority = 99
)

// Min returns the lower (more important) of a and b.
func Min(a, b Priority) Priority {
	if a < b {
		return a
	}
	return b
}
