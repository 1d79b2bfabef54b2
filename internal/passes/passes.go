// Package passes defines the collaborators that operate directly on a
// module.State's in-progress analysis artifact: the semantic analyzer
// and the type checker (spec §4.8). They live apart from package collab
// because they take *module.State, and module must not import anything
// that imports module back; collab holds the ID/path-level
// collaborators module itself depends on (see internal/collab's package
// doc for the cycle this avoids).
//
// Grounded on mypy's build.py dispatch of SemanticAnalyzerPass2/Pass3 and
// checker.TypeChecker (_examples/original_source/mypy/build.py), kept as
// narrow interfaces so the scheduler never has to know what a deferred
// patch actually does beyond "apply it".
package passes

import (
	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
)

// Patch is a deferred fixup discovered during semantic analysis pass two
// or three (spec §4.8 step 6: "apply accumulated patches in sorted
// order"). Priority controls the sort; two patches at the same priority
// apply in discovery order, which is why Patch carries a Seq field
// rather than relying on a stable sort alone.
type Patch struct {
	Priority int
	Seq      int
	Apply    func()
}

// SortPatches orders patches by priority, then by discovery sequence,
// matching the "apply accumulated patches in sorted order" step.
func SortPatches(patches []Patch) []Patch {
	out := append([]Patch(nil), patches...)
	// insertion sort: patch counts per SCC are small, and this keeps the
	// tie-break on Seq explicit without reaching for sort.Slice's
	// not-guaranteed-stable semantics.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.Priority < b.Priority || (a.Priority == b.Priority && a.Seq <= b.Seq) {
				break
			}
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// SemanticAnalyzer runs the two post-parse semantic analysis passes of
// spec §4.8 steps 4-5. Both passes run across every node of an SCC
// before the scheduler moves on; each pass returns the patches it
// deferred rather than applying them immediately, since a name
// introduced by one node in the SCC may be the target of a patch queued
// by another.
type SemanticAnalyzer interface {
	// PassTwo performs name binding and scope resolution.
	PassTwo(s *module.State) ([]Patch, error)
	// PassThree performs final resolution once every node in the SCC has
	// completed PassTwo.
	PassThree(s *module.State) ([]Patch, error)
}

// TypeChecker runs the two type-check passes of spec §4.8 steps 7-8. The
// second pass is iterated by the scheduler to a fixpoint: TypeChecker
// reports whether it produced new work so the scheduler knows whether to
// run another round across the whole SCC.
type TypeChecker interface {
	// PassOne performs the first type-check pass.
	PassOne(s *module.State) error
	// PassTwo performs one round of the fixpoint pass. needsAnotherRound
	// is true if this round produced inference results that could change
	// another node's analysis.
	PassTwo(s *module.State) (needsAnotherRound bool, err error)
}

// CrossRefFixer resolves deferred symbol links inside a deserialized (or
// newly parsed) analysis artifact to live module map entries (spec
// §4.7 step 2, §4.8 step 3). It is consulted both for modules loaded
// fresh from cache and for modules in a stale SCC that import a
// freshly-loaded dependency.
type CrossRefFixer interface {
	FixCrossRefs(s *module.State, lookup func(moduleid.ID) *module.State) error
}

// NamespacePatcher re-injects a direct dependency into its parent
// package's namespace (spec §4.7 step 3): the source language's import
// semantics mutate the parent package object as a side effect of
// `import a.b`, a mutation the serialized form does not capture, so it
// must be replayed on every load.
type NamespacePatcher interface {
	PatchParentNamespace(parent *module.State, child *module.State) error
}

// UnusedIgnoreReporter generates the "unused-ignore" advisory notes of
// spec §4.8 step 9, a concern split out from TypeChecker because it runs
// once per node after the whole SCC has reached a type-check fixpoint,
// not as part of either type-check pass.
type UnusedIgnoreReporter interface {
	ReportUnusedIgnores(s *module.State) error
}

// TypingModuleInjector injects the built-in generic aliases spec §4.8
// step 2 calls for into the one module (conventionally named "typing")
// that defines them, before semantic analysis runs on the SCC that
// contains it.
type TypingModuleInjector interface {
	InjectGenericAliases(s *module.State) error
}

// ArtifactHasher computes the interface hash of a module's finished
// analysis artifact (spec §3, "interface_hash: digest of the serialized
// analysis artifact"), letting the scheduler decide whether the
// artifact's public interface changed without itself knowing the tree's
// concrete shape.
type ArtifactHasher interface {
	Hash(tree any) (cachemeta.Digest, error)
}
