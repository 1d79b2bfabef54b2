// Package scheduler implements the SCC-scheduled pass pipeline of spec
// §4.6-§4.8: topological dispatch of the module graph's strongly
// connected components, priority-based ordering of nodes within a
// component, and the fresh/stale pipelines that populate each module's
// analysis artifact.
//
// Grounded on mypy's build.py process_graph / process_stale_scc /
// order_ascc (_examples/original_source/mypy/build.py); the SCC and
// topological-sort primitives it drives are internal/graph's, adapted
// from the teacher's x/tools cache/metadata cycle detector the way
// internal/graph's own doc comment describes.
package scheduler

import (
	"sort"

	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/event"
	"github.com/buildgraph/orchestrator/internal/graph"
	"github.com/buildgraph/orchestrator/internal/loader"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/passes"
	"github.com/buildgraph/orchestrator/internal/validator"
)

// Manager owns the per-build collaborators the scheduler drives. Spec §9
// asks that counters and caches that would otherwise be process-wide
// globals be modelled as fields on the build manager; Manager is that
// object for the scheduling phase, the way module.Counter is for
// construction.
type Manager struct {
	Graph *loader.Graph

	Validator *validator.Validator
	Store     collab.MetadataStore

	// Parser/ReadFile back the stale pipeline's deferred first parse
	// (stale.go phase 1) for a module whose candidate cache record the
	// validator rejects: construction (module.New) only loads such a
	// record without validating it, so the actual parse happens here
	// instead, the first time a Validator is in scope. ReadFile may be
	// nil, in which case os.ReadFile is used (module.State.Reparse's
	// default).
	Parser   collab.Parser
	ReadFile func(path string) ([]byte, error)

	SemanticAnalyzer passes.SemanticAnalyzer
	TypeChecker      passes.TypeChecker
	UnusedIgnores    passes.UnusedIgnoreReporter
	CrossRefs        passes.CrossRefFixer
	Namespaces       passes.NamespacePatcher
	TypingInjector   passes.TypingModuleInjector
	ArtifactHasher   passes.ArtifactHasher

	Errors          collab.ErrorReporter
	FlushErrors     func(messages []errs.Message, isBlocking bool)
	CacheEnabled    bool
	Options         cachemeta.Options
	AnalyzerVersion string

	// capturedTrees, when non-nil, receives every node's final tree at
	// finish time (spec §4.8 step 11, "optionally capture all inferred
	// types"). Left nil by default.
	capturedTrees map[moduleid.ID]any

	patchSeq int
}

// Run drives every SCC of m.Graph to completion, in topological order,
// leaves first (spec §4.6-§4.8). It returns the first blocking
// *errs.CompileError encountered, if any.
func Run(m *Manager) error {
	ids := make([]moduleid.ID, 0, len(m.Graph.Modules))
	for id := range m.Graph.Modules {
		ids = append(ids, id)
	}

	edges := func(id moduleid.ID) []moduleid.ID {
		s := m.Graph.Modules[id]
		var out []moduleid.ID
		for _, d := range s.Dependencies {
			if _, ok := m.Graph.Modules[d]; ok {
				out = append(out, d)
			}
		}
		return out
	}

	components := graph.SCC(ids, edges)
	compKey, compByKey, deps := componentDepsMap(components, edges)
	order, err := graph.Toposort(deps)
	if err != nil {
		return err
	}

	var freshQueue []moduleid.ID
	for _, k := range order {
		scc := compByKey[k]
		if err := m.processSCC(scc, &freshQueue); err != nil {
			return err
		}
	}
	_ = compKey

	// A build that ends on a run of fresh SCCs never hits the "stale SCC
	// drains the queue" branch in processSCC; drain what is left so
	// every module's Tree is populated before Run returns, not only the
	// ones a later stale SCC happened to need (spec §9 open question on
	// what an undrained trailing fresh queue means: here, nothing is
	// left undrained).
	if len(freshQueue) > 0 {
		if err := m.runFreshPipeline(freshQueue); err != nil {
			return err
		}
	}
	return nil
}

// processSCC implements spec §4.6 steps 2-4 for one SCC: decide
// freshness, propagate transitive errors from dependencies, and
// dispatch to the fresh or stale pipeline.
func (m *Manager) processSCC(scc []moduleid.ID, freshQueue *[]moduleid.ID) error {
	ordered := orderSCC(scc, m.Graph.Modules)
	vertexSet := make(map[moduleid.ID]bool, len(ordered))
	for _, id := range ordered {
		vertexSet[id] = true
	}

	propagateTransitiveErrors(m.Graph.Modules, ordered, vertexSet)

	fresh := m.sccIsFresh(ordered, vertexSet)
	logSCC(ordered, fresh)

	if fresh {
		*freshQueue = append(*freshQueue, ordered...)
		return nil
	}

	// A stale SCC first drains the fresh queue accumulated so far
	// (spec §4.6 step 4, "loading fresh ancestors in bulk").
	if len(*freshQueue) > 0 {
		if err := m.runFreshPipeline(*freshQueue); err != nil {
			return err
		}
		*freshQueue = nil
	}
	return m.runStalePipeline(ordered, vertexSet)
}

// sccIsFresh implements spec §4.6 step 2's Fresh predicate.
func (m *Manager) sccIsFresh(scc []moduleid.ID, vertexSet map[moduleid.ID]bool) bool {
	oldestInSCC := int64(-1)
	newestExternal := int64(-1)

	for _, id := range scc {
		s := m.Graph.Modules[id]
		if !m.isFresh(s) {
			return false
		}
		if len(s.Suppressed) > 0 {
			for _, dep := range s.Suppressed {
				if _, ok := m.Graph.Modules[dep]; ok {
					return false // undeps: previously suppressed, now present
				}
			}
		}
		dm, err := m.dataMtime(id)
		if err != nil {
			return false
		}
		if oldestInSCC == -1 || dm < oldestInSCC {
			oldestInSCC = dm
		}

		for _, dep := range s.Dependencies {
			if vertexSet[dep] {
				continue // internal edge, not external
			}
			dep := m.Graph.Modules[dep]
			if dep == nil {
				continue
			}
			if !dep.ExternallySame {
				return false // stale_deps
			}
			dmDep, err := m.dataMtime(dep.ID)
			if err != nil {
				return false
			}
			if dmDep > newestExternal {
				newestExternal = dmDep
			}
		}
	}

	if newestExternal > oldestInSCC {
		return false
	}
	return true
}

// isFresh decides whether a single module's cached metadata validates,
// applying the cache validator of spec §4.2 and, on Replace, persisting
// the refreshed record.
func (m *Manager) isFresh(s *module.State) bool {
	if !m.CacheEnabled || s.Meta == nil || m.Validator == nil {
		return false
	}
	decision, rec := m.Validator.Validate(s.Meta, s.Path, s.IgnoreAll, m.Options)
	switch decision {
	case validator.Accept:
		return true
	case validator.Replace:
		s.Meta = rec
		if m.Store != nil {
			_ = m.Store.WriteRecord(s.ID, s.IsPackage, rec)
		}
		return true
	default:
		return false
	}
}

func (m *Manager) dataMtime(id moduleid.ID) (int64, error) {
	if m.Store == nil {
		return 0, nil
	}
	isPackage := false
	if s := m.Graph.Modules[id]; s != nil {
		isPackage = s.IsPackage
	}
	return m.Store.DataMtime(id, isPackage)
}

// propagateTransitiveErrors implements spec §4.6 step 3: if any external
// dependency has TransitiveError set, every node in this SCC inherits it.
func propagateTransitiveErrors(modules map[moduleid.ID]*module.State, scc []moduleid.ID, vertexSet map[moduleid.ID]bool) {
	propagate := false
	for _, id := range scc {
		s := modules[id]
		for _, dep := range s.Dependencies {
			if vertexSet[dep] {
				continue
			}
			if d := modules[dep]; d != nil && d.TransitiveError {
				propagate = true
			}
		}
	}
	if !propagate {
		return
	}
	for _, id := range scc {
		modules[id].TransitiveError = true
	}
}

// componentDepsMap builds the SCC-DAG dependency map Toposort needs,
// keyed by a deterministic string built from each component's sorted
// members.
func componentDepsMap(components [][]moduleid.ID, edges func(moduleid.ID) []moduleid.ID) (map[moduleid.ID]string, map[string][]moduleid.ID, map[string]map[string]bool) {
	memberOf := make(map[moduleid.ID]string)
	compByKey := make(map[string][]moduleid.ID)
	compKey := make(map[moduleid.ID]string)

	for _, c := range components {
		sorted := append([]moduleid.ID(nil), c...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		k := componentKey(sorted)
		compByKey[k] = c
		for _, v := range c {
			memberOf[v] = k
			compKey[v] = k
		}
	}

	deps := make(map[string]map[string]bool, len(components))
	for _, c := range components {
		k := memberOf[c[0]]
		deps[k] = map[string]bool{}
		for _, v := range c {
			for _, d := range edges(v) {
				dk := memberOf[d]
				if dk != k {
					deps[k][dk] = true
				}
			}
		}
	}
	return compKey, compByKey, deps
}

func componentKey(sorted []moduleid.ID) string {
	key := ""
	for i, id := range sorted {
		if i > 0 {
			key += "\x00"
		}
		key += string(id)
	}
	return key
}

func logSCC(scc []moduleid.ID, fresh bool) {
	event.Log("processing SCC", event.L("size", len(scc)), event.L("fresh", fresh))
}
