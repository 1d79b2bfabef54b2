// Package loader implements the breadth-first graph loader of spec
// §4.4: discovering the transitive set of modules reachable from a set
// of roots, resolving ancestor and dependency edges to module IDs, and
// assembling the resulting Graph.
//
// Grounded on mypy's build.py load_graph (see
// _examples/original_source/mypy/build.py) and, for the "frozen, read
// during scheduling" Graph shape, on
// golang.org/x/tools/gopls/internal/cache/metadata.Graph (ImportedBy /
// ForPackagePath style indices) — though unlike that teacher type this
// Graph is built once and never subsequently patched in place; the
// scheduler treats it as read-only, exactly as spec §3 specifies
// ("Built incrementally during discovery; mutated only by the graph
// loader; read-only during scheduling").
package loader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
)

// Graph is a mapping from module ID to module state (spec §3).
type Graph struct {
	Modules map[moduleid.ID]*module.State
}

// SortedIDs returns the graph's module IDs in lexical order, for
// deterministic logging and tests (spec_full's "supplemented features":
// the original sorts graph keys before logging).
func (g *Graph) SortedIDs() []moduleid.ID {
	ids := make([]moduleid.ID, 0, len(g.Modules))
	for id := range g.Modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RootSource is one of the (module_id?, path?, text?) triples spec §6
// describes as the input to build().
type RootSource struct {
	ID   moduleid.ID
	Path string
	Text []byte
}

// Options bundles the loader's collaborators and policy.
type Options struct {
	Finder   collab.ModuleFinder
	Parser   collab.Parser
	Store    collab.MetadataStore
	ReadFile func(path string) ([]byte, error)

	CacheEnabled bool

	// FollowImportsFor implements the per-module follow-imports policy
	// of spec §6: root sources are always Normal (applied by Load
	// itself before calling this), "builtins" is always Normal, and
	// site-packages/typeshed-style paths are coerced to Silent — all of
	// which are project-specific rules the caller supplies.
	FollowImportsFor func(id moduleid.ID, path string) module.FollowImports

	Counter *module.Counter
}

// Load discovers the full reachable graph from roots (spec §4.4).
func Load(roots []RootSource, opts Options) (*Graph, error) {
	g := &Graph{Modules: make(map[moduleid.ID]*module.State)}
	var queue []*module.State

	// Step 1: seed the graph with a state for each root.
	for _, r := range roots {
		if r.ID == "" {
			msg := "root source has no resolved module ID"
			return nil, errs.NewCompileError(errors.New(msg), []errs.Message{{Text: msg, IsBlocker: true}})
		}
		if _, dup := g.Modules[r.ID]; dup {
			msg := fmt.Sprintf("duplicate root module %q", r.ID)
			return nil, errs.NewCompileError(errors.New(msg), []errs.Message{{Text: msg, IsBlocker: true}})
		}
		s, err := module.New(module.NewOptions{
			ID:            r.ID,
			Path:          r.Path,
			Source:        r.Text,
			FollowImports: module.Normal, // roots are always "normal" (spec §6)
			Finder:        opts.Finder,
			Parser:        opts.Parser,
			Store:         opts.Store,
			ReadFile:      opts.ReadFile,
			CacheEnabled:  opts.CacheEnabled,
		}, opts.Counter)
		if err != nil {
			msg := fmt.Sprintf("root module %q: %v", r.ID, err)
			return nil, errs.NewCompileError(errors.New(msg), []errs.Message{{Text: msg, IsBlocker: true}})
		}
		g.Modules[r.ID] = s
		queue = append(queue, s)
	}

	// Steps 2-6: BFS discovery.
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, id := range referenced(cur) {
			if _, ok := g.Modules[id]; ok {
				promoteIfSuppressed(cur, id)
				continue
			}

			policy := module.Normal
			path := ""
			if opts.FollowImportsFor != nil {
				if opts.Finder != nil {
					if p, err := opts.Finder.Find(id, cur.Path); err == nil {
						path = p
					}
				}
				policy = opts.FollowImportsFor(id, path)
			}
			s, err := module.New(module.NewOptions{
				ID:            id,
				Path:          path,
				Caller:        cur,
				FollowImports: policy,
				Finder:        opts.Finder,
				Parser:        opts.Parser,
				Store:         opts.Store,
				ReadFile:      opts.ReadFile,
				CacheEnabled:  opts.CacheEnabled,
			}, opts.Counter)
			if err != nil {
				// Step 3: construction failed with ModuleNotFound ->
				// move id from Dependencies to Suppressed on the
				// referrer.
				suppress(cur, id)
				continue
			}
			g.Modules[id] = s
			queue = append(queue, s)
		}
	}

	// Step 6 (continued): a promotion discovered late in the BFS (a
	// suppressed dependency whose module arrived *after* the referrer
	// was dequeued) needs a final sweep, since promoteIfSuppressed above
	// only fires when the referencing state is the one currently being
	// expanded.
	for _, s := range g.Modules {
		var stillSuppressed []moduleid.ID
		for _, id := range s.Suppressed {
			if _, ok := g.Modules[id]; ok {
				s.Dependencies = append(s.Dependencies, id)
			} else {
				stillSuppressed = append(stillSuppressed, id)
			}
		}
		s.Suppressed = stillSuppressed
	}

	// Step 5: register every ancestor edge now that the graph is
	// complete (spec §4.4 step 5). A sweep over the final graph is
	// simpler and no less correct than registering incrementally during
	// BFS, since ChildModules is read only after Load returns.
	for _, s := range g.Modules {
		for _, ancestorID := range s.Ancestors {
			if ancestor, ok := g.Modules[ancestorID]; ok {
				ancestor.ChildModules[s.ID] = true
			}
		}
	}

	return g, nil
}

// referenced enumerates the IDs a BFS step should chase from s:
// ancestors, direct dependencies, and suppressed dependencies — but
// excluding indirect-priority dependencies, which spec §4.4 step 4 says
// are recorded for cache invalidation only and must not drive discovery.
func referenced(s *module.State) []moduleid.ID {
	var out []moduleid.ID
	out = append(out, s.Ancestors...)
	for _, id := range s.Dependencies {
		if s.Priorities[id] == priority.Indirect {
			continue
		}
		out = append(out, id)
	}
	out = append(out, s.Suppressed...)
	return out
}

// suppress moves id from referrer.Dependencies to referrer.Suppressed,
// preserving the invariant that the union of both sets, and the
// priorities/dep-line maps, stay aligned (spec §3).
func suppress(referrer *module.State, id moduleid.ID) {
	for i, d := range referrer.Dependencies {
		if d == id {
			referrer.Dependencies = append(referrer.Dependencies[:i], referrer.Dependencies[i+1:]...)
			break
		}
	}
	for _, existing := range referrer.Suppressed {
		if existing == id {
			return // already suppressed
		}
	}
	referrer.Suppressed = append(referrer.Suppressed, id)
}

// promoteIfSuppressed moves id from referrer.Suppressed back to
// Dependencies when it turns out to exist in the graph after all (spec
// §4.4 step 6).
func promoteIfSuppressed(referrer *module.State, id moduleid.ID) {
	for i, s := range referrer.Suppressed {
		if s == id {
			referrer.Suppressed = append(referrer.Suppressed[:i], referrer.Suppressed[i+1:]...)
			referrer.Dependencies = append(referrer.Dependencies, id)
			return
		}
	}
}
