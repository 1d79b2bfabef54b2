// Package build assembles the graph loader and the SCC scheduler behind
// the single entry point spec §6 describes: "the orchestrator exposes a
// single entry: build(sources, options, alt_lib_path?, flush_errors?,
// fscache?) → BuildResult | raises CompileError".
//
// Grounded on mypy's build.py build()/BuildManager (see
// _examples/original_source/mypy/build.py): Manager plays the role of
// BuildManager, owning the collaborators and the per-build counters spec
// §9 asks not to be process-wide globals.
package build

import (
	"path"
	"strings"

	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/fscache"
	"github.com/buildgraph/orchestrator/internal/loader"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/passes"
	"github.com/buildgraph/orchestrator/internal/scheduler"
	"github.com/buildgraph/orchestrator/internal/validator"
)

// Source is one of the (module_id?, path?, text?) triples spec §6
// describes as build's input.
type Source struct {
	ID   moduleid.ID
	Path string
	Text []byte
}

// Options bundles the per-build settings spec §6 groups under
// "options", plus the validator configuration of spec §4.2.
type Options struct {
	CacheEnabled    bool
	BazelMode       bool
	FineGrainedDeps bool
	LaxVersion      bool
	AnalyzerVersion string
	ModuleOptions   cachemeta.Options

	AltLibPath string

	// FollowImportsForStubs, when false, coerces stub files (by
	// convention, paths ending in a stub extension) to silent follow
	// imports regardless of their own configured policy (spec §6).
	FollowImportsForStubs bool
	SitePackagesPaths     []string
	TypeshedPaths         []string
}

// BuildResult is the successful outcome of Build: the fully resolved,
// fully analyzed module graph.
type BuildResult struct {
	Graph *loader.Graph
}

// Manager owns the collaborators and the per-build counters (spec §9):
// a fresh Manager, or a Manager whose mutable fields are reset, should
// back every independent call to Build, since Counter and the plugin
// snapshot are scoped to one build, not the process.
type Manager struct {
	Finder         collab.ModuleFinder
	Parser         collab.Parser
	Store          collab.MetadataStore
	PluginLoader   collab.PluginLoader
	ErrorReporter  collab.ErrorReporter
	ReportRenderer collab.ReportRenderer
	FS             *fscache.Cache

	SemanticAnalyzer passes.SemanticAnalyzer
	TypeChecker      passes.TypeChecker
	UnusedIgnores    passes.UnusedIgnoreReporter
	CrossRefs        passes.CrossRefFixer
	Namespaces       passes.NamespacePatcher
	TypingInjector   passes.TypingModuleInjector
	ArtifactHasher   passes.ArtifactHasher

	counter        module.Counter
	pluginSnapshot cachemeta.PluginSnapshot
}

// Build implements spec §6's entry point. flushErrors, if non-nil, is
// invoked at each SCC boundary with the messages accumulated for that
// SCC and whether any of them was a blocker.
func (m *Manager) Build(sources []Source, opts Options, flushErrors func(messages []errs.Message, isBlocking bool)) (*BuildResult, error) {
	effectiveCacheEnabled := opts.CacheEnabled

	if m.PluginLoader != nil && m.Store != nil {
		current, err := m.PluginLoader.Snapshot()
		if err == nil {
			previous, _ := m.Store.ReadPluginSnapshot()
			if validator.PluginsChanged(previous, current) {
				// Spec §4.2, "Additional global checks": a plugin-snapshot
				// change invalidates every cached record in the build.
				effectiveCacheEnabled = false
			}
			m.pluginSnapshot = current
		}
	}

	roots := make([]loader.RootSource, 0, len(sources))
	for _, src := range sources {
		id := src.ID
		if id == "" && src.Path != "" {
			id = idFromPath(src.Path)
		}
		roots = append(roots, loader.RootSource{ID: id, Path: src.Path, Text: src.Text})
	}

	followImportsFor := func(id moduleid.ID, p string) module.FollowImports {
		if id == "builtins" {
			return module.Normal
		}
		for _, prefix := range opts.SitePackagesPaths {
			if strings.HasPrefix(p, prefix) {
				return module.Silent
			}
		}
		for _, prefix := range opts.TypeshedPaths {
			if strings.HasPrefix(p, prefix) {
				return module.Silent
			}
		}
		if !opts.FollowImportsForStubs && strings.HasSuffix(p, ".pyi") {
			return module.Silent
		}
		return module.Normal
	}

	g, err := loader.Load(roots, loader.Options{
		Finder:           m.Finder,
		Parser:           m.Parser,
		Store:            m.Store,
		ReadFile:         nil,
		CacheEnabled:     effectiveCacheEnabled,
		FollowImportsFor: followImportsFor,
		Counter:          &m.counter,
	})
	if err != nil {
		if ce, ok := err.(*errs.CompileError); ok && flushErrors != nil {
			flushErrors(ce.Messages, true)
		}
		return nil, err
	}

	v := &validator.Validator{
		FS: m.FS,
		Config: validator.Config{
			BazelMode:       opts.BazelMode,
			FineGrainedDeps: opts.FineGrainedDeps,
			LaxVersion:      opts.LaxVersion,
			AnalyzerVersion: opts.AnalyzerVersion,
		},
	}
	if m.Store != nil {
		isPackage := func(id string) bool {
			if s := g.Modules[moduleid.ID(id)]; s != nil {
				return s.IsPackage
			}
			return false
		}
		v.DataMtime = func(id string) (int64, error) { return m.Store.DataMtime(moduleid.ID(id), isPackage(id)) }
		v.DepsMtime = func(id string) (int64, error) { return m.Store.DepsMtime(moduleid.ID(id), isPackage(id)) }
	}

	sched := &scheduler.Manager{
		Graph:            g,
		Validator:        v,
		Store:            m.Store,
		Parser:           m.Parser,
		SemanticAnalyzer: m.SemanticAnalyzer,
		TypeChecker:      m.TypeChecker,
		UnusedIgnores:    m.UnusedIgnores,
		CrossRefs:        m.CrossRefs,
		Namespaces:       m.Namespaces,
		TypingInjector:   m.TypingInjector,
		ArtifactHasher:   m.ArtifactHasher,
		Errors:           m.ErrorReporter,
		FlushErrors:      flushErrors,
		CacheEnabled:     effectiveCacheEnabled,
		Options:          opts.ModuleOptions,
		AnalyzerVersion:  opts.AnalyzerVersion,
	}

	if err := scheduler.Run(sched); err != nil {
		return nil, err
	}

	if m.Store != nil && m.pluginSnapshot != nil {
		_ = m.Store.WritePluginSnapshot(m.pluginSnapshot)
	}

	if m.ReportRenderer != nil {
		var all []errs.Message
		if m.ErrorReporter != nil {
			msgs, _ := m.ErrorReporter.Flush(g.SortedIDs())
			all = msgs
		}
		if err := m.ReportRenderer.Render(all); err != nil {
			return nil, err
		}
	}

	return &BuildResult{Graph: g}, nil
}

// idFromPath derives a dotted module ID from a filesystem path when the
// caller supplies only a path (spec §6 lists module_id as optional in
// the root-source triple). This is a reasonable default, not a general
// module-path algorithm: package __init__ files and namespace packages
// are the module finder's concern, invoked only on transitive imports,
// never on explicitly named root sources.
func idFromPath(p string) moduleid.ID {
	p = strings.TrimSuffix(p, path.Ext(p))
	p = strings.TrimPrefix(p, "/")
	p = strings.ReplaceAll(p, "/", ".")
	return moduleid.ID(p)
}
