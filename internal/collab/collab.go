// Package collab defines the interfaces of the external collaborators
// spec §1 lists as out of scope: "the parser, the semantic analyzers,
// the type checker, the module-path finder, the on-disk metadata store,
// the file-system cache, the plugin loader, the error reporter, the
// report renderer, and the CLI. The design specifies only how the
// orchestrator consumes and coordinates these collaborators."
//
// This file holds the collaborators that module construction and the
// scheduler's finish phase need, and that do not need to see a
// module.State to do their job: a parser works from a path and a byte
// slice, a module finder works from a dotted ID, a metadata store works
// from an ID. The two collaborators that operate *on* a module's
// in-progress analysis artifact (the semantic analyzer and the type
// checker) live in package passes instead, since they need module.State
// and module would otherwise import collab which imports module: a
// cycle. This mirrors how mypy's build.py itself separates
// find_module/FindModuleCache (path-level) from SemanticAnalyzer/
// TypeChecker (which walk State objects).
package collab

import (
	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
)

// ImportEdge is one import statement discovered by the parser: the
// dependency it names, the priority of the import site (spec §4.5), and
// the source line, used for both dep_line_map and diagnostics.
type ImportEdge struct {
	ID       moduleid.ID
	Priority priority.Priority
	Line     int
}

// ParseResult is everything the parser reports about one module's
// source.
type ParseResult struct {
	Tree    any // opaque analysis artifact; type-checked in place by passes.TypeChecker
	Imports []ImportEdge
}

// Parser turns source text into a parse tree and its import edges. It
// is the first external collaborator invoked by both module
// construction (spec §4.3 step 7) and the stale pipeline (spec §4.8
// phase 1).
type Parser interface {
	Parse(path string, source []byte) (ParseResult, error)
}

// ModuleFinder resolves a dotted module ID to a filesystem path,
// standing in for mypy's FindModuleCache.find_module.
type ModuleFinder interface {
	Find(id moduleid.ID, fromDir string) (path string, err error)
}

// MetadataStore mediates all cache-file I/O (spec §5, §6): reading and
// writing the three JSON files per module, and the two global files at
// the cache root.
// MetadataStore's per-module methods all take isPackage, spec §6's
// distinction between a module's "a/b.(meta|data|deps).json" and a
// package's "a/b/__init__.(meta|data|deps).json" cache file layout: the
// caller always has this available from the module.State it is acting
// on (moduleid.IsPackagePath(s.Path), cached as s.IsPackage), and an
// on-disk implementation needs it to resolve the right path.
type MetadataStore interface {
	ReadRecord(id moduleid.ID, isPackage bool) (*cachemeta.Record, error)
	WriteRecord(id moduleid.ID, isPackage bool, rec *cachemeta.Record) error

	// DataMtime/DepsMtime stat the serialized artifact files without
	// reading them, for the validator's steps 3-4.
	DataMtime(id moduleid.ID, isPackage bool) (int64, error)
	DepsMtime(id moduleid.ID, isPackage bool) (int64, error)

	ReadData(id moduleid.ID, isPackage bool) (any, error)
	WriteData(id moduleid.ID, isPackage bool, tree any) error

	ReadPluginSnapshot() (cachemeta.PluginSnapshot, error)
	WritePluginSnapshot(cachemeta.PluginSnapshot) error
}

// PluginLoader fingerprints the active set of analyzer plugins (spec
// §6, "Plugin snapshot").
type PluginLoader interface {
	Snapshot() (cachemeta.PluginSnapshot, error)
}

// ErrorReporter accumulates diagnostics and flushes them at SCC
// boundaries (spec §5, §7). Non-blocking type-check errors accumulate
// per file; a Blocker aborts the pass that raised it.
type ErrorReporter interface {
	Report(msg errs.Message)
	ClearErrorsForFile(id moduleid.ID)
	// Flush returns (and clears) the accumulated messages for the given
	// module IDs, and whether any of them was a blocker.
	Flush(ids []moduleid.ID) (messages []errs.Message, isBlocking bool)
}

// ReportRenderer turns the final accumulated diagnostics into
// user-facing output; entirely out of the orchestrator's concern beyond
// invoking it once at the end of Build.
type ReportRenderer interface {
	Render(messages []errs.Message) error
}
