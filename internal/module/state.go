// Package module implements the per-module lifecycle of spec §3/§4.3:
// source, parsed tree, dependencies, and cache handle. It is grounded on
// mypy's build.py State class (see
// _examples/original_source/mypy/build.py) but laid out as a plain Go
// struct with an explicit constructor instead of a class whose __init__
// does double duty as "construct" and "discover": the arena/ID
// indirection spec §9 calls for ("give each state an opaque ID and look
// up peers through the graph map") means State never holds a pointer to
// another State; only moduleid.ID values, resolved by the loader's
// module map.
package module

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/buildgraph/orchestrator/internal/bug"
	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
)

// FollowImports is the per-module policy of spec §6.
type FollowImports int

const (
	Normal FollowImports = iota
	Silent
	Skip
	Error
)

// ImportFrame is one entry of the import_context diagnostic stack (spec
// §3): the importing path and the source line of the import.
type ImportFrame struct {
	Path string
	Line int
}

// State is one graph node: a module's full lifecycle state (spec §3).
type State struct {
	ID   moduleid.ID
	Path string // filesystem location, or "" if supplied as a literal string

	// IsPackage is true when Path names a package module (spec §6's
	// "a/b/__init__.(meta|data|deps).json" layout), derived once Path is
	// known (step 3 below) and consulted by every collab.MetadataStore
	// call this state makes, so package and plain modules land in their
	// respectively distinct cache file layouts.
	IsPackage bool

	source     []byte // literal source text; cleared once parsed
	SourceHash cachemeta.Digest
	hasSource  bool // distinguishes "not yet consumed" from "empty source"

	Meta *cachemeta.Record // candidate cache record loaded at construction; validated later by the scheduler

	Tree any // parsed and progressively annotated analysis artifact

	Dependencies []moduleid.ID          // ordered, directly imported
	Suppressed   []moduleid.ID          // imported but unresolved, or ignored
	Ancestors    []moduleid.ID          // parent packages of ID
	ChildModules map[moduleid.ID]bool   // direct submodules known to exist
	Priorities   map[moduleid.ID]priority.Priority
	DepLineMap   map[moduleid.ID]int

	Order int // monotonic discovery counter; scheduling tie-break

	ImportContext []ImportFrame

	InterfaceHash   cachemeta.Digest
	ExternallySame  bool // cleared when InterfaceHash changes
	TransitiveError bool
	IgnoreAll       bool

	// Parsed is true once Tree/Dependencies have been derived from source
	// rather than from a candidate cache record. A state constructed from
	// a cache hit has Parsed == false even though Meta != nil, since
	// construction only loads the candidate record without validating it
	// (spec §4.3 step 6; validation happens later, in the scheduler's
	// freshness check). The scheduler uses this to know whether a module whose
	// cache the validator later rejects still needs its first parse.
	Parsed bool
}

// invariantOK checks the structural invariant of spec §3:
// len(dependencies)+len(suppressed) == len(priorities) == len(dep_lines),
// and every ID in priorities/dep_line_map appears in
// dependencies∪suppressed.
func (s *State) invariantOK() bool {
	n := len(s.Dependencies) + len(s.Suppressed)
	if n != len(s.Priorities) || n != len(s.DepLineMap) {
		return false
	}
	in := make(map[moduleid.ID]bool, n)
	for _, d := range s.Dependencies {
		in[d] = true
	}
	for _, d := range s.Suppressed {
		in[d] = true
	}
	for id := range s.Priorities {
		if !in[id] {
			return false
		}
	}
	for id := range s.DepLineMap {
		if !in[id] {
			return false
		}
	}
	if s.Meta != nil && s.Meta.ID != string(s.ID) {
		return false
	}
	return true
}

// CheckInvariant reports (via internal/bug) any violation of the
// structural invariant, without aborting the build: spec §9 models bug
// reporting as non-fatal diagnosis of the orchestrator's own defects.
func (s *State) CheckInvariant() {
	if !s.invariantOK() {
		bug.Reportf("module %s: structural invariant violated (deps=%d suppressed=%d prios=%d lines=%d)",
			s.ID, len(s.Dependencies), len(s.Suppressed), len(s.Priorities), len(s.DepLineMap))
	}
}

// Counter is the monotonic discovery counter of spec §3 ("order"),
// modelled as build-manager state per spec §9 ("Global counters and
// singletons... Model them as fields on the build manager"). Counter is
// exported so a Manager can own one instance per build, rather than a
// process-wide global.
type Counter struct{ n atomic.Int64 }

// Next returns the next monotonically increasing order value.
func (c *Counter) Next() int { return int(c.n.Add(1)) - 1 }

// NewOptions bundles the inputs to New beyond the caller's own
// collaborators, mirroring the (id?, path?, source?, caller, caller_line)
// parameter list of spec §4.3.
type NewOptions struct {
	ID     moduleid.ID // may be empty if Path or Source determines it
	Path   string      // may be empty
	Source []byte      // may be nil

	Caller     *State // the importing module, if any
	CallerLine int

	FollowImports FollowImports
	Temporary     bool // construction for a temporary, non-discoverable probe

	Finder   collab.ModuleFinder
	Parser   collab.Parser
	Store    collab.MetadataStore // nil if caching is disabled
	ReadFile func(path string) ([]byte, error)

	CacheEnabled bool
}

// New constructs a module.State per spec §4.3.
func New(opts NewOptions, counter *Counter) (*State, error) {
	s := &State{
		ID:             opts.ID,
		Path:           opts.Path,
		ChildModules:   make(map[moduleid.ID]bool),
		Priorities:     make(map[moduleid.ID]priority.Priority),
		DepLineMap:     make(map[moduleid.ID]int),
		ExternallySame: true,
	}

	// Step 1: assign a monotonic order.
	s.Order = counter.Next()

	// Step 2: inherit and extend import_context from the caller.
	if opts.Caller != nil {
		s.ImportContext = append(s.ImportContext, opts.Caller.ImportContext...)
		s.ImportContext = append(s.ImportContext, ImportFrame{Path: opts.Caller.Path, Line: opts.CallerLine})
	}

	// Step 3: resolve via module finder if no path/source given.
	if s.Path == "" && opts.Source == nil {
		fromDir := ""
		if opts.Caller != nil {
			fromDir = opts.Caller.Path
		}
		path, err := opts.Finder.Find(s.ID, fromDir)
		if err != nil {
			// The caller (the graph loader) is responsible for moving
			// s.ID from the referrer's Dependencies to its Suppressed;
			// New only reports the failure. opts.Temporary is carried
			// through unused here: per spec §9's open question, whether
			// a temporary probe construction should participate in
			// plugin-snapshot side effects is left to the loader, which
			// is the only caller that knows it is probing.
			return nil, &errs.ModuleNotFound{ID: string(s.ID)}
		}
		s.Path = path
	} else if opts.Source != nil {
		s.source = opts.Source
		s.hasSource = true
	}
	s.IsPackage = moduleid.IsPackagePath(s.Path)

	// Step 4: apply follow-imports policy.
	switch opts.FollowImports {
	case Silent:
		s.IgnoreAll = true
	case Skip, Error:
		return nil, &errs.ModuleNotFound{ID: string(s.ID), Path: s.Path}
	}

	// Step 5: populate ancestors.
	s.Ancestors = moduleid.Ancestors(s.ID)

	// Step 6: try cache.
	if opts.CacheEnabled && opts.Store != nil {
		if rec, err := opts.Store.ReadRecord(s.ID, s.IsPackage); err == nil && rec != nil {
			s.Meta = rec
			s.populateFromRecord(rec)
		}
	}

	// Step 7: on cache miss, parse immediately (non-fine-grained mode is
	// assumed here; fine-grained deferral is the loader's concern, since
	// it decides whether to even attempt eager parsing).
	if s.Meta == nil {
		readFile := opts.ReadFile
		if readFile == nil {
			readFile = os.ReadFile
		}
		if err := s.parseNow(opts.Parser, readFile); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// populateFromRecord copies the fields a candidate cache record supplies
// (spec §4.3 step 6): dependencies, suppressed, priorities, dep lines,
// child modules, and the recorded source and interface hashes. The
// record has not been validated at this point.
func (s *State) populateFromRecord(rec *cachemeta.Record) {
	s.Dependencies = toIDs(rec.Dependencies)
	s.Suppressed = toIDs(rec.Suppressed)
	for _, c := range rec.ChildModules {
		s.ChildModules[moduleid.ID(c)] = true
	}
	all := append(append([]moduleid.ID(nil), s.Dependencies...), s.Suppressed...)
	for i, id := range all {
		if i < len(rec.DepPriorities) {
			s.Priorities[id] = priority.Priority(rec.DepPriorities[i])
		}
		if i < len(rec.DepLines) {
			s.DepLineMap[id] = rec.DepLines[i]
		}
	}
	s.IgnoreAll = rec.IgnoreAll
	if h, err := cachemeta.ParseDigest(rec.Hash); err == nil {
		s.SourceHash = h
	}
	if h, err := cachemeta.ParseDigest(rec.InterfaceHash); err == nil {
		s.InterfaceHash = h
	}
}

func toIDs(ss []string) []moduleid.ID {
	if ss == nil {
		return nil
	}
	out := make([]moduleid.ID, len(ss))
	for i, s := range ss {
		out[i] = moduleid.ID(s)
	}
	return out
}

// parseNow loads source (reading from Path if it was not supplied
// literally), parses it, computes the source hash, and records the
// discovered import edges as Dependencies/Priorities/DepLineMap (spec
// §4.3 step 7, §3 "source_hash: ... set when source is first consumed").
func (s *State) parseNow(p collab.Parser, readFile func(string) ([]byte, error)) error {
	src := s.source
	if !s.hasSource {
		data, err := readFile(s.Path)
		if err != nil {
			return fmt.Errorf("module %s: reading source: %w", s.ID, err)
		}
		src = data
	}
	s.SourceHash = cachemeta.HashBytes(src)

	result, err := p.Parse(s.Path, src)
	if err != nil {
		return fmt.Errorf("module %s: parse: %w", s.ID, err)
	}
	s.Tree = result.Tree

	// Clear source once parsed, to release memory (spec §3).
	s.source = nil
	s.hasSource = false

	s.applyImportEdges(result.Imports)
	s.Parsed = true
	return nil
}

// Reparse re-derives Tree/Dependencies/Priorities/DepLineMap from source,
// discarding whatever a stale cached record had populated. This is the
// scheduler's counterpart to spec §4.8 phase 1 ("parse (no-op if already
// parsed during discovery); recompute suppressed/visible dependencies
// against the current graph") for the case where construction loaded a
// candidate record that the validator subsequently rejected: since New
// never parses when a candidate record is present (spec §4.3 step 6/7),
// that deferred decision lands here instead of at construction time.
func (s *State) Reparse(p collab.Parser, readFile func(string) ([]byte, error)) error {
	if readFile == nil {
		readFile = os.ReadFile
	}
	s.Dependencies = nil
	s.Suppressed = nil
	s.Priorities = make(map[moduleid.ID]priority.Priority)
	s.DepLineMap = make(map[moduleid.ID]int)
	return s.parseNow(p, readFile)
}

// applyImportEdges folds the parser's import edges into
// Dependencies/Priorities/DepLineMap, taking the minimum observed
// priority when a dependency is imported more than once (spec §4.5).
func (s *State) applyImportEdges(edges []collab.ImportEdge) {
	for _, e := range edges {
		if existing, ok := s.Priorities[e.ID]; ok {
			s.Priorities[e.ID] = priority.Min(existing, e.Priority)
			continue
		}
		s.Dependencies = append(s.Dependencies, e.ID)
		s.Priorities[e.ID] = e.Priority
		s.DepLineMap[e.ID] = e.Line
	}
}
