package scheduler

import (
	"fmt"

	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/passes"
)

// typingID is the one module spec §4.8 step 2 singles out for built-in
// generic alias injection.
const typingID = moduleid.ID("typing")

// runStalePipeline implements spec §4.8: all eleven phases run to
// completion across every node of the SCC before the next phase begins.
func (m *Manager) runStalePipeline(ordered []moduleid.ID, vertexSet map[moduleid.ID]bool) error {
	// Phase 1: parse (no-op if already parsed during discovery);
	// recompute suppressed/visible dependencies against the current
	// graph. A node whose own cached metadata still validates, even
	// though the SCC as a whole is stale, loads its artifact from cache
	// instead of re-parsing (the "mixed-freshness" case phase 3 refers
	// to).
	freshWithinSCC := make(map[moduleid.ID]bool)
	for _, id := range ordered {
		s := m.Graph.Modules[id]
		if m.Errors != nil {
			m.Errors.ClearErrorsForFile(id)
		}
		if m.isFresh(s) {
			if m.Store != nil {
				tree, err := m.Store.ReadData(id, s.IsPackage)
				if err == nil {
					s.Tree = tree
					freshWithinSCC[id] = true
				}
			}
		} else if !s.Parsed && m.Parser != nil {
			// s was constructed from a candidate cache record that the
			// validator has just rejected (or had no record at all but
			// somehow still reached here unparsed); parse it from source
			// now, since New deferred that decision to this point.
			if err := guard(s, func() error { return s.Reparse(m.Parser, m.ReadFile) }); err != nil {
				return blockingError(s, fmt.Errorf("parsing: %w", err))
			}
		}
		m.recomputeSuppressed(s)
	}

	// Phase 2: inject built-in generic aliases into "typing", if present.
	if m.TypingInjector != nil {
		if typing, ok := m.Graph.Modules[typingID]; ok && vertexSet[typingID] {
			if err := guard(typing, func() error { return m.TypingInjector.InjectGenericAliases(typing) }); err != nil {
				return blockingError(typing, fmt.Errorf("injecting generic aliases: %w", err))
			}
		}
	}

	// Phase 3: fix cross-references for nodes loaded fresh within this
	// otherwise-stale SCC.
	if m.CrossRefs != nil && len(freshWithinSCC) > 0 {
		lookup := func(id moduleid.ID) *module.State { return m.Graph.Modules[id] }
		for _, id := range ordered {
			if !freshWithinSCC[id] {
				continue
			}
			s := m.Graph.Modules[id]
			if err := guard(s, func() error { return m.CrossRefs.FixCrossRefs(s, lookup) }); err != nil {
				return blockingError(s, fmt.Errorf("fixing cross references: %w", err))
			}
		}
	}

	var patches []passes.Patch
	// Phase 4: semantic analysis pass two.
	if m.SemanticAnalyzer != nil {
		for _, id := range ordered {
			s := m.Graph.Modules[id]
			ps, err := guardValue(s, func() ([]passes.Patch, error) { return m.SemanticAnalyzer.PassTwo(s) })
			if err != nil {
				return blockingError(s, fmt.Errorf("semantic analysis pass two: %w", err))
			}
			patches = append(patches, m.sequence(ps)...)
		}

		// Phase 5: semantic analysis pass three.
		for _, id := range ordered {
			s := m.Graph.Modules[id]
			ps, err := guardValue(s, func() ([]passes.Patch, error) { return m.SemanticAnalyzer.PassThree(s) })
			if err != nil {
				return blockingError(s, fmt.Errorf("semantic analysis pass three: %w", err))
			}
			patches = append(patches, m.sequence(ps)...)
		}
	}

	// Phase 6: apply accumulated patches in sorted order.
	for _, p := range passes.SortPatches(patches) {
		if p.Apply != nil {
			p.Apply()
		}
	}

	// Phase 7: type-check first pass.
	if m.TypeChecker != nil {
		for _, id := range ordered {
			s := m.Graph.Modules[id]
			if err := guard(s, func() error { return m.TypeChecker.PassOne(s) }); err != nil {
				return blockingError(s, fmt.Errorf("type-check pass one: %w", err))
			}
		}

		// Phase 8: type-check second pass, iterated to a fixed point.
		for {
			again := false
			for _, id := range ordered {
				s := m.Graph.Modules[id]
				needsAnother, err := guardValue(s, func() (bool, error) { return m.TypeChecker.PassTwo(s) })
				if err != nil {
					return blockingError(s, fmt.Errorf("type-check pass two: %w", err))
				}
				if needsAnother {
					again = true
				}
			}
			if !again {
				break
			}
		}
	}

	// Phase 9: unused-ignore notes.
	if m.UnusedIgnores != nil {
		for _, id := range ordered {
			s := m.Graph.Modules[id]
			if err := guard(s, func() error { return m.UnusedIgnores.ReportUnusedIgnores(s) }); err != nil {
				return blockingError(s, fmt.Errorf("reporting unused ignores: %w", err))
			}
		}
	}

	// Phase 10 & 11: flush, propagate transitive_error, finish.
	return m.finishSCC(ordered)
}

// sequence assigns each patch a monotonically increasing Seq, so that
// patches at equal Priority apply in discovery order (spec §4.8 step 6).
func (m *Manager) sequence(ps []passes.Patch) []passes.Patch {
	for i := range ps {
		ps[i].Seq = m.patchSeq
		m.patchSeq++
	}
	return ps
}

// recomputeSuppressed re-checks each of s's suppressed dependencies
// against the current graph, promoting any that now resolve, matching
// the promotion rule the graph loader itself applies (spec §4.4 step
// 6, re-run here because the graph may have grown since s's own
// construction).
func (m *Manager) recomputeSuppressed(s *module.State) {
	var stillSuppressed []moduleid.ID
	for _, id := range s.Suppressed {
		if _, ok := m.Graph.Modules[id]; ok {
			s.Dependencies = append(s.Dependencies, id)
		} else {
			stillSuppressed = append(stillSuppressed, id)
		}
	}
	s.Suppressed = stillSuppressed
}

// finishSCC implements spec §4.8 steps 10-11: flush accumulated
// diagnostics for the SCC, propagate transitive_error if any were
// reported, abort on a blocker, and otherwise finish each node (capture
// types, flush per-file errors, write cache).
func (m *Manager) finishSCC(ordered []moduleid.ID) error {
	var messages []errs.Message
	isBlocking := false
	if m.Errors != nil {
		messages, isBlocking = m.Errors.Flush(ordered)
	}

	if m.FlushErrors != nil {
		m.FlushErrors(messages, isBlocking)
	}

	if len(messages) > 0 {
		for _, id := range ordered {
			m.Graph.Modules[id].TransitiveError = true
		}
	}
	if isBlocking {
		first := ""
		if len(messages) > 0 {
			first = messages[0].Text
		}
		return blockingError(m.Graph.Modules[ordered[0]], fmt.Errorf("blocking error: %s", first))
	}

	for _, id := range ordered {
		m.finishNode(m.Graph.Modules[id])
	}
	return nil
}

// finishNode implements spec §4.8 step 11 for one node: optionally
// capture the final tree, and write the cache unless disabled,
// errored, or in fine-grained incremental mode (an explicit Non-goal,
// so fine-grained writes are never attempted here).
func (m *Manager) finishNode(s *module.State) {
	if m.capturedTrees != nil {
		m.capturedTrees[s.ID] = s.Tree
	}

	if s.Path == "" || !m.CacheEnabled || s.TransitiveError || m.Store == nil {
		return
	}

	newHash := s.InterfaceHash
	if m.ArtifactHasher != nil {
		if h, err := m.ArtifactHasher.Hash(s.Tree); err == nil {
			newHash = h
		}
	}
	s.ExternallySame = newHash == s.InterfaceHash
	s.InterfaceHash = newHash

	if !s.ExternallySame || s.Meta == nil {
		_ = m.Store.WriteData(s.ID, s.IsPackage, s.Tree)
	}

	rec := m.buildRecord(s)
	_ = m.Store.WriteRecord(s.ID, s.IsPackage, rec)
	s.Meta = rec
}

func (m *Manager) buildRecord(s *module.State) *cachemeta.Record {
	dataMtime, _ := m.dataMtime(s.ID)
	rec := &cachemeta.Record{
		ID:            string(s.ID),
		Path:          s.Path,
		Hash:          s.SourceHash.String(),
		DataMtime:     dataMtime,
		Options:       m.Options,
		InterfaceHash: s.InterfaceHash.String(),
		VersionID:     m.AnalyzerVersion,
		IgnoreAll:     s.IgnoreAll,
	}
	for _, id := range s.Dependencies {
		rec.Dependencies = append(rec.Dependencies, string(id))
		rec.DepPriorities = append(rec.DepPriorities, int(s.Priorities[id]))
		rec.DepLines = append(rec.DepLines, s.DepLineMap[id])
	}
	for _, id := range s.Suppressed {
		rec.Suppressed = append(rec.Suppressed, string(id))
		rec.DepPriorities = append(rec.DepPriorities, int(s.Priorities[id]))
		rec.DepLines = append(rec.DepLines, s.DepLineMap[id])
	}
	for id := range s.ChildModules {
		rec.ChildModules = append(rec.ChildModules, string(id))
	}
	if info, err := m.Validator.FS.Stat(s.Path); err == nil {
		rec.Size = info.Size()
		if !m.Validator.Config.BazelMode {
			rec.Mtime = info.ModTime().Unix()
		}
	}
	return rec
}
