package scheduler

import (
	"fmt"

	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
)

// runFreshPipeline implements spec §4.7 for every module in a queued
// fresh SCC (or run of consecutive fresh SCCs drained together, per
// spec §4.6 step 4): deserialize the cached artifact, fix cross
// references, and patch parent namespaces.
func (m *Manager) runFreshPipeline(ids []moduleid.ID) error {
	for _, id := range ids {
		s := m.Graph.Modules[id]
		if m.Store == nil {
			continue
		}
		tree, err := m.Store.ReadData(id, s.IsPackage)
		if err != nil {
			return blockingError(s, fmt.Errorf("loading cached artifact: %w", err))
		}
		s.Tree = tree
	}

	lookup := func(id moduleid.ID) *module.State { return m.Graph.Modules[id] }

	if m.CrossRefs != nil {
		for _, id := range ids {
			s := m.Graph.Modules[id]
			if err := guard(s, func() error { return m.CrossRefs.FixCrossRefs(s, lookup) }); err != nil {
				return blockingError(s, fmt.Errorf("fixing cross references: %w", err))
			}
		}
	}

	if m.Namespaces != nil {
		for _, id := range ids {
			s := m.Graph.Modules[id]
			for _, ancestorID := range s.Ancestors {
				ancestor := m.Graph.Modules[ancestorID]
				if ancestor == nil {
					continue
				}
				if err := guard(s, func() error { return m.Namespaces.PatchParentNamespace(ancestor, s) }); err != nil {
					return blockingError(s, fmt.Errorf("patching parent namespace: %w", err))
				}
			}
		}
	}

	return nil
}

// blockingError wraps err as the single typed CompileError that unwinds
// to the build entry point (spec §7), attaching the offending module's
// path as diagnostic context.
func blockingError(s *module.State, err error) error {
	return errs.NewCompileError(err, []errs.Message{{File: s.Path, Text: err.Error(), IsBlocker: true}})
}
