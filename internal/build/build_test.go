package build

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/fscache"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
)

type dirFinder struct{ dir string }

func (f dirFinder) Find(id moduleid.ID, _ string) (string, error) {
	p := filepath.Join(f.dir, string(id)+".src")
	if _, err := os.Stat(p); err != nil {
		return "", errors.New("not found")
	}
	return p, nil
}

type staticParser struct{ edges map[moduleid.ID][]collab.ImportEdge }

func (p staticParser) Parse(path string, _ []byte) (collab.ParseResult, error) {
	id := moduleid.ID(filepath.Base(path[:len(path)-len(".src")]))
	return collab.ParseResult{Tree: path, Imports: p.edges[id]}, nil
}

// TestBuildColdLinearChain exercises spec §8 scenario 1: a cold build
// of a.py importing b.py, b.py importing nothing, with no scheduler
// collaborators wired (the analysis-facing passes are true external
// collaborators this core never implements itself).
func TestBuildColdLinearChain(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name+".src"), []byte("source "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mgr := &Manager{
		Finder: dirFinder{dir: dir},
		Parser: staticParser{edges: map[moduleid.ID][]collab.ImportEdge{
			"a": {{ID: "b", Priority: priority.Med, Line: 1}},
		}},
		FS: fscache.New(),
	}

	var flushed []errs.Message
	result, err := mgr.Build([]Source{{ID: "a"}}, Options{CacheEnabled: false}, func(m []errs.Message, _ bool) {
		flushed = append(flushed, m...)
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Graph.Modules) != 2 {
		t.Fatalf("Graph has %d modules, want 2 (a, b)", len(result.Graph.Modules))
	}
	if _, ok := result.Graph.Modules["b"]; !ok {
		t.Errorf("transitive dependency b not discovered")
	}
	if len(flushed) != 0 {
		t.Errorf("flushed unexpected messages: %v", flushed)
	}
}

func TestBuildRejectsDuplicateRootIDs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.src"), []byte("source a"), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr := &Manager{
		Finder: dirFinder{dir: dir},
		Parser: staticParser{},
		FS:     fscache.New(),
	}
	_, err := mgr.Build([]Source{{ID: "a"}, {ID: "a"}}, Options{}, nil)
	var ce *errs.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Build with duplicate roots error = %v, want *errs.CompileError", err)
	}
}
