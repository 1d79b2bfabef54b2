package loader

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
)

type fakeFinder struct{ known map[moduleid.ID]bool }

func (f fakeFinder) Find(id moduleid.ID, _ string) (string, error) {
	if f.known[id] {
		return "/src/" + string(id) + ".py", nil
	}
	return "", errors.New("not found")
}

type fakeParser struct{ edges map[moduleid.ID][]collab.ImportEdge }

func (p fakeParser) Parse(path string, _ []byte) (collab.ParseResult, error) {
	return collab.ParseResult{Tree: path}, nil
}

// parserFor builds a fakeParser whose Parse dispatches on the module ID
// encoded in the synthetic "/src/<id>.py" path fakeFinder hands back.
func parserFor(edges map[moduleid.ID][]collab.ImportEdge) collab.Parser {
	return parserFunc(func(path string, _ []byte) (collab.ParseResult, error) {
		id := moduleid.ID(path[len("/src/") : len(path)-len(".py")])
		return collab.ParseResult{Tree: path, Imports: edges[id]}, nil
	})
}

type parserFunc func(path string, src []byte) (collab.ParseResult, error)

func (f parserFunc) Parse(path string, src []byte) (collab.ParseResult, error) { return f(path, src) }

func noopReadFile(string) ([]byte, error) { return nil, nil }

func TestLoadLinearChain(t *testing.T) {
	finder := fakeFinder{known: map[moduleid.ID]bool{"a": true, "b": true}}
	parser := parserFor(map[moduleid.ID][]collab.ImportEdge{
		"a": {{ID: "b", Priority: priority.Med, Line: 1}},
	})
	g, err := Load([]RootSource{{ID: "a"}}, Options{
		Finder: finder, Parser: parser, ReadFile: noopReadFile,
		Counter: &module.Counter{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Modules) != 2 {
		t.Fatalf("Load discovered %d modules, want 2 (a, b)", len(g.Modules))
	}
	if _, ok := g.Modules["b"]; !ok {
		t.Errorf("transitive dependency b not discovered")
	}
}

func TestLoadMissingDependencyIsSuppressed(t *testing.T) {
	finder := fakeFinder{known: map[moduleid.ID]bool{"a": true}}
	parser := parserFor(map[moduleid.ID][]collab.ImportEdge{
		"a": {{ID: "nonexistent", Priority: priority.Med, Line: 1}},
	})
	g, err := Load([]RootSource{{ID: "a"}}, Options{
		Finder: finder, Parser: parser, ReadFile: noopReadFile,
		Counter: &module.Counter{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a := g.Modules["a"]
	if len(a.Dependencies) != 0 {
		t.Errorf("a.Dependencies = %v, want empty (moved to Suppressed)", a.Dependencies)
	}
	if diff := cmp.Diff([]moduleid.ID{"nonexistent"}, a.Suppressed); diff != "" {
		t.Errorf("a.Suppressed mismatch (-want +got):\n%s", diff)
	}
	if _, ok := g.Modules["nonexistent"]; ok {
		t.Errorf("nonexistent module should not appear in the graph")
	}
}

func TestLoadExcludesIndirectPriorityFromDiscovery(t *testing.T) {
	finder := fakeFinder{known: map[moduleid.ID]bool{"a": true, "b": true}}
	parser := parserFor(map[moduleid.ID][]collab.ImportEdge{
		"a": {{ID: "b", Priority: priority.Indirect, Line: 1}},
	})
	g, err := Load([]RootSource{{ID: "a"}}, Options{
		Finder: finder, Parser: parser, ReadFile: noopReadFile,
		Counter: &module.Counter{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := g.Modules["b"]; ok {
		t.Errorf("indirect-priority dependency b was discovered; spec §4.4 step 4 excludes it")
	}
}

func TestLoadRejectsDuplicateRoots(t *testing.T) {
	finder := fakeFinder{known: map[moduleid.ID]bool{"a": true}}
	parser := parserFor(nil)
	_, err := Load([]RootSource{{ID: "a"}, {ID: "a"}}, Options{
		Finder: finder, Parser: parser, ReadFile: noopReadFile,
		Counter: &module.Counter{},
	})
	if err == nil {
		t.Fatalf("Load with duplicate roots succeeded, want an error")
	}
}

func TestLoadRegistersAncestorChildModules(t *testing.T) {
	finder := fakeFinder{known: map[moduleid.ID]bool{"a": true, "a.b": true}}
	parser := parserFor(map[moduleid.ID][]collab.ImportEdge{
		"a.b": {},
	})
	g, err := Load([]RootSource{{ID: "a.b"}}, Options{
		Finder: finder, Parser: parser, ReadFile: noopReadFile,
		Counter: &module.Counter{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, ok := g.Modules["a"]
	if !ok {
		t.Fatalf("ancestor package 'a' was not discovered")
	}
	if !a.ChildModules["a.b"] {
		t.Errorf("a.ChildModules does not contain a.b")
	}
}
