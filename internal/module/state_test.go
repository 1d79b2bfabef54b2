package module

import (
	"errors"
	"testing"

	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
)

type fakeFinder struct {
	paths map[moduleid.ID]string
}

func (f fakeFinder) Find(id moduleid.ID, _ string) (string, error) {
	if p, ok := f.paths[id]; ok {
		return p, nil
	}
	return "", errors.New("not found")
}

type fakeParser struct {
	imports map[string][]collab.ImportEdge
}

func (p fakeParser) Parse(path string, _ []byte) (collab.ParseResult, error) {
	return collab.ParseResult{Tree: "tree:" + path, Imports: p.imports[path]}, nil
}

func readFileFromMap(contents map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		if c, ok := contents[path]; ok {
			return []byte(c), nil
		}
		return nil, errors.New("no such file")
	}
}

func TestNewParsesAndRecordsDependencies(t *testing.T) {
	finder := fakeFinder{paths: map[moduleid.ID]string{"a.b": "/src/a/b.py"}}
	parser := fakeParser{imports: map[string][]collab.ImportEdge{
		"/src/a/b.py": {
			{ID: "c", Priority: priority.Med, Line: 1},
			{ID: "c", Priority: priority.Low, Line: 5}, // duplicate import; the lower value (Med) wins via Min
			{ID: "d", Priority: priority.High, Line: 2},
		},
	}}
	counter := &Counter{}

	s, err := New(NewOptions{
		ID:       "a.b",
		Finder:   finder,
		Parser:   parser,
		ReadFile: readFileFromMap(map[string]string{"/src/a/b.py": "import c\nimport d"}),
	}, counter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.CheckInvariant()

	if got, want := s.Priorities["c"], priority.Med; got != want {
		t.Errorf("priority for repeated import c = %v, want %v (min of Med,Low)", got, want)
	}
	if len(s.Dependencies) != 2 {
		t.Errorf("Dependencies = %v, want 2 entries", s.Dependencies)
	}
	if len(s.Ancestors) != 1 || s.Ancestors[0] != "a" {
		t.Errorf("Ancestors = %v, want [a]", s.Ancestors)
	}
}

func TestNewMissingModuleReturnsModuleNotFound(t *testing.T) {
	finder := fakeFinder{paths: map[moduleid.ID]string{}}
	counter := &Counter{}
	_, err := New(NewOptions{ID: "missing", Finder: finder}, counter)
	var mnf *errs.ModuleNotFound
	if !errors.As(err, &mnf) {
		t.Fatalf("New(missing) error = %v, want *errs.ModuleNotFound", err)
	}
}

func TestNewSilentFollowImportsSetsIgnoreAll(t *testing.T) {
	finder := fakeFinder{paths: map[moduleid.ID]string{"a": "/src/a.py"}}
	parser := fakeParser{}
	counter := &Counter{}
	s, err := New(NewOptions{
		ID:            "a",
		Finder:        finder,
		Parser:        parser,
		FollowImports: Silent,
		ReadFile:      readFileFromMap(map[string]string{"/src/a.py": ""}),
	}, counter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.IgnoreAll {
		t.Errorf("IgnoreAll = false, want true under Silent follow-imports policy")
	}
}

func TestNewSkipFollowImportsFails(t *testing.T) {
	finder := fakeFinder{paths: map[moduleid.ID]string{"a": "/src/a.py"}}
	counter := &Counter{}
	_, err := New(NewOptions{ID: "a", Finder: finder, FollowImports: Skip}, counter)
	var mnf *errs.ModuleNotFound
	if !errors.As(err, &mnf) {
		t.Fatalf("New(Skip) error = %v, want *errs.ModuleNotFound", err)
	}
}

func TestCounterIsMonotonic(t *testing.T) {
	c := &Counter{}
	if c.Next() != 0 || c.Next() != 1 || c.Next() != 2 {
		t.Errorf("Counter.Next() not monotonic from zero")
	}
}
