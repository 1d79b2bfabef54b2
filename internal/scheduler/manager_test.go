package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/collab"
	"github.com/buildgraph/orchestrator/internal/fscache"
	"github.com/buildgraph/orchestrator/internal/loader"
	"github.com/buildgraph/orchestrator/internal/module"
	"github.com/buildgraph/orchestrator/internal/moduleid"
	"github.com/buildgraph/orchestrator/internal/priority"
	"github.com/buildgraph/orchestrator/internal/validator"
)

// memStore is a minimal in-memory collab.MetadataStore. DataMtime is a
// monotonically increasing logical clock bumped on every WriteData, so
// tests can tell whether a module's data file was rewritten without
// depending on real filesystem mtime resolution.
type memStore struct {
	meta      map[moduleid.ID]*cachemeta.Record
	data      map[moduleid.ID]any
	dataMtime map[moduleid.ID]int64
	clock     int64
}

func newMemStore() *memStore {
	return &memStore{
		meta:      map[moduleid.ID]*cachemeta.Record{},
		data:      map[moduleid.ID]any{},
		dataMtime: map[moduleid.ID]int64{},
	}
}

func (s *memStore) ReadRecord(id moduleid.ID, isPackage bool) (*cachemeta.Record, error) {
	r, ok := s.meta[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) WriteRecord(id moduleid.ID, isPackage bool, rec *cachemeta.Record) error {
	cp := *rec
	s.meta[id] = &cp
	return nil
}

func (s *memStore) DataMtime(id moduleid.ID, isPackage bool) (int64, error) { return s.dataMtime[id], nil }
func (s *memStore) DepsMtime(moduleid.ID, bool) (int64, error)              { return 0, nil }

func (s *memStore) ReadData(id moduleid.ID, isPackage bool) (any, error) { return s.data[id], nil }

func (s *memStore) WriteData(id moduleid.ID, isPackage bool, tree any) error {
	s.clock++
	s.data[id] = tree
	s.dataMtime[id] = s.clock
	return nil
}

func (s *memStore) ReadPluginSnapshot() (cachemeta.PluginSnapshot, error) {
	return cachemeta.PluginSnapshot{}, nil
}
func (s *memStore) WritePluginSnapshot(cachemeta.PluginSnapshot) error { return nil }

// countingParser parses by reading the whole source as the Tree (a
// string) and counts how many times each module ID was actually parsed,
// the signal the freshness tests below check.
type countingParser struct {
	edges map[moduleid.ID][]collab.ImportEdge
	calls map[moduleid.ID]int
}

func (p *countingParser) Parse(path string, src []byte) (collab.ParseResult, error) {
	id := moduleid.ID(filepath.Base(path[:len(path)-len(".src")]))
	p.calls[id]++
	return collab.ParseResult{Tree: string(src), Imports: p.edges[id]}, nil
}

type dirFinder struct{ dir string }

func (f dirFinder) Find(id moduleid.ID, _ string) (string, error) {
	return filepath.Join(f.dir, string(id)+".src"), nil
}

// stringHasher hashes a Tree that is a plain string (as countingParser
// produces), standing in for the real ArtifactHasher collaborator.
type stringHasher struct{}

func (stringHasher) Hash(tree any) (cachemeta.Digest, error) {
	s, _ := tree.(string)
	return cachemeta.HashBytes([]byte(s)), nil
}

// schedulerFixture bundles one BFS-discovered-then-scheduled build over
// a/b.src in dir, so each scenario only needs to vary file contents
// between runs.
type schedulerFixture struct {
	dir     string
	store   *memStore
	finder  dirFinder
	parser  *countingParser
	fsCache *fscache.Cache
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	dir := t.TempDir()
	return &schedulerFixture{
		dir:    dir,
		store:  newMemStore(),
		finder: dirFinder{dir: dir},
		parser: &countingParser{
			edges: map[moduleid.ID][]collab.ImportEdge{
				"a": {{ID: "b", Priority: priority.Med, Line: 1}},
			},
			calls: map[moduleid.ID]int{},
		},
		fsCache: fscache.New(),
	}
}

func (f *schedulerFixture) writeSource(t *testing.T, name, content string) {
	t.Helper()
	p := filepath.Join(f.dir, name+".src")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// Advance the mtime on every write, so two writes within the same
	// filesystem mtime tick still look changed to the validator.
	future := time.Now().Add(time.Duration(f.store.clock+1) * time.Second)
	if err := os.Chtimes(p, future, future); err != nil {
		t.Fatal(err)
	}
	f.fsCache.Invalidate(p)
}

// run discovers and schedules one build over the fixture's current
// on-disk sources, reusing the same MetadataStore/Parser/fscache across
// calls the way two successive `build()` invocations against the same
// cache directory would.
func (f *schedulerFixture) run(t *testing.T) *loader.Graph {
	t.Helper()
	g, err := loader.Load([]loader.RootSource{{ID: "a"}}, loader.Options{
		Finder:       f.finder,
		Parser:       f.parser,
		Store:        f.store,
		CacheEnabled: true,
		Counter:      &module.Counter{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	v := &validator.Validator{
		FS:     f.fsCache,
		Config: validator.Config{AnalyzerVersion: "v1"},
		DataMtime: func(id string) (int64, error) {
			return f.store.DataMtime(moduleid.ID(id), false)
		},
		DepsMtime: func(id string) (int64, error) {
			return f.store.DepsMtime(moduleid.ID(id), false)
		},
	}

	mgr := &Manager{
		Graph:           g,
		Validator:       v,
		Store:           f.store,
		Parser:          f.parser,
		ArtifactHasher:  stringHasher{},
		CacheEnabled:    true,
		AnalyzerVersion: "v1",
	}
	if err := Run(mgr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return g
}

// TestSchedulerWarmBuildNoChanges exercises spec §8 scenario 2: a second
// build against an intact cache classifies every SCC fresh and never
// rewrites a data file.
func TestSchedulerWarmBuildNoChanges(t *testing.T) {
	f := newSchedulerFixture(t)
	f.writeSource(t, "a", "source a")
	f.writeSource(t, "b", "source b")

	f.run(t)
	if f.parser.calls["a"] != 1 || f.parser.calls["b"] != 1 {
		t.Fatalf("cold build parse calls = %v, want 1 each", f.parser.calls)
	}
	dataMtimeAfterCold := map[moduleid.ID]int64{"a": f.store.dataMtime["a"], "b": f.store.dataMtime["b"]}

	f.run(t)
	if f.parser.calls["a"] != 1 || f.parser.calls["b"] != 1 {
		t.Fatalf("warm build re-parsed a source: calls = %v, want unchanged from cold build", f.parser.calls)
	}
	dataMtimeAfterWarm := map[moduleid.ID]int64{"a": f.store.dataMtime["a"], "b": f.store.dataMtime["b"]}
	if diff := cmp.Diff(dataMtimeAfterCold, dataMtimeAfterWarm); diff != "" {
		t.Errorf("warm build rewrote a data file; freshness should have skipped it (-cold +warm):\n%s", diff)
	}
}

// TestSchedulerWarmBuildLeafChanged exercises spec §8 scenario 3:
// mutating the leaf module b forces {b} stale (size/hash mismatch), and
// b's changed interface then forces {a} stale too (the "stale_deps"
// branch of spec §4.6 step 2: a's own dependency b is no longer
// ExternallySame). a is still individually cache-valid, though, so the
// mixed-freshness policy (spec §4.8 phase 1/3) loads its tree from cache
// instead of reparsing it — only b, whose record actually failed
// validation, goes through Reparse.
func TestSchedulerWarmBuildLeafChanged(t *testing.T) {
	f := newSchedulerFixture(t)
	f.writeSource(t, "a", "source a")
	f.writeSource(t, "b", "source b")
	f.run(t)
	aDataMtimeAfterCold := f.store.dataMtime["a"]

	f.writeSource(t, "b", "source b v2")
	f.run(t)

	if f.parser.calls["b"] != 2 {
		t.Fatalf("b not reparsed after its content changed: calls = %d, want 2", f.parser.calls["b"])
	}
	if f.parser.calls["a"] != 1 {
		t.Fatalf("a was reparsed even though its own cached record still validates: calls = %d, want 1 (mixed-freshness should load it from cache)", f.parser.calls["a"])
	}
	if f.store.dataMtime["a"] != aDataMtimeAfterCold {
		t.Errorf("a's data file was rewritten even though its interface hash did not change (spec §4.8: unchanged interface hash leaves the data file alone)")
	}
	if meta := f.store.meta["a"]; meta == nil || meta.Hash != cachemeta.HashBytes([]byte("source a")).String() {
		t.Errorf("a's metadata record should still be rewritten even though its data file was not")
	}
}
