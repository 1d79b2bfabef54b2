// Package fsstore implements collab.MetadataStore against a plain
// filesystem cache directory, following the layout spec §6 specifies:
// "<cache_dir>/<version.major>.<version.minor>/a/b.meta.json" for module
// "a.b", "a/b/__init__.meta.json" for a package, and the two global
// files "@plugins_snapshot.json" / "@proto_deps.{meta,data}.json" at the
// cache root.
//
// Grounded on mypy's build.py CacheMeta file layout
// (_examples/original_source/mypy/build.py) but using encoding/json via
// internal/cachemeta's codec instead of the original's ad hoc
// dict-based serialization, and atomic rename-based writes the way
// golang.org/x/tools/gopls/internal/cache's on-disk index does (see
// gopls/internal/cache): write to a temp file in the same directory,
// then os.Rename, so a crash mid-write never leaves a torn record for
// the validator to misread as valid.
package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/moduleid"
)

// Store is a filesystem-backed collab.MetadataStore.
type Store struct {
	Root string // "<cache_dir>/<version.major>.<version.minor>"
}

// New returns a Store rooted at filepath.Join(cacheDir, version).
func New(cacheDir, version string) *Store {
	return &Store{Root: filepath.Join(cacheDir, version)}
}

// modulePath maps a dotted module ID to the base path (without
// extension) its cache files live under, applying spec §6's package
// vs. plain-module distinction.
func (s *Store) modulePath(id moduleid.ID, isPackage bool) string {
	parts := strings.Split(string(id), ".")
	if isPackage {
		parts = append(parts, "__init__")
	}
	return filepath.Join(s.Root, filepath.Join(parts...))
}

func (s *Store) metaPath(id moduleid.ID, isPackage bool) string {
	return s.modulePath(id, isPackage) + ".meta.json"
}
func (s *Store) dataPath(id moduleid.ID, isPackage bool) string {
	return s.modulePath(id, isPackage) + ".data.json"
}
func (s *Store) depsPath(id moduleid.ID, isPackage bool) string {
	return s.modulePath(id, isPackage) + ".deps.json"
}

// ReadRecord reads and decodes the metadata file for id. A missing file
// is reported as (nil, nil): absence is not an error the validator needs
// distinguished from any other unreadable-record case (spec §4.2 step
// 1, "Absent metadata -> Reject").
func (s *Store) ReadRecord(id moduleid.ID, isPackage bool) (*cachemeta.Record, error) {
	data, err := os.ReadFile(s.metaPath(id, isPackage))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cachemeta.Decode(data)
}

// WriteRecord atomically replaces the metadata file for id (spec §3,
// "never mutated in place — a fresh record replaces the old file
// atomically").
func (s *Store) WriteRecord(id moduleid.ID, isPackage bool, rec *cachemeta.Record) error {
	data, err := cachemeta.Encode(rec)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.metaPath(id, isPackage), data)
}

// DataMtime stats the serialized analysis artifact without reading it,
// returning integer seconds since epoch, or 0 if the file is absent.
func (s *Store) DataMtime(id moduleid.ID, isPackage bool) (int64, error) {
	return statMtime(s.dataPath(id, isPackage))
}

// DepsMtime stats the fine-grained dependency file, or 0 if absent or
// fine-grained deps are not in use.
func (s *Store) DepsMtime(id moduleid.ID, isPackage bool) (int64, error) {
	return statMtime(s.depsPath(id, isPackage))
}

// ReadData deserializes the analysis artifact for id as an opaque
// value; the caller (the fresh pipeline) treats it as `any`, since the
// concrete tree shape belongs to the parser/type-checker collaborators.
func (s *Store) ReadData(id moduleid.ID, isPackage bool) (any, error) {
	data, err := os.ReadFile(s.dataPath(id, isPackage))
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// WriteData serializes tree to the data file for id.
func (s *Store) WriteData(id moduleid.ID, isPackage bool, tree any) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.dataPath(id, isPackage), data)
}

// ReadPluginSnapshot reads "@plugins_snapshot.json" at the cache root.
// An absent file decodes as an empty, non-nil snapshot so the first
// build of a fresh cache directory compares as "changed from nothing"
// rather than erroring.
func (s *Store) ReadPluginSnapshot() (cachemeta.PluginSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, "@plugins_snapshot.json"))
	if os.IsNotExist(err) {
		return cachemeta.PluginSnapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	return cachemeta.DecodePluginSnapshot(data)
}

// WritePluginSnapshot replaces "@plugins_snapshot.json" atomically.
func (s *Store) WritePluginSnapshot(snap cachemeta.PluginSnapshot) error {
	data, err := cachemeta.EncodePluginSnapshot(snap)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.Root, "@plugins_snapshot.json"), data)
}

func statMtime(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.ModTime().Unix(), nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fsstore: writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
