// Package cachemeta defines the per-module metadata record persisted to
// the cache directory (spec §3, §6) and its JSON codec. The record is
// grounded on mypy's build.py CacheMeta tuple (see
// _examples/original_source/mypy/build.py, around the "hash"/"mtime"/
// "dependencies" cache fields) but given idiomatic Go field names and a
// Go struct tag based JSON encoding, following the persistence style of
// golang.org/x/tools/gopls/internal/cache's on-disk records.
package cachemeta

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

// Digest is a 128-bit content hash (spec §3: "source_hash: 128-bit
// digest of the parsed source"). The original implementation computes
// this with hashlib.md5; Go's crypto/md5 is the direct equivalent.
type Digest [md5.Size]byte

// HashBytes computes the Digest of data.
func HashBytes(data []byte) Digest { return Digest(md5.Sum(data)) }

// String renders the digest as a hex string, the form it takes inside a
// JSON record.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ParseDigest parses a hex-encoded digest, such as one read back from a
// metadata file.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(b) != md5.Size {
		return d, errShortDigest{len(b)}
	}
	copy(d[:], b)
	return d, nil
}

type errShortDigest struct{ n int }

func (e errShortDigest) Error() string { return "cachemeta: malformed digest" }

// Record is the persisted metadata for one module (spec §3, "Cache
// metadata record").
type Record struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Mtime    int64  `json:"mtime"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash"` // source digest, hex
	DataMtime int64  `json:"data_mtime"`
	DepsMtime *int64 `json:"deps_mtime,omitempty"`

	Dependencies []string `json:"dependencies"`
	Suppressed   []string `json:"suppressed"`
	ChildModules []string `json:"child_modules"`

	Options Options `json:"options"`

	DepPriorities []int `json:"dep_prios"`
	DepLines      []int `json:"dep_lines"`

	InterfaceHash string `json:"interface_hash"` // hex
	VersionID     string `json:"version_id"`     // analyzer version
	IgnoreAll     bool   `json:"ignore_all"`
}

// Encode serializes r as the bytes written to a "*.meta.json" cache
// file.
func Encode(r *Record) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Decode parses the bytes of a "*.meta.json" cache file.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// invariantOK reports whether r satisfies the structural invariant of
// spec §3: len(dependencies)+len(suppressed) == len(dep_prios) ==
// len(dep_lines), and r.ID is non-empty. It does not check that r.ID
// matches the owning module.State.ID; that cross-check belongs to the
// caller, which is the only place both values are in scope (spec §3:
// "A module with meta != None satisfies meta.id == id").
func (r *Record) invariantOK() bool {
	if r.ID == "" {
		return false
	}
	n := len(r.Dependencies) + len(r.Suppressed)
	return n == len(r.DepPriorities) && n == len(r.DepLines)
}

// Valid reports whether the structural invariant holds; the validator
// treats a structurally invalid record the same as an absent one
// (Reject), since it cannot trust any of its fields.
func (r *Record) Valid() bool {
	return r != nil && r.invariantOK()
}
