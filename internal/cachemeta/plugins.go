package cachemeta

import (
	"encoding/json"
	"fmt"

	"golang.org/x/mod/semver"
)

// PluginSnapshot is the "{ module_name: '<version>:<md5>' }" structure
// persisted at the cache root (spec §6, "@plugins_snapshot.json"). Any
// change to any entry invalidates every cached Record in the build
// (spec §4.2, "Additional global checks").
type PluginSnapshot map[string]string

// Fingerprint builds a plugin's snapshot entry from its version string
// and the md5 digest of its source, mirroring
// _examples/original_source/mypy/build.py's take_module_snapshot, which
// records hashlib.md5(f.read()).hexdigest() alongside the module's
// __version__.
func Fingerprint(version string, source []byte) string {
	return fmt.Sprintf("%s:%s", version, HashBytes(source).String())
}

// Equal reports whether two plugin snapshots are identical. Order is
// irrelevant; only the set of (name -> fingerprint) pairs matters.
func (s PluginSnapshot) Equal(other PluginSnapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if other[k] != v {
			return false
		}
	}
	return true
}

// EncodePluginSnapshot / DecodePluginSnapshot serialize the global
// "@plugins_snapshot.json" file.
func EncodePluginSnapshot(s PluginSnapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func DecodePluginSnapshot(data []byte) (PluginSnapshot, error) {
	var s PluginSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// VersionsCompatible reports whether recorded and current analyzer
// version strings are compatible, per spec §4.2's "lax version" mode: in
// strict mode the two version strings must be identical; in lax mode
// they are compared as semantic versions, so strings that differ only in
// build metadata ("1.2.3" vs "1.2.3+build") match, while any difference in
// major, minor, patch or prerelease still does not. It uses
// golang.org/x/mod/semver —
// the teacher's own dependency (gopls/go.mod: golang.org/x/mod) for
// exactly this kind of version string handling.
//
// If either string is not a valid semantic version, lax mode falls back
// to exact string equality, since there is nothing sound to compare.
func VersionsCompatible(recorded, current string, lax bool) bool {
	if recorded == current {
		return true
	}
	if !lax {
		return false
	}
	rv, cv := asSemver(recorded), asSemver(current)
	if !semver.IsValid(rv) || !semver.IsValid(cv) {
		return false
	}
	return semver.Compare(rv, cv) == 0
}

// asSemver prefixes a bare "X.Y.Z" analyzer version with "v", the form
// golang.org/x/mod/semver requires.
func asSemver(v string) string {
	if len(v) == 0 || v[0] == 'v' {
		return v
	}
	return "v" + v
}
