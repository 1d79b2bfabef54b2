// Package validator implements the cache validity protocol of spec
// §4.2: given a candidate metadata record, decide whether the cached
// analysis artifact for a module may be reused.
//
// The decision procedure is grounded on
// _examples/original_source/mypy/build.py's validate_meta, but broken
// into the three-way Accept/Replace/Reject result spec §4.2 specifies,
// using the teacher's file-identity primitives
// (internal/robustio, adapted from golang.org/x/tools/internal/robustio)
// and the shared internal/fscache memoized reader in place of mypy's
// manager.fscache.
package validator

import (
	"os"

	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/event"
	"github.com/buildgraph/orchestrator/internal/fscache"
)

// Decision is the three-way outcome of Validate.
type Decision int

const (
	// Reject means the record cannot be trusted; the module must be
	// re-analyzed from source.
	Reject Decision = iota
	// Accept means the record may be used as-is.
	Accept
	// Replace means the record's content still matches the source, but
	// its mtime/path must be refreshed before it is trusted again.
	Replace
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Replace:
		return "replace"
	default:
		return "reject"
	}
}

// Config bundles the per-build settings the validator needs beyond a
// single record (spec §4.2).
type Config struct {
	// BazelMode disables the size-mismatch check (mtimes are zeroed and
	// meaningless under bazel's hermetic sandboxes; spec §4.2 step 6,
	// §9 open question on bazel mode).
	BazelMode bool
	// FineGrainedDeps enables the dependency-artifact-modified check
	// (step 4) and also disables the size-mismatch check (step 6), and
	// changes step 7's behavior on a hash mismatch from Reject to a
	// logged warning plus Accept of the stale record.
	FineGrainedDeps bool
	// LaxVersion permits the platform option field to differ from the
	// current build's (Options.Equal), and compares the recorded
	// analyzer version_id as a semantic version, so that versions
	// differing only in build metadata still match
	// (cachemeta.VersionsCompatible).
	LaxVersion bool
	// AnalyzerVersion is the current analyzer version_id.
	AnalyzerVersion string
}

// Validator decides cache validity for one build.
type Validator struct {
	FS     *fscache.Cache
	Config Config

	// DataMtime/DepsMtime stat the on-disk data/deps artifacts for a
	// module ID; tests substitute fakes, production wires these to the
	// metadata store (an external collaborator per spec §1).
	DataMtime func(id string) (int64, error)
	DepsMtime func(id string) (int64, error) // only consulted if FineGrainedDeps
}

// Validate implements the decision procedure of spec §4.2. rec may be
// nil (absent metadata). currentPath is the module's current source
// path; currentIgnoreAll and currentOptions are the build's current
// settings for this module.
//
// On Replace, the returned *cachemeta.Record is a copy of rec with Path
// and Mtime refreshed to the current file's identity; on Accept it is
// rec unchanged; on Reject it is nil.
func (v *Validator) Validate(rec *cachemeta.Record, currentPath string, currentIgnoreAll bool, currentOptions cachemeta.Options) (Decision, *cachemeta.Record) {
	// Step 1: absent metadata.
	if !rec.Valid() {
		return Reject, nil
	}

	// Options must match before any per-file check (spec §4.2,
	// "Options comparison").
	if !rec.Options.Equal(currentOptions, v.Config.LaxVersion) {
		return Reject, nil
	}
	if !cachemeta.VersionsCompatible(rec.VersionID, v.Config.AnalyzerVersion, v.Config.LaxVersion) {
		return Reject, nil
	}

	// Step 2: previously ignored errors, now not.
	if rec.IgnoreAll && !currentIgnoreAll {
		return Reject, nil
	}

	// Step 3: data artifact modified.
	if v.DataMtime != nil {
		dm, err := v.DataMtime(rec.ID)
		if err != nil || dm != rec.DataMtime {
			return Reject, nil
		}
	}

	// Step 4: dependency artifact modified (fine-grained deps only).
	if v.Config.FineGrainedDeps && v.DepsMtime != nil {
		dm, err := v.DepsMtime(rec.ID)
		wantDm := int64(0)
		if rec.DepsMtime != nil {
			wantDm = *rec.DepsMtime
		}
		if err != nil || dm != wantDm {
			return Reject, nil
		}
	}

	// Step 5: source file not a regular file.
	info, statErr := v.FS.Stat(currentPath)
	if statErr != nil {
		return Reject, nil
	}
	if !info.Mode().IsRegular() {
		return Reject, nil
	}

	// Step 6: size mismatch, unless bazel mode or fine-grained cache
	// mode is active.
	if !v.Config.BazelMode && !v.Config.FineGrainedDeps {
		if info.Size() != rec.Size {
			return Reject, nil
		}
	}

	// Step 7: mtime or path mismatch -> recompute the source digest.
	currentMtime := mtimeOf(info, v.Config.BazelMode)
	if currentMtime != rec.Mtime || currentPath != rec.Path {
		digest, err := v.FS.Hash(currentPath)
		if err != nil {
			return Reject, nil
		}
		if digest.String() == rec.Hash {
			updated := *rec
			updated.Mtime = currentMtime
			updated.Path = currentPath
			return Replace, &updated
		}
		if v.Config.FineGrainedDeps {
			// Fine-grained mode tolerates a hash mismatch: log a warning
			// and return the stale record rather than forcing a full
			// re-analysis.
			event.Log("warning: source changed since its cache record was written; using the stale record (fine-grained mode)", event.L("module", rec.ID))
			return Accept, rec
		}
		return Reject, nil
	}

	// Step 8.
	return Accept, rec
}

// PluginsChanged reports whether the plugin snapshot has changed since
// the previous build. The caller performs this check once per build
// (spec §4.2, "Additional global checks"), and if it reports true,
// treats every module's candidate record as absent (Reject) without
// calling Validate at all.
func PluginsChanged(previous, current cachemeta.PluginSnapshot) bool {
	return !previous.Equal(current)
}

// mtimeOf extracts the integer-seconds mtime spec §6 specifies, except
// under bazel mode, where it is defined to be zero regardless of the
// file system's actual mtime (spec §6, §9 open question).
func mtimeOf(info os.FileInfo, bazelMode bool) int64 {
	if bazelMode {
		return 0
	}
	return info.ModTime().Unix()
}
