package cachemeta

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordRoundTrip(t *testing.T) {
	want := &Record{
		ID:            "a.b",
		Path:          "/src/a/b.py",
		Mtime:         1000,
		Size:          42,
		Hash:          HashBytes([]byte("package a.b")).String(),
		DataMtime:     999,
		Dependencies:  []string{"c"},
		Suppressed:    []string{"d"},
		ChildModules:  nil,
		Options:       Options{"strict": "true"},
		DepPriorities: []int{10},
		DepLines:      []int{3},
		InterfaceHash: HashBytes([]byte("iface")).String(),
		VersionID:     "1.2.3",
	}
	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if !got.Valid() {
		t.Errorf("round-tripped record failed Valid()")
	}
}

func TestRecordInvariantViolation(t *testing.T) {
	r := &Record{
		ID:            "a",
		Dependencies:  []string{"b", "c"},
		DepPriorities: []int{10}, // mismatched length
		DepLines:      []int{1},
	}
	if r.Valid() {
		t.Errorf("Valid() = true for a record violating the dep/prio/line invariant")
	}
}

func TestOptionsEqualStripsDebugCacheAndPlatform(t *testing.T) {
	a := Options{"strict": "true", "debug_cache": "1", "platform": "linux"}
	b := Options{"strict": "true", "debug_cache": "0", "platform": "darwin"}

	if a.Equal(b, false) {
		t.Errorf("Equal(lax=false) = true, want false (platform differs)")
	}
	if !a.Equal(b, true) {
		t.Errorf("Equal(lax=true) = false, want true (only platform/debug_cache differ)")
	}
}

func TestPluginSnapshotEqual(t *testing.T) {
	a := PluginSnapshot{"p": Fingerprint("1.0", []byte("x"))}
	b := PluginSnapshot{"p": Fingerprint("1.0", []byte("x"))}
	c := PluginSnapshot{"p": Fingerprint("1.0", []byte("y"))}

	if !a.Equal(b) {
		t.Errorf("identical snapshots compared unequal")
	}
	if a.Equal(c) {
		t.Errorf("snapshots differing in content hash compared equal")
	}
}

func TestVersionsCompatible(t *testing.T) {
	tests := []struct {
		recorded, current string
		lax               bool
		want              bool
	}{
		{"1.2.3", "1.2.3", false, true},
		{"1.2.3", "1.2.4", false, false},
		{"1.2.3", "1.2.3", true, true},
		{"1.2.3", "1.2.3+build", true, true},
		{"not-a-version", "1.2.3", true, false},
	}
	for _, tt := range tests {
		got := VersionsCompatible(tt.recorded, tt.current, tt.lax)
		if got != tt.want {
			t.Errorf("VersionsCompatible(%q, %q, lax=%v) = %v, want %v",
				tt.recorded, tt.current, tt.lax, got, tt.want)
		}
	}
}
