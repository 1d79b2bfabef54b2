package cachemeta

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// Options is the subset of build options that affects analysis results
// (spec §3, §4.2). It is loaded from YAML — the same serialization the
// teacher (gopls/go.mod, direct dependency on gopkg.in/yaml.v3) uses for
// its own settings files — and persisted as part of a Record.
type Options map[string]string

// reservedDebugCache is stripped from both sides before comparison: it
// toggles extra on-disk debug output and never affects analysis results
// (spec §4.2).
const reservedDebugCache = "debug_cache"

// laxPlatformField is the single field the validator's "lax version"
// mode permits to differ between recorded and current options (spec
// §4.2).
const laxPlatformField = "platform"

// Equal reports whether a and b denote the same analysis-affecting
// configuration. If lax is true, a difference confined to the platform
// field is ignored.
func (a Options) Equal(b Options, lax bool) bool {
	sa := stripReserved(a)
	sb := stripReserved(b)
	if lax {
		delete(sa, laxPlatformField)
		delete(sb, laxPlatformField)
	}
	if len(sa) != len(sb) {
		return false
	}
	for k, v := range sa {
		if sb[k] != v {
			return false
		}
	}
	return true
}

func stripReserved(o Options) Options {
	out := make(Options, len(o))
	for k, v := range o {
		if k == reservedDebugCache {
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the option keys in sorted order, useful for deterministic
// logging and tests.
func (o Options) Keys() []string {
	ks := make([]string, 0, len(o))
	for k := range o {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// LoadOptionsYAML parses a YAML document into an Options value. Unknown
// top-level scalars are kept verbatim; this mirrors how the teacher's
// settings layer tolerates forward-compatible fields rather than
// rejecting them.
func LoadOptionsYAML(data []byte) (Options, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(Options, len(raw))
	for k, v := range raw {
		out[k] = toScalarString(v)
	}
	return out, nil
}

func toScalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := yaml.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
