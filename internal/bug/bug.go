// Package bug reports unexpected conditions detected by the orchestrator
// itself: invariants the rest of the code relies on but that cannot be
// fully checked by the type system (e.g. the dependency/priority slices
// in a module.State falling out of alignment).
//
// Reporting a bug never panics or aborts the build. A bug indicates a
// defect in the orchestrator, not a problem with the analyzed sources, so
// it is logged and the caller proceeds on a best-effort basis rather than
// turning an internal inconsistency into a user-facing crash.
package bug

import (
	"fmt"
	"log"
	"runtime"
	"sync"
)

// handler receives reports, in addition to the default log output.
// Tests install a handler to assert that a particular invariant was (or
// was not) flagged, the way golang-tools' internal bug package is driven
// from analysistest-style assertions.
type handler func(Bug)

// Bug describes a single reported inconsistency.
type Bug struct {
	File    string // file of the call to Reportf
	Line    int
	Message string
}

var (
	mu        sync.Mutex
	handlers  []handler
	seen      = make(map[string]bool) // dedup by "file:line" so a hot loop doesn't flood logs
)

// Reportf records a formatted bug report, deduplicated by call site.
func Reportf(format string, args ...any) {
	report(fmt.Sprintf(format, args...))
}

// Report records a bug report, deduplicated by call site.
func Report(message string) {
	report(message)
}

func report(message string) {
	file, line := callerLocation()
	key := fmt.Sprintf("%s:%d", file, line)

	mu.Lock()
	first := !seen[key]
	seen[key] = true
	hs := append([]handler(nil), handlers...)
	mu.Unlock()

	if first {
		log.Printf("bug: %s:%d: %s", file, line, message)
	}
	b := Bug{File: file, Line: line, Message: message}
	for _, h := range hs {
		h(b)
	}
}

// Handle installs f to be called, in addition to logging, whenever a bug
// is reported. It returns a function that removes the handler, for use in
// tests that want to assert a bug was reported without polluting stderr
// of other tests.
func Handle(f func(Bug)) (remove func()) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, f)
	idx := len(handlers) - 1
	return func() {
		mu.Lock()
		defer mu.Unlock()
		handlers[idx] = func(Bug) {} // leave a tombstone; indices must stay stable
	}
}

func callerLocation() (file string, line int) {
	// Skip this function, report, and Reportf/Report.
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "???", 0
	}
	return file, line
}
