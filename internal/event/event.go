// Package event is a small, labelled logging facility modelled on
// golang.org/x/tools/internal/event, trimmed to what a single-threaded
// batch orchestrator needs: structured log lines with key/value labels,
// and no tracing spans. The full event package is built for a
// long-running LSP server instrumenting concurrent requests; this tool
// runs one SCC phase at a time on one goroutine, so spans would add
// ceremony without adding information.
package event

import (
	"fmt"
	"log"
	"strings"
)

// Label is a single key/value pair attached to a log line.
type Label struct {
	Key   string
	Value any
}

// L builds a Label; short name so call sites stay on one line, matching
// the teacher's event.Label/tag.Of terseness.
func L(key string, value any) Label { return Label{Key: key, Value: value} }

// Log writes msg to the process log, annotated with labels.
func Log(msg string, labels ...Label) {
	if len(labels) == 0 {
		log.Print(msg)
		return
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, l := range labels {
		fmt.Fprintf(&b, " %s=%v", l.Key, l.Value)
	}
	log.Print(b.String())
}

// Error is like Log but prefixes the line so it stands out in build
// output; it does not itself abort anything — callers decide whether a
// logged error is also a Blocker.
func Error(msg string, err error, labels ...Label) {
	Log(fmt.Sprintf("error: %s: %v", msg, err), labels...)
}
