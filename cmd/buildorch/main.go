// Command buildorch is a thin CLI shell around package build (spec §6):
// it wires the orchestrator's graph loader and scheduler to a
// filesystem-backed metadata store and cache, and drives a build of the
// given root sources. The parser, semantic analyzer, and type checker
// remain true external collaborators (spec §1) and are left unset here;
// a production embedding supplies them.
package main

import (
	"fmt"
	"os"

	"github.com/buildgraph/orchestrator/cmd/buildorch/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
