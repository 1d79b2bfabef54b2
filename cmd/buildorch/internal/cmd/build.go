package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildgraph/orchestrator/internal/build"
	"github.com/buildgraph/orchestrator/internal/cachemeta"
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/fscache"
	"github.com/buildgraph/orchestrator/internal/fsstore"
)

func init() {
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build <root-source-path>...",
	Short: "Discover, validate, and schedule a module graph from the given root sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	store := fsstore.New(viper.GetString("cache_dir"), "1.0")
	fs := fscache.New()

	mgr := &build.Manager{
		Store: store,
		FS:    fs,
		// Finder, Parser, SemanticAnalyzer, TypeChecker, and the rest of
		// the analysis-facing collaborators are supplied by an embedding
		// that understands the target language; this shell demonstrates
		// discovery, cache validation, and scheduling only.
	}

	sources := make([]build.Source, 0, len(args))
	for _, path := range args {
		sources = append(sources, build.Source{Path: path})
	}

	opts := build.Options{
		CacheEnabled:    !viper.GetBool("no_cache"),
		BazelMode:       viper.GetBool("bazel_mode"),
		LaxVersion:      viper.GetBool("lax_version"),
		AnalyzerVersion: viper.GetString("analyzer_version"),
		ModuleOptions:   cachemeta.Options{},
	}

	result, err := mgr.Build(sources, opts, flushToStderr)
	if err != nil {
		return err
	}
	for _, id := range result.Graph.SortedIDs() {
		fmt.Println(id)
	}
	return nil
}

func flushToStderr(messages []errs.Message, isBlocking bool) {
	for _, m := range messages {
		kind := "note"
		if m.IsBlocker {
			kind = "error"
		}
		fmt.Fprintf(os.Stderr, "%s:%d: %s: %s\n", m.File, m.Line, kind, m.Text)
	}
}
