package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "buildorch",
	Short: "Drive the build orchestrator core over a set of root sources",
	Long: `buildorch wires the graph loader and SCC scheduler (spec §4.4-§4.8)
to a filesystem-backed metadata store and runs one build.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.buildorch.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", ".buildorch_cache", "cache directory root")
	rootCmd.PersistentFlags().String("analyzer-version", "0.1.0", "analyzer version_id recorded in cache metadata")
	rootCmd.PersistentFlags().Bool("bazel-mode", false, "disable mtime-based checks, for hermetic sandboxes")
	rootCmd.PersistentFlags().Bool("lax-version", false, "tolerate analyzer version and platform-option drift")
	rootCmd.PersistentFlags().Bool("no-cache", false, "disable the cache entirely")

	_ = viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	_ = viper.BindPFlag("analyzer_version", rootCmd.PersistentFlags().Lookup("analyzer-version"))
	_ = viper.BindPFlag("bazel_mode", rootCmd.PersistentFlags().Lookup("bazel-mode"))
	_ = viper.BindPFlag("lax_version", rootCmd.PersistentFlags().Lookup("lax-version"))
	_ = viper.BindPFlag("no_cache", rootCmd.PersistentFlags().Lookup("no-cache"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".buildorch")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("BUILDORCH")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
