package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"postharvest/pkg/logger"
	"postharvest/pkg/ui"
)

var (
	// Version information, set with -ldflags at build time
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	noColor       bool
	quiet         bool
	cacheDir      string
	checkpointDir string
	mergedDir     string

	printer = ui.NewPrinter(os.Stdout)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postharvest",
	Short: "Collect social media posts by keyword, resumably",
	Long: `postharvest collects posts matching a list of keywords and stores them
per keyword, so an interrupted run picks up where it stopped.

Features:
  - Incremental per-keyword stores in CSV, JSON Lines or SQLite
  - Checkpointed sessions: finished keywords are never fetched twice
  - Deduplicated merge of a session into one dataset
  - Location enrichment from post text and author bio
  - Credentials kept in the system keychain or an encrypted file`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version

		if noColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printer.Error("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.postharvest.yaml or ~/.config/postharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the banner and progress lines")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "directory for per-keyword stores")
	rootCmd.PersistentFlags().StringVar(&checkpointDir, "checkpoint-dir", "", "directory for session checkpoints")
	rootCmd.PersistentFlags().StringVar(&mergedDir, "merged-dir", "", "directory for merged datasets")

	rootCmd.SetVersionTemplate(`postharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
