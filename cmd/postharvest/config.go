package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"postharvest/pkg/config"
	"postharvest/pkg/models"
)

var forceInit bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage postharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (POSTHARVEST_*, BLUESKY_HANDLE, BLUESKY_APP_PASSWORD)
  - A .env file in the current directory or ~/.postharvest.env
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.postharvest.yaml'
unless a different path is specified with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after every source has been applied.

The app password is masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Storage directories can be created
  - Credentials are present`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
}

const exampleConfig = `# postharvest configuration file
#
# Every option can also be set with an environment variable, e.g.
# POSTHARVEST_SESSION_NAME, POSTHARVEST_CACHE_TYPE, BLUESKY_HANDLE.

collector:
  # Sessions are resumable: re-running with the same name skips finished keywords
  session_name: "default"

  # Only bluesky is supported
  platform: "bluesky"

  # Keywords used when none are passed on the command line
  keywords:
    - "fraud"
    - "scam alert"

  # Maximum posts collected per keyword
  max_per_keyword: 5000

  # Posts requested per page (1-100)
  page_size: 25

  # Posts buffered before each write; 0 writes after every page
  save_interval: 50

  # Pause between keywords
  pause_between_keys: 5s

  # Storage format: csv, jsonl or sqlite
  format: "csv"

  # Merge the session into one dataset when a run ends
  merge: true

  # Retry keywords that failed in an earlier run
  retry_failed: false

storage:
  cache_dir: "./data/cache"
  checkpoint_dir: "./data/checkpoints"
  merged_dir: "./data/merged"

retry:
  # Attempts per page before the keyword fails
  max_attempts: 3
  base_delay: 2s
  max_delay: 30s
  multiplier: 2.0
  jitter: 0.1

  # Attempts for cache and checkpoint writes
  storage_attempts: 3

rate_limit:
  requests_per_minute: 30

bluesky:
  base_url: "https://bsky.social"

  # Prefer 'postharvest auth login', which keeps the password out of this file
  handle: ""
  app_password: ""
  timeout: 30s

logging:
  # Level: debug, info, warn, error
  level: "info"

  # Also write JSON logs to this file
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".postharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	printer.Success("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the keywords and storage directories")
	fmt.Println("2. Run 'postharvest auth login' to store your Bluesky app password")
	fmt.Println("3. Run 'postharvest config validate' to check the configuration")
	fmt.Println("4. Start collecting with 'postharvest collect'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	display := *cfg
	display.Bluesky.AppPassword = maskSecret(cfg.Bluesky.AppPassword)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	problems, warnings := checkConfig(cfg)
	for _, w := range warnings {
		printer.Warning(w)
	}
	if len(problems) > 0 {
		for _, p := range problems {
			printer.Error(p, nil)
		}
		return fmt.Errorf("configuration has %d error(s)", len(problems))
	}

	printer.Success("Configuration is valid")
	fmt.Println()
	printer.Info("Session", fmt.Sprintf("%s (%s)", cfg.Collector.SessionName, cfg.Collector.Platform))
	printer.Info("Format", cfg.Collector.Format)
	printer.Info("Keywords", fmt.Sprintf("%d configured", len(cfg.Collector.Keywords)))
	printer.Info("Per keyword", fmt.Sprintf("%d posts, %d per page", cfg.Collector.MaxPerKeyword, cfg.Collector.PageSize))
	printer.Info("Rate limit", fmt.Sprintf("%d requests/minute", cfg.RateLimit.RequestsPerMinute))
	printer.Info("Log level", cfg.Logging.Level)
	return nil
}

// checkConfig runs the checks config.Validate leaves to the command line:
// directories that can be created and credentials that are present
func checkConfig(cfg *config.Config) (problems, warnings []string) {
	if _, err := models.ParseFormat(cfg.Collector.Format); err != nil {
		problems = append(problems, err.Error())
	}

	dirs := map[string]string{
		"cache":      cfg.Storage.CacheDir,
		"checkpoint": cfg.Storage.CheckpointDir,
		"merged":     cfg.Storage.MergedDir,
	}
	for _, name := range []string{"cache", "checkpoint", "merged"} {
		if err := os.MkdirAll(dirs[name], 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create %s directory: %v", name, err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if cfg.Bluesky.Handle == "" || cfg.Bluesky.AppPassword == "" {
		warnings = append(warnings, "no Bluesky credentials in the configuration; a stored account ('postharvest auth login') will be used")
	}
	if len(cfg.Collector.Keywords) == 0 {
		warnings = append(warnings, "no keywords configured; pass them to 'postharvest collect'")
	}
	return problems, warnings
}

// maskSecret keeps the first and last four characters of long secrets
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}
