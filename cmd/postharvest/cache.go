package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"postharvest/pkg/logger"
	"postharvest/pkg/ui"
)

var (
	cacheShowLimit int
	cacheShowJSON  bool
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect per-keyword stores",
	Long: `Inspect the per-keyword stores under the cache directory.

Each keyword has one store per format, named after the keyword with every
run of characters other than letters and digits replaced by an underscore.`,
}

// cacheListCmd represents the cache list command
var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored keywords for a platform and format",
	RunE:  runCacheList,
}

// cacheShowCmd represents the cache show command
var cacheShowCmd = &cobra.Command{
	Use:   "show <keyword>",
	Short: "Show the posts stored for a keyword",
	Example: `  # Show the first 20 posts stored for a keyword
  postharvest cache show fraud --limit 20

  # Dump a SQLite store as JSON
  postharvest cache show fraud --format sqlite --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheShow,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheShowCmd)

	for _, c := range []*cobra.Command{cacheListCmd, cacheShowCmd} {
		c.Flags().String("platform", "", "platform of the stores")
		c.Flags().StringP("format", "f", "", "storage format: csv, jsonl or sqlite")
	}
	cacheShowCmd.Flags().IntVarP(&cacheShowLimit, "limit", "n", 50, "rows to show (0 shows all)")
	cacheShowCmd.Flags().BoolVar(&cacheShowJSON, "json", false, "print records as JSON")
}

func runCacheList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "platform", "format")
	if err != nil {
		return err
	}

	p, err := openPipeline(cfg, logger.GetLogger())
	if err != nil {
		return err
	}
	defer p.Close()

	keys, err := p.store.ListKeys(context.Background(), cfg.Collector.Platform)
	if err != nil {
		return err
	}

	printer.Info("Cache", fmt.Sprintf("%s (%s, %s)", cfg.Storage.CacheDir, cfg.Collector.Platform, p.format))
	printer.Println(ui.RenderCacheList(keys))
	return nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "platform", "format")
	if err != nil {
		return err
	}

	p, err := openPipeline(cfg, logger.GetLogger())
	if err != nil {
		return err
	}
	defer p.Close()

	key := args[0]
	if !p.store.Exists(cfg.Collector.Platform, key) {
		return fmt.Errorf("no %s store for %q under %s", p.format, key, cfg.Storage.CacheDir)
	}

	records, err := p.store.ReadAll(context.Background(), cfg.Collector.Platform, key)
	if err != nil {
		return err
	}
	total := len(records)
	if cacheShowLimit > 0 && len(records) > cacheShowLimit {
		records = records[:cacheShowLimit]
	}

	if cacheShowJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	printer.Info("Store", p.store.Path(cfg.Collector.Platform, key))
	printer.Info("Records", strconv.Itoa(total))
	if total == 0 {
		return nil
	}
	printer.Println(ui.RenderRecords(records, 60))
	if len(records) < total {
		printer.Dim(fmt.Sprintf("showing %d of %d; use --limit 0 to show all", len(records), total))
	}
	return nil
}
