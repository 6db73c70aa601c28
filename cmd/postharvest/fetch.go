package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"postharvest/pkg/logger"
	"postharvest/pkg/ui"
)

var (
	fetchJSON  bool
	fetchWidth int
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <keyword>",
	Short: "Show posts for one keyword, collecting them if not cached",
	Long: `Return the stored posts for a keyword. When nothing is cached yet the keyword
is collected first and stored, so the next fetch is served from the cache.

fetch does not touch any session checkpoint.`,
	Example: `  # Print a table of cached or freshly collected posts
  postharvest fetch "phishing"

  # Emit JSON for another tool
  postharvest fetch "phishing" --json --limit 200`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	f := fetchCmd.Flags()
	f.String("platform", "", "platform to collect from (bluesky)")
	f.IntP("limit", "n", 0, "maximum records to collect when the keyword is not cached")
	f.Int("page-size", 0, "records requested per page (1-100)")
	f.StringP("format", "f", "", "storage format: csv, jsonl or sqlite")
	f.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	f.BoolVar(&fetchJSON, "json", false, "print the result as JSON")
	f.IntVar(&fetchWidth, "width", 60, "maximum characters of post text shown per row")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "platform", "limit", "page-size", "format")
	if err != nil {
		return err
	}

	p, err := openPipeline(cfg, logger.GetLogger())
	if err != nil {
		return err
	}
	defer p.Close()

	// Credentials are only needed when the keyword has to be collected;
	// the client reports the missing login itself in that case
	if err := resolveCredentials(cfg, accountName); err != nil {
		logger.WithError(err).Debug("No credentials resolved for fetch")
	}

	producer, err := newProducer(cfg, logger.GetLogger())
	if err != nil {
		return err
	}
	c, err := p.collector(producer, nil, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := optionsFromConfig(cfg, p.format)
	result, err := c.FetchKey(ctx, cfg.Collector.Platform, args[0], opts)
	if err != nil {
		return err
	}

	if fetchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	source := "collected"
	if result.FromCache {
		source = "cache"
	}
	printer.Info("Keyword", result.Key)
	printer.Info("Source", source)
	printer.Info("Records", strconv.Itoa(len(result.Records)))
	if len(result.Records) == 0 {
		printer.Dim("No posts matched this keyword.")
		return nil
	}
	fmt.Fprintln(os.Stdout)
	printer.Println(ui.RenderRecords(result.Records, fetchWidth))
	return nil
}
