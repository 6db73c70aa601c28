package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"postharvest/pkg/cache"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/ui"
)

var mergeJSON bool

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge [keyword...]",
	Short: "Merge per-keyword stores into one deduplicated dataset",
	Long: `Merge the stored posts of a session into one dataset under the merged
directory, dropping duplicate posts. A post found under several keywords is
kept once, attributed to the first keyword in merge order.

Keywords are taken from the arguments, or else from the keywords the session
checkpoint lists as successful, or else from every store in the cache.`,
	Example: `  # Merge what the session collected successfully
  postharvest merge --session ctf

  # Merge specific keywords, in this order
  postharvest merge --session ctf fraud "scam alert"`,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	f := mergeCmd.Flags()
	f.StringP("session", "s", "", "session whose dataset is written")
	f.String("platform", "", "platform of the stores to merge")
	f.StringP("format", "f", "", "storage format: csv, jsonl or sqlite")
	f.BoolVar(&mergeJSON, "json", false, "print the merge summary as JSON")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "session", "platform", "format")
	if err != nil {
		return err
	}

	p, err := openPipeline(cfg, logger.GetLogger())
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := context.Background()
	session, platform := cfg.Collector.SessionName, cfg.Collector.Platform

	cp, err := p.checkpoints.Load(session)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var stored []cache.KeyInfo
	if len(args) == 0 && cp == nil {
		stored, err = p.store.ListKeys(ctx, platform)
		if err != nil {
			return fmt.Errorf("failed to list cache: %w", err)
		}
	}

	keys := mergeKeys(args, cp, stored)
	if len(keys) == 0 {
		return errors.New("nothing to merge: no keywords given, no successful keywords in the checkpoint and an empty cache")
	}

	summary, err := p.merger.MergeAll(ctx, platform, session, keys, p.format)
	if err != nil {
		return err
	}

	if mergeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printer.Println(ui.RenderMergeSummary(summary))
	return nil
}

// mergeKeys picks the keys to merge: explicit args first, then the
// checkpoint's successful keys, then whatever the cache holds
func mergeKeys(args []string, cp *checkpoint.Checkpoint, stored []cache.KeyInfo) []string {
	if len(args) > 0 {
		return args
	}

	if cp != nil {
		var keys []string
		for _, key := range cp.Keys() {
			if outcome, _ := cp.Outcome(key); outcome.Status == models.KeySucceeded {
				keys = append(keys, key)
			}
		}
		return keys
	}

	keys := make([]string, 0, len(stored))
	for _, info := range stored {
		keys = append(keys, info.Name)
	}
	return keys
}
