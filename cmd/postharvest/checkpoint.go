package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/config"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/ui"
)

var (
	clearFailed bool
	assumeYes   bool
)

// checkpointCmd represents the checkpoint command
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and edit session checkpoints",
	Long: `Inspect and edit the checkpoints that record which keywords of a session
have finished.

Clearing a keyword makes the next 'collect' run fetch it again. Every edit
first copies the checkpoint to a .backup file beside it.`,
}

// checkpointListCmd represents the checkpoint list command
var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointList,
}

// checkpointShowCmd represents the checkpoint show command
var checkpointShowCmd = &cobra.Command{
	Use:   "show [session]",
	Short: "Show the keyword outcomes of a session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpointShow,
}

// checkpointClearCmd represents the checkpoint clear command
var checkpointClearCmd = &cobra.Command{
	Use:   "clear [keyword...]",
	Short: "Forget keyword outcomes so they are collected again",
	Example: `  # Retry every failed keyword on the next run
  postharvest checkpoint clear --session ctf --failed

  # Re-collect one keyword
  postharvest checkpoint clear --session ctf fraud`,
}

// checkpointDeleteCmd represents the checkpoint delete command
var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete [session]",
	Short: "Delete a session checkpoint",
	Long: `Delete a session checkpoint so the next run starts from scratch.

Stored posts are kept; deduplication means re-collected posts are not
stored twice.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckpointDelete,
}

func init() {
	// Assigned here rather than in the literal: runCheckpointClear refers
	// back to checkpointClearCmd, which would be an initialization cycle.
	checkpointClearCmd.RunE = runCheckpointClear

	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)
	checkpointCmd.AddCommand(checkpointDeleteCmd)

	checkpointCmd.PersistentFlags().StringP("session", "s", "", "session name")
	checkpointClearCmd.Flags().BoolVar(&clearFailed, "failed", false, "clear every failed keyword")
	checkpointDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
}

// openCheckpoints loads configuration and returns the checkpoint manager.
// A session given as an argument overrides --session.
func openCheckpoints(cmd *cobra.Command, args []string) (*checkpoint.Manager, *config.Config, error) {
	cfg, err := loadConfig(cmd, "session")
	if err != nil {
		return nil, nil, err
	}
	if len(args) > 0 && cmd != checkpointClearCmd {
		cfg.Collector.SessionName = args[0]
	}

	manager, err := checkpoint.NewManager(cfg.Storage.CheckpointDir, logger.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return manager, cfg, nil
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	manager, cfg, err := openCheckpoints(cmd, args)
	if err != nil {
		return err
	}

	summaries, err := manager.List()
	if err != nil {
		return err
	}

	printer.Info("Checkpoints", cfg.Storage.CheckpointDir)
	printer.Println(ui.RenderCheckpointList(summaries))
	return nil
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	manager, cfg, err := openCheckpoints(cmd, args)
	if err != nil {
		return err
	}

	session := cfg.Collector.SessionName
	cp, err := manager.Load(session)
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint for session %q in %s", session, cfg.Storage.CheckpointDir)
	}

	counts := cp.Counts()
	printer.Info("Session", fmt.Sprintf("%s (%s)", cp.SessionName, cp.Platform))
	printer.Info("File", manager.Path(session))
	printer.Info("Updated", cp.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	printer.Info("Outcomes", fmt.Sprintf("%d success, %d empty, %d failed",
		counts[models.KeySucceeded], counts[models.KeyEmpty], counts[models.KeyFailed]))
	printer.Println(ui.RenderKeyTable(checkpointRows(cp)))
	return nil
}

// checkpointRows turns recorded outcomes into table rows sorted by key
func checkpointRows(cp *checkpoint.Checkpoint) []models.KeyResult {
	keys := cp.Keys()
	rows := make([]models.KeyResult, 0, len(keys))
	for _, key := range keys {
		outcome, _ := cp.Outcome(key)
		rows = append(rows, models.KeyResult{
			Key:    key,
			Status: outcome.Status,
			Count:  outcome.Count,
			Error:  ui.Truncate(outcome.Error, 60),
		})
	}
	return rows
}

func runCheckpointClear(cmd *cobra.Command, args []string) error {
	if !clearFailed && len(args) == 0 {
		return errors.New("name the keywords to clear or pass --failed")
	}

	manager, cfg, err := openCheckpoints(cmd, args)
	if err != nil {
		return err
	}
	session := cfg.Collector.SessionName

	if !manager.Exists(session) {
		return fmt.Errorf("no checkpoint for session %q in %s", session, cfg.Storage.CheckpointDir)
	}
	if _, err := manager.Backup(session); err != nil {
		return err
	}

	var cleared []string
	if clearFailed {
		keys, err := manager.ClearFailed(session)
		if err != nil {
			return err
		}
		cleared = append(cleared, keys...)
	}
	for _, key := range args {
		ok, err := manager.ClearKey(session, key)
		if err != nil {
			return err
		}
		if ok {
			cleared = append(cleared, key)
		} else {
			printer.Warning(fmt.Sprintf("%q has no recorded outcome", key))
		}
	}

	if len(cleared) == 0 {
		printer.Dim("Nothing to clear.")
		return nil
	}
	printer.Success(fmt.Sprintf("Cleared %d keyword(s): %s", len(cleared), strings.Join(cleared, ", ")))
	return nil
}

func runCheckpointDelete(cmd *cobra.Command, args []string) error {
	manager, cfg, err := openCheckpoints(cmd, args)
	if err != nil {
		return err
	}
	session := cfg.Collector.SessionName

	if !manager.Exists(session) {
		return fmt.Errorf("no checkpoint for session %q in %s", session, cfg.Storage.CheckpointDir)
	}

	if !assumeYes {
		fmt.Printf("Delete the checkpoint for session '%s'? (y/N): ", session)
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	if err := manager.Delete(session); err != nil {
		return err
	}
	printer.Success("Checkpoint deleted: " + session)
	return nil
}
