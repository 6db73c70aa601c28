package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/collector"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/ui"
	"postharvest/pkg/ui/tui"
)

var (
	// Collect command flags
	keywordsFile string
	accountName  string
	useTUI       bool
	notify       bool
	jsonOutput   bool
)

// collectFlagNames are the collect flags that map onto configuration keys
var collectFlagNames = []string{
	"session", "platform", "limit", "page-size", "save-interval", "pause", "format", "merge", "retry-failed",
}

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect [keyword...]",
	Short: "Collect posts for a list of keywords",
	Long: `Collect posts for every keyword of a session and store them per keyword.

Keywords come from the arguments, a --keywords-file with one keyword per line,
or collector.keywords in the config file. Progress is checkpointed after each
keyword: running the same command again skips keywords that already finished
and retries only the one that was in flight. Failed keywords are skipped on
resume unless --retry-failed is given.

Credentials are taken from (in order):
  - the stored account named with --account
  - the config file or BLUESKY_HANDLE / BLUESKY_APP_PASSWORD
  - the default stored account ('postharvest auth login')`,
	Example: `  # Collect two keywords into the default session
  postharvest collect "fraud" "scam alert"

  # Read keywords from a file, store as JSON Lines, cap each keyword
  postharvest collect --keywords-file keywords.txt --format jsonl --limit 1000

  # Resume a named session and retry the keywords that failed last time
  postharvest collect --session ctf --retry-failed

  # Watch progress in the interactive dashboard
  postharvest collect --session ctf --tui`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	f := collectCmd.Flags()
	f.StringP("session", "s", "", "session name (checkpoint and merged dataset are named after it)")
	f.String("platform", "", "platform to collect from (bluesky)")
	f.IntP("limit", "n", 0, "maximum records per keyword")
	f.Int("page-size", 0, "records requested per page (1-100)")
	f.Int("save-interval", 0, "records buffered before each write (0 writes every page)")
	f.Duration("pause", 0, "pause between keywords, e.g. 5s")
	f.StringP("format", "f", "", "storage format: csv, jsonl or sqlite")
	f.Bool("merge", true, "merge the session into one dataset when the run ends")
	f.Bool("retry-failed", false, "retry keywords that failed in a previous run")
	f.StringVar(&keywordsFile, "keywords-file", "", "file with one keyword per line")
	f.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	f.BoolVar(&useTUI, "tui", false, "show the interactive dashboard")
	f.BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
	f.BoolVar(&jsonOutput, "json", false, "print the job result as JSON")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, collectFlagNames...)
	if err != nil {
		return err
	}

	keys, err := gatherKeywords(args, keywordsFile, cfg.Collector.Keywords)
	if err != nil {
		return err
	}

	if err := resolveCredentials(cfg, accountName); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// With the dashboard, logs go to stderr during setup and into its log
	// panel once it owns the terminal
	log := logger.GetLogger()
	sink := &logSink{w: os.Stderr}
	var dashboard *tui.TUI
	if useTUI {
		dashboard = tui.New(cfg.Collector.SessionName, cfg.Collector.Platform, cancel)
		log, err = logger.NewConsole(sink, cfg.Logging.Level)
		if err != nil {
			return err
		}
	}

	p, err := openPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	lock, err := p.checkpoints.AcquireLock(cfg.Collector.SessionName)
	if err != nil {
		if errors.Is(err, checkpoint.ErrSessionLocked) {
			return fmt.Errorf("%w; another collect is running for this session, or remove the stale lock directory", err)
		}
		return err
	}
	defer lock.Release()

	producer, err := newProducer(cfg, log)
	if err != nil {
		return err
	}

	loginCtx, loginCancel := context.WithTimeout(ctx, cfg.Bluesky.Timeout)
	err = producer.Login(loginCtx)
	loginCancel()
	if err != nil {
		return fmt.Errorf("failed to log in as %s: %w", producer.Handle(), err)
	}

	session := p.session(keys)
	showProgress := !quiet && !jsonOutput && dashboard == nil

	var result *collector.JobResult
	var runErr error
	if dashboard != nil {
		c, err := p.collector(producer, dashboard.KeyStarted, dashboard.KeyDone)
		if err != nil {
			return err
		}
		result, runErr = runWithDashboard(ctx, cancel, dashboard, sink, c, session)
	} else {
		progress := ui.NewKeyProgress(os.Stdout)
		onStart, onKey := progress.Start, progress.Done
		if !showProgress {
			onStart, onKey = nil, nil
		}
		c, err := p.collector(producer, onStart, onKey)
		if err != nil {
			return err
		}

		if showProgress {
			printer.Logo(version)
			printer.Info("Session", fmt.Sprintf("%s (%s)", session.Name, session.Platform))
			printer.Info("Keywords", fmt.Sprintf("%d", len(keys)))
			printer.Info("Account", producer.Handle())
			printer.Println("")
		}
		result, runErr = c.Run(ctx, session)
	}

	if result != nil {
		if notify {
			ui.NewNotifier().Notify("postharvest", ui.JobMessage(result.SessionName, result.NewlyScraped,
				result.Failed, result.TotalRecords, result.Interrupted))
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
		} else {
			printer.Println("")
			printer.Println(ui.RenderJobSummary(result))
		}
	}

	return runErr
}

// runWithDashboard runs the collection in the background while the
// dashboard holds the terminal. Quitting the dashboard cancels the run,
// which then stops through the normal interrupt path.
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, dashboard *tui.TUI, sink *logSink, c *collector.Collector, session models.Session) (*collector.JobResult, error) {
	var result *collector.JobResult
	var runErr error
	done := make(chan struct{})

	sink.Redirect(dashboard.LogWriter())
	defer sink.Redirect(os.Stderr)

	go func() {
		defer close(done)
		result, runErr = c.Run(ctx, session)
		dashboard.Finish(result != nil && result.Interrupted, runErr)
	}()

	if err := dashboard.Run(); err != nil {
		cancel()
		<-done
		return result, fmt.Errorf("dashboard failed: %w", err)
	}

	// The dashboard normally exits after the run returns; if it was killed
	// first, stop the run and wait for it
	cancel()
	<-done
	return result, runErr
}

// logSink is a log destination that can be redirected while loggers hold it
type logSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	return w.Write(p)
}

// Redirect sends subsequent writes to w
func (s *logSink) Redirect(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
