package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"postharvest/pkg/auth"
	"postharvest/pkg/bluesky"
	"postharvest/pkg/cache"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/collector"
	"postharvest/pkg/config"
	"postharvest/pkg/enrich"
	"postharvest/pkg/logger"
	"postharvest/pkg/merge"
	"postharvest/pkg/models"
	"postharvest/pkg/ratelimit"
)

// globalFlagNames are the persistent flags that feed the configuration
var globalFlagNames = []string{"log-level", "cache-dir", "checkpoint-dir", "merged-dir"}

// changedFlags returns the named flags the user set, keyed by flag name,
// in the shape config.MergeCommandLineFlags expects
func changedFlags(cmd *cobra.Command, names ...string) map[string]interface{} {
	out := make(map[string]interface{})
	f := cmd.Flags()
	for _, name := range names {
		flag := f.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		switch flag.Value.Type() {
		case "int":
			v, _ := f.GetInt(name)
			out[name] = v
		case "bool":
			v, _ := f.GetBool(name)
			out[name] = v
		case "duration":
			v, _ := f.GetDuration(name)
			out[name] = v
		default:
			out[name] = flag.Value.String()
		}
	}
	return out
}

// loadConfig resolves the configuration for cmd and initializes the global logger
func loadConfig(cmd *cobra.Command, local ...string) (*config.Config, error) {
	flags := changedFlags(cmd, append(globalFlagNames, local...)...)

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// pipeline holds the storage side of a run: the per-key cache, the
// checkpoints and the merge engine
type pipeline struct {
	cfg         *config.Config
	format      models.Format
	store       cache.Store
	checkpoints *checkpoint.Manager
	merger      *merge.Engine
	log         logger.Logger
}

func openPipeline(cfg *config.Config, log logger.Logger) (*pipeline, error) {
	format, err := models.ParseFormat(cfg.Collector.Format)
	if err != nil {
		return nil, err
	}

	store, err := cache.New(cfg.Storage, format, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	checkpoints, err := checkpoint.NewManager(cfg.Storage.CheckpointDir, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open checkpoints: %w", err)
	}

	merger, err := merge.NewEngine(cfg.Storage, log, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create merge engine: %w", err)
	}

	return &pipeline{
		cfg:         cfg,
		format:      format,
		store:       store,
		checkpoints: checkpoints,
		merger:      merger,
		log:         logger.OrDefault(log),
	}, nil
}

func (p *pipeline) Close() error {
	return errors.Join(p.merger.Close(), p.store.Close())
}

// collector wires a Collector over the pipeline. Either hook may be nil.
func (p *pipeline) collector(producer collector.Producer, onStart func(int, int, string), onKey func(int, int, models.KeyResult)) (*collector.Collector, error) {
	return collector.New(collector.Deps{
		Producer:    producer,
		Store:       p.store,
		Checkpoints: p.checkpoints,
		Merger:      p.merger,
		Classifier:  enrich.NewLocationClassifier(enrich.DefaultCountries...),
		Retry:       p.cfg.Retry,
		OnKeyStart:  onStart,
		OnKey:       onKey,
	}, p.log)
}

// session builds the batch session described by the configuration
func (p *pipeline) session(keys []string) models.Session {
	return models.Session{
		Name:     p.cfg.Collector.SessionName,
		Platform: p.cfg.Collector.Platform,
		Keys:     keys,
		Options:  optionsFromConfig(p.cfg, p.format),
	}
}

func optionsFromConfig(cfg *config.Config, format models.Format) models.Options {
	return models.Options{
		Limit:        cfg.Collector.MaxPerKeyword,
		Format:       format,
		Pause:        cfg.Collector.PauseBetweenKeys,
		Merge:        cfg.Collector.Merge,
		SaveInterval: cfg.Collector.SaveInterval,
		PageSize:     cfg.Collector.PageSize,
		RetryFailed:  cfg.Collector.RetryFailed,
	}
}

// newProducer returns the content client for the configured platform
func newProducer(cfg *config.Config, log logger.Logger) (*bluesky.Client, error) {
	if !strings.EqualFold(cfg.Collector.Platform, bluesky.Platform) {
		return nil, fmt.Errorf("unsupported platform %q (supported: %s)", cfg.Collector.Platform, bluesky.Platform)
	}
	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)
	return bluesky.NewClient(cfg.Bluesky, limiter, log), nil
}

// credentialSource is the part of auth.Manager used to look up a login
type credentialSource interface {
	Retrieve(handle string) (*auth.Account, error)
	RetrieveDefault() (*auth.Account, error)
}

// openCredentials is replaced in tests
var openCredentials = func() (credentialSource, error) {
	return auth.NewManager("")
}

// resolveCredentials fills cfg.Bluesky from a saved account. A handle
// given with --account always wins; otherwise credentials already present
// in the configuration or environment are kept, and the default saved
// account is used as a last resort.
func resolveCredentials(cfg *config.Config, handle string) error {
	if handle == "" && cfg.Bluesky.Handle != "" && cfg.Bluesky.AppPassword != "" {
		return nil
	}

	source, err := openCredentials()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var account *auth.Account
	if handle != "" {
		account, err = source.Retrieve(handle)
	} else {
		account, err = source.RetrieveDefault()
	}
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return fmt.Errorf("no Bluesky credentials found; run 'postharvest auth login' or set %s and %s: %w",
				auth.EnvHandle, auth.EnvAppPassword, err)
		}
		return err
	}

	cfg.Bluesky.Handle = account.Handle
	cfg.Bluesky.AppPassword = account.AppPassword
	if account.Service != "" {
		cfg.Bluesky.BaseURL = account.Service
	}
	return nil
}

// gatherKeywords combines keywords from args and a keywords file, falling
// back to the configured list when neither gives any
func gatherKeywords(args []string, file string, configured []string) ([]string, error) {
	var keys []string
	for _, arg := range args {
		if k := strings.TrimSpace(arg); k != "" {
			keys = append(keys, k)
		}
	}

	if file != "" {
		fromFile, err := readKeywordsFile(file)
		if err != nil {
			return nil, err
		}
		keys = append(keys, fromFile...)
	}

	if len(keys) == 0 {
		for _, k := range configured {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}

	if len(keys) == 0 {
		return nil, errors.New("no keywords given; pass them as arguments, with --keywords-file, or under collector.keywords in the config file")
	}
	return keys, nil
}

// readKeywordsFile reads one keyword per line, skipping blank lines and # comments
func readKeywordsFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keywords file: %w", err)
	}
	defer file.Close()

	var keys []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}
	return keys, nil
}
