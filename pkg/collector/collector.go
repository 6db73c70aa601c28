package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"postharvest/pkg/cache"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/config"
	"postharvest/pkg/enrich"
	errs "postharvest/pkg/errors"
	"postharvest/pkg/logger"
	"postharvest/pkg/merge"
	"postharvest/pkg/models"
	"postharvest/pkg/retry"
	"postharvest/pkg/storage"
)

// Producer fetches pages of records for a key. An empty NextCursor ends
// pagination. Errors should be *errors.Error values so that transient
// failures can be told apart from terminal ones.
type Producer interface {
	FetchPage(ctx context.Context, key, cursor string, pageSize int) (models.Page, error)
}

// CheckpointStore is the part of checkpoint.Manager the collector needs
type CheckpointStore interface {
	Load(session string) (*checkpoint.Checkpoint, error)
	MarkKeyComplete(session, platform, key string, outcome checkpoint.KeyOutcome) error
	ClearFailed(session string) ([]string, error)
}

// Merger produces the merged dataset once all keys are done
type Merger interface {
	MergeAll(ctx context.Context, platform, session string, keys []string, format models.Format) (*merge.Summary, error)
}

// Deps wires a Collector to its collaborators. Merger and Classifier are optional.
type Deps struct {
	Producer    Producer
	Store       cache.Store
	Checkpoints CheckpointStore
	Merger      Merger
	Classifier  enrich.Classifier
	Retry       config.RetryConfig
	// OnKeyStart and OnKey, when set, bracket each key this run collects
	OnKeyStart  func(index, total int, key string)
	OnKey       func(index, total int, result models.KeyResult)
}

// JobResult summarises one batch run
type JobResult struct {
	SessionName      string             `json:"session_name"`
	Platform         string             `json:"platform"`
	TotalKeywords    int                `json:"total_keywords"`
	AlreadyCompleted int                `json:"already_completed"`
	NewlyScraped     int                `json:"newly_scraped"`
	Failed           int                `json:"failed"`
	TotalRecords     int                `json:"total_records"`
	FailedKeywords   []string           `json:"failed_keywords"`
	Keys             []models.KeyResult `json:"keys"`
	Merge            *merge.Summary     `json:"merge,omitempty"`
	Interrupted      bool               `json:"interrupted"`
	StartedAt        time.Time          `json:"started_at"`
	FinishedAt       time.Time          `json:"finished_at"`
}

// Collector drives a session's keys through the producer into the cache,
// checkpointing each key as it finishes
type Collector struct {
	producer    Producer
	store       cache.Store
	checkpoints CheckpointStore
	merger      Merger
	classifier  enrich.Classifier
	retry       config.RetryConfig
	onKeyStart  func(index, total int, key string)
	onKey       func(index, total int, result models.KeyResult)
	logger      logger.Logger

	// wait sleeps between keys; replaced in tests
	wait func(ctx context.Context, d time.Duration) error
}

// New creates a Collector
func New(deps Deps, log logger.Logger) (*Collector, error) {
	if deps.Producer == nil {
		return nil, errors.New("producer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if deps.Checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}

	return &Collector{
		producer:    deps.Producer,
		store:       deps.Store,
		checkpoints: deps.Checkpoints,
		merger:      deps.Merger,
		classifier:  deps.Classifier,
		retry:       deps.Retry,
		onKeyStart:  deps.OnKeyStart,
		onKey:       deps.OnKey,
		logger:      logger.OrDefault(log).WithField("component", "collector"),
		wait:        retry.Wait,
	}, nil
}

// keyRun is the outcome of collecting one key
type keyRun struct {
	status models.KeyStatus
	count  int
	err    error
	// storageErr is set when fetched records could not be stored. The key
	// is then left out of the checkpoint and count holds only what was stored.
	storageErr error
	// interrupted is set when ctx ended while the key was in flight
	interrupted bool
}

// Run processes every key of session that the checkpoint does not already
// hold as terminal. Key failures are recorded and never stop the batch.
// The returned error is non-nil only when a checkpoint could not be written
// or the merge failed; the partial result is returned alongside it.
func (c *Collector) Run(ctx context.Context, session models.Session) (*JobResult, error) {
	if strings.TrimSpace(session.Name) == "" {
		return nil, errors.New("session name is required")
	}
	if session.Options.Format != "" && session.Options.Format != c.store.Format() {
		return nil, fmt.Errorf("session format %q does not match cache format %q", session.Options.Format, c.store.Format())
	}

	keys := uniqueKeys(session.Keys)
	result := &JobResult{
		SessionName:    session.Name,
		Platform:       session.Platform,
		TotalKeywords:  len(keys),
		FailedKeywords: []string{},
		Keys:           make([]models.KeyResult, len(keys)),
		StartedAt:      time.Now().UTC(),
	}
	defer func() { result.FinishedAt = time.Now().UTC() }()

	log := c.logger.WithFields(map[string]interface{}{
		"session":  session.Name,
		"platform": session.Platform,
	})

	if session.Options.RetryFailed {
		cleared, err := c.checkpoints.ClearFailed(session.Name)
		if err != nil {
			return result, fmt.Errorf("failed to clear failed keys: %w", err)
		}
		if len(cleared) > 0 {
			log.InfoWithFields("Retrying previously failed keys", map[string]interface{}{
				"keys": cleared,
			})
		}
	}

	cp, err := c.checkpoints.Load(session.Name)
	if err != nil {
		return result, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp != nil && cp.Platform != "" && session.Platform != "" && cp.Platform != session.Platform {
		return result, fmt.Errorf("checkpoint for session %q belongs to platform %q", session.Name, cp.Platform)
	}

	var pending []int
	for i, key := range keys {
		result.Keys[i] = models.KeyResult{Key: key, Status: models.KeyPending}
		if cp == nil {
			pending = append(pending, i)
			continue
		}
		if outcome, ok := cp.Outcome(key); ok && outcome.Status.Terminal() {
			result.Keys[i] = models.KeyResult{Key: key, Status: outcome.Status, Count: outcome.Count, Error: outcome.Error}
			result.AlreadyCompleted++
			continue
		}
		pending = append(pending, i)
	}

	logger.LogComponentStart(log, "collector", map[string]interface{}{
		"total_keys":        len(keys),
		"already_completed": result.AlreadyCompleted,
		"pending":           len(pending),
		"format":            string(c.store.Format()),
		"limit":             session.Options.Limit,
	})

	for n, i := range pending {
		key := keys[i]
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		log.InfoWithFields("Collecting key", map[string]interface{}{
			"key":      key,
			"position": fmt.Sprintf("%d/%d", n+1, len(pending)),
		})
		result.Keys[i].Status = models.KeyInProgress
		if c.onKeyStart != nil {
			c.onKeyStart(n+1, len(pending), key)
		}

		run := c.collectKey(ctx, session, key)
		if run.storageErr != nil {
			result.Keys[i] = models.KeyResult{Key: key, Status: models.KeyFailed, Count: run.count, Error: run.storageErr.Error()}
			result.TotalRecords += run.count
			result.Failed++
			result.FailedKeywords = append(result.FailedKeywords, key)
			log.WithError(run.storageErr).WithField("key", key).Warn("Records could not be stored; key left unfinished for the next run")
			if c.onKey != nil {
				c.onKey(n+1, len(pending), result.Keys[i])
			}
			if !c.pause(ctx, session, n, len(pending), log) {
				result.Interrupted = true
				break
			}
			continue
		}
		if run.interrupted {
			result.Keys[i].Status = models.KeyPending
			result.Keys[i].Count = run.count
			result.TotalRecords += run.count
			result.Interrupted = true
			log.WarnWithFields("Interrupted during key; it will be collected again on resume", map[string]interface{}{
				"key":      key,
				"stored":   run.count,
			})
			break
		}

		outcome := checkpoint.KeyOutcome{Status: run.status, Count: run.count}
		if run.err != nil {
			outcome.Error = run.err.Error()
		}

		// The key's work is done; record it even if ctx ends meanwhile
		if err := c.markComplete(context.WithoutCancel(ctx), session, key, outcome); err != nil {
			result.Keys[i].Status = models.KeyInProgress
			return result, fmt.Errorf("failed to checkpoint key %q: %w", key, err)
		}

		result.Keys[i] = models.KeyResult{Key: key, Status: outcome.Status, Count: outcome.Count, Error: outcome.Error}
		result.TotalRecords += run.count
		switch run.status {
		case models.KeyFailed:
			result.Failed++
			result.FailedKeywords = append(result.FailedKeywords, key)
		default:
			result.NewlyScraped++
		}
		if c.onKey != nil {
			c.onKey(n+1, len(pending), result.Keys[i])
		}

		if !c.pause(ctx, session, n, len(pending), log) {
			result.Interrupted = true
			break
		}
	}

	log.InfoWithFields("Collection finished", map[string]interface{}{
		"newly_scraped":     result.NewlyScraped,
		"already_completed": result.AlreadyCompleted,
		"failed":            result.Failed,
		"total_records":     result.TotalRecords,
		"interrupted":       result.Interrupted,
	})

	if result.Interrupted || !session.Options.Merge {
		return result, nil
	}
	if c.merger == nil {
		log.Warn("Merge requested but no merger configured")
		return result, nil
	}

	mergeKeys := succeededKeys(result.Keys)
	if len(mergeKeys) == 0 {
		log.Warn("No data to merge")
		result.Merge = &merge.Summary{
			Status:       merge.StatusNoData,
			SessionName:  session.Name,
			Platform:     session.Platform,
			Format:       c.store.Format(),
			PerKeyCounts: map[string]int{},
			GeneratedAt:  time.Now().UTC(),
		}
		return result, nil
	}

	summary, err := c.merger.MergeAll(ctx, session.Platform, session.Name, mergeKeys, c.store.Format())
	if err != nil {
		return result, fmt.Errorf("merge failed: %w", err)
	}
	result.Merge = summary
	return result, nil
}

// collectKey paginates one key into the cache
func (c *Collector) collectKey(ctx context.Context, session models.Session, key string) keyRun {
	opts := session.Options
	log := c.logger.WithFields(map[string]interface{}{
		"session": session.Name,
		"key":     key,
	})

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	seen := storage.NewIDIndex()
	var buffer []models.Record
	// stored counts records of seen that reached the cache
	stored := func() int { return seen.Len() - len(buffer) }
	flush := func(ctx context.Context) error {
		if len(buffer) == 0 {
			return nil
		}
		err := retry.Do(func() error {
			_, err := c.store.Append(ctx, session.Platform, key, buffer)
			return err
		}, c.storageRetry(ctx))
		if err == nil {
			buffer = buffer[:0]
		}
		return err
	}

	cursor := ""
	for {
		size := pageSize
		if opts.Limit > 0 {
			remaining := opts.Limit - seen.Len()
			if remaining <= 0 {
				break
			}
			if remaining < size {
				size = remaining
			}
		}

		page, err := retry.DoWithResult(func() (models.Page, error) {
			return c.producer.FetchPage(ctx, key, cursor, size)
		}, c.fetchRetry(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return c.interrupt(ctx, flush, stored, log)
			}
			if ferr := flush(ctx); ferr != nil {
				log.WithError(ferr).Error("Failed to store records fetched before the key failed")
				return keyRun{count: stored(), storageErr: fmt.Errorf("%w (after fetch error: %v)", ferr, err)}
			}
			log.WithError(err).WithField("error_type", string(errs.TypeOf(err))).Error("Key failed")
			return keyRun{status: models.KeyFailed, count: seen.Len(), err: err}
		}

		for _, rec := range page.Records {
			if opts.Limit > 0 && seen.Len() >= opts.Limit {
				break
			}
			if rec.ID == "" || !seen.Add(rec.ID) {
				continue
			}
			if rec.Key == "" {
				rec.Key = key
			}
			rec.Enrichment = c.enrich(rec, log)
			buffer = append(buffer, rec)
		}

		if opts.SaveInterval <= 0 || len(buffer) >= opts.SaveInterval {
			if err := flush(ctx); err != nil {
				if ctx.Err() != nil {
					return c.interrupt(ctx, flush, stored, log)
				}
				log.WithError(err).Error("Failed to append records")
				return keyRun{count: stored(), storageErr: err}
			}
		}

		logger.LogKeyProgress(log, key, seen.Len(), opts.Limit)

		if len(page.Records) == 0 || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if err := flush(ctx); err != nil {
		if ctx.Err() != nil {
			return c.interrupt(ctx, flush, stored, log)
		}
		log.WithError(err).Error("Failed to append records")
		return keyRun{count: stored(), storageErr: err}
	}

	if seen.Len() == 0 {
		log.Info("No records found for key")
		return keyRun{status: models.KeyEmpty}
	}
	log.WithField("records", seen.Len()).Info("Key complete")
	return keyRun{status: models.KeySucceeded, count: seen.Len()}
}

// interrupt stores whatever was buffered before ctx ended. The returned
// count covers only records that reached the cache.
func (c *Collector) interrupt(ctx context.Context, flush func(context.Context) error, stored func() int, log logger.Logger) keyRun {
	if err := flush(context.WithoutCancel(ctx)); err != nil {
		log.WithError(err).Error("Failed to store buffered records after interruption")
	}
	return keyRun{count: stored(), interrupted: true}
}

// pause waits between keys and reports false if ctx ended meanwhile.
// Nothing waits after the last pending key.
func (c *Collector) pause(ctx context.Context, session models.Session, n, pending int, log logger.Logger) bool {
	if n >= pending-1 || session.Options.Pause <= 0 {
		return true
	}
	log.DebugWithFields("Pausing before next key", map[string]interface{}{
		"pause": session.Options.Pause.String(),
	})
	return c.wait(ctx, session.Options.Pause) == nil
}

func (c *Collector) enrich(rec models.Record, log logger.Logger) *models.Enrichment {
	if c.classifier == nil {
		return rec.Enrichment
	}
	e, err := c.classifier.Classify(rec)
	if err != nil {
		log.WithError(err).WithField("id", rec.ID).Debug("Classifier failed; storing record without enrichment")
		return nil
	}
	return e
}

func (c *Collector) markComplete(ctx context.Context, session models.Session, key string, outcome checkpoint.KeyOutcome) error {
	return retry.Do(func() error {
		return c.checkpoints.MarkKeyComplete(session.Name, session.Platform, key, outcome)
	}, c.storageRetry(ctx))
}

func (c *Collector) fetchRetry(ctx context.Context) *retry.Config {
	cfg := retry.FromSettings(ctx, c.retry, c.logger)
	if exp, ok := cfg.Backoff.(*retry.ExponentialBackoff); ok {
		cfg.Backoff = retry.NewErrorTypeBackoff(exp)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return cfg
}

func (c *Collector) storageRetry(ctx context.Context) *retry.Config {
	attempts := c.retry.StorageAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.FromSettings(ctx, c.retry, c.logger).WithMaxAttempts(attempts)
}

func succeededKeys(results []models.KeyResult) []string {
	var keys []string
	for _, r := range results {
		if r.Status == models.KeySucceeded {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
