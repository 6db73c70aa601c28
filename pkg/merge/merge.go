package merge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"postharvest/pkg/cache"
	"postharvest/pkg/config"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/storage"
)

// DefaultConcurrency bounds how many per-key stores are read at once
const DefaultConcurrency = 4

// Status is the outcome of a merge
type Status string

const (
	StatusMerged  Status = "merged"
	StatusPartial Status = "partial"
	StatusNoData  Status = "no_data"
)

// KeyFailure names a key whose store could not be read
type KeyFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Summary reports what a merge read and wrote
type Summary struct {
	Status            Status         `json:"status"`
	SessionName       string         `json:"session_name"`
	Platform          string         `json:"platform"`
	Format            models.Format  `json:"format"`
	TotalBeforeDedup  int            `json:"total_before_dedup"`
	TotalAfterDedup   int            `json:"total_after_dedup"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	OutputPath        string         `json:"output_path,omitempty"`
	PartialFailures   []KeyFailure   `json:"partial_failures,omitempty"`
	PerKeyCounts      map[string]int `json:"per_key_counts"`
	Countries         map[string]int `json:"countries,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// Engine merges per-key stores into one dataset per (platform, session)
type Engine struct {
	cfg         config.StorageConfig
	logger      logger.Logger
	concurrency int

	mu     sync.Mutex
	stores map[models.Format]cache.Store
	owned  []cache.Store
}

// NewEngine returns an engine writing under cfg.MergedDir. Stores passed in
// are reused for their format; other formats are opened on demand and
// closed by Close.
func NewEngine(cfg config.StorageConfig, log logger.Logger, stores ...cache.Store) (*Engine, error) {
	if strings.TrimSpace(cfg.MergedDir) == "" {
		return nil, errors.New("merged directory is required")
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logger.OrDefault(log).WithField("component", "merge"),
		concurrency: DefaultConcurrency,
		stores:      make(map[models.Format]cache.Store),
	}
	for _, s := range stores {
		e.stores[s.Format()] = s
	}
	return e, nil
}

// SetConcurrency changes how many stores are read in parallel
func (e *Engine) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	e.concurrency = n
}

// OutputPath is where the merged dataset for (platform, session) lives
func (e *Engine) OutputPath(platform, session string, format models.Format) string {
	name := fmt.Sprintf("%s_%s_merged.%s", storage.Canon(platform), storage.Canon(session), format.Ext())
	return filepath.Join(e.cfg.MergedDir, name)
}

func (e *Engine) store(format models.Format) (cache.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.stores[format]; ok {
		return s, nil
	}
	s, err := cache.New(e.cfg, format, e.logger)
	if err != nil {
		return nil, err
	}
	e.stores[format] = s
	e.owned = append(e.owned, s)
	return s, nil
}

// Close releases stores the engine opened itself
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errList []error
	for _, s := range e.owned {
		if err := s.Close(); err != nil {
			errList = append(errList, err)
		}
		delete(e.stores, s.Format())
	}
	e.owned = nil
	return errors.Join(errList...)
}

type keyRead struct {
	records []models.Record
	err     error
}

// MergeAll reads the stores for keys (every stored key when keys is empty),
// concatenates them in key order, drops repeated IDs keeping the first
// occurrence and replaces the merged dataset. Keys whose store is missing
// or unreadable are reported as partial failures. When nothing at all was
// read the status is no_data and no file is written.
func (e *Engine) MergeAll(ctx context.Context, platform, session string, keys []string, format models.Format) (*Summary, error) {
	store, err := e.store(format)
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		infos, err := store.ListKeys(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("failed to discover cached keys: %w", err)
		}
		for _, info := range infos {
			keys = append(keys, info.Name)
		}
	}
	keys = uniqueKeys(keys)

	e.logger.InfoWithFields("Merging cached keys", map[string]interface{}{
		"session":  session,
		"platform": platform,
		"format":   string(format),
		"keys":     len(keys),
	})

	reads := make([]keyRead, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			records, err := store.ReadAll(gctx, platform, key)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			reads[i] = keyRead{records: records, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("merge cancelled: %w", err)
	}

	summary := &Summary{
		SessionName:  session,
		Platform:     platform,
		Format:       format,
		PerKeyCounts: make(map[string]int),
		Countries:    make(map[string]int),
	}

	seen := storage.NewIDIndex()
	var merged []models.Record
	for i, key := range keys {
		read := reads[i]
		if read.err != nil {
			summary.PartialFailures = append(summary.PartialFailures, KeyFailure{Key: key, Reason: failureReason(read.err)})
			e.logger.WarnWithFields("Skipping unreadable key", map[string]interface{}{
				"key":   key,
				"error": read.err.Error(),
			})
			continue
		}

		summary.TotalBeforeDedup += len(read.records)
		kept := 0
		for _, rec := range read.records {
			if !seen.Add(rec.ID) {
				continue
			}
			merged = append(merged, rec)
			kept++
			if rec.Enrichment != nil && rec.Enrichment.Country != "" {
				summary.Countries[rec.Enrichment.Country]++
			}
		}
		summary.PerKeyCounts[key] = kept
	}

	summary.TotalAfterDedup = len(merged)
	summary.DuplicatesRemoved = summary.TotalBeforeDedup - summary.TotalAfterDedup
	summary.GeneratedAt = time.Now().UTC()

	if len(merged) == 0 {
		summary.Status = StatusNoData
		e.logger.WarnWithFields("No data to merge", map[string]interface{}{
			"session":  session,
			"failures": len(summary.PartialFailures),
		})
		return summary, nil
	}

	path := e.OutputPath(platform, session, format)
	if err := cache.WriteDataset(ctx, path, format, merged); err != nil {
		return nil, fmt.Errorf("failed to write merged dataset: %w", err)
	}
	summary.OutputPath = path

	summary.Status = StatusMerged
	if len(summary.PartialFailures) > 0 {
		summary.Status = StatusPartial
	}

	e.logger.InfoWithFields("Merge complete", map[string]interface{}{
		"session":            session,
		"output":             path,
		"total_before_dedup": summary.TotalBeforeDedup,
		"total_after_dedup":  summary.TotalAfterDedup,
		"duplicates_removed": summary.DuplicatesRemoved,
		"partial_failures":   len(summary.PartialFailures),
	})
	return summary, nil
}

// SortedCountries returns the location distribution, largest first
func (s *Summary) SortedCountries() []CountryCount {
	out := make([]CountryCount, 0, len(s.Countries))
	for country, n := range s.Countries {
		out = append(out, CountryCount{Country: country, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Country < out[j].Country
	})
	return out
}

// CountryCount is one row of the location distribution
type CountryCount struct {
	Country string
	Count   int
}

// uniqueKeys keeps the first of keys that share a cache store, i.e. whose
// canonical names are equal
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		canon := storage.Canon(k)
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, k)
	}
	return out
}

func failureReason(err error) string {
	if errors.Is(err, cache.ErrNotFound) {
		return "no cache store"
	}
	return err.Error()
}
