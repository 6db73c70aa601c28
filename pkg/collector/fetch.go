package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postharvest/pkg/cache"
	"postharvest/pkg/models"
)

// FetchResult is the answer to a single-key lookup
type FetchResult struct {
	Key       string           `json:"key"`
	Records   []models.Record  `json:"records"`
	FromCache bool             `json:"from_cache"`
	Status    models.KeyStatus `json:"status"`
}

// FetchKey returns the cached records for key when the cache has any, and
// otherwise collects the key and returns what was stored. No checkpoint
// is written.
func (c *Collector) FetchKey(ctx context.Context, platform, key string, opts models.Options) (*FetchResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("key is required")
	}

	if c.store.Exists(platform, key) {
		records, err := c.store.ReadAll(ctx, platform, key)
		if err != nil && !errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("failed to read cache: %w", err)
		}
		if len(records) > 0 {
			c.logger.InfoWithFields("Serving key from cache", map[string]interface{}{
				"key":     key,
				"records": len(records),
			})
			return &FetchResult{Key: key, Records: records, FromCache: true, Status: models.KeySucceeded}, nil
		}
	}

	run := c.collectKey(ctx, models.Session{Name: "fetch", Platform: platform, Options: opts}, key)
	switch {
	case run.interrupted:
		return nil, ctx.Err()
	case run.storageErr != nil:
		return nil, fmt.Errorf("failed to store %q: %w", key, run.storageErr)
	case run.status == models.KeyFailed:
		return nil, fmt.Errorf("failed to collect %q: %w", key, run.err)
	case run.status == models.KeyEmpty:
		return &FetchResult{Key: key, Records: []models.Record{}, Status: models.KeyEmpty}, nil
	}

	records, err := c.store.ReadAll(ctx, platform, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read collected records: %w", err)
	}
	return &FetchResult{Key: key, Records: records, Status: models.KeySucceeded}, nil
}
