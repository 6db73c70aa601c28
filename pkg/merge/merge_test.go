package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postharvest/pkg/cache"
	"postharvest/pkg/config"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
)

type fixture struct {
	cfg    config.StorageConfig
	store  cache.Store
	engine *Engine
}

func newFixture(t *testing.T, format models.Format) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.StorageConfig{
		CacheDir:  filepath.Join(root, "cache"),
		MergedDir: filepath.Join(root, "merged"),
	}
	store, err := cache.New(cfg, format, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine, err := NewEngine(cfg, logger.NewNopLogger(), store)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	return &fixture{cfg: cfg, store: store, engine: engine}
}

func (f *fixture) put(t *testing.T, key string, ids ...string) {
	t.Helper()
	records := make([]models.Record, len(ids))
	for i, id := range ids {
		records[i] = models.Record{ID: id, Key: key, Text: "post " + id}
	}
	_, err := f.store.Append(context.Background(), "bluesky", key, records)
	require.NoError(t, err)
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestMergeOrderAndDedup(t *testing.T) {
	for _, format := range models.Formats {
		t.Run(string(format), func(t *testing.T) {
			f := newFixture(t, format)
			f.put(t, "alpha", "a1", "shared", "a2")
			f.put(t, "beta", "b1", "shared")
			f.put(t, "gamma", "g1")

			summary, err := f.engine.MergeAll(context.Background(), "bluesky", "CTF run", []string{"beta", "alpha", "gamma"}, format)
			require.NoError(t, err)

			assert.Equal(t, StatusMerged, summary.Status)
			assert.Equal(t, 6, summary.TotalBeforeDedup)
			assert.Equal(t, 5, summary.TotalAfterDedup)
			assert.Equal(t, 1, summary.DuplicatesRemoved)
			assert.Equal(t, map[string]int{"beta": 2, "alpha": 2, "gamma": 1}, summary.PerKeyCounts)
			assert.Empty(t, summary.PartialFailures)

			want := filepath.Join(f.cfg.MergedDir, "bluesky_ctf_run_merged."+format.Ext())
			assert.Equal(t, want, summary.OutputPath)

			records, err := cache.ReadDataset(context.Background(), summary.OutputPath, format)
			require.NoError(t, err)
			assert.Equal(t, []string{"b1", "shared", "a1", "a2", "g1"}, ids(records))
			assert.Equal(t, "beta", records[1].Key, "duplicate is attributed to the first key")
		})
	}
}

func TestMergeReadsCollidingKeysOnce(t *testing.T) {
	f := newFixture(t, models.FormatJSONL)
	f.put(t, "Fraud!", "f1", "f2")
	f.put(t, "scam", "s1")

	summary, err := f.engine.MergeAll(context.Background(), "bluesky", "s", []string{"Fraud!", "scam", "fraud"}, models.FormatJSONL)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalBeforeDedup)
	assert.Equal(t, 3, summary.TotalAfterDedup)
	assert.Zero(t, summary.DuplicatesRemoved)
	assert.Equal(t, map[string]int{"Fraud!": 2, "scam": 1}, summary.PerKeyCounts)
}

func TestMergeIsDeterministic(t *testing.T) {
	f := newFixture(t, models.FormatJSONL)
	for _, key := range []string{"k1", "k2", "k3", "k4", "k5", "k6"} {
		f.put(t, key, key+"-a", "dup", key+"-b")
	}
	f.engine.SetConcurrency(3)

	keys := []string{"k3", "k1", "k6", "k2", "k5", "k4"}
	first, err := f.engine.MergeAll(context.Background(), "bluesky", "s", keys, models.FormatJSONL)
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(first.OutputPath)
	require.NoError(t, err)

	second, err := f.engine.MergeAll(context.Background(), "bluesky", "s", keys, models.FormatJSONL)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(second.OutputPath)
	require.NoError(t, err)

	assert.Equal(t, firstBytes, secondBytes)
	assert.Equal(t, 13, second.TotalAfterDedup)
}

func TestMergeMissingKeyIsPartial(t *testing.T) {
	f := newFixture(t, models.FormatCSV)
	f.put(t, "alpha", "a1")

	summary, err := f.engine.MergeAll(context.Background(), "bluesky", "s", []string{"alpha", "ghost"}, models.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, summary.Status)
	require.Len(t, summary.PartialFailures, 1)
	assert.Equal(t, "ghost", summary.PartialFailures[0].Key)
	assert.Equal(t, "no cache store", summary.PartialFailures[0].Reason)
	assert.FileExists(t, summary.OutputPath)
}

func TestMergeUnreadableKeyIsPartial(t *testing.T) {
	f := newFixture(t, models.FormatCSV)
	f.put(t, "alpha", "a1")

	broken := f.store.Path("bluesky", "broken")
	require.NoError(t, os.WriteFile(broken, []byte("not,a,cache\n1,2,3\n"), 0644))

	summary, err := f.engine.MergeAll(context.Background(), "bluesky", "s", []string{"alpha", "broken"}, models.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, summary.Status)
	require.Len(t, summary.PartialFailures, 1)
	assert.Equal(t, "broken", summary.PartialFailures[0].Key)
	assert.Equal(t, 1, summary.TotalAfterDedup)
}

func TestMergeNoData(t *testing.T) {
	f := newFixture(t, models.FormatSQLite)

	summary, err := f.engine.MergeAll(context.Background(), "bluesky", "s", []string{"ghost"}, models.FormatSQLite)
	require.NoError(t, err)

	assert.Equal(t, StatusNoData, summary.Status)
	assert.Empty(t, summary.OutputPath)
	assert.NoFileExists(t, f.engine.OutputPath("bluesky", "s", models.FormatSQLite))
}

func TestMergeDiscoversKeys(t *testing.T) {
	f := newFixture(t, models.FormatJSONL)
	f.put(t, "zeta", "z1")
	f.put(t, "alpha", "a1")

	summary, err := f.engine.MergeAll(context.Background(), "bluesky", "s", nil, models.FormatJSONL)
	require.NoError(t, err)

	records, err := cache.ReadDataset(context.Background(), summary.OutputPath, models.FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "z1"}, ids(records))
}

func TestMergeOpensOtherFormats(t *testing.T) {
	f := newFixture(t, models.FormatCSV)

	jsonl, err := cache.New(f.cfg, models.FormatJSONL, logger.NewNopLogger())
	require.NoError(t, err)
	_, err = jsonl.Append(context.Background(), "bluesky", "alpha", []models.Record{{ID: "j1"}})
	require.NoError(t, err)

	summary, err := f.engine.MergeAll(context.Background(), "bluesky", "s", []string{"alpha"}, models.FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalAfterDedup)
	assert.Equal(t, models.FormatJSONL, summary.Format)
}

func TestMergeCountsCountries(t *testing.T) {
	f := newFixture(t, models.FormatJSONL)
	_, err := f.store.Append(context.Background(), "bluesky", "alpha", []models.Record{
		{ID: "1", Enrichment: &models.Enrichment{Country: "Nigeria", Confidence: 0.9}},
		{ID: "2", Enrichment: &models.Enrichment{Country: "United Kingdom", Confidence: 0.6}},
		{ID: "3", Enrichment: &models.Enrichment{Country: "Nigeria", Confidence: 0.3}},
		{ID: "4"},
	})
	require.NoError(t, err)

	summary, err := f.engine.MergeAll(context.Background(), "bluesky", "s", []string{"alpha"}, models.FormatJSONL)
	require.NoError(t, err)

	assert.Equal(t, []CountryCount{{"Nigeria", 2}, {"United Kingdom", 1}}, summary.SortedCountries())
}

func TestMergeCancelled(t *testing.T) {
	f := newFixture(t, models.FormatCSV)
	f.put(t, "alpha", "a1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.MergeAll(ctx, "bluesky", "s", []string{"alpha"}, models.FormatCSV)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, f.engine.OutputPath("bluesky", "s", models.FormatCSV))
}

func TestNewEngineRequiresDir(t *testing.T) {
	_, err := NewEngine(config.StorageConfig{CacheDir: t.TempDir()}, nil)
	assert.Error(t, err)
}
