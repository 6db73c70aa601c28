package collector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postharvest/pkg/cache"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/config"
	errs "postharvest/pkg/errors"
	"postharvest/pkg/logger"
	"postharvest/pkg/merge"
	"postharvest/pkg/models"
)

// fakeProducer serves each key's records in pages; the cursor is the offset
type fakeProducer struct {
	mu      sync.Mutex
	records map[string][]models.Record
	errs    map[string][]error
	calls   map[string]int
	sizes   map[string][]int
	onFetch func(key string, call int) error
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{
		records: make(map[string][]models.Record),
		errs:    make(map[string][]error),
		calls:   make(map[string]int),
		sizes:   make(map[string][]int),
	}
}

func (p *fakeProducer) add(key string, ids ...string) {
	for _, id := range ids {
		p.records[key] = append(p.records[key], models.Record{ID: id, Key: key, Text: "text " + id})
	}
}

func (p *fakeProducer) failWith(key string, errList ...error) {
	p.errs[key] = append(p.errs[key], errList...)
}

func (p *fakeProducer) callCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

func (p *fakeProducer) FetchPage(ctx context.Context, key, cursor string, pageSize int) (models.Page, error) {
	p.mu.Lock()
	p.calls[key]++
	call := p.calls[key]
	p.sizes[key] = append(p.sizes[key], pageSize)
	var queued error
	if len(p.errs[key]) > 0 {
		queued = p.errs[key][0]
		p.errs[key] = p.errs[key][1:]
	}
	all := p.records[key]
	hook := p.onFetch
	p.mu.Unlock()

	if hook != nil {
		if err := hook(key, call); err != nil {
			return models.Page{}, err
		}
	}
	if queued != nil {
		return models.Page{}, queued
	}

	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	page := models.Page{Records: append([]models.Record(nil), all[offset:end]...)}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// countingStore records Append calls and can refuse appends for one key
type countingStore struct {
	cache.Store
	mu      sync.Mutex
	appends []int
	failKey string
}

func (s *countingStore) Append(ctx context.Context, platform, key string, records []models.Record) (int, error) {
	s.mu.Lock()
	s.appends = append(s.appends, len(records))
	failing := s.failKey != "" && key == s.failKey
	s.mu.Unlock()
	if failing {
		return 0, errs.NewStorage("disk full", nil)
	}
	return s.Store.Append(ctx, platform, key, records)
}

func (s *countingStore) failAppends(key string) {
	s.mu.Lock()
	s.failKey = key
	s.mu.Unlock()
}

// flakyCheckpoints fails MarkKeyComplete for one key a number of times
type flakyCheckpoints struct {
	*checkpoint.Manager
	failKey  string
	failures int
}

func (f *flakyCheckpoints) MarkKeyComplete(session, platform, key string, outcome checkpoint.KeyOutcome) error {
	if key == f.failKey && f.failures != 0 {
		f.failures--
		return errs.NewStorage("disk full", nil)
	}
	return f.Manager.MarkKeyComplete(session, platform, key, outcome)
}

type env struct {
	cfg         config.StorageConfig
	producer    *fakeProducer
	store       *countingStore
	checkpoints *checkpoint.Manager
	engine      *merge.Engine
	waits       []time.Duration
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	cfg := config.StorageConfig{
		CacheDir:      filepath.Join(root, "cache"),
		CheckpointDir: filepath.Join(root, "checkpoints"),
		MergedDir:     filepath.Join(root, "merged"),
	}

	store, err := cache.New(cfg, models.FormatJSONL, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr, err := checkpoint.NewManager(cfg.CheckpointDir, logger.NewNopLogger())
	require.NoError(t, err)

	engine, err := merge.NewEngine(cfg, logger.NewNopLogger(), store)
	require.NoError(t, err)

	return &env{
		cfg:         cfg,
		producer:    newFakeProducer(),
		store:       &countingStore{Store: store},
		checkpoints: mgr,
		engine:      engine,
	}
}

var testRetry = config.RetryConfig{
	MaxAttempts:     3,
	BaseDelay:       time.Millisecond,
	MaxDelay:        time.Millisecond,
	Multiplier:      1,
	StorageAttempts: 2,
}

func (e *env) collector(t *testing.T, mutate ...func(*Deps)) *Collector {
	t.Helper()
	deps := Deps{
		Producer:    e.producer,
		Store:       e.store,
		Checkpoints: e.checkpoints,
		Merger:      e.engine,
		Retry:       testRetry,
	}
	for _, m := range mutate {
		m(&deps)
	}
	c, err := New(deps, logger.NewNopLogger())
	require.NoError(t, err)
	c.wait = func(ctx context.Context, d time.Duration) error {
		e.waits = append(e.waits, d)
		return ctx.Err()
	}
	return c
}

func session(keys ...string) models.Session {
	return models.Session{
		Name:     "ctf",
		Platform: "bluesky",
		Keys:     keys,
		Options: models.Options{
			Limit:        100,
			PageSize:     25,
			SaveInterval: 50,
			Pause:        time.Second,
		},
	}
}

func (e *env) stored(t *testing.T, key string) []string {
	t.Helper()
	records, err := e.store.ReadAll(context.Background(), "bluesky", key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestScenarioTerminalKeyFailure(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1", "a2", "a3")
	e.producer.failWith("beta", errs.NewTerminal("malformed query", nil))

	result, err := e.collector(t).Run(context.Background(), session("alpha", "beta"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalKeywords)
	assert.Equal(t, 0, result.AlreadyCompleted)
	assert.Equal(t, 1, result.NewlyScraped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, []string{"beta"}, result.FailedKeywords)
	assert.False(t, result.Interrupted)
	assert.Equal(t, 1, e.producer.callCount("beta"), "terminal errors are not retried")

	require.Len(t, result.Keys, 2)
	assert.Equal(t, models.KeyResult{Key: "alpha", Status: models.KeySucceeded, Count: 3}, result.Keys[0])
	assert.Equal(t, models.KeyFailed, result.Keys[1].Status)
	assert.Contains(t, result.Keys[1].Error, "malformed query")

	cp, err := e.checkpoints.Load("ctf")
	require.NoError(t, err)
	alpha, _ := cp.Outcome("alpha")
	beta, _ := cp.Outcome("beta")
	assert.Equal(t, models.KeySucceeded, alpha.Status)
	assert.Equal(t, 3, alpha.Count)
	assert.Equal(t, models.KeyFailed, beta.Status)
	assert.Equal(t, "bluesky", cp.Platform)

	assert.Equal(t, []string{"a1", "a2", "a3"}, e.stored(t, "alpha"))
}

func TestScenarioRetryFailedOnRerun(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1", "a2", "a3")
	e.producer.failWith("beta", errs.NewTerminal("malformed query", nil))

	_, err := e.collector(t).Run(context.Background(), session("alpha", "beta"))
	require.NoError(t, err)

	// Without RetryFailed the failed key stays settled
	again, err := e.collector(t).Run(context.Background(), session("alpha", "beta"))
	require.NoError(t, err)
	assert.Equal(t, 2, again.AlreadyCompleted)
	assert.Equal(t, 0, again.NewlyScraped)
	assert.Equal(t, 1, e.producer.callCount("alpha"))

	e.producer.add("beta", "b1")
	s := session("alpha", "beta")
	s.Options.RetryFailed = true
	result, err := e.collector(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AlreadyCompleted)
	assert.Equal(t, 1, result.NewlyScraped)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.FailedKeywords)
	assert.Equal(t, 1, result.TotalRecords)
	assert.Equal(t, 1, e.producer.callCount("alpha"), "completed keys are not fetched again")
}

func TestResumeProcessesOnlyPendingKeys(t *testing.T) {
	e := newEnv(t)
	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		e.producer.add(k, k+"-1")
	}
	require.NoError(t, e.checkpoints.MarkKeyComplete("ctf", "bluesky", "k2", checkpoint.KeyOutcome{Status: models.KeySucceeded, Count: 1}))
	require.NoError(t, e.checkpoints.MarkKeyComplete("ctf", "bluesky", "k4", checkpoint.KeyOutcome{Status: models.KeyEmpty}))

	result, err := e.collector(t).Run(context.Background(), session("k1", "k2", "k3", "k4", "k5"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.AlreadyCompleted)
	assert.Equal(t, 3, result.NewlyScraped)
	for _, k := range []string{"k2", "k4"} {
		assert.Zero(t, e.producer.callCount(k), k)
	}
	for _, k := range []string{"k1", "k3", "k5"} {
		assert.Equal(t, 1, e.producer.callCount(k), k)
	}
	assert.Equal(t, []time.Duration{time.Second, time.Second}, e.waits, "no pause after the last pending key")
}

func TestTransientErrorsAreRetried(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1")
	e.producer.failWith("alpha", errs.NewTransient("timeout", nil), &errs.Error{Type: errs.ErrorTypeRateLimit, Code: 429})
	e.producer.add("beta", "b1")
	e.producer.failWith("beta",
		errs.NewTransient("timeout", nil),
		errs.NewTransient("timeout", nil),
		errs.NewTransient("timeout", nil),
	)

	result, err := e.collector(t).Run(context.Background(), session("alpha", "beta"))
	require.NoError(t, err)

	assert.Equal(t, models.KeySucceeded, result.Keys[0].Status)
	assert.Equal(t, 3, e.producer.callCount("alpha"))

	assert.Equal(t, models.KeyFailed, result.Keys[1].Status)
	assert.Contains(t, result.Keys[1].Error, "max retry attempts")
	assert.Equal(t, 3, e.producer.callCount("beta"))
}

func TestLimitAndPageSize(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")

	s := session("alpha")
	s.Options.Limit = 7
	s.Options.PageSize = 3
	result, err := e.collector(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 7, result.Keys[0].Count)
	assert.Equal(t, []int{3, 3, 1}, e.producer.sizes["alpha"])
	assert.Len(t, e.stored(t, "alpha"), 7)
}

func TestSaveIntervalBuffering(t *testing.T) {
	tests := []struct {
		interval int
		appends  []int
	}{
		{interval: 4, appends: []int{4, 4, 2}},
		{interval: 0, appends: []int{2, 2, 2, 2, 2}},
		{interval: 100, appends: []int{10}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("interval %d", tt.interval), func(t *testing.T) {
			e := newEnv(t)
			e.producer.add("alpha", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")

			s := session("alpha")
			s.Options.PageSize = 2
			s.Options.SaveInterval = tt.interval
			_, err := e.collector(t).Run(context.Background(), s)
			require.NoError(t, err)

			assert.Equal(t, tt.appends, e.store.appends)
			assert.Len(t, e.stored(t, "alpha"), 10)
		})
	}
}

func TestCountIncludesRecordsAlreadyStored(t *testing.T) {
	e := newEnv(t)
	_, err := e.store.Append(context.Background(), "bluesky", "alpha", []models.Record{{ID: "a1"}, {ID: "a2"}})
	require.NoError(t, err)
	e.producer.add("alpha", "a1", "a2", "a3", "a3")

	result, err := e.collector(t).Run(context.Background(), session("alpha"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Keys[0].Count)
	assert.Equal(t, []string{"a1", "a2", "a3"}, e.stored(t, "alpha"))
}

func TestEmptyKey(t *testing.T) {
	e := newEnv(t)

	s := session("nothing")
	s.Options.Merge = true
	result, err := e.collector(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, models.KeyEmpty, result.Keys[0].Status)
	assert.Equal(t, 1, result.NewlyScraped)
	assert.False(t, e.store.Exists("bluesky", "nothing"))
	require.NotNil(t, result.Merge)
	assert.Equal(t, merge.StatusNoData, result.Merge.Status)
}

func TestCrashBetweenAppendAndMark(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1", "a2", "a3")
	e.producer.add("beta", "b1")

	broken := &flakyCheckpoints{Manager: e.checkpoints, failKey: "alpha", failures: -1}
	result, err := e.collector(t, func(d *Deps) { d.Checkpoints = broken }).Run(context.Background(), session("alpha", "beta"))
	require.Error(t, err, "checkpoint failure is fatal to the run")
	require.NotNil(t, result)
	assert.Zero(t, e.producer.callCount("beta"))
	assert.Len(t, e.stored(t, "alpha"), 3, "records were appended before the mark failed")

	done, err := e.checkpoints.IsKeyComplete("ctf", "alpha")
	require.NoError(t, err)
	assert.False(t, done)

	// Restart: alpha is collected again and dedup absorbs the replay
	result, err = e.collector(t).Run(context.Background(), session("alpha", "beta"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewlyScraped)
	assert.Equal(t, 3, result.Keys[0].Count)
	assert.Equal(t, []string{"a1", "a2", "a3"}, e.stored(t, "alpha"))
}

func TestCheckpointWriteIsRetried(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1")

	flaky := &flakyCheckpoints{Manager: e.checkpoints, failKey: "alpha", failures: 1}
	result, err := e.collector(t, func(d *Deps) { d.Checkpoints = flaky }).Run(context.Background(), session("alpha"))
	require.NoError(t, err)
	assert.Equal(t, models.KeySucceeded, result.Keys[0].Status)
}

func TestCancellationMidKey(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "1", "2", "3", "4", "5", "6")
	e.producer.add("beta", "b1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.producer.onFetch = func(key string, call int) error {
		if key == "alpha" && call == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	s := session("alpha", "beta")
	s.Options.PageSize = 3
	result, err := e.collector(t).Run(ctx, s)
	require.NoError(t, err)

	assert.True(t, result.Interrupted)
	assert.Equal(t, models.KeyPending, result.Keys[0].Status)
	assert.Equal(t, models.KeyPending, result.Keys[1].Status)
	assert.Zero(t, e.producer.callCount("beta"))
	assert.Nil(t, result.Merge)

	assert.Equal(t, []string{"1", "2", "3"}, e.stored(t, "alpha"), "buffered records are kept")
	done, err := e.checkpoints.IsKeyComplete("ctf", "alpha")
	require.NoError(t, err)
	assert.False(t, done, "an interrupted key is not checkpointed")
}

func TestCancellationDuringPause(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1")
	e.producer.add("beta", "b1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := e.collector(t)
	c.wait = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	result, err := c.Run(ctx, session("alpha", "beta"))
	require.NoError(t, err)

	assert.True(t, result.Interrupted)
	assert.Equal(t, models.KeySucceeded, result.Keys[0].Status)
	assert.Zero(t, e.producer.callCount("beta"))

	done, err := e.checkpoints.IsKeyComplete("ctf", "alpha")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMergeAfterRun(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1", "shared")
	e.producer.add("beta", "shared", "b1")
	e.producer.failWith("gamma", errs.NewTerminal("bad", nil))

	s := session("alpha", "beta", "gamma")
	s.Options.Merge = true
	result, err := e.collector(t).Run(context.Background(), s)
	require.NoError(t, err)

	require.NotNil(t, result.Merge)
	assert.Equal(t, merge.StatusMerged, result.Merge.Status, "failed keys are left out of the merge")
	assert.Equal(t, 3, result.Merge.TotalAfterDedup)
	assert.Equal(t, 1, result.Merge.DuplicatesRemoved)
	assert.FileExists(t, result.Merge.OutputPath)
}

type stubClassifier struct{}

func (stubClassifier) Classify(rec models.Record) (*models.Enrichment, error) {
	if rec.ID == "bad" {
		return nil, errors.New("boom")
	}
	return &models.Enrichment{Country: "Nigeria", Confidence: 0.9}, nil
}

func TestRecordsAreEnriched(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "good", "bad")

	_, err := e.collector(t, func(d *Deps) { d.Classifier = stubClassifier{} }).Run(context.Background(), session("alpha"))
	require.NoError(t, err)

	records, err := e.store.ReadAll(context.Background(), "bluesky", "alpha")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].Enrichment)
	assert.Equal(t, "Nigeria", records[0].Enrichment.Country)
	assert.Nil(t, records[1].Enrichment)
}

func TestOnKeyCallback(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1")

	var seen []string
	c := e.collector(t, func(d *Deps) {
		d.OnKeyStart = func(index, total int, key string) {
			seen = append(seen, fmt.Sprintf("start %d/%d %s", index, total, key))
		}
		d.OnKey = func(index, total int, r models.KeyResult) {
			seen = append(seen, fmt.Sprintf("%d/%d %s %s", index, total, r.Key, r.Status))
		}
	})
	_, err := c.Run(context.Background(), session("alpha", "empty", "alpha"))
	require.NoError(t, err)

	assert.Equal(t, []string{"start 1/2 alpha", "1/2 alpha success", "start 2/2 empty", "2/2 empty empty"}, seen)
}

func TestRunRejectsMismatches(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.checkpoints.MarkKeyComplete("ctf", "mastodon", "x", checkpoint.KeyOutcome{Status: models.KeyEmpty}))

	_, err := e.collector(t).Run(context.Background(), session("alpha"))
	assert.ErrorContains(t, err, "belongs to platform")

	s := session("alpha")
	s.Options.Format = models.FormatCSV
	_, err = e.collector(t).Run(context.Background(), s)
	assert.ErrorContains(t, err, "does not match")

	_, err = New(Deps{}, nil)
	assert.Error(t, err)
}

func TestFetchKey(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1", "a2")
	c := e.collector(t)

	first, err := c.FetchKey(context.Background(), "bluesky", "alpha", models.Options{PageSize: 25, Limit: 10})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Records, 2)

	second, err := c.FetchKey(context.Background(), "bluesky", "alpha", models.Options{PageSize: 25, Limit: 10})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, 1, e.producer.callCount("alpha"))

	none, err := c.FetchKey(context.Background(), "bluesky", "nothing", models.Options{PageSize: 25})
	require.NoError(t, err)
	assert.Equal(t, models.KeyEmpty, none.Status)

	e.producer.failWith("broken", errs.NewTerminal("bad query", nil))
	_, err = c.FetchKey(context.Background(), "bluesky", "broken", models.Options{PageSize: 25})
	assert.True(t, errs.Is(err, errs.ErrorTypeTerminalKey))

	done, err := e.checkpoints.IsKeyComplete("fetch", "alpha")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestStorageFailureLeavesKeyUnfinished(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1", "a2")
	e.producer.add("beta", "b1")
	e.store.failAppends("alpha")

	result, err := e.collector(t).Run(context.Background(), session("alpha", "beta"))
	require.NoError(t, err, "a key that cannot be stored does not stop the batch")

	assert.Equal(t, models.KeyFailed, result.Keys[0].Status)
	assert.Contains(t, result.Keys[0].Error, "disk full")
	assert.Zero(t, result.Keys[0].Count, "nothing reached the cache")
	assert.Equal(t, []string{"alpha"}, result.FailedKeywords)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.NewlyScraped)
	assert.Equal(t, 1, result.TotalRecords)

	cp, err := e.checkpoints.Load("ctf")
	require.NoError(t, err)
	_, recorded := cp.Outcome("alpha")
	assert.False(t, recorded, "the key is left out of the checkpoint")

	// The disk recovers: alpha is collected again on the next run
	e.store.failAppends("")
	result, err = e.collector(t).Run(context.Background(), session("alpha", "beta"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.AlreadyCompleted)
	assert.Equal(t, 1, result.NewlyScraped)
	assert.Equal(t, models.KeyResult{Key: "alpha", Status: models.KeySucceeded, Count: 2}, result.Keys[0])
	assert.Equal(t, []string{"a1", "a2"}, e.stored(t, "alpha"))
}

func TestStorageFailureAfterFetchFailure(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "a1", "a2", "a3")
	e.producer.onFetch = func(key string, call int) error {
		if call == 2 {
			return errs.NewTerminal("malformed query", nil)
		}
		return nil
	}
	e.store.failAppends("alpha")

	s := session("alpha")
	s.Options.PageSize = 2
	result, err := e.collector(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, models.KeyFailed, result.Keys[0].Status)
	assert.Contains(t, result.Keys[0].Error, "disk full")
	assert.Contains(t, result.Keys[0].Error, "malformed query")
	assert.Zero(t, result.TotalRecords)

	done, err := e.checkpoints.IsKeyComplete("ctf", "alpha")
	require.NoError(t, err)
	assert.False(t, done, "records that were never stored keep the key open")
}

func TestInterruptedKeyCountsOnlyStoredRecords(t *testing.T) {
	e := newEnv(t)
	e.producer.add("alpha", "1", "2", "3", "4", "5", "6")
	e.store.failAppends("alpha")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.producer.onFetch = func(key string, call int) error {
		if call == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	s := session("alpha")
	s.Options.PageSize = 3
	result, err := e.collector(t).Run(ctx, s)
	require.NoError(t, err)

	assert.True(t, result.Interrupted)
	assert.Equal(t, models.KeyPending, result.Keys[0].Status)
	assert.Zero(t, result.Keys[0].Count)
	assert.Zero(t, result.TotalRecords)
	assert.Empty(t, e.stored(t, "alpha"))
}
