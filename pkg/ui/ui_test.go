package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postharvest/pkg/cache"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/collector"
	"postharvest/pkg/merge"
	"postharvest/pkg/models"
)

func TestRenderJobSummary(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	result := &collector.JobResult{
		SessionName:      "ctf",
		Platform:         "bluesky",
		TotalKeywords:    2,
		NewlyScraped:     1,
		Failed:           1,
		TotalRecords:     3,
		FailedKeywords:   []string{"beta"},
		Keys:             []models.KeyResult{{Key: "alpha", Status: models.KeySucceeded, Count: 3}, {Key: "beta", Status: models.KeyFailed, Error: "terminal_key error: bad query"}},
		StartedAt:        start,
		FinishedAt:       start.Add(95 * time.Second),
		AlreadyCompleted: 0,
	}

	out := RenderJobSummary(result)
	assert.Contains(t, out, "Session ctf (bluesky)")
	assert.Contains(t, out, "Newly scraped")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "bad query")
	assert.Contains(t, out, "1m35s")
	assert.NotContains(t, out, "Interrupted")
	assert.NotContains(t, out, "Merge")

	result.Interrupted = true
	result.Merge = &merge.Summary{Status: merge.StatusMerged, TotalAfterDedup: 3}
	out = RenderJobSummary(result)
	assert.Contains(t, out, "Interrupted")
	assert.Contains(t, out, "Merge")

	assert.Empty(t, RenderJobSummary(nil))
}

func TestRenderMergeSummary(t *testing.T) {
	countries := map[string]int{"Nigeria": 5, "United Kingdom": 2}
	for i := 0; i < 12; i++ {
		countries[string(rune('A'+i))+"land"] = 1
	}
	s := &merge.Summary{
		Status:            merge.StatusPartial,
		TotalBeforeDedup:  10,
		TotalAfterDedup:   8,
		DuplicatesRemoved: 2,
		OutputPath:        "/data/merged/bluesky_ctf_merged.csv",
		PartialFailures:   []merge.KeyFailure{{Key: "gamma", Reason: "no cache store"}},
		Countries:         countries,
	}

	out := RenderMergeSummary(s)
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "bluesky_ctf_merged.csv")
	assert.Contains(t, out, "gamma")
	assert.Contains(t, out, "no cache store")
	assert.Contains(t, out, "Nigeria")
	assert.Contains(t, out, "4 more")
}

func TestRenderTables(t *testing.T) {
	keys := RenderKeyTable([]models.KeyResult{{Key: "alpha", Status: models.KeySucceeded, Count: 3}})
	assert.Contains(t, keys, "alpha")
	assert.Contains(t, keys, "success")

	cps := RenderCheckpointList([]checkpoint.Summary{{SessionName: "ctf", Platform: "bluesky", Succeeded: 2, Records: 40, UpdatedAt: time.Now()}})
	assert.Contains(t, cps, "ctf")
	assert.Contains(t, cps, "40")
	assert.Contains(t, RenderCheckpointList(nil), "No checkpoints")

	caches := RenderCacheList([]cache.KeyInfo{{Name: "fraud", Format: models.FormatJSONL, SizeBytes: 2048, ModifiedAt: time.Now()}})
	assert.Contains(t, caches, "fraud")
	assert.Contains(t, caches, "2.0 KB")
	assert.Contains(t, RenderCacheList(nil), "empty")

	records := RenderRecords([]models.Record{{ID: "at://x/1", AuthorHandle: "a.bsky.social", Text: strings.Repeat("word ", 40), Enrichment: &models.Enrichment{Country: "Nigeria"}}}, 20)
	assert.Contains(t, records, "a.bsky.social")
	assert.Contains(t, records, "Nigeria")
	assert.Contains(t, records, "…")
}

func TestKeyProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewKeyProgress(&buf)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.startTime = now
	p.now = func() time.Time { return now }

	p.Start(1, 2, "alpha")
	now = now.Add(10 * time.Second)
	p.Done(1, 2, models.KeyResult{Key: "alpha", Status: models.KeySucceeded, Count: 7})
	p.Start(2, 2, "beta")
	p.Done(2, 2, models.KeyResult{Key: "beta", Status: models.KeyFailed, Error: "boom"})

	out := buf.String()
	assert.Contains(t, out, "[1/2] alpha")
	assert.Contains(t, out, "7 records")
	assert.Contains(t, out, "ETA 10s")
	assert.Contains(t, out, "boom")

	records, failed := p.Summary()
	assert.Equal(t, 7, records)
	assert.Equal(t, 1, failed)
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(title, message string) error {
	f.sent = append(f.sent, title+": "+message)
	return f.err
}

func TestNotifier(t *testing.T) {
	sender := &fakeSender{err: errors.New("no daemon")}
	n := NewNotifierWithSender(sender)
	n.Notify("postharvest", "done")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "postharvest: done", sender.sent[0])

	var nilNotifier *Notifier
	nilNotifier.Notify("x", "y")
}

func TestJobMessage(t *testing.T) {
	assert.Equal(t, "ctf finished: 3 keywords, 40 records", JobMessage("ctf", 3, 0, 40, false))
	assert.Equal(t, "ctf finished: 3 keywords, 40 records, 1 failed", JobMessage("ctf", 3, 1, 40, false))
	assert.Contains(t, JobMessage("ctf", 1, 0, 5, true), "interrupted")
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Success("saved")
	p.Error("failed to load", errors.New("missing"))
	p.Info("Session", "ctf")
	p.Warning("careful")

	out := buf.String()
	assert.Contains(t, out, "saved")
	assert.Contains(t, out, "failed to load: missing")
	assert.Contains(t, out, "Session:")
	assert.Contains(t, out, "careful")
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h1m", FormatDuration(61*time.Minute))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 MB", FormatBytes(1536*1024))
	assert.Equal(t, "a b", Truncate("a\n b", 10))
	assert.Equal(t, "abc…", Truncate("abcdefg", 4))
}
