package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"postharvest/pkg/cache"
	"postharvest/pkg/checkpoint"
	"postharvest/pkg/collector"
	"postharvest/pkg/merge"
	"postharvest/pkg/models"
)

// maxCountries caps the country breakdown in merge summaries
const maxCountries = 10

// RenderJobSummary renders the end-of-run report, including the merge when there was one
func RenderJobSummary(r *collector.JobResult) string {
	if r == nil {
		return ""
	}

	lines := []string{
		titleStyle.Render(fmt.Sprintf("Session %s (%s)", r.SessionName, r.Platform)),
		"",
		field("Keywords", strconv.Itoa(r.TotalKeywords)),
		field("Already completed", strconv.Itoa(r.AlreadyCompleted)),
		field("Newly scraped", strconv.Itoa(r.NewlyScraped)),
		field("Failed", strconv.Itoa(r.Failed)),
		field("Records", strconv.Itoa(r.TotalRecords)),
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		lines = append(lines, field("Duration", FormatDuration(r.FinishedAt.Sub(r.StartedAt))))
	}

	if len(r.FailedKeywords) > 0 {
		lines = append(lines, "", errorStyle.Render("Failed keywords"))
		for _, k := range r.FailedKeywords {
			lines = append(lines, "  • "+k+keyError(r.Keys, k))
		}
		lines = append(lines, dimStyle.Render("  re-run with --retry-failed to try them again"))
	}

	if r.Interrupted {
		lines = append(lines, "", warningStyle.Render("Interrupted: progress is saved, run the same command to resume"))
	}

	out := boxStyle.Render(strings.Join(lines, "\n"))
	if r.Merge != nil {
		out += "\n" + RenderMergeSummary(r.Merge)
	}
	return out
}

// RenderMergeSummary renders a merge result
func RenderMergeSummary(s *merge.Summary) string {
	if s == nil {
		return ""
	}

	lines := []string{
		titleStyle.Render("Merge ") + StatusStyle(string(s.Status)).Render(string(s.Status)),
		"",
		field("Before dedup", strconv.Itoa(s.TotalBeforeDedup)),
		field("After dedup", strconv.Itoa(s.TotalAfterDedup)),
		field("Duplicates removed", strconv.Itoa(s.DuplicatesRemoved)),
	}
	if s.OutputPath != "" {
		lines = append(lines, field("Output", s.OutputPath))
	}

	if len(s.PartialFailures) > 0 {
		lines = append(lines, "", warningStyle.Render("Keys left out"))
		for _, f := range s.PartialFailures {
			lines = append(lines, fmt.Sprintf("  • %s %s", f.Key, dimStyle.Render("("+f.Reason+")")))
		}
	}

	countries := s.SortedCountries()
	if len(countries) > 0 {
		lines = append(lines, "", labelStyle.Render("Countries"))
		for i, c := range countries {
			if i == maxCountries {
				lines = append(lines, dimStyle.Render(fmt.Sprintf("  … %d more", len(countries)-maxCountries)))
				break
			}
			lines = append(lines, fmt.Sprintf("  %-20s %s", c.Country, valueStyle.Render(strconv.Itoa(c.Count))))
		}
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

// RenderKeyTable renders one row per key with its status and count
func RenderKeyTable(keys []models.KeyResult) string {
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k.Key, string(k.Status), strconv.Itoa(k.Count), k.Error})
	}
	return newTable([]string{"KEY", "STATUS", "RECORDS", "ERROR"}, rows, 1)
}

// RenderCheckpointList renders saved sessions
func RenderCheckpointList(summaries []checkpoint.Summary) string {
	if len(summaries) == 0 {
		return dimStyle.Render("No checkpoints found")
	}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.SessionName,
			s.Platform,
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Empty),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Records),
			s.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return newTable([]string{"SESSION", "PLATFORM", "SUCCESS", "EMPTY", "FAILED", "RECORDS", "UPDATED"}, rows, -1)
}

// RenderCacheList renders the per-key stores found in a cache directory
func RenderCacheList(keys []cache.KeyInfo) string {
	if len(keys) == 0 {
		return dimStyle.Render("Cache is empty")
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{
			k.Name,
			string(k.Format),
			FormatBytes(k.SizeBytes),
			k.ModifiedAt.Local().Format(time.DateTime),
		})
	}
	return newTable([]string{"KEY", "FORMAT", "SIZE", "MODIFIED"}, rows, -1)
}

// RenderRecords renders records as a compact table, truncating long text
func RenderRecords(records []models.Record, textWidth int) string {
	if textWidth <= 0 {
		textWidth = 60
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		country := ""
		if r.Enrichment != nil {
			country = r.Enrichment.Country
		}
		rows = append(rows, []string{r.ID, r.AuthorHandle, r.CreatedAt, country, Truncate(r.Text, textWidth)})
	}
	return newTable([]string{"ID", "AUTHOR", "CREATED", "COUNTRY", "TEXT"}, rows, -1)
}

// newTable builds a bordered table; statusCol, when not negative, is colored by status
func newTable(headers []string, rows [][]string, statusCol int) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			if col == statusCol && row >= 0 && row < len(rows) {
				return StatusStyle(rows[row][col]).Padding(0, 1)
			}
			return cellStyle
		})
	return t.Render()
}

func field(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(fmt.Sprintf("%-20s", label+":")), valueStyle.Render(value))
}

func keyError(keys []models.KeyResult, key string) string {
	for _, k := range keys {
		if k.Key == key && k.Error != "" {
			return " " + dimStyle.Render("("+Truncate(k.Error, 80)+")")
		}
	}
	return ""
}

// Truncate shortens s to at most n runes, collapsing newlines
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
