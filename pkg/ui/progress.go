package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"postharvest/pkg/models"
)

const (
	progressFilled = "━"
	progressEmpty  = "─"
	progressWidth  = 20
)

// KeyProgress prints one line per key for non-interactive runs. Its
// methods match the collector's OnKeyStart and OnKey hooks.
type KeyProgress struct {
	mu        sync.Mutex
	out       io.Writer
	startTime time.Time
	keyStart  time.Time
	records   int
	failed    int
	now       func() time.Time
}

// NewKeyProgress creates a progress printer writing to w
func NewKeyProgress(w io.Writer) *KeyProgress {
	return &KeyProgress{out: w, startTime: time.Now(), now: time.Now}
}

// Start announces a key
func (p *KeyProgress) Start(index, total int, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keyStart = p.now()
	fmt.Fprintf(p.out, "%s %s %s\n", p.bar(index-1, total), labelStyle.Render(fmt.Sprintf("[%d/%d]", index, total)), key)
}

// Done reports how a key ended
func (p *KeyProgress) Done(index, total int, result models.KeyResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.records += result.Count
	took := p.now().Sub(p.keyStart)

	var mark, detail string
	switch result.Status {
	case models.KeySucceeded:
		mark = successStyle.Render("✓")
		detail = fmt.Sprintf("%d records", result.Count)
	case models.KeyEmpty:
		mark = warningStyle.Render("∅")
		detail = "no records"
	default:
		p.failed++
		mark = errorStyle.Render("✗")
		detail = Truncate(result.Error, 80)
	}

	line := fmt.Sprintf("%s %s %s %s", p.bar(index, total), mark, result.Key, dimStyle.Render(detail+" • "+FormatDuration(took)))
	if eta := p.eta(index, total); eta != "" {
		line += dimStyle.Render(" • ETA " + eta)
	}
	fmt.Fprintln(p.out, line)
}

// Summary returns the running totals
func (p *KeyProgress) Summary() (records, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records, p.failed
}

func (p *KeyProgress) bar(done, total int) string {
	if total <= 0 {
		return ""
	}
	filled := done * progressWidth / total
	return strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, progressWidth-filled)
}

// eta extrapolates from the average time per finished key
func (p *KeyProgress) eta(done, total int) string {
	if done <= 0 || done >= total {
		return ""
	}
	elapsed := p.now().Sub(p.startTime)
	perKey := elapsed / time.Duration(done)
	return FormatDuration(perKey * time.Duration(total-done))
}
