// internal/history/loader.go
package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/user/opswatch/internal/types"
)

// summarizeFindingLimit caps how many findings Summarize prints per
// record before collapsing the tail into a "+N more" marker.
const summarizeFindingLimit = 5

// TrendPolicy decides when a recurring subject counts as worsening: the
// subject must appear in at least Threshold of the Window most recent
// records. The defaults (2 of 3) favor persistent problems over single
// noisy blips.
type TrendPolicy struct {
	Window    int
	Threshold int
}

// DefaultTrendPolicy returns the 2-of-3 worsening rule.
func DefaultTrendPolicy() TrendPolicy {
	return TrendPolicy{Window: 3, Threshold: 2}
}

// Classification groups the subjects of current findings against the
// subjects seen in loaded records. Slices are sorted for stable output.
type Classification struct {
	New       []string `json:"new"`
	Recurring []string `json:"recurring"`
	Resolved  []string `json:"resolved"`
	Worsening []string `json:"worsening"`
}

// Loader produces bounded, age-filtered views of past cycle records and
// classifies current findings against them. It holds no mutable state
// of its own; every method is a pure function of its inputs plus the
// configured trend policy.
type Loader struct {
	source types.RecordSource
	policy TrendPolicy
	now    func() time.Time
}

// NewLoader creates a Loader over the given record source.
func NewLoader(source types.RecordSource, policy TrendPolicy) *Loader {
	if policy.Window <= 0 || policy.Threshold <= 0 {
		policy = DefaultTrendPolicy()
	}
	return &Loader{source: source, policy: policy, now: time.Now}
}

// LoadRecent returns up to maxCount records captured within maxAge,
// newest first. Per-record parse failures are the source's concern and
// never abort the batch; only a failure to read the source at all is an
// error.
func (l *Loader) LoadRecent(ctx context.Context, maxCount int, maxAge time.Duration) ([]*types.CycleRecord, error) {
	records, err := l.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cycle records: %w", err)
	}

	now := l.now()
	recent := make([]*types.CycleRecord, 0, len(records))
	for _, record := range records {
		if now.Sub(record.CapturedAt) > maxAge {
			continue
		}
		recent = append(recent, record)
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].CapturedAt.After(recent[j].CapturedAt)
	})
	if maxCount >= 0 && len(recent) > maxCount {
		recent = recent[:maxCount]
	}
	return recent, nil
}

// Summarize renders a compact digest of the records: identifier,
// status, and up to five leading findings each.
func (l *Loader) Summarize(records []*types.CycleRecord) string {
	if len(records) == 0 {
		return "No prior cycles recorded."
	}

	var b strings.Builder
	for _, record := range records {
		fmt.Fprintf(&b, "%s [%s] %d finding(s)", record.ID, record.Status, len(record.Findings))
		limit := len(record.Findings)
		if limit > summarizeFindingLimit {
			limit = summarizeFindingLimit
		}
		for _, f := range record.Findings[:limit] {
			fmt.Fprintf(&b, "\n  - %s (%s): %s", f.Subject, f.Severity, f.Description)
		}
		if extra := len(record.Findings) - limit; extra > 0 {
			fmt.Fprintf(&b, "\n  ... +%d more", extra)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Classify compares the subjects in current findings against the
// subjects seen across records. With no records everything current is
// new; there is nothing to compare against.
func (l *Loader) Classify(current []types.Finding, records []*types.CycleRecord) Classification {
	currentSubjects := make(map[string]bool, len(current))
	for _, f := range current {
		currentSubjects[f.Subject] = true
	}

	pastSubjects := make(map[string]bool)
	for _, record := range records {
		for _, f := range record.Findings {
			pastSubjects[f.Subject] = true
		}
	}

	var c Classification
	for subject := range currentSubjects {
		if pastSubjects[subject] {
			c.Recurring = append(c.Recurring, subject)
		} else {
			c.New = append(c.New, subject)
		}
	}
	for subject := range pastSubjects {
		if !currentSubjects[subject] {
			c.Resolved = append(c.Resolved, subject)
		}
	}

	// Worsening: recurring subjects seen in at least Threshold of the
	// Window most recent records.
	window := sortedByRecency(records)
	if len(window) > l.policy.Window {
		window = window[:l.policy.Window]
	}
	for _, subject := range c.Recurring {
		count := 0
		for _, record := range window {
			for _, f := range record.Findings {
				if f.Subject == subject {
					count++
					break
				}
			}
		}
		if count >= l.policy.Threshold {
			c.Worsening = append(c.Worsening, subject)
		}
	}

	sort.Strings(c.New)
	sort.Strings(c.Recurring)
	sort.Strings(c.Resolved)
	sort.Strings(c.Worsening)
	return c
}

// sortedByRecency returns a newest-first copy without mutating the
// caller's slice; loaded records are treated as immutable.
func sortedByRecency(records []*types.CycleRecord) []*types.CycleRecord {
	out := append([]*types.CycleRecord(nil), records...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	return out
}
