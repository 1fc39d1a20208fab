package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/opswatch/internal/history"
	"github.com/user/opswatch/internal/transcript"
	"github.com/user/opswatch/internal/types"
)

// Config bounds how much context a Runner carries between cycles.
type Config struct {
	// MaxRecords and MaxAge bound the history window loaded each cycle.
	MaxRecords int
	MaxAge     time.Duration
	// Budget is the transcript size ceiling enforced before each append.
	Budget int
}

// Runner executes monitoring cycles. Each cycle inspects a target,
// classifies the findings against recent history, persists the new
// cycle record, and appends a digest to the target's running
// transcript, pruning it first when it is over budget. The analysis of
// that transcript happens elsewhere; the runner only keeps it bounded.
type Runner struct {
	inspector types.Inspector
	source    types.RecordSource
	loader    *history.Loader
	pruner    *transcript.Pruner
	retry     *RetryPolicy
	cfg       Config

	mu          sync.Mutex
	transcripts map[string][]types.Entry
	now         func() time.Time
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(inspector types.Inspector, source types.RecordSource, loader *history.Loader, pruner *transcript.Pruner, cfg Config) *Runner {
	return &Runner{
		inspector:   inspector,
		source:      source,
		loader:      loader,
		pruner:      pruner,
		retry:       DefaultRetryPolicy(),
		cfg:         cfg,
		transcripts: make(map[string][]types.Entry),
		now:         time.Now,
	}
}

// RunCycle performs one monitoring cycle for the target.
func (r *Runner) RunCycle(ctx context.Context, target string) error {
	var findings []types.Finding
	err := r.retry.Execute(ctx, func() error {
		var inspectErr error
		findings, inspectErr = r.inspector.Inspect(ctx, target)
		return inspectErr
	})
	if err != nil {
		return fmt.Errorf("inspect %s: %w", target, err)
	}

	records, err := r.loader.LoadRecent(ctx, r.cfg.MaxRecords, r.cfg.MaxAge)
	if err != nil {
		// Degrade to an empty window; every finding classifies as new.
		slog.Warn("proceeding without cycle history", "target", target, "error", err)
		records = nil
	}
	classification := r.loader.Classify(findings, records)

	record := &types.CycleRecord{CapturedAt: r.now(), Findings: findings}
	if err := r.source.Append(ctx, record); err != nil {
		return fmt.Errorf("persist cycle record: %w", err)
	}

	r.appendDigest(target, record, classification)

	slog.Info("monitoring cycle complete",
		"target", target,
		"record_id", string(record.ID),
		"findings", len(findings),
		"new", len(classification.New),
		"recurring", len(classification.Recurring),
		"resolved", len(classification.Resolved),
		"worsening", len(classification.Worsening),
	)
	return nil
}

// Transcript returns a copy of the target's running transcript.
func (r *Runner) Transcript(target string) []types.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Entry(nil), r.transcripts[target]...)
}

// appendDigest prunes the target's transcript if it is over budget,
// then appends this cycle's findings and classification digest.
func (r *Runner) appendDigest(target string, record *types.CycleRecord, c history.Classification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.transcripts[target]
	if len(entries) == 0 {
		entries = []types.Entry{{
			Role:    types.RoleSystem,
			Content: fmt.Sprintf("You are opswatch, monitoring target %s. Cycle digests follow.", target),
		}}
	}
	if r.pruner.ShouldPrune(entries, r.cfg.Budget) {
		entries = r.pruner.Prune(entries, r.cfg.Budget)
	}

	entries = append(entries,
		types.Entry{Role: types.RoleUser, Content: r.loader.Summarize([]*types.CycleRecord{record})},
		types.Entry{Role: types.RoleAssistant, Content: formatClassification(c)},
	)
	r.transcripts[target] = entries
}

func formatClassification(c history.Classification) string {
	section := func(name string, subjects []string) string {
		if len(subjects) == 0 {
			return name + ": none"
		}
		return name + ": " + strings.Join(subjects, ", ")
	}
	return strings.Join([]string{
		section("new", c.New),
		section("recurring", c.Recurring),
		section("resolved", c.Resolved),
		section("worsening", c.Worsening),
	}, "\n")
}
