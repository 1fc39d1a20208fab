// internal/transcript/pruner.go
package transcript

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/user/opswatch/internal/types"
)

// pruneTriggerRatio makes pruning fire before hard overflow rather than
// after it.
const pruneTriggerRatio = 0.8

// Config controls what Prune retains besides system entries.
type Config struct {
	// PriorityKeywords keep any entry whose content contains one of
	// them, case-insensitively.
	PriorityKeywords []string
	// RecentEntries is how many trailing non-system entries survive
	// regardless of keywords.
	RecentEntries int
	// MaxEntries caps the non-system entries in the pruned result,
	// preferring more recent ones.
	MaxEntries int
}

// DefaultConfig returns the retention heuristics used when the
// embedding process supplies none.
func DefaultConfig() Config {
	return Config{
		PriorityKeywords: []string{"error", "critical", "crashloop", "oom"},
		RecentEntries:    10,
		MaxEntries:       50,
	}
}

// Pruner keeps an append-only transcript under a size budget while
// preferentially retaining important entries. It is stateless apart
// from configuration; concurrent callers need no synchronization.
type Pruner struct {
	estimator SizeEstimator
	cfg       Config
}

// NewPruner creates a Pruner using the given estimator. Zero Config
// fields fall back to DefaultConfig values.
func NewPruner(estimator SizeEstimator, cfg Config) *Pruner {
	def := DefaultConfig()
	if cfg.PriorityKeywords == nil {
		cfg.PriorityKeywords = def.PriorityKeywords
	}
	if cfg.RecentEntries <= 0 {
		cfg.RecentEntries = def.RecentEntries
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &Pruner{estimator: estimator, cfg: cfg}
}

// EstimateSize returns the estimated cost of the whole transcript.
func (p *Pruner) EstimateSize(entries []types.Entry) int {
	total := 0
	for _, e := range entries {
		total += p.estimator.Estimate(e.Content)
	}
	return total
}

// ShouldPrune reports whether the transcript has crossed the trigger
// threshold of the budget.
func (p *Pruner) ShouldPrune(entries []types.Entry, budget int) bool {
	return float64(p.EstimateSize(entries)) > pruneTriggerRatio*float64(budget)
}

// Prune returns a reduced transcript: every system entry, plus the
// union of keyword-matching and most-recent non-system entries, capped
// at MaxEntries with more recent entries winning. Original order is
// preserved. Pruning is a heuristic; when it cannot reduce the
// transcript it returns the best-effort result rather than failing, and
// an already-under-budget transcript comes back unchanged.
func (p *Pruner) Prune(entries []types.Entry, budget int) []types.Entry {
	if !p.ShouldPrune(entries, budget) {
		return entries
	}

	// Entries are identified by their index in the transcript, a
	// stable key that deduplicates the keyword and recency sets even
	// when two entries carry identical content.
	keep := make(map[int]bool)
	var nonSystem []int
	for i, e := range entries {
		if e.Role == types.RoleSystem {
			keep[i] = true
			continue
		}
		nonSystem = append(nonSystem, i)
		if p.matchesKeyword(e.Content) {
			keep[i] = true
		}
	}

	recentFrom := len(nonSystem) - p.cfg.RecentEntries
	if recentFrom < 0 {
		recentFrom = 0
	}
	for _, i := range nonSystem[recentFrom:] {
		keep[i] = true
	}

	// Cap non-system survivors, dropping the oldest first.
	var kept []int
	for i := range keep {
		if entries[i].Role != types.RoleSystem {
			kept = append(kept, i)
		}
	}
	sort.Ints(kept)
	for len(kept) > p.cfg.MaxEntries {
		delete(keep, kept[0])
		kept = kept[1:]
	}

	pruned := make([]types.Entry, 0, len(keep))
	for i, e := range entries {
		if keep[i] {
			pruned = append(pruned, e)
		}
	}

	if p.EstimateSize(pruned) >= p.EstimateSize(entries) {
		slog.Warn("transcript prune achieved no reduction",
			"entries", len(entries), "estimated", p.EstimateSize(entries), "budget", budget)
	}
	return pruned
}

func (p *Pruner) matchesKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range p.cfg.PriorityKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
