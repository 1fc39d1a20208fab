package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/opswatch/internal/history"
	"github.com/user/opswatch/internal/transcript"
	"github.com/user/opswatch/internal/types"
)

// stubInspector returns a scripted findings sequence, one element per
// cycle, repeating the last element when exhausted.
type stubInspector struct {
	mu     sync.Mutex
	script [][]types.Finding
	calls  int
	err    error
}

func (s *stubInspector) Inspect(_ context.Context, _ string) ([]types.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return s.script[i], nil
}

func degradedFindings(subjects ...string) []types.Finding {
	out := make([]types.Finding, 0, len(subjects))
	for _, subj := range subjects {
		out = append(out, types.Finding{Subject: subj, Severity: "warning", Description: subj + " degraded"})
	}
	return out
}

func newTestRunner(t *testing.T, inspector types.Inspector) (*Runner, *history.RecordStore) {
	t.Helper()
	store := history.NewRecordStore(t.TempDir())
	loader := history.NewLoader(store, history.DefaultTrendPolicy())
	pruner := transcript.NewPruner(transcript.CharEstimator{}, transcript.Config{
		RecentEntries: 4,
		MaxEntries:    10,
	})
	runner := NewRunner(inspector, store, loader, pruner, Config{
		MaxRecords: 5,
		MaxAge:     24 * time.Hour,
		Budget:     10000,
	})
	return runner, store
}

func TestRunCyclePersistsRecordAndDigest(t *testing.T) {
	inspector := &stubInspector{script: [][]types.Finding{
		degradedFindings("mysql"),
	}}
	runner, store := newTestRunner(t, inspector)
	ctx := context.Background()

	if err := runner.RunCycle(ctx, "api-cluster"); err != nil {
		t.Fatal(err)
	}

	records, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(records))
	}
	if records[0].Status != types.StatusDegraded {
		t.Errorf("expected degraded record, got %s", records[0].Status)
	}

	entries := runner.Transcript("api-cluster")
	if len(entries) != 3 {
		t.Fatalf("expected system + user + assistant entries, got %d", len(entries))
	}
	if entries[0].Role != types.RoleSystem {
		t.Errorf("expected leading system entry, got %s", entries[0].Role)
	}
	if !strings.Contains(entries[2].Content, "new: mysql") {
		t.Errorf("first cycle should classify mysql as new, got:\n%s", entries[2].Content)
	}
}

func TestRunCycleTrendsAcrossCycles(t *testing.T) {
	inspector := &stubInspector{script: [][]types.Finding{
		degradedFindings("mysql"),
		degradedFindings("mysql"),
		degradedFindings("mysql", "redis"),
	}}
	runner, _ := newTestRunner(t, inspector)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		// Capture times must differ for recency ordering.
		base := time.Now().Add(time.Duration(i) * time.Second)
		runner.now = func() time.Time { return base }
		if err := runner.RunCycle(ctx, "api-cluster"); err != nil {
			t.Fatal(err)
		}
	}

	entries := runner.Transcript("api-cluster")
	last := entries[len(entries)-1].Content
	if !strings.Contains(last, "worsening: mysql") {
		t.Errorf("mysql in 2 prior cycles should be worsening, got:\n%s", last)
	}
	if !strings.Contains(last, "new: redis") {
		t.Errorf("redis should be new, got:\n%s", last)
	}
}

func TestRunCycleResolvedSubjects(t *testing.T) {
	inspector := &stubInspector{script: [][]types.Finding{
		degradedFindings("mysql"),
		{},
	}}
	runner, _ := newTestRunner(t, inspector)
	ctx := context.Background()

	if err := runner.RunCycle(ctx, "api-cluster"); err != nil {
		t.Fatal(err)
	}
	if err := runner.RunCycle(ctx, "api-cluster"); err != nil {
		t.Fatal(err)
	}

	entries := runner.Transcript("api-cluster")
	last := entries[len(entries)-1].Content
	if !strings.Contains(last, "resolved: mysql") {
		t.Errorf("mysql absent from current findings should be resolved, got:\n%s", last)
	}
}

func TestRunCycleInspectorFailure(t *testing.T) {
	inspector := &stubInspector{err: errors.New("invalid credentials")}
	runner, store := newTestRunner(t, inspector)
	ctx := context.Background()

	if err := runner.RunCycle(ctx, "api-cluster"); err == nil {
		t.Fatal("expected inspect error")
	}
	records, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("failed cycle must not persist a record, got %d", len(records))
	}
	if len(runner.Transcript("api-cluster")) != 0 {
		t.Error("failed cycle must not touch the transcript")
	}
}

func TestRunCyclePrunesTranscript(t *testing.T) {
	inspector := &stubInspector{script: [][]types.Finding{
		degradedFindings("mysql", "redis", "postgresql"),
	}}
	store := history.NewRecordStore(t.TempDir())
	loader := history.NewLoader(store, history.DefaultTrendPolicy())
	pruner := transcript.NewPruner(transcript.CharEstimator{}, transcript.Config{
		RecentEntries: 2,
		MaxEntries:    4,
	})
	runner := NewRunner(inspector, store, loader, pruner, Config{
		MaxRecords: 5,
		MaxAge:     24 * time.Hour,
		Budget:     60,
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := runner.RunCycle(ctx, "api-cluster"); err != nil {
			t.Fatal(err)
		}
	}

	entries := runner.Transcript("api-cluster")
	if entries[0].Role != types.RoleSystem {
		t.Fatalf("system entry lost after pruning: %+v", entries[0])
	}
	nonSystem := 0
	for _, e := range entries {
		if e.Role != types.RoleSystem {
			nonSystem++
		}
	}
	// Pruning runs before each append, so the transcript may carry at
	// most the ceiling plus the freshly appended pair.
	if nonSystem > 4+2 {
		t.Errorf("transcript grew unbounded: %d non-system entries", nonSystem)
	}
}
