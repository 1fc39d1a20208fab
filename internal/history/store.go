// internal/history/store.go
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/opswatch/internal/types"
)

// RecordStore is a JSONL-backed append-only store of cycle records, one
// record per line in history/cycles.jsonl under the data root.
type RecordStore struct {
	root string
	mu   sync.Mutex
}

// NewRecordStore creates a file-backed RecordStore rooted at the given
// directory.
func NewRecordStore(root string) *RecordStore {
	return &RecordStore{root: root}
}

func (s *RecordStore) recordsPath() string {
	return filepath.Join(s.root, "history", "cycles.jsonl")
}

// Append writes one cycle record to the log. The record's ID and Status
// are derived from the capture time and findings when unset; records
// are never rewritten after this point.
func (s *RecordStore) Append(_ context.Context, record *types.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = types.NewRecordID(record.CapturedAt)
	}
	if record.Status == "" {
		record.Status = types.StatusHealthy
		if len(record.Findings) > 0 {
			record.Status = types.StatusDegraded
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.recordsPath()), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal cycle record: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.recordsPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append cycle record: %w", err)
	}
	return nil
}

// Load reads every parseable record, oldest first. Malformed lines are
// skipped with a warning; a corrupt entry never poisons the batch.
func (s *RecordStore) Load(_ context.Context) ([]*types.CycleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.recordsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.CycleRecord{}, nil
		}
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()

	var records []*types.CycleRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record types.CycleRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			slog.Warn("skipping malformed cycle record", "line", line, "error", err)
			continue
		}
		records = append(records, &record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records file: %w", err)
	}
	if records == nil {
		records = []*types.CycleRecord{}
	}
	return records, nil
}
