package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/opswatch/internal/types"
)

// FileInspector reads a target's current findings from
// findings/<target>.json under the data root. External collection
// tooling owns writing those files; this boundary only consumes them.
// A missing file means a clean cycle, not an error.
type FileInspector struct {
	root string
}

// NewFileInspector creates a FileInspector rooted at the given data
// directory.
func NewFileInspector(root string) *FileInspector {
	return &FileInspector{root: root}
}

func (i *FileInspector) findingsPath(target string) string {
	return filepath.Join(i.root, "findings", target+".json")
}

// Inspect returns the findings currently reported for the target.
func (i *FileInspector) Inspect(_ context.Context, target string) ([]types.Finding, error) {
	data, err := os.ReadFile(i.findingsPath(target))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Finding{}, nil
		}
		return nil, fmt.Errorf("read findings for %s: %w", target, err)
	}

	var findings []types.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("invalid findings file for %s: %w", target, err)
	}
	return findings, nil
}
