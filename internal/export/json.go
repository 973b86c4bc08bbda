package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vmtag/perm-engine/pkg/types"
)

// WriteSummaryJSON writes the run summary, including its error records,
// as pretty-printed JSON.
func WriteSummaryJSON(path string, summary *types.RunSummary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
