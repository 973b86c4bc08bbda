// Package export writes run results to files. The engine's output
// contract is the in-memory RunSummary; these writers are the CLI's
// persistence of it.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"vmtag/perm-engine/pkg/types"
)

// CSVConfig configures the error-report writer.
type CSVConfig struct {
	// Delimiter is the field delimiter (default comma).
	Delimiter rune
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// DefaultCSVConfig returns the default error-report configuration.
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{
		Delimiter:     ',',
		IncludeHeader: true,
	}
}

var csvHeader = []string{"timestamp", "target", "operation", "worker_id", "category", "retry_count", "message"}

// WriteErrorCSV writes the run's error records to a CSV file. An empty
// error list still produces the header so downstream tooling sees a
// well-formed file.
func WriteErrorCSV(path string, records []types.ErrorRecord, cfg CSVConfig) error {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create error report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = cfg.Delimiter

	if cfg.IncludeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			rec.TargetName,
			string(rec.Operation),
			strconv.Itoa(rec.WorkerID),
			string(rec.Category),
			strconv.Itoa(rec.RetryCount),
			rec.Message,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
