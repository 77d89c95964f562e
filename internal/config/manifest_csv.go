package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/models"
)

// SaveManifestCSV writes one row per run: the batch id, the run index and
// every manifest column, list values joined with ";". The file is an audit
// artifact and is never read back.
func SaveManifestCSV(path string, m *models.Manifest, batchID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"batch_id", "index"}
	for _, c := range m.Columns {
		header = append(header, c.Name)
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, run := range m.Runs {
		row := []string{batchID, fmt.Sprint(i)}
		for _, c := range m.Columns {
			values, ok := run.Values(c.Name)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strings.Join(values, constants.ManifestListSeparator))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write run row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write manifest CSV: %w", err)
	}
	return file.Close()
}
