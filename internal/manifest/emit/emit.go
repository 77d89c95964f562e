// Package emit freezes validated runs into a manifest and prints the
// operator preview.
package emit

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/manifest/table"
	"github.com/nsap/bidsbatch/internal/models"
	"github.com/nsap/bidsbatch/internal/pathutil"
)

// EmitOptions configures manifest emission.
type EmitOptions struct {
	Name        string
	DatasetRoot string
	OutputRoot  string
	// TestMode keeps only the first run.
	TestMode bool
}

// Emit copies runs into a new manifest, truncated to the first run in test
// mode, and writes the preview to w. The preview is written whether or not
// the manifest is dispatched afterwards.
func Emit(runs []models.Run, columns []models.Column, opts EmitOptions, w io.Writer) (*models.Manifest, error) {
	m := Freeze(runs, columns, opts)
	if err := WritePreview(w, m); err != nil {
		return m, fmt.Errorf("failed to write preview: %w", err)
	}
	return m, nil
}

// Freeze builds the manifest without printing anything. The input slice is
// never modified or shared.
func Freeze(runs []models.Run, columns []models.Column, opts EmitOptions) *models.Manifest {
	keep := runs
	if opts.TestMode && len(keep) > 1 {
		keep = keep[:1]
	}

	frozen := make([]models.Run, len(keep))
	for i, r := range keep {
		frozen[i] = r.Clone()
	}
	return &models.Manifest{
		Name:        opts.Name,
		DatasetRoot: opts.DatasetRoot,
		OutputRoot:  opts.OutputRoot,
		TestMode:    opts.TestMode,
		Columns:     append([]models.Column(nil), columns...),
		Runs:        frozen,
	}
}

// WritePreview prints the run count, the column header, the first run, an
// ellipsis and the last run, with dataset and output roots stripped.
func WritePreview(w io.Writer, m *models.Manifest) error {
	if _, err := fmt.Fprintf(w, "number of runs: %d\n", m.JobCount()); err != nil {
		return err
	}

	header := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		header[i] = c.Name
	}
	if len(m.Runs) == 0 {
		return table.Render(w, header, nil, constants.PreviewEllipsis)
	}

	roots := previewRoots(m)
	rows := [][]string{
		previewRow(m.Runs[0], m.Columns, roots),
		{constants.PreviewEllipsis},
		previewRow(m.Runs[len(m.Runs)-1], m.Columns, roots),
	}
	return table.Render(w, header, rows, constants.PreviewEllipsis)
}

// PreviewRow returns the stripped cells of run, in column order.
func PreviewRow(m *models.Manifest, run models.Run) []string {
	return previewRow(run, m.Columns, previewRoots(m))
}

func previewRow(run models.Run, columns []models.Column, roots []string) []string {
	cells := make([]string, len(columns))
	for i, c := range columns {
		values, ok := run.Values(c.Name)
		if !ok {
			cells[i] = "-"
			continue
		}
		cells[i] = strings.Join(pathutil.StripAll(values, roots...), constants.PreviewListSeparator)
	}
	return cells
}

// previewRoots orders roots longest first so that an output root nested in
// the dataset root is stripped as a whole.
func previewRoots(m *models.Manifest) []string {
	var roots []string
	for _, r := range []string{m.DatasetRoot, m.OutputRoot} {
		if r != "" {
			roots = append(roots, r)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })
	return roots
}
