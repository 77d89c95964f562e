// Package validation checks that a set of runs forms a column-aligned
// manifest before anything is submitted.
//
// Every check runs to completion and all violations are reported together,
// along with the length of every column, so that a dataset can be fixed in
// one pass:
//   - ValidateColumns: driver column declarations (names, pairings)
//   - Validate: per-run and cross-run column lengths, distinct output dirs
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nsap/bidsbatch/internal/manifest/table"
	"github.com/nsap/bidsbatch/internal/models"
)

// ErrDuplicateOutputDir is reported when two runs would write to the same
// output directory.
var ErrDuplicateOutputDir = errors.New("duplicate output directory")

// ColumnReport is the observed length of one column.
type ColumnReport struct {
	Column string
	Kind   models.ColumnKind
	// Entries is the number of runs carrying the column.
	Entries int
	// Lengths holds the per-run list length of list columns (-1 when absent).
	Lengths []int
}

// Error aggregates every violation found in a manifest.
type Error struct {
	Runs       int
	Mismatches []*models.LengthMismatch
	Duplicates []string
	Report     []ColumnReport
}

func (e *Error) Error() string {
	var parts []string
	for _, m := range e.Mismatches {
		parts = append(parts, m.Error())
	}
	for _, d := range e.Duplicates {
		parts = append(parts, fmt.Sprintf("%v: %s", ErrDuplicateOutputDir, d))
	}
	return fmt.Sprintf("manifest validation failed (%d problem(s)): %s",
		len(parts), strings.Join(parts, "; "))
}

// Unwrap exposes every violation to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Mismatches)+1)
	for _, m := range e.Mismatches {
		errs = append(errs, m)
	}
	if len(e.Duplicates) > 0 {
		errs = append(errs, ErrDuplicateOutputDir)
	}
	return errs
}

// Diagnostic renders the violations followed by the length of every column.
func (e *Error) Diagnostic() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "number of runs: %d\n", e.Runs)
	for _, m := range e.Mismatches {
		fmt.Fprintf(&buf, "  - %s\n", m.Error())
	}
	for _, d := range e.Duplicates {
		fmt.Fprintf(&buf, "  - %v: %s\n", ErrDuplicateOutputDir, d)
	}

	rows := make([][]string, 0, len(e.Report))
	for _, r := range e.Report {
		kind, lengths := "flat", ""
		if r.Kind == models.List {
			kind = "list"
			lengths = joinInts(r.Lengths)
		}
		rows = append(rows, []string{r.Column, kind, strconv.Itoa(r.Entries), lengths})
	}
	_ = table.Render(&buf, []string{"column", "kind", "entries", "lengths"}, rows, "")
	return buf.String()
}

// ValidateColumns checks driver column declarations and returns every
// problem found.
func ValidateColumns(columns []models.Column) []string {
	var problems []string

	seen := make(map[string]models.Column, len(columns))
	for _, c := range columns {
		if c.Name == "" {
			problems = append(problems, "Column name is required")
			continue
		}
		if _, dup := seen[c.Name]; dup {
			problems = append(problems, fmt.Sprintf("Column %q is declared twice", c.Name))
		}
		seen[c.Name] = c
		if c.Count < 0 {
			problems = append(problems, fmt.Sprintf("Column %q: count must not be negative", c.Name))
		}
		if c.Kind == models.Flat && (c.PairWith != "" || c.Count != 0 || c.Uniform) {
			problems = append(problems, fmt.Sprintf("Column %q: length constraints only apply to list columns", c.Name))
		}
	}

	for _, c := range columns {
		if c.PairWith == "" {
			continue
		}
		ref, ok := seen[c.PairWith]
		switch {
		case !ok:
			msg := fmt.Sprintf("Column %q pairs with unknown column %q", c.Name, c.PairWith)
			if similar := findSimilar(c.PairWith, columns, 3); len(similar) > 0 {
				msg += ", did you mean: " + strings.Join(similar, ", ")
			}
			problems = append(problems, msg)
		case ref.Kind != models.List:
			problems = append(problems, fmt.Sprintf("Column %q pairs with flat column %q", c.Name, c.PairWith))
		case c.PairWith == c.Name:
			problems = append(problems, fmt.Sprintf("Column %q pairs with itself", c.Name))
		}
	}
	return problems
}

// Validate checks runs against columns. It returns nil or a *Error listing
// every violation; the error matches models.ErrLengthMismatch when any
// column length is wrong.
func Validate(runs []models.Run, columns []models.Column) error {
	verr := &Error{Runs: len(runs)}

	for _, col := range columns {
		report := ColumnReport{Column: col.Name, Kind: col.Kind}
		if col.Kind == models.List {
			report.Lengths = make([]int, len(runs))
		}

		for i, run := range runs {
			values, ok := run.Values(col.Name)
			if col.Kind == models.Flat {
				if ok && len(values) >= 1 && (col.Name == models.ColumnSession || len(values) == 1) {
					report.Entries++
				}
				continue
			}
			if !ok {
				report.Lengths[i] = -1
				continue
			}
			report.Entries++
			report.Lengths[i] = len(values)
		}

		if report.Entries != len(runs) {
			verr.Mismatches = append(verr.Mismatches, &models.LengthMismatch{
				Column:   col.Name,
				Expected: len(runs),
				Actual:   report.Entries,
			})
		}
		if col.Kind == models.List {
			verr.Mismatches = append(verr.Mismatches, checkRunLengths(runs, col, report.Lengths)...)
		}
		verr.Report = append(verr.Report, report)
	}

	verr.Duplicates = duplicateOutputDirs(runs)

	if len(verr.Mismatches) == 0 && len(verr.Duplicates) == 0 {
		return nil
	}
	return verr
}

func checkRunLengths(runs []models.Run, col models.Column, lengths []int) []*models.LengthMismatch {
	var out []*models.LengthMismatch
	uniform := -1

	for i, run := range runs {
		n := lengths[i]
		if n < 0 {
			continue
		}
		if col.Count > 0 && n != col.Count {
			out = append(out, &models.LengthMismatch{
				Column: col.Name, Subject: run.String(), Expected: col.Count, Actual: n,
			})
		}
		if col.Uniform {
			if uniform < 0 {
				uniform = n
			} else if n != uniform {
				out = append(out, &models.LengthMismatch{
					Column: col.Name, Subject: run.String(), Expected: uniform, Actual: n,
				})
			}
		}
		if col.PairWith != "" {
			if ref, ok := run.Values(col.PairWith); ok && len(ref) != n {
				out = append(out, &models.LengthMismatch{
					Column: col.Name, Subject: run.String(), Expected: len(ref), Actual: n,
				})
			}
		}
	}
	return out
}

func duplicateOutputDirs(runs []models.Run) []string {
	count := make(map[string]int, len(runs))
	for _, run := range runs {
		if run.OutputDir != "" {
			count[run.OutputDir]++
		}
	}
	var dups []string
	for dir, n := range count {
		if n > 1 {
			dups = append(dups, dir)
		}
	}
	sort.Strings(dups)
	return dups
}

// findSimilar suggests declared list columns close to an unknown name.
func findSimilar(name string, columns []models.Column, limit int) []string {
	var similar []string
	name = strings.ToLower(name)
	for _, c := range columns {
		if c.Kind != models.List {
			continue
		}
		candidate := strings.ToLower(c.Name)
		if strings.Contains(candidate, name) || strings.Contains(name, candidate) {
			similar = append(similar, c.Name)
			if len(similar) >= limit {
				break
			}
		}
	}
	return similar
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v < 0 {
			parts[i] = "-"
			continue
		}
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
