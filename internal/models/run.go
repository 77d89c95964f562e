// Package models defines the data structures shared by the manifest builder
// and the dispatch adapter.
package models

import (
	"fmt"
	"strconv"
)

// Built-in column names. Every manifest carries subject and output_dir;
// session and longitudinal are present for drivers that declare them.
const (
	ColumnSubject      = "subject"
	ColumnSession      = "session"
	ColumnLongitudinal = "longitudinal"
	ColumnOutputDir    = "output_dir"
)

// ColumnKind tells whether a column holds one value per Run or a list per Run.
type ColumnKind int

const (
	// Flat columns hold exactly one value per Run.
	Flat ColumnKind = iota
	// List columns hold a list of values per Run (e.g. one file per session,
	// or two diffusion volumes acquired with opposite phase encoding).
	List
)

// Column describes one manifest column.
type Column struct {
	Name string
	Kind ColumnKind

	// PairWith names the reference column this list must match in length
	// within the same Run (e.g. "pe" pairs with "dwi").
	PairWith string

	// Count is the exact list length required in every Run (0 = any).
	Count int

	// Uniform requires the same list length in every Run.
	Uniform bool
}

// SelectedFile is the single path chosen for one (subject, session, modality) slot.
type SelectedFile struct {
	Path    string
	Subject string
	Session string
	Slot    string
}

// Run is one unit of work: the selected inputs for a subject (and, for
// session-grouped drivers, one of its sessions).
type Run struct {
	Subject      string
	Sessions     []string
	OutputDir    string
	Longitudinal bool

	// Lists holds list-valued attribute columns keyed by column name.
	Lists map[string][]string
}

// NewRun creates an empty run for a subject.
func NewRun(subject string) Run {
	return Run{
		Subject: subject,
		Lists:   make(map[string][]string),
	}
}

// Append adds values to a list column.
func (r *Run) Append(column string, values ...string) {
	if r.Lists == nil {
		r.Lists = make(map[string][]string)
	}
	r.Lists[column] = append(r.Lists[column], values...)
}

// Values returns the values of a column for this run. Flat columns yield a
// single element; ok is false when the run has no such attribute.
func (r Run) Values(column string) (values []string, ok bool) {
	switch column {
	case ColumnSubject:
		return []string{r.Subject}, r.Subject != ""
	case ColumnOutputDir:
		return []string{r.OutputDir}, r.OutputDir != ""
	case ColumnLongitudinal:
		return []string{strconv.FormatBool(r.Longitudinal)}, true
	case ColumnSession:
		return r.Sessions, len(r.Sessions) > 0
	}
	values, ok = r.Lists[column]
	return values, ok
}

// Clone returns a deep copy so that a frozen manifest never shares slices
// with the scanner.
func (r Run) Clone() Run {
	c := Run{
		Subject:      r.Subject,
		Sessions:     append([]string(nil), r.Sessions...),
		OutputDir:    r.OutputDir,
		Longitudinal: r.Longitudinal,
		Lists:        make(map[string][]string, len(r.Lists)),
	}
	for k, v := range r.Lists {
		c.Lists[k] = append([]string(nil), v...)
	}
	return c
}

// String identifies the run in logs.
func (r Run) String() string {
	if len(r.Sessions) == 1 {
		return r.Subject + "/" + r.Sessions[0]
	}
	return r.Subject
}

// Skip records a subject or session left out of the manifest.
// Session is empty when the whole subject was skipped.
type Skip struct {
	Subject string
	Session string
	Reason  string
	Err     error
}

func (s Skip) String() string {
	where := s.Subject
	if s.Session != "" {
		where += "/" + s.Session
	}
	if s.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", where, s.Reason, s.Err)
	}
	return fmt.Sprintf("%s: %s", where, s.Reason)
}

// Manifest is the validated, column-aligned table of runs handed to the
// dispatcher. It is never mutated once built.
type Manifest struct {
	Name        string
	DatasetRoot string
	OutputRoot  string
	TestMode    bool
	Columns     []Column
	Runs        []Run
}

// JobCount returns the number of jobs the manifest describes.
func (m *Manifest) JobCount() int {
	return len(m.Runs)
}

// Column returns the descriptor for name.
func (m *Manifest) Column(name string) (Column, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnValues returns one entry per run for a column.
func (m *Manifest) ColumnValues(name string) ([][]string, error) {
	out := make([][]string, len(m.Runs))
	for i, run := range m.Runs {
		v, ok := run.Values(name)
		if !ok {
			return nil, fmt.Errorf("run %d (%s) has no %q attribute", i, run, name)
		}
		out[i] = v
	}
	return out, nil
}

// JobSubmission is one manifest row translated into a command line.
type JobSubmission struct {
	Index     int
	Subject   string
	OutputDir string
	Args      []string
}
