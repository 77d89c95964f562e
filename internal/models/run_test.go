package models

import (
	"errors"
	"testing"
)

func TestRunValues_BuiltinColumns(t *testing.T) {
	run := NewRun("sub-01")
	run.Sessions = []string{"ses-M00", "ses-M03"}
	run.OutputDir = "/out/cat12vbm/sub-01"
	run.Longitudinal = true
	run.Append("anatomical", "/data/a.nii.gz", "/data/b.nii.gz")

	tests := []struct {
		column string
		want   []string
		ok     bool
	}{
		{ColumnSubject, []string{"sub-01"}, true},
		{ColumnSession, []string{"ses-M00", "ses-M03"}, true},
		{ColumnOutputDir, []string{"/out/cat12vbm/sub-01"}, true},
		{ColumnLongitudinal, []string{"true"}, true},
		{"anatomical", []string{"/data/a.nii.gz", "/data/b.nii.gz"}, true},
		{"dwi", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got, ok := run.Values(tt.column)
			if ok != tt.ok {
				t.Fatalf("Values(%q) ok = %v, want %v", tt.column, ok, tt.ok)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Values(%q) = %v, want %v", tt.column, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Values(%q)[%d] = %q, want %q", tt.column, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRunClone_DoesNotShareSlices(t *testing.T) {
	run := NewRun("sub-01")
	run.Sessions = []string{"ses-M00"}
	run.Append("anatomical", "a")

	clone := run.Clone()
	clone.Sessions[0] = "changed"
	clone.Lists["anatomical"][0] = "changed"

	if run.Sessions[0] != "ses-M00" {
		t.Errorf("clone shares Sessions with original")
	}
	if run.Lists["anatomical"][0] != "a" {
		t.Errorf("clone shares Lists with original")
	}
}

func TestManifestColumnValues_MissingAttribute(t *testing.T) {
	a := NewRun("sub-01")
	a.Append("dwi", "x")
	b := NewRun("sub-02")

	m := &Manifest{Runs: []Run{a, b}}
	if _, err := m.ColumnValues("dwi"); err == nil {
		t.Error("expected error for run without dwi attribute")
	}
	if got := m.JobCount(); got != 2 {
		t.Errorf("JobCount() = %d, want 2", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	sel := &SelectionError{Slot: "anat", Candidates: []string{"a", "b"}, Err: ErrAmbiguousSelection}
	if !errors.Is(sel, ErrAmbiguousSelection) {
		t.Error("SelectionError should unwrap to ErrAmbiguousSelection")
	}

	sc := &SidecarError{Path: "x.json", Err: errors.New("unexpected EOF")}
	if !errors.Is(sc, ErrSidecarDecode) {
		t.Error("SidecarError should match ErrSidecarDecode")
	}

	lm := &LengthMismatch{Column: "dwi", Expected: 2, Actual: 3}
	if !errors.Is(lm, ErrLengthMismatch) {
		t.Error("LengthMismatch should match ErrLengthMismatch")
	}

	je := &JobError{Index: 1, ExitCode: 2}
	if !errors.Is(je, ErrDispatchFailure) {
		t.Error("JobError should match ErrDispatchFailure")
	}
}
