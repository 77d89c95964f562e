package pattern

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, r)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		bindings Bindings
		want     string
		wantErr  bool
	}{
		{
			name:     "Subject and session",
			template: "{subject}_{session}_*T1w.nii.gz",
			bindings: Bindings{Subject: "sub-01", Session: "ses-M00"},
			want:     "sub-01_ses-M00_*T1w.nii.gz",
		},
		{
			name:     "Suffix",
			template: "**/{subject}_{session}_*_dwi.{suffix}",
			bindings: Bindings{Subject: "sub-01", Session: "ses-M00", Suffix: "bvec"},
			want:     "**/sub-01_ses-M00_*_dwi.bvec",
		},
		{
			name:     "Alternation braces kept",
			template: "{subject}_T1w.{nii,nii.gz}",
			bindings: Bindings{Subject: "sub-01"},
			want:     "sub-01_T1w.{nii,nii.gz}",
		},
		{
			name:     "Unbound session",
			template: "{subject}_{session}_T1w.nii.gz",
			bindings: Bindings{Subject: "sub-01"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.template, tt.bindings)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"sub-01/ses-M00/dwi/sub-01_ses-M00_acq-DWI_run-2_dwi.bvec",
		"sub-01/ses-M00/dwi/sub-01_ses-M00_acq-DWI_run-1_dwi.bvec",
		"sub-01/ses-M00/dwi/sub-01_ses-M00_acq-DWI_run-1_dwi.bval",
		"sub-01/ses-M03/dwi/sub-01_ses-M03_acq-DWI_run-1_dwi.bvec",
	)
	dir := filepath.Join(root, "sub-01", "ses-M00")

	got, err := Match(dir, "**/{subject}_{session}_acq-DWI*_run-*_dwi.{suffix}", Bindings{
		Subject: "sub-01", Session: "ses-M00", Suffix: "bvec",
	})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	want := []string{
		filepath.Join(dir, "dwi", "sub-01_ses-M00_acq-DWI_run-1_dwi.bvec"),
		filepath.Join(dir, "dwi", "sub-01_ses-M00_acq-DWI_run-2_dwi.bvec"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Match() mismatch (-want +got):\n%s", diff)
	}
}

func TestMatch_NoMatchIsEmpty(t *testing.T) {
	root := t.TempDir()
	got, err := Match(root, "{subject}_T1w.nii.gz", Bindings{Subject: "sub-99"})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Match() = %v, want empty", got)
	}
}

func TestMatch_Errors(t *testing.T) {
	root := t.TempDir()
	if _, err := Match(root, "{subject}_{session}.nii", Bindings{Subject: "sub-01"}); err == nil {
		t.Error("expected unbound placeholder error")
	}
	if _, err := Match(root, "sub-01_[T1w.nii", Bindings{}); err == nil {
		t.Error("expected bad pattern error")
	}
}

func TestMatch_RootWithGlobMetacharacters(t *testing.T) {
	root := filepath.Join(t.TempDir(), "study[2023]", "{raw}*")
	touch(t, root, "sub-01/ses-M00/anat/sub-01_ses-M00_T1w.nii.gz")
	dir := filepath.Join(root, "sub-01", "ses-M00", "anat")

	got, err := Match(dir, "{subject}_{session}_*T1w.nii.gz", Bindings{Subject: "sub-01", Session: "ses-M00"})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	want := []string{filepath.Join(dir, "sub-01_ses-M00_T1w.nii.gz")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Match() mismatch (-want +got):\n%s", diff)
	}
}

func TestMatch_MissingRootIsEmpty(t *testing.T) {
	got, err := Match(filepath.Join(t.TempDir(), "absent"), "*T1w.nii.gz", Bindings{})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Match() = %v, want empty", got)
	}
}
