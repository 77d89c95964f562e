package dispatch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsap/bidsbatch/internal/models"
)

func testManifest() *models.Manifest {
	a := models.NewRun("sub-01")
	a.Sessions = []string{"ses-M0", "ses-M24"}
	a.Longitudinal = true
	a.OutputDir = "/out/cat12vbm/sub-01"
	a.Append("anatomical", "/data/sub-01/ses-M0/anat/T1w.nii.gz", "/data/sub-01/ses-M24/anat/T1w.nii.gz")

	b := models.NewRun("sub-02")
	b.Sessions = []string{"ses-M0"}
	b.OutputDir = "/out/cat12vbm/sub-02"
	b.Append("anatomical", "/data/sub-02/ses-M0/anat/T1w.nii.gz")

	return &models.Manifest{
		Name: "cat12vbm",
		Columns: []models.Column{
			{Name: models.ColumnSubject},
			{Name: models.ColumnOutputDir},
			{Name: models.ColumnLongitudinal},
			{Name: "anatomical", Kind: models.List},
		},
		Runs: []models.Run{a, b},
	}
}

func TestCommandTemplate_Build(t *testing.T) {
	tmpl := CommandTemplate{
		Command:     []string{"singularity", "run", "brainprep.simg", "brainprep", "cat12vbm"},
		NameReplace: true,
		Params: []Param{
			{Name: "anatomical", Column: "anatomical"},
			{Name: "outdir", Column: models.ColumnOutputDir},
			{Name: "longitudinal", Column: models.ColumnLongitudinal},
			{Name: "model_long", Value: "1"},
			{Name: "tpm", Value: ""},
		},
	}

	jobs, err := tmpl.Build(testManifest())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	want := []models.JobSubmission{
		{
			Index:     0,
			Subject:   "sub-01",
			OutputDir: "/out/cat12vbm/sub-01",
			Args: []string{
				"singularity", "run", "brainprep.simg", "brainprep", "cat12vbm",
				"--anatomical", "/data/sub-01/ses-M0/anat/T1w.nii.gz", "/data/sub-01/ses-M24/anat/T1w.nii.gz",
				"--outdir", "/out/cat12vbm/sub-01",
				"--longitudinal",
				"--model-long", "1",
			},
		},
		{
			Index:     1,
			Subject:   "sub-02/ses-M0",
			OutputDir: "/out/cat12vbm/sub-02",
			Args: []string{
				"singularity", "run", "brainprep.simg", "brainprep", "cat12vbm",
				"--anatomical", "/data/sub-02/ses-M0/anat/T1w.nii.gz",
				"--outdir", "/out/cat12vbm/sub-02",
				"--model-long", "1",
			},
		},
	}
	if diff := cmp.Diff(want, jobs); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandTemplate_Join(t *testing.T) {
	tmpl := CommandTemplate{
		Command: []string{"run"},
		Params:  []Param{{Name: "anatomical", Column: "anatomical", Join: ","}},
	}
	jobs, err := tmpl.Build(testManifest())
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "--anatomical",
		"/data/sub-01/ses-M0/anat/T1w.nii.gz,/data/sub-01/ses-M24/anat/T1w.nii.gz"}, jobs[0].Args)
}

func TestCommandTemplate_UnknownColumn(t *testing.T) {
	tmpl := CommandTemplate{
		Command: []string{"run"},
		Params:  []Param{{Name: "dwi", Column: "dwi"}},
	}
	_, err := tmpl.Build(testManifest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parameter "dwi"`)
}

func TestCommandTemplate_Validate(t *testing.T) {
	tests := []struct {
		name string
		tmpl CommandTemplate
		want int
	}{
		{
			name: "valid",
			tmpl: CommandTemplate{Command: []string{"run"}, Params: []Param{{Name: "a", Column: "subject"}}},
			want: 0,
		},
		{
			name: "missing command",
			tmpl: CommandTemplate{},
			want: 1,
		},
		{
			name: "duplicate and unnamed",
			tmpl: CommandTemplate{Command: []string{"run"}, Params: []Param{{Name: "a"}, {Name: "a"}, {}}},
			want: 2,
		},
		{
			name: "column and value",
			tmpl: CommandTemplate{Command: []string{"run"}, Params: []Param{{Name: "a", Column: "c", Value: "v"}}},
			want: 1,
		},
		{
			name: "bad boolean constant",
			tmpl: CommandTemplate{Command: []string{"run"}, Params: []Param{{Name: "a", Value: "maybe", Bool: true}}},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := tt.tmpl.Validate()
			assert.Len(t, problems, tt.want, "problems: %v", problems)
		})
	}
}

func TestCommandTemplate_BuildRejectsInvalid(t *testing.T) {
	_, err := CommandTemplate{}.Build(testManifest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid command template")
}

func TestCommandTemplate_RequiredConstant(t *testing.T) {
	tmpl := CommandTemplate{
		Command: []string{"run"},
		Params:  []Param{{Name: "template_dir", Required: true}},
	}
	_, err := tmpl.Build(testManifest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parameter "template_dir" requires a value`)

	tmpl.Params[0].Value = "/opt/fsaverage_sym"
	jobs, err := tmpl.Build(testManifest())
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "--template_dir", "/opt/fsaverage_sym"}, jobs[0].Args)
}
