package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsap/bidsbatch/internal/models"
)

var dwiColumns = []models.Column{
	{Name: models.ColumnSubject, Kind: models.Flat},
	{Name: models.ColumnOutputDir, Kind: models.Flat},
	{Name: "dwi", Kind: models.List, Count: 2},
	{Name: "pe", Kind: models.List, PairWith: "dwi"},
	{Name: "readout_time", Kind: models.List, PairWith: "dwi"},
}

func dwiRun(subject string, n int) models.Run {
	r := models.NewRun(subject)
	r.OutputDir = "/out/dmriprep/" + subject
	for i := 0; i < n; i++ {
		r.Append("dwi", subject+"_dwi.nii.gz")
		r.Append("pe", "j")
		r.Append("readout_time", "0.05")
	}
	return r
}

func TestValidate_Accepts(t *testing.T) {
	runs := []models.Run{dwiRun("sub-01", 2), dwiRun("sub-02", 2)}
	require.NoError(t, Validate(runs, dwiColumns))
}

func TestValidate_DiffusionCountMismatch(t *testing.T) {
	runs := []models.Run{dwiRun("sub-01", 2), dwiRun("sub-02", 3), dwiRun("sub-03", 2)}

	err := Validate(runs, dwiColumns)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrLengthMismatch))

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Mismatches, 1)
	m := verr.Mismatches[0]
	assert.Equal(t, "dwi", m.Column)
	assert.Equal(t, "sub-02", m.Subject)
	assert.Equal(t, 2, m.Expected)
	assert.Equal(t, 3, m.Actual)

	diag := verr.Diagnostic()
	assert.Contains(t, diag, "number of runs: 3")
	assert.Contains(t, diag, "2,3,2")
	for _, col := range []string{"subject", "output_dir", "dwi", "pe", "readout_time"} {
		assert.Contains(t, diag, col)
	}
}

func TestValidate_PairedColumns(t *testing.T) {
	run := dwiRun("sub-01", 2)
	run.Lists["readout_time"] = run.Lists["readout_time"][:1]

	err := Validate([]models.Run{run}, dwiColumns)
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Mismatches, 1)
	assert.Equal(t, "readout_time", verr.Mismatches[0].Column)
	assert.Equal(t, 2, verr.Mismatches[0].Expected)
	assert.Equal(t, 1, verr.Mismatches[0].Actual)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	a := dwiRun("sub-01", 2)
	b := dwiRun("sub-02", 1)
	delete(b.Lists, "pe")
	c := dwiRun("sub-03", 2)
	c.OutputDir = a.OutputDir

	err := Validate([]models.Run{a, b, c}, dwiColumns)
	var verr *Error
	require.True(t, errors.As(err, &verr))

	var columns []string
	for _, m := range verr.Mismatches {
		columns = append(columns, m.Column)
	}
	// pe is missing from one run; dwi has the wrong count in sub-02;
	// readout_time still pairs with dwi there.
	assert.ElementsMatch(t, []string{"pe", "dwi"}, columns)
	assert.Equal(t, []string{a.OutputDir}, verr.Duplicates)
	assert.True(t, errors.Is(err, ErrDuplicateOutputDir))
	assert.Contains(t, err.Error(), "3 problem(s)")
}

func TestValidate_UniformColumns(t *testing.T) {
	cols := []models.Column{
		{Name: models.ColumnSubject, Kind: models.Flat},
		{Name: "anatomical", Kind: models.List, Uniform: true},
	}
	a := models.NewRun("sub-01")
	a.Append("anatomical", "a0", "a3")
	b := models.NewRun("sub-02")
	b.Append("anatomical", "b0")

	err := Validate([]models.Run{a, b}, cols)
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Mismatches, 1)
	assert.Equal(t, "sub-02", verr.Mismatches[0].Subject)
	assert.Equal(t, 2, verr.Mismatches[0].Expected)
}

func TestValidate_FlatColumnMissing(t *testing.T) {
	cols := []models.Column{{Name: models.ColumnOutputDir, Kind: models.Flat}}
	a := models.NewRun("sub-01")
	a.OutputDir = "/out/a"
	b := models.NewRun("sub-02")

	err := Validate([]models.Run{a, b}, cols)
	require.ErrorIs(t, err, models.ErrLengthMismatch)
	var lm *models.LengthMismatch
	require.True(t, errors.As(err, &lm))
	assert.Equal(t, 2, lm.Expected)
	assert.Equal(t, 1, lm.Actual)
}

func TestValidateColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []models.Column
		want    int
		hint    string
	}{
		{name: "Valid", columns: dwiColumns, want: 0},
		{
			name: "Unknown pairing with suggestion",
			columns: []models.Column{
				{Name: "dwi_files", Kind: models.List},
				{Name: "pe", Kind: models.List, PairWith: "dwi"},
			},
			want: 1,
			hint: "did you mean: dwi_files",
		},
		{
			name: "Duplicate and flat constraints",
			columns: []models.Column{
				{Name: "subject", Kind: models.Flat, Count: 2},
				{Name: "subject", Kind: models.Flat},
			},
			want: 2,
		},
		{
			name:    "Missing name",
			columns: []models.Column{{Kind: models.List}},
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := ValidateColumns(tt.columns)
			assert.Len(t, problems, tt.want, "problems: %v", problems)
			if tt.hint != "" {
				require.NotEmpty(t, problems)
				assert.Contains(t, problems[0], tt.hint)
			}
		})
	}
}
