package config

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/nsap/bidsbatch/internal/models"
)

func TestSaveManifestCSV(t *testing.T) {
	a := models.NewRun("sub-01")
	a.Sessions = []string{"ses-M00", "ses-M03"}
	a.Longitudinal = true
	a.OutputDir = "/out/cat12vbm/sub-01"
	a.Append("anatomical", "/data/a0.nii.gz", "/data/a3.nii.gz")

	b := models.NewRun("sub-02")
	b.Sessions = []string{"ses-M00"}
	b.OutputDir = "/out/cat12vbm/sub-02"

	m := &models.Manifest{
		Columns: []models.Column{
			{Name: models.ColumnSubject},
			{Name: models.ColumnOutputDir},
			{Name: models.ColumnSession},
			{Name: models.ColumnLongitudinal},
			{Name: "anatomical", Kind: models.List},
		},
		Runs: []models.Run{a, b},
	}

	path := filepath.Join(t.TempDir(), "audit", "manifest.csv")
	require.NoError(t, SaveManifestCSV(path, m, "b-1"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	want := [][]string{
		{"batch_id", "index", "subject", "output_dir", "session", "longitudinal", "anatomical"},
		{"b-1", "0", "sub-01", "/out/cat12vbm/sub-01", "ses-M00;ses-M03", "true", "/data/a0.nii.gz;/data/a3.nii.gz"},
		{"b-1", "1", "sub-02", "/out/cat12vbm/sub-02", "ses-M00", "false", ""},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("manifest CSV mismatch (-want +got):\n%s", diff)
	}
}
