package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nsap/bidsbatch/internal/config"
	"github.com/nsap/bidsbatch/internal/drivers"
)

// runFlags are the flags shared by every driver command. Zero values fall
// back to the settings file.
type runFlags struct {
	datadir     string
	outdir      string
	name        string
	simg        string
	command     string
	njobs       int
	usePBS      bool
	queue       string
	resources   []string
	process     bool
	test        bool
	marker      string
	progress    string
	manifestOut string
	vars        []string
	include     string
	exclude     string
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.datadir, "datadir", "", "Dataset root holding the subject directories (required)")
	cmd.Flags().StringVar(&f.outdir, "outdir", "", "Derivatives root receiving the outputs and logs (required)")
	cmd.Flags().StringVar(&f.name, "name", "", "Name of the analysis (defaults to the driver name)")
	cmd.Flags().StringVar(&f.simg, "simg", "", "Container image running the processing (config key simg)")
	cmd.Flags().StringVar(&f.command, "cmd", "", "Command prefix replacing the container invocation")
	cmd.Flags().IntVar(&f.njobs, "njobs", 0, "Number of parallel jobs (config key workers, default 10)")
	cmd.Flags().BoolVar(&f.usePBS, "use-pbs", false, "Submit the jobs to a PBS queue")
	cmd.Flags().StringVar(&f.queue, "queue", "", "PBS queue (config key queue, default Nspin_long)")
	cmd.Flags().StringArrayVar(&f.resources, "resource", nil, "PBS resource request, repeatable (e.g. walltime=24:00:00)")
	cmd.Flags().BoolVar(&f.process, "process", false, "Launch the jobs (without it only the preview is printed)")
	cmd.Flags().BoolVar(&f.test, "test", false, "Keep only the first run")
	cmd.Flags().StringVar(&f.marker, "marker", "", "Base-name marker of the preferred candidate (config key marker, default yGC)")
	cmd.Flags().StringVar(&f.progress, "progress", "", "Progress display: bar, jobs or none (config key progress)")
	cmd.Flags().StringVar(&f.manifestOut, "manifest-out", "", "Write the manifest to this CSV file")
	cmd.Flags().StringArrayVar(&f.vars, "set", nil, "Driver variable as name=value, repeatable")
	cmd.Flags().StringVar(&f.include, "include", "", "Comma-separated subject or subject/session patterns to keep")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Comma-separated subject or subject/session patterns to drop")

	cmd.MarkFlagRequired("datadir")
	cmd.MarkFlagRequired("outdir")
}

// parseVars parses repeated name=value flags.
func parseVars(values []string) (map[string]string, error) {
	vars := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q (expected name=value)", v)
		}
		vars[name] = value
	}
	return vars, nil
}

// newDriverCmd creates the command of a built-in driver.
func newDriverCmd(d *drivers.Driver) *cobra.Command {
	var flags runFlags

	long := d.Description
	if vars := d.Variables(); len(vars) > 0 {
		long += "\n\nVariables (--set name=value): " + strings.Join(vars, ", ")
	}

	cmd := &cobra.Command{
		Use:   d.Name,
		Short: d.Description,
		Long:  long,
		Example: fmt.Sprintf(`  bidsbatch %[1]s --datadir /data/rawdata --outdir /data/derivatives --simg brainprep.simg
  bidsbatch %[1]s --datadir /data/rawdata --outdir /data/derivatives --simg brainprep.simg --process --njobs 20`, d.Name),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriver(cmd.Context(), d, flags, newRunEnv(cmd))
		},
	}
	addRunFlags(cmd, &flags)
	return cmd
}

// newPipelineCmd creates the 'run' command executing a custom pipeline.
func newPipelineCmd() *cobra.Command {
	var flags runFlags
	var pipeline string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a custom pipeline definition",
		Long: `Run a driver defined in a YAML pipeline file.

The file uses the same schema as the built-in drivers (see 'bidsbatch drivers show').
A bare name is looked up in the pipelines directory of the configuration.`,
		Example: `  bidsbatch run --pipeline t1-qc.yaml --datadir /data/rawdata --outdir /data/derivatives --cmd "python qc.py"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := drivers.LoadFile(resolvePipeline(pipeline))
			if err != nil {
				return err
			}
			return runDriver(cmd.Context(), d, flags, newRunEnv(cmd))
		},
	}
	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline file or name (required)")
	cmd.MarkFlagRequired("pipeline")
	addRunFlags(cmd, &flags)
	return cmd
}

// resolvePipeline maps a bare pipeline name to the pipelines directory.
func resolvePipeline(pipeline string) string {
	if _, err := os.Stat(pipeline); err == nil {
		return pipeline
	}
	if strings.ContainsRune(pipeline, filepath.Separator) || filepath.Ext(pipeline) != "" {
		return pipeline
	}
	return filepath.Join(config.GetDefaultPipelineDir(), pipeline+".yaml")
}
