package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nsap/bidsbatch/internal/config"
	"github.com/nsap/bidsbatch/internal/dispatch"
	"github.com/nsap/bidsbatch/internal/drivers"
	"github.com/nsap/bidsbatch/internal/logging"
	"github.com/nsap/bidsbatch/internal/manifest/emit"
	"github.com/nsap/bidsbatch/internal/manifest/filescan"
	"github.com/nsap/bidsbatch/internal/manifest/validation"
	"github.com/nsap/bidsbatch/internal/models"
	"github.com/nsap/bidsbatch/internal/pathutil"
	"github.com/nsap/bidsbatch/internal/progress"
	"github.com/nsap/bidsbatch/internal/util/filter"
	"github.com/nsap/bidsbatch/internal/util/sanitize"
)

// runEnv holds what a driver run needs from its surroundings.
type runEnv struct {
	cfg    *config.Config
	logger *logging.Logger
	stdout io.Writer

	// executor and tracker override the ones derived from the settings.
	executor dispatch.Executor
	tracker  progress.Tracker
	now      func() time.Time
}

func newRunEnv(cmd *cobra.Command) runEnv {
	return runEnv{
		cfg:    GetConfig(),
		logger: GetLogger(),
		stdout: cmd.OutOrStdout(),
		now:    time.Now,
	}
}

// runDriver scans the dataset, validates and previews the manifest and,
// when asked to, dispatches its jobs.
func runDriver(ctx context.Context, d *drivers.Driver, f runFlags, env runEnv) error {
	cfg := env.cfg
	log := env.logger
	if env.now == nil {
		env.now = time.Now
	}

	datadir, err := pathutil.ResolveAbsolutePath(f.datadir)
	if err != nil {
		return fmt.Errorf("invalid --datadir: %w", err)
	}
	outdir, err := pathutil.ResolveAbsolutePath(f.outdir)
	if err != nil {
		return fmt.Errorf("invalid --outdir: %w", err)
	}
	vars, err := parseVars(f.vars)
	if err != nil {
		return err
	}
	if f.name != "" && !sanitize.IsSafeLabel(f.name) {
		return fmt.Errorf("invalid --name %q", f.name)
	}
	subjects := filter.Config{
		Include: filter.ParsePatternList(f.include),
		Exclude: filter.ParsePatternList(f.exclude),
	}
	if err := subjects.Validate(); err != nil {
		return err
	}
	switch f.progress {
	case "", "bar", "jobs", "none":
	default:
		return fmt.Errorf("invalid --progress %q (must be bar, jobs or none)", f.progress)
	}

	inv := drivers.Invocation{
		DatasetRoot:   datadir,
		OutputRoot:    outdir,
		Name:          f.name,
		Image:         firstNonEmpty(f.simg, cfg.Image),
		Command:       f.command,
		Runtime:       cfg.Runtime,
		Marker:        firstNonEmpty(f.marker, cfg.Marker),
		SubjectPrefix: cfg.SubjectPrefix,
		SessionPrefix: cfg.SessionPrefix,
		Vars:          vars,
	}
	name := inv.RunName(d)

	// With --process the invocation log receives the scan skips as well as
	// the job output.
	started := env.now()
	logPath := config.LogFilePath(outdir, name, started)
	if f.process {
		if err := log.AttachFile(logPath); err != nil {
			return err
		}
		defer log.Close()
		log.Info().Str("path", logPath).Msg("Logging to file")
	}

	scanOpts, err := d.ScanOptions(inv)
	if err != nil {
		return err
	}
	log.Info().
		Str("driver", d.Name).
		Str("datadir", datadir).
		Str("outdir", outdir).
		Str("grouping", scanOpts.Grouping.String()).
		Msg("Scanning dataset")

	result := filescan.Scan(scanOpts)
	runs := filter.ApplyToRuns(result.Runs, subjects)
	for _, skip := range result.Skipped {
		event := log.Warn().Str("subject", skip.Subject).Str("reason", skip.Reason)
		if skip.Session != "" {
			event = event.Str("session", skip.Session)
		}
		if skip.Err != nil {
			event = event.Err(skip.Err)
		}
		event.Msg("Skipped")
	}
	log.Info().
		Int("subjects", result.SubjectCount).
		Int("runs", len(runs)).
		Int("filtered", len(result.Runs)-len(runs)).
		Int("skipped", len(result.Skipped)).
		Int("skipped_subjects", len(result.SkippedSubjects())).
		Msg("Scan complete")

	if len(runs) == 0 {
		return fmt.Errorf("%w: %d subject(s) scanned, %d skip(s)",
			models.ErrEmptyManifest, result.SubjectCount, len(result.Skipped))
	}

	columns, err := d.ModelColumns()
	if err != nil {
		return err
	}
	if err := validation.Validate(runs, columns); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			fmt.Fprint(env.stdout, verr.Diagnostic())
		}
		return err
	}

	m, err := emit.Emit(runs, columns, emit.EmitOptions{
		Name:        name,
		DatasetRoot: datadir,
		OutputRoot:  outdir,
		TestMode:    f.test,
	}, env.stdout)
	if err != nil {
		return err
	}

	batchID := uuid.NewString()
	if f.manifestOut != "" {
		if err := config.SaveManifestCSV(f.manifestOut, m, batchID); err != nil {
			return err
		}
		log.Info().Str("path", f.manifestOut).Msg("Manifest written")
	}

	if !f.process {
		log.Info().Int("jobs", m.JobCount()).Msg("Dry run: pass --process to launch the jobs")
		return nil
	}

	tmpl, err := d.Template(inv)
	if err != nil {
		return err
	}
	return dispatchManifest(ctx, m, tmpl, f, env, batchID, started, logPath)
}

// dispatchManifest runs the jobs; the invocation log file must already be
// attached to env.logger.
func dispatchManifest(ctx context.Context, m *models.Manifest, tmpl dispatch.CommandTemplate, f runFlags, env runEnv,
	batchID string, started time.Time, logPath string) error {
	cfg := env.cfg
	log := env.logger
	log.Info().Str("batch", batchID).Int("jobs", m.JobCount()).Msg("Dispatching")

	opts := dispatch.Options{
		Workers:  f.njobs,
		Executor: env.executor,
		Output:   log.File(),
		Logger:   log,
		Tracker:  env.tracker,
		BatchID:  batchID,
	}
	if opts.Workers == 0 {
		opts.Workers = cfg.Workers
	}
	if opts.Executor == nil {
		local := &dispatch.LocalExecutor{GracePeriod: cfg.GracePeriod}
		opts.Executor = local
		if f.usePBS {
			opts.Cluster = &dispatch.ClusterOptions{
				Queue:     firstNonEmpty(f.queue, cfg.Queue),
				LogDir:    config.ClusterDir(m.OutputRoot, m.Name, started),
				Name:      m.Name,
				Resources: append(append([]string(nil), cfg.Resources...), f.resources...),
			}
			opts.Executor = dispatch.NewClusterExecutor(*opts.Cluster, local)
		}
	}
	if opts.Tracker == nil {
		opts.Tracker = newTracker(firstNonEmpty(f.progress, cfg.Progress), m)
	}
	if opts.Tracker.IsTerminal() {
		log.SetOutput(opts.Tracker.Writer())
		defer log.SetOutput(env.stdout)
	}

	report, err := dispatch.Submit(ctx, m, tmpl, opts)

	fmt.Fprintf(env.stdout, "%d/%d job(s) succeeded in %s (batch %s)\n",
		report.Succeeded(), m.JobCount(), report.Duration.Round(time.Second), report.BatchID)
	for _, failure := range report.Failures {
		fmt.Fprintf(env.stdout, "  %v\n", failure)
	}
	if err != nil {
		return err
	}
	if report.Status != 0 {
		return fmt.Errorf("%w: %d of %d job(s) failed, see %s",
			models.ErrDispatchFailure, len(report.Failures), m.JobCount(), logPath)
	}
	return nil
}

func newTracker(mode string, m *models.Manifest) progress.Tracker {
	switch mode {
	case "jobs":
		return progress.NewJobUI(m.JobCount())
	case "none":
		return progress.NewNoOpProgress()
	}
	return progress.NewBarProgress(m.JobCount(), m.Name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
