// Package dispatch runs the jobs of a manifest, locally or through a PBS
// queue, and collects their exit codes.
//
// Failures are isolated: a job exiting non-zero never cancels its siblings,
// and nothing is retried. Cancelling the context kills every in-flight job
// and leaves the outputs of finished jobs untouched.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/logging"
	"github.com/nsap/bidsbatch/internal/models"
	"github.com/nsap/bidsbatch/internal/progress"
)

// Options configures a dispatch.
type Options struct {
	// Workers bounds the number of concurrently running jobs.
	Workers int
	// Cluster, when set, routes jobs to a PBS queue.
	Cluster *ClusterOptions
	// Executor overrides the local/cluster executor.
	Executor Executor
	// Output receives the output of every job, one block per job.
	Output io.Writer
	Logger *logging.Logger
	// Tracker displays progress; nil means no display.
	Tracker progress.Tracker
	// BatchID identifies the invocation in logs; generated when empty.
	BatchID string
	// ReportInterval is the period of the "active/completed" log line.
	ReportInterval time.Duration
}

// Report is the outcome of a dispatch.
type Report struct {
	BatchID string
	// Status is 0 when every job exited 0, 1 otherwise.
	Status int
	// ExitCodes is indexed by job; constants.NotRunExitCode marks jobs that
	// never ran.
	ExitCodes []int
	Failures  []*models.JobError
	Duration  time.Duration
}

// Succeeded returns the number of jobs that exited 0.
func (r Report) Succeeded() int {
	n := 0
	for _, c := range r.ExitCodes {
		if c == 0 {
			n++
		}
	}
	return n
}

// Err joins every job failure, or returns nil.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type dispatcher struct {
	opts     Options
	executor Executor
	logger   *logging.Logger
	tracker  progress.Tracker

	outMu sync.Mutex

	// Progress tracking
	mu        sync.Mutex
	active    int
	completed int
	total     int
}

// Submit renders one job per run with tmpl and runs them with at most
// opts.Workers in flight. The returned error is non-nil when the jobs could
// not be built or the context was cancelled; per-job failures are only
// reported in Report.
func Submit(ctx context.Context, m *models.Manifest, tmpl CommandTemplate, opts Options) (Report, error) {
	report := Report{BatchID: opts.BatchID}
	if report.BatchID == "" {
		report.BatchID = uuid.NewString()
	}
	opts.BatchID = report.BatchID

	if m.JobCount() == 0 {
		return report, models.ErrEmptyManifest
	}
	jobs, err := tmpl.Build(m)
	if err != nil {
		return report, fmt.Errorf("failed to build jobs: %w", err)
	}

	d := newDispatcher(opts, len(jobs))
	start := time.Now()
	report.ExitCodes = d.run(ctx, jobs)
	report.Duration = time.Since(start)

	for i, code := range report.ExitCodes {
		if code == 0 {
			continue
		}
		report.Status = 1
		jerr := &models.JobError{Index: i, Subject: jobs[i].Subject, ExitCode: code}
		if code == constants.NotRunExitCode {
			jerr.Err = errors.New("job did not run")
		}
		report.Failures = append(report.Failures, jerr)
	}

	d.logger.Info().
		Int("jobs", len(jobs)).
		Int("succeeded", report.Succeeded()).
		Int("failed", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("Dispatch finished")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("dispatch cancelled: %w", err)
	}
	return report, nil
}

func newDispatcher(opts Options, total int) *dispatcher {
	if opts.Workers < constants.MinWorkers {
		opts.Workers = constants.DefaultWorkers
	}
	if opts.Workers > constants.MaxWorkers {
		opts.Workers = constants.MaxWorkers
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = constants.DispatchReportInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = progress.NewNoOpProgress()
	}

	executor := opts.Executor
	if executor == nil {
		executor = NewLocalExecutor()
		if opts.Cluster != nil {
			executor = NewClusterExecutor(*opts.Cluster, executor)
		}
	}

	return &dispatcher{
		opts:     opts,
		executor: executor,
		logger:   logger.WithFields(map[string]interface{}{"batch": opts.BatchID}),
		tracker:  tracker,
		total:    total,
	}
}

func (d *dispatcher) run(ctx context.Context, jobs []models.JobSubmission) []int {
	codes := make([]int, len(jobs))
	for i := range codes {
		codes[i] = constants.NotRunExitCode
	}

	mode := "local"
	if d.opts.Cluster != nil {
		mode = "cluster:" + d.opts.Cluster.Queue
	}
	d.logger.Info().Int("jobs", len(jobs)).Int("workers", d.opts.Workers).Str("mode", mode).Msg("Starting dispatch")

	stopReporter := make(chan struct{})
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		d.progressReporter(stopReporter)
	}()

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		job := jobs[i]
		g.Go(func() error {
			// Each goroutine owns codes[job.Index].
			codes[job.Index] = d.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	close(stopReporter)
	<-reporterDone
	d.tracker.Wait()

	if err := ctx.Err(); err != nil {
		d.logger.Warn().Err(err).Msg("Dispatch interrupted; remaining jobs were not started")
	}
	return codes
}

func (d *dispatcher) runJob(ctx context.Context, job models.JobSubmission) int {
	if ctx.Err() != nil {
		return constants.NotRunExitCode
	}

	d.setActive(1)
	defer d.setActive(-1)

	handle := d.tracker.Begin(job.Index, job.Subject)
	log := d.logger.With().Int("job", job.Index).Str("subject", job.Subject).Logger()

	if job.OutputDir != "" {
		if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
			log.Error().Err(err).Msg("Failed to create output directory")
			handle.Done(constants.NotRunExitCode, err)
			return constants.NotRunExitCode
		}
	}

	log.Debug().Strs("args", job.Args).Msg("Running job")
	start := time.Now()

	var buf bytes.Buffer
	code, err := d.executor.Execute(ctx, job, &buf)
	elapsed := time.Since(start)
	d.writeOutput(job, code, buf.Bytes())
	handle.Done(code, err)
	d.incrementCompleted()

	switch {
	case err != nil:
		log.Error().Err(err).Int("exit_code", code).Dur("elapsed", elapsed).Msg("Job failed")
	case code != 0:
		log.Error().Int("exit_code", code).Dur("elapsed", elapsed).Msg("Job failed")
	default:
		log.Info().Dur("elapsed", elapsed).Msg("Job finished")
	}
	return code
}

// writeOutput appends the job's output to the shared sink as one block.
func (d *dispatcher) writeOutput(job models.JobSubmission, code int, output []byte) {
	if d.opts.Output == nil {
		return
	}

	var block bytes.Buffer
	fmt.Fprintf(&block, "=== job %d %s (batch %s)\n", job.Index, job.Subject, d.opts.BatchID)
	block.Write(output)
	if len(output) > 0 && output[len(output)-1] != '\n' {
		block.WriteByte('\n')
	}
	fmt.Fprintf(&block, "=== job %d exit code %d\n", job.Index, code)

	d.outMu.Lock()
	defer d.outMu.Unlock()
	if _, err := d.opts.Output.Write(block.Bytes()); err != nil {
		d.logger.Warn().Err(err).Int("job", job.Index).Msg("Failed to write job output")
	}
}

// setActive updates the running job count
func (d *dispatcher) setActive(delta int) {
	d.mu.Lock()
	d.active += delta
	if d.active < 0 {
		d.active = 0
	}
	d.mu.Unlock()
}

// incrementCompleted increments the finished job count
func (d *dispatcher) incrementCompleted() {
	d.mu.Lock()
	d.completed++
	d.mu.Unlock()
}

// progressReporter logs progress every ReportInterval
func (d *dispatcher) progressReporter(stop chan struct{}) {
	ticker := time.NewTicker(d.opts.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			active := d.active
			completed := d.completed
			d.mu.Unlock()

			d.logger.Info().Int("active", active).Msgf("Completed: %d/%d", completed, d.total)

		case <-stop:
			return
		}
	}
}
