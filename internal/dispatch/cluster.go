package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/models"
)

// ClusterOptions routes jobs to a PBS queue instead of local processes.
type ClusterOptions struct {
	Queue string
	// LogDir receives the generated job scripts and the scheduler's
	// stdout/stderr files. It is unique per invocation.
	LogDir string
	// Name prefixes the scheduler job names.
	Name string
	// Resources are passed as "-l" requests (e.g. "walltime=24:00:00").
	Resources []string
	// Qsub is the submission program (default "qsub").
	Qsub string
}

// ClusterExecutor submits every job with "qsub -W block=true", which only
// returns once the job has finished and exits with the job's exit status.
// Cancellation kills the blocking qsub; jobs already queued are left to the
// scheduler.
type ClusterExecutor struct {
	opts  ClusterOptions
	local Executor
}

// NewClusterExecutor returns an executor submitting through qsub. local runs
// the qsub process itself.
func NewClusterExecutor(opts ClusterOptions, local Executor) *ClusterExecutor {
	if opts.Qsub == "" {
		opts.Qsub = "qsub"
	}
	if opts.Queue == "" {
		opts.Queue = constants.DefaultClusterQueue
	}
	if local == nil {
		local = NewLocalExecutor()
	}
	return &ClusterExecutor{opts: opts, local: local}
}

// Execute writes the job script and blocks on its submission.
func (c *ClusterExecutor) Execute(ctx context.Context, job models.JobSubmission, out io.Writer) (int, error) {
	if err := os.MkdirAll(c.opts.LogDir, 0755); err != nil {
		return constants.NotRunExitCode, fmt.Errorf("failed to create cluster log directory: %w", err)
	}

	name := c.jobName(job)
	script := filepath.Join(c.opts.LogDir, name+".pbs")
	if err := os.WriteFile(script, []byte(JobScript(job)), 0755); err != nil {
		return constants.NotRunExitCode, fmt.Errorf("failed to write job script: %w", err)
	}

	submit := job
	submit.Args = c.QsubArgs(job, script)
	fmt.Fprintf(out, "submitting %s to queue %s\n", script, c.opts.Queue)
	return c.local.Execute(ctx, submit, out)
}

// QsubArgs returns the submission command line for a job script.
func (c *ClusterExecutor) QsubArgs(job models.JobSubmission, script string) []string {
	name := c.jobName(job)
	args := []string{
		c.opts.Qsub,
		"-W", "block=true",
		"-N", name,
		"-q", c.opts.Queue,
		"-o", filepath.Join(c.opts.LogDir, name+".out"),
		"-e", filepath.Join(c.opts.LogDir, name+".err"),
	}
	for _, r := range c.opts.Resources {
		args = append(args, "-l", r)
	}
	return append(args, script)
}

func (c *ClusterExecutor) jobName(job models.JobSubmission) string {
	prefix := c.opts.Name
	if prefix == "" {
		prefix = "job"
	}
	return fmt.Sprintf("%s_%d", prefix, job.Index)
}

// JobScript renders the shell script executed on the compute node.
func JobScript(job models.JobSubmission) string {
	quoted := make([]string, len(job.Args))
	for i, a := range job.Args {
		quoted[i] = shellQuote(a)
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "# %s\n", job.Subject)
	if job.OutputDir != "" {
		fmt.Fprintf(&b, "mkdir -p %s\n", shellQuote(job.OutputDir))
	}
	fmt.Fprintf(&b, "exec %s\n", strings.Join(quoted, " "))
	return b.String()
}

// shellQuote quotes s for POSIX shells unless it only holds safe characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("-_./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
