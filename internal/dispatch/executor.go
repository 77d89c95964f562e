package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/models"
)

// Executor runs one job to completion. It returns the job's exit code
// unmodified; err is non-nil only when the job could not be run or was
// cancelled, in which case the exit code may be constants.NotRunExitCode.
type Executor interface {
	Execute(ctx context.Context, job models.JobSubmission, out io.Writer) (int, error)
}

// LocalExecutor runs jobs as child processes of this one. Each job gets its
// own process group so that cancellation reaches every descendant.
type LocalExecutor struct {
	// Env is appended to the current environment.
	Env []string
	// GracePeriod separates SIGTERM from SIGKILL on cancellation.
	GracePeriod time.Duration
}

// NewLocalExecutor returns an executor with the default grace period.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{GracePeriod: constants.KillGracePeriod}
}

// Execute runs job.Args with stdout and stderr sent to out.
func (e *LocalExecutor) Execute(ctx context.Context, job models.JobSubmission, out io.Writer) (int, error) {
	if len(job.Args) == 0 {
		return constants.NotRunExitCode, errors.New("empty command")
	}
	if err := ctx.Err(); err != nil {
		return constants.NotRunExitCode, err
	}

	grace := e.GracePeriod
	if grace <= 0 {
		grace = constants.KillGracePeriod
	}

	cmd := exec.CommandContext(ctx, job.Args[0], job.Args[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd, grace)
	}
	cmd.WaitDelay = grace + time.Second

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return exitErr.ExitCode(), ctx.Err()
		}
		return exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return constants.NotRunExitCode, ctx.Err()
	}
	return constants.NotRunExitCode, fmt.Errorf("failed to start %s: %w", job.Args[0], err)
}
