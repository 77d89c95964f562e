package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeExecutor returns a fixed exit code per job index and records peak
// concurrency.
type fakeExecutor struct {
	codes map[int]int
	delay time.Duration

	mu      sync.Mutex
	running int
	peak    int
	ran     []int
}

func (f *fakeExecutor) Execute(ctx context.Context, job models.JobSubmission, out io.Writer) (int, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.ran = append(f.ran, job.Index)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	fmt.Fprintf(out, "processing %s\n", job.Subject)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return constants.NotRunExitCode, ctx.Err()
	}
	return f.codes[job.Index], nil
}

func manifestOf(t *testing.T, n int) *models.Manifest {
	t.Helper()
	root := t.TempDir()
	m := &models.Manifest{
		Name:    "cat12vbm",
		Columns: []models.Column{{Name: models.ColumnSubject}, {Name: models.ColumnOutputDir}},
	}
	for i := 0; i < n; i++ {
		run := models.NewRun(fmt.Sprintf("sub-%02d", i+1))
		run.OutputDir = filepath.Join(root, "cat12vbm", run.Subject)
		m.Runs = append(m.Runs, run)
	}
	return m
}

var subjectTemplate = CommandTemplate{
	Command: []string{"brainprep"},
	Params:  []Param{{Name: "subject", Column: models.ColumnSubject}},
}

func TestSubmit_AllSucceed(t *testing.T) {
	m := manifestOf(t, 3)
	exec := &fakeExecutor{}
	var out bytes.Buffer

	report, err := Submit(context.Background(), m, subjectTemplate, Options{
		Workers:  2,
		Executor: exec,
		Output:   &out,
		BatchID:  "batch-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Status)
	assert.Equal(t, []int{0, 0, 0}, report.ExitCodes)
	assert.Equal(t, 3, report.Succeeded())
	assert.Empty(t, report.Failures)
	assert.NoError(t, report.Err())
	assert.Equal(t, "batch-1", report.BatchID)

	for _, run := range m.Runs {
		assert.DirExists(t, run.OutputDir)
	}
	for i := 0; i < 3; i++ {
		assert.Contains(t, out.String(), fmt.Sprintf("=== job %d exit code 0", i))
	}
}

func TestSubmit_FailureDoesNotCancelSiblings(t *testing.T) {
	m := manifestOf(t, 4)
	exec := &fakeExecutor{codes: map[int]int{1: 2}, delay: 10 * time.Millisecond}

	report, err := Submit(context.Background(), m, subjectTemplate, Options{
		Workers:  4,
		Executor: exec,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Status)
	assert.Equal(t, []int{0, 2, 0, 0}, report.ExitCodes)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Index)
	assert.Equal(t, 2, report.Failures[0].ExitCode)
	assert.Equal(t, "sub-02", report.Failures[0].Subject)
	assert.ErrorIs(t, report.Err(), models.ErrDispatchFailure)
	assert.Len(t, exec.ran, 4, "every job runs exactly once")
}

func TestSubmit_RespectsWorkerLimit(t *testing.T) {
	m := manifestOf(t, 8)
	exec := &fakeExecutor{delay: 20 * time.Millisecond}

	report, err := Submit(context.Background(), m, subjectTemplate, Options{
		Workers:  3,
		Executor: exec,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Status)
	assert.LessOrEqual(t, exec.peak, 3)
	assert.GreaterOrEqual(t, exec.peak, 1)
}

func TestSubmit_Sequential(t *testing.T) {
	m := manifestOf(t, 3)
	exec := &fakeExecutor{delay: time.Millisecond}

	_, err := Submit(context.Background(), m, subjectTemplate, Options{Workers: 1, Executor: exec})
	require.NoError(t, err)
	assert.Equal(t, 1, exec.peak)
	assert.Equal(t, []int{0, 1, 2}, exec.ran)
}

func TestSubmit_Cancelled(t *testing.T) {
	m := manifestOf(t, 3)
	exec := &fakeExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Submit(ctx, m, subjectTemplate, Options{Workers: 2, Executor: exec})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{-1, -1, -1}, report.ExitCodes)
	assert.Equal(t, 1, report.Status)
	assert.Len(t, report.Failures, 3)
	assert.Empty(t, exec.ran)
}

func TestSubmit_CancelledMidway(t *testing.T) {
	m := manifestOf(t, 6)
	exec := &fakeExecutor{delay: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := Submit(ctx, m, subjectTemplate, Options{Workers: 2, Executor: exec})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	for _, code := range report.ExitCodes {
		assert.Equal(t, constants.NotRunExitCode, code)
	}
	assert.LessOrEqual(t, len(exec.ran), 2)
}

func TestSubmit_EmptyManifest(t *testing.T) {
	_, err := Submit(context.Background(), &models.Manifest{}, subjectTemplate, Options{})
	assert.ErrorIs(t, err, models.ErrEmptyManifest)
}

func TestSubmit_InvalidTemplate(t *testing.T) {
	_, err := Submit(context.Background(), manifestOf(t, 1), CommandTemplate{}, Options{Executor: &fakeExecutor{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build jobs")
}

func TestSubmit_OutputDirFailure(t *testing.T) {
	m := manifestOf(t, 2)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	m.Runs[0].OutputDir = filepath.Join(blocker, "sub-01")

	exec := &fakeExecutor{}
	report, err := Submit(context.Background(), m, subjectTemplate, Options{Workers: 1, Executor: exec})
	require.NoError(t, err)
	assert.Equal(t, []int{constants.NotRunExitCode, 0}, report.ExitCodes)
	assert.Equal(t, []int{1}, exec.ran)
	require.Len(t, report.Failures, 1)
	assert.True(t, errors.Is(report.Failures[0], models.ErrDispatchFailure))
}

func TestSubmit_OutputBlocksNotInterleaved(t *testing.T) {
	m := manifestOf(t, 5)
	exec := &fakeExecutor{delay: time.Millisecond}
	var out bytes.Buffer

	_, err := Submit(context.Background(), m, subjectTemplate, Options{Workers: 5, Executor: exec, Output: &out})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 15)
	for i := 0; i < len(lines); i += 3 {
		assert.True(t, strings.HasPrefix(lines[i], "=== job "), lines[i])
		assert.True(t, strings.HasPrefix(lines[i+1], "processing sub-"), lines[i+1])
		assert.Contains(t, lines[i+2], "exit code 0")
	}
}

func TestSubmit_GeneratesBatchID(t *testing.T) {
	report, err := Submit(context.Background(), manifestOf(t, 1), subjectTemplate, Options{Executor: &fakeExecutor{}})
	require.NoError(t, err)
	assert.Len(t, report.BatchID, 36)
}
