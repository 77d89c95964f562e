package progress

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// JobUI shows one spinner per running job using mpb
type JobUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalJobs  int
	started    int32 // Atomic counter of started jobs (1, 2, 3, ...)
	completed  int32
}

// JobBar represents a single running job
type JobBar struct {
	bar       *mpb.Bar
	ui        *JobUI
	index     int
	label     string
	startTime time.Time
	done      int32
}

// NewJobUI creates a new job UI for the given number of jobs
func NewJobUI(totalJobs int) *JobUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		// Enable ANSI escape sequences on Windows for proper rendering
		enableANSIOnWindows(os.Stderr)

		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(60),
		)
	} else {
		// Non-TTY: no live display, one line per event
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &JobUI{
		progress:   p,
		out:        os.Stderr,
		isTerminal: isTerminal,
		totalJobs:  totalJobs,
	}
}

// Begin adds a spinner for a started job
func (u *JobUI) Begin(index int, label string) JobHandle {
	n := int(atomic.AddInt32(&u.started, 1))

	jb := &JobBar{
		ui:        u,
		index:     index,
		label:     label,
		startTime: time.Now(),
	}

	if u.isTerminal {
		jb.bar = u.progress.New(1,
			mpb.SpinnerStyle(),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("[%d/%d] job %d %s", n, u.totalJobs, index, label)
				}, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Started [%d/%d]: job %d %s\n", n, u.totalJobs, index, label)
	}
	return jb
}

// Done marks the job as finished and prints a summary line
func (b *JobBar) Done(exitCode int, err error) {
	if !atomic.CompareAndSwapInt32(&b.done, 0, 1) {
		return
	}
	elapsed := time.Since(b.startTime).Round(time.Second)

	var msg string
	if exitCode == 0 && err == nil {
		if b.bar != nil {
			b.bar.SetCurrent(1)
		}
		msg = fmt.Sprintf("✓ job %d %s (%s)\n", b.index, b.label, elapsed)
	} else {
		if b.bar != nil {
			b.bar.Abort(true)
		}
		if err != nil {
			msg = fmt.Sprintf("✗ job %d %s: exit code %d: %v (%s)\n", b.index, b.label, exitCode, err, elapsed)
		} else {
			msg = fmt.Sprintf("✗ job %d %s: exit code %d (%s)\n", b.index, b.label, exitCode, elapsed)
		}
	}

	// Write through mpb's writer (not stderr) to avoid breaking redraws
	if b.ui.isTerminal {
		_, _ = b.ui.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(b.ui.out, msg)
	}
	atomic.AddInt32(&b.ui.completed, 1)
}

// Wait blocks until all spinners complete
func (u *JobUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the spinners.
func (u *JobUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if output is to a terminal (spinners are active).
func (u *JobUI) IsTerminal() bool {
	return u.isTerminal
}

// Completed returns the number of finished jobs.
func (u *JobUI) Completed() int {
	return int(atomic.LoadInt32(&u.completed))
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows for ANSI escape sequences
// This is a no-op on non-Windows platforms
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
