// Package progress provides progress reporting for a dispatch: a single
// batch bar, a per-job display, or nothing at all.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// BarProgress shows one progress bar counting finished jobs.
type BarProgress struct {
	bar        *progressbar.ProgressBar
	out        io.Writer
	isTerminal bool
	failed     int32
}

// NewBarProgress creates a batch progress bar on stderr for total jobs.
// Outside a terminal the bar is not drawn.
func NewBarProgress(total int, description string) *BarProgress {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	out := io.Writer(os.Stderr)
	if !isTerminal {
		out = io.Discard
	}
	return newBarProgress(out, isTerminal, total, description)
}

func newBarProgress(out io.Writer, isTerminal bool, total int, description string) *BarProgress {
	p := &BarProgress{out: out, isTerminal: isTerminal}
	p.bar = progressbar.NewOptions64(int64(total),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(isTerminal),
	)
	return p
}

// Begin registers a started job.
func (p *BarProgress) Begin(index int, label string) JobHandle {
	return &barHandle{p: p}
}

// Wait finishes the bar.
func (p *BarProgress) Wait() {
	_ = p.bar.Finish()
}

// Writer returns stderr; the bar redraws itself after foreign output.
func (p *BarProgress) Writer() io.Writer {
	return os.Stderr
}

// IsTerminal reports whether the bar is drawn.
func (p *BarProgress) IsTerminal() bool {
	return p.isTerminal
}

// Failed returns the number of jobs finished with a non-zero exit code.
func (p *BarProgress) Failed() int {
	return int(atomic.LoadInt32(&p.failed))
}

type barHandle struct {
	p    *BarProgress
	done int32
}

func (h *barHandle) Done(exitCode int, err error) {
	if !atomic.CompareAndSwapInt32(&h.done, 0, 1) {
		return
	}
	if exitCode != 0 || err != nil {
		n := atomic.AddInt32(&h.p.failed, 1)
		h.p.bar.Describe(fmt.Sprintf("running (%d failed)", n))
	}
	_ = h.p.bar.Add(1)
}

// NoOpProgress is a tracker that does nothing (for tests and quiet runs).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op tracker.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

// Begin returns a handle that does nothing.
func (p *NoOpProgress) Begin(index int, label string) JobHandle { return noopHandle{} }

// Wait does nothing.
func (p *NoOpProgress) Wait() {}

// Writer discards output.
func (p *NoOpProgress) Writer() io.Writer { return io.Discard }

// IsTerminal returns false.
func (p *NoOpProgress) IsTerminal() bool { return false }

type noopHandle struct{}

func (noopHandle) Done(int, error) {}
