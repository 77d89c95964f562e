package progress

import "io"

// Tracker follows the jobs of a dispatch. Both the single batch bar and the
// per-job UI implement it, so the dispatcher reports progress the same way
// whatever is displayed.
type Tracker interface {
	// Begin registers a job that has started
	Begin(index int, label string) JobHandle

	// Wait blocks until every registered job is done and output is flushed
	Wait()

	// Writer returns an io.Writer that safely outputs above the progress display.
	// Returns the display's writer if in terminal mode, otherwise os.Stderr.
	Writer() io.Writer

	// IsTerminal returns true if output is to a terminal (progress display is active)
	IsTerminal() bool
}

// JobHandle represents a single running job
type JobHandle interface {
	// Done marks the job as finished with its exit code
	Done(exitCode int, err error)
}
